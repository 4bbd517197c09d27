// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package flate decodes the DEFLATE format of RFC 1951.
//
// The decoder state between blocks is small and copyable (a resumePoint), which
// lets ReaderAt restart decoding from checkpoints instead of from the beginning.
package flate

import (
	"errors"
	"fmt"
	"io"
	"math/bits"
	"runtime"
)

const (
	maxCodeLen = 16 // max length of Huffman code
	// RFC 1951 section 3.2.7, and 3.2.5 forbids distance codes 30 and 31.
	maxNumLit      = 286
	maxNumDist     = 30
	numCodes       = 19      // number of codes in Huffman meta-code
	maxMatchOffset = 1 << 15 // window size
	endBlockMarker = 256
)

// ErrCorrupt is returned for structurally invalid DEFLATE data.
// Input that simply ends too soon gives io.ErrUnexpectedEOF instead.
var ErrCorrupt = errors.New("corrupt DEFLATE")

// byteSource is what the decompressor reads from. It never reads a byte past
// the end of the final block, so the caller can carry on with the same source.
type byteSource interface {
	io.Reader
	io.ByteReader
}

// resumePoint is everything needed to carry on decoding at a block boundary.
type resumePoint struct {
	big     []byte // window of maxMatchOffset bytes, then output produced since
	roffset int64  // compressed bytes consumed
	b       uint32 // bits consumed from the input but not yet used
	nb      uint
	woffset int64 // output offset of big[maxMatchOffset]
}

func (rp *resumePoint) String() string {
	return fmt.Sprintf("big=%#x bytes, roffset=%#x, b=%#x, nb=%d, woffset=%#x",
		len(rp.big), rp.roffset, rp.b, rp.nb, rp.woffset)
}

// written is the total output so far, which bounds match distances.
func (rp *resumePoint) written() int64 {
	return rp.woffset + int64(len(rp.big)-maxMatchOffset)
}

type decompressor struct {
	r  byteSource // positioned at rp.roffset
	rp resumePoint
}

func newDecompressor(r byteSource) decompressor {
	fixedHuffmanDecoderInit()
	return decompressor{r: r, rp: resumePoint{big: make([]byte, maxMatchOffset)}}
}

// nextBlock appends one block of output to f.rp.big.
// It returns io.EOF after the final block.
func (f *decompressor) nextBlock() (err error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(runtime.Error); ok {
				panic(r)
			}
			e, ok := r.(error)
			if !ok {
				panic(r)
			}
			err = e
		}
	}()

	f.need(1 + 2)
	final := f.rp.b&1 == 1
	typ := f.rp.b >> 1 & 3
	f.drop(1 + 2)

	switch typ {
	case 0:
		f.dataBlock()
	case 1:
		f.huffmanBlock(&fixedHuffmanDecoder, nil)
	case 2:
		var h1, h2 huffmanDecoder
		f.readHuffman(&h1, &h2)
		f.huffmanBlock(&h1, &h2)
	default:
		corrupt("reserved block type")
	}

	if final {
		return io.EOF
	}
	return nil
}

func corrupt(why string) {
	panic(fmt.Errorf("%w: %s", ErrCorrupt, why))
}

// need ensures at least n bits are buffered.
func (f *decompressor) need(n uint) {
	for f.rp.nb < n {
		f.moreBits()
	}
}

func (f *decompressor) drop(n uint) {
	f.rp.b >>= n
	f.rp.nb -= n
}

func (f *decompressor) take(n uint) int {
	f.need(n)
	v := int(f.rp.b & (1<<n - 1))
	f.drop(n)
	return v
}

func (f *decompressor) moreBits() {
	c, err := f.r.ReadByte()
	if err != nil {
		panic(noEOF(err))
	}
	f.rp.roffset++
	f.rp.b |= uint32(c) << f.rp.nb
	f.rp.nb += 8
}

func noEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

var codeOrder = [...]int{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}

// readHuffman reads the code length tables of a dynamic block (RFC 1951 3.2.7).
func (f *decompressor) readHuffman(h1, h2 *huffmanDecoder) {
	var lengths [maxNumLit + maxNumDist]int
	var codebits [numCodes]int

	nlit := f.take(5) + 257
	ndist := f.take(5) + 1
	nclen := f.take(4) + 4
	if nlit > maxNumLit {
		corrupt("too many literal codes")
	}
	if ndist > maxNumDist {
		corrupt("too many distance codes")
	}

	for i := range nclen {
		codebits[codeOrder[i]] = f.take(3)
	}
	if !h1.init(codebits[:]) {
		corrupt("bad code length code")
	}

	for i, n := 0, nlit+ndist; i < n; {
		x := f.huffSym(h1)
		if x < 16 {
			lengths[i] = x
			i++
			continue
		}
		var rep, fill int
		switch x {
		case 16:
			if i == 0 {
				corrupt("repeat with no previous length")
			}
			rep = 3 + f.take(2)
			fill = lengths[i-1]
		case 17:
			rep = 3 + f.take(3)
		case 18:
			rep = 11 + f.take(7)
		default:
			corrupt("bad code length symbol")
		}
		if i+rep > n {
			corrupt("code lengths overrun")
		}
		for range rep {
			lengths[i] = fill
			i++
		}
	}

	if !h1.init(lengths[:nlit]) || !h2.init(lengths[nlit:nlit+ndist]) {
		corrupt("bad literal or distance code")
	}

	// Every block ends with the end-of-block code, so reading at least that
	// many bits at a time never reads past the end of the stream.
	if h1.min < lengths[endBlockMarker] {
		h1.min = lengths[endBlockMarker]
	}
}

// huffmanBlock decodes literals and matches up to the end-of-block code.
// hd is nil for the fixed distance code of fixed-Huffman blocks.
func (f *decompressor) huffmanBlock(hl, hd *huffmanDecoder) {
	for {
		v := f.huffSym(hl)
		var n uint // extra bits
		var length int
		switch {
		case v < 256:
			f.rp.big = append(f.rp.big, byte(v))
			continue
		case v == endBlockMarker:
			return
		case v < 265:
			length = v - (257 - 3)
		case v < 269:
			length = v*2 - (265*2 - 11)
			n = 1
		case v < 273:
			length = v*4 - (269*4 - 19)
			n = 2
		case v < 277:
			length = v*8 - (273*8 - 35)
			n = 3
		case v < 281:
			length = v*16 - (277*16 - 67)
			n = 4
		case v < 285:
			length = v*32 - (281*32 - 131)
			n = 5
		case v < maxNumLit:
			length = 258
		default:
			corrupt("bad length code")
		}
		if n > 0 {
			length += f.take(n)
		}

		var dist int
		if hd == nil {
			f.need(5)
			dist = int(bits.Reverse8(uint8(f.rp.b & 0x1f << 3)))
			f.drop(5)
		} else {
			dist = f.huffSym(hd)
		}

		switch {
		case dist < 4:
			dist++
		case dist < maxNumDist:
			nb := uint(dist-2) >> 1
			extra := (dist&1)<<nb | f.take(nb)
			dist = 1<<(nb+1) + 1 + extra
		default:
			corrupt("bad distance code")
		}
		if dist > maxMatchOffset || int64(dist) > f.rp.written() {
			corrupt("distance too far back")
		}

		for range length {
			f.rp.big = append(f.rp.big, f.rp.big[len(f.rp.big)-dist])
		}
	}
}

// dataBlock copies a stored block.
func (f *decompressor) dataBlock() {
	// discard the rest of the partial byte
	f.rp.nb = 0
	f.rp.b = 0

	var hdr [4]byte
	nr, err := io.ReadFull(f.r, hdr[:])
	f.rp.roffset += int64(nr)
	if err != nil {
		panic(noEOF(err))
	}
	n := int(hdr[0]) | int(hdr[1])<<8
	nn := int(hdr[2]) | int(hdr[3])<<8
	if uint16(nn) != uint16(^n) {
		corrupt("stored block length check")
	}

	start := len(f.rp.big)
	f.rp.big = append(f.rp.big, make([]byte, n)...)
	nr, err = io.ReadFull(f.r, f.rp.big[start:])
	f.rp.roffset += int64(nr)
	if err != nil {
		f.rp.big = f.rp.big[:start+nr]
		panic(noEOF(err))
	}
}

// huffSym reads one symbol coded with h.
func (f *decompressor) huffSym(h *huffmanDecoder) int {
	// An empty or single-code table leaves zero entries, caught by n == 0 below.
	n := uint(h.min)
	// b and nb are kept in locals so the compiler can hold them in registers.
	nb, b := f.rp.nb, f.rp.b
	for {
		for nb < n {
			c, err := f.r.ReadByte()
			if err != nil {
				f.rp.b, f.rp.nb = b, nb
				panic(noEOF(err))
			}
			f.rp.roffset++
			b |= uint32(c) << (nb & 31)
			nb += 8
		}
		chunk := h.chunks[b&(huffmanNumChunks-1)]
		n = uint(chunk & huffmanCountMask)
		if n > huffmanChunkBits {
			chunk = h.links[chunk>>huffmanValueShift][(b>>huffmanChunkBits)&h.linkMask]
			n = uint(chunk & huffmanCountMask)
		}
		if n <= nb {
			if n == 0 {
				f.rp.b, f.rp.nb = b, nb
				corrupt("invalid Huffman code")
			}
			f.rp.b = b >> (n & 31)
			f.rp.nb = nb - n
			return int(chunk >> huffmanValueShift)
		}
	}
}
