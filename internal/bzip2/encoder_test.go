// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package bzip2

import (
	"bytes"
	"slices"
)

// A deliberately simple bzip2 encoder for building test streams.

type bitWriter struct {
	buf []byte
	acc uint64
	n   uint
}

func (w *bitWriter) write(n uint, v uint32) {
	w.acc = w.acc<<n | uint64(v)&(1<<n-1)
	w.n += n
	for w.n >= 8 {
		w.n -= 8
		w.buf = append(w.buf, byte(w.acc>>w.n))
	}
}

func (w *bitWriter) bool(b bool) {
	if b {
		w.write(1, 1)
	} else {
		w.write(1, 0)
	}
}

func (w *bitWriter) bytes() []byte {
	if w.n > 0 {
		w.write(8-w.n, 0)
	}
	return w.buf
}

type encodeOptions struct {
	multiplier int  // 1-9, defaults to 9
	chunk      int  // input bytes per block, defaults to 5000
	tables     int  // 2-6, defaults to 2
	randomize  bool // apply the obsolete randomization step
}

type encodedBlock struct {
	bitOffset int64
	crc       uint32
	size      int
}

func encode(data []byte, opt encodeOptions) ([]byte, []encodedBlock) {
	if opt.multiplier == 0 {
		opt.multiplier = 9
	}
	if opt.chunk == 0 {
		opt.chunk = 5000
	}
	if opt.tables == 0 {
		opt.tables = 2
	}

	w := new(bitWriter)
	w.write(24, fileMagic)
	w.write(8, uint32('0'+opt.multiplier))

	var blocks []encodedBlock
	var streamCRC uint32
	for chunk := range slices.Chunk(data, opt.chunk) {
		crc := Checksum(chunk)
		streamCRC = combineCRC(streamCRC, crc)
		blocks = append(blocks, encodedBlock{
			bitOffset: int64(len(w.buf))*8 + int64(w.n),
			crc:       crc,
			size:      len(chunk),
		})
		encodeBlock(w, chunk, crc, opt)
	}

	w.write(24, endMagic>>24)
	w.write(24, endMagic&0xffffff)
	w.write(32, streamCRC)
	return w.bytes(), blocks
}

// rle1 is the initial run-length stage: runs of 4-259 become 4 bytes and a count.
func rle1(s []byte) []byte {
	var out []byte
	for i := 0; i < len(s); {
		j := i
		for j < len(s) && s[j] == s[i] && j-i < 259 {
			j++
		}
		if run := j - i; run >= 4 {
			out = append(out, s[i], s[i], s[i], s[i], byte(run-4))
		} else {
			out = append(out, s[i:j]...)
		}
		i = j
	}
	return out
}

// bwt sorts the rotations of s the slow way and returns the last column
// along with the row holding the unrotated string.
func bwt(s []byte) ([]byte, int) {
	n := len(s)
	sa := make([]int, n)
	for i := range sa {
		sa[i] = i
	}
	slices.SortStableFunc(sa, func(a, b int) int {
		for k := range n {
			x, y := s[(a+k)%n], s[(b+k)%n]
			if x != y {
				return int(x) - int(y)
			}
		}
		return 0
	})
	last := make([]byte, n)
	orig := 0
	for i, p := range sa {
		last[i] = s[(p+n-1)%n]
		if p == 0 {
			orig = i
		}
	}
	return last, orig
}

// mtfRLE2 returns the symbol stream for the last column, ending with EOB,
// and the byte values in use.
func mtfRLE2(last []byte) ([]uint16, []byte) {
	var inUse [256]bool
	for _, v := range last {
		inUse[v] = true
	}
	var used []byte
	var rank [256]byte
	for v := range 256 {
		if inUse[v] {
			rank[v] = byte(len(used))
			used = append(used, byte(v))
		}
	}

	list := make([]byte, len(used))
	for i := range list {
		list[i] = byte(i)
	}
	var syms []uint16
	zeros := 0
	flush := func() {
		if zeros == 0 {
			return
		}
		zeros--
		for {
			syms = append(syms, uint16(zeros&1)) // RUNA or RUNB
			if zeros < 2 {
				break
			}
			zeros = (zeros - 2) / 2
		}
		zeros = 0
	}
	for _, v := range last {
		r := rank[v]
		j := bytes.IndexByte(list, r)
		copy(list[1:j+1], list[:j])
		list[0] = r
		if j == 0 {
			zeros++
			continue
		}
		flush()
		syms = append(syms, uint16(j+1))
	}
	flush()
	syms = append(syms, uint16(len(used)+1))
	return syms, used
}

// huffmanLengths returns code lengths no longer than limit for the
// given frequencies, flattening them until the limit is met.
func huffmanLengths(freq []int, limit int) []uint8 {
	freq = slices.Clone(freq)
	for i := range freq {
		freq[i]++
	}
	for {
		lengths := unlimitedLengths(freq)
		if int(slices.Max(lengths)) <= limit {
			return lengths
		}
		for i := range freq {
			freq[i] = freq[i]/2 + 1
		}
	}
}

func unlimitedLengths(freq []int) []uint8 {
	n := len(freq)
	weight := slices.Clone(freq)
	parent := make([]int, n, 2*n)
	var live []int
	for i := range n {
		live = append(live, i)
	}
	for len(live) > 1 {
		slices.SortStableFunc(live, func(a, b int) int { return weight[a] - weight[b] })
		a, b := live[0], live[1]
		id := len(weight)
		weight = append(weight, weight[a]+weight[b])
		parent = append(parent, -1)
		parent[a], parent[b] = id, id
		live = append(live[2:], id)
	}
	root := live[0]
	lengths := make([]uint8, n)
	for i := range n {
		for j := i; j != root; j = parent[j] {
			lengths[i]++
		}
	}
	return lengths
}

// canonicalCodes assigns codes in order of length, then symbol.
func canonicalCodes(lengths []uint8) []uint32 {
	codes := make([]uint32, len(lengths))
	code := uint32(0)
	for l := 1; l <= maxCodeLen; l++ {
		for s, sl := range lengths {
			if int(sl) == l {
				codes[s] = code
				code++
			}
		}
		code <<= 1
	}
	return codes
}

func encodeBlock(w *bitWriter, chunk []byte, crc uint32, opt encodeOptions) {
	s := rle1(chunk)
	if opt.randomize {
		var r randomizer
		for i := range s {
			s[i] ^= r.next()
		}
	}
	last, orig := bwt(s)
	syms, used := mtfRLE2(last)
	alphabet := len(used) + 2

	// Table 0 is fitted to the whole block, the others to rotated frequencies
	// so that every table decodes something different.
	freq := make([]int, alphabet)
	for _, s := range syms {
		freq[s]++
	}
	lengths := make([][]uint8, opt.tables)
	codes := make([][]uint32, opt.tables)
	for t := range lengths {
		f := slices.Clone(freq)
		if t > 0 {
			k := t % len(f)
			f = append(f[k:], f[:k]...)
		}
		lengths[t] = huffmanLengths(f, maxCodeLenEnc)
		codes[t] = canonicalCodes(lengths[t])
	}

	nSel := (len(syms) + groupSize - 1) / groupSize
	selectors := make([]int, nSel)
	for i := range selectors {
		selectors[i] = i % opt.tables
	}

	w.write(24, blockMagic>>24)
	w.write(24, blockMagic&0xffffff)
	w.write(32, crc)
	w.bool(opt.randomize)
	w.write(24, uint32(orig))

	var inUse [256]bool
	for _, v := range used {
		inUse[v] = true
	}
	var ranges uint32
	for i := range 16 {
		if slices.Contains(inUse[i*16:i*16+16], true) {
			ranges |= 0x8000 >> i
		}
	}
	w.write(16, ranges)
	for i := range 16 {
		if ranges&(0x8000>>i) == 0 {
			continue
		}
		for j := range 16 {
			w.bool(inUse[i*16+j])
		}
	}

	w.write(3, uint32(opt.tables))
	w.write(15, uint32(nSel))
	mtf := make([]int, opt.tables)
	for i := range mtf {
		mtf[i] = i
	}
	for _, sel := range selectors {
		j := slices.Index(mtf, sel)
		copy(mtf[1:j+1], mtf[:j])
		mtf[0] = sel
		for range j {
			w.write(1, 1)
		}
		w.write(1, 0)
	}

	for _, ls := range lengths {
		cur := int(ls[0])
		w.write(5, uint32(cur))
		for _, l := range ls {
			for cur < int(l) {
				w.write(2, 0b10)
				cur++
			}
			for cur > int(l) {
				w.write(2, 0b11)
				cur--
			}
			w.write(1, 0)
		}
	}

	for i, s := range syms {
		t := selectors[i/groupSize]
		w.write(uint(lengths[t][s]), codes[t][s])
	}
}
