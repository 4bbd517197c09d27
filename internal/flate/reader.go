// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package flate

import (
	"bufio"
	"io"
)

// Reader decompresses a DEFLATE stream from start to finish.
type Reader struct {
	f    decompressor
	rpos int // next byte of f.rp.big to hand out
	err  error
}

// NewReader reads DEFLATE data from r. If r is an io.ByteReader, nothing past
// the end of the compressed data is consumed from it.
func NewReader(r io.Reader) *Reader {
	src, ok := r.(byteSource)
	if !ok {
		src = bufio.NewReader(r)
	}
	return &Reader{f: newDecompressor(src), rpos: maxMatchOffset}
}

func (z *Reader) Read(p []byte) (int, error) {
	for z.rpos == len(z.f.rp.big) {
		if z.err != nil {
			return 0, z.err
		}
		z.slide()
		z.err = z.f.nextBlock()
	}
	n := copy(p, z.f.rp.big[z.rpos:])
	z.rpos += n
	return n, nil
}

// slide discards output that has been read and is out of match range.
func (z *Reader) slide() {
	rp := &z.f.rp
	n := len(rp.big) - maxMatchOffset
	if n < maxMatchOffset {
		return
	}
	copy(rp.big, rp.big[n:])
	rp.big = rp.big[:maxMatchOffset]
	rp.woffset += int64(n)
	z.rpos = maxMatchOffset
}

// InputOffset is the number of compressed bytes consumed.
func (z *Reader) InputOffset() int64 { return z.f.rp.roffset }
