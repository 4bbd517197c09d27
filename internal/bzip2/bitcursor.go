// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package bzip2

import (
	"bufio"
	"io"
	"math"
)

// BitCursor reads MSB-first bit fields from a byte source.
// Between calls fewer than 8 bits are buffered.
type BitCursor struct {
	r     io.ByteReader
	acc   uint32 // low n bits are valid
	n     uint
	nread int64 // bytes taken from r
}

// NewBitCursor reads from r, adding buffering unless r is already an io.ByteReader.
func NewBitCursor(r io.Reader) *BitCursor {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &BitCursor{r: br}
}

// NewBitCursorAt starts reading r at an arbitrary bit position.
// BitOffset reports positions relative to the start of r, not to bitOffset.
func NewBitCursorAt(r io.ReaderAt, bitOffset int64) (*BitCursor, error) {
	if bitOffset < 0 {
		return nil, errorf(TruncatedInput, "negative bit offset %d", bitOffset)
	}
	base := bitOffset / 8
	c := NewBitCursor(bufio.NewReader(io.NewSectionReader(r, base, math.MaxInt64-base)))
	c.nread = base
	if skip := uint(bitOffset % 8); skip != 0 {
		if _, err := c.ReadBits(skip); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *BitCursor) fill(need uint) error {
	for c.n < need {
		b, err := c.r.ReadByte()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return &Error{Kind: TruncatedInput, Block: -1, Err: err}
		}
		c.acc = c.acc<<8 | uint32(b)
		c.n += 8
		c.nread++
	}
	return nil
}

// ReadBits reads an n-bit field, n <= 24.
func (c *BitCursor) ReadBits(n uint) (uint32, error) {
	if n > 24 {
		panic("bzip2: ReadBits width over 24")
	}
	if err := c.fill(n); err != nil {
		return 0, err
	}
	c.n -= n
	return (c.acc >> c.n) & (1<<n - 1), nil
}

// ReadBit reads a single bit as a flag.
func (c *BitCursor) ReadBit() (bool, error) {
	v, err := c.ReadBits(1)
	return v != 0, err
}

// ReadUnary counts 1-bits up to the terminating 0-bit.
func (c *BitCursor) ReadUnary() (uint, error) {
	var count uint
	for {
		bit, err := c.ReadBit()
		if err != nil {
			return count, err
		}
		if !bit {
			return count, nil
		}
		count++
	}
}

// ReadInt32 reads a 32-bit field as two 16-bit halves.
func (c *BitCursor) ReadInt32() (uint32, error) {
	hi, err := c.ReadBits(16)
	if err != nil {
		return 0, err
	}
	lo, err := c.ReadBits(16)
	if err != nil {
		return 0, err
	}
	return hi<<16 | lo, nil
}

// BitOffset is the number of bits consumed so far.
func (c *BitCursor) BitOffset() int64 {
	return c.nread*8 - int64(c.n)
}
