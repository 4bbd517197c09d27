// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package bzip2

import "math/bits"

// CRC-32 as used by bzip2: polynomial 0x04c11db7 processed MSB first,
// with the register preset to all ones and complemented at the end.
var crctab [256]uint32

func init() {
	for i := range uint32(256) {
		c := i << 24
		for range 8 {
			if c&0x80000000 != 0 {
				c = c<<1 ^ 0x04c11db7
			} else {
				c <<= 1
			}
		}
		crctab[i] = c
	}
}

// CRC accumulates a block checksum. The zero value is not ready; use NewCRC.
type CRC struct {
	v uint32
}

// NewCRC returns a CRC ready for the first byte of a block.
func NewCRC() CRC { return CRC{v: 0xffffffff} }

func (c *CRC) Reset() { c.v = 0xffffffff }

// Update adds one byte.
func (c *CRC) Update(b byte) {
	c.v = c.v<<8 ^ crctab[byte(c.v>>24)^b]
}

// UpdateRepeat is Update called n times with the same byte.
func (c *CRC) UpdateRepeat(b byte, n int) {
	v := c.v
	for range n {
		v = v<<8 ^ crctab[byte(v>>24)^b]
	}
	c.v = v
}

func (c *CRC) Write(p []byte) (int, error) {
	v := c.v
	for _, b := range p {
		v = v<<8 ^ crctab[byte(v>>24)^b]
	}
	c.v = v
	return len(p), nil
}

// Sum32 returns the finished checksum without disturbing the running state.
func (c *CRC) Sum32() uint32 { return ^c.v }

// Checksum returns the bzip2 CRC of p.
func Checksum(p []byte) uint32 {
	c := NewCRC()
	c.Write(p)
	return c.Sum32()
}

// combineCRC folds one block checksum into the stream checksum.
// Blocks must be folded in stream order.
func combineCRC(stream, block uint32) uint32 {
	return bits.RotateLeft32(stream, 1) ^ block
}
