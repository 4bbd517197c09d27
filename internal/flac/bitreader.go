// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package flac

import (
	"io"
)

var crc8tab [256]uint8
var crc16tab [256]uint16

func init() {
	for i := range 256 {
		c8 := uint8(i)
		c16 := uint16(i) << 8
		for range 8 {
			if c8&0x80 != 0 {
				c8 = c8<<1 ^ 0x07
			} else {
				c8 <<= 1
			}
			if c16&0x8000 != 0 {
				c16 = c16<<1 ^ 0x8005
			} else {
				c16 <<= 1
			}
		}
		crc8tab[i] = c8
		crc16tab[i] = c16
	}
}

// bitReader reads MSB-first and keeps the frame checksums of every byte it loads.
// Bytes are only loaded when bits are needed, so after alignByte nothing is buffered.
// Read failures panic and are recovered by the exported entry points.
type bitReader struct {
	r     io.ByteReader
	acc   uint64
	nb    uint
	crc8  uint8
	crc16 uint16
}

func (br *bitReader) load() {
	c, err := br.r.ReadByte()
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		panic(err)
	}
	br.acc = br.acc<<8 | uint64(c)
	br.nb += 8
	br.crc8 = crc8tab[br.crc8^c]
	br.crc16 = br.crc16<<8 ^ crc16tab[byte(br.crc16>>8)^c]
}

func (br *bitReader) resetCRC() {
	br.crc8, br.crc16 = 0, 0
}

// bits reads an n-bit unsigned field, n <= 56.
func (br *bitReader) bits(n uint) uint64 {
	if n == 0 {
		return 0
	}
	for br.nb < n {
		br.load()
	}
	br.nb -= n
	return br.acc >> br.nb & (1<<n - 1)
}

// signed reads an n-bit two's complement field.
func (br *bitReader) signed(n uint) int64 {
	if n == 0 {
		return 0
	}
	v := br.bits(n)
	return int64(v<<(64-n)) >> (64 - n)
}

// unary counts 0 bits up to the next 1 bit.
func (br *bitReader) unary() uint64 {
	var n uint64
	for br.bits(1) == 0 {
		n++
	}
	return n
}

func (br *bitReader) rice(param uint) int64 {
	v := br.unary()<<param | br.bits(param)
	return int64(v>>1) ^ -int64(v&1)
}

func (br *bitReader) alignByte() {
	br.nb -= br.nb % 8
}

// atEOF reports whether the input ended cleanly on a byte boundary.
func (br *bitReader) atEOF() bool {
	if br.nb > 0 {
		return false
	}
	c, err := br.r.ReadByte()
	if err == io.EOF {
		return true
	} else if err != nil {
		panic(err)
	}
	br.acc = uint64(c)
	br.nb = 8
	br.crc8 = crc8tab[c]
	br.crc16 = crc16tab[c]
	return false
}
