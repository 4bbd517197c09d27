// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package crc32 computes the reflected CRC-32 of gzip, zip and PNG
// (polynomial 0xedb88320, preset and final complement).
package crc32

import (
	"errors"
	"hash"
	"io"
)

const Size = 4

var crctab [256]uint32

func init() {
	for i := range uint32(256) {
		k := i
		for range 8 {
			if k&1 != 0 {
				k = k>>1 ^ 0xedb88320
			} else {
				k >>= 1
			}
		}
		crctab[i] = k
	}
}

// Update returns the CRC of the data that produced crc followed by p.
func Update(crc uint32, p []byte) uint32 {
	crc = ^crc
	for _, ch := range p {
		crc = crctab[byte(crc)^ch] ^ crc>>8
	}
	return ^crc
}

func Checksum(p []byte) uint32 { return Update(0, p) }

type digest uint32

// New returns a hash.Hash32 whose Sum appends the CRC big-endian.
func New() hash.Hash32 {
	d := digest(0)
	return &d
}

func (d *digest) Size() int      { return Size }
func (d *digest) BlockSize() int { return 1 }
func (d *digest) Reset()         { *d = 0 }
func (d *digest) Sum32() uint32  { return uint32(*d) }

func (d *digest) Write(p []byte) (int, error) {
	*d = digest(Update(uint32(*d), p))
	return len(p), nil
}

func (d *digest) Sum(in []byte) []byte {
	s := uint32(*d)
	return append(in, byte(s>>24), byte(s>>16), byte(s>>8), byte(s))
}

var ErrChecksum = errors.New("crc32: checksum error")

type checkReader struct {
	r         io.Reader
	len       int64
	want, got uint32
}

// NewReader passes r through, and returns ErrChecksum in place of io.EOF
// if the size bytes read from r do not have the CRC want.
func NewReader(r io.Reader, want uint32, size int64) io.Reader {
	return &checkReader{r: r, len: size, want: want}
}

func (r *checkReader) Read(p []byte) (n int, err error) {
	n, err = r.r.Read(p)
	r.got = Update(r.got, p[:n])
	r.len -= int64(n)

	if r.len == 0 && r.got != r.want {
		err = ErrChecksum
	} else if err == io.EOF && r.len > 0 {
		err = io.ErrUnexpectedEOF
	}
	return
}
