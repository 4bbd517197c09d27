// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package gzip reads the gzip container of RFC 1952.
package gzip

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/elliotnunn/streamcat/internal/crc32"
	"github.com/elliotnunn/streamcat/internal/flate"
)

const (
	gzipID1     = 0x1f
	gzipID2     = 0x8b
	gzipDeflate = 8

	flagText     = 1 << 0
	flagHdrCrc   = 1 << 1
	flagExtra    = 1 << 2
	flagName     = 1 << 3
	flagComment  = 1 << 4
	flagReserved = 0xe0
)

var (
	ErrHeader   = errors.New("gzip: invalid header")
	ErrChecksum = errors.New("gzip: invalid checksum")
	ErrSize     = errors.New("gzip: size mismatch")
)

// Header is the metadata of one gzip member.
type Header struct {
	Name    string
	Comment string
	Extra   []byte
	ModTime time.Time // zero if not recorded
	OS      byte
}

type byteSource interface {
	io.Reader
	io.ByteReader
}

// Reader decompresses concatenated gzip members as one stream.
// Header describes the member currently being read.
type Reader struct {
	Header
	r           byteSource
	z           *flate.Reader
	crc         uint32
	size        uint32
	members     int
	multistream bool
	err         error
}

// NewReader reads the first member header. Empty input gives io.EOF.
func NewReader(r io.Reader) (*Reader, error) {
	src, ok := r.(byteSource)
	if !ok {
		src = bufio.NewReader(r)
	}
	z := &Reader{r: src, multistream: true}
	if err := z.nextMember(); err != nil {
		return nil, err
	}
	return z, nil
}

// Multistream(false) stops at the end of the first member,
// leaving the underlying reader just past its trailer.
func (z *Reader) Multistream(ok bool) { z.multistream = ok }

// Members is the number of members started so far.
func (z *Reader) Members() int { return z.members }

func (z *Reader) nextMember() error {
	hdr, _, err := readHeader(z.r)
	if err != nil {
		return err
	}
	z.Header = hdr
	z.z = flate.NewReader(z.r)
	z.crc, z.size = 0, 0
	z.members++
	return nil
}

func (z *Reader) Read(p []byte) (int, error) {
	for {
		if z.err != nil {
			return 0, z.err
		}
		n, err := z.z.Read(p)
		z.crc = crc32.Update(z.crc, p[:n])
		z.size += uint32(n)
		if err == nil {
			return n, nil
		} else if err != io.EOF {
			z.err = fmt.Errorf("gzip: member %d: %w", z.members, err)
			return n, z.err
		}

		z.err = z.readTrailer()
		if z.err == nil {
			if !z.multistream {
				z.err = io.EOF
			} else if err := z.nextMember(); err != nil {
				z.err = err // io.EOF when no further member follows
			}
		}
		if n > 0 {
			return n, nil
		}
	}
}

func (z *Reader) readTrailer() error {
	var buf [8]byte
	if _, err := io.ReadFull(z.r, buf[:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	if crc := binary.LittleEndian.Uint32(buf[0:]); crc != z.crc {
		return fmt.Errorf("%w: stored %08x, computed %08x", ErrChecksum, crc, z.crc)
	}
	if size := binary.LittleEndian.Uint32(buf[4:]); size != z.size {
		return fmt.Errorf("%w: stored %d, decoded %d", ErrSize, size, z.size)
	}
	return nil
}

// headerReader tallies the bytes and CRC of a member header as it is read.
type headerReader struct {
	r   byteSource
	n   int64
	crc uint32
	buf [10]byte
}

func (h *headerReader) read(p []byte) error {
	n, err := io.ReadFull(h.r, p)
	h.n += int64(n)
	h.crc = crc32.Update(h.crc, p[:n])
	if err == io.EOF && h.n > 0 {
		err = io.ErrUnexpectedEOF
	}
	return err
}

// zeroTerminated reads a latin-1 string and converts it to UTF-8.
func (h *headerReader) zeroTerminated() (string, error) {
	var rs []rune
	for {
		if err := h.read(h.buf[:1]); err != nil {
			return "", err
		}
		if h.buf[0] == 0 {
			return string(rs), nil
		}
		rs = append(rs, rune(h.buf[0]))
	}
}

// readHeader returns io.EOF only if r is exhausted before the first byte.
func readHeader(r byteSource) (Header, int64, error) {
	var hdr Header
	h := &headerReader{r: r}
	buf := h.buf[:]
	if err := h.read(buf[:10]); err != nil {
		return hdr, h.n, err
	}
	if buf[0] != gzipID1 || buf[1] != gzipID2 || buf[2] != gzipDeflate {
		return hdr, h.n, fmt.Errorf("%w: magic % x", ErrHeader, buf[:3])
	}
	flags := buf[3]
	if flags&flagReserved != 0 {
		return hdr, h.n, fmt.Errorf("%w: reserved flags %#02x", ErrHeader, flags)
	}
	if t := int64(binary.LittleEndian.Uint32(buf[4:8])); t > 0 {
		hdr.ModTime = time.Unix(t, 0)
	}
	hdr.OS = buf[9]

	if flags&flagExtra != 0 {
		if err := h.read(buf[:2]); err != nil {
			return hdr, h.n, err
		}
		hdr.Extra = make([]byte, binary.LittleEndian.Uint16(buf[:2]))
		if err := h.read(hdr.Extra); err != nil {
			return hdr, h.n, err
		}
	}

	var err error
	if flags&flagName != 0 {
		if hdr.Name, err = h.zeroTerminated(); err != nil {
			return hdr, h.n, err
		}
	}
	if flags&flagComment != 0 {
		if hdr.Comment, err = h.zeroTerminated(); err != nil {
			return hdr, h.n, err
		}
	}

	if flags&flagHdrCrc != 0 {
		want := uint16(h.crc)
		if err := h.read(buf[:2]); err != nil {
			return hdr, h.n, err
		}
		if got := binary.LittleEndian.Uint16(buf[:2]); got != want {
			return hdr, h.n, fmt.Errorf("%w: header CRC %04x, computed %04x", ErrHeader, got, want)
		}
	}
	return hdr, h.n, nil
}

// NewReaderAt gives random access to the contents of a single-member gzip
// file of the given size. The decompressed size comes from the trailer,
// so members of 4 GiB or more are not supported.
func NewReaderAt(r io.ReaderAt, size int64) (*flate.ReaderAt, Header, error) {
	hdr, n, err := readHeader(bufio.NewReader(io.NewSectionReader(r, 0, size)))
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, hdr, err
	}
	if size-n < 8 {
		return nil, hdr, io.ErrUnexpectedEOF
	}
	var trailer [4]byte
	if _, err := r.ReadAt(trailer[:], size-4); err != nil {
		return nil, hdr, err
	}
	isize := int64(binary.LittleEndian.Uint32(trailer[:]))
	payload := size - n - 8
	return flate.NewReaderAt(io.NewSectionReader(r, n, payload), payload, isize), hdr, nil
}
