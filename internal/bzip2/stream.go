// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package bzip2 decodes bzip2 streams.
//
// The pipeline is split into the pieces of the format: a BitCursor feeds
// HuffmanTable, BlockDecoder undoes one block's Huffman, MTF, RLE2, BWT and
// RLE4 stages, and StreamDecoder walks the blocks and checks the combined CRC.
// Reader wraps all of it as an io.Reader.
package bzip2

import (
	"io"
)

const (
	fileMagic  = 0x425a68 // "BZh"
	blockMagic = 0x314159265359
	endMagic   = 0x177245385090
)

type streamState int

const (
	streamStart streamState = iota
	streamAwaitingBlock
	streamInBlock
	streamEnd
)

// BlockInfo describes a block whose CRC has been verified.
type BlockInfo struct {
	Index      int
	BitOffset  int64 // position of the block-header marker
	CRC        uint32
	Size       int64 // decoded bytes
	Randomized bool
}

// StreamDecoder iterates the blocks of one stream.
type StreamDecoder struct {
	c          *BitCursor
	state      streamState
	multiplier int
	crc        uint32
	block      *BlockDecoder
	index      int
	offset     int64 // bit offset of the current block's marker
	err        error
	onBlock    func(BlockInfo)
}

func NewStreamDecoder(c *BitCursor) *StreamDecoder {
	return &StreamDecoder{c: c}
}

// Multiplier is the block size digit from the stream header, or 0 before it has been read.
func (s *StreamDecoder) Multiplier() int { return s.multiplier }

// NextBlock verifies the block in progress, if any, and returns a decoder for
// the next one. At the end of the stream it checks the stream CRC and returns
// io.EOF. The first error is returned again from every later call.
func (s *StreamDecoder) NextBlock() (*BlockDecoder, error) {
	if s.err != nil {
		return nil, s.err
	}
	b, err := s.nextBlock()
	if err != nil {
		s.err = err
		s.block = nil
		s.state = streamEnd
	}
	return b, err
}

func (s *StreamDecoder) nextBlock() (*BlockDecoder, error) {
	switch s.state {
	case streamStart:
		if err := s.readHeader(); err != nil {
			return nil, err
		}
		s.state = streamAwaitingBlock
	case streamInBlock:
		if err := s.finishBlock(); err != nil {
			return nil, err
		}
	}

	s.offset = s.c.BitOffset()
	marker, err := readMarker(s.c)
	if err != nil {
		return nil, err
	}
	switch marker {
	case blockMagic:
		b, err := NewBlockDecoder(s.c, s.multiplier*100000)
		if err != nil {
			return nil, inBlock(err, s.index)
		}
		s.block = b
		s.state = streamInBlock
		return b, nil
	case endMagic:
		want, err := s.c.ReadInt32()
		if err != nil {
			return nil, err
		}
		if want != s.crc {
			return nil, errorf(StreamCRCMismatch, "stored %08x, computed %08x", want, s.crc)
		}
		s.state = streamEnd
		return nil, io.EOF
	default:
		return nil, errorf(StreamFormatError, "marker %012x at bit %d", marker, s.offset)
	}
}

func (s *StreamDecoder) readHeader() error {
	magic, err := s.c.ReadBits(24)
	if err != nil {
		return err
	}
	if magic != fileMagic {
		return errorf(InvalidHeader, "magic %06x", magic)
	}
	digit, err := s.c.ReadBits(8)
	if err != nil {
		return err
	}
	if digit < '1' || digit > '9' {
		return errorf(InvalidHeader, "block size %q", rune(digit))
	}
	s.multiplier = int(digit - '0')
	return nil
}

// finishBlock drains the current block, checks its CRC and folds it in.
func (s *StreamDecoder) finishBlock() error {
	b := s.block
	if !b.exhausted() {
		if _, err := io.Copy(io.Discard, b); err != nil {
			return inBlock(err, s.index)
		}
	}
	crc, err := b.CheckCRC()
	if err != nil {
		return inBlock(err, s.index)
	}
	s.crc = combineCRC(s.crc, crc)
	if s.onBlock != nil {
		s.onBlock(BlockInfo{
			Index:      s.index,
			BitOffset:  s.offset,
			CRC:        crc,
			Size:       b.Size(),
			Randomized: b.Randomized(),
		})
	}
	s.index++
	s.block = nil
	s.state = streamAwaitingBlock
	return nil
}

func readMarker(c *BitCursor) (uint64, error) {
	hi, err := c.ReadBits(24)
	if err != nil {
		return 0, err
	}
	lo, err := c.ReadBits(24)
	if err != nil {
		return 0, err
	}
	return uint64(hi)<<24 | uint64(lo), nil
}

// Options adjust a Reader.
type Options struct {
	// OnBlock is called once per block, in order, after its CRC has been verified.
	OnBlock func(BlockInfo)
}

// Reader decompresses a bzip2 stream.
type Reader struct {
	sd    *StreamDecoder
	block *BlockDecoder
	err   error
}

func NewReader(r io.Reader) *Reader {
	return NewReaderOptions(r, Options{})
}

func NewReaderOptions(r io.Reader, opts Options) *Reader {
	sd := NewStreamDecoder(NewBitCursor(r))
	sd.onBlock = opts.OnBlock
	return &Reader{sd: sd}
}

// Multiplier is the stream's block size digit, known after the first Read.
func (r *Reader) Multiplier() int { return r.sd.Multiplier() }

// Read returns io.EOF only once the stream CRC has been verified.
func (r *Reader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if r.block == nil {
			b, err := r.sd.NextBlock()
			if err != nil {
				r.err = err
				return 0, err
			}
			r.block = b
		}
		n, err := r.block.Read(p)
		if n > 0 {
			return n, nil
		}
		if err != io.EOF {
			r.err = err
			return 0, err
		}
		r.block = nil
	}
}

// DecodeBlockAt decodes the single block whose header marker begins at
// bitOffset in r, checks its CRC and returns the decoded bytes.
// multiplier is the block size digit of the stream the block came from.
func DecodeBlockAt(r io.ReaderAt, bitOffset int64, multiplier int) ([]byte, uint32, error) {
	if multiplier < 1 || multiplier > 9 {
		return nil, 0, errorf(InvalidHeader, "block size multiplier %d", multiplier)
	}
	c, err := NewBitCursorAt(r, bitOffset)
	if err != nil {
		return nil, 0, err
	}
	marker, err := readMarker(c)
	if err != nil {
		return nil, 0, err
	}
	if marker != blockMagic {
		return nil, 0, errorf(StreamFormatError, "marker %012x at bit %d", marker, bitOffset)
	}
	b, err := NewBlockDecoder(c, multiplier*100000)
	if err != nil {
		return nil, 0, err
	}
	data, err := io.ReadAll(b)
	if err != nil {
		return nil, 0, err
	}
	crc, err := b.CheckCRC()
	if err != nil {
		return nil, 0, err
	}
	return data, crc, nil
}
