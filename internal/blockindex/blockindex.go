// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package blockindex records where each block of a bzip2 stream starts,
// so that any byte of the decompressed output can be reached by decoding a
// single block.
package blockindex

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/elliotnunn/streamcat/internal/bzip2"
	"github.com/elliotnunn/streamcat/internal/decompressioncache"
)

// ErrStale means the compressed file no longer matches its index.
var ErrStale = errors.New("block index does not match the file")

type Block struct {
	BitOffset  int64 // of the block-header marker
	CRC        uint32
	Size       int64 // decoded bytes
	Randomized bool
}

type Index struct {
	Multiplier int
	Blocks     []Block
}

// Size is the decoded size of the whole stream.
func (ix Index) Size() int64 {
	var n int64
	for _, b := range ix.Blocks {
		n += b.Size
	}
	return n
}

// Find returns the index of the block holding decoded byte off, and that block's first byte.
func (ix Index) Find(off int64) (int, int64) {
	var start int64
	for i, b := range ix.Blocks {
		if off < start+b.Size {
			return i, start
		}
		start += b.Size
	}
	return len(ix.Blocks), start
}

// Build decodes the whole stream, checking every CRC, and records each block.
func Build(r io.Reader) (Index, error) {
	var ix Index
	br := bzip2.NewReaderOptions(r, bzip2.Options{
		OnBlock: func(b bzip2.BlockInfo) {
			ix.Blocks = append(ix.Blocks, Block{
				BitOffset:  b.BitOffset,
				CRC:        b.CRC,
				Size:       b.Size,
				Randomized: b.Randomized,
			})
		},
	})
	if _, err := io.Copy(io.Discard, br); err != nil {
		return Index{}, err
	}
	ix.Multiplier = br.Multiplier()
	return ix, nil
}

// Stepper decodes the indexed blocks of r in order, one per step.
func (ix Index) Stepper(r io.ReaderAt) decompressioncache.Stepper {
	return ix.stepper(r, 0)
}

func (ix Index) stepper(r io.ReaderAt, i int) decompressioncache.Stepper {
	return func() (decompressioncache.Stepper, []byte, error) {
		if i >= len(ix.Blocks) {
			return nil, nil, io.EOF
		}
		b := ix.Blocks[i]
		data, crc, err := bzip2.DecodeBlockAt(r, b.BitOffset, ix.Multiplier)
		if err != nil {
			return nil, nil, fmt.Errorf("indexed block %d: %w", i, err)
		}
		if crc != b.CRC || int64(len(data)) != b.Size {
			return nil, nil, fmt.Errorf("%w: block %d has CRC %08x and %d bytes, index says %08x and %d",
				ErrStale, i, crc, len(data), b.CRC, b.Size)
		}
		if i+1 == len(ix.Blocks) {
			return nil, data, io.EOF
		}
		return ix.stepper(r, i+1), data, nil
	}
}

// ReaderAt gives random access to the decoded stream. The name keys the shared block cache.
func (ix Index) ReaderAt(r io.ReaderAt, name string) *decompressioncache.ReaderAt {
	return decompressioncache.New(ix.Stepper(r), ix.Size(), name)
}

// Equal reports whether two indexes describe the same blocks.
func (ix Index) Equal(other Index) bool {
	return ix.Multiplier == other.Multiplier && slices.Equal(ix.Blocks, other.Blocks)
}
