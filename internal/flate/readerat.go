// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package flate

import (
	"bufio"
	"errors"
	"io"
	"sort"
	"sync"
)

// ReaderAt gives random access to a DEFLATE stream of known decompressed size.
//
// Decoding is replayed from the nearest checkpoint at or before the requested
// offset. A checkpoint is recorded every chunk bytes of output, so the cost of a
// read is bounded by the chunk size rather than the offset. The most recently
// decoded chunk is kept.
type ReaderAt struct {
	mu          sync.Mutex
	r           io.ReaderAt
	csize, size int64
	chunk       int
	checkpoints []resumePoint // ordered by woffset; big holds only the window
	ended       bool          // the final block lies within the last checkpoint's chunk
	cached      int           // checkpoint whose chunk is in cache, or -1
	cache       []byte
}

func NewReaderAt(r io.ReaderAt, compressedSize, size int64) *ReaderAt {
	return &ReaderAt{
		r:           r,
		csize:       compressedSize,
		size:        size,
		chunk:       max(int(size/5000), 500000),
		checkpoints: []resumePoint{{big: make([]byte, maxMatchOffset)}},
		cached:      -1,
	}
}

func (r *ReaderAt) Size() int64 {
	return r.size
}

var errOffset = errors.New("flate: negative offset")

func (r *ReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errOffset
	}
	if off >= r.size {
		return 0, io.EOF
	}
	end := min(r.size, off+int64(len(p)))

	r.mu.Lock()
	defer r.mu.Unlock()

	// last checkpoint at or before off
	i := sort.Search(len(r.checkpoints), func(i int) bool {
		return r.checkpoints[i].woffset > off
	}) - 1

	n := 0
	for off+int64(n) < end {
		if i == len(r.checkpoints) {
			return n, io.ErrUnexpectedEOF // the stream is shorter than its stated size
		}
		if i != r.cached {
			if err := r.decodeChunk(i); err != nil {
				return n, err
			}
		}
		pos := off + int64(n) - r.checkpoints[i].woffset
		if pos < int64(len(r.cache)) {
			n += copy(p[n:end-off], r.cache[pos:])
		}
		i++
	}
	if end < off+int64(len(p)) {
		return n, io.EOF
	}
	return n, nil
}

// decodeChunk decodes from checkpoint i into the cache,
// recording the following checkpoint if it is new.
func (r *ReaderAt) decodeChunk(i int) error {
	rp := r.checkpoints[i]
	f := decompressor{
		r:  bufio.NewReader(io.NewSectionReader(r.r, rp.roffset, r.csize-rp.roffset)),
		rp: rp,
	}
	fixedHuffmanDecoderInit()
	f.rp.big = make([]byte, maxMatchOffset, maxMatchOffset+r.chunk+258)
	copy(f.rp.big, rp.big)

	var err error
	for err == nil && len(f.rp.big) < maxMatchOffset+r.chunk {
		err = f.nextBlock()
	}
	if err != nil && err != io.EOF {
		r.cached = -1
		return err
	}

	r.cached = i
	r.cache = f.rp.big[maxMatchOffset:]
	if i+1 == len(r.checkpoints) && !r.ended {
		if err == io.EOF {
			r.ended = true
		} else {
			next := f.rp
			next.big = append([]byte(nil), f.rp.big[len(f.rp.big)-maxMatchOffset:]...)
			next.woffset += int64(len(r.cache))
			r.checkpoints = append(r.checkpoints, next)
		}
	}
	return nil
}
