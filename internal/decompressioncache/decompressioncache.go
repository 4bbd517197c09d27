// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package decompressioncache gives random access to a stream that can only be
// decoded from one block boundary to the next.
//
// Each decoded block is kept in a process-wide cache. The position of every
// block boundary that has been reached is remembered, so a read only has to
// decode the blocks it overlaps.
package decompressioncache

import (
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-tinylfu"
)

// A Stepper decodes one block, returning it along with the Stepper for the next.
// The error is io.EOF with the last block.
type Stepper func() (Stepper, []byte, error)

const defaultBlocks = 1024

var (
	cacheMu sync.Mutex
	cache   = newCache(defaultBlocks)
)

func newCache(blocks int) *tinylfu.T[uint64, []byte] {
	return tinylfu.New[uint64, []byte](blocks, blocks*10, func(k uint64) uint64 { return k })
}

// SetCapacity replaces the block cache with an empty one holding up to n blocks.
func SetCapacity(n int) {
	n = max(n, 1)
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cache = newCache(n)
	slog.Debug("decompressionCacheResize", "blocks", n)
}

func cacheGet(k uint64) ([]byte, bool) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	return cache.Get(k)
}

func cacheAdd(k uint64, blob []byte) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cache.Add(k, blob)
}

// New returns a ReaderAt over the concatenated output of the Stepper chain.
// The name must identify the stream uniquely because it keys the shared cache.
func New(stepper Stepper, size int64, name string) *ReaderAt {
	return &ReaderAt{
		name:        name,
		seed:        xxhash.Sum64String(name),
		checkpoints: []checkpoint{{stepper: stepper, offset: 0}},
		size:        size,
	}
}

// A ReaderAt is safe for concurrent use by multiple goroutines.
type ReaderAt struct {
	mu          sync.Mutex
	name        string
	seed        uint64
	checkpoints []checkpoint // the last one has a nil stepper once the stream is done
	size        int64
}

type checkpoint struct {
	stepper Stepper
	offset  int64
	err     error // from the step that starts here
	done    bool  // the step has been taken and the next checkpoint is known
}

func (r *ReaderAt) Size() int64 {
	return r.size
}

func (r *ReaderAt) key(offset int64) uint64 {
	var b [16]byte
	binary.BigEndian.PutUint64(b[:], r.seed)
	binary.BigEndian.PutUint64(b[8:], uint64(offset))
	return xxhash.Sum64(b[:])
}

var errOffset = errors.New("decompressioncache: negative offset")

// ReadAt has the semantics of [io.ReaderAt].
func (r *ReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errOffset
	}
	if off >= r.size {
		return 0, io.EOF
	}
	var short bool
	if off+int64(len(p)) > r.size {
		p = p[:r.size-off]
		short = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// start with the highest checkpoint that starts <= the request
	i := sort.Search(len(r.checkpoints), func(i int) bool {
		return r.checkpoints[i].offset > off
	}) - 1

	n := 0
	for {
		cp := &r.checkpoints[i]
		blob, err := r.block(i)
		if err != nil && err != io.EOF {
			return n, err
		}

		destcut, srccut, ok := overlap(off, len(p), cp.offset, len(blob))
		if ok {
			n = destcut + copy(p[destcut:], blob[srccut:])
		}
		if n == len(p) {
			if short {
				return n, io.EOF
			}
			return n, nil
		}
		if err == io.EOF {
			slog.Warn("decompressionCacheShortStream", "name", r.name, "size", r.size, "end", cp.offset+int64(len(blob)))
			return n, io.ErrUnexpectedEOF
		}
		i++
	}
}

// block returns the decoded block at checkpoint i, stepping to produce it
// if it is not in the cache. Called with r.mu held.
func (r *ReaderAt) block(i int) ([]byte, error) {
	cp := &r.checkpoints[i]
	key := r.key(cp.offset)
	if cp.done {
		if blob, ok := cacheGet(key); ok {
			return blob, cp.err
		}
	}
	if cp.done && cp.err != nil && cp.err != io.EOF {
		return nil, cp.err
	}

	next, blob, err := cp.stepper()
	if err != nil && err != io.EOF {
		cp.done, cp.err = true, err
		slog.Warn("decompressionCacheStepError", "name", r.name, "offset", cp.offset, "err", err)
		return nil, err
	}
	cacheAdd(key, blob)
	if !cp.done {
		cp.done, cp.err = true, err
		if err == nil {
			r.checkpoints = append(r.checkpoints, checkpoint{
				stepper: next,
				offset:  cp.offset + int64(len(blob)),
			})
		}
	}
	return blob, err
}

func overlap(aoffset int64, alen int, boffset int64, blen int) (ainner, binner int, ok bool) {
	if aoffset >= boffset+int64(blen) || boffset >= aoffset+int64(alen) {
		return 0, 0, false
	}

	if aoffset > boffset {
		binner = int(aoffset - boffset)
	} else {
		ainner = int(boffset - aoffset)
	}
	return ainner, binner, true
}
