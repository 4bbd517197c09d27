// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flate

import (
	"math/bits"
	"sync"
)

// A huffmanDecoder is a two-level lookup table, as in zlib.
// The first level is indexed by the next huffmanChunkBits input bits (LSB first).
// Codes longer than that point to an overflow table indexed by the following bits.
//
// Each entry holds the code length in the low 4 bits and the symbol (or link
// index) above them. Looking up with missing trailing bits is safe: shorter codes
// sort before longer ones, so the length found is a lower bound.
//
//	https://github.com/madler/zlib/raw/master/doc/algorithm.txt
const (
	huffmanChunkBits  = 9
	huffmanNumChunks  = 1 << huffmanChunkBits
	huffmanCountMask  = 15
	huffmanValueShift = 4
)

type huffmanDecoder struct {
	min      int
	chunks   [huffmanNumChunks]uint32
	links    [][]uint32
	linkMask uint32
}

// init builds the table from per-symbol code lengths, zero meaning unused.
// It reports false for an over- or under-subscribed code, except that a lone
// code of length 1 is accepted as zlib does. An empty code is accepted and
// fails on first use.
func (h *huffmanDecoder) init(lengths []int) bool {
	*h = huffmanDecoder{}

	var count [maxCodeLen]int
	var lo, hi int
	for _, n := range lengths {
		if n == 0 {
			continue
		}
		if lo == 0 || n < lo {
			lo = n
		}
		hi = max(hi, n)
		count[n]++
	}
	if hi == 0 {
		return true
	}

	code := 0
	var nextcode [maxCodeLen]int
	for i := lo; i <= hi; i++ {
		code <<= 1
		nextcode[i] = code
		code += count[i]
	}
	if code != 1<<uint(hi) && !(code == 1 && hi == 1) {
		return false
	}

	h.min = lo
	if hi > huffmanChunkBits {
		numLinks := 1 << (uint(hi) - huffmanChunkBits)
		h.linkMask = uint32(numLinks - 1)

		link := nextcode[huffmanChunkBits+1] >> 1
		h.links = make([][]uint32, huffmanNumChunks-link)
		for j := uint(link); j < huffmanNumChunks; j++ {
			reverse := int(bits.Reverse16(uint16(j))) >> (16 - huffmanChunkBits)
			off := j - uint(link)
			h.chunks[reverse] = uint32(off<<huffmanValueShift | (huffmanChunkBits + 1))
			h.links[off] = make([]uint32, numLinks)
		}
	}

	for sym, n := range lengths {
		if n == 0 {
			continue
		}
		code := nextcode[n]
		nextcode[n]++
		entry := uint32(sym<<huffmanValueShift | n)
		reverse := int(bits.Reverse16(uint16(code))) >> uint(16-n)
		if n <= huffmanChunkBits {
			for off := reverse; off < len(h.chunks); off += 1 << uint(n) {
				h.chunks[off] = entry
			}
			continue
		}
		linktab := h.links[h.chunks[reverse&(huffmanNumChunks-1)]>>huffmanValueShift]
		reverse >>= huffmanChunkBits
		for off := reverse; off < len(linktab); off += 1 << uint(n-huffmanChunkBits) {
			linktab[off] = entry
		}
	}
	return true
}

var (
	fixedOnce           sync.Once
	fixedHuffmanDecoder huffmanDecoder
)

// fixedHuffmanDecoderInit builds the literal/length code of RFC 1951 section 3.2.6.
func fixedHuffmanDecoderInit() {
	fixedOnce.Do(func() {
		var lengths [288]int
		for i := range lengths {
			switch {
			case i < 144:
				lengths[i] = 8
			case i < 256:
				lengths[i] = 9
			case i < 280:
				lengths[i] = 7
			default:
				lengths[i] = 8
			}
		}
		fixedHuffmanDecoder.init(lengths[:])
	})
}
