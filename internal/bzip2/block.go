// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package bzip2

import (
	"io"
)

const (
	runA = 0
	runB = 1
)

type blockState int

const (
	blockHeader blockState = iota
	blockHuffmanTables
	blockSymbolDecode
	blockBWTInvert
	blockStreaming
	blockExhausted
)

// BlockDecoder decodes a single compressed block.
// NewBlockDecoder consumes all of the block's bits up front,
// after which the decoded bytes are pulled out with Read or ReadByte.
type BlockDecoder struct {
	state      blockState
	capacity   int
	storedCRC  uint32
	randomized bool
	origPtr    int

	// filled by the symbol decoder, released after inversion
	raw    []byte
	counts [256]int

	tt       []uint32 // merged pointers: original index << 8 | byte value
	cursor   uint32
	consumed int // entries of tt visited
	rand     randomizer

	last    int // previous output byte, or -1
	acc     int // equal bytes seen in a row, 0-3
	pending int // copies of last still to emit

	crc  CRC
	size int64
}

// NewBlockDecoder reads one block from c, which must be positioned just after
// the block-header marker. blockSize is the stream's multiplier times 100000.
func NewBlockDecoder(c *BitCursor, blockSize int) (*BlockDecoder, error) {
	b := &BlockDecoder{
		capacity: blockSize,
		last:     -1,
		crc:      NewCRC(),
	}

	var err error
	if b.storedCRC, err = c.ReadInt32(); err != nil {
		return nil, err
	}
	if b.randomized, err = c.ReadBit(); err != nil {
		return nil, err
	}
	ptr, err := c.ReadBits(24)
	if err != nil {
		return nil, err
	}
	b.origPtr = int(ptr)

	b.state = blockHuffmanTables
	stage, symMap, err := b.readTables(c)
	if err != nil {
		return nil, err
	}

	b.state = blockSymbolDecode
	if err := b.decodeSymbols(c, stage, symMap); err != nil {
		return nil, err
	}

	b.state = blockBWTInvert
	if err := b.invertBWT(); err != nil {
		return nil, err
	}
	b.state = blockStreaming
	return b, nil
}

// readTables reads the symbol map, the selectors and the code length tables.
// It returns the used byte values in ascending order.
func (b *BlockDecoder) readTables(c *BitCursor) (*huffmanStage, []byte, error) {
	ranges, err := c.ReadBits(16)
	if err != nil {
		return nil, nil, err
	}
	symMap := make([]byte, 0, 256)
	for i := range 16 {
		if ranges&(0x8000>>i) == 0 {
			continue
		}
		present, err := c.ReadBits(16)
		if err != nil {
			return nil, nil, err
		}
		for j := range 16 {
			if present&(0x8000>>j) != 0 {
				symMap = append(symMap, byte(i<<4|j))
			}
		}
	}
	if len(symMap) == 0 {
		return nil, nil, errorf(CorruptBlock, "no byte values in use")
	}
	alphabet := len(symMap) + 2 // RUNA and RUNB replace rank 0; EOB is last

	nTables, err := c.ReadBits(3)
	if err != nil {
		return nil, nil, err
	}
	nSelectors, err := c.ReadBits(15)
	if err != nil {
		return nil, nil, err
	}
	if nTables < minTables || nTables > maxTables {
		return nil, nil, errorf(CorruptBlock, "%d Huffman tables", nTables)
	}
	if nSelectors < 1 || nSelectors > maxSelectors {
		return nil, nil, errorf(CorruptBlock, "%d selectors", nSelectors)
	}

	selectors := make([]uint8, nSelectors)
	tableMTF := NewFrontList()
	for i := range selectors {
		idx, err := c.ReadUnary()
		if err != nil {
			return nil, nil, err
		}
		if idx >= uint(nTables) {
			return nil, nil, errorf(CorruptBlock, "selector %d refers to table %d of %d", i, idx, nTables)
		}
		selectors[i] = tableMTF.PromoteIndex(int(idx))
	}

	tables := make([]HuffmanTable, nTables)
	lengths := make([]uint8, alphabet)
	for t := range tables {
		l, err := c.ReadBits(5)
		if err != nil {
			return nil, nil, err
		}
		cur := int(l)
		for s := range lengths {
			for {
				if cur < 1 || cur > maxCodeLenEnc {
					return nil, nil, errorf(CorruptBlock, "table %d symbol %d: code length %d", t, s, cur)
				}
				more, err := c.ReadBit()
				if err != nil {
					return nil, nil, err
				}
				if !more {
					break
				}
				down, err := c.ReadBit()
				if err != nil {
					return nil, nil, err
				}
				if down {
					cur--
				} else {
					cur++
				}
			}
			lengths[s] = uint8(cur)
		}
		if err := tables[t].init(lengths); err != nil {
			return nil, nil, err
		}
	}

	return newHuffmanStage(tables, selectors), symMap, nil
}

// decodeSymbols undoes the Huffman, RLE2 and MTF stages into b.raw.
func (b *BlockDecoder) decodeSymbols(c *BitCursor, stage *huffmanStage, symMap []byte) error {
	eob := len(symMap) + 1
	mtf := NewFrontList()
	b.raw = make([]byte, 0, min(b.capacity, 64<<10))

	run, inc := 0, 1
	var rank byte // most recent MTF output; a leading run repeats rank 0
	for {
		sym, err := stage.next(c)
		if err != nil {
			return err
		}

		if sym == runA || sym == runB {
			if inc > b.capacity {
				return errorf(CorruptBlock, "run exceeds block size %d", b.capacity)
			}
			if sym == runA {
				run += inc
			} else {
				run += 2 * inc
			}
			inc <<= 1
			continue
		}

		if run > 0 {
			if len(b.raw)+run > b.capacity {
				return errorf(CorruptBlock, "run of %d exceeds block size %d", run, b.capacity)
			}
			v := symMap[rank]
			b.counts[v] += run
			for range run {
				b.raw = append(b.raw, v)
			}
			run, inc = 0, 1
		}

		if sym == eob {
			return nil
		}

		if len(b.raw) >= b.capacity {
			return errorf(CorruptBlock, "block exceeds declared size %d", b.capacity)
		}
		rank = mtf.PromoteIndex(sym - 1)
		if int(rank) >= len(symMap) {
			return errorf(CorruptBlock, "MTF rank %d with %d values in use", rank, len(symMap))
		}
		v := symMap[rank]
		b.counts[v]++
		b.raw = append(b.raw, v)
	}
}

// invertBWT replaces b.raw with the merged pointer array.
func (b *BlockDecoder) invertBWT() error {
	if b.origPtr >= len(b.raw) {
		return errorf(CorruptBlock, "start pointer %d outside block of %d bytes", b.origPtr, len(b.raw))
	}

	var bucket [256]int
	sum := 0
	for v, n := range b.counts {
		bucket[v] = sum
		sum += n
	}

	tt := make([]uint32, len(b.raw))
	for i, v := range b.raw {
		tt[bucket[v]] = uint32(i)<<8 | uint32(v)
		bucket[v]++
	}
	b.raw = nil
	b.tt = tt
	b.cursor = tt[b.origPtr]
	b.consumed = 0
	return nil
}

// nextBWT steps the inverse transform by one byte and undoes randomization.
func (b *BlockDecoder) nextBWT() byte {
	p := b.cursor
	b.cursor = b.tt[p>>8]
	b.consumed++
	v := byte(p)
	if b.randomized {
		v ^= b.rand.next()
	}
	return v
}

// ReadByte returns the next decoded byte, or io.EOF at the end of the block.
func (b *BlockDecoder) ReadByte() (byte, error) {
	for b.pending == 0 {
		if b.consumed == len(b.tt) {
			b.state = blockExhausted
			return 0, io.EOF
		}
		v := b.nextBWT()
		b.pending = 1
		if int(v) != b.last {
			b.last = int(v)
			b.acc = 1
		} else if b.acc++; b.acc == 4 {
			b.acc = 0
			// A block cut short of its count byte just ends the run
			if b.consumed < len(b.tt) {
				b.pending += int(b.nextBWT())
			}
		}
		b.crc.UpdateRepeat(v, b.pending)
	}
	b.pending--
	b.size++
	return byte(b.last), nil
}

func (b *BlockDecoder) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if b.pending > 0 {
			k := min(b.pending, len(p)-n)
			v := byte(b.last)
			for i := range k {
				p[n+i] = v
			}
			n += k
			b.pending -= k
			b.size += int64(k)
			continue
		}
		c, err := b.ReadByte()
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}
		p[n] = c
		n++
	}
	return n, nil
}

// CheckCRC compares the checksum of the bytes read so far with the one stored
// in the block header, and returns it for folding into the stream checksum.
func (b *BlockDecoder) CheckCRC() (uint32, error) {
	got := b.crc.Sum32()
	if got != b.storedCRC {
		return 0, errorf(BlockCRCMismatch, "stored %08x, computed %08x", b.storedCRC, got)
	}
	return got, nil
}

// Randomized reports whether the block was written with the obsolete randomization step.
func (b *BlockDecoder) Randomized() bool { return b.randomized }

// Size is the number of bytes returned so far.
func (b *BlockDecoder) Size() int64 { return b.size }

func (b *BlockDecoder) exhausted() bool { return b.state == blockExhausted }
