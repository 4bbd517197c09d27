// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package bzip2

const (
	maxTables     = 6
	minTables     = 2
	maxAlphabet   = 258 // 256 MTF ranks, RUNA/RUNB folded in, plus end-of-block
	maxCodeLen    = 23  // longest code the decoder will try
	maxCodeLenEnc = 20  // longest code an encoder may declare
	groupSize     = 50  // symbols per selector
	maxBlockSize  = 9 * 100000
	maxSelectors  = 2 + maxBlockSize/groupSize
)

// HuffmanTable decodes one canonical Huffman code.
//
// Codes of each length are contiguous: a candidate of length n is valid when it
// is at most limit[n], and its rank among all codes is candidate-base[n].
type HuffmanTable struct {
	minLen, maxLen int
	base           [maxCodeLen + 2]int32
	limit          [maxCodeLen + 1]int32
	symbol         [maxAlphabet]uint16
	nsym           int
}

// NewHuffmanTable builds a decoding table from one code length per symbol.
// The lengths must describe a complete prefix code; this is not checked.
func NewHuffmanTable(lengths []uint8) (*HuffmanTable, error) {
	t := new(HuffmanTable)
	if err := t.init(lengths); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *HuffmanTable) init(lengths []uint8) error {
	if len(lengths) == 0 || len(lengths) > maxAlphabet {
		return errorf(CorruptBlock, "alphabet of %d symbols", len(lengths))
	}
	*t = HuffmanTable{nsym: len(lengths)}

	t.minLen, t.maxLen = maxCodeLen, 0
	for _, l := range lengths {
		if l < 1 || l > maxCodeLen {
			return errorf(CorruptBlock, "code length %d", l)
		}
		t.minLen = min(t.minLen, int(l))
		t.maxLen = max(t.maxLen, int(l))
		t.base[l+1]++
	}

	// base[n] becomes the number of codes shorter than n
	for n := 1; n < len(t.base); n++ {
		t.base[n] += t.base[n-1]
	}

	for n := range t.limit {
		t.limit[n] = -1
	}
	code := int32(0)
	for n := t.minLen; n <= t.maxLen; n++ {
		first := code
		code += t.base[n+1] - t.base[n]
		t.base[n] = first - t.base[n]
		t.limit[n] = code - 1
		code <<= 1
	}

	rank := 0
	for n := t.minLen; n <= t.maxLen; n++ {
		for sym, l := range lengths {
			if int(l) == n {
				t.symbol[rank] = uint16(sym)
				rank++
			}
		}
	}
	return nil
}

// Decode reads one symbol.
func (t *HuffmanTable) Decode(c *BitCursor) (int, error) {
	n := t.minLen
	v, err := c.ReadBits(uint(n))
	if err != nil {
		return 0, err
	}
	code := int32(v)
	for {
		if code <= t.limit[n] {
			rank := code - t.base[n]
			if rank < 0 || int(rank) >= t.nsym {
				return 0, errorf(CorruptBlock, "Huffman rank %d out of range", rank)
			}
			return int(t.symbol[rank]), nil
		}
		if n == maxCodeLen {
			return 0, errorf(CorruptBlock, "unrecognised Huffman code")
		}
		bit, err := c.ReadBits(1)
		if err != nil {
			return 0, err
		}
		code = code<<1 | int32(bit)
		n++
	}
}

// huffmanStage multiplexes the alternative tables of a block,
// switching table every groupSize symbols as the selectors dictate.
type huffmanStage struct {
	tables    []HuffmanTable
	selectors []uint8
	group     int // index of the selector in force
	left      int // symbols remaining in the current group
	cur       *HuffmanTable
}

func newHuffmanStage(tables []HuffmanTable, selectors []uint8) *huffmanStage {
	return &huffmanStage{tables: tables, selectors: selectors, group: -1}
}

func (h *huffmanStage) next(c *BitCursor) (int, error) {
	if h.left == 0 {
		h.group++
		if h.group >= len(h.selectors) {
			return 0, errorf(CorruptBlock, "ran out of selectors after %d groups", h.group)
		}
		h.cur = &h.tables[h.selectors[h.group]]
		h.left = groupSize
	}
	h.left--
	return h.cur.Decode(c)
}
