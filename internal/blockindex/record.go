// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package blockindex

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Stored records are protobuf messages, written by hand with protowire:
//
//	message Index {
//	  uint32 version = 1;
//	  uint32 multiplier = 2;
//	  repeated Block block = 3;
//	}
//	message Block {
//	  uint64 bit_offset = 1;
//	  fixed32 crc = 2;
//	  uint64 size = 3;
//	  bool randomized = 4;
//	}
const recordVersion = 1

var errUnknownVersion = errors.New("unknown index record version")

func (ix Index) MarshalBinary() ([]byte, error) {
	b := protowire.AppendTag(nil, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, recordVersion)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(ix.Multiplier))
	var m []byte
	for _, blk := range ix.Blocks {
		m = m[:0]
		m = protowire.AppendTag(m, 1, protowire.VarintType)
		m = protowire.AppendVarint(m, uint64(blk.BitOffset))
		m = protowire.AppendTag(m, 2, protowire.Fixed32Type)
		m = protowire.AppendFixed32(m, blk.CRC)
		m = protowire.AppendTag(m, 3, protowire.VarintType)
		m = protowire.AppendVarint(m, uint64(blk.Size))
		if blk.Randomized {
			m = protowire.AppendTag(m, 4, protowire.VarintType)
			m = protowire.AppendVarint(m, protowire.EncodeBool(true))
		}
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, m)
	}
	return b, nil
}

func (ix *Index) UnmarshalBinary(b []byte) error {
	var out Index
	var version uint64
	err := eachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch {
		case num == 1 && typ == protowire.VarintType:
			version, _ = protowire.ConsumeVarint(v)
		case num == 2 && typ == protowire.VarintType:
			m, _ := protowire.ConsumeVarint(v)
			out.Multiplier = int(m)
		case num == 3 && typ == protowire.BytesType:
			msg, _ := protowire.ConsumeBytes(v)
			blk, err := unmarshalBlock(msg)
			if err != nil {
				return err
			}
			out.Blocks = append(out.Blocks, blk)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if version != recordVersion {
		return fmt.Errorf("%w: %d", errUnknownVersion, version)
	}
	*ix = out
	return nil
}

func unmarshalBlock(b []byte) (Block, error) {
	var blk Block
	err := eachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch {
		case num == 1 && typ == protowire.VarintType:
			x, _ := protowire.ConsumeVarint(v)
			blk.BitOffset = int64(x)
		case num == 2 && typ == protowire.Fixed32Type:
			blk.CRC, _ = protowire.ConsumeFixed32(v)
		case num == 3 && typ == protowire.VarintType:
			x, _ := protowire.ConsumeVarint(v)
			blk.Size = int64(x)
		case num == 4 && typ == protowire.VarintType:
			x, _ := protowire.ConsumeVarint(v)
			blk.Randomized = protowire.DecodeBool(x)
		}
		return nil
	})
	return blk, err
}

// eachField calls f with the raw value of each field in the message b.
// Unknown fields are passed through too, so f decides what to skip.
func eachField(b []byte, f func(protowire.Number, protowire.Type, []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m := protowire.ConsumeFieldValue(num, typ, b)
		if m < 0 {
			return protowire.ParseError(m)
		}
		if err := f(num, typ, b[:m]); err != nil {
			return err
		}
		b = b[m:]
	}
	return nil
}
