// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package flac

import (
	"fmt"
)

var fixedCoefs = [...][]int64{
	{},
	{1},
	{2, -1},
	{3, -3, 1},
	{4, -6, 4, -1},
}

var frameDepths = [8]int{0, 8, 12, -1, 16, 20, 24, 32}

// frame decodes one frame. The first byte has already been loaded by atEOF.
func (d *Decoder) frame() [][]int32 {
	br := &d.br
	if sync := br.bits(14); sync != 0x3ffe {
		formatError("sync code %#04x", sync)
	}
	br.bits(1) // reserved
	br.bits(1) // fixed or variable blocking
	bsCode := br.bits(4)
	srCode := br.bits(4)
	chanAsgn := int(br.bits(4))
	depthCode := br.bits(3)
	br.bits(1) // reserved

	// frame or sample number, coded like UTF-8
	for x := br.bits(8); x&0xc0 == 0xc0; x = x << 1 & 0xff {
		br.bits(8)
	}

	var blockSize int
	switch {
	case bsCode == 0:
		formatError("reserved block size code")
	case bsCode == 1:
		blockSize = 192
	case bsCode <= 5:
		blockSize = 576 << (bsCode - 2)
	case bsCode == 6:
		blockSize = int(br.bits(8)) + 1
	case bsCode == 7:
		blockSize = int(br.bits(16)) + 1
	default:
		blockSize = 256 << (bsCode - 8)
	}

	switch srCode {
	case 12:
		br.bits(8)
	case 13, 14:
		br.bits(16)
	case 15:
		formatError("invalid sample rate code")
	}

	depth := d.BitsPerSample
	if depthCode != 0 {
		if frameDepths[depthCode] != depth {
			formatError("frame depth code %d in a %d-bit stream", depthCode, depth)
		}
	}

	want8 := br.crc8
	if got := uint8(br.bits(8)); got != want8 {
		panic(fmt.Errorf("%w: frame header CRC-8 %02x, computed %02x", ErrChecksum, got, want8))
	}

	nch := 2
	switch {
	case chanAsgn < 8:
		nch = chanAsgn + 1
	case chanAsgn > 10:
		formatError("reserved channel assignment %d", chanAsgn)
	}
	if nch != d.Channels {
		formatError("%d-channel frame in a %d-channel stream", nch, d.Channels)
	}

	raw := make([][]int64, nch)
	for ch := range raw {
		extra := 0 // the side channel needs one more bit
		if (chanAsgn == 8 || chanAsgn == 10) && ch == 1 || chanAsgn == 9 && ch == 0 {
			extra = 1
		}
		raw[ch] = d.subframe(blockSize, depth+extra)
	}

	switch chanAsgn {
	case 8: // left, side
		for i, side := range raw[1] {
			raw[1][i] = raw[0][i] - side
		}
	case 9: // side, right
		for i, side := range raw[0] {
			raw[0][i] = side + raw[1][i]
		}
	case 10: // mid, side
		for i, side := range raw[1] {
			right := raw[0][i] - side>>1
			raw[0][i] = right + side
			raw[1][i] = right
		}
	}

	br.alignByte()
	want16 := br.crc16
	if got := uint16(br.bits(16)); got != want16 {
		panic(fmt.Errorf("%w: frame CRC-16 %04x, computed %04x", ErrChecksum, got, want16))
	}

	out := make([][]int32, nch)
	for ch, r := range raw {
		out[ch] = make([]int32, blockSize)
		for i, v := range r {
			out[ch][i] = int32(v)
		}
	}
	return out
}

func (d *Decoder) subframe(blockSize, depth int) []int64 {
	br := &d.br
	if br.bits(1) != 0 {
		formatError("subframe padding bit set")
	}
	typ := int(br.bits(6))
	wasted := 0
	if br.bits(1) == 1 {
		wasted = 1 + int(br.unary())
	}
	depth -= wasted
	if depth <= 0 {
		formatError("%d wasted bits", wasted)
	}

	out := make([]int64, blockSize)
	switch {
	case typ == 0:
		v := br.signed(uint(depth))
		for i := range out {
			out[i] = v
		}
	case typ == 1:
		for i := range out {
			out[i] = br.signed(uint(depth))
		}
	case typ >= 8 && typ <= 12:
		order := typ - 8
		d.warmup(out, order, depth)
		d.residuals(out, order)
		predict(out, fixedCoefs[order], 0)
	case typ >= 32:
		order := typ - 31
		d.warmup(out, order, depth)
		precision := br.bits(4) + 1
		if precision == 16 {
			formatError("invalid LPC precision")
		}
		shift := br.signed(5)
		if shift < 0 {
			formatError("negative LPC shift")
		}
		coefs := make([]int64, order)
		for i := range coefs {
			coefs[i] = br.signed(uint(precision))
		}
		d.residuals(out, order)
		predict(out, coefs, uint(shift))
	default:
		formatError("reserved subframe type %d", typ)
	}

	if wasted > 0 {
		for i := range out {
			out[i] <<= wasted
		}
	}
	return out
}

func (d *Decoder) warmup(out []int64, order, depth int) {
	if order > len(out) {
		formatError("predictor order %d exceeds block size %d", order, len(out))
	}
	for i := range order {
		out[i] = d.br.signed(uint(depth))
	}
}

// residuals reads Rice-coded residuals into out[order:].
func (d *Decoder) residuals(out []int64, order int) {
	br := &d.br
	method := br.bits(2)
	if method > 1 {
		formatError("reserved residual coding method")
	}
	paramBits, escape := uint(4), uint64(0xf)
	if method == 1 {
		paramBits, escape = 5, 0x1f
	}

	partOrder := br.bits(4)
	nparts := 1 << partOrder
	if len(out)%nparts != 0 || len(out)>>partOrder < order {
		formatError("%d Rice partitions for %d samples", nparts, len(out))
	}
	i := order
	for p := range nparts {
		count := len(out) >> partOrder
		if p == 0 {
			count -= order
		}
		param := br.bits(paramBits)
		if param < escape {
			for range count {
				out[i] = br.rice(uint(param))
				i++
			}
		} else {
			n := uint(br.bits(5))
			for range count {
				out[i] = br.signed(n)
				i++
			}
		}
	}
}

// predict adds the linear prediction to the residuals after the warm-up samples.
func predict(out []int64, coefs []int64, shift uint) {
	for i := len(coefs); i < len(out); i++ {
		var sum int64
		for j, c := range coefs {
			sum += out[i-1-j] * c
		}
		out[i] += sum >> shift
	}
}
