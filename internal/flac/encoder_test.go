// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package flac

import (
	"crypto/md5"
)

// A small FLAC encoder that can emit every subframe type, for building test streams.

type bitWriter struct {
	buf []byte
	acc uint64
	n   uint
}

func (w *bitWriter) write(n uint, v uint64) {
	for n > 32 {
		w.write(32, v>>(n-32))
		n -= 32
	}
	w.acc = w.acc<<n | v&(1<<n-1)
	w.n += n
	for w.n >= 8 {
		w.n -= 8
		w.buf = append(w.buf, byte(w.acc>>w.n))
	}
}

func (w *bitWriter) writeSigned(n uint, v int64) { w.write(n, uint64(v)) }

func (w *bitWriter) align() {
	if w.n > 0 {
		w.write(8-w.n, 0)
	}
}

func refCRC8(p []byte) uint8 {
	var c uint8
	for _, b := range p {
		c ^= b
		for range 8 {
			if c&0x80 != 0 {
				c = c<<1 ^ 0x07
			} else {
				c <<= 1
			}
		}
	}
	return c
}

func refCRC16(p []byte) uint16 {
	var c uint16
	for _, b := range p {
		c ^= uint16(b) << 8
		for range 8 {
			if c&0x8000 != 0 {
				c = c<<1 ^ 0x8005
			} else {
				c <<= 1
			}
		}
	}
	return c
}

type subframeKind int

const (
	kindVerbatim subframeKind = iota
	kindConstant
	kindFixed
	kindLPC
	kindEscaped // fixed order 1 with an escaped (unencoded) partition
)

type subframeOpts struct {
	kind   subframeKind
	order  int     // fixed predictor order
	coefs  []int64 // LPC
	shift  int
	wasted int
}

type streamOpts struct {
	rate, depth int
	blockSize   int
	chanAsgn    int // 0-10; 8-10 need two channels
	subframes   []subframeOpts
	badMD5      bool
	extraBlock  bool // a PADDING block after STREAMINFO
}

func depthCode(depth int) uint64 {
	for code, d := range frameDepths {
		if d == depth {
			return uint64(code)
		}
	}
	return 0
}

func encodeFLAC(chans [][]int32, s streamOpts) []byte {
	nch := len(chans)
	total := len(chans[0])
	width := (s.depth + 7) / 8

	sig := md5.New()
	for i := range total {
		for _, ch := range chans {
			for b := range width {
				sig.Write([]byte{byte(ch[i] >> (8 * b))})
			}
		}
	}
	sum := sig.Sum(nil)
	if s.badMD5 {
		sum[0] ^= 1
	}

	w := new(bitWriter)
	w.write(32, 0x664c6143)
	if s.extraBlock {
		w.write(1, 0)
	} else {
		w.write(1, 1)
	}
	w.write(7, 0)
	w.write(24, 34)
	w.write(16, uint64(s.blockSize))
	w.write(16, uint64(s.blockSize))
	w.write(24, 0)
	w.write(24, 0)
	w.write(20, uint64(s.rate))
	w.write(3, uint64(nch-1))
	w.write(5, uint64(s.depth-1))
	w.write(36, uint64(total))
	for _, b := range sum {
		w.write(8, uint64(b))
	}
	if s.extraBlock {
		w.write(1, 1)
		w.write(7, 1) // PADDING
		w.write(24, 10)
		w.write(80, 0)
	}

	out := w.buf
	for frame, start := 0, 0; start < total; frame, start = frame+1, start+s.blockSize {
		end := min(start+s.blockSize, total)
		block := make([][]int32, nch)
		for ch := range chans {
			block[ch] = chans[ch][start:end]
		}
		out = append(out, encodeFrame(block, frame, s)...)
	}
	return out
}

func encodeFrame(block [][]int32, frame int, s streamOpts) []byte {
	n := len(block[0])
	w := new(bitWriter)
	w.write(14, 0x3ffe)
	w.write(1, 0)
	w.write(1, 0)

	var bsCode uint64
	switch {
	case n == 192:
		bsCode = 1
	case n == 4608:
		bsCode = 5
	case n == 4096:
		bsCode = 12
	case n <= 256:
		bsCode = 6
	default:
		bsCode = 7
	}
	w.write(4, bsCode)
	w.write(4, 0) // sample rate from STREAMINFO
	nch := uint64(len(block) - 1)
	if s.chanAsgn >= 8 {
		nch = uint64(s.chanAsgn)
	}
	w.write(4, nch)
	w.write(3, depthCode(s.depth))
	w.write(1, 0)
	if frame < 0x80 {
		w.write(8, uint64(frame))
	} else {
		w.write(8, 0xc0|uint64(frame>>6))
		w.write(8, 0x80|uint64(frame&0x3f))
	}
	switch bsCode {
	case 6:
		w.write(8, uint64(n-1))
	case 7:
		w.write(16, uint64(n-1))
	}
	w.write(8, uint64(refCRC8(w.buf)))

	chans := make([][]int64, len(block))
	for ch := range block {
		chans[ch] = make([]int64, n)
		for i, v := range block[ch] {
			chans[ch][i] = int64(v)
		}
	}
	depths := make([]int, len(block))
	for ch := range depths {
		depths[ch] = s.depth
	}
	if s.chanAsgn >= 8 {
		l, r := chans[0], chans[1]
		side := make([]int64, n)
		mid := make([]int64, n)
		for i := range n {
			side[i] = l[i] - r[i]
			mid[i] = (l[i] + r[i]) >> 1
		}
		switch s.chanAsgn {
		case 8:
			chans[1], depths[1] = side, s.depth+1
		case 9:
			chans[0], depths[0] = side, s.depth+1
		case 10:
			chans[0], chans[1], depths[1] = mid, side, s.depth+1
		}
	}

	for ch, x := range chans {
		opt := s.subframes[ch%len(s.subframes)]
		encodeSubframe(w, x, depths[ch], opt)
	}
	w.align()
	w.write(16, uint64(refCRC16(w.buf)))
	return w.buf
}

func encodeSubframe(w *bitWriter, x []int64, depth int, opt subframeOpts) {
	kind := opt.kind
	if kind == kindConstant {
		for _, v := range x {
			if v != x[0] {
				kind = kindVerbatim
			}
		}
	}
	order := opt.order
	if kind == kindLPC {
		order = len(opt.coefs)
	} else if kind == kindEscaped {
		order = 1
	}
	if order > len(x) {
		kind = kindVerbatim
	}

	var typ uint64
	switch kind {
	case kindVerbatim:
		typ = 1
	case kindConstant:
		typ = 0
	case kindFixed, kindEscaped:
		typ = 8 + uint64(order)
	case kindLPC:
		typ = 31 + uint64(order)
	}
	w.write(1, 0)
	w.write(6, typ)

	wasted := opt.wasted
	for _, v := range x {
		if v&(1<<wasted-1) != 0 {
			wasted = 0
		}
	}
	if wasted > 0 {
		w.write(1, 1)
		w.write(uint(wasted-1), 0)
		w.write(1, 1)
		shifted := make([]int64, len(x))
		for i, v := range x {
			shifted[i] = v >> wasted
		}
		x = shifted
		depth -= wasted
	} else {
		w.write(1, 0)
	}

	switch kind {
	case kindConstant:
		w.writeSigned(uint(depth), x[0])
		return
	case kindVerbatim:
		for _, v := range x {
			w.writeSigned(uint(depth), v)
		}
		return
	}

	for _, v := range x[:order] {
		w.writeSigned(uint(depth), v)
	}
	coefs, shift := fixedCoefs[min(order, 4)], 0
	if kind == kindLPC {
		coefs, shift = opt.coefs, opt.shift
		w.write(4, 15-1) // 15-bit precision
		w.writeSigned(5, int64(shift))
		for _, c := range coefs {
			w.writeSigned(15, c)
		}
	}
	res := make([]int64, 0, len(x))
	for i := order; i < len(x); i++ {
		var sum int64
		for j, c := range coefs {
			sum += x[i-1-j] * c
		}
		res = append(res, x[i]-sum>>shift)
	}
	encodeResiduals(w, res, len(x), order, kind == kindEscaped)
}

func encodeResiduals(w *bitWriter, res []int64, blockSize, order int, escape bool) {
	partOrder := 0
	if blockSize%2 == 0 && blockSize/2 >= order {
		partOrder = 1
	}
	w.write(2, 1) // 5-bit parameters
	w.write(4, uint64(partOrder))
	for p := range 1 << partOrder {
		count := blockSize >> partOrder
		if p == 0 {
			count -= order
		}
		part := res[:count]
		res = res[count:]

		if escape {
			w.write(5, 0x1f)
			w.write(5, 20)
			for _, r := range part {
				w.writeSigned(20, r)
			}
			continue
		}

		var mean uint64
		for _, r := range part {
			mean += uint64(r<<1 ^ r>>63)
		}
		param := uint(0)
		if len(part) > 0 {
			mean /= uint64(len(part))
		}
		for param < 30 && mean>>param > 1 {
			param++
		}
		w.write(5, uint64(param))
		for _, r := range part {
			u := uint64(r<<1 ^ r>>63)
			for range u >> param {
				w.write(1, 0)
			}
			w.write(1, 1)
			w.write(param, u)
		}
	}
}
