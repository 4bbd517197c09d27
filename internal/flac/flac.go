// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package flac decodes FLAC audio streams to PCM.
//
// Only what is needed to turn a file into a WAV is implemented: STREAMINFO,
// every subframe type, and the frame and header checksums. Other metadata
// blocks are skipped.
package flac

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"runtime"
)

var (
	ErrFormat      = errors.New("flac: malformed stream")
	ErrChecksum    = errors.New("flac: checksum mismatch")
	ErrUnsupported = errors.New("flac: unsupported stream")
)

// Info is the content of the STREAMINFO block.
type Info struct {
	MinBlockSize, MaxBlockSize int
	SampleRate                 int
	Channels                   int
	BitsPerSample              int
	TotalSamples               int64 // per channel, 0 if unknown
	MD5                        [16]byte
}

// Decoder reads frames from a FLAC stream.
type Decoder struct {
	Info
	br  bitReader
	err error
}

// NewDecoder reads the stream marker and metadata blocks.
func NewDecoder(r io.Reader) (d *Decoder, err error) {
	src, ok := r.(io.ByteReader)
	if !ok {
		src = bufio.NewReader(r)
	}
	d = &Decoder{br: bitReader{r: src}}
	defer func() {
		if err != nil {
			d = nil
		}
	}()
	defer recoverError(&err)

	if d.br.bits(32) != 0x664c6143 { // "fLaC"
		return nil, fmt.Errorf("%w: no fLaC marker", ErrFormat)
	}
	haveInfo := false
	for last := false; !last; {
		last = d.br.bits(1) == 1
		typ := d.br.bits(7)
		length := int(d.br.bits(24))
		switch {
		case typ == 0:
			if length != 34 {
				return nil, fmt.Errorf("%w: STREAMINFO of %d bytes", ErrFormat, length)
			}
			d.readStreamInfo()
			haveInfo = true
		case typ == 127:
			return nil, fmt.Errorf("%w: invalid metadata block type", ErrFormat)
		default:
			for range length {
				d.br.bits(8)
			}
		}
	}
	if !haveInfo {
		return nil, fmt.Errorf("%w: no STREAMINFO block", ErrFormat)
	}
	return d, nil
}

func (d *Decoder) readStreamInfo() {
	br := &d.br
	d.MinBlockSize = int(br.bits(16))
	d.MaxBlockSize = int(br.bits(16))
	br.bits(24) // min frame size
	br.bits(24) // max frame size
	d.SampleRate = int(br.bits(20))
	d.Channels = int(br.bits(3)) + 1
	d.BitsPerSample = int(br.bits(5)) + 1
	d.TotalSamples = int64(br.bits(36))
	for i := range d.MD5 {
		d.MD5[i] = byte(br.bits(8))
	}
}

// recoverError turns a panic from the bit reader or a decode step into an
// error return. Runtime errors are bugs and keep panicking.
func recoverError(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if _, ok := r.(runtime.Error); ok {
		panic(r)
	}
	e, ok := r.(error)
	if !ok {
		panic(r)
	}
	*err = e
}

func formatError(format string, args ...any) {
	panic(fmt.Errorf("%w: "+format, append([]any{ErrFormat}, args...)...))
}

// NextFrame decodes one frame into per-channel samples.
// It returns io.EOF when the stream ends cleanly between frames.
func (d *Decoder) NextFrame() (samples [][]int32, err error) {
	if d.err != nil {
		return nil, d.err
	}
	defer func() {
		if err != nil {
			d.err = err
		}
	}()
	defer recoverError(&err)

	if d.br.atEOF() {
		return nil, io.EOF
	}
	return d.frame(), nil
}
