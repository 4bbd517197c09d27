// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package flac

import (
	"bufio"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// WriteWAV decodes the remaining frames to w as a PCM WAVE file.
// The sample count and, if present, the MD5 signature in STREAMINFO are verified.
func (d *Decoder) WriteWAV(w io.Writer) error {
	if d.BitsPerSample%8 != 0 {
		return fmt.Errorf("%w: %d-bit samples", ErrUnsupported, d.BitsPerSample)
	}
	width := d.BitsPerSample / 8
	frameBytes := d.Channels * width
	dataLen := d.TotalSamples * int64(frameBytes)
	if dataLen > math.MaxUint32-36 {
		return fmt.Errorf("%w: %d bytes of audio is too long for WAVE", ErrUnsupported, dataLen)
	}

	hdr := make([]byte, 0, 44)
	hdr = append(hdr, "RIFF"...)
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(dataLen+36))
	hdr = append(hdr, "WAVEfmt "...)
	hdr = binary.LittleEndian.AppendUint32(hdr, 16)
	hdr = binary.LittleEndian.AppendUint16(hdr, 1) // PCM
	hdr = binary.LittleEndian.AppendUint16(hdr, uint16(d.Channels))
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(d.SampleRate))
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(d.SampleRate*frameBytes))
	hdr = binary.LittleEndian.AppendUint16(hdr, uint16(frameBytes))
	hdr = binary.LittleEndian.AppendUint16(hdr, uint16(d.BitsPerSample))
	hdr = append(hdr, "data"...)
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(dataLen))

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(hdr); err != nil {
		return err
	}

	// The signature covers signed samples, but 8-bit WAVE is unsigned.
	sig := md5.New()
	var pcm, signed []byte
	var total int64
	for {
		samples, err := d.NextFrame()
		if err == io.EOF {
			break
		} else if err != nil {
			return err
		}
		n := len(samples[0])
		pcm, signed = pcm[:0], signed[:0]
		for i := range n {
			for _, ch := range samples {
				v := ch[i]
				for b := range width {
					signed = append(signed, byte(v>>(8*b)))
				}
				if width == 1 {
					v += 128
				}
				for b := range width {
					pcm = append(pcm, byte(v>>(8*b)))
				}
			}
		}
		if _, err := bw.Write(pcm); err != nil {
			return err
		}
		sig.Write(signed)
		total += int64(n)
	}
	if err := bw.Flush(); err != nil {
		return err
	}

	if d.TotalSamples != 0 && total != d.TotalSamples {
		return fmt.Errorf("%w: %d samples decoded, STREAMINFO says %d", ErrFormat, total, d.TotalSamples)
	}
	if d.MD5 != [16]byte{} {
		if got := [16]byte(sig.Sum(nil)); got != d.MD5 {
			return fmt.Errorf("%w: MD5 signature %x, computed %x", ErrChecksum, d.MD5, got)
		}
	}
	return nil
}
