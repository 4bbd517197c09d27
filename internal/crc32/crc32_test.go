// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package crc32

import (
	"bytes"
	gocrc32 "hash/crc32"
	"io"
	"math/rand/v2"
	"testing"
)

func TestCheckValue(t *testing.T) {
	if got := Checksum([]byte("123456789")); got != 0xcbf43926 {
		t.Errorf("check value %08x", got)
	}
}

func TestAgainstStdlib(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	data := make([]byte, 5000)
	for i := range data {
		data[i] = byte(rng.Uint32())
	}
	want := gocrc32.NewIEEE()
	want.Write(data)

	h := New()
	crc := uint32(0)
	for buf := data; len(buf) > 0; {
		n := min(rng.IntN(300), len(buf))
		crc = Update(crc, buf[:n])
		h.Write(buf[:n])
		buf = buf[n:]
	}
	if crc != want.Sum32() || h.Sum32() != want.Sum32() {
		t.Errorf("got %08x and %08x, want %08x", crc, h.Sum32(), want.Sum32())
	}
	if !bytes.Equal(h.Sum(nil), want.Sum(nil)) {
		t.Errorf("Sum %x, want %x", h.Sum(nil), want.Sum(nil))
	}
}

func TestReader(t *testing.T) {
	data := []byte("The quick brown fox jumps over the lazy dog")
	good := Checksum(data)

	got, err := io.ReadAll(NewReader(bytes.NewReader(data), good, int64(len(data))))
	if err != nil || !bytes.Equal(got, data) {
		t.Errorf("good data: %v", err)
	}

	_, err = io.ReadAll(NewReader(bytes.NewReader(data), good^1, int64(len(data))))
	if err != ErrChecksum {
		t.Errorf("bad checksum: %v", err)
	}

	_, err = io.ReadAll(NewReader(bytes.NewReader(data[:10]), good, int64(len(data))))
	if err != io.ErrUnexpectedEOF {
		t.Errorf("short data: %v", err)
	}
}
