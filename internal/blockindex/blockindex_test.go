// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package blockindex

import (
	"bytes"
	gobzip2 "compress/bzip2"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/pebble/v2"
	"github.com/elliotnunn/streamcat/internal/bzip2"
	"github.com/elliotnunn/streamcat/internal/fileid"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

const fixture = "../bzip2/testdata/words.bz2"

func load(t *testing.T) (compressed, plain []byte) {
	t.Helper()
	compressed, err := os.ReadFile(fixture)
	require.NoError(t, err)
	plain, err = io.ReadAll(gobzip2.NewReader(bytes.NewReader(compressed)))
	require.NoError(t, err)
	return compressed, plain
}

func TestBuild(t *testing.T) {
	compressed, plain := load(t)
	ix, err := Build(bytes.NewReader(compressed))
	require.NoError(t, err)

	require.Equal(t, 1, ix.Multiplier)
	require.Len(t, ix.Blocks, 4)
	require.Equal(t, int64(32), ix.Blocks[0].BitOffset, "first block follows the 4-byte header")
	require.Equal(t, int64(len(plain)), ix.Size())
	for i := 1; i < len(ix.Blocks); i++ {
		require.Greater(t, ix.Blocks[i].BitOffset, ix.Blocks[i-1].BitOffset)
	}

	var start int64
	for i, b := range ix.Blocks {
		require.Equal(t, bzip2.Checksum(plain[start:start+b.Size]), b.CRC, "block %d", i)
		j, at := ix.Find(start + b.Size - 1)
		require.Equal(t, i, j)
		require.Equal(t, start, at)
		start += b.Size
	}
	j, _ := ix.Find(start)
	require.Equal(t, len(ix.Blocks), j)
}

func TestBuildCorrupt(t *testing.T) {
	compressed, _ := load(t)
	_, err := Build(bytes.NewReader(compressed[:len(compressed)-10]))
	require.ErrorIs(t, err, bzip2.ErrTruncatedInput)
}

func TestRecord(t *testing.T) {
	ix := Index{Multiplier: 9, Blocks: []Block{
		{BitOffset: 32, CRC: 0xdeadbeef, Size: 900000},
		{BitOffset: 1 << 40, CRC: 0, Size: 1, Randomized: true},
	}}
	b, err := ix.MarshalBinary()
	require.NoError(t, err)

	var got Index
	require.NoError(t, got.UnmarshalBinary(b))
	require.True(t, ix.Equal(got), "%+v", got)

	// Fields this version does not know about are skipped
	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendString(b, "future")
	require.NoError(t, got.UnmarshalBinary(b))
	require.True(t, ix.Equal(got))

	require.Error(t, got.UnmarshalBinary(b[:len(b)-1]))

	future := protowire.AppendTag(nil, 1, protowire.VarintType)
	future = protowire.AppendVarint(future, recordVersion+1)
	require.ErrorIs(t, got.UnmarshalBinary(future), errUnknownVersion)
}

func TestStore(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	id := fileid.ID{1, 2, 3}
	_, ok, err := s.Get(id)
	require.NoError(t, err)
	require.False(t, ok)

	ix := Index{Multiplier: 1, Blocks: []Block{{BitOffset: 32, CRC: 7, Size: 100}}}
	require.NoError(t, s.Put(id, ix))
	got, ok, err := s.Get(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, ix.Equal(got))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()
	got, ok, err = s.Get(id)
	require.NoError(t, err)
	require.True(t, ok, "index did not persist")
	require.True(t, ix.Equal(got))

	// A record from a newer version reads as absent
	future := protowire.AppendTag(nil, 1, protowire.VarintType)
	future = protowire.AppendVarint(future, recordVersion+1)
	require.NoError(t, s.db.Set(key(id), future, pebble.Sync))
	_, ok, err = s.Get(id)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReaderAt(t *testing.T) {
	compressed, plain := load(t)
	ix, err := Build(bytes.NewReader(compressed))
	require.NoError(t, err)

	ra := ix.ReaderAt(bytes.NewReader(compressed), t.Name())
	require.Equal(t, int64(len(plain)), ra.Size())

	rng := rand.New(rand.NewPCG(1, 2))
	for range 50 {
		off := rng.IntN(len(plain))
		n := rng.IntN(200000)
		buf := make([]byte, n)
		got, err := ra.ReadAt(buf, int64(off))
		want := min(n, len(plain)-off)
		require.Equal(t, want, got)
		if off+n > len(plain) {
			require.ErrorIs(t, err, io.EOF)
		} else {
			require.NoError(t, err)
		}
		require.True(t, bytes.Equal(plain[off:off+want], buf[:got]), "mismatch at %d+%d", off, n)
	}
}

func TestStale(t *testing.T) {
	compressed, _ := load(t)
	ix, err := Build(bytes.NewReader(compressed))
	require.NoError(t, err)

	ix.Blocks[0].CRC++
	ra := ix.ReaderAt(bytes.NewReader(compressed), t.Name())
	_, err = ra.ReadAt(make([]byte, 10), 0)
	require.ErrorIs(t, err, ErrStale)

	ix.Blocks[0].CRC--
	ix.Blocks[1].BitOffset++
	ra = ix.ReaderAt(bytes.NewReader(compressed), t.Name()+"/offset")
	_, err = ra.ReadAt(make([]byte, 10), ix.Blocks[0].Size)
	require.ErrorIs(t, err, bzip2.ErrStreamFormat)
}

func TestStoreDirIsFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(p, nil, 0o644))
	_, err := Open(p)
	require.Error(t, err)
}
