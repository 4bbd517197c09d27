// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package fileid fingerprints a file so that data derived from it can be cached
// and found again, and discarded once the file changes.
package fileid

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
)

// headLen bytes from the start of the file contribute to the ID.
const headLen = 4096

var ErrNotRegular = errors.New("not a regular file")

// ID = (64 bits of hash of name, size, mtime and inode) + (64 bits of hash of the first 4 KiB)
type ID [16]byte

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Of returns the ID of the regular file at path.
func Of(path string) (ID, error) {
	f, err := os.Open(path)
	if err != nil {
		return ID{}, err
	}
	defer f.Close()

	inf, err := f.Stat()
	if err != nil {
		return ID{}, err
	}
	if !inf.Mode().IsRegular() {
		return ID{}, &os.PathError{Op: "fileid", Path: path, Err: ErrNotRegular}
	}

	var id ID
	var h xxhash.Digest
	h.Reset()
	h.WriteString(filepath.Base(path))
	binary.Write(&h, binary.BigEndian, inf.Size())
	binary.Write(&h, binary.BigEndian, inf.ModTime().UnixNano())
	if ino, ok := inode(inf); ok {
		binary.Write(&h, binary.BigEndian, ino)
	}
	binary.BigEndian.PutUint64(id[:], h.Sum64())

	h.Reset()
	if _, err := io.Copy(&h, io.LimitReader(f, headLen)); err != nil {
		return ID{}, err
	}
	binary.BigEndian.PutUint64(id[8:], h.Sum64())
	return id, nil
}
