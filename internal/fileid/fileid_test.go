// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package fileid

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOf(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.bz2")
	if err := os.WriteFile(a, []byte("BZh9 some content!"), 0o644); err != nil {
		t.Fatal(err)
	}

	id1, err := Of(a)
	if err != nil {
		t.Fatal(err)
	}
	id2, err := Of(a)
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Errorf("unstable ID: %v then %v", id1, id2)
	}
	if len(id1.String()) != 32 {
		t.Errorf("String() = %q", id1.String())
	}

	// Same length, different content, same mtime
	mtime := time.Unix(1700000000, 0)
	os.Chtimes(a, mtime, mtime)
	before, _ := Of(a)
	if err := os.WriteFile(a, []byte("BZh9 other content"), 0o644); err != nil {
		t.Fatal(err)
	}
	os.Chtimes(a, mtime, mtime)
	after, err := Of(a)
	if err != nil {
		t.Fatal(err)
	}
	if before == after {
		t.Error("ID did not change with the content")
	}
	if !bytes.Equal(before[:8], after[:8]) {
		t.Error("metadata half changed with only the content")
	}

	b := filepath.Join(dir, "b.bz2")
	if err := os.WriteFile(b, []byte("BZh9 other content"), 0o644); err != nil {
		t.Fatal(err)
	}
	os.Chtimes(b, mtime, mtime)
	other, err := Of(b)
	if err != nil {
		t.Fatal(err)
	}
	if other == after {
		t.Error("two files with the same content and mtime share an ID")
	}
	if !bytes.Equal(other[8:], after[8:]) {
		t.Error("content half should match for identical heads")
	}
}

func TestOfDirectory(t *testing.T) {
	_, err := Of(t.TempDir())
	if !errors.Is(err, ErrNotRegular) {
		t.Errorf("got %v, want ErrNotRegular", err)
	}
}

func TestOfMissing(t *testing.T) {
	_, err := Of(filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("got %v, want ErrNotExist", err)
	}
}
