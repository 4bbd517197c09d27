// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package blockindex

import (
	"errors"
	"log/slog"
	"slices"

	"github.com/cockroachdb/pebble/v2"
	"github.com/elliotnunn/streamcat/internal/fileid"
)

const keyPrefix = "bz2idx/"

// Store keeps indexes on disk, keyed by the ID of the compressed file.
type Store struct {
	db *pebble.DB
}

func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func key(id fileid.ID) []byte {
	return append([]byte(keyPrefix), id[:]...)
}

// Get returns false if there is no usable index for id.
func (s *Store) Get(id fileid.ID) (Index, bool, error) {
	val, closer, err := s.db.Get(key(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return Index{}, false, nil
	} else if err != nil {
		return Index{}, false, err
	}
	val = slices.Clone(val)
	closer.Close()

	var ix Index
	err = ix.UnmarshalBinary(val)
	if errors.Is(err, errUnknownVersion) {
		slog.Info("blockIndexVersionSkew", "id", id, "err", err)
		return Index{}, false, nil
	} else if err != nil {
		slog.Warn("blockIndexCorrupt", "id", id, "err", err)
		return Index{}, false, nil
	}
	return ix, true, nil
}

func (s *Store) Put(id fileid.ID, ix Index) error {
	val, err := ix.MarshalBinary()
	if err != nil {
		return err
	}
	return s.db.Set(key(id), val, pebble.Sync)
}
