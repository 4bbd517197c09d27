// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/therootcompany/xz"

	"github.com/elliotnunn/streamcat/internal/bzip2"
	"github.com/elliotnunn/streamcat/internal/flac"
	"github.com/elliotnunn/streamcat/internal/gzip"
)

type format int

const (
	formatUnknown format = iota
	formatBzip2
	formatGzip
	formatXZ
	formatFLAC
)

func (f format) String() string {
	return [...]string{"unknown", "bzip2", "gzip", "xz", "flac"}[f]
}

// suffixes are the changeSuffix rules for naming decoded files
func (f format) suffixes() string {
	switch f {
	case formatBzip2:
		return ".bz .bz2 .bzip2 .tbz=.tar .tb2=.tar"
	case formatGzip:
		return ".gz .gzip .tgz=.tar"
	case formatXZ:
		return ".xz .txz=.tar"
	case formatFLAC:
		return ".flac=.wav .fla=.wav"
	}
	return ""
}

var errUnknownFormat = errors.New("not a bzip2, gzip, xz or FLAC stream")

// probe identifies the stream by its magic number without consuming it.
func probe(r *bufio.Reader) (format, error) {
	var accessError error
	matchAt := func(s string, offset int) bool {
		header, err := r.Peek(offset + len(s))
		if err != nil && err != io.EOF && err != bufio.ErrBufferFull && accessError == nil {
			accessError = err
		}
		return len(header) >= offset+len(s) && string(header[offset:][:len(s)]) == s
	}

	switch {
	case matchAt("BZh", 0):
		return formatBzip2, nil
	case matchAt("\x1f\x8b", 0):
		return formatGzip, nil
	case matchAt("\xfd7zXZ\x00", 0):
		return formatXZ, nil
	case matchAt("fLaC", 0):
		return formatFLAC, nil
	}
	if accessError != nil {
		return formatUnknown, accessError
	}
	return formatUnknown, errUnknownFormat
}

// decode writes the whole decoded stream to w.
func decode(f format, r io.Reader, w io.Writer, singleMember bool) error {
	switch f {
	case formatBzip2:
		_, err := io.Copy(w, bzip2.NewReader(r))
		return err
	case formatGzip:
		z, err := gzip.NewReader(r)
		if err != nil {
			return err
		}
		z.Multistream(!singleMember)
		_, err = io.Copy(w, z)
		return err
	case formatXZ:
		x, err := xz.NewReader(r, xz.DefaultDictMax)
		if err != nil {
			return err
		}
		_, err = io.Copy(w, x)
		return err
	case formatFLAC:
		d, err := flac.NewDecoder(r)
		if err != nil {
			return err
		}
		return d.WriteWAV(w)
	}
	return errUnknownFormat
}

func changeSuffix(s string, suffixes string) string {
	for _, rule := range strings.Split(suffixes, " ") {
		from, to, _ := strings.Cut(rule, "=")
		if strings.HasSuffix(s, from) && len(s) > len(from) {
			return s[:len(s)-len(from)] + to
		}
	}
	return s
}
