// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/elliotnunn/streamcat/internal/bzip2"
	"github.com/elliotnunn/streamcat/internal/crc32"
)

type CrcCmd struct {
	Paths   []string `arg:"" optional:"" help:"Files or doublestar globs, standard input if none"`
	Variant string   `enum:"ieee,bzip2" default:"ieee" help:"ieee (as in gzip and zip) or bzip2 (MSB-first)"`
}

type crcWriter interface {
	io.Writer
	Sum32() uint32
}

func (c *CrcCmd) newHash() crcWriter {
	if c.Variant == "bzip2" {
		h := bzip2.NewCRC()
		return &h
	}
	return crc32.New()
}

func (c *CrcCmd) Run(g *Globals) error {
	paths, err := expandGlobs(c.Paths)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		h := c.newHash()
		if _, err := io.Copy(h, stdin); err != nil {
			return errors.Wrap(err, "standard input")
		}
		fmt.Fprintf(stdout, "0x%08X\n", h.Sum32())
		return nil
	}

	for _, p := range paths {
		sum, err := c.file(p)
		if err != nil {
			return errors.Wrap(err, p)
		}
		if len(paths) == 1 {
			fmt.Fprintf(stdout, "0x%08X\n", sum)
		} else {
			fmt.Fprintf(stdout, "0x%08X  %s\n", sum, p)
		}
	}
	return nil
}

func (c *CrcCmd) file(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	advise(f, false)
	h := c.newHash()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum32(), nil
}
