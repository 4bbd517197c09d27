// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"
)

type IndexCmd struct {
	Path    string `arg:"" type:"existingfile" help:"A bzip2 file"`
	Rebuild bool   `help:"Ignore any stored index and decode the file again"`
}

func (c *IndexCmd) Run(g *Globals) error {
	f, err := os.Open(c.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	advise(f, false)

	ix, id, err := loadIndex(g, c.Path, f, c.Rebuild)
	if err != nil {
		return errors.Wrap(err, c.Path)
	}

	fmt.Fprintf(stdout, "%s: id %s, block size %d00k, %d blocks, %d bytes\n",
		c.Path, id, ix.Multiplier, len(ix.Blocks), ix.Size())
	tw := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "block\tbit offset\tdecoded offset\tsize\tCRC\t")
	var off int64
	for i, b := range ix.Blocks {
		crc := fmt.Sprintf("0x%08X", b.CRC)
		if b.Randomized {
			crc += "*"
		}
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%s\t\n", i, b.BitOffset, off, b.Size, crc)
		off += b.Size
	}
	return tw.Flush()
}
