// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/elliotnunn/streamcat/internal/blockindex"
	"github.com/elliotnunn/streamcat/internal/fileid"
	"github.com/elliotnunn/streamcat/internal/gzip"
)

type CatCmd struct {
	Paths []string `arg:"" optional:"" help:"Files or doublestar globs, standard input if none"`

	OutputDir string `short:"o" type:"path" help:"Write each input to a file of the decoded name in this directory"`
	Keep      bool   `short:"k" help:"Write each input to a file of the decoded name beside it"`
	Force     bool   `short:"f" help:"Overwrite existing output files"`
	Single    bool   `help:"Stop after the first gzip member"`

	Offset int64 `help:"First decoded byte to write (bzip2 and gzip files only)"`
	Length int64 `default:"-1" help:"Number of decoded bytes to write, -1 for the rest"`
}

func (c *CatCmd) ranged() bool { return c.Offset != 0 || c.Length >= 0 }

func (c *CatCmd) Run(g *Globals) error {
	if c.Offset < 0 {
		return errors.Errorf("negative --offset %d", c.Offset)
	}
	if c.OutputDir == "" && !c.Keep {
		c.OutputDir = g.file.OutputDir
	}

	paths, err := expandGlobs(c.Paths)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		if c.ranged() {
			return errors.New("--offset and --length need a file, not standard input")
		}
		br := bufio.NewReader(stdin)
		f, err := probe(br)
		if err != nil {
			return errors.Wrap(err, "standard input")
		}
		logrus.WithField("format", f).Debug("decoding standard input")
		return errors.Wrap(decode(f, br, stdout, c.Single), "standard input")
	}

	for _, p := range paths {
		if err := c.one(g, p); err != nil {
			return errors.Wrap(err, p)
		}
	}
	return nil
}

func (c *CatCmd) one(g *Globals, path string) (err error) {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	form, err := probe(br)
	if err != nil {
		return err
	}
	llog := logrus.WithFields(logrus.Fields{"path": path, "format": form})

	w := stdout
	if dir := c.outputDir(path); dir != "" {
		name := changeSuffix(filepath.Base(path), form.suffixes())
		if name == filepath.Base(path) {
			name += ".out"
		}
		outPath := filepath.Join(dir, name)
		flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
		if c.Force {
			flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		}
		out, oerr := os.OpenFile(outPath, flags, 0o644)
		if oerr != nil {
			return oerr
		}
		defer func() {
			if cerr := out.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				os.Remove(outPath)
			}
		}()
		llog = llog.WithField("output", outPath)
		w = out
	}

	if c.ranged() {
		llog.WithFields(logrus.Fields{"offset": c.Offset, "length": c.Length}).Debug("extracting range")
		advise(f, true)
		return c.extract(g, form, path, f, w)
	}
	llog.Debug("decoding")
	advise(f, false)
	return decode(form, br, w, c.Single)
}

func (c *CatCmd) outputDir(path string) string {
	if c.Keep {
		return filepath.Dir(path)
	}
	return c.OutputDir
}

// extract copies the requested byte range without decoding the whole stream.
func (c *CatCmd) extract(g *Globals, form format, path string, f *os.File, w io.Writer) error {
	var ra io.ReaderAt
	var size int64
	switch form {
	case formatBzip2:
		ix, id, err := loadIndex(g, path, f, false)
		if err != nil {
			return err
		}
		r := ix.ReaderAt(f, id.String())
		ra, size = r, r.Size()
	case formatGzip:
		inf, err := f.Stat()
		if err != nil {
			return err
		}
		r, _, err := gzip.NewReaderAt(f, inf.Size())
		if err != nil {
			return err
		}
		ra, size = r, r.Size()
	default:
		return errors.Errorf("random access into %s is not supported", form)
	}

	if c.Offset > size {
		return errors.Errorf("--offset %d is past the end of %d decoded bytes", c.Offset, size)
	}
	n := size - c.Offset
	if c.Length >= 0 {
		n = min(n, c.Length)
	}
	_, err := io.Copy(w, io.NewSectionReader(ra, c.Offset, n))
	return err
}

// loadIndex fetches the block index of a bzip2 file from the cache, or builds and stores it.
func loadIndex(g *Globals, path string, f *os.File, rebuild bool) (blockindex.Index, fileid.ID, error) {
	id, err := fileid.Of(path)
	if err != nil {
		return blockindex.Index{}, id, err
	}
	if err := os.MkdirAll(g.CacheDir, 0o755); err != nil {
		return blockindex.Index{}, id, errors.Wrap(err, "unable to create cache directory")
	}
	store, err := blockindex.Open(g.CacheDir)
	if err != nil {
		return blockindex.Index{}, id, errors.Wrap(err, "unable to open index store")
	}
	defer store.Close()

	llog := logrus.WithFields(logrus.Fields{"path": path, "id": id})
	if !rebuild {
		ix, ok, err := store.Get(id)
		if err != nil {
			return blockindex.Index{}, id, errors.Wrap(err, "unable to read index store")
		}
		if ok {
			llog.Debug("index found")
			return ix, id, nil
		}
	}

	llog.Debug("building index")
	ix, err := blockindex.Build(bufio.NewReader(io.NewSectionReader(f, 0, 1<<62)))
	if err != nil {
		return blockindex.Index{}, id, err
	}
	if err := store.Put(id, ix); err != nil {
		return blockindex.Index{}, id, errors.Wrap(err, "unable to save index")
	}
	return ix, id, nil
}

// expandGlobs replaces each pattern with the files it matches.
// A path without glob characters is kept even if it does not exist, so that opening it reports the error.
func expandGlobs(patterns []string) ([]string, error) {
	var out []string
	for _, p := range patterns {
		if !strings.ContainsAny(p, "*?[{") {
			out = append(out, p)
			continue
		}
		matches, err := doublestar.FilepathGlob(p, doublestar.WithFilesOnly())
		if err != nil {
			return nil, errors.Wrapf(err, "bad pattern %q", p)
		}
		if len(matches) == 0 {
			return nil, errors.Errorf("no files match %q", p)
		}
		out = append(out, matches...)
	}
	return out, nil
}
