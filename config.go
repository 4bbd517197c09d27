// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

const (
	EnvVarPrefix = "STREAMCAT"

	DefaultCacheMB = 1024
	MaxCacheMB     = 1 << 20
)

// VERSION gets set during build
var VERSION = "0.0.0"

// Globals are the flags shared by every command.
type Globals struct {
	Debug    bool   `help:"Log debugging detail" short:"d"`
	Config   string `help:"TOML file of defaults (default: $XDG_CONFIG_HOME/streamcat/config.toml)" type:"path" placeholder:"FILE"`
	CacheDir string `help:"Directory for block indexes (default: $XDG_CACHE_HOME/streamcat)" type:"path"`
	CacheMB  int    `name:"cache-mb" help:"Memory for decoded blocks, in MiB (default: 1024)"`

	Version kong.VersionFlag `help:"Show version and exit" short:"v" env:"-"`

	file fileConfig
}

// fileConfig is the optional TOML file. Flags and environment variables win over it.
type fileConfig struct {
	CacheDir  string `toml:"cache_dir"`
	CacheMB   int    `toml:"cache_mb"`
	OutputDir string `toml:"output_dir"`
}

type CLI struct {
	Globals

	Cat   CatCmd   `cmd:"" default:"withargs" help:"Decompress to standard output or to files"`
	Crc   CrcCmd   `cmd:"" help:"Print the CRC-32 of each input"`
	Index IndexCmd `cmd:"" help:"Print the block index of a bzip2 file, building it if needed"`
}

func newParser(cli *CLI, opts ...kong.Option) (*kong.Kong, error) {
	opts = append([]kong.Option{
		kong.Name("streamcat"),
		kong.Description("Decompress bzip2, gzip, xz and FLAC streams, with random access into bzip2 and gzip"),
		kong.UsageOnError(),
		kong.DefaultEnvars(EnvVarPrefix),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
		kong.Vars{
			"version": VERSION,
		},
	}, opts...)
	return kong.New(cli, opts...)
}

// finish merges the config file into the flags and fills in defaults.
func (g *Globals) finish() error {
	path := g.Config
	if path == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			path = filepath.Join(dir, "streamcat", "config.toml")
		}
	}
	if path != "" {
		fc, err := readConfigFile(path)
		if err != nil && (g.Config != "" || !errors.Is(err, os.ErrNotExist)) {
			return errors.Wrap(err, "error reading config file")
		}
		g.file = fc
	}

	if g.CacheDir == "" {
		g.CacheDir = g.file.CacheDir
	}
	if g.CacheDir == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			return errors.Wrap(err, "no --cache-dir and no user cache directory")
		}
		g.CacheDir = filepath.Join(dir, "streamcat")
	}

	if g.CacheMB == 0 {
		g.CacheMB = g.file.CacheMB
	}
	if g.CacheMB == 0 {
		g.CacheMB = DefaultCacheMB
	}
	if g.CacheMB < 0 || g.CacheMB > MaxCacheMB {
		return errors.Errorf("--cache-mb %d is out of range", g.CacheMB)
	}
	return nil
}

func readConfigFile(path string) (fileConfig, error) {
	var fc fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fc, errors.Wrapf(err, "error parsing %s", path)
	}
	return fc, nil
}
