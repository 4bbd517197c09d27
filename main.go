// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Command streamcat decompresses bzip2, gzip, xz and FLAC files.
package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/elliotnunn/streamcat/internal/decompressioncache"
)

// Replaced in tests
var (
	stdin  io.Reader = os.Stdin
	stdout io.Writer = os.Stdout
)

func main() {
	// Attempt to load .env
	_ = godotenv.Load(".env")

	cli := &CLI{}
	parser, err := newParser(cli)
	if err != nil {
		panic(err)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	setupLogging(cli.Debug)
	if err := cli.finish(); err != nil {
		logrus.Fatal(err)
	}
	logrus.WithFields(logrus.Fields{
		"cacheDir": cli.CacheDir,
		"cacheMB":  cli.CacheMB,
		"version":  VERSION,
	}).Debug("settings")
	decompressioncache.SetCapacity(cacheBlocks(cli.CacheMB))

	if err := ctx.Run(&cli.Globals); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

func setupLogging(debug bool) {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	level := slog.LevelWarn
	if debug {
		logrus.SetLevel(logrus.DebugLevel)
		level = slog.LevelDebug
	}
	// the cache and index packages log with slog
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
