// Copyright (c) Elliot Nunn
// Licensed under the MIT license

//go:build linux

package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// advise tells the kernel how a file will be read, to tune readahead.
func advise(f *os.File, random bool) {
	advice := unix.FADV_SEQUENTIAL
	if random {
		advice = unix.FADV_RANDOM
	}
	if err := unix.Fadvise(int(f.Fd()), 0, 0, advice); err != nil {
		logrus.WithError(err).WithField("path", f.Name()).Debug("fadvise failed")
	}
}
