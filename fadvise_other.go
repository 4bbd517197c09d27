// Copyright (c) Elliot Nunn
// Licensed under the MIT license

//go:build !linux

package main

import "os"

func advise(f *os.File, random bool) {}
