// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

// biggest bzip2 block before the final run-length stage, which can only
// lengthen it
const maxBlockBytes = 900000

// cacheBlocks converts a memory budget in MiB to a count of cached blocks,
// assuming every block is as large as bzip2 allows.
func cacheBlocks(mb int) int {
	return max(1, mb*1024*1024/maxBlockBytes)
}
