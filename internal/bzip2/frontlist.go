// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package bzip2

// FrontList is a move-to-front permutation of the 256 byte values.
type FrontList struct {
	list [256]byte
}

// NewFrontList returns the identity permutation.
func NewFrontList() *FrontList {
	f := new(FrontList)
	for i := range f.list {
		f.list[i] = byte(i)
	}
	return f
}

// PromoteIndex moves the value at position i to the front and returns it.
func (f *FrontList) PromoteIndex(i int) byte {
	v := f.list[i]
	copy(f.list[1:i+1], f.list[:i])
	f.list[0] = v
	return v
}

// PromoteValue moves v to the front and returns the position it was found at.
func (f *FrontList) PromoteValue(v byte) int {
	i := 0
	for f.list[i] != v {
		i++
	}
	copy(f.list[1:i+1], f.list[:i])
	f.list[0] = v
	return i
}
