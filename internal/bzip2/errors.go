// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package bzip2

import (
	"fmt"
)

// Kind classifies a decoding failure.
type Kind int

const (
	TruncatedInput    Kind = iota + 1 // input ended inside a required field
	InvalidHeader                     // bad magic or block size digit
	CorruptBlock                      // structural violation inside a block
	BlockCRCMismatch                  // block decoded but its checksum is wrong
	StreamCRCMismatch                 // all blocks decoded but the combined checksum is wrong
	StreamFormatError                 // unrecognised marker between blocks
)

func (k Kind) String() string {
	switch k {
	case TruncatedInput:
		return "truncated input"
	case InvalidHeader:
		return "invalid header"
	case CorruptBlock:
		return "corrupt block"
	case BlockCRCMismatch:
		return "block CRC mismatch"
	case StreamCRCMismatch:
		return "stream CRC mismatch"
	case StreamFormatError:
		return "stream format error"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is returned for every decoding failure.
// Block is the zero-based index of the block being decoded, or -1.
type Error struct {
	Kind  Kind
	Block int
	Err   error
}

func (e *Error) Error() string {
	s := "bzip2: "
	if e.Block >= 0 {
		s += fmt.Sprintf("block %d: ", e.Block)
	}
	s += e.Kind.String()
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind,
// so that errors.Is(err, ErrCorruptBlock) works for any block.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrTruncatedInput    = &Error{Kind: TruncatedInput, Block: -1}
	ErrInvalidHeader     = &Error{Kind: InvalidHeader, Block: -1}
	ErrCorruptBlock      = &Error{Kind: CorruptBlock, Block: -1}
	ErrBlockCRCMismatch  = &Error{Kind: BlockCRCMismatch, Block: -1}
	ErrStreamCRCMismatch = &Error{Kind: StreamCRCMismatch, Block: -1}
	ErrStreamFormat      = &Error{Kind: StreamFormatError, Block: -1}
)

func errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Block: -1, Err: fmt.Errorf(format, args...)}
}

// inBlock stamps a block index onto errors that do not yet carry one.
func inBlock(err error, block int) error {
	if e, ok := err.(*Error); ok && e.Block < 0 {
		e.Block = block
	}
	return err
}
