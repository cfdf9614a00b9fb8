// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package imgcodec

import (
	"errors"
	"fmt"
)

// ErrNeedMoreInput reports that a decoder ran out of bytes in the middle of a
// unit. It is not a failure: the caller feeds more data and repeats the call.
var ErrNeedMoreInput = errors.New("imgcodec: need more input")

// ErrorKind classifies a failure returned by a decoder.
type ErrorKind int

const (
	// KindDecode means the stream is malformed or unsupported.
	KindDecode ErrorKind = iota
	// KindFatal means a resource limit or a caller contract was violated.
	KindFatal
)

func (k ErrorKind) String() string {
	if k == KindFatal {
		return "fatal"
	}
	return "decode"
}

// CodecError represents an error that occurred while decoding an image.
// It includes contextual information about where the error occurred.
type CodecError struct {
	Op     string    // Operation that failed (e.g., "read header", "rle8")
	Format Format    // Source format being decoded
	Row    int       // Row being decoded, -1 if not row-specific
	Kind   ErrorKind // Decode or fatal
	Err    error     // Underlying error
}

func (e *CodecError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("imgcodec: %s %s at row %d: %v", e.Format, e.Op, e.Row, e.Err)
	}
	return fmt.Sprintf("imgcodec: %s %s: %v", e.Format, e.Op, e.Err)
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

// Common errors
var (
	// ErrUnsupportedFormat indicates no decoder accepted the stream
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrInvalidSignature indicates the magic bytes do not match the format
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrUnsupportedFeature indicates a valid but unimplemented variant
	ErrUnsupportedFeature = errors.New("unsupported feature")

	// ErrDimensionTooLarge indicates a width or height above the hard maximum
	ErrDimensionTooLarge = errors.New("image dimension too large")

	// ErrInvalidDimensions indicates a zero or negative width or height
	ErrInvalidDimensions = errors.New("invalid image dimensions")

	// ErrPaletteIndex indicates a pixel references a missing palette entry
	ErrPaletteIndex = errors.New("palette index out of range")

	// ErrRowOverrun indicates a run would write past the end of a row
	ErrRowOverrun = errors.New("run crosses row boundary")

	// ErrInvalidCode indicates an undecodable code word
	ErrInvalidCode = errors.New("invalid code")

	// ErrNotMonotonic indicates a fax changing element did not advance
	ErrNotMonotonic = errors.New("changing element is not monotonic")

	// ErrTruncated indicates the data ended where more was required
	ErrTruncated = errors.New("truncated data")

	// ErrOutOfRange indicates a seek outside the buffered input
	ErrOutOfRange = errors.New("position out of range")

	// ErrRewindUnavailable indicates the bytes needed to rewind were released
	ErrRewindUnavailable = errors.New("rewind data no longer buffered")

	// ErrBadParameter indicates a caller passed an invalid argument
	ErrBadParameter = errors.New("invalid parameter")

	// ErrLimitExceeded indicates a configured resource limit was reached
	ErrLimitExceeded = errors.New("resource limit exceeded")
)

// decodeError wraps err as a malformed-stream failure.
func decodeError(f Format, op string, err error) error {
	if err == nil {
		return nil
	}
	return &CodecError{Op: op, Format: f, Row: -1, Kind: KindDecode, Err: err}
}

// decodeRowError wraps err as a malformed-stream failure on a given row.
func decodeRowError(f Format, op string, row int, err error) error {
	if err == nil {
		return nil
	}
	return &CodecError{Op: op, Format: f, Row: row, Kind: KindDecode, Err: err}
}

// fatalError wraps err as a resource or contract failure.
func fatalError(f Format, op string, err error) error {
	if err == nil {
		return nil
	}
	return &CodecError{Op: op, Format: f, Row: -1, Kind: KindFatal, Err: err}
}

// IsNeedMoreInput reports whether err asks the caller to feed more data.
func IsNeedMoreInput(err error) bool {
	return errors.Is(err, ErrNeedMoreInput)
}

// IsDecodeError reports whether err describes a malformed stream.
func IsDecodeError(err error) bool {
	var ce *CodecError
	return errors.As(err, &ce) && ce.Kind == KindDecode
}

// IsFatal reports whether err describes a resource or contract failure.
func IsFatal(err error) bool {
	var ce *CodecError
	return errors.As(err, &ce) && ce.Kind == KindFatal
}
