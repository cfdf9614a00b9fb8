// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package imgcodec

import (
	"math"
	"math/bits"
)

const maxInt = math.MaxInt

// MaxDimension is the hard cap on source width and height.
const MaxDimension = 65535

// DecodeLimits defines resource limits for a decode session.
type DecodeLimits struct {
	// MaxWidth and MaxHeight bound the source dimensions (0 = MaxDimension)
	MaxWidth  int
	MaxHeight int

	// MaxPixels bounds width*height of the source (0 = no limit)
	MaxPixels int64

	// MaxBufferedBytes bounds the bytes an adapter may hold while waiting for
	// the complete stream (0 = no limit)
	MaxBufferedBytes int64
}

// DefaultDecodeLimits returns sensible default limits
func DefaultDecodeLimits() DecodeLimits {
	return DecodeLimits{
		MaxWidth:         MaxDimension,
		MaxHeight:        MaxDimension,
		MaxPixels:        1 << 28,           // 256 megapixels
		MaxBufferedBytes: 512 * 1024 * 1024, // 512MB
	}
}

// checkDimensions validates a source size against the limits.
func (l DecodeLimits) checkDimensions(width, height int) error {
	if width <= 0 || height <= 0 {
		return ErrInvalidDimensions
	}
	maxW, maxH := l.MaxWidth, l.MaxHeight
	if maxW <= 0 || maxW > MaxDimension {
		maxW = MaxDimension
	}
	if maxH <= 0 || maxH > MaxDimension {
		maxH = MaxDimension
	}
	if width > maxW || height > maxH {
		return ErrDimensionTooLarge
	}
	if l.MaxPixels > 0 {
		n, ok := mulInt(width, height)
		if !ok || int64(n) > l.MaxPixels {
			return ErrLimitExceeded
		}
	}
	return nil
}

// checkBuffered validates the size of a buffered stream.
func (l DecodeLimits) checkBuffered(n int64) error {
	if l.MaxBufferedBytes > 0 && n > l.MaxBufferedBytes {
		return ErrLimitExceeded
	}
	return nil
}

// mulInt returns a*b for non-negative operands and whether it fit in an int.
func mulInt(a, b int) (int, bool) {
	if a < 0 || b < 0 {
		return 0, false
	}
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi != 0 || lo > uint64(maxInt) {
		return 0, false
	}
	return int(lo), true
}

// bufferSize returns rows*pitch for an allocation, or an error on overflow.
func bufferSize(pitch, rows int) (int, error) {
	n, ok := mulInt(pitch, rows)
	if !ok {
		return 0, ErrLimitExceeded
	}
	return n, nil
}
