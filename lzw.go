// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package imgcodec

import "io"

const (
	lzwMaxBits = 12
	lzwMaxCode = 1 << lzwMaxBits
	lzwNoCode  = -1
)

type lzwEntry struct {
	prefix uint16
	suffix byte
}

// LZWDecompressor is the variable-width LZW decoder used by GIF image data.
// Codes are packed least significant bit first. The decompressor keeps its
// bit buffer and any undelivered output between calls, so Decode can be
// called again after SetSource supplies the next sub-block or after the
// caller drains a full destination buffer.
type LZWDecompressor struct {
	codeExp   int
	colorEnd  int // literals must be below this
	clearCode int
	endCode   int

	codeSize int
	next     int
	old      int
	first    byte
	table    [lzwMaxCode]lzwEntry

	// stack holds the expansion of the last code in reverse order; the
	// undelivered tail of an expansion stays here until the next Decode.
	stack []byte

	src   []byte
	bits  uint32
	nbits int
}

// NewLZWDecompressor returns a decompressor for a palette of 2^(colorExp+1)
// entries and an LZW minimum code size of codeExp bits.
func NewLZWDecompressor(colorExp, codeExp int) (*LZWDecompressor, error) {
	if colorExp < 0 || colorExp > 7 || codeExp < 1 || codeExp >= lzwMaxBits {
		return nil, decodeError(FormatGIF, "lzw", ErrBadParameter)
	}
	l := &LZWDecompressor{
		codeExp:   codeExp,
		colorEnd:  2 << colorExp,
		clearCode: 1 << codeExp,
		endCode:   1<<codeExp + 1,
		stack:     make([]byte, 0, lzwMaxCode+1),
	}
	l.clearTable()
	return l, nil
}

func (l *LZWDecompressor) clearTable() {
	l.codeSize = l.codeExp + 1
	l.next = l.endCode + 1
	l.old = lzwNoCode
	clear(l.table[:])
	for i := 0; i < l.clearCode; i++ {
		l.table[i].suffix = byte(i)
	}
}

// Reset returns the decompressor to its initial state, dropping the code
// table, buffered bits, pending output and any unread source bytes.
func (l *LZWDecompressor) Reset() {
	l.clearTable()
	l.stack = l.stack[:0]
	l.src = nil
	l.bits = 0
	l.nbits = 0
}

// SetSource replaces the pending input with a copy of p. Bits left over from
// the previous source are kept, since codes straddle GIF sub-blocks.
func (l *LZWDecompressor) SetSource(p []byte) {
	l.src = append(l.src[:0:0], p...)
}

// Pending returns the number of decoded bytes waiting for a destination.
func (l *LZWDecompressor) Pending() int { return len(l.stack) }

// Decode writes decoded bytes into dst and returns how many it wrote.
//
// The error is nil once the end code has been read, io.ErrShortBuffer when
// dst filled up while output remained, ErrNeedMoreInput when the source ran
// dry, and a decode error for an invalid code stream.
func (l *LZWDecompressor) Decode(dst []byte) (int, error) {
	if len(dst) == 0 {
		return 0, io.ErrShortBuffer
	}
	n := 0
	if len(l.stack) > 0 {
		n = l.extract(dst)
		if len(l.stack) > 0 {
			return n, io.ErrShortBuffer
		}
	}

	for {
		for l.nbits < l.codeSize {
			if len(l.src) == 0 {
				return n, ErrNeedMoreInput
			}
			l.bits |= uint32(l.src[0]) << uint(l.nbits)
			l.src = l.src[1:]
			l.nbits += 8
		}
		code := int(l.bits & (1<<uint(l.codeSize) - 1))
		l.bits >>= uint(l.codeSize)
		l.nbits -= l.codeSize

		switch code {
		case l.clearCode:
			l.clearTable()
			continue
		case l.endCode:
			return n, nil
		}

		if l.old == lzwNoCode {
			if err := l.decodeString(code); err != nil {
				return n, err
			}
		} else {
			switch {
			case code == l.next && l.next < lzwMaxCode:
				l.addCode(l.old, l.first)
				if err := l.decodeString(code); err != nil {
					return n, err
				}
			case code >= l.next:
				return n, decodeError(FormatGIF, "lzw", ErrInvalidCode)
			default:
				if err := l.decodeString(code); err != nil {
					return n, err
				}
				l.addCode(l.old, l.first)
			}
		}
		l.old = code

		n += l.extract(dst[n:])
		if len(l.stack) > 0 {
			return n, io.ErrShortBuffer
		}
	}
}

// decodeString expands code onto the stack by walking its prefix chain.
func (l *LZWDecompressor) decodeString(code int) error {
	l.stack = l.stack[:0]
	for code >= l.clearCode {
		if code >= l.next {
			return decodeError(FormatGIF, "lzw", ErrInvalidCode)
		}
		e := l.table[code]
		if int(e.prefix) == code || len(l.stack) >= lzwMaxCode {
			return decodeError(FormatGIF, "lzw", ErrInvalidCode)
		}
		l.stack = append(l.stack, e.suffix)
		code = int(e.prefix)
	}
	if code >= l.colorEnd {
		return decodeError(FormatGIF, "lzw", ErrPaletteIndex)
	}
	l.stack = append(l.stack, byte(code))
	l.first = byte(code)
	return nil
}

func (l *LZWDecompressor) addCode(prefix int, suffix byte) {
	if l.next >= lzwMaxCode {
		return
	}
	l.table[l.next] = lzwEntry{prefix: uint16(prefix), suffix: suffix}
	l.next++
	if l.next < lzwMaxCode && l.next>>uint(l.codeSize) != 0 {
		l.codeSize++
	}
}

// extract moves as much of the stack as fits into dst, first byte first.
func (l *LZWDecompressor) extract(dst []byte) int {
	n := min(len(dst), len(l.stack))
	top := len(l.stack)
	for i := 0; i < n; i++ {
		dst[i] = l.stack[top-1-i]
	}
	l.stack = l.stack[:top-n]
	return n
}
