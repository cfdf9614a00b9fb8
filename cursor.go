// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package imgcodec

// InputCursor is a growable byte buffer with a read position. Every format
// decoder consumes its input through one.
//
// Slices returned by Read and Peek alias the internal buffer and are only
// valid until the next Feed, Grow, Reset or Consume.
type InputCursor struct {
	buf  []byte
	pos  int
	base int64 // stream offset of buf[0]
}

// NewInputCursor returns a cursor holding a copy of p.
func NewInputCursor(p []byte) *InputCursor {
	c := &InputCursor{}
	c.Feed(p)
	return c
}

// Feed appends p to the buffered input.
func (c *InputCursor) Feed(p []byte) {
	c.buf = append(c.buf, p...)
}

// Reset replaces the buffered input with a copy of p and starts reading at
// its first byte. The stream offset continues from the previous end.
func (c *InputCursor) Reset(p []byte) {
	c.base += int64(len(c.buf))
	c.buf = append(c.buf[:0], p...)
	c.pos = 0
}

// Grow makes room for n more bytes and returns the writable region. The
// caller fills a prefix of it and calls Commit with the number of bytes
// written.
func (c *InputCursor) Grow(n int) []byte {
	if n <= 0 {
		return nil
	}
	size := len(c.buf)
	if cap(c.buf)-size < n {
		grown := make([]byte, size, size+n+size/2)
		copy(grown, c.buf)
		c.buf = grown
	}
	return c.buf[size : size+n]
}

// Commit extends the buffered input by n bytes previously written into the
// region returned by Grow.
func (c *InputCursor) Commit(n int) {
	if n <= 0 {
		return
	}
	if len(c.buf)+n > cap(c.buf) {
		n = cap(c.buf) - len(c.buf)
	}
	c.buf = c.buf[:len(c.buf)+n]
}

// Size returns the number of buffered bytes.
func (c *InputCursor) Size() int { return len(c.buf) }

// Pos returns the read position relative to the buffer start.
func (c *InputCursor) Pos() int { return c.pos }

// Offset returns the absolute stream offset of the read position.
func (c *InputCursor) Offset() int64 { return c.base + int64(c.pos) }

// Start returns the stream offset of the first buffered byte.
func (c *InputCursor) Start() int64 { return c.base }

// Unread returns the number of buffered bytes not yet read.
func (c *InputCursor) Unread() int { return len(c.buf) - c.pos }

// Read returns the next n bytes and advances past them. It returns
// ErrNeedMoreInput without moving when fewer than n bytes are buffered.
func (c *InputCursor) Read(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrBadParameter
	}
	if c.Unread() < n {
		return nil, ErrNeedMoreInput
	}
	p := c.buf[c.pos : c.pos+n]
	c.pos += n
	return p, nil
}

// Peek is like Read but does not advance.
func (c *InputCursor) Peek(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrBadParameter
	}
	if c.Unread() < n {
		return nil, ErrNeedMoreInput
	}
	return c.buf[c.pos : c.pos+n], nil
}

// Skip advances the read position by n bytes.
func (c *InputCursor) Skip(n int) error {
	_, err := c.Read(n)
	return err
}

// ReadByte reads one byte.
func (c *InputCursor) ReadByte() (byte, error) {
	if c.pos >= len(c.buf) {
		return 0, ErrNeedMoreInput
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

// ReadUint16LE reads a little-endian 16-bit value.
func (c *InputCursor) ReadUint16LE() (uint16, error) {
	p, err := c.Read(2)
	if err != nil {
		return 0, err
	}
	return uint16(p[0]) | uint16(p[1])<<8, nil
}

// ReadUint32LE reads a little-endian 32-bit value.
func (c *InputCursor) ReadUint32LE() (uint32, error) {
	p, err := c.Read(4)
	if err != nil {
		return 0, err
	}
	return le32(p), nil
}

// Seek moves the read position to pos, relative to the buffer start.
func (c *InputCursor) Seek(pos int) error {
	if pos < 0 || pos > len(c.buf) {
		return ErrOutOfRange
	}
	c.pos = pos
	return nil
}

// SeekOffset moves the read position to an absolute stream offset. Offsets
// beyond the buffered end report ErrNeedMoreInput; offsets already consumed
// report ErrOutOfRange.
func (c *InputCursor) SeekOffset(off int64) error {
	if off < c.base {
		return ErrOutOfRange
	}
	rel := off - c.base
	if rel > int64(len(c.buf)) {
		return ErrNeedMoreInput
	}
	c.pos = int(rel)
	return nil
}

// Consume drops the first n buffered bytes and shifts the remainder to offset
// zero. The read position moves back by the same amount, stopping at zero.
func (c *InputCursor) Consume(n int) {
	if n <= 0 {
		return
	}
	if n > len(c.buf) {
		n = len(c.buf)
	}
	rest := copy(c.buf, c.buf[n:])
	c.buf = c.buf[:rest]
	c.base += int64(n)
	c.pos -= n
	if c.pos < 0 {
		c.pos = 0
	}
}

// Compact releases every byte before the read position.
func (c *InputCursor) Compact() {
	c.Consume(c.pos)
}

func le16(p []byte) uint16 {
	return uint16(p[0]) | uint16(p[1])<<8
}

func le32(p []byte) uint32 {
	return uint32(p[0]) | uint32(p[1])<<8 | uint32(p[2])<<16 | uint32(p[3])<<24
}
