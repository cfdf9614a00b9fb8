// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package imgcodec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInputCursorRead(t *testing.T) {
	c := NewInputCursor([]byte{1, 2, 3})

	p, err := c.Read(2)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2}, p)
	require.Equal(t, 1, c.Unread())

	_, err = c.Read(2)
	require.ErrorIs(t, err, ErrNeedMoreInput)
	require.Equal(t, 2, c.Pos(), "failed read must not move the cursor")

	c.Feed([]byte{4})
	p, err = c.Read(2)
	require.NoError(t, err)
	require.Equal(t, []byte{3, 4}, p)
	require.Equal(t, 0, c.Unread())
}

func TestInputCursorLittleEndian(t *testing.T) {
	c := NewInputCursor([]byte{0x34, 0x12, 0x78, 0x56, 0x34, 0x12, 0xff})

	v16, err := c.ReadUint16LE()
	require.NoError(t, err)
	require.Equal(t, uint16(0x1234), v16)

	v32, err := c.ReadUint32LE()
	require.NoError(t, err)
	require.Equal(t, uint32(0x12345678), v32)

	_, err = c.ReadUint16LE()
	require.ErrorIs(t, err, ErrNeedMoreInput)

	b, err := c.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte(0xff), b)
}

func TestInputCursorSeek(t *testing.T) {
	c := NewInputCursor([]byte{1, 2, 3, 4})

	require.NoError(t, c.Seek(4))
	require.Equal(t, 0, c.Unread())
	require.ErrorIs(t, c.Seek(5), ErrOutOfRange)
	require.ErrorIs(t, c.Seek(-1), ErrOutOfRange)
	require.NoError(t, c.Seek(1))

	p, err := c.Peek(2)
	require.NoError(t, err)
	require.Equal(t, []byte{2, 3}, p)
	require.Equal(t, 1, c.Pos())
}

func TestInputCursorConsume(t *testing.T) {
	c := NewInputCursor([]byte{1, 2, 3, 4, 5})
	require.NoError(t, c.Skip(3))

	c.Consume(2)
	require.Equal(t, 3, c.Size())
	require.Equal(t, 1, c.Pos())
	require.Equal(t, int64(3), c.Offset())

	b, err := c.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte(4), b)

	c.Compact()
	require.Equal(t, 0, c.Pos())
	require.Equal(t, 1, c.Size())
	require.Equal(t, int64(4), c.Offset())

	require.ErrorIs(t, c.SeekOffset(2), ErrOutOfRange)
	require.ErrorIs(t, c.SeekOffset(9), ErrNeedMoreInput)
	require.NoError(t, c.SeekOffset(5))
	require.Equal(t, 0, c.Unread())
}

func TestInputCursorGrowCommit(t *testing.T) {
	c := NewInputCursor([]byte{9})
	region := c.Grow(4)
	require.Len(t, region, 4)
	n := copy(region, []byte{7, 8})
	c.Commit(n)

	require.Equal(t, 3, c.Size())
	p, err := c.Read(3)
	require.NoError(t, err)
	require.Equal(t, []byte{9, 7, 8}, p)
}

func TestInputCursorReset(t *testing.T) {
	c := NewInputCursor([]byte{1, 2, 3})
	require.NoError(t, c.Skip(1))
	c.Reset([]byte{5, 6})

	require.Equal(t, 0, c.Pos())
	require.Equal(t, int64(3), c.Offset())
	b, err := c.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte(5), b)
}
