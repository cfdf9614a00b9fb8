// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package imgcodec

import (
	"fmt"
	"io"
	"sync"
)

// ByteSource is the random-access input of a ProgressiveDecoder.
//
// Size reports the total length of the stream. ReadAt follows io.ReaderAt,
// except that a source still receiving data returns ErrNeedMoreInput,
// together with the bytes that have arrived, when the range is not complete
// yet.
type ByteSource interface {
	ReadAt(p []byte, off int64) (int, error)
	Size() int64
}

// MemorySource is a ByteSource over bytes held in memory. A source created
// with NewStreamingSource starts empty and is filled with Append while a
// decode is in progress.
type MemorySource struct {
	mu    sync.RWMutex
	buf   []byte
	total int64
}

// NewMemorySource returns a complete source over p.
func NewMemorySource(p []byte) *MemorySource {
	return &MemorySource{buf: p, total: int64(len(p))}
}

// NewStreamingSource returns an empty source that will hold total bytes.
func NewStreamingSource(total int64) *MemorySource {
	return &MemorySource{total: total}
}

// Append adds the next bytes of the stream.
func (m *MemorySource) Append(p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int64(len(m.buf))+int64(len(p)) > m.total {
		return fmt.Errorf("append %d bytes to %d of %d: %w", len(p), len(m.buf), m.total, ErrOutOfRange)
	}
	m.buf = append(m.buf, p...)
	return nil
}

// Available returns how many bytes have arrived.
func (m *MemorySource) Available() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.buf))
}

// Size returns the total length of the stream.
func (m *MemorySource) Size() int64 { return m.total }

// ReadAt implements ByteSource.
func (m *MemorySource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("read at %d: %w", off, ErrOutOfRange)
	}
	if off >= m.total {
		return 0, io.EOF
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int
	if off < int64(len(m.buf)) {
		n = copy(p, m.buf[off:])
	}
	switch {
	case n == len(p):
		return n, nil
	case int64(len(m.buf)) < m.total:
		return n, ErrNeedMoreInput
	default:
		return n, io.EOF
	}
}

// ReaderAtSource adapts an io.ReaderAt of known size, such as an *os.File.
type ReaderAtSource struct {
	r    io.ReaderAt
	size int64
}

// NewReaderAtSource returns a source reading size bytes from r.
func NewReaderAtSource(r io.ReaderAt, size int64) *ReaderAtSource {
	return &ReaderAtSource{r: r, size: size}
}

// Size implements ByteSource.
func (s *ReaderAtSource) Size() int64 { return s.size }

// ReadAt implements ByteSource.
func (s *ReaderAtSource) ReadAt(p []byte, off int64) (int, error) {
	if off >= s.size {
		return 0, io.EOF
	}
	if rem := s.size - off; int64(len(p)) > rem {
		p = p[:rem]
	}
	n, err := s.r.ReadAt(p, off)
	if err == nil && off+int64(n) == s.size {
		err = io.EOF
	}
	return n, err
}
