// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package imgcodec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// AsyncSource is a ByteSource filled from an io.Reader, such as a network
// response body, by a background goroutine. A decoder reading it gets
// ErrNeedMoreInput for bytes that have not arrived; Wait blocks until more
// do.
type AsyncSource struct {
	mem *MemorySource

	mu       sync.Mutex
	seen     int64 // bytes available at the last read
	err      error
	finished bool
	notify   chan struct{} // closed on every arrival
	done     chan struct{}
}

// NewAsyncSource starts copying size bytes from r in chunks of at most
// chunk bytes (0 = DefaultChunkSize). Copying stops early when ctx is done.
func NewAsyncSource(ctx context.Context, r io.Reader, size int64, chunk int) *AsyncSource {
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	s := &AsyncSource{
		mem:    NewStreamingSource(size),
		notify: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.fill(ctx, r, chunk)
	return s
}

func (s *AsyncSource) fill(ctx context.Context, r io.Reader, chunk int) {
	defer close(s.done)
	buf := defaultBufferPool.Get(chunk)
	defer defaultBufferPool.Put(buf)

	var err error
	for err == nil && s.mem.Available() < s.mem.Size() {
		if cerr := ctx.Err(); cerr != nil {
			err = cerr
			break
		}
		want := min(int64(len(buf)), s.mem.Size()-s.mem.Available())
		n, rerr := r.Read(buf[:want])
		if n > 0 {
			if aerr := s.mem.Append(buf[:n]); aerr != nil {
				err = aerr
				break
			}
			s.signal(false, nil)
		}
		switch {
		case rerr == nil:
		case errors.Is(rerr, io.EOF):
			if s.mem.Available() < s.mem.Size() {
				err = fmt.Errorf("stream ended at %d of %d bytes: %w", s.mem.Available(), s.mem.Size(), ErrTruncated)
			}
			if err == nil {
				err = io.EOF
			}
		default:
			err = rerr
		}
	}
	if errors.Is(err, io.EOF) {
		err = nil
	}
	s.signal(true, err)
}

// signal wakes waiters. The final call records how reading ended.
func (s *AsyncSource) signal(last bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	close(s.notify)
	if last {
		s.finished, s.err = true, err
		return
	}
	s.notify = make(chan struct{})
}

// Size implements ByteSource.
func (s *AsyncSource) Size() int64 { return s.mem.Size() }

// Available returns how many bytes have arrived.
func (s *AsyncSource) Available() int64 { return s.mem.Available() }

// ReadAt implements ByteSource. Once the reader has failed, a read that
// needs the missing bytes returns the reader's error.
func (s *AsyncSource) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	s.seen = s.mem.Available()
	s.mu.Unlock()

	n, err := s.mem.ReadAt(p, off)
	if IsNeedMoreInput(err) {
		if rerr := s.Err(); rerr != nil {
			return n, rerr
		}
	}
	return n, err
}

// Wait blocks until bytes arrive that the last ReadAt did not see, the
// reader finishes, or ctx is done.
func (s *AsyncSource) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.finished || s.mem.Available() > s.seen {
			s.mu.Unlock()
			return nil
		}
		ch := s.notify
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Done is closed when the background copy has stopped.
func (s *AsyncSource) Done() <-chan struct{} { return s.done }

// Err returns why the copy stopped early, or nil.
func (s *AsyncSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// DecodeAsync drives p over src until the destination is complete,
// waiting for input whenever the decoder runs out.
func DecodeAsync(ctx context.Context, p *ProgressiveDecoder, src *AsyncSource, hint Format, dst *Bitmap, opts DecodeOptions, sink RowSink) error {
	for {
		status, err := p.LoadImageInfo(src, hint)
		if err != nil {
			return err
		}
		if status == StatusReady {
			break
		}
		if err := src.Wait(ctx); err != nil {
			return err
		}
	}
	if err := p.StartDecode(dst, opts, sink); err != nil {
		return err
	}
	for {
		status, err := p.ContinueDecode()
		if err != nil {
			return err
		}
		if status == StatusFinished {
			return nil
		}
		if err := src.Wait(ctx); err != nil {
			return err
		}
	}
}
