// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package imgcodec

import (
	"math/bits"
	"sync"
)

// BufferPool is a size-bucketed pool of byte slices used for the chunks
// a ProgressiveDecoder copies out of its ByteSource.
//
// Size buckets: 1KB, 2KB, 4KB, 8KB, 16KB, 32KB, 64KB
type BufferPool struct {
	pools [7]*sync.Pool
	sizes [7]int
}

var defaultBufferPool = NewBufferPool()

// NewBufferPool creates a pool with 7 size buckets.
func NewBufferPool() *BufferPool {
	bp := &BufferPool{}
	for i := range bp.pools {
		size := 1024 << i
		bp.sizes[i] = size
		bp.pools[i] = &sync.Pool{
			New: func() interface{} {
				buf := make([]byte, size)
				return &buf
			},
		}
	}
	return bp
}

// Get returns a slice of length size. Requests above the largest bucket
// are allocated directly.
func (bp *BufferPool) Get(size int) []byte {
	if size <= 0 {
		size = 1
	}
	idx := bp.bucketIndex(size)
	if idx >= len(bp.pools) {
		return make([]byte, size)
	}
	buf := *bp.pools[idx].Get().(*[]byte)
	return buf[:size]
}

// Put returns a slice obtained from Get. Slices whose capacity is not a
// bucket size are left to the GC.
func (bp *BufferPool) Put(buf []byte) {
	c := cap(buf)
	idx := bp.bucketIndex(c)
	if idx < len(bp.pools) && c == bp.sizes[idx] {
		buf = buf[:c]
		bp.pools[idx].Put(&buf)
	}
}

// bucketIndex returns the smallest bucket holding size bytes, or
// len(pools) when none does.
func (bp *BufferPool) bucketIndex(size int) int {
	if size <= 1024 {
		return 0
	}
	if size > 64<<10 {
		return len(bp.pools)
	}
	// sizes[i] = 1024 * 2^i
	return bits.Len(uint(size-1)) - 10
}
