// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package imgcodec

import (
	"sync"
)

// ===================== Accumulator Pool =====================
// Destination rows being built by the vertical filter hold 32 bit sums.
// Only a few rows are open at once, so they are recycled between rows
// and between decodes.

var accumulatorPool = sync.Pool{
	New: func() interface{} {
		s := make([]int32, 0, 1024)
		return &s
	},
}

// getAccumulator returns a zeroed accumulator of n sums.
func getAccumulator(n int) []int32 {
	p := accumulatorPool.Get().(*[]int32)
	s := *p
	if cap(s) < n {
		return make([]int32, n)
	}
	s = s[:n]
	clear(s)
	return s
}

// putAccumulator returns an accumulator to the pool.
func putAccumulator(s []int32) {
	if s == nil || cap(s) > 1<<20 {
		return
	}
	s = s[:0]
	accumulatorPool.Put(&s)
}

// ===================== Row Buffer Pool =====================

var rowPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, 0, 4096)
		return &b
	},
}

// getRow returns a zeroed scratch row of n bytes.
func getRow(n int) []byte {
	p := rowPool.Get().(*[]byte)
	b := *p
	if cap(b) < n {
		return make([]byte, n)
	}
	b = b[:n]
	clear(b)
	return b
}

func putRow(b []byte) {
	if b == nil || cap(b) > 1<<22 {
		return
	}
	b = b[:0]
	rowPool.Put(&b)
}
