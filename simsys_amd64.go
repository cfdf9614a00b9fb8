// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build amd64
// +build amd64

package imgcodec

import "golang.org/x/sys/cpu"

// hasWideVectors returns true if the CPU supports AVX2 instructions.
func hasWideVectors() bool {
	return cpu.X86.HasAVX2
}
