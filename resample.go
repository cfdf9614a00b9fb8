// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package imgcodec

import (
	"fmt"
	"math"
)

// Interpolation selects the filter used when the destination is larger
// than the source. Shrinking always uses a box filter.
type Interpolation int

const (
	InterpolateBilinear Interpolation = iota
	InterpolateNearest
)

func (i Interpolation) String() string {
	if i == InterpolateNearest {
		return "nearest"
	}
	return "bilinear"
}

// weightScale is the fixed point unit of a resampling weight.
const weightScale = 1 << 16

// pixelWeight lists the source samples one destination sample is made of:
// weights[i] applies to source index src+i. The weights add up to
// weightScale.
type pixelWeight struct {
	src     int
	weights []int32
}

// weightTable maps every destination index to its source window.
type weightTable struct {
	dstLen, srcLen int
	entries        []pixelWeight
}

func newWeightTable(dstLen, srcLen int, interp Interpolation) (*weightTable, error) {
	if dstLen <= 0 || srcLen <= 0 {
		return nil, fmt.Errorf("weight table %d to %d: %w", srcLen, dstLen, ErrInvalidDimensions)
	}
	t := &weightTable{
		dstLen:  dstLen,
		srcLen:  srcLen,
		entries: make([]pixelWeight, dstLen),
	}
	scale := float64(srcLen) / float64(dstLen)
	for d := range t.entries {
		switch {
		case dstLen <= srcLen:
			t.entries[d] = boxWeights(d, scale, srcLen)
		case interp == InterpolateNearest:
			s := min(int((float64(d)+0.5)*scale), srcLen-1)
			t.entries[d] = pixelWeight{src: s, weights: []int32{weightScale}}
		default:
			t.entries[d] = bilinearWeights(d, scale, srcLen)
		}
	}
	return t, nil
}

// boxWeights averages the source samples covered by destination sample d,
// each in proportion to its overlap.
func boxWeights(d int, scale float64, srcLen int) pixelWeight {
	lo := float64(d) * scale
	hi := lo + scale
	first := int(lo)
	last := min(int(math.Ceil(hi))-1, srcLen-1)

	w := make([]int32, 0, last-first+1)
	sum := int32(0)
	for s := first; s <= last; s++ {
		overlap := math.Min(hi, float64(s+1)) - math.Max(lo, float64(s))
		v := int32(math.Round(overlap / scale * weightScale))
		w = append(w, v)
		sum += v
	}
	w[len(w)-1] += weightScale - sum
	for len(w) > 1 && w[len(w)-1] <= 0 {
		w[len(w)-2] += w[len(w)-1]
		w = w[:len(w)-1]
	}
	for len(w) > 1 && w[0] <= 0 {
		w[1] += w[0]
		w = w[1:]
		first++
	}
	return pixelWeight{src: first, weights: w}
}

// bilinearWeights blends the two source samples around the centre of
// destination sample d.
func bilinearWeights(d int, scale float64, srcLen int) pixelWeight {
	pos := math.Max((float64(d)+0.5)*scale-0.5, 0)
	s := int(pos)
	if s >= srcLen-1 {
		return pixelWeight{src: srcLen - 1, weights: []int32{weightScale}}
	}
	w1 := int32(math.Round((pos - float64(s)) * weightScale))
	switch w1 {
	case 0:
		return pixelWeight{src: s, weights: []int32{weightScale}}
	case weightScale:
		return pixelWeight{src: s + 1, weights: []int32{weightScale}}
	}
	return pixelWeight{src: s, weights: []int32{weightScale - w1, w1}}
}

// rowContribution is one destination row fed by a source row.
type rowContribution struct {
	dst    int
	weight int32
}

// invert lists, for every source index, the destination indices it feeds,
// and counts how many source indices each destination index waits for.
func (t *weightTable) invert() (bySrc [][]rowContribution, need []int) {
	bySrc = make([][]rowContribution, t.srcLen)
	need = make([]int, t.dstLen)
	for d, e := range t.entries {
		for i, w := range e.weights {
			if w == 0 {
				continue
			}
			s := e.src + i
			bySrc[s] = append(bySrc[s], rowContribution{dst: d, weight: w})
			need[d]++
		}
	}
	return bySrc, need
}

func clampByte(v int32) byte {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return byte(v)
}

// Kernels selected once from the CPU features.
var (
	resampleRow   = resampleRowGeneric
	accumulateRow = accumulateRowGeneric
)

func init() {
	if hasWideVectors() {
		resampleRow = resampleRowUnrolled
		accumulateRow = accumulateRowUnrolled
	}
}

// resampleRowGeneric filters one row of ch-channel samples horizontally.
func resampleRowGeneric(dst, src []byte, t *weightTable, ch int) {
	for d, e := range t.entries {
		base := e.src * ch
		for c := 0; c < ch; c++ {
			var sum int32
			for i, w := range e.weights {
				sum += w * int32(src[base+i*ch+c])
			}
			dst[d*ch+c] = clampByte((sum + weightScale/2) >> 16)
		}
	}
}

// resampleRowUnrolled is resampleRowGeneric with the channel loop unrolled
// for the common 1, 3 and 4 channel rows.
func resampleRowUnrolled(dst, src []byte, t *weightTable, ch int) {
	switch ch {
	case 1:
		for d, e := range t.entries {
			s := src[e.src : e.src+len(e.weights)]
			var sum int32
			for i, w := range e.weights {
				sum += w * int32(s[i])
			}
			dst[d] = clampByte((sum + weightScale/2) >> 16)
		}
	case 3, 4:
		for d, e := range t.entries {
			s := src[e.src*ch : (e.src+len(e.weights))*ch]
			var s0, s1, s2, s3 int32
			for i, w := range e.weights {
				p := s[i*ch : i*ch+ch]
				s0 += w * int32(p[0])
				s1 += w * int32(p[1])
				s2 += w * int32(p[2])
				if ch == 4 {
					s3 += w * int32(p[3])
				}
			}
			o := dst[d*ch : d*ch+ch]
			o[0] = clampByte((s0 + weightScale/2) >> 16)
			o[1] = clampByte((s1 + weightScale/2) >> 16)
			o[2] = clampByte((s2 + weightScale/2) >> 16)
			if ch == 4 {
				o[3] = clampByte((s3 + weightScale/2) >> 16)
			}
		}
	default:
		resampleRowGeneric(dst, src, t, ch)
	}
}

// accumulateRowGeneric adds w times row to acc.
func accumulateRowGeneric(acc []int32, row []byte, w int32) {
	for i, v := range row {
		acc[i] += w * int32(v)
	}
}

func accumulateRowUnrolled(acc []int32, row []byte, w int32) {
	n := len(row) &^ 3
	acc = acc[:len(row)]
	for i := 0; i < n; i += 4 {
		a := acc[i : i+4 : i+4]
		r := row[i : i+4 : i+4]
		a[0] += w * int32(r[0])
		a[1] += w * int32(r[1])
		a[2] += w * int32(r[2])
		a[3] += w * int32(r[3])
	}
	for i := n; i < len(row); i++ {
		acc[i] += w * int32(row[i])
	}
}

// finishRow scales an accumulated row back to bytes.
func finishRow(dst []byte, acc []int32) {
	for i, v := range acc[:len(dst)] {
		dst[i] = clampByte((v + weightScale/2) >> 16)
	}
}
