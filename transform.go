// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package imgcodec

import "fmt"

// transformMethod converts source samples into the working channels that
// are resampled. Working rows are gray (1 channel), B G R (3) or B G R A (4).
type transformMethod int

const (
	transformIndexedGray transformMethod = iota
	transformIndexedRGB
	transformIndexedRGBA
	transformGray1
	transformGray8
	transformBGR
	transformBGRA
	transformCMYK
	transformBGRToGray
	transformCMYKToGray
)

var transformNames = [...]string{
	transformIndexedGray: "indexed-gray",
	transformIndexedRGB:  "indexed-rgb",
	transformIndexedRGBA: "indexed-rgba",
	transformGray1:       "gray1",
	transformGray8:       "gray8",
	transformBGR:         "bgr",
	transformBGRA:        "bgra",
	transformCMYK:        "cmyk",
	transformBGRToGray:   "bgr-gray",
	transformCMYKToGray:  "cmyk-gray",
}

func (m transformMethod) String() string { return transformNames[m] }

// channels returns the width of a working pixel.
func (m transformMethod) channels() int {
	switch m {
	case transformIndexedRGB, transformBGR, transformCMYK:
		return 3
	case transformIndexedRGBA, transformBGRA:
		return 4
	}
	return 1
}

// transformTable holds the method for each direct-color layout, for color
// and for gray destinations. Indexed sources depend on their palette and are
// resolved in newTransform.
var transformTable = map[SampleLayout][2]transformMethod{
	LayoutGray1: {transformGray1, transformGray1},
	LayoutGray8: {transformGray8, transformGray8},
	LayoutBGR:   {transformBGR, transformBGRToGray},
	LayoutBGRX:  {transformBGR, transformBGRToGray},
	LayoutBGRA:  {transformBGRA, transformBGRA},
	LayoutCMYK:  {transformCMYK, transformCMYKToGray},
}

// transform unpacks source scanlines into working rows.
type transform struct {
	method transformMethod
	bpp    int // source bytes per pixel, 0 for 1 bit rows
	gray   [256]byte
	color  [256][4]byte // B, G, R, A per palette entry
}

// newTransform picks the method for info. forceAlpha keeps an alpha
// channel for indexed sources that do not cover the whole image.
func newTransform(info ImageInfo, dst PixelFormat, forceAlpha bool) (*transform, error) {
	t := &transform{bpp: info.Layout.BytesPerPixel()}
	dstGray := dst.isGray()
	switch info.Layout {
	case LayoutIndexed:
		if len(info.Palette) == 0 || len(info.Palette) > 256 {
			return nil, fmt.Errorf("transform %d entry palette: %w", len(info.Palette), ErrPaletteIndex)
		}
		alpha := forceAlpha
		for i, c := range info.Palette {
			b, g, r, a := byte(c), byte(c>>8), byte(c>>16), byte(c>>24)
			t.color[i] = [4]byte{b, g, r, a}
			t.gray[i] = luminance(r, g, b)
			alpha = alpha || a != 0xFF
		}
		switch {
		case alpha:
			t.method = transformIndexedRGBA
		case dstGray || isGrayPalette(info.Palette):
			t.method = transformIndexedGray
		default:
			t.method = transformIndexedRGB
		}
		return t, nil
	case LayoutGray1:
		t.gray[0], t.gray[1] = 0, 0xFF
		if len(info.Palette) == 2 {
			for i, c := range info.Palette {
				t.gray[i] = luminance(byte(c>>16), byte(c>>8), byte(c))
			}
		}
	}
	m, ok := transformTable[info.Layout]
	if !ok {
		return nil, fmt.Errorf("transform layout %d: %w", info.Layout, ErrUnsupportedFeature)
	}
	if dstGray {
		t.method = m[1]
	} else {
		t.method = m[0]
	}
	return t, nil
}

// unpack converts pixels x0 to x0+n of the scanline src into dst.
func (t *transform) unpack(dst, src []byte, x0, n int) {
	switch t.method {
	case transformIndexedGray:
		for i, v := range src[x0 : x0+n] {
			dst[i] = t.gray[v]
		}
	case transformIndexedRGB:
		for i, v := range src[x0 : x0+n] {
			c := &t.color[v]
			dst[3*i], dst[3*i+1], dst[3*i+2] = c[0], c[1], c[2]
		}
	case transformIndexedRGBA:
		for i, v := range src[x0 : x0+n] {
			copy(dst[4*i:4*i+4], t.color[v][:])
		}
	case transformGray1:
		for i := 0; i < n; i++ {
			x := x0 + i
			dst[i] = t.gray[src[x>>3]>>uint(7-x&7)&1]
		}
	case transformGray8:
		copy(dst[:n], src[x0:x0+n])
	case transformBGR:
		for i := 0; i < n; i++ {
			s := src[(x0+i)*t.bpp:]
			dst[3*i], dst[3*i+1], dst[3*i+2] = s[0], s[1], s[2]
		}
	case transformBGRA:
		copy(dst[:4*n], src[4*x0:4*(x0+n)])
	case transformCMYK:
		for i := 0; i < n; i++ {
			r, g, b := cmykToRGB(src[4*(x0+i):])
			dst[3*i], dst[3*i+1], dst[3*i+2] = b, g, r
		}
	case transformBGRToGray:
		for i := 0; i < n; i++ {
			s := src[(x0+i)*t.bpp:]
			dst[i] = luminance(s[2], s[1], s[0])
		}
	case transformCMYKToGray:
		for i := 0; i < n; i++ {
			r, g, b := cmykToRGB(src[4*(x0+i):])
			dst[i] = luminance(r, g, b)
		}
	}
}

// luminance returns the gray level of an RGB color.
func luminance(r, g, b byte) byte {
	return byte((int(r)*30 + int(g)*59 + int(b)*11) / 100)
}

// cmykToRGB is the device approximation: each color component is scaled
// by the remaining black.
func cmykToRGB(s []byte) (r, g, b byte) {
	k := 255 - int(s[3])
	r = byte((255 - int(s[0])) * k / 255)
	g = byte((255 - int(s[1])) * k / 255)
	b = byte((255 - int(s[2])) * k / 255)
	return r, g, b
}

// blend composites a over the existing destination value.
func blend(src, dst, a byte) byte {
	return byte((int(src)*int(a) + int(dst)*(255-int(a)) + 127) / 255)
}

// packRow writes n working pixels of ch channels into the destination row
// starting at pixel x0.
func packRow(row []byte, f PixelFormat, x0 int, vals []byte, ch, n int) {
	for i := 0; i < n; i++ {
		var b, g, r, a byte
		p := vals[i*ch : i*ch+ch]
		switch ch {
		case 1:
			b, g, r, a = p[0], p[0], p[0], 0xFF
		case 3:
			b, g, r, a = p[0], p[1], p[2], 0xFF
		default:
			b, g, r, a = p[0], p[1], p[2], p[3]
		}
		x := x0 + i
		switch f {
		case Format32bppARGB:
			d := row[4*x : 4*x+4]
			d[0], d[1], d[2], d[3] = b, g, r, a
		case Format24bppRGB, Format32bppRGB:
			bpp := f.BitsPerPixel() / 8
			d := row[bpp*x : bpp*x+bpp]
			if a != 0xFF {
				b, g, r = blend(b, d[0], a), blend(g, d[1], a), blend(r, d[2], a)
			}
			d[0], d[1], d[2] = b, g, r
			if bpp == 4 {
				d[3] = 0xFF
			}
		case Format8bppMask, Format8bppIndexed:
			v := g
			if ch != 1 {
				v = luminance(r, g, b)
			}
			if a != 0xFF {
				v = blend(v, row[x], a)
			}
			row[x] = v
		case Format1bppMask, Format1bppIndexed:
			v := g
			if ch != 1 {
				v = luminance(r, g, b)
			}
			mask := byte(0x80) >> uint(x&7)
			if a != 0xFF {
				old := byte(0)
				if row[x>>3]&mask != 0 {
					old = 0xFF
				}
				v = blend(v, old, a)
			}
			if v >= 128 {
				row[x>>3] |= mask
			} else {
				row[x>>3] &^= mask
			}
		}
	}
}
