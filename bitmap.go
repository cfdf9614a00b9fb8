// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package imgcodec

import (
	"fmt"
	"image"
	"image/color"
)

// PixelFormat is the layout of a destination Bitmap.
type PixelFormat int

const (
	Format1bppMask     PixelFormat = iota // coverage bit, MSB first
	Format1bppIndexed                     // palette index bit, MSB first
	Format8bppMask                        // coverage byte
	Format8bppIndexed                     // palette index byte
	Format24bppRGB                        // B, G, R
	Format32bppRGB                        // B, G, R, unused
	Format32bppARGB                       // B, G, R, A
)

var pixelFormatNames = map[PixelFormat]string{
	Format1bppMask:    "1bpp-mask",
	Format1bppIndexed: "1bpp-indexed",
	Format8bppMask:    "8bpp-mask",
	Format8bppIndexed: "8bpp-indexed",
	Format24bppRGB:    "24bpp-rgb",
	Format32bppRGB:    "32bpp-rgb",
	Format32bppARGB:   "32bpp-argb",
}

func (f PixelFormat) String() string {
	if s, ok := pixelFormatNames[f]; ok {
		return s
	}
	return fmt.Sprintf("PixelFormat(%d)", int(f))
}

// ParsePixelFormat maps a name printed by String back to its format.
func ParsePixelFormat(s string) (PixelFormat, error) {
	for f, name := range pixelFormatNames {
		if name == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("pixel format %q: %w", s, ErrBadParameter)
}

// BitsPerPixel returns the storage size of one pixel.
func (f PixelFormat) BitsPerPixel() int {
	switch f {
	case Format1bppMask, Format1bppIndexed:
		return 1
	case Format8bppMask, Format8bppIndexed:
		return 8
	case Format24bppRGB:
		return 24
	case Format32bppRGB, Format32bppARGB:
		return 32
	}
	return 0
}

// IsMask reports whether the format carries coverage rather than color.
func (f PixelFormat) IsMask() bool {
	return f == Format1bppMask || f == Format8bppMask
}

// isGray reports whether pixels are written as a single luminance value.
func (f PixelFormat) isGray() bool {
	return f.BitsPerPixel() <= 8
}

// Bitmap is a caller-owned destination for decoded pixels.
type Bitmap struct {
	Width, Height int
	Pitch         int // bytes per row, multiple of 4
	Format        PixelFormat
	Pix           []byte
	Palette       []uint32 // ARGB, indexed formats only
}

// NewBitmap allocates a zeroed bitmap. Indexed formats get a gray ramp
// palette.
func NewBitmap(width, height int, format PixelFormat) (*Bitmap, error) {
	if format.BitsPerPixel() == 0 {
		return nil, fmt.Errorf("new bitmap: %w", ErrBadParameter)
	}
	if err := DefaultDecodeLimits().checkDimensions(width, height); err != nil {
		return nil, fmt.Errorf("new bitmap %dx%d: %w", width, height, err)
	}
	pitch, err := alignedPitch(width, format.BitsPerPixel())
	if err != nil {
		return nil, fmt.Errorf("new bitmap %dx%d: %w", width, height, err)
	}
	size, err := bufferSize(pitch, height)
	if err != nil {
		return nil, fmt.Errorf("new bitmap %dx%d: %w", width, height, err)
	}
	b := &Bitmap{
		Width:  width,
		Height: height,
		Pitch:  pitch,
		Format: format,
		Pix:    make([]byte, size),
	}
	switch format {
	case Format1bppIndexed:
		b.Palette = grayRamp(2)
	case Format8bppIndexed:
		b.Palette = grayRamp(256)
	}
	return b, nil
}

func grayRamp(n int) []uint32 {
	p := make([]uint32, n)
	for i := range p {
		v := uint32(i * 255 / (n - 1))
		p[i] = 0xFF000000 | v<<16 | v<<8 | v
	}
	return p
}

// validate checks that the bitmap's fields describe its buffer.
func (b *Bitmap) validate() error {
	if b == nil || b.Width <= 0 || b.Height <= 0 || b.Format.BitsPerPixel() == 0 {
		return ErrBadParameter
	}
	min, err := alignedPitch(b.Width, b.Format.BitsPerPixel())
	if err != nil || b.Pitch < min {
		return ErrBadParameter
	}
	size, err := bufferSize(b.Pitch, b.Height)
	if err != nil || len(b.Pix) < size {
		return ErrBadParameter
	}
	return nil
}

// Row returns the bytes of row y.
func (b *Bitmap) Row(y int) []byte {
	return b.Pix[y*b.Pitch : (y+1)*b.Pitch]
}

// Bounds returns the bitmap rectangle.
func (b *Bitmap) Bounds() image.Rectangle {
	return image.Rect(0, 0, b.Width, b.Height)
}

// Image converts the bitmap to a standard library image: *image.Gray for
// masks and gray-palette formats, *image.Paletted for other indexed
// bitmaps and *image.NRGBA otherwise.
func (b *Bitmap) Image() image.Image {
	r := b.Bounds()
	switch b.Format {
	case Format24bppRGB, Format32bppRGB, Format32bppARGB:
		img := image.NewNRGBA(r)
		bpp := b.Format.BitsPerPixel() / 8
		for y := 0; y < b.Height; y++ {
			row := b.Row(y)
			out := img.Pix[y*img.Stride:]
			for x := 0; x < b.Width; x++ {
				s := row[x*bpp:]
				out[4*x], out[4*x+1], out[4*x+2], out[4*x+3] = s[2], s[1], s[0], 0xFF
				if b.Format == Format32bppARGB {
					out[4*x+3] = s[3]
				}
			}
		}
		return img
	}

	if len(b.Palette) > 0 && !isGrayPalette(b.Palette) {
		pal := make(color.Palette, len(b.Palette))
		for i, c := range b.Palette {
			pal[i] = color.NRGBA{R: uint8(c >> 16), G: uint8(c >> 8), B: uint8(c), A: uint8(c >> 24)}
		}
		img := image.NewPaletted(r, pal)
		for y := 0; y < b.Height; y++ {
			for x := 0; x < b.Width; x++ {
				img.Pix[y*img.Stride+x] = b.sample(y, x)
			}
		}
		return img
	}

	img := image.NewGray(r)
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			v := b.sample(y, x)
			if len(b.Palette) > int(v) {
				v = uint8(b.Palette[v])
			} else if b.Format.BitsPerPixel() == 1 {
				v *= 0xFF
			}
			img.Pix[y*img.Stride+x] = v
		}
	}
	return img
}

// sample returns the stored value of a pixel in a 1 or 8 bit bitmap.
func (b *Bitmap) sample(y, x int) uint8 {
	row := b.Row(y)
	if b.Format.BitsPerPixel() == 1 {
		return row[x>>3] >> uint(7-x&7) & 1
	}
	return row[x]
}

func isGrayPalette(p []uint32) bool {
	for _, c := range p {
		r, g, b := uint8(c>>16), uint8(c>>8), uint8(c)
		if r != g || g != b || c>>24 != 0xFF {
			return false
		}
	}
	return true
}
