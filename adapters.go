// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package imgcodec

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	jpeg2000 "github.com/ajroetker/go-jpeg2000"
	"github.com/gen2brain/jpegn"
	"golang.org/x/image/tiff"
)

// Adapter plugs a decoder implemented outside this package into a
// ProgressiveDecoder.
type Adapter interface {
	Format() Format
	// Start opens a session for a stream of size bytes.
	Start(size int64) AdapterSession
}

// AdapterSession decodes one stream. ReadHeader and DecodeNext return
// ErrNeedMoreInput until enough bytes have been fed; DecodeNext returns
// io.EOF after the last row. Rows are delivered top to bottom.
type AdapterSession interface {
	Feed(p []byte) error
	ReadHeader() (ImageInfo, error)
	DecodeNext() (Scanline, error)
}

// DefaultAdapters returns the JPEG, PNG, TIFF and JPEG 2000 adapters.
func DefaultAdapters() []Adapter {
	return []Adapter{JPEGAdapter(), PNGAdapter(), TIFFAdapter(), JPEG2000Adapter()}
}

// JPEGAdapter decodes baseline and progressive JPEG.
func JPEGAdapter() Adapter {
	return &imageAdapter{
		format:     FormatJPEG,
		signatures: [][]byte{{0xFF, 0xD8, 0xFF}},
		config:     jpegn.DecodeConfig,
		decode: func(r io.Reader) (image.Image, error) {
			return jpegn.Decode(r, &jpegn.Options{UpsampleMethod: jpegn.CatmullRom})
		},
	}
}

// PNGAdapter decodes PNG.
func PNGAdapter() Adapter {
	return &imageAdapter{
		format:     FormatPNG,
		signatures: [][]byte{[]byte("\x89PNG\r\n\x1a\n")},
		config:     png.DecodeConfig,
		decode:     png.Decode,
	}
}

// TIFFAdapter decodes the first image of a TIFF file.
func TIFFAdapter() Adapter {
	return &imageAdapter{
		format:     FormatTIFF,
		signatures: [][]byte{[]byte("II*\x00"), []byte("MM\x00*")},
		config:     tiff.DecodeConfig,
		decode:     tiff.Decode,
	}
}

// JPEG2000Adapter decodes JP2 files and raw codestreams.
func JPEG2000Adapter() Adapter {
	return &imageAdapter{
		format: FormatJPEG2000,
		signatures: [][]byte{
			{0x00, 0x00, 0x00, 0x0C, 'j', 'P', ' ', ' ', 0x0D, 0x0A, 0x87, 0x0A},
			{0xFF, 0x4F, 0xFF, 0x51},
		},
		config: func(r io.Reader) (image.Config, error) {
			cfg, _, err := image.DecodeConfig(r)
			return cfg, err
		},
		decode: jpeg2000.Decode,
	}
}

// imageAdapter adapts a whole-image decoder: the header is parsed from
// whatever prefix has arrived, pixels once the complete stream is buffered.
type imageAdapter struct {
	format     Format
	signatures [][]byte
	config     func(io.Reader) (image.Config, error)
	decode     func(io.Reader) (image.Image, error)
}

func (a *imageAdapter) Format() Format { return a.format }

func (a *imageAdapter) Start(size int64) AdapterSession {
	return &imageSession{adapter: a, size: size}
}

type imageSession struct {
	adapter *imageAdapter
	size    int64
	buf     []byte
	header  bool
	info    ImageInfo
	img     image.Image
	row     int
	line    []byte
}

func (s *imageSession) Feed(p []byte) error {
	if int64(len(s.buf))+int64(len(p)) > s.size {
		return fmt.Errorf("%s feed: %w", s.adapter.format, ErrOutOfRange)
	}
	s.buf = append(s.buf, p...)
	return nil
}

func (s *imageSession) complete() bool { return int64(len(s.buf)) >= s.size }

// checkSignature reports ErrNeedMoreInput while a signature could still
// match the buffered prefix.
func (s *imageSession) checkSignature() error {
	short := false
	for _, sig := range s.adapter.signatures {
		n := min(len(s.buf), len(sig))
		if !bytes.Equal(s.buf[:n], sig[:n]) {
			continue
		}
		if n == len(sig) {
			return nil
		}
		short = true
	}
	if short && !s.complete() {
		return ErrNeedMoreInput
	}
	return decodeError(s.adapter.format, "read header", ErrInvalidSignature)
}

func (s *imageSession) ReadHeader() (ImageInfo, error) {
	if s.header {
		return s.info, nil
	}
	if err := s.checkSignature(); err != nil {
		return ImageInfo{}, err
	}
	cfg, err := s.adapter.config(bytes.NewReader(s.buf))
	if err != nil {
		if !s.complete() {
			return ImageInfo{}, ErrNeedMoreInput
		}
		return ImageInfo{}, decodeError(s.adapter.format, "read header", err)
	}
	info, err := imageInfoFor(s.adapter.format, cfg)
	if err != nil {
		return ImageInfo{}, err
	}
	s.info, s.header = info, true
	return info, nil
}

// imageInfoFor picks the scanline layout from the color model.
func imageInfoFor(f Format, cfg image.Config) (ImageInfo, error) {
	info := ImageInfo{Format: f, Width: cfg.Width, Height: cfg.Height, BPC: 8, TopDown: true}
	switch m := cfg.ColorModel.(type) {
	case color.Palette:
		if len(m) == 0 || len(m) > 256 {
			return ImageInfo{}, decodeError(f, "read header", ErrPaletteIndex)
		}
		info.Layout, info.Components = LayoutIndexed, 1
		info.Palette = make([]uint32, len(m))
		for i, c := range m {
			n := color.NRGBAModel.Convert(c).(color.NRGBA)
			info.Palette[i] = uint32(n.A)<<24 | uint32(n.R)<<16 | uint32(n.G)<<8 | uint32(n.B)
		}
	default:
		switch cfg.ColorModel {
		case color.GrayModel, color.Gray16Model:
			info.Layout, info.Components = LayoutGray8, 1
		case color.CMYKModel:
			info.Layout, info.Components = LayoutCMYK, 4
		case color.YCbCrModel:
			info.Layout, info.Components = LayoutBGR, 3
		default:
			info.Layout, info.Components = LayoutBGRA, 4
		}
	}
	if info.Width <= 0 || info.Height <= 0 {
		return ImageInfo{}, decodeError(f, "read header", ErrInvalidDimensions)
	}
	pitch, err := alignedPitch(info.Width, info.Layout.BytesPerPixel()*8)
	if err != nil {
		return ImageInfo{}, decodeError(f, "read header", err)
	}
	info.Pitch = pitch
	return info, nil
}

func (s *imageSession) DecodeNext() (Scanline, error) {
	if !s.header {
		return Scanline{}, fatalError(s.adapter.format, "decode", ErrBadParameter)
	}
	if s.img == nil {
		if !s.complete() {
			return Scanline{}, ErrNeedMoreInput
		}
		img, err := s.adapter.decode(bytes.NewReader(s.buf))
		if err != nil {
			return Scanline{}, decodeError(s.adapter.format, "decode", err)
		}
		if b := img.Bounds(); b.Dx() != s.info.Width || b.Dy() != s.info.Height {
			return Scanline{}, decodeError(s.adapter.format, "decode", ErrInvalidDimensions)
		}
		s.img = img
		s.buf = nil
		s.line = make([]byte, s.info.Pitch)
	}
	if s.row >= s.info.Height {
		return Scanline{}, io.EOF
	}
	convertRow(s.line, s.img, s.row, s.info)
	line := Scanline{Row: s.row, Pix: s.line}
	s.row++
	return line, nil
}

// convertRow writes row y of img into dst in the layout of info.
func convertRow(dst []byte, img image.Image, y int, info ImageInfo) {
	b := img.Bounds()
	sy := b.Min.Y + y
	switch info.Layout {
	case LayoutGray8:
		if g, ok := img.(*image.Gray); ok {
			copy(dst, g.Pix[g.PixOffset(b.Min.X, sy):][:info.Width])
			return
		}
		for x := 0; x < info.Width; x++ {
			dst[x] = color.GrayModel.Convert(img.At(b.Min.X+x, sy)).(color.Gray).Y
		}
	case LayoutCMYK:
		if c, ok := img.(*image.CMYK); ok {
			copy(dst, c.Pix[c.PixOffset(b.Min.X, sy):][:4*info.Width])
			return
		}
		for x := 0; x < info.Width; x++ {
			c := color.CMYKModel.Convert(img.At(b.Min.X+x, sy)).(color.CMYK)
			dst[4*x], dst[4*x+1], dst[4*x+2], dst[4*x+3] = c.C, c.M, c.Y, c.K
		}
	case LayoutIndexed:
		if p, ok := img.(*image.Paletted); ok {
			copy(dst, p.Pix[p.PixOffset(b.Min.X, sy):][:info.Width])
			return
		}
		pal := make(color.Palette, len(info.Palette))
		for i, c := range info.Palette {
			pal[i] = color.NRGBA{R: byte(c >> 16), G: byte(c >> 8), B: byte(c), A: byte(c >> 24)}
		}
		for x := 0; x < info.Width; x++ {
			dst[x] = byte(pal.Index(img.At(b.Min.X+x, sy)))
		}
	case LayoutBGR:
		if yc, ok := img.(*image.YCbCr); ok {
			for x := 0; x < info.Width; x++ {
				yi, ci := yc.YOffset(b.Min.X+x, sy), yc.COffset(b.Min.X+x, sy)
				r, g, bb := color.YCbCrToRGB(yc.Y[yi], yc.Cb[ci], yc.Cr[ci])
				dst[3*x], dst[3*x+1], dst[3*x+2] = bb, g, r
			}
			return
		}
		for x := 0; x < info.Width; x++ {
			r, g, bb, _ := img.At(b.Min.X+x, sy).RGBA()
			dst[3*x], dst[3*x+1], dst[3*x+2] = byte(bb>>8), byte(g>>8), byte(r>>8)
		}
	default:
		if n, ok := img.(*image.NRGBA); ok {
			p := n.Pix[n.PixOffset(b.Min.X, sy):]
			for x := 0; x < info.Width; x++ {
				dst[4*x], dst[4*x+1], dst[4*x+2], dst[4*x+3] = p[4*x+2], p[4*x+1], p[4*x], p[4*x+3]
			}
			return
		}
		for x := 0; x < info.Width; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, sy)).(color.NRGBA)
			dst[4*x], dst[4*x+1], dst[4*x+2], dst[4*x+3] = c.B, c.G, c.R, c.A
		}
	}
}
