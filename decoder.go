// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package imgcodec

import (
	"errors"
	"io"
)

// Format identifies the container or coding of an image stream.
type Format int

const (
	FormatUnknown Format = iota
	FormatBMP
	FormatGIF
	FormatJPEG
	FormatPNG
	FormatTIFF
	FormatJPEG2000
	FormatFax
)

var formatNames = [...]string{
	FormatUnknown:  "unknown",
	FormatBMP:      "bmp",
	FormatGIF:      "gif",
	FormatJPEG:     "jpeg",
	FormatPNG:      "png",
	FormatTIFF:     "tiff",
	FormatJPEG2000: "jpeg2000",
	FormatFax:      "fax",
}

func (f Format) String() string {
	if f < 0 || int(f) >= len(formatNames) {
		return "unknown"
	}
	return formatNames[f]
}

// ParseFormat returns the Format named s, or FormatUnknown.
func ParseFormat(s string) Format {
	for i, name := range formatNames {
		if name == s {
			return Format(i)
		}
	}
	switch s {
	case "jpg":
		return FormatJPEG
	case "tif":
		return FormatTIFF
	case "jp2", "j2k":
		return FormatJPEG2000
	case "ccitt", "g3", "g4":
		return FormatFax
	}
	return FormatUnknown
}

// SampleLayout describes how the bytes of a decoder scanline are organised.
type SampleLayout int

const (
	LayoutIndexed SampleLayout = iota // one palette index per byte
	LayoutGray1                       // 1 bit per pixel, MSB first, 1 = white
	LayoutGray8                       // one gray byte per pixel
	LayoutBGR                         // B, G, R
	LayoutBGRA                        // B, G, R, A (straight alpha)
	LayoutBGRX                        // B, G, R, unused
	LayoutCMYK                        // C, M, Y, K
)

// BytesPerPixel returns the bytes one pixel occupies, 0 for bit-packed layouts.
func (l SampleLayout) BytesPerPixel() int {
	switch l {
	case LayoutIndexed, LayoutGray8:
		return 1
	case LayoutBGR:
		return 3
	case LayoutBGRA, LayoutBGRX, LayoutCMYK:
		return 4
	}
	return 0
}

// ImageInfo is the pixel format descriptor of a decoded source.
type ImageInfo struct {
	Format     Format
	Width      int
	Height     int
	BPC        int // bits per component as stored in the source
	Components int
	Pitch      int  // bytes per decoder scanline, multiple of 4
	TopDown    bool // rows are stored top to bottom
	Layout     SampleLayout
	Palette    []uint32 // ARGB entries for LayoutIndexed
}

// Scanline is one decoded row. Pix is owned by the decoder and is only valid
// until the next call into it.
type Scanline struct {
	Row int
	Pix []byte
}

// ScanlineDecoder is the resumable decoding contract shared by every format
// decoder in this package. NextScanline returns ErrNeedMoreInput when the
// buffered input ends in the middle of a row, and io.EOF after the last row.
type ScanlineDecoder interface {
	Rewind() error
	NextScanline() (Scanline, error)
	Remaining() int
}

// FrameRecord describes one frame found while parsing a multi-frame stream.
type FrameRecord struct {
	Index            int
	Left, Top        int
	Width, Height    int
	Interlaced       bool
	TransparentIndex int // -1 when the frame has no transparency
	DelayCentis      int
	Disposal         int
	DataOffset       int64 // absolute offset of the frame's LZW code size byte
}

// Delegate receives per-row and per-frame notifications. A decoder holds it
// only for the duration of the call it was passed to.
type Delegate interface {
	OnScanline(line Scanline) error
	OnFrameRecord(rec FrameRecord)
}

// DecodeScanlines pulls rows from dec and hands each to dl until dec needs
// more input, finishes, or fails. It returns nil once dec reports io.EOF.
func DecodeScanlines(dec ScanlineDecoder, dl Delegate) error {
	for {
		line, err := dec.NextScanline()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := dl.OnScanline(line); err != nil {
			return err
		}
	}
}

// alignedPitch returns the 4-byte aligned row size for width pixels of bpp
// bits, or an error when the computation overflows.
func alignedPitch(width, bpp int) (int, error) {
	if width <= 0 || bpp <= 0 {
		return 0, ErrInvalidDimensions
	}
	bitsPerRow, ok := mulInt(width, bpp)
	if !ok || bitsPerRow > maxInt-31 {
		return 0, ErrLimitExceeded
	}
	return (bitsPerRow + 31) / 32 * 4, nil
}

// DecoderOptions configures the incremental BMP and GIF decoders.
type DecoderOptions struct {
	Limits DecodeLimits

	// RetainInput keeps consumed bytes buffered so Rewind works after rows
	// have been decoded. Without it the decoder releases input it no longer
	// needs and Rewind reports ErrRewindUnavailable once that happened.
	RetainInput bool
}
