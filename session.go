// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package imgcodec

import (
	"errors"
	"image"
	"io"
)

// codecSession is one format decoder as driven by a ProgressiveDecoder.
type codecSession interface {
	ScanlineDecoder

	format() Format
	feed(p []byte) error
	readHeader() (ImageInfo, error)
	attributes() Attributes

	// frameRect is where scanline pixels land in the image.
	frameRect() image.Rectangle
	// imageRow maps a scanline's Row to an image row.
	imageRow(n int) int
	// rowCount is the number of scanlines the decoder delivers.
	rowCount() int
	// needsAlpha reports that part of the image is left transparent.
	needsAlpha() bool
}

type bmpSession struct {
	*BMPDecoder
}

func (s *bmpSession) format() Format                 { return FormatBMP }
func (s *bmpSession) feed(p []byte) error            { s.Feed(p); return nil }
func (s *bmpSession) readHeader() (ImageInfo, error) { return s.ReadHeader() }
func (s *bmpSession) attributes() Attributes         { return s.Attributes() }
func (s *bmpSession) imageRow(n int) int             { return n }
func (s *bmpSession) rowCount() int                  { return s.Info().Height }
func (s *bmpSession) needsAlpha() bool               { return false }

func (s *bmpSession) frameRect() image.Rectangle {
	return image.Rect(0, 0, s.Info().Width, s.Info().Height)
}

// gifSession decodes one frame of a GIF onto its logical screen.
type gifSession struct {
	dec     *GIFDecoder
	index   int
	onFrame func(FrameRecord)
	screen  ImageInfo
	frame   FrameRecord
	ready   bool
}

func (s *gifSession) format() Format         { return FormatGIF }
func (s *gifSession) feed(p []byte) error    { s.dec.Feed(p); return nil }
func (s *gifSession) attributes() Attributes { return s.dec.Attributes() }
func (s *gifSession) rowCount() int          { return s.frame.Height }
func (s *gifSession) Rewind() error          { return s.dec.Rewind() }
func (s *gifSession) Remaining() int         { return s.dec.Remaining() }

func (s *gifSession) NextScanline() (Scanline, error) {
	return s.dec.NextScanline()
}

// readHeader reads the screen descriptor and advances to the selected
// frame, skipping the data of the frames before it.
func (s *gifSession) readHeader() (ImageInfo, error) {
	if s.ready {
		return s.screen, nil
	}
	screen, err := s.dec.ReadHeader()
	if err != nil {
		return ImageInfo{}, err
	}
	for len(s.dec.Frames()) <= s.index || s.dec.Frame().Index != s.index {
		rec, err := s.dec.NextFrame()
		if errors.Is(err, io.EOF) {
			return ImageInfo{}, decodeError(FormatGIF, "select frame", ErrOutOfRange)
		}
		if err != nil {
			return ImageInfo{}, err
		}
		s.onFrame(rec)
	}

	s.frame = s.dec.Frame()
	info := s.dec.FrameInfo()
	info.Width, info.Height = screen.Width, screen.Height
	pitch, err := alignedPitch(screen.Width, 8)
	if err != nil {
		return ImageInfo{}, decodeError(FormatGIF, "read header", err)
	}
	info.Pitch = pitch
	s.screen, s.ready = info, true
	return info, nil
}

func (s *gifSession) frameRect() image.Rectangle {
	return image.Rect(s.frame.Left, s.frame.Top, s.frame.Left+s.frame.Width, s.frame.Top+s.frame.Height)
}

func (s *gifSession) imageRow(n int) int {
	if s.frame.Interlaced {
		n = GIFInterlacedRow(n, s.frame.Height)
	}
	return s.frame.Top + n
}

func (s *gifSession) needsAlpha() bool {
	screen := image.Rect(0, 0, s.screen.Width, s.screen.Height)
	return !screen.In(s.frameRect())
}

// faxSession buffers a whole CCITT strip before decoding it.
type faxSession struct {
	params FaxParams
	limits DecodeLimits
	size   int64
	buf    []byte
	dec    *FaxDecoder
}

func (s *faxSession) format() Format         { return FormatFax }
func (s *faxSession) attributes() Attributes { return Attributes{} }
func (s *faxSession) imageRow(n int) int     { return n }
func (s *faxSession) rowCount() int          { return s.params.Rows }
func (s *faxSession) needsAlpha() bool       { return false }
func (s *faxSession) Rewind() error          { return s.dec.Rewind() }
func (s *faxSession) Remaining() int         { return s.dec.Remaining() }

func (s *faxSession) NextScanline() (Scanline, error) {
	return s.dec.NextScanline()
}

func (s *faxSession) frameRect() image.Rectangle {
	return image.Rect(0, 0, s.params.Columns, s.params.Rows)
}

func (s *faxSession) feed(p []byte) error {
	if err := s.limits.checkBuffered(int64(len(s.buf) + len(p))); err != nil {
		return fatalError(FormatFax, "feed", err)
	}
	s.buf = append(s.buf, p...)
	return nil
}

// readHeader waits for the complete strip. Without a row count the strip
// is decoded once to find it.
func (s *faxSession) readHeader() (ImageInfo, error) {
	if s.dec != nil {
		return s.dec.Info(), nil
	}
	if int64(len(s.buf)) < s.size {
		return ImageInfo{}, ErrNeedMoreInput
	}
	if s.params.Rows == 0 {
		counter, err := NewFaxDecoder(s.buf, s.params)
		if err != nil {
			return ImageInfo{}, err
		}
		rows := 0
		for {
			_, err := counter.NextScanline()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return ImageInfo{}, err
			}
			rows++
		}
		if rows == 0 {
			return ImageInfo{}, decodeError(FormatFax, "read header", ErrInvalidDimensions)
		}
		s.params.Rows = rows
	}
	dec, err := NewFaxDecoder(s.buf, s.params)
	if err != nil {
		return ImageInfo{}, err
	}
	s.dec = dec
	return dec.Info(), nil
}

// adapterSession drives an AdapterSession.
type adapterSession struct {
	f      Format
	s      AdapterSession
	limits DecodeLimits
	fed    int64
	info   ImageInfo
}

func (s *adapterSession) format() Format         { return s.f }
func (s *adapterSession) attributes() Attributes { return Attributes{} }
func (s *adapterSession) imageRow(n int) int     { return n }
func (s *adapterSession) rowCount() int          { return s.info.Height }
func (s *adapterSession) needsAlpha() bool       { return false }
func (s *adapterSession) Remaining() int         { return 0 }

func (s *adapterSession) Rewind() error {
	return fatalError(s.f, "rewind", ErrRewindUnavailable)
}

func (s *adapterSession) NextScanline() (Scanline, error) {
	return s.s.DecodeNext()
}

func (s *adapterSession) frameRect() image.Rectangle {
	return image.Rect(0, 0, s.info.Width, s.info.Height)
}

func (s *adapterSession) feed(p []byte) error {
	s.fed += int64(len(p))
	if err := s.limits.checkBuffered(s.fed); err != nil {
		return fatalError(s.f, "feed", err)
	}
	if err := s.s.Feed(p); err != nil {
		return fatalError(s.f, "feed", err)
	}
	return nil
}

func (s *adapterSession) readHeader() (ImageInfo, error) {
	info, err := s.s.ReadHeader()
	if err != nil {
		if IsNeedMoreInput(err) || IsDecodeError(err) || IsFatal(err) {
			return ImageInfo{}, err
		}
		return ImageInfo{}, decodeError(s.f, "read header", err)
	}
	s.info = info
	return info, nil
}
