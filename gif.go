// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package imgcodec

import (
	"errors"
	"io"
	"strconv"
)

// GIF block introducers and extension labels
const (
	gifExtensionIntroducer = 0x21
	gifImageSeparator      = 0x2C
	gifTrailer             = 0x3B

	gifLabelPlainText      = 0x01
	gifLabelGraphicControl = 0xF9
	gifLabelComment        = 0xFE
	gifLabelApplication    = 0xFF
)

const (
	gifSignatureSize  = 6
	gifScreenSize     = 7
	gifDescriptorSize = 10
	gifMaxCodeSize    = 11
)

type gifState int

const (
	gifSignature gifState = iota
	gifScreen
	gifExtOrImage
	gifImageInfo
	gifImageData
	gifTail
	gifFailed
)

// gifControl holds a graphic control extension until the next image uses it.
type gifControl struct {
	transparent int
	delay       int
	disposal    int
}

// GIFDecoder decodes a GIF stream incrementally. After ReadHeader, NextFrame
// advances to the next image descriptor and NextScanline returns that
// frame's rows in stream order, which for interlaced frames differs from
// image order (see GIFInterlacedRow).
type GIFDecoder struct {
	cur   *InputCursor
	opts  DecoderOptions
	state gifState
	err   error

	screen        ImageInfo
	globalBits    int
	globalPalette []uint32
	bgIndex       int
	attrs         Attributes
	control       *gifControl
	frames        []FrameRecord

	frame      FrameRecord
	frameInfo  ImageInfo
	lzw        *LZWDecompressor
	rowBuf     []byte
	rowFill    int
	row        int
	codesEnded bool // end code or block terminator seen
	blocksDone bool // block terminator consumed
}

// NewGIFDecoder returns a decoder with an empty input buffer.
func NewGIFDecoder(opts DecoderOptions) *GIFDecoder {
	return &GIFDecoder{cur: NewInputCursor(nil), opts: opts}
}

// Feed appends p to the decoder's input.
func (d *GIFDecoder) Feed(p []byte) {
	if !d.opts.RetainInput && d.state >= gifExtOrImage && d.cur.Pos() > 0 {
		d.cur.Compact()
	}
	d.cur.Feed(p)
}

// Remaining returns the number of buffered bytes not yet consumed.
func (d *GIFDecoder) Remaining() int { return d.cur.Unread() }

// Info returns the logical screen description and the global palette.
func (d *GIFDecoder) Info() ImageInfo { return d.screen }

// FrameInfo describes the current frame's pixels. The palette is the local
// palette when present; its transparent entry, if any, has zero alpha.
func (d *GIFDecoder) FrameInfo() ImageInfo { return d.frameInfo }

// Frame returns the record of the current frame.
func (d *GIFDecoder) Frame() FrameRecord { return d.frame }

// Frames returns the records of every frame seen so far.
func (d *GIFDecoder) Frames() []FrameRecord { return d.frames }

// Attributes returns the aspect ratio, comments and application data seen so far.
func (d *GIFDecoder) Attributes() Attributes { return d.attrs }

// BackgroundIndex returns the background color index, already validated
// against the global palette.
func (d *GIFDecoder) BackgroundIndex() int { return d.bgIndex }

func (d *GIFDecoder) fail(err error) error {
	d.state = gifFailed
	d.err = err
	return err
}

// ReadHeader parses the signature and the logical screen descriptor.
func (d *GIFDecoder) ReadHeader() (ImageInfo, error) {
	switch d.state {
	case gifFailed:
		return ImageInfo{}, d.err
	case gifSignature:
		p, err := d.cur.Peek(gifSignatureSize)
		if err != nil {
			return ImageInfo{}, err
		}
		if s := string(p); s != "GIF87a" && s != "GIF89a" {
			return ImageInfo{}, d.fail(decodeError(FormatGIF, "read signature", ErrInvalidSignature))
		}
		if err := d.cur.Skip(gifSignatureSize); err != nil {
			return ImageInfo{}, err
		}
		d.state = gifScreen
		fallthrough
	case gifScreen:
		if err := d.readScreen(); err != nil {
			return ImageInfo{}, err
		}
		d.state = gifExtOrImage
	}
	return d.screen, nil
}

func (d *GIFDecoder) readScreen() error {
	p, err := d.cur.Peek(gifScreenSize)
	if err != nil {
		return err
	}
	width, height := int(le16(p[0:2])), int(le16(p[2:4]))
	flags, bg, aspect := p[4], int(p[5]), p[6]

	if err := d.opts.Limits.checkDimensions(width, height); err != nil {
		if err == ErrLimitExceeded {
			return d.fail(fatalError(FormatGIF, "read screen", err))
		}
		return d.fail(decodeError(FormatGIF, "read screen", err))
	}

	size := gifScreenSize
	var palette []uint32
	if flags&0x80 != 0 {
		d.globalBits = int(flags & 0x07)
		n := 2 << d.globalBits
		size += 3 * n
		q, err := d.cur.Peek(size)
		if err != nil {
			return err
		}
		palette = readGIFPalette(q[gifScreenSize:], n)
	}
	if err := d.cur.Skip(size); err != nil {
		return err
	}

	if bg >= len(palette) {
		bg = 0
	}
	d.bgIndex = bg
	d.globalPalette = palette
	if aspect != 0 {
		d.attrs.AspectRatio = float64(int(aspect)+15) / 64
	}

	pitch, err := alignedPitch(width, 8)
	if err != nil {
		return d.fail(fatalError(FormatGIF, "read screen", err))
	}
	d.screen = ImageInfo{
		Format:     FormatGIF,
		Width:      width,
		Height:     height,
		BPC:        8,
		Components: 1,
		Pitch:      pitch,
		TopDown:    true,
		Layout:     LayoutIndexed,
		Palette:    palette,
	}
	return nil
}

func readGIFPalette(p []byte, n int) []uint32 {
	palette := make([]uint32, n)
	for i := range palette {
		palette[i] = 0xFF000000 | uint32(p[3*i])<<16 | uint32(p[3*i+1])<<8 | uint32(p[3*i+2])
	}
	return palette
}

// NextFrame advances to the next image descriptor, consuming extensions on
// the way, and returns its record. An unfinished previous frame is skipped.
// It returns io.EOF at the trailer.
func (d *GIFDecoder) NextFrame() (FrameRecord, error) {
	for {
		switch d.state {
		case gifFailed:
			return FrameRecord{}, d.err
		case gifTail:
			return FrameRecord{}, io.EOF
		case gifSignature, gifScreen:
			if _, err := d.ReadHeader(); err != nil {
				return FrameRecord{}, err
			}
		case gifImageData:
			if err := d.SkipFrame(); err != nil {
				return FrameRecord{}, err
			}
		case gifExtOrImage:
			b, err := d.cur.Peek(1)
			if err != nil {
				return FrameRecord{}, err
			}
			switch b[0] {
			case gifExtensionIntroducer:
				if err := d.readExtension(); err != nil {
					return FrameRecord{}, err
				}
			case gifImageSeparator:
				d.state = gifImageInfo
			case gifTrailer:
				if err := d.cur.Skip(1); err != nil {
					return FrameRecord{}, err
				}
				d.state = gifTail
			default:
				return FrameRecord{}, d.fail(decodeError(FormatGIF, "read block", ErrInvalidCode))
			}
		case gifImageInfo:
			if err := d.readImageInfo(); err != nil {
				return FrameRecord{}, err
			}
			d.state = gifImageData
			return d.frame, nil
		}
	}
}

// peekSubBlocks scans the data sub-blocks that start skip bytes past the read
// position. It returns the block payloads and the offset just past the block
// terminator, or ErrNeedMoreInput when the terminator is not buffered yet.
func (d *GIFDecoder) peekSubBlocks(skip int) ([][]byte, int, error) {
	buf, _ := d.cur.Peek(d.cur.Unread())
	var blocks [][]byte
	off := skip
	for {
		if off >= len(buf) {
			return nil, 0, ErrNeedMoreInput
		}
		n := int(buf[off])
		if n == 0 {
			return blocks, off + 1, nil
		}
		if off+1+n > len(buf) {
			return nil, 0, ErrNeedMoreInput
		}
		blocks = append(blocks, buf[off+1:off+1+n])
		off += 1 + n
	}
}

func (d *GIFDecoder) readExtension() error {
	p, err := d.cur.Peek(2)
	if err != nil {
		return err
	}
	label := p[1]
	blocks, end, err := d.peekSubBlocks(2)
	if err != nil {
		return err
	}

	switch label {
	case gifLabelGraphicControl:
		if len(blocks) == 0 || len(blocks[0]) < 4 {
			return d.fail(decodeError(FormatGIF, "graphic control", ErrTruncated))
		}
		b := blocks[0]
		gce := &gifControl{
			transparent: -1,
			delay:       int(le16(b[1:3])),
			disposal:    int(b[0]>>2) & 0x07,
		}
		if b[0]&0x01 != 0 {
			gce.transparent = int(b[3])
		}
		d.control = gce
	case gifLabelPlainText:
		if len(blocks) > 0 {
			d.attrs.setMeta("plain_text", decodeLatin1(joinBlocks(blocks[1:])))
		}
		// A plain text block is a graphic rendering block and uses up the
		// pending graphic control.
		d.control = nil
	case gifLabelComment:
		d.attrs.Comments = append(d.attrs.Comments, decodeLatin1(joinBlocks(blocks)))
	case gifLabelApplication:
		if len(blocks) > 0 && len(blocks[0]) == 11 {
			d.attrs.ApplicationID = string(blocks[0])
			if d.attrs.ApplicationID == "NETSCAPE2.0" && len(blocks) > 1 && len(blocks[1]) >= 3 && blocks[1][0] == 1 {
				d.attrs.setMeta("loop_count", strconv.Itoa(int(le16(blocks[1][1:3]))))
			}
		}
	}
	return d.cur.Skip(end)
}

func joinBlocks(blocks [][]byte) []byte {
	var out []byte
	for _, b := range blocks {
		out = append(out, b...)
	}
	return out
}

func (d *GIFDecoder) readImageInfo() error {
	p, err := d.cur.Peek(gifDescriptorSize)
	if err != nil {
		return err
	}
	left, top := int(le16(p[1:3])), int(le16(p[3:5]))
	width, height := int(le16(p[5:7])), int(le16(p[7:9]))
	flags := p[9]

	if width == 0 || height == 0 {
		return d.fail(decodeError(FormatGIF, "read image descriptor", ErrInvalidDimensions))
	}

	size := gifDescriptorSize
	palette, bits := d.globalPalette, d.globalBits
	if flags&0x80 != 0 {
		bits = int(flags & 0x07)
		n := 2 << bits
		size += 3 * n
		q, err := d.cur.Peek(size)
		if err != nil {
			return err
		}
		palette = readGIFPalette(q[gifDescriptorSize:], n)
	}
	if palette == nil {
		return d.fail(decodeError(FormatGIF, "read image descriptor", ErrPaletteIndex))
	}

	q, err := d.cur.Peek(size + 1)
	if err != nil {
		return err
	}
	codeSize := int(q[size])
	if codeSize < 1 || codeSize > gifMaxCodeSize {
		return d.fail(decodeError(FormatGIF, "read image descriptor", ErrInvalidCode))
	}

	rec := FrameRecord{
		Index:            len(d.frames),
		Left:             left,
		Top:              top,
		Width:            width,
		Height:           height,
		Interlaced:       flags&0x40 != 0,
		TransparentIndex: -1,
		DataOffset:       d.cur.Offset() + int64(size),
	}
	if d.control != nil {
		rec.TransparentIndex = d.control.transparent
		rec.DelayCentis = d.control.delay
		rec.Disposal = d.control.disposal
		d.control = nil
	}

	if rec.TransparentIndex >= 0 && rec.TransparentIndex < len(palette) {
		palette = append([]uint32(nil), palette...)
		palette[rec.TransparentIndex] &= 0x00FFFFFF
	}

	pitch, err := alignedPitch(width, 8)
	if err != nil {
		return d.fail(fatalError(FormatGIF, "read image descriptor", err))
	}
	if d.lzw == nil || d.lzw.codeExp != codeSize || d.lzw.colorEnd != 2<<bits {
		d.lzw, err = NewLZWDecompressor(bits, codeSize)
		if err != nil {
			return d.fail(err)
		}
	} else {
		d.lzw.Reset()
	}
	if cap(d.rowBuf) < pitch {
		d.rowBuf = make([]byte, pitch)
	}
	d.rowBuf = d.rowBuf[:pitch]

	d.frame = rec
	d.frameInfo = ImageInfo{
		Format:     FormatGIF,
		Width:      width,
		Height:     height,
		BPC:        8,
		Components: 1,
		Pitch:      pitch,
		TopDown:    true,
		Layout:     LayoutIndexed,
		Palette:    palette,
	}
	d.frames = append(d.frames, rec)
	d.attrs.FrameCount = len(d.frames)
	d.startFrameData()
	return d.cur.Skip(size + 1)
}

func (d *GIFDecoder) startFrameData() {
	d.row = 0
	d.rowFill = 0
	d.codesEnded = false
	d.blocksDone = false
	clear(d.rowBuf)
}

// NextScanline decodes the next row of the current frame. It returns io.EOF
// once every row of the frame has been delivered and the frame's remaining
// data blocks have been consumed.
func (d *GIFDecoder) NextScanline() (Scanline, error) {
	switch d.state {
	case gifFailed:
		return Scanline{}, d.err
	case gifImageData:
	default:
		return Scanline{}, io.EOF
	}

	if d.row >= d.frame.Height {
		if err := d.finishFrame(); err != nil {
			return Scanline{}, err
		}
		return Scanline{}, io.EOF
	}

	w := d.frame.Width
	for d.rowFill < w {
		if d.codesEnded {
			fill := byte(d.bgIndex)
			if d.bgIndex >= len(d.frameInfo.Palette) {
				fill = 0
			}
			for i := d.rowFill; i < w; i++ {
				d.rowBuf[i] = fill
			}
			d.rowFill = w
			break
		}

		n, err := d.lzw.Decode(d.rowBuf[d.rowFill:w])
		d.rowFill += n
		switch {
		case err == nil:
			d.codesEnded = true
		case errors.Is(err, io.ErrShortBuffer):
		case errors.Is(err, ErrNeedMoreInput):
			if d.rowFill == w {
				break
			}
			if err := d.nextDataBlock(); err != nil {
				return Scanline{}, err
			}
		default:
			var ce *CodecError
			if errors.As(err, &ce) {
				err = ce.Err
			}
			return Scanline{}, d.fail(decodeRowError(FormatGIF, "decode lzw", d.row, err))
		}
	}

	line := Scanline{Row: d.row, Pix: d.rowBuf[:w]}
	d.row++
	d.rowFill = 0
	return line, nil
}

// nextDataBlock hands the next image data sub-block to the decompressor. A
// block terminator ends the code stream early.
func (d *GIFDecoder) nextDataBlock() error {
	p, err := d.cur.Peek(1)
	if err != nil {
		return err
	}
	n := int(p[0])
	if n == 0 {
		if err := d.cur.Skip(1); err != nil {
			return err
		}
		d.codesEnded = true
		d.blocksDone = true
		return nil
	}
	p, err = d.cur.Peek(1 + n)
	if err != nil {
		return err
	}
	d.lzw.SetSource(p[1:])
	return d.cur.Skip(1 + n)
}

// finishFrame consumes the data blocks left after the last row.
func (d *GIFDecoder) finishFrame() error {
	for !d.blocksDone {
		p, err := d.cur.Peek(1)
		if err != nil {
			return err
		}
		n := int(p[0])
		if err := d.cur.Skip(1 + n); err != nil {
			return err
		}
		if n == 0 {
			d.blocksDone = true
		}
	}
	d.state = gifExtOrImage
	return nil
}

// SkipFrame discards the current frame's data blocks without decoding them.
func (d *GIFDecoder) SkipFrame() error {
	switch d.state {
	case gifFailed:
		return d.err
	case gifImageData:
		return d.finishFrame()
	}
	return nil
}

// Rewind restarts the current frame at its first row.
func (d *GIFDecoder) Rewind() error {
	if d.state != gifImageData && d.state != gifExtOrImage && d.state != gifTail {
		return fatalError(FormatGIF, "rewind", ErrBadParameter)
	}
	if len(d.frames) == 0 {
		return fatalError(FormatGIF, "rewind", ErrBadParameter)
	}
	start := d.frame.DataOffset + 1
	if start < d.cur.Start() {
		return fatalError(FormatGIF, "rewind", ErrRewindUnavailable)
	}
	if err := d.cur.SeekOffset(start); err != nil {
		return fatalError(FormatGIF, "rewind", err)
	}
	d.lzw.Reset()
	d.startFrameData()
	d.state = gifImageData
	return nil
}

// DecodeFrames drives dec through the rest of the stream, reporting every
// frame to dl before its rows. It returns nil at the trailer and
// ErrNeedMoreInput when the buffered input runs out; calling it again after
// Feed continues where it stopped without reporting a frame twice.
func DecodeFrames(dec *GIFDecoder, dl Delegate) error {
	for {
		if dec.state != gifImageData {
			rec, err := dec.NextFrame()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
			dl.OnFrameRecord(rec)
		}
		if err := DecodeScanlines(dec, dl); err != nil {
			return err
		}
	}
}

var (
	gifPassStart = [4]int{0, 4, 2, 1}
	gifPassStep  = [4]int{8, 8, 4, 2}
)

// GIFInterlacedRow maps the n-th row of an interlaced frame's stream to its
// image row. It returns -1 when n is outside the frame.
func GIFInterlacedRow(n, height int) int {
	if n < 0 {
		return -1
	}
	for pass := range gifPassStart {
		start, step := gifPassStart[pass], gifPassStep[pass]
		count := 0
		if height > start {
			count = (height - start + step - 1) / step
		}
		if n < count {
			return start + n*step
		}
		n -= count
	}
	return -1
}
