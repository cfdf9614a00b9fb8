// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package imgcodec

import (
	"io"
	"math/bits"
)

// BMP compression methods
const (
	bmpRGB       = 0
	bmpRLE8      = 1
	bmpRLE4      = 2
	bmpBitfields = 3
)

const (
	bmpFileHeaderSize = 14
	bmpCoreHeaderSize = 12
	bmpInfoHeaderSize = 40
	bmpMaxHeaderSize  = 1 << 16
)

type bmpState int

const (
	bmpHeader bmpState = iota
	bmpPalette
	bmpDataPending
	bmpData
	bmpTail
	bmpFailed
)

// bmpChannel extracts one 8-bit channel from a 16-bit BITFIELDS pixel.
type bmpChannel struct {
	mask  uint32
	shift uint
	width int
}

func newBMPChannel(mask uint32) bmpChannel {
	if mask == 0 {
		return bmpChannel{}
	}
	return bmpChannel{
		mask:  mask,
		shift: uint(bits.TrailingZeros32(mask)),
		width: bits.OnesCount32(mask),
	}
}

func (c bmpChannel) extract(v uint32) byte {
	if c.mask == 0 {
		return 0
	}
	x := (v & c.mask) >> c.shift
	if c.width >= 8 {
		return byte(x >> uint(c.width-8))
	}
	return byte(x << uint(8-c.width))
}

// BMPDecoder decodes a Windows bitmap incrementally. Input is appended with
// Feed; ReadHeader and NextScanline return ErrNeedMoreInput whenever the
// buffered bytes end inside a header, palette or row and leave the decoder
// positioned so that the same call can be repeated after more input arrives.
type BMPDecoder struct {
	cur    *InputCursor
	opts   DecoderOptions
	state  bmpState
	err    error
	info   ImageInfo
	attrs  Attributes
	header bool

	dataOffset  int64
	infoSize    int
	bitCount    int
	compression uint32
	colorUsed   int
	entrySize   int // palette entry size, 3 for core headers
	channels    [3]bmpChannel

	srcPitch  int
	outBytes  int // meaningful bytes of an output row
	rowBuf    []byte
	rowsDone  int
	rleCol    int
	rlePend   int
	rleDirty  bool
	rleEnded  bool
	paletteSz int
}

// NewBMPDecoder returns a decoder with an empty input buffer.
func NewBMPDecoder(opts DecoderOptions) *BMPDecoder {
	return &BMPDecoder{cur: NewInputCursor(nil), opts: opts}
}

// Feed appends p to the decoder's input.
func (d *BMPDecoder) Feed(p []byte) {
	if !d.opts.RetainInput && d.state >= bmpData && d.cur.Pos() > 0 {
		d.cur.Compact()
	}
	d.cur.Feed(p)
}

// Remaining returns the number of buffered bytes not yet consumed.
func (d *BMPDecoder) Remaining() int { return d.cur.Unread() }

// Info returns the image description; it is valid after ReadHeader succeeds.
func (d *BMPDecoder) Info() ImageInfo { return d.info }

// Attributes returns the resolution read from the info header.
func (d *BMPDecoder) Attributes() Attributes { return d.attrs }

func (d *BMPDecoder) fail(err error) error {
	d.state = bmpFailed
	d.err = err
	return err
}

// ReadHeader parses the file header, the info header and the palette.
func (d *BMPDecoder) ReadHeader() (ImageInfo, error) {
	if d.state == bmpFailed {
		return ImageInfo{}, d.err
	}
	if d.state == bmpHeader {
		if err := d.readInfoHeader(); err != nil {
			return ImageInfo{}, err
		}
		d.state = bmpPalette
	}
	if d.state == bmpPalette {
		if err := d.readPalette(); err != nil {
			return ImageInfo{}, err
		}
		d.state = bmpDataPending
		d.header = true
	}
	return d.info, nil
}

func (d *BMPDecoder) readInfoHeader() error {
	p, err := d.cur.Peek(bmpFileHeaderSize + 4)
	if err != nil {
		return err
	}
	if p[0] != 'B' || p[1] != 'M' {
		return d.fail(decodeError(FormatBMP, "read header", ErrInvalidSignature))
	}
	d.dataOffset = int64(le32(p[10:14]))
	infoSize := le32(p[14:18])
	switch {
	case infoSize == bmpCoreHeaderSize:
		d.entrySize = 3
	case infoSize >= bmpInfoHeaderSize && infoSize <= bmpMaxHeaderSize:
		d.entrySize = 4
	default:
		return d.fail(decodeError(FormatBMP, "read header", ErrUnsupportedFeature))
	}
	d.infoSize = int(infoSize)

	fixed := bmpCoreHeaderSize
	if d.entrySize == 4 {
		fixed = bmpInfoHeaderSize
	}
	p, err = d.cur.Peek(bmpFileHeaderSize + fixed)
	if err != nil {
		return err
	}
	h := p[bmpFileHeaderSize:]

	var width, height int64
	if d.entrySize == 3 {
		width = int64(le16(h[4:6]))
		height = int64(le16(h[6:8]))
		d.bitCount = int(le16(h[10:12]))
		d.compression = bmpRGB
	} else {
		width = int64(int32(le32(h[4:8])))
		height = int64(int32(le32(h[8:12])))
		d.bitCount = int(le16(h[14:16]))
		d.compression = le32(h[16:20])
		xppm := int32(le32(h[24:28]))
		yppm := int32(le32(h[28:32]))
		colorUsed := le32(h[32:36])
		if colorUsed > 1<<16 {
			colorUsed = 1<<16 + 1
		}
		d.colorUsed = int(colorUsed)
		if xppm > 0 && yppm > 0 {
			d.attrs = Attributes{XResolution: int(xppm), YResolution: int(yppm), Unit: UnitMeter}
		}
	}

	topDown := false
	if height < 0 {
		topDown = true
		height = -height
	}
	if width > MaxDimension || height > MaxDimension {
		return d.fail(decodeError(FormatBMP, "read header", ErrDimensionTooLarge))
	}
	if err := d.opts.Limits.checkDimensions(int(width), int(height)); err != nil {
		if err == ErrLimitExceeded {
			return d.fail(fatalError(FormatBMP, "read header", err))
		}
		return d.fail(decodeError(FormatBMP, "read header", err))
	}

	if err := d.checkDepth(topDown); err != nil {
		return d.fail(decodeError(FormatBMP, "read header", err))
	}

	layout := LayoutIndexed
	outBpp := 1
	switch d.bitCount {
	case 16, 24:
		layout, outBpp = LayoutBGR, 3
	case 32:
		layout, outBpp = LayoutBGRX, 4
	}
	srcPitch, err := alignedPitch(int(width), d.bitCount)
	if err != nil {
		return d.fail(fatalError(FormatBMP, "read header", err))
	}
	outPitch, err := alignedPitch(int(width), outBpp*8)
	if err != nil {
		return d.fail(fatalError(FormatBMP, "read header", err))
	}
	d.srcPitch = srcPitch
	d.outBytes = int(width) * outBpp
	d.rowBuf = make([]byte, outPitch)

	d.info = ImageInfo{
		Format:     FormatBMP,
		Width:      int(width),
		Height:     int(height),
		BPC:        8,
		Components: outBpp,
		Pitch:      outPitch,
		TopDown:    topDown,
		Layout:     layout,
	}
	if d.bitCount < 8 {
		d.info.BPC = d.bitCount
	}
	if layout == LayoutBGRX {
		d.info.Components = 3
	}

	// Nothing is consumed before the whole header is present.
	return d.cur.Skip(bmpFileHeaderSize + fixed)
}

// checkDepth validates the bit depth and compression pair.
func (d *BMPDecoder) checkDepth(topDown bool) error {
	switch d.bitCount {
	case 1, 4, 8, 16, 24, 32:
	default:
		return ErrUnsupportedFeature
	}
	switch d.compression {
	case bmpRGB:
	case bmpRLE8:
		if d.bitCount != 8 {
			return ErrUnsupportedFeature
		}
	case bmpRLE4:
		if d.bitCount != 4 {
			return ErrUnsupportedFeature
		}
	case bmpBitfields:
		if d.bitCount != 16 && d.bitCount != 32 {
			return ErrUnsupportedFeature
		}
	default:
		return ErrUnsupportedFeature
	}
	if topDown && (d.compression == bmpRLE8 || d.compression == bmpRLE4) {
		return ErrUnsupportedFeature
	}
	if d.bitCount < 16 && d.colorUsed > 1<<d.bitCount {
		return ErrPaletteIndex
	}
	return nil
}

func (d *BMPDecoder) readPalette() error {
	saved := d.cur.Offset()
	err := d.readMasksAndPalette()
	if err == ErrNeedMoreInput {
		if serr := d.cur.SeekOffset(saved); serr != nil {
			return d.fail(fatalError(FormatBMP, "read palette", serr))
		}
	}
	return err
}

func (d *BMPDecoder) readMasksAndPalette() error {
	if d.bitCount == 16 {
		masks := [3]uint32{0x7C00, 0x03E0, 0x001F}
		if d.compression == bmpBitfields {
			p, err := d.readAt(bmpFileHeaderSize+bmpInfoHeaderSize, 12)
			if err != nil {
				return err
			}
			masks = [3]uint32{le32(p[0:4]), le32(p[4:8]), le32(p[8:12])}
			if masks[0]&masks[1] != 0 || masks[0]&masks[2] != 0 || masks[1]&masks[2] != 0 {
				return d.fail(decodeError(FormatBMP, "read masks", ErrUnsupportedFeature))
			}
		}
		for i, m := range masks {
			d.channels[i] = newBMPChannel(m)
		}
	}
	if d.bitCount == 32 && d.compression == bmpBitfields {
		p, err := d.readAt(bmpFileHeaderSize+bmpInfoHeaderSize, 12)
		if err != nil {
			return err
		}
		if le32(p[0:4]) != 0x00FF0000 || le32(p[4:8]) != 0x0000FF00 || le32(p[8:12]) != 0x000000FF {
			return d.fail(decodeError(FormatBMP, "read masks", ErrUnsupportedFeature))
		}
	}

	if d.bitCount >= 16 {
		return nil
	}

	n := d.colorUsed
	if n == 0 {
		n = 1 << d.bitCount
	}
	start := int64(bmpFileHeaderSize + d.infoSize)
	if d.infoSize == bmpInfoHeaderSize && d.compression == bmpBitfields {
		start += 12
	}
	p, err := d.readAt(start, n*d.entrySize)
	if err != nil {
		return err
	}
	palette := make([]uint32, n)
	for i := range palette {
		e := p[i*d.entrySize:]
		palette[i] = 0xFF000000 | uint32(e[2])<<16 | uint32(e[1])<<8 | uint32(e[0])
	}
	d.info.Palette = palette
	d.paletteSz = n
	return nil
}

// readAt reads n bytes at an absolute stream offset.
func (d *BMPDecoder) readAt(off int64, n int) ([]byte, error) {
	if err := d.cur.SeekOffset(off); err != nil {
		if err == ErrNeedMoreInput {
			return nil, err
		}
		return nil, d.fail(decodeError(FormatBMP, "seek", err))
	}
	return d.cur.Read(n)
}

// NextScanline decodes the next row. Rows arrive in storage order; the
// returned Row is already mapped to top-down image coordinates.
func (d *BMPDecoder) NextScanline() (Scanline, error) {
	switch d.state {
	case bmpFailed:
		return Scanline{}, d.err
	case bmpHeader, bmpPalette:
		if _, err := d.ReadHeader(); err != nil {
			return Scanline{}, err
		}
	case bmpTail:
		return Scanline{}, io.EOF
	}

	if d.state == bmpDataPending {
		if err := d.cur.SeekOffset(d.dataOffset); err != nil {
			if err == ErrNeedMoreInput {
				return Scanline{}, err
			}
			return Scanline{}, d.fail(decodeError(FormatBMP, "seek pixel data", err))
		}
		d.state = bmpData
	}

	if d.compression == bmpRLE8 || d.compression == bmpRLE4 {
		return d.nextRLEScanline()
	}
	return d.nextRGBScanline()
}

func (d *BMPDecoder) outputRow() int {
	if d.info.TopDown {
		return d.rowsDone
	}
	return d.info.Height - 1 - d.rowsDone
}

func (d *BMPDecoder) nextRGBScanline() (Scanline, error) {
	if d.rowsDone >= d.info.Height {
		d.state = bmpTail
		return Scanline{}, io.EOF
	}
	src, err := d.cur.Read(d.srcPitch)
	if err != nil {
		return Scanline{}, err
	}
	row := d.outputRow()
	if err := d.unpackRow(src); err != nil {
		return Scanline{}, d.fail(decodeRowError(FormatBMP, "decode rgb", row, err))
	}
	d.rowsDone++
	return Scanline{Row: row, Pix: d.rowBuf}, nil
}

func (d *BMPDecoder) unpackRow(src []byte) error {
	w := d.info.Width
	dst := d.rowBuf
	switch d.bitCount {
	case 1:
		for i := 0; i < w; i++ {
			dst[i] = (src[i>>3] >> (7 - uint(i&7))) & 1
		}
	case 4:
		for i := 0; i < w; i++ {
			b := src[i>>1]
			if i&1 == 0 {
				b >>= 4
			}
			dst[i] = b & 0x0F
		}
	case 8:
		copy(dst, src[:w])
	case 16:
		for i := 0; i < w; i++ {
			v := uint32(le16(src[i*2:]))
			dst[i*3] = d.channels[2].extract(v)
			dst[i*3+1] = d.channels[1].extract(v)
			dst[i*3+2] = d.channels[0].extract(v)
		}
		return nil
	case 24, 32:
		copy(dst, src[:d.outBytes])
		return nil
	}
	for _, idx := range dst[:w] {
		if int(idx) >= d.paletteSz {
			return ErrPaletteIndex
		}
	}
	return nil
}

// Rewind restarts decoding at the first row of pixel data.
func (d *BMPDecoder) Rewind() error {
	if !d.header {
		return fatalError(FormatBMP, "rewind", ErrBadParameter)
	}
	if d.dataOffset < d.cur.Start() {
		return fatalError(FormatBMP, "rewind", ErrRewindUnavailable)
	}
	d.state = bmpDataPending
	d.err = nil
	d.rowsDone = 0
	d.rleCol = 0
	d.rlePend = 0
	d.rleEnded = false
	d.rleDirty = false
	clear(d.rowBuf)
	return nil
}
