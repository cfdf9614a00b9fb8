// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package imgcodec

import (
	"errors"
	"fmt"
	"io"
	"math/bits"
	"strconv"
	"strings"
)

// FaxParams contains the CCITTFaxDecode parameters of a bilevel image.
type FaxParams struct {
	K                int  // <0: pure 2-D (Group 4), 0: pure 1-D (Group 3), >0: mixed
	EndOfLine        bool // rows are preceded by EOL codes
	EncodedByteAlign bool // rows start on byte boundaries
	EndOfBlock       bool // data ends with EOFB (K<0) or RTC (K>=0)
	BlackIs1         bool // 1 bits are black in the decoded rows
	Columns          int  // width of image in pixels (default: 1728)
	Rows             int  // height of image (0 = decode until the end of block)
}

// DefaultFaxParams returns the CCITTFaxDecode defaults.
func DefaultFaxParams() FaxParams {
	return FaxParams{
		K:          0,
		Columns:    1728,
		EndOfBlock: true,
	}
}

// ParseFaxParams parses a comma separated list of Name=value pairs, such as
// "K=-1,Columns=2480,BlackIs1=true", on top of DefaultFaxParams. Names are
// matched case-insensitively.
func ParseFaxParams(s string) (FaxParams, error) {
	params := DefaultFaxParams()
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		name, value, ok := strings.Cut(field, "=")
		if !ok {
			return params, fmt.Errorf("fax parameter %q has no value: %w", field, ErrBadParameter)
		}
		value = strings.TrimSpace(value)

		var err error
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "k":
			params.K, err = strconv.Atoi(value)
		case "columns":
			params.Columns, err = strconv.Atoi(value)
		case "rows":
			params.Rows, err = strconv.Atoi(value)
		case "endofline":
			params.EndOfLine, err = strconv.ParseBool(value)
		case "encodedbytealign":
			params.EncodedByteAlign, err = strconv.ParseBool(value)
		case "endofblock":
			params.EndOfBlock, err = strconv.ParseBool(value)
		case "blackis1":
			params.BlackIs1, err = strconv.ParseBool(value)
		default:
			return params, fmt.Errorf("unknown fax parameter %q: %w", name, ErrBadParameter)
		}
		if err != nil {
			return params, fmt.Errorf("fax parameter %s=%q: %w", name, value, ErrBadParameter)
		}
	}
	return params, params.validate()
}

func (p FaxParams) validate() error {
	if p.Columns <= 0 || p.Columns > MaxDimension {
		return fmt.Errorf("fax columns %d: %w", p.Columns, ErrInvalidDimensions)
	}
	if p.Rows < 0 || p.Rows > MaxDimension {
		return fmt.Errorf("fax rows %d: %w", p.Rows, ErrInvalidDimensions)
	}
	return nil
}

// faxPalette maps the two decoded bit values to ARGB.
func faxPalette(blackIs1 bool) []uint32 {
	if blackIs1 {
		return []uint32{0xFFFFFFFF, 0xFF000000}
	}
	return []uint32{0xFF000000, 0xFFFFFFFF}
}

// FaxDecoder decodes CCITT Group 3 and Group 4 data held completely in
// memory. Rows are 1 bit per pixel, MSB first, with 1 meaning white unless
// BlackIs1 is set.
type FaxDecoder struct {
	params   FaxParams
	info     ImageInfo
	src      []byte
	bitSize  int
	bitPos   int
	row      int
	rowBytes int
	align    bool
	done     bool
	err      error

	ref  []byte // previous row, 1 = white
	line []byte
	out  []byte // inverted copy of line for BlackIs1

	pending []byte // undelivered part of a row for Read
}

// NewFaxDecoder returns a decoder for src, which must not be modified while
// the decoder is in use.
func NewFaxDecoder(src []byte, params FaxParams) (*FaxDecoder, error) {
	if err := params.validate(); err != nil {
		return nil, decodeError(FormatFax, "fax", err)
	}
	pitch, err := alignedPitch(params.Columns, 1)
	if err != nil {
		return nil, decodeError(FormatFax, "fax", err)
	}
	d := &FaxDecoder{
		params:   params,
		src:      src,
		bitSize:  len(src) * 8,
		rowBytes: (params.Columns + 7) / 8,
		ref:      make([]byte, pitch),
		line:     make([]byte, pitch),
	}
	if params.BlackIs1 {
		d.out = make([]byte, pitch)
	}
	d.info = ImageInfo{
		Format:     FormatFax,
		Width:      params.Columns,
		Height:     params.Rows,
		BPC:        1,
		Components: 1,
		Pitch:      pitch,
		TopDown:    true,
		Layout:     LayoutGray1,
		Palette:    faxPalette(params.BlackIs1),
	}
	d.Rewind()
	return d, nil
}

// Info describes the decoded rows. Height is 0 when Rows was not given.
func (d *FaxDecoder) Info() ImageInfo { return d.info }

// Rewind restarts decoding at the first row. It always succeeds because the
// whole strip is in memory.
func (d *FaxDecoder) Rewind() error {
	d.bitPos = 0
	d.row = 0
	d.align = d.params.EncodedByteAlign
	d.done = false
	d.err = nil
	d.pending = nil
	for i := range d.ref {
		d.ref[i] = 0xFF
	}
	return nil
}

// Remaining returns the number of whole bytes not yet consumed.
func (d *FaxDecoder) Remaining() int {
	return (d.bitSize - d.bitPos) / 8
}

func (d *FaxDecoder) fail(err error) (Scanline, error) {
	d.err = decodeRowError(FormatFax, "fax", d.row, err)
	return Scanline{}, d.err
}

// NextScanline decodes the next row.
func (d *FaxDecoder) NextScanline() (Scanline, error) {
	if d.err != nil {
		return Scanline{}, d.err
	}
	if d.done || (d.params.Rows > 0 && d.row >= d.params.Rows) {
		return Scanline{}, io.EOF
	}
	if d.skipEOLs() >= 2 || d.atEnd() {
		if d.params.Rows == 0 {
			d.done = true
			return Scanline{}, io.EOF
		}
		return d.fail(ErrTruncated)
	}

	for i := range d.line {
		d.line[i] = 0xFF
	}
	var err error
	switch {
	case d.params.K < 0:
		err = d.decode2D()
	case d.params.K == 0:
		err = d.decode1D()
	default:
		oneD, ok := d.nextBit()
		switch {
		case !ok:
			err = ErrTruncated
		case oneD:
			err = d.decode1D()
		default:
			err = d.decode2D()
		}
	}
	if err != nil {
		return d.fail(err)
	}
	copy(d.ref, d.line)
	if d.align {
		d.alignToByte()
	}

	pix := d.line
	if d.params.BlackIs1 {
		for i, b := range d.line {
			d.out[i] = ^b
		}
		pix = d.out
	}
	row := d.row
	d.row++
	return Scanline{Row: row, Pix: pix}, nil
}

// Read implements io.Reader over the decoded rows, each (Columns+7)/8 bytes
// without padding.
func (d *FaxDecoder) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(d.pending) == 0 {
			line, err := d.NextScanline()
			if err != nil {
				if n > 0 {
					return n, nil
				}
				return 0, err
			}
			d.pending = line.Pix[:d.rowBytes]
		}
		k := copy(p[n:], d.pending)
		d.pending = d.pending[k:]
		n += k
	}
	return n, nil
}

func (d *FaxDecoder) bitAt(pos int) bool {
	return d.src[pos>>3]&(0x80>>uint(pos&7)) != 0
}

func (d *FaxDecoder) nextBit() (bit, ok bool) {
	if d.bitPos >= d.bitSize {
		return false, false
	}
	bit = d.bitAt(d.bitPos)
	d.bitPos++
	return bit, true
}

// peek returns the next n <= 24 bits MSB first, zero padded past the end.
func (d *FaxDecoder) peek(n int) uint32 {
	i := d.bitPos >> 3
	var w uint32
	for k := 0; k < 4; k++ {
		w <<= 8
		if i+k < len(d.src) {
			w |= uint32(d.src[i+k])
		}
	}
	return w << uint(d.bitPos&7) >> uint(32-n)
}

// atEnd reports whether only zero fill bits are left.
func (d *FaxDecoder) atEnd() bool {
	rem := d.bitSize - d.bitPos
	return rem <= 0 || (rem < 8 && d.peek(rem) == 0)
}

// eolAt returns the length of the EOL code starting at pos: at least eleven
// zero bits followed by a one. Shorter zero runs are not EOLs and yield 0.
func (d *FaxDecoder) eolAt(pos int) int {
	for p := pos; p < d.bitSize; p++ {
		if d.bitAt(p) {
			if p-pos < 11 {
				return 0
			}
			return p - pos + 1
		}
	}
	return 0
}

// skipEOLs consumes consecutive EOL codes and returns how many it saw. In
// mixed mode the tag bit between two EOLs belongs to the run of EOLs.
func (d *FaxDecoder) skipEOLs() int {
	n := 0
	for {
		if l := d.eolAt(d.bitPos); l > 0 {
			d.bitPos += l
			n++
			continue
		}
		if n > 0 && d.params.K > 0 && d.bitPos < d.bitSize && d.bitAt(d.bitPos) {
			if l := d.eolAt(d.bitPos + 1); l > 0 {
				d.bitPos += 1 + l
				n++
				continue
			}
		}
		return n
	}
}

// alignToByte skips to the next byte boundary when the bits in between are
// all zero. A set bit means the encoder did not align, and alignment stays
// off for the rest of the image.
func (d *FaxDecoder) alignToByte() {
	next := min((d.bitPos+7)&^7, d.bitSize)
	for p := d.bitPos; p < next; p++ {
		if d.bitAt(p) {
			d.align = false
			return
		}
	}
	d.bitPos = next
}

// readRun reads makeup codes followed by one terminating code and returns
// the run length they add up to.
func (d *FaxDecoder) readRun(white bool) (int, error) {
	table := &faxBlackLookup
	if white {
		table = &faxWhiteLookup
	}
	run := 0
	for {
		e := table[d.peek(faxLookupBits)]
		rem := d.bitSize - d.bitPos
		if e.bits == 0 {
			if rem < faxLookupBits {
				return 0, ErrTruncated
			}
			return 0, ErrInvalidCode
		}
		if int(e.bits) > rem {
			return 0, ErrTruncated
		}
		d.bitPos += int(e.bits)
		run += int(e.run)
		if e.run < 64 {
			return run, nil
		}
	}
}

// decode1D decodes a Modified Huffman row of alternating white and black
// runs. An invalid code ends the row after resynchronising on the next one
// bit, keeping the pixels decoded so far.
func (d *FaxDecoder) decode1D() error {
	cols := d.params.Columns
	a0 := 0
	white := true
	for a0 < cols {
		run, err := d.readRun(white)
		if errors.Is(err, ErrInvalidCode) {
			for d.bitPos < d.bitSize {
				if bit, _ := d.nextBit(); bit {
					break
				}
			}
			return nil
		}
		if err != nil {
			return err
		}
		a1 := a0 + run
		if a1 > cols {
			return ErrRowOverrun
		}
		if !white {
			faxFillBits(d.line, cols, a0, a1)
		}
		a0 = a1
		white = !white
	}
	return nil
}

// 2-D mode codes.
const (
	faxModePass = iota
	faxModeHorizontal
	faxModeVertical
	faxModeExtension
	faxModeEOL
)

// readMode reads one 2-D mode code. For vertical modes delta is a1-b1.
func (d *FaxDecoder) readMode() (mode, delta int, err error) {
	// Count leading zeros up to the longest mode prefix.
	zeros := 0
	for {
		bit, ok := d.nextBit()
		if !ok {
			return 0, 0, ErrTruncated
		}
		if bit {
			break
		}
		zeros++
		if zeros == 7 {
			return faxModeEOL, 0, nil
		}
	}
	switch zeros {
	case 0: // 1
		return faxModeVertical, 0, nil
	case 2: // 001
		return faxModeHorizontal, 0, nil
	case 3: // 0001
		return faxModePass, 0, nil
	case 6: // 0000001
		return faxModeExtension, 0, nil
	}
	right, ok := d.nextBit()
	if !ok {
		return 0, 0, ErrTruncated
	}
	switch zeros {
	case 1: // 01x
		delta = 1
	case 4: // 00001x
		delta = 2
	case 5: // 000001x
		delta = 3
	}
	if !right {
		delta = -delta
	}
	return faxModeVertical, delta, nil
}

// decode2D decodes a Modified READ row against the reference row.
func (d *FaxDecoder) decode2D() error {
	cols := d.params.Columns
	a0 := -1
	white := true
	for {
		b1, b2 := faxFindB1B2(d.ref, cols, a0, white)
		mode, delta, err := d.readMode()
		if err != nil {
			return err
		}

		switch mode {
		case faxModePass:
			if !white {
				faxFillBits(d.line, cols, a0, b2)
			}
			if b2 >= cols {
				return nil
			}
			a0 = b2
			continue

		case faxModeHorizontal:
			run1, err := d.readRun(white)
			if err != nil {
				return err
			}
			if a0 < 0 {
				run1++
			}
			a1 := a0 + run1
			run2, err := d.readRun(!white)
			if err != nil {
				return err
			}
			a2 := a1 + run2
			if a1 > cols || a2 > cols {
				return ErrRowOverrun
			}
			if white {
				faxFillBits(d.line, cols, a1, a2)
			} else {
				faxFillBits(d.line, cols, a0, a1)
			}
			a0 = a2
			if a0 >= cols {
				return nil
			}
			continue

		case faxModeExtension:
			// Uncompressed mode is not supported; its 3 bit selector is skipped.
			d.bitPos += 3
			continue

		case faxModeEOL:
			// Seven zeros start an EOL: the row ends here.
			d.bitPos += 5
			return nil
		}

		a1 := b1 + delta
		if a1 > cols {
			return ErrRowOverrun
		}
		if a1 <= a0 {
			return ErrNotMonotonic
		}
		if !white {
			faxFillBits(d.line, cols, a0, a1)
		}
		if a1 == cols {
			return nil
		}
		a0 = a1
		white = !white
	}
}

// faxFindB1B2 locates b1, the first changing element on the reference row
// right of a0 whose colour is opposite to a0's, and b2, the next change
// after it. Both are cols when the row has no such element.
func faxFindB1B2(ref []byte, cols, a0 int, a0white bool) (b1, b2 int) {
	first := a0 < 0 || ref[a0>>3]&(0x80>>uint(a0&7)) != 0
	b1 = faxFindBit(ref, cols, a0+1, !first)
	if b1 >= cols {
		return cols, cols
	}
	if first == !a0white {
		b1 = faxFindBit(ref, cols, b1+1, first)
		first = !first
	}
	if b1 >= cols {
		return cols, cols
	}
	return b1, faxFindBit(ref, cols, b1+1, first)
}

// faxFindBit returns the first position in [start, end) whose bit is set
// when white is true or clear when it is false, or end when there is none.
func faxFindBit(buf []byte, end, start int, white bool) int {
	for start < end {
		b := buf[start>>3]
		if !white {
			b = ^b
		}
		b &= 0xFF >> uint(start&7)
		if b != 0 {
			return min(start&^7+bits.LeadingZeros8(b), end)
		}
		start = start&^7 + 8
	}
	return end
}

// faxFillBits marks pixels [start, end) of a row as black.
func faxFillBits(buf []byte, cols, start, end int) {
	start = max(start, 0)
	end = min(end, cols)
	if start >= end {
		return
	}
	first, last := start>>3, (end-1)>>3
	head := byte(0xFF >> uint(start&7))
	tail := byte(0xFF << uint(7-((end-1)&7)))
	if first == last {
		buf[first] &^= head & tail
		return
	}
	buf[first] &^= head
	for i := first + 1; i < last; i++ {
		buf[i] = 0
	}
	buf[last] &^= tail
}
