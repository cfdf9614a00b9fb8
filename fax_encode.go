// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package imgcodec

import "fmt"

// Vertical mode codes indexed by a1-b1+3.
var faxVerticalCodes = [7]faxCode{
	{0x02, 7, 0}, // VL3 0000010
	{0x02, 6, 0}, // VL2 000010
	{0x02, 3, 0}, // VL1 010
	{0x01, 1, 0}, // V0  1
	{0x03, 3, 0}, // VR1 011
	{0x03, 6, 0}, // VR2 000011
	{0x03, 7, 0}, // VR3 0000011
}

var (
	faxPassCode       = faxCode{0x1, 4, 0}  // 0001
	faxHorizontalCode = faxCode{0x1, 3, 0}  // 001
	faxEOLCode        = faxCode{0x1, 12, 0} // 000000000001
)

// faxBitWriter packs codes MSB first.
type faxBitWriter struct {
	buf   []byte
	acc   uint64
	nbits int
}

func (w *faxBitWriter) write(code uint32, n int) {
	w.acc = w.acc<<uint(n) | uint64(code)
	w.nbits += n
	for w.nbits >= 8 {
		w.nbits -= 8
		w.buf = append(w.buf, byte(w.acc>>uint(w.nbits)))
	}
}

func (w *faxBitWriter) writeCode(c faxCode) { w.write(uint32(c.code), int(c.bits)) }

// align pads with zero bits up to the next byte boundary.
func (w *faxBitWriter) align() {
	if w.nbits > 0 {
		w.write(0, 8-w.nbits)
	}
}

// FaxEncoder produces CCITT Group 3 or Group 4 data that FaxDecoder reads
// back with the same parameters.
type FaxEncoder struct {
	params   FaxParams
	w        faxBitWriter
	rowBytes int
	ref      []byte
	cur      []byte
	rows     int
	closed   bool
}

// NewFaxEncoder returns an encoder for rows of params.Columns pixels.
func NewFaxEncoder(params FaxParams) (*FaxEncoder, error) {
	if err := params.validate(); err != nil {
		return nil, fmt.Errorf("fax encoder: %w", err)
	}
	rowBytes := (params.Columns + 7) / 8
	e := &FaxEncoder{
		params:   params,
		rowBytes: rowBytes,
		ref:      make([]byte, rowBytes),
		cur:      make([]byte, rowBytes),
	}
	for i := range e.ref {
		e.ref[i] = 0xFF
	}
	return e, nil
}

// EncodeRow appends one row of packed pixels in the layout FaxDecoder
// produces: MSB first, 1 meaning white unless BlackIs1 is set.
func (e *FaxEncoder) EncodeRow(row []byte) error {
	if e.closed {
		return fmt.Errorf("fax encoder closed: %w", ErrBadParameter)
	}
	if len(row) < e.rowBytes {
		return fmt.Errorf("fax row has %d bytes, need %d: %w", len(row), e.rowBytes, ErrBadParameter)
	}
	copy(e.cur, row)
	if e.params.BlackIs1 {
		for i := range e.cur {
			e.cur[i] = ^e.cur[i]
		}
	}

	if e.params.EndOfLine {
		e.w.writeCode(faxEOLCode)
	}
	switch k := e.params.K; {
	case k < 0:
		e.encode2D()
	case k == 0:
		e.encode1D()
	case e.rows%k == 0:
		e.w.write(1, 1)
		e.encode1D()
	default:
		e.w.write(0, 1)
		e.encode2D()
	}
	if e.params.EncodedByteAlign {
		e.w.align()
	}
	e.ref, e.cur = e.cur, e.ref
	e.rows++
	return nil
}

// Close writes the end of block marker when EndOfBlock is set and returns
// the encoded data, padded to a whole byte.
func (e *FaxEncoder) Close() []byte {
	if !e.closed {
		e.closed = true
		if e.params.EndOfBlock {
			e.writeEndOfBlock()
		}
		e.w.align()
	}
	return e.w.buf
}

// writeEndOfBlock emits EOFB (two EOLs) for Group 4 and RTC (six EOLs, each
// followed by a 1 tag bit in mixed mode) for Group 3.
func (e *FaxEncoder) writeEndOfBlock() {
	if e.params.K < 0 {
		e.w.writeCode(faxEOLCode)
		e.w.writeCode(faxEOLCode)
		return
	}
	for i := 0; i < 6; i++ {
		e.w.writeCode(faxEOLCode)
		if e.params.K > 0 {
			e.w.write(1, 1)
		}
	}
}

func (e *FaxEncoder) writeRun(run int, white bool) {
	term, makeup := &faxBlackTerm, &faxBlackMakeup
	if white {
		term, makeup = &faxWhiteTerm, &faxWhiteMakeup
	}
	for run >= 2560 {
		e.w.writeCode(makeup[2560/64])
		run -= 2560
	}
	if run >= 64 {
		e.w.writeCode(makeup[run/64])
		run %= 64
	}
	e.w.writeCode(term[run])
}

func (e *FaxEncoder) encode1D() {
	cols := e.params.Columns
	a0 := 0
	white := true
	for a0 < cols {
		a1 := faxFindBit(e.cur, cols, a0, !white)
		e.writeRun(a1-a0, white)
		a0 = a1
		white = !white
	}
}

func (e *FaxEncoder) encode2D() {
	cols := e.params.Columns
	a0 := -1
	white := true
	for {
		a1 := faxFindBit(e.cur, cols, a0+1, !white)
		b1, b2 := faxFindB1B2(e.ref, cols, a0, white)
		if b2 < a1 {
			e.w.writeCode(faxPassCode)
			a0 = b2
			continue
		}
		if delta := a1 - b1; delta >= -3 && delta <= 3 {
			e.w.writeCode(faxVerticalCodes[delta+3])
			a0 = a1
			white = !white
		} else {
			a2 := faxFindBit(e.cur, cols, a1+1, white)
			e.w.writeCode(faxHorizontalCode)
			e.writeRun(a1-max(a0, 0), white)
			e.writeRun(a2-a1, !white)
			a0 = a2
		}
		if a0 >= cols {
			return
		}
	}
}

// EncodeFax encodes params.Rows rows of packed pixels stored pitch bytes
// apart.
func EncodeFax(pix []byte, pitch int, params FaxParams) ([]byte, error) {
	e, err := NewFaxEncoder(params)
	if err != nil {
		return nil, err
	}
	if params.Rows <= 0 || pitch < e.rowBytes || len(pix) < (params.Rows-1)*pitch+e.rowBytes {
		return nil, fmt.Errorf("fax encode %d rows at pitch %d from %d bytes: %w", params.Rows, pitch, len(pix), ErrBadParameter)
	}
	for y := 0; y < params.Rows; y++ {
		if err := e.EncodeRow(pix[y*pitch:]); err != nil {
			return nil, err
		}
	}
	return e.Close(), nil
}
