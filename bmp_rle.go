// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package imgcodec

import "io"

// RLE escape codes, the second byte of a pair whose first byte is zero.
const (
	rleEndOfLine   = 0
	rleEndOfBitmap = 1
	rleDelta       = 2
)

// nextRLEScanline decodes RLE8 and RLE4 data. The row buffer accumulates runs
// until an end-of-line, delta or end-of-bitmap escape closes it. Rows skipped
// by a delta or left over after end-of-bitmap are emitted zero filled.
func (d *BMPDecoder) nextRLEScanline() (Scanline, error) {
	for {
		if d.rleDirty {
			clear(d.rowBuf)
			d.rleDirty = false
		}
		if d.rlePend > 0 {
			d.rlePend--
			return d.emitRLERow(), nil
		}
		if d.rowsDone >= d.info.Height || d.rleEnded {
			d.state = bmpTail
			return Scanline{}, io.EOF
		}

		saved := d.cur.Pos()
		p, err := d.cur.Read(2)
		if err != nil {
			return Scanline{}, err
		}
		count, value := int(p[0]), p[1]

		if count != 0 {
			if err := d.rleRun(count, value); err != nil {
				return Scanline{}, d.fail(decodeRowError(FormatBMP, d.rleOp(), d.outputRow(), err))
			}
			continue
		}

		switch value {
		case rleEndOfLine:
			d.rleCol = 0
			d.rlePend = 1
		case rleEndOfBitmap:
			d.rleEnded = true
			d.rlePend = d.info.Height - d.rowsDone
		case rleDelta:
			q, err := d.cur.Read(2)
			if err != nil {
				_ = d.cur.Seek(saved)
				return Scanline{}, err
			}
			dx, dy := int(q[0]), int(q[1])
			if d.rleCol+dx > d.info.Width || d.rowsDone+dy > d.info.Height {
				return Scanline{}, d.fail(decodeRowError(FormatBMP, d.rleOp(), d.outputRow(), ErrRowOverrun))
			}
			d.rleCol += dx
			d.rlePend = dy
		default:
			n := int(value)
			size := n
			if d.compression == bmpRLE4 {
				size = (n + 1) / 2
			}
			size += size & 1
			q, err := d.cur.Read(size)
			if err != nil {
				_ = d.cur.Seek(saved)
				return Scanline{}, err
			}
			if err := d.rleLiteral(n, q); err != nil {
				return Scanline{}, d.fail(decodeRowError(FormatBMP, d.rleOp(), d.outputRow(), err))
			}
		}
	}
}

func (d *BMPDecoder) rleOp() string {
	if d.compression == bmpRLE4 {
		return "decode rle4"
	}
	return "decode rle8"
}

func (d *BMPDecoder) emitRLERow() Scanline {
	line := Scanline{Row: d.outputRow(), Pix: d.rowBuf}
	d.rowsDone++
	d.rleDirty = true
	return line
}

// rleRun writes count pixels of an encoded run. For RLE4 the two nibbles of
// value alternate, high nibble first.
func (d *BMPDecoder) rleRun(count int, value byte) error {
	if d.rleCol+count > d.info.Width {
		return ErrRowOverrun
	}
	dst := d.rowBuf[d.rleCol : d.rleCol+count]
	if d.compression == bmpRLE8 {
		if int(value) >= d.paletteSz {
			return ErrPaletteIndex
		}
		for i := range dst {
			dst[i] = value
		}
	} else {
		hi, lo := value>>4, value&0x0F
		if int(hi) >= d.paletteSz || (count > 1 && int(lo) >= d.paletteSz) {
			return ErrPaletteIndex
		}
		for i := range dst {
			if i&1 == 0 {
				dst[i] = hi
			} else {
				dst[i] = lo
			}
		}
	}
	d.rleCol += count
	return nil
}

// rleLiteral copies n absolute-mode pixels from src.
func (d *BMPDecoder) rleLiteral(n int, src []byte) error {
	if d.rleCol+n > d.info.Width {
		return ErrRowOverrun
	}
	dst := d.rowBuf[d.rleCol : d.rleCol+n]
	for i := range dst {
		v := src[i>>1]
		if d.compression == bmpRLE8 {
			v = src[i]
		} else if i&1 == 0 {
			v >>= 4
		} else {
			v &= 0x0F
		}
		if int(v) >= d.paletteSz {
			return ErrPaletteIndex
		}
		dst[i] = v
	}
	d.rleCol += n
	return nil
}
