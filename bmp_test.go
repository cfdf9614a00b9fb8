package imgcodec

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

type bmpFixture struct {
	width, height int32
	bpp           uint16
	compression   uint32
	colorUsed     uint32
	xppm, yppm    int32
	masks         []uint32
	palette       []uint32 // 0xRRGGBB
	data          []byte
}

func (f bmpFixture) bytes() []byte {
	var b bytes.Buffer
	le := binary.LittleEndian
	offset := 14 + 40 + 4*len(f.masks) + 4*len(f.palette)

	b.WriteString("BM")
	binary.Write(&b, le, uint32(offset+len(f.data)))
	binary.Write(&b, le, uint32(0))
	binary.Write(&b, le, uint32(offset))

	binary.Write(&b, le, uint32(40))
	binary.Write(&b, le, f.width)
	binary.Write(&b, le, f.height)
	binary.Write(&b, le, uint16(1))
	binary.Write(&b, le, f.bpp)
	binary.Write(&b, le, f.compression)
	binary.Write(&b, le, uint32(len(f.data)))
	binary.Write(&b, le, f.xppm)
	binary.Write(&b, le, f.yppm)
	binary.Write(&b, le, f.colorUsed)
	binary.Write(&b, le, uint32(0))

	for _, m := range f.masks {
		binary.Write(&b, le, m)
	}
	for _, c := range f.palette {
		binary.Write(&b, le, c)
	}
	b.Write(f.data)
	return b.Bytes()
}

func decodeBMP(t *testing.T, data []byte, chunk int) (ImageInfo, map[int][]byte, error) {
	t.Helper()
	d := NewBMPDecoder(DecoderOptions{Limits: DefaultDecodeLimits()})
	rows, err := drainRows(d, data, chunk)
	return d.Info(), rows, err
}

func TestBMPDecode24BitRed(t *testing.T) {
	red := []byte{0, 0, 255, 0, 0, 255, 0, 0}
	f := bmpFixture{width: 2, height: 2, bpp: 24, data: append(append([]byte{}, red...), red...)}

	info, rows, err := decodeBMP(t, f.bytes(), 0)
	require.NoError(t, err)
	require.Equal(t, 2, info.Width)
	require.Equal(t, 2, info.Height)
	require.Equal(t, LayoutBGR, info.Layout)
	require.False(t, info.TopDown)
	require.Len(t, rows, 2)
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			require.Equal(t, []byte{0, 0, 255}, rows[y][x*3:x*3+3], "pixel %d,%d", x, y)
		}
	}
}

func TestBMPRowOrder(t *testing.T) {
	// Bottom-up: the first stored row is the last image row.
	data := []byte{1, 0, 0, 0, 2, 0, 0, 0}
	f := bmpFixture{width: 1, height: 2, bpp: 8, colorUsed: 3, palette: []uint32{0, 0xFFFFFF, 0xFF0000}, data: data}

	d := NewBMPDecoder(DecoderOptions{})
	d.Feed(f.bytes())
	line, err := d.NextScanline()
	require.NoError(t, err)
	require.Equal(t, 1, line.Row)
	require.Equal(t, byte(1), line.Pix[0])

	f.height = -2
	d = NewBMPDecoder(DecoderOptions{})
	d.Feed(f.bytes())
	line, err = d.NextScanline()
	require.NoError(t, err)
	require.Equal(t, 0, line.Row)
	require.True(t, d.Info().TopDown)
}

func TestBMPHeaderRejects(t *testing.T) {
	tests := []struct {
		name string
		f    bmpFixture
		want error
	}{
		{"width above max", bmpFixture{width: 65536, height: 1, bpp: 24}, ErrDimensionTooLarge},
		{"height above max", bmpFixture{width: 1, height: -65536, bpp: 24}, ErrDimensionTooLarge},
		{"zero width", bmpFixture{width: 0, height: 1, bpp: 24}, ErrInvalidDimensions},
		{"bit depth", bmpFixture{width: 1, height: 1, bpp: 2}, ErrUnsupportedFeature},
		{"compression", bmpFixture{width: 1, height: 1, bpp: 8, compression: 4}, ErrUnsupportedFeature},
		{"rle8 depth", bmpFixture{width: 1, height: 1, bpp: 4, compression: bmpRLE8}, ErrUnsupportedFeature},
		{"rle4 depth", bmpFixture{width: 1, height: 1, bpp: 8, compression: bmpRLE4}, ErrUnsupportedFeature},
		{"bitfields depth", bmpFixture{width: 1, height: 1, bpp: 24, compression: bmpBitfields}, ErrUnsupportedFeature},
		{"top-down rle", bmpFixture{width: 1, height: -1, bpp: 8, compression: bmpRLE8}, ErrUnsupportedFeature},
		{"color used", bmpFixture{width: 1, height: 1, bpp: 1, colorUsed: 3}, ErrPaletteIndex},
		{"overlapping masks", bmpFixture{width: 1, height: 1, bpp: 16, compression: bmpBitfields,
			masks: []uint32{0xF800, 0x0FE0, 0x001F}, data: make([]byte, 4)}, ErrUnsupportedFeature},
		{"non-standard 32-bit masks", bmpFixture{width: 1, height: 1, bpp: 32, compression: bmpBitfields,
			masks: []uint32{0xFF, 0xFF00, 0xFF0000}, data: make([]byte, 4)}, ErrUnsupportedFeature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewBMPDecoder(DecoderOptions{})
			d.Feed(tt.f.bytes())
			_, err := d.ReadHeader()
			require.ErrorIs(t, err, tt.want)
			require.True(t, IsDecodeError(err), "got %v", err)

			// The failure is sticky.
			_, err = d.NextScanline()
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBMPBadSignature(t *testing.T) {
	d := NewBMPDecoder(DecoderOptions{})
	d.Feed([]byte("GIF89a......................................"))
	_, err := d.ReadHeader()
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestBMPHeaderSuspends(t *testing.T) {
	f := bmpFixture{width: 2, height: 1, bpp: 8, palette: []uint32{0x000000, 0xFFFFFF}, colorUsed: 2, data: []byte{0, 1, 0, 0}}
	data := f.bytes()

	d := NewBMPDecoder(DecoderOptions{})
	for i := 0; i < len(data); i++ {
		d.Feed(data[i : i+1])
		info, err := d.ReadHeader()
		if err == nil {
			require.Equal(t, 2, info.Width)
			require.Len(t, info.Palette, 2)
			require.Equal(t, uint32(0xFFFFFFFF), info.Palette[1])
			require.GreaterOrEqual(t, i, 14+40+8-1)
			return
		}
		require.ErrorIs(t, err, ErrNeedMoreInput)
	}
	t.Fatal("header never completed")
}

func TestBMPMatchesReferenceDecoder(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(0, 0, 5, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 5; x++ {
			rgba.Set(x, y, color.RGBA{uint8(x * 50), uint8(y * 80), uint8(x*y*15 + 7), 255})
		}
	}
	pal := make(color.Palette, 256)
	for i := range pal {
		pal[i] = color.RGBA{uint8(i), uint8(255 - i), uint8(i * 3), 255}
	}
	paletted := image.NewPaletted(image.Rect(0, 0, 7, 4), pal)
	for i := range paletted.Pix {
		paletted.Pix[i] = uint8(i * 37)
	}

	for _, m := range []image.Image{rgba, paletted} {
		var buf bytes.Buffer
		require.NoError(t, bmp.Encode(&buf, m))
		want, err := bmp.Decode(bytes.NewReader(buf.Bytes()))
		require.NoError(t, err)

		info, rows, err := decodeBMP(t, buf.Bytes(), 0)
		require.NoError(t, err)
		require.Equal(t, want.Bounds().Dx(), info.Width)
		require.Equal(t, want.Bounds().Dy(), info.Height)

		for y := 0; y < info.Height; y++ {
			for x := 0; x < info.Width; x++ {
				var r, g, b uint8
				if info.Layout == LayoutIndexed {
					c := info.Palette[rows[y][x]]
					r, g, b = uint8(c>>16), uint8(c>>8), uint8(c)
				} else {
					b, g, r = rows[y][x*3], rows[y][x*3+1], rows[y][x*3+2]
				}
				wr, wg, wb, _ := want.At(x, y).RGBA()
				require.Equal(t, []uint8{uint8(wr >> 8), uint8(wg >> 8), uint8(wb >> 8)}, []uint8{r, g, b}, "pixel %d,%d", x, y)
			}
		}
	}
}

func TestBMPByteAtATime(t *testing.T) {
	fixtures := map[string]bmpFixture{
		"24-bit": {width: 3, height: 2, bpp: 24, data: []byte{
			1, 2, 3, 4, 5, 6, 7, 8, 9, 0, 0, 0,
			9, 8, 7, 6, 5, 4, 3, 2, 1, 0, 0, 0,
		}},
		"4-bit": {width: 3, height: 2, bpp: 4, colorUsed: 4,
			palette: []uint32{0, 0x111111, 0x222222, 0x333333},
			data:    []byte{0x12, 0x30, 0, 0, 0x01, 0x20, 0, 0}},
		"rle8": {width: 4, height: 3, bpp: 8, compression: bmpRLE8, colorUsed: 3,
			palette: []uint32{0, 0xFF0000, 0x00FF00},
			data:    []byte{4, 1, 0, 0, 0, 2, 1, 1, 0, 3, 1, 2, 1, 0, 0, 1}},
		"rle4": {width: 7, height: 2, bpp: 4, compression: bmpRLE4, colorUsed: 4,
			palette: []uint32{0, 1, 2, 3},
			data:    []byte{0, 5, 0x12, 0x31, 0x20, 0, 2, 0x33, 0, 0, 7, 0x12, 0, 1}},
	}
	for name, f := range fixtures {
		t.Run(name, func(t *testing.T) {
			data := f.bytes()
			_, whole, err := decodeBMP(t, data, 0)
			require.NoError(t, err)
			_, bytewise, err := decodeBMP(t, data, 1)
			require.NoError(t, err)
			require.Equal(t, whole, bytewise)
		})
	}
}

func TestBMPRLE8(t *testing.T) {
	f := bmpFixture{width: 4, height: 3, bpp: 8, compression: bmpRLE8, colorUsed: 3,
		palette: []uint32{0, 0xFF0000, 0x00FF00},
		data: []byte{
			4, 1, // run of four index 1
			0, 0, // end of line
			0, 2, 1, 1, // delta: right 1, down 1
			0, 3, 1, 2, 1, 0, // absolute run of three, padded to a word
			0, 1, // end of bitmap
		}}

	_, rows, err := decodeBMP(t, f.bytes(), 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, []byte{1, 1, 1, 1}, rows[2])
	require.Equal(t, []byte{0, 0, 0, 0}, rows[1])
	require.Equal(t, []byte{0, 1, 2, 1}, rows[0])

	_, bytewise, err := decodeBMP(t, f.bytes(), 1)
	require.NoError(t, err)
	require.Equal(t, rows, bytewise)
}

func TestBMPRLE8Delta(t *testing.T) {
	f := bmpFixture{width: 4, height: 2, bpp: 8, compression: bmpRLE8, colorUsed: 2,
		palette: []uint32{0, 0xFFFFFF},
		data:    []byte{0, 2, 2, 0, 2, 1, 0, 1}}

	_, rows, err := decodeBMP(t, f.bytes(), 0)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 1, 1}, rows[1])
	require.Equal(t, []byte{0, 0, 0, 0}, rows[0])
}

func TestBMPRLE8EndOfBitmapFillsRows(t *testing.T) {
	f := bmpFixture{width: 2, height: 4, bpp: 8, compression: bmpRLE8, colorUsed: 2,
		palette: []uint32{0, 0xFFFFFF},
		data:    []byte{2, 1, 0, 1}}

	_, rows, err := decodeBMP(t, f.bytes(), 0)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	require.Equal(t, []byte{1, 1, 0, 0}, rows[3])
	for y := 0; y < 3; y++ {
		require.Equal(t, []byte{0, 0, 0, 0}, rows[y], "row %d", y)
	}
}

func TestBMPRLE4(t *testing.T) {
	tests := []struct {
		name  string
		width int32
		data  []byte
		want  []byte
	}{
		{"literal then run", 5, []byte{0, 3, 0x12, 0x30, 2, 0x33, 0, 1}, []byte{1, 2, 3, 3, 3}},
		{"alternating run", 7, []byte{0, 3, 0x12, 0x30, 4, 0x12, 0, 1}, []byte{1, 2, 3, 1, 2, 1, 2}},
		{"odd literal padded", 6, []byte{0, 5, 0x12, 0x31, 0x20, 0, 1, 0x30, 0, 1}, []byte{1, 2, 3, 1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := bmpFixture{width: tt.width, height: 1, bpp: 4, compression: bmpRLE4, colorUsed: 4,
				palette: []uint32{0, 1, 2, 3}, data: tt.data}
			_, rows, err := decodeBMP(t, f.bytes(), 0)
			require.NoError(t, err)
			require.Equal(t, tt.want, rows[0][:tt.width])

			_, bytewise, err := decodeBMP(t, f.bytes(), 1)
			require.NoError(t, err)
			require.Equal(t, rows, bytewise)
		})
	}
}

func TestBMPRLEErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"run overruns row", []byte{5, 1, 0, 1}, ErrRowOverrun},
		{"literal overruns row", []byte{0, 6, 1, 1, 1, 1, 1, 1, 0, 1}, ErrRowOverrun},
		{"delta overruns row", []byte{0, 2, 5, 0, 0, 1}, ErrRowOverrun},
		{"palette index", []byte{2, 7, 0, 1}, ErrPaletteIndex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := bmpFixture{width: 4, height: 2, bpp: 8, compression: bmpRLE8, colorUsed: 2,
				palette: []uint32{0, 0xFFFFFF}, data: tt.data}
			_, _, err := decodeBMP(t, f.bytes(), 0)
			require.ErrorIs(t, err, tt.want)
			require.True(t, IsDecodeError(err))
		})
	}
}

func TestBMPPaletteIndexChecked(t *testing.T) {
	f := bmpFixture{width: 2, height: 1, bpp: 8, colorUsed: 2,
		palette: []uint32{0, 0xFFFFFF}, data: []byte{1, 5, 0, 0}}
	_, _, err := decodeBMP(t, f.bytes(), 0)
	require.ErrorIs(t, err, ErrPaletteIndex)
}

func TestBMP16Bit(t *testing.T) {
	tests := []struct {
		name  string
		f     bmpFixture
		pixel uint16
		want  []byte // B, G, R
	}{
		{"default 555 red", bmpFixture{width: 1, height: 1, bpp: 16}, 0x7C00, []byte{0, 0, 248}},
		{"default 555 blue", bmpFixture{width: 1, height: 1, bpp: 16}, 0x001F, []byte{248, 0, 0}},
		{"565 green", bmpFixture{width: 1, height: 1, bpp: 16, compression: bmpBitfields,
			masks: []uint32{0xF800, 0x07E0, 0x001F}}, 0x07E0, []byte{0, 252, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.f.data = []byte{byte(tt.pixel), byte(tt.pixel >> 8), 0, 0}
			info, rows, err := decodeBMP(t, tt.f.bytes(), 0)
			require.NoError(t, err)
			require.Equal(t, LayoutBGR, info.Layout)
			require.Equal(t, tt.want, rows[0][:3])
		})
	}
}

func TestBMP32Bit(t *testing.T) {
	f := bmpFixture{width: 1, height: 1, bpp: 32, compression: bmpBitfields,
		masks: []uint32{0xFF0000, 0xFF00, 0xFF}, data: []byte{10, 20, 30, 0}}
	info, rows, err := decodeBMP(t, f.bytes(), 0)
	require.NoError(t, err)
	require.Equal(t, LayoutBGRX, info.Layout)
	require.Equal(t, []byte{10, 20, 30, 0}, rows[0][:4])
}

func TestBMPCoreHeader(t *testing.T) {
	var b bytes.Buffer
	le := binary.LittleEndian
	b.WriteString("BM")
	binary.Write(&b, le, uint32(14+12+6+4))
	binary.Write(&b, le, uint32(0))
	binary.Write(&b, le, uint32(14+12+6))
	binary.Write(&b, le, uint32(12))
	binary.Write(&b, le, uint16(8))
	binary.Write(&b, le, uint16(1))
	binary.Write(&b, le, uint16(1))
	binary.Write(&b, le, uint16(1))
	b.Write([]byte{0, 0, 0, 0xFF, 0x80, 0x40}) // two 3-byte entries
	b.Write([]byte{0xA5, 0, 0, 0})

	info, rows, err := decodeBMP(t, b.Bytes(), 0)
	require.NoError(t, err)
	require.Equal(t, []uint32{0xFF000000, 0xFF4080FF}, info.Palette)
	require.Equal(t, []byte{1, 0, 1, 0, 0, 1, 0, 1}, rows[0][:8])
}

func TestBMPAttributes(t *testing.T) {
	f := bmpFixture{width: 1, height: 1, bpp: 24, xppm: 2835, yppm: 3780, data: make([]byte, 4)}
	d := NewBMPDecoder(DecoderOptions{})
	d.Feed(f.bytes())
	_, err := d.ReadHeader()
	require.NoError(t, err)
	attrs := d.Attributes()
	require.Equal(t, 2835, attrs.XResolution)
	require.Equal(t, 3780, attrs.YResolution)
	x, y, ok := attrs.DPI()
	require.True(t, ok)
	require.Equal(t, 72, x)
	require.Equal(t, 96, y)
	require.Equal(t, UnitMeter, attrs.Unit)
}

func TestBMPRewind(t *testing.T) {
	f := bmpFixture{width: 1, height: 3, bpp: 24, data: []byte{
		1, 1, 1, 0, 2, 2, 2, 0, 3, 3, 3, 0,
	}}
	data := f.bytes()

	d := NewBMPDecoder(DecoderOptions{RetainInput: true})
	first, err := drainRows(d, data, 5)
	require.NoError(t, err)
	require.NoError(t, d.Rewind())
	second, err := drainRows(d, nil, 0)
	require.NoError(t, err)
	require.Equal(t, first, second)

	// Without retained input the header bytes are released once rows flow.
	d = NewBMPDecoder(DecoderOptions{})
	_, err = drainRows(d, data, 5)
	require.NoError(t, err)
	require.ErrorIs(t, d.Rewind(), ErrRewindUnavailable)
	require.True(t, IsFatal(d.Rewind()))
}

func TestBMPRewindBeforeHeader(t *testing.T) {
	d := NewBMPDecoder(DecoderOptions{})
	require.ErrorIs(t, d.Rewind(), ErrBadParameter)
}
