package imgcodec

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"testing"

	jpeg2000 "github.com/ajroetker/go-jpeg2000"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"
)

func testNRGBA(w, h int) *image.NRGBA {
	m := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.SetNRGBA(x, y, color.NRGBA{R: uint8(40 * x), G: uint8(50 * y), B: uint8(x * y), A: uint8(255 - 30*x)})
		}
	}
	return m
}

func testGray(w, h int) *image.Gray {
	m := image.NewGray(image.Rect(0, 0, w, h))
	for i := range m.Pix {
		m.Pix[i] = uint8(i * 13)
	}
	return m
}

func encodePNG(t *testing.T, m image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, m))
	return buf.Bytes()
}

// drainAdapter feeds data step bytes at a time and collects the rows.
func drainAdapter(t *testing.T, a Adapter, data []byte, step int) (ImageInfo, [][]byte) {
	t.Helper()
	s := a.Start(int64(len(data)))
	off := 0
	feed := func() {
		require.Less(t, off, len(data), "adapter wants more than the whole stream")
		end := min(off+step, len(data))
		require.NoError(t, s.Feed(data[off:end]))
		off = end
	}
	feed()
	var info ImageInfo
	for {
		var err error
		info, err = s.ReadHeader()
		if IsNeedMoreInput(err) {
			feed()
			continue
		}
		require.NoError(t, err)
		break
	}
	var rows [][]byte
	for {
		line, err := s.DecodeNext()
		if IsNeedMoreInput(err) {
			feed()
			continue
		}
		if errors.Is(err, io.EOF) {
			return info, rows
		}
		require.NoError(t, err)
		require.Equal(t, len(rows), line.Row)
		rows = append(rows, append([]byte(nil), line.Pix...))
	}
}

func TestPNGAdapter(t *testing.T) {
	m := testNRGBA(5, 4)
	data := encodePNG(t, m)

	for _, step := range []int{len(data), 16} {
		info, rows := drainAdapter(t, PNGAdapter(), data, step)
		require.Equal(t, FormatPNG, info.Format)
		require.Equal(t, LayoutBGRA, info.Layout)
		require.Equal(t, 20, info.Pitch)
		require.Len(t, rows, 4)
		for y := 0; y < 4; y++ {
			for x := 0; x < 5; x++ {
				c := m.NRGBAAt(x, y)
				require.Equal(t, []byte{c.B, c.G, c.R, c.A}, rows[y][4*x:4*x+4], "pixel %d,%d", x, y)
			}
		}
	}
}

func TestPNGAdapterPalettedAndGray(t *testing.T) {
	pal := color.Palette{color.NRGBA{R: 255, A: 255}, color.NRGBA{G: 255, A: 128}}
	pm := image.NewPaletted(image.Rect(0, 0, 3, 1), pal)
	pm.Pix = []uint8{1, 0, 1}
	info, rows := drainAdapter(t, PNGAdapter(), encodePNG(t, pm), 1<<20)
	require.Equal(t, LayoutIndexed, info.Layout)
	require.Equal(t, []uint32{0xFFFF0000, 0x8000FF00}, info.Palette)
	require.Equal(t, []byte{1, 0, 1}, rows[0][:3])

	g := testGray(7, 3)
	info, rows = drainAdapter(t, PNGAdapter(), encodePNG(t, g), 1<<20)
	require.Equal(t, LayoutGray8, info.Layout)
	require.Equal(t, g.Pix[7:14], rows[1][:7])
}

func TestTIFFAdapter(t *testing.T) {
	m := testNRGBA(6, 3)
	var buf bytes.Buffer
	require.NoError(t, tiff.Encode(&buf, m, &tiff.Options{Compression: tiff.Deflate}))

	info, rows := drainAdapter(t, TIFFAdapter(), buf.Bytes(), 7)
	require.Equal(t, FormatTIFF, info.Format)
	require.Len(t, rows, 3)
	for y := 0; y < 3; y++ {
		for x := 0; x < 6; x++ {
			c := m.NRGBAAt(x, y)
			require.Equal(t, []byte{c.B, c.G, c.R, c.A}, rows[y][4*x:4*x+4], "pixel %d,%d", x, y)
		}
	}
}

func TestJPEGAdapter(t *testing.T) {
	g := testGray(16, 16)
	for i := range g.Pix {
		g.Pix[i] = 120
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, g, &jpeg.Options{Quality: 95}))

	info, rows := drainAdapter(t, JPEGAdapter(), buf.Bytes(), 100)
	require.Equal(t, FormatJPEG, info.Format)
	require.Equal(t, 16, info.Width)
	require.Equal(t, 16, info.Height)
	require.Equal(t, LayoutGray8, info.Layout)
	require.Len(t, rows, 16)
	for _, v := range rows[8][:16] {
		require.InDelta(t, 120, int(v), 3)
	}
}

func TestJPEG2000Adapter(t *testing.T) {
	g := testGray(8, 8)
	var buf bytes.Buffer
	require.NoError(t, jpeg2000.Encode(&buf, g, &jpeg2000.EncodeOptions{Lossless: true}))

	info, rows := drainAdapter(t, JPEG2000Adapter(), buf.Bytes(), 1<<20)
	require.Equal(t, FormatJPEG2000, info.Format)
	require.Equal(t, 8, info.Width)
	require.Equal(t, 8, info.Height)
	require.Len(t, rows, 8)
}

func TestAdapterSignature(t *testing.T) {
	data := encodePNG(t, testGray(2, 2))

	// A prefix of the signature waits for more bytes.
	s := PNGAdapter().Start(int64(len(data)))
	require.NoError(t, s.Feed(data[:3]))
	_, err := s.ReadHeader()
	require.True(t, IsNeedMoreInput(err))

	// A mismatch fails at once.
	s = JPEGAdapter().Start(int64(len(data)))
	require.NoError(t, s.Feed(data[:1]))
	_, err = s.ReadHeader()
	require.True(t, errors.Is(err, ErrInvalidSignature))
	require.True(t, IsDecodeError(err))

	// A short complete stream cannot match.
	s = TIFFAdapter().Start(2)
	require.NoError(t, s.Feed([]byte("II")))
	_, err = s.ReadHeader()
	require.True(t, errors.Is(err, ErrInvalidSignature))

	s = PNGAdapter().Start(4)
	err = s.Feed(make([]byte, 5))
	require.True(t, errors.Is(err, ErrOutOfRange))
}

func TestAdapterCorruptData(t *testing.T) {
	data := encodePNG(t, testNRGBA(4, 4))
	data = data[:len(data)-20]

	s := PNGAdapter().Start(int64(len(data)))
	require.NoError(t, s.Feed(data))
	_, err := s.ReadHeader()
	require.NoError(t, err)
	_, err = s.DecodeNext()
	require.True(t, IsDecodeError(err), "got %v", err)
}

func TestProgressiveAdapters(t *testing.T) {
	m := testNRGBA(5, 4)
	var tiffData bytes.Buffer
	require.NoError(t, tiff.Encode(&tiffData, m, nil))

	tests := []struct {
		name   string
		data   []byte
		format Format
	}{
		{"png", encodePNG(t, m), FormatPNG},
		{"tiff", tiffData.Bytes(), FormatTIFF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, step := range []int{0, 9} {
				dst := newTestBitmap(t, 5, 4, Format32bppARGB)
				p, err := runProgressive(t, tt.data, FormatUnknown, Config{ChunkSize: 8}, dst, DecodeOptions{}, step, nil)
				require.NoError(t, err)
				require.Equal(t, tt.format, p.Info().Format)
				for y := 0; y < 4; y++ {
					for x := 0; x < 5; x++ {
						c := m.NRGBAAt(x, y)
						require.Equal(t, []byte{c.B, c.G, c.R, c.A}, dst.Row(y)[4*x:4*x+4], "pixel %d,%d", x, y)
					}
				}
			}
		})
	}

	// Without adapters only the built-in formats are probed.
	_, err := runProgressive(t, encodePNG(t, m), FormatUnknown, Config{Adapters: []Adapter{}},
		newTestBitmap(t, 5, 4, Format32bppARGB), DecodeOptions{}, 0, nil)
	require.True(t, errors.Is(err, ErrUnsupportedFormat))
	_, err = runProgressive(t, encodePNG(t, m), FormatPNG, Config{Adapters: []Adapter{}},
		newTestBitmap(t, 5, 4, Format32bppARGB), DecodeOptions{}, 0, nil)
	require.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestProgressiveCMYKToGray(t *testing.T) {
	info := ImageInfo{Width: 2, Height: 1, Layout: LayoutCMYK}
	tf, err := newTransform(info, Format8bppMask, false)
	require.NoError(t, err)
	out := make([]byte, 2)
	tf.unpack(out, []byte{0, 0, 0, 0, 0, 0, 0, 255}, 0, 2)
	require.Equal(t, []byte{255, 0}, out)
}
