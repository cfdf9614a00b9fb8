package imgcodec

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"testing"

	"github.com/stretchr/testify/require"
)

// runProgressive decodes data into dst through a streaming source that
// receives step more bytes every time the decoder asks for input.
func runProgressive(t *testing.T, data []byte, hint Format, cfg Config, dst *Bitmap, opts DecodeOptions, step int, sink RowSink) (*ProgressiveDecoder, error) {
	t.Helper()
	if step <= 0 {
		step = len(data)
	}
	src := NewStreamingSource(int64(len(data)))
	off := 0
	more := func() bool {
		if off >= len(data) {
			return false
		}
		end := min(off+step, len(data))
		require.NoError(t, src.Append(data[off:end]))
		off = end
		return true
	}
	more()

	p := NewProgressiveDecoder(cfg)
	for {
		st, err := p.LoadImageInfo(src, hint)
		if err != nil {
			return p, err
		}
		if st == StatusReady {
			break
		}
		require.Equal(t, StatusNeedMoreInput, st)
		require.True(t, more(), "header needs more than the whole stream")
	}
	require.Equal(t, StateFrameReady, p.State())
	if err := p.StartDecode(dst, opts, sink); err != nil {
		return p, err
	}
	for {
		st, err := p.ContinueDecode()
		if err != nil {
			return p, err
		}
		if st == StatusFinished {
			return p, nil
		}
		require.Equal(t, StatusNeedMoreInput, st)
		require.True(t, more(), "decode needs more than the whole stream")
	}
}

func newTestBitmap(t *testing.T, w, h int, f PixelFormat) *Bitmap {
	t.Helper()
	b, err := NewBitmap(w, h, f)
	require.NoError(t, err)
	return b
}

// grayBMP returns an 8 bit BMP with a gray ramp palette.
func grayBMP(w, h int, pix []byte) []byte {
	pitch := (w + 3) &^ 3
	data := make([]byte, pitch*h)
	for y := 0; y < h; y++ {
		// bottom-up storage
		copy(data[(h-1-y)*pitch:], pix[y*w:(y+1)*w])
	}
	pal := make([]uint32, 256)
	for i := range pal {
		pal[i] = uint32(i) * 0x010101
	}
	return bmpFixture{width: int32(w), height: int32(h), bpp: 8, palette: pal, data: data}.bytes()
}

func TestProgressiveBMPRed(t *testing.T) {
	red := []byte{0, 0, 255, 0, 0, 255, 0, 0}
	data := bmpFixture{width: 2, height: 2, bpp: 24, data: append(append([]byte{}, red...), red...)}.bytes()

	dst := newTestBitmap(t, 2, 2, Format24bppRGB)
	p, err := runProgressive(t, data, FormatUnknown, Config{}, dst, DecodeOptions{}, 0, nil)
	require.NoError(t, err)
	require.Equal(t, StateFinished, p.State())
	require.Equal(t, FormatBMP, p.Info().Format)
	for y := 0; y < 2; y++ {
		require.Equal(t, []byte{0, 0, 255, 0, 0, 255}, dst.Row(y)[:6])
	}
}

func TestProgressiveByteAtATime(t *testing.T) {
	pix := pattern(9*7, 200)
	bmpData := grayBMP(9, 7, pix)

	pal := color.Palette{color.Gray{0}, color.Gray{80}, color.Gray{160}, color.Gray{255}}
	m := image.NewPaletted(image.Rect(0, 0, 9, 7), pal)
	copy(m.Pix, pattern(len(m.Pix), len(pal)))
	var gifData bytes.Buffer
	require.NoError(t, gif.Encode(&gifData, m, nil))

	faxParams := FaxParams{K: -1, Columns: 40, Rows: 6, EndOfBlock: true}
	faxData, err := EncodeFax(faxPattern(40, 6, 2), 5, faxParams)
	require.NoError(t, err)

	tests := []struct {
		name   string
		data   []byte
		hint   Format
		cfg    Config
		format PixelFormat
		w, h   int
	}{
		{"bmp", bmpData, FormatUnknown, Config{}, Format8bppMask, 9, 7},
		{"bmp scaled", bmpData, FormatUnknown, Config{}, Format24bppRGB, 4, 11},
		{"gif", gifData.Bytes(), FormatUnknown, Config{}, Format32bppARGB, 9, 7},
		{"gif scaled", gifData.Bytes(), FormatGIF, Config{}, Format8bppMask, 5, 3},
		{"fax", faxData, FormatFax, Config{Fax: faxParams}, Format1bppMask, 40, 6},
		{"fax scaled", faxData, FormatFax, Config{Fax: faxParams}, Format8bppMask, 13, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			whole := newTestBitmap(t, tt.w, tt.h, tt.format)
			_, err := runProgressive(t, tt.data, tt.hint, tt.cfg, whole, DecodeOptions{}, 0, nil)
			require.NoError(t, err)

			for _, step := range []int{1, 3, 64} {
				cfg := tt.cfg
				cfg.ChunkSize = 5
				dst := newTestBitmap(t, tt.w, tt.h, tt.format)
				_, err := runProgressive(t, tt.data, tt.hint, cfg, dst, DecodeOptions{}, step, nil)
				require.NoError(t, err, "step %d", step)
				require.Equal(t, whole.Pix, dst.Pix, "step %d", step)
			}
		})
	}
}

func TestProgressiveMatchesSource(t *testing.T) {
	pix := pattern(6*5, 256)
	dst := newTestBitmap(t, 6, 5, Format8bppIndexed)
	_, err := runProgressive(t, grayBMP(6, 5, pix), FormatBMP, Config{}, dst, DecodeOptions{}, 0, nil)
	require.NoError(t, err)
	for y := 0; y < 5; y++ {
		require.Equal(t, pix[y*6:(y+1)*6], dst.Row(y)[:6], "row %d", y)
	}
	require.Len(t, dst.Palette, 256)
}

func TestProgressiveScaling(t *testing.T) {
	pix := []byte{
		0, 100, 200, 40,
		50, 150, 0, 80,
		10, 10, 10, 10,
		30, 30, 30, 30,
	}
	data := grayBMP(4, 4, pix)

	t.Run("box shrink", func(t *testing.T) {
		dst := newTestBitmap(t, 2, 2, Format8bppMask)
		_, err := runProgressive(t, data, FormatUnknown, Config{}, dst, DecodeOptions{}, 0, nil)
		require.NoError(t, err)
		require.Equal(t, []byte{75, 80}, dst.Row(0)[:2])
		require.Equal(t, []byte{20, 20}, dst.Row(1)[:2])
	})

	t.Run("nearest enlarge", func(t *testing.T) {
		dst := newTestBitmap(t, 8, 8, Format8bppMask)
		opts := DecodeOptions{Interpolation: InterpolateNearest}
		_, err := runProgressive(t, data, FormatUnknown, Config{}, dst, opts, 0, nil)
		require.NoError(t, err)
		require.Equal(t, []byte{0, 0, 100, 100, 200, 200, 40, 40}, dst.Row(0)[:8])
		require.Equal(t, dst.Row(6)[:8], dst.Row(7)[:8])
	})

	t.Run("bilinear enlarge", func(t *testing.T) {
		dst := newTestBitmap(t, 8, 1, Format8bppMask)
		opts := DecodeOptions{SrcClip: image.Rect(0, 2, 4, 3)}
		_, err := runProgressive(t, data, FormatUnknown, Config{}, dst, opts, 0, nil)
		require.NoError(t, err)
		require.Equal(t, bytes.Repeat([]byte{10}, 8), dst.Row(0)[:8])
	})
}

func TestProgressivePlacement(t *testing.T) {
	w, h := 4, 4
	data := make([]byte, 12*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// stored bottom-up; blue = x, green = image row
			o := (h-1-y)*12 + 3*x
			data[o], data[o+1], data[o+2] = byte(x), byte(y), 0xAA
		}
	}
	bmpData := bmpFixture{width: int32(w), height: int32(h), bpp: 24, data: data}.bytes()

	dst := newTestBitmap(t, 5, 5, Format32bppRGB)
	opts := DecodeOptions{
		SrcClip: image.Rect(1, 1, 3, 3),
		DstRect: image.Rect(3, 3, 5, 5),
	}
	var rows []int
	sink := RowSinkFunc(func(y int, row []byte) { rows = append(rows, y) })
	p, err := runProgressive(t, bmpData, FormatUnknown, Config{}, dst, opts, 0, sink)
	require.NoError(t, err)
	require.ElementsMatch(t, []int{3, 4}, rows)
	require.Equal(t, 2, p.RowsReady())

	require.Equal(t, []byte{1, 1, 0xAA, 0xFF, 2, 1, 0xAA, 0xFF}, dst.Row(3)[12:20])
	require.Equal(t, []byte{1, 2, 0xAA, 0xFF, 2, 2, 0xAA, 0xFF}, dst.Row(4)[12:20])
	require.Equal(t, make([]byte, 12), dst.Row(3)[:12])
	for y := 0; y < 3; y++ {
		require.Equal(t, make([]byte, 20), dst.Row(y)[:20], "row %d", y)
	}
}

func TestProgressiveGIFScreen(t *testing.T) {
	var b gifBuilder
	b.header(4, 3, 1, 0, 0)
	b.image(t, 1, 1, 2, 2, 0, 2, []byte{1, 2, 3, 0}, 255)
	b.trailer()

	dst := newTestBitmap(t, 4, 3, Format32bppARGB)
	p, err := runProgressive(t, b.Bytes(), FormatUnknown, Config{}, dst, DecodeOptions{}, 0, nil)
	require.NoError(t, err)
	require.Equal(t, FormatGIF, p.Info().Format)
	require.Equal(t, 4, p.Info().Width)
	require.Len(t, p.Frames(), 1)

	require.Equal(t, make([]byte, 16), dst.Row(0)[:16])
	require.Equal(t, []byte{0, 0, 0, 0, 85, 85, 85, 255, 170, 170, 170, 255, 0, 0, 0, 0}, dst.Row(1)[:16])
	require.Equal(t, []byte{0, 0, 0, 0, 255, 255, 255, 255, 0, 0, 0, 255, 0, 0, 0, 0}, dst.Row(2)[:16])
}

func TestProgressiveGIFInterlaced(t *testing.T) {
	const h = 5
	// stream order of an interlaced frame of 5 rows
	order := []int{0, 4, 2, 1, 3}
	pix := make([]byte, h)
	for n, y := range order {
		pix[n] = byte(y)
	}
	var b gifBuilder
	b.header(1, h, 2, 0, 0)
	b.image(t, 0, 0, 1, h, 0x40, 3, pix, 255)
	b.trailer()

	dst := newTestBitmap(t, 1, h, Format8bppMask)
	_, err := runProgressive(t, b.Bytes(), FormatGIF, Config{}, dst, DecodeOptions{}, 2, nil)
	require.NoError(t, err)
	for y := 0; y < h; y++ {
		require.Equal(t, byte(y*255/7), dst.Row(y)[0], "row %d", y)
	}
}

func TestProgressiveGIFTransparentComposite(t *testing.T) {
	var b gifBuilder
	b.header(2, 1, 1, 0, 0)
	b.extension(0xF9, []byte{0x01, 0, 0, 2})
	b.image(t, 0, 0, 2, 1, 0, 2, []byte{2, 1}, 255)
	b.trailer()

	dst := newTestBitmap(t, 2, 1, Format24bppRGB)
	for i := range dst.Pix {
		dst.Pix[i] = 0xEE
	}
	_, err := runProgressive(t, b.Bytes(), FormatUnknown, Config{}, dst, DecodeOptions{}, 0, nil)
	require.NoError(t, err)
	require.Equal(t, []byte{0xEE, 0xEE, 0xEE, 85, 85, 85}, dst.Row(0)[:6])
}

func TestProgressiveGIFFrameIndex(t *testing.T) {
	var b gifBuilder
	b.header(2, 1, 1, 0, 0)
	b.image(t, 0, 0, 2, 1, 0, 2, []byte{0, 0}, 255)
	b.image(t, 0, 0, 2, 1, 0, 2, []byte{3, 1}, 255)
	b.trailer()

	dst := newTestBitmap(t, 2, 1, Format8bppMask)
	p, err := runProgressive(t, b.Bytes(), FormatUnknown, Config{FrameIndex: 1}, dst, DecodeOptions{}, 3, nil)
	require.NoError(t, err)
	require.Equal(t, []byte{255, 85}, dst.Row(0)[:2])
	require.Len(t, p.Frames(), 2)
	require.Equal(t, 2, p.Attributes().FrameCount)

	_, err = runProgressive(t, b.Bytes(), FormatUnknown, Config{FrameIndex: 5}, dst, DecodeOptions{}, 0, nil)
	require.True(t, errors.Is(err, ErrUnsupportedFormat), "got %v", err)
	_, err = runProgressive(t, b.Bytes(), FormatGIF, Config{FrameIndex: 5}, dst, DecodeOptions{}, 0, nil)
	require.True(t, errors.Is(err, ErrOutOfRange), "got %v", err)
}

func TestProgressiveFax(t *testing.T) {
	const cols, rows = 61, 9
	want := faxPattern(cols, rows, 4)
	rowBytes := (cols + 7) / 8

	for _, k := range []int{-1, 0, 3} {
		params := FaxParams{K: k, Columns: cols, Rows: rows, EndOfBlock: true}
		data, err := EncodeFax(want, rowBytes, params)
		require.NoError(t, err)

		for _, knownRows := range []bool{true, false} {
			cfg := Config{Fax: params}
			if !knownRows {
				cfg.Fax.Rows = 0
			}
			dst := newTestBitmap(t, cols, rows, Format1bppMask)
			p, err := runProgressive(t, data, FormatFax, cfg, dst, DecodeOptions{}, 0, nil)
			require.NoError(t, err, "K=%d", k)
			require.Equal(t, rows, p.Info().Height)
			for y := 0; y < rows; y++ {
				for x := 0; x < cols; x++ {
					white := dst.Row(y)[x>>3]&(0x80>>uint(x&7)) != 0
					require.Equal(t, !isFaxBlack(want[y*rowBytes:], x), white, "K=%d pixel %d,%d", k, x, y)
				}
			}
		}
	}
}

func TestProgressiveProbe(t *testing.T) {
	red := []byte{0, 0, 255, 0}
	bmpData := bmpFixture{width: 1, height: 1, bpp: 24, data: red}.bytes()
	var b gifBuilder
	b.header(1, 1, 1, 0, 0)
	b.image(t, 0, 0, 1, 1, 0, 2, []byte{1}, 255)
	b.trailer()

	tests := []struct {
		name   string
		data   []byte
		hint   Format
		format Format
		err    error
	}{
		{"bmp", bmpData, FormatUnknown, FormatBMP, nil},
		{"gif", b.Bytes(), FormatUnknown, FormatGIF, nil},
		{"hinted gif", b.Bytes(), FormatGIF, FormatGIF, nil},
		{"wrong hint", b.Bytes(), FormatBMP, FormatBMP, ErrInvalidSignature},
		{"garbage", []byte("not an image at all"), FormatUnknown, FormatUnknown, ErrUnsupportedFormat},
		{"truncated bmp", bmpData[:20], FormatUnknown, FormatUnknown, ErrUnsupportedFormat},
		{"truncated bmp hinted", bmpData[:20], FormatBMP, FormatBMP, ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProgressiveDecoder(Config{})
			st, err := p.LoadImageInfo(NewMemorySource(tt.data), tt.hint)
			if tt.err != nil {
				require.True(t, errors.Is(err, tt.err), "got %v", err)
				require.True(t, IsDecodeError(err))
				require.Equal(t, StateFailed, p.State())
				require.Equal(t, StatusFailed, st)
				return
			}
			require.NoError(t, err)
			require.Equal(t, StatusReady, st)
			require.Equal(t, tt.format, p.Info().Format)
		})
	}
}

func TestProgressiveTruncatedData(t *testing.T) {
	pix := pattern(8*8, 256)
	data := grayBMP(8, 8, pix)
	src := NewMemorySource(data[:len(data)-10])

	p := NewProgressiveDecoder(Config{})
	st, err := p.LoadImageInfo(src, FormatUnknown)
	require.NoError(t, err)
	require.Equal(t, StatusReady, st)
	require.NoError(t, p.StartDecode(newTestBitmap(t, 8, 8, Format8bppMask), DecodeOptions{}, nil))
	st, err = p.ContinueDecode()
	require.True(t, errors.Is(err, ErrTruncated), "got %v", err)
	require.True(t, IsDecodeError(err))
	require.Equal(t, StatusFailed, st)

	// Failure is sticky.
	_, err2 := p.ContinueDecode()
	require.Equal(t, err, err2)
}

func TestProgressiveContractErrors(t *testing.T) {
	data := grayBMP(2, 2, []byte{1, 2, 3, 4})

	p := NewProgressiveDecoder(Config{})
	_, err := p.ContinueDecode()
	require.True(t, IsFatal(err))
	require.Equal(t, StateFailed, p.State())

	p = NewProgressiveDecoder(Config{})
	_, err = p.LoadImageInfo(nil, FormatUnknown)
	require.True(t, errors.Is(err, ErrBadParameter))

	p = NewProgressiveDecoder(Config{})
	_, err = p.LoadImageInfo(NewMemorySource(data), FormatUnknown)
	require.NoError(t, err)
	err = p.StartDecode(newTestBitmap(t, 2, 2, Format8bppMask), DecodeOptions{DstRect: image.Rect(1, 1, 3, 3)}, nil)
	require.True(t, errors.Is(err, ErrBadParameter))
	require.True(t, IsFatal(err))

	p = NewProgressiveDecoder(Config{})
	_, err = p.LoadImageInfo(NewMemorySource(data), FormatUnknown)
	require.NoError(t, err)
	err = p.StartDecode(newTestBitmap(t, 2, 2, Format8bppMask), DecodeOptions{SrcClip: image.Rect(0, 0, 3, 1)}, nil)
	require.True(t, errors.Is(err, ErrBadParameter))

	p = NewProgressiveDecoder(Config{})
	_, err = p.LoadImageInfo(NewMemorySource(data), FormatUnknown)
	require.NoError(t, err)
	err = p.StartDecode(&Bitmap{Width: 2, Height: 2, Format: Format8bppMask}, DecodeOptions{}, nil)
	require.True(t, IsFatal(err))
}

func TestProgressiveLimits(t *testing.T) {
	data := grayBMP(3, 2, make([]byte, 6))
	cfg := Config{Limits: DecodeLimits{MaxWidth: 2, MaxHeight: 2}}
	_, err := runProgressive(t, data, FormatBMP, cfg, newTestBitmap(t, 1, 1, Format8bppMask), DecodeOptions{}, 0, nil)
	require.True(t, errors.Is(err, ErrDimensionTooLarge), "got %v", err)
	require.True(t, IsDecodeError(err))

	params := FaxParams{K: -1, Columns: 64, Rows: 8}
	faxData, err := EncodeFax(faxPattern(64, 8, 1), 8, params)
	require.NoError(t, err)
	require.Greater(t, len(faxData), 2)
	cfg = Config{Fax: params, Limits: DecodeLimits{MaxBufferedBytes: int64(len(faxData) - 1)}}
	_, err = runProgressive(t, faxData, FormatFax, cfg, newTestBitmap(t, 64, 8, Format1bppMask), DecodeOptions{}, 0, nil)
	require.True(t, errors.Is(err, ErrLimitExceeded), "got %v", err)
	require.True(t, IsFatal(err))

	cfg.Limits.MaxBufferedBytes = int64(len(faxData))
	_, err = runProgressive(t, faxData, FormatFax, cfg, newTestBitmap(t, 64, 8, Format1bppMask), DecodeOptions{}, 0, nil)
	require.NoError(t, err)
}

func TestDecodeStateString(t *testing.T) {
	require.Equal(t, "decoding", StateDecoding.String())
	require.Equal(t, "failed", StateFailed.String())
	require.Equal(t, "unknown", DecodeState(-1).String())
	require.Equal(t, "unknown", (StateFailed + 1).String())
}

func BenchmarkProgressiveBMP(b *testing.B) {
	data := grayBMP(640, 480, pattern(640*480, 256))
	dst, _ := NewBitmap(320, 240, Format32bppARGB)
	b.SetBytes(int64(len(data)))
	for i := 0; i < b.N; i++ {
		p := NewProgressiveDecoder(Config{ChunkSize: 16 << 10})
		if _, err := p.LoadImageInfo(NewMemorySource(data), FormatBMP); err != nil {
			b.Fatal(err)
		}
		if err := p.StartDecode(dst, DecodeOptions{}, nil); err != nil {
			b.Fatal(err)
		}
		if _, err := p.ContinueDecode(); err != nil {
			b.Fatal(err)
		}
	}
}
