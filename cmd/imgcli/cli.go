// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Geek0x0/imgcodec"
	"github.com/klauspost/compress/zstd"
)

func main() {
	mode := flag.String("mode", "info", "Mode: info, decode, batch, encode-fax")
	format := flag.String("format", "", "Format hint: bmp, gif, jpeg, png, tiff, jpeg2000, fax")
	fax := flag.String("fax", "", "CCITT parameters, e.g. K=-1,Columns=2480,Rows=3508")
	frame := flag.Int("frame", 0, "GIF frame to decode")
	size := flag.String("size", "", "Output size WxH (default: image size)")
	pixfmt := flag.String("pixfmt", "32bpp-argb", "Output pixel format")
	nearest := flag.Bool("nearest", false, "Use nearest-neighbour scaling when enlarging")
	out := flag.String("o", "", "Output file, or directory for batch")
	workers := flag.Int("workers", 0, "Concurrent decodes in batch mode (0 = NumCPU)")
	debug := flag.Bool("debug", false, "Log decoder progress")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: imgcli [options] file")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg := imgcodec.DefaultConfig()
	cfg.FrameIndex = *frame
	cfg.Debug = *debug
	if *fax != "" {
		params, err := imgcodec.ParseFaxParams(*fax)
		if err != nil {
			log.Fatalf("parse -fax: %v", err)
		}
		cfg.Fax = params
	}
	hint := imgcodec.ParseFormat(strings.ToLower(*format))
	if *format != "" && hint == imgcodec.FormatUnknown {
		log.Fatalf("unknown format %q", *format)
	}

	filePath := flag.Arg(0)
	switch strings.ToLower(*mode) {
	case "info":
		if err := handleInfo(os.Stdout, filePath, hint, cfg); err != nil {
			log.Fatal(err)
		}
	case "decode":
		requireOutput(*out)
		f, err := imgcodec.ParsePixelFormat(*pixfmt)
		if err != nil {
			log.Fatalf("parse -pixfmt: %v", err)
		}
		req := decodeRequest{hint: hint, cfg: cfg, format: f}
		if req.width, req.height, err = parseSize(*size); err != nil {
			log.Fatalf("parse -size: %v", err)
		}
		if *nearest {
			req.interp = imgcodec.InterpolateNearest
		}
		if err := handleDecode(filePath, *out, req); err != nil {
			log.Fatal(err)
		}
	case "batch":
		requireOutput(*out)
		f, err := imgcodec.ParsePixelFormat(*pixfmt)
		if err != nil {
			log.Fatalf("parse -pixfmt: %v", err)
		}
		opts := imgcodec.BatchOptions{Workers: *workers, Config: cfg}
		if err := handleBatch(flag.Args(), *out, hint, f, opts); err != nil {
			log.Fatal(err)
		}
	case "encode-fax":
		requireOutput(*out)
		if err := handleEncodeFax(filePath, *out, hint, cfg); err != nil {
			log.Fatal(err)
		}
	default:
		log.Fatalf("unknown mode %q", *mode)
	}
}

func requireOutput(out string) {
	if out == "" {
		log.Fatal("the -o flag must be specified for this mode")
	}
}

// parseSize parses "WxH". An empty string means the image size.
func parseSize(s string) (int, int, error) {
	if s == "" {
		return 0, 0, nil
	}
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("size %q is not WxH", s)
	}
	w, err := strconv.Atoi(ws)
	if err != nil {
		return 0, 0, err
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return 0, 0, err
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("size %q must be positive", s)
	}
	return w, h, nil
}

// readInput returns the contents of path, decompressing .zst files.
func readInput(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(filepath.Ext(path), ".zst") {
		return data, nil
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", path, err)
	}
	return out, nil
}

// inputName strips a .zst suffix so the output name follows the image.
func inputName(path string) string {
	base := filepath.Base(path)
	if strings.EqualFold(filepath.Ext(base), ".zst") {
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// openSource opens path as a ByteSource. Compressed files are inflated into
// memory; others are read in place.
func openSource(path string) (imgcodec.ByteSource, func() error, error) {
	if strings.EqualFold(filepath.Ext(path), ".zst") {
		data, err := readInput(path)
		if err != nil {
			return nil, nil, err
		}
		return imgcodec.NewMemorySource(data), func() error { return nil }, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return imgcodec.NewReaderAtSource(f, st.Size()), f.Close, nil
}

// openDecoder reads the header of the file at path. The whole file is
// available, so a decoder that still wants input means the file is cut short.
func openDecoder(path string, hint imgcodec.Format, cfg imgcodec.Config) (*imgcodec.ProgressiveDecoder, func() error, error) {
	src, closeSource, err := openSource(path)
	if err != nil {
		return nil, nil, err
	}
	dec := imgcodec.NewProgressiveDecoder(cfg)
	status, err := dec.LoadImageInfo(src, hint)
	if err == nil && status != imgcodec.StatusReady {
		err = fmt.Errorf("%s: %w", status, imgcodec.ErrTruncated)
	}
	if err != nil {
		closeSource()
		return nil, nil, fmt.Errorf("load %s: %w", path, err)
	}
	return dec, closeSource, nil
}

func handleInfo(w io.Writer, path string, hint imgcodec.Format, cfg imgcodec.Config) error {
	dec, closeFile, err := openDecoder(path, hint, cfg)
	if err != nil {
		return err
	}
	defer closeFile()

	info := dec.Info()
	fmt.Fprintf(w, "format: %s\n", info.Format)
	fmt.Fprintf(w, "size: %dx%d\n", info.Width, info.Height)
	fmt.Fprintf(w, "components: %d bpc: %d\n", info.Components, info.BPC)
	if len(info.Palette) > 0 {
		fmt.Fprintf(w, "palette: %d entries\n", len(info.Palette))
	}
	fmt.Fprint(w, dec.Attributes())
	for _, rec := range dec.Frames() {
		fmt.Fprintf(w, "frame %d: %dx%d at %d,%d delay %dms\n",
			rec.Index, rec.Width, rec.Height, rec.Left, rec.Top, rec.DelayCentis*10)
	}
	return nil
}

type decodeRequest struct {
	hint          imgcodec.Format
	cfg           imgcodec.Config
	format        imgcodec.PixelFormat
	width, height int
	interp        imgcodec.Interpolation
}

// decodeFile decodes the file at path into a new bitmap.
func decodeFile(path string, req decodeRequest) (*imgcodec.Bitmap, error) {
	dec, closeFile, err := openDecoder(path, req.hint, req.cfg)
	if err != nil {
		return nil, err
	}
	defer closeFile()

	w, h := req.width, req.height
	if w == 0 {
		w, h = dec.Info().Width, dec.Info().Height
	}
	bmp, err := imgcodec.NewBitmap(w, h, req.format)
	if err != nil {
		return nil, err
	}
	if err := dec.StartDecode(bmp, imgcodec.DecodeOptions{Interpolation: req.interp}, nil); err != nil {
		return nil, err
	}
	for {
		status, err := dec.ContinueDecode()
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		switch status {
		case imgcodec.StatusFinished:
			return bmp, nil
		case imgcodec.StatusNeedMoreInput:
			return nil, fmt.Errorf("decode %s: %w", path, imgcodec.ErrTruncated)
		}
	}
}

func handleDecode(path, out string, req decodeRequest) error {
	bmp, err := decodeFile(path, req)
	if err != nil {
		return err
	}
	return writePNG(out, bmp.Image())
}

// handleBatch decodes every file concurrently and writes dir/<name>.png
// for each.
func handleBatch(paths []string, dir string, hint imgcodec.Format, f imgcodec.PixelFormat, opts imgcodec.BatchOptions) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	jobs := make([]imgcodec.BatchJob, 0, len(paths))
	for _, path := range paths {
		data, err := readInput(path)
		if err != nil {
			return err
		}
		jobs = append(jobs, imgcodec.BatchJob{
			Name:        path,
			Source:      imgcodec.NewMemorySource(data),
			Hint:        hint,
			PixelFormat: f,
		})
	}

	failed := 0
	for res := range imgcodec.DecodeBatch(jobs, opts) {
		if res.Err != nil {
			log.Printf("%s: %v", res.Name, res.Err)
			failed++
			continue
		}
		if err := writePNG(filepath.Join(dir, inputName(res.Name)+".png"), res.Bitmap.Image()); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(jobs))
	}
	return nil
}

// handleEncodeFax thresholds the image to one bit and writes it as CCITT
// data with the configured parameters.
func handleEncodeFax(path, out string, hint imgcodec.Format, cfg imgcodec.Config) error {
	if hint == imgcodec.FormatFax {
		return errors.New("encode-fax needs a non-fax input")
	}
	bmp, err := decodeFile(path, decodeRequest{hint: hint, cfg: cfg, format: imgcodec.Format1bppMask})
	if err != nil {
		return err
	}
	params := cfg.Fax
	params.Columns, params.Rows = bmp.Width, bmp.Height
	data, err := imgcodec.EncodeFax(bmp.Pix, bmp.Pitch, params)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return err
	}
	log.Printf("wrote %d bytes, decode with -format fax -fax K=%d,Columns=%d,Rows=%d", len(data), params.K, params.Columns, params.Rows)
	return nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
