// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package imgcodec

import (
	"errors"
	"image"
	"io"
)

// DecodeState is the life cycle of a ProgressiveDecoder.
type DecodeState int

const (
	StateUnstarted DecodeState = iota
	StateHeaderProbe
	StateFrameReady
	StateDecoding
	StateNeedMoreInput
	StateFinished
	StateFailed
)

var stateNames = [...]string{
	StateUnstarted:     "unstarted",
	StateHeaderProbe:   "header-probe",
	StateFrameReady:    "frame-ready",
	StateDecoding:      "decoding",
	StateNeedMoreInput: "need-more-input",
	StateFinished:      "finished",
	StateFailed:        "failed",
}

func (s DecodeState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Status is the outcome of a LoadImageInfo or ContinueDecode call.
type Status int

const (
	// StatusNeedMoreInput asks the caller to add data to the source and
	// call again.
	StatusNeedMoreInput Status = iota
	StatusReady
	StatusFinished
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusNeedMoreInput:
		return "need-more-input"
	case StatusReady:
		return "ready"
	case StatusFinished:
		return "finished"
	}
	return "failed"
}

// RowSink is told about every destination row once its pixels are final.
type RowSink interface {
	OnRow(y int, row []byte)
}

// RowSinkFunc adapts a function to RowSink.
type RowSinkFunc func(y int, row []byte)

func (f RowSinkFunc) OnRow(y int, row []byte) { f(y, row) }

// DecodeOptions places the decoded image in the destination bitmap.
type DecodeOptions struct {
	// DstRect receives the image, scaled to fit (empty = whole bitmap)
	DstRect image.Rectangle

	// SrcClip selects the part of the source to decode (empty = all)
	SrcClip image.Rectangle

	Interpolation Interpolation
}

// probeOrder is the order formats are tried in when no hint is given.
// Fax streams have no signature and are only decoded when hinted.
var probeOrder = []Format{FormatBMP, FormatJPEG, FormatPNG, FormatGIF, FormatTIFF, FormatJPEG2000}

// ProgressiveDecoder decodes an image from a ByteSource into a Bitmap,
// scaling and converting it on the way, using only the bytes that have
// arrived so far. No call blocks: when the source runs dry the decoder
// returns StatusNeedMoreInput and resumes on the next call.
//
// A ProgressiveDecoder is not safe for concurrent use.
type ProgressiveDecoder struct {
	cfg   Config
	state DecodeState
	err   error

	src        ByteSource
	offset     int64
	candidates []Format
	cur        int
	session    codecSession

	info   ImageInfo
	attrs  Attributes
	frames []FrameRecord

	dst       *Bitmap
	sink      RowSink
	dstRect   image.Rectangle
	clip      image.Rectangle
	frame     image.Rectangle
	tf        *transform
	ch        int
	hw        *weightTable
	bySrc     [][]rowContribution
	need      []int
	acc       [][]int32
	work      []byte
	hrow      []byte
	final     []byte
	rowsSeen  int
	rowsWant  int
	rowsReady int
}

// NewProgressiveDecoder returns a decoder in the unstarted state.
func NewProgressiveDecoder(cfg Config) *ProgressiveDecoder {
	return &ProgressiveDecoder{cfg: cfg.normalize()}
}

// State returns the current state.
func (p *ProgressiveDecoder) State() DecodeState { return p.state }

// Err returns the error that moved the decoder to StateFailed.
func (p *ProgressiveDecoder) Err() error { return p.err }

// Info describes the source once LoadImageInfo returned StatusReady. For
// GIF it is the logical screen with the selected frame's palette.
func (p *ProgressiveDecoder) Info() ImageInfo { return p.info }

// Attributes returns the metadata found in the header.
func (p *ProgressiveDecoder) Attributes() Attributes { return p.attrs }

// Frames returns the GIF frames seen so far.
func (p *ProgressiveDecoder) Frames() []FrameRecord { return p.frames }

// RowsReady returns the number of destination rows finished so far.
func (p *ProgressiveDecoder) RowsReady() int { return p.rowsReady }

func (p *ProgressiveDecoder) format() Format {
	if p.session != nil {
		return p.session.format()
	}
	return FormatUnknown
}

func (p *ProgressiveDecoder) fail(err error) (Status, error) {
	p.state = StateFailed
	p.err = err
	p.release()
	p.cfg.debugf("%s failed: %v", p.format(), err)
	return StatusFailed, err
}

// LoadImageInfo identifies the format of src and parses its header. With a
// hint other than FormatUnknown only that format is tried; otherwise each
// format in turn, the first whose header parses winning. Call it again
// with the same arguments after StatusNeedMoreInput.
func (p *ProgressiveDecoder) LoadImageInfo(src ByteSource, hint Format) (Status, error) {
	switch p.state {
	case StateUnstarted:
		if src == nil || src.Size() <= 0 {
			return p.fail(fatalError(hint, "load image info", ErrBadParameter))
		}
		p.src = src
		p.candidates = p.probeCandidates(hint)
		if len(p.candidates) == 0 {
			return p.fail(decodeError(hint, "load image info", ErrUnsupportedFormat))
		}
		p.state = StateHeaderProbe
		p.startCandidate(0)
	case StateHeaderProbe:
	case StateFailed:
		return StatusFailed, p.err
	default:
		return StatusReady, nil
	}

	for {
		info, err := p.session.readHeader()
		if err == nil {
			return p.acceptHeader(info)
		}
		if IsNeedMoreInput(err) {
			res, rerr := p.readChunk()
			if rerr != nil {
				return p.fail(rerr)
			}
			switch res {
			case chunkRead:
				continue
			case chunkWait:
				return StatusNeedMoreInput, nil
			}
			err = decodeError(p.format(), "read header", ErrTruncated)
		}
		if IsFatal(err) || len(p.candidates) == 1 {
			return p.fail(err)
		}
		p.cfg.debugf("%s probe rejected: %v", p.format(), err)
		if p.cur+1 == len(p.candidates) {
			return p.fail(decodeError(FormatUnknown, "load image info", ErrUnsupportedFormat))
		}
		p.startCandidate(p.cur + 1)
	}
}

func (p *ProgressiveDecoder) probeCandidates(hint Format) []Format {
	if hint != FormatUnknown {
		if p.hasDecoder(hint) {
			return []Format{hint}
		}
		return nil
	}
	var out []Format
	for _, f := range probeOrder {
		if p.hasDecoder(f) {
			out = append(out, f)
		}
	}
	return out
}

func (p *ProgressiveDecoder) hasDecoder(f Format) bool {
	switch f {
	case FormatBMP, FormatGIF, FormatFax:
		return true
	}
	return p.adapter(f) != nil
}

func (p *ProgressiveDecoder) adapter(f Format) Adapter {
	for _, a := range p.cfg.Adapters {
		if a.Format() == f {
			return a
		}
	}
	return nil
}

// startCandidate opens a fresh session for candidate i, reading from the
// start of the source.
func (p *ProgressiveDecoder) startCandidate(i int) {
	p.cur = i
	p.offset = 0
	p.frames = nil
	f := p.candidates[i]
	switch f {
	case FormatBMP:
		p.session = &bmpSession{NewBMPDecoder(p.cfg.decoderOptions())}
	case FormatGIF:
		p.session = &gifSession{
			dec:     NewGIFDecoder(p.cfg.decoderOptions()),
			index:   p.cfg.FrameIndex,
			onFrame: p.OnFrameRecord,
		}
	case FormatFax:
		p.session = &faxSession{params: p.cfg.Fax, limits: p.cfg.Limits, size: p.src.Size()}
	default:
		p.session = &adapterSession{
			f:      f,
			s:      p.adapter(f).Start(p.src.Size()),
			limits: p.cfg.Limits,
		}
	}
	p.cfg.debugf("probing %s", f)
}

func (p *ProgressiveDecoder) acceptHeader(info ImageInfo) (Status, error) {
	f := p.format()
	if err := p.cfg.Limits.checkDimensions(info.Width, info.Height); err != nil {
		return p.fail(decodeError(f, "read header", err))
	}
	p.info = info
	p.attrs = p.session.attributes()
	p.state = StateFrameReady
	p.cfg.debugf("%s %dx%d layout %d", f, info.Width, info.Height, info.Layout)
	return StatusReady, nil
}

type chunkResult int

const (
	chunkRead chunkResult = iota // bytes were fed
	chunkWait                    // the source has not received them yet
	chunkEnd                     // the source is exhausted
)

// readChunk copies the next bounded chunk of the source into the session.
func (p *ProgressiveDecoder) readChunk() (chunkResult, error) {
	size := p.src.Size()
	if p.offset >= size {
		return chunkEnd, nil
	}
	n := int(min(int64(p.cfg.ChunkSize), size-p.offset))
	buf := p.cfg.Pool.Get(n)
	defer p.cfg.Pool.Put(buf)

	got, err := p.src.ReadAt(buf, p.offset)
	if got > 0 {
		if ferr := p.session.feed(buf[:got]); ferr != nil {
			return chunkEnd, ferr
		}
		p.offset += int64(got)
		return chunkRead, nil
	}
	switch {
	case errors.Is(err, ErrNeedMoreInput):
		return chunkWait, nil
	case err == nil || errors.Is(err, io.EOF):
		return chunkEnd, nil
	}
	return chunkEnd, fatalError(p.format(), "read source", err)
}

// StartDecode prepares decoding into dst. The destination pixels outside
// opts.DstRect are left untouched; inside it, sources with transparency
// are composited over the existing pixels unless dst has an alpha channel.
func (p *ProgressiveDecoder) StartDecode(dst *Bitmap, opts DecodeOptions, sink RowSink) error {
	f := p.format()
	switch p.state {
	case StateFrameReady:
	case StateFailed:
		return p.err
	default:
		_, err := p.fail(fatalError(f, "start decode", ErrBadParameter))
		return err
	}
	if err := dst.validate(); err != nil {
		_, err = p.fail(fatalError(f, "start decode", err))
		return err
	}

	dstRect := opts.DstRect
	if dstRect.Empty() {
		dstRect = dst.Bounds()
	}
	bounds := image.Rect(0, 0, p.info.Width, p.info.Height)
	clip := opts.SrcClip
	if clip.Empty() {
		clip = bounds
	}
	if !dstRect.In(dst.Bounds()) || !clip.In(bounds) {
		_, err := p.fail(fatalError(f, "start decode", ErrBadParameter))
		return err
	}

	tf, err := newTransform(p.info, dst.Format, p.session.needsAlpha())
	if err != nil {
		_, err = p.fail(decodeError(f, "start decode", err))
		return err
	}
	hw, err := newWeightTable(dstRect.Dx(), clip.Dx(), opts.Interpolation)
	if err != nil {
		_, err = p.fail(fatalError(f, "start decode", err))
		return err
	}
	vw, err := newWeightTable(dstRect.Dy(), clip.Dy(), opts.Interpolation)
	if err != nil {
		_, err = p.fail(fatalError(f, "start decode", err))
		return err
	}

	if dst.Palette == nil {
		switch dst.Format {
		case Format1bppIndexed:
			dst.Palette = grayRamp(2)
		case Format8bppIndexed:
			dst.Palette = grayRamp(256)
		}
	}

	p.dst, p.sink = dst, sink
	p.dstRect, p.clip = dstRect, clip
	p.frame = p.session.frameRect()
	p.tf, p.ch, p.hw = tf, tf.method.channels(), hw
	p.bySrc, p.need = vw.invert()
	p.acc = make([][]int32, dstRect.Dy())
	p.work = getRow(clip.Dx() * p.ch)
	p.hrow = getRow(dstRect.Dx() * p.ch)
	p.final = getRow(dstRect.Dx() * p.ch)
	p.rowsWant = p.session.rowCount()
	p.state = StateDecoding
	p.cfg.debugf("%s decode %v of %v into %v %s, method %s", f, clip, bounds, dstRect, dst.Format, tf.method)

	// Screen rows the frame does not cover are transparent.
	for y := clip.Min.Y; y < clip.Max.Y; y++ {
		if y < p.frame.Min.Y || y >= p.frame.Max.Y {
			p.consumeRow(y, nil)
		}
	}
	return nil
}

// ContinueDecode decodes every row the available input allows. It returns
// StatusNeedMoreInput when the source has to grow first, and
// StatusFinished once the destination is complete.
func (p *ProgressiveDecoder) ContinueDecode() (Status, error) {
	switch p.state {
	case StateDecoding, StateNeedMoreInput:
	case StateFinished:
		return StatusFinished, nil
	case StateFailed:
		return StatusFailed, p.err
	default:
		return p.fail(fatalError(p.format(), "continue decode", ErrBadParameter))
	}
	p.state = StateDecoding

	for {
		err := DecodeScanlines(p.session, p)
		if err == nil {
			return p.finish()
		}
		if !IsNeedMoreInput(err) {
			return p.fail(err)
		}
		res, rerr := p.readChunk()
		if rerr != nil {
			return p.fail(rerr)
		}
		switch res {
		case chunkRead:
			continue
		case chunkWait:
			p.state = StateNeedMoreInput
			return StatusNeedMoreInput, nil
		}
		if p.rowsSeen >= p.rowsWant {
			// Every row arrived; only trailing blocks are missing.
			return p.finish()
		}
		return p.fail(decodeRowError(p.format(), "decode", p.rowsSeen, ErrTruncated))
	}
}

func (p *ProgressiveDecoder) finish() (Status, error) {
	for d, acc := range p.acc {
		if acc != nil {
			p.emitRow(d)
		}
	}
	p.release()
	p.state = StateFinished
	p.cfg.debugf("%s finished, %d rows", p.format(), p.rowsReady)
	return StatusFinished, nil
}

// release returns the decode buffers to their pools.
func (p *ProgressiveDecoder) release() {
	for d, acc := range p.acc {
		putAccumulator(acc)
		p.acc[d] = nil
	}
	putRow(p.work)
	putRow(p.hrow)
	putRow(p.final)
	p.work, p.hrow, p.final = nil, nil, nil
}

// OnScanline implements Delegate.
func (p *ProgressiveDecoder) OnScanline(line Scanline) error {
	p.rowsSeen++
	p.consumeRow(p.session.imageRow(line.Row), line.Pix)
	return nil
}

// OnFrameRecord implements Delegate.
func (p *ProgressiveDecoder) OnFrameRecord(rec FrameRecord) {
	p.frames = append(p.frames, rec)
}

// consumeRow resamples image row y and adds it to every destination row it
// contributes to. A nil pix is a fully transparent row.
func (p *ProgressiveDecoder) consumeRow(y int, pix []byte) {
	if y < p.clip.Min.Y || y >= p.clip.Max.Y {
		return
	}
	contribs := p.bySrc[y-p.clip.Min.Y]
	if len(contribs) == 0 {
		return
	}

	if pix == nil || p.frame.Min.X > p.clip.Min.X || p.frame.Max.X < p.clip.Max.X {
		clear(p.work)
	}
	if pix != nil {
		x0, x1 := max(p.frame.Min.X, p.clip.Min.X), min(p.frame.Max.X, p.clip.Max.X)
		if x1 > x0 {
			p.tf.unpack(p.work[(x0-p.clip.Min.X)*p.ch:], pix, x0-p.frame.Min.X, x1-x0)
		}
	}
	resampleRow(p.hrow, p.work, p.hw, p.ch)

	for _, c := range contribs {
		acc := p.acc[c.dst]
		if acc == nil {
			acc = getAccumulator(len(p.hrow))
			p.acc[c.dst] = acc
		}
		accumulateRow(acc, p.hrow, c.weight)
		p.need[c.dst]--
		if p.need[c.dst] == 0 {
			p.emitRow(c.dst)
		}
	}
}

// emitRow writes destination row d and hands it to the sink.
func (p *ProgressiveDecoder) emitRow(d int) {
	finishRow(p.final, p.acc[d])
	putAccumulator(p.acc[d])
	p.acc[d] = nil

	y := p.dstRect.Min.Y + d
	row := p.dst.Row(y)
	packRow(row, p.dst.Format, p.dstRect.Min.X, p.final, p.ch, p.dstRect.Dx())
	p.rowsReady++
	if p.sink != nil {
		p.sink.OnRow(y, row)
	}
}
