// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package imgcodec

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"
)

// ErrTimeout indicates a batch job ran past its deadline
var ErrTimeout = errors.New("decode timed out")

// BatchJob is one image for DecodeBatch.
type BatchJob struct {
	Name   string
	Source ByteSource
	Hint   Format

	// Width and Height size the destination (0 = image size)
	Width, Height int
	PixelFormat   PixelFormat
	Options       DecodeOptions
}

// BatchOptions configures DecodeBatch.
type BatchOptions struct {
	// Number of concurrent workers (0 = NumCPU, at most 4)
	Workers int

	// Context for cancellation
	Context context.Context

	// JobTimeout bounds a single job. Zero means 30 seconds, a negative
	// value disables the limit.
	JobTimeout time.Duration

	// Config is shared by every job
	Config Config
}

// BatchResult is the outcome of one job. Index is the job's position in
// the slice passed to DecodeBatch.
type BatchResult struct {
	Index  int
	Name   string
	Info   ImageInfo
	Bitmap *Bitmap
	Err    error
}

func (o BatchOptions) normalize() BatchOptions {
	if o.Workers <= 0 {
		o.Workers = min(max(runtime.NumCPU(), 1), 4)
	}
	if o.Context == nil {
		o.Context = context.Background()
	}
	if o.JobTimeout == 0 {
		o.JobTimeout = 30 * time.Second
	}
	o.Config = o.Config.normalize()
	return o
}

// DecodeBatch decodes jobs concurrently. Sources must hold their complete
// data; results arrive in completion order and the channel is closed when
// every job has been reported or the context is done.
func DecodeBatch(jobs []BatchJob, opts BatchOptions) <-chan BatchResult {
	opts = opts.normalize()
	results := make(chan BatchResult, min(opts.Workers*2, 64))

	go func() {
		defer close(results)

		queue := make(chan int, min(opts.Workers*2, len(jobs)))
		go func() {
			defer close(queue)
			for i := range jobs {
				select {
				case queue <- i:
				case <-opts.Context.Done():
					return
				}
			}
		}()

		var wg sync.WaitGroup
		for w := 0; w < opts.Workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				batchWorker(jobs, queue, results, opts)
			}()
		}
		wg.Wait()
	}()

	return results
}

func batchWorker(jobs []BatchJob, queue <-chan int, results chan<- BatchResult, opts BatchOptions) {
	for i := range queue {
		select {
		case <-opts.Context.Done():
			return
		default:
		}

		res := BatchResult{Index: i, Name: jobs[i].Name}
		func() {
			var ctx context.Context
			var cancel context.CancelFunc
			if opts.JobTimeout > 0 {
				ctx, cancel = context.WithTimeout(opts.Context, opts.JobTimeout)
			} else {
				ctx, cancel = context.WithCancel(opts.Context)
			}
			defer cancel()
			res.Info, res.Bitmap, res.Err = decodeJob(ctx, jobs[i], opts.Config)
		}()

		select {
		case results <- res:
		case <-opts.Context.Done():
			return
		}
	}
}

// DecodeBatchAll runs DecodeBatch and returns the results in job order. The
// error is the first failed job's, by index.
func DecodeBatchAll(jobs []BatchJob, opts BatchOptions) ([]BatchResult, error) {
	out := make([]BatchResult, len(jobs))
	seen := 0
	for res := range DecodeBatch(jobs, opts) {
		out[res.Index] = res
		seen++
	}
	for _, res := range out {
		if res.Err != nil {
			return out, fmt.Errorf("batch job %d (%s): %w", res.Index, res.Name, res.Err)
		}
	}
	if seen < len(jobs) {
		ctx := opts.Context
		if ctx == nil {
			ctx = context.Background()
		}
		return out, fmt.Errorf("batch stopped after %d of %d jobs: %w", seen, len(jobs), context.Cause(ctx))
	}
	return out, nil
}

// contextSource fails reads once ctx is done, which stops a decoder at its
// next chunk boundary.
type contextSource struct {
	ByteSource
	ctx context.Context
}

func (s contextSource) ReadAt(p []byte, off int64) (int, error) {
	if err := s.ctx.Err(); err != nil {
		return 0, err
	}
	return s.ByteSource.ReadAt(p, off)
}

func decodeJob(ctx context.Context, job BatchJob, cfg Config) (ImageInfo, *Bitmap, error) {
	info, bmp, err := runJob(ctx, job, cfg)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return info, bmp, err
}

func runJob(ctx context.Context, job BatchJob, cfg Config) (ImageInfo, *Bitmap, error) {
	if job.Source == nil {
		return ImageInfo{}, nil, fatalError(job.Hint, "batch decode", ErrBadParameter)
	}
	dec := NewProgressiveDecoder(cfg)
	status, err := dec.LoadImageInfo(contextSource{job.Source, ctx}, job.Hint)
	if err != nil {
		return ImageInfo{}, nil, err
	}
	if status != StatusReady {
		return ImageInfo{}, nil, decodeError(job.Hint, "batch decode", ErrTruncated)
	}
	info := dec.Info()

	w, h := job.Width, job.Height
	if w <= 0 || h <= 0 {
		w, h = info.Width, info.Height
	}
	bmp, err := NewBitmap(w, h, job.PixelFormat)
	if err != nil {
		return info, nil, err
	}
	if err := dec.StartDecode(bmp, job.Options, nil); err != nil {
		return info, nil, err
	}
	status, err = dec.ContinueDecode()
	if err != nil {
		return info, nil, err
	}
	if status != StatusFinished {
		return info, nil, decodeRowError(info.Format, "batch decode", dec.RowsReady(), ErrTruncated)
	}
	return info, bmp, nil
}
