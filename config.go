// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package imgcodec

import (
	"log"
)

// DefaultChunkSize is the number of bytes copied from a ByteSource per read.
const DefaultChunkSize = 4096

// Config configures a ProgressiveDecoder. The zero value is usable: missing
// fields take the values of DefaultConfig.
type Config struct {
	// Adapters decode the formats handled outside this package. Nil selects
	// DefaultAdapters; an empty non-nil slice disables them.
	Adapters []Adapter

	// Fax describes a CCITT stream, which carries no header of its own.
	Fax FaxParams

	// ChunkSize bounds each read from the source
	ChunkSize int

	// FrameIndex selects the frame of a multi-frame GIF
	FrameIndex int

	Limits DecodeLimits

	// RetainInput keeps BMP and GIF input buffered for Rewind
	RetainInput bool

	// Pool supplies chunk buffers (nil = package pool)
	Pool *BufferPool

	// Logger receives diagnostics when Debug is set (nil = log.Default)
	Logger *log.Logger
	Debug  bool
}

// DefaultConfig returns the configuration used for zero fields.
func DefaultConfig() Config {
	return Config{
		Fax:       DefaultFaxParams(),
		ChunkSize: DefaultChunkSize,
		Limits:    DefaultDecodeLimits(),
	}
}

// normalize fills zero fields from DefaultConfig.
func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.Adapters == nil {
		c.Adapters = DefaultAdapters()
	}
	if c.Fax.Columns == 0 {
		c.Fax.Columns = def.Fax.Columns
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = def.ChunkSize
	}
	if c.FrameIndex < 0 {
		c.FrameIndex = 0
	}
	if c.Limits == (DecodeLimits{}) {
		c.Limits = def.Limits
	}
	if c.Pool == nil {
		c.Pool = defaultBufferPool
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

func (c *Config) decoderOptions() DecoderOptions {
	return DecoderOptions{Limits: c.Limits, RetainInput: c.RetainInput}
}

// debugf logs when debugging is on.
func (c *Config) debugf(format string, args ...interface{}) {
	if c.Debug {
		c.Logger.Printf("imgcodec: "+format, args...)
	}
}
