// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package imgcodec

import (
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// ResolutionUnit is the unit of Attributes.XResolution and Attributes.YResolution.
type ResolutionUnit int

const (
	UnitNone  ResolutionUnit = iota // aspect ratio only
	UnitMeter                       // pixels per meter
	UnitInch                        // pixels per inch
)

func (u ResolutionUnit) String() string {
	switch u {
	case UnitMeter:
		return "meter"
	case UnitInch:
		return "inch"
	}
	return "none"
}

// Attributes carries the non-pixel information found while reading a header.
type Attributes struct {
	XResolution   int            // pixels per Unit horizontally
	YResolution   int            // pixels per Unit vertically
	Unit          ResolutionUnit // unit of XResolution and YResolution
	AspectRatio   float64        // pixel aspect ratio, 0 when unspecified
	Comments      []string       // GIF comment and plain text blocks
	ApplicationID string         // GIF application extension identifier
	FrameCount    int            // frames seen so far in a multi-frame stream
	Metadata      map[string]string
}

func (a *Attributes) setMeta(key, value string) {
	if a.Metadata == nil {
		a.Metadata = make(map[string]string)
	}
	a.Metadata[key] = value
}

// DPI returns the resolution in pixels per inch, rounded. ok is false when
// the unit carries no physical size.
func (a Attributes) DPI() (x, y int, ok bool) {
	switch a.Unit {
	case UnitInch:
		return a.XResolution, a.YResolution, true
	case UnitMeter:
		return (a.XResolution*254 + 5000) / 10000, (a.YResolution*254 + 5000) / 10000, true
	}
	return 0, 0, false
}

// String formats the attributes one field per line, skipping empty fields.
func (a Attributes) String() string {
	var b strings.Builder

	if a.XResolution != 0 || a.YResolution != 0 {
		b.WriteString("Resolution: " + strconv.Itoa(a.XResolution) + "x" + strconv.Itoa(a.YResolution) + " per " + a.Unit.String() + "\n")
	}
	if a.AspectRatio != 0 {
		b.WriteString("Aspect ratio: " + strconv.FormatFloat(a.AspectRatio, 'f', 4, 64) + "\n")
	}
	if a.FrameCount > 0 {
		b.WriteString("Frames: " + strconv.Itoa(a.FrameCount) + "\n")
	}
	if a.ApplicationID != "" {
		b.WriteString("Application: " + a.ApplicationID + "\n")
	}
	for _, c := range a.Comments {
		b.WriteString("Comment: " + c + "\n")
	}

	if len(a.Metadata) > 0 {
		keys := make([]string, 0, len(a.Metadata))
		for k := range a.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("Metadata:\n")
		for _, k := range keys {
			b.WriteString("  " + k + ": " + a.Metadata[k] + "\n")
		}
	}

	return b.String()
}

// decodeLatin1 decodes GIF text blocks, which carry 8-bit ISO 8859-1 text.
func decodeLatin1(p []byte) string {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(p)
	if err != nil {
		return string(p)
	}
	return string(out)
}
