package imgcodec

import (
	"errors"
	"io"
)

type incrementalDecoder interface {
	ScanlineDecoder
	Feed(p []byte)
}

// drainRows decodes every row of dec, feeding data chunk bytes at a time
// whenever the decoder asks for more. Rows are keyed by their reported index.
func drainRows(dec incrementalDecoder, data []byte, chunk int) (map[int][]byte, error) {
	if chunk <= 0 {
		chunk = len(data)
	}
	off := 0
	feed := func() bool {
		if off >= len(data) {
			return false
		}
		end := min(off+chunk, len(data))
		dec.Feed(data[off:end])
		off = end
		return true
	}
	feed()

	rows := make(map[int][]byte)
	for {
		line, err := dec.NextScanline()
		switch {
		case err == nil:
			rows[line.Row] = append([]byte(nil), line.Pix...)
		case errors.Is(err, io.EOF):
			return rows, nil
		case errors.Is(err, ErrNeedMoreInput):
			if !feed() {
				return rows, err
			}
		default:
			return rows, err
		}
	}
}
