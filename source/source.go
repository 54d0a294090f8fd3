// Package source delivers ordered raster frames to the detection engine.
// Decoding containers and codecs is this package's whole job; everything
// downstream sees only RGB Mats with a raw decode index.
package source

import (
	"errors"

	"gocv.io/x/gocv"
)

// ErrUnavailable means the frame source cannot be opened or read at all.
// This is the only fatal condition in the error taxonomy: the pass aborts
// with no partial result.
var ErrUnavailable = errors.New("frame source unavailable")

// FrameSource is an ordered stream of decoded frames.
//
// Next returns the next frame as an 8-bit RGB Mat together with its raw
// decode index; ok is false at end of stream. The caller owns the returned
// Mat and must close it. A returned empty Mat with ok true marks a single
// undecodable frame; callers skip its contribution and continue.
type FrameSource interface {
	Next() (frame gocv.Mat, index int, ok bool)
	// Rate is the reported frame rate in frames/second, 0 when unknown.
	Rate() float64
	// TotalFrames is the reported decoded frame count, 0 when unknown.
	TotalFrames() int
	Close() error
}
