package source

import (
	"gocv.io/x/gocv"
)

// MemorySource serves frames from an in-memory slice. Used by tests and by
// callers that already hold decoded frames.
type MemorySource struct {
	frames []gocv.Mat
	rate   float64
	index  int
}

// NewMemorySource takes ownership of frames; they are released on Close.
// Frames must be 8-bit RGB.
func NewMemorySource(frames []gocv.Mat, rate float64) *MemorySource {
	return &MemorySource{frames: frames, rate: rate}
}

// Next implements FrameSource, returning a clone the caller can close
// independently of the source's own copies.
func (m *MemorySource) Next() (gocv.Mat, int, bool) {
	if m.index >= len(m.frames) {
		return gocv.Mat{}, 0, false
	}
	index := m.index
	m.index++
	return m.frames[index].Clone(), index, true
}

// Rate implements FrameSource.
func (m *MemorySource) Rate() float64 { return m.rate }

// TotalFrames implements FrameSource.
func (m *MemorySource) TotalFrames() int { return len(m.frames) }

// Close releases all owned frames.
func (m *MemorySource) Close() error {
	for i := range m.frames {
		m.frames[i].Close()
	}
	m.frames = nil
	return nil
}
