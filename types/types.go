package types

import (
	"fmt"

	"gocv.io/x/gocv"
)

// FrameRecord holds one representative frame and its metadata. Records are
// immutable once created; downstream consumers read them and may take a
// defensive copy before any transform.
type FrameRecord struct {
	// Index is the position in original decode order. Sparse after skipping.
	Index int
	// Timestamp is seconds from stream start, Index/rate when rate > 0.
	Timestamp float64
	// Raster is the owned RGB pixel buffer, Width*Height*3 bytes.
	Raster []byte
	Width  int
	Height int
}

// NewFrameRecord validates raster geometry once at the boundary so nothing
// downstream has to re-check it.
func NewFrameRecord(index int, timestamp float64, raster []byte, width, height int) (FrameRecord, error) {
	if index < 0 {
		return FrameRecord{}, fmt.Errorf("frame index must be non-negative, got %d", index)
	}
	if width <= 0 || height <= 0 {
		return FrameRecord{}, fmt.Errorf("invalid frame dimensions %dx%d", width, height)
	}
	if len(raster) != width*height*3 {
		return FrameRecord{}, fmt.Errorf("raster size %d does not match %dx%d RGB frame", len(raster), width, height)
	}
	return FrameRecord{
		Index:     index,
		Timestamp: timestamp,
		Raster:    raster,
		Width:     width,
		Height:    height,
	}, nil
}

// RecordFromMat copies an RGB Mat into a new FrameRecord. The Mat stays
// owned by the caller.
func RecordFromMat(index int, rate float64, m gocv.Mat) (FrameRecord, error) {
	if m.Empty() {
		return FrameRecord{}, fmt.Errorf("cannot build frame record %d from empty image", index)
	}
	if m.Type() != gocv.MatTypeCV8UC3 {
		return FrameRecord{}, fmt.Errorf("frame %d is not an 8-bit RGB image (type %d)", index, m.Type())
	}
	data := m.ToBytes()
	raster := make([]byte, len(data))
	copy(raster, data)

	timestamp := 0.0
	if rate > 0 {
		timestamp = float64(index) / rate
	}
	return NewFrameRecord(index, timestamp, raster, m.Cols(), m.Rows())
}

// Mat rebuilds a gocv view of the record's raster. The returned Mat owns a
// copy of the pixels and must be closed by the caller.
func (f FrameRecord) Mat() (gocv.Mat, error) {
	if len(f.Raster) != f.Width*f.Height*3 {
		return gocv.Mat{}, fmt.Errorf("frame %d raster is corrupt: %d bytes for %dx%d",
			f.Index, len(f.Raster), f.Width, f.Height)
	}
	m, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Raster)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("cannot rebuild image for frame %d: %w", f.Index, err)
	}
	return m, nil
}

// Stage identifies which phase of a pass a progress snapshot belongs to.
type Stage string

const (
	StageInitializing       Stage = "initializing"
	StageExtracting         Stage = "extracting"
	StageRemovingDuplicates Stage = "removing_duplicates"
	StageGeneratingPreviews Stage = "generating_previews"
	StageCompleted          Stage = "completed"
	// StageStopped is a successful partial result after a cooperative stop,
	// never a failure.
	StageStopped Stage = "stopped"
	StageError   Stage = "error"
)

// Terminal reports whether a stage ends the pass.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageStopped || s == StageError
}

// ProgressSnapshot is one immutable report of pass progress. The engine
// produces successive snapshots; it never stores them itself.
type ProgressSnapshot struct {
	Stage        Stage   `json:"stage"`
	CurrentIndex int     `json:"current_index"`
	TotalFrames  int     `json:"total_frames"`
	Percent      float64 `json:"percent"`
	// ProcessedCount is how many frames survived the skip filter and were
	// evaluated so far.
	ProcessedCount    int     `json:"processed_count"`
	DetectedCount     int     `json:"detected_count"`
	KeptCount         int     `json:"kept_count"`
	DuplicatesRemoved int     `json:"duplicates_removed"`
	Rate              float64 `json:"rate"`
	// DurationEstimate is the reported stream length in seconds.
	DurationEstimate float64 `json:"duration_estimate"`
	ElapsedSeconds   float64 `json:"elapsed_seconds"`
	RemainingSeconds float64 `json:"remaining_seconds"`
	// Throughput is processed frames per second of wall time.
	Throughput float64 `json:"throughput"`
	Message    string  `json:"message,omitempty"`
}

// Sink receives progress snapshots. A nil Sink is allowed everywhere and
// means the caller does not want progress reports.
type Sink func(ProgressSnapshot)

// Emit forwards a snapshot if the sink is non-nil.
func (s Sink) Emit(snap ProgressSnapshot) {
	if s != nil {
		s(snap)
	}
}
