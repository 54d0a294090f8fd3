package engine

import (
	"sync"

	"framesift/types"
)

// Tracker holds the latest progress snapshot for concurrent pollers while
// forwarding every snapshot to an optional caller sink. One writer (the
// running pass) and any number of readers; the whole snapshot is replaced
// under one lock so readers never observe a partial update.
type Tracker struct {
	mu     sync.RWMutex
	latest types.ProgressSnapshot
	sink   types.Sink
}

// NewTracker wraps sink, which may be nil.
func NewTracker(sink types.Sink) *Tracker {
	return &Tracker{sink: sink}
}

// SetSink replaces the forwarding sink, which may be nil. Snapshots
// already in flight go to whichever sink Publish observed.
func (t *Tracker) SetSink(sink types.Sink) {
	t.mu.Lock()
	t.sink = sink
	t.mu.Unlock()
}

// Publish replaces the latest snapshot and forwards it.
func (t *Tracker) Publish(snap types.ProgressSnapshot) {
	t.mu.Lock()
	t.latest = snap
	sink := t.sink
	t.mu.Unlock()
	sink.Emit(snap)
}

// Latest returns the most recent snapshot. Safe for concurrent use with
// Publish.
func (t *Tracker) Latest() types.ProgressSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.latest
}
