package detector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"framesift/similarity"
	"framesift/source"
	"framesift/types"
)

func uniformFrame(value float64) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(value, value, value, 0), 48, 64, gocv.MatTypeCV8UC3)
}

// identicalFrames builds n copies of the same mid-gray frame.
func identicalFrames(n int) []gocv.Mat {
	frames := make([]gocv.Mat, n)
	for i := range frames {
		frames[i] = uniformFrame(128)
	}
	return frames
}

// alternatingFrames switches between black and white on every frame.
func alternatingFrames(n int) []gocv.Mat {
	frames := make([]gocv.Mat, n)
	for i := range frames {
		if i%2 == 0 {
			frames[i] = uniformFrame(0)
		} else {
			frames[i] = uniformFrame(255)
		}
	}
	return frames
}

func newDetector(opts Options) *Detector {
	return New(opts, similarity.NewStructuralStrategy(), zap.NewNop())
}

func TestIdenticalFramesYieldSingleCandidate(t *testing.T) {
	src := source.NewMemorySource(identicalFrames(100), 30)
	defer src.Close()

	d := newDetector(Options{ChangeThreshold: 0.3, MinFrameInterval: 30, FrameSkip: 1})
	candidates, stopped, err := d.Detect(context.Background(), src, nil)
	require.NoError(t, err)
	assert.False(t, stopped)
	require.Len(t, candidates, 1)
	assert.Equal(t, 0, candidates[0].Index)
	assert.Equal(t, 0.0, candidates[0].Timestamp)
}

func TestFirstFrameAlwaysIncluded(t *testing.T) {
	// Spacing can never starve the first frame, even when the interval
	// exceeds the stream length.
	src := source.NewMemorySource(alternatingFrames(10), 30)
	defer src.Close()

	d := newDetector(Options{ChangeThreshold: 0.3, MinFrameInterval: 1000, FrameSkip: 1})
	candidates, _, err := d.Detect(context.Background(), src, nil)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, 0, candidates[0].Index)
}

func TestAlternatingFramesDetected(t *testing.T) {
	src := source.NewMemorySource(alternatingFrames(20), 30)
	defer src.Close()

	d := newDetector(Options{ChangeThreshold: 0.3, MinFrameInterval: 1, FrameSkip: 1})
	candidates, _, err := d.Detect(context.Background(), src, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(candidates), 3)

	assertStrictlyIncreasing(t, candidates)
	// Processed spacing between consecutive candidates honors the minimum
	// interval; the first pair may be closer.
	for i := 2; i < len(candidates); i++ {
		assert.GreaterOrEqual(t, candidates[i].Index-candidates[i-1].Index, 1)
	}
}

func TestFrameSkipEvaluatesEveryNth(t *testing.T) {
	src := source.NewMemorySource(alternatingFrames(30), 30)
	defer src.Close()

	var last types.ProgressSnapshot
	d := newDetector(Options{ChangeThreshold: 0.3, MinFrameInterval: 3, FrameSkip: 3})
	candidates, _, err := d.Detect(context.Background(), src,
		func(s types.ProgressSnapshot) { last = s })
	require.NoError(t, err)
	require.NotEmpty(t, candidates)

	// Only decode indices 0,3,...,27 are evaluated, so every candidate
	// index is a multiple of the skip factor and exactly 10 frames are
	// processed.
	for _, c := range candidates {
		assert.Equal(t, 0, c.Index%3, "candidate index %d not on the processed grid", c.Index)
	}
	assert.Equal(t, 0, candidates[0].Index)
	assertStrictlyIncreasing(t, candidates)
	assert.Equal(t, 10, last.ProcessedCount)
}

func TestZeroRateTimestamps(t *testing.T) {
	src := source.NewMemorySource(alternatingFrames(8), 0)
	defer src.Close()

	d := newDetector(Options{ChangeThreshold: 0.3, MinFrameInterval: 1, FrameSkip: 1})
	candidates, _, err := d.Detect(context.Background(), src, nil)
	require.NoError(t, err)
	require.NotEmpty(t, candidates)
	for _, c := range candidates {
		assert.Equal(t, 0.0, c.Timestamp)
	}
}

func TestEmptySource(t *testing.T) {
	src := source.NewMemorySource(nil, 30)
	defer src.Close()

	var last types.ProgressSnapshot
	d := newDetector(Options{ChangeThreshold: 0.3, MinFrameInterval: 30, FrameSkip: 1})
	candidates, stopped, err := d.Detect(context.Background(), src,
		func(s types.ProgressSnapshot) { last = s })
	require.NoError(t, err)
	assert.False(t, stopped)
	assert.Empty(t, candidates)
	assert.Equal(t, types.StageCompleted, last.Stage)
	assert.Equal(t, 100.0, last.Percent)
}

func TestProgressPercentMonotonic(t *testing.T) {
	src := source.NewMemorySource(alternatingFrames(60), 30)
	defer src.Close()

	var snaps []types.ProgressSnapshot
	d := newDetector(Options{ChangeThreshold: 0.3, MinFrameInterval: 1, FrameSkip: 1})
	_, _, err := d.Detect(context.Background(), src,
		func(s types.ProgressSnapshot) { snaps = append(snaps, s) })
	require.NoError(t, err)
	require.NotEmpty(t, snaps)

	assert.Equal(t, types.StageInitializing, snaps[0].Stage)
	last := snaps[len(snaps)-1]
	assert.Equal(t, types.StageCompleted, last.Stage)
	assert.Equal(t, 100.0, last.Percent)

	prev := -1.0
	for _, s := range snaps {
		if s.Stage != types.StageExtracting {
			continue
		}
		assert.GreaterOrEqual(t, s.Percent, prev)
		prev = s.Percent
	}
}

// cancellingSource cancels a context once frame trigger has been handed
// out, making cooperative stops deterministic in tests.
type cancellingSource struct {
	*source.MemorySource
	trigger int
	served  int
	cancel  context.CancelFunc
}

func (c *cancellingSource) Next() (gocv.Mat, int, bool) {
	if c.served == c.trigger {
		c.cancel()
	}
	c.served++
	return c.MemorySource.Next()
}

func TestCancellationYieldsPrefix(t *testing.T) {
	opts := Options{ChangeThreshold: 0.3, MinFrameInterval: 1, FrameSkip: 1}

	full := source.NewMemorySource(alternatingFrames(40), 30)
	fullCandidates, stopped, err := newDetector(opts).Detect(context.Background(), full, nil)
	full.Close()
	require.NoError(t, err)
	require.False(t, stopped)
	require.Greater(t, len(fullCandidates), 2)

	ctx, cancel := context.WithCancel(context.Background())
	partialSrc := &cancellingSource{
		MemorySource: source.NewMemorySource(alternatingFrames(40), 30),
		trigger:      20,
		cancel:       cancel,
	}
	defer partialSrc.Close()

	var last types.ProgressSnapshot
	partial, stopped, err := newDetector(opts).Detect(ctx, partialSrc,
		func(s types.ProgressSnapshot) { last = s })
	require.NoError(t, err)
	assert.True(t, stopped)
	assert.Equal(t, types.StageStopped, last.Stage)

	// Stopped result is a strict prefix of the uninterrupted run.
	require.Less(t, len(partial), len(fullCandidates))
	for i, c := range partial {
		assert.Equal(t, fullCandidates[i].Index, c.Index)
	}
}

func TestStoppedBeforeFirstFrame(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := source.NewMemorySource(identicalFrames(5), 30)
	defer src.Close()

	var last types.ProgressSnapshot
	d := newDetector(Options{ChangeThreshold: 0.3, MinFrameInterval: 30, FrameSkip: 1})
	candidates, stopped, err := d.Detect(ctx, src,
		func(s types.ProgressSnapshot) { last = s })
	require.NoError(t, err)
	assert.True(t, stopped)
	assert.Empty(t, candidates)
	assert.Equal(t, types.StageStopped, last.Stage)
	// Nothing was read yet, so no progress can be claimed.
	assert.Equal(t, 0.0, last.Percent)
	assert.Equal(t, 0, last.ProcessedCount)
}

func assertStrictlyIncreasing(t *testing.T, frames []types.FrameRecord) {
	t.Helper()
	for i := 1; i < len(frames); i++ {
		assert.Greater(t, frames[i].Index, frames[i-1].Index)
	}
}
