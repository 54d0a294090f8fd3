package dedup

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"framesift/similarity"
	"framesift/types"
)

func uniformRecord(t *testing.T, index int, value byte) types.FrameRecord {
	t.Helper()
	const w, h = 64, 48
	raster := bytes.Repeat([]byte{value}, w*h*3)
	rec, err := types.NewFrameRecord(index, 0, raster, w, h)
	require.NoError(t, err)
	return rec
}

func newDeduplicator(threshold float64) *Deduplicator {
	return New(Options{SimilarityThreshold: threshold},
		similarity.NewStructuralStrategy(), zap.NewNop())
}

// Uniform frames with brightness a and b score SSIM ~= 2ab/(a^2+b^2), so
// 20 vs 21 is a near-duplicate while 20, 80, and 200 are all distinct.
func distinctAndDuplicate(t *testing.T) []types.FrameRecord {
	return []types.FrameRecord{
		uniformRecord(t, 0, 20),
		uniformRecord(t, 30, 80),
		uniformRecord(t, 60, 21),
		uniformRecord(t, 90, 200),
	}
}

func TestNearDuplicateRemoved(t *testing.T) {
	frames := distinctAndDuplicate(t)
	unique, removed := newDeduplicator(0.95).Deduplicate(frames, nil)

	assert.Equal(t, 1, removed)
	require.Len(t, unique, 3)
	assert.Equal(t, 0, unique[0].Index)
	assert.Equal(t, 30, unique[1].Index)
	assert.Equal(t, 90, unique[2].Index)
}

func TestFirstCandidateAlwaysKept(t *testing.T) {
	frames := []types.FrameRecord{
		uniformRecord(t, 5, 100),
		uniformRecord(t, 40, 100),
		uniformRecord(t, 80, 100),
	}
	unique, removed := newDeduplicator(0.95).Deduplicate(frames, nil)

	require.Len(t, unique, 1)
	assert.Equal(t, 5, unique[0].Index)
	assert.Equal(t, 2, removed)
}

func TestOrderPreservedAndStrictlyIncreasing(t *testing.T) {
	frames := distinctAndDuplicate(t)
	unique, _ := newDeduplicator(0.95).Deduplicate(frames, nil)

	for i := 1; i < len(unique); i++ {
		assert.Greater(t, unique[i].Index, unique[i-1].Index)
	}
}

func TestDeduplicateIdempotent(t *testing.T) {
	d := newDeduplicator(0.95)
	once, _ := d.Deduplicate(distinctAndDuplicate(t), nil)
	twice, removed := d.Deduplicate(once, nil)

	assert.Equal(t, 0, removed)
	require.Len(t, twice, len(once))
	for i := range once {
		assert.Equal(t, once[i].Index, twice[i].Index)
	}
}

func TestHigherThresholdKeepsAtLeastAsMany(t *testing.T) {
	frames := distinctAndDuplicate(t)

	loose, _ := newDeduplicator(0.5).Deduplicate(frames, nil)
	strict, _ := newDeduplicator(0.99).Deduplicate(frames, nil)

	assert.GreaterOrEqual(t, len(strict), len(loose))
}

func TestSmallInputsPassThrough(t *testing.T) {
	d := newDeduplicator(0.95)

	unique, removed := d.Deduplicate(nil, nil)
	assert.Empty(t, unique)
	assert.Equal(t, 0, removed)

	single := []types.FrameRecord{uniformRecord(t, 0, 42)}
	unique, removed = d.Deduplicate(single, nil)
	require.Len(t, unique, 1)
	assert.Equal(t, 0, removed)
}

func TestProgressReports(t *testing.T) {
	frames := distinctAndDuplicate(t)

	var snaps []types.ProgressSnapshot
	_, removed := newDeduplicator(0.95).Deduplicate(frames,
		func(s types.ProgressSnapshot) { snaps = append(snaps, s) })

	require.NotEmpty(t, snaps)
	for _, s := range snaps {
		assert.Equal(t, types.StageRemovingDuplicates, s.Stage)
		assert.Equal(t, len(frames), s.DetectedCount)
	}
	last := snaps[len(snaps)-1]
	assert.Equal(t, 100.0, last.Percent)
	assert.Equal(t, removed, last.DuplicatesRemoved)
	assert.Equal(t, 3, last.KeptCount)
}

func TestCorruptCandidateRetained(t *testing.T) {
	frames := distinctAndDuplicate(t)
	// Sabotage one candidate's raster after validation; comparison data
	// cannot be built for it, so it must be retained, not dropped.
	frames[3].Raster = frames[3].Raster[:1]

	unique, _ := newDeduplicator(0.95).Deduplicate(frames, nil)

	found := false
	for _, f := range unique {
		if f.Index == 90 {
			found = true
		}
	}
	assert.True(t, found, "uncomparable candidate must be retained as unique")
}
