package preview

import (
	"bytes"
	"image/jpeg"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"framesift/types"
)

func uniformRecord(t *testing.T, index, width, height int, value byte) types.FrameRecord {
	t.Helper()
	raster := make([]byte, width*height*3)
	for i := range raster {
		raster[i] = value
	}
	rec, err := types.NewFrameRecord(index, 0, raster, width, height)
	require.NoError(t, err)
	return rec
}

func decode(t *testing.T, data []byte) (int, int) {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	b := img.Bounds()
	return b.Dx(), b.Dy()
}

func TestEncodeScalesDownPreservingAspect(t *testing.T) {
	rec := uniformRecord(t, 0, 1920, 1080, 128)

	data, err := Encode(rec, 400, 300, 92)
	require.NoError(t, err)

	w, h := decode(t, data)
	assert.Equal(t, 400, w)
	assert.Equal(t, 225, h)
}

func TestEncodeHeightBound(t *testing.T) {
	// Tall frame: height is the limiting dimension.
	rec := uniformRecord(t, 0, 300, 600, 128)

	data, err := Encode(rec, 400, 300, 92)
	require.NoError(t, err)

	w, h := decode(t, data)
	assert.Equal(t, 150, w)
	assert.Equal(t, 300, h)
}

func TestEncodeSmallFrameKeepsSize(t *testing.T) {
	rec := uniformRecord(t, 0, 200, 100, 128)

	data, err := Encode(rec, 400, 300, 92)
	require.NoError(t, err)

	w, h := decode(t, data)
	assert.Equal(t, 200, w)
	assert.Equal(t, 100, h)
}

func TestEncodeFullSize(t *testing.T) {
	rec := uniformRecord(t, 0, 640, 480, 200)

	data, err := Encode(rec, 0, 0, 92)
	require.NoError(t, err)

	w, h := decode(t, data)
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)
}

func TestGenerateSortedByIndex(t *testing.T) {
	frames := []types.FrameRecord{
		uniformRecord(t, 90, 64, 48, 10),
		uniformRecord(t, 0, 64, 48, 20),
		uniformRecord(t, 30, 64, 48, 30),
	}

	previews := Generate(frames, DefaultOptions(), nil, zap.NewNop())

	require.Len(t, previews, 3)
	assert.Equal(t, 0, previews[0].Index)
	assert.Equal(t, 30, previews[1].Index)
	assert.Equal(t, 90, previews[2].Index)
	for _, p := range previews {
		assert.NotEmpty(t, p.Data)
	}
}

func TestGenerateEmptyInput(t *testing.T) {
	assert.Nil(t, Generate(nil, DefaultOptions(), nil, zap.NewNop()))
}

func TestGenerateReportsStage(t *testing.T) {
	frames := make([]types.FrameRecord, 25)
	for i := range frames {
		frames[i] = uniformRecord(t, i, 64, 48, byte(i*10))
	}

	var mu sync.Mutex
	var snapshots []types.ProgressSnapshot
	previews := Generate(frames, DefaultOptions(), func(s types.ProgressSnapshot) {
		mu.Lock()
		snapshots = append(snapshots, s)
		mu.Unlock()
	}, zap.NewNop())

	require.Len(t, previews, 25)
	require.NotEmpty(t, snapshots)
	prev := -1.0
	for _, s := range snapshots {
		assert.Equal(t, types.StageGeneratingPreviews, s.Stage)
		assert.Equal(t, 25, s.KeptCount)
		// Percent never goes backwards even with a pool of workers.
		assert.Greater(t, s.Percent, prev)
		prev = s.Percent
	}
	assert.Equal(t, 100.0, snapshots[len(snapshots)-1].Percent)
}
