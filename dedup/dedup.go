// Package dedup removes near-duplicate frames from a candidate sequence,
// preserving order and always retaining the first candidate.
package dedup

import (
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"framesift/similarity"
	"framesift/types"
)

// progressEvery is the snapshot cadence in candidates examined.
const progressEvery = 10

// Options controls duplicate removal.
type Options struct {
	// SimilarityThreshold is the fraction similarity at or above which two
	// frames are considered duplicates.
	SimilarityThreshold float64
}

// Deduplicator compares candidates against the already-kept set using the
// same strategy configured for detection. The kept list is mutated
// strictly in input order; a Deduplicator must not be shared across
// concurrent passes.
type Deduplicator struct {
	opts       Options
	strategy   similarity.Strategy
	structural *similarity.StructuralStrategy
	log        *zap.Logger
}

// New builds a Deduplicator. The structural fallback is always available
// for pairs whose feature extraction fails.
func New(opts Options, strategy similarity.Strategy, log *zap.Logger) *Deduplicator {
	return &Deduplicator{
		opts:       opts,
		strategy:   strategy,
		structural: similarity.NewStructuralStrategy(),
		log:        log,
	}
}

// comparison data cached once per candidate. Comparisons run O(kept x
// candidates) times, so extraction must not be repeated per pair.
type frameData struct {
	features []float32
	gray     gocv.Mat
	hasGray  bool
}

func (f *frameData) close() {
	if f.hasGray {
		f.gray.Close()
	}
}

// Deduplicate returns the unique subsequence of frames. For each candidate
// after the first, it is discarded as a duplicate if its similarity to any
// already-kept frame reaches the threshold (first match short-circuits).
// A candidate that cannot be compared at all is retained as unique rather
// than silently dropped.
func (d *Deduplicator) Deduplicate(frames []types.FrameRecord, sink types.Sink) (unique []types.FrameRecord, removed int) {
	if len(frames) <= 1 {
		return frames, 0
	}

	start := time.Now()
	total := len(frames)

	emit := func(current, kept, removed int, percent float64) {
		sink.Emit(types.ProgressSnapshot{
			Stage:             types.StageRemovingDuplicates,
			CurrentIndex:      current,
			TotalFrames:       total,
			Percent:           percent,
			DetectedCount:     total,
			KeptCount:         kept,
			DuplicatesRemoved: removed,
			ElapsedSeconds:    time.Since(start).Seconds(),
		})
	}

	d.log.Info("reviewing candidates for duplicates",
		zap.Int("candidates", total),
		zap.Float64("similarity_threshold", d.opts.SimilarityThreshold))
	emit(0, 0, 0, 0)

	data := make([]frameData, total)
	for i := range frames {
		data[i] = d.prepare(frames[i])
	}
	defer func() {
		for i := range data {
			data[i].close()
		}
	}()

	unique = append(unique, frames[0])
	keptIdx := []int{0}

	for i := 1; i < total; i++ {
		if i%progressEvery == 0 {
			emit(i, len(unique), removed, float64(i)/float64(total)*100)
		}

		isDuplicate := false
		for _, k := range keptIdx {
			sim, comparable := d.compare(&data[i], &data[k])
			if !comparable {
				continue
			}
			if sim >= d.opts.SimilarityThreshold {
				isDuplicate = true
				removed++
				d.log.Debug("duplicate detected",
					zap.Int("frame", frames[i].Index),
					zap.Int("similar_to", frames[k].Index),
					zap.Float64("similarity", sim))
				break
			}
		}

		if !isDuplicate {
			unique = append(unique, frames[i])
			keptIdx = append(keptIdx, i)
		}
	}

	emit(total, len(unique), removed, 100)
	d.log.Info("duplicate removal finished",
		zap.Int("removed", removed),
		zap.Int("kept", len(unique)),
		zap.Duration("elapsed", time.Since(start)))

	return unique, removed
}

// prepare extracts comparison data for one candidate. Failures are
// fail-open: a candidate with no usable data is retained as unique later
// because no comparison against it can succeed.
func (d *Deduplicator) prepare(frame types.FrameRecord) frameData {
	var fd frameData

	m, err := frame.Mat()
	if err != nil {
		d.log.Warn("cannot rebuild candidate for comparison",
			zap.Int("frame", frame.Index), zap.Error(err))
		return fd
	}
	defer m.Close()

	if extractor, ok := d.strategy.(similarity.FeatureExtractor); ok {
		features, ferr := extractor.Features(m)
		if ferr != nil {
			d.log.Warn("feature extraction failed, falling back to structural comparison",
				zap.Int("frame", frame.Index), zap.Error(ferr))
		} else {
			fd.features = features
		}
	}

	gray, gerr := d.structural.GraySmall(m)
	if gerr != nil {
		d.log.Warn("grayscale conversion failed for candidate",
			zap.Int("frame", frame.Index), zap.Error(gerr))
	} else {
		fd.gray = gray
		fd.hasGray = true
	}

	return fd
}

// compare scores a candidate pair from cached data: learned features when
// both sides have them, structural similarity otherwise. comparable is
// false when neither metric has data for both sides.
func (d *Deduplicator) compare(a, b *frameData) (sim float64, comparable bool) {
	if a.features != nil && b.features != nil {
		return similarity.CosineSimilarity(a.features, b.features), true
	}
	if a.hasGray && b.hasGray {
		return similarity.SSIM(a.gray, b.gray), true
	}
	return 0, false
}
