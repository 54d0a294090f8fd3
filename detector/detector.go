// Package detector walks a frame stream in order and emits a sparse set of
// representative frames at detected scene boundaries.
package detector

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"framesift/similarity"
	"framesift/source"
	"framesift/types"
)

// Progress cadence: a snapshot is emitted every progressEveryFrames
// processed frames or every progressEveryWall of wall time, whichever
// comes first.
const (
	progressEveryFrames = 10
	progressEveryWall   = 500 * time.Millisecond
)

// Options controls scene boundary detection.
type Options struct {
	// ChangeThreshold is the difference score above which a frame starts a
	// new scene. Lower values are more sensitive.
	ChangeThreshold float64
	// MinFrameInterval is the minimum raw-frame spacing between accepted
	// candidates.
	MinFrameInterval int
	// FrameSkip processes every Nth decoded frame, minimum 1.
	FrameSkip int
}

// Detector scans a frame source for scene changes using a similarity
// strategy. One Detect pass mutates its comparison state strictly in
// stream order; a Detector must not be shared across concurrent passes.
type Detector struct {
	opts     Options
	strategy similarity.Strategy
	log      *zap.Logger
}

// New builds a Detector. FrameSkip below 1 is raised to 1.
func New(opts Options, strategy similarity.Strategy, log *zap.Logger) *Detector {
	if opts.FrameSkip < 1 {
		opts.FrameSkip = 1
	}
	return &Detector{opts: opts, strategy: strategy, log: log}
}

// Detect consumes the source in order and returns candidate frames at
// detected scene changes. The first processed frame of a non-empty source
// is always a candidate. Cancellation is polled before each raw frame:
// a cancelled context returns the candidates collected so far with
// stopped=true and a nil error, after emitting a final stopped snapshot.
func (d *Detector) Detect(ctx context.Context, src source.FrameSource, sink types.Sink) (candidates []types.FrameRecord, stopped bool, err error) {
	start := time.Now()
	rate := src.Rate()
	total := src.TotalFrames()

	duration := 0.0
	if rate > 0 {
		duration = float64(total) / rate
	}
	// Frames that survive the skip filter.
	effectiveTotal := total / d.opts.FrameSkip
	if total%d.opts.FrameSkip > 0 {
		effectiveTotal++
	}

	// Spacing is measured in processed-frame units once a skip factor is
	// in effect.
	minInterval := d.opts.MinFrameInterval / d.opts.FrameSkip
	if minInterval < 1 {
		minInterval = 1
	}

	d.log.Info("starting scene detection",
		zap.Int("total_frames", total),
		zap.Float64("rate", rate),
		zap.Int("frame_skip", d.opts.FrameSkip),
		zap.Float64("change_threshold", d.opts.ChangeThreshold),
		zap.String("strategy", d.strategy.Name()))

	extractor, hasExtractor := d.strategy.(similarity.FeatureExtractor)

	var (
		prevFeatures  []float32
		prevFrame     gocv.Mat
		havePrev      bool
		read          int
		processed     int
		lastChange    int
		lastRaw       int
		lastProgress  time.Time
		sawFirstFrame bool
	)
	defer func() {
		if havePrev && !hasExtractor {
			prevFrame.Close()
		}
	}()

	base := func(stage types.Stage) types.ProgressSnapshot {
		elapsed := time.Since(start).Seconds()
		snap := types.ProgressSnapshot{
			Stage:            stage,
			CurrentIndex:     lastRaw,
			TotalFrames:      total,
			ProcessedCount:   processed,
			DetectedCount:    len(candidates),
			Rate:             rate,
			DurationEstimate: duration,
			ElapsedSeconds:   elapsed,
		}
		if total > 0 && read > 0 {
			snap.Percent = float64(read) / float64(total) * 100
			if snap.Percent > 100 {
				snap.Percent = 100
			}
		}
		if elapsed > 0 {
			snap.Throughput = float64(processed) / elapsed
		}
		if snap.Throughput > 0 && effectiveTotal > processed {
			snap.RemainingSeconds = float64(effectiveTotal-processed) / snap.Throughput
		}
		return snap
	}

	sink.Emit(types.ProgressSnapshot{
		Stage:            types.StageInitializing,
		TotalFrames:      total,
		Rate:             rate,
		DurationEstimate: duration,
	})

	for {
		// Cooperative cancellation, polled at frame granularity only.
		if ctx.Err() != nil {
			d.log.Info("detection stopped on request",
				zap.Int("frames_detected", len(candidates)),
				zap.Int("current_index", lastRaw))
			snap := base(types.StageStopped)
			snap.RemainingSeconds = 0
			snap.Message = "processing stopped by request; partial results returned"
			sink.Emit(snap)
			return candidates, true, nil
		}

		frame, raw, ok := src.Next()
		if !ok {
			break
		}
		read++
		lastRaw = raw

		if raw%d.opts.FrameSkip != 0 {
			frame.Close()
			continue
		}

		if frame.Empty() {
			// Single undecodable frame: drop its contribution, keep going.
			d.log.Warn("skipping undecodable frame", zap.Int("index", raw))
			frame.Close()
			continue
		}

		processed++

		// Early-exit spacing optimization. Never applied to the very
		// first processed frame: the first-frame rule strictly overrides
		// the spacing check.
		if sawFirstFrame && processed-lastChange-1 < minInterval {
			frame.Close()
			continue
		}

		isChange := false
		if !sawFirstFrame {
			isChange = true
		}

		var features []float32
		if hasExtractor {
			features, err = extractor.Features(frame)
			if err != nil {
				d.log.Warn("feature extraction failed, skipping frame",
					zap.Int("index", raw), zap.Error(err))
				frame.Close()
				continue
			}
			if !isChange {
				diff := 1.0 - similarity.CosineSimilarity(features, prevFeatures)
				isChange = diff > d.opts.ChangeThreshold
			}
			prevFeatures = features
		} else {
			if !isChange {
				diff, derr := d.strategy.Difference(frame, prevFrame)
				if derr != nil {
					d.log.Warn("similarity scoring failed, skipping frame",
						zap.Int("index", raw), zap.Error(derr))
					frame.Close()
					continue
				}
				isChange = diff > d.opts.ChangeThreshold
			}
			if havePrev {
				prevFrame.Close()
			}
			prevFrame = frame.Clone()
			havePrev = true
		}

		if isChange {
			record, rerr := types.RecordFromMat(raw, rate, frame)
			if rerr != nil {
				d.log.Warn("dropping defective frame", zap.Int("index", raw), zap.Error(rerr))
				frame.Close()
				continue
			}
			candidates = append(candidates, record)
			lastChange = processed
			sawFirstFrame = true
			d.log.Debug("scene change detected",
				zap.Int("index", raw),
				zap.Float64("timestamp", record.Timestamp))
		}
		frame.Close()

		if processed%progressEveryFrames == 0 || time.Since(lastProgress) >= progressEveryWall {
			sink.Emit(base(types.StageExtracting))
			lastProgress = time.Now()
		}
	}

	snap := base(types.StageCompleted)
	snap.Percent = 100
	snap.CurrentIndex = lastRaw
	snap.RemainingSeconds = 0
	sink.Emit(snap)

	d.log.Info("scene detection finished",
		zap.Int("frames_detected", len(candidates)),
		zap.Int("frames_processed", processed),
		zap.Duration("elapsed", time.Since(start)))

	return candidates, false, nil
}
