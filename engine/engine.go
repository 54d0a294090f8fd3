// Package engine runs the full pass: scene boundary detection, duplicate
// removal, and optional preview generation over the finalized frame list.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"framesift/dedup"
	"framesift/detector"
	"framesift/preview"
	"framesift/similarity"
	"framesift/source"
	"framesift/types"
)

// Options is the boot-time engine configuration.
type Options struct {
	// ChangeThreshold is the scene-boundary sensitivity, lower = more
	// sensitive.
	ChangeThreshold float64
	// MinFrameInterval is the minimum raw-frame spacing between accepted
	// candidates.
	MinFrameInterval int
	// FrameSkip evaluates every Nth decoded frame, minimum 1.
	FrameSkip int
	// UseEmbedding prefers the learned-feature strategy, silently falling
	// back to structural similarity when the model is unavailable.
	UseEmbedding bool
	// ModelPath locates the embedding model weights.
	ModelPath string
	// DedupSimilarityThreshold is the fraction similarity above which two
	// frames count as duplicates.
	DedupSimilarityThreshold float64
	// GeneratePreviews enables the thumbnail pool over the final frames.
	GeneratePreviews bool
	// Preview bounds the thumbnail geometry and quality when
	// GeneratePreviews is set.
	Preview preview.Options
}

// DefaultOptions mirrors the documented defaults.
func DefaultOptions() Options {
	return Options{
		ChangeThreshold:          0.3,
		MinFrameInterval:         30,
		FrameSkip:                1,
		UseEmbedding:             true,
		DedupSimilarityThreshold: 0.95,
		Preview:                  preview.DefaultOptions(),
	}
}

// Result is the finalized output of one pass, handed off to the caller
// which decides retention.
type Result struct {
	RunID uuid.UUID
	// Frames is the final unique list, strictly increasing by index.
	Frames []types.FrameRecord
	// Previews holds JPEG thumbnails per frame index when enabled.
	Previews []preview.Preview
	// CandidateCount is the size of the list before duplicate removal.
	CandidateCount    int
	DuplicatesRemoved int
	// Stopped marks a successful partial result after cooperative
	// cancellation, never a failure.
	Stopped  bool
	Strategy string
	Elapsed  time.Duration
}

// Engine owns the configured strategy and orchestrates the passes. Frame
// records are owned by the engine only for the duration of one run;
// completed results are moved to the caller.
type Engine struct {
	opts     Options
	strategy similarity.Strategy
	tracker  *Tracker
	log      *zap.Logger
}

// New constructs the engine, choosing the similarity strategy once. The
// embedding strategy being unavailable falls back to structural similarity
// without failing construction.
func New(opts Options, log *zap.Logger) *Engine {
	if opts.FrameSkip < 1 {
		opts.FrameSkip = 1
	}
	strategy := similarity.NewStrategy(similarity.Options{
		UseEmbedding: opts.UseEmbedding,
		ModelPath:    opts.ModelPath,
	}, log)
	return &Engine{
		opts:     opts,
		strategy: strategy,
		tracker:  NewTracker(nil),
		log:      log,
	}
}

// Progress returns the latest snapshot of the running (or last) pass.
// Safe to call concurrently with Run.
func (e *Engine) Progress() types.ProgressSnapshot {
	return e.tracker.Latest()
}

// Run executes detection, deduplication, and optional preview generation
// over src. Cancelling ctx yields a stopped partial Result with a nil
// error. Snapshots go to sink and to the Progress poller.
func (e *Engine) Run(ctx context.Context, src source.FrameSource, sink types.Sink) (*Result, error) {
	start := time.Now()
	runID := uuid.New()
	log := e.log.With(zap.String("run_id", runID.String()))

	e.tracker.SetSink(sink)
	e.tracker.Publish(types.ProgressSnapshot{Stage: types.StageInitializing})

	det := detector.New(detector.Options{
		ChangeThreshold:  e.opts.ChangeThreshold,
		MinFrameInterval: e.opts.MinFrameInterval,
		FrameSkip:        e.opts.FrameSkip,
	}, e.strategy, log)

	candidates, stopped, err := det.Detect(ctx, src, e.tracker.Publish)
	if err != nil {
		e.tracker.Publish(types.ProgressSnapshot{
			Stage:   types.StageError,
			Message: err.Error(),
		})
		return nil, err
	}

	result := &Result{
		RunID:          runID,
		CandidateCount: len(candidates),
		Strategy:       e.strategy.Name(),
		Stopped:        stopped,
	}
	// Stream coverage at the point detection ended; a stopped pass must
	// not report 100.
	detectPercent := e.tracker.Latest().Percent

	// A stopped pass still gets the full dedup and preview treatment over
	// whatever candidates it collected.
	dd := dedup.New(dedup.Options{
		SimilarityThreshold: e.opts.DedupSimilarityThreshold,
	}, e.strategy, log)
	result.Frames, result.DuplicatesRemoved = dd.Deduplicate(candidates, e.tracker.Publish)

	if e.opts.GeneratePreviews && len(result.Frames) > 0 {
		result.Previews = preview.Generate(result.Frames, e.opts.Preview, e.tracker.Publish, log)
	}

	result.Elapsed = time.Since(start)
	final := types.ProgressSnapshot{
		Stage:             types.StageCompleted,
		CurrentIndex:      lastIndex(result.Frames),
		TotalFrames:       src.TotalFrames(),
		Percent:           100,
		DetectedCount:     result.CandidateCount,
		KeptCount:         len(result.Frames),
		DuplicatesRemoved: result.DuplicatesRemoved,
		Rate:              src.Rate(),
		ElapsedSeconds:    result.Elapsed.Seconds(),
	}
	if stopped {
		final.Stage = types.StageStopped
		final.Percent = detectPercent
		final.Message = "processing stopped by request; partial results returned"
	}
	e.tracker.Publish(final)

	log.Info("pass finished",
		zap.Bool("stopped", stopped),
		zap.Int("candidates", result.CandidateCount),
		zap.Int("unique_frames", len(result.Frames)),
		zap.Int("duplicates_removed", result.DuplicatesRemoved),
		zap.Duration("elapsed", result.Elapsed))

	return result, nil
}

func lastIndex(frames []types.FrameRecord) int {
	if len(frames) == 0 {
		return 0
	}
	return frames[len(frames)-1].Index
}
