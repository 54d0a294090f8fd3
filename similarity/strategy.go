package similarity

import (
	"errors"
	"math"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// ErrStrategyUnavailable signals that a similarity strategy cannot
// initialize, e.g. the embedding model file is missing. Callers recover by
// falling back to the structural strategy.
var ErrStrategyUnavailable = errors.New("similarity strategy unavailable")

// Strategy scores perceptual change between two RGB frames. Difference
// returns a value in [0,1]: 0 means perceptually identical, 1 maximally
// different. Implementations retain no frame data between calls; any
// per-frame caching is the caller's responsibility.
type Strategy interface {
	Difference(a, b gocv.Mat) (float64, error)
	Name() string
}

// FeatureExtractor is implemented by strategies that can summarize a frame
// as a unit-length feature vector. Callers use it to cache per-frame
// vectors so repeated comparisons do not redo extraction.
type FeatureExtractor interface {
	Features(m gocv.Mat) ([]float32, error)
}

// Options selects and configures the strategy at engine construction.
type Options struct {
	// UseEmbedding prefers the learned-feature strategy. If its model
	// cannot load, construction silently falls back to the structural
	// strategy instead of failing.
	UseEmbedding bool
	ModelPath    string
}

// NewStrategy builds the configured strategy. The embedding strategy being
// unavailable is recovered locally: the error is logged and the structural
// strategy is returned, so engine construction never fails here.
func NewStrategy(opts Options, log *zap.Logger) Strategy {
	if opts.UseEmbedding {
		s, err := NewEmbeddingStrategy(opts.ModelPath)
		if err == nil {
			log.Info("using embedding similarity strategy", zap.String("model", opts.ModelPath))
			return s
		}
		log.Warn("embedding strategy unavailable, falling back to structural similarity",
			zap.String("model", opts.ModelPath), zap.Error(err))
	}
	return NewStructuralStrategy()
}

// CosineSimilarity returns the dot product of two vectors. For unit-length
// inputs this is the cosine of the angle between them.
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// normalize scales v to unit L2 length. The epsilon keeps the division
// defined for all-zero vectors.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum) + 1e-8
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// clampUnit bounds a difference score to [0,1].
func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
