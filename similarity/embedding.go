package similarity

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// embeddingInputSize is the canonical square resolution the feature
// extractor was trained on.
const embeddingInputSize = 224

// EmbeddingStrategy scores frames by cosine distance between learned
// feature vectors from a pretrained MobileNet-style network loaded through
// the OpenCV DNN backend. The network is treated as a pure function: same
// pixels in, same vector out, no side effects.
type EmbeddingStrategy struct {
	// Net forwarding is not safe for concurrent use.
	mu  sync.Mutex
	net gocv.Net
}

// NewEmbeddingStrategy loads the ONNX feature extractor from modelPath.
// A missing or unreadable model returns ErrStrategyUnavailable so the
// caller can fall back to the structural strategy.
func NewEmbeddingStrategy(modelPath string) (*EmbeddingStrategy, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w: model %s: %v", ErrStrategyUnavailable, modelPath, err)
	}

	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("%w: cannot load network from %s", ErrStrategyUnavailable, modelPath)
	}
	return &EmbeddingStrategy{net: net}, nil
}

// Name implements Strategy.
func (e *EmbeddingStrategy) Name() string { return "embedding" }

// Close releases the network.
func (e *EmbeddingStrategy) Close() error {
	return e.net.Close()
}

// Features implements FeatureExtractor: resize to the canonical input
// resolution, run the extractor, and L2-normalize the resulting vector.
func (e *EmbeddingStrategy) Features(m gocv.Mat) ([]float32, error) {
	if m.Empty() {
		return nil, fmt.Errorf("cannot extract features from empty image")
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(m, &resized, image.Pt(embeddingInputSize, embeddingInputSize), 0, 0, gocv.InterpolationLinear)

	// MobileNet preprocessing: scale pixels to [-1,1]. Input is already
	// RGB-ordered, so channels are not swapped.
	blob := gocv.BlobFromImage(resized, 1.0/127.5,
		image.Pt(embeddingInputSize, embeddingInputSize),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), false, false)
	defer blob.Close()

	e.mu.Lock()
	e.net.SetInput(blob, "")
	out := e.net.Forward("")
	e.mu.Unlock()
	defer out.Close()

	if out.Empty() {
		return nil, fmt.Errorf("feature extractor produced no output")
	}

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("cannot read feature vector: %w", err)
	}
	features := make([]float32, len(data))
	copy(features, data)

	return normalize(features), nil
}

// Difference implements Strategy: 1 - cosine similarity of the two frames'
// normalized feature vectors, clamped to [0,1].
func (e *EmbeddingStrategy) Difference(a, b gocv.Mat) (float64, error) {
	fa, err := e.Features(a)
	if err != nil {
		return 0, err
	}
	fb, err := e.Features(b)
	if err != nil {
		return 0, err
	}
	return clampUnit(1.0 - CosineSimilarity(fa, fb)), nil
}
