package config

import (
	"github.com/caarlos0/env/v11"
)

// Config carries engine and CLI defaults, overridable through the
// environment. Command-line flags take precedence over these values.
type Config struct {
	ChangeThreshold          float64 `env:"FRAMESIFT_CHANGE_THRESHOLD"  envDefault:"0.3"`
	MinFrameInterval         int     `env:"FRAMESIFT_MIN_FRAME_INTERVAL" envDefault:"30"`
	FrameSkip                int     `env:"FRAMESIFT_FRAME_SKIP"        envDefault:"1"`
	UseEmbedding             bool    `env:"FRAMESIFT_USE_EMBEDDING"     envDefault:"true"`
	DedupSimilarityThreshold float64 `env:"FRAMESIFT_DEDUP_THRESHOLD"   envDefault:"0.95"`
	ModelPath                string  `env:"FRAMESIFT_MODEL_PATH"        envDefault:"models/mobilenet.onnx"`

	PreviewMaxWidth  int `env:"FRAMESIFT_PREVIEW_MAX_WIDTH"  envDefault:"400"`
	PreviewMaxHeight int `env:"FRAMESIFT_PREVIEW_MAX_HEIGHT" envDefault:"300"`
	PreviewQuality   int `env:"FRAMESIFT_PREVIEW_QUALITY"    envDefault:"92"`

	LogLevel string `env:"FRAMESIFT_LOG_LEVEL" envDefault:"info"`
}

// Load reads configuration from the environment, applying defaults for
// anything unset.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
