package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/kozaktomas/sauron/internal/constants"
)

// envPrefix is prepended to every variable, e.g. SAURON_FACE_DIR.
const envPrefix = "sauron"

type Config struct {
	Env string `default:"development"`

	Embedding EmbeddingConfig
	Database  DatabaseConfig
	Web       WebConfig

	SimilarityThreshold float64 `split_words:"true" default:"0.6"`
	MaxImagesPerPerson  int     `split_words:"true" default:"5"`
	MatchPolicy         string  `split_words:"true" default:"first"` // first or nearest
	SortBoxes           bool    `split_words:"true" default:"false"`
	TemplateThreshold   float64 `split_words:"true" default:"0.8"`

	FaceDir      string `split_words:"true" default:"detected_faces"`
	DetectionLog string `split_words:"true" default:"detection_log.csv"`
	EvidenceDir  string `split_words:"true" default:"evidence"`
	TargetDir    string `split_words:"true" default:"target"`

	CaptureRetries int    `split_words:"true" default:"0"` // 0 retries forever
	FfmpegPath     string `split_words:"true" default:"ffmpeg"`
	CamerasFile    string `split_words:"true" default:"cameras.yaml"`
}

type EmbeddingConfig struct {
	URL     string        `default:"http://localhost:8000"`
	Timeout time.Duration `default:"30s"`
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL; empty disables the database sink
	MaxOpenConns int    `split_words:"true" default:"10"`
	MaxIdleConns int    `split_words:"true" default:"2"`
}

type WebConfig struct {
	Host           string   `default:"0.0.0.0"`
	Port           int      `default:"8080"`
	AllowedOrigins []string `split_words:"true"`
}

// Load reads SAURON_* environment variables and validates them.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.SimilarityThreshold <= 0 {
		errs = append(errs, fmt.Errorf("similarity threshold must be positive, got %v", c.SimilarityThreshold))
	}
	if c.MaxImagesPerPerson < 0 {
		errs = append(errs, fmt.Errorf("max images per person must not be negative, got %d", c.MaxImagesPerPerson))
	}
	if c.TemplateThreshold <= 0 || c.TemplateThreshold > 1 {
		errs = append(errs, fmt.Errorf("template threshold must be in (0, 1], got %v", c.TemplateThreshold))
	}
	if c.CaptureRetries < 0 {
		errs = append(errs, fmt.Errorf("capture retries must not be negative, got %d", c.CaptureRetries))
	}
	switch c.MatchPolicy {
	case "first", "nearest":
	default:
		errs = append(errs, fmt.Errorf("match policy must be first or nearest, got %q", c.MatchPolicy))
	}
	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		errs = append(errs, fmt.Errorf("web port out of range: %d", c.Web.Port))
	}
	return errors.Join(errs...)
}

// Default returns the configuration used when no environment is set.
func Default() *Config {
	return &Config{
		Env:                 "development",
		Embedding:           EmbeddingConfig{URL: "http://localhost:8000", Timeout: 30 * time.Second},
		Database:            DatabaseConfig{MaxOpenConns: 10, MaxIdleConns: 2},
		Web:                 WebConfig{Host: constants.DefaultWebHost, Port: constants.DefaultWebPort},
		SimilarityThreshold: constants.DefaultSimilarityThreshold,
		MaxImagesPerPerson:  constants.DefaultMaxImagesPerPerson,
		MatchPolicy:         "first",
		TemplateThreshold:   constants.DefaultTemplateThreshold,
		FaceDir:             constants.DefaultFaceDir,
		DetectionLog:        constants.DefaultDetectionLog,
		EvidenceDir:         constants.DefaultEvidenceDir,
		TargetDir:           constants.DefaultTargetDir,
		FfmpegPath:          "ffmpeg",
		CamerasFile:         "cameras.yaml",
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
