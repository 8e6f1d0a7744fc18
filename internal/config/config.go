// Package config loads watcher configuration from YAML and the environment
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gamewatcher/watcher/internal/dedup"
	"github.com/gamewatcher/watcher/internal/detect"
	"github.com/gamewatcher/watcher/internal/emit"
	apperrors "github.com/gamewatcher/watcher/internal/errors"
	"github.com/gamewatcher/watcher/internal/gate"
	"github.com/gamewatcher/watcher/internal/ocr"
	"github.com/gamewatcher/watcher/internal/pipeline"
	"github.com/gamewatcher/watcher/internal/screen"
)

// Config is the full watcher configuration. Every section starts from its
// package defaults; YAML and then environment variables override them.
type Config struct {
	LogLevel    string `yaml:"log_level"`
	WindowTitle string `yaml:"window_title"`

	Pipeline pipeline.Config `yaml:"pipeline"`
	Screen   screen.Config   `yaml:"screen"`
	Gate     gate.Config     `yaml:"gate"`
	Detect   detect.Config   `yaml:"detect"`
	OCR      ocr.Config      `yaml:"ocr"`
	Dedup    dedup.Config    `yaml:"dedup"`
	Emit     emit.Config     `yaml:"emit"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Pipeline: pipeline.DefaultConfig(),
		Screen:   screen.DefaultConfig(),
		Gate:     gate.DefaultConfig(),
		Detect:   detect.DefaultConfig(),
		OCR:      ocr.DefaultConfig(),
		Dedup:    dedup.DefaultConfig(),
		Emit:     emit.DefaultConfig(),
	}
}

// Load reads path (optional; "" uses defaults only), applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		return finish(Default())
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeConfigInvalid, "open %q", path)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeConfigInvalid, "load %q", path)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults, applies environment
// overrides and validates.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfigInvalid, "invalid configuration")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.LogLevel = getEnv("WATCHER_LOG_LEVEL", cfg.LogLevel)
	cfg.WindowTitle = getEnv("WATCHER_WINDOW_TITLE", cfg.WindowTitle)
	cfg.Pipeline.TickHz = getEnvFloat("WATCHER_TICK_HZ", cfg.Pipeline.TickHz)
	cfg.OCR.Backend = getEnv("WATCHER_OCR_BACKEND", cfg.OCR.Backend)
	cfg.OCR.Addr = getEnv("WATCHER_OCR_ADDR", cfg.OCR.Addr)
	cfg.OCR.Timeout = getEnvDuration("WATCHER_OCR_TIMEOUT", cfg.OCR.Timeout)
	cfg.Dedup.SimilarityThreshold = getEnvFloat("WATCHER_SIMILARITY_THRESHOLD", cfg.Dedup.SimilarityThreshold)
	cfg.Screen.MaxConsecutiveFailures = getEnvInt("WATCHER_MAX_CAPTURE_FAILURES", cfg.Screen.MaxConsecutiveFailures)
}

// Level returns the slog level for LogLevel, defaulting to info.
func (c *Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}
