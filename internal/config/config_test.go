package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gamewatcher/watcher/internal/dedup"
	"github.com/gamewatcher/watcher/internal/detect"
	apperrors "github.com/gamewatcher/watcher/internal/errors"
)

var envVars = []string{
	"WATCHER_LOG_LEVEL", "WATCHER_WINDOW_TITLE", "WATCHER_TICK_HZ", "WATCHER_OCR_BACKEND",
	"WATCHER_OCR_ADDR", "WATCHER_OCR_TIMEOUT", "WATCHER_SIMILARITY_THRESHOLD",
	"WATCHER_MAX_CAPTURE_FAILURES",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range envVars {
		t.Setenv(v, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Pipeline.TickHz != 15 {
		t.Errorf("TickHz = %v, want 15", cfg.Pipeline.TickHz)
	}
	if cfg.OCR.Addr != "localhost:50051" || cfg.OCR.Backend != "grpc" {
		t.Errorf("OCR = %+v", cfg.OCR)
	}
	if cfg.Dedup.SimilarityThreshold != 0.8 {
		t.Errorf("SimilarityThreshold = %v, want 0.8", cfg.Dedup.SimilarityThreshold)
	}
	if cfg.Screen.MaxConsecutiveFailures != 5 {
		t.Errorf("MaxConsecutiveFailures = %d, want 5", cfg.Screen.MaxConsecutiveFailures)
	}
	if cfg.Level() != slog.LevelInfo {
		t.Errorf("Level() = %v", cfg.Level())
	}
}

func TestLoadWithEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("WATCHER_TICK_HZ", "10")
	t.Setenv("WATCHER_OCR_ADDR", "ocr:6000")
	t.Setenv("WATCHER_LOG_LEVEL", "debug")
	t.Setenv("WATCHER_SIMILARITY_THRESHOLD", "0.9")
	t.Setenv("WATCHER_WINDOW_TITLE", "FINAL FANTASY")
	t.Setenv("WATCHER_OCR_TIMEOUT", "750ms")
	t.Setenv("WATCHER_MAX_CAPTURE_FAILURES", "not-a-number")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Pipeline.TickHz != 10 {
		t.Errorf("TickHz = %v, want 10", cfg.Pipeline.TickHz)
	}
	if cfg.OCR.Addr != "ocr:6000" {
		t.Errorf("Addr = %q", cfg.OCR.Addr)
	}
	if cfg.Level() != slog.LevelDebug {
		t.Errorf("Level() = %v, want debug", cfg.Level())
	}
	if cfg.Dedup.SimilarityThreshold != 0.9 {
		t.Errorf("SimilarityThreshold = %v", cfg.Dedup.SimilarityThreshold)
	}
	if cfg.WindowTitle != "FINAL FANTASY" {
		t.Errorf("WindowTitle = %q", cfg.WindowTitle)
	}
	if cfg.OCR.Timeout != 750*time.Millisecond {
		t.Errorf("Timeout = %v", cfg.OCR.Timeout)
	}
	if cfg.Screen.MaxConsecutiveFailures != 5 {
		t.Errorf("invalid int env should keep the default, got %d", cfg.Screen.MaxConsecutiveFailures)
	}
}

const sample = `
log_level: warn
window_title: Cornelia
pipeline:
  tick_hz: 12
gate:
  strict_threshold: 0.99
detect:
  palette: ["#FFFFFF", [200, 200, 208]]
  rescan_interval: 3s
dedup:
  fix_rules:
    - {pattern: "0f", replacement: "of"}
    - {pattern: "VV", replacement: "W"}
`

func TestLoadFromReader(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromReader(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("LoadFromReader() = %v", err)
	}
	if cfg.Pipeline.TickHz != 12 || cfg.WindowTitle != "Cornelia" || cfg.Level() != slog.LevelWarn {
		t.Errorf("top-level fields not decoded: %+v", cfg)
	}
	if cfg.Gate.StrictThreshold != 0.99 || cfg.Gate.LenientThreshold != 0.90 {
		t.Errorf("gate = %+v, want strict override and lenient default", cfg.Gate)
	}
	wantPalette := []detect.Color{{R: 255, G: 255, B: 255}, {R: 200, G: 200, B: 208}}
	if len(cfg.Detect.Palette) != 2 || cfg.Detect.Palette[0] != wantPalette[0] || cfg.Detect.Palette[1] != wantPalette[1] {
		t.Errorf("palette = %v", cfg.Detect.Palette)
	}
	if cfg.Detect.RescanInterval != 3*time.Second {
		t.Errorf("RescanInterval = %v", cfg.Detect.RescanInterval)
	}
	wantRules := []dedup.FixRule{{Pattern: "0f", Replacement: "of"}, {Pattern: "VV", Replacement: "W"}}
	if len(cfg.Dedup.FixRules) != 2 || cfg.Dedup.FixRules[0] != wantRules[0] || cfg.Dedup.FixRules[1] != wantRules[1] {
		t.Errorf("fix rules = %v, want declaration order", cfg.Dedup.FixRules)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	clearEnv(t)
	if _, err := LoadFromReader(strings.NewReader("pipeline:\n  tick_rate: 3\n")); err == nil {
		t.Error("unknown key should be rejected")
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "watcher.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != nil {
		t.Errorf("Load(%q) = %v", path, err)
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !apperrors.IsCode(err, apperrors.CodeConfigInvalid) {
		t.Errorf("missing file error = %v, want CodeConfigInvalid", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"defaults", func(*Config) {}, ""},
		{"tick rate", func(c *Config) { c.Pipeline.TickHz = 0 }, "tick_hz"},
		{"region tolerance", func(c *Config) { c.Pipeline.RegionTolerance = -1 }, "region_tolerance"},
		{"inverted gate thresholds", func(c *Config) { c.Gate.LenientThreshold, c.Gate.StrictThreshold = 0.99, 0.9 }, "stricter"},
		{"focus changes", func(c *Config) { c.Gate.FocusMaxChanges = -1 }, "focus_max_changes"},
		{"inverted gate tolerances", func(c *Config) { c.Gate.LenientTolerance = 4 }, "tighter"},
		{"tolerance range", func(c *Config) { c.Detect.Tolerance = 300 }, "0-255"},
		{"length bounds", func(c *Config) { c.Dedup.MinLength = 600 }, "max_length"},
		{"similarity range", func(c *Config) { c.Dedup.SimilarityThreshold = 1.5 }, "similarity_threshold"},
		{"band", func(c *Config) { c.Detect.BandTop = 0.99 }, "band"},
		{"empty palette", func(c *Config) { c.Detect.Palette = nil }, "palette"},
		{"one template", func(c *Config) { c.Detect.Templates.TopLeft = "tl.png" }, "templates"},
		{"backend", func(c *Config) { c.OCR.Backend = "cloud" }, "ocr.backend"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"empty fix rule", func(c *Config) { c.Dedup.FixRules = []dedup.FixRule{{Replacement: "x"}} }, "fix_rules[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.TickHz = -1
	cfg.OCR.Scale = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	if !strings.Contains(err.Error(), "tick_hz") || !strings.Contains(err.Error(), "ocr.scale") {
		t.Errorf("Validate() = %v, want both problems reported", err)
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STRING", "hello")
	if v := getEnv("TEST_STRING", "default"); v != "hello" {
		t.Errorf("getEnv = %q, want %q", v, "hello")
	}
	if v := getEnv("NONEXISTENT_WATCHER_VAR", "default"); v != "default" {
		t.Errorf("getEnv = %q, want %q", v, "default")
	}

	t.Setenv("TEST_INT", "42")
	if v := getEnvInt("TEST_INT", 0); v != 42 {
		t.Errorf("getEnvInt = %d, want 42", v)
	}
	t.Setenv("TEST_FLOAT", "3.14")
	if v := getEnvFloat("TEST_FLOAT", 0); v != 3.14 {
		t.Errorf("getEnvFloat = %f, want 3.14", v)
	}
	t.Setenv("TEST_DURATION", "nope")
	if v := getEnvDuration("TEST_DURATION", time.Second); v != time.Second {
		t.Errorf("getEnvDuration with invalid = %v, want 1s", v)
	}
}
