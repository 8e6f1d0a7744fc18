package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that the configuration is coherent. It returns a joined error
// listing every problem found.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		add("log_level %q is invalid; valid values: debug, info, warn, error", c.LogLevel)
	}

	if c.Pipeline.TickHz <= 0 {
		add("pipeline.tick_hz must be positive, got %v", c.Pipeline.TickHz)
	}
	checkTolerance(&errs, "pipeline.region_tolerance", c.Pipeline.RegionTolerance)

	s := c.Screen
	if !unit(s.FullscreenCoverage) {
		add("screen.fullscreen_coverage %v is outside (0, 1]", s.FullscreenCoverage)
	}
	if s.FullscreenOffset < 0 {
		add("screen.fullscreen_offset must not be negative")
	}
	if s.MaxConsecutiveFailures < 0 {
		add("screen.max_consecutive_failures must not be negative")
	}
	if s.SampleGrid < 1 {
		add("screen.sample_grid must be at least 1")
	}
	if s.Cooldown < 0 {
		add("screen.cooldown must not be negative")
	}

	g := c.Gate
	if g.CoarseStride < 1 || g.FineStride < 1 {
		add("gate strides must be at least 1")
	}
	checkTolerance(&errs, "gate.lenient_tolerance", g.LenientTolerance)
	checkTolerance(&errs, "gate.strict_tolerance", g.StrictTolerance)
	if !unit(g.LenientThreshold) || !unit(g.StrictThreshold) {
		add("gate thresholds must be in (0, 1]")
	}
	if g.LenientThreshold > g.StrictThreshold {
		add("gate.lenient_threshold %v is stricter than gate.strict_threshold %v", g.LenientThreshold, g.StrictThreshold)
	}
	if g.LenientTolerance < g.StrictTolerance {
		add("gate.lenient_tolerance %d is tighter than gate.strict_tolerance %d", g.LenientTolerance, g.StrictTolerance)
	}
	if g.FocusMaxChanges < 0 {
		add("gate.focus_max_changes must not be negative")
	}

	d := c.Detect
	if len(d.Palette) == 0 {
		add("detect.palette must list at least one color")
	}
	checkTolerance(&errs, "detect.tolerance", d.Tolerance)
	if d.BandTop < 0 || d.BandBottom > 1 || d.BandTop >= d.BandBottom {
		add("detect band [%v, %v] must satisfy 0 <= band_top < band_bottom <= 1", d.BandTop, d.BandBottom)
	}
	if d.RowStride < 1 {
		add("detect.row_stride must be at least 1")
	}
	if d.MinRun < 1 || d.MinHits < d.MinRun {
		add("detect.min_hits %d must be at least detect.min_run %d (>= 1)", d.MinHits, d.MinRun)
	}
	t := d.Templates
	if (t.TopLeft == "") != (t.TopRight == "") {
		add("detect.templates needs both top_left and top_right or neither")
	}
	if !unit(t.Confidence) || !unit(t.Strict) || !unit(t.Loose) {
		add("detect.templates thresholds must be in (0, 1]")
	}
	if t.Loose > t.Strict {
		add("detect.templates.loose %v is stricter than detect.templates.strict %v", t.Loose, t.Strict)
	}

	o := c.OCR
	switch o.Backend {
	case "grpc":
		if o.Addr == "" {
			add("ocr.addr is required for the grpc backend")
		}
	case "tesseract":
	default:
		add("ocr.backend %q is invalid; valid values: grpc, tesseract", o.Backend)
	}
	if o.Scale <= 0 {
		add("ocr.scale must be positive")
	}
	if o.Timeout < 0 {
		add("ocr.timeout must not be negative")
	}

	u := c.Dedup
	if u.MinLength < 0 || u.MinLength > u.MaxLength {
		add("dedup.min_length %d exceeds dedup.max_length %d", u.MinLength, u.MaxLength)
	}
	for name, r := range map[string]float64{
		"min_letter_ratio": u.MinLetterRatio,
		"max_digit_ratio":  u.MaxDigitRatio,
		"max_symbol_ratio": u.MaxSymbolRatio,
	} {
		if r < 0 || r > 1 {
			add("dedup.%s %v is outside [0, 1]", name, r)
		}
	}
	if !unit(u.SimilarityThreshold) {
		add("dedup.similarity_threshold %v is outside (0, 1]", u.SimilarityThreshold)
	}
	for i, r := range u.FixRules {
		if r.Pattern == "" {
			add("dedup.fix_rules[%d].pattern is required", i)
		}
	}

	if c.Emit.HistorySize < 0 || c.Emit.SubscriberBuffer < 0 || c.Emit.BatchMaxSize < 0 {
		add("emit sizes must not be negative")
	}

	return errors.Join(errs...)
}

func unit(v float64) bool { return v > 0 && v <= 1 }

func checkTolerance(errs *[]error, name string, v int) {
	if v < 0 || v > 255 {
		*errs = append(*errs, fmt.Errorf("%s %d is outside 0-255", name, v))
	}
}
