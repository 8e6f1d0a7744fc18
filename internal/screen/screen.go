// Package screen captures frames from a target window through an ordered chain of
// platform backends, validating every frame before handing it to the pipeline.
package screen

import (
	"context"
	"image"
	"time"

	"github.com/gamewatcher/watcher/internal/frame"
)

// Handle identifies a capture target. On Windows it is an HWND; elsewhere it names a
// display index.
type Handle uintptr

// Kind tags a capture backend variant.
type Kind int

const (
	KindNone Kind = iota
	KindCompositor
	KindDuplication
	KindBlit
)

func (k Kind) String() string {
	switch k {
	case KindCompositor:
		return "compositor"
	case KindDuplication:
		return "duplication"
	case KindBlit:
		return "blit"
	default:
		return "none"
	}
}

// Backend is one capture mechanism bound to a single handle. Instances may own
// native resources and are released with Close.
type Backend interface {
	Kind() Kind
	Capture(ctx context.Context, h Handle) (*frame.Frame, error)
	Close() error
}

// Factory opens a backend of the given kind for h. It returns a CodeUnsupported
// error when the platform has no such backend.
type Factory func(kind Kind, h Handle) (Backend, error)

// Locator reports window and monitor geometry in desktop coordinates.
type Locator interface {
	WindowRect(h Handle) (image.Rectangle, error)
	MonitorRect(h Handle) (image.Rectangle, error)
}

// Placement is the ordering hint derived from window geometry.
type Placement int

const (
	PlacementWindowed Placement = iota
	PlacementFullscreen
)

func (p Placement) String() string {
	if p == PlacementFullscreen {
		return "fullscreen"
	}
	return "windowed"
}

// Config tunes backend ordering, cooldowns and frame validation.
type Config struct {
	FullscreenCoverage     float64       `yaml:"fullscreen_coverage"`
	FullscreenOffset       int           `yaml:"fullscreen_offset"`
	Cooldown               time.Duration `yaml:"cooldown"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures"`
	SampleGrid             int           `yaml:"sample_grid"`
	MinBrightness          float64       `yaml:"min_brightness"`
	MinVariance            float64       `yaml:"min_variance"`
	SettleDelay            time.Duration `yaml:"settle_delay"`
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		FullscreenCoverage:     0.90,
		FullscreenOffset:       50,
		Cooldown:               2 * time.Second,
		MaxConsecutiveFailures: 5,
		SampleGrid:             16,
		MinBrightness:          8,
		MinVariance:            4,
		SettleDelay:            150 * time.Millisecond,
	}
}

// Classify decides whether a window is likely exclusive fullscreen: it covers more
// than the configured share of its monitor and its origin sits within the
// configured offset of the monitor origin.
func Classify(window, monitor image.Rectangle, cfg Config) Placement {
	wa := area(window)
	ma := area(monitor)
	if wa == 0 || ma == 0 {
		return PlacementWindowed
	}
	if float64(wa)/float64(ma) <= cfg.FullscreenCoverage {
		return PlacementWindowed
	}
	dx := abs(window.Min.X - monitor.Min.X)
	dy := abs(window.Min.Y - monitor.Min.Y)
	if dx > cfg.FullscreenOffset || dy > cfg.FullscreenOffset {
		return PlacementWindowed
	}
	return PlacementFullscreen
}

// Order returns the backend attempt order for a placement.
func Order(p Placement) []Kind {
	if p == PlacementFullscreen {
		return []Kind{KindDuplication, KindCompositor, KindBlit}
	}
	return []Kind{KindCompositor, KindDuplication, KindBlit}
}

// Usable reports whether a frame carries real content. A frame needs both the
// minimum sampled brightness and the minimum variance: failed grabs come back
// black or as a single flat colour.
func Usable(f *frame.Frame, cfg Config) bool {
	if f == nil || f.Empty() {
		return false
	}
	s := frame.ContentScore(f, cfg.SampleGrid)
	return s.Mean >= cfg.MinBrightness && s.Variance >= cfg.MinVariance
}

func area(r image.Rectangle) int {
	if r.Empty() {
		return 0
	}
	return r.Dx() * r.Dy()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
