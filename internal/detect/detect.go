// Package detect locates the dialogue box in a frame by scanning for its border
// colors, optionally refining the result with alpha-masked corner templates, and
// caching the position between frames.
package detect

import (
	"image"
	"log/slog"
	"time"

	"github.com/gamewatcher/watcher/internal/frame"
)

// Source records how a region was found.
type Source int

const (
	SourceHeuristic Source = iota
	SourceTemplate
	SourceCached
)

func (s Source) String() string {
	switch s {
	case SourceTemplate:
		return "template"
	case SourceCached:
		return "cached"
	default:
		return "heuristic"
	}
}

// Region is a detected dialogue box in frame coordinates.
type Region struct {
	Rect       image.Rectangle
	Source     Source
	Confidence float64
}

// Config holds the detection tunables.
type Config struct {
	Palette   []Color `yaml:"palette"`
	Tolerance int     `yaml:"tolerance"`

	BandTop    float64 `yaml:"band_top"`    // fraction of frame height
	BandBottom float64 `yaml:"band_bottom"` // fraction of frame height
	RowStride  int     `yaml:"row_stride"`
	MinHits    int     `yaml:"min_hits"`
	MinRun     int     `yaml:"min_run"`
	MarginX    int     `yaml:"margin_x"`
	MarginY    int     `yaml:"margin_y"`
	BoxWidth   int     `yaml:"box_width"`  // 0: run width plus margins
	BoxHeight  int     `yaml:"box_height"` // 0: down to the band bottom

	RescanInterval time.Duration `yaml:"rescan_interval"`

	Templates TemplateConfig `yaml:"templates"`
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		Palette:        []Color{MustColor("#F8F8F8"), MustColor("#C8C8D0")},
		Tolerance:      60,
		BandTop:        0.55,
		BandBottom:     0.98,
		RowStride:      2,
		MinHits:        60,
		MinRun:         40,
		MarginX:        4,
		MarginY:        4,
		BoxHeight:      0,
		RescanInterval: 5 * time.Second,
		Templates:      DefaultTemplateConfig(),
	}
}

// Detector finds the dialogue region. It owns its State and is not safe for
// concurrent use.
type Detector struct {
	cfg     Config
	corners *Corners
	state   State
	now     func() time.Time
}

// New creates a detector. corners may be nil to disable template refinement.
func New(cfg Config, corners *Corners) *Detector {
	return &Detector{cfg: cfg, corners: corners, now: time.Now}
}

// WithClock replaces the clock used for rescan scheduling.
func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}

// State returns the current learning state.
func (d *Detector) State() State { return d.state }

// Reset forgets any cached region.
func (d *Detector) Reset() { d.state = State{} }

// Detect returns the dialogue region in f. A cached region is reused when its
// border pixels still validate and no periodic rescan is due; otherwise a full
// scan runs. ok is false when nothing was found.
func (d *Detector) Detect(f *frame.Frame) (Region, bool) {
	now := d.now()
	if !d.state.NeedsRescan(now, d.cfg.RescanInterval) {
		if d.Validate(f, d.state) {
			d.state = d.state.Validated(now)
			r := d.state.Region
			r.Source = SourceCached
			return r, true
		}
		slog.Debug("cached dialogue region failed validation", "rect", d.state.Region.Rect)
		d.state = d.state.Invalidate()
	}

	r, border, ok := d.Scan(f)
	if !ok {
		d.state = d.state.Scanned(now)
		return Region{}, false
	}
	d.state = d.state.Learn(r, border, now)
	return r, true
}

// Validate checks the strategic border pixels of s against the palette.
func (d *Detector) Validate(f *frame.Frame, s State) bool {
	if !s.Learned {
		return false
	}
	pts := s.Border.Points()
	if len(pts) == 0 {
		return false
	}
	b := f.Bounds()
	for _, p := range pts {
		if !p.In(b) {
			return false
		}
		r, g, bl := f.RGB(p.X, p.Y)
		if !matches(d.cfg.Palette, r, g, bl, d.cfg.Tolerance) {
			return false
		}
	}
	return true
}

// Scan runs the full detection without consulting or updating the cache.
func (d *Detector) Scan(f *frame.Frame) (Region, Segment, bool) {
	r, border, ok := scanBorder(f, d.cfg)
	if !ok {
		return Region{}, Segment{}, false
	}
	if d.corners != nil {
		if refined, ok := d.corners.Refine(f, r.Rect, d.cfg.Templates, d.cfg.Tolerance); ok {
			return refined, border, true
		}
	}
	return r, border, true
}
