// Package gate decides when consecutive frames have stopped changing long enough
// to be worth running region detection on.
package gate

import (
	"image"

	"github.com/gamewatcher/watcher/internal/frame"
)

// State is the gate's stability state.
type State int

const (
	Idle State = iota
	Settled
)

func (s State) String() string {
	if s == Settled {
		return "settled"
	}
	return "idle"
}

// Config tunes the two comparison modes. Idle compares sparsely with a lenient
// tolerance; Settled compares densely with a strict one.
type Config struct {
	CoarseStride     int     `yaml:"coarse_stride"`
	FineStride       int     `yaml:"fine_stride"`
	LenientTolerance int     `yaml:"lenient_tolerance"`
	StrictTolerance  int     `yaml:"strict_tolerance"`
	LenientThreshold float64 `yaml:"lenient_threshold"`
	StrictThreshold  float64 `yaml:"strict_threshold"`

	// FocusMaxChanges is how many fine samples inside the focus may differ
	// before a Settled frame counts as changed.
	FocusMaxChanges int `yaml:"focus_max_changes"`
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		CoarseStride:     8,
		FineStride:       3,
		LenientTolerance: 24,
		StrictTolerance:  8,
		LenientThreshold: 0.90,
		StrictThreshold:  0.98,
		FocusMaxChanges:  4,
	}
}

// Decision is the outcome of observing one frame.
type Decision struct {
	State      State
	Eligible   bool    // run detection on this frame
	Similarity float64 // against the reference; 0 when there was none
}

// Gate tracks a reference frame and the stability state. It is not safe for
// concurrent use; the capture loop owns it.
type Gate struct {
	cfg   Config
	state State
	ref   *frame.Frame
	focus image.Rectangle
}

// New creates an Idle gate with no reference.
func New(cfg Config) *Gate {
	return &Gate{cfg: cfg}
}

// State returns the current state.
func (g *Gate) State() State { return g.state }

// Focus sets the rectangle that Settled comparisons also check on its own,
// usually the last detected dialogue region: more than FocusMaxChanges differing
// samples inside it count as a change. A new line of text covers a tiny share of
// the whole frame. An empty rectangle clears the focus.
func (g *Gate) Focus(r image.Rectangle) { g.focus = r }

// Observe compares f with the reference and advances the state machine. The gate
// keeps its own copy of f when f becomes the new reference.
func (g *Gate) Observe(f *frame.Frame) Decision {
	if g.ref == nil {
		g.replace(f)
		return Decision{State: Idle}
	}

	stride, tol, threshold := g.cfg.CoarseStride, g.cfg.LenientTolerance, g.cfg.LenientThreshold
	if g.state == Settled {
		stride, tol, threshold = g.cfg.FineStride, g.cfg.StrictTolerance, g.cfg.StrictThreshold
	}

	sim := Similarity(g.ref, f, stride, tol)
	changed := false
	if g.state == Settled && !g.focus.Empty() {
		same, total := compare(g.ref, f, g.focus, stride, tol)
		if total > 0 {
			sim = min(sim, float64(same)/float64(total))
			changed = total-same > g.cfg.FocusMaxChanges
		}
	}
	if sim < threshold || changed {
		g.replace(f)
		g.state = Idle
		return Decision{State: Idle, Similarity: sim}
	}

	if g.state == Idle {
		g.state = Settled
		return Decision{State: Settled, Eligible: true, Similarity: sim}
	}
	return Decision{State: Settled, Similarity: sim}
}

// Reset drops the reference and the focus and returns to Idle.
func (g *Gate) Reset() {
	if g.ref != nil {
		g.ref.Release()
		g.ref = nil
	}
	g.state = Idle
	g.focus = image.Rectangle{}
}

func (g *Gate) replace(f *frame.Frame) {
	if g.ref != nil {
		g.ref.Release()
	}
	g.ref = f.Clone()
}

// Similarity returns the fraction of pixels sampled every stride pixels in both
// axes whose channels all lie within tolerance. Frames of different size score 0.
func Similarity(a, b *frame.Frame, stride, tolerance int) float64 {
	if a == nil || b == nil {
		return 0
	}
	return SimilarityIn(a, b, a.Bounds(), stride, tolerance)
}

// SimilarityIn is Similarity restricted to r, clipped to the frame bounds.
// An empty intersection scores 0.
func SimilarityIn(a, b *frame.Frame, r image.Rectangle, stride, tolerance int) float64 {
	same, total := compare(a, b, r, stride, tolerance)
	if total == 0 {
		return 0
	}
	return float64(same) / float64(total)
}

// compare counts the samples inside r and those within tolerance. Frames of
// different size yield no samples.
func compare(a, b *frame.Frame, r image.Rectangle, stride, tolerance int) (same, total int) {
	if a == nil || b == nil || a.Empty() || b.Empty() {
		return 0, 0
	}
	if a.Width() != b.Width() || a.Height() != b.Height() {
		return 0, 0
	}
	r = r.Intersect(a.Bounds())
	if stride < 1 {
		stride = 1
	}

	ai, bi := a.Image(), b.Image()
	for y := r.Min.Y; y < r.Max.Y; y += stride {
		ar := ai.Pix[y*ai.Stride:]
		br := bi.Pix[y*bi.Stride:]
		for x := r.Min.X; x < r.Max.X; x += stride {
			i := x * 4
			total++
			if frame.Within(ar[i], ar[i+1], ar[i+2], br[i], br[i+1], br[i+2], tolerance) {
				same++
			}
		}
	}
	return same, total
}
