package detect

import (
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"log/slog"
	"os"
	"sync"

	"github.com/gamewatcher/watcher/internal/frame"
)

// TemplateConfig tunes corner-template refinement.
type TemplateConfig struct {
	TopLeft  string `yaml:"top_left"`  // PNG path; empty disables refinement
	TopRight string `yaml:"top_right"` // PNG path

	SearchPad   int     `yaml:"search_pad"`   // pixels around the heuristic corner
	BandPad     int     `yaml:"band_pad"`     // vertical slack when searching right
	Stride      int     `yaml:"stride"`       // search step in both axes
	AlphaCutoff uint8   `yaml:"alpha_cutoff"` // template pixels below are ignored
	Confidence  float64 `yaml:"confidence"`   // top-left acceptance
	Strict      float64 `yaml:"strict"`       // top-right first pass
	Loose       float64 `yaml:"loose"`        // top-right fallback
}

// DefaultTemplateConfig returns the tuned defaults.
func DefaultTemplateConfig() TemplateConfig {
	return TemplateConfig{
		SearchPad:   24,
		BandPad:     6,
		Stride:      2,
		AlphaCutoff: 128,
		Confidence:  0.80,
		Strict:      0.85,
		Loose:       0.70,
	}
}

// Template is a corner image reduced to its opaque pixels.
type Template struct {
	Width, Height int
	pixels        []templatePixel
}

type templatePixel struct {
	dx, dy  int
	r, g, b uint8
}

// NewTemplate masks img: pixels with alpha below cutoff are excluded from scoring.
func NewTemplate(img image.Image, cutoff uint8) *Template {
	b := img.Bounds()
	nrgba := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)

	t := &Template{Width: b.Dx(), Height: b.Dy()}
	for y := 0; y < t.Height; y++ {
		for x := 0; x < t.Width; x++ {
			c := nrgba.NRGBAAt(x, y)
			if c.A < cutoff {
				continue
			}
			t.pixels = append(t.pixels, templatePixel{dx: x, dy: y, r: c.R, g: c.G, b: c.B})
		}
	}
	return t
}

// Opaque returns the number of scored pixels.
func (t *Template) Opaque() int { return len(t.pixels) }

// Score is the fraction of opaque template pixels matching f at (x, y).
func (t *Template) Score(f *frame.Frame, x, y, tol int) float64 {
	if len(t.pixels) == 0 {
		return 0
	}
	img := f.Image()
	hit := 0
	for _, p := range t.pixels {
		i := (y+p.dy)*img.Stride + (x+p.dx)*4
		if frame.Within(img.Pix[i], img.Pix[i+1], img.Pix[i+2], p.r, p.g, p.b, tol) {
			hit++
		}
	}
	return float64(hit) / float64(len(t.pixels))
}

// Best searches area with the given stride for the top-left placement of t with
// the highest score. Ties keep the first position in row-major order.
func (t *Template) Best(f *frame.Frame, area image.Rectangle, stride, tol int) (image.Point, float64, bool) {
	maxX := f.Width() - t.Width
	maxY := f.Height() - t.Height
	area = area.Intersect(image.Rect(0, 0, maxX+1, maxY+1))
	if area.Empty() {
		return image.Point{}, 0, false
	}
	stride = max(stride, 1)

	var best image.Point
	bestScore := -1.0
	for y := area.Min.Y; y < area.Max.Y; y += stride {
		for x := area.Min.X; x < area.Max.X; x += stride {
			if s := t.Score(f, x, y, tol); s > bestScore {
				best, bestScore = image.Pt(x, y), s
			}
		}
	}
	return best, bestScore, bestScore >= 0
}

// Corners is the pair of corner templates used for refinement.
type Corners struct {
	TopLeft  *Template
	TopRight *Template
}

// Refine anchors the heuristic rectangle on the corner templates. It returns false
// when either corner is not found, in which case the caller keeps the heuristic.
func (c *Corners) Refine(f *frame.Frame, heuristic image.Rectangle, cfg TemplateConfig, tol int) (Region, bool) {
	if c == nil || c.TopLeft == nil || c.TopRight == nil {
		return Region{}, false
	}
	pad := cfg.SearchPad
	tlArea := image.Rect(heuristic.Min.X-pad, heuristic.Min.Y-pad, heuristic.Min.X+pad+1, heuristic.Min.Y+pad+1)
	tl, tlScore, ok := c.TopLeft.Best(f, tlArea, cfg.Stride, tol)
	if !ok || tlScore < cfg.Confidence {
		return Region{}, false
	}

	trArea := image.Rect(tl.X+c.TopLeft.Width, tl.Y-cfg.BandPad, heuristic.Max.X+pad+1, tl.Y+cfg.BandPad+1)
	tr, trScore, ok := c.TopRight.Best(f, trArea, cfg.Stride, tol)
	if !ok {
		return Region{}, false
	}
	switch {
	case trScore >= cfg.Strict:
	case trScore >= cfg.Loose:
		slog.Debug("top-right corner accepted on loose threshold", "score", trScore)
	default:
		return Region{}, false
	}

	rect := image.Rect(tl.X, tl.Y, tr.X+c.TopRight.Width, tl.Y+heuristic.Dy()).Intersect(f.Bounds())
	if rect.Empty() {
		return Region{}, false
	}
	return Region{Rect: rect, Source: SourceTemplate, Confidence: min(tlScore, trScore)}, true
}

// Registry loads corner templates from PNG files once per path.
type Registry struct {
	mu    sync.Mutex
	cache map[string]*Template
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{cache: make(map[string]*Template)}
}

// Load returns the masked template at path, decoding it on first use.
func (r *Registry) Load(path string, cutoff uint8) (*Template, error) {
	key := fmt.Sprintf("%s@%d", path, cutoff)

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.cache[key]; ok {
		return t, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open template: %w", err)
	}
	defer file.Close()

	img, err := png.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode template %s: %w", path, err)
	}
	t := NewTemplate(img, cutoff)
	if t.Opaque() == 0 {
		return nil, fmt.Errorf("template %s has no opaque pixels", path)
	}
	r.cache[key] = t
	return t, nil
}

// LoadCorners loads both corner templates named in cfg. It returns nil, nil when
// refinement is not configured.
func (r *Registry) LoadCorners(cfg TemplateConfig) (*Corners, error) {
	if cfg.TopLeft == "" && cfg.TopRight == "" {
		return nil, nil
	}
	if cfg.TopLeft == "" || cfg.TopRight == "" {
		return nil, fmt.Errorf("corner templates need both top_left and top_right")
	}
	tl, err := r.Load(cfg.TopLeft, cfg.AlphaCutoff)
	if err != nil {
		return nil, err
	}
	tr, err := r.Load(cfg.TopRight, cfg.AlphaCutoff)
	if err != nil {
		return nil, err
	}
	return &Corners{TopLeft: tl, TopRight: tr}, nil
}
