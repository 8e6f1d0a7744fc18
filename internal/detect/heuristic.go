package detect

import (
	"image"

	"github.com/gamewatcher/watcher/internal/frame"
)

// scanBorder walks the configured band top to bottom and returns the box built
// from the first row whose palette hits and longest contiguous run clear the
// thresholds.
func scanBorder(f *frame.Frame, cfg Config) (Region, Segment, bool) {
	if f == nil || f.Empty() || len(cfg.Palette) == 0 {
		return Region{}, Segment{}, false
	}
	w, h := f.Width(), f.Height()
	top := clamp(int(cfg.BandTop*float64(h)), 0, h)
	bottom := clamp(int(cfg.BandBottom*float64(h)), top, h)
	stride := max(cfg.RowStride, 1)

	img := f.Image()
	for y := top; y < bottom; y += stride {
		row := img.Pix[y*img.Stride:]
		hits, run, best, bestEnd := 0, 0, 0, 0
		for x := 0; x < w; x++ {
			i := x * 4
			if matches(cfg.Palette, row[i], row[i+1], row[i+2], cfg.Tolerance) {
				hits++
				run++
				if run > best {
					best, bestEnd = run, x+1
				}
			} else {
				run = 0
			}
		}
		if hits < cfg.MinHits || best < cfg.MinRun {
			continue
		}

		seg := Segment{Y: y, X0: bestEnd - best, X1: bestEnd}
		rect := boxFor(seg, cfg, bottom).Intersect(f.Bounds())
		if rect.Empty() {
			continue
		}
		return Region{
			Rect:       rect,
			Source:     SourceHeuristic,
			Confidence: float64(best) / float64(w),
		}, seg, true
	}
	return Region{}, Segment{}, false
}

// boxFor expands a border run by the margins into the expected box size.
func boxFor(seg Segment, cfg Config, bandBottom int) image.Rectangle {
	x0 := seg.X0 - cfg.MarginX
	y0 := seg.Y - cfg.MarginY

	width := seg.X1 - seg.X0 + 2*cfg.MarginX
	if cfg.BoxWidth > width {
		width = cfg.BoxWidth
	}
	y1 := bandBottom
	if cfg.BoxHeight > 0 {
		y1 = y0 + cfg.BoxHeight
	}
	return image.Rect(x0, y0, x0+width, y1)
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
