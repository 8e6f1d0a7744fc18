package detect

import (
	"image"
	"time"
)

// Segment is the horizontal border run a region was learned from.
type Segment struct {
	Y, X0, X1 int // X1 exclusive
}

// Points returns the strategic validation pixels: both ends, the midpoint and the
// quarter points of the run.
func (s Segment) Points() []image.Point {
	w := s.X1 - s.X0
	if w <= 0 {
		return nil
	}
	xs := []int{s.X0, s.X0 + w/4, s.X0 + w/2, s.X0 + 3*w/4, s.X1 - 1}
	pts := make([]image.Point, 0, len(xs))
	for i, x := range xs {
		if i > 0 && x == xs[i-1] {
			continue
		}
		pts = append(pts, image.Pt(x, s.Y))
	}
	return pts
}

// State is the detector's position-learning state. Transitions return new values.
type State struct {
	Region        Region
	Border        Segment
	Learned       bool
	LastValidated time.Time
	LastFullScan  time.Time
}

// Learn caches a region found by a full scan at time at.
func (s State) Learn(r Region, border Segment, at time.Time) State {
	return State{Region: r, Border: border, Learned: true, LastValidated: at, LastFullScan: at}
}

// Validated records a successful validation of the cached region.
func (s State) Validated(at time.Time) State {
	s.LastValidated = at
	return s
}

// Invalidate forgets the cached region and keeps the scan timestamp.
func (s State) Invalidate() State {
	return State{LastFullScan: s.LastFullScan}
}

// Scanned records a full scan that found nothing.
func (s State) Scanned(at time.Time) State {
	s = s.Invalidate()
	s.LastFullScan = at
	return s
}

// NeedsRescan reports whether a full scan is due: nothing is cached, or interval
// has elapsed since the last full scan.
func (s State) NeedsRescan(now time.Time, interval time.Duration) bool {
	if !s.Learned {
		return true
	}
	return interval > 0 && now.Sub(s.LastFullScan) >= interval
}
