package pipeline

import (
	"context"
	"image"

	"github.com/gamewatcher/watcher/internal/gate"
	"github.com/gamewatcher/watcher/internal/trace"
)

// Status is a point-in-time view of the pipeline.
type Status struct {
	Running bool
	Paused  bool
	Busy    bool // OCR in flight
	Pending bool // a newer candidate is waiting for OCR
	Session string

	Gate       gate.State
	LastRegion image.Rectangle
	LastText   string
	LastLineID string

	Ticks           uint64
	CaptureFailures uint64
	Frames          uint64
	Detections      uint64
	Misses          uint64
	Skipped         uint64
	OCRErrors       uint64
	Emitted         uint64
	Duplicates      uint64
	Garbage         uint64
}

// SetPaused stops or resumes ticking without tearing anything down.
func (p *Pipeline) SetPaused(paused bool) {
	p.state.Update(func(s *shared) { s.status.Paused = paused })
	trace.Logger(context.Background()).Info("pipeline pause state changed", "paused", paused)
}

// StartSession clears session state and resumes ticking.
func (p *Pipeline) StartSession() string {
	id := p.resetSession()
	p.SetPaused(false)
	return id
}

// EndSession clears session state and pauses. Lines already emitted stay with
// their subscribers.
func (p *Pipeline) EndSession() {
	p.resetSession()
	p.SetPaused(true)
}

// resetSession forgets seen lines, detector and gate state, and invalidates any
// OCR still in flight.
func (p *Pipeline) resetSession() string {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()

	p.seen.Reset()
	p.detector.Reset()
	p.gate.Reset()

	var dropped *candidate
	id := p.seen.SessionID()
	p.state.Update(func(s *shared) {
		s.generation++
		s.last = nil
		dropped, s.pending = s.pending, nil
		s.status.Session = id
		s.status.Gate = gate.Idle
		s.status.LastRegion = image.Rectangle{}
		s.status.LastText = ""
		s.status.LastLineID = ""
	})
	dropped.release()
	trace.Logger(context.Background()).Info("session reset", "session", id)
	return id
}
