package pipeline

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/gamewatcher/watcher/internal/dedup"
	"github.com/gamewatcher/watcher/internal/detect"
	"github.com/gamewatcher/watcher/internal/emit"
	apperrors "github.com/gamewatcher/watcher/internal/errors"
	"github.com/gamewatcher/watcher/internal/frame"
	"github.com/gamewatcher/watcher/internal/gate"
	"github.com/gamewatcher/watcher/internal/observe"
	"github.com/gamewatcher/watcher/internal/ocr"
	"github.com/gamewatcher/watcher/internal/screen"
	"github.com/gamewatcher/watcher/internal/syncx"
	"github.com/gamewatcher/watcher/internal/trace"
)

// Capturer produces validated frames of a window.
type Capturer interface {
	CaptureWindow(ctx context.Context, h screen.Handle) (*frame.Frame, error)
}

// Deps are the pipeline's collaborators. Metrics may be nil.
type Deps struct {
	Capture  Capturer
	Handle   screen.Handle
	Gate     *gate.Gate
	Detector *detect.Detector
	OCR      ocr.Extractor
	Seen     *dedup.SeenSet
	Emitter  *emit.Emitter
	Metrics  *observe.Metrics
}

// candidate is a region crop waiting for OCR. The crop is a deep copy owned by
// whoever holds the candidate.
type candidate struct {
	region detect.Region
	crop   *frame.Frame
	sig    *signature
	at     time.Time
	gen    uint64
}

func (c *candidate) release() {
	if c != nil && c.crop != nil {
		c.crop.Release()
	}
}

// shared is the state touched by both the tick goroutine and status readers.
type shared struct {
	status     Status
	running    bool
	generation uint64
	busy       bool
	pending    *candidate
	last       *signature // content of the last dispatched region
}

// Pipeline is the tick scheduler.
type Pipeline struct {
	cfg      Config
	capture  Capturer
	handle   screen.Handle
	gate     *gate.Gate
	detector *detect.Detector
	ocr      ocr.Extractor
	seen     *dedup.SeenSet
	emitter  *emit.Emitter
	metrics  *observe.Metrics
	now      func() time.Time

	tickMu sync.Mutex // serializes ticks and session resets; gate and detector live under it
	state  *syncx.Guard[shared]
	wg     sync.WaitGroup
}

// New creates a pipeline.
func New(cfg Config, deps Deps) *Pipeline {
	if deps.Metrics == nil {
		deps.Metrics = observe.Noop()
	}
	return &Pipeline{
		cfg:      cfg,
		capture:  deps.Capture,
		handle:   deps.Handle,
		gate:     deps.Gate,
		detector: deps.Detector,
		ocr:      deps.OCR,
		seen:     deps.Seen,
		emitter:  deps.Emitter,
		metrics:  deps.Metrics,
		now:      time.Now,
		state:    syncx.NewGuard(shared{status: Status{Session: deps.Seen.SessionID()}}),
	}
}

// WithClock replaces the timestamp source used for emitted lines.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Run ticks until ctx is done, then stops the pipeline. In-flight OCR is left to
// finish; its result is discarded.
func (p *Pipeline) Run(ctx context.Context) error {
	p.start()
	defer p.Stop()

	ticker := time.NewTicker(p.cfg.Interval())
	defer ticker.Stop()

	trace.Logger(ctx).Info("pipeline started", "handle", p.handle, "interval", p.cfg.Interval())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

func (p *Pipeline) start() {
	p.state.Update(func(s *shared) {
		s.running = true
		s.generation++
		s.status.Running = true
	})
}

// Stop disables publishing. OCR already running completes but its result is
// dropped.
func (p *Pipeline) Stop() {
	var dropped *candidate
	p.state.Update(func(s *shared) {
		s.running = false
		s.generation++
		s.status.Running = false
		dropped, s.pending = s.pending, nil
	})
	dropped.release()
}

// Wait blocks until background OCR work has finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Tick runs one capture, gate and detect step. A tick that arrives while
// another is running is skipped.
func (p *Pipeline) Tick(ctx context.Context) {
	if !p.tickMu.TryLock() {
		return
	}
	defer p.tickMu.Unlock()

	if syncx.View(p.state, func(s *shared) bool { return s.status.Paused }) {
		return
	}

	ctx, span := trace.StartSpan(ctx, "tick")
	defer span.End()
	log := trace.Logger(ctx)
	p.metrics.Ticks.Add(ctx, 1)
	p.state.Update(func(s *shared) { s.status.Ticks++ })

	f, err := p.capture.CaptureWindow(ctx, p.handle)
	if err != nil {
		span.SetError(err)
		p.state.Update(func(s *shared) { s.status.CaptureFailures++ })
		if !apperrors.IsCode(err, apperrors.CodeCaptureUnavailable) && !apperrors.IsCode(err, apperrors.CodeCancelled) {
			log.Warn("capture failed", "error", err)
		} else {
			log.Debug("no frame this tick", "error", err)
		}
		return
	}
	defer f.Release()

	d := p.gate.Observe(f)
	span.SetAttr("gate", d.State.String())
	p.state.Update(func(s *shared) {
		s.status.Frames++
		s.status.Gate = d.State
	})
	if !d.Eligible {
		return
	}
	p.metrics.GateStable.Add(ctx, 1)

	region, ok := p.detector.Detect(f)
	if !ok {
		p.gate.Focus(image.Rectangle{})
		p.metrics.DetectMisses.Add(ctx, 1)
		p.state.Update(func(s *shared) { s.status.Misses++ })
		log.Debug("no dialogue region", "code", apperrors.CodeDetectionMiss)
		return
	}
	p.gate.Focus(region.Rect)
	p.metrics.DetectHits.Add(ctx, 1)
	span.SetAttr("region", region.Rect.String())
	span.SetAttr("source", region.Source.String())
	p.state.Update(func(s *shared) {
		s.status.Detections++
		s.status.LastRegion = region.Rect
	})

	crop := f.Crop(region.Rect)
	if crop.Empty() {
		return
	}
	sig, err := newSignature(crop)
	if err != nil {
		log.Debug("region hash failed", "error", err)
	}
	p.dispatch(ctx, &candidate{region: region, crop: crop, sig: sig, at: f.CapturedAt()})
}

// Status returns a snapshot for observers.
func (p *Pipeline) Status() Status {
	return syncx.View(p.state, func(s *shared) Status {
		st := s.status
		st.Busy = s.busy
		st.Pending = s.pending != nil
		return st
	})
}
