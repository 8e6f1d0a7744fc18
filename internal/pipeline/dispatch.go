package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/gamewatcher/watcher/internal/dedup"
	apperrors "github.com/gamewatcher/watcher/internal/errors"
	"github.com/gamewatcher/watcher/internal/observe"
	"github.com/gamewatcher/watcher/internal/ocr"
	"github.com/gamewatcher/watcher/internal/syncx"
	"github.com/gamewatcher/watcher/internal/trace"
)

// dispatch hands c to the OCR worker. With OCR idle a worker starts; while busy
// c replaces any pending candidate. Regions showing the same pixels as the last
// dispatched one are skipped.
func (p *Pipeline) dispatch(ctx context.Context, c *candidate) {
	var (
		start    bool
		skipped  bool
		replaced *candidate
	)
	p.state.Update(func(s *shared) {
		c.gen = s.generation
		switch {
		case !s.running:
			skipped = true
		case p.seenRegion(s.last, c.sig):
			skipped = true
			s.status.Skipped++
		case s.busy:
			replaced, s.pending = s.pending, c
		default:
			s.busy = true
			s.last = c.sig
			start = true
		}
	})

	replaced.release()
	if skipped {
		p.metrics.OCR(ctx, observe.StatusSkipped, 0)
		c.release()
		return
	}
	if start {
		p.wg.Add(1)
		go p.work(context.WithoutCancel(ctx), c)
	}
}

func (p *Pipeline) seenRegion(last, next *signature) bool {
	return last.matches(next, p.cfg.RegionHashDistance, p.cfg.RegionTolerance)
}

// work runs OCR for c and then for whatever candidate became pending meanwhile.
func (p *Pipeline) work(ctx context.Context, c *candidate) {
	defer p.wg.Done()
	for c != nil {
		p.read(ctx, c)
		c.release()
		c = p.next()
	}
}

// next promotes the pending candidate or marks the worker idle.
func (p *Pipeline) next() *candidate {
	var skipped []*candidate
	c := syncx.Modify(p.state, func(s *shared) *candidate {
		for s.pending != nil {
			c := s.pending
			s.pending = nil
			if c.gen != s.generation || p.seenRegion(s.last, c.sig) {
				skipped = append(skipped, c)
				continue
			}
			s.last = c.sig
			return c
		}
		s.busy = false
		return nil
	})
	for _, sk := range skipped {
		sk.release()
	}
	return c
}

// read extracts and publishes one candidate's text.
func (p *Pipeline) read(ctx context.Context, c *candidate) {
	ctx, span := trace.StartSpan(ctx, "ocr")
	defer span.End()
	span.SetAttr("region", c.region.Rect.String())
	log := trace.Logger(ctx)

	started := time.Now()
	res, err := p.extract(ctx, c)
	elapsed := time.Since(started)
	span.SetAttr("duration_ms", elapsed.Milliseconds())

	if err != nil {
		span.SetError(err)
		p.metrics.OCR(ctx, observe.StatusError, elapsed)
		p.state.Update(func(s *shared) {
			s.status.OCRErrors++
			if s.last == c.sig {
				s.last = nil
			}
		})
		if apperrors.IsCode(err, apperrors.CodeOCRUnavailable) {
			log.Debug("ocr unavailable", "error", err)
		} else {
			log.Warn("ocr failed", "error", err)
		}
		return
	}
	p.metrics.OCR(ctx, observe.StatusOK, elapsed)
	span.SetAttr("confidence", res.Confidence)
	p.publish(ctx, c, res.Text)
}

func (p *Pipeline) extract(ctx context.Context, c *candidate) (res ocr.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.New(apperrors.CodeOCRFailed, fmt.Sprintf("ocr panicked: %v", r))
		}
	}()
	return p.ocr.ExtractText(ctx, c.crop.Image())
}

// publish runs dedup and emits new lines, unless the pipeline was stopped or the
// session changed since c was captured.
func (p *Pipeline) publish(ctx context.Context, c *candidate, raw string) {
	log := trace.Logger(ctx)
	current := syncx.View(p.state, func(s *shared) bool {
		return s.running && s.generation == c.gen
	})
	if !current {
		log.Debug("dropping stale ocr result", "generation", c.gen)
		return
	}

	at := c.at
	if at.IsZero() {
		at = p.now()
	}
	out := p.seen.Process(raw, at)
	p.metrics.Line(ctx, out.Kind.String())

	switch out.Kind {
	case dedup.KindGarbage:
		log.Debug("discarding ocr garbage", "raw", raw, "reason", out.Err)
		p.state.Update(func(s *shared) { s.status.Garbage++ })
	case dedup.KindDuplicate:
		log.Debug("duplicate line", "id", out.Line.ID, "similarity", out.Similarity, "occurrences", out.Line.Occurrences)
		p.state.Update(func(s *shared) { s.status.Duplicates++ })
	default:
		id := p.emitter.Emit(out.Line.Text, raw, at)
		log.Info("new line", "id", id, "text", out.Line.Text)
		p.state.Update(func(s *shared) {
			s.status.Emitted++
			s.status.LastText = out.Line.Text
			s.status.LastLineID = id
		})
	}
}
