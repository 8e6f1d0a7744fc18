package screen

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/gamewatcher/watcher/internal/errors"
	"github.com/gamewatcher/watcher/internal/frame"
	"github.com/gamewatcher/watcher/internal/resilience"
)

// captureSession is the per-handle capture state: opened backends, the last backend that
// produced a usable frame, and the count of consecutive empty-handed captures.
type captureSession struct {
	handle   Handle
	active   Kind
	backends map[Kind]Backend
	failures int
}

func newSession(h Handle) *captureSession {
	return &captureSession{handle: h, backends: make(map[Kind]Backend)}
}

func (s *captureSession) drop(k Kind) {
	if b, ok := s.backends[k]; ok {
		if err := b.Close(); err != nil {
			slog.Debug("backend close failed", "backend", k, "error", err)
		}
		delete(s.backends, k)
	}
}

func (s *captureSession) close() {
	for k := range s.backends {
		s.drop(k)
	}
	s.active = KindNone
}

// Chain tries capture backends in a geometry-dependent order and falls back to
// last-resort strategies after repeated failures.
type Chain struct {
	cfg        Config
	factory    Factory
	locator    Locator
	lastResort []Strategy

	mu        sync.Mutex
	session   *captureSession
	cooldowns map[Kind]*resilience.Breaker
	observe   func(kind Kind, err error)
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewChain builds a chain. locator may be nil, in which case every window is
// treated as windowed.
func NewChain(cfg Config, factory Factory, locator Locator, lastResort []Strategy) *Chain {
	c := &Chain{
		cfg:        cfg,
		factory:    factory,
		locator:    locator,
		lastResort: lastResort,
		cooldowns:  make(map[Kind]*resilience.Breaker),
		sleep:      sleepCtx,
	}
	for _, k := range []Kind{KindCompositor, KindDuplication, KindBlit} {
		c.cooldowns[k] = resilience.New(k.String(), resilience.CooldownConfig(cfg.Cooldown))
	}
	return c
}

// WithObserver registers a callback invoked after every backend attempt with the
// attempt's error (nil on a usable frame).
func (c *Chain) WithObserver(fn func(kind Kind, err error)) *Chain {
	c.observe = fn
	return c
}

// WithClock replaces the cooldown clock.
func (c *Chain) WithClock(now func() time.Time) *Chain {
	for _, b := range c.cooldowns {
		b.WithClock(now)
	}
	return c
}

// Active returns the backend kind that last succeeded for the current session.
func (c *Chain) Active() Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return KindNone
	}
	return c.session.active
}

// Cooldown returns the time left before kind may be tried again.
func (c *Chain) Cooldown(kind Kind) time.Duration {
	if b, ok := c.cooldowns[kind]; ok {
		return b.Remaining()
	}
	return 0
}

// CaptureWindow returns a validated frame of h. When nothing usable could be
// obtained it returns a CodeCaptureUnavailable error; backend faults never escape.
func (c *Chain) CaptureWindow(ctx context.Context, h Handle) (*frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCancelled, "capture cancelled")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.sessionFor(h)
	order := Order(c.placement(h))

	if f := c.sweep(ctx, sess, order, true); f != nil {
		sess.failures = 0
		return f, nil
	}

	sess.failures++
	if sess.failures <= c.cfg.MaxConsecutiveFailures || len(c.lastResort) == 0 {
		return nil, apperrors.New(apperrors.CodeCaptureUnavailable, "no backend produced a usable frame").
			WithMetadata("handle", fmt.Sprint(h))
	}

	slog.Info("capture escalating to last-resort strategies", "handle", h, "failures", sess.failures)
	c.discard()
	sess = c.sessionFor(h)

	if f := c.escalate(ctx, sess, order); f != nil {
		return f, nil
	}
	return nil, apperrors.New(apperrors.CodeCaptureUnavailable, "last-resort strategies exhausted").
		WithMetadata("handle", fmt.Sprint(h))
}

// Close releases the current session's native resources.
func (c *Chain) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.close()
		c.session = nil
	}
}

func (c *Chain) sessionFor(h Handle) *captureSession {
	if c.session != nil && c.session.handle == h {
		return c.session
	}
	if c.session != nil {
		slog.Debug("capture target changed, recreating session", "old", c.session.handle, "new", h)
		c.session.close()
	}
	c.session = newSession(h)
	return c.session
}

// discard tears down the session and clears every cooldown.
func (c *Chain) discard() {
	if c.session != nil {
		c.session.close()
		c.session = nil
	}
	for _, b := range c.cooldowns {
		b.Reset()
	}
}

func (c *Chain) placement(h Handle) Placement {
	if c.locator == nil {
		return PlacementWindowed
	}
	win, err := c.locator.WindowRect(h)
	if err != nil {
		slog.Debug("window geometry unavailable", "handle", h, "error", err)
		return PlacementWindowed
	}
	mon, err := c.locator.MonitorRect(h)
	if err != nil {
		slog.Debug("monitor geometry unavailable", "handle", h, "error", err)
		return PlacementWindowed
	}
	return Classify(win, mon, c.cfg)
}

// sweep tries each backend in order once. When gated is true, backends in
// cooldown are skipped.
func (c *Chain) sweep(ctx context.Context, sess *captureSession, order []Kind, gated bool) *frame.Frame {
	for _, k := range order {
		if ctx.Err() != nil {
			return nil
		}
		cool := c.cooldowns[k]
		if gated && cool.Allow() != nil {
			continue
		}

		f, err := c.attempt(ctx, sess, k)
		if c.observe != nil {
			c.observe(k, err)
		}
		if err != nil {
			cool.Failure()
			c.logAttempt(k, sess.handle, err)
			continue
		}
		cool.Success()
		sess.active = k
		return f
	}
	return nil
}

func (c *Chain) attempt(ctx context.Context, sess *captureSession, k Kind) (*frame.Frame, error) {
	b, ok := sess.backends[k]
	if !ok {
		var err error
		b, err = c.factory(k, sess.handle)
		if err != nil {
			if apperrors.CodeOf(err) == apperrors.CodeUnknown {
				err = apperrors.Wrap(err, apperrors.CodeBackendFault, "open backend")
			}
			return nil, err
		}
		sess.backends[k] = b
	}

	f, err := safeCapture(ctx, b, sess.handle)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeBackendFault) {
			sess.drop(k)
		}
		return nil, err
	}
	if !Usable(f, c.cfg) {
		f.Release()
		return nil, apperrors.New(apperrors.CodeCaptureUnavailable, "blank frame").WithMetadata("backend", k.String())
	}
	return f, nil
}

// escalate runs each last-resort strategy in order, accepting the first frame that
// passes the usability check.
func (c *Chain) escalate(ctx context.Context, sess *captureSession, order []Kind) *frame.Frame {
	recapture := func(ctx context.Context) (*frame.Frame, error) {
		if err := c.sleep(ctx, c.cfg.SettleDelay); err != nil {
			return nil, err
		}
		if f := c.sweep(ctx, sess, order, false); f != nil {
			return f, nil
		}
		return nil, apperrors.New(apperrors.CodeCaptureUnavailable, "recapture failed")
	}

	for _, s := range c.lastResort {
		f, err := runStrategy(ctx, s, sess.handle, recapture)
		if err != nil {
			slog.Debug("last-resort strategy failed", "strategy", s.Name, "error", err)
			continue
		}
		if !Usable(f, c.cfg) {
			f.Release()
			slog.Debug("last-resort strategy produced unusable frame", "strategy", s.Name)
			continue
		}
		slog.Info("last-resort strategy recovered capture", "strategy", s.Name, "handle", sess.handle)
		return f
	}
	return nil
}

func (c *Chain) logAttempt(k Kind, h Handle, err error) {
	switch apperrors.CodeOf(err) {
	case apperrors.CodeBackendFault:
		slog.Warn("capture backend fault", "backend", k, "handle", h, "error", err, "cooldown", c.cfg.Cooldown)
	default:
		slog.Debug("capture backend failed", "backend", k, "handle", h, "error", err)
	}
}

// safeCapture converts panics and untyped errors from a backend into BackendFault.
func safeCapture(ctx context.Context, b Backend, h Handle) (f *frame.Frame, err error) {
	defer func() {
		if r := recover(); r != nil {
			f = nil
			err = apperrors.Newf(apperrors.CodeBackendFault, "%s backend panicked: %v", b.Kind(), r)
		}
	}()
	f, err = b.Capture(ctx, h)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeUnknown {
			err = apperrors.Wrapf(err, apperrors.CodeBackendFault, "%s capture", b.Kind())
		}
		return nil, err
	}
	if f == nil {
		return nil, apperrors.Newf(apperrors.CodeCaptureUnavailable, "%s returned no frame", b.Kind())
	}
	return f, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
