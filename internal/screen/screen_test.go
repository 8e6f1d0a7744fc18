package screen

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	apperrors "github.com/gamewatcher/watcher/internal/errors"
	"github.com/gamewatcher/watcher/internal/frame"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SettleDelay = 0
	return cfg
}

func gradientFrame(w, h int) *frame.Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x * 255) / max(w-1, 1))
			img.SetRGBA(x, y, color.RGBA{v, v, uint8(y), 255})
		}
	}
	return frame.New(img, time.Now())
}

func blankFrame(w, h int) *frame.Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	return frame.New(img, time.Now())
}

func TestClassify(t *testing.T) {
	cfg := DefaultConfig()
	monitor := image.Rect(0, 0, 1920, 1080)

	tests := []struct {
		name   string
		window image.Rectangle
		want   Placement
	}{
		// 1856*1060 is ~94.9% of the monitor.
		{"95% coverage near origin", image.Rect(8, 5, 8+1856, 5+1060), PlacementFullscreen},
		{"exact monitor", monitor, PlacementFullscreen},
		{"large but offset", image.Rect(60, 0, 60+1860, 1080), PlacementWindowed},
		{"small window", image.Rect(100, 100, 900, 700), PlacementWindowed},
		{"empty window", image.Rectangle{}, PlacementWindowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.window, monitor, cfg); got != tt.want {
				t.Errorf("Classify = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifySecondaryMonitor(t *testing.T) {
	monitor := image.Rect(1920, 0, 3840, 1080)
	window := image.Rect(1925, 3, 3840, 1080)
	if got := Classify(window, monitor, DefaultConfig()); got != PlacementFullscreen {
		t.Errorf("Classify = %v, want fullscreen", got)
	}
}

func TestOrder(t *testing.T) {
	full := Order(PlacementFullscreen)
	if full[0] != KindDuplication {
		t.Errorf("fullscreen order starts with %v, want duplication", full[0])
	}
	win := Order(PlacementWindowed)
	if win[0] != KindCompositor || win[2] != KindBlit {
		t.Errorf("windowed order = %v", win)
	}
}

func uniformFrame(w, h int, c color.RGBA) *frame.Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, 255
	}
	return frame.New(img, time.Now())
}

// noisyDarkFrame is almost black with faint speckles.
func noisyDarkFrame(w, h int) *frame.Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x + y) % 2 * 6)
			img.SetRGBA(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return frame.New(img, time.Now())
}

func TestUsable(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name string
		f    *frame.Frame
		want bool
	}{
		{"black", blankFrame(64, 64), false},
		{"flat white", uniformFrame(64, 64, color.RGBA{255, 255, 255, 255}), false},
		{"flat gray", uniformFrame(64, 64, color.RGBA{128, 128, 128, 255}), false},
		{"dark noise", noisyDarkFrame(64, 64), false},
		{"gradient", gradientFrame(64, 64), true},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		if got := Usable(tt.f, cfg); got != tt.want {
			t.Errorf("%s: Usable = %v, want %v", tt.name, got, tt.want)
		}
	}
}

type fakeBackend struct {
	kind    Kind
	capture func() (*frame.Frame, error)
	calls   int
	closed  bool
}

func (b *fakeBackend) Kind() Kind { return b.kind }

func (b *fakeBackend) Capture(ctx context.Context, h Handle) (*frame.Frame, error) {
	b.calls++
	return b.capture()
}

func (b *fakeBackend) Close() error {
	b.closed = true
	return nil
}

type fakePlatform struct {
	behaviour map[Kind]func() (*frame.Frame, error)
	opened    []*fakeBackend
}

func (p *fakePlatform) factory(kind Kind, h Handle) (Backend, error) {
	fn, ok := p.behaviour[kind]
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeUnsupported, "%s", kind)
	}
	b := &fakeBackend{kind: kind, capture: fn}
	p.opened = append(p.opened, b)
	return b, nil
}

func (p *fakePlatform) calls(kind Kind) int {
	n := 0
	for _, b := range p.opened {
		if b.kind == kind {
			n += b.calls
		}
	}
	return n
}

type fakeLocator struct{ window, monitor image.Rectangle }

func (l fakeLocator) WindowRect(Handle) (image.Rectangle, error)  { return l.window, nil }
func (l fakeLocator) MonitorRect(Handle) (image.Rectangle, error) { return l.monitor, nil }

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

var windowed = fakeLocator{window: image.Rect(100, 100, 900, 700), monitor: image.Rect(0, 0, 1920, 1080)}

func TestChainFallsThroughBlankFrame(t *testing.T) {
	p := &fakePlatform{behaviour: map[Kind]func() (*frame.Frame, error){
		KindCompositor:  func() (*frame.Frame, error) { return blankFrame(32, 32), nil },
		KindDuplication: func() (*frame.Frame, error) { return gradientFrame(32, 32), nil },
	}}
	clk := &fakeClock{t: time.Unix(100, 0)}
	c := NewChain(testConfig(), p.factory, windowed, nil).WithClock(clk.now)

	f, err := c.CaptureWindow(context.Background(), 1)
	if err != nil {
		t.Fatalf("CaptureWindow: %v", err)
	}
	if f.Empty() {
		t.Fatal("expected a frame")
	}
	if c.Active() != KindDuplication {
		t.Errorf("Active = %v, want duplication", c.Active())
	}
	if c.Cooldown(KindCompositor) == 0 {
		t.Error("compositor should be cooling down after a blank frame")
	}

	if _, err := c.CaptureWindow(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if n := p.calls(KindCompositor); n != 1 {
		t.Errorf("compositor tried %d times, want 1 (cooldown)", n)
	}

	clk.advance(3 * time.Second)
	_, _ = c.CaptureWindow(context.Background(), 1)
	if n := p.calls(KindCompositor); n != 2 {
		t.Errorf("compositor tried %d times after cooldown, want 2", n)
	}
}

func TestChainFullscreenPrefersDuplication(t *testing.T) {
	p := &fakePlatform{behaviour: map[Kind]func() (*frame.Frame, error){
		KindCompositor:  func() (*frame.Frame, error) { return gradientFrame(8, 8), nil },
		KindDuplication: func() (*frame.Frame, error) { return gradientFrame(8, 8), nil },
	}}
	full := fakeLocator{window: image.Rect(0, 0, 1920, 1080), monitor: image.Rect(0, 0, 1920, 1080)}
	c := NewChain(testConfig(), p.factory, full, nil)

	if _, err := c.CaptureWindow(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if c.Active() != KindDuplication {
		t.Errorf("Active = %v, want duplication", c.Active())
	}
	if p.calls(KindCompositor) != 0 {
		t.Error("compositor should not be tried when duplication succeeds first")
	}
}

func TestChainIsolatesPanickingBackend(t *testing.T) {
	p := &fakePlatform{behaviour: map[Kind]func() (*frame.Frame, error){
		KindCompositor: func() (*frame.Frame, error) { panic("device lost") },
		KindBlit:       func() (*frame.Frame, error) { return gradientFrame(16, 16), nil },
	}}
	var faults []Kind
	c := NewChain(testConfig(), p.factory, windowed, nil).WithObserver(func(k Kind, err error) {
		if apperrors.IsCode(err, apperrors.CodeBackendFault) {
			faults = append(faults, k)
		}
	})

	f, err := c.CaptureWindow(context.Background(), 7)
	if err != nil || f == nil {
		t.Fatalf("CaptureWindow = %v, %v", f, err)
	}
	if len(faults) != 1 || faults[0] != KindCompositor {
		t.Errorf("faults = %v, want [compositor]", faults)
	}
	if !p.opened[0].closed {
		t.Error("faulted backend should be closed and dropped")
	}
}

func TestChainAllFailIsCaptureUnavailable(t *testing.T) {
	p := &fakePlatform{behaviour: map[Kind]func() (*frame.Frame, error){
		KindBlit: func() (*frame.Frame, error) { return nil, errors.New("boom") },
	}}
	c := NewChain(testConfig(), p.factory, nil, nil)

	_, err := c.CaptureWindow(context.Background(), 1)
	if !apperrors.IsCode(err, apperrors.CodeCaptureUnavailable) {
		t.Errorf("err = %v, want CaptureUnavailable", err)
	}
}

func TestChainEscalatesToLastResort(t *testing.T) {
	p := &fakePlatform{behaviour: map[Kind]func() (*frame.Frame, error){
		KindCompositor: func() (*frame.Frame, error) { return blankFrame(8, 8), nil },
	}}
	var ran []string
	strategies := []Strategy{
		{Name: "blank", Attempt: func(ctx context.Context, h Handle, _ Recapture) (*frame.Frame, error) {
			ran = append(ran, "blank")
			return blankFrame(8, 8), nil
		}},
		{Name: "broken", Attempt: func(ctx context.Context, h Handle, _ Recapture) (*frame.Frame, error) {
			ran = append(ran, "broken")
			panic("clipboard gone")
		}},
		{Name: "good", Attempt: func(ctx context.Context, h Handle, _ Recapture) (*frame.Frame, error) {
			ran = append(ran, "good")
			return gradientFrame(8, 8), nil
		}},
	}
	cfg := testConfig()
	cfg.MaxConsecutiveFailures = 2
	clk := &fakeClock{t: time.Unix(100, 0)}
	c := NewChain(cfg, p.factory, windowed, strategies).WithClock(clk.now)

	for i := 0; i < 2; i++ {
		if _, err := c.CaptureWindow(context.Background(), 1); err == nil {
			t.Fatalf("call %d should fail", i)
		}
		clk.advance(5 * time.Second)
	}
	if len(ran) != 0 {
		t.Fatalf("strategies ran early: %v", ran)
	}

	f, err := c.CaptureWindow(context.Background(), 1)
	if err != nil || f == nil {
		t.Fatalf("escalated capture = %v, %v", f, err)
	}
	want := []string{"blank", "broken", "good"}
	if len(ran) != len(want) {
		t.Fatalf("ran = %v, want %v", ran, want)
	}
	if !p.opened[0].closed {
		t.Error("session backends should be discarded before escalation")
	}
}

func TestLastResortRecaptures(t *testing.T) {
	d := &fakeDesktop{}
	strategies := LastResort(d)
	if len(strategies) != 3 {
		t.Fatalf("len = %d, want 3", len(strategies))
	}

	recaptured := 0
	recapture := func(ctx context.Context) (*frame.Frame, error) {
		recaptured++
		return gradientFrame(4, 4), nil
	}
	for _, s := range strategies[:2] {
		if _, err := runStrategy(context.Background(), s, 9, recapture); err != nil {
			t.Errorf("%s: %v", s.Name, err)
		}
	}
	if d.activated != 1 || d.nudged != 1 || recaptured != 2 {
		t.Errorf("activated=%d nudged=%d recaptured=%d", d.activated, d.nudged, recaptured)
	}

	f, err := runStrategy(context.Background(), strategies[2], 9, recapture)
	if err != nil || f.Width() != 4 {
		t.Errorf("clipboard strategy = %v, %v", f, err)
	}
	if LastResort(nil) != nil {
		t.Error("no desktop hooks should mean no strategies")
	}
}

type fakeDesktop struct{ activated, nudged int }

func (d *fakeDesktop) Activate(Handle) error { d.activated++; return nil }
func (d *fakeDesktop) Nudge(Handle) error    { d.nudged++; return nil }
func (d *fakeDesktop) SnapshotToClipboard(context.Context, Handle) (image.Image, error) {
	return gradientFrame(4, 4).Image(), nil
}

func TestChainRecreatesSessionOnHandleChange(t *testing.T) {
	p := &fakePlatform{behaviour: map[Kind]func() (*frame.Frame, error){
		KindCompositor: func() (*frame.Frame, error) { return gradientFrame(8, 8), nil },
	}}
	c := NewChain(testConfig(), p.factory, windowed, nil)

	_, _ = c.CaptureWindow(context.Background(), 1)
	_, _ = c.CaptureWindow(context.Background(), 2)

	if len(p.opened) != 2 {
		t.Fatalf("opened %d backends, want 2", len(p.opened))
	}
	if !p.opened[0].closed {
		t.Error("old session backend should be closed on handle change")
	}
	c.Close()
	if !p.opened[1].closed {
		t.Error("Close should release the current session")
	}
}

func TestChainCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewChain(testConfig(), (&fakePlatform{}).factory, nil, nil)
	if _, err := c.CaptureWindow(ctx, 1); !apperrors.IsCode(err, apperrors.CodeCancelled) {
		t.Errorf("err = %v, want Cancelled", err)
	}
}
