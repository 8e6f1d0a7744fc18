package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/gamewatcher/watcher/internal/dedup"
	"github.com/gamewatcher/watcher/internal/detect"
	"github.com/gamewatcher/watcher/internal/emit"
	apperrors "github.com/gamewatcher/watcher/internal/errors"
	"github.com/gamewatcher/watcher/internal/frame"
	"github.com/gamewatcher/watcher/internal/gate"
	"github.com/gamewatcher/watcher/internal/observe"
	"github.com/gamewatcher/watcher/internal/ocr"
	"github.com/gamewatcher/watcher/internal/screen"
)

func canvas(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, 255
	}
	return img
}

// Glyph bars drawn inside the dialogue box in place of rendered text.
var (
	welcomeLine  = image.Rect(120, 280, 240, 289)
	welcomeStart = image.Rect(120, 280, 180, 289)
	kingLine     = image.Rect(300, 300, 420, 309)
)

// dialogueImage is a black 640x360 screen with a two-row border at y=250 and
// optional text bars below it.
func dialogueImage(text ...image.Rectangle) *image.RGBA {
	img := canvas(640, 360, color.RGBA{})
	white := color.RGBA{248, 248, 248, 255}
	for _, y := range []int{250, 251} {
		for x := 100; x < 540; x++ {
			img.SetRGBA(x, y, white)
		}
	}
	for _, r := range text {
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				img.SetRGBA(x, y, white)
			}
		}
	}
	return img
}

func grayImage() *image.RGBA { return canvas(640, 360, color.RGBA{128, 128, 128, 255}) }

type fakeCapturer struct {
	mu    sync.Mutex
	img   *image.RGBA
	err   error
	calls int
}

func (c *fakeCapturer) CaptureWindow(_ context.Context, _ screen.Handle) (*frame.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return frame.New(c.img, time.Now()), nil
}

func (c *fakeCapturer) show(img *image.RGBA) {
	c.mu.Lock()
	c.img = img
	c.mu.Unlock()
}

func (c *fakeCapturer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// scriptedOCR returns texts in order, repeating the last one.
type scriptedOCR struct {
	mu    sync.Mutex
	texts []string
	errs  []error
	calls int
}

func (o *scriptedOCR) ExtractText(_ context.Context, _ image.Image) (ocr.Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	i := o.calls
	o.calls++
	if i < len(o.errs) && o.errs[i] != nil {
		return ocr.Result{}, o.errs[i]
	}
	return ocr.Result{Text: o.texts[min(i, len(o.texts)-1)], Confidence: 0.9}, nil
}

func (o *scriptedOCR) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

type harness struct {
	p       *Pipeline
	capture *fakeCapturer
	seen    *dedup.SeenSet
	emitter *emit.Emitter
}

func newHarness(t *testing.T, cfg Config, ex ocr.Extractor, metrics *observe.Metrics) *harness {
	t.Helper()
	capture := &fakeCapturer{img: dialogueImage()}
	seen := dedup.NewSeenSet(dedup.DefaultConfig())
	emitter := emit.New(emit.DefaultConfig())
	t.Cleanup(emitter.Close)

	p := New(cfg, Deps{
		Capture:  capture,
		Handle:   1,
		Gate:     gate.New(gate.DefaultConfig()),
		Detector: detect.New(detect.DefaultConfig(), nil),
		OCR:      ex,
		Seen:     seen,
		Emitter:  emitter,
		Metrics:  metrics,
	})
	p.start()
	return &harness{p: p, capture: capture, seen: seen, emitter: emitter}
}

// settle ticks twice on the current image: once to store the reference and
// once to become eligible. It then waits for OCR.
func (h *harness) settle() {
	h.p.Tick(context.Background())
	h.p.Tick(context.Background())
	h.p.Wait()
}

// disturb shows a different screen so the gate falls back to Idle.
func (h *harness) disturb() {
	img := h.capture.img
	h.capture.show(grayImage())
	h.p.Tick(context.Background())
	h.capture.show(img)
}

func TestTickEmitsNewLine(t *testing.T) {
	o := &scriptedOCR{texts: []string{"Welcome to Cornelia!"}}
	h := newHarness(t, DefaultConfig(), o, nil)

	h.settle()
	h.p.Tick(context.Background())
	h.p.Wait()

	hist := h.emitter.History(0)
	if len(hist) != 1 || hist[0].Text != "Welcome to Cornelia!" {
		t.Fatalf("history = %+v, want one line", hist)
	}
	if o.count() != 1 {
		t.Errorf("ocr calls = %d, want 1 (settled frames are not re-read)", o.count())
	}

	st := h.p.Status()
	if st.Emitted != 1 || st.Detections != 1 || st.Frames != 3 || st.Ticks != 3 {
		t.Errorf("status = %+v", st)
	}
	if st.Gate != gate.Settled || st.LastRegion != image.Rect(96, 246, 544, 352) {
		t.Errorf("gate = %v, region = %v", st.Gate, st.LastRegion)
	}
	if st.LastLineID != dedup.StableID("Welcome to Cornelia!") || st.Busy {
		t.Errorf("LastLineID = %q, busy = %v", st.LastLineID, st.Busy)
	}
}

func TestIdenticalRegionSkipped(t *testing.T) {
	o := &scriptedOCR{texts: []string{"Welcome to Cornelia!"}}
	h := newHarness(t, DefaultConfig(), o, nil)
	h.capture.show(dialogueImage(welcomeLine))

	h.settle()
	h.disturb()
	h.settle()

	if o.count() != 1 {
		t.Errorf("ocr calls = %d, want 1", o.count())
	}
	if st := h.p.Status(); st.Skipped != 1 || st.Detections != 2 {
		t.Errorf("status = %+v, want one skipped region", st)
	}
}

func TestNewTextInUnmovedBoxIsRead(t *testing.T) {
	tests := []struct {
		name   string
		before image.Rectangle
		after  image.Rectangle
		texts  []string
	}{
		{"next line", welcomeLine, kingLine, []string{"Welcome to Cornelia!", "The king awaits you."}},
		{"line finishes rendering", welcomeStart, welcomeLine, []string{"Welcome to", "Welcome to Cornelia!"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &scriptedOCR{texts: tt.texts}
			h := newHarness(t, DefaultConfig(), o, nil)

			h.capture.show(dialogueImage(tt.before))
			h.settle()
			h.capture.show(dialogueImage(tt.after))
			h.settle()
			h.p.Tick(context.Background())
			h.p.Wait()

			if o.count() != 2 {
				t.Fatalf("ocr calls = %d, want 2", o.count())
			}
			hist := h.emitter.History(0)
			if len(hist) != 2 || hist[0].Text != tt.texts[0] || hist[1].Text != tt.texts[1] {
				t.Errorf("history = %+v, want both lines in order", hist)
			}
			if st := h.p.Status(); st.Skipped != 0 || st.Detections != 2 || st.Gate != gate.Settled {
				t.Errorf("status = %+v", st)
			}
		})
	}
}

func TestFixRuleDuplicateNotEmitted(t *testing.T) {
	o := &scriptedOCR{texts: []string{"Welcome to Cornelia!", "VVelcome to Cornelia!"}}
	cfg := DefaultConfig()
	cfg.RegionHashDistance = -1
	h := newHarness(t, cfg, o, nil)

	h.settle()
	h.disturb()
	h.settle()

	if o.count() != 2 {
		t.Fatalf("ocr calls = %d, want 2", o.count())
	}
	if n := len(h.emitter.History(0)); n != 1 {
		t.Errorf("emitted %d lines, want 1", n)
	}
	lines := h.seen.Lines()
	if len(lines) != 1 || lines[0].Occurrences != 2 {
		t.Errorf("seen = %+v, want one line seen twice", lines)
	}
	if st := h.p.Status(); st.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", st.Duplicates)
	}
}

// blockingOCR reports each call and waits for release before answering.
type blockingOCR struct {
	started chan int
	release chan struct{}
	texts   map[int]string

	mu     sync.Mutex
	widths []int
}

func newBlockingOCR(texts map[int]string) *blockingOCR {
	return &blockingOCR{started: make(chan int, 8), release: make(chan struct{}), texts: texts}
}

func (o *blockingOCR) ExtractText(_ context.Context, img image.Image) (ocr.Result, error) {
	w := img.Bounds().Dx()
	o.mu.Lock()
	o.widths = append(o.widths, w)
	o.mu.Unlock()
	o.started <- w
	<-o.release
	return ocr.Result{Text: o.texts[w]}, nil
}

func (o *blockingOCR) seen() []int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]int(nil), o.widths...)
}

func crop(w int) *candidate {
	return &candidate{
		crop: frame.New(canvas(w, 10, color.RGBA{}), time.Now()),
		at:   time.Now(),
	}
}

func TestLatestCandidateWinsWhileBusy(t *testing.T) {
	o := newBlockingOCR(map[int]string{10: "Welcome to Cornelia!", 30: "The bridge is out."})
	h := newHarness(t, DefaultConfig(), o, nil)
	ctx := context.Background()

	h.p.dispatch(ctx, crop(10))
	<-o.started
	second := crop(20)
	h.p.dispatch(ctx, second)
	if st := h.p.Status(); !st.Busy || !st.Pending {
		t.Fatalf("status = %+v, want busy with a pending candidate", st)
	}
	h.p.dispatch(ctx, crop(30))

	if second.crop.Image() != nil {
		t.Error("replaced candidate should have been released")
	}

	close(o.release)
	h.p.Wait()

	got := o.seen()
	if len(got) != 2 || got[0] != 10 || got[1] != 30 {
		t.Errorf("ocr widths = %v, want [10 30]", got)
	}
	if n := len(h.emitter.History(0)); n != 2 {
		t.Errorf("emitted %d lines, want 2", n)
	}
	if st := h.p.Status(); st.Busy || st.Pending {
		t.Errorf("status = %+v, want idle", st)
	}
}

func TestStopDiscardsInFlightResult(t *testing.T) {
	o := newBlockingOCR(map[int]string{10: "Welcome to Cornelia!"})
	h := newHarness(t, DefaultConfig(), o, nil)

	h.p.dispatch(context.Background(), crop(10))
	<-o.started
	h.p.Stop()
	close(o.release)
	h.p.Wait()

	if n := len(h.emitter.History(0)); n != 0 {
		t.Errorf("emitted %d lines after Stop, want 0", n)
	}
	if st := h.p.Status(); st.Running || st.Emitted != 0 {
		t.Errorf("status = %+v", st)
	}
}

func TestStartSessionAllowsReemission(t *testing.T) {
	o := &scriptedOCR{texts: []string{"Welcome to Cornelia!"}}
	h := newHarness(t, DefaultConfig(), o, nil)

	h.settle()
	before := h.p.Status().Session
	id := h.p.StartSession()
	if id == before || h.p.Status().Session != id {
		t.Errorf("session id not rolled: before %q, after %q", before, id)
	}
	if h.seen.Len() != 0 {
		t.Error("seen set should be cleared")
	}

	h.settle()
	if n := len(h.emitter.History(0)); n != 2 {
		t.Errorf("emitted %d lines, want the line again in the new session", n)
	}
}

func TestEndSessionPauses(t *testing.T) {
	o := &scriptedOCR{texts: []string{"Welcome to Cornelia!"}}
	h := newHarness(t, DefaultConfig(), o, nil)

	h.p.EndSession()
	h.settle()

	if h.capture.count() != 0 {
		t.Errorf("capture calls = %d while paused, want 0", h.capture.count())
	}
	if !h.p.Status().Paused {
		t.Error("EndSession should pause")
	}

	h.p.SetPaused(false)
	h.settle()
	if h.capture.count() != 2 {
		t.Errorf("capture calls = %d after resume, want 2", h.capture.count())
	}
}

func TestCaptureFailureIsNotFatal(t *testing.T) {
	o := &scriptedOCR{texts: []string{"unused"}}
	h := newHarness(t, DefaultConfig(), o, nil)
	h.capture.err = apperrors.New(apperrors.CodeCaptureUnavailable, "no backend")

	h.p.Tick(context.Background())
	h.p.Tick(context.Background())

	st := h.p.Status()
	if st.CaptureFailures != 2 || st.Frames != 0 || st.Ticks != 2 {
		t.Errorf("status = %+v", st)
	}
}

func TestTickIsNotReentrant(t *testing.T) {
	h := newHarness(t, DefaultConfig(), &scriptedOCR{texts: []string{"x"}}, nil)

	h.p.tickMu.Lock()
	h.p.Tick(context.Background())
	h.p.tickMu.Unlock()

	if h.capture.count() != 0 {
		t.Errorf("overlapping tick captured %d frames, want 0", h.capture.count())
	}
}

func TestOCRErrorAllowsRetry(t *testing.T) {
	o := &scriptedOCR{
		texts: []string{"Welcome to Cornelia!"},
		errs:  []error{apperrors.New(apperrors.CodeOCRUnavailable, "circuit open")},
	}
	h := newHarness(t, DefaultConfig(), o, nil)

	h.settle()
	h.disturb()
	h.settle()

	st := h.p.Status()
	if st.OCRErrors != 1 || st.Emitted != 1 || st.Skipped != 0 {
		t.Errorf("status = %+v, want one error then one emission", st)
	}
}

func TestOCRPanicIsIsolated(t *testing.T) {
	ex := ocr.ExtractorFunc(func(context.Context, image.Image) (ocr.Result, error) {
		panic("engine crashed")
	})
	h := newHarness(t, DefaultConfig(), ex, nil)

	h.settle()

	if st := h.p.Status(); st.OCRErrors != 1 || st.Busy {
		t.Errorf("status = %+v", st)
	}
}

func TestGarbageCounted(t *testing.T) {
	h := newHarness(t, DefaultConfig(), &scriptedOCR{texts: []string{"#$%^&*@!"}}, nil)

	h.settle()

	if st := h.p.Status(); st.Garbage != 1 || st.Emitted != 0 {
		t.Errorf("status = %+v", st)
	}
}

func TestMetricsRecorded(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	h := newHarness(t, DefaultConfig(), &scriptedOCR{texts: []string{"Welcome to Cornelia!"}}, m)
	h.settle()

	got, err := observe.Summary(context.Background(), reader)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	want := map[string]int64{
		observe.NameTicks:                       2,
		observe.NameGateStable:                  1,
		observe.NameDetectHits:                  1,
		observe.NameOCRRequests + "{status=ok}": 1,
		observe.NameLines + "{kind=new}":        1,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %d, want %d", k, got[k], v)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, Config{TickHz: 200}, &scriptedOCR{texts: []string{"Welcome to Cornelia!"}}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.p.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for h.capture.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	h.p.Wait()
	if h.p.Status().Running {
		t.Error("pipeline should not be running after Run returns")
	}
}

func TestConfigInterval(t *testing.T) {
	tests := []struct {
		hz   float64
		want time.Duration
	}{
		{15, time.Second / 15},
		{10, 100 * time.Millisecond},
		{0, time.Second / 15},
	}
	for _, tt := range tests {
		if got := (Config{TickHz: tt.hz}).Interval(); got != tt.want {
			t.Errorf("Interval(%v) = %v, want %v", tt.hz, got, tt.want)
		}
	}
}
