// Package observe holds the watcher's OpenTelemetry metric instruments.
//
// Instruments are created from a caller-supplied [metric.MeterProvider] so tests
// can read them back through an sdk ManualReader. [Noop] returns instruments
// that record nothing.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope name used for all watcher metrics.
const meterName = "github.com/gamewatcher/watcher"

// Metric names.
const (
	NameTicks           = "watcher.ticks"
	NameCaptureFailures = "watcher.capture.failures"
	NameCaptureFrames   = "watcher.capture.frames"
	NameGateStable      = "watcher.gate.stable"
	NameDetectHits      = "watcher.detect.hits"
	NameDetectMisses    = "watcher.detect.misses"
	NameOCRRequests     = "watcher.ocr.requests"
	NameOCRDuration     = "watcher.ocr.duration"
	NameLines           = "watcher.lines"
)

// Metrics holds every instrument the pipeline records to. All fields are safe
// for concurrent use.
type Metrics struct {
	// Ticks counts scheduler ticks that ran (skipped re-entrant ticks excluded).
	Ticks metric.Int64Counter

	// CaptureFailures counts failed backend attempts. Attribute: backend.
	CaptureFailures metric.Int64Counter

	// CaptureFrames counts usable frames. Attribute: backend.
	CaptureFrames metric.Int64Counter

	GateStable   metric.Int64Counter
	DetectHits   metric.Int64Counter
	DetectMisses metric.Int64Counter

	// OCRRequests counts OCR calls. Attribute: status (ok, error, skipped).
	OCRRequests metric.Int64Counter

	// OCRDuration tracks OCR latency in seconds.
	OCRDuration metric.Float64Histogram

	// Lines counts processed OCR results. Attribute: kind (new, duplicate, garbage).
	Lines metric.Int64Counter
}

// ocrBuckets are histogram boundaries in seconds for OCR round trips.
var ocrBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates all instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.Ticks, NameTicks, "Scheduler ticks processed."},
		{&met.CaptureFailures, NameCaptureFailures, "Failed capture attempts by backend."},
		{&met.CaptureFrames, NameCaptureFrames, "Usable frames captured by backend."},
		{&met.GateStable, NameGateStable, "Ticks on which the frame was stable enough for detection."},
		{&met.DetectHits, NameDetectHits, "Ticks with a detected dialogue region."},
		{&met.DetectMisses, NameDetectMisses, "Eligible ticks without a dialogue region."},
		{&met.OCRRequests, NameOCRRequests, "OCR requests by status."},
		{&met.Lines, NameLines, "Processed OCR lines by kind."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.OCRDuration, err = m.Float64Histogram(NameOCRDuration,
		metric.WithDescription("Latency of OCR extraction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(ocrBuckets...),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// Noop returns instruments backed by a no-op provider.
func Noop() *Metrics {
	m, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		panic("observe: noop metrics: " + err.Error())
	}
	return m
}

// Frame records a usable frame from backend.
func (m *Metrics) Frame(ctx context.Context, backend string) {
	m.CaptureFrames.Add(ctx, 1, metric.WithAttributes(attribute.String("backend", backend)))
}

// CaptureFailure records a failed attempt on backend.
func (m *Metrics) CaptureFailure(ctx context.Context, backend string) {
	m.CaptureFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("backend", backend)))
}

// OCR records one OCR request outcome and, unless skipped, its latency.
func (m *Metrics) OCR(ctx context.Context, status string, d time.Duration) {
	m.OCRRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	if status != StatusSkipped {
		m.OCRDuration.Record(ctx, d.Seconds())
	}
}

// Line records one processed OCR result of the given kind.
func (m *Metrics) Line(ctx context.Context, kind string) {
	m.Lines.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// OCR request statuses.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
)
