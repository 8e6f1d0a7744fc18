package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"golang.org/x/sync/errgroup"

	"github.com/gamewatcher/watcher/internal/config"
	"github.com/gamewatcher/watcher/internal/dedup"
	"github.com/gamewatcher/watcher/internal/detect"
	"github.com/gamewatcher/watcher/internal/emit"
	apperrors "github.com/gamewatcher/watcher/internal/errors"
	"github.com/gamewatcher/watcher/internal/gate"
	"github.com/gamewatcher/watcher/internal/observe"
	"github.com/gamewatcher/watcher/internal/ocr"
	"github.com/gamewatcher/watcher/internal/pipeline"
	"github.com/gamewatcher/watcher/internal/screen"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var target targetFlags
	var backend string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch a window and print new dialogue lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if backend != "" {
				cfg.OCR.Backend = backend
				if err := cfg.Validate(); err != nil {
					return apperrors.Wrap(err, apperrors.CodeConfigInvalid, "--ocr")
				}
			}
			h, err := target.resolve(cfg.WindowTitle)
			if err != nil {
				return err
			}
			return runWatcher(cmd.Context(), cmd.OutOrStdout(), cfg, screen.NewPlatform(), h)
		},
	}
	target.register(cmd)
	cmd.Flags().StringVar(&backend, "ocr", "", "OCR backend override (grpc, tesseract)")
	return cmd
}

// runWatcher wires the pipeline and blocks until SIGINT/SIGTERM or ctx ends.
func runWatcher(parent context.Context, out io.Writer, cfg *config.Config, platform screen.Platform, h screen.Handle) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	corners, err := detect.NewRegistry().LoadCorners(cfg.Detect.Templates)
	if err != nil {
		return err
	}

	extractor, closer, err := newExtractor(ctx, cfg.OCR)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	chain := platform.Chain(cfg.Screen).WithObserver(func(kind screen.Kind, err error) {
		if err != nil {
			metrics.CaptureFailure(context.Background(), kind.String())
			return
		}
		metrics.Frame(context.Background(), kind.String())
	})
	defer chain.Close()

	emitter := emit.New(cfg.Emit)
	batcher := emit.NewBatcher(logSink{}, cfg.Emit.BatchMaxSize, cfg.Emit.BatchFlushDelay)
	emitter.Subscribe("stdout", func(l dedup.Line) {
		fmt.Fprintf(out, "%s\t%s\t%s\n", l.FirstSeen.Format("15:04:05"), l.ID, l.Text)
	}, 0)
	emitter.Subscribe("catalog", batcher.Add, 0)

	p := pipeline.New(cfg.Pipeline, pipeline.Deps{
		Capture:  chain,
		Handle:   h,
		Gate:     gate.New(cfg.Gate),
		Detector: detect.New(cfg.Detect, corners),
		OCR:      ocr.WithTimeout(extractor, cfg.OCR.Timeout),
		Seen:     dedup.NewSeenSet(cfg.Dedup),
		Emitter:  emitter,
		Metrics:  metrics,
	})
	slog.Info("watcher starting", "handle", h, "ocr", cfg.OCR.Backend, "tick_hz", cfg.Pipeline.TickHz, "session", p.Status().Session)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Run(gctx) })
	g.Go(func() error { return reportStatus(gctx, p, chain, statusInterval) })
	err = g.Wait()

	slog.Info("shutting down...")
	p.Wait()
	emitter.Close()
	batcher.Stop()
	logSummary(reader, p.Status())
	slog.Info("shutdown complete")
	return err
}

const statusInterval = 30 * time.Second

// reportStatus logs a pipeline snapshot every interval until ctx ends.
func reportStatus(ctx context.Context, p *pipeline.Pipeline, chain *screen.Chain, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			st := p.Status()
			slog.Debug("pipeline status", "backend", chain.Active(), "gate", st.Gate, "region", st.LastRegion, "busy", st.Busy,
				"ticks", st.Ticks, "capture_failures", st.CaptureFailures, "emitted", st.Emitted, "last", st.LastText)
		}
	}
}

// newExtractor builds the configured OCR backend.
func newExtractor(ctx context.Context, cfg ocr.Config) (ocr.Extractor, io.Closer, error) {
	switch cfg.Backend {
	case "tesseract":
		t, err := ocr.NewTesseract(cfg)
		if err != nil {
			return nil, nil, err
		}
		return t, t, nil
	default:
		c, err := ocr.NewGRPCClient(cfg)
		if err != nil {
			return nil, nil, err
		}
		hctx, cancel := context.WithTimeout(ctx, ocr.HealthCheckTimeout)
		defer cancel()
		if err := c.Healthy(hctx); err != nil {
			slog.Warn("ocr service not ready; lines will appear once it is", "addr", cfg.Addr, "error", err)
		}
		return c, c, nil
	}
}

// logSink stands in for a catalog writer: batches are logged, not stored.
type logSink struct{}

func (logSink) StoreLines(ctx context.Context, lines []dedup.Line) (int, error) {
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ID
	}
	slog.Info("line batch ready", "count", len(lines), "ids", ids)
	return len(lines), nil
}

func logSummary(reader *sdkmetric.ManualReader, st pipeline.Status) {
	sum, err := observe.Summary(context.Background(), reader)
	if err != nil {
		slog.Warn("collect metrics", "error", err)
	}
	args := []any{"ticks", st.Ticks, "frames", st.Frames, "emitted", st.Emitted, "duplicates", st.Duplicates, "garbage", st.Garbage}
	for k, v := range sum {
		args = append(args, k, v)
	}
	slog.Info("session summary", args...)
}
