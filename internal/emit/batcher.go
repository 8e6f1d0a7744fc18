package emit

import (
	"context"
	"sync"
	"time"

	"github.com/gamewatcher/watcher/internal/dedup"
	"github.com/gamewatcher/watcher/internal/trace"
)

// BatchSink persists batches of lines, typically a catalog writer.
type BatchSink interface {
	StoreLines(ctx context.Context, lines []dedup.Line) (int, error)
}

// BatchSinkFunc adapts a function to BatchSink.
type BatchSinkFunc func(ctx context.Context, lines []dedup.Line) (int, error)

// StoreLines calls f.
func (f BatchSinkFunc) StoreLines(ctx context.Context, lines []dedup.Line) (int, error) {
	return f(ctx, lines)
}

// Batcher accumulates lines and flushes them in batches.
type Batcher struct {
	sink       BatchSink
	maxSize    int
	flushDelay time.Duration
	mu         sync.Mutex
	lines      []dedup.Line
	timer      *time.Timer
	stopped    bool // flushes after Stop store inline instead of in a goroutine
	wg         sync.WaitGroup
}

// NewBatcher creates a line batcher.
func NewBatcher(sink BatchSink, maxSize int, flushDelay time.Duration) *Batcher {
	if maxSize <= 0 {
		maxSize = DefaultBatcherMaxSize
	}
	if flushDelay <= 0 {
		flushDelay = DefaultBatcherFlushDelay
	}
	return &Batcher{
		sink:       sink,
		maxSize:    maxSize,
		flushDelay: flushDelay,
		lines:      make([]dedup.Line, 0, maxSize),
	}
}

// Add queues a line. It has the Handler signature so a Batcher can be passed
// straight to Emitter.Subscribe.
func (b *Batcher) Add(line dedup.Line) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines = append(b.lines, line)

	if len(b.lines) >= b.maxSize {
		b.flushLocked()
		return
	}

	if b.stopped {
		b.flushLocked()
		return
	}
	if b.timer == nil {
		b.timer = time.AfterFunc(b.flushDelay, b.timerFlush)
	} else {
		b.timer.Reset(b.flushDelay)
	}
}

func (b *Batcher) timerFlush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

func (b *Batcher) flushLocked() {
	if len(b.lines) == 0 {
		return
	}
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	lines := b.lines
	b.lines = make([]dedup.Line, 0, b.maxSize)

	if b.stopped {
		b.store(lines)
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.store(lines)
	}()
}

func (b *Batcher) store(lines []dedup.Line) {
	ctx, span := trace.StartSpan(context.Background(), "line_batch_flush")
	defer span.End()
	span.SetAttr("count", len(lines))

	log := trace.Logger(ctx)
	stored, err := b.sink.StoreLines(ctx, lines)
	if err != nil {
		span.SetError(err)
		log.Warn("batch line store failed", "error", err, "count", len(lines))
	} else {
		log.Debug("batch lines stored", "stored", stored, "submitted", len(lines))
	}
}

// Flush forces immediate flush of pending lines.
func (b *Batcher) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

// Pending returns the number of lines waiting for a flush.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// Stop flushes remaining lines and waits for in-flight stores. Lines added
// afterwards are stored synchronously by Add.
func (b *Batcher) Stop() {
	b.mu.Lock()
	b.flushLocked()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.stopped = true
	b.mu.Unlock()

	b.wg.Wait()
}
