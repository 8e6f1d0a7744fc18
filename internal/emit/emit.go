package emit

import (
	"context"
	"sync"
	"time"

	"github.com/gamewatcher/watcher/internal/dedup"
	"github.com/gamewatcher/watcher/internal/trace"
)

// Handler receives one emitted line on its subscriber's goroutine.
type Handler func(line dedup.Line)

type subscriber struct {
	name  string
	fn    Handler
	queue chan dedup.Line
}

// Emitter registers new lines and delivers them to subscribers without ever
// blocking the caller.
type Emitter struct {
	cfg Config

	mu      sync.Mutex
	closed  bool
	history []dedup.Line
	head    int // next write position once history is full
	subs    map[uint64]*subscriber
	nextSub uint64
	events  chan dedup.Line

	wg sync.WaitGroup
}

// New creates an emitter.
func New(cfg Config) *Emitter {
	cfg = cfg.withDefaults()
	return &Emitter{
		cfg:     cfg,
		history: make([]dedup.Line, 0, cfg.HistorySize),
		subs:    make(map[uint64]*subscriber),
		events:  make(chan dedup.Line, cfg.EventBuffer),
	}
}

// Emit registers a line and queues it for every subscriber. The returned ID is
// the line's stable ID, available before any subscriber has run.
func (e *Emitter) Emit(text, raw string, at time.Time) string {
	line := dedup.Line{
		ID:          dedup.StableID(text),
		Text:        text,
		Raw:         raw,
		FirstSeen:   at,
		LastSeen:    at,
		Occurrences: 1,
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return line.ID
	}

	e.remember(line)
	for _, s := range e.subs {
		select {
		case s.queue <- line:
		default:
			trace.Logger(context.Background()).Debug("subscriber queue full, dropping line", "subscriber", s.name, "id", line.ID)
		}
	}
	select {
	case e.events <- line:
	default:
	}
	return line.ID
}

// Subscribe starts a goroutine that feeds fn from a queue of the given size
// (DefaultSubscriberBuffer when <= 0). The returned cancel stops delivery after
// the queued lines drain.
func (e *Emitter) Subscribe(name string, fn Handler, buffer int) (cancel func()) {
	if buffer <= 0 {
		buffer = e.cfg.SubscriberBuffer
	}
	s := &subscriber{name: name, fn: fn, queue: make(chan dedup.Line, buffer)}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		close(s.queue)
		return func() {}
	}
	id := e.nextSub
	e.nextSub++
	e.subs[id] = s
	e.wg.Add(1)
	e.mu.Unlock()

	go e.deliver(s)

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if cur, ok := e.subs[id]; ok {
				delete(e.subs, id)
				close(cur.queue)
			}
		})
	}
}

func (e *Emitter) deliver(s *subscriber) {
	defer e.wg.Done()
	for line := range s.queue {
		e.call(s, line)
	}
}

func (e *Emitter) call(s *subscriber, line dedup.Line) {
	defer func() {
		if r := recover(); r != nil {
			trace.Logger(context.Background()).Warn("subscriber panicked", "subscriber", s.name, "panic", r)
		}
	}()
	s.fn(line)
}

// Events returns a convenience channel that receives every line while it has
// room. It is closed by Close.
func (e *Emitter) Events() <-chan dedup.Line {
	return e.events
}

// History returns up to n of the most recent lines, oldest first. n <= 0 returns
// everything retained.
func (e *Emitter) History(n int) []dedup.Line {
	e.mu.Lock()
	defer e.mu.Unlock()

	ordered := make([]dedup.Line, 0, len(e.history))
	ordered = append(ordered, e.history[e.head:]...)
	ordered = append(ordered, e.history[:e.head]...)
	if n > 0 && n < len(ordered) {
		ordered = ordered[len(ordered)-n:]
	}
	return ordered
}

// Close stops accepting lines, lets every subscriber drain its queue and waits
// for the subscriber goroutines to exit.
func (e *Emitter) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	for id, s := range e.subs {
		delete(e.subs, id)
		close(s.queue)
	}
	close(e.events)
	e.mu.Unlock()

	e.wg.Wait()
}

func (e *Emitter) remember(line dedup.Line) {
	if len(e.history) < e.cfg.HistorySize {
		e.history = append(e.history, line)
		return
	}
	e.history[e.head] = line
	e.head = (e.head + 1) % len(e.history)
}
