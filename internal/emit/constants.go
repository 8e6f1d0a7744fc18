// Package emit fans newly seen dialogue lines out to subscribers
package emit

import "time"

// Emitter defaults
const (
	DefaultHistorySize      = 64
	DefaultEventBuffer      = 32
	DefaultSubscriberBuffer = 16

	DefaultBatcherMaxSize    = 50
	DefaultBatcherFlushDelay = 2 * time.Second
)

// Config sizes the emitter's queues and the catalog batcher.
type Config struct {
	HistorySize      int           `yaml:"history_size"`
	EventBuffer      int           `yaml:"event_buffer"`
	SubscriberBuffer int           `yaml:"subscriber_buffer"`
	BatchMaxSize     int           `yaml:"batch_max_size"`
	BatchFlushDelay  time.Duration `yaml:"batch_flush_delay"`
}

// DefaultConfig returns the emitter defaults.
func DefaultConfig() Config {
	return Config{
		HistorySize:      DefaultHistorySize,
		EventBuffer:      DefaultEventBuffer,
		SubscriberBuffer: DefaultSubscriberBuffer,
		BatchMaxSize:     DefaultBatcherMaxSize,
		BatchFlushDelay:  DefaultBatcherFlushDelay,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HistorySize <= 0 {
		c.HistorySize = d.HistorySize
	}
	if c.EventBuffer < 0 {
		c.EventBuffer = 0
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = d.SubscriberBuffer
	}
	if c.BatchMaxSize <= 0 {
		c.BatchMaxSize = d.BatchMaxSize
	}
	if c.BatchFlushDelay <= 0 {
		c.BatchFlushDelay = d.BatchFlushDelay
	}
	return c
}
