// Package pipeline drives capture, stability gating, region detection and OCR
// on a fixed tick and publishes newly seen lines.
package pipeline

import "time"

// Pipeline defaults
const (
	DefaultTickHz = 15.0

	// A region counts as already read when its dHash lies within this distance of
	// the last dispatched one and every pixel is within DefaultRegionTolerance.
	DefaultRegionHashDistance = 4
	DefaultRegionTolerance    = 8
)

// Config holds scheduler tunables.
type Config struct {
	TickHz             float64 `yaml:"tick_hz"`
	RegionHashDistance int     `yaml:"region_hash_distance"`
	RegionTolerance    int     `yaml:"region_tolerance"`
}

// DefaultConfig returns the scheduler defaults.
func DefaultConfig() Config {
	return Config{
		TickHz:             DefaultTickHz,
		RegionHashDistance: DefaultRegionHashDistance,
		RegionTolerance:    DefaultRegionTolerance,
	}
}

// Interval returns the tick period.
func (c Config) Interval() time.Duration {
	hz := c.TickHz
	if hz <= 0 {
		hz = DefaultTickHz
	}
	return time.Duration(float64(time.Second) / hz)
}
