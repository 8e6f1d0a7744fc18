package resilience

import "time"

// Circuit breaker configuration constants
const (
	// OCR service defaults
	DefaultThreshold         = 5
	DefaultResetTimeout      = 30 * time.Second
	DefaultHalfOpenSuccesses = 3

	// Capture backend cooldown: one failure opens, one success closes
	DefaultBackendCooldown = 2 * time.Second
)

// Config holds circuit breaker settings.
type Config struct {
	Threshold         int           // failures before opening
	ResetTimeout      time.Duration // wait before half-open attempt
	HalfOpenSuccesses int           // successes needed to close
}

// DefaultConfig returns the settings used around the OCR service.
func DefaultConfig() Config {
	return Config{
		Threshold:         DefaultThreshold,
		ResetTimeout:      DefaultResetTimeout,
		HalfOpenSuccesses: DefaultHalfOpenSuccesses,
	}
}

// CooldownConfig returns settings that turn a breaker into a plain cooldown window:
// the first failure opens it for d, the first success after that closes it.
func CooldownConfig(d time.Duration) Config {
	if d <= 0 {
		d = DefaultBackendCooldown
	}
	return Config{Threshold: 1, ResetTimeout: d, HalfOpenSuccesses: 1}
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = DefaultHalfOpenSuccesses
	}
	return c
}
