package resilience

import "time"

const (
	DefaultThreshold         = 3
	DefaultResetTimeout      = 30 * time.Second
	DefaultHalfOpenSuccesses = 1
)

// Config holds circuit breaker settings.
type Config struct {
	Name              string
	Threshold         int           // consecutive failures before opening
	ResetTimeout      time.Duration // wait before half-open attempt
	HalfOpenSuccesses int           // successes needed to close
}

// DefaultConfig returns the engine breaker defaults.
func DefaultConfig() Config {
	return Config{
		Name:              "engine",
		Threshold:         DefaultThreshold,
		ResetTimeout:      DefaultResetTimeout,
		HalfOpenSuccesses: DefaultHalfOpenSuccesses,
	}
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
