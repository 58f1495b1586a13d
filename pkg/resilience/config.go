package resilience

import (
	"fmt"
	"time"
)

// Config configures a Guard.
type Config struct {
	// Timeout bounds every guarded call. Zero disables the bound.
	Timeout time.Duration `yaml:"timeout"`

	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	// MaxRequests is how many calls pass while half-open.
	MaxRequests uint32 `yaml:"max_requests"`

	// Interval is the closed-state period after which counts reset. Zero
	// never resets.
	Interval time.Duration `yaml:"interval"`

	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration `yaml:"open_timeout"`

	// MinRequests is the sample size required before FailureRatio applies.
	MinRequests uint32 `yaml:"min_requests"`

	// FailureRatio trips the breaker once reached over MinRequests calls.
	FailureRatio float64 `yaml:"failure_ratio"`

	// ConsecutiveFailures trips the breaker regardless of ratio. Zero
	// disables the rule.
	ConsecutiveFailures uint32 `yaml:"consecutive_failures"`

	// ReadyToTrip overrides the ratio and consecutive rules when set.
	ReadyToTrip func(counts Counts) bool `yaml:"-"`
}

// Counts mirrors the breaker's request counters.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// DefaultConfig suits the remote fund service: a 10s bound per call and a
// breaker that opens on 5 straight failures or a 50% failure rate over 10
// calls.
func DefaultConfig() Config {
	return Config{
		Timeout: 10 * time.Second,
		Breaker: BreakerConfig{
			MaxRequests:         1,
			Interval:            time.Minute,
			OpenTimeout:         30 * time.Second,
			MinRequests:         10,
			FailureRatio:        0.5,
			ConsecutiveFailures: 5,
		},
	}
}

// DefaultLayerConfig suits a durable draft backing (Redis or SQL), which
// should answer well inside a second.
func DefaultLayerConfig() Config {
	return Config{
		Timeout: time.Second,
		Breaker: BreakerConfig{
			MaxRequests:         5,
			Interval:            time.Minute,
			OpenTimeout:         15 * time.Second,
			MinRequests:         20,
			FailureRatio:        0.15,
			ConsecutiveFailures: 10,
		},
	}
}

// Validate checks for settings the breaker cannot honour.
func (c Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("resilience: negative timeout %v", c.Timeout)
	}
	if c.Breaker.FailureRatio < 0 || c.Breaker.FailureRatio > 1 {
		return fmt.Errorf("resilience: failure ratio %v outside [0,1]", c.Breaker.FailureRatio)
	}
	if c.Breaker.OpenTimeout < 0 || c.Breaker.Interval < 0 {
		return fmt.Errorf("resilience: negative breaker period")
	}
	return nil
}

// WithTimeout returns a copy of the config with the specified timeout.
func (c Config) WithTimeout(timeout time.Duration) Config {
	c.Timeout = timeout
	return c
}

// tripFunc resolves the rule the breaker uses to open.
func (b BreakerConfig) tripFunc() func(Counts) bool {
	if b.ReadyToTrip != nil {
		return b.ReadyToTrip
	}
	return func(c Counts) bool {
		if b.ConsecutiveFailures > 0 && c.ConsecutiveFailures >= b.ConsecutiveFailures {
			return true
		}
		if b.FailureRatio <= 0 || c.Requests < b.MinRequests || c.Requests == 0 {
			return false
		}
		return float64(c.TotalFailures)/float64(c.Requests) >= b.FailureRatio
	}
}
