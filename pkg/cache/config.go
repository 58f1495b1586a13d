package cache

import (
	"fmt"
	"time"
)

// LayerConfig describes how long entries live in one use of a layer. The
// draft store, receipt ledger and view cache each carry their own.
type LayerConfig struct {
	// Name identifies the use in logs, e.g. "drafts" or "views".
	Name string `yaml:"name"`

	// DefaultTTL applies when a caller passes ttl <= 0.
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// MaxTTL caps requested lifetimes. Zero means no cap.
	MaxTTL time.Duration `yaml:"max_ttl"`
}

// Validate rejects negative durations and a default above the cap.
func (c *LayerConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidValue)
	}
	if c.DefaultTTL < 0 || c.MaxTTL < 0 {
		return fmt.Errorf("%w: ttl must not be negative", ErrInvalidValue)
	}
	if c.MaxTTL > 0 && c.DefaultTTL > c.MaxTTL {
		return fmt.Errorf("%w: default ttl exceeds max ttl", ErrInvalidValue)
	}
	return nil
}

// EffectiveTTL resolves a requested ttl against the default and the cap.
func (c *LayerConfig) EffectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return c.DefaultTTL
	}
	if c.MaxTTL > 0 && ttl > c.MaxTTL {
		return c.MaxTTL
	}
	return ttl
}
