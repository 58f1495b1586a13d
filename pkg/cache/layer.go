package cache

import (
	"context"
	"time"
)

// Layer is a keyed byte store with expiry. Draft stores, the receipt ledger
// and the shared fund view cache are all built on top of it, so a draft can
// live in memory, Redis or SQL without the caller knowing which.
type Layer interface {
	// Get returns the stored payload, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores the payload. A zero ttl means the layer's default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Name identifies the layer in logs and metrics.
	Name() string

	// Close releases any resources held by the layer.
	Close() error
}

// Entry is a stored payload with its expiry metadata.
type Entry struct {
	Key       string
	Value     []byte
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired reports whether the entry has passed its expiry. Entries with a
// zero ExpiresAt never expire.
func (e *Entry) IsExpired() bool {
	if e.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(e.ExpiresAt)
}

// TimeToLive returns the remaining lifetime, or 0 once expired.
func (e *Entry) TimeToLive() time.Duration {
	if e.ExpiresAt.IsZero() {
		return -1
	}
	if e.IsExpired() {
		return 0
	}
	return time.Until(e.ExpiresAt)
}
