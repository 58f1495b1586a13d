package bloom

import (
	"context"
	"sync"
	"time"

	"fundwizard/pkg/cache"

	"github.com/bits-and-blooms/bloom/v3"
)

// Layer puts a bloom filter in front of a cache.Layer so lookups for keys
// that were never written are answered without touching the backing store.
// The receipt ledger uses it: almost every submission asks "has this token
// already concluded?" and the answer is almost always no.
//
// The filter only knows keys written through this Layer. Wrap a layer whose
// contents are populated exclusively through it, or Seed it at startup.
type Layer struct {
	layer    cache.Layer
	filter   *bloom.BloomFilter
	capacity uint
	fpRate   float64
	mu       sync.RWMutex

	totalQueries   uint64
	bloomRejected  uint64
	falsePositives uint64
}

// New wraps layer with a filter sized for expectedItems at falsePositiveRate.
func New(layer cache.Layer, expectedItems uint, falsePositiveRate float64) *Layer {
	if expectedItems == 0 {
		expectedItems = 10000
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}

	return &Layer{
		layer:    layer,
		filter:   bloom.NewWithEstimates(expectedItems, falsePositiveRate),
		capacity: expectedItems,
		fpRate:   falsePositiveRate,
	}
}

// Name returns "bloom(<inner>)".
func (bl *Layer) Name() string {
	return "bloom(" + bl.layer.Name() + ")"
}

// Get answers ErrKeyNotFound directly when the filter rules the key out.
func (bl *Layer) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bl.mu.Lock()
	bl.totalQueries++
	if !bl.filter.TestString(key) {
		bl.bloomRejected++
		bl.mu.Unlock()
		return nil, cache.ErrKeyNotFound
	}
	bl.mu.Unlock()

	value, err := bl.layer.Get(ctx, key)
	if cache.IsNotFound(err) {
		bl.mu.Lock()
		bl.falsePositives++
		bl.mu.Unlock()
	}

	return value, err
}

// Set records key in the filter, then writes through.
func (bl *Layer) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	bl.Seed(key)

	return bl.layer.Set(ctx, key, value, ttl)
}

// Seed adds keys to the filter without writing anything.
func (bl *Layer) Seed(keys ...string) {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	for _, k := range keys {
		bl.filter.AddString(k)
	}
}

// Delete writes through. Bloom filters cannot forget, so the key keeps
// passing the filter and later Gets fall through to the inner layer.
func (bl *Layer) Delete(ctx context.Context, key string) error {
	return bl.layer.Delete(ctx, key)
}

// Close closes the inner layer.
func (bl *Layer) Close() error {
	return bl.layer.Close()
}

// Reset empties the filter and the counters.
func (bl *Layer) Reset() {
	bl.mu.Lock()
	defer bl.mu.Unlock()

	bl.filter = bloom.NewWithEstimates(bl.capacity, bl.fpRate)
	bl.totalQueries = 0
	bl.bloomRejected = 0
	bl.falsePositives = 0
}

// Stats describes how well the filter is doing.
type Stats struct {
	TotalQueries      uint64
	BloomRejected     uint64
	FalsePositives    uint64
	RejectionRate     float64
	FalsePositiveRate float64
}

// Stats returns the current counters.
func (bl *Layer) Stats() Stats {
	bl.mu.RLock()
	defer bl.mu.RUnlock()

	s := Stats{
		TotalQueries:   bl.totalQueries,
		BloomRejected:  bl.bloomRejected,
		FalsePositives: bl.falsePositives,
	}
	if bl.totalQueries > 0 {
		s.RejectionRate = float64(bl.bloomRejected) / float64(bl.totalQueries)
		if queried := bl.totalQueries - bl.bloomRejected; queried > 0 {
			s.FalsePositiveRate = float64(bl.falsePositives) / float64(queried)
		}
	}
	return s
}
