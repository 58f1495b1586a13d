package memory

import (
	"context"
	"sync"
	"time"

	"fundwizard/pkg/cache"
)

// Cache is a process-local cache.Layer with TTL expiry and optional LRU
// eviction. It is the volatile backing for drafts and the L1 of the fund view
// chain; its contents do not survive a restart.
type Cache struct {
	data map[string]*entry
	mu   sync.RWMutex

	config Config

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	wg            sync.WaitGroup
	closeOnce     sync.Once
}

type entry struct {
	value      []byte
	expiresAt  time.Time
	accessedAt time.Time
}

// Config configures a memory Cache.
type Config struct {
	// Name is the layer name reported in logs and metrics.
	Name string `yaml:"name"`

	// MaxSize bounds the number of entries. Zero means unlimited.
	MaxSize int `yaml:"max_size"`

	// DefaultTTL applies when Set is called with ttl <= 0.
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// CleanupInterval is how often expired entries are purged.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// New creates a Cache and starts its background cleanup goroutine. Close
// must be called to stop it.
func New(config Config) *Cache {
	if config.Name == "" {
		config.Name = "memory"
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = time.Hour
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Minute
	}

	c := &Cache{
		data:          make(map[string]*entry),
		config:        config,
		stopCleanup:   make(chan struct{}),
		cleanupTicker: time.NewTicker(config.CleanupInterval),
	}

	c.wg.Add(1)
	go c.cleanup()

	return c
}

// Get returns a copy of the stored payload.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := cache.ValidateKey(key); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[key]
	if !ok {
		return nil, cache.ErrKeyNotFound
	}

	now := time.Now()
	if now.After(e.expiresAt) {
		delete(c.data, key)
		return nil, cache.ErrKeyNotFound
	}

	e.accessedAt = now
	return append([]byte(nil), e.value...), nil
}

// Set stores a copy of value, evicting the least recently used entry when
// the cache is full.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}

	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.data[key]; !exists && c.config.MaxSize > 0 && len(c.data) >= c.config.MaxSize {
		c.evictLRU()
	}

	c.data[key] = &entry{
		value:      append([]byte(nil), value...),
		expiresAt:  now.Add(ttl),
		accessedAt: now,
	}

	return nil
}

// evictLRU drops the least recently accessed entry. Callers hold mu.
func (c *Cache) evictLRU() {
	var (
		lruKey  string
		lruTime time.Time
	)
	for k, e := range c.data {
		if lruKey == "" || e.accessedAt.Before(lruTime) {
			lruKey = k
			lruTime = e.accessedAt
		}
	}
	if lruKey != "" {
		delete(c.data, lruKey)
	}
}

// Delete removes key. Missing keys are not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()

	return nil
}

// Clear drops every entry.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.data = make(map[string]*entry)
	c.mu.Unlock()
	return nil
}

// Name returns the configured layer name.
func (c *Cache) Name() string {
	return c.config.Name
}

// Close stops the cleanup goroutine and drops all data. It is safe to call
// more than once.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		c.cleanupTicker.Stop()
		close(c.stopCleanup)
		c.wg.Wait()

		c.mu.Lock()
		c.data = make(map[string]*entry)
		c.mu.Unlock()
	})
	return nil
}

func (c *Cache) cleanup() {
	defer c.wg.Done()

	for {
		select {
		case <-c.cleanupTicker.C:
			c.removeExpired()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *Cache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, e := range c.data {
		if now.After(e.expiresAt) {
			delete(c.data, key)
		}
	}
}

// Stats is a point-in-time view of the cache size.
type Stats struct {
	Size    int // current number of entries
	MaxSize int // configured bound, 0 = unlimited
}

// Stats returns the current size.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Stats{
		Size:    len(c.data),
		MaxSize: c.config.MaxSize,
	}
}
