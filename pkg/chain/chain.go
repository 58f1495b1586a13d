package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"fundwizard/pkg/cache"
	"fundwizard/pkg/logging"
	"fundwizard/pkg/metrics"
	"fundwizard/pkg/resilience"
	"fundwizard/pkg/writer"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Loader fetches a view from its source of truth on a chain miss.
type Loader func(ctx context.Context) ([]byte, error)

// Config configures a Chain.
type Config struct {
	// DefaultTTL applies when a caller passes ttl <= 0. Default 5m.
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// LoadTimeout bounds a shared load so one caller's cancellation does
	// not fail everyone waiting on the same key. Default 10s.
	LoadTimeout time.Duration `yaml:"load_timeout"`

	// TTLDecay, when in (0,1), gives faster layers shorter lifetimes.
	TTLDecay float64 `yaml:"ttl_decay"`

	// Guard wraps every layer with a breaker. The first layer's timeout is
	// capped at 100ms.
	Guard resilience.Config `yaml:"guard"`

	Writer writer.Config `yaml:"writer"`
}

// DefaultConfig returns the defaults described on Config.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:  5 * time.Minute,
		LoadTimeout: 10 * time.Second,
		Guard:       resilience.DefaultLayerConfig(),
		Writer:      writer.DefaultConfig(),
	}
}

// Chain is the shared view cache for fund listings, fund details, fund
// history and the home summary. Layers are ordered fastest first. A hit in a
// slower layer is copied up in the background; a miss everywhere calls the
// Loader once per key no matter how many readers are waiting.
//
// Delete is the invalidation primitive: once it returns, no read started
// before it can repopulate the deleted keys.
type Chain struct {
	layers  []cache.Layer
	writers []*writer.AsyncWriter
	sf      singleflight.Group
	config  Config
	ttl     TTLPolicy
	metrics metrics.Collector
	logger  *logging.Logger

	// genMu orders "may I cache this load?" against Delete.
	genMu sync.Mutex
	gens  map[string]uint64
}

// New builds a chain over layers.
func New(config Config, collector metrics.Collector, logger *logging.Logger, layers ...cache.Layer) (*Chain, error) {
	if len(layers) == 0 {
		return nil, errors.New("chain: at least one layer required")
	}

	def := DefaultConfig()
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = def.DefaultTTL
	}
	if config.LoadTimeout <= 0 {
		config.LoadTimeout = def.LoadTimeout
	}
	if err := config.Guard.Validate(); err != nil {
		return nil, fmt.Errorf("chain: %w", err)
	}

	collector = metrics.OrNoOp(collector)
	logger = logging.OrGlobal(logger)

	c := &Chain{
		layers:  make([]cache.Layer, len(layers)),
		writers: make([]*writer.AsyncWriter, len(layers)),
		config:  config,
		ttl:     UniformTTL{},
		metrics: collector,
		logger:  logger.Named("chain"),
		gens:    make(map[string]uint64),
	}
	if config.TTLDecay > 0 && config.TTLDecay < 1 {
		c.ttl = DecayingTTL{Factor: config.TTLDecay}
	}

	for i, layer := range layers {
		guard := config.Guard
		if i == 0 && (guard.Timeout <= 0 || guard.Timeout > 100*time.Millisecond) {
			guard = guard.WithTimeout(100 * time.Millisecond)
		}
		guarded := resilience.NewLayer(layer, guard, collector, logger)
		c.layers[i] = guarded
		c.writers[i] = writer.New(guarded, config.Writer, collector, logger)
	}

	return c, nil
}

// WithTTLPolicy replaces the per-layer TTL policy.
func (c *Chain) WithTTLPolicy(p TTLPolicy) *Chain {
	if p != nil {
		c.ttl = p
	}
	return c
}

// Get returns the view stored under key, or cache.ErrKeyNotFound.
func (c *Chain) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	v, idx, err := c.lookup(ctx, key)
	c.metrics.RecordViewGet(err == nil, idx, time.Since(start))
	return v, err
}

// GetOrLoad returns the cached view for key, loading and caching it on a
// miss. Concurrent callers for the same key share one load.
func (c *Chain) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load Loader) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}

	start := time.Now()
	if v, idx, err := c.lookup(ctx, key); err == nil {
		c.metrics.RecordViewGet(true, idx, time.Since(start))
		return v, nil
	}
	c.metrics.RecordViewGet(false, -1, time.Since(start))

	ch := c.sf.DoChan("load:"+key, func() (interface{}, error) {
		c.genMu.Lock()
		gen := c.gens[key]
		c.genMu.Unlock()

		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.LoadTimeout)
		defer cancel()

		v, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		c.store(key, v, ttl, gen)
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// lookup walks the layers. The returned index is -1 on a miss.
func (c *Chain) lookup(ctx context.Context, key string) ([]byte, int, error) {
	type hit struct {
		value []byte
		index int
	}

	res, err, _ := c.sf.Do("get:"+key, func() (interface{}, error) {
		c.genMu.Lock()
		gen := c.gens[key]
		c.genMu.Unlock()

		var lastErr error = cache.ErrKeyNotFound

		for i, layer := range c.layers {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			v, err := layer.Get(ctx, key)
			if err != nil {
				if !cache.IsNotFound(err) {
					c.logger.Debug("layer get failed, trying next",
						zap.String("layer", layer.Name()),
						zap.String("key", key),
						zap.Error(err),
					)
					lastErr = err
				}
				continue
			}

			if i > 0 {
				c.warm(ctx, key, v, i, gen)
			}
			return hit{value: v, index: i}, nil
		}
		return nil, lastErr
	})
	if err != nil {
		return nil, -1, err
	}

	h := res.(hit)
	return h.value, h.index, nil
}

// warm copies a value found at hitIndex into the faster layers unless key
// was deleted since gen.
func (c *Chain) warm(ctx context.Context, key string, value []byte, hitIndex int, gen uint64) {
	c.genMu.Lock()
	defer c.genMu.Unlock()

	if c.gens[key] != gen {
		return
	}

	for i := hitIndex - 1; i >= 0; i-- {
		ttl := c.ttl.TTL(i, len(c.layers), c.config.DefaultTTL)
		if err := c.writers[i].Write(ctx, key, value, ttl); err != nil {
			c.logger.Debug("warm-up write not queued",
				zap.String("layer", c.layers[i].Name()),
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
}

// store queues value into every layer unless key was deleted since gen.
func (c *Chain) store(key string, value []byte, ttl time.Duration, gen uint64) {
	c.genMu.Lock()
	defer c.genMu.Unlock()

	if c.gens[key] != gen {
		c.logger.Debug("discarding load for invalidated key", zap.String("key", key))
		return
	}

	for i := range c.layers {
		layerTTL := c.ttl.TTL(i, len(c.layers), ttl)
		if err := c.writers[i].Write(context.Background(), key, value, layerTTL); err != nil {
			c.logger.Warn("view write not queued",
				zap.String("layer", c.layers[i].Name()),
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
}

// Delete removes keys from every layer. Loads and warm-ups already in flight
// for those keys are discarded rather than written back. Every layer is
// attempted; failures are joined.
func (c *Chain) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	c.genMu.Lock()
	for _, k := range keys {
		c.gens[k]++
		c.sf.Forget("get:" + k)
		c.sf.Forget("load:" + k)
	}
	c.genMu.Unlock()

	var errs []error
	for i, layer := range c.layers {
		for _, k := range keys {
			c.writers[i].Invalidate(k)
		}
		if err := cache.DeleteMany(ctx, layer, keys); err != nil {
			errs = append(errs, cache.WrapError(err, layer.Name(), "delete"))
		}
	}
	return errors.Join(errs...)
}

// Flush waits for queued warm-up writes.
func (c *Chain) Flush(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for _, w := range c.writers {
		if err := w.Flush(time.Until(deadline)); err != nil {
			return err
		}
	}
	return nil
}

// Close stops the writers, then closes every layer.
func (c *Chain) Close() error {
	var errs []error
	for _, w := range c.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, layer := range c.layers {
		if err := layer.Close(); err != nil {
			errs = append(errs, cache.WrapError(err, layer.Name(), "close"))
		}
	}
	return errors.Join(errs...)
}

// Stats returns the warm-up writer stats per layer name.
func (c *Chain) Stats() map[string]writer.Stats {
	out := make(map[string]writer.Stats, len(c.writers))
	for i, w := range c.writers {
		out[c.layers[i].Name()] = w.Stats()
	}
	return out
}

// Len returns the number of layers.
func (c *Chain) Len() int {
	return len(c.layers)
}

func (c *Chain) String() string {
	names := make([]string, len(c.layers))
	for i, l := range c.layers {
		names[i] = l.Name()
	}
	return fmt.Sprintf("chain(%d layers): %s", len(c.layers), strings.Join(names, " -> "))
}
