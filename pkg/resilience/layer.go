package resilience

import (
	"context"
	"time"

	"fundwizard/pkg/cache"
	"fundwizard/pkg/logging"
	"fundwizard/pkg/metrics"

	"go.uber.org/zap"
)

// Layer wraps a cache.Layer with a Guard. Misses count as successes so a
// quiet draft store never trips its own breaker.
type Layer struct {
	layer  cache.Layer
	guard  *Guard
	logger *logging.Logger
}

// NewLayer guards layer with config.
func NewLayer(layer cache.Layer, config Config, collector metrics.Collector, logger *logging.Logger) *Layer {
	logger = logging.OrGlobal(logger)
	return &Layer{
		layer: layer,
		guard: NewGuard(layer.Name(), config,
			WithMetrics(collector),
			WithLogger(logger),
			WithSuccessFilter(cache.IsNotFound),
		),
		logger: logger.Named("resilience").With(zap.String("layer", layer.Name())),
	}
}

// Name returns the wrapped layer's name.
func (l *Layer) Name() string {
	return l.layer.Name()
}

// Guard exposes the breaker for health reporting.
func (l *Layer) Guard() *Guard {
	return l.guard
}

func (l *Layer) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := Call(ctx, l.guard, "get", func(ctx context.Context) ([]byte, error) {
		return l.layer.Get(ctx, key)
	})
	if err != nil && !cache.IsNotFound(err) {
		l.logger.Debug("guarded get failed", zap.String("key", key), zap.Error(err))
	}
	return v, err
}

func (l *Layer) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return l.guard.Execute(ctx, "set", func(ctx context.Context) error {
		return l.layer.Set(ctx, key, value, ttl)
	})
}

func (l *Layer) Delete(ctx context.Context, key string) error {
	return l.guard.Execute(ctx, "delete", func(ctx context.Context) error {
		return l.layer.Delete(ctx, key)
	})
}

// DeleteMulti forwards to the wrapped layer's batch delete when it has one.
func (l *Layer) DeleteMulti(ctx context.Context, keys []string) error {
	return l.guard.Execute(ctx, "delete_multi", func(ctx context.Context) error {
		return cache.DeleteMany(ctx, l.layer, keys)
	})
}

// Close closes the wrapped layer.
func (l *Layer) Close() error {
	return l.layer.Close()
}
