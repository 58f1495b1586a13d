package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fundwizard/pkg/cache"
	"fundwizard/pkg/logging"
	"fundwizard/pkg/metrics"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Guard runs calls to one dependency through a circuit breaker with a
// per-call timeout. The remote fund client and durable draft layers each own
// one.
type Guard struct {
	name    string
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	metrics metrics.Collector
	logger  *logging.Logger
}

// Option customises a Guard.
type Option func(*guardOptions)

type guardOptions struct {
	metrics    metrics.Collector
	logger     *logging.Logger
	successful func(error) bool
}

// WithMetrics reports calls and breaker transitions to c.
func WithMetrics(c metrics.Collector) Option {
	return func(o *guardOptions) { o.metrics = c }
}

// WithLogger sets the parent logger. The guard logs under "resilience.<name>".
func WithLogger(l *logging.Logger) Option {
	return func(o *guardOptions) { o.logger = l }
}

// WithSuccessFilter marks errors that must not count against the breaker,
// such as cache misses or a 4xx from a healthy remote.
func WithSuccessFilter(fn func(error) bool) Option {
	return func(o *guardOptions) { o.successful = fn }
}

// NewGuard builds a Guard for the dependency called name.
func NewGuard(name string, config Config, opts ...Option) *Guard {
	o := guardOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	logger := logging.OrGlobal(o.logger).Named("resilience").With(zap.String("dependency", name))

	g := &Guard{
		name:    name,
		timeout: config.Timeout,
		metrics: metrics.OrNoOp(o.metrics),
		logger:  logger,
	}

	trip := config.Breaker.tripFunc()
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: config.Breaker.MaxRequests,
		Interval:    config.Breaker.Interval,
		Timeout:     config.Breaker.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return trip(Counts{
				Requests:             c.Requests,
				TotalSuccesses:       c.TotalSuccesses,
				TotalFailures:        c.TotalFailures,
				ConsecutiveSuccesses: c.ConsecutiveSuccesses,
				ConsecutiveFailures:  c.ConsecutiveFailures,
			})
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			g.metrics.RecordCircuitState(name, circuitState(to))
		},
	}
	if o.successful != nil {
		filter := o.successful
		settings.IsSuccessful = func(err error) bool {
			return err == nil || filter(err)
		}
	}

	g.cb = gobreaker.NewCircuitBreaker(settings)

	logger.Debug("guard initialized",
		zap.Duration("timeout", config.Timeout),
		zap.Uint32("max_requests", config.Breaker.MaxRequests),
		zap.Duration("open_timeout", config.Breaker.OpenTimeout),
	)

	return g
}

func circuitState(s gobreaker.State) metrics.CircuitState {
	switch s {
	case gobreaker.StateOpen:
		return metrics.CircuitOpen
	case gobreaker.StateHalfOpen:
		return metrics.CircuitHalfOpen
	default:
		return metrics.CircuitClosed
	}
}

// Name returns the guarded dependency's name.
func (g *Guard) Name() string {
	return g.name
}

// State returns the breaker's current state.
func (g *Guard) State() metrics.CircuitState {
	return circuitState(g.cb.State())
}

// Execute runs fn under the breaker and timeout. An open breaker yields
// cache.ErrCircuitOpen, an exceeded deadline cache.ErrTimeout; both are
// wrapped with the dependency and op names.
func (g *Guard) Execute(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := Call(ctx, g, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Call is Execute for functions that return a value.
func Call[T any](ctx context.Context, g *Guard, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	start := time.Now()

	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	result, err := g.cb.Execute(func() (interface{}, error) {
		return fn(callCtx)
	})

	elapsed := time.Since(start)
	g.metrics.RecordLayerOp(g.name, op, err == nil, elapsed)

	if err == nil {
		v, _ := result.(T)
		return v, nil
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		g.logger.Warn("circuit breaker open, call rejected", zap.String("op", op))
		return zero, fmt.Errorf("%s %s: %w", g.name, op, cache.ErrCircuitOpen)

	case ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded):
		g.logger.Warn("call timed out",
			zap.String("op", op),
			zap.Duration("timeout", g.timeout),
			zap.Duration("elapsed", elapsed),
		)
		return zero, fmt.Errorf("%s %s: %w", g.name, op, cache.ErrTimeout)
	}

	if result != nil {
		if v, ok := result.(T); ok {
			return v, err
		}
	}
	return zero, err
}
