package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fundwizard/pkg/cache"
	"fundwizard/pkg/cache/bloom"
)

var (
	tokenKeys  = cache.NewKeyPattern("receipt:token", ":")
	resultKeys = cache.NewKeyPattern("receipt:id", ":")
)

// LedgerConfig configures the receipt ledger.
type LedgerConfig struct {
	// TTL is how long a concluded result stays replayable.
	TTL time.Duration `yaml:"ttl"`

	// ExpectedItems sizes the bloom pre-filter. Zero disables the filter,
	// which is required when the backing layer outlives the process.
	ExpectedItems     uint    `yaml:"expected_items"`
	FalsePositiveRate float64 `yaml:"false_positive_rate"`
}

// DefaultLedgerConfig keeps results for a day behind a 1% bloom filter.
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		TTL:               24 * time.Hour,
		ExpectedItems:     100_000,
		FalsePositiveRate: 0.01,
	}
}

// Ledger records concluded results by idempotency token and by result id.
// A token found in the ledger has already been submitted successfully.
type Ledger struct {
	layer cache.Layer
	ttl   time.Duration
}

// NewLedger creates a Ledger over backing.
func NewLedger(backing cache.Layer, config LedgerConfig) *Ledger {
	layer := backing
	if config.ExpectedItems > 0 {
		layer = bloom.New(backing, config.ExpectedItems, config.FalsePositiveRate)
	}
	return &Ledger{layer: layer, ttl: config.TTL}
}

// Put records res under its token and its id.
func (l *Ledger) Put(ctx context.Context, res Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("ledger: encode %s: %w", res.ID, err)
	}
	if err := l.layer.Set(ctx, tokenKeys.Build(res.Token), data, l.ttl); err != nil {
		return fmt.Errorf("ledger: record token: %w", err)
	}
	if err := l.layer.Set(ctx, resultKeys.Build(res.ID), data, l.ttl); err != nil {
		return fmt.Errorf("ledger: record id: %w", err)
	}
	return nil
}

// ByToken returns the result concluded for token.
func (l *Ledger) ByToken(ctx context.Context, token string) (Result, error) {
	return l.get(ctx, tokenKeys.Build(token))
}

// ByID returns the result with id.
func (l *Ledger) ByID(ctx context.Context, id string) (Result, error) {
	return l.get(ctx, resultKeys.Build(id))
}

func (l *Ledger) get(ctx context.Context, key string) (Result, error) {
	data, err := l.layer.Get(ctx, key)
	if err != nil {
		return Result{}, err
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return Result{}, fmt.Errorf("ledger: decode %s: %w", key, errors.Join(cache.ErrInvalidValue, err))
	}
	return res, nil
}

// Close closes the backing layer.
func (l *Ledger) Close() error {
	return l.layer.Close()
}
