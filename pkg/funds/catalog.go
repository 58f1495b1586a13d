// Package funds serves the fund views the wizards make stale: the fund list,
// fund details, fund history and the home summary. Reads go through the
// shared view cache under the keys the invalidator deletes.
package funds

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fundwizard/pkg/cache"
	"fundwizard/pkg/chain"
	"fundwizard/pkg/invalidate"
	"fundwizard/pkg/logging"
	"fundwizard/pkg/remote"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Source is the fund service as seen by the catalog. *remote.Client
// satisfies it.
type Source interface {
	ListFunds(ctx context.Context, accountID string) ([]remote.Fund, error)
	GetFund(ctx context.Context, id string) (remote.Fund, error)
	FundHistory(ctx context.Context, id string) ([]remote.HistoryEntry, error)
}

// Views is the read-through view cache. *chain.Chain satisfies it.
type Views interface {
	GetOrLoad(ctx context.Context, key string, ttl time.Duration, load chain.Loader) ([]byte, error)
}

// Summary is the home screen's view of the user's funds.
type Summary struct {
	FundCount    int             `json:"fundCount"`
	TotalBalance decimal.Decimal `json:"totalBalance"`
	Funds        []remote.Fund   `json:"funds"`
}

// Catalog reads fund views through the cache. The view cache belongs to one
// signed-in account, so list and home keys carry no account id.
type Catalog struct {
	views  Views
	source Source
	ttl    time.Duration
	logger *logging.Logger
}

// NewCatalog creates a catalog. A ttl of zero uses the view cache default.
func NewCatalog(views Views, source Source, ttl time.Duration, logger *logging.Logger) *Catalog {
	return &Catalog{
		views:  views,
		source: source,
		ttl:    ttl,
		logger: logging.OrGlobal(logger).Named("funds"),
	}
}

// List returns the funds of accountID.
func (c *Catalog) List(ctx context.Context, accountID string) ([]remote.Fund, error) {
	var funds []remote.Fund
	err := c.read(ctx, invalidate.ListKey(), &funds, func(ctx context.Context) (any, error) {
		return c.source.ListFunds(ctx, accountID)
	})
	return funds, err
}

// Get returns fund id.
func (c *Catalog) Get(ctx context.Context, id string) (remote.Fund, error) {
	var fund remote.Fund
	if id == "" {
		return fund, fmt.Errorf("funds: get: %w", cache.ErrInvalidKey)
	}
	err := c.read(ctx, invalidate.DetailKey(id), &fund, func(ctx context.Context) (any, error) {
		return c.source.GetFund(ctx, id)
	})
	return fund, err
}

// History returns the movements of fund id.
func (c *Catalog) History(ctx context.Context, id string) ([]remote.HistoryEntry, error) {
	var entries []remote.HistoryEntry
	if id == "" {
		return nil, fmt.Errorf("funds: history: %w", cache.ErrInvalidKey)
	}
	err := c.read(ctx, invalidate.HistoryKey(id), &entries, func(ctx context.Context) (any, error) {
		return c.source.FundHistory(ctx, id)
	})
	return entries, err
}

// Home returns the summary shown on the home screen.
func (c *Catalog) Home(ctx context.Context, accountID string) (Summary, error) {
	var s Summary
	err := c.read(ctx, invalidate.HomeKey(), &s, func(ctx context.Context) (any, error) {
		funds, err := c.source.ListFunds(ctx, accountID)
		if err != nil {
			return nil, err
		}
		return Summarize(funds), nil
	})
	return s, err
}

// Summarize totals the balances of funds. Funds without a balance count as
// zero.
func Summarize(funds []remote.Fund) Summary {
	s := Summary{FundCount: len(funds), TotalBalance: decimal.Zero, Funds: funds}
	for _, f := range funds {
		if f.Balance.Valid {
			s.TotalBalance = s.TotalBalance.Add(f.Balance.Decimal)
		}
	}
	return s
}

func (c *Catalog) read(ctx context.Context, key string, out any, fetch func(context.Context) (any, error)) error {
	raw, err := c.views.GetOrLoad(ctx, key, c.ttl, func(ctx context.Context) ([]byte, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		c.logger.Debug("view load failed", zap.String("key", key), zap.Error(err))
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("funds: decode %s: %w", key, cache.ErrInvalidValue)
	}
	return nil
}
