// Package invalidate marks shared fund views stale after a state-changing
// operation, so the next read re-fetches them.
package invalidate

import (
	"context"
	"fmt"
	"sync"

	"fundwizard/pkg/cache"
	"fundwizard/pkg/logging"
	"fundwizard/pkg/metrics"

	"go.uber.org/zap"
)

// ScopeKind names a family of cached views.
type ScopeKind string

const (
	FundList    ScopeKind = "fund-list"
	FundDetail  ScopeKind = "fund-detail"
	FundHistory ScopeKind = "fund-history"
	Home        ScopeKind = "home"
)

// Scope is one cached view. FundID is required for the per-fund kinds.
type Scope struct {
	Kind   ScopeKind `json:"kind"`
	FundID string    `json:"fundId,omitempty"`
}

// ListScope is the fund listing.
func ListScope() Scope { return Scope{Kind: FundList} }

// DetailScope is one fund's detail and balance view.
func DetailScope(fundID string) Scope { return Scope{Kind: FundDetail, FundID: fundID} }

// HistoryScope is one fund's activity history.
func HistoryScope(fundID string) Scope { return Scope{Kind: FundHistory, FundID: fundID} }

// HomeScope is the navigation summary shown on the home screen.
func HomeScope() Scope { return Scope{Kind: Home} }

var (
	fundKeys = cache.NewKeyPattern("funds", ":")
	navKeys  = cache.NewKeyPattern("nav", ":")
)

// Key returns the view-cache key holding the scope's data.
func (s Scope) Key() (string, error) {
	var key string
	switch s.Kind {
	case FundList:
		key = fundKeys.Build("list")
	case FundDetail, FundHistory:
		if s.FundID == "" {
			return "", fmt.Errorf("invalidate: %s scope needs a fund id", s.Kind)
		}
		part := "detail"
		if s.Kind == FundHistory {
			part = "history"
		}
		key = fundKeys.Build(part, s.FundID)
	case Home:
		key = navKeys.Build("home")
	default:
		return "", fmt.Errorf("invalidate: unknown scope %q", s.Kind)
	}
	if err := cache.ValidateKey(key); err != nil {
		return "", err
	}
	return key, nil
}

func (s Scope) String() string {
	if s.FundID == "" {
		return string(s.Kind)
	}
	return string(s.Kind) + "(" + s.FundID + ")"
}

// Keys readers cache under. They match Scope.Key.
func ListKey() string { return fundKeys.Build("list") }

func DetailKey(fundID string) string { return fundKeys.Build("detail", fundID) }

func HistoryKey(fundID string) string { return fundKeys.Build("history", fundID) }

func HomeKey() string { return navKeys.Build("home") }

// Deleter removes keys from the shared view cache. *chain.Chain satisfies it.
type Deleter interface {
	Delete(ctx context.Context, keys ...string) error
}

// Listener is told which scopes were invalidated.
type Listener func(ctx context.Context, scopes []Scope)

// Invalidator deletes stale views and notifies listeners. It never returns
// an error and never panics past Invalidate: failures are logged and
// counted.
type Invalidator struct {
	target  Deleter
	metrics metrics.Collector
	logger  *logging.Logger

	mu        sync.RWMutex
	listeners map[int]Listener
	order     []int
	nextID    int
}

// New creates an Invalidator over target. A nil target only notifies
// listeners.
func New(target Deleter, collector metrics.Collector, logger *logging.Logger) *Invalidator {
	return &Invalidator{
		target:    target,
		metrics:   metrics.OrNoOp(collector),
		logger:    logging.OrGlobal(logger).Named("invalidate"),
		listeners: make(map[int]Listener),
	}
}

// Invalidate marks scopes stale. It returns once the keys are deleted and
// every listener has run, so a navigation that follows observes fresh data.
func (i *Invalidator) Invalidate(ctx context.Context, scopes ...Scope) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("invalidation panicked", zap.Any("panic", r))
		}
	}()

	scopes = dedupe(scopes)
	if len(scopes) == 0 {
		return
	}

	valid := make([]Scope, 0, len(scopes))
	keys := make([]string, 0, len(scopes))
	for _, s := range scopes {
		key, err := s.Key()
		if err != nil {
			i.logger.Warn("skipping invalid scope", zap.String("scope", s.String()), zap.Error(err))
			i.metrics.RecordInvalidation(string(s.Kind), false)
			continue
		}
		valid = append(valid, s)
		keys = append(keys, key)
	}
	if len(valid) == 0 {
		return
	}

	ok := true
	if i.target != nil {
		if err := i.target.Delete(ctx, keys...); err != nil {
			ok = false
			i.logger.Error("failed to invalidate views",
				zap.Strings("keys", keys),
				zap.Error(err),
			)
		}
	}
	for _, s := range valid {
		i.metrics.RecordInvalidation(string(s.Kind), ok)
	}

	i.logger.Debug("views invalidated", zap.Strings("keys", keys), zap.Bool("ok", ok))
	i.notify(ctx, valid)
}

func (i *Invalidator) notify(ctx context.Context, scopes []Scope) {
	i.mu.RLock()
	fns := make([]Listener, 0, len(i.order))
	for _, id := range i.order {
		fns = append(fns, i.listeners[id])
	}
	i.mu.RUnlock()

	for _, fn := range fns {
		i.call(ctx, fn, scopes)
	}
}

func (i *Invalidator) call(ctx context.Context, fn Listener, scopes []Scope) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("invalidation listener panicked", zap.Any("panic", r))
		}
	}()
	fn(ctx, append([]Scope(nil), scopes...))
}

// Watch registers fn and returns a function that unregisters it. Listeners
// run in registration order.
func (i *Invalidator) Watch(fn Listener) (cancel func()) {
	i.mu.Lock()
	defer i.mu.Unlock()

	id := i.nextID
	i.nextID++
	i.listeners[id] = fn
	i.order = append(i.order, id)

	return func() {
		i.mu.Lock()
		defer i.mu.Unlock()
		if _, ok := i.listeners[id]; !ok {
			return
		}
		delete(i.listeners, id)
		for n, v := range i.order {
			if v == id {
				i.order = append(i.order[:n], i.order[n+1:]...)
				break
			}
		}
	}
}

func dedupe(scopes []Scope) []Scope {
	seen := make(map[Scope]struct{}, len(scopes))
	out := scopes[:0:0]
	for _, s := range scopes {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
