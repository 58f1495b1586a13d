package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fundwizard/pkg/cache"
	"fundwizard/pkg/draft"
	"fundwizard/pkg/invalidate"
	"fundwizard/pkg/logging"
	"fundwizard/pkg/metrics"
	"fundwizard/pkg/remote"
	"fundwizard/pkg/wizard"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Config configures an Executor.
type Config struct {
	// Timeout bounds the remote call of one submission.
	Timeout time.Duration `yaml:"timeout"`

	Ledger LedgerConfig `yaml:"ledger"`
}

// DefaultConfig returns a 30s submission bound.
func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
		Ledger:  DefaultLedgerConfig(),
	}
}

// DraftStore is the part of draft.Store a submission needs.
type DraftStore interface {
	Kind() draft.Kind
	Get(ctx context.Context) (draft.Draft, bool)
	EnsureToken(ctx context.Context) (string, error)
	Clear(ctx context.Context)
}

// Executor performs the one remote call that finalizes a draft and turns
// whatever happens into an Outcome.
type Executor struct {
	strategies  remote.Strategies
	ledger      *Ledger
	invalidator *invalidate.Invalidator
	timeout     time.Duration

	metrics metrics.Collector
	logger  *logging.Logger
	now     func() time.Time

	sf singleflight.Group
}

// New creates an Executor. invalidator may be nil when no views are cached.
func New(strategies remote.Strategies, ledger *Ledger, invalidator *invalidate.Invalidator, config Config, collector metrics.Collector, logger *logging.Logger) *Executor {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	return &Executor{
		strategies:  strategies,
		ledger:      ledger,
		invalidator: invalidator,
		timeout:     config.Timeout,
		metrics:     metrics.OrNoOp(collector),
		logger:      logging.OrGlobal(logger).Named("executor"),
		now:         time.Now,
	}
}

// Submit finalizes the draft held by store.
//
// An incomplete draft yields Redirect without any remote call. Concurrent
// callers holding the same token share one attempt, and a token that already
// concluded replays its Result. Otherwise the kind's strategy runs once,
// bounded by the configured timeout. On success the draft is cleared and the
// fund's list and detail views are invalidated before Submit returns; on
// failure the draft is left as it was.
func (e *Executor) Submit(ctx context.Context, store DraftStore) Outcome {
	start := e.now()
	kind := store.Kind()

	d, ok := store.Get(ctx)
	if !ok {
		return e.redirect(kind, wizard.First(kind), start)
	}
	if step, incomplete := wizard.FirstIncomplete(kind, d); incomplete {
		return e.redirect(kind, step, start)
	}

	token, err := store.EnsureToken(ctx)
	if errors.Is(err, draft.ErrNoDraft) {
		// Cleared since it was read, typically by a concurrent submit that
		// concluded.
		return e.redirect(kind, wizard.First(kind), start)
	}
	if err != nil {
		e.metrics.RecordSubmission(string(kind), metrics.OutcomeFailed, e.now().Sub(start))
		e.logger.Warn("draft token unavailable", zap.String("kind", string(kind)), zap.Error(err))
		return Failed{Message: GenericFailureMessage, Err: err}
	}
	d.IdempotencyToken = token

	// Only the caller that runs the attempt records it; callers sharing the
	// flight get the same Outcome without counting it again.
	v, _, _ := e.sf.Do(token, func() (interface{}, error) {
		var out Outcome
		if res, ok := e.replay(ctx, token); ok {
			store.Clear(context.WithoutCancel(ctx))
			out = Concluded{Result: res, Replayed: true}
		} else {
			out = e.attempt(ctx, store, d, token)
		}
		e.record(kind, out, start)
		return out, nil
	})
	return v.(Outcome)
}

func (e *Executor) record(kind draft.Kind, out Outcome, start time.Time) {
	switch o := out.(type) {
	case Concluded:
		outcome := metrics.OutcomeConcluded
		if o.Replayed {
			outcome = metrics.OutcomeReplayed
			e.logger.Info("submission replayed from ledger",
				zap.String("kind", string(kind)),
				zap.String("result_id", o.Result.ID),
			)
		}
		e.metrics.RecordSubmission(string(kind), outcome, e.now().Sub(start))
	case Failed:
		e.metrics.RecordSubmission(string(kind), metrics.OutcomeFailed, e.now().Sub(start))
		e.logger.Warn("submission failed",
			zap.String("kind", string(kind)),
			zap.String("message", o.Message),
			zap.Error(o.Err),
		)
	}
}

func (e *Executor) redirect(kind draft.Kind, step wizard.Step, start time.Time) Outcome {
	e.metrics.RecordSubmission(string(kind), metrics.OutcomeRedirect, e.now().Sub(start))
	e.logger.Debug("draft incomplete, redirecting",
		zap.String("kind", string(kind)),
		zap.String("step", string(step)),
	)
	return Redirect{Kind: kind, Step: step}
}

func (e *Executor) replay(ctx context.Context, token string) (Result, bool) {
	if e.ledger == nil {
		return Result{}, false
	}
	res, err := e.ledger.ByToken(ctx, token)
	if err != nil {
		if !cache.IsNotFound(err) {
			e.logger.Warn("ledger lookup failed", zap.Error(err))
		}
		return Result{}, false
	}
	return res, true
}

// attempt makes the remote call. It is detached from ctx's cancellation: a
// caller that goes away does not abort a submission already on the wire.
func (e *Executor) attempt(ctx context.Context, store DraftStore, d draft.Draft, token string) Outcome {
	kind := d.Kind
	if kind == "" {
		kind = store.Kind()
	}

	strategy, err := e.strategies.For(kind)
	if err != nil {
		return Failed{Message: GenericFailureMessage, Err: err}
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	rec, err := e.create(callCtx, strategy, d, token)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", cache.ErrTimeout, err)
		}
		return Failed{Message: failureMessage(err), Err: err}
	}

	fundID := rec.FundID
	if fundID == "" {
		fundID = d.FundID
	}
	res := Result{
		ID:           uuid.NewString(),
		Token:        token,
		Kind:         kind,
		FundID:       fundID,
		Amount:       d.Amount.Decimal,
		Draft:        d,
		Status:       StatusConcluded,
		Reference:    rec.Reference,
		RemoteID:     rec.RemoteID,
		RemoteStatus: rec.RemoteStatus,
		Timestamp:    e.now().UTC(),
	}

	bg := context.WithoutCancel(ctx)
	if e.ledger != nil {
		if err := e.ledger.Put(bg, res); err != nil {
			e.logger.Error("failed to record result in ledger",
				zap.String("result_id", res.ID),
				zap.Error(err),
			)
		}
	}

	store.Clear(bg)

	if e.invalidator != nil {
		scopes := []invalidate.Scope{invalidate.ListScope()}
		if fundID != "" {
			scopes = append(scopes, invalidate.DetailScope(fundID))
		}
		e.invalidator.Invalidate(bg, scopes...)
	}

	e.logger.Info("submission concluded",
		zap.String("kind", string(kind)),
		zap.String("result_id", res.ID),
		zap.String("reference", res.Reference),
		zap.String("fund_id", fundID),
	)
	return Concluded{Result: res}
}

// create runs the strategy and turns a panic into an error.
func (e *Executor) create(ctx context.Context, s remote.Strategy, d draft.Draft, token string) (rec remote.Receipt, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("submission strategy panicked", zap.Any("panic", r))
			err = fmt.Errorf("executor: strategy panicked: %v", r)
		}
	}()
	return s.Create(ctx, d, token)
}

func failureMessage(err error) string {
	switch {
	case cache.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return TimeoutMessage
	case cache.IsCircuitOpen(err):
		return UnavailableMessage
	}
	if msg := remote.Message(err); msg != "" {
		return msg
	}
	return GenericFailureMessage
}

// Receipt returns the concluded result with id.
func (e *Executor) Receipt(ctx context.Context, id string) (Result, bool) {
	if e.ledger == nil {
		return Result{}, false
	}
	res, err := e.ledger.ByID(ctx, id)
	if err != nil {
		if !cache.IsNotFound(err) {
			e.logger.Warn("receipt lookup failed", zap.String("result_id", id), zap.Error(err))
		}
		return Result{}, false
	}
	return res, true
}
