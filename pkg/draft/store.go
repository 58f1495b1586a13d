package draft

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"fundwizard/pkg/cache"
	"fundwizard/pkg/logging"
	"fundwizard/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var draftKeys = cache.NewKeyPattern("draft", ":")

// ErrNoDraft is returned by EnsureToken when there is no draft to submit.
var ErrNoDraft = errors.New("draft: no draft")

// Key returns the backing-store key for a session's draft of kind.
func Key(session string, kind Kind) string {
	return draftKeys.Build(session, string(kind))
}

// Store holds one session's draft of one kind. Only EnsureToken returns errors:
// backend failures are logged and counted, and a payload that cannot be
// decoded is dropped and reported as absent.
//
// Writes through one Store are serialised, so updates to the same field are
// last-write-wins in call order. Stores for the same key built with a shared
// WithLock serialise with each other too.
type Store struct {
	kind    Kind
	session string
	key     string
	layer   cache.Layer
	ttl     time.Duration
	now     func() time.Time

	metrics metrics.Collector
	logger  *logging.Logger

	mu sync.Locker
}

// Option customises a Store.
type Option func(*Store)

// WithTTL sets how long an untouched draft survives in the backing layer.
// Zero uses the layer's default.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithClock overrides time.Now for CreatedAt and UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithMetrics(c metrics.Collector) Option {
	return func(s *Store) { s.metrics = metrics.OrNoOp(c) }
}

func WithLogger(l *logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithLock guards the store's read-modify-write cycles with l instead of a
// private mutex.
func WithLock(l sync.Locker) Option {
	return func(s *Store) {
		if l != nil {
			s.mu = l
		}
	}
}

// NewStore returns the store for session's draft of kind on layer.
func NewStore(layer cache.Layer, session string, kind Kind, opts ...Option) *Store {
	s := &Store{
		kind:    kind,
		session: session,
		key:     Key(session, kind),
		layer:   layer,
		now:     time.Now,
		metrics: metrics.NoOpCollector{},
		mu:      &sync.Mutex{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrGlobal(s.logger).Named("draft").With(
		zap.String("kind", string(kind)),
		zap.String("session", session),
	)
	return s
}

// Kind returns the draft kind this store holds.
func (s *Store) Kind() Kind {
	return s.kind
}

// Session returns the owning session id.
func (s *Store) Session() string {
	return s.session
}

// Get returns the current draft, or false when there is none or the backing
// layer could not be read.
func (s *Store) Get(ctx context.Context) (Draft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok, _ := s.load(ctx)
	return d, ok
}

// Update merges p into the current draft, creating one with defaults when
// absent, and returns the result. Fields absent from p are kept.
//
// When the stored draft cannot be read nothing is written: the patch is
// applied to a fresh draft and returned unsaved.
func (s *Store) Update(ctx context.Context, p Patch) Draft {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok, err := s.load(ctx)
	if err != nil {
		s.metrics.RecordDraftOp(string(s.kind), "update", false)
		s.logger.Warn("draft unreadable, update not persisted", zap.Error(err))
		return p.Apply(s.fresh())
	}
	if !ok {
		d = s.fresh()
	}
	d = p.Apply(d)
	d.UpdatedAt = s.now()

	s.save(ctx, "update", d)
	return d
}

// Reset replaces any existing draft with a fresh one. It is the wizard entry
// point: starting a wizard overwrites the previous draft of the same kind.
func (s *Store) Reset(ctx context.Context) Draft {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.fresh()
	s.save(ctx, "reset", d)
	return d
}

// Clear discards the draft. Clearing an absent draft is a no-op.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.layer.Delete(ctx, s.key)
	s.metrics.RecordDraftOp(string(s.kind), "clear", err == nil)
	if err != nil {
		s.logger.Error("failed to clear draft", zap.Error(err))
	}
}

// EnsureToken returns the draft's idempotency token, minting and persisting
// one on first use. The token survives updates until Clear. It returns
// ErrNoDraft when there is no draft to submit, and the backing error when the
// draft could not be read.
func (s *Store) EnsureToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok, err := s.load(ctx)
	if err != nil {
		s.metrics.RecordDraftOp(string(s.kind), "token", false)
		return "", err
	}
	if !ok {
		return "", ErrNoDraft
	}
	if d.IdempotencyToken != "" {
		return d.IdempotencyToken, nil
	}

	d.IdempotencyToken = uuid.NewString()
	if err := s.save(ctx, "token", d); err != nil {
		return "", err
	}
	return d.IdempotencyToken, nil
}

func (s *Store) fresh() Draft {
	now := s.now()
	return Draft{
		Kind:      s.kind,
		Currency:  DefaultCurrency,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// load reads and decodes the draft. A miss or a malformed payload is absent
// with a nil error; any other backing failure is returned. Callers hold mu.
func (s *Store) load(ctx context.Context) (Draft, bool, error) {
	raw, err := s.layer.Get(ctx, s.key)
	if err != nil {
		if cache.IsNotFound(err) {
			return Draft{}, false, nil
		}
		s.metrics.RecordDraftOp(string(s.kind), "get", false)
		s.logger.Error("failed to read draft", zap.Error(err))
		return Draft{}, false, err
	}

	var d Draft
	if err := json.Unmarshal(raw, &d); err != nil {
		s.metrics.RecordDraftOp(string(s.kind), "decode", false)
		s.logger.Warn("discarding malformed draft", zap.Error(err), zap.Int("bytes", len(raw)))
		if derr := s.layer.Delete(ctx, s.key); derr != nil {
			s.logger.Error("failed to delete malformed draft", zap.Error(derr))
		}
		return Draft{}, false, nil
	}
	if d.Kind == "" {
		d.Kind = s.kind
	}

	s.metrics.RecordDraftOp(string(s.kind), "get", true)
	return d, true, nil
}

// save encodes and writes d. Failures are logged and metered before being
// returned. Callers hold mu.
func (s *Store) save(ctx context.Context, op string, d Draft) error {
	raw, err := json.Marshal(d)
	if err != nil {
		s.metrics.RecordDraftOp(string(s.kind), op, false)
		s.logger.Error("failed to encode draft", zap.String("op", op), zap.Error(err))
		return err
	}

	err = s.layer.Set(ctx, s.key, raw, s.ttl)
	s.metrics.RecordDraftOp(string(s.kind), op, err == nil)
	if err != nil {
		s.logger.Error("failed to persist draft", zap.String("op", op), zap.Error(err))
	}
	return err
}
