package wizard

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"fundwizard/pkg/cache"
	"fundwizard/pkg/draft"
	"fundwizard/pkg/logging"
	"fundwizard/pkg/metrics"

	"go.uber.org/zap"
)

// lockStripes is the number of draft locks shared by all stores.
const lockStripes = 64

// Manager owns the draft stores of every active session. A store is created
// on first use, lives while the session is active and is dropped by End or
// by Sweep once the session has been idle too long.
//
// Draft locks belong to the manager, not to a store: a store dropped by Sweep
// but still held elsewhere serialises with its replacement.
type Manager struct {
	layer   cache.Layer
	ttl     time.Duration
	metrics metrics.Collector
	logger  *logging.Logger
	now     func() time.Time

	locks [lockStripes]sync.Mutex

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	stores   map[draft.Kind]*draft.Store
	lastSeen time.Time
}

// NewManager creates stores on layer. draftTTL bounds how long an untouched
// draft survives in the layer.
func NewManager(layer cache.Layer, draftTTL time.Duration, collector metrics.Collector, logger *logging.Logger) *Manager {
	return &Manager{
		layer:    layer,
		ttl:      draftTTL,
		metrics:  metrics.OrNoOp(collector),
		logger:   logging.OrGlobal(logger),
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// Store returns session's store for kind, creating it when needed.
func (m *Manager) Store(sessionID string, kind draft.Kind) *draft.Store {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		s = &session{stores: make(map[draft.Kind]*draft.Store)}
		m.sessions[sessionID] = s
	}
	s.lastSeen = m.now()

	st, ok := s.stores[kind]
	if !ok {
		st = draft.NewStore(m.layer, sessionID, kind,
			draft.WithTTL(m.ttl),
			draft.WithMetrics(m.metrics),
			draft.WithLogger(m.logger),
			draft.WithLock(m.lockFor(draft.Key(sessionID, kind))),
		)
		s.stores[kind] = st
	}
	return st
}

func (m *Manager) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &m.locks[h.Sum32()%lockStripes]
}

// Begin enters the wizard for kind, replacing any previous draft of that kind.
func (m *Manager) Begin(ctx context.Context, sessionID string, kind draft.Kind) (*draft.Store, draft.Draft) {
	st := m.Store(sessionID, kind)
	d := st.Reset(ctx)
	m.logger.Named("wizard").Debug("wizard started",
		zap.String("session", sessionID),
		zap.String("kind", string(kind)),
	)
	return st, d
}

// Abandon clears session's draft of kind.
func (m *Manager) Abandon(ctx context.Context, sessionID string, kind draft.Kind) {
	m.Store(sessionID, kind).Clear(ctx)
}

// End clears every draft of the session and forgets its stores.
func (m *Manager) End(ctx context.Context, sessionID string) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if !ok {
		return
	}
	for _, st := range s.stores {
		st.Clear(ctx)
	}
}

// Sweep forgets sessions idle for longer than idle and returns how many were
// dropped. Their drafts are left to expire in the backing layer.
func (m *Manager) Sweep(idle time.Duration) int {
	cutoff := m.now().Add(-idle)

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, s := range m.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	if n > 0 {
		m.logger.Named("wizard").Info("swept idle wizard sessions",
			zap.Int("swept", n),
			zap.Int("remaining", len(m.sessions)),
		)
	}
	return n
}

// Sessions returns the number of tracked sessions.
func (m *Manager) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
