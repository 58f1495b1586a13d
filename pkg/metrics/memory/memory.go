package memory

import (
	"sync"
	"time"

	"fundwizard/pkg/metrics"
)

// Collector keeps every event in memory. Tests use it to assert on what the
// wizard stack reported.
type Collector struct {
	mu sync.RWMutex

	layers        map[string]*LayerMetrics
	viewHits      int64
	viewMisses    int64
	viewHitsByIdx map[int]int64
	draftOps      map[string]int64
	draftErrors   map[string]int64
	submissions   map[string]map[metrics.Outcome]int64
	invalidations map[string]int64
	invalidErrors map[string]int64
}

// LayerMetrics holds counters for one layer or guarded dependency.
type LayerMetrics struct {
	Ops          map[string]int64
	Errors       int64
	CircuitState metrics.CircuitState
	CircuitOpens int64

	QueueDepth    int
	DroppedWrites int64
	AsyncWrites   int64
	AsyncErrors   int64
}

// New returns an empty Collector.
func New() *Collector {
	c := &Collector{}
	c.Reset()
	return c
}

// layer returns the metrics for name. Callers hold mu.
func (c *Collector) layer(name string) *LayerMetrics {
	lm, ok := c.layers[name]
	if !ok {
		lm = &LayerMetrics{Ops: make(map[string]int64)}
		c.layers[name] = lm
	}
	return lm
}

func (c *Collector) RecordLayerOp(layer, op string, success bool, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	lm := c.layer(layer)
	lm.Ops[op]++
	if !success {
		lm.Errors++
	}
}

func (c *Collector) RecordCircuitState(name string, state metrics.CircuitState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	lm := c.layer(name)
	if lm.CircuitState != metrics.CircuitOpen && state == metrics.CircuitOpen {
		lm.CircuitOpens++
	}
	lm.CircuitState = state
}

func (c *Collector) RecordQueueDepth(layer string, depth int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.layer(layer).QueueDepth = depth
}

func (c *Collector) RecordWriteDropped(layer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.layer(layer).DroppedWrites++
}

func (c *Collector) RecordAsyncWrite(layer string, success bool, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	lm := c.layer(layer)
	lm.AsyncWrites++
	if !success {
		lm.AsyncErrors++
	}
}

func (c *Collector) RecordViewGet(hit bool, layerIndex int, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if hit {
		c.viewHits++
		c.viewHitsByIdx[layerIndex]++
	} else {
		c.viewMisses++
	}
}

func (c *Collector) RecordDraftOp(kind, op string, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := kind + "/" + op
	c.draftOps[key]++
	if !success {
		c.draftErrors[key]++
	}
}

func (c *Collector) RecordSubmission(kind string, outcome metrics.Outcome, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byOutcome, ok := c.submissions[kind]
	if !ok {
		byOutcome = make(map[metrics.Outcome]int64)
		c.submissions[kind] = byOutcome
	}
	byOutcome[outcome]++
}

func (c *Collector) RecordInvalidation(scope string, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.invalidations[scope]++
	if !success {
		c.invalidErrors[scope]++
	}
}

// Submissions returns how many submissions of kind ended with outcome.
func (c *Collector) Submissions(kind string, outcome metrics.Outcome) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.submissions[kind][outcome]
}

// Invalidations returns how many times scope was invalidated and how many of
// those failed.
func (c *Collector) Invalidations(scope string) (total, errors int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.invalidations[scope], c.invalidErrors[scope]
}

// DraftOps returns the count and error count for kind/op.
func (c *Collector) DraftOps(kind, op string) (total, errors int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key := kind + "/" + op
	return c.draftOps[key], c.draftErrors[key]
}

// Layer returns a copy of the metrics for name, or nil.
func (c *Collector) Layer(name string) *LayerMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	lm, ok := c.layers[name]
	if !ok {
		return nil
	}
	cp := *lm
	cp.Ops = make(map[string]int64, len(lm.Ops))
	for k, v := range lm.Ops {
		cp.Ops[k] = v
	}
	return &cp
}

// Snapshot is a JSON-friendly copy of the counters.
type Snapshot struct {
	ViewHits      int64                                `json:"view_hits"`
	ViewMisses    int64                                `json:"view_misses"`
	Submissions   map[string]map[metrics.Outcome]int64 `json:"submissions"`
	Invalidations map[string]int64                     `json:"invalidations"`
	DraftOps      map[string]int64                     `json:"draft_ops"`
}

// Snapshot returns a copy of the wizard-level counters.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		ViewHits:      c.viewHits,
		ViewMisses:    c.viewMisses,
		Submissions:   make(map[string]map[metrics.Outcome]int64, len(c.submissions)),
		Invalidations: make(map[string]int64, len(c.invalidations)),
		DraftOps:      make(map[string]int64, len(c.draftOps)),
	}
	for kind, byOutcome := range c.submissions {
		m := make(map[metrics.Outcome]int64, len(byOutcome))
		for o, n := range byOutcome {
			m[o] = n
		}
		s.Submissions[kind] = m
	}
	for k, v := range c.invalidations {
		s.Invalidations[k] = v
	}
	for k, v := range c.draftOps {
		s.DraftOps[k] = v
	}
	return s
}

// Reset clears all counters.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.layers = make(map[string]*LayerMetrics)
	c.viewHits = 0
	c.viewMisses = 0
	c.viewHitsByIdx = make(map[int]int64)
	c.draftOps = make(map[string]int64)
	c.draftErrors = make(map[string]int64)
	c.submissions = make(map[string]map[metrics.Outcome]int64)
	c.invalidations = make(map[string]int64)
	c.invalidErrors = make(map[string]int64)
}
