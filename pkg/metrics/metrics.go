package metrics

import (
	"time"
)

// Collector receives operational events from the wizard stack. The
// implementations export them to Prometheus or keep them in memory for
// tests.
type Collector interface {
	// Backing layers and remote calls guarded by resilience.
	RecordLayerOp(layer, op string, success bool, duration time.Duration)
	RecordCircuitState(name string, state CircuitState)

	// Async writer used to warm the view chain.
	RecordQueueDepth(layer string, depth int)
	RecordWriteDropped(layer string)
	RecordAsyncWrite(layer string, success bool, duration time.Duration)

	// Fund view chain reads.
	RecordViewGet(hit bool, layerIndex int, duration time.Duration)

	// Wizard lifecycle.
	RecordDraftOp(kind, op string, success bool)
	RecordSubmission(kind string, outcome Outcome, duration time.Duration)
	RecordInvalidation(scope string, success bool)
}

// Outcome labels how a submission attempt ended.
type Outcome string

const (
	OutcomeConcluded Outcome = "concluded"
	OutcomeFailed    Outcome = "failed"
	OutcomeRedirect  Outcome = "redirect"
	// OutcomeReplayed means a previously concluded receipt was returned
	// without calling the remote service again.
	OutcomeReplayed Outcome = "replayed"
)

// CircuitState is the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOpCollector discards everything. It is the default wherever a collector
// is optional.
type NoOpCollector struct{}

func (NoOpCollector) RecordLayerOp(string, string, bool, time.Duration) {}
func (NoOpCollector) RecordCircuitState(string, CircuitState) {}
func (NoOpCollector) RecordQueueDepth(string, int) {}
func (NoOpCollector) RecordWriteDropped(string) {}
func (NoOpCollector) RecordAsyncWrite(string, bool, time.Duration) {}
func (NoOpCollector) RecordViewGet(bool, int, time.Duration) {}
func (NoOpCollector) RecordDraftOp(string, string, bool) {}
func (NoOpCollector) RecordSubmission(string, Outcome, time.Duration) {}
func (NoOpCollector) RecordInvalidation(string, bool) {}

// OrNoOp returns c, or a NoOpCollector when c is nil.
func OrNoOp(c Collector) Collector {
	if c == nil {
		return NoOpCollector{}
	}
	return c
}
