package prometheus

import (
	"strconv"
	"time"

	"fundwizard/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements metrics.Collector on top of Prometheus vectors. It is
// itself a prometheus.Collector, so it can be handed to Register or
// MustRegister as a single unit.
type Collector struct {
	layerOps      *prometheus.CounterVec
	layerErrors   *prometheus.CounterVec
	layerLatency  *prometheus.HistogramVec
	circuitState  *prometheus.GaugeVec
	circuitOpens  *prometheus.CounterVec
	queueDepth    *prometheus.GaugeVec
	droppedWrites *prometheus.CounterVec
	asyncWrites   *prometheus.CounterVec
	asyncLatency  *prometheus.HistogramVec
	viewGets      *prometheus.CounterVec
	viewLatency   *prometheus.HistogramVec
	draftOps      *prometheus.CounterVec
	submissions   *prometheus.CounterVec
	submitLatency *prometheus.HistogramVec
	invalidations *prometheus.CounterVec
}

var latencyBuckets = prometheus.ExponentialBuckets(0.0001, 2, 18) // 0.1ms to ~13s

// New builds the vectors under namespace.
func New(namespace string) *Collector {
	return &Collector{
		layerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layer_operations_total",
			Help:      "Operations per backing layer or guarded dependency",
		}, []string{"layer", "op"}),
		layerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layer_errors_total",
			Help:      "Failed operations per backing layer or guarded dependency",
		}, []string{"layer", "op"}),
		layerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "layer_operation_duration_seconds",
			Help:      "Latency of layer operations",
			Buckets:   latencyBuckets,
		}, []string{"layer", "op"}),
		circuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
		circuitOpens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_opens_total",
			Help:      "Times a circuit breaker opened",
		}, []string{"name"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "writer_queue_depth",
			Help:      "Pending async warm-up writes per layer",
		}, []string{"layer"}),
		droppedWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writer_dropped_total",
			Help:      "Async writes dropped under backpressure",
		}, []string{"layer"}),
		asyncWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writer_writes_total",
			Help:      "Async writes by status",
		}, []string{"layer", "status"}),
		asyncLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "writer_write_duration_seconds",
			Help:      "Latency of async writes",
			Buckets:   latencyBuckets,
		}, []string{"layer"}),
		viewGets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "view_gets_total",
			Help:      "Fund view reads by result and serving layer",
		}, []string{"result", "layer_index"}),
		viewLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "view_get_duration_seconds",
			Help:      "Latency of fund view reads",
			Buckets:   latencyBuckets,
		}, []string{"result"}),
		draftOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "draft_operations_total",
			Help:      "Draft store operations by kind, op and status",
		}, []string{"kind", "op", "status"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Submission attempts by kind and outcome",
		}, []string{"kind", "outcome"}),
		submitLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submission_duration_seconds",
			Help:      "Time from submit to outcome",
			Buckets:   latencyBuckets,
		}, []string{"kind", "outcome"}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalidations_total",
			Help:      "Cache scope invalidations by scope and status",
		}, []string{"scope", "status"}),
	}
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.layerOps, c.layerErrors, c.layerLatency,
		c.circuitState, c.circuitOpens,
		c.queueDepth, c.droppedWrites, c.asyncWrites, c.asyncLatency,
		c.viewGets, c.viewLatency,
		c.draftOps, c.submissions, c.submitLatency, c.invalidations,
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, col := range c.collectors() {
		col.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, col := range c.collectors() {
		col.Collect(ch)
	}
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func (c *Collector) RecordLayerOp(layer, op string, success bool, duration time.Duration) {
	c.layerOps.WithLabelValues(layer, op).Inc()
	if !success {
		c.layerErrors.WithLabelValues(layer, op).Inc()
	}
	c.layerLatency.WithLabelValues(layer, op).Observe(duration.Seconds())
}

func (c *Collector) RecordCircuitState(name string, state metrics.CircuitState) {
	c.circuitState.WithLabelValues(name).Set(float64(state))
	if state == metrics.CircuitOpen {
		c.circuitOpens.WithLabelValues(name).Inc()
	}
}

func (c *Collector) RecordQueueDepth(layer string, depth int) {
	c.queueDepth.WithLabelValues(layer).Set(float64(depth))
}

func (c *Collector) RecordWriteDropped(layer string) {
	c.droppedWrites.WithLabelValues(layer).Inc()
}

func (c *Collector) RecordAsyncWrite(layer string, success bool, duration time.Duration) {
	c.asyncWrites.WithLabelValues(layer, status(success)).Inc()
	c.asyncLatency.WithLabelValues(layer).Observe(duration.Seconds())
}

func (c *Collector) RecordViewGet(hit bool, layerIndex int, duration time.Duration) {
	result, idx := "miss", "none"
	if hit {
		result, idx = "hit", strconv.Itoa(layerIndex)
	}
	c.viewGets.WithLabelValues(result, idx).Inc()
	c.viewLatency.WithLabelValues(result).Observe(duration.Seconds())
}

func (c *Collector) RecordDraftOp(kind, op string, success bool) {
	c.draftOps.WithLabelValues(kind, op, status(success)).Inc()
}

func (c *Collector) RecordSubmission(kind string, outcome metrics.Outcome, duration time.Duration) {
	c.submissions.WithLabelValues(kind, string(outcome)).Inc()
	c.submitLatency.WithLabelValues(kind, string(outcome)).Observe(duration.Seconds())
}

func (c *Collector) RecordInvalidation(scope string, success bool) {
	c.invalidations.WithLabelValues(scope, status(success)).Inc()
}
