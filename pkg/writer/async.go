package writer

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"fundwizard/pkg/cache"
	"fundwizard/pkg/logging"
	"fundwizard/pkg/metrics"

	"go.uber.org/zap"
)

// AsyncWriter warms a cache.Layer in the background. Reads through the fund
// view chain hand it the values fetched from a slower layer so they are
// written to the faster ones without blocking the caller.
//
// Keys are sharded across workers, so writes to one key apply in the order
// they were enqueued. Invalidate discards writes for a key that are still
// queued, which keeps a stale warm-up from resurrecting an invalidated view.
type AsyncWriter struct {
	layer     cache.Layer
	layerName string
	shards    []*shard
	config    Config
	metrics   metrics.Collector
	logger    *logging.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	pending       int64
	droppedWrites int64
	totalWrites   int64
	failedWrites  int64
	skippedWrites int64

	reportStop chan struct{}
	closeOnce  sync.Once
}

type shard struct {
	queue chan writeOp

	mu       sync.Mutex
	applied  *sync.Cond
	gens     map[string]uint64
	inflight string
}

type writeOp struct {
	key   string
	value []byte
	ttl   time.Duration
	gen   uint64
}

// Config configures the async writer.
type Config struct {
	// QueueSize bounds pending writes per worker. Default 256.
	QueueSize int `yaml:"queue_size"`

	// Workers is the number of key shards. Default 2.
	Workers int `yaml:"workers"`

	// MaxWaitTime is how long Write blocks on a full queue before dropping.
	// Default 10ms.
	MaxWaitTime time.Duration `yaml:"max_wait_time"`

	// ReportInterval is how often queue depth is reported. Default 5s.
	ReportInterval time.Duration `yaml:"report_interval"`
}

// DefaultConfig returns the defaults described on Config.
func DefaultConfig() Config {
	return Config{
		QueueSize:      256,
		Workers:        2,
		MaxWaitTime:    10 * time.Millisecond,
		ReportInterval: 5 * time.Second,
	}
}

// New starts an AsyncWriter for layer. Close must be called to stop it.
func New(layer cache.Layer, config Config, collector metrics.Collector, logger *logging.Logger) *AsyncWriter {
	def := DefaultConfig()
	if config.QueueSize <= 0 {
		config.QueueSize = def.QueueSize
	}
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	if config.MaxWaitTime <= 0 {
		config.MaxWaitTime = def.MaxWaitTime
	}
	if config.ReportInterval <= 0 {
		config.ReportInterval = def.ReportInterval
	}

	w := &AsyncWriter{
		layer:      layer,
		layerName:  layer.Name(),
		shards:     make([]*shard, config.Workers),
		config:     config,
		metrics:    metrics.OrNoOp(collector),
		logger:     logging.OrGlobal(logger).Named("writer").With(zap.String("layer", layer.Name())),
		reportStop: make(chan struct{}),
	}

	for i := range w.shards {
		s := &shard{
			queue: make(chan writeOp, config.QueueSize),
			gens:  make(map[string]uint64),
		}
		s.applied = sync.NewCond(&s.mu)
		w.shards[i] = s
		w.wg.Add(1)
		go w.worker(s)
	}

	go w.report()

	return w
}

func (w *AsyncWriter) shardFor(key string) *shard {
	if len(w.shards) == 1 {
		return w.shards[0]
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return w.shards[h.Sum32()%uint32(len(w.shards))]
}

// Write enqueues a write. When the shard's queue stays full for MaxWaitTime
// the write is dropped and ErrQueueFull returned; warm-up is best effort.
func (w *AsyncWriter) Write(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWriterClosed
	}

	s := w.shardFor(key)
	s.mu.Lock()
	gen := s.gens[key]
	s.mu.Unlock()

	op := writeOp{
		key:   key,
		value: append([]byte(nil), value...),
		ttl:   ttl,
		gen:   gen,
	}

	atomic.AddInt64(&w.pending, 1)

	select {
	case s.queue <- op:
		atomic.AddInt64(&w.totalWrites, 1)
		return nil
	default:
	}

	timer := time.NewTimer(w.config.MaxWaitTime)
	defer timer.Stop()

	select {
	case s.queue <- op:
		atomic.AddInt64(&w.totalWrites, 1)
		return nil
	case <-timer.C:
		atomic.AddInt64(&w.pending, -1)
		atomic.AddInt64(&w.droppedWrites, 1)
		w.metrics.RecordWriteDropped(w.layerName)
		return ErrQueueFull
	case <-ctx.Done():
		atomic.AddInt64(&w.pending, -1)
		return ctx.Err()
	}
}

// Invalidate discards queued writes for key. A write already being applied
// finishes before Invalidate returns, so a Delete issued afterwards wins.
func (w *AsyncWriter) Invalidate(key string) {
	s := w.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gens[key]++
	for s.inflight == key {
		s.applied.Wait()
	}
}

func (w *AsyncWriter) worker(s *shard) {
	defer w.wg.Done()

	for op := range s.queue {
		w.apply(s, op)
	}
}

func (w *AsyncWriter) apply(s *shard, op writeOp) {
	defer atomic.AddInt64(&w.pending, -1)

	s.mu.Lock()
	if s.gens[op.key] != op.gen {
		s.mu.Unlock()
		atomic.AddInt64(&w.skippedWrites, 1)
		return
	}
	s.inflight = op.key
	s.mu.Unlock()

	start := time.Now()
	err := w.layer.Set(context.Background(), op.key, op.value, op.ttl)
	w.metrics.RecordAsyncWrite(w.layerName, err == nil, time.Since(start))

	s.mu.Lock()
	s.inflight = ""
	s.applied.Broadcast()
	s.mu.Unlock()

	if err != nil {
		atomic.AddInt64(&w.failedWrites, 1)
		w.logger.Warn("async write failed", zap.String("key", op.key), zap.Error(err))
	}
}

// Flush waits until every accepted write has been applied or skipped.
func (w *AsyncWriter) Flush(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for atomic.LoadInt64(&w.pending) > 0 {
		if time.Now().After(deadline) {
			return ErrFlushTimeout
		}
		time.Sleep(5 * time.Millisecond)
	}
	return nil
}

// Close stops accepting writes, applies what is queued and waits for the
// workers. It is safe to call more than once.
func (w *AsyncWriter) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		for _, s := range w.shards {
			close(s.queue)
		}
		w.mu.Unlock()

		close(w.reportStop)
		w.wg.Wait()
	})
	return nil
}

func (w *AsyncWriter) report() {
	ticker := time.NewTicker(w.config.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.metrics.RecordQueueDepth(w.layerName, w.depth())
		case <-w.reportStop:
			return
		}
	}
}

func (w *AsyncWriter) depth() int {
	n := 0
	for _, s := range w.shards {
		n += len(s.queue)
	}
	return n
}

// Stats returns current counters.
func (w *AsyncWriter) Stats() Stats {
	return Stats{
		QueueDepth:    w.depth(),
		Pending:       atomic.LoadInt64(&w.pending),
		DroppedWrites: atomic.LoadInt64(&w.droppedWrites),
		TotalWrites:   atomic.LoadInt64(&w.totalWrites),
		FailedWrites:  atomic.LoadInt64(&w.failedWrites),
		SkippedWrites: atomic.LoadInt64(&w.skippedWrites),
	}
}
