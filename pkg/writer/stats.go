package writer

import "errors"

// Stats describes an AsyncWriter's activity.
type Stats struct {
	// QueueDepth is the number of writes waiting in shard queues.
	QueueDepth int `json:"queue_depth"`

	// Pending counts accepted writes not yet applied or skipped.
	Pending int64 `json:"pending"`

	DroppedWrites int64 `json:"dropped_writes"`
	TotalWrites   int64 `json:"total_writes"`
	FailedWrites  int64 `json:"failed_writes"`

	// SkippedWrites were discarded by Invalidate before being applied.
	SkippedWrites int64 `json:"skipped_writes"`
}

// Healthy reports whether no write has failed or been dropped.
func (s Stats) Healthy() bool {
	return s.DroppedWrites == 0 && s.FailedWrites == 0
}

var (
	// ErrQueueFull is returned when a write is dropped under backpressure.
	ErrQueueFull = errors.New("writer: queue full, write dropped")

	// ErrWriterClosed is returned by Write after Close.
	ErrWriterClosed = errors.New("writer: writer is closed")

	// ErrFlushTimeout is returned when Flush gives up waiting.
	ErrFlushTimeout = errors.New("writer: flush timeout exceeded")
)
