package batching

import "sync/atomic"

// Stats is a point-in-time view of the processor's counters.
type Stats struct {
	Strategy         string `json:"strategy"`
	PointsQueued     uint64 `json:"points_queued"`
	PointsWritten    uint64 `json:"points_written"`
	PointsLost       uint64 `json:"points_lost"`
	BatchesWritten   uint64 `json:"batches_written"`
	DeliveryFailures uint64 `json:"delivery_failures"`
	FlushCycles      uint64 `json:"flush_cycles"`
	QueueLength      int    `json:"queue_length"`
	BufferedPoints   int    `json:"buffered_points"`
}

// counters is shared between the processor and its writer.
type counters struct {
	queued         atomic.Uint64
	written        atomic.Uint64
	lost           atomic.Uint64
	batchesWritten atomic.Uint64
	failures       atomic.Uint64
	cycles         atomic.Uint64
	buffered       atomic.Int64
}

func (c *counters) delivered(b *Batch) {
	c.written.Add(uint64(b.Len()))
	c.batchesWritten.Add(1)
}
