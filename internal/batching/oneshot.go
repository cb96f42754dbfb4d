package batching

import (
	"context"

	"github.com/hashicorp/go-multierror"
)

// writer is a delivery strategy. Calls are serialised by the processor.
type writer interface {
	write(ctx context.Context, batches []*Batch) error
	close(ctx context.Context)
	name() string
}

// oneShotWriter tries every batch exactly once.
//
// Failed batches come back as *LostPointsError values collected in a
// multierror so the flush cycle can report each one with its own points.
type oneShotWriter struct {
	transport Transport
	stats     *counters
}

func newOneShotWriter(transport Transport, stats *counters) *oneShotWriter {
	return &oneShotWriter{transport: transport, stats: stats}
}

func (w *oneShotWriter) write(ctx context.Context, batches []*Batch) error {
	var result *multierror.Error
	for _, b := range batches {
		if err := deliver(ctx, w.transport, b); err != nil {
			w.stats.failures.Add(1)
			result = multierror.Append(result, &LostPointsError{
				Points: b.Points,
				Err:    &BatchError{Key: b.Key, Consistency: b.Consistency, Err: err},
			})
			continue
		}
		w.stats.delivered(b)
	}
	return result.ErrorOrNil()
}

func (w *oneShotWriter) close(context.Context) {}

func (w *oneShotWriter) name() string {
	return "one-shot"
}
