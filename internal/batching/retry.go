package batching

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// outcome is the result of one transport attempt.
type outcome int

const (
	written outcome = iota
	retryLater
	failedPermanently
)

// retryRecord is a batch waiting in the backlog.
type retryRecord struct {
	batch *Batch
}

// retryWriter keeps batches that failed with a retryable error and replays
// them, oldest first, before anything newer is attempted.
//
// The backlog never holds more than capacity points once write returns;
// the oldest records are evicted and reported with ErrBufferOverrun.
type retryWriter struct {
	transport  Transport
	retryable  func(error) bool
	lost       func(points []Point, err error)
	capacity   int
	mergeLimit int
	stats      *counters

	mu      sync.Mutex
	backlog []*retryRecord
	used    int
}

func newRetryWriter(transport Transport, opts Options, stats *counters, lost func([]Point, error)) *retryWriter {
	return &retryWriter{
		transport:  transport,
		retryable:  opts.Retryable,
		lost:       lost,
		capacity:   opts.BufferLimit,
		mergeLimit: opts.Actions,
		stats:      stats,
	}
}

func (w *retryWriter) name() string {
	return "retry"
}

// write replays the backlog and then attempts batches in order.
//
// The first retryable failure, in the backlog or among the new batches,
// stops all further attempts: everything not yet delivered is queued behind
// it so no destination ever sees a newer batch before an older one.
func (w *retryWriter) write(ctx context.Context, batches []*Batch) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for len(w.backlog) > 0 {
		rec := w.backlog[0]
		result, err := w.attempt(ctx, rec.batch)
		if result == retryLater {
			for _, b := range batches {
				w.insert(b)
			}
			return nil
		}
		w.popFront()
		if result == failedPermanently {
			w.report(rec.batch, err)
		}
	}

	for i, b := range batches {
		result, err := w.attempt(ctx, b)
		switch result {
		case retryLater:
			for _, rest := range batches[i:] {
				w.insert(rest)
			}
			return nil
		case failedPermanently:
			w.report(b, err)
		}
	}
	return nil
}

// close gives every buffered record one last attempt and reports the rest.
func (w *retryWriter) close(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for len(w.backlog) > 0 {
		rec := w.popFront()
		if result, err := w.attempt(ctx, rec.batch); result != written {
			w.report(rec.batch, err)
		}
	}
}

// attempt sends one batch and classifies the result.
func (w *retryWriter) attempt(ctx context.Context, b *Batch) (outcome, error) {
	err := deliver(ctx, w.transport, b)
	if err == nil {
		w.stats.delivered(b)
		return written, nil
	}
	w.stats.failures.Add(1)
	if !errors.Is(err, ErrSchedulerFault) && w.retryable(err) {
		return retryLater, err
	}
	return failedPermanently, err
}

// insert adds b to the backlog, merging it into the newest record when both
// target the same destination and the result stays within one request.
func (w *retryWriter) insert(b *Batch) {
	merged := false
	if n := len(w.backlog); n > 0 {
		last := w.backlog[n-1].batch
		if last.mergeable(b) && last.Len()+b.Len() <= w.mergeLimit {
			last.Points = append(last.Points, b.Points...)
			merged = true
		}
	}
	if !merged {
		w.backlog = append(w.backlog, &retryRecord{
			batch: &Batch{
				Key:         b.Key,
				Consistency: b.Consistency,
				Points:      append([]Point(nil), b.Points...),
			},
		})
	}
	w.used += b.Len()
	w.stats.buffered.Store(int64(w.used))

	for w.used > w.capacity && len(w.backlog) > 0 {
		rec := w.popFront()
		w.report(rec.batch, fmt.Errorf("%w: capacity %d points", ErrBufferOverrun, w.capacity))
	}
}

func (w *retryWriter) popFront() *retryRecord {
	rec := w.backlog[0]
	w.backlog[0] = nil
	w.backlog = w.backlog[1:]
	w.used -= rec.batch.Len()
	w.stats.buffered.Store(int64(w.used))
	return rec
}

func (w *retryWriter) report(b *Batch, err error) {
	w.lost(b.Points, &BatchError{Key: b.Key, Consistency: b.Consistency, Err: err})
}

// snapshot returns copies of the buffered batches, oldest first.
func (w *retryWriter) snapshot() []*Batch {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]*Batch, len(w.backlog))
	for i, rec := range w.backlog {
		out[i] = &Batch{
			Key:         rec.batch.Key,
			Consistency: rec.batch.Consistency,
			Points:      append([]Point(nil), rec.batch.Points...),
		}
	}
	return out
}
