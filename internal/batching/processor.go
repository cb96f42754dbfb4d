package batching

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/semaphore"
)

// Processor stages points in an ingest queue and delivers them in batches
// from a single scheduler worker.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Processor struct {
	opts   Options
	writer writer
	stats  counters

	// Ingest queue. slots bounds it at opts.Actions entries; nil when unbounded.
	mu      sync.Mutex
	entries []entry
	closed  bool
	slots   *semaphore.Weighted

	// deliverMu serialises flush cycles, WriteBatch and shutdown so the
	// writer's backlog is never touched concurrently.
	deliverMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	kick     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	shutdown sync.Once
}

// New validates opts, selects the delivery strategy and starts the
// scheduler worker.
//
// A BufferLimit at or below Actions selects the one-shot writer; anything
// larger selects the retry-capable writer. The choice is fixed for the
// processor's lifetime.
//
// Parameters:
//   - transport: Delivers each batch; must not be nil
//   - opts: Validated options; nil callbacks get defaults
//
// Returns:
//   - *Processor: Running processor; call FlushAndShutdown when done
//   - error: ErrInvalidOptions if transport or opts are unusable
func New(transport Transport, opts Options) (*Processor, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: transport is required", ErrInvalidOptions)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	p := &Processor{
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		kick:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if opts.Actions != UnlimitedActions {
		p.slots = semaphore.NewWeighted(int64(opts.Actions))
	}

	if opts.retries() {
		p.writer = newRetryWriter(transport, opts, &p.stats, p.lose)
	} else {
		p.writer = newOneShotWriter(transport, &p.stats)
	}

	opts.Logger.Debug("batch processor started",
		"strategy", p.writer.name(),
		"actions", opts.Actions,
		"flush_interval", opts.FlushInterval,
		"jitter_interval", opts.JitterInterval,
		"buffer_limit", opts.BufferLimit,
	)

	opts.Spawn(p.run)
	return p, nil
}

// Write queues one point for key.
//
// It blocks while the queue is full and returns the context's error if ctx
// ends first. Once the queue reaches the action threshold an extra flush is
// signalled to the scheduler.
func (p *Processor) Write(ctx context.Context, key Key, point Point) error {
	if p.isClosed() {
		return ErrClosed
	}

	if p.slots != nil {
		if err := p.slots.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("queueing point for %s: %w", key, err)
		}
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		if p.slots != nil {
			p.slots.Release(1)
		}
		return ErrClosed
	}
	p.entries = append(p.entries, entry{key: key, point: point})
	n := len(p.entries)
	p.mu.Unlock()

	p.stats.queued.Add(1)

	if p.opts.Actions != UnlimitedActions && n >= p.opts.Actions {
		p.signal()
	}
	return nil
}

// WriteBatch hands a pre-built batch straight to the delivery strategy on
// the calling goroutine. It goes through the same retry logic as queued
// points. An empty consistency level takes the configured default.
func (p *Processor) WriteBatch(ctx context.Context, b *Batch) error {
	if b == nil || b.Len() == 0 {
		return nil
	}

	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	if p.isClosed() {
		return ErrClosed
	}

	batch := &Batch{Key: b.Key, Consistency: b.Consistency, Points: b.Points}
	if batch.Consistency == "" {
		batch.Consistency = p.opts.Consistency
	}

	p.stats.queued.Add(uint64(batch.Len()))
	batches := []*Batch{batch}
	if err := p.writer.write(ctx, batches); err != nil {
		p.report(batches, err)
	}
	return nil
}

// Flush runs one flush cycle on the calling goroutine.
// It is a no-op after FlushAndShutdown.
func (p *Processor) Flush() {
	if p.isClosed() {
		return
	}
	p.flush()
}

// FlushAndShutdown refuses further writes, runs a final flush cycle, stops
// the scheduler and closes the delivery strategy. Points still in the retry
// backlog get one last attempt; failures are reported through OnLost.
//
// Safe to call more than once.
func (p *Processor) FlushAndShutdown() {
	p.shutdown.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		p.flush()

		close(p.stop)
		<-p.done

		p.deliverMu.Lock()
		p.writer.close(p.ctx)
		p.deliverMu.Unlock()

		p.cancel()
		p.opts.Logger.Debug("batch processor stopped")
	})
}

// Stats returns a snapshot of the processor's counters.
func (p *Processor) Stats() Stats {
	p.mu.Lock()
	queueLen := len(p.entries)
	p.mu.Unlock()

	return Stats{
		Strategy:         p.writer.name(),
		PointsQueued:     p.stats.queued.Load(),
		PointsWritten:    p.stats.written.Load(),
		PointsLost:       p.stats.lost.Load(),
		BatchesWritten:   p.stats.batchesWritten.Load(),
		DeliveryFailures: p.stats.failures.Load(),
		FlushCycles:      p.stats.cycles.Load(),
		QueueLength:      queueLen,
		BufferedPoints:   int(p.stats.buffered.Load()),
	}
}

// run is the scheduler worker. It owns every periodic and threshold
// triggered flush cycle until stop is closed.
func (p *Processor) run() {
	defer close(p.done)

	timer := time.NewTimer(p.nextDelay())
	defer timer.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-p.kick:
			p.flush()
		case <-timer.C:
			p.flush()
			timer.Reset(p.nextDelay())
		}
	}
}

// nextDelay is the flush interval plus a uniform jitter in [0, JitterInterval].
func (p *Processor) nextDelay() time.Duration {
	d := p.opts.FlushInterval
	if j := p.opts.JitterInterval; j > 0 {
		d += time.Duration(rand.Int63n(int64(j) + 1))
	}
	return d
}

// signal asks the scheduler for an out-of-band flush. A pending signal
// already covers this one.
func (p *Processor) signal() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// flush drains the queue, groups it and hands the batches to the writer.
// Nothing that goes wrong in here escapes to the scheduler loop.
//
// Transport panics are contained per batch by the writer. A panic before
// the writer takes over reports the drained points; after that the writer
// owns them and the panic is only logged.
func (p *Processor) flush() {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	var drained []entry
	handed := false
	defer func() {
		if r := recover(); r != nil {
			p.opts.Logger.Error("flush cycle panicked", "panic", r, "handed_to_writer", handed)
			if !handed {
				p.lose(pointsOfEntries(drained), fmt.Errorf("%w: %v", ErrSchedulerFault, r))
			}
		}
	}()

	p.stats.cycles.Add(1)
	drained = p.drain()
	batches := group(drained, p.opts.Consistency)

	handed = true
	if err := p.writer.write(p.ctx, batches); err != nil {
		p.report(batches, err)
	}
}

// drain takes every queued entry and frees their queue slots.
func (p *Processor) drain() []entry {
	p.mu.Lock()
	entries := p.entries
	p.entries = nil
	p.mu.Unlock()

	if p.slots != nil && len(entries) > 0 {
		p.slots.Release(int64(len(entries)))
	}
	return entries
}

// report turns a writer error into loss reports. Per-batch failures carry
// their own points; anything else is a fault covering the whole cycle.
func (p *Processor) report(batches []*Batch, err error) {
	var merr *multierror.Error
	if errors.As(err, &merr) {
		for _, e := range merr.Errors {
			p.reportOne(batches, e)
		}
		return
	}
	p.reportOne(batches, err)
}

func (p *Processor) reportOne(batches []*Batch, err error) {
	var lost *LostPointsError
	if errors.As(err, &lost) {
		p.lose(lost.Points, lost.Err)
		return
	}
	p.lose(pointsOf(batches), fmt.Errorf("%w: %w", ErrSchedulerFault, err))
}

// lose counts and reports points that will not be delivered. A panicking
// handler is logged and otherwise ignored.
func (p *Processor) lose(points []Point, err error) {
	p.stats.lost.Add(uint64(len(points)))
	p.opts.Logger.Warn("points lost", "count", len(points), "error", err)

	defer func() {
		if r := recover(); r != nil {
			p.opts.Logger.Error("lost points handler panicked", "panic", r)
		}
	}()
	p.opts.OnLost(points, err)
}

func (p *Processor) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
