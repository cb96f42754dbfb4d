package batching

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

type testPoint string

func (p testPoint) LineProtocol() string { return string(p) }

// pts returns n points named prefix-0 .. prefix-(n-1).
func pts(prefix string, n int) []Point {
	out := make([]Point, n)
	for i := range out {
		out[i] = testPoint(fmt.Sprintf("%s-%d", prefix, i))
	}
	return out
}

// scriptedTransport records every attempt and fails according to fn.
type scriptedTransport struct {
	mu       sync.Mutex
	attempts []string // first line of every attempted batch
	written  []Point
	fn       func(b *Batch) error
}

func (t *scriptedTransport) Deliver(_ context.Context, b *Batch) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.attempts = append(t.attempts, b.Points[0].LineProtocol())
	if t.fn != nil {
		if err := t.fn(b); err != nil {
			return err
		}
	}
	t.written = append(t.written, b.Points...)
	return nil
}

type lossCall struct {
	points []Point
	err    error
}

type lossRecorder struct {
	mu    sync.Mutex
	calls []lossCall
}

func (r *lossRecorder) record(points []Point, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, lossCall{points: points, err: err})
}

func newTestRetryWriter(tr Transport, capacity, mergeLimit int) (*retryWriter, *lossRecorder, *counters) {
	rec := &lossRecorder{}
	stats := &counters{}
	opts := Options{Actions: mergeLimit, BufferLimit: capacity, Retryable: IsRetryable}
	return newRetryWriter(tr, opts, stats, rec.record), rec, stats
}

var errBusy = errors.New("cache-max-memory-size exceeded")

// =============================================================================
// Backlog replay
// =============================================================================

func TestRetryWriter_BuffersRetryableFailure(t *testing.T) {
	failures := 1
	tr := &scriptedTransport{fn: func(*Batch) error {
		if failures > 0 {
			failures--
			return Transient(errBusy)
		}
		return nil
	}}
	w, lost, stats := newTestRetryWriter(tr, 100, 10)

	b := &Batch{Key: HTTPKey("db", "rp"), Consistency: ConsistencyOne, Points: pts("a", 3)}
	if err := w.write(context.Background(), []*Batch{b}); err != nil {
		t.Fatalf("write() error = %v", err)
	}
	if got := len(w.snapshot()); got != 1 {
		t.Fatalf("backlog records = %d, want 1", got)
	}
	if got := stats.buffered.Load(); got != 3 {
		t.Errorf("buffered = %d, want 3", got)
	}

	// An empty cycle still replays the backlog.
	if err := w.write(context.Background(), nil); err != nil {
		t.Fatalf("write() error = %v", err)
	}
	if got := len(w.snapshot()); got != 0 {
		t.Errorf("backlog records = %d, want 0", got)
	}
	if len(tr.written) != 3 {
		t.Errorf("written = %d points, want 3", len(tr.written))
	}
	if len(lost.calls) != 0 {
		t.Errorf("lost handler called %d times, want 0", len(lost.calls))
	}
	if got := stats.buffered.Load(); got != 0 {
		t.Errorf("buffered = %d, want 0", got)
	}
}

func TestRetryWriter_NewerBatchWaitsBehindOlder(t *testing.T) {
	failing := true
	tr := &scriptedTransport{fn: func(b *Batch) error {
		if failing && b.Points[0] == testPoint("old-0") {
			return Transient(errBusy)
		}
		return nil
	}}
	w, _, _ := newTestRetryWriter(tr, 100, 3)
	key := HTTPKey("db", "")

	older := &Batch{Key: key, Consistency: ConsistencyOne, Points: pts("old", 3)}
	newer := &Batch{Key: key, Consistency: ConsistencyOne, Points: pts("new", 3)}

	_ = w.write(context.Background(), []*Batch{older})
	_ = w.write(context.Background(), []*Batch{newer})

	for _, a := range tr.attempts {
		if a == "new-0" {
			t.Fatalf("newer batch attempted while older one is outstanding: attempts = %v", tr.attempts)
		}
	}
	backlog := w.snapshot()
	if len(backlog) != 2 {
		t.Fatalf("backlog records = %d, want 2", len(backlog))
	}
	if backlog[0].Points[0] != testPoint("old-0") || backlog[1].Points[0] != testPoint("new-0") {
		t.Errorf("backlog order = %v, %v", backlog[0].Points[0], backlog[1].Points[0])
	}

	failing = false
	_ = w.write(context.Background(), nil)

	want := append(pts("old", 3), pts("new", 3)...)
	if len(tr.written) != len(want) {
		t.Fatalf("written = %d points, want %d", len(tr.written), len(want))
	}
	for i := range want {
		if tr.written[i] != want[i] {
			t.Errorf("written[%d] = %v, want %v", i, tr.written[i], want[i])
		}
	}
}

func TestRetryWriter_BatchesAfterRetryableFailureAreNotAttempted(t *testing.T) {
	tr := &scriptedTransport{fn: func(b *Batch) error {
		if b.Points[0] == testPoint("b-0") {
			return Transient(errBusy)
		}
		return nil
	}}
	w, _, _ := newTestRetryWriter(tr, 100, 10)

	batches := []*Batch{
		{Key: HTTPKey("a", ""), Consistency: ConsistencyOne, Points: pts("a", 2)},
		{Key: HTTPKey("b", ""), Consistency: ConsistencyOne, Points: pts("b", 2)},
		{Key: HTTPKey("c", ""), Consistency: ConsistencyOne, Points: pts("c", 2)},
	}
	_ = w.write(context.Background(), batches)

	if got, want := fmt.Sprint(tr.attempts), "[a-0 b-0]"; got != want {
		t.Errorf("attempts = %s, want %s", got, want)
	}
	backlog := w.snapshot()
	if len(backlog) != 2 || backlog[0].Key.Database != "b" || backlog[1].Key.Database != "c" {
		t.Errorf("backlog = %+v, want records for b then c", backlog)
	}
}

// =============================================================================
// Merge and eviction
// =============================================================================

func TestRetryWriter_MergesIntoLastRecord(t *testing.T) {
	tr := &scriptedTransport{fn: func(*Batch) error { return Transient(errBusy) }}
	w, _, _ := newTestRetryWriter(tr, 100, 10)
	key := HTTPKey("db", "rp")

	_ = w.write(context.Background(), []*Batch{{Key: key, Consistency: ConsistencyOne, Points: pts("x", 4)}})
	_ = w.write(context.Background(), []*Batch{{Key: key, Consistency: ConsistencyOne, Points: pts("y", 4)}})

	backlog := w.snapshot()
	if len(backlog) != 1 {
		t.Fatalf("backlog records = %d, want 1 merged record", len(backlog))
	}
	if backlog[0].Len() != 8 {
		t.Errorf("merged record = %d points, want 8", backlog[0].Len())
	}
}

func TestRetryWriter_DoesNotMerge(t *testing.T) {
	tests := []struct {
		name   string
		second *Batch
	}{
		{
			name:   "different key",
			second: &Batch{Key: HTTPKey("other", "rp"), Consistency: ConsistencyOne, Points: pts("y", 2)},
		},
		{
			name:   "different consistency",
			second: &Batch{Key: HTTPKey("db", "rp"), Consistency: ConsistencyAll, Points: pts("y", 2)},
		},
		{
			name:   "over the action limit",
			second: &Batch{Key: HTTPKey("db", "rp"), Consistency: ConsistencyOne, Points: pts("y", 7)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &scriptedTransport{fn: func(*Batch) error { return Transient(errBusy) }}
			w, _, _ := newTestRetryWriter(tr, 100, 10)

			first := &Batch{Key: HTTPKey("db", "rp"), Consistency: ConsistencyOne, Points: pts("x", 4)}
			_ = w.write(context.Background(), []*Batch{first})
			_ = w.write(context.Background(), []*Batch{tt.second})

			if got := len(w.snapshot()); got != 2 {
				t.Errorf("backlog records = %d, want 2", got)
			}
		})
	}
}

func TestRetryWriter_EvictsOldestOverCapacity(t *testing.T) {
	tr := &scriptedTransport{fn: func(*Batch) error { return Transient(errBusy) }}
	w, lost, stats := newTestRetryWriter(tr, 5, 3)

	for _, db := range []string{"a", "b", "c"} {
		_ = w.write(context.Background(), []*Batch{{Key: HTTPKey(db, ""), Consistency: ConsistencyOne, Points: pts(db, 3)}})
		if got := stats.buffered.Load(); got > 5 {
			t.Fatalf("buffered = %d after write, exceeds capacity 5", got)
		}
	}

	backlog := w.snapshot()
	if len(backlog) != 1 || backlog[0].Key.Database != "c" {
		t.Fatalf("backlog = %+v, want only the newest record", backlog)
	}
	if len(lost.calls) != 2 {
		t.Fatalf("lost handler called %d times, want 2", len(lost.calls))
	}
	for i, call := range lost.calls {
		if !errors.Is(call.err, ErrBufferOverrun) {
			t.Errorf("call %d error = %v, want ErrBufferOverrun", i, call.err)
		}
		if len(call.points) != 3 {
			t.Errorf("call %d points = %d, want 3", i, len(call.points))
		}
	}
	var be *BatchError
	if !errors.As(lost.calls[0].err, &be) || be.Key.Database != "a" {
		t.Errorf("first eviction key = %+v, want database a", be)
	}
}

// =============================================================================
// Permanent failures
// =============================================================================

func TestRetryWriter_PermanentBacklogRecordReported(t *testing.T) {
	calls := 0
	tr := &scriptedTransport{fn: func(*Batch) error {
		calls++
		if calls == 1 {
			return Transient(errBusy)
		}
		return Permanent(errors.New("database not found"))
	}}
	w, lost, _ := newTestRetryWriter(tr, 100, 10)

	_ = w.write(context.Background(), []*Batch{{Key: HTTPKey("db", ""), Consistency: ConsistencyOne, Points: pts("a", 2)}})
	_ = w.write(context.Background(), nil)

	if got := len(w.snapshot()); got != 0 {
		t.Errorf("backlog records = %d, want 0", got)
	}
	if len(lost.calls) != 1 || len(lost.calls[0].points) != 2 {
		t.Fatalf("lost calls = %+v, want one call with 2 points", lost.calls)
	}
	if calls != 2 {
		t.Errorf("attempts = %d, want 2", calls)
	}
}

func TestRetryWriter_PermanentNewBatchReported(t *testing.T) {
	tr := &scriptedTransport{fn: func(b *Batch) error {
		if b.Key.Database == "missing" {
			return Permanent(errors.New("database not found"))
		}
		return nil
	}}
	w, lost, _ := newTestRetryWriter(tr, 100, 10)

	batches := []*Batch{
		{Key: HTTPKey("missing", ""), Consistency: ConsistencyOne, Points: pts("m", 2)},
		{Key: HTTPKey("ok", ""), Consistency: ConsistencyOne, Points: pts("o", 2)},
	}
	_ = w.write(context.Background(), batches)

	if len(lost.calls) != 1 {
		t.Fatalf("lost handler called %d times, want 1", len(lost.calls))
	}
	if len(tr.written) != 2 {
		t.Errorf("written = %d points, want 2 from the healthy batch", len(tr.written))
	}
	if got := len(w.snapshot()); got != 0 {
		t.Errorf("backlog records = %d, want 0", got)
	}
}

func TestRetryWriter_CloseAttemptsBacklogOnce(t *testing.T) {
	tr := &scriptedTransport{fn: func(b *Batch) error {
		if b.Key.Database == "down" {
			return Transient(errBusy)
		}
		return nil
	}}
	w, lost, _ := newTestRetryWriter(tr, 100, 10)

	_ = w.write(context.Background(), []*Batch{
		{Key: HTTPKey("down", ""), Consistency: ConsistencyOne, Points: pts("d", 2)},
		{Key: HTTPKey("up", ""), Consistency: ConsistencyOne, Points: pts("u", 2)},
	})
	if got := len(w.snapshot()); got != 2 {
		t.Fatalf("backlog records = %d, want 2", got)
	}

	w.close(context.Background())

	if got := len(w.snapshot()); got != 0 {
		t.Errorf("backlog records after close = %d, want 0", got)
	}
	if len(tr.written) != 2 {
		t.Errorf("written = %d points, want 2", len(tr.written))
	}
	if len(lost.calls) != 1 || lost.calls[0].points[0] != testPoint("d-0") {
		t.Errorf("lost calls = %+v, want the unreachable batch only", lost.calls)
	}
}
