package deadletter

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/tswrite/internal/batching"
	"github.com/nerrad567/tswrite/internal/infrastructure/config"
	"github.com/nerrad567/tswrite/internal/infrastructure/database"
	"github.com/nerrad567/tswrite/internal/infrastructure/mqtt"
	"github.com/nerrad567/tswrite/internal/point"
	"github.com/nerrad567/tswrite/migrations"
)

func lines(n int) []batching.Point {
	pts := make([]batching.Point, n)
	for i := range pts {
		pts[i] = point.Line(fmt.Sprintf("cpu value=%d", i))
	}
	return pts
}

func batchErr(key batching.Key, err error) error {
	return &batching.BatchError{Key: key, Consistency: batching.ConsistencyOne, Err: err}
}

// ===== Record =====

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Reason
	}{
		{"buffer overrun", batchErr(batching.HTTPKey("db", ""), batching.ErrBufferOverrun), ReasonBufferOverrun},
		{"scheduler fault", fmt.Errorf("%w: boom", batching.ErrSchedulerFault), ReasonSchedulerFault},
		{"permanent", batchErr(batching.HTTPKey("db", ""), batching.Permanent(errors.New("bad"))), ReasonPermanent},
		{"transient", batchErr(batching.HTTPKey("db", ""), errors.New("timeout")), ReasonTransient},
		{"nil", nil, ReasonPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err, nil); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewRecord(t *testing.T) {
	err := batchErr(batching.HTTPKey("telemetry", "week"), batching.Permanent(errors.New("database not found")))

	rec := NewRecord(lines(3), err, 0, nil)

	if rec.ID == "" {
		t.Error("ID is empty")
	}
	if rec.Destination != "telemetry.week" {
		t.Errorf("Destination = %q, want telemetry.week", rec.Destination)
	}
	if rec.Consistency != "one" {
		t.Errorf("Consistency = %q, want one", rec.Consistency)
	}
	if rec.Reason != ReasonPermanent {
		t.Errorf("Reason = %q, want permanent", rec.Reason)
	}
	if !strings.Contains(rec.Error, "database not found") {
		t.Errorf("Error = %q", rec.Error)
	}
	if rec.PointCount != 3 || len(rec.Payload) != 3 || rec.Truncated {
		t.Errorf("count = %d, payload = %d, truncated = %v", rec.PointCount, len(rec.Payload), rec.Truncated)
	}
	if rec.Payload[2] != "cpu value=2" {
		t.Errorf("Payload[2] = %q", rec.Payload[2])
	}
}

func TestNewRecord_Truncates(t *testing.T) {
	rec := NewRecord(lines(10), errors.New("x"), 4, nil)

	if rec.PointCount != 10 {
		t.Errorf("PointCount = %d, want 10", rec.PointCount)
	}
	if len(rec.Payload) != 4 || !rec.Truncated {
		t.Errorf("payload = %d, truncated = %v, want 4 and true", len(rec.Payload), rec.Truncated)
	}
}

func TestNewRecord_WithoutBatchError(t *testing.T) {
	rec := NewRecord(lines(1), fmt.Errorf("%w: panic", batching.ErrSchedulerFault), 0, nil)
	if rec.Destination != "unknown" {
		t.Errorf("Destination = %q, want unknown", rec.Destination)
	}
}

// ===== Handler =====

type memorySink struct {
	name string
	err  error

	mu      sync.Mutex
	records []*Record
}

func (s *memorySink) Name() string { return s.name }

func (s *memorySink) Save(ctx context.Context, rec *Record) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("no deadline")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return s.err
}

type recordingLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg)
}

func TestHandler_FansOutToEverySink(t *testing.T) {
	log := &recordingLogger{}
	failing := &memorySink{name: "failing", err: errors.New("disk full")}
	ok := &memorySink{name: "ok"}

	h := Handler(Options{Logger: log, Timeout: time.Second}, failing, ok)
	h(lines(2), batchErr(batching.UDPKey(8089), batching.ErrBufferOverrun))

	if len(failing.records) != 1 || len(ok.records) != 1 {
		t.Fatalf("records = %d/%d, want 1/1", len(failing.records), len(ok.records))
	}
	if failing.records[0] != ok.records[0] {
		t.Error("sinks received different records")
	}
	rec := ok.records[0]
	if rec.Destination != "udp:8089" || rec.Reason != ReasonBufferOverrun {
		t.Errorf("record = %s/%s", rec.Destination, rec.Reason)
	}

	want := []string{"points dropped", "dead letter sink failed"}
	if fmt.Sprint(log.msgs) != fmt.Sprint(want) {
		t.Errorf("log = %v, want %v", log.msgs, want)
	}
}

func TestHandler_NoLoggerNoSinks(t *testing.T) {
	h := Handler(Options{})
	h(lines(1), errors.New("x"))
}

func TestHandler_UsesRetryableClassifier(t *testing.T) {
	sink := &memorySink{name: "m"}
	h := Handler(Options{Retryable: func(error) bool { return false }}, sink)
	h(lines(1), errors.New("timeout"))

	if sink.records[0].Reason != ReasonPermanent {
		t.Errorf("Reason = %q, want permanent", sink.records[0].Reason)
	}
}

// ===== SQLiteStore =====

func openStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteStore(db.DB)
}

func TestSQLiteStore_SaveListCount(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	base := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec := NewRecord(lines(i+1), batchErr(batching.HTTPKey("db", ""), batching.ErrBufferOverrun), 2, nil)
		rec.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := store.Save(ctx, rec); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Count() = %d, want 3", n)
	}

	records, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("List() returned %d records, want 2", len(records))
	}

	newest := records[0]
	if newest.PointCount != 3 || !newest.Truncated || len(newest.Payload) != 2 {
		t.Errorf("newest = count %d, truncated %v, payload %d", newest.PointCount, newest.Truncated, len(newest.Payload))
	}
	if newest.Reason != ReasonBufferOverrun || newest.Destination != "db" {
		t.Errorf("newest = %s/%s", newest.Reason, newest.Destination)
	}
	if !newest.CreatedAt.Equal(base.Add(2 * time.Second)) {
		t.Errorf("CreatedAt = %v", newest.CreatedAt)
	}
	if records[1].PointCount != 2 {
		t.Errorf("second PointCount = %d, want 2", records[1].PointCount)
	}
}

func TestSQLiteStore_ListOrdersSubSecondTimestamps(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	base := time.Date(2026, 10, 18, 12, 0, 1, 0, time.UTC)
	offsets := []time.Duration{0, 100 * time.Millisecond, -100 * time.Millisecond}
	for i, off := range offsets {
		rec := NewRecord(lines(i+1), errors.New("x"), 0, nil)
		rec.CreatedAt = base.Add(off)
		if err := store.Save(ctx, rec); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	records, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []time.Time{
		base.Add(100 * time.Millisecond),
		base,
		base.Add(-100 * time.Millisecond),
	}
	if len(records) != len(want) {
		t.Fatalf("List() returned %d records, want %d", len(records), len(want))
	}
	for i, w := range want {
		if !records[i].CreatedAt.Equal(w) {
			t.Errorf("records[%d].CreatedAt = %v, want %v", i, records[i].CreatedAt, w)
		}
	}
}

func TestSQLiteStore_ListEmpty(t *testing.T) {
	store := openStore(t)

	records, err := store.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Errorf("List() = %v, want empty slice", records)
	}
}

func TestSQLiteStore_DuplicateID(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	rec := NewRecord(lines(1), errors.New("x"), 0, nil)
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Save(ctx, rec); err == nil {
		t.Error("Save() with duplicate id succeeded")
	}
}

// ===== MQTTPublisher =====

type fakePublisher struct {
	topic string
	value any
	err   error
}

func (f *fakePublisher) PublishJSON(topic string, v any) error {
	f.topic = topic
	f.value = v
	return f.err
}

func TestMQTTPublisher_Save(t *testing.T) {
	client := &fakePublisher{}
	pub := NewMQTTPublisher(client, mqtt.NewTopics("site"))

	rec := NewRecord(lines(1), batchErr(batching.HTTPKey("db", ""), batching.Permanent(errors.New("bad"))), 0, nil)
	if err := pub.Save(context.Background(), rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if client.topic != "site/deadletter/permanent" {
		t.Errorf("topic = %q", client.topic)
	}
	if client.value != rec {
		t.Error("published value is not the record")
	}
}

func TestMQTTPublisher_Errors(t *testing.T) {
	rec := NewRecord(lines(1), errors.New("x"), 0, nil)

	pub := NewMQTTPublisher(&fakePublisher{err: mqtt.ErrNotConnected}, mqtt.NewTopics(""))
	if err := pub.Save(context.Background(), rec); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Save() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := &fakePublisher{}
	if err := NewMQTTPublisher(client, mqtt.NewTopics("")).Save(ctx, rec); !errors.Is(err, context.Canceled) {
		t.Errorf("Save() error = %v, want context.Canceled", err)
	}
	if client.topic != "" {
		t.Error("published despite cancelled context")
	}
}
