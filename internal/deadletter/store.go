package deadletter

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Limits for List.
const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// timestampLayout is fixed width so created_at sorts correctly as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore keeps records in the dead_letters table.
type SQLiteStore struct {
	db *sql.DB
}

var _ Sink = (*SQLiteStore)(nil)

// NewSQLiteStore creates a store on a migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Name identifies the sink in logs.
func (s *SQLiteStore) Name() string {
	return "sqlite"
}

// Save inserts rec.
func (s *SQLiteStore) Save(ctx context.Context, rec *Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dead_letters (id, destination, consistency, reason, error, point_count, payload, truncated, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Destination, rec.Consistency, string(rec.Reason), rec.Error,
		rec.PointCount, strings.Join(rec.Payload, "\n"), boolToInt(rec.Truncated),
		rec.CreatedAt.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting dead letter: %w", err)
	}
	return nil
}

// List returns the most recent records first. limit is clamped to
// [1, 500]; zero or less means 50.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, destination, consistency, reason, error, point_count, payload, truncated, created_at
		 FROM dead_letters ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying dead letters: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var rec Record
		var reason, payload, createdAt string
		var truncated int

		if err := rows.Scan(&rec.ID, &rec.Destination, &rec.Consistency, &reason, &rec.Error,
			&rec.PointCount, &payload, &truncated, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning dead letter: %w", err)
		}

		rec.Reason = Reason(reason)
		rec.Truncated = truncated != 0
		rec.Payload = []string{}
		if payload != "" {
			rec.Payload = strings.Split(payload, "\n")
		}

		t, err := time.Parse(timestampLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing dead letter timestamp %q: %w", createdAt, err)
		}
		rec.CreatedAt = t

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dead letters: %w", err)
	}

	return records, nil
}

// Count returns the number of stored records.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM dead_letters").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting dead letters: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
