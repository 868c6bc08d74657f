package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS pending_queue (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	id              TEXT NOT NULL UNIQUE,
	idempotency_key TEXT NOT NULL,
	queued_at       INTEGER NOT NULL,
	payload         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pending_queue_queued_at ON pending_queue(queued_at);

CREATE TABLE IF NOT EXISTS drain_history (
	id           TEXT PRIMARY KEY,
	started_at   INTEGER NOT NULL,
	completed_at INTEGER NOT NULL,
	attempted    INTEGER NOT NULL,
	synced       INTEGER NOT NULL,
	conflicts    INTEGER NOT NULL,
	failed       INTEGER NOT NULL
);
`

// SQLiteStore persists the pending queue in a local SQLite database. Records
// are short-lived (synced within seconds to days) so there is no migration
// machinery beyond the idempotent schema above.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &StorageError{Op: "open", Err: err}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}

	// SQLite supports a single writer; serializing through one connection
	// keeps enqueue/remove atomic at record granularity.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, &StorageError{Op: "open", Err: err}
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, &StorageError{Op: "open", Err: err}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, &StorageError{Op: "migrate", Err: err}
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Enqueue(ctx context.Context, payload FuelEventPayload) (*QueuedRecord, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	rec := &QueuedRecord{
		ID:             uuid.New().String(),
		IdempotencyKey: uuid.New().String(),
		QueuedAt:       time.Now().UTC(),
		Payload:        payload,
	}

	body, err := json.Marshal(rec.Payload)
	if err != nil {
		return nil, &StorageError{Op: "enqueue", Err: err}
	}

	query := `INSERT INTO pending_queue (id, idempotency_key, queued_at, payload)
			  VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.IdempotencyKey, rec.QueuedAt.UnixNano(), string(body),
	); err != nil {
		return nil, &StorageError{Op: "enqueue", Err: err}
	}

	return rec, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*QueuedRecord, error) {
	query := `SELECT id, idempotency_key, queued_at, payload
			  FROM pending_queue WHERE id = ?`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "get", Err: err}
	}
	return rec, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]*QueuedRecord, error) {
	query := `SELECT id, idempotency_key, queued_at, payload
			  FROM pending_queue ORDER BY queued_at ASC, seq ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	defer rows.Close()

	var records []*QueuedRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, &StorageError{Op: "list", Err: err}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	return records, nil
}

func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_queue WHERE id = ?`, id); err != nil {
		return &StorageError{Op: "remove", Err: err}
	}
	return nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_queue`).Scan(&n); err != nil {
		return 0, &StorageError{Op: "count", Err: err}
	}
	return n, nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_queue`); err != nil {
		return &StorageError{Op: "clear", Err: err}
	}
	return nil
}

func (s *SQLiteStore) RecordDrain(ctx context.Context, rec *DrainRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	query := `INSERT INTO drain_history (id, started_at, completed_at, attempted, synced, conflicts, failed)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.StartedAt.UnixNano(),
		rec.CompletedAt.UnixNano(),
		rec.Attempted,
		rec.Synced,
		rec.Conflicts,
		rec.Failed,
	); err != nil {
		return &StorageError{Op: "record_drain", Err: err}
	}
	return nil
}

func (s *SQLiteStore) DrainHistory(ctx context.Context, limit int) ([]*DrainRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, started_at, completed_at, attempted, synced, conflicts, failed
			  FROM drain_history ORDER BY started_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, &StorageError{Op: "drain_history", Err: err}
	}
	defer rows.Close()

	var history []*DrainRecord
	for rows.Next() {
		var rec DrainRecord
		var started, completed int64
		if err := rows.Scan(&rec.ID, &started, &completed, &rec.Attempted, &rec.Synced, &rec.Conflicts, &rec.Failed); err != nil {
			return nil, &StorageError{Op: "drain_history", Err: err}
		}
		rec.StartedAt = time.Unix(0, started).UTC()
		rec.CompletedAt = time.Unix(0, completed).UTC()
		history = append(history, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "drain_history", Err: err}
	}
	return history, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*QueuedRecord, error) {
	var rec QueuedRecord
	var queuedAt int64
	var body string
	if err := row.Scan(&rec.ID, &rec.IdempotencyKey, &queuedAt, &body); err != nil {
		return nil, err
	}
	rec.QueuedAt = time.Unix(0, queuedAt).UTC()
	if err := json.Unmarshal([]byte(body), &rec.Payload); err != nil {
		return nil, fmt.Errorf("decode payload for %s: %w", rec.ID, err)
	}
	return &rec, nil
}
