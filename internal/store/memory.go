package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps the pending queue in memory. It honors the same FIFO and
// idempotence contracts as the SQLite backend but loses state on restart, so
// it is only suitable for tests and ephemeral runs.
type MemoryStore struct {
	mu      sync.Mutex
	records []*QueuedRecord
	history []*DrainRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) Enqueue(ctx context.Context, payload FuelEventPayload) (*QueuedRecord, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	rec := &QueuedRecord{
		ID:             uuid.New().String(),
		IdempotencyKey: uuid.New().String(),
		QueuedAt:       time.Now().UTC(),
		Payload:        payload,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return cloneRecord(rec), nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*QueuedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.ID == id {
			return cloneRecord(rec), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*QueuedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Appends preserve insertion order and QueuedAt is assigned under the
	// same lock, so the slice is already in FIFO order.
	out := make([]*QueuedRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, cloneRecord(rec))
	}
	return out, nil
}

func (s *MemoryStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range s.records {
		if rec.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	return nil
}

func (s *MemoryStore) RecordDrain(ctx context.Context, rec *DrainRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	copied := *rec
	s.history = append(s.history, &copied)
	return nil
}

func (s *MemoryStore) DrainHistory(ctx context.Context, limit int) ([]*DrainRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	var out []*DrainRecord
	for i := len(s.history) - 1; i >= 0 && len(out) < limit; i-- {
		copied := *s.history[i]
		out = append(out, &copied)
	}
	return out, nil
}

func cloneRecord(rec *QueuedRecord) *QueuedRecord {
	copied := *rec
	return &copied
}
