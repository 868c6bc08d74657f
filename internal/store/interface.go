package store

import (
	"context"
	"fmt"
)

// StorageError marks a failure of the local persistence medium. The sync
// engine never retries these itself; they propagate to the caller because
// there is no safe default when local storage is broken.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Store is the durable pending queue. All mutations are atomic at
// single-record granularity.
type Store interface {
	// Enqueue assigns an id, idempotency key and queue timestamp, persists
	// the record and returns it. Payload validation errors are returned
	// as ErrInvalidPayload, persistence failures as *StorageError.
	Enqueue(ctx context.Context, payload FuelEventPayload) (*QueuedRecord, error)

	// Get returns the record with the given id, or nil when absent.
	Get(ctx context.Context, id string) (*QueuedRecord, error)

	// List returns a snapshot of all queued records in FIFO order
	// (ascending queue time, insertion order breaking ties).
	List(ctx context.Context) ([]*QueuedRecord, error)

	// Remove deletes a record by id. Removing an unknown id is a no-op.
	Remove(ctx context.Context, id string) error

	// Count reports the exact number of queued records.
	Count(ctx context.Context) (int, error)

	// Clear removes all queued records.
	Clear(ctx context.Context) error

	// RecordDrain appends a drain summary to the history log.
	RecordDrain(ctx context.Context, rec *DrainRecord) error

	// DrainHistory returns the most recent drain summaries, newest first.
	DrainHistory(ctx context.Context, limit int) ([]*DrainRecord, error)

	Close() error
}
