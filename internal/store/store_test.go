package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func validPayload(odometer float64) FuelEventPayload {
	return FuelEventPayload{
		VehicleID: "veh_1",
		EventDate: time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
		Quantity:  42.5,
		UnitPrice: 1.79,
		Odometer:  odometer,
	}
}

func testBackends(t *testing.T) map[string]Store {
	t.Helper()
	sqlStore, err := NewSQLiteStore(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("new sqlite store failed: %v", err)
	}
	t.Cleanup(func() { sqlStore.Close() })
	return map[string]Store{
		"sqlite": sqlStore,
		"memory": NewMemoryStore(),
	}
}

func TestEnqueueAssignsIdentityAndTimestamp(t *testing.T) {
	for name, st := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec, err := st.Enqueue(ctx, validPayload(50000))
			if err != nil {
				t.Fatalf("enqueue failed: %v", err)
			}
			if rec.ID == "" || rec.IdempotencyKey == "" {
				t.Fatalf("expected id and idempotency key, got %+v", rec)
			}
			if rec.QueuedAt.IsZero() {
				t.Fatalf("expected queued timestamp to be set")
			}
			if rec.Payload.Odometer != 50000 {
				t.Fatalf("payload not preserved: %+v", rec.Payload)
			}
		})
	}
}

func TestEnqueueRejectsInvalidPayload(t *testing.T) {
	cases := map[string]FuelEventPayload{
		"zero quantity":   {VehicleID: "veh_1", EventDate: time.Now(), Quantity: 0, Odometer: 100},
		"negative odo":    {VehicleID: "veh_1", EventDate: time.Now(), Quantity: 10, Odometer: -1},
		"missing vehicle": {EventDate: time.Now(), Quantity: 10, Odometer: 100},
		"zero event date": {VehicleID: "veh_1", Quantity: 10, Odometer: 100},
	}
	for name, st := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for caseName, payload := range cases {
				if _, err := st.Enqueue(ctx, payload); !errors.Is(err, ErrInvalidPayload) {
					t.Fatalf("%s: expected ErrInvalidPayload, got %v", caseName, err)
				}
			}
			count, err := st.Count(ctx)
			if err != nil {
				t.Fatalf("count failed: %v", err)
			}
			if count != 0 {
				t.Fatalf("expected empty queue after rejected enqueues, got %d", count)
			}
		})
	}
}

func TestListReturnsFIFOOrder(t *testing.T) {
	for name, st := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var ids []string
			for i := 0; i < 5; i++ {
				rec, err := st.Enqueue(ctx, validPayload(float64(50000+i)))
				if err != nil {
					t.Fatalf("enqueue %d failed: %v", i, err)
				}
				ids = append(ids, rec.ID)
			}

			records, err := st.List(ctx)
			if err != nil {
				t.Fatalf("list failed: %v", err)
			}
			if len(records) != len(ids) {
				t.Fatalf("expected %d records, got %d", len(ids), len(records))
			}
			for i, rec := range records {
				if rec.ID != ids[i] {
					t.Fatalf("position %d: expected %s, got %s", i, ids[i], rec.ID)
				}
				if i > 0 && records[i-1].QueuedAt.After(rec.QueuedAt) {
					t.Fatalf("queue times not non-decreasing at position %d", i)
				}
			}
		})
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	for name, st := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec, err := st.Enqueue(ctx, validPayload(50000))
			if err != nil {
				t.Fatalf("enqueue failed: %v", err)
			}

			if err := st.Remove(ctx, rec.ID); err != nil {
				t.Fatalf("first remove failed: %v", err)
			}
			if err := st.Remove(ctx, rec.ID); err != nil {
				t.Fatalf("second remove should be a no-op, got %v", err)
			}
			if err := st.Remove(ctx, "never-existed"); err != nil {
				t.Fatalf("removing unknown id should be a no-op, got %v", err)
			}

			count, err := st.Count(ctx)
			if err != nil {
				t.Fatalf("count failed: %v", err)
			}
			if count != 0 {
				t.Fatalf("expected 0 records, got %d", count)
			}
		})
	}
}

func TestCountMatchesList(t *testing.T) {
	for name, st := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 3; i++ {
				if _, err := st.Enqueue(ctx, validPayload(float64(60000+i))); err != nil {
					t.Fatalf("enqueue failed: %v", err)
				}
			}
			count, err := st.Count(ctx)
			if err != nil {
				t.Fatalf("count failed: %v", err)
			}
			records, err := st.List(ctx)
			if err != nil {
				t.Fatalf("list failed: %v", err)
			}
			if count != len(records) {
				t.Fatalf("count %d does not match list length %d", count, len(records))
			}
		})
	}
}

func TestClearEmptiesQueue(t *testing.T) {
	for name, st := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 3; i++ {
				if _, err := st.Enqueue(ctx, validPayload(float64(60000+i))); err != nil {
					t.Fatalf("enqueue failed: %v", err)
				}
			}
			if err := st.Clear(ctx); err != nil {
				t.Fatalf("clear failed: %v", err)
			}
			count, err := st.Count(ctx)
			if err != nil {
				t.Fatalf("count failed: %v", err)
			}
			if count != 0 {
				t.Fatalf("expected empty queue after clear, got %d", count)
			}
		})
	}
}

func TestGetReturnsNilForUnknownID(t *testing.T) {
	for name, st := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec, err := st.Get(ctx, "missing")
			if err != nil {
				t.Fatalf("get failed: %v", err)
			}
			if rec != nil {
				t.Fatalf("expected nil for unknown id, got %+v", rec)
			}
		})
	}
}

func TestSQLiteQueuePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queue.db")

	st, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("new sqlite store failed: %v", err)
	}
	first, err := st.Enqueue(ctx, validPayload(50000))
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	second, err := st.Enqueue(ctx, validPayload(50100))
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	records, err := reopened.List(ctx)
	if err != nil {
		t.Fatalf("list after reopen failed: %v", err)
	}
	if len(records) != 2 || records[0].ID != first.ID || records[1].ID != second.ID {
		t.Fatalf("expected [%s %s] after reopen, got %+v", first.ID, second.ID, records)
	}
	if records[0].IdempotencyKey != first.IdempotencyKey {
		t.Fatalf("idempotency key not preserved across reopen")
	}
}

func TestDrainHistoryNewestFirst(t *testing.T) {
	for name, st := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
			for i := 0; i < 3; i++ {
				rec := &DrainRecord{
					StartedAt:   base.Add(time.Duration(i) * time.Minute),
					CompletedAt: base.Add(time.Duration(i)*time.Minute + 10*time.Second),
					Attempted:   i + 1,
					Synced:      i,
				}
				if err := st.RecordDrain(ctx, rec); err != nil {
					t.Fatalf("record drain failed: %v", err)
				}
			}

			history, err := st.DrainHistory(ctx, 2)
			if err != nil {
				t.Fatalf("drain history failed: %v", err)
			}
			if len(history) != 2 {
				t.Fatalf("expected 2 entries, got %d", len(history))
			}
			if history[0].Attempted != 3 || history[1].Attempted != 2 {
				t.Fatalf("expected newest first, got %+v", history)
			}
		})
	}
}
