package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"fuellog-sync-service/internal/logger"
	"fuellog-sync-service/internal/remote"
	"fuellog-sync-service/internal/store"
)

// Notifier receives engine lifecycle events, typically to fan them out to the
// UI shell. All methods must be non-blocking.
type Notifier interface {
	DrainStarted(pending int)
	DrainCompleted(result DrainResult)
	ConflictDetected(conflict *Conflict)
}

// Engine drains the pending queue: conflict check, submission with bounded
// exponential backoff, per-record outcomes. Submission is strictly sequential
// because server-side MPG recalculation depends on odometer ordering.
//
// Engine methods return errors only for local storage failures; submission
// and conflict failures are always reported inside structured Outcomes so
// callers can process a heterogeneous batch without per-record error checks.
type Engine struct {
	store    store.Store
	client   remote.Client
	detector *Detector
	retry    RetryPolicy
	notifier Notifier

	// sleep is swapped out in tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error

	// At most one drain may be in flight; a second trigger is a no-op.
	draining atomic.Bool

	mu        sync.Mutex
	conflicts map[string]*Conflict
}

func NewEngine(st store.Store, client remote.Client, detector *Detector, policy RetryPolicy) *Engine {
	if policy.MaxRetries <= 0 {
		policy.MaxRetries = DefaultRetryPolicy().MaxRetries
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = DefaultRetryPolicy().BaseDelay
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = DefaultRetryPolicy().MaxDelay
	}
	return &Engine{
		store:     st,
		client:    client,
		detector:  detector,
		retry:     policy,
		sleep:     sleepContext,
		conflicts: make(map[string]*Conflict),
	}
}

// SetNotifier attaches an event sink. Must be called before the engine is in
// use.
func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

// Draining reports whether a drain pass is currently in flight.
func (e *Engine) Draining() bool {
	return e.draining.Load()
}

// SubmitOne pushes a single queued record to the remote service.
//
// With conflict checking enabled (the default), a detected conflict blocks
// submission and is returned inside the outcome; the record stays queued
// until the caller resolves it. Client-class rejections are not retried and
// also leave the record queued for manual intervention. Server-class and
// transport failures are retried with exponential backoff up to the policy
// bound.
func (e *Engine) SubmitOne(ctx context.Context, rec *store.QueuedRecord, opts SubmitOptions) (Outcome, error) {
	if !opts.SkipConflictCheck {
		if conflict := e.detector.Detect(ctx, rec); conflict != nil {
			e.rememberConflict(conflict)
			if e.notifier != nil {
				e.notifier.ConflictDetected(conflict)
			}
			logger.Log.Info("submission blocked by conflict",
				zap.String("recordID", rec.ID),
				zap.String("classification", string(conflict.Classification)),
				zap.Int("overlapping", len(conflict.Overlapping)),
			)
			return Outcome{RecordID: rec.ID, Conflict: conflict}, nil
		}
	}

	retries := 0
	for {
		_, err := e.client.CreateFuelEvent(ctx, rec.Payload, rec.IdempotencyKey)
		if err == nil {
			if rmErr := e.store.Remove(ctx, rec.ID); rmErr != nil {
				return Outcome{RecordID: rec.ID, RetryCount: retries, ErrorMessage: rmErr.Error()}, rmErr
			}
			e.forgetConflict(rec.ID)
			return Outcome{RecordID: rec.ID, Success: true, RetryCount: retries}, nil
		}

		var clientErr *remote.ClientError
		if errors.As(err, &clientErr) {
			// The server rejected the payload; retrying cannot help. The
			// record stays queued so the user can correct or discard it.
			logger.Log.Warn("submission rejected",
				zap.String("recordID", rec.ID),
				zap.Int("status", clientErr.StatusCode),
				zap.String("message", clientErr.Message),
			)
			return Outcome{RecordID: rec.ID, RetryCount: retries, ErrorMessage: clientErr.Message}, nil
		}

		if retries >= e.retry.MaxRetries {
			logger.Log.Warn("submission failed after retries",
				zap.String("recordID", rec.ID),
				zap.Int("retries", retries),
				zap.Error(err),
			)
			return Outcome{RecordID: rec.ID, RetryCount: retries, ErrorMessage: err.Error()}, nil
		}

		delay := e.retry.Delay(retries)
		logger.Log.Debug("submission failed, backing off",
			zap.String("recordID", rec.ID),
			zap.Int("retry", retries),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if waitErr := e.sleep(ctx, delay); waitErr != nil {
			return Outcome{RecordID: rec.ID, RetryCount: retries, ErrorMessage: waitErr.Error()}, nil
		}
		retries++
	}
}

// DrainQueue makes one sequential pass over the queue in FIFO order. Records
// that fail for any reason stay queued and the pass continues. If a drain is
// already in flight the call returns immediately with an empty result.
func (e *Engine) DrainQueue(ctx context.Context) (DrainResult, error) {
	if !e.draining.CompareAndSwap(false, true) {
		return DrainResult{Outcomes: []Outcome{}}, nil
	}
	defer e.draining.Store(false)

	startedAt := time.Now().UTC()
	records, err := e.store.List(ctx)
	if err != nil {
		return DrainResult{Outcomes: []Outcome{}}, err
	}
	if len(records) == 0 {
		return DrainResult{Outcomes: []Outcome{}}, nil
	}

	if e.notifier != nil {
		e.notifier.DrainStarted(len(records))
	}
	logger.Log.Info("draining pending queue", zap.Int("pending", len(records)))

	result := DrainResult{Outcomes: make([]Outcome, 0, len(records))}
	conflicts, failed := 0, 0
	for _, rec := range records {
		outcome, err := e.SubmitOne(ctx, rec, SubmitOptions{})
		result.Outcomes = append(result.Outcomes, outcome)
		if err != nil {
			// Local storage failure; abort the pass with partial results.
			return result, err
		}
		switch {
		case outcome.Success:
			result.SyncedCount++
		case outcome.Conflict != nil:
			conflicts++
		default:
			failed++
		}
	}

	e.recordDrain(ctx, &store.DrainRecord{
		StartedAt:   startedAt,
		CompletedAt: time.Now().UTC(),
		Attempted:   len(records),
		Synced:      result.SyncedCount,
		Conflicts:   conflicts,
		Failed:      failed,
	})
	if e.notifier != nil {
		e.notifier.DrainCompleted(result)
	}
	logger.Log.Info("drain complete",
		zap.Int("attempted", len(records)),
		zap.Int("synced", result.SyncedCount),
		zap.Int("conflicts", conflicts),
		zap.Int("failed", failed),
	)
	return result, nil
}

// Resolve executes a caller choice for a detected conflict.
//
// keep_mine and keep_both resubmit with conflict checking disabled; the
// remote side recomputes derived fields either way, the distinction is only
// the caller's intent. keep_server discards the local record. Resolution is
// idempotent with respect to the queue: resolving keep_server twice relies on
// Remove being a no-op for unknown ids.
func (e *Engine) Resolve(ctx context.Context, conflict *Conflict, choice Resolution) (Outcome, error) {
	recordID := conflict.Record.ID
	switch choice {
	case ResolutionKeepMine, ResolutionKeepBoth:
		return e.SubmitOne(ctx, conflict.Record, SubmitOptions{SkipConflictCheck: true})
	case ResolutionKeepServer:
		if err := e.store.Remove(ctx, recordID); err != nil {
			return Outcome{RecordID: recordID, ErrorMessage: err.Error()}, err
		}
		e.forgetConflict(recordID)
		return Outcome{RecordID: recordID, Success: true}, nil
	default:
		return Outcome{
			RecordID:     recordID,
			ErrorMessage: fmt.Sprintf("invalid resolution %q", choice),
		}, nil
	}
}

// PendingConflicts returns the unresolved conflicts from past drain passes,
// oldest first. The set lives in memory only; after a restart conflicts are
// rediscovered on the next drain.
func (e *Engine) PendingConflicts() []*Conflict {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Conflict, 0, len(e.conflicts))
	for _, c := range e.conflicts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DetectedAt.Before(out[j].DetectedAt)
	})
	return out
}

// PendingConflict returns the unresolved conflict for a record, or nil.
func (e *Engine) PendingConflict(recordID string) *Conflict {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conflicts[recordID]
}

// ForgetConflict drops a pending conflict, used when the caller removes the
// underlying record directly.
func (e *Engine) ForgetConflict(recordID string) {
	e.forgetConflict(recordID)
}

func (e *Engine) rememberConflict(conflict *Conflict) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conflicts[conflict.Record.ID] = conflict
}

func (e *Engine) forgetConflict(recordID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.conflicts, recordID)
}

func (e *Engine) recordDrain(ctx context.Context, rec *store.DrainRecord) {
	// Drain history is operational telemetry; a write failure must not fail
	// the drain itself.
	if err := e.store.RecordDrain(ctx, rec); err != nil {
		logger.Log.Warn("failed to record drain history", zap.Error(err))
	}
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
