package sync

import (
	"fmt"
	"time"

	"fuellog-sync-service/internal/remote"
	"fuellog-sync-service/internal/store"
)

// Classification describes how a queued record overlaps remote data.
type Classification string

const (
	// ClassificationOdometerOverlap marks ambiguous odometer proximity.
	ClassificationOdometerOverlap Classification = "odometer_overlap"
	// ClassificationPotentialDuplicate marks a near-exact match on both
	// odometer and quantity, almost certainly the same physical fill-up.
	ClassificationPotentialDuplicate Classification = "potential_duplicate"
)

// Conflict is a detected overlap between a queued record and events that
// appeared on the server after the record was queued. Conflicts are never
// persisted; an unresolved conflict is rediscovered on the next drain.
type Conflict struct {
	Record         *store.QueuedRecord `json:"record"`
	Overlapping    []remote.Record     `json:"overlapping"`
	Classification Classification      `json:"classification"`
	DetectedAt     time.Time           `json:"detected_at"`
}

func (c *Conflict) String() string {
	return fmt.Sprintf("[%s] record %s vs %d remote event(s)", c.Classification, c.Record.ID, len(c.Overlapping))
}

// Resolution is a caller choice for an unresolved conflict.
type Resolution string

const (
	ResolutionKeepMine   Resolution = "keep_mine"
	ResolutionKeepServer Resolution = "keep_server"
	ResolutionKeepBoth   Resolution = "keep_both"
)

func (r Resolution) IsValid() bool {
	switch r {
	case ResolutionKeepMine, ResolutionKeepServer, ResolutionKeepBoth:
		return true
	default:
		return false
	}
}

// Outcome reports the result of one submission attempt for one record. It is
// consumed synchronously by the caller and never persisted.
type Outcome struct {
	RecordID     string    `json:"record_id"`
	Success      bool      `json:"success"`
	RetryCount   int       `json:"retry_count"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Conflict     *Conflict `json:"conflict,omitempty"`
}

// DrainResult aggregates one full sequential pass over the queue.
type DrainResult struct {
	Outcomes    []Outcome `json:"outcomes"`
	SyncedCount int       `json:"synced_count"`
}

// SubmitOptions tunes a single submission. The zero value checks conflicts,
// matching the default drain behavior.
type SubmitOptions struct {
	SkipConflictCheck bool
}

// RetryPolicy bounds the retry loop for retryable submission failures.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// Delay returns the backoff before retry n (0-indexed):
// min(BaseDelay * 2^n, MaxDelay).
func (p RetryPolicy) Delay(n int) time.Duration {
	delay := p.BaseDelay
	for i := 0; i < n; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}
