package sync

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"fuellog-sync-service/internal/logger"
	"fuellog-sync-service/internal/remote"
	"fuellog-sync-service/internal/store"
)

// Overlap thresholds. Odometer values within the same-event window are likely
// the same physical fill-up entered twice; the wider window only counts when
// the event dates fall on the same day, allowing for sensor drift.
const (
	sameEventOdometerWindow = 50.0
	sameDayOdometerWindow   = 200.0
	sameDayWindow           = 24 * time.Hour

	duplicateOdometerWindow = 5.0
	duplicateQuantityWindow = 0.5

	defaultConflictPageSize = 10
)

// Detector classifies queued records against events that appeared on the
// server after the record was queued.
type Detector struct {
	client   remote.Client
	pageSize int
}

func NewDetector(client remote.Client, pageSize int) *Detector {
	if pageSize <= 0 {
		pageSize = defaultConflictPageSize
	}
	return &Detector{
		client:   client,
		pageSize: pageSize,
	}
}

// Detect returns the conflict for a queued record, or nil when the record is
// clear to submit. Detection fails open: a failed remote lookup is collapsed
// to "no conflict" so that sync proceeds unblocked. Duplicate prevention here
// is an optimization, not a correctness guarantee.
func (d *Detector) Detect(ctx context.Context, rec *store.QueuedRecord) *Conflict {
	candidates, err := d.lookupCandidates(ctx, rec)
	if err != nil {
		logger.Log.Warn("conflict lookup failed, proceeding without check",
			zap.String("recordID", rec.ID),
			zap.Error(err),
		)
		return nil
	}
	if len(candidates) == 0 {
		return nil
	}

	var overlapping []remote.Record
	classification := ClassificationOdometerOverlap
	for _, candidate := range candidates {
		odoDiff := math.Abs(candidate.Odometer - rec.Payload.Odometer)
		if !overlaps(odoDiff, candidate.Date, rec.Payload.EventDate) {
			continue
		}
		overlapping = append(overlapping, candidate)

		qtyDiff := math.Abs(candidate.Quantity - rec.Payload.Quantity)
		if odoDiff < duplicateOdometerWindow && qtyDiff < duplicateQuantityWindow {
			classification = ClassificationPotentialDuplicate
		}
	}
	if len(overlapping) == 0 {
		return nil
	}

	return &Conflict{
		Record:         rec,
		Overlapping:    overlapping,
		Classification: classification,
		DetectedAt:     time.Now().UTC(),
	}
}

func (d *Detector) lookupCandidates(ctx context.Context, rec *store.QueuedRecord) ([]remote.Record, error) {
	return d.client.ListFuelEventsSince(ctx, rec.Payload.VehicleID, rec.QueuedAt, d.pageSize)
}

func overlaps(odoDiff float64, candidateDate, eventDate time.Time) bool {
	if odoDiff < sameEventOdometerWindow {
		return true
	}
	if odoDiff < sameDayOdometerWindow {
		dateDiff := candidateDate.Sub(eventDate)
		if dateDiff < 0 {
			dateDiff = -dateDiff
		}
		return dateDiff < sameDayWindow
	}
	return false
}
