package store

import (
	"errors"
	"strings"
	"time"
)

// ErrInvalidPayload is returned by Enqueue when a payload fails validation.
var ErrInvalidPayload = errors.New("invalid fuel event payload")

// FuelEventPayload is the domain record submitted to the remote fuel-log
// service. It is persisted verbatim in the pending queue until submission
// succeeds.
type FuelEventPayload struct {
	VehicleID   string    `json:"vehicle_id"`
	EventDate   time.Time `json:"event_date"`
	Quantity    float64   `json:"quantity"`
	UnitPrice   float64   `json:"unit_price"`
	Odometer    float64   `json:"odometer"`
	IsFullEvent bool      `json:"is_full_event"`
	Note        string    `json:"note,omitempty"`
	Latitude    *float64  `json:"latitude,omitempty"`
	Longitude   *float64  `json:"longitude,omitempty"`
}

// Validate enforces the queue invariants: quantity and odometer are always
// positive, and a record must name its target vehicle.
func (p FuelEventPayload) Validate() error {
	if strings.TrimSpace(p.VehicleID) == "" {
		return errors.Join(ErrInvalidPayload, errors.New("vehicle id is required"))
	}
	if p.Quantity <= 0 {
		return errors.Join(ErrInvalidPayload, errors.New("quantity must be positive"))
	}
	if p.Odometer <= 0 {
		return errors.Join(ErrInvalidPayload, errors.New("odometer must be positive"))
	}
	if p.EventDate.IsZero() {
		return errors.Join(ErrInvalidPayload, errors.New("event date is required"))
	}
	return nil
}

// QueuedRecord is a fuel event buffered locally while the device is offline
// or the remote service is unavailable. QueuedAt is authoritative for FIFO
// ordering and for conflict "since" queries; the idempotency key is sent on
// every submission attempt so retries after ambiguous network failures do not
// create duplicate server records.
type QueuedRecord struct {
	ID             string           `json:"id"`
	IdempotencyKey string           `json:"idempotency_key"`
	QueuedAt       time.Time        `json:"queued_at"`
	Payload        FuelEventPayload `json:"payload"`
}

// DrainRecord summarizes one full pass over the pending queue.
type DrainRecord struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Attempted   int       `json:"attempted"`
	Synced      int       `json:"synced"`
	Conflicts   int       `json:"conflicts"`
	Failed      int       `json:"failed"`
}
