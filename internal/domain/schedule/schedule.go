// Package schedule holds the domain types for the scheduling sidecar —
// the one platform service the console must assume is down more often
// than it is up.
package schedule

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrInvalidBooking = errors.New("invalid booking request")
)

// Availability is the console's last known reachability of the
// scheduling service. It starts Unknown and follows every live outcome.
type Availability int32

// Availability states
const (
	AvailabilityUnknown Availability = iota
	AvailabilityUp
	AvailabilityDown
)

func (a Availability) String() string {
	switch a {
	case AvailabilityUp:
		return "up"
	case AvailabilityDown:
		return "down"
	default:
		return "unknown"
	}
}

// Slot is one bookable agent-handoff window.
type Slot struct {
	ID    string    `json:"id" validate:"required"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Agent string    `json:"agent,omitempty"`
}

// BookingStatus represents the lifecycle of a booking
type BookingStatus string

// Predefined booking statuses. StatusDeferred is console-local: it marks
// a booking that never reached the service because it was unavailable.
const (
	StatusConfirmed BookingStatus = "confirmed"
	StatusPending   BookingStatus = "pending"
	StatusRejected  BookingStatus = "rejected"
	StatusDeferred  BookingStatus = "deferred"
)

// BookingRequest asks the scheduling service to reserve a slot.
type BookingRequest struct {
	SlotID         string `json:"slot_id"`
	Subject        string `json:"subject"`
	Notes          string `json:"notes,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Validate checks the request names a slot and a subject.
func (r BookingRequest) Validate() error {
	if r.SlotID == "" || r.Subject == "" {
		return ErrInvalidBooking
	}
	return nil
}

// Booking is the scheduling service's answer to a booking request.
type Booking struct {
	ID        string        `json:"id"`
	SlotID    string        `json:"slot_id"`
	Confirmed bool          `json:"confirmed"`
	Status    BookingStatus `json:"status"`
}

// Deferred builds the console-local fallback booking used when the
// scheduling service cannot be reached.
func Deferred(slotID string) Booking {
	return Booking{SlotID: slotID, Confirmed: false, Status: StatusDeferred}
}
