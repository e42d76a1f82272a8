// Package queue defines message payloads exchanged over the message broker.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// Exchange and queue names shared by the publisher and the consumer.
const (
	ExchangeName   = "booking.events"
	AuditQueueName = "booking.audit"
)

// Event kinds double as AMQP routing keys.
const (
	EventBookingCreated   = "booking.created"
	EventBookingCancelled = "booking.cancelled"
	EventSlotDeleted      = "slot.deleted"
)

// BookingEvent is published after a ledger change commits.  It carries
// only identifiers; consumers that need more detail query the API.
type BookingEvent struct {
	EventID    string `json:"event_id"`
	Kind       string `json:"kind"`
	BookingID  uint64 `json:"booking_id,omitempty"`
	UserID     uint64 `json:"user_id"`
	TimeSlotID uint64 `json:"time_slot_id"`
	OccurredAt string `json:"occurred_at"`
}

// NewBookingEvent stamps a fresh event id and an RFC3339 UTC timestamp.
func NewBookingEvent(kind string, bookingID, userID, slotID uint64, at time.Time) BookingEvent {
	return BookingEvent{
		EventID:    uuid.NewString(),
		Kind:       kind,
		BookingID:  bookingID,
		UserID:     userID,
		TimeSlotID: slotID,
		OccurredAt: at.UTC().Format(time.RFC3339),
	}
}
