package model

import "time"

// BookingStatus is the state of a booking.  The only transition is
// BOOKED -> CANCELLED; CANCELLED is terminal.
type BookingStatus string

const (
	BookingStatusBooked    BookingStatus = "BOOKED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

// Active reports whether the status counts against slot capacity.
func (s BookingStatus) Active() bool { return s == BookingStatusBooked }

// Booking records a user's reservation against a time slot.  Rows are
// never deleted by the ledger; cancelling only flips the status, so
// the table doubles as the booking history.
//
// Fields:
//  ID         – primary key identifier.
//  UserID     – user who made the booking.
//  TimeSlotID – slot being booked.
//  Status     – BOOKED or CANCELLED.
//  CreatedAt  – creation timestamp.
//  UpdatedAt  – last status change.
type Booking struct {
	ID         uint64        // bookings.id
	UserID     uint64        // bookings.user_id
	TimeSlotID uint64        // bookings.time_slot_id
	Status     BookingStatus // bookings.status
	CreatedAt  time.Time     // bookings.created_at
	UpdatedAt  time.Time     // bookings.updated_at
}
