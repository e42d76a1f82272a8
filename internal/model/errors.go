package model

import "errors"

// Sentinel errors shared by the ledger, the repositories and the HTTP
// layer.  Handlers translate them into status codes; anything else is
// treated as an internal failure.
var (
	ErrSlotNotFound     = errors.New("time slot not found")
	ErrBookingNotFound  = errors.New("booking not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrUserNotFound     = errors.New("user not found")

	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")

	ErrDuplicateBooking = errors.New("already booked this slot")
	ErrSlotFull         = errors.New("slot is full")
	ErrInvalidCategory  = errors.New("category does not exist")
	ErrInvalidCapacity  = errors.New("max_capacity must be between 1 and 4294967295")
	ErrInvalidTimeRange = errors.New("end_time must be after start_time")

	// Returned only when the matching service.Policy switch is on.
	ErrCapacityBelowBooked = errors.New("max_capacity below active bookings")
	ErrSlotHasBookings     = errors.New("slot has active bookings")

	ErrEmailExists = errors.New("email already exists")

	// Unknown, revoked or expired refresh token.
	ErrInvalidRefresh = errors.New("invalid refresh token")
)
