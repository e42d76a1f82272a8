// Package service holds the booking ledger: the capacity-aware
// reservation logic that sits between the HTTP handlers and storage,
// plus the publisher that fans ledger events out to RabbitMQ.
package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/iliyamo/slot-booking/internal/model"
	"github.com/iliyamo/slot-booking/internal/queue"
)

// Store is the persistence contract of the ledger.  Methods called inside
// WithTx must run on the transaction carried by the context.  The
// *ForUpdate reads take an exclusive lock on the row that is held until
// the transaction ends; the ledger relies on that lock to make its
// check-then-insert sequences atomic.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	GetSlot(ctx context.Context, slotID uint64) (model.TimeSlot, error)
	GetSlotForUpdate(ctx context.Context, slotID uint64) (model.TimeSlot, error)
	CreateSlot(ctx context.Context, slot *model.TimeSlot) error
	UpdateSlot(ctx context.Context, slot model.TimeSlot) error
	DeleteSlot(ctx context.Context, slotID uint64) error
	ListSlotAvailability(ctx context.Context, categoryIDs []uint64) ([]model.SlotAvailability, error)
	CategoryExists(ctx context.Context, categoryID uint64) (bool, error)

	CountActiveBookings(ctx context.Context, slotID uint64) (int, error)
	FindActiveBooking(ctx context.Context, userID, slotID uint64) (*model.Booking, error)
	CreateBooking(ctx context.Context, b *model.Booking) error
	GetBookingForUpdate(ctx context.Context, bookingID uint64) (model.Booking, error)
	UpdateBookingStatus(ctx context.Context, bookingID uint64, status model.BookingStatus) error
	ListBookingsByUser(ctx context.Context, userID uint64) ([]model.Booking, error)
}

// EventPublisher receives ledger events after the owning transaction has
// committed.  Publishing is best effort: a failure is logged and never
// undoes the committed change.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.BookingEvent) error
}

// Policy tightens two admin operations.  The zero value is permissive:
// capacity may drop below the booked count and deletes cascade.
type Policy struct {
	// EnforceCapacityFloor rejects lowering max_capacity below the number
	// of active bookings with model.ErrCapacityBelowBooked.
	EnforceCapacityFloor bool
	// BlockDeleteWithBookings rejects deleting a slot that still holds
	// active bookings with model.ErrSlotHasBookings.
	BlockDeleteWithBookings bool
}

// Ledger implements booking and slot management on top of a Store.
type Ledger struct {
	store   Store
	events  EventPublisher
	policy  Policy
	log     *slog.Logger
	now     func() time.Time
	publish time.Duration
}

// LedgerOption customises a Ledger.
type LedgerOption func(*Ledger)

// WithPolicy overrides the default (permissive) admin policy.
func WithPolicy(p Policy) LedgerOption {
	return func(l *Ledger) { l.policy = p }
}

// WithPublisher attaches an event publisher.  Without one, events are
// dropped silently.
func WithPublisher(p EventPublisher) LedgerOption {
	return func(l *Ledger) {
		if p != nil {
			l.events = p
		}
	}
}

// WithLogger sets the logger used for publish failures.
func WithLogger(log *slog.Logger) LedgerOption {
	return func(l *Ledger) {
		if log != nil {
			l.log = log
		}
	}
}

// WithClock replaces time.Now for event timestamps.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLedger builds a Ledger over store.
func NewLedger(store Store, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store:   store,
		events:  nopPublisher{},
		log:     slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
		publish: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Policy returns the admin policy in effect.
func (l *Ledger) Policy() Policy { return l.policy }

// CreateBooking reserves one spot of slotID for the actor.  The slot row
// is locked before the duplicate and capacity checks, so concurrent calls
// for the same slot are serialised and the active count can never exceed
// max_capacity.
func (l *Ledger) CreateBooking(ctx context.Context, actor model.Actor, slotID uint64) (model.Booking, error) {
	if actor.UserID == 0 {
		return model.Booking{}, model.ErrUnauthenticated
	}
	var booking model.Booking
	err := l.store.WithTx(ctx, func(ctx context.Context) error {
		slot, err := l.store.GetSlotForUpdate(ctx, slotID)
		if err != nil {
			return err
		}
		existing, err := l.store.FindActiveBooking(ctx, actor.UserID, slot.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return model.ErrDuplicateBooking
		}
		booked, err := l.store.CountActiveBookings(ctx, slot.ID)
		if err != nil {
			return err
		}
		if booked >= slot.MaxCapacity {
			return model.ErrSlotFull
		}
		booking = model.Booking{
			UserID:     actor.UserID,
			TimeSlotID: slot.ID,
			Status:     model.BookingStatusBooked,
		}
		return l.store.CreateBooking(ctx, &booking)
	})
	if err != nil {
		return model.Booking{}, err
	}
	l.emit(ctx, queue.EventBookingCreated, booking.ID, booking.UserID, booking.TimeSlotID)
	return booking, nil
}

// CancelBooking moves the actor's booking to CANCELLED.  Cancelling a
// booking that is already cancelled succeeds without side effects.
func (l *Ledger) CancelBooking(ctx context.Context, actor model.Actor, bookingID uint64) error {
	if actor.UserID == 0 {
		return model.ErrUnauthenticated
	}
	var (
		booking   model.Booking
		cancelled bool
	)
	err := l.store.WithTx(ctx, func(ctx context.Context) error {
		var err error
		booking, err = l.store.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking.UserID != actor.UserID {
			return model.ErrForbidden
		}
		if !booking.Status.Active() {
			return nil
		}
		if err := l.store.UpdateBookingStatus(ctx, booking.ID, model.BookingStatusCancelled); err != nil {
			return err
		}
		cancelled = true
		return nil
	})
	if err != nil {
		return err
	}
	if cancelled {
		l.emit(ctx, queue.EventBookingCancelled, booking.ID, booking.UserID, booking.TimeSlotID)
	}
	return nil
}

// ListUserBookings returns every booking of the actor, newest first.
func (l *Ledger) ListUserBookings(ctx context.Context, actor model.Actor) ([]model.Booking, error) {
	if actor.UserID == 0 {
		return nil, model.ErrUnauthenticated
	}
	return l.store.ListBookingsByUser(ctx, actor.UserID)
}

// ListSlots returns all slots, or only those in categoryIDs when it is
// non-empty, with availability computed from the current bookings.
// Results are ordered by slot id.
func (l *Ledger) ListSlots(ctx context.Context, categoryIDs []uint64) ([]model.SlotAvailability, error) {
	return l.store.ListSlotAvailability(ctx, categoryIDs)
}

// GetSlot returns one slot with its current availability.
func (l *Ledger) GetSlot(ctx context.Context, slotID uint64) (model.SlotAvailability, error) {
	var out model.SlotAvailability
	err := l.store.WithTx(ctx, func(ctx context.Context) error {
		slot, err := l.store.GetSlot(ctx, slotID)
		if err != nil {
			return err
		}
		booked, err := l.store.CountActiveBookings(ctx, slot.ID)
		if err != nil {
			return err
		}
		out = model.NewSlotAvailability(slot, booked)
		return nil
	})
	return out, err
}

// CreateSlotInput is the payload of CreateSlot.
type CreateSlotInput struct {
	CategoryID  uint64
	StartTime   time.Time
	EndTime     time.Time
	MaxCapacity int
}

// CreateSlot adds a slot.  Admin only.
func (l *Ledger) CreateSlot(ctx context.Context, actor model.Actor, in CreateSlotInput) (model.SlotAvailability, error) {
	if !actor.IsAdmin() {
		return model.SlotAvailability{}, model.ErrForbidden
	}
	slot := model.TimeSlot{
		CategoryID:  in.CategoryID,
		StartTime:   in.StartTime.UTC(),
		EndTime:     in.EndTime.UTC(),
		MaxCapacity: in.MaxCapacity,
	}
	if err := validateSlot(slot); err != nil {
		return model.SlotAvailability{}, err
	}
	err := l.store.WithTx(ctx, func(ctx context.Context) error {
		if err := l.checkCategory(ctx, slot.CategoryID); err != nil {
			return err
		}
		return l.store.CreateSlot(ctx, &slot)
	})
	if err != nil {
		return model.SlotAvailability{}, err
	}
	return model.NewSlotAvailability(slot, 0), nil
}

// UpdateSlot applies patch to a slot.  Admin only.  Only supplied fields
// change; the result is validated as a whole and nothing is written when
// validation fails.
func (l *Ledger) UpdateSlot(ctx context.Context, actor model.Actor, slotID uint64, patch model.SlotPatch) (model.SlotAvailability, error) {
	if !actor.IsAdmin() {
		return model.SlotAvailability{}, model.ErrForbidden
	}
	var out model.SlotAvailability
	err := l.store.WithTx(ctx, func(ctx context.Context) error {
		current, err := l.store.GetSlotForUpdate(ctx, slotID)
		if err != nil {
			return err
		}
		updated := patch.Apply(current)
		if err := validateSlot(updated); err != nil {
			return err
		}
		if patch.CategoryID != nil && *patch.CategoryID != current.CategoryID {
			if err := l.checkCategory(ctx, updated.CategoryID); err != nil {
				return err
			}
		}
		booked, err := l.store.CountActiveBookings(ctx, current.ID)
		if err != nil {
			return err
		}
		if l.policy.EnforceCapacityFloor && updated.MaxCapacity < booked {
			return model.ErrCapacityBelowBooked
		}
		if !patch.Empty() {
			if err := l.store.UpdateSlot(ctx, updated); err != nil {
				return err
			}
		}
		out = model.NewSlotAvailability(updated, booked)
		return nil
	})
	if err != nil {
		return model.SlotAvailability{}, err
	}
	return out, nil
}

// DeleteSlot removes a slot and, through the storage cascade, its
// bookings.  Admin only.
func (l *Ledger) DeleteSlot(ctx context.Context, actor model.Actor, slotID uint64) error {
	if !actor.IsAdmin() {
		return model.ErrForbidden
	}
	err := l.store.WithTx(ctx, func(ctx context.Context) error {
		slot, err := l.store.GetSlotForUpdate(ctx, slotID)
		if err != nil {
			return err
		}
		if l.policy.BlockDeleteWithBookings {
			booked, err := l.store.CountActiveBookings(ctx, slot.ID)
			if err != nil {
				return err
			}
			if booked > 0 {
				return model.ErrSlotHasBookings
			}
		}
		return l.store.DeleteSlot(ctx, slot.ID)
	})
	if err != nil {
		return err
	}
	l.emit(ctx, queue.EventSlotDeleted, 0, actor.UserID, slotID)
	return nil
}

func (l *Ledger) checkCategory(ctx context.Context, categoryID uint64) error {
	ok, err := l.store.CategoryExists(ctx, categoryID)
	if err != nil {
		return err
	}
	if !ok {
		return model.ErrInvalidCategory
	}
	return nil
}

// maxSlotCapacity is the largest value time_slots.max_capacity (INT
// UNSIGNED) can hold.
const maxSlotCapacity = math.MaxUint32

func validateSlot(slot model.TimeSlot) error {
	if slot.MaxCapacity <= 0 || int64(slot.MaxCapacity) > maxSlotCapacity {
		return model.ErrInvalidCapacity
	}
	if slot.StartTime.IsZero() || slot.EndTime.IsZero() || !slot.EndTime.After(slot.StartTime) {
		return model.ErrInvalidTimeRange
	}
	return nil
}

func (l *Ledger) emit(ctx context.Context, kind string, bookingID, userID, slotID uint64) {
	ev := queue.NewBookingEvent(kind, bookingID, userID, slotID, l.now())
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.publish)
	defer cancel()
	if err := l.events.Publish(pctx, ev); err != nil && !errors.Is(err, ErrPublisherClosed) {
		l.log.Warn("publish ledger event failed",
			slog.String("event", kind),
			slog.Uint64("booking_id", bookingID),
			slog.Uint64("slot_id", slotID),
			slog.Any("error", err),
		)
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, queue.BookingEvent) error { return nil }
