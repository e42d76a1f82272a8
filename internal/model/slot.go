package model

import "time"

// Category is an event category a slot belongs to.  It maps to the
// `event_categories` table and has no behaviour of its own; slots
// reference it by id and the public API lists it.
type Category struct {
	ID   uint64 `json:"id"`   // event_categories.id
	Name string `json:"name"` // event_categories.name (unique)
}

// TimeSlot is a fixed-capacity time window for an event category.
//
// Fields:
//  ID          – primary key identifier.
//  CategoryID  – category the slot belongs to.
//  StartTime   – when the slot begins (UTC).
//  EndTime     – when the slot ends, after StartTime (UTC).
//  MaxCapacity – maximum number of simultaneous BOOKED bookings.
type TimeSlot struct {
	ID          uint64    // time_slots.id
	CategoryID  uint64    // time_slots.category_id
	StartTime   time.Time // time_slots.start_time
	EndTime     time.Time // time_slots.end_time
	MaxCapacity int       // time_slots.max_capacity
	CreatedAt   time.Time // time_slots.created_at
	UpdatedAt   time.Time // time_slots.updated_at
}

// SlotAvailability pairs a slot with its derived availability.
// AvailableSpots is MaxCapacity minus the number of BOOKED bookings at
// the time of the read.  It can be negative when an admin lowered the
// capacity below the booked count.
type SlotAvailability struct {
	TimeSlot
	Booked         int
	AvailableSpots int
}

// NewSlotAvailability derives the availability of slot from the number of
// active bookings it currently holds.
func NewSlotAvailability(slot TimeSlot, booked int) SlotAvailability {
	return SlotAvailability{
		TimeSlot:       slot,
		Booked:         booked,
		AvailableSpots: slot.MaxCapacity - booked,
	}
}

// SlotPatch carries the fields of an admin slot update.  A nil pointer
// means the field was not supplied and keeps its current value.
type SlotPatch struct {
	CategoryID  *uint64
	StartTime   *time.Time
	EndTime     *time.Time
	MaxCapacity *int
}

// Empty reports whether the patch changes nothing.
func (p SlotPatch) Empty() bool {
	return p.CategoryID == nil && p.StartTime == nil && p.EndTime == nil && p.MaxCapacity == nil
}

// Apply returns a copy of slot with the supplied fields overwritten.
func (p SlotPatch) Apply(slot TimeSlot) TimeSlot {
	if p.CategoryID != nil {
		slot.CategoryID = *p.CategoryID
	}
	if p.StartTime != nil {
		slot.StartTime = p.StartTime.UTC()
	}
	if p.EndTime != nil {
		slot.EndTime = p.EndTime.UTC()
	}
	if p.MaxCapacity != nil {
		slot.MaxCapacity = *p.MaxCapacity
	}
	return slot
}
