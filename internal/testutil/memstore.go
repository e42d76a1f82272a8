// Package testutil provides test doubles shared by package tests.
package testutil

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/slot-booking/internal/model"
)

type memTxKey struct{}

// MemStore is an in-memory ledger store.  A transaction holds the store
// mutex from start to end, which makes transactions serializable, and a
// failed transaction restores the snapshot taken when it began.  Like the
// MySQL schema it rejects a second active booking for the same (user,
// slot) pair and cascades slot deletion to bookings.
type MemStore struct {
	mu         sync.Mutex
	categories map[uint64]model.Category
	slots      map[uint64]model.TimeSlot
	bookings   map[uint64]model.Booking
	nextID     uint64
	now        func() time.Time
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		categories: map[uint64]model.Category{},
		slots:      map[uint64]model.TimeSlot{},
		bookings:   map[uint64]model.Booking{},
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type memSnapshot struct {
	categories map[uint64]model.Category
	slots      map[uint64]model.TimeSlot
	bookings   map[uint64]model.Booking
	nextID     uint64
}

func (m *MemStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := memSnapshot{
		categories: maps.Clone(m.categories),
		slots:      maps.Clone(m.slots),
		bookings:   maps.Clone(m.bookings),
		nextID:     m.nextID,
	}
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		m.categories, m.slots, m.bookings, m.nextID = snap.categories, snap.slots, snap.bookings, snap.nextID
		return err
	}
	return nil
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(memTxKey{}).(bool)
	return v
}

// lock takes the store mutex unless ctx already runs inside WithTx.
func (m *MemStore) lock(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *MemStore) id() uint64 {
	m.nextID++
	return m.nextID
}

// AddCategory inserts a category and returns it.
func (m *MemStore) AddCategory(name string) model.Category {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := model.Category{ID: m.id(), Name: name}
	m.categories[c.ID] = c
	return c
}

// AddSlot inserts slot as-is (no validation) and returns it with its id.
func (m *MemStore) AddSlot(slot model.TimeSlot) model.TimeSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot.ID = m.id()
	m.slots[slot.ID] = slot
	return slot
}

// ListAll returns the categories ordered by id.
func (m *MemStore) ListAll(ctx context.Context) ([]model.Category, error) {
	defer m.lock(ctx)()
	out := make([]model.Category, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Booking returns the stored booking with id.
func (m *MemStore) Booking(id uint64) (model.Booking, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	return b, ok
}

// Bookings returns every stored booking ordered by id.
func (m *MemStore) Bookings() []model.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Booking, 0, len(m.bookings))
	for _, b := range m.bookings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Slot returns the stored slot with id.
func (m *MemStore) Slot(id uint64) (model.TimeSlot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	return s, ok
}

func (m *MemStore) GetSlot(ctx context.Context, slotID uint64) (model.TimeSlot, error) {
	defer m.lock(ctx)()
	s, ok := m.slots[slotID]
	if !ok {
		return model.TimeSlot{}, model.ErrSlotNotFound
	}
	return s, nil
}

func (m *MemStore) GetSlotForUpdate(ctx context.Context, slotID uint64) (model.TimeSlot, error) {
	return m.GetSlot(ctx, slotID)
}

func (m *MemStore) CreateSlot(ctx context.Context, slot *model.TimeSlot) error {
	defer m.lock(ctx)()
	if _, ok := m.categories[slot.CategoryID]; !ok {
		return model.ErrInvalidCategory
	}
	slot.ID = m.id()
	slot.CreatedAt = m.now()
	slot.UpdatedAt = slot.CreatedAt
	m.slots[slot.ID] = *slot
	return nil
}

func (m *MemStore) UpdateSlot(ctx context.Context, slot model.TimeSlot) error {
	defer m.lock(ctx)()
	if _, ok := m.slots[slot.ID]; !ok {
		return model.ErrSlotNotFound
	}
	slot.UpdatedAt = m.now()
	m.slots[slot.ID] = slot
	return nil
}

func (m *MemStore) DeleteSlot(ctx context.Context, slotID uint64) error {
	defer m.lock(ctx)()
	if _, ok := m.slots[slotID]; !ok {
		return model.ErrSlotNotFound
	}
	delete(m.slots, slotID)
	for id, b := range m.bookings {
		if b.TimeSlotID == slotID {
			delete(m.bookings, id)
		}
	}
	return nil
}

func (m *MemStore) ListSlotAvailability(ctx context.Context, categoryIDs []uint64) ([]model.SlotAvailability, error) {
	defer m.lock(ctx)()
	want := make(map[uint64]bool, len(categoryIDs))
	for _, id := range categoryIDs {
		want[id] = true
	}
	out := make([]model.SlotAvailability, 0, len(m.slots))
	for _, s := range m.slots {
		if len(want) > 0 && !want[s.CategoryID] {
			continue
		}
		out = append(out, model.NewSlotAvailability(s, m.activeCount(s.ID)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) CategoryExists(ctx context.Context, categoryID uint64) (bool, error) {
	defer m.lock(ctx)()
	_, ok := m.categories[categoryID]
	return ok, nil
}

func (m *MemStore) CountActiveBookings(ctx context.Context, slotID uint64) (int, error) {
	defer m.lock(ctx)()
	return m.activeCount(slotID), nil
}

func (m *MemStore) activeCount(slotID uint64) int {
	n := 0
	for _, b := range m.bookings {
		if b.TimeSlotID == slotID && b.Status.Active() {
			n++
		}
	}
	return n
}

func (m *MemStore) FindActiveBooking(ctx context.Context, userID, slotID uint64) (*model.Booking, error) {
	defer m.lock(ctx)()
	for _, b := range m.bookings {
		if b.UserID == userID && b.TimeSlotID == slotID && b.Status.Active() {
			found := b
			return &found, nil
		}
	}
	return nil, nil
}

func (m *MemStore) CreateBooking(ctx context.Context, b *model.Booking) error {
	defer m.lock(ctx)()
	if _, ok := m.slots[b.TimeSlotID]; !ok {
		return model.ErrSlotNotFound
	}
	if b.Status.Active() {
		for _, other := range m.bookings {
			if other.UserID == b.UserID && other.TimeSlotID == b.TimeSlotID && other.Status.Active() {
				return model.ErrDuplicateBooking
			}
		}
	}
	b.ID = m.id()
	b.CreatedAt = m.now()
	b.UpdatedAt = b.CreatedAt
	m.bookings[b.ID] = *b
	return nil
}

func (m *MemStore) GetBookingForUpdate(ctx context.Context, bookingID uint64) (model.Booking, error) {
	defer m.lock(ctx)()
	b, ok := m.bookings[bookingID]
	if !ok {
		return model.Booking{}, model.ErrBookingNotFound
	}
	return b, nil
}

func (m *MemStore) UpdateBookingStatus(ctx context.Context, bookingID uint64, status model.BookingStatus) error {
	defer m.lock(ctx)()
	b, ok := m.bookings[bookingID]
	if !ok {
		return model.ErrBookingNotFound
	}
	b.Status = status
	b.UpdatedAt = m.now()
	m.bookings[bookingID] = b
	return nil
}

func (m *MemStore) ListBookingsByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	defer m.lock(ctx)()
	out := []model.Booking{}
	for _, b := range m.bookings {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}
