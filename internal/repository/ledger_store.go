package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/slot-booking/internal/model"
)

// LedgerStore is the MySQL implementation of service.Store.
type LedgerStore struct{ DB *sql.DB }

func NewLedgerStore(db *sql.DB) *LedgerStore { return &LedgerStore{DB: db} }

func (s *LedgerStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, s.DB, fn)
}

const slotColumns = "id, category_id, start_time, end_time, max_capacity, created_at, updated_at"

func scanSlot(row interface{ Scan(...any) error }) (model.TimeSlot, error) {
	var t model.TimeSlot
	err := row.Scan(&t.ID, &t.CategoryID, &t.StartTime, &t.EndTime, &t.MaxCapacity, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (s *LedgerStore) GetSlot(ctx context.Context, slotID uint64) (model.TimeSlot, error) {
	return s.getSlot(ctx, slotID, "")
}

// GetSlotForUpdate reads the slot with an exclusive row lock held until
// the surrounding transaction ends.
func (s *LedgerStore) GetSlotForUpdate(ctx context.Context, slotID uint64) (model.TimeSlot, error) {
	return s.getSlot(ctx, slotID, " FOR UPDATE")
}

func (s *LedgerStore) getSlot(ctx context.Context, slotID uint64, suffix string) (model.TimeSlot, error) {
	row := conn(ctx, s.DB).QueryRowContext(ctx,
		"SELECT "+slotColumns+" FROM time_slots WHERE id = ?"+suffix, slotID)
	t, err := scanSlot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TimeSlot{}, model.ErrSlotNotFound
	}
	if err != nil {
		return model.TimeSlot{}, fmt.Errorf("get slot %d: %w", slotID, err)
	}
	return t, nil
}

func (s *LedgerStore) CreateSlot(ctx context.Context, slot *model.TimeSlot) error {
	q := conn(ctx, s.DB)
	res, err := q.ExecContext(ctx,
		"INSERT INTO time_slots (category_id, start_time, end_time, max_capacity) VALUES (?,?,?,?)",
		slot.CategoryID, slot.StartTime.UTC(), slot.EndTime.UTC(), slot.MaxCapacity)
	if err != nil {
		if isMissingParent(err) {
			return model.ErrInvalidCategory
		}
		return fmt.Errorf("insert slot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := scanSlot(q.QueryRowContext(ctx, "SELECT "+slotColumns+" FROM time_slots WHERE id = ?", id))
	if err != nil {
		return fmt.Errorf("reload slot %d: %w", id, err)
	}
	*slot = created
	return nil
}

func (s *LedgerStore) UpdateSlot(ctx context.Context, slot model.TimeSlot) error {
	res, err := conn(ctx, s.DB).ExecContext(ctx,
		"UPDATE time_slots SET category_id = ?, start_time = ?, end_time = ?, max_capacity = ? WHERE id = ?",
		slot.CategoryID, slot.StartTime.UTC(), slot.EndTime.UTC(), slot.MaxCapacity, slot.ID)
	if err != nil {
		if isMissingParent(err) {
			return model.ErrInvalidCategory
		}
		return fmt.Errorf("update slot %d: %w", slot.ID, err)
	}
	// RowsAffected is 0 for an unchanged row, so only a missing row is an error.
	if n, _ := res.RowsAffected(); n == 0 {
		var one int
		err := conn(ctx, s.DB).QueryRowContext(ctx, "SELECT 1 FROM time_slots WHERE id = ?", slot.ID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrSlotNotFound
		}
	}
	return nil
}

// DeleteSlot removes the slot; its bookings go with it through the
// foreign key cascade.
func (s *LedgerStore) DeleteSlot(ctx context.Context, slotID uint64) error {
	res, err := conn(ctx, s.DB).ExecContext(ctx, "DELETE FROM time_slots WHERE id = ?", slotID)
	if err != nil {
		return fmt.Errorf("delete slot %d: %w", slotID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrSlotNotFound
	}
	return nil
}

// ListSlotAvailability counts BOOKED rows per slot in the same statement
// that reads the slots, so every row reflects one consistent snapshot.
func (s *LedgerStore) ListSlotAvailability(ctx context.Context, categoryIDs []uint64) ([]model.SlotAvailability, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT t.id, t.category_id, t.start_time, t.end_time, t.max_capacity, t.created_at, t.updated_at,
       COUNT(b.id) AS booked
  FROM time_slots t
  LEFT JOIN bookings b ON b.time_slot_id = t.id AND b.status = 'BOOKED'`)
	if len(categoryIDs) > 0 {
		sb.WriteString("\n WHERE t.category_id IN (")
		for i, id := range categoryIDs {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString("?")
			args = append(args, id)
		}
		sb.WriteString(")")
	}
	sb.WriteString("\n GROUP BY t.id\n ORDER BY t.id")

	rows, err := conn(ctx, s.DB).QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	out := []model.SlotAvailability{}
	for rows.Next() {
		var (
			t      model.TimeSlot
			booked int
		)
		if err := rows.Scan(&t.ID, &t.CategoryID, &t.StartTime, &t.EndTime, &t.MaxCapacity, &t.CreatedAt, &t.UpdatedAt, &booked); err != nil {
			return nil, err
		}
		out = append(out, model.NewSlotAvailability(t, booked))
	}
	return out, rows.Err()
}

func (s *LedgerStore) CategoryExists(ctx context.Context, categoryID uint64) (bool, error) {
	var exists bool
	err := conn(ctx, s.DB).QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM event_categories WHERE id = ?)", categoryID).Scan(&exists)
	return exists, err
}

func (s *LedgerStore) CountActiveBookings(ctx context.Context, slotID uint64) (int, error) {
	var n int
	err := conn(ctx, s.DB).QueryRowContext(ctx,
		"SELECT COUNT(*) FROM bookings WHERE time_slot_id = ? AND status = 'BOOKED'", slotID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count bookings for slot %d: %w", slotID, err)
	}
	return n, nil
}

const bookingColumns = "id, user_id, time_slot_id, status, created_at, updated_at"

func scanBooking(row interface{ Scan(...any) error }) (model.Booking, error) {
	var b model.Booking
	err := row.Scan(&b.ID, &b.UserID, &b.TimeSlotID, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

// FindActiveBooking returns nil, nil when the user holds no BOOKED
// booking for the slot.
func (s *LedgerStore) FindActiveBooking(ctx context.Context, userID, slotID uint64) (*model.Booking, error) {
	b, err := scanBooking(conn(ctx, s.DB).QueryRowContext(ctx,
		"SELECT "+bookingColumns+" FROM bookings WHERE user_id = ? AND time_slot_id = ? AND status = 'BOOKED' LIMIT 1",
		userID, slotID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active booking: %w", err)
	}
	return &b, nil
}

func (s *LedgerStore) CreateBooking(ctx context.Context, b *model.Booking) error {
	q := conn(ctx, s.DB)
	res, err := q.ExecContext(ctx,
		"INSERT INTO bookings (user_id, time_slot_id, status) VALUES (?,?,?)",
		b.UserID, b.TimeSlotID, b.Status)
	if err != nil {
		switch {
		case isDuplicateKey(err):
			return model.ErrDuplicateBooking
		case isMissingParent(err):
			return model.ErrSlotNotFound
		}
		return fmt.Errorf("insert booking: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := scanBooking(q.QueryRowContext(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE id = ?", id))
	if err != nil {
		return fmt.Errorf("reload booking %d: %w", id, err)
	}
	*b = created
	return nil
}

func (s *LedgerStore) GetBookingForUpdate(ctx context.Context, bookingID uint64) (model.Booking, error) {
	b, err := scanBooking(conn(ctx, s.DB).QueryRowContext(ctx,
		"SELECT "+bookingColumns+" FROM bookings WHERE id = ? FOR UPDATE", bookingID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, model.ErrBookingNotFound
	}
	if err != nil {
		return model.Booking{}, fmt.Errorf("get booking %d: %w", bookingID, err)
	}
	return b, nil
}

func (s *LedgerStore) UpdateBookingStatus(ctx context.Context, bookingID uint64, status model.BookingStatus) error {
	res, err := conn(ctx, s.DB).ExecContext(ctx,
		"UPDATE bookings SET status = ? WHERE id = ?", status, bookingID)
	if err != nil {
		if isDuplicateKey(err) {
			return model.ErrDuplicateBooking
		}
		return fmt.Errorf("update booking %d: %w", bookingID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrBookingNotFound
	}
	return nil
}

func (s *LedgerStore) ListBookingsByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	rows, err := conn(ctx, s.DB).QueryContext(ctx,
		"SELECT "+bookingColumns+" FROM bookings WHERE user_id = ? ORDER BY id DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()
	out := []model.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
