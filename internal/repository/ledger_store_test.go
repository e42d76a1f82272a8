package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/slot-booking/internal/database"
	"github.com/iliyamo/slot-booking/internal/model"
	"github.com/iliyamo/slot-booking/internal/service"
)

// openTestDB connects to TEST_MYSQL_DSN (parseTime=true required) and
// resets the schema.  Tests are skipped when the variable is unset or
// the server is unreachable.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("TEST_MYSQL_DSN not set; skipping MySQL integration tests")
	}
	ctx := context.Background()
	db, err := database.Open(ctx, dsn)
	if err != nil {
		t.Skipf("skipping MySQL integration tests: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(ctx, db))
	truncateAll(t, db)
	return db
}

func truncateAll(t *testing.T, db *sql.DB) {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Conn(ctx)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 0")
	require.NoError(t, err)
	for _, table := range []string{"bookings", "time_slots", "event_categories", "refresh_tokens", "users"} {
		_, err := conn.ExecContext(ctx, "TRUNCATE TABLE "+table)
		require.NoError(t, err)
	}
	_, err = conn.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 1")
	require.NoError(t, err)
}

func insertUser(t *testing.T, db *sql.DB, email string) uint64 {
	t.Helper()
	res, err := db.Exec("INSERT INTO users (email, password_hash, role) VALUES (?, 'x', 'USER')", email)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return uint64(id)
}

func insertCategory(t *testing.T, db *sql.DB, name string) uint64 {
	t.Helper()
	res, err := db.Exec("INSERT INTO event_categories (name) VALUES (?)", name)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return uint64(id)
}

func TestLedgerStore(t *testing.T) {
	db := openTestDB(t)
	store := NewLedgerStore(db)
	ctx := context.Background()
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("slot lifecycle and cascade", func(t *testing.T) {
		truncateAll(t, db)
		cat := insertCategory(t, db, "Workshops")
		uid := insertUser(t, db, "a@example.com")

		slot := model.TimeSlot{CategoryID: cat, StartTime: start, EndTime: start.Add(time.Hour), MaxCapacity: 5}
		require.NoError(t, store.CreateSlot(ctx, &slot))
		assert.NotZero(t, slot.ID)

		missing := model.TimeSlot{CategoryID: cat + 100, StartTime: start, EndTime: start.Add(time.Hour), MaxCapacity: 1}
		assert.ErrorIs(t, store.CreateSlot(ctx, &missing), model.ErrInvalidCategory)

		b := model.Booking{UserID: uid, TimeSlotID: slot.ID, Status: model.BookingStatusBooked}
		require.NoError(t, store.CreateBooking(ctx, &b))

		list, err := store.ListSlotAvailability(ctx, []uint64{cat})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, 4, list[0].AvailableSpots)

		require.NoError(t, store.DeleteSlot(ctx, slot.ID))
		_, err = store.GetSlot(ctx, slot.ID)
		assert.ErrorIs(t, err, model.ErrSlotNotFound)
		var n int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM bookings").Scan(&n))
		assert.Zero(t, n)
	})

	t.Run("active uniqueness allows rebooking after cancel", func(t *testing.T) {
		truncateAll(t, db)
		cat := insertCategory(t, db, "Cat 1")
		uid := insertUser(t, db, "b@example.com")
		slot := model.TimeSlot{CategoryID: cat, StartTime: start, EndTime: start.Add(time.Hour), MaxCapacity: 3}
		require.NoError(t, store.CreateSlot(ctx, &slot))

		first := model.Booking{UserID: uid, TimeSlotID: slot.ID, Status: model.BookingStatusBooked}
		require.NoError(t, store.CreateBooking(ctx, &first))
		dup := model.Booking{UserID: uid, TimeSlotID: slot.ID, Status: model.BookingStatusBooked}
		assert.ErrorIs(t, store.CreateBooking(ctx, &dup), model.ErrDuplicateBooking)

		require.NoError(t, store.UpdateBookingStatus(ctx, first.ID, model.BookingStatusCancelled))
		again := model.Booking{UserID: uid, TimeSlotID: slot.ID, Status: model.BookingStatusBooked}
		require.NoError(t, store.CreateBooking(ctx, &again))
		assert.NotEqual(t, first.ID, again.ID)

		history, err := store.ListBookingsByUser(ctx, uid)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, again.ID, history[0].ID)
	})

	t.Run("rollback leaves no partial state", func(t *testing.T) {
		truncateAll(t, db)
		cat := insertCategory(t, db, "Cat 2")
		boom := errors.New("boom")
		err := store.WithTx(ctx, func(ctx context.Context) error {
			slot := model.TimeSlot{CategoryID: cat, StartTime: start, EndTime: start.Add(time.Hour), MaxCapacity: 3}
			if err := store.CreateSlot(ctx, &slot); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
		list, err := store.ListSlotAvailability(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestLedgerStore_ConcurrentBookings(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	ledger := service.NewLedger(NewLedgerStore(db))

	cat := insertCategory(t, db, "Concurrency")
	admin := model.Actor{UserID: insertUser(t, db, "admin@example.com"), Role: model.RoleAdmin}
	start := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	const capacity, callers = 5, 20

	slot, err := ledger.CreateSlot(ctx, admin, service.CreateSlotInput{
		CategoryID: cat, StartTime: start, EndTime: start.Add(time.Hour), MaxCapacity: capacity,
	})
	require.NoError(t, err)

	users := make([]uint64, callers)
	for i := range users {
		users[i] = insertUser(t, db, "user"+string(rune('a'+i))+"@example.com")
	}

	var (
		ok, full atomic.Int32
		wg       sync.WaitGroup
	)
	for _, uid := range users {
		wg.Add(1)
		go func(uid uint64) {
			defer wg.Done()
			_, err := ledger.CreateBooking(ctx, model.Actor{UserID: uid, Role: model.RoleUser}, slot.ID)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, model.ErrSlotFull):
				full.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(uid)
	}
	wg.Wait()

	assert.EqualValues(t, capacity, ok.Load())
	assert.EqualValues(t, callers-capacity, full.Load())

	got, err := ledger.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableSpots)
}
