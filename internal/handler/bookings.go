package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slot-booking/internal/model"
	"github.com/iliyamo/slot-booking/internal/service"
)

// BookingHandler serves the authenticated booking endpoints.
type BookingHandler struct {
	Ledger *service.Ledger
	Log    *slog.Logger
}

func NewBookingHandler(l *service.Ledger, log *slog.Logger) *BookingHandler {
	return &BookingHandler{Ledger: l, Log: log}
}

type createBookingReq struct {
	TimeSlotID uint64 `json:"time_slot_id" validate:"required"`
}

type bookingResp struct {
	ID         uint64              `json:"id"`
	UserID     uint64              `json:"user_id"`
	TimeSlotID uint64              `json:"time_slot_id"`
	Status     model.BookingStatus `json:"status"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

func toBookingResp(b model.Booking) bookingResp {
	return bookingResp{
		ID:         b.ID,
		UserID:     b.UserID,
		TimeSlotID: b.TimeSlotID,
		Status:     b.Status,
		CreatedAt:  b.CreatedAt.UTC(),
		UpdatedAt:  b.UpdatedAt.UTC(),
	}
}

// Create handles POST /v1/bookings.
func (h *BookingHandler) Create(c echo.Context) error {
	var req createBookingReq
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	b, err := h.Ledger.CreateBooking(ctx, actorFrom(c), req.TimeSlotID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, toBookingResp(b))
}

// Cancel handles DELETE /v1/bookings/:id.
func (h *BookingHandler) Cancel(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Ledger.CancelBooking(ctx, actorFrom(c), id); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "booking cancelled", "id": id})
}

// List handles GET /v1/bookings.
func (h *BookingHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	bookings, err := h.Ledger.ListUserBookings(ctx, actorFrom(c))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	out := make([]bookingResp, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, toBookingResp(b))
	}
	return c.JSON(http.StatusOK, out)
}
