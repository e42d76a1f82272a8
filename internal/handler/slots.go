package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slot-booking/internal/model"
	"github.com/iliyamo/slot-booking/internal/service"
)

// SlotHandler serves the public slot listing and the admin slot
// management endpoints.
type SlotHandler struct {
	Ledger *service.Ledger
	Log    *slog.Logger
}

func NewSlotHandler(l *service.Ledger, log *slog.Logger) *SlotHandler {
	return &SlotHandler{Ledger: l, Log: log}
}

type slotResp struct {
	ID             uint64    `json:"id"`
	CategoryID     uint64    `json:"category_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	MaxCapacity    int       `json:"max_capacity"`
	AvailableSpots int       `json:"available_spots"`
}

func toSlotResp(s model.SlotAvailability) slotResp {
	return slotResp{
		ID:             s.ID,
		CategoryID:     s.CategoryID,
		StartTime:      s.StartTime.UTC(),
		EndTime:        s.EndTime.UTC(),
		MaxCapacity:    s.MaxCapacity,
		AvailableSpots: s.AvailableSpots,
	}
}

// apiTime accepts RFC 3339 timestamps and, for clients that omit the
// offset, "2006-01-02T15:04:05" and "2006-01-02 15:04:05" read as UTC.
type apiTime struct{ time.Time }

var naiveLayouts = []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02T15:04"}

func (t *apiTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if v, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = v.UTC()
		return nil
	}
	for _, layout := range naiveLayouts {
		if v, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t.Time = v
			return nil
		}
	}
	return &time.ParseError{Layout: time.RFC3339, Value: s, Message: ": unsupported time format"}
}

func (t *apiTime) ptr() *time.Time {
	if t == nil {
		return nil
	}
	v := t.Time
	return &v
}

type createSlotReq struct {
	CategoryID  uint64   `json:"category_id" validate:"required"`
	StartTime   *apiTime `json:"start_time" validate:"required"`
	EndTime     *apiTime `json:"end_time" validate:"required"`
	MaxCapacity *int     `json:"max_capacity" validate:"required"`
}

// updateSlotReq is a partial update: omitted fields keep their value.
type updateSlotReq struct {
	CategoryID  *uint64  `json:"category_id"`
	StartTime   *apiTime `json:"start_time"`
	EndTime     *apiTime `json:"end_time"`
	MaxCapacity *int     `json:"max_capacity"`
}

func (r updateSlotReq) patch() model.SlotPatch {
	return model.SlotPatch{
		CategoryID:  r.CategoryID,
		StartTime:   r.StartTime.ptr(),
		EndTime:     r.EndTime.ptr(),
		MaxCapacity: r.MaxCapacity,
	}
}

// List handles GET /v1/slots?categories=1,2.
func (h *SlotHandler) List(c echo.Context) error {
	ids, err := parseIDList(c.QueryParam("categories"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	slots, err := h.Ledger.ListSlots(ctx, ids)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	out := make([]slotResp, 0, len(slots))
	for _, s := range slots {
		out = append(out, toSlotResp(s))
	}
	return c.JSON(http.StatusOK, out)
}

// Get handles GET /v1/slots/:id.
func (h *SlotHandler) Get(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	slot, err := h.Ledger.GetSlot(ctx, id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toSlotResp(slot))
}

// Create handles POST /v1/admin/slots.
func (h *SlotHandler) Create(c echo.Context) error {
	var req createSlotReq
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	slot, err := h.Ledger.CreateSlot(ctx, actorFrom(c), service.CreateSlotInput{
		CategoryID:  req.CategoryID,
		StartTime:   req.StartTime.Time,
		EndTime:     req.EndTime.Time,
		MaxCapacity: *req.MaxCapacity,
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, toSlotResp(slot))
}

// Update handles PUT and PATCH /v1/admin/slots/:id.
func (h *SlotHandler) Update(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var req updateSlotReq
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	slot, err := h.Ledger.UpdateSlot(ctx, actorFrom(c), id, req.patch())
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toSlotResp(slot))
}

// Delete handles DELETE /v1/admin/slots/:id.
func (h *SlotHandler) Delete(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Ledger.DeleteSlot(ctx, actorFrom(c), id); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "slot deleted", "id": id})
}
