package handler_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/slot-booking/internal/model"
	"github.com/iliyamo/slot-booking/internal/service"
)

func TestListSlots_CategoryFilter(t *testing.T) {
	h := newHarness(t)
	workshops := h.store.AddCategory("Workshops")
	talks := h.store.AddCategory("Talks")
	w := h.createSlot(workshops.ID, 5)
	h.createSlot(talks.ID, 2)

	rec := h.do(http.MethodGet, fmt.Sprintf("/v1/slots?categories=%d", workshops.ID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	slots := decode[[]slotJSON](t, rec)
	require.Len(t, slots, 1)
	assert.Equal(t, w.ID, slots[0].ID)
	assert.Equal(t, 5, slots[0].AvailableSpots)
	assert.Equal(t, "2026-04-01T10:00:00Z", slots[0].StartTime)

	rec = h.do(http.MethodGet, fmt.Sprintf("/v1/slots?categories=%d,%d", workshops.ID, talks.ID), "", nil)
	assert.Len(t, decode[[]slotJSON](t, rec), 2)

	rec = h.do(http.MethodGet, "/v1/slots", "", nil)
	assert.Len(t, decode[[]slotJSON](t, rec), 2)

	rec = h.do(http.MethodGet, "/v1/slots?categories=1,abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodGet, "/v1/slots/999", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminSlots_Authorization(t *testing.T) {
	h := newHarness(t)
	cat := h.store.AddCategory("Cat 1")
	body := map[string]any{
		"category_id": cat.ID, "start_time": "2026-04-01T10:00:00Z",
		"end_time": "2026-04-01T11:00:00Z", "max_capacity": 2,
	}

	rec := h.do(http.MethodPost, "/v1/admin/slots", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodPost, "/v1/admin/slots", h.token(10, model.RoleUser), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodDelete, "/v1/admin/slots/1", h.token(10, model.RoleUser), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminCreateSlot_Validation(t *testing.T) {
	h := newHarness(t)
	cat := h.store.AddCategory("Cat 1")

	tests := []struct {
		name string
		body map[string]any
		code string
	}{
		{"missing fields", map[string]any{"category_id": cat.ID}, "VALIDATION_FAILED"},
		{"zero capacity", map[string]any{"category_id": cat.ID, "start_time": "2026-04-01T10:00:00Z", "end_time": "2026-04-01T11:00:00Z", "max_capacity": 0}, "INVALID_CAPACITY"},
		{"capacity above column range", map[string]any{"category_id": cat.ID, "start_time": "2026-04-01T10:00:00Z", "end_time": "2026-04-01T11:00:00Z", "max_capacity": 4294967296}, "INVALID_CAPACITY"},
		{"end before start", map[string]any{"category_id": cat.ID, "start_time": "2026-04-01T10:00:00Z", "end_time": "2026-04-01T09:00:00Z", "max_capacity": 1}, "INVALID_TIME_RANGE"},
		{"unknown category", map[string]any{"category_id": 777, "start_time": "2026-04-01T10:00:00Z", "end_time": "2026-04-01T11:00:00Z", "max_capacity": 1}, "INVALID_CATEGORY"},
		{"bad time", map[string]any{"category_id": cat.ID, "start_time": "tomorrow", "end_time": "2026-04-01T11:00:00Z", "max_capacity": 1}, "BAD_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(http.MethodPost, "/v1/admin/slots", h.admin(), tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[errorJSON](t, rec).Code)
		})
	}

	rec := h.do(http.MethodPost, "/v1/admin/slots", h.admin(), map[string]any{
		"category_id": cat.ID, "start_time": "2026-04-01T10:00:00", "end_time": "2026-04-01 11:30:00", "max_capacity": 4,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	got := decode[slotJSON](t, rec)
	assert.Equal(t, "2026-04-01T11:30:00Z", got.EndTime)
	assert.Equal(t, 4, got.AvailableSpots)
}

func TestAdminUpdateSlot(t *testing.T) {
	h := newHarness(t)
	cat := h.store.AddCategory("Cat 1")
	slot := h.createSlot(cat.ID, 2)

	rec := h.do(http.MethodPost, "/v1/bookings", h.token(10, model.RoleUser), map[string]any{"time_slot_id": slot.ID})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = h.do(http.MethodPatch, fmt.Sprintf("/v1/admin/slots/%d", slot.ID), h.admin(), map[string]any{"max_capacity": 5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[slotJSON](t, rec)
	assert.Equal(t, 5, got.MaxCapacity)
	assert.Equal(t, 4, got.AvailableSpots)
	assert.Equal(t, slot.StartTime, got.StartTime)

	rec = h.do(http.MethodPut, fmt.Sprintf("/v1/admin/slots/%d", slot.ID), h.admin(), map[string]any{"end_time": "2026-04-01T09:00:00Z"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	stored, _ := h.store.Slot(slot.ID)
	assert.Equal(t, 5, stored.MaxCapacity)

	rec = h.do(http.MethodPut, "/v1/admin/slots/999", h.admin(), map[string]any{"max_capacity": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminUpdateSlot_CapacityFloorPolicy(t *testing.T) {
	h := newHarness(t, service.WithPolicy(service.Policy{EnforceCapacityFloor: true}))
	cat := h.store.AddCategory("Cat 1")
	slot := h.createSlot(cat.ID, 2)
	for _, uid := range []uint64{10, 11} {
		rec := h.do(http.MethodPost, "/v1/bookings", h.token(uid, model.RoleUser), map[string]any{"time_slot_id": slot.ID})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := h.do(http.MethodPatch, fmt.Sprintf("/v1/admin/slots/%d", slot.ID), h.admin(), map[string]any{"max_capacity": 1})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CAPACITY_BELOW_BOOKED", decode[errorJSON](t, rec).Code)
}

func TestAdminDeleteSlot(t *testing.T) {
	h := newHarness(t)
	cat := h.store.AddCategory("Cat 1")
	slot := h.createSlot(cat.ID, 2)
	rec := h.do(http.MethodPost, "/v1/bookings", h.token(10, model.RoleUser), map[string]any{"time_slot_id": slot.ID})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = h.do(http.MethodDelete, fmt.Sprintf("/v1/admin/slots/%d", slot.ID), h.admin(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, h.store.Bookings())

	rec = h.do(http.MethodGet, fmt.Sprintf("/v1/slots/%d", slot.ID), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodDelete, fmt.Sprintf("/v1/admin/slots/%d", slot.ID), h.admin(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminDeleteSlot_GuardPolicy(t *testing.T) {
	h := newHarness(t, service.WithPolicy(service.Policy{BlockDeleteWithBookings: true}))
	cat := h.store.AddCategory("Cat 1")
	slot := h.createSlot(cat.ID, 2)
	rec := h.do(http.MethodPost, "/v1/bookings", h.token(10, model.RoleUser), map[string]any{"time_slot_id": slot.ID})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = h.do(http.MethodDelete, fmt.Sprintf("/v1/admin/slots/%d", slot.ID), h.admin(), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "SLOT_HAS_BOOKINGS", decode[errorJSON](t, rec).Code)
}
