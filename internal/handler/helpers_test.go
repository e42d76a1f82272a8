package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/slot-booking/internal/config"
	"github.com/iliyamo/slot-booking/internal/handler"
	"github.com/iliyamo/slot-booking/internal/model"
	"github.com/iliyamo/slot-booking/internal/router"
	"github.com/iliyamo/slot-booking/internal/service"
	"github.com/iliyamo/slot-booking/internal/testutil"
	"github.com/iliyamo/slot-booking/internal/utils"
)

const jwtSecret = "handler-test-secret"

type harness struct {
	t      *testing.T
	e      *echo.Echo
	store  *testutil.MemStore
	users  *testutil.MemUsers
	tokens *testutil.MemTokens
}

func newHarness(t *testing.T, opts ...service.LedgerOption) *harness {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := testutil.NewMemStore()
	users := testutil.NewMemUsers()
	tokens := testutil.NewMemTokens()
	ledger := service.NewLedger(store, append([]service.LedgerOption{service.WithLogger(log)}, opts...)...)

	cfg := config.Config{
		JWTSecret:      jwtSecret,
		AccessTTLMin:   5,
		RefreshTTLDays: 1,
		BcryptCost:     4,
		AdminEmails:    []string{"admin@admin.com"},
	}
	e := echo.New()
	e.Validator = handler.NewRequestValidator()
	router.Register(e, router.Handlers{
		Health:   handler.Health(nil),
		Auth:     handler.NewAuthHandler(cfg, users, tokens, log),
		Slots:    handler.NewSlotHandler(ledger, log),
		Bookings: handler.NewBookingHandler(ledger, log),
		Catalog:  handler.NewCatalogHandler(store, users, log),
	}, router.Options{JWTSecret: jwtSecret})

	return &harness{t: t, e: e, store: store, users: users, tokens: tokens}
}

func (h *harness) token(uid uint64, role string) string {
	h.t.Helper()
	tok, err := utils.NewAccessToken(jwtSecret, uid, role, 5)
	require.NoError(h.t, err)
	return tok.Token
}

func (h *harness) admin() string { return h.token(1, model.RoleAdmin) }

func (h *harness) do(method, path, bearer string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var rd io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			rd = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(h.t, err)
			rd = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type slotJSON struct {
	ID             uint64 `json:"id"`
	CategoryID     uint64 `json:"category_id"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	MaxCapacity    int    `json:"max_capacity"`
	AvailableSpots int    `json:"available_spots"`
}

type bookingJSON struct {
	ID         uint64 `json:"id"`
	UserID     uint64 `json:"user_id"`
	TimeSlotID uint64 `json:"time_slot_id"`
	Status     string `json:"status"`
}

type errorJSON struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"details"`
}

func (h *harness) createSlot(categoryID uint64, capacity int) slotJSON {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/v1/admin/slots", h.admin(), map[string]any{
		"category_id":  categoryID,
		"start_time":   "2026-04-01T10:00:00Z",
		"end_time":     "2026-04-01T12:00:00Z",
		"max_capacity": capacity,
	})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[slotJSON](h.t, rec)
}
