// Package handler contains the echo HTTP handlers of the booking API.
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slot-booking/internal/middleware"
	"github.com/iliyamo/slot-booking/internal/model"
)

// requestTimeout bounds the storage work of one request.
const requestTimeout = 5 * time.Second

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details []ValidationError `json:"details,omitempty"`
}

type errorMapping struct {
	status int
	code   string
}

var errorTable = map[error]errorMapping{
	model.ErrSlotNotFound:        {http.StatusNotFound, "SLOT_NOT_FOUND"},
	model.ErrBookingNotFound:     {http.StatusNotFound, "BOOKING_NOT_FOUND"},
	model.ErrCategoryNotFound:    {http.StatusNotFound, "CATEGORY_NOT_FOUND"},
	model.ErrUserNotFound:        {http.StatusNotFound, "USER_NOT_FOUND"},
	model.ErrUnauthenticated:     {http.StatusUnauthorized, "UNAUTHENTICATED"},
	model.ErrForbidden:           {http.StatusForbidden, "FORBIDDEN"},
	model.ErrDuplicateBooking:    {http.StatusConflict, "DUPLICATE_BOOKING"},
	model.ErrSlotFull:            {http.StatusConflict, "SLOT_FULL"},
	model.ErrInvalidCategory:     {http.StatusBadRequest, "INVALID_CATEGORY"},
	model.ErrInvalidCapacity:     {http.StatusBadRequest, "INVALID_CAPACITY"},
	model.ErrInvalidTimeRange:    {http.StatusBadRequest, "INVALID_TIME_RANGE"},
	model.ErrCapacityBelowBooked: {http.StatusConflict, "CAPACITY_BELOW_BOOKED"},
	model.ErrSlotHasBookings:     {http.StatusConflict, "SLOT_HAS_BOOKINGS"},
	model.ErrEmailExists:         {http.StatusConflict, "EMAIL_EXISTS"},
}

// writeError maps err onto a status and JSON body.  Unknown errors are
// logged and reported as 500 without detail.
func writeError(c echo.Context, log *slog.Logger, err error) error {
	for sentinel, m := range errorTable {
		if errors.Is(err, sentinel) {
			return c.JSON(m.status, errorResponse{Error: sentinel.Error(), Code: m.code})
		}
	}
	var verrs ValidationErrors
	if errors.As(err, &verrs) {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "validation failed", Code: "VALIDATION_FAILED", Details: verrs})
	}
	var bad badRequest
	if errors.As(err, &bad) {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: bad.msg, Code: "BAD_REQUEST"})
	}
	if log == nil {
		log = slog.Default()
	}
	log.Error("request failed",
		slog.String("method", c.Request().Method),
		slog.String("path", c.Path()),
		slog.Any("error", err),
	)
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "INTERNAL"})
}

type badRequest struct{ msg string }

func (b badRequest) Error() string { return b.msg }

// bindAndValidate decodes the body into dst and runs the validator.
func bindAndValidate(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return badRequest{msg: "invalid body"}
	}
	if err := c.Validate(dst); err != nil {
		return err
	}
	return nil
}

// getUserID reads the user id stored by JWTAuth.
func getUserID(c echo.Context) (uint64, bool) {
	switch v := c.Get(middleware.CtxUserID).(type) {
	case uint64:
		return v, v > 0
	case float64:
		return uint64(v), v > 0
	case string:
		id, err := strconv.ParseUint(v, 10, 64)
		return id, err == nil && id > 0
	}
	return 0, false
}

// actorFrom builds the ledger caller from the request identity.  The zero
// Actor means no identity; the ledger rejects it.
func actorFrom(c echo.Context) model.Actor {
	uid, ok := getUserID(c)
	if !ok {
		return model.Actor{}
	}
	role, _ := c.Get(middleware.CtxRole).(string)
	return model.Actor{UserID: uid, Role: role}
}

func parseIDParam(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, badRequest{msg: "invalid " + name}
	}
	return id, nil
}

// parseIDList parses a comma separated id list such as "1,2,3".  Blank
// input yields nil.
func parseIDList(raw string) ([]uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var ids []uint64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, badRequest{msg: "invalid category id " + strconv.Quote(part)}
		}
		ids = append(ids, id)
	}
	return ids, nil
}
