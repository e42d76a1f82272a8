package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slot-booking/internal/model"
)

// CategoryLister lists event categories.
type CategoryLister interface {
	ListAll(ctx context.Context) ([]model.Category, error)
}

// PreferenceStore persists a user's preferred category ids.
type PreferenceStore interface {
	SetPreferredCategories(ctx context.Context, userID uint64, ids []uint64) error
	PreferredCategories(ctx context.Context, userID uint64) ([]uint64, error)
}

// CatalogHandler serves categories and user preferences.
type CatalogHandler struct {
	Categories  CategoryLister
	Preferences PreferenceStore
	Log         *slog.Logger
}

func NewCatalogHandler(cats CategoryLister, prefs PreferenceStore, log *slog.Logger) *CatalogHandler {
	return &CatalogHandler{Categories: cats, Preferences: prefs, Log: log}
}

// ListCategories handles GET /v1/categories.
func (h *CatalogHandler) ListCategories(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	cats, err := h.Categories.ListAll(ctx)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, cats)
}

type preferencesReq struct {
	PreferredCategories []uint64 `json:"preferred_categories" validate:"required"`
}

// SetPreferences handles POST /v1/user/preferences.  The ids are stored
// as given; they only steer clients and never affect booking.
func (h *CatalogHandler) SetPreferences(c echo.Context) error {
	uid, ok := getUserID(c)
	if !ok {
		return writeError(c, h.Log, model.ErrUnauthenticated)
	}
	var req preferencesReq
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Preferences.SetPreferredCategories(ctx, uid, req.PreferredCategories); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message":              "preferences updated",
		"preferred_categories": req.PreferredCategories,
	})
}

// GetPreferences handles GET /v1/user/preferences.
func (h *CatalogHandler) GetPreferences(c echo.Context) error {
	uid, ok := getUserID(c)
	if !ok {
		return writeError(c, h.Log, model.ErrUnauthenticated)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	ids, err := h.Preferences.PreferredCategories(ctx, uid)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"preferred_categories": ids})
}
