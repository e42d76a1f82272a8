// Package router wires handlers and middleware onto the echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slot-booking/internal/handler"
	"github.com/iliyamo/slot-booking/internal/middleware"
	"github.com/iliyamo/slot-booking/internal/model"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Health   echo.HandlerFunc
	Auth     *handler.AuthHandler
	Slots    *handler.SlotHandler
	Bookings *handler.BookingHandler
	Catalog  *handler.CatalogHandler
}

// Options carries the middleware built from configuration.  Nil
// middleware is skipped.
type Options struct {
	JWTSecret string
	// RateLimit guards booking creation.
	RateLimit echo.MiddlewareFunc
	// Cache fronts the category list.
	Cache echo.MiddlewareFunc
}

// Register mounts every route of the API.
func Register(e *echo.Echo, h Handlers, opt Options) {
	RegisterRoutes(e, h.Health)
	RegisterAuth(e, h.Auth, opt.JWTSecret)
	RegisterPublic(e, h.Slots, h.Catalog, opt.Cache)
	RegisterUser(e, h.Bookings, h.Catalog, opt.JWTSecret, opt.RateLimit)
	RegisterAdmin(e, h.Slots, opt.JWTSecret)
}

// RegisterRoutes registers routes that need no authentication and no
// data: the health check.
func RegisterRoutes(e *echo.Echo, health echo.HandlerFunc) {
	e.GET("/healthz", health)
}

// RegisterAuth mounts /v1/auth and the authenticated /v1/me.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/refresh-access", a.RefreshAccess)
	g.POST("/logout", a.Logout)

	e.GET("/v1/me", a.Me, authenticated(jwtSecret)...)
}

// RegisterPublic mounts the browse endpoints.  Slot availability is never
// cached so clients always see the current count.
func RegisterPublic(e *echo.Echo, s *handler.SlotHandler, cat *handler.CatalogHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/slots", s.List)
	e.GET("/v1/slots/:id", s.Get)
	e.GET("/v1/categories", cat.ListCategories, optional(cache)...)
}

// RegisterUser mounts the endpoints of any signed-in user.
func RegisterUser(e *echo.Echo, b *handler.BookingHandler, cat *handler.CatalogHandler, jwtSecret string, rateLimit echo.MiddlewareFunc) {
	auth := authenticated(jwtSecret)
	e.POST("/v1/bookings", b.Create, append(auth, optional(rateLimit)...)...)
	e.GET("/v1/bookings", b.List, auth...)
	e.DELETE("/v1/bookings/:id", b.Cancel, auth...)

	e.POST("/v1/user/preferences", cat.SetPreferences, auth...)
	e.GET("/v1/user/preferences", cat.GetPreferences, auth...)
}

// RegisterAdmin mounts slot management under /v1/admin for ADMIN tokens.
func RegisterAdmin(e *echo.Echo, s *handler.SlotHandler, jwtSecret string) {
	g := e.Group("/v1/admin", middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleAdmin))
	g.POST("/slots", s.Create)
	g.PUT("/slots/:id", s.Update)
	g.PATCH("/slots/:id", s.Update)
	g.DELETE("/slots/:id", s.Delete)
}

func authenticated(jwtSecret string) []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleUser, model.RoleAdmin),
	}
}

func optional(mw echo.MiddlewareFunc) []echo.MiddlewareFunc {
	if mw == nil {
		return nil
	}
	return []echo.MiddlewareFunc{mw}
}
