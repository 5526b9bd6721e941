// Package router registers the HTTP routes.  Role checks happen here;
// ownership checks happen in the services.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/restaurant-table-reservation/internal/handler"
	"github.com/iliyamo/restaurant-table-reservation/internal/middleware"
	"github.com/iliyamo/restaurant-table-reservation/internal/model"
)

// Handlers bundles everything the routes dispatch to.
type Handlers struct {
	Restaurants  *handler.RestaurantHandler
	Reservations *handler.ReservationHandler
	Locks        *handler.TableLockHandler
	Ready        echo.HandlerFunc
	Metrics      http.Handler
}

// Options carries the middleware settings.  Nil middleware is skipped.
type Options struct {
	JWTSecret     string
	RateLimit     echo.MiddlewareFunc // applied to lock and booking writes
	ResponseCache echo.MiddlewareFunc // applied to the public restaurant listing
	Log           *zap.Logger
}

// New returns an Echo instance with every route registered.
func New(h Handlers, opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(opts.Log))

	RegisterRoutes(e, h)
	RegisterPublic(e, h.Restaurants, opts.ResponseCache)
	RegisterOwner(e, h, opts.JWTSecret)
	RegisterCustomer(e, h, opts.JWTSecret, opts.RateLimit)
	return e
}

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, h Handlers) {
	e.GET("/healthz", handler.Health)
	if h.Ready != nil {
		e.GET("/readyz", h.Ready)
	}
	if h.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.Metrics))
	}
}

// RegisterPublic registers the restaurant browse endpoints.  The listing
// goes through the response cache; single restaurants are served from the
// directory cache, which floor plan edits invalidate.
func RegisterPublic(e *echo.Echo, r *handler.RestaurantHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/restaurants", r.List, optional(cache)...)
	e.GET("/v1/restaurants/:id", r.Get)
}

// RegisterOwner registers restaurant management and the owner views of
// reservations and locks.
func RegisterOwner(e *echo.Echo, h Handlers, jwtSecret string) {
	g := e.Group("/v1")
	auth := middleware.JWTAuth(jwtSecret)
	ownerOrAdmin := middleware.RequireRole(model.RoleOwner, model.RoleAdmin)

	g.POST("/restaurants", h.Restaurants.Create, auth, ownerOrAdmin)
	g.GET("/my-restaurants", h.Restaurants.ListMine, auth, ownerOrAdmin)
	g.PUT("/restaurants/:id/floorplan", h.Restaurants.UpdateFloorPlan, auth, middleware.RequireRole(model.RoleOwner))

	g.GET("/restaurants/:id/reservations", h.Reservations.ListForRestaurant, auth, ownerOrAdmin)
	g.POST("/reservations/:id/check-in", h.Reservations.CheckIn, auth, ownerOrAdmin)
	g.GET("/restaurants/:id/locks", h.Locks.List, auth, ownerOrAdmin)
}

// RegisterCustomer registers booking and table locking.  Reading a single
// reservation and changing its status are open to every role; the service
// decides whether the caller may touch that reservation.
func RegisterCustomer(e *echo.Echo, h Handlers, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1")
	auth := middleware.JWTAuth(jwtSecret)
	customerOnly := middleware.RequireRole(model.RoleCustomer)
	anyRole := middleware.RequireRole(model.RoleCustomer, model.RoleOwner, model.RoleAdmin)
	limited := append([]echo.MiddlewareFunc{auth, customerOnly}, optional(limiter)...)

	g.POST("/reservations", h.Reservations.Create, limited...)
	g.GET("/my-reservations", h.Reservations.ListMine, auth, customerOnly)
	g.GET("/reservations/:id", h.Reservations.Get, auth, anyRole)
	g.PUT("/reservations/:id", h.Reservations.Update, limited...)
	g.PATCH("/reservations/:id/status", h.Reservations.UpdateStatus, auth, anyRole)

	g.POST("/restaurants/:id/tables/:tableID/lock", h.Locks.Lock, limited...)
	g.DELETE("/restaurants/:id/tables/:tableID/lock", h.Locks.Release, auth, customerOnly)
}

func optional(mw echo.MiddlewareFunc) []echo.MiddlewareFunc {
	if mw == nil {
		return nil
	}
	return []echo.MiddlewareFunc{mw}
}
