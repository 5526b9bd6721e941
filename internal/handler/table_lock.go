package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-table-reservation/internal/model"
)

// LockService is the lock manager surface used by the handlers.
type LockService interface {
	Acquire(ctx context.Context, actor model.Actor, restaurantID, tableID string) (model.TableLock, error)
	Release(ctx context.Context, actor model.Actor, restaurantID, tableID string) error
	ListForRestaurant(ctx context.Context, actor model.Actor, restaurantID string) ([]model.TableLock, error)
	TTL() time.Duration
}

// TableLockHandler serves the soft locks customers take while filling in
// the booking form.
type TableLockHandler struct {
	svc LockService
}

func NewTableLockHandler(svc LockService) *TableLockHandler {
	if svc == nil {
		panic("nil service passed to NewTableLockHandler")
	}
	return &TableLockHandler{svc: svc}
}

// Lock handles POST /v1/restaurants/:id/tables/:tableID/lock.  A table held
// by someone else answers 423 with Retry-After.
func (h *TableLockHandler) Lock(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	lock, err := h.svc.Acquire(c.Request().Context(), a, c.Param("id"), c.Param("tableID"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"lock":        lock,
		"lock_until":  lock.LockUntil,
		"ttl_seconds": int(h.svc.TTL() / time.Second),
	})
}

// Release handles DELETE /v1/restaurants/:id/tables/:tableID/lock.
func (h *TableLockHandler) Release(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	if err := h.svc.Release(c.Request().Context(), a, c.Param("id"), c.Param("tableID")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "table lock released"})
}

// List handles GET /v1/restaurants/:id/locks.
func (h *TableLockHandler) List(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	locks, err := h.svc.ListForRestaurant(c.Request().Context(), a, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"locks": nonNil(locks), "count": len(locks)})
}
