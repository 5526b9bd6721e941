package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-table-reservation/internal/model"
	"github.com/iliyamo/restaurant-table-reservation/internal/service"
)

// ReservationService is the booking use-case surface used by the handlers.
type ReservationService interface {
	Book(ctx context.Context, actor model.Actor, in service.BookingInput) (model.Reservation, error)
	Get(ctx context.Context, actor model.Actor, id string) (*model.Reservation, error)
	Update(ctx context.Context, actor model.Actor, id string, patch service.ReservationPatch) (*model.Reservation, error)
	UpdateStatus(ctx context.Context, actor model.Actor, id string, status model.ReservationStatus) (*model.Reservation, error)
	CheckIn(ctx context.Context, actor model.Actor, id string) (*model.Reservation, error)
	ListMine(ctx context.Context, actor model.Actor, status model.ReservationStatus, upcoming bool) ([]model.Reservation, error)
	ListForRestaurant(ctx context.Context, actor model.Actor, restaurantID string, q service.RestaurantReservationQuery) ([]model.Reservation, error)
}

// ReservationHandler serves bookings.  Ownership checks live in the
// service; the router only restricts roles.
type ReservationHandler struct {
	svc ReservationService
}

func NewReservationHandler(svc ReservationService) *ReservationHandler {
	if svc == nil {
		panic("nil service passed to NewReservationHandler")
	}
	return &ReservationHandler{svc: svc}
}

// Create handles POST /v1/reservations.
func (h *ReservationHandler) Create(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	var in service.BookingInput
	if err := decodeStrict(c, &in); err != nil {
		return badRequest(c, err.Error())
	}
	res, err := h.svc.Book(c.Request().Context(), a, in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"reservation": res})
}

// ListMine handles GET /v1/my-reservations?status=&upcoming=.
func (h *ReservationHandler) ListMine(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	upcoming, err := queryBool(c, "upcoming")
	if err != nil {
		return badRequest(c, err.Error())
	}
	status := model.ReservationStatus(strings.TrimSpace(c.QueryParam("status")))
	list, err := h.svc.ListMine(c.Request().Context(), a, status, upcoming)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": nonNil(list), "count": len(list)})
}

// Get handles GET /v1/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	res, err := h.svc.Get(c.Request().Context(), a, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservation": res})
}

// Update handles PUT /v1/reservations/:id.  Absent fields keep their
// current value.
func (h *ReservationHandler) Update(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	var patch service.ReservationPatch
	if err := decodeStrict(c, &patch); err != nil {
		return badRequest(c, err.Error())
	}
	res, err := h.svc.Update(c.Request().Context(), a, c.Param("id"), patch)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservation": res})
}

type statusRequest struct {
	Status model.ReservationStatus `json:"status"`
}

// UpdateStatus handles PATCH /v1/reservations/:id/status.
func (h *ReservationHandler) UpdateStatus(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	var body statusRequest
	if err := decodeStrict(c, &body); err != nil {
		return badRequest(c, err.Error())
	}
	res, err := h.svc.UpdateStatus(c.Request().Context(), a, c.Param("id"), body.Status)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservation": res})
}

// CheckIn handles POST /v1/reservations/:id/check-in.
func (h *ReservationHandler) CheckIn(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	res, err := h.svc.CheckIn(c.Request().Context(), a, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservation": res})
}

// ListForRestaurant handles GET /v1/restaurants/:id/reservations?date=&status=.
func (h *ReservationHandler) ListForRestaurant(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	q := service.RestaurantReservationQuery{
		Date:   strings.TrimSpace(c.QueryParam("date")),
		Status: model.ReservationStatus(strings.TrimSpace(c.QueryParam("status"))),
	}
	list, err := h.svc.ListForRestaurant(c.Request().Context(), a, c.Param("id"), q)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": nonNil(list), "count": len(list)})
}
