package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-table-reservation/internal/model"
	"github.com/iliyamo/restaurant-table-reservation/internal/service"
)

// RestaurantService is the part of the directory the HTTP layer needs.
type RestaurantService interface {
	FindByID(ctx context.Context, id string) (*model.Restaurant, error)
	List(ctx context.Context, limit, offset int) ([]model.Restaurant, error)
	ListMine(ctx context.Context, actor model.Actor) ([]model.Restaurant, error)
	Create(ctx context.Context, actor model.Actor, in service.CreateRestaurantInput) (*model.Restaurant, error)
	UpdateFloorPlan(ctx context.Context, actor model.Actor, id string, in service.FloorPlanInput) (*model.Restaurant, error)
}

// RestaurantHandler serves the restaurant directory.
type RestaurantHandler struct {
	svc RestaurantService
}

func NewRestaurantHandler(svc RestaurantService) *RestaurantHandler {
	if svc == nil {
		panic("nil service passed to NewRestaurantHandler")
	}
	return &RestaurantHandler{svc: svc}
}

// List handles GET /v1/restaurants?limit=&offset=.
func (h *RestaurantHandler) List(c echo.Context) error {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		return badRequest(c, err.Error())
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		return badRequest(c, err.Error())
	}
	list, err := h.svc.List(c.Request().Context(), limit, offset)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"restaurants": nonNil(list), "count": len(list)})
}

// Get handles GET /v1/restaurants/:id.
func (h *RestaurantHandler) Get(c echo.Context) error {
	r, err := h.svc.FindByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"restaurant": r})
}

// Create handles POST /v1/restaurants.
func (h *RestaurantHandler) Create(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	var in service.CreateRestaurantInput
	if err := decodeStrict(c, &in); err != nil {
		return badRequest(c, err.Error())
	}
	r, err := h.svc.Create(c.Request().Context(), a, in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"restaurant": r})
}

// ListMine handles GET /v1/my-restaurants.
func (h *RestaurantHandler) ListMine(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	list, err := h.svc.ListMine(c.Request().Context(), a)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"restaurants": nonNil(list), "count": len(list)})
}

// UpdateFloorPlan handles PUT /v1/restaurants/:id/floorplan.  The whole
// floor plan is replaced.
func (h *RestaurantHandler) UpdateFloorPlan(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	var in service.FloorPlanInput
	if err := decodeStrict(c, &in); err != nil {
		return badRequest(c, err.Error())
	}
	r, err := h.svc.UpdateFloorPlan(c.Request().Context(), a, c.Param("id"), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"restaurant": r})
}
