package middleware

// identity.go holds the helpers that read the verified caller out of the
// Echo context.  JWTAuth stores a model.Actor under actorKey together with
// the raw user_id and role values.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-table-reservation/internal/model"
)

const actorKey = "actor"

// ActorFrom returns the authenticated caller.  ok is false on public routes
// or when JWTAuth did not run.
func ActorFrom(c echo.Context) (model.Actor, bool) {
	a, ok := c.Get(actorKey).(model.Actor)
	if !ok || a.UserID == "" {
		return model.Actor{}, false
	}
	return a, true
}

// SetActor stores a as the authenticated caller.
func SetActor(c echo.Context, a model.Actor) {
	c.Set(actorKey, a)
	c.Set("user_id", a.UserID)
	c.Set("role", string(a.Role))
}

// userID returns the caller's id, or "guest" when nobody is authenticated.
func userID(c echo.Context) string {
	if a, ok := ActorFrom(c); ok {
		return a.UserID
	}
	return "guest"
}
