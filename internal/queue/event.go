// Package queue defines the room events exchanged over the message broker
// and the RabbitMQ publisher/consumer that carry them.
package queue

import (
	"encoding/json"
	"time"
)

// Event names broadcast to a restaurant room.
const (
	EventTableLocked        = "table_locked"
	EventTableReleased      = "table_released"
	EventReservationCreated = "reservation_created"
	EventReservationUpdated = "reservation_updated"
)

// Event is published to every subscriber of Room.  Payload is one of the
// *Payload types below.
type Event struct {
	Room       string    `json:"room"`
	Name       string    `json:"event"`
	Payload    any       `json:"payload"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RestaurantRoom returns the room key for a restaurant's subscribers.
func RestaurantRoom(restaurantID string) string {
	return "restaurant:" + restaurantID
}

// TableLockedPayload accompanies table_locked.
type TableLockedPayload struct {
	TableID   string    `json:"table_id"`
	LockedBy  string    `json:"locked_by"`
	LockUntil time.Time `json:"lock_until"`
	Timestamp time.Time `json:"timestamp"`
}

// TableReleasedPayload accompanies table_released.  ReleasedBy is the
// caller of release, or the booking customer when a reservation cleared
// the lock.
type TableReleasedPayload struct {
	TableID    string    `json:"table_id"`
	ReleasedBy string    `json:"released_by"`
	Timestamp  time.Time `json:"timestamp"`
}

// ReservationPayload accompanies reservation_created and
// reservation_updated.
type ReservationPayload struct {
	ReservationID string    `json:"reservation_id"`
	TableID       string    `json:"table_id"`
	UserID        string    `json:"user_id"`
	Status        string    `json:"status"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Actor         string    `json:"actor"`
}

// envelope is the decoded form of an Event whose payload is left raw.
type envelope struct {
	Room       string          `json:"room"`
	Name       string          `json:"event"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}
