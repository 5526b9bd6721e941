package model

import "time"

// ReservationStatus is the externally visible state of a reservation.
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusCancelled ReservationStatus = "cancelled"
	StatusCompleted ReservationStatus = "completed"
)

// Valid reports whether s is one of the four recognised statuses.
func (s ReservationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// LifecycleAction names an operational event on a reservation.  Status
// updates record the new status name as the action.
type LifecycleAction string

const (
	ActionBooked   LifecycleAction = "booked"
	ActionSeated   LifecycleAction = "seated"
	ActionOrdered  LifecycleAction = "ordered"
	ActionPaid     LifecycleAction = "paid"
	ActionFinished LifecycleAction = "finished"
)

// LifecycleEntry is an immutable, timestamped record appended to a
// reservation's lifecycle.
type LifecycleEntry struct {
	Action    LifecycleAction `json:"action"`
	Timestamp time.Time       `json:"timestamp"`
}

// Reservation books one table of a restaurant for the half-open interval
// [StartTime, EndTime).
//
// Fields:
//  ID              – opaque identifier (UUID string).
//  RestaurantID    – restaurant the table belongs to.
//  UserID          – customer who made the booking.
//  TableID         – table inside the restaurant's floor plan.
//  StartTime       – first occupied instant.
//  EndTime         – first free instant after the booking.
//  PartySize       – number of guests.
//  SpecialRequests – free text from the customer.
//  Status          – pending, confirmed, cancelled or completed.
//  Lifecycle       – append-only event history, oldest first.
type Reservation struct {
	ID              string            `json:"id"`
	RestaurantID    string            `json:"restaurant_id"`
	UserID          string            `json:"user_id"`
	TableID         string            `json:"table_id"`
	StartTime       time.Time         `json:"start_time"`
	EndTime         time.Time         `json:"end_time"`
	PartySize       int               `json:"party_size"`
	SpecialRequests string            `json:"special_requests,omitempty"`
	Status          ReservationStatus `json:"status"`
	Lifecycle       []LifecycleEntry  `json:"lifecycle"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// IsSeated reports whether the reservation has been checked in.
func (r *Reservation) IsSeated() bool {
	for _, e := range r.Lifecycle {
		if e.Action == ActionSeated {
			return true
		}
	}
	return false
}

// Overlaps reports whether [start, end) intersects the reservation's
// interval.  Touching endpoints do not overlap.
func (r *Reservation) Overlaps(start, end time.Time) bool {
	return r.StartTime.Before(end) && r.EndTime.After(start)
}

// UserReservationFilter narrows the reservations listed for a customer.
type UserReservationFilter struct {
	Status   ReservationStatus
	Upcoming bool
	Now      time.Time
}

// RestaurantReservationFilter narrows the reservations listed for a
// restaurant.  From/To bound start_time inclusively when non-zero.
type RestaurantReservationFilter struct {
	Status ReservationStatus
	From   time.Time
	To     time.Time
}
