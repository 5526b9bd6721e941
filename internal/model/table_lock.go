package model

import (
	"math"
	"time"
)

// TableLock is a short-lived advisory hold on a table while a customer
// fills in the booking form.  A lock whose LockUntil is not after the
// current time is treated as absent everywhere.
type TableLock struct {
	RestaurantID string    `json:"restaurant_id"`
	TableID      string    `json:"table_id"`
	LockedBy     string    `json:"locked_by"`
	LockUntil    time.Time `json:"lock_until"`
	CreatedAt    time.Time `json:"created_at"`
}

// Active reports whether the lock is still in force at now.
func (l TableLock) Active(now time.Time) bool {
	return l.LockUntil.After(now)
}

// SecondsLeft returns the remaining lifetime rounded up to whole seconds.
func (l TableLock) SecondsLeft(now time.Time) int {
	d := l.LockUntil.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
