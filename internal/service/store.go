// Package service implements the booking core: the restaurant directory,
// the table lock manager, the reservation ledger and the booking
// orchestrator that composes them.
package service

import (
	"context"
	"time"

	"github.com/iliyamo/restaurant-table-reservation/internal/model"
	"github.com/iliyamo/restaurant-table-reservation/internal/queue"
)

// RestaurantStore persists restaurants and their floor plans.  GetByID
// returns repository.ErrNotFound for unknown ids.  List and ListByOwner do
// not populate Zones.
type RestaurantStore interface {
	Insert(ctx context.Context, r model.Restaurant) error
	GetByID(ctx context.Context, id string) (*model.Restaurant, error)
	List(ctx context.Context, limit, offset int) ([]model.Restaurant, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.Restaurant, error)
	ReplaceFloorPlan(ctx context.Context, id string, zones []model.Zone, updatedAt time.Time) error
}

// RestaurantCache is a read-through cache in front of RestaurantStore.
// Failures are absorbed by the implementation.
type RestaurantCache interface {
	Get(ctx context.Context, id string) (*model.Restaurant, bool)
	Set(ctx context.Context, r *model.Restaurant)
	Invalidate(ctx context.Context, id string)
}

// ReservationStore persists reservations.  WithTx carries the transaction
// in the returned context; every other method joins it when present.
type ReservationStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	// LockTable takes a row lock on the table until the transaction ends.
	LockTable(ctx context.Context, restaurantID, tableID string) error
	HasOverlap(ctx context.Context, restaurantID, tableID string, start, end time.Time, excludeID string) (bool, error)
	Insert(ctx context.Context, r model.Reservation) error
	GetByID(ctx context.Context, id string, forUpdate bool) (*model.Reservation, error)
	UpdateDetails(ctx context.Context, r model.Reservation) error
	UpdateStatus(ctx context.Context, id string, status model.ReservationStatus, updatedAt time.Time) error
	AppendLifecycle(ctx context.Context, id string, entry model.LifecycleEntry) error
	ListByUser(ctx context.Context, userID string, f model.UserReservationFilter) ([]model.Reservation, error)
	ListByRestaurant(ctx context.Context, restaurantID string, f model.RestaurantReservationFilter) ([]model.Reservation, error)
}

// TableLockStore persists soft locks.  Every read ignores locks whose
// LockUntil is not after now.
type TableLockStore interface {
	// TryInsert stores lock unless an active lock exists for the same
	// table, in which case the held lock is returned and nothing changes.
	TryInsert(ctx context.Context, lock model.TableLock, now time.Time) (*model.TableLock, error)
	FindActive(ctx context.Context, restaurantID, tableID string, now time.Time) (*model.TableLock, error)
	ListActive(ctx context.Context, restaurantID string, now time.Time) ([]model.TableLock, error)
	DeleteIfOwner(ctx context.Context, restaurantID, tableID, userID string, now time.Time) (bool, error)
	// Delete removes the lock regardless of owner and reports whether an
	// active one was removed.
	Delete(ctx context.Context, restaurantID, tableID string, now time.Time) (bool, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// TxJoiner is implemented by lock stores whose writes join the
// transaction carried in the context.
type TxJoiner interface {
	JoinsTx() bool
}

// Notifier delivers room events.  Delivery is best effort.
type Notifier interface {
	Publish(ctx context.Context, ev queue.Event) error
}
