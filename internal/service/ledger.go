package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/restaurant-table-reservation/internal/apperror"
	"github.com/iliyamo/restaurant-table-reservation/internal/clock"
	"github.com/iliyamo/restaurant-table-reservation/internal/model"
)

// NewReservation carries the fields of a reservation about to be written.
// Capacity and overlap are checked by the caller inside the same
// transaction.
type NewReservation struct {
	RestaurantID    string
	UserID          string
	TableID         string
	StartTime       time.Time
	EndTime         time.Time
	PartySize       int
	SpecialRequests string
}

// ReservationPatch holds the editable fields of a reservation.  Nil fields
// keep their current value.
type ReservationPatch struct {
	TableID         *string    `json:"table_id" validate:"omitempty,min=1,max=64"`
	StartTime       *time.Time `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
	PartySize       *int       `json:"party_size" validate:"omitempty,gt=0"`
	SpecialRequests *string    `json:"special_requests" validate:"omitempty,max=500"`
}

// Ledger stores reservations and guards the no-overlap invariant per table.
type Ledger struct {
	store ReservationStore
	clock clock.Clock
	log   *zap.Logger
}

func NewLedger(store ReservationStore, clk clock.Clock, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{store: store, clock: clk, log: log}
}

// WithTableLocked runs fn in a transaction holding the row lock of the
// table, so that overlap checks and writes for that table serialize.
func (l *Ledger) WithTableLocked(ctx context.Context, restaurantID, tableID string, fn func(ctx context.Context) error) error {
	return l.store.WithTx(ctx, func(txCtx context.Context) error {
		if err := l.store.LockTable(txCtx, restaurantID, tableID); err != nil {
			return storeErr(err, "table "+tableID+" not found")
		}
		return fn(txCtx)
	})
}

// CheckAvailability reports whether no non-cancelled reservation other
// than excludeID overlaps [start, end) on the table.
func (l *Ledger) CheckAvailability(ctx context.Context, restaurantID, tableID string, start, end time.Time, excludeID string) (bool, error) {
	overlap, err := l.store.HasOverlap(ctx, restaurantID, tableID, start, end, excludeID)
	if err != nil {
		return false, storeErr(err, "reservation not found")
	}
	return !overlap, nil
}

// Create writes a confirmed reservation with a booked lifecycle entry.
func (l *Ledger) Create(ctx context.Context, in NewReservation) (model.Reservation, error) {
	if !in.EndTime.After(in.StartTime) {
		return model.Reservation{}, apperror.New(apperror.KindInvalidRequest, "end_time must be after start_time")
	}
	now := l.clock.Now()
	res := model.Reservation{
		ID:              uuid.NewString(),
		RestaurantID:    in.RestaurantID,
		UserID:          in.UserID,
		TableID:         in.TableID,
		StartTime:       in.StartTime.UTC(),
		EndTime:         in.EndTime.UTC(),
		PartySize:       in.PartySize,
		SpecialRequests: in.SpecialRequests,
		Status:          model.StatusConfirmed,
		Lifecycle:       []model.LifecycleEntry{{Action: model.ActionBooked, Timestamp: now}},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := l.store.Insert(ctx, res); err != nil {
		return model.Reservation{}, storeErr(err, "reservation not found")
	}
	return res, nil
}

func (l *Ledger) Get(ctx context.Context, id string) (*model.Reservation, error) {
	res, err := l.store.GetByID(ctx, id, false)
	if err != nil {
		return nil, storeErr(err, "reservation not found")
	}
	return res, nil
}

// UpdateStatus sets the status and appends a lifecycle entry named after
// it.  Repeating the current status still appends exactly one entry.
// Moving a cancelled reservation back to any other status takes its
// interval again, so the table is locked and the overlap check repeated.
func (l *Ledger) UpdateStatus(ctx context.Context, id string, status model.ReservationStatus) (*model.Reservation, error) {
	if !status.Valid() {
		return nil, apperror.Newf(apperror.KindInvalidStatus, "unknown status %q", status)
	}
	var out *model.Reservation
	err := l.store.WithTx(ctx, func(txCtx context.Context) error {
		res, err := l.store.GetByID(txCtx, id, true)
		if err != nil {
			return storeErr(err, "reservation not found")
		}
		if res.Status == model.StatusCancelled && status != model.StatusCancelled {
			if err := l.reclaimSlot(txCtx, res); err != nil {
				return err
			}
		}
		now := l.clock.Now()
		entry := model.LifecycleEntry{Action: model.LifecycleAction(status), Timestamp: now}
		if err := l.store.UpdateStatus(txCtx, id, status, now); err != nil {
			return storeErr(err, "reservation not found")
		}
		if err := l.store.AppendLifecycle(txCtx, id, entry); err != nil {
			return storeErr(err, "reservation not found")
		}
		res.Status = status
		res.Lifecycle = append(res.Lifecycle, entry)
		res.UpdatedAt = now
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// reclaimSlot fails with slot_taken when another reservation took the
// interval of res while it was cancelled.
func (l *Ledger) reclaimSlot(ctx context.Context, res *model.Reservation) error {
	if err := l.store.LockTable(ctx, res.RestaurantID, res.TableID); err != nil {
		return storeErr(err, "table "+res.TableID+" not found")
	}
	free, err := l.CheckAvailability(ctx, res.RestaurantID, res.TableID, res.StartTime, res.EndTime, res.ID)
	if err != nil {
		return err
	}
	if !free {
		return apperror.New(apperror.KindSlotTaken, "table is already booked for an overlapping time")
	}
	return nil
}

// CheckIn appends a seated entry to a confirmed reservation.  The status
// stays confirmed.
func (l *Ledger) CheckIn(ctx context.Context, id string) (*model.Reservation, error) {
	var out *model.Reservation
	err := l.store.WithTx(ctx, func(txCtx context.Context) error {
		res, err := l.store.GetByID(txCtx, id, true)
		if err != nil {
			return storeErr(err, "reservation not found")
		}
		if res.Status != model.StatusConfirmed {
			return apperror.Newf(apperror.KindInvalidTransition, "cannot check in a %s reservation", res.Status)
		}
		entry := model.LifecycleEntry{Action: model.ActionSeated, Timestamp: l.clock.Now()}
		if err := l.store.AppendLifecycle(txCtx, id, entry); err != nil {
			return storeErr(err, "reservation not found")
		}
		res.Lifecycle = append(res.Lifecycle, entry)
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update applies patch to a reservation that has not been seated yet.
// Capacity and overlap are re-validated against the resulting table and
// interval, ignoring the reservation itself.
func (l *Ledger) Update(ctx context.Context, id string, patch ReservationPatch, r *model.Restaurant) (*model.Reservation, error) {
	if err := validateInput(patch); err != nil {
		return nil, err
	}
	var out *model.Reservation
	err := l.store.WithTx(ctx, func(txCtx context.Context) error {
		res, err := l.store.GetByID(txCtx, id, true)
		if err != nil {
			return storeErr(err, "reservation not found")
		}
		if res.IsSeated() {
			return apperror.New(apperror.KindAlreadySeated, "reservation cannot be changed after check-in")
		}

		next := *res
		applyPatch(&next, patch)
		if !next.EndTime.After(next.StartTime) {
			return apperror.New(apperror.KindInvalidRequest, "end_time must be after start_time")
		}
		capacity, ok := r.TableCapacity(next.TableID)
		if !ok {
			return apperror.Newf(apperror.KindNotFound, "table %s not found", next.TableID)
		}
		if next.PartySize > capacity {
			return apperror.Newf(apperror.KindCapacityExceeded, "party of %d exceeds table capacity %d", next.PartySize, capacity)
		}

		if err := l.store.LockTable(txCtx, next.RestaurantID, next.TableID); err != nil {
			return storeErr(err, "table "+next.TableID+" not found")
		}
		if next.Status != model.StatusCancelled {
			free, err := l.CheckAvailability(txCtx, next.RestaurantID, next.TableID, next.StartTime, next.EndTime, next.ID)
			if err != nil {
				return err
			}
			if !free {
				return apperror.New(apperror.KindSlotTaken, "table is already booked for an overlapping time")
			}
		}

		next.UpdatedAt = l.clock.Now()
		if err := l.store.UpdateDetails(txCtx, next); err != nil {
			return storeErr(err, "reservation not found")
		}
		out = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func applyPatch(res *model.Reservation, p ReservationPatch) {
	if p.TableID != nil {
		res.TableID = *p.TableID
	}
	if p.StartTime != nil {
		res.StartTime = p.StartTime.UTC()
	}
	if p.EndTime != nil {
		res.EndTime = p.EndTime.UTC()
	}
	if p.PartySize != nil {
		res.PartySize = *p.PartySize
	}
	if p.SpecialRequests != nil {
		res.SpecialRequests = *p.SpecialRequests
	}
}

// ListByUser returns the user's reservations ordered by start_time.
func (l *Ledger) ListByUser(ctx context.Context, userID string, f model.UserReservationFilter) ([]model.Reservation, error) {
	if f.Upcoming && f.Now.IsZero() {
		f.Now = l.clock.Now()
	}
	out, err := l.store.ListByUser(ctx, userID, f)
	if err != nil {
		return nil, storeErr(err, "reservation not found")
	}
	return out, nil
}

// ListByRestaurant returns the restaurant's reservations ordered by
// start_time.
func (l *Ledger) ListByRestaurant(ctx context.Context, restaurantID string, f model.RestaurantReservationFilter) ([]model.Reservation, error) {
	out, err := l.store.ListByRestaurant(ctx, restaurantID, f)
	if err != nil {
		return nil, storeErr(err, "reservation not found")
	}
	return out, nil
}
