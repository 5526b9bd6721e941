package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/restaurant-table-reservation/internal/apperror"
	"github.com/iliyamo/restaurant-table-reservation/internal/clock"
	"github.com/iliyamo/restaurant-table-reservation/internal/metrics"
	"github.com/iliyamo/restaurant-table-reservation/internal/model"
	"github.com/iliyamo/restaurant-table-reservation/internal/queue"
)

const dateLayout = "2006-01-02"

// BookingInput is the body of a booking request.
type BookingInput struct {
	RestaurantID    string    `json:"restaurant_id" validate:"required,max=36"`
	TableID         string    `json:"table_id" validate:"required,max=64"`
	StartTime       time.Time `json:"start_time" validate:"required"`
	EndTime         time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
	PartySize       int       `json:"party_size" validate:"required,gt=0"`
	SpecialRequests string    `json:"special_requests" validate:"max=500"`
}

// RestaurantReservationQuery filters a restaurant's reservations.  Date is
// a YYYY-MM-DD UTC day.
type RestaurantReservationQuery struct {
	Date   string
	Status model.ReservationStatus
}

// BookingService is the use-case layer over the directory, the lock
// manager and the ledger.  It owns domain-level authorization.
type BookingService struct {
	dir      *Directory
	locks    *LockManager
	ledger   *Ledger
	notifier Notifier
	clock    clock.Clock
	log      *zap.Logger
	metrics  *metrics.Metrics
}

type BookingOption func(*BookingService)

func WithBookingMetrics(mt *metrics.Metrics) BookingOption {
	return func(s *BookingService) { s.metrics = mt }
}

func NewBookingService(dir *Directory, locks *LockManager, ledger *Ledger, notifier Notifier, clk clock.Clock, log *zap.Logger, opts ...BookingOption) *BookingService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &BookingService{
		dir:      dir,
		locks:    locks,
		ledger:   ledger,
		notifier: notifier,
		clock:    clk,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Book creates a reservation for the caller.  Capacity is checked before
// overlap, so an over-capacity request for a booked slot reports
// capacity_exceeded.  The overlap check and insert run in one transaction
// holding the table's row lock.  A lock store that shares that transaction
// clears the lock inside it; any other store is cleared after commit.
func (s *BookingService) Book(ctx context.Context, actor model.Actor, in BookingInput) (model.Reservation, error) {
	res, err := s.book(ctx, actor, in)
	s.metrics.ObserveBooking(err)
	if err != nil {
		s.log.Info("booking rejected",
			zap.String("restaurant_id", in.RestaurantID),
			zap.String("table_id", in.TableID),
			zap.String("user_id", actor.UserID),
			zap.String("kind", string(apperror.KindOf(err))),
		)
	}
	return res, err
}

func (s *BookingService) book(ctx context.Context, actor model.Actor, in BookingInput) (model.Reservation, error) {
	if err := validateInput(in); err != nil {
		return model.Reservation{}, err
	}
	if actor.UserID == "" {
		return model.Reservation{}, apperror.New(apperror.KindInvalidRequest, "user is required")
	}
	r, err := s.dir.FindByID(ctx, in.RestaurantID)
	if err != nil {
		return model.Reservation{}, err
	}
	capacity, err := s.dir.TableCapacity(r, in.TableID)
	if err != nil {
		return model.Reservation{}, err
	}

	var (
		created model.Reservation
		cleared bool
		inTx    = s.locks.ClearsInTx()
	)
	err = s.ledger.WithTableLocked(ctx, in.RestaurantID, in.TableID, func(txCtx context.Context) error {
		if in.PartySize > capacity {
			return apperror.Newf(apperror.KindCapacityExceeded, "party of %d exceeds table capacity %d", in.PartySize, capacity)
		}
		free, err := s.ledger.CheckAvailability(txCtx, in.RestaurantID, in.TableID, in.StartTime, in.EndTime, "")
		if err != nil {
			return err
		}
		if !free {
			return apperror.New(apperror.KindSlotTaken, "table is already booked for an overlapping time")
		}
		if inTx {
			if cleared, err = s.locks.ClearForBooking(txCtx, in.RestaurantID, in.TableID); err != nil {
				return storeErr(err, "table lock not found")
			}
		}
		created, err = s.ledger.Create(txCtx, NewReservation{
			RestaurantID:    in.RestaurantID,
			UserID:          actor.UserID,
			TableID:         in.TableID,
			StartTime:       in.StartTime,
			EndTime:         in.EndTime,
			PartySize:       in.PartySize,
			SpecialRequests: in.SpecialRequests,
		})
		return err
	})
	if err != nil {
		return model.Reservation{}, err
	}

	if !inTx {
		if cleared, err = s.locks.ClearForBooking(ctx, in.RestaurantID, in.TableID); err != nil {
			s.log.Warn("clearing table lock failed", zap.String("table_id", in.TableID), zap.Error(err))
			cleared = false
		}
	}
	if cleared {
		s.locks.notifyReleased(ctx, in.RestaurantID, in.TableID, actor.UserID, created.CreatedAt)
	}
	s.notifyReservation(ctx, queue.EventReservationCreated, &created, actor)
	s.log.Info("reservation created",
		zap.String("reservation_id", created.ID),
		zap.String("restaurant_id", created.RestaurantID),
		zap.String("table_id", created.TableID),
	)
	return created, nil
}

// Get returns a reservation visible to the caller: admins, the customer
// who booked it and the owner of the restaurant.
func (s *BookingService) Get(ctx context.Context, actor model.Actor, id string) (*model.Reservation, error) {
	res, err := s.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.canManage(ctx, actor, res)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.New(apperror.KindForbidden, "not allowed to view this reservation")
	}
	return res, nil
}

// UpdateStatus changes the status on behalf of an admin, the customer or
// the restaurant owner.
func (s *BookingService) UpdateStatus(ctx context.Context, actor model.Actor, id string, status model.ReservationStatus) (*model.Reservation, error) {
	if !status.Valid() {
		return nil, apperror.Newf(apperror.KindInvalidStatus, "unknown status %q", status)
	}
	res, err := s.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.canManage(ctx, actor, res)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.New(apperror.KindForbidden, "not allowed to update this reservation")
	}
	updated, err := s.ledger.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	s.notifyReservation(ctx, queue.EventReservationUpdated, updated, actor)
	return updated, nil
}

// CheckIn seats a confirmed reservation.  Only the restaurant owner or an
// admin may check guests in.
func (s *BookingService) CheckIn(ctx context.Context, actor model.Actor, id string) (*model.Reservation, error) {
	res, err := s.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		r, err := s.dir.FindByID(ctx, res.RestaurantID)
		if err != nil {
			return nil, err
		}
		if !r.IsOwnedBy(actor.UserID) {
			return nil, apperror.New(apperror.KindForbidden, "only the restaurant owner can check in guests")
		}
	}
	updated, err := s.ledger.CheckIn(ctx, id)
	if err != nil {
		return nil, err
	}
	s.notifyReservation(ctx, queue.EventReservationUpdated, updated, actor)
	return updated, nil
}

// Update edits table, interval, party size or requests.  Only the customer
// who booked may edit, and only before check-in.
func (s *BookingService) Update(ctx context.Context, actor model.Actor, id string, patch ReservationPatch) (*model.Reservation, error) {
	res, err := s.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.UserID != actor.UserID {
		return nil, apperror.New(apperror.KindForbidden, "only the customer who booked can edit the reservation")
	}
	r, err := s.dir.FindByID(ctx, res.RestaurantID)
	if err != nil {
		return nil, err
	}
	updated, err := s.ledger.Update(ctx, id, patch, r)
	if err != nil {
		return nil, err
	}
	s.notifyReservation(ctx, queue.EventReservationUpdated, updated, actor)
	return updated, nil
}

// ListMine returns the caller's reservations.
func (s *BookingService) ListMine(ctx context.Context, actor model.Actor, status model.ReservationStatus, upcoming bool) ([]model.Reservation, error) {
	if status != "" && !status.Valid() {
		return nil, apperror.Newf(apperror.KindInvalidStatus, "unknown status %q", status)
	}
	return s.ledger.ListByUser(ctx, actor.UserID, model.UserReservationFilter{
		Status:   status,
		Upcoming: upcoming,
		Now:      s.clock.Now(),
	})
}

// ListForRestaurant returns a restaurant's reservations to its owner or an
// admin.
func (s *BookingService) ListForRestaurant(ctx context.Context, actor model.Actor, restaurantID string, q RestaurantReservationQuery) ([]model.Reservation, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, apperror.Newf(apperror.KindInvalidStatus, "unknown status %q", q.Status)
	}
	f := model.RestaurantReservationFilter{Status: q.Status}
	if q.Date != "" {
		day, err := time.ParseInLocation(dateLayout, q.Date, time.UTC)
		if err != nil {
			return nil, apperror.New(apperror.KindInvalidRequest, "date must be YYYY-MM-DD")
		}
		f.From = day
		f.To = day.Add(24*time.Hour - time.Millisecond)
	}
	r, err := s.dir.FindByID(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !r.IsOwnedBy(actor.UserID) {
		return nil, apperror.New(apperror.KindForbidden, "only the restaurant owner can list its reservations")
	}
	return s.ledger.ListByRestaurant(ctx, restaurantID, f)
}

// canManage reports whether the actor is an admin, the customer who booked
// or an owner-role user owning the restaurant.
func (s *BookingService) canManage(ctx context.Context, actor model.Actor, res *model.Reservation) (bool, error) {
	if actor.IsAdmin() || (actor.UserID != "" && res.UserID == actor.UserID) {
		return true, nil
	}
	if actor.Role != model.RoleOwner {
		return false, nil
	}
	r, err := s.dir.FindByID(ctx, res.RestaurantID)
	if err != nil {
		return false, err
	}
	return r.IsOwnedBy(actor.UserID), nil
}

func (s *BookingService) notifyReservation(ctx context.Context, name string, res *model.Reservation, actor model.Actor) {
	if s.notifier == nil {
		return
	}
	ev := queue.Event{
		Room:       queue.RestaurantRoom(res.RestaurantID),
		Name:       name,
		OccurredAt: s.clock.Now(),
		Payload: queue.ReservationPayload{
			ReservationID: res.ID,
			TableID:       res.TableID,
			UserID:        res.UserID,
			Status:        string(res.Status),
			StartTime:     res.StartTime,
			EndTime:       res.EndTime,
			Actor:         actor.UserID,
		},
	}
	if err := s.notifier.Publish(ctx, ev); err != nil {
		s.log.Warn("room notification failed", zap.String("event", name), zap.Error(err))
	}
}
