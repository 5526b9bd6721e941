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

const defaultLockTTL = 60 * time.Second

// LockManager hands out short-lived advisory locks on tables.  Locks never
// gate a booking; they only tell other customers that someone is filling
// in the form.
type LockManager struct {
	dir      *Directory
	store    TableLockStore
	notifier Notifier
	clock    clock.Clock
	log      *zap.Logger
	metrics  *metrics.Metrics
	ttl      time.Duration
}

type LockOption func(*LockManager)

// WithLockTTL overrides the default 60s lock lifetime.
func WithLockTTL(d time.Duration) LockOption {
	return func(m *LockManager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

func WithLockMetrics(mt *metrics.Metrics) LockOption {
	return func(m *LockManager) { m.metrics = mt }
}

// NewLockManager returns a LockManager.  notifier may be nil.
func NewLockManager(dir *Directory, store TableLockStore, notifier Notifier, clk clock.Clock, log *zap.Logger, opts ...LockOption) *LockManager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &LockManager{
		dir:      dir,
		store:    store,
		notifier: notifier,
		clock:    clk,
		log:      log,
		ttl:      defaultLockTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL returns the lifetime given to new locks.
func (m *LockManager) TTL() time.Duration { return m.ttl }

// Acquire locks the table for the caller.  It fails with lock_conflict,
// carrying the remaining seconds, while another unexpired lock exists.
func (m *LockManager) Acquire(ctx context.Context, actor model.Actor, restaurantID, tableID string) (model.TableLock, error) {
	lock, err := m.acquire(ctx, actor, restaurantID, tableID)
	m.metrics.ObserveLock("acquire", err)
	return lock, err
}

func (m *LockManager) acquire(ctx context.Context, actor model.Actor, restaurantID, tableID string) (model.TableLock, error) {
	if actor.UserID == "" || restaurantID == "" || tableID == "" {
		return model.TableLock{}, apperror.New(apperror.KindInvalidRequest, "restaurant_id, table_id and user are required")
	}
	r, err := m.dir.FindByID(ctx, restaurantID)
	if err != nil {
		return model.TableLock{}, err
	}
	if !m.dir.TableExists(r, tableID) {
		return model.TableLock{}, apperror.Newf(apperror.KindNotFound, "table %s not found", tableID)
	}

	now := m.clock.Now()
	lock := model.TableLock{
		RestaurantID: restaurantID,
		TableID:      tableID,
		LockedBy:     actor.UserID,
		LockUntil:    now.Add(m.ttl),
		CreatedAt:    now,
	}
	held, err := m.store.TryInsert(ctx, lock, now)
	if err != nil {
		return model.TableLock{}, storeErr(err, "lock not found")
	}
	if held != nil {
		return model.TableLock{}, apperror.LockConflict(held.LockUntil.Sub(now))
	}

	m.notify(ctx, queue.Event{
		Room:       queue.RestaurantRoom(restaurantID),
		Name:       queue.EventTableLocked,
		OccurredAt: now,
		Payload: queue.TableLockedPayload{
			TableID:   tableID,
			LockedBy:  actor.UserID,
			LockUntil: lock.LockUntil,
			Timestamp: now,
		},
	})
	return lock, nil
}

// Release removes the caller's lock.  A missing lock and a lock held by
// someone else are reported the same way.
func (m *LockManager) Release(ctx context.Context, actor model.Actor, restaurantID, tableID string) error {
	err := m.release(ctx, actor, restaurantID, tableID)
	m.metrics.ObserveLock("release", err)
	return err
}

func (m *LockManager) release(ctx context.Context, actor model.Actor, restaurantID, tableID string) error {
	now := m.clock.Now()
	ok, err := m.store.DeleteIfOwner(ctx, restaurantID, tableID, actor.UserID, now)
	if err != nil {
		return storeErr(err, "lock not found or not held by caller")
	}
	if !ok {
		return apperror.New(apperror.KindNotFound, "lock not found or not held by caller")
	}
	m.notifyReleased(ctx, restaurantID, tableID, actor.UserID, now)
	return nil
}

// FindActive returns the unexpired lock on the table, or nil.
func (m *LockManager) FindActive(ctx context.Context, restaurantID, tableID string) (*model.TableLock, error) {
	lock, err := m.store.FindActive(ctx, restaurantID, tableID, m.clock.Now())
	if err != nil {
		return nil, storeErr(err, "lock not found")
	}
	return lock, nil
}

// ListActive returns every unexpired lock of the restaurant.
func (m *LockManager) ListActive(ctx context.Context, restaurantID string) ([]model.TableLock, error) {
	locks, err := m.store.ListActive(ctx, restaurantID, m.clock.Now())
	if err != nil {
		return nil, storeErr(err, "lock not found")
	}
	return locks, nil
}

// ListForRestaurant is ListActive restricted to the restaurant owner and
// admins.
func (m *LockManager) ListForRestaurant(ctx context.Context, actor model.Actor, restaurantID string) ([]model.TableLock, error) {
	r, err := m.dir.FindByID(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !r.IsOwnedBy(actor.UserID) {
		return nil, apperror.New(apperror.KindForbidden, "only the restaurant owner can list locks")
	}
	return m.ListActive(ctx, restaurantID)
}

// ClearsInTx reports whether ClearForBooking writes through the booking
// transaction, so that its failure aborts the booking.
func (m *LockManager) ClearsInTx() bool {
	j, ok := m.store.(TxJoiner)
	return ok && j.JoinsTx()
}

// ClearForBooking drops any lock on the table as part of a booking commit.
// It reports whether an active lock was removed.
func (m *LockManager) ClearForBooking(ctx context.Context, restaurantID, tableID string) (bool, error) {
	ok, err := m.store.Delete(ctx, restaurantID, tableID, m.clock.Now())
	m.metrics.ObserveLock("clear", err)
	return ok, err
}

// Sweep purges expired locks and returns how many were removed.
func (m *LockManager) Sweep(ctx context.Context) (int64, error) {
	n, err := m.store.PurgeExpired(ctx, m.clock.Now())
	if err != nil {
		return 0, err
	}
	m.metrics.AddPurged(n)
	return n, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *LockManager) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := m.Sweep(ctx)
			if err != nil {
				m.log.Warn("table lock sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				m.log.Debug("expired table locks purged", zap.Int64("count", n))
			}
		}
	}
}

func (m *LockManager) notifyReleased(ctx context.Context, restaurantID, tableID, userID string, now time.Time) {
	m.notify(ctx, queue.Event{
		Room:       queue.RestaurantRoom(restaurantID),
		Name:       queue.EventTableReleased,
		OccurredAt: now,
		Payload: queue.TableReleasedPayload{
			TableID:    tableID,
			ReleasedBy: userID,
			Timestamp:  now,
		},
	})
}

func (m *LockManager) notify(ctx context.Context, ev queue.Event) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, ev); err != nil {
		m.log.Warn("room notification failed",
			zap.String("room", ev.Room),
			zap.String("event", ev.Name),
			zap.Error(err),
		)
	}
}
