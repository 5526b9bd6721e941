package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/restaurant-table-reservation/internal/model"
	"github.com/iliyamo/restaurant-table-reservation/internal/queue"
	"github.com/iliyamo/restaurant-table-reservation/internal/repository"
)

var errStoreDown = errors.New("connection refused")

type fakeRestaurantStore struct {
	mu          sync.Mutex
	restaurants map[string]model.Restaurant
	gets        int
}

func newFakeRestaurantStore(rs ...model.Restaurant) *fakeRestaurantStore {
	s := &fakeRestaurantStore{restaurants: make(map[string]model.Restaurant)}
	for _, r := range rs {
		s.restaurants[r.ID] = r
	}
	return s
}

func (s *fakeRestaurantStore) Insert(_ context.Context, r model.Restaurant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restaurants[r.ID] = r
	return nil
}

func (s *fakeRestaurantStore) GetByID(_ context.Context, id string) (*model.Restaurant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	r, ok := s.restaurants[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (s *fakeRestaurantStore) List(_ context.Context, limit, offset int) ([]model.Restaurant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Restaurant, 0, len(s.restaurants))
	for _, r := range s.restaurants {
		r.Zones = nil
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return []model.Restaurant{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeRestaurantStore) ListByOwner(_ context.Context, ownerID string) ([]model.Restaurant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Restaurant
	for _, r := range s.restaurants {
		if r.OwnerID == ownerID {
			r.Zones = nil
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeRestaurantStore) ReplaceFloorPlan(_ context.Context, id string, zones []model.Zone, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.restaurants[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.Zones = zones
	r.UpdatedAt = updatedAt
	s.restaurants[id] = r
	return nil
}

type fakeCache struct {
	mu          sync.Mutex
	items       map[string]model.Restaurant
	invalidated []string
}

func newFakeCache() *fakeCache { return &fakeCache{items: make(map[string]model.Restaurant)} }

func (c *fakeCache) Get(_ context.Context, id string) (*model.Restaurant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.items[id]
	if !ok {
		return nil, false
	}
	return &r, true
}

func (c *fakeCache) Set(_ context.Context, r *model.Restaurant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[r.ID] = *r
}

func (c *fakeCache) Invalidate(_ context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, id)
	c.invalidated = append(c.invalidated, id)
}

type txMarker struct{}

// fakeReservationStore serializes transactions on a single mutex and
// restores a snapshot when the transaction function fails.
type fakeReservationStore struct {
	txMu         sync.Mutex
	mu           sync.Mutex
	reservations map[string]model.Reservation
	lockedTables []string
	failInsert   error
}

func newFakeReservationStore(rs ...model.Reservation) *fakeReservationStore {
	s := &fakeReservationStore{reservations: make(map[string]model.Reservation)}
	for _, r := range rs {
		s.reservations[r.ID] = r
	}
	return s
}

func (s *fakeReservationStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txMarker{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	snapshot := s.snapshot()
	if err := fn(context.WithValue(ctx, txMarker{}, true)); err != nil {
		s.mu.Lock()
		s.reservations = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *fakeReservationStore) snapshot() map[string]model.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.Reservation, len(s.reservations))
	for id, r := range s.reservations {
		r.Lifecycle = append([]model.LifecycleEntry(nil), r.Lifecycle...)
		out[id] = r
	}
	return out
}

func (s *fakeReservationStore) LockTable(_ context.Context, restaurantID, tableID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockedTables = append(s.lockedTables, restaurantID+"/"+tableID)
	return nil
}

func (s *fakeReservationStore) HasOverlap(_ context.Context, restaurantID, tableID string, start, end time.Time, excludeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reservations {
		if r.RestaurantID != restaurantID || r.TableID != tableID || r.ID == excludeID {
			continue
		}
		if r.Status == model.StatusCancelled {
			continue
		}
		if r.Overlaps(start, end) {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeReservationStore) Insert(_ context.Context, r model.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsert != nil {
		return s.failInsert
	}
	r.Lifecycle = append([]model.LifecycleEntry(nil), r.Lifecycle...)
	s.reservations[r.ID] = r
	return nil
}

func (s *fakeReservationStore) GetByID(_ context.Context, id string, _ bool) (*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	r.Lifecycle = append([]model.LifecycleEntry(nil), r.Lifecycle...)
	return &r, nil
}

func (s *fakeReservationStore) UpdateDetails(_ context.Context, r model.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.reservations[r.ID]
	if !ok {
		return repository.ErrNotFound
	}
	cur.TableID = r.TableID
	cur.StartTime = r.StartTime
	cur.EndTime = r.EndTime
	cur.PartySize = r.PartySize
	cur.SpecialRequests = r.SpecialRequests
	cur.UpdatedAt = r.UpdatedAt
	s.reservations[r.ID] = cur
	return nil
}

func (s *fakeReservationStore) UpdateStatus(_ context.Context, id string, status model.ReservationStatus, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.reservations[id]
	if !ok {
		return repository.ErrNotFound
	}
	cur.Status = status
	cur.UpdatedAt = updatedAt
	s.reservations[id] = cur
	return nil
}

func (s *fakeReservationStore) AppendLifecycle(_ context.Context, id string, entry model.LifecycleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.reservations[id]
	if !ok {
		return repository.ErrNotFound
	}
	cur.Lifecycle = append(cur.Lifecycle, entry)
	s.reservations[id] = cur
	return nil
}

func (s *fakeReservationStore) ListByUser(_ context.Context, userID string, f model.UserReservationFilter) ([]model.Reservation, error) {
	return s.list(func(r model.Reservation) bool {
		if r.UserID != userID {
			return false
		}
		if f.Status != "" && r.Status != f.Status {
			return false
		}
		return !f.Upcoming || !r.StartTime.Before(f.Now)
	}), nil
}

func (s *fakeReservationStore) ListByRestaurant(_ context.Context, restaurantID string, f model.RestaurantReservationFilter) ([]model.Reservation, error) {
	return s.list(func(r model.Reservation) bool {
		if r.RestaurantID != restaurantID {
			return false
		}
		if f.Status != "" && r.Status != f.Status {
			return false
		}
		if !f.From.IsZero() && r.StartTime.Before(f.From) {
			return false
		}
		return f.To.IsZero() || !r.StartTime.After(f.To)
	}), nil
}

func (s *fakeReservationStore) list(keep func(model.Reservation) bool) []model.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Reservation
	for _, r := range s.reservations {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (s *fakeReservationStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reservations)
}

type fakeLockStore struct {
	mu        sync.Mutex
	locks     map[string]model.TableLock
	failWrite error
	joinsTx   bool
}

func (s *fakeLockStore) JoinsTx() bool { return s.joinsTx }

func newFakeLockStore() *fakeLockStore {
	return &fakeLockStore{locks: make(map[string]model.TableLock)}
}

func lockKey(restaurantID, tableID string) string { return restaurantID + "/" + tableID }

func (s *fakeLockStore) TryInsert(_ context.Context, lock model.TableLock, now time.Time) (*model.TableLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrite != nil {
		return nil, s.failWrite
	}
	key := lockKey(lock.RestaurantID, lock.TableID)
	if cur, ok := s.locks[key]; ok && cur.Active(now) {
		return &cur, nil
	}
	s.locks[key] = lock
	return nil, nil
}

func (s *fakeLockStore) FindActive(_ context.Context, restaurantID, tableID string, now time.Time) (*model.TableLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.locks[lockKey(restaurantID, tableID)]
	if !ok || !cur.Active(now) {
		return nil, nil
	}
	return &cur, nil
}

func (s *fakeLockStore) ListActive(_ context.Context, restaurantID string, now time.Time) ([]model.TableLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.TableLock{}
	for _, l := range s.locks {
		if l.RestaurantID == restaurantID && l.Active(now) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TableID < out[j].TableID })
	return out, nil
}

func (s *fakeLockStore) DeleteIfOwner(_ context.Context, restaurantID, tableID, userID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := lockKey(restaurantID, tableID)
	cur, ok := s.locks[key]
	if !ok || !cur.Active(now) || cur.LockedBy != userID {
		return false, nil
	}
	delete(s.locks, key)
	return true, nil
}

func (s *fakeLockStore) Delete(_ context.Context, restaurantID, tableID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrite != nil {
		return false, s.failWrite
	}
	key := lockKey(restaurantID, tableID)
	cur, ok := s.locks[key]
	if !ok {
		return false, nil
	}
	delete(s.locks, key)
	return cur.Active(now), nil
}

func (s *fakeLockStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, l := range s.locks {
		if !l.Active(now) {
			delete(s.locks, key)
			n++
		}
	}
	return n, nil
}

func (s *fakeLockStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []queue.Event
	err    error
}

func (n *fakeNotifier) Publish(_ context.Context, ev queue.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.events = append(n.events, ev)
	return nil
}

func (n *fakeNotifier) names() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Name)
	}
	return out
}
