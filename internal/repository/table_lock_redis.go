package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/restaurant-table-reservation/internal/model"
)

// Lock values are encoded as "<lock_until ms>|<created ms>|<user id>".
// Scripts receive the caller's now in milliseconds so that expiry follows
// the service clock, while PX lets Redis drop the key on its own.

const acquireLockScript = `
local cur = redis.call("GET", KEYS[1])
if cur then
  local untilMs = tonumber(string.match(cur, "^(%d+)|"))
  if untilMs and untilMs > tonumber(ARGV[2]) then
	return cur
  end
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
return false
`

const releaseOwnLockScript = `
local cur = redis.call("GET", KEYS[1])
if not cur then
  return 0
end
local untilMs, _, owner = string.match(cur, "^(%d+)|(%d+)|(.*)$")
if owner == ARGV[1] and tonumber(untilMs) > tonumber(ARGV[2]) then
  redis.call("DEL", KEYS[1])
  return 1
end
return 0
`

const deleteLockScript = `
local cur = redis.call("GET", KEYS[1])
if not cur then
  return 0
end
redis.call("DEL", KEYS[1])
local untilMs = tonumber(string.match(cur, "^(%d+)|"))
if untilMs and untilMs > tonumber(ARGV[1]) then
  return 1
end
return 0
`

// RedisTableLockStore keeps soft locks in Redis under
// tablelock:{restaurant_id}:{table_id}.
type RedisTableLockStore struct {
	client  *redis.Client
	prefix  string
	acquire *redis.Script
	release *redis.Script
	remove  *redis.Script
}

// NewRedisTableLockStore returns a store using client.  It returns nil when
// client is nil so callers can fall back to the MySQL store.
func NewRedisTableLockStore(client *redis.Client) *RedisTableLockStore {
	if client == nil {
		return nil
	}
	return &RedisTableLockStore{
		client:  client,
		prefix:  "tablelock:",
		acquire: redis.NewScript(acquireLockScript),
		release: redis.NewScript(releaseOwnLockScript),
		remove:  redis.NewScript(deleteLockScript),
	}
}

func (s *RedisTableLockStore) key(restaurantID, tableID string) string {
	return s.prefix + restaurantID + ":" + tableID
}

// TryInsert sets the lock unless an unexpired one exists, atomically.
func (s *RedisTableLockStore) TryInsert(ctx context.Context, lock model.TableLock, now time.Time) (*model.TableLock, error) {
	ttl := lock.LockUntil.Sub(now)
	if ttl <= 0 {
		return nil, errors.New("lock ttl must be positive")
	}
	value := encodeLock(lock)
	held, err := s.acquire.Run(ctx, s.client,
		[]string{s.key(lock.RestaurantID, lock.TableID)},
		value, now.UnixMilli(), ttl.Milliseconds(),
	).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cur, err := decodeLock(lock.RestaurantID, lock.TableID, held)
	if err != nil {
		return nil, err
	}
	return &cur, nil
}

func (s *RedisTableLockStore) FindActive(ctx context.Context, restaurantID, tableID string, now time.Time) (*model.TableLock, error) {
	raw, err := s.client.Get(ctx, s.key(restaurantID, tableID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cur, err := decodeLock(restaurantID, tableID, raw)
	if err != nil {
		return nil, err
	}
	if !cur.Active(now) {
		return nil, nil
	}
	return &cur, nil
}

// ListActive scans the restaurant's keys and returns the unexpired locks
// ordered by table.
func (s *RedisTableLockStore) ListActive(ctx context.Context, restaurantID string, now time.Time) ([]model.TableLock, error) {
	base := s.prefix + restaurantID + ":"
	locks := []model.TableLock{}
	iter := s.client.Scan(ctx, 0, base+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := s.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		cur, err := decodeLock(restaurantID, strings.TrimPrefix(key, base), raw)
		if err != nil {
			return nil, err
		}
		if cur.Active(now) {
			locks = append(locks, cur)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Slice(locks, func(i, j int) bool { return locks[i].TableID < locks[j].TableID })
	return locks, nil
}

func (s *RedisTableLockStore) DeleteIfOwner(ctx context.Context, restaurantID, tableID, userID string, now time.Time) (bool, error) {
	n, err := s.release.Run(ctx, s.client, []string{s.key(restaurantID, tableID)}, userID, now.UnixMilli()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisTableLockStore) Delete(ctx context.Context, restaurantID, tableID string, now time.Time) (bool, error) {
	n, err := s.remove.Run(ctx, s.client, []string{s.key(restaurantID, tableID)}, now.UnixMilli()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// PurgeExpired is a no-op: keys carry a PX expiry.
func (s *RedisTableLockStore) PurgeExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func encodeLock(l model.TableLock) string {
	return fmt.Sprintf("%d|%d|%s", l.LockUntil.UnixMilli(), l.CreatedAt.UnixMilli(), l.LockedBy)
}

func decodeLock(restaurantID, tableID, raw string) (model.TableLock, error) {
	parts := strings.SplitN(raw, "|", 3)
	if len(parts) != 3 {
		return model.TableLock{}, fmt.Errorf("malformed lock value %q", raw)
	}
	until, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return model.TableLock{}, fmt.Errorf("malformed lock value %q: %w", raw, err)
	}
	created, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return model.TableLock{}, fmt.Errorf("malformed lock value %q: %w", raw, err)
	}
	return model.TableLock{
		RestaurantID: restaurantID,
		TableID:      tableID,
		LockedBy:     parts[2],
		LockUntil:    time.UnixMilli(until).UTC(),
		CreatedAt:    time.UnixMilli(created).UTC(),
	}, nil
}
