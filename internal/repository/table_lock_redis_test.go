package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/restaurant-table-reservation/internal/model"
)

func newRedisLockStore(t *testing.T) (*RedisTableLockStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisTableLockStore(client), mr
}

func newLock(tableID, user string, now time.Time) model.TableLock {
	return model.TableLock{
		RestaurantID: "rest-1",
		TableID:      tableID,
		LockedBy:     user,
		LockUntil:    now.Add(60 * time.Second),
		CreatedAt:    now,
	}
}

func TestNewRedisTableLockStoreNilClient(t *testing.T) {
	assert.Nil(t, NewRedisTableLockStore(nil))
}

func TestRedisTableLockStore_TryInsert(t *testing.T) {
	store, mr := newRedisLockStore(t)
	ctx := context.Background()

	held, err := store.TryInsert(ctx, newLock("T5", "cust-1", fixedTime), fixedTime)
	require.NoError(t, err)
	assert.Nil(t, held)
	assert.Equal(t, 60*time.Second, mr.TTL("tablelock:rest-1:T5"))

	later := fixedTime.Add(20 * time.Second)
	held, err = store.TryInsert(ctx, newLock("T5", "cust-2", later), later)
	require.NoError(t, err)
	require.NotNil(t, held)
	assert.Equal(t, "cust-1", held.LockedBy)
	assert.Equal(t, fixedTime.Add(60*time.Second), held.LockUntil)

	expired := fixedTime.Add(61 * time.Second)
	held, err = store.TryInsert(ctx, newLock("T5", "cust-2", expired), expired)
	require.NoError(t, err)
	assert.Nil(t, held, "a stale key is overwritten")

	lock, err := store.FindActive(ctx, "rest-1", "T5", expired)
	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.Equal(t, "cust-2", lock.LockedBy)
}

func TestRedisTableLockStore_ConcurrentTryInsert(t *testing.T) {
	store, _ := newRedisLockStore(t)
	ctx := context.Background()

	const n = 10
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			held, err := store.TryInsert(ctx, newLock("T6", "cust-"+string(rune('a'+i)), fixedTime), fixedTime)
			assert.NoError(t, err)
			if err == nil && held == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestRedisTableLockStore_Release(t *testing.T) {
	store, mr := newRedisLockStore(t)
	ctx := context.Background()

	_, err := store.TryInsert(ctx, newLock("T5", "cust-1", fixedTime), fixedTime)
	require.NoError(t, err)

	ok, err := store.DeleteIfOwner(ctx, "rest-1", "T5", "cust-2", fixedTime)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, mr.Exists("tablelock:rest-1:T5"))

	ok, err = store.DeleteIfOwner(ctx, "rest-1", "T5", "cust-1", fixedTime.Add(61*time.Second))
	require.NoError(t, err)
	assert.False(t, ok, "expired locks cannot be released")

	ok, err = store.DeleteIfOwner(ctx, "rest-1", "T5", "cust-1", fixedTime)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, mr.Exists("tablelock:rest-1:T5"))
}

func TestRedisTableLockStore_Delete(t *testing.T) {
	store, mr := newRedisLockStore(t)
	ctx := context.Background()

	ok, err := store.Delete(ctx, "rest-1", "T5", fixedTime)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.TryInsert(ctx, newLock("T5", "cust-1", fixedTime), fixedTime)
	require.NoError(t, err)
	ok, err = store.Delete(ctx, "rest-1", "T5", fixedTime)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, mr.Exists("tablelock:rest-1:T5"))
}

func TestRedisTableLockStore_ListActive(t *testing.T) {
	store, _ := newRedisLockStore(t)
	ctx := context.Background()

	for _, tid := range []string{"T6", "T1", "T5"} {
		_, err := store.TryInsert(ctx, newLock(tid, "cust-1", fixedTime), fixedTime)
		require.NoError(t, err)
	}
	other := newLock("T1", "cust-1", fixedTime)
	other.RestaurantID = "rest-2"
	_, err := store.TryInsert(ctx, other, fixedTime)
	require.NoError(t, err)

	locks, err := store.ListActive(ctx, "rest-1", fixedTime)
	require.NoError(t, err)
	require.Len(t, locks, 3)
	assert.Equal(t, []string{"T1", "T5", "T6"}, []string{locks[0].TableID, locks[1].TableID, locks[2].TableID})

	locks, err = store.ListActive(ctx, "rest-1", fixedTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, locks)

	n, err := store.PurgeExpired(ctx, fixedTime)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDecodeLockRejectsGarbage(t *testing.T) {
	_, err := decodeLock("r", "t", "nonsense")
	assert.Error(t, err)
	_, err = decodeLock("r", "t", "x|1|u")
	assert.Error(t, err)

	l, err := decodeLock("r", "t", "1717264800000|1717264740000|user|with|pipes")
	require.NoError(t, err)
	assert.Equal(t, "user|with|pipes", l.LockedBy)
}
