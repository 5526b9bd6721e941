package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/restaurant-table-reservation/internal/apperror"
	"github.com/iliyamo/restaurant-table-reservation/internal/metrics"
	"github.com/iliyamo/restaurant-table-reservation/internal/queue"
)

func TestLockManager_Acquire(t *testing.T) {
	ctx := context.Background()

	t.Run("locks the table and broadcasts", func(t *testing.T) {
		h := newHarness(t)
		lock, err := h.lockMgr.Acquire(ctx, customer, "rest-1", "T5")
		require.NoError(t, err)
		assert.Equal(t, testNow.Add(60*time.Second), lock.LockUntil)
		assert.Equal(t, customer.UserID, lock.LockedBy)

		require.Len(t, h.notifier.events, 1)
		ev := h.notifier.events[0]
		assert.Equal(t, "restaurant:rest-1", ev.Room)
		assert.Equal(t, queue.EventTableLocked, ev.Name)
		payload, ok := ev.Payload.(queue.TableLockedPayload)
		require.True(t, ok)
		assert.Equal(t, "T5", payload.TableID)
		assert.Equal(t, lock.LockUntil, payload.LockUntil)
	})

	t.Run("conflict reports remaining seconds", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.lockMgr.Acquire(ctx, customer, "rest-1", "T5")
		require.NoError(t, err)

		h.clock.Advance(20*time.Second + 300*time.Millisecond)
		_, err = h.lockMgr.Acquire(ctx, customer2, "rest-1", "T5")
		require.ErrorIs(t, err, apperror.ErrLockConflict)
		assert.Equal(t, 40, apperror.RetryAfterSeconds(err))
		assert.Contains(t, err.Error(), "retry in 40 seconds")
	})

	t.Run("holder cannot stack a second lock", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.lockMgr.Acquire(ctx, customer, "rest-1", "T5")
		require.NoError(t, err)
		_, err = h.lockMgr.Acquire(ctx, customer, "rest-1", "T5")
		assert.ErrorIs(t, err, apperror.ErrLockConflict)
	})

	t.Run("expired lock does not block", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.lockMgr.Acquire(ctx, customer, "rest-1", "T5")
		require.NoError(t, err)

		h.clock.Advance(60 * time.Second)
		lock, err := h.lockMgr.Acquire(ctx, customer2, "rest-1", "T5")
		require.NoError(t, err)
		assert.Equal(t, customer2.UserID, lock.LockedBy)
	})

	t.Run("unknown table", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.lockMgr.Acquire(ctx, customer, "rest-1", "Z9")
		assert.ErrorIs(t, err, apperror.ErrNotFound)
		_, err = h.lockMgr.Acquire(ctx, customer, "rest-x", "T5")
		assert.ErrorIs(t, err, apperror.ErrNotFound)
	})

	t.Run("notification failures are swallowed", func(t *testing.T) {
		h := newHarness(t)
		h.notifier.err = errStoreDown
		_, err := h.lockMgr.Acquire(ctx, customer, "rest-1", "T5")
		assert.NoError(t, err)
	})

	t.Run("store failure is unavailable", func(t *testing.T) {
		h := newHarness(t)
		h.locks.failWrite = errStoreDown
		_, err := h.lockMgr.Acquire(ctx, customer, "rest-1", "T5")
		assert.ErrorIs(t, err, apperror.ErrUnavailable)
	})

	t.Run("custom ttl", func(t *testing.T) {
		h := newHarness(t)
		mgr := NewLockManager(h.dir, h.locks, nil, h.clock, nil, WithLockTTL(5*time.Second))
		lock, err := mgr.Acquire(ctx, customer, "rest-1", "T5")
		require.NoError(t, err)
		assert.Equal(t, testNow.Add(5*time.Second), lock.LockUntil)
	})
}

func TestLockManager_ConcurrentAcquire(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	const n = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := customer
			if i%2 == 1 {
				actor = customer2
			}
			_, err := h.lockMgr.Acquire(ctx, actor, "rest-1", "T6")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperror.KindOf(err) == apperror.KindLockConflict:
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, conflicts)
}

func TestLockManager_Release(t *testing.T) {
	ctx := context.Background()

	t.Run("holder releases", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.lockMgr.Acquire(ctx, customer, "rest-1", "T5")
		require.NoError(t, err)

		require.NoError(t, h.lockMgr.Release(ctx, customer, "rest-1", "T5"))
		assert.Equal(t, []string{queue.EventTableLocked, queue.EventTableReleased}, h.notifier.names())

		lock, err := h.lockMgr.FindActive(ctx, "rest-1", "T5")
		require.NoError(t, err)
		assert.Nil(t, lock)
	})

	t.Run("someone else's lock looks missing", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.lockMgr.Acquire(ctx, customer, "rest-1", "T5")
		require.NoError(t, err)

		errOther := h.lockMgr.Release(ctx, customer2, "rest-1", "T5")
		errMissing := h.lockMgr.Release(ctx, customer2, "rest-1", "T6")
		require.ErrorIs(t, errOther, apperror.ErrNotFound)
		require.ErrorIs(t, errMissing, apperror.ErrNotFound)
		assert.Equal(t, errMissing.Error(), errOther.Error())
	})

	t.Run("expired lock cannot be released", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.lockMgr.Acquire(ctx, customer, "rest-1", "T5")
		require.NoError(t, err)
		h.clock.Advance(61 * time.Second)
		assert.ErrorIs(t, h.lockMgr.Release(ctx, customer, "rest-1", "T5"), apperror.ErrNotFound)
	})
}

func TestLockManager_ExpiredLocksAreInvisible(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.lockMgr.Acquire(ctx, customer, "rest-1", "T1")
	require.NoError(t, err)
	h.clock.Advance(30 * time.Second)
	_, err = h.lockMgr.Acquire(ctx, customer2, "rest-1", "T5")
	require.NoError(t, err)

	locks, err := h.lockMgr.ListActive(ctx, "rest-1")
	require.NoError(t, err)
	assert.Len(t, locks, 2)

	h.clock.Advance(31 * time.Second)
	locks, err = h.lockMgr.ListActive(ctx, "rest-1")
	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.Equal(t, "T5", locks[0].TableID)

	lock, err := h.lockMgr.FindActive(ctx, "rest-1", "T1")
	require.NoError(t, err)
	assert.Nil(t, lock)
	assert.Equal(t, 2, h.locks.size(), "expired rows stay until swept")
}

func TestLockManager_ListForRestaurant(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.lockMgr.Acquire(ctx, customer, "rest-1", "T1")
	require.NoError(t, err)

	locks, err := h.lockMgr.ListForRestaurant(ctx, owner, "rest-1")
	require.NoError(t, err)
	assert.Len(t, locks, 1)

	_, err = h.lockMgr.ListForRestaurant(ctx, admin, "rest-1")
	require.NoError(t, err)

	_, err = h.lockMgr.ListForRestaurant(ctx, stranger, "rest-1")
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestLockManager_Sweep(t *testing.T) {
	h := newHarness(t)
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	mgr := NewLockManager(h.dir, h.locks, nil, h.clock, nil, WithLockMetrics(m))
	ctx := context.Background()

	_, err = mgr.Acquire(ctx, customer, "rest-1", "T1")
	require.NoError(t, err)
	_, err = mgr.Acquire(ctx, customer, "rest-1", "T5")
	require.NoError(t, err)

	n, err := mgr.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	h.clock.Advance(2 * time.Minute)
	n, err = mgr.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Zero(t, h.locks.size())

	expected := `
# HELP reservation_table_locks_purged_total Expired table locks removed by the sweeper.
# TYPE reservation_table_locks_purged_total counter
reservation_table_locks_purged_total 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "reservation_table_locks_purged_total"))
}

func TestLockManager_RunSweeperStopsWithContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.lockMgr.RunSweeper(ctx, time.Millisecond) }()

	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestLockManager_ClearsInTx(t *testing.T) {
	h := newHarness(t)
	assert.False(t, h.lockMgr.ClearsInTx())

	h.locks.joinsTx = true
	assert.True(t, h.lockMgr.ClearsInTx())
}
