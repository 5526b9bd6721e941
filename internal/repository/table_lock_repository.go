package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/restaurant-table-reservation/internal/database"
	"github.com/iliyamo/restaurant-table-reservation/internal/model"
)

// TableLockRepo stores soft locks in the table_locks table, one row per
// (restaurant_id, table_id).  A row whose lock_until is not after the
// caller's now is expired: every read ignores it and the next acquire
// overwrites it.  Expired rows are physically removed by PurgeExpired.
type TableLockRepo struct {
	db *sql.DB
}

// NewTableLockRepo returns a new TableLockRepo bound to the provided database.
func NewTableLockRepo(db *sql.DB) *TableLockRepo { return &TableLockRepo{db: db} }

// TryInsert stores lock unless an active lock already holds the table.
// The upsert only overwrites an expired row, so concurrent callers are
// serialized by the primary key and exactly one of them wins.  The row is
// read back in the same transaction; if it is not ours the held lock is
// returned.
func (r *TableLockRepo) TryInsert(ctx context.Context, lock model.TableLock, now time.Time) (*model.TableLock, error) {
	lock.LockUntil = lock.LockUntil.UTC().Truncate(time.Millisecond)
	lock.CreatedAt = lock.CreatedAt.UTC().Truncate(time.Millisecond)
	nowUTC := now.UTC()

	var held *model.TableLock
	err := database.WithTx(ctx, r.db, func(ctx context.Context) error {
		q := database.Conn(ctx, r.db)
		// lock_until must be assigned last: MySQL evaluates the
		// assignments left to right against the updated row.
		const upsert = `INSERT INTO table_locks (restaurant_id, table_id, locked_by, lock_until, created_at)
						VALUES (?, ?, ?, ?, ?)
						ON DUPLICATE KEY UPDATE
						  locked_by  = IF(lock_until <= ?, VALUES(locked_by), locked_by),
						  created_at = IF(lock_until <= ?, VALUES(created_at), created_at),
						  lock_until = IF(lock_until <= ?, VALUES(lock_until), lock_until)`
		if _, err := q.ExecContext(ctx, upsert,
			lock.RestaurantID, lock.TableID, lock.LockedBy, lock.LockUntil, lock.CreatedAt,
			nowUTC, nowUTC, nowUTC,
		); err != nil {
			return err
		}
		cur, err := r.selectLock(ctx, lock.RestaurantID, lock.TableID)
		if err != nil {
			return err
		}
		if cur.LockedBy != lock.LockedBy || !cur.LockUntil.Equal(lock.LockUntil) {
			held = cur
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return held, nil
}

// FindActive returns the unexpired lock on the table, or nil when there is
// none.
func (r *TableLockRepo) FindActive(ctx context.Context, restaurantID, tableID string, now time.Time) (*model.TableLock, error) {
	cur, err := r.selectLock(ctx, restaurantID, tableID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !cur.Active(now) {
		return nil, nil
	}
	return cur, nil
}

// ListActive returns the unexpired locks of a restaurant ordered by table.
func (r *TableLockRepo) ListActive(ctx context.Context, restaurantID string, now time.Time) ([]model.TableLock, error) {
	const q = `SELECT restaurant_id, table_id, locked_by, lock_until, created_at
			   FROM table_locks
			   WHERE restaurant_id = ? AND lock_until > ?
			   ORDER BY table_id`
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, q, restaurantID, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	locks := []model.TableLock{}
	for rows.Next() {
		var l model.TableLock
		if err := rows.Scan(&l.RestaurantID, &l.TableID, &l.LockedBy, &l.LockUntil, &l.CreatedAt); err != nil {
			return nil, err
		}
		locks = append(locks, l)
	}
	return locks, rows.Err()
}

// DeleteIfOwner removes the lock only when userID holds it and it has not
// expired.
func (r *TableLockRepo) DeleteIfOwner(ctx context.Context, restaurantID, tableID, userID string, now time.Time) (bool, error) {
	const q = `DELETE FROM table_locks
			   WHERE restaurant_id = ? AND table_id = ? AND locked_by = ? AND lock_until > ?`
	return r.exec(ctx, q, restaurantID, tableID, userID, now.UTC())
}

// JoinsTx reports that writes run in the transaction carried by the
// context.
func (r *TableLockRepo) JoinsTx() bool { return true }

// Delete removes the active lock on the table whoever holds it.  Expired
// rows are left to PurgeExpired.
func (r *TableLockRepo) Delete(ctx context.Context, restaurantID, tableID string, now time.Time) (bool, error) {
	const q = `DELETE FROM table_locks WHERE restaurant_id = ? AND table_id = ? AND lock_until > ?`
	return r.exec(ctx, q, restaurantID, tableID, now.UTC())
}

// PurgeExpired removes every lock whose lock_until is at or before now and
// returns the number of rows deleted.
func (r *TableLockRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM table_locks WHERE lock_until <= ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *TableLockRepo) selectLock(ctx context.Context, restaurantID, tableID string) (*model.TableLock, error) {
	const q = `SELECT restaurant_id, table_id, locked_by, lock_until, created_at
			   FROM table_locks WHERE restaurant_id = ? AND table_id = ?`
	var l model.TableLock
	err := database.Conn(ctx, r.db).QueryRowContext(ctx, q, restaurantID, tableID).Scan(
		&l.RestaurantID, &l.TableID, &l.LockedBy, &l.LockUntil, &l.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *TableLockRepo) exec(ctx context.Context, q string, args ...any) (bool, error) {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, q, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
