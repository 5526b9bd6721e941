package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/restaurant-table-reservation/internal/database"
	"github.com/iliyamo/restaurant-table-reservation/internal/model"
)

// ReservationRepo persists reservations and their lifecycle entries.
// Lifecycle rows are append-only and ordered by their auto-increment id.
// All timestamps are stored in UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `id, restaurant_id, user_id, table_id, start_time, end_time, party_size, special_requests, status, created_at, updated_at`

// WithTx runs fn inside a transaction carried by the context.
func (r *ReservationRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return database.WithTx(ctx, r.db, fn)
}

// LockTable takes an exclusive row lock on the restaurant_tables row of the
// table.  Concurrent bookings for the same table queue up behind it until
// the surrounding transaction ends.  It returns ErrNotFound when the table
// is not part of the floor plan.
func (r *ReservationRepo) LockTable(ctx context.Context, restaurantID, tableID string) error {
	const q = `SELECT table_id FROM restaurant_tables WHERE restaurant_id = ? AND table_id = ? FOR UPDATE`
	var id string
	err := database.Conn(ctx, r.db).QueryRowContext(ctx, q, restaurantID, tableID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// HasOverlap reports whether a non-cancelled reservation other than
// excludeID intersects [start, end) on the table.  Touching endpoints do
// not overlap.  The read is a locking read so that, inside a transaction,
// it sees the latest committed rows rather than the transaction's
// snapshot.
func (r *ReservationRepo) HasOverlap(ctx context.Context, restaurantID, tableID string, start, end time.Time, excludeID string) (bool, error) {
	const q = `SELECT id FROM reservations
	           WHERE restaurant_id = ? AND table_id = ?
	             AND status <> 'cancelled'
	             AND start_time < ? AND end_time > ?
	             AND id <> ?
	           LIMIT 1 FOR SHARE`
	var id string
	err := database.Conn(ctx, r.db).QueryRowContext(ctx, q,
		restaurantID, tableID, end.UTC(), start.UTC(), excludeID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Insert writes the reservation row and its initial lifecycle entries.
func (r *ReservationRepo) Insert(ctx context.Context, res model.Reservation) error {
	return database.WithTx(ctx, r.db, func(ctx context.Context) error {
		q := `INSERT INTO reservations (` + reservationColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		_, err := database.Conn(ctx, r.db).ExecContext(ctx, q,
			res.ID, res.RestaurantID, res.UserID, res.TableID,
			res.StartTime.UTC(), res.EndTime.UTC(), res.PartySize, res.SpecialRequests,
			string(res.Status), res.CreatedAt.UTC(), res.UpdatedAt.UTC(),
		)
		if err != nil {
			if database.IsDuplicateKey(err) {
				return ErrConflict
			}
			return err
		}
		for _, e := range res.Lifecycle {
			if err := r.AppendLifecycle(ctx, res.ID, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByID loads a reservation with its lifecycle.  When forUpdate is set
// the reservation row is locked until the surrounding transaction ends.
func (r *ReservationRepo) GetByID(ctx context.Context, id string, forUpdate bool) (*model.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	res, err := scanReservation(database.Conn(ctx, r.db).QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	lifecycle, err := r.lifecycle(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	res.Lifecycle = lifecycle[id]
	return res, nil
}

// UpdateDetails rewrites the editable columns of a reservation.
func (r *ReservationRepo) UpdateDetails(ctx context.Context, res model.Reservation) error {
	const q = `UPDATE reservations
			   SET table_id = ?, start_time = ?, end_time = ?, party_size = ?, special_requests = ?, updated_at = ?
			   WHERE id = ?`
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, q,
		res.TableID, res.StartTime.UTC(), res.EndTime.UTC(), res.PartySize, res.SpecialRequests, res.UpdatedAt.UTC(), res.ID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// UpdateStatus sets the status column.
func (r *ReservationRepo) UpdateStatus(ctx context.Context, id string, status model.ReservationStatus, updatedAt time.Time) error {
	const q = `UPDATE reservations SET status = ?, updated_at = ? WHERE id = ?`
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, q, string(status), updatedAt.UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// AppendLifecycle adds one entry to the end of the reservation's lifecycle.
func (r *ReservationRepo) AppendLifecycle(ctx context.Context, id string, entry model.LifecycleEntry) error {
	const q = `INSERT INTO reservation_lifecycle (reservation_id, action, occurred_at) VALUES (?, ?, ?)`
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, q, id, string(entry.Action), entry.Timestamp.UTC())
	return err
}

// ListByUser returns the user's reservations ordered by start_time.  When
// f.Upcoming is set only reservations starting at or after f.Now are
// returned.
func (r *ReservationRepo) ListByUser(ctx context.Context, userID string, f model.UserReservationFilter) ([]model.Reservation, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{userID}
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Upcoming {
		where = append(where, "start_time >= ?")
		args = append(args, f.Now.UTC())
	}
	return r.list(ctx, where, args)
}

// ListByRestaurant returns the restaurant's reservations ordered by
// start_time, optionally bounded by status and a start_time window.
func (r *ReservationRepo) ListByRestaurant(ctx context.Context, restaurantID string, f model.RestaurantReservationFilter) ([]model.Reservation, error) {
	var (
		where = []string{"restaurant_id = ?"}
		args  = []any{restaurantID}
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.From.IsZero() {
		where = append(where, "start_time >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		where = append(where, "start_time <= ?")
		args = append(args, f.To.UTC())
	}
	return r.list(ctx, where, args)
}

func (r *ReservationRepo) list(ctx context.Context, where []string, args []any) ([]model.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY start_time, id`
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	out := []model.Reservation{}
	ids := []string{}
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *res)
		ids = append(ids, res.ID)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}
	lifecycle, err := r.lifecycle(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Lifecycle = lifecycle[out[i].ID]
	}
	return out, nil
}

// lifecycle loads the entries of the given reservations in append order.
func (r *ReservationRepo) lifecycle(ctx context.Context, ids []string) (map[string][]model.LifecycleEntry, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	q := `SELECT reservation_id, action, occurred_at FROM reservation_lifecycle
		  WHERE reservation_id IN (` + placeholders + `) ORDER BY id`
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string][]model.LifecycleEntry, len(ids))
	for _, id := range ids {
		out[id] = []model.LifecycleEntry{}
	}
	for rows.Next() {
		var (
			id     string
			action string
			e      model.LifecycleEntry
		)
		if err := rows.Scan(&id, &action, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Action = model.LifecycleAction(action)
		out[id] = append(out[id], e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(s rowScanner) (*model.Reservation, error) {
	var (
		res    model.Reservation
		status string
	)
	err := s.Scan(&res.ID, &res.RestaurantID, &res.UserID, &res.TableID,
		&res.StartTime, &res.EndTime, &res.PartySize, &res.SpecialRequests,
		&status, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return nil, err
	}
	res.Status = model.ReservationStatus(status)
	return &res, nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
