package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/restaurant-table-reservation/internal/database"
	"github.com/iliyamo/restaurant-table-reservation/internal/model"
)

var reservationCols = []string{"id", "restaurant_id", "user_id", "table_id", "start_time", "end_time", "party_size", "special_requests", "status", "created_at", "updated_at"}

func TestReservationRepo_HasOverlap(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	start := time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Minute)

	mock.ExpectQuery(`status <> 'cancelled'\s+AND start_time < \? AND end_time > \?\s+AND id <> \?\s+LIMIT 1 FOR SHARE`).
		WithArgs("rest-1", "T5", end, start, "res-9").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("res-3"))

	overlap, err := NewReservationRepo(db).HasOverlap(context.Background(), "rest-1", "T5", start, end, "res-9")
	require.NoError(t, err)
	assert.True(t, overlap)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepo_HasOverlapNoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	start := time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	mock.ExpectQuery(`FROM reservations\s+WHERE restaurant_id = \? AND table_id = \?`).
		WithArgs("rest-1", "T5", end, start, "").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	overlap, err := NewReservationRepo(db).HasOverlap(context.Background(), "rest-1", "T5", start, end, "")
	require.NoError(t, err)
	assert.False(t, overlap)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepo_LockTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewReservationRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM restaurant_tables WHERE restaurant_id = \? AND table_id = \? FOR UPDATE`).
		WithArgs("rest-1", "T5").
		WillReturnRows(sqlmock.NewRows([]string{"table_id"}).AddRow("T5"))
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("rest-1", "ZZ").
		WillReturnRows(sqlmock.NewRows([]string{"table_id"}))
	mock.ExpectRollback()

	err = repo.WithTx(context.Background(), func(ctx context.Context) error {
		require.NotNil(t, database.TxFromContext(ctx))
		require.NoError(t, repo.LockTable(ctx, "rest-1", "T5"))
		return repo.LockTable(ctx, "rest-1", "ZZ")
	})
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepo_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	res := model.Reservation{
		ID: "res-1", RestaurantID: "rest-1", UserID: "cust-1", TableID: "T5",
		StartTime: fixedTime, EndTime: fixedTime.Add(time.Hour), PartySize: 4,
		Status:    model.StatusConfirmed,
		Lifecycle: []model.LifecycleEntry{{Action: model.ActionBooked, Timestamp: fixedTime}},
		CreatedAt: fixedTime, UpdatedAt: fixedTime,
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO reservations`).
		WithArgs("res-1", "rest-1", "cust-1", "T5", fixedTime, fixedTime.Add(time.Hour), 4, "", "confirmed", fixedTime, fixedTime).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO reservation_lifecycle`).
		WithArgs("res-1", "booked", fixedTime).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, NewReservationRepo(db).Insert(context.Background(), res))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepo_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM reservations WHERE id = \? FOR UPDATE`).
		WithArgs("res-1").
		WillReturnRows(sqlmock.NewRows(reservationCols).
			AddRow("res-1", "rest-1", "cust-1", "T5", fixedTime, fixedTime.Add(time.Hour), 4, "quiet corner", "confirmed", fixedTime, fixedTime))
	mock.ExpectQuery(`FROM reservation_lifecycle\s+WHERE reservation_id IN \(\?\) ORDER BY id`).
		WithArgs("res-1").
		WillReturnRows(sqlmock.NewRows([]string{"reservation_id", "action", "occurred_at"}).
			AddRow("res-1", "booked", fixedTime).
			AddRow("res-1", "seated", fixedTime.Add(time.Minute)))

	res, err := NewReservationRepo(db).GetByID(context.Background(), "res-1", true)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, res.Status)
	assert.Equal(t, "quiet corner", res.SpecialRequests)
	require.Len(t, res.Lifecycle, 2)
	assert.True(t, res.IsSeated())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepo_GetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM reservations WHERE id = \?`).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(reservationCols))

	_, err = NewReservationRepo(db).GetByID(context.Background(), "nope", false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReservationRepo_UpdateStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewReservationRepo(db)

	mock.ExpectExec(`UPDATE reservations SET status = \?, updated_at = \? WHERE id = \?`).
		WithArgs("cancelled", fixedTime, "res-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE reservations SET status`).
		WithArgs("cancelled", fixedTime, "nope").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.UpdateStatus(context.Background(), "res-1", model.StatusCancelled, fixedTime))
	assert.ErrorIs(t, repo.UpdateStatus(context.Background(), "nope", model.StatusCancelled, fixedTime), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepo_ListByRestaurant(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := day.Add(24*time.Hour - time.Millisecond)

	mock.ExpectQuery(`WHERE restaurant_id = \? AND status = \? AND start_time >= \? AND start_time <= \? ORDER BY start_time, id`).
		WithArgs("rest-1", "confirmed", day, to).
		WillReturnRows(sqlmock.NewRows(reservationCols).
			AddRow("res-1", "rest-1", "cust-1", "T5", day.Add(18*time.Hour), day.Add(19*time.Hour), 2, "", "confirmed", fixedTime, fixedTime).
			AddRow("res-2", "rest-1", "cust-2", "T6", day.Add(20*time.Hour), day.Add(21*time.Hour), 2, "", "confirmed", fixedTime, fixedTime))
	mock.ExpectQuery(`WHERE reservation_id IN \(\?,\?\)`).
		WithArgs("res-1", "res-2").
		WillReturnRows(sqlmock.NewRows([]string{"reservation_id", "action", "occurred_at"}).
			AddRow("res-2", "booked", fixedTime).
			AddRow("res-1", "booked", fixedTime))

	out, err := NewReservationRepo(db).ListByRestaurant(context.Background(), "rest-1", model.RestaurantReservationFilter{
		Status: model.StatusConfirmed, From: day, To: to,
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "res-1", out[0].ID)
	assert.Len(t, out[0].Lifecycle, 1)
	assert.Len(t, out[1].Lifecycle, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepo_ListByUserUpcoming(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`WHERE user_id = \? AND start_time >= \? ORDER BY start_time`).
		WithArgs("cust-1", fixedTime).
		WillReturnRows(sqlmock.NewRows(reservationCols))

	out, err := NewReservationRepo(db).ListByUser(context.Background(), "cust-1", model.UserReservationFilter{Upcoming: true, Now: fixedTime})
	require.NoError(t, err)
	assert.Empty(t, out)
	require.NoError(t, mock.ExpectationsWereMet())
}
