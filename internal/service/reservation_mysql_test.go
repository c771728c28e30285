package service

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking/internal/metrics"
	"github.com/iliyamo/cinema-booking/internal/repository"
)

func newMySQLService(t *testing.T) (*ReservationService, sqlmock.Sqlmock, *metrics.Metrics) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	db := sqlx.NewDb(raw, "mysql")
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	svc := NewReservationService(Deps{
		Tx:        repository.NewTxManager(db, time.Second),
		Showtimes: repository.NewShowtimeLedger(db),
		Seats:     repository.NewSeatOccupancyStore(db),
		Bookings:  repository.NewBookingStore(db),
		Events:    repository.NewEventLedger(db),
		Metrics:   m,
	})
	return svc, mock, m
}

// A duplicate key raised by the commit itself, after the locking read found
// the seats free, is reported as a conflict on the seats now taken.
func TestReserveSeats_DuplicateAtCommitNamesTakenSeats(t *testing.T) {
	svc, mock, m := newMySQLService(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET SESSION innodb_lock_wait_timeout = 1")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM showtimes WHERE id = ? FOR UPDATE")).WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "capacity", "remaining_seats", "ticket_price_cents"}).AddRow(1, 100, 100, 100000))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT seat_id FROM booked_seats WHERE showtime_id = ? AND seat_id IN (?, ?)")).
		WithArgs(1, "H8", "H9").
		WillReturnRows(sqlmock.NewRows([]string{"seat_id"}))
	mock.ExpectExec("INSERT INTO booked_seats").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("UPDATE showtimes SET remaining_seats").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO bookings").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '1-H8' for key 'PRIMARY'"})
	mock.ExpectQuery(regexp.QuoteMeta("SELECT seat_id FROM booked_seats WHERE showtime_id = ? ORDER BY seat_id")).WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"seat_id"}).AddRow("A1").AddRow("H8"))

	b, err := svc.ReserveSeats(context.Background(), 42, 1, []string{"H8", "H9"})
	assert.Nil(t, b)
	assert.ErrorIs(t, err, ErrSeatConflict)
	assert.Equal(t, []string{"H8"}, ConflictingSeats(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReservationsTotal.WithLabelValues("SEAT", "seat_conflict")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A duplicate key on the occupancy insert is resolved inside the still open
// transaction, and nothing is committed.
func TestReserveSeats_DuplicateOnInsertRollsBack(t *testing.T) {
	svc, mock, _ := newMySQLService(t)

	occupied := regexp.QuoteMeta("SELECT seat_id FROM booked_seats WHERE showtime_id = ? AND seat_id IN (?, ?)")
	mock.ExpectBegin()
	mock.ExpectExec("SET SESSION").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM showtimes WHERE id = ? FOR UPDATE")).WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "capacity", "remaining_seats", "ticket_price_cents"}).AddRow(1, 100, 100, 100000))
	mock.ExpectQuery(occupied).WillReturnRows(sqlmock.NewRows([]string{"seat_id"}))
	mock.ExpectExec("INSERT INTO booked_seats").WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectQuery(occupied).WillReturnRows(sqlmock.NewRows([]string{"seat_id"}).AddRow("H9"))
	mock.ExpectRollback()

	_, err := svc.ReserveSeats(context.Background(), 42, 1, []string{"H8", "H9"})
	assert.ErrorIs(t, err, ErrSeatConflict)
	assert.Equal(t, []string{"H9"}, ConflictingSeats(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
