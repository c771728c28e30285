package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/repository"
)

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

func newStore() *Store {
	s := NewStore(50 * time.Millisecond)
	s.AddShowtime(1, 10, 900)
	s.AddEvent(5, 50, 10)
	return s
}

func TestCommitMakesWritesVisible(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	ledger, seats := NewShowtimeLedger(s), NewSeatOccupancyStore(s)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, seats.Occupy(ctx, tx, 1, []string{"B2", "A1"}, "bk-1"))
	require.NoError(t, ledger.DecrementRemaining(ctx, tx, 1, 2))

	// staged writes are invisible outside the transaction
	n, err := seats.CountOccupied(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, tx.Commit())
	list, err := seats.ListOccupied(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "B2"}, list)
	st, err := ledger.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 8, st.RemainingSeats)
	assert.ErrorIs(t, tx.Commit(), ErrTxDone)
	assert.NoError(t, tx.Rollback())
}

func TestRollbackDiscardsWrites(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	seats, bookings := NewSeatOccupancyStore(s), NewBookingStore(s)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, seats.Occupy(ctx, tx, 1, []string{"A1"}, "bk-1"))
	_, err = bookings.Record(ctx, tx, model.Booking{ID: "bk-1", UserID: 3})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	n, err := seats.CountOccupied(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, bookings.All())
}

func TestFindOccupiedIsIdempotent(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	seats := NewSeatOccupancyStore(s)

	tx, _ := s.Begin(ctx)
	require.NoError(t, seats.Occupy(ctx, tx, 1, []string{"C3", "C1"}, "bk-1"))
	require.NoError(t, tx.Commit())

	tx, _ = s.Begin(ctx)
	defer tx.Rollback()
	first, err := seats.FindOccupied(ctx, tx, 1, []string{"C3", "C2", "C1"})
	require.NoError(t, err)
	second, err := seats.FindOccupied(ctx, tx, 1, []string{"C3", "C2", "C1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"C1", "C3"}, first)
	assert.Equal(t, first, second)
}

func TestOccupyRejectsTakenSeats(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	seats := NewSeatOccupancyStore(s)

	tx, _ := s.Begin(ctx)
	require.NoError(t, seats.Occupy(ctx, tx, 1, []string{"D1"}, "bk-1"))
	assert.ErrorIs(t, seats.Occupy(ctx, tx, 1, []string{"D2", "D1"}, "bk-1"), repository.ErrDuplicateSeat)
	require.NoError(t, tx.Commit())

	tx, _ = s.Begin(ctx)
	defer tx.Rollback()
	assert.ErrorIs(t, seats.Occupy(ctx, tx, 1, []string{"D1"}, "bk-2"), repository.ErrDuplicateSeat)
}

func TestOccupyTakesShowtimeLock(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	seats := NewSeatOccupancyStore(s)

	tx1, _ := s.Begin(ctx)
	tx2, _ := s.Begin(ctx)
	defer tx2.Rollback()
	require.NoError(t, seats.Occupy(ctx, tx1, 1, []string{"E1"}, "bk-1"))
	assert.ErrorIs(t, seats.Occupy(ctx, tx2, 1, []string{"E1", "E2"}, "bk-2"), repository.ErrLockTimeout)

	require.NoError(t, tx1.Commit())
	assert.ErrorIs(t, seats.Occupy(ctx, tx2, 1, []string{"E1", "E2"}, "bk-2"), repository.ErrDuplicateSeat)
	assert.NoError(t, seats.Occupy(ctx, tx2, 1, []string{"E2"}, "bk-2"))
}

func TestCommitRevalidatesUniqueness(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	seats, ledger := NewSeatOccupancyStore(s), NewShowtimeLedger(s)

	tx1, _ := s.Begin(ctx)
	require.NoError(t, seats.Occupy(ctx, tx1, 1, []string{"E1"}, "bk-1"))

	// a write staged without the showtime lock
	tx2, _ := s.Begin(ctx)
	stale, err := asTx(tx2)
	require.NoError(t, err)
	stale.seats[1] = map[string]string{"E1": "bk-2", "E2": "bk-2"}

	require.NoError(t, tx1.Commit())
	assert.ErrorIs(t, tx2.Commit(), repository.ErrDuplicateSeat)

	list, _ := seats.ListOccupied(ctx, 1)
	assert.Equal(t, []string{"E1"}, list)
	st, _ := ledger.Get(ctx, 1)
	assert.Equal(t, 10, st.RemainingSeats)
}

func TestShowtimeLockTimesOut(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	ledger := NewShowtimeLedger(s)

	holder, _ := s.Begin(ctx)
	_, err := ledger.LockForUpdate(ctx, holder, 1)
	require.NoError(t, err)

	waiter, _ := s.Begin(ctx)
	started := time.Now()
	_, err = ledger.LockForUpdate(ctx, waiter, 1)
	assert.ErrorIs(t, err, repository.ErrLockTimeout)
	assert.GreaterOrEqual(t, time.Since(started), 50*time.Millisecond)

	require.NoError(t, holder.Rollback())
	_, err = ledger.LockForUpdate(ctx, waiter, 1)
	assert.NoError(t, err)
	require.NoError(t, waiter.Rollback())
}

func TestDisjointShowtimesDoNotBlock(t *testing.T) {
	s := newStore()
	s.AddShowtime(2, 10, 900)
	ctx := context.Background()
	ledger := NewShowtimeLedger(s)

	tx1, _ := s.Begin(ctx)
	defer tx1.Rollback()
	tx2, _ := s.Begin(ctx)
	defer tx2.Rollback()
	_, err := ledger.LockForUpdate(ctx, tx1, 1)
	require.NoError(t, err)
	_, err = ledger.LockForUpdate(ctx, tx2, 2)
	assert.NoError(t, err)
}

func TestLedgerErrors(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	ledger, events := NewShowtimeLedger(s), NewEventLedger(s)

	_, err := ledger.CapacityOf(ctx, 9)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	n, err := ledger.CapacityOf(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	tx, _ := s.Begin(ctx)
	defer tx.Rollback()
	assert.ErrorIs(t, ledger.DecrementRemaining(ctx, tx, 1, 11), repository.ErrInsufficientInventory)
	require.NoError(t, ledger.DecrementRemaining(ctx, tx, 1, 6))
	assert.ErrorIs(t, ledger.DecrementRemaining(ctx, tx, 1, 5), repository.ErrInsufficientInventory)

	ev, err := events.LockForUpdate(ctx, tx, 5)
	require.NoError(t, err)
	assert.Equal(t, 40, ev.RemainingTickets)
	assert.ErrorIs(t, events.DecrementRemaining(ctx, tx, 5, 45), repository.ErrInsufficientInventory)
	_, err = events.LockForUpdate(ctx, tx, 6)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestForeignTransactionRejected(t *testing.T) {
	s := newStore()
	_, err := NewShowtimeLedger(s).LockForUpdate(context.Background(), stubTx{}, 1)
	assert.Error(t, err)
}

func TestListForUserOrder(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	bookings := NewBookingStore(s)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "same-a", "same-b"} {
		created := at
		if i > 0 {
			created = at.Add(time.Hour)
		}
		tx, _ := s.Begin(ctx)
		_, err := bookings.Record(ctx, tx, model.Booking{ID: id, UserID: 3, CreatedAt: created})
		require.NoError(t, err)
		require.NoError(t, tx.Commit())
	}

	list, err := bookings.ListForUser(ctx, 3)
	require.NoError(t, err)
	ids := []string{}
	for _, b := range list {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []string{"same-b", "same-a", "old"}, ids)

	none, err := bookings.ListForUser(ctx, 4)
	require.NoError(t, err)
	assert.Empty(t, none)
}
