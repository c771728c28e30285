package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/txn"
)

// ShowtimeLedger holds, per showtime, the capacity, the remaining-seats
// counter and the authoritative ticket price.  Showtime rows are created by
// the scheduling process; this type only reads them and decrements the
// counter inside a reservation transaction.
type ShowtimeLedger struct {
	db *sqlx.DB
}

// NewShowtimeLedger returns a ShowtimeLedger bound to the given database.
func NewShowtimeLedger(db *sqlx.DB) *ShowtimeLedger { return &ShowtimeLedger{db: db} }

const showtimeColumns = `id, capacity, remaining_seats, ticket_price_cents`

// Get returns the showtime without locking.  ErrNotFound when missing.
func (r *ShowtimeLedger) Get(ctx context.Context, showtimeID uint64) (model.Showtime, error) {
	var st model.Showtime
	err := r.db.GetContext(ctx, &st, `SELECT `+showtimeColumns+` FROM showtimes WHERE id = ?`, showtimeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Showtime{}, ErrNotFound
		}
		return model.Showtime{}, fmt.Errorf("get showtime: %w", err)
	}
	return st, nil
}

// CapacityOf returns the fixed seat capacity of a showtime.
func (r *ShowtimeLedger) CapacityOf(ctx context.Context, showtimeID uint64) (int, error) {
	st, err := r.Get(ctx, showtimeID)
	if err != nil {
		return 0, err
	}
	return st.Capacity, nil
}

// LockForUpdate reads the showtime with an exclusive row lock held until the
// transaction ends.  Every reservation for the showtime takes this lock
// first, so overlapping seat requests are totally ordered.
func (r *ShowtimeLedger) LockForUpdate(ctx context.Context, tx txn.Tx, showtimeID uint64) (model.Showtime, error) {
	stx, err := unwrap(tx)
	if err != nil {
		return model.Showtime{}, err
	}
	var st model.Showtime
	err = stx.GetContext(ctx, &st, `SELECT `+showtimeColumns+` FROM showtimes WHERE id = ? FOR UPDATE`, showtimeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Showtime{}, ErrNotFound
		}
		return model.Showtime{}, fmt.Errorf("lock showtime: %w", classify(err))
	}
	return st, nil
}

// DecrementRemaining subtracts count from the remaining-seats counter.  The
// guarded UPDATE never lets the counter go negative; when it matches no row
// the showtime is re-read to tell a missing row from a short counter.
func (r *ShowtimeLedger) DecrementRemaining(ctx context.Context, tx txn.Tx, showtimeID uint64, count int) error {
	stx, err := unwrap(tx)
	if err != nil {
		return err
	}
	const q = `UPDATE showtimes SET remaining_seats = remaining_seats - ? WHERE id = ? AND remaining_seats >= ?`
	res, err := stx.ExecContext(ctx, q, count, showtimeID, count)
	if err != nil {
		return fmt.Errorf("decrement showtime: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("decrement showtime: %w", err)
	}
	if n == 1 {
		return nil
	}
	var remaining int
	err = stx.GetContext(ctx, &remaining, `SELECT remaining_seats FROM showtimes WHERE id = ?`, showtimeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("recheck showtime: %w", classify(err))
	}
	return ErrInsufficientInventory
}
