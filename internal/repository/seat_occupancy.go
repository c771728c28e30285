package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/cinema-booking/internal/txn"
)

// SeatOccupancyStore records which seat tokens are taken for which showtime.
// The booked_seats primary key (showtime_id, seat_id) is the backstop that
// makes a double-sell impossible even if two writers interleave.
type SeatOccupancyStore struct {
	db *sqlx.DB
}

// NewSeatOccupancyStore returns a SeatOccupancyStore bound to the given database.
func NewSeatOccupancyStore(db *sqlx.DB) *SeatOccupancyStore { return &SeatOccupancyStore{db: db} }

// FindOccupied returns the subset of seatIDs already occupied for the
// showtime, sorted.  It is a locking read: the matched rows stay locked
// until the transaction ends.
func (r *SeatOccupancyStore) FindOccupied(ctx context.Context, tx txn.Tx, showtimeID uint64, seatIDs []string) ([]string, error) {
	stx, err := unwrap(tx)
	if err != nil {
		return nil, err
	}
	if len(seatIDs) == 0 {
		return []string{}, nil
	}
	q, args, err := sqlx.In(`SELECT seat_id FROM booked_seats WHERE showtime_id = ? AND seat_id IN (?) ORDER BY seat_id FOR UPDATE`, showtimeID, seatIDs)
	if err != nil {
		return nil, fmt.Errorf("build occupied query: %w", err)
	}
	occupied := []string{}
	if err := stx.SelectContext(ctx, &occupied, stx.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("find occupied: %w", classify(err))
	}
	return occupied, nil
}

// Occupy inserts one booked_seats row per seat, all owned by bookingID, in a
// single statement.  A uniqueness violation surfaces as ErrDuplicateSeat and
// leaves the transaction open for the caller to roll back.
func (r *SeatOccupancyStore) Occupy(ctx context.Context, tx txn.Tx, showtimeID uint64, seatIDs []string, bookingID string) error {
	stx, err := unwrap(tx)
	if err != nil {
		return err
	}
	if len(seatIDs) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString(`INSERT INTO booked_seats (showtime_id, seat_id, booking_id) VALUES `)
	args := make([]interface{}, 0, len(seatIDs)*3)
	for i, seat := range seatIDs {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(?, ?, ?)")
		args = append(args, showtimeID, seat, bookingID)
	}
	if _, err := stx.ExecContext(ctx, b.String(), args...); err != nil {
		ce := classify(err)
		if ce == ErrDuplicateSeat {
			return ErrDuplicateSeat
		}
		return fmt.Errorf("occupy seats: %w", ce)
	}
	return nil
}

// ListOccupied returns every occupied seat token for the showtime, sorted.
// It is a plain read for seat-map rendering and takes no locks.
func (r *SeatOccupancyStore) ListOccupied(ctx context.Context, showtimeID uint64) ([]string, error) {
	seats := []string{}
	if err := r.db.SelectContext(ctx, &seats, `SELECT seat_id FROM booked_seats WHERE showtime_id = ? ORDER BY seat_id`, showtimeID); err != nil {
		return nil, fmt.Errorf("list occupied: %w", err)
	}
	return seats, nil
}

// CountOccupied returns the number of occupied seats for the showtime.
func (r *SeatOccupancyStore) CountOccupied(ctx context.Context, showtimeID uint64) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM booked_seats WHERE showtime_id = ?`, showtimeID); err != nil {
		return 0, fmt.Errorf("count occupied: %w", err)
	}
	return n, nil
}
