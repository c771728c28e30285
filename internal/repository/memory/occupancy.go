package memory

import (
	"context"

	"github.com/iliyamo/cinema-booking/internal/repository"
	"github.com/iliyamo/cinema-booking/internal/txn"
)

// SeatOccupancyStore is the in-memory seat occupancy store.
type SeatOccupancyStore struct{ s *Store }

// NewSeatOccupancyStore returns the occupancy view of s.
func NewSeatOccupancyStore(s *Store) *SeatOccupancyStore { return &SeatOccupancyStore{s: s} }

// FindOccupied returns the requested seats that are committed or staged by
// this transaction, sorted.  It takes the showtime lock.
func (o *SeatOccupancyStore) FindOccupied(ctx context.Context, tx txn.Tx, showtimeID uint64, seatIDs []string) ([]string, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	if err := t.lock(ctx, showtimeKey(showtimeID)); err != nil {
		return nil, err
	}
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	committed := o.s.occupied[showtimeID]
	staged := t.seats[showtimeID]
	taken := []string{}
	for _, seat := range seatIDs {
		_, inCommitted := committed[seat]
		_, inStaged := staged[seat]
		if inCommitted || inStaged {
			taken = append(taken, seat)
		}
	}
	return sortedCopy(taken), nil
}

// Occupy stages one occupancy record per seat.  ErrDuplicateSeat when any
// seat is already committed or staged; nothing is staged in that case.
func (o *SeatOccupancyStore) Occupy(ctx context.Context, tx txn.Tx, showtimeID uint64, seatIDs []string, bookingID string) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	if err := t.lock(ctx, showtimeKey(showtimeID)); err != nil {
		return err
	}
	staged := t.seats[showtimeID]
	seen := make(map[string]struct{}, len(seatIDs))
	o.s.mu.Lock()
	committed := o.s.occupied[showtimeID]
	for _, seat := range seatIDs {
		_, inCommitted := committed[seat]
		_, inStaged := staged[seat]
		_, dup := seen[seat]
		if inCommitted || inStaged || dup {
			o.s.mu.Unlock()
			return repository.ErrDuplicateSeat
		}
		seen[seat] = struct{}{}
	}
	o.s.mu.Unlock()
	if staged == nil {
		staged = make(map[string]string, len(seatIDs))
		t.seats[showtimeID] = staged
	}
	for _, seat := range seatIDs {
		staged[seat] = bookingID
	}
	return nil
}

// ListOccupied returns the committed occupied seats, sorted.
func (o *SeatOccupancyStore) ListOccupied(_ context.Context, showtimeID uint64) ([]string, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	seats := make([]string, 0, len(o.s.occupied[showtimeID]))
	for seat := range o.s.occupied[showtimeID] {
		seats = append(seats, seat)
	}
	return sortedCopy(seats), nil
}

// CountOccupied returns the number of committed occupied seats.
func (o *SeatOccupancyStore) CountOccupied(_ context.Context, showtimeID uint64) (int, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	return len(o.s.occupied[showtimeID]), nil
}
