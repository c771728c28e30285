package memory

import (
	"context"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/repository"
	"github.com/iliyamo/cinema-booking/internal/txn"
)

// ShowtimeLedger is the in-memory showtime ledger.
type ShowtimeLedger struct{ s *Store }

// NewShowtimeLedger returns the ledger view of s.
func NewShowtimeLedger(s *Store) *ShowtimeLedger { return &ShowtimeLedger{s: s} }

// Get returns the committed showtime.
func (l *ShowtimeLedger) Get(_ context.Context, showtimeID uint64) (model.Showtime, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	st, ok := l.s.showtimes[showtimeID]
	if !ok {
		return model.Showtime{}, repository.ErrNotFound
	}
	return st, nil
}

// CapacityOf returns the fixed capacity of the showtime.
func (l *ShowtimeLedger) CapacityOf(ctx context.Context, showtimeID uint64) (int, error) {
	st, err := l.Get(ctx, showtimeID)
	if err != nil {
		return 0, err
	}
	return st.Capacity, nil
}

// LockForUpdate takes the showtime lock and returns the showtime as seen by
// the transaction.
func (l *ShowtimeLedger) LockForUpdate(ctx context.Context, tx txn.Tx, showtimeID uint64) (model.Showtime, error) {
	t, err := asTx(tx)
	if err != nil {
		return model.Showtime{}, err
	}
	st, err := l.Get(ctx, showtimeID)
	if err != nil {
		return model.Showtime{}, err
	}
	if err := t.lock(ctx, showtimeKey(showtimeID)); err != nil {
		return model.Showtime{}, err
	}
	// re-read: a writer may have committed while we waited
	st, err = l.Get(ctx, showtimeID)
	if err != nil {
		return model.Showtime{}, err
	}
	st.RemainingSeats -= t.showtimeDc[showtimeID]
	return st, nil
}

// DecrementRemaining stages a decrement of the remaining-seats counter.
func (l *ShowtimeLedger) DecrementRemaining(ctx context.Context, tx txn.Tx, showtimeID uint64, count int) error {
	st, err := l.LockForUpdate(ctx, tx, showtimeID)
	if err != nil {
		return err
	}
	if count > st.RemainingSeats {
		return repository.ErrInsufficientInventory
	}
	t, _ := asTx(tx)
	t.showtimeDc[showtimeID] += count
	return nil
}

// EventLedger is the in-memory event ledger.
type EventLedger struct{ s *Store }

// NewEventLedger returns the event ledger view of s.
func NewEventLedger(s *Store) *EventLedger { return &EventLedger{s: s} }

// LockForUpdate takes the event lock and returns the event as seen by the
// transaction.
func (l *EventLedger) LockForUpdate(ctx context.Context, tx txn.Tx, eventID uint64) (model.Event, error) {
	t, err := asTx(tx)
	if err != nil {
		return model.Event{}, err
	}
	if !l.exists(eventID) {
		return model.Event{}, repository.ErrNotFound
	}
	if err := t.lock(ctx, eventKey(eventID)); err != nil {
		return model.Event{}, err
	}
	l.s.mu.Lock()
	ev := l.s.events[eventID]
	l.s.mu.Unlock()
	ev.RemainingTickets -= t.eventDc[eventID]
	return ev, nil
}

// DecrementRemaining stages a decrement of the event's remaining tickets.
func (l *EventLedger) DecrementRemaining(ctx context.Context, tx txn.Tx, eventID uint64, count int) error {
	ev, err := l.LockForUpdate(ctx, tx, eventID)
	if err != nil {
		return err
	}
	if count > ev.RemainingTickets {
		return repository.ErrInsufficientInventory
	}
	t, _ := asTx(tx)
	t.eventDc[eventID] += count
	return nil
}

func (l *EventLedger) exists(eventID uint64) bool {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	_, ok := l.s.events[eventID]
	return ok
}
