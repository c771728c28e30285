// Package memory is an in-process implementation of the booking stores.
// It honours the same contracts as the MySQL stores: per-showtime and
// per-event exclusive locks with a bounded wait, staged writes that become
// visible only on Commit, and seat uniqueness re-checked at commit time.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/repository"
	"github.com/iliyamo/cinema-booking/internal/txn"
)

// ErrTxDone is returned by Commit on a finished transaction.
var ErrTxDone = errors.New("transaction already finished")

// Store holds committed state.  mu guards the maps; the per-resource lock
// channels model row locks and are held from acquisition until the owning
// transaction commits or rolls back.
type Store struct {
	mu        sync.Mutex
	lockWait  time.Duration
	showtimes map[uint64]model.Showtime
	events    map[uint64]model.Event
	occupied  map[uint64]map[string]string // showtime -> seat -> booking
	bookings  []model.Booking
	locks     map[string]chan struct{}
}

// NewStore returns an empty store.  lockWait bounds how long a transaction
// waits for a showtime or event lock.
func NewStore(lockWait time.Duration) *Store {
	return &Store{
		lockWait:  lockWait,
		showtimes: make(map[uint64]model.Showtime),
		events:    make(map[uint64]model.Event),
		occupied:  make(map[uint64]map[string]string),
		locks:     make(map[string]chan struct{}),
	}
}

// AddShowtime schedules a showtime with all seats free.
func (s *Store) AddShowtime(id uint64, capacity int, priceCents int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.showtimes[id] = model.Showtime{ID: id, Capacity: capacity, RemainingSeats: capacity, TicketPriceCents: priceCents}
}

// AddEvent schedules an event with soldTickets already taken.
func (s *Store) AddEvent(id uint64, capacity, soldTickets int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[id] = model.Event{ID: id, Capacity: capacity, RemainingTickets: capacity - soldTickets}
}

// Begin opens a transaction.
func (s *Store) Begin(ctx context.Context) (txn.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Tx{
		store:      s,
		held:       make(map[string]chan struct{}),
		seats:      make(map[uint64]map[string]string),
		showtimeDc: make(map[uint64]int),
		eventDc:    make(map[uint64]int),
	}, nil
}

func (s *Store) lockChan(key string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[key] = ch
	}
	return ch
}

// Tx stages writes until Commit.
type Tx struct {
	store      *Store
	held       map[string]chan struct{}
	seats      map[uint64]map[string]string
	showtimeDc map[uint64]int
	eventDc    map[uint64]int
	bookings   []model.Booking
	done       bool
}

// lock acquires the named lock, waiting at most the store's lockWait.
// Locks are reentrant within one transaction.
func (t *Tx) lock(ctx context.Context, key string) error {
	if t.done {
		return ErrTxDone
	}
	if _, ok := t.held[key]; ok {
		return nil
	}
	ch := t.store.lockChan(key)
	timer := time.NewTimer(t.store.lockWait)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		t.held[key] = ch
		return nil
	case <-timer.C:
		return repository.ErrLockTimeout
	case <-ctx.Done():
		return repository.ErrLockTimeout
	}
}

func (t *Tx) release() {
	for key, ch := range t.held {
		<-ch
		delete(t.held, key)
	}
	t.done = true
}

// Commit validates staged writes against committed state and applies them
// atomically.  On validation failure nothing is applied and the
// transaction is rolled back.
func (t *Tx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	s := t.store
	s.mu.Lock()
	if err := t.validateLocked(); err != nil {
		s.mu.Unlock()
		t.release()
		return err
	}
	for showtimeID, seats := range t.seats {
		occ := s.occupied[showtimeID]
		if occ == nil {
			occ = make(map[string]string)
			s.occupied[showtimeID] = occ
		}
		for seat, booking := range seats {
			occ[seat] = booking
		}
	}
	for id, n := range t.showtimeDc {
		st := s.showtimes[id]
		st.RemainingSeats -= n
		s.showtimes[id] = st
	}
	for id, n := range t.eventDc {
		ev := s.events[id]
		ev.RemainingTickets -= n
		s.events[id] = ev
	}
	s.bookings = append(s.bookings, t.bookings...)
	s.mu.Unlock()
	t.release()
	return nil
}

func (t *Tx) validateLocked() error {
	s := t.store
	for showtimeID, seats := range t.seats {
		for seat := range seats {
			if _, taken := s.occupied[showtimeID][seat]; taken {
				return repository.ErrDuplicateSeat
			}
		}
	}
	for id, n := range t.showtimeDc {
		if s.showtimes[id].RemainingSeats < n {
			return repository.ErrInsufficientInventory
		}
	}
	for id, n := range t.eventDc {
		if s.events[id].RemainingTickets < n {
			return repository.ErrInsufficientInventory
		}
	}
	return nil
}

// Rollback discards staged writes and releases locks.  It is a no-op on a
// finished transaction.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.release()
	return nil
}

func asTx(tx txn.Tx) (*Tx, error) {
	if t, ok := tx.(*Tx); ok && t != nil {
		if t.done {
			return nil, ErrTxDone
		}
		return t, nil
	}
	return nil, fmt.Errorf("memory store: foreign transaction %T", tx)
}

func showtimeKey(id uint64) string { return fmt.Sprintf("showtime:%d", id) }
func eventKey(id uint64) string    { return fmt.Sprintf("event:%d", id) }

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
