package memory

import (
	"context"
	"sort"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/txn"
)

// BookingStore is the in-memory booking store.
type BookingStore struct{ s *Store }

// NewBookingStore returns the booking view of s.
func NewBookingStore(s *Store) *BookingStore { return &BookingStore{s: s} }

// Record stages the booking.
func (b *BookingStore) Record(_ context.Context, tx txn.Tx, booking model.Booking) (string, error) {
	t, err := asTx(tx)
	if err != nil {
		return "", err
	}
	booking.Seats = append([]string(nil), booking.Seats...)
	t.bookings = append(t.bookings, booking)
	return booking.ID, nil
}

// ListForUser returns the user's committed bookings, most recent first.
// Bookings with equal timestamps keep reverse commit order.
func (b *BookingStore) ListForUser(_ context.Context, userID uint64) ([]model.Booking, error) {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	out := []model.Booking{}
	for i := len(b.s.bookings) - 1; i >= 0; i-- {
		if bk := b.s.bookings[i]; bk.UserID == userID {
			bk.Seats = append([]string(nil), bk.Seats...)
			out = append(out, bk)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// All returns every committed booking in commit order.
func (b *BookingStore) All() []model.Booking {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	out := make([]model.Booking, len(b.s.bookings))
	copy(out, b.s.bookings)
	return out
}
