package service

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// OccupiedSeats lists the occupied seats of a showtime for seat-map
// rendering.  The list is served from the seat-map cache when present.
func (s *ReservationService) OccupiedSeats(ctx context.Context, showtimeID uint64) ([]string, error) {
	if showtimeID == 0 {
		return nil, invalid("showtime_id is required")
	}
	var (
		gen  int64
		fill bool
	)
	if s.seatMap != nil {
		seats, g, ok, err := s.seatMap.Get(ctx, showtimeID)
		switch {
		case err != nil:
			s.log.Warn("seat map cache read failed", zap.Uint64("showtime_id", showtimeID), zap.Error(err))
		case ok:
			return seats, nil
		default:
			gen, fill = g, true
		}
	}

	if _, err := s.showtimes.Get(ctx, showtimeID); err != nil {
		return nil, s.translate(nil, "get showtime", err)
	}
	seats, err := s.seats.ListOccupied(ctx, showtimeID)
	if err != nil {
		return nil, s.translate(nil, "list occupied seats", err)
	}
	if fill {
		stored, err := s.seatMap.Set(ctx, showtimeID, gen, seats)
		switch {
		case err != nil:
			s.log.Warn("seat map cache write failed", zap.Uint64("showtime_id", showtimeID), zap.Error(err))
		case !stored:
			s.log.Debug("seat map fill dropped after invalidation", zap.Uint64("showtime_id", showtimeID))
		}
	}
	return seats, nil
}

// Availability reports the ledger counters next to the occupied seat count.
func (s *ReservationService) Availability(ctx context.Context, showtimeID uint64) (model.Availability, error) {
	if showtimeID == 0 {
		return model.Availability{}, invalid("showtime_id is required")
	}
	st, err := s.showtimes.Get(ctx, showtimeID)
	if err != nil {
		return model.Availability{}, s.translate(nil, "get showtime", err)
	}
	n, err := s.seats.CountOccupied(ctx, showtimeID)
	if err != nil {
		return model.Availability{}, s.translate(nil, "count occupied seats", err)
	}
	av := model.Availability{
		ShowtimeID:     showtimeID,
		Capacity:       st.Capacity,
		RemainingSeats: st.RemainingSeats,
		Occupied:       n,
	}
	if !av.Consistent() {
		s.log.Error("showtime ledger out of balance",
			zap.Uint64("showtime_id", showtimeID),
			zap.Int("capacity", av.Capacity),
			zap.Int("remaining", av.RemainingSeats),
			zap.Int("occupied", av.Occupied),
		)
	}
	return av, nil
}

// CapacityOf returns the fixed seat capacity of a showtime.
func (s *ReservationService) CapacityOf(ctx context.Context, showtimeID uint64) (int, error) {
	n, err := s.showtimes.CapacityOf(ctx, showtimeID)
	if err != nil {
		return 0, s.translate(nil, "capacity of showtime", err)
	}
	return n, nil
}

// BookingsForUser lists the user's bookings, most recent first.
func (s *ReservationService) BookingsForUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	list, err := s.bookings.ListForUser(ctx, userID)
	if err != nil {
		return nil, s.translate(nil, "list bookings", err)
	}
	return list, nil
}

func intersect(requested, occupied []string) []string {
	set := make(map[string]struct{}, len(occupied))
	for _, seat := range occupied {
		set[seat] = struct{}{}
	}
	out := []string{}
	for _, seat := range requested {
		if _, ok := set[seat]; ok {
			out = append(out, seat)
		}
	}
	sort.Strings(out)
	return out
}

func sortedSeats(seats []string) []string {
	out := append([]string(nil), seats...)
	sort.Strings(out)
	return out
}
