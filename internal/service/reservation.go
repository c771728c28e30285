// Package service holds the reservation transaction manager: the only code
// allowed to mutate seat occupancy and the remaining-seat counters.  Every
// reservation runs inside one storage transaction that is either committed
// whole or rolled back whole.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/metrics"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/repository"
	"github.com/iliyamo/cinema-booking/internal/txn"
)

// MaxSeatTokenLength is the longest seat identifier the stores accept, in
// characters (booked_seats.seat_id is VARCHAR(32) utf8mb4).
const MaxSeatTokenLength = 32

// sideEffectTimeout bounds each post-commit effect.
const sideEffectTimeout = 2 * time.Second

// ShowtimeLedger holds capacity, remaining seats and price per showtime.
type ShowtimeLedger interface {
	Get(ctx context.Context, showtimeID uint64) (model.Showtime, error)
	CapacityOf(ctx context.Context, showtimeID uint64) (int, error)
	LockForUpdate(ctx context.Context, tx txn.Tx, showtimeID uint64) (model.Showtime, error)
	DecrementRemaining(ctx context.Context, tx txn.Tx, showtimeID uint64, count int) error
}

// SeatOccupancyStore records which seats are taken per showtime.
type SeatOccupancyStore interface {
	FindOccupied(ctx context.Context, tx txn.Tx, showtimeID uint64, seatIDs []string) ([]string, error)
	Occupy(ctx context.Context, tx txn.Tx, showtimeID uint64, seatIDs []string, bookingID string) error
	ListOccupied(ctx context.Context, showtimeID uint64) ([]string, error)
	CountOccupied(ctx context.Context, showtimeID uint64) (int, error)
}

// BookingStore is the append-only booking record.
type BookingStore interface {
	Record(ctx context.Context, tx txn.Tx, b model.Booking) (string, error)
	ListForUser(ctx context.Context, userID uint64) ([]model.Booking, error)
}

// EventLedger holds the capacity-only inventory of generic events.
type EventLedger interface {
	LockForUpdate(ctx context.Context, tx txn.Tx, eventID uint64) (model.Event, error)
	DecrementRemaining(ctx context.Context, tx txn.Tx, eventID uint64, count int) error
}

// SeatMapCache caches the occupied seat list of a showtime.  Get reports a
// generation on a miss; Set must drop the write when Invalidate ran after
// that generation was read.
type SeatMapCache interface {
	Get(ctx context.Context, showtimeID uint64) (seats []string, gen int64, ok bool, err error)
	Set(ctx context.Context, showtimeID uint64, gen int64, seats []string) (bool, error)
	Invalidate(ctx context.Context, showtimeID uint64) error
}

// Notifier is told about every committed booking.
type Notifier interface {
	BookingConfirmed(ctx context.Context, b model.Booking) error
}

// Deps wires a ReservationService.  SeatMap, Notifier, Metrics and Logger
// are optional.
type Deps struct {
	Tx        txn.Manager
	Showtimes ShowtimeLedger
	Seats     SeatOccupancyStore
	Bookings  BookingStore
	Events    EventLedger
	SeatMap   SeatMapCache
	Notifier  Notifier
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	Now       func() time.Time
}

// ReservationService turns seat and ticket requests into bookings.
type ReservationService struct {
	tx        txn.Manager
	showtimes ShowtimeLedger
	seats     SeatOccupancyStore
	bookings  BookingStore
	events    EventLedger
	seatMap   SeatMapCache
	notifier  Notifier
	metrics   *metrics.Metrics
	log       *zap.Logger
	now       func() time.Time
}

// NewReservationService panics when a required store is missing.
func NewReservationService(d Deps) *ReservationService {
	if d.Tx == nil || d.Showtimes == nil || d.Seats == nil || d.Bookings == nil || d.Events == nil {
		panic("nil store passed to NewReservationService")
	}
	s := &ReservationService{
		tx:        d.Tx,
		showtimes: d.Showtimes,
		seats:     d.Seats,
		bookings:  d.Bookings,
		events:    d.Events,
		seatMap:   d.SeatMap,
		notifier:  d.Notifier,
		metrics:   d.Metrics,
		log:       d.Logger,
		now:       d.Now,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// attempt tracks one reservation through its states.
type attempt struct {
	kind  string
	state State
	log   *zap.Logger
}

func (a *attempt) advance(to State) {
	a.state = to
	a.log.Debug("reservation state", zap.Stringer("state", to))
}

// ReserveSeats books the given seats of a showtime for userID.  The seat
// set is checked, occupied, counted against the ledger and recorded as a
// booking inside one transaction.  The total is the showtime's stored price
// times the seat count.
func (s *ReservationService) ReserveSeats(ctx context.Context, userID, showtimeID uint64, seatIDs []string) (*model.Booking, error) {
	start := time.Now()
	a := &attempt{
		kind:  string(model.BookingKindSeat),
		state: StateStarted,
		log:   s.log.With(zap.Uint64("user_id", userID), zap.Uint64("showtime_id", showtimeID), zap.Strings("seats", seatIDs)),
	}
	if userID == 0 {
		s.finish(a, ErrUnauthorized, start, false)
		return nil, ErrUnauthorized
	}
	if err := validateSeatRequest(showtimeID, seatIDs); err != nil {
		s.finish(a, err, start, false)
		return nil, err
	}

	b, err := s.reserveSeats(ctx, a, userID, showtimeID, seatIDs)
	s.finish(a, err, start, true)
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, *b)
	return b, nil
}

func (s *ReservationService) reserveSeats(ctx context.Context, a *attempt, userID, showtimeID uint64, seatIDs []string) (*model.Booking, error) {
	tx, err := s.tx.Begin(ctx)
	if err != nil {
		return nil, s.translate(a, "begin transaction", err)
	}
	// no-op once committed
	defer func() { _ = tx.Rollback() }()

	// The showtime row lock orders every reservation of this showtime.
	st, err := s.showtimes.LockForUpdate(ctx, tx, showtimeID)
	if err != nil {
		return nil, s.translate(a, "lock showtime", err)
	}

	taken, err := s.seats.FindOccupied(ctx, tx, showtimeID, seatIDs)
	if err != nil {
		return nil, s.translate(a, "find occupied seats", err)
	}
	if len(taken) > 0 {
		return nil, &SeatConflictError{ShowtimeID: showtimeID, Seats: taken}
	}
	a.advance(StateSeatsChecked)

	total := st.TicketPriceCents * int64(len(seatIDs))
	a.advance(StatePriceResolved)

	bookingID := uuid.NewString()
	if err := s.seats.Occupy(ctx, tx, showtimeID, seatIDs, bookingID); err != nil {
		if errors.Is(err, repository.ErrDuplicateSeat) {
			return nil, s.lostRace(ctx, tx, showtimeID, seatIDs)
		}
		return nil, s.translate(a, "occupy seats", err)
	}
	a.advance(StateOccupancyWritten)

	if err := s.showtimes.DecrementRemaining(ctx, tx, showtimeID, len(seatIDs)); err != nil {
		return nil, s.translate(a, "decrement remaining seats", err)
	}
	a.advance(StateLedgerUpdated)

	sid := showtimeID
	b := model.Booking{
		ID:               bookingID,
		UserID:           userID,
		Kind:             model.BookingKindSeat,
		ShowtimeID:       &sid,
		Seats:            append([]string(nil), seatIDs...),
		TicketCount:      len(seatIDs),
		TotalAmountCents: total,
		CreatedAt:        s.now().UTC(),
	}
	if _, err := s.bookings.Record(ctx, tx, b); err != nil {
		return nil, s.translate(a, "record booking", err)
	}
	a.advance(StateBookingRecorded)

	if err := tx.Commit(); err != nil {
		if errors.Is(err, repository.ErrDuplicateSeat) {
			return nil, s.lostRace(ctx, nil, showtimeID, seatIDs)
		}
		return nil, s.translate(a, "commit", err)
	}
	a.advance(StateCommitted)
	return &b, nil
}

// lostRace builds the conflict for a uniqueness violation caught after the
// pre-check passed.  It names the requested seats that are now occupied,
// falling back to the whole request when they cannot be determined.
func (s *ReservationService) lostRace(ctx context.Context, tx txn.Tx, showtimeID uint64, seatIDs []string) error {
	var taken []string
	if tx != nil {
		taken, _ = s.seats.FindOccupied(ctx, tx, showtimeID, seatIDs)
	} else if all, err := s.seats.ListOccupied(ctx, showtimeID); err == nil {
		taken = intersect(seatIDs, all)
	}
	if len(taken) == 0 {
		taken = sortedSeats(seatIDs)
	}
	return &SeatConflictError{ShowtimeID: showtimeID, Seats: taken}
}

// ReserveEventTickets books ticketCount tickets of a capacity-only event.
// amountCents is stored as supplied by the caller.
func (s *ReservationService) ReserveEventTickets(ctx context.Context, userID, eventID uint64, ticketCount int, amountCents int64) (*model.Booking, error) {
	start := time.Now()
	a := &attempt{
		kind:  string(model.BookingKindEvent),
		state: StateStarted,
		log:   s.log.With(zap.Uint64("user_id", userID), zap.Uint64("event_id", eventID), zap.Int("tickets", ticketCount)),
	}
	if userID == 0 {
		s.finish(a, ErrUnauthorized, start, false)
		return nil, ErrUnauthorized
	}
	var err error
	switch {
	case eventID == 0:
		err = invalid("event_id is required")
	case ticketCount <= 0:
		err = invalid("number_of_tickets must be positive")
	case amountCents <= 0:
		err = invalid("total_amount must be positive")
	}
	if err != nil {
		s.finish(a, err, start, false)
		return nil, err
	}

	b, err := s.reserveEventTickets(ctx, a, userID, eventID, ticketCount, amountCents)
	s.finish(a, err, start, true)
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, *b)
	return b, nil
}

func (s *ReservationService) reserveEventTickets(ctx context.Context, a *attempt, userID, eventID uint64, ticketCount int, amountCents int64) (*model.Booking, error) {
	tx, err := s.tx.Begin(ctx)
	if err != nil {
		return nil, s.translate(a, "begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	ev, err := s.events.LockForUpdate(ctx, tx, eventID)
	if err != nil {
		return nil, s.translate(a, "lock event", err)
	}
	if ticketCount > ev.RemainingTickets {
		return nil, fmt.Errorf("%w: %d tickets requested, %d remaining", ErrInsufficientInventory, ticketCount, ev.RemainingTickets)
	}
	if err := s.events.DecrementRemaining(ctx, tx, eventID, ticketCount); err != nil {
		return nil, s.translate(a, "decrement remaining tickets", err)
	}
	a.advance(StateLedgerUpdated)

	eid := eventID
	b := model.Booking{
		ID:               uuid.NewString(),
		UserID:           userID,
		Kind:             model.BookingKindEvent,
		EventID:          &eid,
		TicketCount:      ticketCount,
		TotalAmountCents: amountCents,
		CreatedAt:        s.now().UTC(),
	}
	if _, err := s.bookings.Record(ctx, tx, b); err != nil {
		return nil, s.translate(a, "record booking", err)
	}
	a.advance(StateBookingRecorded)

	if err := tx.Commit(); err != nil {
		return nil, s.translate(a, "commit", err)
	}
	a.advance(StateCommitted)
	a.log.Info("event tickets booked",
		zap.String("booking_id", b.ID),
		zap.Int64("total_amount", amountCents),
		zap.String("amount_source", "caller"),
	)
	return &b, nil
}

// translate maps a store error onto the service taxonomy.  Unknown errors
// become ErrStorageFailure and are logged with their cause.
func (s *ReservationService) translate(a *attempt, op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, op)
	case errors.Is(err, repository.ErrInsufficientInventory):
		return fmt.Errorf("%w: %s", ErrInsufficientInventory, op)
	case errors.Is(err, repository.ErrLockTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s", ErrTransientContention, op)
	case errors.Is(err, repository.ErrDuplicateSeat):
		return ErrSeatConflict
	}
	if a != nil {
		a.log.Error("storage failure", zap.String("op", op), zap.Stringer("state", a.state), zap.Error(err))
	} else {
		s.log.Error("storage failure", zap.String("op", op), zap.Error(err))
	}
	return fmt.Errorf("%w: %s: %v", ErrStorageFailure, op, err)
}

// finish logs and counts the outcome.  opened tells whether a transaction
// was started, in which case a failure is an abort.
func (s *ReservationService) finish(a *attempt, err error, start time.Time, opened bool) {
	outcome := Outcome(err)
	s.metrics.ObserveReservation(a.kind, outcome, time.Since(start))
	if err == nil {
		a.log.Info("reservation committed")
		return
	}
	reached := a.state
	a.state = StateAborted
	if opened {
		s.metrics.ObserveAbort(a.kind, reached.String())
	}
	fields := []zap.Field{zap.String("outcome", outcome), zap.Stringer("reached", reached), zap.Error(err)}
	switch {
	case errors.Is(err, ErrStorageFailure):
		// already logged with its cause
	case errors.Is(err, ErrSeatConflict), errors.Is(err, ErrTransientContention), errors.Is(err, ErrInsufficientInventory):
		a.log.Warn("reservation aborted", append(fields, zap.Strings("conflicting_seats", ConflictingSeats(err)))...)
	default:
		a.log.Info("reservation rejected", fields...)
	}
}

// afterCommit runs the post-commit effects.  Their failures are logged and
// counted and never change the outcome of the reservation.
func (s *ReservationService) afterCommit(ctx context.Context, b model.Booking) {
	ctx = context.WithoutCancel(ctx)
	if b.ShowtimeID != nil && s.seatMap != nil {
		cctx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
		if err := s.seatMap.Invalidate(cctx, *b.ShowtimeID); err != nil {
			s.metrics.ObserveSideEffectFailure("seat_map_invalidate")
			s.log.Warn("seat map invalidation failed", zap.Uint64("showtime_id", *b.ShowtimeID), zap.Error(err))
		}
		cancel()
	}
	if s.notifier != nil {
		cctx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
		if err := s.notifier.BookingConfirmed(cctx, b); err != nil {
			s.metrics.ObserveSideEffectFailure("publish")
			s.log.Warn("booking notification failed", zap.String("booking_id", b.ID), zap.Error(err))
		}
		cancel()
	}
}

// Outcome is the metric label for a reservation result.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "committed"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrSeatConflict):
		return "seat_conflict"
	case errors.Is(err, ErrInsufficientInventory):
		return "insufficient_inventory"
	case errors.Is(err, ErrTransientContention):
		return "transient_contention"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	default:
		return "storage_failure"
	}
}

func validateSeatRequest(showtimeID uint64, seatIDs []string) error {
	if showtimeID == 0 {
		return invalid("showtime_id is required")
	}
	if len(seatIDs) == 0 {
		return invalid("at least one seat is required")
	}
	seen := make(map[string]struct{}, len(seatIDs))
	for _, seat := range seatIDs {
		if seat == "" {
			return invalid("empty seat identifier")
		}
		if !utf8.ValidString(seat) {
			return invalid("seat identifier %q is not valid UTF-8", seat)
		}
		if utf8.RuneCountInString(seat) > MaxSeatTokenLength {
			return invalid("seat identifier %q longer than %d characters", seat, MaxSeatTokenLength)
		}
		if _, dup := seen[seat]; dup {
			return invalid("duplicate seat %q", seat)
		}
		seen[seat] = struct{}{}
	}
	return nil
}
