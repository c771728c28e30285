package service

import (
	"errors"
	"fmt"
	"strings"
)

// Failure kinds returned by the reservation service.  Callers match them
// with errors.Is; everything else about an error is detail.
var (
	ErrInvalidRequest        = errors.New("invalid request")
	ErrNotFound              = errors.New("not found")
	ErrSeatConflict          = errors.New("seat conflict")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrTransientContention   = errors.New("transient contention")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrStorageFailure        = errors.New("storage failure")
)

// SeatConflictError names the seats that were already taken.
type SeatConflictError struct {
	ShowtimeID uint64
	Seats      []string
}

func (e *SeatConflictError) Error() string {
	return fmt.Sprintf("seats already occupied for showtime %d: %s", e.ShowtimeID, strings.Join(e.Seats, ", "))
}

// Is reports a match against ErrSeatConflict.
func (e *SeatConflictError) Is(target error) bool { return target == ErrSeatConflict }

// ConflictingSeats returns the seats named by a seat conflict, or nil.
func ConflictingSeats(err error) []string {
	var sc *SeatConflictError
	if errors.As(err, &sc) {
		return sc.Seats
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
