package model

// SeatOccupancy marks a seat token as taken for a showtime.  The pair
// (ShowtimeID, SeatID) is unique and the record is immutable once written.
type SeatOccupancy struct {
	ShowtimeID uint64 `db:"showtime_id"`
	SeatID     string `db:"seat_id"`
	BookingID  string `db:"booking_id"`
}
