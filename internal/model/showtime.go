package model

// Showtime is a scheduled screening with a fixed seat capacity.  The
// remaining-seats counter is owned by the reservation service and is kept
// equal to Capacity minus the number of occupied seats.
//
// Fields:
//  ID               – showtimes.id
//  Capacity         – total seats, fixed when the showtime is scheduled.
//  RemainingSeats   – seats still free; never negative, never above Capacity.
//  TicketPriceCents – authoritative per-seat price in minor currency units.
type Showtime struct {
	ID               uint64 `db:"id" json:"id"`
	Capacity         int    `db:"capacity" json:"capacity"`
	RemainingSeats   int    `db:"remaining_seats" json:"remaining_seats"`
	TicketPriceCents int64  `db:"ticket_price_cents" json:"ticket_price_cents"`
}

// Availability is the read-only view of a showtime's inventory used for
// seat-map rendering and operator checks.
type Availability struct {
	ShowtimeID     uint64 `json:"showtime_id"`
	Capacity       int    `json:"capacity"`
	RemainingSeats int    `json:"remaining_seats"`
	Occupied       int    `json:"occupied"`
}

// Consistent reports whether the ledger counter agrees with the occupancy set.
func (a Availability) Consistent() bool {
	return a.RemainingSeats == a.Capacity-a.Occupied
}
