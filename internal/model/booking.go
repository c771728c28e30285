package model

import "time"

// BookingKind distinguishes seat-level bookings from capacity-only event
// bookings.
type BookingKind string

const (
	BookingKindSeat  BookingKind = "SEAT"
	BookingKindEvent BookingKind = "EVENT"
)

// Booking is the durable outcome of a successful reservation.  Seat
// bookings carry ShowtimeID and the ordered seat tokens; event bookings
// carry EventID and TicketCount.  Bookings are append-only.
//
// Fields:
//  ID               – booking identifier (UUID), generated before any write.
//  UserID           – authenticated user who owns the booking.
//  Kind             – SEAT or EVENT.
//  ShowtimeID       – set for SEAT bookings.
//  EventID          – set for EVENT bookings.
//  Seats            – seat tokens in request order (SEAT only).
//  TicketCount      – number of units; len(Seats) for SEAT bookings.
//  TotalAmountCents – amount charged in minor currency units.
//  CreatedAt        – commit time (UTC).
type Booking struct {
	ID               string      `json:"booking_id"`
	UserID           uint64      `json:"user_id"`
	Kind             BookingKind `json:"kind"`
	ShowtimeID       *uint64     `json:"showtime_id,omitempty"`
	EventID          *uint64     `json:"event_id,omitempty"`
	Seats            []string    `json:"seats,omitempty"`
	TicketCount      int         `json:"ticket_count"`
	TotalAmountCents int64       `json:"total_amount"`
	CreatedAt        time.Time   `json:"created_at"`
}
