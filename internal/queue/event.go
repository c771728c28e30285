// Package queue carries booking notifications over RabbitMQ: the publisher
// used after every committed booking and the audit consumer that appends
// each confirmation to a log file.
package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// BookingQueueName is the durable queue both sides declare.
const BookingQueueName = "booking.confirmed"

// BookingConfirmedEvent is published once per committed booking.  It holds
// enough for downstream consumers to log or notify without reading the
// primary database.
type BookingConfirmedEvent struct {
	BookingID        string   `json:"booking_id"`
	Kind             string   `json:"kind"`
	UserID           uint64   `json:"user_id"`
	ShowtimeID       uint64   `json:"showtime_id,omitempty"`
	EventID          uint64   `json:"event_id,omitempty"`
	Seats            []string `json:"seats,omitempty"`
	TicketCount      int      `json:"ticket_count"`
	TotalAmountCents int64    `json:"total_amount_cents"`
	ConfirmedAt      string   `json:"confirmed_at"`
}

// NewBookingConfirmedEvent builds the payload for b.
func NewBookingConfirmedEvent(b model.Booking) BookingConfirmedEvent {
	ev := BookingConfirmedEvent{
		BookingID:        b.ID,
		Kind:             string(b.Kind),
		UserID:           b.UserID,
		Seats:            b.Seats,
		TicketCount:      b.TicketCount,
		TotalAmountCents: b.TotalAmountCents,
		ConfirmedAt:      b.CreatedAt.UTC().Format(time.RFC3339),
	}
	if b.ShowtimeID != nil {
		ev.ShowtimeID = *b.ShowtimeID
	}
	if b.EventID != nil {
		ev.EventID = *b.EventID
	}
	return ev
}

// AuditLine renders ev as one line of the booking audit log.
func (ev BookingConfirmedEvent) AuditLine() string {
	target := fmt.Sprintf("showtime_id=%d", ev.ShowtimeID)
	if ev.Kind == string(model.BookingKindEvent) {
		target = fmt.Sprintf("event_id=%d", ev.EventID)
	}
	seats := "[]"
	if len(ev.Seats) > 0 {
		seats = "[" + strings.Join(ev.Seats, ",") + "]"
	}
	return fmt.Sprintf("[%s] Booking confirmed | booking_id=%s | kind=%s | user_id=%d | %s | tickets=%d | total=%d cents | seats=%s\n",
		ev.ConfirmedAt, ev.BookingID, ev.Kind, ev.UserID, target, ev.TicketCount, ev.TotalAmountCents, seats)
}
