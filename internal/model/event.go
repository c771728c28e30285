package model

// Event is a generic ticketed event whose inventory is tracked as a count
// rather than as identified seats.
type Event struct {
	ID               uint64 `db:"id" json:"id"`
	Capacity         int    `db:"capacity" json:"capacity"`
	RemainingTickets int    `db:"remaining_tickets" json:"remaining_tickets"`
}
