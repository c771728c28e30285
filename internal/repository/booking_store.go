package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/txn"
)

// BookingStore is the append-only record of completed bookings.  It holds
// no business rules.
type BookingStore struct {
	db *sqlx.DB
}

// NewBookingStore returns a BookingStore bound to the given database.
func NewBookingStore(db *sqlx.DB) *BookingStore { return &BookingStore{db: db} }

// bookingRow mirrors the bookings table.  Seats are stored as a JSON array
// so the request order survives the round trip.
type bookingRow struct {
	ID               string         `db:"id"`
	UserID           uint64         `db:"user_id"`
	Kind             string         `db:"kind"`
	ShowtimeID       sql.NullInt64  `db:"showtime_id"`
	EventID          sql.NullInt64  `db:"event_id"`
	Seats            sql.NullString `db:"seats"`
	TicketCount      int            `db:"ticket_count"`
	TotalAmountCents int64          `db:"total_amount_cents"`
	CreatedAt        time.Time      `db:"created_at"`
}

func (r *bookingRow) toModel() (model.Booking, error) {
	b := model.Booking{
		ID:               r.ID,
		UserID:           r.UserID,
		Kind:             model.BookingKind(r.Kind),
		TicketCount:      r.TicketCount,
		TotalAmountCents: r.TotalAmountCents,
		CreatedAt:        r.CreatedAt.UTC(),
	}
	if r.ShowtimeID.Valid {
		id := uint64(r.ShowtimeID.Int64)
		b.ShowtimeID = &id
	}
	if r.EventID.Valid {
		id := uint64(r.EventID.Int64)
		b.EventID = &id
	}
	if r.Seats.Valid && r.Seats.String != "" {
		if err := json.Unmarshal([]byte(r.Seats.String), &b.Seats); err != nil {
			return model.Booking{}, fmt.Errorf("decode seats of booking %s: %w", r.ID, err)
		}
	}
	return b, nil
}

// Record inserts the booking inside the given transaction and returns its
// identifier.  The caller must commit or roll back.
func (r *BookingStore) Record(ctx context.Context, tx txn.Tx, b model.Booking) (string, error) {
	stx, err := unwrap(tx)
	if err != nil {
		return "", err
	}
	var seats sql.NullString
	if len(b.Seats) > 0 {
		raw, err := json.Marshal(b.Seats)
		if err != nil {
			return "", fmt.Errorf("encode seats: %w", err)
		}
		seats = sql.NullString{String: string(raw), Valid: true}
	}
	const q = `INSERT INTO bookings (id, user_id, kind, showtime_id, event_id, seats, ticket_count, total_amount_cents, created_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = stx.ExecContext(ctx, q,
		b.ID, b.UserID, string(b.Kind), nullableID(b.ShowtimeID), nullableID(b.EventID),
		seats, b.TicketCount, b.TotalAmountCents, b.CreatedAt.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("insert booking: %w", classify(err))
	}
	return b.ID, nil
}

// ListForUser returns the user's bookings, most recent first.  When the
// user has none, an empty slice is returned.
func (r *BookingStore) ListForUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	const q = `SELECT id, user_id, kind, showtime_id, event_id, seats, ticket_count, total_amount_cents, created_at
	           FROM bookings
	           WHERE user_id = ?
	           ORDER BY created_at DESC, id DESC`
	var rows []bookingRow
	if err := r.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	out := make([]model.Booking, 0, len(rows))
	for i := range rows {
		b, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func nullableID(id *uint64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*id), Valid: true}
}
