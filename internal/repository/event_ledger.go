package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/txn"
)

// EventLedger tracks capacity-only inventory for generic events.
type EventLedger struct {
	db *sqlx.DB
}

// NewEventLedger returns an EventLedger bound to the given database.
func NewEventLedger(db *sqlx.DB) *EventLedger { return &EventLedger{db: db} }

// LockForUpdate reads the event row with an exclusive lock.
func (r *EventLedger) LockForUpdate(ctx context.Context, tx txn.Tx, eventID uint64) (model.Event, error) {
	stx, err := unwrap(tx)
	if err != nil {
		return model.Event{}, err
	}
	var ev model.Event
	const q = `SELECT id, capacity, remaining_tickets FROM events WHERE id = ? FOR UPDATE`
	if err := stx.GetContext(ctx, &ev, q, eventID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Event{}, ErrNotFound
		}
		return model.Event{}, fmt.Errorf("lock event: %w", classify(err))
	}
	return ev, nil
}

// DecrementRemaining subtracts count from the event's remaining tickets.
// ErrInsufficientInventory when fewer than count remain.
func (r *EventLedger) DecrementRemaining(ctx context.Context, tx txn.Tx, eventID uint64, count int) error {
	stx, err := unwrap(tx)
	if err != nil {
		return err
	}
	const q = `UPDATE events SET remaining_tickets = remaining_tickets - ? WHERE id = ? AND remaining_tickets >= ?`
	res, err := stx.ExecContext(ctx, q, count, eventID, count)
	if err != nil {
		return fmt.Errorf("decrement event: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("decrement event: %w", err)
	}
	if n == 0 {
		return ErrInsufficientInventory
	}
	return nil
}
