package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/cinema-booking/internal/txn"
)

// Tx wraps sqlx.Tx so it satisfies txn.Tx.  Rollback after Commit is a
// no-op, allowing callers to defer it unconditionally.
type Tx struct {
	*sqlx.Tx
}

// Commit commits the transaction.
func (t *Tx) Commit() error { return classify(t.Tx.Commit()) }

// Rollback aborts the transaction.  sql.ErrTxDone is swallowed.
func (t *Tx) Rollback() error {
	if err := t.Tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// TxManager opens READ COMMITTED transactions with a bounded InnoDB lock
// wait.  READ COMMITTED keeps locking reads free of gap locks; ordering
// between reservations of one showtime comes from the showtime row lock.
type TxManager struct {
	db       *sqlx.DB
	lockWait time.Duration
}

// NewTxManager returns a TxManager bound to db.  lockWait is rounded up to
// whole seconds because innodb_lock_wait_timeout has second granularity.
func NewTxManager(db *sqlx.DB, lockWait time.Duration) *TxManager {
	return &TxManager{db: db, lockWait: lockWait}
}

// Begin opens a transaction and applies the lock wait bound to its session.
func (m *TxManager) Begin(ctx context.Context) (txn.Tx, error) {
	tx, err := m.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	q := fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", lockWaitSeconds(m.lockWait))
	if _, err := tx.ExecContext(ctx, q); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("set lock wait: %w", err)
	}
	return &Tx{Tx: tx}, nil
}

func lockWaitSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// unwrap extracts the sqlx transaction from a txn.Tx handle.
func unwrap(tx txn.Tx) (*sqlx.Tx, error) {
	if w, ok := tx.(*Tx); ok && w != nil {
		return w.Tx, nil
	}
	return nil, ErrForeignTx
}
