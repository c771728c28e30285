// Package txn defines the transaction handle shared by the reservation
// service and the stores it coordinates.  Stores type-assert the handle back
// to their own implementation, so a Tx from one backend must never be passed
// to another.
package txn

import "context"

// Tx is an open unit of work.  Rollback after a successful Commit is a no-op,
// which lets callers defer Rollback unconditionally.
type Tx interface {
	Commit() error
	Rollback() error
}

// Manager opens transactions.
type Manager interface {
	Begin(ctx context.Context) (Tx, error)
}
