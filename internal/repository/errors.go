// Package repository defines error types that are reused across the MySQL
// stores. These sentinel values let the reservation service distinguish
// failure scenarios without inspecting driver errors. For example,
// ErrDuplicateSeat indicates that a seat insert hit the
// (showtime_id, seat_id) primary key, while ErrLockTimeout signals that a
// row lock could not be obtained within the configured wait.
package repository

import "errors"

// ErrNotFound is returned when a showtime or event row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateSeat is returned when an occupancy insert violates seat
// uniqueness for a showtime (MySQL 1062).
var ErrDuplicateSeat = errors.New("seat already occupied")

// ErrInsufficientInventory is returned when a decrement would take the
// remaining counter below zero.
var ErrInsufficientInventory = errors.New("insufficient inventory")

// ErrLockTimeout is returned when InnoDB gave up waiting for a row lock
// (1205) or picked the transaction as a deadlock victim (1213).
var ErrLockTimeout = errors.New("lock wait timeout")

// ErrForeignTx is returned when a store receives a transaction handle that
// was not opened by TxManager.
var ErrForeignTx = errors.New("transaction not opened by the mysql store")
