package repository

import (
	"context"
	"errors"

	"github.com/go-sql-driver/mysql"
)

const (
	mysqlErrDupEntry        = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// classify maps driver errors onto repository sentinels.  Errors it does not
// recognise are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlErrDupEntry:
			return ErrDuplicateSeat
		case mysqlErrLockWaitTimeout, mysqlErrDeadlock:
			return ErrLockTimeout
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrLockTimeout
	}
	return err
}
