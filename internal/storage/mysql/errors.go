package mysql

import (
	"database/sql"
	"errors"
	"fmt"

	godrv "github.com/go-sql-driver/mysql"

	"github.com/flowyard/flowyard/internal/storage"
)

// MySQL server error numbers we translate or retry on.
const (
	errDupEntry        = 1062
	errNoSuchTable     = 1146
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

// wrapErr wraps a database error with operation context, translating
// sql.ErrNoRows and the relevant MySQL error numbers into the storage
// sentinels so callers never match on driver types.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	var me *godrv.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case errDupEntry:
			return fmt.Errorf("%s: %w", op, storage.ErrDuplicate)
		case errNoSuchTable:
			return fmt.Errorf("%s: %w", op, storage.ErrNotInitialized)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isRetryable reports whether the error is a transient serialization failure
// (deadlock or lock wait timeout) worth retrying the whole transaction for.
func isRetryable(err error) bool {
	var me *godrv.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	return me.Number == errDeadlock || me.Number == errLockWaitTimeout
}
