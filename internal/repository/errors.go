package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/romanzh1/english-tutor/internal/models"
)

// StorageError is returned by every failing storage operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Unavailable reports whether the store could not be reached or locked in time.
func (e *StorageError) Unavailable() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) || errors.Is(e.Err, driver.ErrBadConn) || errors.Is(e.Err, sql.ErrConnDone) {
		return true
	}

	msg := strings.ToLower(e.Err.Error())
	for _, s := range []string{"database is locked", "sqlite_busy", "connection refused", "unable to open database"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// IsUnavailable reports whether err carries a StorageError for an unreachable store.
func IsUnavailable(err error) bool {
	var se *StorageError
	return errors.As(err, &se) && se.Unavailable()
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}

	var se *StorageError
	if errors.As(err, &se) {
		return err
	}

	if errors.Is(err, sql.ErrNoRows) {
		err = fmt.Errorf("%w: %w", models.ErrNotFound, err)
	}
	return &StorageError{Op: op, Err: err}
}
