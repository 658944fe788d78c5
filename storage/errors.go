package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrStoreConnection indicates the store could not be reached or the
// connection dropped mid-operation.
type ErrStoreConnection struct {
	Err error
}

func (e ErrStoreConnection) Error() string {
	return fmt.Errorf("store connection: %w", e.Err).Error()
}

func (e ErrStoreConnection) Unwrap() error {
	return e.Err
}

// ErrStoreExecution indicates the store rejected a statement.
type ErrStoreExecution struct {
	Op       string
	SQLState string
	Err      error
}

func (e ErrStoreExecution) Error() string {
	if e.SQLState != "" {
		return fmt.Errorf("store %s (sqlstate %s): %w", e.Op, e.SQLState, e.Err).Error()
	}
	return fmt.Errorf("store %s: %w", e.Op, e.Err).Error()
}

func (e ErrStoreExecution) Unwrap() error {
	return e.Err
}

// classifyError sorts a driver error into the connection or execution kind.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}
	if isConnectionError(err) {
		return ErrStoreConnection{Err: fmt.Errorf("%s: %w", op, err)}
	}
	exec := ErrStoreExecution{Op: op, Err: err}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		exec.SQLState = pgErr.Code
	}
	return exec
}

func isConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
