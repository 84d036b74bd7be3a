package crud

import (
	"context"
	"fmt"
)

// Rows is a forward-only cursor over a result set.
type Rows interface {
	Columns() []string
	Next() bool
	// Values returns the current row's column values as decoded by the
	// driver.
	Values() ([]any, error)
	Err() error
	Close()
}

// ExecResult describes a statement run without a result set.
type ExecResult struct {
	RowsAffected int64
	// LastInsertID is only meaningful when HasLastInsertID is set.
	LastInsertID    int64
	HasLastInsertID bool
}

// Conn is a single live connection checked out for one engine call.
type Conn interface {
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (ExecResult, error)
	// Release returns the connection to whatever it was acquired from.
	Release()
}

// Source hands out live connections. Acquire must return a connection that
// is open and usable, opening or re-validating one if needed. The Source
// itself (pool, *sql.DB) is owned by the caller; the engine never closes it.
type Source interface {
	Acquire(ctx context.Context) (Conn, error)
	Dialect() Dialect
}

// acquire checks out a connection, classifying any failure as ErrConnection.
func acquire(ctx context.Context, src Source) (Conn, error) {
	conn, err := src.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return conn, nil
}
