package crud

import (
	"errors"
	"fmt"
)

// Sentinel causes. Callers match them with errors.Is; the concrete error
// returned by the engine is always an *OpError wrapping one of these (or a
// driver error).
var (
	ErrDisallowedTable   = errors.New("table is not allowed")
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrInvalidPage       = errors.New("invalid page")
	ErrEmptyRow          = errors.New("row has no columns")
	ErrConnection        = errors.New("database connection unavailable")
)

// Op names an engine operation.
type Op string

const (
	OpList   Op = "list"
	OpGet    Op = "get"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpRemove Op = "remove"
)

// OpError records the operation and table an error happened on.
type OpError struct {
	Op    Op
	Table string
	Err   error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("crud %s %q: %v", e.Op, e.Table, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func opErr(op Op, table string, err error) error {
	if err == nil {
		return nil
	}
	var oe *OpError
	if errors.As(err, &oe) {
		return err
	}
	return &OpError{Op: op, Table: table, Err: err}
}

func invalidIdent(kind, name, reason string) error {
	return fmt.Errorf("%w: %s %q %s", ErrInvalidIdentifier, kind, name, reason)
}
