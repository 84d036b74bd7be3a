// Package crud is a schema-agnostic CRUD engine over relational tables.
//
// Callers name a table at runtime and pass untyped rows. The engine checks
// the table against a Registry allowlist, checks every column name, builds a
// parameterized statement for the Source's Dialect, runs it on a connection
// acquired for that one call and converts the result into row.Row values.
//
// Validation always happens before a connection is acquired, so a rejected
// request never reaches the database.
package crud

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/deppfellow/erp-crud/internal/row"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Page selects a window of rows for List. A nil Limit means the engine
// default; limits above the engine maximum are clamped. A zero Limit asks
// for no rows.
type Page struct {
	Limit   *int
	Offset  int
	OrderBy string
}

// Limit returns a page size for Page.Limit.
func Limit(n int) *int { return &n }

// Engine runs CRUD operations. It is safe for concurrent use as long as the
// Source is.
type Engine struct {
	registry     *Registry
	source       Source
	logger       zerolog.Logger
	defaultLimit int
	maxLimit     int

	// slowThreshold raises statements at least this slow to warn level.
	slowThreshold time.Duration
}

type Option func(*Engine)

// WithLimits overrides the default and maximum page sizes.
func WithLimits(def, max int) Option {
	return func(e *Engine) {
		if def > 0 {
			e.defaultLimit = def
		}
		if max > 0 {
			e.maxLimit = max
		}
	}
}

// WithLogger makes the engine log each statement at debug level.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithSlowThreshold logs statements taking at least d at warn level.
func WithSlowThreshold(d time.Duration) Option {
	return func(e *Engine) { e.slowThreshold = d }
}

func NewEngine(registry *Registry, source Source, opts ...Option) *Engine {
	e := &Engine{
		registry:     registry,
		source:       source,
		logger:       zerolog.Nop(),
		defaultLimit: DefaultLimit,
		maxLimit:     MaxLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.defaultLimit > e.maxLimit {
		e.defaultLimit = e.maxLimit
	}
	return e
}

func (e *Engine) Registry() *Registry { return e.registry }
func (e *Engine) Dialect() Dialect    { return e.source.Dialect() }

// List returns one page of rows from table.
func (e *Engine) List(ctx context.Context, table string, page Page) ([]*row.Row, error) {
	t, err := e.registry.Validate(table)
	if err != nil {
		return nil, opErr(OpList, table, err)
	}

	limit := e.defaultLimit
	if page.Limit != nil {
		limit = *page.Limit
	}
	if limit < 0 || page.Offset < 0 {
		return nil, opErr(OpList, t.Name(), ErrInvalidPage)
	}
	if limit > e.maxLimit {
		limit = e.maxLimit
	}

	stmt, err := SelectPage{Table: t, OrderBy: page.OrderBy, Limit: limit, Offset: page.Offset}.Build(e.Dialect())
	if err != nil {
		return nil, opErr(OpList, t.Name(), err)
	}
	// OFFSET ... FETCH NEXT 0 ROWS is an error on SQL Server.
	if limit == 0 {
		return []*row.Row{}, nil
	}

	var rows []*row.Row
	err = e.withConn(ctx, OpList, t, func(conn Conn) error {
		rs, err := e.query(ctx, conn, OpList, t, stmt)
		if err != nil {
			return err
		}
		rows, err = Materialize(rs)
		return err
	})
	return rows, err
}

// Get returns the row whose key column equals id, or nil when there is none.
// An empty key means the table's registered primary key.
func (e *Engine) Get(ctx context.Context, table, key string, id row.Value) (*row.Row, error) {
	t, err := e.registry.Validate(table)
	if err != nil {
		return nil, opErr(OpGet, table, err)
	}

	stmt, err := SelectOne{Table: t, Key: key, ID: id}.Build(e.Dialect())
	if err != nil {
		return nil, opErr(OpGet, t.Name(), err)
	}

	var out *row.Row
	err = e.withConn(ctx, OpGet, t, func(conn Conn) error {
		out, err = e.queryOne(ctx, conn, OpGet, t, stmt)
		return err
	})
	return out, err
}

// Create inserts r and returns the stored row, including columns the
// database filled in.
func (e *Engine) Create(ctx context.Context, table string, r *row.Row) (*row.Row, error) {
	t, err := e.registry.Validate(table)
	if err != nil {
		return nil, opErr(OpCreate, table, err)
	}

	d := e.Dialect()
	stmt, err := Insert{Table: t, Row: r}.Build(d)
	if err != nil {
		return nil, opErr(OpCreate, t.Name(), err)
	}

	var out *row.Row
	err = e.withConn(ctx, OpCreate, t, func(conn Conn) error {
		if d.Returning() {
			out, err = e.queryOne(ctx, conn, OpCreate, t, stmt)
			return err
		}

		res, err := e.exec(ctx, conn, OpCreate, t, stmt)
		if err != nil {
			return err
		}
		out, err = e.readBackCreated(ctx, conn, t, r, res)
		return err
	})
	return out, err
}

// readBackCreated re-reads an inserted row on dialects without RETURNING.
// The row is found by the supplied key value, by the dialect's implicit row
// id, or by an auto-increment key equal to the last insert id. When none of
// these locate it the supplied row is returned as-is.
func (e *Engine) readBackCreated(ctx context.Context, conn Conn, t Table, r *row.Row, res ExecResult) (*row.Row, error) {
	d := e.Dialect()
	pk := t.PrimaryKey()

	var id row.Value
	hasKey := false
	if pk != "" {
		id, hasKey = r.Get(pk)
	}

	var (
		stmt Statement
		err  error
	)
	_, hasRowID := d.(rowIDDialect)
	switch {
	case hasKey:
		stmt, err = SelectOne{Table: t, ID: id}.Build(d)
	case res.HasLastInsertID && hasRowID:
		stmt, err = SelectRowID{Table: t, RowID: res.LastInsertID}.Build(d)
	case res.HasLastInsertID && pk != "" && res.LastInsertID > 0:
		stmt, err = SelectOne{Table: t, ID: row.Int(res.LastInsertID)}.Build(d)
	default:
		return r.Clone(), nil
	}
	if err != nil {
		return nil, err
	}

	out, err := e.queryOne(ctx, conn, OpCreate, t, stmt)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return r.Clone(), nil
	}
	return out, nil
}

// Update applies r to the row whose key column equals id and returns the
// updated row, or nil when no row matched.
func (e *Engine) Update(ctx context.Context, table, key string, id row.Value, r *row.Row) (*row.Row, error) {
	t, err := e.registry.Validate(table)
	if err != nil {
		return nil, opErr(OpUpdate, table, err)
	}

	d := e.Dialect()
	stmt, err := Update{Table: t, Key: key, ID: id, Row: r}.Build(d)
	if err != nil {
		return nil, opErr(OpUpdate, t.Name(), err)
	}

	var out *row.Row
	err = e.withConn(ctx, OpUpdate, t, func(conn Conn) error {
		if d.Returning() {
			out, err = e.queryOne(ctx, conn, OpUpdate, t, stmt)
			return err
		}

		res, err := e.exec(ctx, conn, OpUpdate, t, stmt)
		if err != nil || res.RowsAffected == 0 {
			return err
		}

		// The update may have changed the key itself.
		col, _ := t.key(key)
		next := id
		for _, c := range r.Columns() {
			if strings.EqualFold(c, col) {
				next, _ = r.Get(c)
			}
		}
		sel, err := SelectOne{Table: t, Key: key, ID: next}.Build(d)
		if err != nil {
			return err
		}
		out, err = e.queryOne(ctx, conn, OpUpdate, t, sel)
		return err
	})
	return out, err
}

// Remove deletes the row whose key column equals id and returns it as it was
// before deletion, or nil when no row matched.
func (e *Engine) Remove(ctx context.Context, table, key string, id row.Value) (*row.Row, error) {
	t, err := e.registry.Validate(table)
	if err != nil {
		return nil, opErr(OpRemove, table, err)
	}

	d := e.Dialect()
	stmt, err := Delete{Table: t, Key: key, ID: id}.Build(d)
	if err != nil {
		return nil, opErr(OpRemove, t.Name(), err)
	}

	var out *row.Row
	err = e.withConn(ctx, OpRemove, t, func(conn Conn) error {
		if d.Returning() {
			out, err = e.queryOne(ctx, conn, OpRemove, t, stmt)
			return err
		}

		sel, err := SelectOne{Table: t, Key: key, ID: id}.Build(d)
		if err != nil {
			return err
		}
		out, err = e.queryOne(ctx, conn, OpRemove, t, sel)
		if err != nil || out == nil {
			return err
		}
		_, err = e.exec(ctx, conn, OpRemove, t, stmt)
		return err
	})
	return out, err
}

// withConn acquires a connection for a single call and always releases it.
func (e *Engine) withConn(ctx context.Context, op Op, t Table, fn func(Conn) error) error {
	conn, err := acquire(ctx, e.source)
	if err != nil {
		return opErr(op, t.Name(), err)
	}
	defer conn.Release()

	return opErr(op, t.Name(), fn(conn))
}

func (e *Engine) query(ctx context.Context, conn Conn, op Op, t Table, stmt Statement) (Rows, error) {
	start := time.Now()
	rs, err := conn.Query(ctx, stmt.SQL, stmt.Args...)
	e.logStatement(op, t, stmt, start, err)
	return rs, err
}

func (e *Engine) queryOne(ctx context.Context, conn Conn, op Op, t Table, stmt Statement) (*row.Row, error) {
	rs, err := e.query(ctx, conn, op, t, stmt)
	if err != nil {
		return nil, err
	}
	return MaterializeOne(rs)
}

func (e *Engine) exec(ctx context.Context, conn Conn, op Op, t Table, stmt Statement) (ExecResult, error) {
	start := time.Now()
	res, err := conn.Exec(ctx, stmt.SQL, stmt.Args...)
	e.logStatement(op, t, stmt, start, err)
	return res, err
}

func (e *Engine) logStatement(op Op, t Table, stmt Statement, start time.Time, err error) {
	elapsed := time.Since(start)
	slow := e.slowThreshold > 0 && elapsed >= e.slowThreshold

	ev := e.logger.Debug()
	switch {
	case err != nil:
		ev = e.logger.Warn().Err(err)
	case slow:
		ev = e.logger.Warn()
	}
	ev.Str("op", string(op)).
		Str("table", t.Name()).
		Str("sql", stmt.SQL).
		Int("args", len(stmt.Args)).
		Dur("duration", elapsed).
		Bool("slow", slow).
		Msg("crud statement")
}
