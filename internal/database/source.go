package database

import (
	"context"
	"database/sql"
	"strings"

	"github.com/deppfellow/erp-crud/internal/crud"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolSource hands the CRUD engine connections from a pgx pool.
type PoolSource struct {
	pool *pgxpool.Pool
}

var _ crud.Source = (*PoolSource)(nil)

func NewPoolSource(pool *pgxpool.Pool) *PoolSource {
	return &PoolSource{pool: pool}
}

func (s *PoolSource) Dialect() crud.Dialect { return crud.Postgres }

// Acquire checks a connection out of the pool and pings it, so a
// connection the server has dropped is reported here rather than on the
// first statement.
func (s *PoolSource) Acquire(ctx context.Context) (crud.Conn, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Release()
		return nil, err
	}
	return &poolConn{conn: conn}, nil
}

type poolConn struct {
	conn *pgxpool.Conn
}

func (c *poolConn) Query(ctx context.Context, query string, args ...any) (crud.Rows, error) {
	rows, err := c.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &pgxRows{rows: rows}, nil
}

func (c *poolConn) Exec(ctx context.Context, query string, args ...any) (crud.ExecResult, error) {
	tag, err := c.conn.Exec(ctx, query, args...)
	if err != nil {
		return crud.ExecResult{}, err
	}
	return crud.ExecResult{RowsAffected: tag.RowsAffected()}, nil
}

func (c *poolConn) Release() { c.conn.Release() }

type pgxRows struct {
	rows pgx.Rows
	cols []string
}

func (r *pgxRows) Columns() []string {
	if r.cols == nil {
		fields := r.rows.FieldDescriptions()
		r.cols = make([]string, len(fields))
		for i, f := range fields {
			r.cols[i] = f.Name
		}
	}
	return r.cols
}

func (r *pgxRows) Next() bool             { return r.rows.Next() }
func (r *pgxRows) Values() ([]any, error) { return r.rows.Values() }
func (r *pgxRows) Err() error             { return r.rows.Err() }
func (r *pgxRows) Close()                 { r.rows.Close() }

// SQLSource hands the CRUD engine connections from a database/sql pool.
type SQLSource struct {
	db      *sql.DB
	dialect crud.Dialect
}

var _ crud.Source = (*SQLSource)(nil)

func NewSQLSource(db *sql.DB, dialect crud.Dialect) *SQLSource {
	return &SQLSource{db: db, dialect: dialect}
}

func (s *SQLSource) Dialect() crud.Dialect { return s.dialect }

// Acquire pins one pooled connection and pings it.
func (s *SQLSource) Acquire(ctx context.Context) (crud.Conn, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return &sqlConn{conn: conn}, nil
}

type sqlConn struct {
	conn *sql.Conn
}

func (c *sqlConn) Query(ctx context.Context, query string, args ...any) (crud.Rows, error) {
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, err
	}

	// Drivers such as mysql hand back text columns as []byte; only keep
	// bytes for columns the database itself calls binary.
	binary := make([]bool, len(cols))
	if types, err := rows.ColumnTypes(); err == nil {
		for i, ct := range types {
			binary[i] = isBinaryType(ct.DatabaseTypeName())
		}
	}
	return &sqlRows{rows: rows, cols: cols, binary: binary}, nil
}

func (c *sqlConn) Exec(ctx context.Context, query string, args ...any) (crud.ExecResult, error) {
	res, err := c.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return crud.ExecResult{}, err
	}
	out := crud.ExecResult{}
	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	if id, err := res.LastInsertId(); err == nil {
		out.LastInsertID = id
		out.HasLastInsertID = true
	}
	return out, nil
}

// Release returns the connection to the database/sql pool.
func (c *sqlConn) Release() { _ = c.conn.Close() }

type sqlRows struct {
	rows   *sql.Rows
	cols   []string
	binary []bool
}

func (r *sqlRows) Columns() []string { return r.cols }
func (r *sqlRows) Next() bool        { return r.rows.Next() }
func (r *sqlRows) Err() error        { return r.rows.Err() }
func (r *sqlRows) Close()            { _ = r.rows.Close() }

func (r *sqlRows) Values() ([]any, error) {
	vals := make([]any, len(r.cols))
	ptrs := make([]any, len(r.cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	for i, v := range vals {
		if b, ok := v.([]byte); ok && !r.binary[i] {
			vals[i] = string(b)
		}
	}
	return vals, nil
}

func isBinaryType(name string) bool {
	name = strings.ToUpper(name)
	switch {
	case strings.Contains(name, "BLOB"),
		strings.Contains(name, "BINARY"),
		name == "BYTEA",
		name == "IMAGE":
		return true
	}
	return false
}
