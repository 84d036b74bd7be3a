package crud

import (
	"context"
	"errors"
	"sync"
)

// fakeSource is an in-memory Source that records every statement and
// counts connection checkouts.
type fakeSource struct {
	dialect Dialect

	mu         sync.Mutex
	acquireErr error
	acquired   int
	released   int
	statements []Statement

	// results are handed out in order, one per Query call.
	results []fakeRows
	exec    ExecResult
	execErr error
}

func newFakeSource(d Dialect) *fakeSource {
	return &fakeSource{dialect: d}
}

func (s *fakeSource) Dialect() Dialect { return s.dialect }

func (s *fakeSource) Acquire(context.Context) (Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acquireErr != nil {
		return nil, s.acquireErr
	}
	s.acquired++
	return &fakeConn{src: s}, nil
}

func (s *fakeSource) push(cols []string, data ...[]any) {
	s.results = append(s.results, fakeRows{cols: cols, data: data, pos: -1})
}

func (s *fakeSource) last() Statement {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statements) == 0 {
		return Statement{}
	}
	return s.statements[len(s.statements)-1]
}

type fakeConn struct {
	src      *fakeSource
	released bool
}

func (c *fakeConn) Query(_ context.Context, sql string, args ...any) (Rows, error) {
	c.src.mu.Lock()
	defer c.src.mu.Unlock()
	c.src.statements = append(c.src.statements, Statement{SQL: sql, Args: args})
	if len(c.src.results) == 0 {
		return &fakeRows{pos: -1}, nil
	}
	rs := c.src.results[0]
	c.src.results = c.src.results[1:]
	return &rs, nil
}

func (c *fakeConn) Exec(_ context.Context, sql string, args ...any) (ExecResult, error) {
	c.src.mu.Lock()
	defer c.src.mu.Unlock()
	c.src.statements = append(c.src.statements, Statement{SQL: sql, Args: args})
	return c.src.exec, c.src.execErr
}

func (c *fakeConn) Release() {
	c.src.mu.Lock()
	defer c.src.mu.Unlock()
	if c.released {
		panic("connection released twice")
	}
	c.released = true
	c.src.released++
}

type fakeRows struct {
	cols   []string
	data   [][]any
	pos    int
	err    error
	closed bool
}

func (r *fakeRows) Columns() []string { return r.cols }

func (r *fakeRows) Next() bool {
	if r.closed || r.pos+1 >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Values() ([]any, error) {
	if r.pos < 0 || r.pos >= len(r.data) {
		return nil, errors.New("no current row")
	}
	return r.data[r.pos], nil
}

func (r *fakeRows) Err() error { return r.err }
func (r *fakeRows) Close()     { r.closed = true }
