package crud

import (
	"fmt"

	"github.com/deppfellow/erp-crud/internal/row"
)

// Materialize drains rs into rows, one column per result column in result
// order, and closes it.
func Materialize(rs Rows) ([]*row.Row, error) {
	defer rs.Close()

	cols := rs.Columns()
	out := make([]*row.Row, 0)
	for rs.Next() {
		r, err := scan(rs, cols)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rs.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// MaterializeOne returns the first row of rs, or nil if there is none. The
// rest of the result set is discarded.
func MaterializeOne(rs Rows) (*row.Row, error) {
	defer rs.Close()

	cols := rs.Columns()
	if !rs.Next() {
		return nil, rs.Err()
	}
	r, err := scan(rs, cols)
	if err != nil {
		return nil, err
	}
	// Drain so drivers that stream surface late errors.
	for rs.Next() {
	}
	if err := rs.Err(); err != nil {
		return nil, err
	}
	return r, nil
}

func scan(rs Rows, cols []string) (*row.Row, error) {
	vals, err := rs.Values()
	if err != nil {
		return nil, err
	}
	if len(vals) != len(cols) {
		return nil, fmt.Errorf("crud: result has %d columns but %d values", len(cols), len(vals))
	}

	r := row.New()
	for i, c := range cols {
		r.Set(c, row.ValueOf(vals[i]))
	}
	return r, nil
}
