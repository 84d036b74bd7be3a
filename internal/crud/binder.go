package crud

import (
	"github.com/deppfellow/erp-crud/internal/row"
)

// Binder hands out placeholders and keeps the bound arguments in the same
// order. Values are passed to the driver as-is; the driver owns coercion.
type Binder struct {
	dialect Dialect
	args    []any
}

func NewBinder(d Dialect) *Binder {
	return &Binder{dialect: d}
}

// Bind records v and returns its placeholder.
func (b *Binder) Bind(v row.Value) string {
	b.args = append(b.args, v.Any())
	return b.dialect.Placeholder(len(b.args))
}

// BindInt records a plain integer argument such as LIMIT or OFFSET.
func (b *Binder) BindInt(n int) string {
	return b.Bind(row.Int(int64(n)))
}

// BindRow validates every column of r against t and binds its values in row
// order. It returns the quoted column names and their placeholders.
func (b *Binder) BindRow(t Table, r *row.Row) (cols, marks []string, err error) {
	values := r.Values()
	for i, name := range r.Columns() {
		col, err := t.Column(name)
		if err != nil {
			return nil, nil, err
		}
		cols = append(cols, b.dialect.QuoteIdent(col))
		marks = append(marks, b.Bind(values[i]))
	}
	return cols, marks, nil
}

func (b *Binder) Args() []any { return b.args }
