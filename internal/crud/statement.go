package crud

import (
	"fmt"
	"strings"

	"github.com/deppfellow/erp-crud/internal/row"
)

// Statement is a SQL text plus its positional arguments.
type Statement struct {
	SQL  string
	Args []any
}

// Builder turns validated inputs into a Statement. Every identifier that ends
// up in Statement.SQL has gone through Table or ValidateIdentifier first.
type Builder interface {
	Build(d Dialect) (Statement, error)
}

// SelectPage reads one page of a table.
type SelectPage struct {
	Table   Table
	OrderBy string
	Limit   int
	Offset  int
}

func (q SelectPage) Build(d Dialect) (Statement, error) {
	if q.Limit < 0 || q.Offset < 0 {
		return Statement{}, fmt.Errorf("%w: limit %d offset %d", ErrInvalidPage, q.Limit, q.Offset)
	}

	order := "1"
	switch {
	case q.OrderBy != "":
		col, err := q.Table.Column(q.OrderBy)
		if err != nil {
			return Statement{}, err
		}
		order = d.QuoteIdent(col)
	case q.Table.PrimaryKey() != "":
		order = d.QuoteIdent(q.Table.PrimaryKey())
	}

	b := NewBinder(d)
	limit := b.BindInt(q.Limit)
	offset := b.BindInt(q.Offset)
	sql := fmt.Sprintf("SELECT * FROM %s ORDER BY %s %s",
		d.QuoteIdent(q.Table.Name()), order, d.Page(limit, offset))
	return Statement{SQL: sql, Args: b.Args()}, nil
}

// SelectOne reads the row whose Key column equals ID.
type SelectOne struct {
	Table Table
	Key   string
	ID    row.Value
}

func (q SelectOne) Build(d Dialect) (Statement, error) {
	key, err := q.Table.key(q.Key)
	if err != nil {
		return Statement{}, err
	}

	b := NewBinder(d)
	sql := fmt.Sprintf("SELECT * FROM %s WHERE %s = %s",
		d.QuoteIdent(q.Table.Name()), d.QuoteIdent(key), b.Bind(q.ID))
	return Statement{SQL: sql, Args: b.Args()}, nil
}

// SelectRowID reads the row with the given implicit row id. Only dialects
// with a row id column support it.
type SelectRowID struct {
	Table Table
	RowID int64
}

func (q SelectRowID) Build(d Dialect) (Statement, error) {
	rd, ok := d.(rowIDDialect)
	if !ok {
		return Statement{}, fmt.Errorf("%s has no implicit row id", d.Name())
	}

	b := NewBinder(d)
	sql := fmt.Sprintf("SELECT * FROM %s WHERE %s = %s",
		d.QuoteIdent(q.Table.Name()), rd.RowID(), b.Bind(row.Int(q.RowID)))
	return Statement{SQL: sql, Args: b.Args()}, nil
}

// Insert adds one row. An empty row inserts column defaults.
type Insert struct {
	Table Table
	Row   *row.Row
}

func (q Insert) Build(d Dialect) (Statement, error) {
	b := NewBinder(d)
	cols, marks, err := b.BindRow(q.Table, q.Row)
	if err != nil {
		return Statement{}, err
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(d.QuoteIdent(q.Table.Name()))
	if len(cols) > 0 {
		fmt.Fprintf(&sb, " (%s)", strings.Join(cols, ", "))
	}
	output(&sb, d, "INSERTED")
	if len(cols) == 0 {
		sb.WriteString(defaultValues(d))
	} else {
		fmt.Fprintf(&sb, " VALUES (%s)", strings.Join(marks, ", "))
	}
	returning(&sb, d)
	return Statement{SQL: sb.String(), Args: b.Args()}, nil
}

// Update changes the supplied columns of the row whose Key column equals ID.
type Update struct {
	Table Table
	Key   string
	ID    row.Value
	Row   *row.Row
}

func (q Update) Build(d Dialect) (Statement, error) {
	key, err := q.Table.key(q.Key)
	if err != nil {
		return Statement{}, err
	}
	if q.Row.Len() == 0 {
		return Statement{}, ErrEmptyRow
	}

	b := NewBinder(d)
	cols, marks, err := b.BindRow(q.Table, q.Row)
	if err != nil {
		return Statement{}, err
	}

	sets := make([]string, len(cols))
	for i := range cols {
		sets[i] = cols[i] + " = " + marks[i]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "UPDATE %s SET %s", d.QuoteIdent(q.Table.Name()), strings.Join(sets, ", "))
	output(&sb, d, "INSERTED")
	fmt.Fprintf(&sb, " WHERE %s = %s", d.QuoteIdent(key), b.Bind(q.ID))
	returning(&sb, d)
	return Statement{SQL: sb.String(), Args: b.Args()}, nil
}

// Delete removes the row whose Key column equals ID.
type Delete struct {
	Table Table
	Key   string
	ID    row.Value
}

func (q Delete) Build(d Dialect) (Statement, error) {
	key, err := q.Table.key(q.Key)
	if err != nil {
		return Statement{}, err
	}

	b := NewBinder(d)
	var sb strings.Builder
	fmt.Fprintf(&sb, "DELETE FROM %s", d.QuoteIdent(q.Table.Name()))
	output(&sb, d, "DELETED")
	fmt.Fprintf(&sb, " WHERE %s = %s", d.QuoteIdent(key), b.Bind(q.ID))
	returning(&sb, d)
	return Statement{SQL: sb.String(), Args: b.Args()}, nil
}

// returning appends a trailing RETURNING clause where the dialect uses one.
func returning(sb *strings.Builder, d Dialect) {
	if _, ok := d.(outputDialect); ok || !d.Returning() {
		return
	}
	sb.WriteString(" RETURNING *")
}

func defaultValues(d Dialect) string {
	if dd, ok := d.(defaultsDialect); ok {
		return dd.DefaultValues()
	}
	return " DEFAULT VALUES"
}

// output writes an OUTPUT clause for dialects that place it mid-statement.
func output(sb *strings.Builder, d Dialect, pseudoTable string) {
	if od, ok := d.(outputDialect); ok && d.Returning() {
		sb.WriteString(" ")
		sb.WriteString(od.Output(pseudoTable))
	}
}
