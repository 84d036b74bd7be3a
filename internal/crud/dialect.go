package crud

import (
	"strconv"
	"strings"
)

// Dialect is the per-database part of statement generation.
type Dialect interface {
	Name() string
	// QuoteIdent wraps an already validated identifier in the dialect's
	// quoting characters.
	QuoteIdent(name string) string
	// Placeholder returns the marker for the n-th bound argument (1-based).
	Placeholder(n int) string
	// Page renders the row window that follows ORDER BY.
	Page(limit, offset string) string
	// Returning reports whether INSERT/UPDATE/DELETE can hand back the
	// affected row in the same statement.
	Returning() bool
}

// outputDialect is implemented by dialects that return affected rows with an
// OUTPUT clause in the middle of the statement instead of a trailing
// RETURNING.
type outputDialect interface {
	Output(pseudoTable string) string
}

// defaultsDialect is implemented by dialects that spell an all-defaults
// INSERT differently from " DEFAULT VALUES".
type defaultsDialect interface {
	DefaultValues() string
}

// rowIDDialect is implemented by dialects whose tables carry an implicit row
// id that the driver's last insert id refers to, whatever the primary key.
type rowIDDialect interface {
	RowID() string
}

// Postgres quotes with double quotes and numbers placeholders $1..$n.
var Postgres Dialect = postgres{}

type postgres struct{}

func (postgres) Name() string                  { return "postgres" }
func (postgres) QuoteIdent(name string) string { return doubleQuote(name) }
func (postgres) Placeholder(n int) string      { return "$" + strconv.Itoa(n) }
func (postgres) Page(limit, offset string) string {
	return "LIMIT " + limit + " OFFSET " + offset
}
func (postgres) Returning() bool { return true }

// SQLite uses positional ? placeholders. RETURNING needs SQLite 3.35; pass
// false to make the engine re-read rows instead.
func SQLite(returning bool) Dialect {
	return sqlite{returning: returning}
}

type sqlite struct{ returning bool }

func (sqlite) Name() string                  { return "sqlite" }
func (sqlite) QuoteIdent(name string) string { return doubleQuote(name) }
func (sqlite) Placeholder(int) string        { return "?" }
func (sqlite) Page(limit, offset string) string {
	return "LIMIT " + limit + " OFFSET " + offset
}
func (s sqlite) Returning() bool { return s.returning }
func (sqlite) RowID() string     { return "rowid" }

// MySQL quotes with backticks. It has no RETURNING, so writes are followed
// by a read on the same connection.
var MySQL Dialect = mysql{}

type mysql struct{}

func (mysql) Name() string { return "mysql" }
func (mysql) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
func (mysql) Placeholder(int) string { return "?" }
func (mysql) Page(limit, offset string) string {
	return "LIMIT " + limit + " OFFSET " + offset
}
func (mysql) Returning() bool       { return false }
func (mysql) DefaultValues() string { return " () VALUES ()" }

// SQLServer quotes with brackets, numbers placeholders @p1..@pn, pages with
// OFFSET/FETCH and returns affected rows through OUTPUT.
var SQLServer Dialect = sqlServer{}

type sqlServer struct{}

func (sqlServer) Name() string { return "sqlserver" }
func (sqlServer) QuoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}
func (sqlServer) Placeholder(n int) string { return "@p" + strconv.Itoa(n) }
func (sqlServer) Page(limit, offset string) string {
	return "OFFSET " + offset + " ROWS FETCH NEXT " + limit + " ROWS ONLY"
}
func (sqlServer) Returning() bool { return true }
func (sqlServer) Output(pseudoTable string) string {
	return "OUTPUT " + pseudoTable + ".*"
}

// DialectByName maps a configured driver name to its dialect.
func DialectByName(name string, returning bool) (Dialect, bool) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "pgx":
		return Postgres, true
	case "sqlite", "sqlite3":
		return SQLite(returning), true
	case "mysql", "mariadb":
		return MySQL, true
	case "sqlserver", "mssql":
		return SQLServer, true
	}
	return nil, false
}

func doubleQuote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
