// Package sqlerr turns database driver errors into API errors.
//
// Postgres (pgx), SQLite (modernc), MySQL and SQL Server errors are first
// normalized into *Error, then HandleError maps them, along with the CRUD
// engine's own rejections, onto *errs.HTTPError values with stable codes
// and messages a client can show.
package sqlerr
