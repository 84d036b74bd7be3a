package sqlerr

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	mssql "github.com/microsoft/go-mssqldb"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Convert normalizes a driver error into *Error. It reports false when err
// carries nothing a supported driver produced.
func Convert(err error) (*Error, bool) {
	var own *Error
	if errors.As(err, &own) {
		return own, true
	}

	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) {
		return ConvertPgError(pgerr), true
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return ConvertSQLiteError(liteErr), true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return ConvertMySQLError(myErr), true
	}

	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return ConvertMSSQLError(msErr), true
	}

	return nil, false
}

// sqliteConstraint matches "UNIQUE constraint failed: course.course_code".
var sqliteConstraint = regexp.MustCompile(`constraint failed: ([A-Za-z0-9_]+)\.([A-Za-z0-9_]+)`)

// ConvertSQLiteError maps a modernc SQLite error using its extended result
// code. Table and column come from the message, which is the only place
// SQLite reports them.
func ConvertSQLiteError(src *sqlite.Error) *Error {
	out := &Error{
		Code:         Other,
		Severity:     SeverityError,
		DatabaseCode: strconv.Itoa(src.Code()),
		Message:      src.Error(),
		driverErr:    src,
	}

	switch src.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		out.Code = UniqueViolation
	case sqlite3.SQLITE_CONSTRAINT_NOTNULL:
		out.Code = NotNullViolation
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		out.Code = ForeignKeyViolation
	case sqlite3.SQLITE_CONSTRAINT_CHECK:
		out.Code = CheckViolation
	}

	if m := sqliteConstraint.FindStringSubmatch(out.Message); m != nil {
		out.TableName, out.ColumnName = m[1], m[2]
	}
	return out
}

// ConvertMySQLError maps MySQL server error numbers.
func ConvertMySQLError(src *mysql.MySQLError) *Error {
	out := &Error{
		Code:         Other,
		Severity:     SeverityError,
		DatabaseCode: strconv.Itoa(int(src.Number)),
		Message:      src.Message,
		driverErr:    src,
	}

	switch src.Number {
	case 1062:
		out.Code = UniqueViolation
		// "Duplicate entry 'x' for key 'course.course_code'"
		if i := strings.LastIndex(src.Message, "for key '"); i >= 0 {
			key := strings.TrimSuffix(src.Message[i+len("for key '"):], "'")
			if dot := strings.LastIndexByte(key, '.'); dot >= 0 {
				out.TableName, key = key[:dot], key[dot+1:]
			}
			out.ConstraintName = key
		}
	case 1048, 1364:
		out.Code = NotNullViolation
		out.ColumnName = quotedName(src.Message)
	case 1216, 1451, 1452:
		out.Code = ForeignKeyViolation
	case 3819:
		out.Code = CheckViolation
	case 1054:
		out.Code = UndefinedColumn
	case 1146:
		out.Code = UndefinedTable
	}
	return out
}

// ConvertMSSQLError maps SQL Server error numbers.
func ConvertMSSQLError(src mssql.Error) *Error {
	out := &Error{
		Code:         Other,
		Severity:     SeverityError,
		DatabaseCode: strconv.Itoa(int(src.Number)),
		Message:      src.Message,
		driverErr:    src,
	}

	switch src.Number {
	case 2601, 2627:
		out.Code = UniqueViolation
	case 515:
		out.Code = NotNullViolation
		out.ColumnName = quotedName(src.Message)
	case 547:
		// 547 covers both FOREIGN KEY and CHECK conflicts.
		if strings.Contains(src.Message, "CHECK") {
			out.Code = CheckViolation
		} else {
			out.Code = ForeignKeyViolation
		}
	case 207:
		out.Code = UndefinedColumn
	case 208:
		out.Code = UndefinedTable
	}
	return out
}

// quotedName returns the first 'single-quoted' word in msg.
func quotedName(msg string) string {
	start := strings.IndexByte(msg, '\'')
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(msg[start+1:], '\'')
	if end < 0 {
		return ""
	}
	return msg[start+1 : start+1+end]
}
