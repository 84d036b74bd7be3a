package sqlerr

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/deppfellow/erp-crud/internal/crud"
	"github.com/deppfellow/erp-crud/internal/errs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrCode reports the Code of the first database error in err's chain, or
// Other when there is none.
func ErrCode(err error) Code {
	if sqlErr, ok := Convert(err); ok {
		return sqlErr.Code
	}
	return Other
}

// ConvertPgError maps a Postgres error, keeping the SQLSTATE and the
// schema details pgx reports alongside it.
func ConvertPgError(src *pgconn.PgError) *Error {
	return &Error{
		Code:           MapCode(src.Code),
		Severity:       MapSeverity(src.Severity),
		DatabaseCode:   src.Code,
		Message:        src.Message,
		SchemaName:     src.SchemaName,
		TableName:      src.TableName,
		ColumnName:     src.ColumnName,
		DataTypeName:   src.DataTypeName,
		ConstraintName: src.ConstraintName,
		driverErr:      src,
	}
}

// generateErrorCode builds a machine-readable code such as
// COURSE_ALREADY_EXISTS from the table and the violation.
func generateErrorCode(tableName string, errType Code) string {
	domain := strings.ToUpper(singular(tableName))
	if domain == "" {
		domain = "RECORD"
	}

	action := "ERROR"
	switch errType {
	case ForeignKeyViolation:
		action = "NOT_FOUND"
	case UniqueViolation:
		action = "ALREADY_EXISTS"
	case NotNullViolation:
		action = "REQUIRED"
	case CheckViolation:
		action = "INVALID"
	case InvalidText:
		action = "INVALID_VALUE"
	}

	return fmt.Sprintf("%s_%s", domain, action)
}

func formatUserFriendlyMessage(sqlErr *Error) string {
	entityName := getEntityName(sqlErr.TableName, sqlErr.ColumnName)

	switch sqlErr.Code {
	case ForeignKeyViolation:
		return fmt.Sprintf("The referenced %s does not exist", entityName)

	case UniqueViolation:
		// "identifier" is swapped for the column name when it can be found.
		return fmt.Sprintf("A %s with this identifier already exists", entityName)

	case NotNullViolation:
		fieldName := humanizeText(sqlErr.ColumnName)
		if fieldName == "" {
			fieldName = "field"
		}
		return fmt.Sprintf("The %s is required", fieldName)

	case CheckViolation:
		if fieldName := humanizeText(sqlErr.ColumnName); fieldName != "" {
			return fmt.Sprintf("The %s value does not meet required conditions", fieldName)
		}
		return "One or more values do not meet required conditions"

	default:
		return "An error occurred while processing your request"
	}
}

// getEntityName prefers the referenced entity of a *_id column (dept_id
// gives "Dept"), then the table name, then "record".
func getEntityName(tableName, columnName string) string {
	lower := strings.ToLower(columnName)
	if strings.HasSuffix(lower, "_id") && len(lower) > len("_id") {
		return humanizeText(strings.TrimSuffix(lower, "_id"))
	}
	if tableName != "" {
		return humanizeText(singular(tableName))
	}
	return "record"
}

// singular drops one trailing "s", leaving words like "class" alone.
func singular(name string) string {
	lower := strings.ToLower(name)
	if len(name) > 1 && strings.HasSuffix(lower, "s") && !strings.HasSuffix(lower, "ss") {
		return name[:len(name)-1]
	}
	return name
}

// humanizeText turns snake_case into Title Case: "course_code" gives
// "Course Code".
func humanizeText(text string) string {
	if text == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.ReplaceAll(text, "_", " "))
}

// extractColumnForUniqueViolation guesses the column from a constraint
// named unique_<table>_<column> or <table>_<column>_key.
func extractColumnForUniqueViolation(constraintName string) string {
	if constraintName == "" {
		return ""
	}

	if strings.HasPrefix(constraintName, "unique_") {
		parts := strings.Split(constraintName, "_")
		if len(parts) >= 3 {
			return parts[len(parts)-1]
		}
	}

	matches := uniqueKeyPattern.FindStringSubmatch(constraintName)
	if len(matches) > 1 {
		return matches[1]
	}

	return ""
}

// Codes for CRUD engine rejections, so clients can tell a refused table
// from a malformed column without parsing messages.
var (
	codeTableNotAllowed    = "TABLE_NOT_ALLOWED"
	codeInvalidIdentifier  = "INVALID_IDENTIFIER"
	codeInvalidPage        = "INVALID_PAGE"
	codeEmptyRow           = "EMPTY_ROW"
	codeUndefinedReference = "UNDEFINED_REFERENCE"
)

var uniqueKeyPattern = regexp.MustCompile(`_([^_]+)_(?:key|ukey)$`)

// HandleError converts a CRUD engine or database error into an
// application-level *errs.HTTPError.
//
//   - *errs.HTTPError: returned unchanged
//   - engine rejections (table, identifier, page, empty row): 400
//   - connection failures: 503
//   - driver constraint errors (pgx, sqlite, mysql, sqlserver): 400
//   - ErrNoRows: 404
//   - anything else: 500
func HandleError(err error) error {
	if err == nil {
		return nil
	}

	var httpErr *errs.HTTPError
	if errors.As(err, &httpErr) {
		return err
	}

	switch {
	case errors.Is(err, crud.ErrDisallowedTable):
		return errs.NewBadRequestError(rejectionMessage(err), true, &codeTableNotAllowed, nil, nil)
	case errors.Is(err, crud.ErrInvalidIdentifier):
		return errs.NewBadRequestError(rejectionMessage(err), true, &codeInvalidIdentifier, nil, nil)
	case errors.Is(err, crud.ErrInvalidPage):
		return errs.NewBadRequestError(rejectionMessage(err), true, &codeInvalidPage, nil, nil)
	case errors.Is(err, crud.ErrEmptyRow):
		return errs.NewBadRequestError("Request body must set at least one column", true, &codeEmptyRow, nil, nil)
	case errors.Is(err, crud.ErrConnection):
		return errs.NewServiceUnavailableError("Database is unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		return errs.NewServiceUnavailableError("Database did not answer in time")
	}

	if sqlErr, ok := Convert(err); ok {
		if sqlErr.TableName == "" {
			var oe *crud.OpError
			if errors.As(err, &oe) {
				sqlErr.TableName = oe.Table
			}
		}

		errorCode := generateErrorCode(sqlErr.TableName, sqlErr.Code)
		userMessage := formatUserFriendlyMessage(sqlErr)

		switch sqlErr.Code {
		case ForeignKeyViolation:
			return errs.NewBadRequestError(userMessage, false, &errorCode, nil, nil)

		case UniqueViolation:
			columnName := sqlErr.ColumnName
			if columnName == "" {
				columnName = extractColumnForUniqueViolation(sqlErr.ConstraintName)
			}
			if columnName != "" {
				userMessage = strings.ReplaceAll(userMessage, "identifier", humanizeText(columnName))
			}
			return errs.NewBadRequestError(userMessage, true, &errorCode, nil, nil)

		case NotNullViolation:
			fieldErrors := []errs.FieldError{
				{
					Field: strings.ToLower(sqlErr.ColumnName),
					Error: "is required",
				},
			}
			return errs.NewBadRequestError(userMessage, true, &errorCode, fieldErrors, nil)

		case CheckViolation:
			return errs.NewBadRequestError(userMessage, true, &errorCode, nil, nil)

		case InvalidText:
			return errs.NewBadRequestError("A value has the wrong type for its column", true, &errorCode, nil, nil)

		case UndefinedColumn, UndefinedTable:
			// The identifier passed validation but the schema does not have it.
			return errs.NewBadRequestError("Unknown table or column", true, &codeUndefinedReference, nil, nil)

		default:
			return errs.NewInternalServerError()
		}
	}

	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		var oe *crud.OpError
		if errors.As(err, &oe) {
			return errs.NewNotFoundError(fmt.Sprintf("%s not found", getEntityName(oe.Table, "")), true, nil)
		}
		return errs.NewNotFoundError("Resource not found", false, nil)
	}

	return errs.NewInternalServerError()
}

// rejectionMessage strips the "crud <op> <table>:" prefix an OpError adds,
// leaving the part that explains the rejection.
func rejectionMessage(err error) string {
	var oe *crud.OpError
	if errors.As(err, &oe) {
		return oe.Err.Error()
	}
	return err.Error()
}
