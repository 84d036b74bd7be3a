package crud

import (
	"regexp"
	"strings"
)

// maxIdentLen mirrors PostgreSQL's NAMEDATALEN-1.
const maxIdentLen = 63

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reservedWords are rejected as caller-supplied column names even though the
// engine always quotes identifiers. Registry table names are exempt; they are
// fixed by the operator.
var reservedWords = map[string]struct{}{
	"all": {}, "alter": {}, "and": {}, "as": {}, "case": {}, "create": {},
	"delete": {}, "distinct": {}, "drop": {}, "exec": {}, "execute": {},
	"from": {}, "grant": {}, "group": {}, "having": {}, "insert": {},
	"into": {}, "join": {}, "limit": {}, "not": {}, "null": {}, "offset": {},
	"or": {}, "order": {}, "revoke": {}, "select": {}, "table": {},
	"truncate": {}, "union": {}, "update": {}, "where": {}, "with": {},
}

func checkGrammar(kind, name string) error {
	switch {
	case name == "":
		return invalidIdent(kind, name, "is empty")
	case len(name) > maxIdentLen:
		return invalidIdent(kind, name, "is too long")
	case !identPattern.MatchString(name):
		return invalidIdent(kind, name, "must match [A-Za-z_][A-Za-z0-9_]*")
	}
	return nil
}

// ValidateIdentifier checks a caller-supplied column name: it must be a plain
// SQL identifier and must not be a reserved word.
func ValidateIdentifier(name string) error {
	if err := checkGrammar("column", name); err != nil {
		return err
	}
	if _, ok := reservedWords[strings.ToLower(name)]; ok {
		return invalidIdent("column", name, "is a reserved word")
	}
	return nil
}

// IsPlainIdentifier reports whether name matches the identifier grammar.
// Reserved words pass; Table.Column decides them against the table.
func IsPlainIdentifier(name string) bool {
	return checkGrammar("column", name) == nil
}
