package crud

import (
	"fmt"
	"sort"
	"strings"
)

// TableSpec declares one table the engine may touch.
//
// PrimaryKey is optional; without it callers must name the key column for
// Get/Update/Remove, and List falls back to ordinal ordering. Columns is
// optional too; when set, every column the caller names must be one of them.
type TableSpec struct {
	Name       string
	PrimaryKey string
	Columns    []string
}

// Table is an allowlisted table. It can only be obtained from a Registry, so
// holding one means the name already passed the allowlist.
type Table struct {
	name       string
	primaryKey string
	columns    map[string]string // lower -> canonical
}

func (t Table) Name() string       { return t.name }
func (t Table) PrimaryKey() string { return t.primaryKey }

// Column validates a caller-supplied column name for this table and returns
// the name to emit. With no known columns the name must also avoid reserved
// words; with known columns membership is enough, so a registered column
// such as "order" stays addressable.
func (t Table) Column(name string) (string, error) {
	if len(t.columns) == 0 {
		if err := ValidateIdentifier(name); err != nil {
			return "", err
		}
		return name, nil
	}
	if err := checkGrammar("column", name); err != nil {
		return "", err
	}
	canonical, ok := t.columns[strings.ToLower(name)]
	if !ok {
		return "", invalidIdent("column", name, "is not a column of "+t.name)
	}
	return canonical, nil
}

// key resolves the key column for single-row operations.
func (t Table) key(requested string) (string, error) {
	if requested == "" {
		if t.primaryKey == "" {
			return "", invalidIdent("primary key", "", "is required for table "+t.name)
		}
		return t.primaryKey, nil
	}
	return t.Column(requested)
}

// Registry is the immutable allowlist of tables. Lookups are
// case-insensitive and return the canonical table name.
type Registry struct {
	tables map[string]Table
	names  []string
}

// NewRegistry builds a registry. Table and key names must be plain
// identifiers and table names must be unique ignoring case.
func NewRegistry(specs ...TableSpec) (*Registry, error) {
	r := &Registry{tables: make(map[string]Table, len(specs))}

	for _, s := range specs {
		if err := checkGrammar("table", s.Name); err != nil {
			return nil, err
		}
		lower := strings.ToLower(s.Name)
		if _, dup := r.tables[lower]; dup {
			return nil, fmt.Errorf("crud: table %q registered twice", s.Name)
		}

		t := Table{name: s.Name}
		if len(s.Columns) > 0 {
			t.columns = make(map[string]string, len(s.Columns))
			for _, c := range s.Columns {
				if err := checkGrammar("column", c); err != nil {
					return nil, err
				}
				t.columns[strings.ToLower(c)] = c
			}
		}
		if s.PrimaryKey != "" {
			if err := checkGrammar("primary key", s.PrimaryKey); err != nil {
				return nil, err
			}
			if t.columns != nil {
				if _, ok := t.columns[strings.ToLower(s.PrimaryKey)]; !ok {
					return nil, fmt.Errorf("crud: primary key %q is not a column of %q", s.PrimaryKey, s.Name)
				}
			}
			t.primaryKey = s.PrimaryKey
		}

		r.tables[lower] = t
		r.names = append(r.names, s.Name)
	}

	sort.Strings(r.names)
	return r, nil
}

// MustRegistry is NewRegistry for package-level defaults.
func MustRegistry(specs ...TableSpec) *Registry {
	r, err := NewRegistry(specs...)
	if err != nil {
		panic(err)
	}
	return r
}

// Validate returns the allowlisted table named name.
func (r *Registry) Validate(name string) (Table, error) {
	t, ok := r.tables[strings.ToLower(name)]
	if !ok {
		return Table{}, fmt.Errorf("%w: %q (allowed tables: %s)",
			ErrDisallowedTable, name, strings.Join(r.names, ", "))
	}
	return t, nil
}

// Allowed reports whether name is allowlisted.
func (r *Registry) Allowed(name string) bool {
	_, ok := r.tables[strings.ToLower(name)]
	return ok
}

// Tables lists the canonical table names in sorted order.
func (r *Registry) Tables() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}
