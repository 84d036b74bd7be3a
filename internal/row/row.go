package row

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Row is an ordered column -> Value mapping. Column order is insertion
// order; setting an existing column replaces its value in place.
//
// A nil *Row reads as an empty row.
type Row struct {
	columns []string
	values  map[string]Value
}

// New returns an empty row.
func New() *Row {
	return &Row{values: make(map[string]Value)}
}

// Set stores v under col and returns r so calls can be chained.
func (r *Row) Set(col string, v Value) *Row {
	if r.values == nil {
		r.values = make(map[string]Value)
	}
	if _, ok := r.values[col]; !ok {
		r.columns = append(r.columns, col)
	}
	r.values[col] = v
	return r
}

// Get returns the value stored under col.
func (r *Row) Get(col string) (Value, bool) {
	if r == nil {
		return Value{}, false
	}
	v, ok := r.values[col]
	return v, ok
}

// Has reports whether col is present (a present null still counts).
func (r *Row) Has(col string) bool {
	_, ok := r.Get(col)
	return ok
}

// Len is the number of columns.
func (r *Row) Len() int {
	if r == nil {
		return 0
	}
	return len(r.columns)
}

// Columns returns the column names in order. The slice is a copy.
func (r *Row) Columns() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// Values returns the values in column order.
func (r *Row) Values() []Value {
	if r == nil {
		return nil
	}
	out := make([]Value, len(r.columns))
	for i, c := range r.columns {
		out[i] = r.values[c]
	}
	return out
}

// Clone returns an independent copy of r.
func (r *Row) Clone() *Row {
	out := New()
	if r == nil {
		return out
	}
	for _, c := range r.columns {
		out.Set(c, r.values[c])
	}
	return out
}

// MarshalJSON writes the row as a JSON object with keys in column order.
func (r *Row) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		val, err := r.values[c].MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("row: column %q: %w", c, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, keeping the key order of the document.
// A JSON null decodes to an empty row.
func (r *Row) UnmarshalJSON(data []byte) error {
	r.columns = nil
	r.values = make(map[string]Value)

	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("row: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("row: expected a JSON object")
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("row: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("row: expected an object key, got %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("row: column %q: %w", key, err)
		}

		var v Value
		if err := v.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("row: column %q: %w", key, err)
		}
		r.Set(key, v)
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("row: %w", err)
	}
	return nil
}
