package model

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/rotisserie/eris"
)

// Row is an ordered mapping from column name to raw string value. Column
// order is preserved so that row context in directives is reproducible.
type Row struct {
	keys   []string
	values map[string]string
}

// NewRow builds a row from parallel header and value slices. Missing values
// become empty strings; extra values are ignored.
func NewRow(header, values []string) Row {
	r := Row{values: make(map[string]string, len(header))}
	for i, h := range header {
		v := ""
		if i < len(values) {
			v = values[i]
		}
		r.Set(h, v)
	}
	return r
}

// RowFromMap builds a row from a map. Keys listed in order come first in that
// order; any remaining keys follow sorted by name.
func RowFromMap(m map[string]string, order []string) Row {
	r := Row{values: make(map[string]string, len(m))}
	for _, k := range order {
		if v, ok := m[k]; ok {
			r.Set(k, v)
		}
	}
	rest := make([]string, 0, len(m))
	for k := range m {
		if !r.Has(k) {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		r.Set(k, m[k])
	}
	return r
}

// RowFromAny builds a row from decoded JSON values, rendering each value as
// text. Ordering follows RowFromMap.
func RowFromAny(m map[string]any, order []string) Row {
	flat := make(map[string]string, len(m))
	for k, v := range m {
		flat[k] = FormatValue(v)
	}
	return RowFromMap(flat, order)
}

// Reordered returns a copy with the listed columns first, in that order,
// followed by the remaining columns in their existing order.
func (r Row) Reordered(order []string) Row {
	out := Row{values: make(map[string]string, len(r.values))}
	for _, k := range order {
		if v, ok := r.values[k]; ok {
			out.Set(k, v)
		}
	}
	for _, k := range r.keys {
		if !out.Has(k) {
			out.Set(k, r.values[k])
		}
	}
	return out
}

// Get returns the value for a column and whether the column exists.
func (r Row) Get(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Value returns the value for a column, or "" when absent.
func (r Row) Value(key string) string {
	return r.values[key]
}

// Has reports whether the column exists.
func (r Row) Has(key string) bool {
	_, ok := r.values[key]
	return ok
}

// Set assigns a value, appending the column if new.
func (r *Row) Set(key, value string) {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Keys returns column names in order.
func (r Row) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of columns.
func (r Row) Len() int { return len(r.keys) }

// Map returns a copy of the values as a plain map.
func (r Row) Map() map[string]string {
	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Clone returns a deep copy.
func (r Row) Clone() Row {
	c := Row{
		keys:   make([]string, len(r.keys)),
		values: make(map[string]string, len(r.values)),
	}
	copy(c.keys, r.keys)
	for k, v := range r.values {
		c.values[k] = v
	}
	return c
}

// MarshalJSON encodes the row as a JSON object in column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, eris.Wrap(err, "row: marshal key")
		}
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, eris.Wrap(err, "row: marshal value")
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping key order. Non-string values
// are stored using their JSON text; null becomes "".
func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return eris.Wrap(err, "row: read object start")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return eris.New("row: expected JSON object")
	}

	*r = Row{values: make(map[string]string)}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return eris.Wrap(err, "row: read key")
		}
		key, ok := keyTok.(string)
		if !ok {
			return eris.New("row: expected string key")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return eris.Wrapf(err, "row: read value for %q", key)
		}
		r.Set(key, rawToString(raw))
	}
	if _, err := dec.Token(); err != nil {
		return eris.Wrap(err, "row: read object end")
	}
	return nil
}

func rawToString(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}
	return string(trimmed)
}
