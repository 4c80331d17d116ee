package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
)

// Table is a rendered grid of rows under headers.
type Table struct {
	Headers []string
	Rows    [][]string
}

// AddRow appends a row.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// Render writes the table aligned with tabwriter.
func (t *Table) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if len(t.Headers) > 0 {
		fmt.Fprintln(tw, strings.Join(t.Headers, "\t"))
	}
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// KeyValues is an ordered list of fields rendered as a two-column table.
type KeyValues []KeyValue

// KeyValue is one KeyValues entry.
type KeyValue struct {
	Key   string
	Value any
}

// MarshalJSON renders KeyValues as an object so JSON output stays usable.
func (kv KeyValues) MarshalJSON() ([]byte, error) {
	return json.Marshal(kv.Map())
}

// MarshalYAML renders KeyValues as a mapping.
func (kv KeyValues) MarshalYAML() (any, error) {
	return kv.Map(), nil
}

// Map returns the entries as a map.
func (kv KeyValues) Map() map[string]any {
	m := make(map[string]any, len(kv))
	for _, e := range kv {
		m[e.Key] = e.Value
	}
	return m
}

// TableFormatter formats data as a table.
type TableFormatter struct {
	NoHeaders bool
}

// Format renders *Table and KeyValues directly and a map as sorted
// key/value rows. Anything else falls back to JSON.
func (f *TableFormatter) Format(w io.Writer, data any) error {
	switch v := data.(type) {
	case nil:
		return nil
	case *Table:
		return f.render(w, v)
	case KeyValues:
		t := &Table{Headers: []string{"FIELD", "VALUE"}}
		for _, e := range v {
			t.AddRow(e.Key, cell(e.Value))
		}
		return f.render(w, t)
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		t := &Table{Headers: []string{"FIELD", "VALUE"}}
		for _, k := range keys {
			t.AddRow(k, cell(v[k]))
		}
		return f.render(w, t)
	default:
		return (&JSONFormatter{}).Format(w, data)
	}
}

func (f *TableFormatter) render(w io.Writer, t *Table) error {
	if f.NoHeaders {
		t = &Table{Rows: t.Rows}
	}
	return t.Render(w)
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case string:
		if x == "" {
			return "-"
		}
		return x
	default:
		return fmt.Sprint(x)
	}
}
