// Package table holds per-sample annotation records as an in-memory,
// column-major table and loads/saves them as CSV or XLSX.
package table

import (
	"github.com/rotisserie/eris"
)

// Table is an immutable-by-convention column-major table of string cells.
// Derived tables produced by With share unchanged columns with their parent,
// so callers must not mutate slices returned by Column.
type Table struct {
	header []string
	index  map[string]int
	cols   [][]string
	rows   int
}

// New builds a table from a header and row-major records. Short records are
// padded with empty cells; records longer than the header are an error.
func New(header []string, records [][]string) (*Table, error) {
	t := &Table{
		header: make([]string, 0, len(header)),
		index:  make(map[string]int, len(header)),
		rows:   len(records),
	}
	for _, name := range header {
		if _, dup := t.index[name]; dup {
			return nil, eris.Errorf("table: duplicate column %q", name)
		}
		t.index[name] = len(t.header)
		t.header = append(t.header, name)
		t.cols = append(t.cols, make([]string, len(records)))
	}
	for i, rec := range records {
		if len(rec) > len(header) {
			return nil, eris.Errorf("table: row %d has %d cells, header has %d", i+1, len(rec), len(header))
		}
		for j, cell := range rec {
			t.cols[j][i] = cell
		}
	}
	return t, nil
}

// Len returns the number of rows.
func (t *Table) Len() int { return t.rows }

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.header))
	copy(out, t.header)
	return out
}

// Has reports whether every named column exists.
func (t *Table) Has(names ...string) bool {
	for _, n := range names {
		if _, ok := t.index[n]; !ok {
			return false
		}
	}
	return true
}

// Missing returns the names that are not columns of t.
func (t *Table) Missing(names ...string) []string {
	var out []string
	for _, n := range names {
		if !t.Has(n) {
			out = append(out, n)
		}
	}
	return out
}

// Column returns the values of the named column. The slice is shared.
func (t *Table) Column(name string) ([]string, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// Cell returns the value at row, column; empty if the column is absent.
func (t *Table) Cell(row int, name string) string {
	col, ok := t.Column(name)
	if !ok || row < 0 || row >= len(col) {
		return ""
	}
	return col[row]
}

// Records returns the table in row-major form, suitable for writers.
func (t *Table) Records() [][]string {
	out := make([][]string, t.rows)
	for i := range out {
		rec := make([]string, len(t.cols))
		for j, col := range t.cols {
			rec[j] = col[i]
		}
		out[i] = rec
	}
	return out
}

// With returns a new table with the patch applied. Existing columns are
// replaced in place; new columns are appended in patch order. The receiver
// is left untouched.
func (t *Table) With(p *Patch) (*Table, error) {
	out := &Table{
		header: append([]string(nil), t.header...),
		index:  make(map[string]int, len(t.index)+p.Len()),
		cols:   append([][]string(nil), t.cols...),
		rows:   t.rows,
	}
	for k, v := range t.index {
		out.index[k] = v
	}
	for _, name := range p.order {
		vals := p.cols[name]
		if len(vals) != t.rows {
			return nil, eris.Errorf("table: patch column %q has %d rows, table has %d", name, len(vals), t.rows)
		}
		if i, ok := out.index[name]; ok {
			out.cols[i] = vals
			continue
		}
		out.index[name] = len(out.header)
		out.header = append(out.header, name)
		out.cols = append(out.cols, vals)
	}
	return out, nil
}

// Patch is an ordered set of full-length replacement or new columns.
type Patch struct {
	order []string
	cols  map[string][]string
}

// NewPatch returns an empty patch.
func NewPatch() *Patch {
	return &Patch{cols: make(map[string][]string)}
}

// Set stores values for a column. Setting the same column twice keeps the
// original position and the latest values.
func (p *Patch) Set(name string, values []string) {
	if _, ok := p.cols[name]; !ok {
		p.order = append(p.order, name)
	}
	p.cols[name] = values
}

// Get returns the patched values for a column.
func (p *Patch) Get(name string) ([]string, bool) {
	v, ok := p.cols[name]
	return v, ok
}

// Columns returns the patched column names in insertion order.
func (p *Patch) Columns() []string {
	return append([]string(nil), p.order...)
}

// Len returns the number of patched columns.
func (p *Patch) Len() int { return len(p.order) }

// Merge appends other's columns into p; other wins on conflicts.
func (p *Patch) Merge(other *Patch) {
	for _, name := range other.order {
		p.Set(name, other.cols[name])
	}
}

// Clone returns a copy of values that can be mutated freely.
func Clone(values []string) []string {
	return append([]string(nil), values...)
}
