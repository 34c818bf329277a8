package schema

import (
	"strconv"

	"github.com/sells-group/odd-annotate/internal/listlit"
	"github.com/sells-group/odd-annotate/internal/table"
)

// Violation counts the cells of one column that do not match the field kind.
type Violation struct {
	Column  string `json:"column"`
	Kind    Kind   `json:"kind"`
	Invalid int    `json:"invalid"`
	Example string `json:"example"`
}

// Check reports whether a single value conforms to kind. Empty cells are
// treated as missing and always conform.
func Check(kind Kind, value string) bool {
	if value == "" {
		return true
	}
	switch kind {
	case KindBoolean:
		return value == "Yes" || value == "No"
	case KindInteger:
		_, err := strconv.Atoi(value)
		return err == nil
	case KindList:
		_, err := listlit.Len(value)
		return err == nil
	default:
		return true
	}
}

// ValidateTable checks every schema field present in t, and its shadow
// column when one exists. Absent fields are ignored.
func (s *Schema) ValidateTable(t *table.Table) []Violation {
	var out []Violation
	for _, f := range s.Fields {
		for _, name := range []string{f.Name, s.Shadow(f.Name)} {
			col, ok := t.Column(name)
			if !ok {
				continue
			}
			v := Violation{Column: name, Kind: f.Kind}
			for _, cell := range col {
				if !Check(f.Kind, cell) {
					if v.Invalid == 0 {
						v.Example = cell
					}
					v.Invalid++
				}
			}
			if v.Invalid > 0 {
				out = append(out, v)
			}
		}
	}
	return out
}
