// Package report writes the machine-readable outputs of a pass: the check
// summary JSON and the normalization modification CSV.
package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/odd-annotate/internal/check"
	"github.com/sells-group/odd-annotate/internal/table"
)

// Summary counts non-OK rows per check column.
type Summary struct {
	Input   string         `json:"input"`
	Output  string         `json:"output"`
	Rows    int            `json:"rows"`
	Issues  map[string]int `json:"issues"`
	Codes   map[string]int `json:"codes,omitempty"`
	Skipped []string       `json:"skipped,omitempty"`
}

// FromPass summarizes the outcomes of a check run.
func FromPass(input, output string, pass *check.Pass) *Summary {
	s := &Summary{
		Input:   input,
		Output:  output,
		Rows:    pass.Table.Len(),
		Issues:  make(map[string]int),
		Codes:   make(map[string]int),
		Skipped: pass.Skipped,
	}
	for _, o := range pass.Outcomes {
		if n := o.Flagged(); n > 0 {
			s.Issues[o.Column] += n
		}
		for code, n := range o.Codes() {
			s.Codes[string(code)] += n
		}
	}
	return s
}

// Scan summarizes a previously checked table by counting the non-OK cells
// of every column whose name ends in "_check". Reason codes are not
// recoverable from rendered cells, so Codes is left empty.
func Scan(input string, t *table.Table) *Summary {
	s := &Summary{Input: input, Rows: t.Len(), Issues: make(map[string]int)}
	for _, name := range t.Columns() {
		if !strings.HasSuffix(name, "_check") {
			continue
		}
		col, _ := t.Column(name)
		n := 0
		for _, v := range col {
			if !check.IsOKLabel(v) {
				n++
			}
		}
		if n > 0 {
			s.Issues[name] = n
		}
	}
	return s
}

// Total returns the number of flagged cells across all columns.
func (s *Summary) Total() int {
	n := 0
	for _, v := range s.Issues {
		n += v
	}
	return n
}

// Columns returns the flagged column names, most issues first.
func (s *Summary) Columns() []string {
	cols := make([]string, 0, len(s.Issues))
	for c := range s.Issues {
		cols = append(cols, c)
	}
	sort.Slice(cols, func(i, j int) bool {
		if s.Issues[cols[i]] != s.Issues[cols[j]] {
			return s.Issues[cols[i]] > s.Issues[cols[j]]
		}
		return cols[i] < cols[j]
	})
	return cols
}

// WriteSummary writes s as indented JSON to path.
func WriteSummary(s *Summary, path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return eris.Wrap(err, "report: marshal summary")
	}
	if err := ensureParentDir(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return eris.Wrapf(err, "report: write %s", path)
	}
	return nil
}

// ReadSummary loads a summary written by WriteSummary.
func ReadSummary(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "report: read %s", path)
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrapf(err, "report: parse %s", path)
	}
	return &s, nil
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "report: create dir %s", dir)
	}
	return nil
}
