package batch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

const iterationPrefix = "iteration_"

// Layout names the files of a refinement run under BaseDir:
//
//	<base>/iteration_<n>/batch_requests_<n>.jsonl
//	<base>/iteration_<n>/submitted_batch_ids_<n>.txt
//	<base>/iteration_<n>/merged_results_<n>.jsonl
//	<base>/iteration_<n>/corrected_results_<n>.json
//	<base>/iteration_<n>/invalid_ids_<n>.txt
type Layout struct {
	BaseDir string
}

// Dir returns the directory of iteration n.
func (l Layout) Dir(n int) string {
	return filepath.Join(l.BaseDir, iterationPrefix+strconv.Itoa(n))
}

func (l Layout) file(n int, stem, ext string) string {
	return filepath.Join(l.Dir(n), fmt.Sprintf("%s_%d%s", stem, n, ext))
}

// RequestsPath is the request file submitted in iteration n.
func (l Layout) RequestsPath(n int) string { return l.file(n, "batch_requests", ".jsonl") }

// BatchIDsPath lists the remote batch ids of iteration n.
func (l Layout) BatchIDsPath(n int) string { return l.file(n, "submitted_batch_ids", ".txt") }

// MergedPath holds one line per raw result of iteration n.
func (l Layout) MergedPath(n int) string { return l.file(n, "merged_results", ".jsonl") }

// CorrectedPath holds the cleaned {custom_id: value} map of iteration n.
func (l Layout) CorrectedPath(n int) string { return l.file(n, "corrected_results", ".json") }

// InvalidPath lists the ids of iteration n that need resubmission.
func (l Layout) InvalidPath(n int) string { return l.file(n, "invalid_ids", ".txt") }

// Iterations returns the iteration numbers present under BaseDir, ascending.
// A missing BaseDir has no iterations.
func (l Layout) Iterations() ([]int, error) {
	entries, err := os.ReadDir(l.BaseDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "batch: list %s", l.BaseDir)
	}
	var out []int
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), iterationPrefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(e.Name(), iterationPrefix))
		if err != nil || n < 1 {
			continue
		}
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}

// Next returns the number the next submitted iteration should use.
func (l Layout) Next() (int, error) {
	its, err := l.Iterations()
	if err != nil {
		return 0, err
	}
	if len(its) == 0 {
		return 1, nil
	}
	return its[len(its)-1] + 1, nil
}

// ReadLines reads non-blank trimmed lines of path.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if s := strings.TrimSpace(sc.Text()); s != "" {
			lines = append(lines, s)
		}
	}
	return lines, eris.Wrapf(sc.Err(), "batch: read %s", path)
}

// WriteLines writes one value per line, creating parent directories.
func WriteLines(lines []string, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "batch: create dir for %s", path)
	}
	var b strings.Builder
	for _, s := range lines {
		b.WriteString(s)
		b.WriteByte('\n')
	}
	return eris.Wrapf(os.WriteFile(path, []byte(b.String()), 0o644), "batch: write %s", path)
}

// WriteCollection writes the merged, corrected and invalid files of
// iteration n.
func (l Layout) WriteCollection(n int, c *Collection) error {
	if err := os.MkdirAll(l.Dir(n), 0o755); err != nil {
		return eris.Wrapf(err, "batch: create iteration %d", n)
	}

	var merged strings.Builder
	enc := json.NewEncoder(&merged)
	enc.SetEscapeHTML(false)
	for _, it := range c.Items {
		if err := enc.Encode(it); err != nil {
			return eris.Wrapf(err, "batch: encode result %s", it.CustomID)
		}
	}
	if err := os.WriteFile(l.MergedPath(n), []byte(merged.String()), 0o644); err != nil {
		return eris.Wrapf(err, "batch: write merged results %d", n)
	}

	corrected, err := json.MarshalIndent(c.Corrected(), "", "  ")
	if err != nil {
		return eris.Wrapf(err, "batch: encode corrected results %d", n)
	}
	if err := os.WriteFile(l.CorrectedPath(n), corrected, 0o644); err != nil {
		return eris.Wrapf(err, "batch: write corrected results %d", n)
	}

	return WriteLines(c.Invalid(), l.InvalidPath(n))
}

// ReadCorrected reads the corrected results of iteration n.
func (l Layout) ReadCorrected(n int) (map[string]any, error) {
	data, err := os.ReadFile(l.CorrectedPath(n))
	if err != nil {
		return nil, eris.Wrapf(err, "batch: read corrected results %d", n)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, eris.Wrapf(err, "batch: decode corrected results %d", n)
	}
	return out, nil
}

// MergeCorrected merges the corrected results of every collected iteration.
// Later iterations overwrite earlier values for the same id. Iterations not
// yet collected are skipped.
func (l Layout) MergeCorrected() (map[string]any, error) {
	its, err := l.Iterations()
	if err != nil {
		return nil, err
	}
	out := make(map[string]any)
	for _, n := range its {
		if _, err := os.Stat(l.CorrectedPath(n)); os.IsNotExist(err) {
			continue
		}
		m, err := l.ReadCorrected(n)
		if err != nil {
			return nil, err
		}
		for id, v := range m {
			out[id] = v
		}
	}
	return out, nil
}
