package report

import (
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/odd-annotate/internal/normalize"
)

var modsHeader = []string{"Column", "Modifications", "Percentage (%)"}

// SortMods orders modifications by percentage, highest first. Ties keep
// their pass order.
func SortMods(mods []normalize.Mod) []normalize.Mod {
	out := append([]normalize.Mod(nil), mods...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Percentage > out[j].Percentage
	})
	return out
}

// WriteMods writes the modification report CSV.
func WriteMods(mods []normalize.Mod, path string) error {
	if err := ensureParentDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "report: create mods file")
	}
	if err := writeMods(f, mods); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrap(f.Close(), "report: close mods file")
}

func writeMods(out io.Writer, mods []normalize.Mod) error {
	w := csv.NewWriter(out)
	if err := w.Write(modsHeader); err != nil {
		return eris.Wrap(err, "report: write mods header")
	}
	for _, m := range SortMods(mods) {
		if m.Modifications == 0 {
			continue
		}
		row := []string{m.Column, strconv.Itoa(m.Modifications), formatPercent(m.Percentage)}
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "report: write mods row")
		}
	}
	w.Flush()
	return eris.Wrap(w.Error(), "report: flush mods")
}

// formatPercent always keeps one decimal, e.g. 50.0 or 33.33.
func formatPercent(p float64) string {
	s := strconv.FormatFloat(p, 'f', -1, 64)
	if _, err := strconv.Atoi(s); err == nil {
		s += ".0"
	}
	return s
}
