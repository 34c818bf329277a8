package report

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/odd-annotate/internal/check"
	"github.com/sells-group/odd-annotate/internal/normalize"
	"github.com/sells-group/odd-annotate/internal/table"
)

func checkedPass(t *testing.T) *check.Pass {
	t.Helper()
	tbl, err := table.New(
		[]string{"Scene", "D", "U", "L"},
		[][]string{
			{"a", "Yes", "Yes", "2"},
			{"a", "No", "No", "4"},
			{"a", "Yes", "No", "1"},
		},
	)
	require.NoError(t, err)

	r := &check.Runner{
		SceneColumn: "Scene",
		Checks: []check.Check{
			check.DividedUndivided("D", "U", "DU_check"),
			&check.LaneJump{SceneColumn: "Scene", Column: "L"},
			check.Illumination("Day", "Night", "DN_check"),
		},
	}
	pass, err := r.Run(context.Background(), tbl)
	require.NoError(t, err)
	return pass
}

func TestFromPass(t *testing.T) {
	s := FromPass("in.csv", "out.csv", checkedPass(t))

	assert.Equal(t, 3, s.Rows)
	assert.Equal(t, map[string]int{"DU_check": 2, "L_check": 2}, s.Issues)
	assert.Equal(t, map[string]int{"divided_undivided_equal": 2, "lane_jump": 2}, s.Codes)
	assert.Equal(t, []string{"illumination"}, s.Skipped)
	assert.Equal(t, 4, s.Total())
	assert.Equal(t, []string{"DU_check", "L_check"}, s.Columns())
}

func TestScan_MatchesFromPass(t *testing.T) {
	pass := checkedPass(t)
	s := Scan("flagged.csv", pass.Table)
	assert.Equal(t, FromPass("", "", pass).Issues, s.Issues)
	assert.Empty(t, s.Codes)
}

func TestWriteReadSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "summary.json")
	s := FromPass("in.csv", "out.csv", checkedPass(t))
	require.NoError(t, WriteSummary(s, path))

	got, err := ReadSummary(path)
	require.NoError(t, err)
	assert.Equal(t, s, got)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"issues": {`)
	assert.Contains(t, string(data), `"input": "in.csv"`)
}

func TestWriteMods(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mods.csv")
	mods := []normalize.Mod{
		{Column: "A", Rule: "lanes", Modifications: 1, Percentage: 33.33},
		{Column: "B", Rule: "force_no", Modifications: 3, Percentage: 100},
		{Column: "C", Rule: "density", Modifications: 0, Percentage: 0},
		{Column: "D", Rule: "smooth", Modifications: 1, Percentage: 33.33},
	}
	require.NoError(t, WriteMods(mods, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Column,Modifications,Percentage (%)\nB,3,100.0\nA,1,33.33\nD,1,33.33\n", string(data))
}

func TestWriteMods_CreateError(t *testing.T) {
	dir := t.TempDir()
	err := WriteMods([]normalize.Mod{{Column: "A", Modifications: 1, Percentage: 50}}, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "report: create mods file")
}

func TestWriteMods_Writer(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeMods(&buf, []normalize.Mod{{Column: "A", Modifications: 2, Percentage: 50}}))
	assert.Equal(t, "Column,Modifications,Percentage (%)\nA,2,50.0\n", buf.String())
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "50.0", formatPercent(50))
	assert.Equal(t, "12.5", formatPercent(12.5))
	assert.Equal(t, "0.0", formatPercent(0))
}
