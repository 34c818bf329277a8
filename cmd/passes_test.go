package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/odd-annotate/internal/model"
	"github.com/sells-group/odd-annotate/internal/report"
	"github.com/sells-group/odd-annotate/internal/schema"
	"github.com/sells-group/odd-annotate/internal/store"
	"github.com/sells-group/odd-annotate/internal/table"
)

func passSchema() *schema.Schema {
	return &schema.Schema{
		SceneColumn:   "Scene",
		SampleColumn:  "Sample",
		ShadowSuffix:  "_Auto_Check",
		DefaultMinRun: 3,
		Fields: []schema.Field{
			{Name: "Flag", Kind: schema.KindBoolean, Smoothing: schema.SmoothRunLength, Toggle: true},
		},
		Checks: schema.Checks{
			Divided:       "D",
			Undivided:     "U",
			DividedOutput: "DU_check",
			Lanes:         "Lanes",
			Day:           "Day",
			Night:         "Night",
			DayNightOut:   "DN_check",
			Clear:         "C",
			PartlyCloudy:  "P",
			Overcast:      "O",
			RoadWorks:     "RW",
			Signage:       "TS",
			LineMarkers:   "TL",
		},
	}
}

func writeCSV(t *testing.T, path string, header []string, records [][]string) {
	t.Helper()
	tbl, err := table.New(header, records)
	require.NoError(t, err)
	require.NoError(t, table.Save(tbl, path))
}

func newPassEnv(t *testing.T) *annotateEnv {
	t.Helper()
	useSQLiteConfig(t)
	st, err := openStore(context.Background())
	require.NoError(t, err)
	env := &annotateEnv{Store: st, Schema: passSchema(), Workers: 2}
	t.Cleanup(env.Close)
	return env
}

func TestRunNormalize(t *testing.T) {
	env := newPassEnv(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "raw.csv")
	writeCSV(t, in, []string{"Scene", "Sample", "Flag"}, [][]string{
		{"a", "1", "No"},
		{"a", "2", " Yes"},
		{"a", "3", "No"},
		{"a", "4", "No"},
	})

	opts := normalizeOpts{
		Input:  in,
		Output: filepath.Join(dir, "out", "normalized.csv"),
		Report: filepath.Join(dir, "out", "mods.csv"),
	}
	res, err := runNormalize(context.Background(), env, opts)
	require.NoError(t, err)

	out, err := table.Load(opts.Output)
	require.NoError(t, err)
	flag, ok := out.Column("Flag")
	require.True(t, ok)
	assert.Equal(t, []string{"No", "Yes", "No", "No"}, flag)
	shadow, ok := out.Column("Flag_Auto_Check")
	require.True(t, ok)
	assert.Equal(t, []string{"No", "No", "No", "No"}, shadow)

	assert.NotEmpty(t, res.Mods)
	assert.FileExists(t, opts.Report)

	runs, err := env.Store.ListRuns(context.Background(), store.RunFilter{Kind: model.RunKindNormalize})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusComplete, runs[0].Status)
	assert.Equal(t, opts.Output, runs[0].Output)
	assert.Equal(t, 1, runs[0].Summary["Flag_Auto_Check"])
}

func TestRunNormalize_MissingInput(t *testing.T) {
	env := newPassEnv(t)

	_, err := runNormalize(context.Background(), env, normalizeOpts{
		Input:  filepath.Join(t.TempDir(), "missing.csv"),
		Output: filepath.Join(t.TempDir(), "out.csv"),
	})
	require.Error(t, err)

	runs, err := env.Store.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.NotEmpty(t, runs[0].Error)
}

func TestRunCheck(t *testing.T) {
	env := newPassEnv(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "normalized.csv")
	writeCSV(t, in, []string{"Scene", "Flag_Auto_Check", "Lanes"}, [][]string{
		{"a", "No", "2"},
		{"a", "Yes", "2"},
		{"a", "No", "4"},
	})

	opts := checkOpts{
		Input:   in,
		Output:  filepath.Join(dir, "checked.xlsx"),
		Summary: filepath.Join(dir, "summary.json"),
	}
	sum, err := runCheck(context.Background(), env, opts)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Rows)
	assert.Equal(t, map[string]int{"Flag_Auto_Check_check": 1, "Lanes_check": 1}, sum.Issues)
	assert.Equal(t, 2, sum.Total())

	out, err := table.Load(opts.Output)
	require.NoError(t, err)
	lanes, ok := out.Column("Lanes_check")
	require.True(t, ok)
	assert.Equal(t, []string{"OK", "OK", "Sudden addition of 2 lanes"}, lanes)

	saved, err := report.ReadSummary(opts.Summary)
	require.NoError(t, err)
	assert.Equal(t, sum.Issues, saved.Issues)

	// A rescan of the written table agrees with the pass.
	assert.Equal(t, sum.Issues, report.Scan(opts.Output, out).Issues)
}

func TestFormatSummary(t *testing.T) {
	s := &report.Summary{
		Rows:    10,
		Issues:  map[string]int{"Lanes_check": 3, "DU_check": 1},
		Skipped: []string{"construction"},
	}

	var buf bytes.Buffer
	formatSummary(&buf, s)

	out := buf.String()
	assert.Contains(t, out, "Rows:")
	assert.Contains(t, out, "Flagged cells:")
	assert.Contains(t, out, "4")
	assert.Contains(t, out, "Skipped checks:")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("Lanes_check")), bytes.Index(buf.Bytes(), []byte("DU_check")))
}

func TestFormatSummary_NoIssues(t *testing.T) {
	var buf bytes.Buffer
	formatSummary(&buf, &report.Summary{Rows: 2, Issues: map[string]int{}})
	assert.NotContains(t, buf.String(), "COLUMN")
}

func TestReadSystemPrompt(t *testing.T) {
	text, err := readSystemPrompt("")
	require.NoError(t, err)
	assert.Empty(t, text)

	path := filepath.Join(t.TempDir(), "system.txt")
	require.NoError(t, os.WriteFile(path, []byte("Answer in JSON."), 0o644))
	text, err = readSystemPrompt(path)
	require.NoError(t, err)
	assert.Equal(t, "Answer in JSON.", text)

	_, err = readSystemPrompt(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
