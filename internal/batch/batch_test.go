package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/odd-annotate/internal/model"
	"github.com/sells-group/odd-annotate/pkg/anthropic"
)

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"json fence", "```json\n{\"Lanes\": 2}\n```", `{"Lanes": 2}`},
		{"bare fence", "```\n[1, 2]\n```", "[1, 2]"},
		{"no fence", "  {\"a\": true}  ", `{"a": true}`},
		{"text around", "Here you go:\n```json\n{}\n```", "Here you go:\n{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFences(tt.in))
		})
	}
}

func TestClean(t *testing.T) {
	c := Clean(textResult("a", "```json\n{\"Lanes\": 2}\n```"))
	assert.True(t, c.Valid)
	assert.Equal(t, map[string]any{"Lanes": float64(2)}, c.Value)

	c = Clean(textResult("b", "I cannot tell from these images."))
	assert.False(t, c.Valid)
	assert.Equal(t, "I cannot tell from these images.", c.Value)

	c = Clean(anthropic.BatchResultItem{CustomID: "c", Type: "errored"})
	assert.False(t, c.Valid)
	assert.Equal(t, map[string]any{"error": "errored"}, c.Value)
}

func TestCollection(t *testing.T) {
	col := &Collection{}
	col.Add([]anthropic.BatchResultItem{
		textResult("a", "{}"),
		textResult("b", "nope"),
		{CustomID: "c", Type: "expired"},
		textResult("b", "still nope"),
	})

	assert.Equal(t, []string{"b", "c"}, col.Invalid())
	assert.Equal(t, 1, col.Valid())
	assert.Equal(t, "still nope", col.Corrected()["b"])
}

func TestReadWriteRequests(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in", "requests.jsonl")
	reqs := []Request{
		{CustomID: "a", Scene: "s1", Sample: "x", Prompt: "p", Images: []ImageRef{{Path: "cam.jpg", MediaType: "image/jpeg"}}},
		{CustomID: "b", Scene: "s1", Sample: "y", Prompt: "p"},
	}
	require.NoError(t, WriteRequests(reqs, path))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("\nnot json\n{\"scene\": \"no id\"}\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	got, err := ReadRequests(path)
	require.NoError(t, err)
	assert.Equal(t, reqs[0].Images, got[0].Images)
	assert.Len(t, got, 2)

	_, err = ReadRequests(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.ErrorContains(t, err, "batch: open requests")
}

func TestSelect(t *testing.T) {
	idx := IndexRequests([]Request{{CustomID: "a", Sample: "1"}, {CustomID: "b"}, {CustomID: "a", Sample: "dup"}})
	found, missing := Select(idx, []string{"b", "zz", "a"})
	require.Len(t, found, 2)
	assert.Equal(t, "b", found[0].CustomID)
	assert.Equal(t, "1", found[1].Sample)
	assert.Equal(t, []string{"zz"}, missing)
}

func TestLayout(t *testing.T) {
	base := t.TempDir()
	l := Layout{BaseDir: base}
	assert.Equal(t, filepath.Join(base, "iteration_2", "corrected_results_2.json"), l.CorrectedPath(2))
	assert.Equal(t, filepath.Join(base, "iteration_3", "invalid_ids_3.txt"), l.InvalidPath(3))

	n, err := l.Next()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for _, d := range []string{"iteration_10", "iteration_2", "iteration_x", "other"} {
		require.NoError(t, os.MkdirAll(filepath.Join(base, d), 0o755))
	}
	its, err := l.Iterations()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 10}, its)

	n, err = l.Next()
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	its, err = Layout{BaseDir: filepath.Join(base, "absent")}.Iterations()
	require.NoError(t, err)
	assert.Empty(t, its)
}

func TestLayout_MergeCorrected_LaterWins(t *testing.T) {
	l := Layout{BaseDir: t.TempDir()}

	first := &Collection{}
	first.Add([]anthropic.BatchResultItem{textResult("a", `{"Lanes": 2}`), textResult("b", "bad")})
	require.NoError(t, l.WriteCollection(1, first))

	second := &Collection{}
	second.Add([]anthropic.BatchResultItem{textResult("b", `{"Lanes": 3}`)})
	require.NoError(t, l.WriteCollection(2, second))

	// Submitted but not collected yet.
	require.NoError(t, os.MkdirAll(l.Dir(3), 0o755))

	merged, err := l.MergeCorrected()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"a": map[string]any{"Lanes": float64(2)},
		"b": map[string]any{"Lanes": float64(3)},
	}, merged)

	invalid, err := ReadLines(l.InvalidPath(1))
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, invalid)

	data, err := os.ReadFile(l.MergedPath(1))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
	assert.Contains(t, string(data), `"custom_id":"b","type":"succeeded","text":"bad"`)
}

func TestSubmitter_Submit(t *testing.T) {
	dir := t.TempDir()
	reqs := writeFrames(t, dir, "a", "b", "c", "d", "e")
	client := newFakeClient(nil)
	tracker := &mockTracker{}
	s := &Submitter{
		Client:       client,
		Model:        "claude-haiku-4-5-20251001",
		MaxTokens:    2048,
		System:       "You annotate driving scenes.",
		MaxBatchSize: 2,
		WarmCache:    true,
		Tracker:      tracker,
	}
	l := Layout{BaseDir: filepath.Join(dir, "out")}

	ids, err := s.Submit(context.Background(), l, 1, reqs)
	require.NoError(t, err)
	assert.Equal(t, []string{"msgbatch_1", "msgbatch_2", "msgbatch_3"}, ids)

	require.Len(t, client.created, 3)
	assert.Len(t, client.created[0].Requests, 2)
	assert.Len(t, client.created[2].Requests, 1)
	first := client.created[0].Requests[0]
	assert.Equal(t, "a", first.CustomID)
	require.Len(t, first.Params.Messages, 1)
	require.Len(t, first.Params.Messages[0].Images, 1)
	assert.Equal(t, "image/png", first.Params.Messages[0].Images[0].MediaType)
	require.Len(t, first.Params.System, 1)
	assert.Equal(t, "1h", first.Params.System[0].CacheControl.TTL)

	require.Len(t, client.messages, 1)
	assert.Equal(t, int64(warmMaxTokens), client.messages[0].MaxTokens)

	written, err := ReadLines(l.BatchIDsPath(1))
	require.NoError(t, err)
	assert.Equal(t, ids, written)
	saved, err := ReadRequests(l.RequestsPath(1))
	require.NoError(t, err)
	assert.Len(t, saved, 5)

	require.Len(t, tracker.saved, 3)
	assert.Equal(t, model.Batch{Iteration: 1, BatchID: "msgbatch_3", Requests: 1, Status: model.BatchStatusSubmitted}, tracker.saved[2])
}

func TestSubmitter_Errors(t *testing.T) {
	dir := t.TempDir()
	l := Layout{BaseDir: dir}

	s := &Submitter{Client: newFakeClient(nil)}
	_, err := s.Submit(context.Background(), l, 1, []Request{{CustomID: "x", Images: []ImageRef{{Path: filepath.Join(dir, "nope.jpg")}}}})
	assert.ErrorContains(t, err, "batch: request x")

	client := newFakeClient(nil)
	client.createErr = errors.New("rate limited")
	s = &Submitter{Client: client, Tracker: &mockTracker{}}
	_, err = s.Submit(context.Background(), l, 2, writeFrames(t, dir, "y"))
	assert.ErrorContains(t, err, "batch: submit iteration 2")

	ids, err := (&Submitter{Client: client}).Submit(context.Background(), l, 3, nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSubmitter_TrackerFailureIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	s := &Submitter{
		Client:  newFakeClient(nil),
		Tracker: &mockTracker{err: errors.New("db down")},
	}
	ids, err := s.Submit(context.Background(), Layout{BaseDir: dir}, 1, writeFrames(t, dir, "a"))
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestCollector_Collect(t *testing.T) {
	dir := t.TempDir()
	reqs := writeFrames(t, dir, "a", "b", "c")
	client := newFakeClient(func(item anthropic.BatchRequestItem) anthropic.BatchResultItem {
		if item.CustomID == "b" {
			return textResult("b", "The road has two lanes.")
		}
		return textResult(item.CustomID, "```json\n{\"Lanes\": 2}\n```")
	})
	l := Layout{BaseDir: filepath.Join(dir, "out")}
	_, err := (&Submitter{Client: client, MaxBatchSize: 2}).Submit(context.Background(), l, 1, reqs)
	require.NoError(t, err)

	// A request with no result in any batch.
	require.NoError(t, WriteRequests(append(reqs, Request{CustomID: "d"}), l.RequestsPath(1)))

	tracker := &mockTracker{}
	col, err := (&Collector{Client: client, Tracker: tracker}).Collect(context.Background(), l, 1)
	require.NoError(t, err)

	assert.Equal(t, 2, col.Valid())
	assert.Equal(t, []string{"b", "d"}, col.Invalid())
	assert.Equal(t, int64(300), col.Usage.InputTokens)
	assert.Equal(t, model.BatchStatusCollected, tracker.statuses["msgbatch_1"])
	assert.Equal(t, model.BatchStatusCollected, tracker.statuses["msgbatch_2"])

	corrected, err := l.ReadCorrected(1)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"Lanes": float64(2)}, corrected["a"])
	assert.Equal(t, "The road has two lanes.", corrected["b"])
	assert.Equal(t, map[string]any{"error": "missing"}, corrected["d"])
}

func TestCollector_CanceledBatch(t *testing.T) {
	dir := t.TempDir()
	client := newFakeClient(func(item anthropic.BatchRequestItem) anthropic.BatchResultItem {
		return textResult(item.CustomID, "{}")
	})
	l := Layout{BaseDir: dir}
	_, err := (&Submitter{Client: client}).Submit(context.Background(), l, 1, writeFrames(t, dir, "a"))
	require.NoError(t, err)
	client.status["msgbatch_1"] = "canceled"

	tracker := &mockTracker{}
	col, err := (&Collector{Client: client, Tracker: tracker}).Collect(context.Background(), l, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, col.Invalid())
	assert.Equal(t, model.BatchStatusFailed, tracker.statuses["msgbatch_1"])
}

func TestCollector_MissingIDs(t *testing.T) {
	_, err := (&Collector{Client: newFakeClient(nil)}).Collect(context.Background(), Layout{BaseDir: t.TempDir()}, 1)
	assert.ErrorContains(t, err, "batch: open")
}

// flakyResponder returns invalid text for an id on its first attempts.
type flakyResponder struct {
	mu       sync.Mutex
	attempts map[string]int
	failures map[string]int
}

func (f *flakyResponder) respond(item anthropic.BatchRequestItem) anthropic.BatchResultItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[item.CustomID]++
	if f.attempts[item.CustomID] <= f.failures[item.CustomID] {
		return textResult(item.CustomID, "{not json")
	}
	return textResult(item.CustomID, `{"Scenery": {"Lanes": 2}}`)
}

func TestRefiner_Run(t *testing.T) {
	dir := t.TempDir()
	reqs := writeFrames(t, dir, "a", "b", "c")
	flaky := &flakyResponder{attempts: map[string]int{}, failures: map[string]int{"b": 2, "c": 1}}
	client := newFakeClient(flaky.respond)
	l := Layout{BaseDir: filepath.Join(dir, "out")}
	sub := &Submitter{Client: client}
	_, err := sub.Submit(context.Background(), l, 1, reqs)
	require.NoError(t, err)

	r := &Refiner{Submitter: sub, Collector: &Collector{Client: client}, Layout: l}
	res, err := r.Run(context.Background(), reqs, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Iteration)
	assert.Empty(t, res.Invalid)

	second, err := ReadRequests(l.RequestsPath(2))
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, "b", second[0].CustomID)
	third, err := ReadRequests(l.RequestsPath(3))
	require.NoError(t, err)
	require.Len(t, third, 1)

	merged, err := l.MergeCorrected()
	require.NoError(t, err)
	for _, id := range []string{"a", "b", "c"} {
		assert.IsType(t, map[string]any{}, merged[id], id)
	}
}

func TestRefiner_StopsAtMaxIterations(t *testing.T) {
	dir := t.TempDir()
	reqs := writeFrames(t, dir, "a")
	flaky := &flakyResponder{attempts: map[string]int{}, failures: map[string]int{"a": 10}}
	client := newFakeClient(flaky.respond)
	l := Layout{BaseDir: dir}
	sub := &Submitter{Client: client}
	_, err := sub.Submit(context.Background(), l, 1, reqs)
	require.NoError(t, err)

	r := &Refiner{Submitter: sub, Collector: &Collector{Client: client}, Layout: l, MaxIterations: 2}
	res, err := r.Run(context.Background(), reqs, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Iteration)
	assert.Equal(t, []string{"a"}, res.Invalid)
	assert.Len(t, client.created, 2)
}

func TestRefiner_NoOriginalRequest(t *testing.T) {
	dir := t.TempDir()
	reqs := writeFrames(t, dir, "a")
	client := newFakeClient(func(item anthropic.BatchRequestItem) anthropic.BatchResultItem {
		return textResult(item.CustomID, "nope")
	})
	l := Layout{BaseDir: dir}
	sub := &Submitter{Client: client}
	_, err := sub.Submit(context.Background(), l, 1, reqs)
	require.NoError(t, err)

	r := &Refiner{Submitter: sub, Collector: &Collector{Client: client}, Layout: l}
	res, err := r.Run(context.Background(), nil, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Iteration)
	assert.Equal(t, []string{"a"}, res.Missing)

	_, err = r.Run(context.Background(), reqs, 0)
	assert.ErrorContains(t, err, "invalid start iteration")
}

func TestFlatten(t *testing.T) {
	results := map[string]any{
		"x": map[string]any{
			"Scenery": map[string]any{"Lanes": float64(2), "Divided": "Yes"},
			"Signs":   []any{"stop", "yield"},
			"Night":   nil,
		},
		"a": map[string]any{"Scenery": map[string]any{"Lanes": float64(3)}, "Tunnel": true},
		"b": "raw text",
		"c": map[string]any{"error": "errored"},
		"z": map[string]any{"Scenery": map[string]any{"Lanes": 1.5}},
	}
	reqs := []Request{
		{CustomID: "x", Scene: "s1", Sample: "1"},
		{CustomID: "a", Scene: "s1", Sample: "2"},
		{CustomID: "b", Scene: "s2", Sample: "1"},
	}

	tbl, skipped, err := Flatten(results, reqs, "Scene", "Sample")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, skipped)
	assert.Equal(t, []string{"Scene", "Sample", "Night", "Scenery.Divided", "Scenery.Lanes", "Signs", "Tunnel"}, tbl.Columns())
	assert.Equal(t, [][]string{
		{"s1", "1", "", "Yes", "2", `["stop","yield"]`, ""},
		{"s1", "2", "", "", "3", "", "true"},
		{"", "", "", "", "1.5", "", ""},
	}, tbl.Records())

	_, _, err = Flatten(results, reqs, "Scene", "Scene")
	assert.Error(t, err)
}
