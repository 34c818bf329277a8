package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/odd-annotate/internal/batch"
	"github.com/sells-group/odd-annotate/internal/config"
	"github.com/sells-group/odd-annotate/internal/model"
	"github.com/sells-group/odd-annotate/internal/schema"
	"github.com/sells-group/odd-annotate/internal/store"
	"github.com/sells-group/odd-annotate/pkg/anthropic"
)

// fakeBatchAPI ends every batch immediately and answers each request with
// the text reply returns.
type fakeBatchAPI struct {
	mu      sync.Mutex
	batches map[string][]anthropic.BatchResultItem
	reply   func(customID string) string
}

func (f *fakeBatchAPI) CreateMessage(context.Context, anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	return &anthropic.MessageResponse{}, nil
}

func (f *fakeBatchAPI) CreateBatch(_ context.Context, req anthropic.BatchRequest) (*anthropic.BatchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.batches == nil {
		f.batches = make(map[string][]anthropic.BatchResultItem)
	}
	id := fmt.Sprintf("msgbatch_%d", len(f.batches)+1)
	for _, item := range req.Requests {
		f.batches[id] = append(f.batches[id], anthropic.BatchResultItem{
			CustomID: item.CustomID,
			Type:     "succeeded",
			Message: &anthropic.MessageResponse{
				Content: []anthropic.ContentBlock{{Type: "text", Text: f.reply(item.CustomID)}},
			},
		})
	}
	return &anthropic.BatchResponse{ID: id, ProcessingStatus: "in_progress"}, nil
}

func (f *fakeBatchAPI) GetBatch(_ context.Context, batchID string) (*anthropic.BatchResponse, error) {
	return &anthropic.BatchResponse{ID: batchID, ProcessingStatus: "ended"}, nil
}

func (f *fakeBatchAPI) GetBatchResults(_ context.Context, batchID string) (anthropic.BatchResultIterator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &itemIterator{items: f.batches[batchID], idx: -1}, nil
}

type itemIterator struct {
	items []anthropic.BatchResultItem
	idx   int
}

func (it *itemIterator) Next() bool {
	if it.idx+1 < len(it.items) {
		it.idx++
		return true
	}
	return false
}

func (it *itemIterator) Item() anthropic.BatchResultItem { return it.items[it.idx] }
func (it *itemIterator) Err() error                      { return nil }
func (it *itemIterator) Close() error                    { return nil }

var pngFrame = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// writeRequestFile writes one single-frame request per sample id.
func writeRequestFile(t *testing.T, dir string, samples ...string) string {
	t.Helper()
	var reqs []batch.Request
	for _, s := range samples {
		frame := filepath.Join(dir, s+".png")
		require.NoError(t, os.WriteFile(frame, pngFrame, 0o644))
		reqs = append(reqs, batch.Request{
			CustomID: "scene1__" + s,
			Scene:    "scene1",
			Sample:   s,
			Prompt:   "Return the ODD attributes as JSON.",
			Images:   []batch.ImageRef{{Path: frame}},
		})
	}
	path := filepath.Join(dir, "requests.jsonl")
	require.NoError(t, batch.WriteRequests(reqs, path))
	return path
}

func newTestBatchEnv(t *testing.T, api anthropic.Client) *batchEnv {
	t.Helper()
	useSQLiteConfig(t)
	cfg.Anthropic = config.AnthropicConfig{Model: "claude-haiku-4-5-20251001", MaxTokens: 512, MaxBatchSize: 2}
	cfg.Batch = config.BatchConfig{PollIntervalSecs: 1, PollTimeoutMins: 1, SubmitRPS: 100}

	st, err := openStore(context.Background())
	require.NoError(t, err)
	env := &annotateEnv{Store: st, Schema: schema.Default(), Workers: 2}
	t.Cleanup(env.Close)
	return newBatchEnv(env, api, filepath.Join(t.TempDir(), "batches"), "You label driving scenes.")
}

func TestNewBatchEnv_WiresConfig(t *testing.T) {
	env := newTestBatchEnv(t, &fakeBatchAPI{})

	assert.Equal(t, 2, env.Submitter.MaxBatchSize)
	assert.Equal(t, int64(512), env.Submitter.MaxTokens)
	assert.Equal(t, "You label driving scenes.", env.Submitter.System)
	require.NotNil(t, env.Submitter.Limiter)
	assert.InDelta(t, 100, float64(env.Submitter.Limiter.Limit()), 0.001)
	assert.NotNil(t, env.Submitter.Tracker)
	assert.Len(t, env.Collector.PollOpts, 2)
}

func TestNewBatchEnv_NoStoreNoLimiter(t *testing.T) {
	cfg = &config.Config{Batch: config.BatchConfig{Dir: "out/batches"}}

	env := newBatchEnv(&annotateEnv{}, &fakeBatchAPI{}, "", "")
	assert.Nil(t, env.Submitter.Limiter)
	assert.Nil(t, env.Submitter.Tracker)
	assert.Nil(t, env.Collector.Tracker)
	assert.Empty(t, env.Collector.PollOpts)
	assert.Equal(t, "out/batches", env.Layout.BaseDir)
}

func TestBatchSubmitCollectFlatten(t *testing.T) {
	api := &fakeBatchAPI{reply: func(id string) string {
		if id == "scene1__s3" {
			return "I could not tell."
		}
		return "```json\n{\"Weather\": {\"Rain\": \"No\"}, \"Lanes\": 2}\n```"
	}}
	env := newTestBatchEnv(t, api)
	ctx := context.Background()
	reqPath := writeRequestFile(t, t.TempDir(), "s1", "s2", "s3")

	ids, err := runBatchSubmit(ctx, env, reqPath, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"msgbatch_1", "msgbatch_2"}, ids)
	assert.FileExists(t, env.Layout.RequestsPath(1))

	col, err := runBatchCollect(ctx, env, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, col.Valid())
	assert.Equal(t, []string{"scene1__s3"}, col.Invalid())

	invalid, err := batch.ReadLines(env.Layout.InvalidPath(1))
	require.NoError(t, err)
	assert.Equal(t, []string{"scene1__s3"}, invalid)

	batches, err := env.Store.ListBatches(ctx, store.BatchFilter{Iteration: 1})
	require.NoError(t, err)
	require.Len(t, batches, 2)
	for _, b := range batches {
		assert.Equal(t, model.BatchStatusCollected, b.Status)
	}

	out := filepath.Join(t.TempDir(), "annotations.csv")
	tbl, err := runBatchFlatten(ctx, env.annotateEnv, env.Layout, reqPath, out)
	require.NoError(t, err)
	assert.Equal(t, []string{"Scene", "Sample", "Lanes", "Weather.Rain"}, tbl.Columns())
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, "s2", tbl.Cell(1, "Sample"))
	assert.FileExists(t, out)

	runs, err := env.Store.ListRuns(ctx, store.RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestBatchRefine_ResubmitsInvalid(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]int)
	api := &fakeBatchAPI{reply: func(id string) string {
		mu.Lock()
		defer mu.Unlock()
		seen[id]++
		if id == "scene1__s2" && seen[id] == 1 {
			return "not json"
		}
		return `{"Lanes": 3}`
	}}
	env := newTestBatchEnv(t, api)
	ctx := context.Background()
	reqPath := writeRequestFile(t, t.TempDir(), "s1", "s2")

	_, err := runBatchSubmit(ctx, env, reqPath, 1)
	require.NoError(t, err)

	res, err := runBatchRefine(ctx, env, reqPath, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Iteration)
	assert.Empty(t, res.Invalid)

	merged, err := env.Layout.MergeCorrected()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"Lanes": float64(3)}, merged["scene1__s2"])
}

func TestBatchSubmit_EmptyRequests(t *testing.T) {
	env := newTestBatchEnv(t, &fakeBatchAPI{})
	path := filepath.Join(t.TempDir(), "empty.jsonl")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := runBatchSubmit(context.Background(), env, path, 0)
	assert.ErrorContains(t, err, "no requests")
}

func TestLatestIteration(t *testing.T) {
	layout := batch.Layout{BaseDir: t.TempDir()}

	_, err := latestIteration(layout, 0)
	assert.ErrorContains(t, err, "no iterations")

	n, err := latestIteration(layout, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	require.NoError(t, os.MkdirAll(layout.Dir(1), 0o755))
	require.NoError(t, os.MkdirAll(layout.Dir(3), 0o755))
	n, err = latestIteration(layout, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestFormatBatches(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	var buf bytes.Buffer
	formatBatches(&buf, []model.Batch{
		{Iteration: 1, BatchID: "msgbatch_abc", Requests: 100, Status: model.BatchStatusCollected, CreatedAt: now},
	})

	out := buf.String()
	assert.Contains(t, out, "BATCH_ID")
	assert.Contains(t, out, "msgbatch_abc")
	assert.Contains(t, out, "collected")
	assert.Contains(t, out, "2025-06-15 10:30")
}
