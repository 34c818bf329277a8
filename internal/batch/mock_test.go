package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/odd-annotate/internal/model"
	"github.com/sells-group/odd-annotate/pkg/anthropic"
)

// fakeClient is an in-memory batch API. Every created batch ends at once
// with results produced by respond.
type fakeClient struct {
	mu        sync.Mutex
	created   []anthropic.BatchRequest
	messages  []anthropic.MessageRequest
	status    map[string]string
	results   map[string][]anthropic.BatchResultItem
	respond   func(item anthropic.BatchRequestItem) anthropic.BatchResultItem
	createErr error
}

func newFakeClient(respond func(anthropic.BatchRequestItem) anthropic.BatchResultItem) *fakeClient {
	return &fakeClient{
		status:  make(map[string]string),
		results: make(map[string][]anthropic.BatchResultItem),
		respond: respond,
	}
}

func (f *fakeClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, req)
	return &anthropic.MessageResponse{ID: "msg_warm"}, nil
}

func (f *fakeClient) CreateBatch(_ context.Context, req anthropic.BatchRequest) (*anthropic.BatchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, req)
	id := fmt.Sprintf("msgbatch_%d", len(f.created))
	f.status[id] = "ended"
	if f.respond != nil {
		for _, item := range req.Requests {
			f.results[id] = append(f.results[id], f.respond(item))
		}
	}
	return &anthropic.BatchResponse{ID: id, ProcessingStatus: "in_progress"}, nil
}

func (f *fakeClient) GetBatch(_ context.Context, batchID string) (*anthropic.BatchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.status[batchID]
	if !ok {
		return nil, fmt.Errorf("unknown batch %s", batchID)
	}
	return &anthropic.BatchResponse{ID: batchID, ProcessingStatus: status}, nil
}

func (f *fakeClient) GetBatchResults(_ context.Context, batchID string) (anthropic.BatchResultIterator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &sliceIterator{items: f.results[batchID], idx: -1}, nil
}

// sliceIterator yields a fixed list of items.
type sliceIterator struct {
	items []anthropic.BatchResultItem
	idx   int
}

func (s *sliceIterator) Next() bool {
	if s.idx+1 < len(s.items) {
		s.idx++
		return true
	}
	return false
}

func (s *sliceIterator) Item() anthropic.BatchResultItem { return s.items[s.idx] }
func (s *sliceIterator) Err() error                      { return nil }
func (s *sliceIterator) Close() error                    { return nil }

// mockTracker records tracking calls.
type mockTracker struct {
	mu       sync.Mutex
	saved    []model.Batch
	statuses map[string]model.BatchStatus
	err      error
}

func (m *mockTracker) SaveBatch(_ context.Context, b *model.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, *b)
	return m.err
}

func (m *mockTracker) SetBatchStatus(_ context.Context, batchID string, status model.BatchStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statuses == nil {
		m.statuses = make(map[string]model.BatchStatus)
	}
	m.statuses[batchID] = status
	return m.err
}

func textResult(id, text string) anthropic.BatchResultItem {
	return anthropic.BatchResultItem{
		CustomID: id,
		Type:     "succeeded",
		Message: &anthropic.MessageResponse{
			Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
			Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 20},
		},
	}
}

// pngHeader is enough of a PNG for content sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// writeFrames creates one PNG frame per request and returns the requests.
func writeFrames(t *testing.T, dir string, ids ...string) []Request {
	t.Helper()
	reqs := make([]Request, 0, len(ids))
	for i, id := range ids {
		path := filepath.Join(dir, id+".png")
		require.NoError(t, os.WriteFile(path, pngHeader, 0o644))
		reqs = append(reqs, Request{
			CustomID: id,
			Scene:    "scene-1",
			Sample:   fmt.Sprintf("s%d", i),
			Prompt:   "Describe the ODD attributes as JSON.",
			Images:   []ImageRef{{Path: path}},
		})
	}
	return reqs
}
