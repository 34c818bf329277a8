package batch

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/odd-annotate/internal/model"
	"github.com/sells-group/odd-annotate/pkg/anthropic"
)

const (
	defaultMaxBatchSize = 100
	warmMaxTokens       = 8
)

// Tracker records submitted batches. Tracking failures never fail a pass.
type Tracker interface {
	SaveBatch(ctx context.Context, b *model.Batch) error
	SetBatchStatus(ctx context.Context, batchID string, status model.BatchStatus) error
}

// Submitter turns requests into remote batches.
type Submitter struct {
	Client       anthropic.Client
	Model        string
	MaxTokens    int64
	System       string
	MaxBatchSize int
	// Limiter paces CreateBatch calls. Nil means unlimited.
	Limiter *rate.Limiter
	// WarmCache sends one short message first so the cached system prompt
	// exists before the batches start.
	WarmCache bool
	Tracker   Tracker
}

// Message builds the multimodal message for r. Frames precede the prompt.
func (s *Submitter) Message(r Request) (anthropic.MessageRequest, error) {
	images := make([]anthropic.Image, 0, len(r.Images))
	for _, ref := range r.Images {
		img, err := anthropic.LoadImage(ref.Path, ref.MediaType)
		if err != nil {
			return anthropic.MessageRequest{}, eris.Wrapf(err, "batch: request %s", r.CustomID)
		}
		images = append(images, img)
	}
	return anthropic.MessageRequest{
		Model:     s.Model,
		MaxTokens: s.MaxTokens,
		System:    anthropic.CachedSystem(s.System),
		Messages: []anthropic.Message{
			{Role: "user", Content: r.Prompt, Images: images},
		},
	}, nil
}

// Submit writes the request file of iteration n, creates one remote batch
// per chunk of MaxBatchSize requests and records the batch ids. The ids file
// is rewritten after every chunk so a failed submission keeps the batches
// already created.
func (s *Submitter) Submit(ctx context.Context, layout Layout, n int, reqs []Request) ([]string, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	if err := WriteRequests(reqs, layout.RequestsPath(n)); err != nil {
		return nil, err
	}

	if s.WarmCache && s.System != "" {
		s.warm(ctx)
	}

	size := s.MaxBatchSize
	if size <= 0 {
		size = defaultMaxBatchSize
	}

	log := zap.L().With(zap.Int("iteration", n))
	var ids []string
	for start := 0; start < len(reqs); start += size {
		chunk := reqs[start:min(start+size, len(reqs))]

		items := make([]anthropic.BatchRequestItem, 0, len(chunk))
		for _, r := range chunk {
			msg, err := s.Message(r)
			if err != nil {
				return ids, err
			}
			items = append(items, anthropic.BatchRequestItem{CustomID: r.CustomID, Params: msg})
		}

		if s.Limiter != nil {
			if err := s.Limiter.Wait(ctx); err != nil {
				return ids, eris.Wrap(err, "batch: submit rate limit")
			}
		}

		resp, err := s.Client.CreateBatch(ctx, anthropic.BatchRequest{Requests: items})
		if err != nil {
			return ids, eris.Wrapf(err, "batch: submit iteration %d", n)
		}
		ids = append(ids, resp.ID)
		if err := WriteLines(ids, layout.BatchIDsPath(n)); err != nil {
			return ids, err
		}
		s.track(ctx, &model.Batch{
			Iteration: n,
			BatchID:   resp.ID,
			Requests:  len(items),
			Status:    model.BatchStatusSubmitted,
		})

		log.Info("batch: submitted",
			zap.String("batch_id", resp.ID),
			zap.Int("requests", len(items)),
		)
	}
	return ids, nil
}

func (s *Submitter) warm(ctx context.Context) {
	_, err := anthropic.WarmCache(ctx, s.Client, anthropic.MessageRequest{
		Model:     s.Model,
		MaxTokens: warmMaxTokens,
		System:    anthropic.CachedSystem(s.System),
		Messages:  []anthropic.Message{{Role: "user", Content: "Reply with OK."}},
	})
	if err != nil {
		zap.L().Warn("batch: cache warm failed", zap.Error(err))
	}
}

func (s *Submitter) track(ctx context.Context, b *model.Batch) {
	if s.Tracker == nil {
		return
	}
	if err := s.Tracker.SaveBatch(ctx, b); err != nil {
		zap.L().Warn("batch: record batch failed", zap.String("batch_id", b.BatchID), zap.Error(err))
	}
}
