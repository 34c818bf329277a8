package batch

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/odd-annotate/internal/model"
	"github.com/sells-group/odd-annotate/pkg/anthropic"
)

// typeMissing marks a submitted request that has no result in any batch.
const typeMissing = "missing"

// Collector downloads and cleans the results of one iteration.
type Collector struct {
	Client   anthropic.Client
	Model    string
	PollOpts []anthropic.PollOption
	Tracker  Tracker
}

// Collect waits for every batch of iteration n, cleans the results and
// writes the iteration's merged, corrected and invalid files. Batches that
// end expired or canceled are logged and contribute no results; their
// requests are reported as missing.
func (c *Collector) Collect(ctx context.Context, layout Layout, n int) (*Collection, error) {
	ids, err := ReadLines(layout.BatchIDsPath(n))
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.Int("iteration", n))

	col := &Collection{}
	for _, id := range ids {
		resp, err := anthropic.PollBatch(ctx, c.Client, id, c.PollOpts...)
		if err != nil {
			if resp == nil {
				return nil, eris.Wrapf(err, "batch: collect iteration %d", n)
			}
			log.Error("batch: batch did not complete",
				zap.String("batch_id", id),
				zap.String("status", resp.ProcessingStatus),
				zap.Error(err),
			)
			c.setStatus(ctx, id, model.BatchStatusFailed)
			continue
		}

		iter, err := c.Client.GetBatchResults(ctx, id)
		if err != nil {
			return nil, eris.Wrapf(err, "batch: collect iteration %d", n)
		}
		res, err := anthropic.CollectBatchResults(iter)
		if err != nil {
			return nil, eris.Wrapf(err, "batch: collect iteration %d", n)
		}
		col.Add(res.Items)
		col.Usage = col.Usage.Add(res.Usage)
		c.setStatus(ctx, id, model.BatchStatusCollected)

		log.Info("batch: fetched results",
			zap.String("batch_id", id),
			zap.Int("items", len(res.Items)),
			zap.Int("failed", len(res.Failures)),
		)
	}

	if err := c.addMissing(layout, n, col); err != nil {
		return nil, err
	}
	if err := layout.WriteCollection(n, col); err != nil {
		return nil, err
	}

	col.Usage.LogCost(c.Model, "collect")
	log.Info("batch: iteration collected",
		zap.Int("results", len(col.Items)),
		zap.Int("valid", col.Valid()),
		zap.Int("invalid", len(col.Invalid())),
	)
	return col, nil
}

// addMissing appends a failed entry for every request of iteration n that
// produced no result. Iterations without a request file are left alone.
func (c *Collector) addMissing(layout Layout, n int, col *Collection) error {
	path := layout.RequestsPath(n)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	reqs, err := ReadRequests(path)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(col.Items))
	for _, it := range col.Items {
		seen[it.CustomID] = true
	}
	for _, r := range reqs {
		if seen[r.CustomID] {
			continue
		}
		seen[r.CustomID] = true
		col.Items = append(col.Items, Cleaned{
			CustomID: r.CustomID,
			Type:     typeMissing,
			Value:    map[string]any{"error": typeMissing},
		})
	}
	return nil
}

func (c *Collector) setStatus(ctx context.Context, batchID string, status model.BatchStatus) {
	if c.Tracker == nil {
		return
	}
	if err := c.Tracker.SetBatchStatus(ctx, batchID, status); err != nil {
		zap.L().Warn("batch: update batch status failed", zap.String("batch_id", batchID), zap.Error(err))
	}
}
