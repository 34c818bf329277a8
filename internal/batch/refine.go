package batch

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Refiner repeats collect and resubmit until every result is valid JSON.
type Refiner struct {
	Submitter *Submitter
	Collector *Collector
	Layout    Layout
	// MaxIterations caps the iteration number. Zero means no cap.
	MaxIterations int
}

// RefineResult reports where a refinement loop stopped.
type RefineResult struct {
	Iteration int
	Invalid   []string
	Missing   []string
}

// Run collects iteration start, then resubmits its invalid ids, looked up
// in original, as the next iteration. It stops when nothing is invalid, when
// no invalid id can be resubmitted, or at MaxIterations.
func (r *Refiner) Run(ctx context.Context, original []Request, start int) (*RefineResult, error) {
	if start < 1 {
		return nil, eris.Errorf("batch: invalid start iteration %d", start)
	}
	idx := IndexRequests(original)

	n := start
	for {
		col, err := r.Collector.Collect(ctx, r.Layout, n)
		if err != nil {
			return nil, err
		}
		invalid := col.Invalid()
		res := &RefineResult{Iteration: n, Invalid: invalid}
		log := zap.L().With(zap.Int("iteration", n), zap.Int("invalid", len(invalid)))

		if len(invalid) == 0 {
			log.Info("batch: all results valid")
			return res, nil
		}
		if r.MaxIterations > 0 && n >= r.MaxIterations {
			log.Warn("batch: max iterations reached with invalid results")
			return res, nil
		}

		retry, missing := Select(idx, invalid)
		res.Missing = missing
		for _, id := range missing {
			log.Warn("batch: no original request for custom_id", zap.String("custom_id", id))
		}
		if len(retry) == 0 {
			return res, nil
		}

		if _, err := r.Submitter.Submit(ctx, r.Layout, n+1, retry); err != nil {
			return nil, err
		}
		log.Info("batch: resubmitted invalid results", zap.Int("requests", len(retry)))
		n++
	}
}
