package main

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/odd-annotate/internal/batch"
	"github.com/sells-group/odd-annotate/internal/schema"
	"github.com/sells-group/odd-annotate/internal/store"
	"github.com/sells-group/odd-annotate/pkg/anthropic"
)

// annotateEnv holds what the table passes share: the field schema, the
// worker count and the optional run history.
type annotateEnv struct {
	Store   store.Store // may be nil
	Schema  *schema.Schema
	Workers int
}

// Close releases the store, if any.
func (e *annotateEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// loadSchema reads the schema override at path, falling back to
// schema.path from config and then to the built-in schema.
func loadSchema(path string) (*schema.Schema, error) {
	if path == "" && cfg != nil {
		path = cfg.Schema.Path
	}
	if path == "" {
		return schema.Default(), nil
	}
	s, err := schema.Load(path)
	if err != nil {
		return nil, err
	}
	zap.L().Info("schema loaded", zap.String("path", path), zap.Int("fields", len(s.Fields)))
	return s, nil
}

// initEnv validates config for mode and builds the shared environment.
// Callers should defer env.Close().
func initEnv(ctx context.Context, mode, schemaPath string) (*annotateEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	s, err := loadSchema(schemaPath)
	if err != nil {
		return nil, err
	}
	return &annotateEnv{
		Store:   openHistory(ctx),
		Schema:  s,
		Workers: cfg.Check.Workers,
	}, nil
}

// batchEnv extends annotateEnv with the remote client and the batch
// submitter/collector pair configured from cfg.
type batchEnv struct {
	*annotateEnv
	Layout    batch.Layout
	Submitter *batch.Submitter
	Collector *batch.Collector
}

// newBatchEnv wires client into a submitter and collector that track
// batches in env.Store.
func newBatchEnv(env *annotateEnv, client anthropic.Client, dir, system string) *batchEnv {
	var tracker batch.Tracker
	if env.Store != nil {
		tracker = env.Store
	}

	var limiter *rate.Limiter
	if cfg.Batch.SubmitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Batch.SubmitRPS), 1)
	}

	var pollOpts []anthropic.PollOption
	if cfg.Batch.PollIntervalSecs > 0 {
		pollOpts = append(pollOpts, anthropic.WithPollInterval(time.Duration(cfg.Batch.PollIntervalSecs)*time.Second))
	}
	if cfg.Batch.PollTimeoutMins > 0 {
		pollOpts = append(pollOpts, anthropic.WithPollTimeout(time.Duration(cfg.Batch.PollTimeoutMins)*time.Minute))
	}

	if dir == "" {
		dir = cfg.Batch.Dir
	}
	return &batchEnv{
		annotateEnv: env,
		Layout:      batch.Layout{BaseDir: dir},
		Submitter: &batch.Submitter{
			Client:       client,
			Model:        cfg.Anthropic.Model,
			MaxTokens:    cfg.Anthropic.MaxTokens,
			System:       system,
			MaxBatchSize: cfg.Anthropic.MaxBatchSize,
			Limiter:      limiter,
			WarmCache:    cfg.Anthropic.WarmCache,
			Tracker:      tracker,
		},
		Collector: &batch.Collector{
			Client:   client,
			Model:    cfg.Anthropic.Model,
			PollOpts: pollOpts,
			Tracker:  tracker,
		},
	}
}

// initBatchEnv validates batch config and connects the API client.
func initBatchEnv(ctx context.Context, dir, system string) (*batchEnv, error) {
	env, err := initEnv(ctx, "batch", "")
	if err != nil {
		return nil, err
	}
	if system == "" {
		system = cfg.Anthropic.SystemPrompt
	}
	client := anthropic.NewClient(cfg.Anthropic.Key)
	return newBatchEnv(env, client, dir, system), nil
}
