package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/odd-annotate/internal/model"
	"github.com/sells-group/odd-annotate/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "odd.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store.database_url is required for postgres (ODD_STORE_DATABASE_URL)")
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens and migrates the configured store.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// openHistory is openStore for data passes: a store that cannot be opened
// is logged and the pass runs without history.
func openHistory(ctx context.Context) store.Store {
	st, err := openStore(ctx)
	if err != nil {
		zap.L().Warn("store unavailable, run history disabled", zap.Error(err))
		return nil
	}
	return st
}

// runRecorder records one pass in the run history. A nil store or a failed
// write only logs.
type runRecorder struct {
	st  store.Store
	run *model.Run
}

func startRun(ctx context.Context, st store.Store, kind model.RunKind, input string) *runRecorder {
	rec := &runRecorder{st: st}
	if st == nil {
		return rec
	}
	run, err := st.CreateRun(ctx, kind, input)
	if err != nil {
		zap.L().Warn("record run start", zap.String("kind", string(kind)), zap.Error(err))
		return rec
	}
	rec.run = run
	zap.L().Debug("run started", zap.String("run_id", run.ID), zap.String("kind", string(kind)))
	return rec
}

// ID returns the recorded run id, or "" when history is off.
func (r *runRecorder) ID() string {
	if r == nil || r.run == nil {
		return ""
	}
	return r.run.ID
}

func (r *runRecorder) complete(ctx context.Context, output string, summary map[string]int) {
	if r == nil || r.run == nil {
		return
	}
	if err := r.st.CompleteRun(ctx, r.run.ID, output, summary); err != nil {
		zap.L().Warn("record run completion", zap.String("run_id", r.run.ID), zap.Error(err))
	}
}

// fail records err and returns it unchanged.
func (r *runRecorder) fail(ctx context.Context, err error) error {
	if r == nil || r.run == nil || err == nil {
		return err
	}
	// The pass context may already be canceled.
	if ferr := r.st.FailRun(context.WithoutCancel(ctx), r.run.ID, err.Error()); ferr != nil {
		zap.L().Warn("record run failure", zap.String("run_id", r.run.ID), zap.Error(ferr))
	}
	return err
}
