package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/odd-annotate/internal/model"
	"github.com/sells-group/odd-annotate/internal/normalize"
	"github.com/sells-group/odd-annotate/internal/report"
	"github.com/sells-group/odd-annotate/internal/table"
)

type normalizeOpts struct {
	Input  string
	Output string
	Report string
	Schema string
}

var normalizeFlags normalizeOpts

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Clean raw annotation values and write smoothed shadow columns",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "normalize", normalizeFlags.Schema)
		if err != nil {
			return err
		}
		defer env.Close()

		_, err = runNormalize(ctx, env, normalizeFlags)
		return err
	},
}

func init() {
	f := normalizeCmd.Flags()
	f.StringVarP(&normalizeFlags.Input, "input", "i", "", "annotation table to clean (.csv or .xlsx)")
	f.StringVarP(&normalizeFlags.Output, "output", "o", "", "where to write the normalized table (.csv or .xlsx)")
	f.StringVar(&normalizeFlags.Report, "report", "", "optional modification report CSV")
	f.StringVar(&normalizeFlags.Schema, "schema", "", "schema override YAML (defaults to schema.path)")
	_ = normalizeCmd.MarkFlagRequired("input")
	_ = normalizeCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(normalizeCmd)
}

// runNormalize runs the cleanup rules and smoothing over opts.Input and
// writes the result, recording the pass in env.Store.
func runNormalize(ctx context.Context, env *annotateEnv, opts normalizeOpts) (*normalize.Result, error) {
	rec := startRun(ctx, env.Store, model.RunKindNormalize, opts.Input)

	t, err := table.Load(opts.Input)
	if err != nil {
		return nil, rec.fail(ctx, err)
	}
	zap.L().Info("normalize: loaded table",
		zap.String("input", opts.Input),
		zap.Int("rows", t.Len()),
		zap.Int("columns", len(t.Columns())),
	)

	res, err := normalize.Run(ctx, env.Schema, t, normalize.DefaultRules(), env.Workers)
	if err != nil {
		return nil, rec.fail(ctx, err)
	}
	if err := table.Save(res.Table, opts.Output); err != nil {
		return nil, rec.fail(ctx, err)
	}
	if opts.Report != "" {
		if err := report.WriteMods(res.Mods, opts.Report); err != nil {
			return nil, rec.fail(ctx, err)
		}
	}

	summary := make(map[string]int, len(res.Mods))
	for _, m := range res.Mods {
		summary[m.Column] += m.Modifications
	}
	rec.complete(ctx, opts.Output, summary)

	zap.L().Info("normalize: wrote table",
		zap.String("output", opts.Output),
		zap.Int("modified_columns", len(res.Mods)),
		zap.String("run_id", rec.ID()),
	)
	return res, nil
}
