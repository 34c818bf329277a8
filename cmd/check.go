package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/odd-annotate/internal/check"
	"github.com/sells-group/odd-annotate/internal/model"
	"github.com/sells-group/odd-annotate/internal/report"
	"github.com/sells-group/odd-annotate/internal/table"
)

type checkOpts struct {
	Input   string
	Output  string
	Summary string
	Schema  string
}

var checkFlags checkOpts

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the consistency checks over a normalized table",
	Long:  "Appends one *_check column per check family. Each cell is OK or the reason the row was flagged.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "check", checkFlags.Schema)
		if err != nil {
			return err
		}
		defer env.Close()

		sum, err := runCheck(ctx, env, checkFlags)
		if err != nil {
			return err
		}
		formatSummary(cmd.OutOrStdout(), sum)
		return nil
	},
}

func init() {
	f := checkCmd.Flags()
	f.StringVarP(&checkFlags.Input, "input", "i", "", "normalized annotation table (.csv or .xlsx)")
	f.StringVarP(&checkFlags.Output, "output", "o", "", "where to write the checked table (.csv or .xlsx)")
	f.StringVar(&checkFlags.Summary, "summary", "", "optional summary JSON path")
	f.StringVar(&checkFlags.Schema, "schema", "", "schema override YAML (defaults to schema.path)")
	_ = checkCmd.MarkFlagRequired("input")
	_ = checkCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(checkCmd)
}

// runCheck runs the standard check suite over opts.Input and writes the
// checked table and, optionally, its summary.
func runCheck(ctx context.Context, env *annotateEnv, opts checkOpts) (*report.Summary, error) {
	rec := startRun(ctx, env.Store, model.RunKindCheck, opts.Input)

	t, err := table.Load(opts.Input)
	if err != nil {
		return nil, rec.fail(ctx, err)
	}

	pass, err := check.NewRunner(env.Schema, env.Workers).Run(ctx, t)
	if err != nil {
		return nil, rec.fail(ctx, err)
	}
	if err := table.Save(pass.Table, opts.Output); err != nil {
		return nil, rec.fail(ctx, err)
	}

	sum := report.FromPass(opts.Input, opts.Output, pass)
	if opts.Summary != "" {
		if err := report.WriteSummary(sum, opts.Summary); err != nil {
			return nil, rec.fail(ctx, err)
		}
	}
	rec.complete(ctx, opts.Output, sum.Issues)

	zap.L().Info("check: wrote table",
		zap.String("output", opts.Output),
		zap.Int("rows", sum.Rows),
		zap.Int("issues", sum.Total()),
		zap.Strings("skipped", sum.Skipped),
		zap.String("run_id", rec.ID()),
	)
	return sum, nil
}
