package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/odd-annotate/internal/batch"
	"github.com/sells-group/odd-annotate/internal/model"
	"github.com/sells-group/odd-annotate/internal/store"
	"github.com/sells-group/odd-annotate/internal/table"
)

var (
	batchDir        string
	batchRequests   string
	batchIteration  int
	batchSystemFile string
	batchMaxIters   int
	batchOutput     string
	batchSchemaPath string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Submit, collect and flatten VLM annotation batches",
	Long:  "Each iteration lives in <dir>/iteration_<n>/ with its request file, submitted batch ids, merged and corrected results, and the ids that need resubmission.",
}

// -- batch submit --

var batchSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a request file as a new iteration",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		system, err := readSystemPrompt(batchSystemFile)
		if err != nil {
			return err
		}
		env, err := initBatchEnv(ctx, batchDir, system)
		if err != nil {
			return err
		}
		defer env.Close()

		_, err = runBatchSubmit(ctx, env, batchRequests, batchIteration)
		return err
	},
}

// -- batch collect --

var batchCollectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Wait for an iteration's batches and clean their results",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initBatchEnv(ctx, batchDir, "")
		if err != nil {
			return err
		}
		defer env.Close()

		col, err := runBatchCollect(ctx, env, batchIteration)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "results: %d  valid: %d  invalid: %d\n",
			len(col.Items), col.Valid(), len(col.Invalid()))
		return nil
	},
}

// -- batch refine --

var batchRefineCmd = &cobra.Command{
	Use:   "refine",
	Short: "Collect and resubmit invalid results until all are valid JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		system, err := readSystemPrompt(batchSystemFile)
		if err != nil {
			return err
		}
		env, err := initBatchEnv(ctx, batchDir, system)
		if err != nil {
			return err
		}
		defer env.Close()

		maxIters := batchMaxIters
		if maxIters == 0 {
			maxIters = cfg.Batch.MaxIterations
		}
		res, err := runBatchRefine(ctx, env, batchRequests, batchIteration, maxIters)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "stopped at iteration %d  invalid: %d  unknown ids: %d\n",
			res.Iteration, len(res.Invalid), len(res.Missing))
		return nil
	},
}

// -- batch flatten --

var batchFlattenCmd = &cobra.Command{
	Use:   "flatten",
	Short: "Merge corrected results of all iterations into an annotation table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "flatten", batchSchemaPath)
		if err != nil {
			return err
		}
		defer env.Close()

		dir := batchDir
		if dir == "" {
			dir = cfg.Batch.Dir
		}
		_, err = runBatchFlatten(ctx, env, batch.Layout{BaseDir: dir}, batchRequests, batchOutput)
		return err
	},
}

// -- batch status --

var batchStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List recorded batches",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("runs"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		batches, err := st.ListBatches(ctx, store.BatchFilter{Iteration: batchIteration})
		if err != nil {
			return eris.Wrap(err, "batch status")
		}
		if len(batches) == 0 {
			fmt.Fprintln(os.Stderr, "No batches found.")
			return nil
		}
		formatBatches(cmd.OutOrStdout(), batches)
		return nil
	},
}

func init() {
	batchCmd.PersistentFlags().StringVar(&batchDir, "dir", "", "iteration directory root (defaults to batch.dir)")

	batchSubmitCmd.Flags().StringVarP(&batchRequests, "requests", "r", "", "request file (JSONL)")
	batchSubmitCmd.Flags().IntVar(&batchIteration, "iteration", 0, "iteration number (defaults to the next free one)")
	batchSubmitCmd.Flags().StringVar(&batchSystemFile, "system-file", "", "system prompt file (defaults to anthropic.system_prompt)")
	_ = batchSubmitCmd.MarkFlagRequired("requests")

	batchCollectCmd.Flags().IntVar(&batchIteration, "iteration", 0, "iteration number (defaults to the latest)")

	batchRefineCmd.Flags().StringVarP(&batchRequests, "requests", "r", "", "original request file (JSONL)")
	batchRefineCmd.Flags().IntVar(&batchIteration, "iteration", 0, "iteration to start from (defaults to the latest)")
	batchRefineCmd.Flags().IntVar(&batchMaxIters, "max-iterations", 0, "highest iteration number to submit (defaults to batch.max_iterations)")
	batchRefineCmd.Flags().StringVar(&batchSystemFile, "system-file", "", "system prompt file (defaults to anthropic.system_prompt)")
	_ = batchRefineCmd.MarkFlagRequired("requests")

	batchFlattenCmd.Flags().StringVarP(&batchRequests, "requests", "r", "", "original request file (JSONL)")
	batchFlattenCmd.Flags().StringVarP(&batchOutput, "output", "o", "", "annotation table to write (.csv or .xlsx)")
	batchFlattenCmd.Flags().StringVar(&batchSchemaPath, "schema", "", "schema override YAML (scene and sample column names)")
	_ = batchFlattenCmd.MarkFlagRequired("requests")
	_ = batchFlattenCmd.MarkFlagRequired("output")

	batchStatusCmd.Flags().IntVar(&batchIteration, "iteration", 0, "only this iteration")

	batchCmd.AddCommand(batchSubmitCmd)
	batchCmd.AddCommand(batchCollectCmd)
	batchCmd.AddCommand(batchRefineCmd)
	batchCmd.AddCommand(batchFlattenCmd)
	batchCmd.AddCommand(batchStatusCmd)
	rootCmd.AddCommand(batchCmd)
}

func readSystemPrompt(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "read system prompt %s", path)
	}
	return string(data), nil
}

// latestIteration returns n when positive, otherwise the highest
// iteration under layout.
func latestIteration(layout batch.Layout, n int) (int, error) {
	if n > 0 {
		return n, nil
	}
	its, err := layout.Iterations()
	if err != nil {
		return 0, err
	}
	if len(its) == 0 {
		return 0, eris.Errorf("no iterations under %s", layout.BaseDir)
	}
	return its[len(its)-1], nil
}

// runBatchSubmit submits the requests at path as iteration n, or as the
// next free iteration when n is zero.
func runBatchSubmit(ctx context.Context, env *batchEnv, path string, n int) ([]string, error) {
	rec := startRun(ctx, env.Store, model.RunKindSubmit, path)

	reqs, err := batch.ReadRequests(path)
	if err != nil {
		return nil, rec.fail(ctx, err)
	}
	if len(reqs) == 0 {
		return nil, rec.fail(ctx, eris.Errorf("no requests in %s", path))
	}
	if n <= 0 {
		if n, err = env.Layout.Next(); err != nil {
			return nil, rec.fail(ctx, err)
		}
	}

	ids, err := env.Submitter.Submit(ctx, env.Layout, n, reqs)
	if err != nil {
		return ids, rec.fail(ctx, err)
	}
	rec.complete(ctx, env.Layout.BatchIDsPath(n), map[string]int{
		"iteration": n,
		"requests":  len(reqs),
		"batches":   len(ids),
	})
	zap.L().Info("batch submit: complete",
		zap.Int("iteration", n),
		zap.Int("requests", len(reqs)),
		zap.Int("batches", len(ids)),
	)
	return ids, nil
}

// runBatchCollect collects iteration n, or the latest iteration when n is
// zero.
func runBatchCollect(ctx context.Context, env *batchEnv, n int) (*batch.Collection, error) {
	n, err := latestIteration(env.Layout, n)
	if err != nil {
		return nil, err
	}
	rec := startRun(ctx, env.Store, model.RunKindCollect, env.Layout.BatchIDsPath(n))

	col, err := env.Collector.Collect(ctx, env.Layout, n)
	if err != nil {
		return nil, rec.fail(ctx, err)
	}
	rec.complete(ctx, env.Layout.CorrectedPath(n), map[string]int{
		"iteration": n,
		"valid":     col.Valid(),
		"invalid":   len(col.Invalid()),
	})
	return col, nil
}

// runBatchRefine loops collect and resubmit starting at iteration start.
func runBatchRefine(ctx context.Context, env *batchEnv, path string, start, maxIters int) (*batch.RefineResult, error) {
	start, err := latestIteration(env.Layout, start)
	if err != nil {
		return nil, err
	}
	rec := startRun(ctx, env.Store, model.RunKindCollect, path)

	original, err := batch.ReadRequests(path)
	if err != nil {
		return nil, rec.fail(ctx, err)
	}
	r := &batch.Refiner{
		Submitter:     env.Submitter,
		Collector:     env.Collector,
		Layout:        env.Layout,
		MaxIterations: maxIters,
	}
	res, err := r.Run(ctx, original, start)
	if err != nil {
		return nil, rec.fail(ctx, err)
	}
	rec.complete(ctx, env.Layout.CorrectedPath(res.Iteration), map[string]int{
		"iteration": res.Iteration,
		"invalid":   len(res.Invalid),
		"unknown":   len(res.Missing),
	})
	return res, nil
}

// runBatchFlatten merges every iteration's corrected results and writes
// them as a table keyed by the schema's scene and sample columns.
func runBatchFlatten(ctx context.Context, env *annotateEnv, layout batch.Layout, reqPath, output string) (*table.Table, error) {
	rec := startRun(ctx, env.Store, model.RunKindFlatten, layout.BaseDir)

	reqs, err := batch.ReadRequests(reqPath)
	if err != nil {
		return nil, rec.fail(ctx, err)
	}
	results, err := layout.MergeCorrected()
	if err != nil {
		return nil, rec.fail(ctx, err)
	}
	t, skipped, err := batch.Flatten(results, reqs, env.Schema.SceneColumn, env.Schema.SampleColumn)
	if err != nil {
		return nil, rec.fail(ctx, err)
	}
	if len(skipped) > 0 {
		zap.L().Warn("batch flatten: results without a JSON object skipped",
			zap.Int("count", len(skipped)),
			zap.Strings("custom_ids", skipped),
		)
	}
	if err := table.Save(t, output); err != nil {
		return nil, rec.fail(ctx, err)
	}
	rec.complete(ctx, output, map[string]int{"rows": t.Len(), "skipped": len(skipped)})
	zap.L().Info("batch flatten: wrote table",
		zap.String("output", output),
		zap.Int("rows", t.Len()),
		zap.Int("columns", len(t.Columns())),
	)
	return t, nil
}

// formatBatches writes a tabular list of batches to out.
func formatBatches(out io.Writer, batches []model.Batch) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ITERATION\tBATCH_ID\tREQUESTS\tSTATUS\tCREATED")
	_, _ = fmt.Fprintln(w, "---------\t--------\t--------\t------\t-------")
	for _, b := range batches {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n",
			b.Iteration,
			b.BatchID,
			b.Requests,
			b.Status,
			b.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}
