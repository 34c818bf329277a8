package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/odd-annotate/internal/report"
	"github.com/sells-group/odd-annotate/internal/table"
)

var (
	reportInput  string
	reportOutput string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize the *_check columns of an already checked table",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := table.Load(reportInput)
		if err != nil {
			return err
		}
		sum := report.Scan(reportInput, t)
		if reportOutput != "" {
			if err := report.WriteSummary(sum, reportOutput); err != nil {
				return err
			}
		}
		formatSummary(cmd.OutOrStdout(), sum)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVarP(&reportInput, "input", "i", "", "checked annotation table (.csv or .xlsx)")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "optional summary JSON path")
	_ = reportCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(reportCmd)
}

// formatSummary writes the flagged columns of s, most issues first.
func formatSummary(out io.Writer, s *report.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Rows:\t%d\n", s.Rows)
	_, _ = fmt.Fprintf(w, "Flagged cells:\t%d\n", s.Total())
	if len(s.Skipped) > 0 {
		_, _ = fmt.Fprintf(w, "Skipped checks:\t%d\n", len(s.Skipped))
	}
	if len(s.Issues) > 0 {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, "COLUMN\tISSUES")
		_, _ = fmt.Fprintln(w, "------\t------")
		for _, c := range s.Columns() {
			_, _ = fmt.Fprintf(w, "%s\t%d\n", c, s.Issues[c])
		}
	}
	_ = w.Flush()
}
