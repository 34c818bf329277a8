// Package check runs semantic consistency checks over scene-ordered
// annotation tables and emits one _check column per check.
package check

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/odd-annotate/internal/table"
)

// Input is the table snapshot a check runs against.
type Input struct {
	Table   *table.Table
	Scenes  []table.Scene
	Workers int
}

// Outcome is what one check produced: a result per row for Column and,
// optionally, corrected values for the fields it read.
type Outcome struct {
	Check       string
	Column      string
	Results     []Result
	Corrections *table.Patch
}

// Flagged counts the rows that did not pass.
func (o *Outcome) Flagged() int {
	n := 0
	for _, r := range o.Results {
		if !r.IsOK() {
			n++
		}
	}
	return n
}

// Codes counts failing rows per reason code.
func (o *Outcome) Codes() map[Code]int {
	out := make(map[Code]int)
	for _, r := range o.Results {
		if !r.IsOK() {
			out[r.Code]++
		}
	}
	return out
}

// Check is a single consistency rule.
type Check interface {
	// Name identifies the check in logs and reports.
	Name() string
	// Inputs lists the columns the check needs; if any is missing the check
	// is skipped.
	Inputs() []string
	// Run evaluates the check against in. It must not modify in.Table.
	Run(ctx context.Context, in Input) (*Outcome, error)
}

// Runner applies checks in order, merging each outcome into a fresh table
// snapshot before the next check runs.
type Runner struct {
	Checks      []Check
	SceneColumn string
	Workers     int
}

// Pass is the result of running every check.
type Pass struct {
	Table    *table.Table
	Outcomes []*Outcome
	Skipped  []string
}

// Run evaluates all checks against t and returns the augmented table.
func (r *Runner) Run(ctx context.Context, t *table.Table) (*Pass, error) {
	pass := &Pass{Table: t}

	var scenes []table.Scene
	if t.Has(r.SceneColumn) {
		var err error
		if scenes, err = t.Scenes(r.SceneColumn); err != nil {
			return nil, err
		}
	}

	for _, c := range r.Checks {
		if missing := pass.Table.Missing(c.Inputs()...); len(missing) > 0 {
			zap.L().Warn("check: missing columns, skipped",
				zap.String("check", c.Name()),
				zap.Strings("missing", missing),
			)
			pass.Skipped = append(pass.Skipped, c.Name())
			continue
		}

		out, err := c.Run(ctx, Input{Table: pass.Table, Scenes: scenes, Workers: r.Workers})
		if err != nil {
			return nil, eris.Wrapf(err, "check: %s", c.Name())
		}

		patch := table.NewPatch()
		patch.Set(out.Column, Render(out.Results))
		if out.Corrections != nil {
			patch.Merge(out.Corrections)
		}
		next, err := pass.Table.With(patch)
		if err != nil {
			return nil, eris.Wrapf(err, "check: merge %s", c.Name())
		}
		pass.Table = next
		pass.Outcomes = append(pass.Outcomes, out)

		zap.L().Info("check: complete",
			zap.String("check", c.Name()),
			zap.String("column", out.Column),
			zap.Int("flagged", out.Flagged()),
		)
	}

	return pass, nil
}
