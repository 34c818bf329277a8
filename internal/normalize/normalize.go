package normalize

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/odd-annotate/internal/schema"
	"github.com/sells-group/odd-annotate/internal/smooth"
	"github.com/sells-group/odd-annotate/internal/table"
)

// Mod counts the cells a rule or a smoothing pass changed in one column.
type Mod struct {
	Column        string
	Rule          string
	Modifications int
	Percentage    float64
}

func newMod(column, rule string, changed, rows int) Mod {
	return Mod{
		Column:        column,
		Rule:          rule,
		Modifications: changed,
		Percentage:    percent(changed, rows),
	}
}

// percent returns changed as a share of rows, rounded to two decimals.
func percent(changed, rows int) float64 {
	if rows < 1 {
		rows = 1
	}
	return math.Round(float64(changed)/float64(rows)*100*100) / 100
}

// ApplyRules runs rules in order and returns the cleaned table with one Mod
// per column a rule changed. Columns a rule names but the table lacks are
// skipped with a warning.
func ApplyRules(t *table.Table, rules []Rule) (*table.Table, []Mod, error) {
	var mods []Mod
	for _, r := range rules {
		cols := r.Columns
		if cols == nil {
			cols = t.Columns()
		}

		patch := table.NewPatch()
		for _, col := range cols {
			values, ok := t.Column(col)
			if !ok {
				zap.L().Warn("normalize: column not found, rule skipped",
					zap.String("rule", r.Name),
					zap.String("column", col),
				)
				continue
			}
			out := make([]string, len(values))
			changed := 0
			for i, v := range values {
				out[i] = r.Apply(v)
				if out[i] != v {
					changed++
				}
			}
			if changed > 0 {
				patch.Set(col, out)
				mods = append(mods, newMod(col, r.Name, changed, t.Len()))
			}
		}

		next, err := t.With(patch)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "normalize: rule %s", r.Name)
		}
		t = next
	}
	return t, mods, nil
}

// Result is the output of a full normalization pass.
type Result struct {
	Table *table.Table
	Mods  []Mod
}

// Run cleans t with rules and then writes the smoothed shadow column of
// every field in s.
func Run(ctx context.Context, s *schema.Schema, t *table.Table, rules []Rule, workers int) (*Result, error) {
	cleaned, mods, err := ApplyRules(t, rules)
	if err != nil {
		return nil, err
	}

	for _, v := range s.ValidateTable(cleaned) {
		zap.L().Warn("normalize: values do not match field kind",
			zap.String("column", v.Column),
			zap.String("kind", string(v.Kind)),
			zap.Int("invalid", v.Invalid),
			zap.String("example", v.Example),
		)
	}

	patch, stats, err := smooth.Apply(ctx, s, cleaned, workers)
	if err != nil {
		return nil, err
	}
	smoothed, err := cleaned.With(patch)
	if err != nil {
		return nil, eris.Wrap(err, "normalize: merge smoothed columns")
	}
	for _, st := range stats {
		if st.Changed > 0 {
			mods = append(mods, newMod(st.Column, "smooth", st.Changed, t.Len()))
		}
	}

	zap.L().Info("normalize: complete",
		zap.Int("rows", smoothed.Len()),
		zap.Int("shadow_columns", patch.Len()),
		zap.Int("modified_columns", len(mods)),
	)
	return &Result{Table: smoothed, Mods: mods}, nil
}
