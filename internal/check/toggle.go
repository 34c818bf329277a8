package check

import (
	"context"

	"github.com/sells-group/odd-annotate/internal/table"
)

const (
	yes = "Yes"
	no  = "No"
)

// ToggleLabels marks the middle sample of every Yes,No,Yes window as an
// immediate exit/re-entry and every No,Yes,No window as an immediate
// entry/exit. Matches do not overlap: scanning resumes two samples later.
func ToggleLabels(seq []string) []Result {
	out := okResults(len(seq))
	for i := 1; i < len(seq)-1; {
		prev, v, next := seq[i-1], seq[i], seq[i+1]
		switch {
		case v == no && prev == yes && next == yes:
			out[i] = Flag(CodeExitReentry, "Immediate exit/re-entry")
			i += 2
		case v == yes && prev == no && next == no:
			out[i] = Flag(CodeEntryExit, "Immediate entry/exit")
			i += 2
		default:
			i++
		}
	}
	return out
}

// Toggle flags single-sample toggles in one binary column, per scene.
type Toggle struct {
	SceneColumn string
	Column      string
}

// Name implements Check.
func (c *Toggle) Name() string { return "toggle:" + c.Column }

// Inputs returns the scene column and the toggled column.
func (c *Toggle) Inputs() []string { return []string{c.SceneColumn, c.Column} }

// Run labels each Yes/No switch within a scene.
func (c *Toggle) Run(ctx context.Context, in Input) (*Outcome, error) {
	col, _ := in.Table.Column(c.Column)
	results := okResults(in.Table.Len())
	err := table.EachScene(ctx, in.Scenes, in.Workers, func(sc table.Scene) {
		scatterResults(sc, results, ToggleLabels(sc.Gather(col)))
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{Check: c.Name(), Column: c.Column + "_check", Results: results}, nil
}

// scatterResults writes scene-ordered results back to their rows.
func scatterResults(sc table.Scene, dst, results []Result) {
	for i, r := range sc.Rows {
		dst[r] = results[i]
	}
}
