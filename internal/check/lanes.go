package check

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sells-group/odd-annotate/internal/table"
)

// laneJump is the smallest absolute change between adjacent samples that
// counts as sudden.
const laneJump = 2

// LaneJumpLabels flags samples whose numeric value differs from the previous
// sample by at least two. Pairs where either value is not a finite number
// are skipped.
func LaneJumpLabels(seq []string) []Result {
	out := okResults(len(seq))
	for i := 1; i < len(seq); i++ {
		prev, ok := parseNumber(seq[i-1])
		if !ok {
			continue
		}
		cur, ok := parseNumber(seq[i])
		if !ok {
			continue
		}
		diff := cur - prev
		if math.Abs(diff) < laneJump {
			continue
		}
		n := strconv.FormatFloat(math.Trunc(math.Abs(diff)), 'f', 0, 64)
		if diff > 0 {
			out[i] = Flag(CodeLaneJump, fmt.Sprintf("Sudden addition of %s lanes", n))
		} else {
			out[i] = Flag(CodeLaneJump, fmt.Sprintf("Sudden reduction of %s lanes", n))
		}
	}
	return out
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// LaneJump flags sudden lane count changes per scene.
type LaneJump struct {
	SceneColumn string
	Column      string
}

// Name implements Check.
func (c *LaneJump) Name() string { return "lanes" }

// Inputs returns the scene and lane count columns.
func (c *LaneJump) Inputs() []string { return []string{c.SceneColumn, c.Column} }

// Run flags sudden lane count changes within each scene.
func (c *LaneJump) Run(ctx context.Context, in Input) (*Outcome, error) {
	col, _ := in.Table.Column(c.Column)
	results := okResults(in.Table.Len())
	err := table.EachScene(ctx, in.Scenes, in.Workers, func(sc table.Scene) {
		scatterResults(sc, results, LaneJumpLabels(sc.Gather(col)))
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{Check: c.Name(), Column: c.Column + "_check", Results: results}, nil
}
