package check

import (
	"context"

	"github.com/sells-group/odd-annotate/internal/table"
)

// CloudState is the resolved cloudiness of one sample.
type CloudState int

const (
	StateInvalid CloudState = iota - 1
	StateClear
	StatePartlyCloudy
	StateOvercast
)

// Sky holds one scene's three cloudiness flag sequences.
type Sky struct {
	Clear        []string
	PartlyCloudy []string
	Overcast     []string
}

func (s Sky) columns() [3][]string {
	return [3][]string{s.Clear, s.PartlyCloudy, s.Overcast}
}

// dezigzag overwrites every sample that differs from two equal neighbours.
// It scans left to right and sees its own earlier corrections.
func dezigzag(seq []string) []string {
	out := table.Clone(seq)
	for i := 1; i < len(out)-1; i++ {
		if out[i-1] != "" && out[i-1] == out[i+1] && out[i] != out[i-1] {
			out[i] = out[i-1]
		}
	}
	return out
}

// ResolveSky runs the cloudiness state machine over one scene. It returns
// the corrected flags, the state of each sample and a result per sample.
//
// Flicker is removed per column first. Samples without exactly one active
// flag inherit the last valid state silently, or are flagged when no valid
// state has been seen yet. Finally a direct Clear/Overcast transition is
// flagged at its landing sample unless it is a one-sample detour.
func ResolveSky(in Sky) (Sky, []CloudState, []Result) {
	sky := Sky{
		Clear:        dezigzag(in.Clear),
		PartlyCloudy: dezigzag(in.PartlyCloudy),
		Overcast:     dezigzag(in.Overcast),
	}
	n := len(sky.Clear)
	results := okResults(n)
	states := make([]CloudState, n)

	last := StateInvalid
	for j := 0; j < n; j++ {
		active, state := 0, StateInvalid
		for k, col := range sky.columns() {
			if col[j] == yes {
				active++
				state = CloudState(k)
			}
		}
		switch {
		case active == 1:
			states[j] = state
			last = state
		case last != StateInvalid:
			for k, col := range sky.columns() {
				if CloudState(k) == last {
					col[j] = yes
				} else {
					col[j] = no
				}
			}
			states[j] = last
		default:
			states[j] = StateInvalid
			results[j] = Flag(CodeCloudinessInvalid, "Cloudiness inconsistency: multiple or none active")
		}
	}

	FlagTransitions(states, results)

	return sky, states, results
}

// FlagTransitions flags direct Clear/Overcast transitions in a resolved
// state sequence at the landing sample. A one-sample excursion that returns
// to the previous state is allowed. Invalid samples are skipped.
func FlagTransitions(states []CloudState, results []Result) {
	n := len(states)
	for j := 1; j < n; j++ {
		prev, cur := states[j-1], states[j]
		if prev == StateInvalid || cur == StateInvalid {
			continue
		}
		if absState(cur-prev) != 2 {
			continue
		}
		brief := j >= 2 && j+1 < n && states[j-2] == prev && states[j+1] == prev
		if !brief {
			results[j] = Flag(CodeCloudinessSkipPart, "Clear <-> Overcast must go through PartlyCloudy")
		}
	}
}

func absState(d CloudState) CloudState {
	if d < 0 {
		return -d
	}
	return d
}

// Cloudiness enforces a single cloudiness state per sample and legal
// transitions between states, per scene. It also returns the corrected
// cloudiness flags.
type Cloudiness struct {
	SceneColumn  string
	Clear        string
	PartlyCloudy string
	Overcast     string
}

// Name implements Check.
func (c *Cloudiness) Name() string { return "cloudiness" }

// Inputs returns the sky-state columns.
func (c *Cloudiness) Inputs() []string {
	return []string{c.SceneColumn, c.Clear, c.PartlyCloudy, c.Overcast}
}

// Run resolves the sky state of each scene and returns the corrected
// flags alongside the per-row results.
func (c *Cloudiness) Run(ctx context.Context, in Input) (*Outcome, error) {
	clearCol, _ := in.Table.Column(c.Clear)
	partlyCol, _ := in.Table.Column(c.PartlyCloudy)
	overcastCol, _ := in.Table.Column(c.Overcast)

	fixed := Sky{
		Clear:        table.Clone(clearCol),
		PartlyCloudy: table.Clone(partlyCol),
		Overcast:     table.Clone(overcastCol),
	}
	results := okResults(in.Table.Len())

	err := table.EachScene(ctx, in.Scenes, in.Workers, func(sc table.Scene) {
		sky, _, res := ResolveSky(Sky{
			Clear:        sc.Gather(clearCol),
			PartlyCloudy: sc.Gather(partlyCol),
			Overcast:     sc.Gather(overcastCol),
		})
		sc.Scatter(fixed.Clear, sky.Clear)
		sc.Scatter(fixed.PartlyCloudy, sky.PartlyCloudy)
		sc.Scatter(fixed.Overcast, sky.Overcast)
		scatterResults(sc, results, res)
	})
	if err != nil {
		return nil, err
	}

	corrections := table.NewPatch()
	corrections.Set(c.Clear, fixed.Clear)
	corrections.Set(c.PartlyCloudy, fixed.PartlyCloudy)
	corrections.Set(c.Overcast, fixed.Overcast)

	return &Outcome{
		Check:       c.Name(),
		Column:      c.Clear + "_check",
		Results:     results,
		Corrections: corrections,
	}, nil
}
