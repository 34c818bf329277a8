package check

import "github.com/sells-group/odd-annotate/internal/schema"

// FromSchema builds the standard check suite in its fixed order: toggles,
// divided/undivided, lane jumps, sign/time pairs, construction zone,
// illumination, cloudiness.
func FromSchema(s *schema.Schema) []Check {
	var checks []Check
	for _, col := range s.ToggleColumns() {
		checks = append(checks, &Toggle{SceneColumn: s.SceneColumn, Column: col})
	}

	c := s.Checks
	checks = append(checks,
		DividedUndivided(c.Divided, c.Undivided, c.DividedOutput),
		&LaneJump{SceneColumn: s.SceneColumn, Column: c.Lanes},
	)
	for _, p := range c.SignTimePairs {
		checks = append(checks, &ListPair{Signs: p.Signs, Times: p.Times})
	}
	checks = append(checks,
		&Construction{RoadWorks: c.RoadWorks, Signage: c.Signage, LineMarkers: c.LineMarkers},
		Illumination(c.Day, c.Night, c.DayNightOut),
		&Cloudiness{
			SceneColumn:  s.SceneColumn,
			Clear:        c.Clear,
			PartlyCloudy: c.PartlyCloudy,
			Overcast:     c.Overcast,
		},
	)
	return checks
}

// NewRunner returns a Runner for the standard suite of s.
func NewRunner(s *schema.Schema, workers int) *Runner {
	return &Runner{Checks: FromSchema(s), SceneColumn: s.SceneColumn, Workers: workers}
}
