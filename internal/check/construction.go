package check

import "context"

// Construction checks that road works come with temporary signage and that
// temporary line markers are not reported outside a construction zone.
type Construction struct {
	RoadWorks   string
	Signage     string
	LineMarkers string
}

// Name implements Check.
func (c *Construction) Name() string { return "construction" }

// Inputs returns the road-works, signage and line-marker columns.
func (c *Construction) Inputs() []string {
	return []string{c.RoadWorks, c.Signage, c.LineMarkers}
}

// Run flags rows that break the construction zone rules.
func (c *Construction) Run(_ context.Context, in Input) (*Outcome, error) {
	rw, _ := in.Table.Column(c.RoadWorks)
	sign, _ := in.Table.Column(c.Signage)
	lines, _ := in.Table.Column(c.LineMarkers)
	results := make([]Result, in.Table.Len())
	for i := range results {
		results[i] = ConstructionZone(rw[i], sign[i], lines[i])
	}
	return &Outcome{Check: c.Name(), Column: c.RoadWorks + "_check", Results: results}, nil
}

// ConstructionZone judges one row. The first matching rule wins.
func ConstructionZone(roadWorks, signage, lineMarkers string) Result {
	if roadWorks == yes && signage == no {
		return Flag(CodeRoadWorksSignage, "RoadWorks present but missing TemporaryRoadSignage")
	}
	if lineMarkers == yes && roadWorks == no && signage == no {
		return Flag(CodeLineMarkersAlone, "TemporaryLineMarkers present without RoadWorks and Signage")
	}
	return OK()
}
