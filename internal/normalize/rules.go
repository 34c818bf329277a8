// Package normalize cleans noisy VLM annotation values before smoothing:
// Unicode cleanup, known answer variants, lane counts and categorical maps.
package normalize

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/odd-annotate/internal/schema"
)

// Rule rewrites the cells of some columns. A nil Columns list applies the
// rule to every column of the table.
type Rule struct {
	Name    string
	Columns []string
	Apply   func(string) string
}

// Replace returns a value mapper that rewrites every key of m to its value
// and leaves other values unchanged.
func Replace(m map[string]string) func(string) string {
	return func(v string) string {
		if r, ok := m[v]; ok {
			return r
		}
		return v
	}
}

// Clean applies NFKC normalization and trims surrounding whitespace.
func Clean(v string) string {
	return strings.TrimSpace(norm.NFKC.String(v))
}

// laneMap maps free-text lane answers to a lane count.
var laneMap = map[string]int{
	"No":                             1,
	"1, No":                          1,
	"2 lanes":                        2,
	"2, No":                          2,
	"2, 3":                           2,
	"Two":                            2,
	"two":                            2,
	"3, No":                          3,
	"Multiple":                       2,
	"Multiple lanes":                 2,
	"Multiple lanes, No":             2,
	"Yes":                            2,
	"1 or 2":                         2,
	"n/a, No":                        1,
	"N/A":                            1,
	"1.5":                            1,
	"1 lane":                         1,
	"1, Yes":                         1,
	"2, Yes":                         2,
	"Number of Lanes, No":            1,
	"Four":                           4,
	"4, No":                          4,
	"1, Parking":                     2,
	"one":                            1,
	"3, including a motorcycle lane": 3,
	"Three":                          3,
}

// Lanes converts a lane answer to an integer string. Empty answers count
// as one lane. Unrecognized text is left as is.
func Lanes(v string) string {
	if v == "" {
		return "1"
	}
	if n, ok := laneMap[v]; ok {
		return strconv.Itoa(n)
	}
	if n, err := strconv.Atoi(v); err == nil {
		return strconv.Itoa(n)
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return strconv.Itoa(int(f))
	}
	return v
}

var rainfallMap = map[string]string{
	"Light":                              "LightRain",
	"Moderate":                           "ModerateRain",
	"LightRain, ModerateRain, HeavyRain": "No",
}

// Rainfall maps rainfall visibility answers to their category. Empty
// answers become "No".
func Rainfall(v string) string {
	if v == "" {
		return "No"
	}
	return Replace(rainfallMap)(v)
}

func always(value string) func(string) string {
	return func(string) string { return value }
}

// DefaultRules returns the cleanup rules for the standard annotation format,
// in the order they run.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "unicode", Apply: Clean},
		{
			Name: "yes_no_to_no",
			Columns: []string{
				"Scenery.Zones.SchoolZones",
				"Scenery.Zones.RegionsOrStates",
				"Scenery.DrivableArea.DrivableAreaType.Parking",
				"Scenery.DrivableArea.DrivableAreaType.DistributorRoads",
			},
			Apply: Replace(map[string]string{"Yes, No": "No"}),
		},
		{
			Name:    "partial_to_yes",
			Columns: []string{"Scenery.DrivableArea.DrivableAreaEdge.ShoulderGrass"},
			Apply:   Replace(map[string]string{"Yes (partial)": "Yes"}),
		},
		{
			Name: "uncertain_to_no",
			Columns: []string{
				"Scenery.TemporaryRoadStructures.ConstructionSiteDetours",
				"Scenery.DrivableArea.DrivableAreaSurface.InducedSurfaceConditions.StandingWater",
			},
			Apply: Replace(map[string]string{"Possible": "No", "Maybe": "No"}),
		},
		{Name: "lanes", Columns: []string{schema.LanesField}, Apply: Lanes},
		{Name: "rainfall", Columns: []string{schema.RainfallField}, Apply: Rainfall},
		{
			Name: "force_no",
			Columns: []string{
				"EnvironmentalConditions.Weather.Snowfall.Visibility",
				"Scenery.SpecialStructures.Tunnels",
				"Scenery.SpecialStructures.TollPlaza",
				"Scenery.DrivableArea.LaneSpecification.LaneType.TramLane",
				"Scenery.DrivableArea.LaneSpecification.LaneType.EmergencyLane",
				"Scenery.DrivableArea.DrivableAreaType.Motorways",
				"Scenery.DrivableArea.DrivableAreaType.RadialRoads",
				"EnvironmentalConditions.Particulates.VolcanicAsh",
				"EnvironmentalConditions.Particulates.SmokeAndPollution",
				"EnvironmentalConditions.Particulates.SandAndDust",
				"EnvironmentalConditions.Particulates.NonPrecipitatingWaterDroplets",
				"EnvironmentalConditions.Particulates.Marine",
				"EnvironmentalConditions.Illumination.ArtificialIllumination",
			},
			Apply: always("No"),
		},
		{
			Name:    "density",
			Columns: []string{schema.DensityField},
			Apply:   Replace(map[string]string{"Moderate": "Medium"}),
		},
	}
}
