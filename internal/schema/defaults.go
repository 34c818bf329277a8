package schema

const (
	LanesField           = "Scenery.DrivableArea.LaneSpecification.NumberOfLanes"
	HorizontalPlaneField = "Scenery.DrivableArea.DrivableAreaGeometry.HorizontalPlane"
	RainfallField        = "EnvironmentalConditions.Weather.Rainfall.Visibility"
	DensityField         = "DynamicElements.Traffic.DensityOfAgents"

	dividedField     = "Scenery.DrivableArea.DrivableAreaGeometry.TransversePlane.Divided"
	undividedField   = "Scenery.DrivableArea.DrivableAreaGeometry.TransversePlane.Undivided"
	roadWorksField   = "Scenery.TemporaryRoadStructures.RoadWorks"
	signageField     = "Scenery.TemporaryRoadStructures.TemporaryRoadSignage"
	lineMarkersField = "Scenery.DrivableArea.DrivableAreaEdge.TemporaryLineMarkers"
	dayField         = "EnvironmentalConditions.Illumination.Day"
	nightField       = "EnvironmentalConditions.Illumination.Night"
	clearField       = "EnvironmentalConditions.Weather.Cloudiness.Clear"
	partlyField      = "EnvironmentalConditions.Weather.Cloudiness.PartlyCloudy"
	overcastField    = "EnvironmentalConditions.Weather.Cloudiness.Overcast"

	signsPrefix = "Scenery.DrivableArea.DrivableAreaSigns."
)

// toggleFields are smoothed and also checked for single-sample toggles.
var toggleFields = []string{
	"Scenery.Zones.SchoolZones",
	"Scenery.DrivableArea.DrivableAreaType.Parking",
	"Scenery.DrivableArea.DrivableAreaType.SharedSpace",
	"Scenery.DrivableArea.DrivableAreaGeometry.TransversePlane.Pavements",
	"Scenery.DrivableArea.DrivableAreaGeometry.TransversePlane.BarriersOnEdges",
	"Scenery.DrivableArea.LaneSpecification.LaneNarrow",
	"Scenery.DrivableArea.DrivableAreaEdge.LineMarkers",
	"Scenery.DrivableArea.DrivableAreaEdge.ShoulderPaved",
	"Scenery.DrivableArea.DrivableAreaEdge.ShoulderGrass",
	"Scenery.DrivableArea.DrivableAreaEdge.SolidBarriers",
	"Scenery.DrivableArea.DrivableAreaSurface.SurfaceFeatures.Cracks",
	"Scenery.DrivableArea.DrivableAreaSurface.SurfaceFeatures.Potholes",
	"Scenery.DrivableArea.DrivableAreaSurface.Features.Ruts",
	"Scenery.DrivableArea.DrivableAreaSurface.Features.Swells",
	"Scenery.DrivableArea.DrivableAreaSurface.InducedSurfaceConditions.StandingWater",
	"Scenery.DrivableArea.DrivableAreaSurface.InducedSurfaceConditions.WetRoad",
	"Scenery.DrivableArea.DrivableAreaSurface.InducedSurfaceConditions.SurfaceContamination",
	"Scenery.SpecialStructures.AutomaticAccessControl",
	"Scenery.SpecialStructures.PedestrianCrossings",
	"Scenery.SpecialStructures.RailCrossings",
	"Scenery.FixedRoadStructures.Buildings",
	"Scenery.FixedRoadStructures.StreetLights",
	"Scenery.FixedRoadStructures.StreetFurniture",
	"Scenery.FixedRoadStructures.Vegetation",
	"Scenery.TemporaryRoadStructures.ConstructionSiteDetours",
}

// Default returns the built-in schema for the ODD annotation format.
func Default() *Schema {
	s := &Schema{
		SceneColumn:   "Scene",
		SampleColumn:  "Sample",
		ShadowSuffix:  "_Auto_Check",
		DefaultMinRun: 3,
	}

	for _, name := range toggleFields {
		s.Fields = append(s.Fields, Field{Name: name, Kind: KindBoolean, Smoothing: SmoothRunLength, Toggle: true})
	}
	s.Fields = append(s.Fields,
		Field{Name: dividedField, Kind: KindBoolean, Smoothing: SmoothRunLength, MinRun: 2},
		Field{Name: undividedField, Kind: KindBoolean, Smoothing: SmoothRunLength, MinRun: 2},
		Field{Name: roadWorksField, Kind: KindBoolean, Smoothing: SmoothRunLength},
		Field{Name: signageField, Kind: KindBoolean, Smoothing: SmoothRunLength},
		Field{Name: lineMarkersField, Kind: KindBoolean, Smoothing: SmoothRunLength},
		Field{Name: dayField, Kind: KindBoolean, Smoothing: SmoothRunLength},
		Field{Name: nightField, Kind: KindBoolean, Smoothing: SmoothRunLength},
		Field{Name: clearField, Kind: KindBoolean, Smoothing: SmoothRunLength},
		Field{Name: partlyField, Kind: KindBoolean, Smoothing: SmoothRunLength},
		Field{Name: overcastField, Kind: KindBoolean, Smoothing: SmoothRunLength},
		Field{Name: LanesField, Kind: KindInteger, Smoothing: SmoothSpikes, MinRun: 3},
		Field{Name: HorizontalPlaneField, Kind: KindCategory, Smoothing: SmoothBlips, MinRun: 4},
		Field{Name: RainfallField, Kind: KindCategory},
		Field{Name: DensityField, Kind: KindCategory},
	)

	var pairs []Pair
	for _, group := range []string{"RegulatorySigns", "WarningSigns", "InformationSigns"} {
		pairs = append(pairs, Pair{
			Signs: signsPrefix + group + ".Signs",
			Times: signsPrefix + group + ".TimeOfOperation",
		})
		s.Fields = append(s.Fields,
			Field{Name: signsPrefix + group + ".Signs", Kind: KindList},
			Field{Name: signsPrefix + group + ".TimeOfOperation", Kind: KindList},
		)
	}

	s.Checks = Checks{
		Divided:       s.Shadow(dividedField),
		Undivided:     s.Shadow(undividedField),
		DividedOutput: "Scenery.DrivableArea.DrivableAreaGeometry.TransversePlane.Divided_Undivided_check",
		Lanes:         s.Shadow(LanesField),
		Day:           s.Shadow(dayField),
		Night:         s.Shadow(nightField),
		DayNightOut:   "EnvironmentalConditions.Illumination_Day_Night_check",
		Clear:         s.Shadow(clearField),
		PartlyCloudy:  s.Shadow(partlyField),
		Overcast:      s.Shadow(overcastField),
		RoadWorks:     s.Shadow(roadWorksField),
		Signage:       s.Shadow(signageField),
		LineMarkers:   s.Shadow(lineMarkersField),
		SignTimePairs: pairs,
	}

	s.index()
	return s
}
