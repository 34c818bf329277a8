// Package schema declares the typed annotation fields, how each one is
// smoothed, and which columns feed each consistency check.
package schema

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Kind is the value type of an annotation field.
type Kind string

const (
	KindBoolean  Kind = "boolean"
	KindInteger  Kind = "integer"
	KindCategory Kind = "category"
	KindList     Kind = "list"
)

// Smoothing selects the temporal smoothing variant applied to a field.
type Smoothing string

const (
	SmoothNone      Smoothing = "none"
	SmoothRunLength Smoothing = "run_length"
	SmoothSpikes    Smoothing = "spikes"
	SmoothBlips     Smoothing = "blips"
)

// Field describes one annotation column.
type Field struct {
	Name      string    `yaml:"name"`
	Kind      Kind      `yaml:"kind"`
	Smoothing Smoothing `yaml:"smoothing"`
	MinRun    int       `yaml:"min_run"` // 0 = schema default
	Toggle    bool      `yaml:"toggle"`  // run the local toggle check on the shadow column
}

// Pair names two list-valued columns whose lengths must match.
type Pair struct {
	Signs string `yaml:"signs"`
	Times string `yaml:"times"`
}

// Checks wires concrete column names into the consistency checks. Names are
// the columns the checks read, normally the smoothed shadow columns.
type Checks struct {
	Divided       string `yaml:"divided"`
	Undivided     string `yaml:"undivided"`
	DividedOutput string `yaml:"divided_output"`
	Lanes         string `yaml:"lanes"`
	Day           string `yaml:"day"`
	Night         string `yaml:"night"`
	DayNightOut   string `yaml:"day_night_output"`
	Clear         string `yaml:"clear"`
	PartlyCloudy  string `yaml:"partly_cloudy"`
	Overcast      string `yaml:"overcast"`
	RoadWorks     string `yaml:"road_works"`
	Signage       string `yaml:"signage"`
	LineMarkers   string `yaml:"line_markers"`
	SignTimePairs []Pair `yaml:"sign_time_pairs"`
}

// Schema is the full field and check configuration.
type Schema struct {
	SceneColumn   string  `yaml:"scene_column"`
	SampleColumn  string  `yaml:"sample_column"`
	ShadowSuffix  string  `yaml:"shadow_suffix"`
	DefaultMinRun int     `yaml:"default_min_run"`
	Fields        []Field `yaml:"fields"`
	Checks        Checks  `yaml:"checks"`

	byName map[string]int
}

// Field returns the field with the given name.
func (s *Schema) Field(name string) (Field, bool) {
	if s.byName == nil {
		s.index()
	}
	i, ok := s.byName[name]
	if !ok {
		return Field{}, false
	}
	return s.Fields[i], true
}

// MinRun returns the effective minimum consecutive run for f.
func (s *Schema) MinRun(f Field) int {
	if f.MinRun > 0 {
		return f.MinRun
	}
	return s.DefaultMinRun
}

// Shadow returns the auto-corrected column name for a field.
func (s *Schema) Shadow(name string) string {
	return name + s.ShadowSuffix
}

// Smoothed returns the fields that have a smoothing variant, in order.
func (s *Schema) Smoothed() []Field {
	var out []Field
	for _, f := range s.Fields {
		if f.Smoothing != "" && f.Smoothing != SmoothNone {
			out = append(out, f)
		}
	}
	return out
}

// ToggleColumns returns the shadow columns the toggle check reads.
func (s *Schema) ToggleColumns() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Toggle {
			out = append(out, s.Shadow(f.Name))
		}
	}
	return out
}

func (s *Schema) index() {
	s.byName = make(map[string]int, len(s.Fields))
	for i, f := range s.Fields {
		s.byName[f.Name] = i
	}
}

// Validate checks the schema for internal consistency.
func (s *Schema) Validate() error {
	if s.SceneColumn == "" {
		return eris.New("schema: scene_column is required")
	}
	if s.DefaultMinRun < 1 {
		return eris.Errorf("schema: default_min_run must be >= 1, got %d", s.DefaultMinRun)
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return eris.New("schema: field with empty name")
		}
		if seen[f.Name] {
			return eris.Errorf("schema: duplicate field %q", f.Name)
		}
		seen[f.Name] = true

		switch f.Kind {
		case KindBoolean, KindInteger, KindCategory, KindList:
		default:
			return eris.Errorf("schema: field %q has unknown kind %q", f.Name, f.Kind)
		}
		switch f.Smoothing {
		case "", SmoothNone, SmoothRunLength, SmoothSpikes, SmoothBlips:
		default:
			return eris.Errorf("schema: field %q has unknown smoothing %q", f.Name, f.Smoothing)
		}
		if f.Smoothing == SmoothRunLength && f.Kind != KindBoolean {
			return eris.Errorf("schema: field %q: run_length smoothing needs a boolean field", f.Name)
		}
		if f.MinRun < 0 {
			return eris.Errorf("schema: field %q has negative min_run", f.Name)
		}
	}
	for i, p := range s.Checks.SignTimePairs {
		if p.Signs == "" || p.Times == "" {
			return eris.Errorf("schema: sign_time_pairs[%d] needs both signs and times", i)
		}
	}
	s.index()
	return nil
}

// Load reads a YAML schema from path. Keys absent from the file keep the
// values of Default(); a non-empty fields list replaces the default list.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "schema: read %s", path)
	}
	return Parse(data)
}

// Parse decodes YAML over Default() and validates the result.
func Parse(data []byte) (*Schema, error) {
	s := Default()
	defaultFields := s.Fields
	s.Fields = nil
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, eris.Wrap(err, "schema: parse")
	}
	if len(s.Fields) == 0 {
		s.Fields = defaultFields
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
