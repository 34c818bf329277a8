package check

// Code identifies the kind of issue a check found.
type Code string

const (
	CodeOK                 Code = "ok"
	CodeExitReentry        Code = "immediate_exit_reentry"
	CodeEntryExit          Code = "immediate_entry_exit"
	CodeDividedEqual       Code = "divided_undivided_equal"
	CodeIlluminationEqual  Code = "illumination_equal"
	CodeLaneJump           Code = "lane_jump"
	CodeListParse          Code = "list_parse_error"
	CodeListLength         Code = "list_length_mismatch"
	CodeRoadWorksSignage   Code = "roadworks_without_signage"
	CodeLineMarkersAlone   Code = "line_markers_without_roadworks"
	CodeCloudinessInvalid  Code = "cloudiness_invalid"
	CodeCloudinessSkipPart Code = "cloudiness_skips_partly_cloudy"
)

// okLabel is the rendered value of a passing row.
const okLabel = "OK"

// Result is the outcome of one check on one row: OK, or a reason code with
// a human-readable detail.
type Result struct {
	Code   Code   `json:"code"`
	Detail string `json:"detail,omitempty"`
}

// OK returns a passing result.
func OK() Result { return Result{Code: CodeOK} }

// Flag returns a failing result.
func Flag(code Code, detail string) Result {
	return Result{Code: code, Detail: detail}
}

// IsOK reports whether the row passed.
func (r Result) IsOK() bool { return r.Code == CodeOK || r.Code == "" }

// String renders the result the way it appears in a _check column.
func (r Result) String() string {
	if r.IsOK() {
		return okLabel
	}
	return r.Detail
}

// okResults returns n passing results.
func okResults(n int) []Result {
	out := make([]Result, n)
	for i := range out {
		out[i] = OK()
	}
	return out
}

// Render converts results to column values.
func Render(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.String()
	}
	return out
}

// IsOKLabel reports whether a rendered check cell is a pass.
func IsOKLabel(v string) bool { return v == okLabel }
