package check

import "context"

// Exclusive flags rows where two mutually exclusive binary columns hold the
// same value. Rows where either cell is empty are not judged.
type Exclusive struct {
	Label  string
	A, B   string
	Output string
	Code   Code
	Detail string
}

// DividedUndivided returns the Divided/Undivided exclusivity check.
func DividedUndivided(divided, undivided, output string) *Exclusive {
	return &Exclusive{
		Label:  "divided_undivided",
		A:      divided,
		B:      undivided,
		Output: output,
		Code:   CodeDividedEqual,
		Detail: "Divided/Undivided inconsistency (both equal)",
	}
}

// Illumination returns the Day/Night exclusivity check.
func Illumination(day, night, output string) *Exclusive {
	return &Exclusive{
		Label:  "illumination",
		A:      day,
		B:      night,
		Output: output,
		Code:   CodeIlluminationEqual,
		Detail: "Illumination inconsistency (Day and Night are the same)",
	}
}

// Name implements Check.
func (c *Exclusive) Name() string { return c.Label }

// Inputs returns both columns of the pair.
func (c *Exclusive) Inputs() []string { return []string{c.A, c.B} }

// Run flags rows where both columns hold the same value.
func (c *Exclusive) Run(_ context.Context, in Input) (*Outcome, error) {
	a, _ := in.Table.Column(c.A)
	b, _ := in.Table.Column(c.B)
	results := okResults(in.Table.Len())
	for i := range results {
		if a[i] != "" && b[i] != "" && a[i] == b[i] {
			results[i] = Flag(c.Code, c.Detail)
		}
	}
	return &Outcome{Check: c.Name(), Column: c.Output, Results: results}, nil
}
