package check

import (
	"context"
	"fmt"

	"github.com/sells-group/odd-annotate/internal/listlit"
)

// ListPair compares the lengths of two list-valued columns row by row.
type ListPair struct {
	Signs string
	Times string
}

// Name implements Check.
func (c *ListPair) Name() string { return "sign_time_pair:" + c.Signs }

// Inputs returns the sign and time list columns.
func (c *ListPair) Inputs() []string { return []string{c.Signs, c.Times} }

// Run flags rows whose sign and time lists differ in length or fail to parse.
func (c *ListPair) Run(_ context.Context, in Input) (*Outcome, error) {
	signs, _ := in.Table.Column(c.Signs)
	times, _ := in.Table.Column(c.Times)
	results := make([]Result, in.Table.Len())
	for i := range results {
		results[i] = ListLengths(signs[i], times[i])
	}
	return &Outcome{Check: c.Name(), Column: c.Signs + "_pair_check", Results: results}, nil
}

// ListLengths judges one row: both cells must parse as lists of equal length.
// Empty cells do not parse.
func ListLengths(signs, times string) Result {
	ls, errS := listlit.Len(signs)
	lt, errT := listlit.Len(times)
	switch {
	case errS != nil || errT != nil:
		return Flag(CodeListParse, "Parse error (non-list)")
	case ls != lt:
		return Flag(CodeListLength, fmt.Sprintf("Length mismatch (signs=%d, times=%d)", ls, lt))
	default:
		return OK()
	}
}
