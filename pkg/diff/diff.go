// Package diff compares an answer with the expected answer and returns error
// information if they are different.
//
// The comparison is exact: no white space is ignored.
package diff

import (
	"fmt"
)

// Mismatch describes the first difference between expected and actual
type Mismatch struct {
	Offset   int
	Expected string
	Actual   string
}

func (m *Mismatch) Error() string {
	return fmt.Sprintf("at byte %d,\nexpected: %q\nactual: %q", m.Offset, m.Expected, m.Actual)
}

// Compare compares actual with expected.
// if they are the same, no error is returned
// otherwise a *Mismatch is returned
func Compare(expected, actual []byte) error {
	n := min(len(expected), len(actual))
	i := 0
	for i < n && expected[i] == actual[i] {
		i++
	}
	if i == len(expected) && i == len(actual) {
		return nil
	}
	return &Mismatch{
		Offset:   i,
		Expected: string(expected),
		Actual:   string(actual),
	}
}
