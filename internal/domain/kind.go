package domain

import "fmt"

// FragmentKind tags what kind of content a fragment's text was extracted
// from.
type FragmentKind string

const (
	KindText      FragmentKind = "text"
	KindFlowchart FragmentKind = "flowchart"
	KindSummary   FragmentKind = "summary"
)

func ParseFragmentKind(s string) (FragmentKind, error) {
	switch FragmentKind(s) {
	case KindText, KindFlowchart, KindSummary:
		return FragmentKind(s), nil
	}
	return "", fmt.Errorf("%w: unknown fragment kind %q", ErrInvalidArgument, s)
}
