package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		switch event.Type {
		case EventSubmit:
			fmt.Fprintf(&buf, "  [%d] submit %v %s\n", event.Seq, event.IDs, event.Result)
		case EventBroadcast:
			fmt.Fprintf(&buf, "  [%d] broadcast %s %s\n", event.Seq, event.ID, event.Result)
		default:
			fmt.Fprintf(&buf, "  [%d] %s %s %s %s\n", event.Seq, event.Type, event.ID, event.Status, event.Result)
		}
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertBroadcastOrder:
			err = assertBroadcastOrder(result, a)
		case AssertBroadcastCount:
			err = assertBroadcastCount(result, a)
		case AssertFinalStatus:
			err = assertFinalStatus(result, a)
		case AssertStatusCount:
			err = assertStatusCount(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

// assertBroadcastOrder checks that the successful broadcasts are exactly
// the expected ids, in order.
func assertBroadcastOrder(result *Result, a Assertion) error {
	got := []string{}
	for _, e := range result.broadcasts("") {
		if e.Result == ResultOK {
			got = append(got, e.ID)
		}
	}
	if slices.Equal(got, a.IDs) {
		return nil
	}
	return &AssertionError{
		Type:     AssertBroadcastOrder,
		Expected: fmt.Sprintf("%v", a.IDs),
		Actual:   fmt.Sprintf("%v", got),
		Trace:    result.Trace,
	}
}

// assertBroadcastCount checks how many times id was offered to peers,
// whatever the outcome.
func assertBroadcastCount(result *Result, a Assertion) error {
	got := len(result.broadcasts(a.ID))
	if got == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertBroadcastCount,
		Expected: fmt.Sprintf("%s broadcast %d times", a.ID, a.Count),
		Actual:   fmt.Sprintf("%d times", got),
		Trace:    result.Trace,
	}
}

func assertFinalStatus(result *Result, a Assertion) error {
	got, ok := result.Final[a.ID]
	if !ok {
		got = "<not stored>"
	}
	if got == a.Status {
		return nil
	}
	return &AssertionError{
		Type:     AssertFinalStatus,
		Expected: fmt.Sprintf("%s is %s", a.ID, a.Status),
		Actual:   got,
		Trace:    result.Trace,
	}
}

func assertStatusCount(result *Result, a Assertion) error {
	got := 0
	for _, status := range result.Final {
		if status == a.Status {
			got++
		}
	}
	if got == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertStatusCount,
		Expected: fmt.Sprintf("%d records %s", a.Count, a.Status),
		Actual:   fmt.Sprintf("%d", got),
		Trace:    result.Trace,
	}
}
