package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/tally/internal/value"
)

// AssertionError represents a failed assertion with context.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s assertion failed\n", e.Type)
	fmt.Fprintf(&sb, "  expected: %s\n", e.Expected)
	fmt.Fprintf(&sb, "  actual:   %s\n", e.Actual)
	if len(e.Trace) > 0 {
		sb.WriteString("  trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&sb, "    [%d] %s%s => %s\n",
				ev.Step, strings.Repeat("  ", ev.Depth), ev.Expr, value.Render(ev.Output))
		}
	}
	return sb.String()
}

func evaluateAssertion(a Assertion, trace []TraceEvent) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(a, trace)
	case AssertTraceOrder:
		return assertTraceOrder(a, trace)
	case AssertTraceCount:
		return assertTraceCount(a, trace)
	case AssertStageCount:
		return assertStageCount(a, trace)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertTraceContains passes if some stage rendered as a.Expr completed,
// with output equal to a.Output when one is given.
func assertTraceContains(a Assertion, trace []TraceEvent) error {
	var want value.Value
	if a.Output.Kind != 0 {
		v, err := nodeValue(&a.Output)
		if err != nil {
			return fmt.Errorf("trace_contains %s: decoding output: %w", a.Expr, err)
		}
		want = v
	}

	seen := 0
	for _, ev := range trace {
		if ev.Expr != a.Expr {
			continue
		}
		seen++
		if want == nil || value.Equal(want, ev.Output) {
			return nil
		}
	}

	expected := a.Expr
	if want != nil {
		expected = fmt.Sprintf("%s => %s", a.Expr, value.Render(want))
	}
	actual := "no matching stage"
	if seen > 0 {
		actual = fmt.Sprintf("%d matching stage(s) with other outputs", seen)
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   actual,
		Trace:    trace,
	}
}

// assertTraceOrder passes if the first completion of each expr appears in
// the listed order. Other stages may interleave.
func assertTraceOrder(a Assertion, trace []TraceEvent) error {
	first := make(map[string]int, len(a.Exprs))
	for i, ev := range trace {
		if _, ok := first[ev.Expr]; !ok {
			first[ev.Expr] = i
		}
	}

	prev := -1
	for _, expr := range a.Exprs {
		pos, ok := first[expr]
		if !ok {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: strings.Join(a.Exprs, " then "),
				Actual:   fmt.Sprintf("%s never completed", expr),
				Trace:    trace,
			}
		}
		if pos < prev {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: strings.Join(a.Exprs, " then "),
				Actual:   fmt.Sprintf("%s completed out of order", expr),
				Trace:    trace,
			}
		}
		prev = pos
	}
	return nil
}

func assertTraceCount(a Assertion, trace []TraceEvent) error {
	n := 0
	for _, ev := range trace {
		if ev.Expr == a.Expr {
			n++
		}
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%s x%d", a.Expr, a.Count),
			Actual:   fmt.Sprintf("%s x%d", a.Expr, n),
			Trace:    trace,
		}
	}
	return nil
}

func assertStageCount(a Assertion, trace []TraceEvent) error {
	if len(trace) != a.Count {
		return &AssertionError{
			Type:     AssertStageCount,
			Expected: fmt.Sprintf("%d stages", a.Count),
			Actual:   fmt.Sprintf("%d stages", len(trace)),
			Trace:    trace,
		}
	}
	return nil
}
