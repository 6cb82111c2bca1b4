package harness

import (
	"github.com/roach88/tally/internal/eval"
	"github.com/roach88/tally/internal/value"
)

// Result contains the outcome of running a scenario.
type Result struct {
	// Pass is true if the outcome matched and all assertions passed.
	Pass bool

	// Value is the program's result. Nil when the run failed.
	Value value.Value

	// Err is the evaluation error, if any.
	Err error

	// ErrorCode is the evaluation error code. Empty when the run succeeded.
	ErrorCode eval.ErrorCode

	// Trace is every completed stage in completion order.
	Trace []TraceEvent

	// Errors lists mismatches and assertion failures.
	Errors []string
}

// TraceEvent is one recorded stage, stripped of the run ID.
type TraceEvent struct {
	Step   int         `json:"step"`
	Depth  int         `json:"depth"`
	Expr   string      `json:"expr"`
	Output value.Value `json:"output"`
}

func traceFromEvents(events []eval.Event) []TraceEvent {
	out := make([]TraceEvent, len(events))
	for i, ev := range events {
		out[i] = TraceEvent{
			Step:   ev.Step,
			Depth:  ev.Depth,
			Expr:   ev.Expr,
			Output: ev.Output,
		}
	}
	return out
}
