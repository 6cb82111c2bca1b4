package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tally/internal/compiler"
	"github.com/roach88/tally/internal/eval"
	"github.com/roach88/tally/internal/source"
	"github.com/roach88/tally/internal/testutil"
	"github.com/roach88/tally/internal/value"
)

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Compile the program
//  2. Build globals: the program's data block, then the scenario bindings
//  3. Evaluate the input with a fixed run ID and a trace recorder
//  4. Compare the outcome with Expect
//  5. Evaluate assertions against the trace
//
// The returned error covers setup problems (missing program, bad bindings).
// Evaluation errors are part of the Result.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	unit, err := compiler.Load(scenario.Program)
	if err != nil {
		return nil, fmt.Errorf("compiling program: %w", err)
	}

	globals, err := scenarioGlobals(unit, scenario)
	if err != nil {
		return nil, err
	}

	input, err := nodeValue(&scenario.Input)
	if err != nil {
		return nil, fmt.Errorf("decoding input: %w", err)
	}

	recorder := &eval.Recorder{}
	opts := []eval.Option{
		eval.WithRunIDs(testutil.NewFixedRunIDs(scenario.RunID)),
		eval.WithTracer(recorder),
		eval.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	if scenario.MaxSteps > 0 {
		opts = append(opts, eval.WithMaxSteps(scenario.MaxSteps))
	}
	ev := eval.New(unit.Program, opts...)

	out, runErr := ev.Run(ctx, input, globals)

	result := &Result{
		Value: out,
		Err:   runErr,
		Trace: traceFromEvents(recorder.Events()),
	}
	if code, ok := eval.CodeOf(runErr); ok {
		result.ErrorCode = code
	}

	if err := checkOutcome(scenario.Expect, result); err != nil {
		result.Errors = append(result.Errors, err.Error())
	}
	for _, a := range scenario.Assertions {
		if err := evaluateAssertion(a, result.Trace); err != nil {
			result.Errors = append(result.Errors, err.Error())
		}
	}

	result.Pass = len(result.Errors) == 0
	return result, nil
}

func scenarioGlobals(unit *compiler.Unit, scenario *Scenario) (map[string]value.Value, error) {
	globals := make(map[string]value.Value, len(unit.Data))
	maps.Copy(globals, unit.Data)

	if scenario.Bindings.Kind == 0 {
		return globals, nil
	}
	v, err := source.FromYAMLNode(&scenario.Bindings)
	if err != nil {
		return nil, fmt.Errorf("decoding bindings: %w", err)
	}
	rec, ok := v.(value.Record)
	if !ok {
		return nil, fmt.Errorf("bindings must be a mapping, got %s", value.Kind(v))
	}
	maps.Copy(globals, rec)
	return globals, nil
}

// nodeValue decodes an optional YAML node. An absent node is Null.
func nodeValue(n *yaml.Node) (value.Value, error) {
	if n.Kind == 0 {
		return value.Null{}, nil
	}
	return source.FromYAMLNode(n)
}

func checkOutcome(expect Expect, result *Result) error {
	if expect.Error != "" {
		if result.Err == nil {
			return fmt.Errorf("expected error %s, got value %s", expect.Error, value.Render(result.Value))
		}
		if string(result.ErrorCode) != expect.Error {
			return fmt.Errorf("expected error %s, got %v", expect.Error, result.Err)
		}
		return nil
	}

	if result.Err != nil {
		return fmt.Errorf("expected a value, got error: %v", result.Err)
	}
	want, err := nodeValue(&expect.Value)
	if err != nil {
		return fmt.Errorf("decoding expected value: %w", err)
	}
	if !value.Equal(want, result.Value) {
		return fmt.Errorf("value mismatch: expected %s, got %s", value.Render(want), value.Render(result.Value))
	}
	return nil
}
