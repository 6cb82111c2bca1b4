// Package harness runs YAML conformance scenarios against tally programs.
//
// A scenario names a program (a .cue file or directory), the globals and
// input to run it with, and the expected outcome: either a value or an
// evaluation error code. Optional assertions inspect the stage trace.
//
// Scenarios run with a fixed run ID and a discarding logger, so the trace
// of a given scenario is the same on every run and can be compared against
// a golden file:
//
//	s, err := harness.LoadScenario("testdata/scenarios/addx.yaml")
//	if err != nil {
//	    t.Fatal(err)
//	}
//	harness.RunWithGolden(t, s)
//
// Golden files live in testdata/golden and are regenerated with
//
//	go test ./internal/harness -update
package harness
