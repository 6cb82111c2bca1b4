package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/eval"
	"github.com/roach88/tally/internal/value"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Inputs      []string
	Bindings    string
	Sets        []string
	Database    string
	Query       string
	MaxSteps    int
	MaxDepth    int
	Concurrency int
	Trace       bool

	// RunIDs overrides the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs eval.RunIDGenerator
}

// RunOutput is the JSON payload of the run command.
type RunOutput struct {
	Results []value.Value `json:"results"`
	Trace   []TraceLine   `json:"trace,omitempty"`
}

// TraceLine is one traced stage.
type TraceLine struct {
	RunID  string      `json:"run_id"`
	Step   int         `json:"step"`
	Depth  int         `json:"depth"`
	Expr   string      `json:"expr"`
	Output value.Value `json:"output"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <program>",
		Short: "Evaluate a program against inputs",
		Long: `Evaluate a CUE program once per input.

Inputs are YAML or JSON files, or the rows of a SQLite query as a bag of
records. With no input the program runs once against null. Multiple
inputs run concurrently; results print in input order.

Globals come from the program's data block, then --bindings, then --set.

Examples:
  tally run ./people.cue --input people.yaml
  tally run ./prog --input a.json --input b.json --set minAge=21
  tally run ./prog --db app.db --query "SELECT name, age FROM people"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProgram(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Inputs, "input", "i", nil, "input file (.yaml, .yml or .json), repeatable")
	cmd.Flags().StringVarP(&opts.Bindings, "bindings", "b", "", "YAML or JSON file of extra globals")
	cmd.Flags().StringArrayVar(&opts.Sets, "set", nil, "global as name=value, repeatable")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database to read the input bag from")
	cmd.Flags().StringVar(&opts.Query, "query", "", "SQL query producing the input bag (with --db)")
	cmd.Flags().IntVar(&opts.MaxSteps, "max-steps", eval.DefaultMaxSteps, "step quota per run (0 disables)")
	cmd.Flags().IntVar(&opts.MaxDepth, "max-depth", eval.DefaultMaxDepth, "let nesting quota per run (0 disables)")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 0, "max runs in flight (0 = unbounded)")
	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "print every completed stage")

	return cmd
}

func runProgram(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger(cmd)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	unit, err := loadProgram(path)
	if err != nil {
		return loadFailure(formatter, err)
	}
	logger.Debug("program compiled", "path", path, "lets", len(unit.Program.Lets), "globals", len(unit.Data))

	globals, err := buildGlobals(unit, opts.Bindings, opts.Sets)
	if err != nil {
		return loadFailure(formatter, err)
	}

	inputs, err := loadInputs(ctx, opts.Inputs, opts.Database, opts.Query)
	if err != nil {
		return loadFailure(formatter, err)
	}
	logger.Debug("inputs loaded", "count", len(inputs))

	runIDs := opts.RunIDs
	if runIDs == nil {
		runIDs = eval.UUIDv7Generator{}
	}
	evOpts := []eval.Option{
		eval.WithLogger(logger),
		eval.WithRunIDs(runIDs),
		eval.WithMaxSteps(opts.MaxSteps),
		eval.WithMaxDepth(opts.MaxDepth),
		eval.WithConcurrency(opts.Concurrency),
	}
	var recorder *eval.Recorder
	if opts.Trace {
		recorder = &eval.Recorder{}
		evOpts = append(evOpts, eval.WithTracer(recorder))
	}
	ev := eval.New(unit.Program, evOpts...)

	results, err := ev.RunAll(ctx, inputs, globals)
	if err != nil {
		return evalFailure(formatter, err)
	}

	out := RunOutput{Results: results}
	if recorder != nil {
		for _, e := range recorder.Events() {
			out.Trace = append(out.Trace, TraceLine{RunID: e.RunID, Step: e.Step, Depth: e.Depth, Expr: e.Expr, Output: e.Output})
		}
	}
	return outputRun(formatter, out)
}

func outputRun(f *OutputFormatter, out RunOutput) error {
	if f.Format == "json" {
		return f.Success(out)
	}

	if len(out.Trace) > 0 {
		w := f.GetErrWriter()
		for _, t := range out.Trace {
			fmt.Fprintf(w, "%s [%d] %*s%s => %s\n", t.RunID, t.Step, 2*t.Depth, "", t.Expr, value.Render(t.Output))
		}
	}
	for _, v := range out.Results {
		fmt.Fprintln(f.Writer, value.Render(v))
	}
	return nil
}

// evalFailure reports an evaluation error. Coded errors keep their code.
func evalFailure(f *OutputFormatter, err error) error {
	code := ErrCodeGeneric
	var details any
	var ee *eval.Error
	if errors.As(err, &ee) {
		code = string(ee.Code)
		if len(ee.Details) > 0 {
			details = ee.Details
		}
	}
	_ = f.Error(code, err.Error(), details)
	return WrapExitError(ExitFailure, "evaluation failed", err)
}
