package cli

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/compiler"
	"github.com/roach88/tally/internal/eval"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Bindings string
	Globals  []string
	Strict   bool
}

// CheckResult holds static check results.
type CheckResult struct {
	Valid    bool                        `json:"valid"`
	Errors   []compiler.ValidationError  `json:"errors,omitempty"`
	Warnings []compiler.RecursionWarning `json:"warnings,omitempty"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <program>",
		Short: "Compile and statically check a program",
		Long: `Compile a CUE program and check it without running it.

Reports unresolved names, arity mismatches against lets, duplicate params
and empty identifiers as coded errors. Recursive lets are reported as
warnings; --strict turns them into failures.

Names from the data block and builtins always resolve. Use --bindings or
--global to declare globals supplied at run time.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Bindings, "bindings", "b", "", "YAML or JSON file declaring run-time globals")
	cmd.Flags().StringArrayVar(&opts.Globals, "global", nil, "name of a run-time global, repeatable")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "treat recursion warnings as errors")

	return cmd
}

func runCheck(opts *CheckOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	unit, err := loadProgram(path)
	if err != nil {
		return loadFailure(formatter, err)
	}
	globals, err := buildGlobals(unit, opts.Bindings, nil)
	if err != nil {
		return loadFailure(formatter, err)
	}

	known := slices.Collect(maps.Keys(globals))
	known = append(known, opts.Globals...)
	for _, b := range eval.Builtins() {
		known = append(known, b.Name)
	}
	formatter.VerboseLog("Checking %s against %d known name(s)", path, len(known))

	result := CheckResult{
		Errors:   compiler.Validate(unit.Program, known),
		Warnings: compiler.AnalyzeRecursion(unit.Program),
	}
	result.Valid = len(result.Errors) == 0 && (!opts.Strict || len(result.Warnings) == 0)

	return outputCheck(formatter, result)
}

func outputCheck(f *OutputFormatter, result CheckResult) error {
	if f.Format == "json" {
		resp := CLIResponse{Status: StatusOK, Data: result}
		if !result.Valid {
			resp.Status = StatusError
			resp.Error = &CLIError{
				Code:    ErrCodeInvalid,
				Message: fmt.Sprintf("%d error(s), %d warning(s)", len(result.Errors), len(result.Warnings)),
			}
		}
		if err := f.JSON(resp); err != nil {
			return err
		}
	} else {
		w := f.Writer
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  %s\n", e.Error())
		}
		for _, warn := range result.Warnings {
			fmt.Fprintf(w, "  warning: %s\n", warn.Message)
		}
		if result.Valid {
			fmt.Fprintln(w, "✓ Program valid")
		} else {
			fmt.Fprintf(w, "✗ Check failed: %d error(s), %d warning(s)\n", len(result.Errors), len(result.Warnings))
		}
	}

	if !result.Valid {
		return NewExitError(ExitFailure, "program check failed")
	}
	return nil
}
