package cli

import (
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/value"
)

// RenderResult is the JSON payload of the render command.
type RenderResult struct {
	Program string                 `json:"program"`
	Lets    []string               `json:"lets"`
	Data    map[string]value.Value `json:"data,omitempty"`
}

// NewRenderCommand creates the render command.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "render <program>",
		Short: "Print a program's canonical rendering",
		Long: `Compile a CUE program and print its deterministic rendering.

Lets are listed in sorted order, so equal programs always render the same.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			unit, err := loadProgram(args[0])
			if err != nil {
				return loadFailure(formatter, err)
			}

			if formatter.Format == "json" {
				return formatter.Success(RenderResult{
					Program: unit.Program.String(),
					Lets:    unit.Program.LetNames(),
					Data:    unit.Data,
				})
			}
			if err := formatter.Success(unit.Program.String()); err != nil {
				return err
			}
			for _, k := range slices.Sorted(maps.Keys(unit.Data)) {
				formatter.VerboseLog("data %s = %s", k, value.Render(unit.Data[k]))
			}
			return nil
		},
	}
}
