package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/eval"
)

// BuiltinInfo describes one catalog entry.
type BuiltinInfo struct {
	Name  string `json:"name"`
	Arity int    `json:"arity"`
	Doc   string `json:"doc"`
}

// NewBuiltinsCommand creates the builtins command.
func NewBuiltinsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "builtins",
		Short:         "List builtin names",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)

			catalog := eval.Builtins()
			infos := make([]BuiltinInfo, len(catalog))
			for i, b := range catalog {
				infos[i] = BuiltinInfo{Name: b.Name, Arity: b.Arity, Doc: b.Doc}
			}
			if formatter.Format == "json" {
				return formatter.Success(infos)
			}

			tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tARITY\tDOC")
			for _, b := range infos {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", b.Name, b.Arity, b.Doc)
			}
			return tw.Flush()
		},
	}
}
