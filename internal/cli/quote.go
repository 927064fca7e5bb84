package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/procspawn/internal/cmdline"
)

func newQuoteCmd() *cobra.Command {
	var verify bool
	cmd := &cobra.Command{
		Use:   "quote -- PROGRAM [ARGS...]",
		Short: "Print the command line built for a program and its arguments",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			line := cmdline.Build(args[0], args[1:])
			if verify {
				if got := cmdline.Split(line); !slices.Equal(got, args) {
					return fmt.Errorf("command line %s does not split back into its arguments: got %q", line, got)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
			return nil
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "Check that the command line splits back into the original arguments")
	return cmd
}
