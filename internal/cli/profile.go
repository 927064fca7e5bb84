package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/procspawn/internal/cmdline"
	"github.com/Paintersrp/procspawn/internal/config"
)

func newProfileCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Work with spawn profile files",
	}
	cmd.AddCommand(newProfileLintCmd(ctx))
	cmd.AddCommand(newProfileListCmd(ctx))
	return cmd
}

func newProfileLintCmd(ctx *context) *cobra.Command {
	return &cobra.Command{
		Use:   "lint",
		Short: "Validate a profile file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(ctx.file); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n", ctx.file)
			return nil
		},
	}
}

func newProfileListCmd(ctx *context) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the profiles of a profile file with their command lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := config.Load(ctx.file)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(file.Profiles))
			for name := range file.Profiles {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				p := file.Profiles[name]
				mode := "run"
				if p.Detached {
					mode = "detach"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", name, mode, cmdline.Build(p.Program, p.Args))
			}
			return nil
		},
	}
}
