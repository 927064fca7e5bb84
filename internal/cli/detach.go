package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/procspawn/internal/process"
)

func newDetachCmd(ctx *context) *cobra.Command {
	var profileName string
	cmd := &cobra.Command{
		Use:   "detach [flags] -- PROGRAM [ARGS...]",
		Short: "Start a program that outlives procspawn and print its pid",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := ctx.detachedOptions(profileName, args)
			if err != nil {
				return err
			}
			pid, err := ctx.spawner.SpawnDetached(opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pid)
			return nil
		},
	}
	cmd.Flags().StringVar(&profileName, "profile", "", "Spawn the named detached profile from the profile file")
	return cmd
}

func (c *context) detachedOptions(profileName string, args []string) (process.DetachedOptions, error) {
	if profileName != "" {
		if len(args) > 0 {
			return process.DetachedOptions{}, errors.New("--profile and a program are mutually exclusive")
		}
		profile, err := c.loadProfile(profileName)
		if err != nil {
			return process.DetachedOptions{}, err
		}
		if !profile.Detached {
			return process.DetachedOptions{}, fmt.Errorf("profile %q is not detached; use the run command", profileName)
		}
		return profile.DetachedOptions(), nil
	}

	if len(args) == 0 {
		return process.DetachedOptions{}, errors.New("a program or --profile is required")
	}
	program, err := resolveProgram(args[0])
	if err != nil {
		return process.DetachedOptions{}, err
	}
	return process.DetachedOptions{Program: program, Args: args[1:]}, nil
}
