package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Paintersrp/procspawn/internal/config"
	"github.com/Paintersrp/procspawn/internal/logging"
	"github.com/Paintersrp/procspawn/internal/process"
)

func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *context) {
	env, envErr := config.LoadEnv()
	if envErr != nil {
		env = config.Env{LogLevel: "info"}
	}

	ctx := &context{env: env}
	root := &cobra.Command{
		Use:   "procspawn",
		Short: "Spawn and supervise child processes",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envErr != nil {
				return envErr
			}
			return ctx.init()
		},
	}

	root.PersistentFlags().
		StringVarP(&ctx.file, "file", "f", "procspawn.yaml", "Path to the profile file")
	root.PersistentFlags().StringVar(&ctx.env.LogLevel, "log-level", env.LogLevel, "Diagnostic log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&ctx.env.LogDev, "log-dev", env.LogDev, "Use the human-readable log encoder")

	root.AddCommand(newRunCmd(ctx))
	root.AddCommand(newDetachCmd(ctx))
	root.AddCommand(newQuoteCmd())
	root.AddCommand(newProfileCmd(ctx))

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, ctx
}

// Execute runs the CLI entrypoint. A child that exits nonzero under run
// makes procspawn exit with the same code.
func Execute() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	root.SetContext(ctx)

	if err := root.ExecuteContext(ctx); err != nil {
		var status *exitStatusError
		if errors.As(err, &status) {
			stop()
			os.Exit(status.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type context struct {
	file string
	env  config.Env

	log     *zap.Logger
	spawner *process.Spawner
}

func (c *context) init() error {
	if c.spawner != nil {
		return nil
	}
	log, err := logging.New(logging.Config{
		Level:       c.env.LogLevel,
		Development: c.env.LogDev,
	})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	c.log = log
	c.spawner = process.New(
		process.WithLogger(log),
		process.WithDebugFlags(c.env.DebugFlags),
	)
	return nil
}

func (c *context) loadProfile(name string) (*config.Profile, error) {
	file, err := config.Load(c.file)
	if err != nil {
		return nil, err
	}
	return file.Lookup(name)
}

// exitStatusError carries the exit code of a child out of a command.
type exitStatusError struct {
	code int
}

func (e *exitStatusError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}
