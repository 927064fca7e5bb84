package cli

import (
	stdcontext "context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/Paintersrp/procspawn/internal/logmux"
	"github.com/Paintersrp/procspawn/internal/metrics"
	"github.com/Paintersrp/procspawn/internal/process"
)

const muxBuffer = 256

type runOptions struct {
	profile     string
	jsonOutput  bool
	stdinPipe   bool
	keepStdin   bool
	killAfter   time.Duration
	killCode    uint32
	metricsFile string
}

func newRunCmd(ctx *context) *cobra.Command {
	opts := runOptions{
		keepStdin: term.IsTerminal(int(os.Stdin.Fd())),
		killCode:  1,
	}
	cmd := &cobra.Command{
		Use:   "run [flags] -- PROGRAM [ARGS...]",
		Short: "Spawn a program and stream its output",
		RunE: func(cmd *cobra.Command, args []string) error {
			spawnOpts, err := ctx.runSpawnOptions(opts, args)
			if err != nil {
				return err
			}
			return ctx.run(cmd, spawnOpts, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.profile, "profile", "", "Spawn the named profile from the profile file")
	flags.BoolVar(&opts.jsonOutput, "json", false, "Emit output lines as JSON records")
	flags.BoolVar(&opts.stdinPipe, "stdin-pipe", false, "Feed procspawn's stdin to the child through a pipe")
	flags.BoolVar(&opts.keepStdin, "keep-stdin", opts.keepStdin, "Hand procspawn's stdin to the child (default when stdin is a terminal)")
	flags.DurationVar(&opts.killAfter, "kill-after", 0, "Kill the child after this duration")
	flags.Uint32Var(&opts.killCode, "kill-code", opts.killCode, "Exit code applied when the child is killed")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on completion")
	return cmd
}

func (c *context) runSpawnOptions(opts runOptions, args []string) (process.SpawnOptions, error) {
	if opts.profile != "" {
		if len(args) > 0 {
			return process.SpawnOptions{}, errors.New("--profile and a program are mutually exclusive")
		}
		profile, err := c.loadProfile(opts.profile)
		if err != nil {
			return process.SpawnOptions{}, err
		}
		if profile.Detached {
			return process.SpawnOptions{}, fmt.Errorf("profile %q is detached; use the detach command", opts.profile)
		}
		spawnOpts, err := profile.SpawnOptions()
		if err != nil {
			return process.SpawnOptions{}, err
		}
		if spawnOpts.Program, err = resolveProgram(spawnOpts.Program); err != nil {
			return process.SpawnOptions{}, err
		}
		return spawnOpts, nil
	}

	if len(args) == 0 {
		return process.SpawnOptions{}, errors.New("a program or --profile is required")
	}
	program, err := resolveProgram(args[0])
	if err != nil {
		return process.SpawnOptions{}, err
	}
	spawnOpts := process.SpawnOptions{
		Program: program,
		Args:    args[1:],
		Stdout:  process.StdioPipe,
		Stderr:  process.StdioPipe,
	}
	switch {
	case opts.stdinPipe:
		spawnOpts.Stdin = process.StdioPipe
	case opts.keepStdin:
		spawnOpts.Flags |= process.KeepStdin
	}
	return spawnOpts, nil
}

// resolveProgram searches PATH the way a shell would and returns an
// absolute path, since the spawner itself never searches.
func resolveProgram(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", err
	}
	return filepath.Abs(path)
}

func (c *context) run(cmd *cobra.Command, spawnOpts process.SpawnOptions, opts runOptions) error {
	proc, err := c.spawner.Spawn(spawnOpts)
	if err != nil {
		return err
	}
	defer proc.Release()

	streams, err := proc.Streams()
	if err != nil && !errors.Is(err, process.ErrRelinquished) {
		return err
	}
	if streams == nil {
		streams = &process.Streams{}
	}
	defer streams.Close()

	if streams.Stdin != nil {
		go feedStdin(c.log, cmd.InOrStdin(), streams.Stdin)
	}

	stopKill := c.watchKill(cmd.Context(), proc, opts)
	defer stopKill()

	mux := logmux.New(muxBuffer)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		printLines(cmd.OutOrStdout(), cmd.ErrOrStderr(), mux.Output(), opts.jsonOutput)
	}()

	var g errgroup.Group
	pump(&g, mux, streams.Stdout, proc.Program(), logmux.SourceStdout)
	pump(&g, mux, streams.Stderr, proc.Program(), logmux.SourceStderr)
	pumpErr := g.Wait()
	mux.Close()
	<-printed
	if pumpErr != nil {
		c.log.Warn("reading child output failed", zap.String("program", proc.Program()), zap.Error(pumpErr))
	}

	waitErr := proc.Wait(true)
	if waitErr != nil && !errors.Is(waitErr, process.ErrExitStatus) {
		return waitErr
	}
	code, err := proc.ExitStatus()
	if err != nil {
		return err
	}

	if opts.metricsFile != "" {
		if err := metrics.WriteTextfile(opts.metricsFile); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	if code != 0 {
		return &exitStatusError{code: code}
	}
	return nil
}

// watchKill kills the child once the kill-after deadline passes or the
// command context is cancelled. The returned function stops the watcher.
func (c *context) watchKill(ctx stdcontext.Context, proc *process.Process, opts runOptions) func() {
	if ctx == nil {
		ctx = stdcontext.Background()
	}
	var deadline <-chan time.Time
	if opts.killAfter > 0 {
		deadline = time.After(opts.killAfter)
	}
	stop := make(chan struct{})
	go func() {
		select {
		case <-stop:
			return
		case <-deadline:
			c.log.Info("kill deadline reached", zap.String("program", proc.Program()), zap.Duration("after", opts.killAfter))
		case <-ctx.Done():
			c.log.Info("interrupted, killing child", zap.String("program", proc.Program()))
		}
		if err := proc.Control(&process.KillWithCode{Code: opts.killCode}); err != nil {
			c.log.Warn("kill failed", zap.String("program", proc.Program()), zap.Error(err))
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(stop) }) }
}

func pump(g *errgroup.Group, mux *logmux.Mux, s *process.Stream, program, source string) {
	if s == nil {
		return
	}
	lines := make(chan logmux.Line)
	mux.Add(lines)
	g.Go(func() error {
		defer close(lines)
		return logmux.Scan(blockingReader{s}, program, source, lines)
	})
}

// blockingReader turns a non-blocking stream back into a blocking reader by
// polling.
type blockingReader struct {
	s *process.Stream
}

func (r blockingReader) Read(b []byte) (int, error) {
	for {
		n, err := r.s.Read(b)
		if errors.Is(err, process.ErrWouldBlock) {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		return n, err
	}
}

func feedStdin(log *zap.Logger, in io.Reader, stdin *process.Stream) {
	defer stdin.Close()
	if _, err := io.Copy(stdin, in); err != nil {
		log.Debug("stdin feed stopped", zap.Error(err))
	}
}

func printLines(stdout, stderr io.Writer, lines <-chan logmux.Line, jsonOutput bool) {
	if jsonOutput {
		enc := json.NewEncoder(stdout)
		for line := range lines {
			logmux.Encode(enc, stderr, line)
		}
		return
	}
	for line := range lines {
		switch line.Source {
		case logmux.SourceStderr:
			fmt.Fprintln(stderr, line.Message)
		case logmux.SourceSystem:
			fmt.Fprintf(stderr, "procspawn: %s: %s\n", line.Program, line.Message)
		default:
			fmt.Fprintln(stdout, line.Message)
		}
	}
}
