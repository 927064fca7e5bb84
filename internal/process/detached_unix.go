//go:build unix

package process

import (
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/Paintersrp/procspawn/internal/redact"
)

func (s *Spawner) spawnDetached(opts DetachedOptions) (int, error) {
	s.log.Debug("spawning detached process",
		zap.String("program", opts.Program),
		zap.Strings("args", redact.Args(opts.Args)),
		zap.Strings("env", redact.Env(opts.Env)),
	)
	if s.debugJobs() {
		_, decision := breakaway(false, 0)
		s.log.Debug("job breakaway decision", zap.String("program", opts.Program), zap.String("decision", decision))
	}

	cfg := opts.Stdio
	if cfg == nil {
		cfg = &StdioConfig{}
	}
	var slots [3]slotPlan
	for i, f := range []*os.File{cfg.Stdin, cfg.Stdout, cfg.Stderr} {
		slots[i] = slotPlan{mode: StdioNull}
		if f != nil {
			slots[i] = slotPlan{mode: stdioFile, file: f}
		}
	}
	hs := newChildHandles()
	if err := s.prepareSlots(opts.Program, slots, hs); err != nil {
		return 0, multierr.Combine(err, hs.closeAll())
	}

	var env []string
	if len(opts.Env) > 0 {
		env = opts.Env
	}
	pid, err := s.forkExec(opts.Program, opts.Args, env, hs.child, cfg.Inherit, true)
	closeErr := hs.closeAll()
	if err != nil {
		return 0, multierr.Combine(err, closeErr)
	}
	if closeErr != nil {
		s.log.Warn("closing child-side handles failed", zap.String("program", opts.Program), zap.Error(closeErr))
	}

	// The child leads its own session and is never handed to the caller, so
	// reap it here to avoid a zombie while this process lives.
	go func() {
		var ws unix.WaitStatus
		for {
			_, err := unix.Wait4(pid, &ws, 0, nil)
			if err != unix.EINTR {
				return
			}
		}
	}()
	return pid, nil
}
