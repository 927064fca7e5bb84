//go:build windows

package process

import (
	"os"
	"unsafe"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/windows"

	"github.com/Paintersrp/procspawn/internal/cmdline"
	"github.com/Paintersrp/procspawn/internal/redact"
)

// jobBreakaway inspects the job object of the calling process. Failures
// are logged and treated as "not in a job": the spawn still proceeds.
func (s *Spawner) jobBreakaway(program string) uint32 {
	inJob, err := isProcessInJob(windows.CurrentProcess(), 0)
	if err != nil {
		s.log.Error("IsProcessInJob failed", zap.String("program", program), zap.Int64("errno", errnoOf(err)), zap.Error(err))
		inJob = false
	}

	var limitFlags uint32
	if inJob {
		var info windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION
		err := windows.QueryInformationJobObject(0, windows.JobObjectExtendedLimitInformation,
			uintptr(unsafe.Pointer(&info)), uint32(unsafe.Sizeof(info)), nil)
		if err != nil {
			s.logFailure(StageJobQuery, "QueryInformationJobObject", program, err)
			return 0
		}
		limitFlags = info.BasicLimitInformation.LimitFlags
	}

	flags, decision := breakaway(inJob, limitFlags)
	if s.debugJobs() {
		s.log.Debug("job breakaway decision",
			zap.String("program", program),
			zap.String("decision", decision),
			zap.Uint32("limit_flags", limitFlags),
		)
	}
	return flags
}

// envBlock encodes env as a CREATE_UNICODE_ENVIRONMENT block. A nil result
// makes the child inherit the caller's environment.
func envBlock(env []string) (*uint16, error) {
	if len(env) == 0 {
		return nil, nil
	}
	var block []uint16
	for _, kv := range env {
		entry, err := windows.UTF16FromString(kv)
		if err != nil {
			return nil, err
		}
		block = append(block, entry...)
	}
	block = append(block, 0)
	return &block[0], nil
}

func (s *Spawner) spawnDetached(opts DetachedOptions) (int, error) {
	s.log.Debug("spawning detached process",
		zap.String("program", opts.Program),
		zap.Strings("args", redact.Args(opts.Args)),
		zap.Strings("env", redact.Env(opts.Env)),
	)

	env, err := envBlock(opts.Env)
	if err != nil {
		return 0, s.logFailure(StageCommandLine, "UTF16FromString", opts.Program, err)
	}

	cfg := opts.Stdio
	if cfg == nil {
		cfg = &StdioConfig{}
	}
	hs := newChildHandles()
	var slots [3]slotPlan
	for i, f := range []*os.File{cfg.Stdin, cfg.Stdout, cfg.Stderr} {
		slots[i] = slotPlan{mode: StdioNull}
		if f != nil {
			slots[i] = slotPlan{mode: stdioFile, file: f}
		}
	}
	if err := s.prepareSlots(opts.Program, slots, hs); err != nil {
		return 0, multierr.Combine(err, hs.closeAll())
	}

	flags := uint32(windows.CREATE_DEFAULT_ERROR_MODE |
		windows.CREATE_NEW_PROCESS_GROUP |
		windows.DETACHED_PROCESS)
	if self, err := windows.GetCurrentProcess(); err == nil {
		if class, err := windows.GetPriorityClass(self); err == nil {
			flags |= class
		}
	}
	if env != nil {
		flags |= windows.CREATE_UNICODE_ENVIRONMENT
	}
	flags |= s.jobBreakaway(opts.Program)

	pi, err := s.createProcess(createParams{
		program:       opts.Program,
		cmdline:       cmdline.Build(opts.Program, opts.Args),
		std:           hs.child,
		extra:         cfg.Inherit,
		creationFlags: flags,
		env:           env,
		showWindow:    windows.SW_MINIMIZE,
	})
	closeErr := hs.closeAll()
	if err != nil {
		return 0, multierr.Combine(err, closeErr)
	}
	closeErr = multierr.Combine(closeErr, windows.CloseHandle(pi.Thread), windows.CloseHandle(pi.Process))
	if closeErr != nil {
		s.log.Warn("closing spawn handles failed", zap.String("program", opts.Program), zap.Error(closeErr))
	}
	return int(pi.ProcessId), nil
}
