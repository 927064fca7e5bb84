//go:build unix

package process

import (
	"fmt"
	"os"
	"syscall"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/Paintersrp/procspawn/internal/redact"
)

// childHandles tracks everything a spawn allocates. The child-side
// descriptors are closed once the child exists; the parent-side pipe ends
// survive a successful spawn and move into the Process.
type childHandles struct {
	child  [3]osHandle
	parent [3]osHandle
}

func newChildHandles() *childHandles {
	return &childHandles{
		child:  [3]osHandle{invalidHandle, invalidHandle, invalidHandle},
		parent: [3]osHandle{invalidHandle, invalidHandle, invalidHandle},
	}
}

func (c *childHandles) closeChild() error {
	var errs error
	for i, h := range c.child {
		if h != invalidHandle {
			errs = multierr.Append(errs, unix.Close(h))
			c.child[i] = invalidHandle
		}
	}
	return errs
}

func (c *childHandles) closeAll() error {
	errs := c.closeChild()
	for i, h := range c.parent {
		if h != invalidHandle {
			errs = multierr.Append(errs, unix.Close(h))
			c.parent[i] = invalidHandle
		}
	}
	return errs
}

func openNull(write bool) (osHandle, error) {
	mode := unix.O_RDONLY
	if write {
		mode = unix.O_WRONLY
	}
	return unix.Open(os.DevNull, mode|unix.O_CLOEXEC, 0)
}

// dupCloexec returns a close-on-exec duplicate of fd owned by the caller.
func dupCloexec(fd int) (osHandle, error) {
	return unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
}

func (s *Spawner) prepareSlots(program string, slots [3]slotPlan, hs *childHandles) error {
	for i, slot := range slots {
		var err error
		switch slot.mode {
		case StdioPipe:
			if i == int(SlotStdin) {
				hs.child[i], hs.parent[i], err = s.inheritablePipe(InheritRead)
			} else {
				hs.parent[i], hs.child[i], err = s.inheritablePipe(InheritWrite)
			}
			if err != nil {
				return err
			}
		case StdioNull:
			if hs.child[i], err = openNull(i != int(SlotStdin)); err != nil {
				return s.logFailure(StageNullDevice, "open", program, err)
			}
		case StdioInherit:
			if hs.child[i], err = dupCloexec(i); err != nil {
				return s.logFailure(StageStdHandle, "fcntl", program, err)
			}
		case stdioFile:
			if hs.child[i], err = dupCloexec(int(slot.file.Fd())); err != nil {
				return s.logFailure(StageStdHandle, "fcntl", program, err)
			}
		default:
			return fmt.Errorf("%w: stdio slot %d: %s", ErrInvalidUsage, i, slot.mode)
		}
	}
	return nil
}

// forkExec starts program with the three standard descriptors followed by
// extra as fds 3, 4, ... The runtime holds ForkLock across the fork, so a
// concurrent spawn never sees the other's close-on-exec descriptors.
func (s *Spawner) forkExec(program string, args, env []string, std [3]osHandle, extra []uintptr, setsid bool) (int, error) {
	files := make([]uintptr, 0, len(std)+len(extra))
	for _, fd := range std {
		files = append(files, uintptr(fd))
	}
	files = append(files, extra...)
	if env == nil {
		env = os.Environ()
	}
	attr := &syscall.ProcAttr{
		Env:   env,
		Files: files,
		Sys:   &syscall.SysProcAttr{Setsid: setsid},
	}
	argv := append([]string{program}, args...)
	pid, err := syscall.ForkExec(program, argv, attr)
	if err != nil {
		return 0, s.logFailure(StageCreate, "fork/exec", program, err)
	}
	return pid, nil
}

func (s *Spawner) spawn(plan spawnPlan) (*Process, error) {
	s.log.Debug("spawning process",
		zap.String("program", plan.program),
		zap.Strings("args", redact.Args(plan.args)),
	)

	hs := newChildHandles()
	if err := s.prepareSlots(plan.program, plan.slots, hs); err != nil {
		return nil, multierr.Combine(err, hs.closeAll())
	}
	pid, err := s.forkExec(plan.program, plan.args, nil, hs.child, plan.extra, plan.flags.has(Detached))
	if err != nil {
		return nil, multierr.Combine(err, hs.closeAll())
	}
	if err := hs.closeChild(); err != nil {
		s.log.Warn("closing child-side handles failed", zap.String("program", plan.program), zap.Error(err))
	}
	return newProcess(s, plan.program, plan.flags, pid, pid, hs.parent), nil
}
