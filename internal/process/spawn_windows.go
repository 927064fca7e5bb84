//go:build windows

package process

import (
	"fmt"
	"unsafe"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/windows"

	"github.com/Paintersrp/procspawn/internal/cmdline"
	"github.com/Paintersrp/procspawn/internal/redact"
)

var stdHandleIDs = [3]uint32{
	windows.STD_INPUT_HANDLE,
	windows.STD_OUTPUT_HANDLE,
	windows.STD_ERROR_HANDLE,
}

// childHandles tracks everything a spawn allocates. The child-side handles
// are closed once the child exists; the parent-side pipe ends survive a
// successful spawn and move into the Process.
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
			errs = multierr.Append(errs, windows.CloseHandle(h))
			c.child[i] = invalidHandle
		}
	}
	return errs
}

func (c *childHandles) closeAll() error {
	errs := c.closeChild()
	for i, h := range c.parent {
		if h != invalidHandle {
			errs = multierr.Append(errs, windows.CloseHandle(h))
			c.parent[i] = invalidHandle
		}
	}
	return errs
}

// openNull opens the null device as an inheritable handle.
func openNull(write bool) (osHandle, error) {
	name, err := windows.UTF16PtrFromString("NUL")
	if err != nil {
		return invalidHandle, err
	}
	access := uint32(windows.GENERIC_READ)
	if write {
		access = windows.GENERIC_WRITE
	}
	return windows.CreateFile(name, access,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		inheritableAttributes(), windows.OPEN_EXISTING, 0, 0)
}

// dupInheritable returns an inheritable duplicate of h owned by the caller.
// Handles in an explicit inheritance list must be inheritable.
func dupInheritable(h windows.Handle) (osHandle, error) {
	self := windows.CurrentProcess()
	var dup windows.Handle
	err := windows.DuplicateHandle(self, h, self, &dup, 0, true, windows.DUPLICATE_SAME_ACCESS)
	if err != nil {
		return invalidHandle, err
	}
	return dup, nil
}

// prepareSlots resolves the three standard stream sources into inheritable
// handles, creating pipes where requested.
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
				return s.logFailure(StageNullDevice, "CreateFile", program, err)
			}
		case StdioInherit:
			std, err := windows.GetStdHandle(stdHandleIDs[i])
			if err == nil {
				hs.child[i], err = dupInheritable(std)
			}
			if err != nil {
				return s.logFailure(StageStdHandle, "DuplicateHandle", program, err)
			}
		case stdioFile:
			if hs.child[i], err = dupInheritable(windows.Handle(slot.file.Fd())); err != nil {
				return s.logFailure(StageStdHandle, "DuplicateHandle", program, err)
			}
		default:
			return fmt.Errorf("%w: stdio slot %d: %s", ErrInvalidUsage, i, slot.mode)
		}
	}
	return nil
}

// inheritList builds the explicit handle list, skipping duplicates which
// CreateProcess rejects.
func inheritList(std [3]osHandle, extra []uintptr) []windows.Handle {
	list := make([]windows.Handle, 0, len(std)+len(extra))
	seen := make(map[windows.Handle]bool, cap(list))
	add := func(h windows.Handle) {
		if h == invalidHandle || h == 0 || seen[h] {
			return
		}
		seen[h] = true
		list = append(list, h)
	}
	for _, h := range std {
		add(h)
	}
	for _, h := range extra {
		add(windows.Handle(h))
	}
	return list
}

// createParams are the per-call inputs of createSuspended.
type createParams struct {
	program       string
	cmdline       string
	std           [3]osHandle
	extra         []uintptr
	creationFlags uint32
	env           *uint16
	showWindow    uint16
}

// createProcess runs CreateProcess with an explicit inheritance list and
// returns the process information. The caller owns both returned handles.
func (s *Spawner) createProcess(p createParams) (*windows.ProcessInformation, error) {
	handles := inheritList(p.std, p.extra)
	attrs, err := windows.NewProcThreadAttributeList(1)
	if err != nil {
		return nil, s.logFailure(StageAttributeList, "InitializeProcThreadAttributeList", p.program, err)
	}
	defer attrs.Delete()
	if len(handles) > 0 {
		err = attrs.Update(windows.PROC_THREAD_ATTRIBUTE_HANDLE_LIST,
			unsafe.Pointer(&handles[0]), uintptr(len(handles))*unsafe.Sizeof(handles[0]))
		if err != nil {
			return nil, s.logFailure(StageAttributeList, "UpdateProcThreadAttribute", p.program, err)
		}
	}

	si := &windows.StartupInfoEx{ProcThreadAttributeList: attrs.List()}
	si.Cb = uint32(unsafe.Sizeof(*si))
	si.Flags = windows.STARTF_USESTDHANDLES | windows.STARTF_USESHOWWINDOW
	si.ShowWindow = p.showWindow
	si.StdInput, si.StdOutput, si.StdErr = p.std[0], p.std[1], p.std[2]

	programW, err := windows.UTF16PtrFromString(p.program)
	if err != nil {
		return nil, s.logFailure(StageCommandLine, "UTF16PtrFromString", p.program, err)
	}
	cmdlineW, err := windows.UTF16PtrFromString(p.cmdline)
	if err != nil {
		return nil, s.logFailure(StageCommandLine, "UTF16PtrFromString", p.program, err)
	}

	pi := new(windows.ProcessInformation)
	err = windows.CreateProcess(programW, cmdlineW, nil, nil, true,
		p.creationFlags|windows.EXTENDED_STARTUPINFO_PRESENT,
		p.env, nil, &si.StartupInfo, pi)
	if err != nil {
		return nil, s.logFailure(StageCreate, "CreateProcess", p.program, err)
	}
	return pi, nil
}

func (s *Spawner) spawn(plan spawnPlan) (*Process, error) {
	line := cmdline.Build(plan.program, plan.args)
	s.log.Debug("spawning process",
		zap.String("program", plan.program),
		zap.Strings("args", redact.Args(plan.args)),
	)

	hs := newChildHandles()
	if err := s.prepareSlots(plan.program, plan.slots, hs); err != nil {
		return nil, multierr.Combine(err, hs.closeAll())
	}

	flags := uint32(windows.CREATE_DEFAULT_ERROR_MODE | windows.CREATE_SUSPENDED)
	if plan.flags.has(Detached) {
		flags |= windows.DETACHED_PROCESS
	}
	// The child starts in the caller's priority class.
	if self, err := windows.GetCurrentProcess(); err == nil {
		if class, err := windows.GetPriorityClass(self); err == nil {
			flags |= class
		}
	}

	pi, err := s.createProcess(createParams{
		program:       plan.program,
		cmdline:       line,
		std:           hs.child,
		extra:         plan.extra,
		creationFlags: flags,
		showWindow:    windows.SW_HIDE,
	})
	if err != nil {
		return nil, multierr.Combine(err, hs.closeAll())
	}

	// The child holds its own copies now.
	if err := hs.closeChild(); err != nil {
		s.log.Warn("closing child-side handles failed", zap.String("program", plan.program), zap.Error(err))
	}

	if plan.flags.has(AllowSetForeground) {
		// Passing pi.ProcessId fails with an invalid argument error for
		// reasons never pinned down, so ASFW_ANY is used instead.
		if err := allowSetForegroundWindow(asfwAny); err != nil {
			s.log.Debug("AllowSetForegroundWindow failed", zap.Error(err))
		}
	}

	var resumeErr error
	s.hooks.run(func() {
		_, resumeErr = windows.ResumeThread(pi.Thread)
	})
	threadErr := windows.CloseHandle(pi.Thread)
	if resumeErr != nil {
		err := s.logFailure(StageResume, "ResumeThread", plan.program, resumeErr)
		return nil, multierr.Combine(err, threadErr, abandonSuspended(pi.Process), hs.closeAll())
	}
	if threadErr != nil {
		s.log.Warn("closing primary thread handle failed", zap.String("program", plan.program), zap.Error(threadErr))
	}

	return newProcess(s, plan.program, plan.flags, pi.Process, int(pi.ProcessId), hs.parent), nil
}

// abandonWait bounds how long a failed spawn waits for its suspended child
// to go away before closing the handle.
const abandonWait = 1000

// abandonSuspended terminates a child that never ran, waits for it to exit
// and closes its handle, returning every failure along the way.
func abandonSuspended(h windows.Handle) error {
	termErr := windows.TerminateProcess(h, 1)
	var waitErr error
	if termErr == nil {
		event, err := windows.WaitForSingleObject(h, abandonWait)
		switch {
		case err != nil:
			waitErr = err
		case event == uint32(windows.WAIT_TIMEOUT):
			waitErr = windows.WAIT_TIMEOUT
		}
	}
	return multierr.Combine(termErr, waitErr, windows.CloseHandle(h))
}
