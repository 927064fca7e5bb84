package process

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Paintersrp/procspawn/internal/metrics"
)

// Slot indexes the three standard streams.
type Slot int

const (
	SlotStdin Slot = iota
	SlotStdout
	SlotStderr
)

func (s Slot) String() string {
	switch s {
	case SlotStdin:
		return "stdin"
	case SlotStdout:
		return "stdout"
	case SlotStderr:
		return "stderr"
	default:
		return fmt.Sprintf("Slot(%d)", int(s))
	}
}

type exitStatus struct {
	code   int
	signal int
}

// Process is an opaque handle to a spawned child. Callers interact with it
// through its methods and Control; its fields are never exposed.
//
// A Process owns its OS process handle and the parent ends of any pipes
// until they are relinquished with TakeHandle, TakeStdio or Streams.
// Release frees whatever is still owned.
type Process struct {
	spawner *Spawner
	program string
	flags   Flags
	pid     int

	// waitMu serialises waits so that a POSIX pid is reaped at most once.
	waitMu sync.Mutex
	// sigMu is held across the terminated check and the kill, and across
	// the reaping wait4 on POSIX, so a signal never reaches a reused pid.
	sigMu sync.Mutex

	mu         sync.Mutex
	handle     osHandle
	stdio      [3]osHandle
	terminated bool
	status     exitStatus
	released   bool
}

func newProcess(s *Spawner, program string, flags Flags, handle osHandle, pid int, stdio [3]osHandle) *Process {
	metrics.ProcessStarted()
	return &Process{
		spawner: s,
		program: program,
		flags:   flags,
		pid:     pid,
		handle:  handle,
		stdio:   stdio,
		status:  exitStatus{code: -1},
	}
}

// Program returns the program path the process was spawned from.
func (p *Process) Program() string {
	return p.program
}

// ID returns the OS process identifier.
func (p *Process) ID() int {
	return p.pid
}

// Terminated reports whether a wait has observed the process exit.
func (p *Process) Terminated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated
}

// ExitStatus returns the exit code of a reaped process. It fails with
// ErrUnfinished before a wait has observed termination. A process whose
// handle was relinquished before the wait reports -1.
func (p *Process) ExitStatus() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.terminated {
		return -1, ErrUnfinished
	}
	return p.status.code, nil
}

// TakeHandle moves the OS process handle out of p. On Windows the caller
// must close it; on POSIX the value is the pid and the caller becomes
// responsible for reaping it. A second call fails with ErrRelinquished.
func (p *Process) TakeHandle() (OwnedHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle == invalidHandle {
		return OwnedHandle{}, ErrRelinquished
	}
	h := ownedHandle(p.handle, kindProcess)
	p.handle = invalidHandle
	metrics.ProcessReleased()
	return h, nil
}

// StdioHandles are the parent ends of the stdio pipes after a transfer.
// A slot without a pipe, or already transferred, holds an invalid handle.
type StdioHandles struct {
	Stdin  OwnedHandle
	Stdout OwnedHandle
	Stderr OwnedHandle
}

// Close closes every valid handle in h.
func (h *StdioHandles) Close() error {
	return multierr.Combine(h.Stdin.Close(), h.Stdout.Close(), h.Stderr.Close())
}

// TakeStdio moves the parent pipe ends out of p. It fails with
// ErrRelinquished when there is nothing left to take.
func (p *Process) TakeStdio() (StdioHandles, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := StdioHandles{
		Stdin:  ownedHandle(p.stdio[SlotStdin], kindStream),
		Stdout: ownedHandle(p.stdio[SlotStdout], kindStream),
		Stderr: ownedHandle(p.stdio[SlotStderr], kindStream),
	}
	if !out.Stdin.Valid() && !out.Stdout.Valid() && !out.Stderr.Valid() {
		return out, ErrRelinquished
	}
	p.stdio = [3]osHandle{invalidHandle, invalidHandle, invalidHandle}
	return out, nil
}

// Streams moves the parent pipe ends out of p and wraps each one as a
// Stream, honouring the NonBlock flag given at spawn time. Slots without a
// pipe are nil.
func (p *Process) Streams() (*Streams, error) {
	raw, err := p.TakeStdio()
	if err != nil {
		return nil, err
	}
	nonblock := p.flags.has(NonBlock)
	streams := &Streams{}
	targets := []struct {
		h     *OwnedHandle
		dst   **Stream
		write bool
		slot  Slot
	}{
		{&raw.Stdin, &streams.Stdin, true, SlotStdin},
		{&raw.Stdout, &streams.Stdout, false, SlotStdout},
		{&raw.Stderr, &streams.Stderr, false, SlotStderr},
	}
	for _, t := range targets {
		if !t.h.Valid() {
			continue
		}
		s, err := newStream(t.h.h, t.write, nonblock, p.program+":"+t.slot.String())
		if err != nil {
			err = p.spawner.logFailure(StageStream, "NewFile", p.program, err)
			return nil, multierr.Combine(err, raw.Close(), streams.Close())
		}
		// The stream owns the handle from here on.
		*t.h = OwnedHandle{}
		*t.dst = s
	}
	return streams, nil
}

// Kill requests forced termination with the given exit code. It does not
// mark the process terminated; a wait is still needed to reap it. Killing a
// terminated process, or one whose handle was relinquished, is a no-op.
func (p *Process) Kill(code uint32) error {
	p.sigMu.Lock()
	defer p.sigMu.Unlock()

	p.mu.Lock()
	h := p.handle
	done := p.terminated
	p.mu.Unlock()
	if done || h == invalidHandle {
		return nil
	}

	var (
		killed bool
		err    error
	)
	p.spawner.hooks.run(func() {
		killed, err = sysTerminate(h, code)
	})
	if err != nil {
		return p.spawner.logFailure(StageTerminate, terminateOp, p.program, err)
	}
	if killed {
		metrics.IncrementKill()
	}
	return nil
}

// Terminate is Kill with exit code 1.
func (p *Process) Terminate() error {
	return p.Kill(1)
}

// Release frees p. A process that is still running is killed and reaped
// first; then every handle p still owns is closed. Handles relinquished
// earlier are left alone. Release is idempotent.
func (p *Process) Release() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return nil
	}
	live := !p.terminated && p.handle != invalidHandle
	p.mu.Unlock()

	var errs error
	if live {
		errs = multierr.Append(errs, p.Kill(1))
		if err := p.Wait(true); err != nil && !isExit(err) {
			errs = multierr.Append(errs, err)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for i, h := range p.stdio {
		if h != invalidHandle {
			errs = multierr.Append(errs, closeHandle(h))
			p.stdio[i] = invalidHandle
		}
	}
	if p.handle != invalidHandle {
		errs = multierr.Append(errs, releaseProcessHandle(p.handle))
		p.handle = invalidHandle
		metrics.ProcessReleased()
	}
	p.released = true
	p.spawner.log.Debug("process released", zap.String("program", p.program), zap.Int("pid", p.pid))
	return errs
}

func isExit(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr)
}
