//go:build unix

package process

import (
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

func waitPending(procs []*Process, hang bool) error {
	var (
		errs    error
		running bool
	)
	for _, p := range procs {
		done, err := p.reap(hang)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if !done {
			running = true
		}
	}
	if errs != nil {
		return errs
	}
	if running {
		return ErrTimeout
	}
	return nil
}

// reap collects the exit status of p once. waitMu makes sure two waiters
// never race on the same pid. The reaping wait4 always runs under sigMu
// so Kill never signals a pid the kernel has already handed out again;
// a hanging wait blocks in awaitExit, outside sigMu, and leaves the
// child a zombie until then.
func (p *Process) reap(hang bool) (bool, error) {
	p.waitMu.Lock()
	defer p.waitMu.Unlock()

	for {
		done, err := p.reapNoHang()
		if done || err != nil || !hang {
			return done, err
		}

		p.mu.Lock()
		pid := p.handle
		p.mu.Unlock()
		if pid == invalidHandle {
			continue
		}
		p.spawner.hooks.run(func() {
			err = awaitExit(pid)
		})
		if err != nil {
			return false, p.spawner.logFailure(StageWait, awaitExitOp, p.program, err)
		}
	}
}

func (p *Process) reapNoHang() (bool, error) {
	p.sigMu.Lock()
	defer p.sigMu.Unlock()

	p.mu.Lock()
	pid, done := p.handle, p.terminated
	p.mu.Unlock()
	if done {
		return true, nil
	}
	if pid == invalidHandle {
		return false, ErrRelinquished
	}

	var (
		ws   unix.WaitStatus
		wpid int
		err  error
	)
	p.spawner.hooks.run(func() {
		for {
			wpid, err = unix.Wait4(pid, &ws, unix.WNOHANG, nil)
			if err != unix.EINTR {
				return
			}
		}
	})
	if err != nil {
		return false, p.spawner.logFailure(StageWait, "wait4", p.program, err)
	}
	if wpid == 0 {
		return false, nil
	}

	var status exitStatus
	switch {
	case ws.Exited():
		status.code = ws.ExitStatus()
	case ws.Signaled():
		status.signal = int(ws.Signal())
		status.code = 128 + status.signal
	default:
		status.code = -1
	}
	p.markExited(status)
	return true, nil
}
