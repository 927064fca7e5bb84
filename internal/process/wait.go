package process

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/Paintersrp/procspawn/internal/metrics"
)

// Wait waits for p to terminate. With hang it blocks until the process
// exits; without it, it returns ErrTimeout if the process is still running.
// A nonzero exit is reported as an *ExitError carrying the code.
func (p *Process) Wait(hang bool) error {
	_, err := WaitAll([]*Process{p}, hang)
	return err
}

// WaitAll waits for every process in procs. With hang it returns only after
// all of them exited. Without it, it reaps those that already exited and
// returns ErrTimeout if any is still running.
//
// The returned codes are index-aligned with procs, duplicates included; a
// process that has not been reaped reports -1. Nonzero exits are reported as *ExitError values
// combined into the returned error. A failure of the wait primitive itself is
// an *OpError and is reported instead of the exit statuses.
func WaitAll(procs []*Process, hang bool) ([]int, error) {
	codes := make([]int, len(procs))
	for i := range codes {
		codes[i] = -1
	}
	if len(procs) == 0 {
		return codes, nil
	}

	var (
		pending []*Process
		errs    error
	)
	// A process listed twice is waited once; WaitForMultipleObjects
	// rejects duplicate handles.
	seen := make(map[*Process]struct{}, len(procs))
	for i, p := range procs {
		if p == nil {
			return codes, fmt.Errorf("%w: nil process at index %d", ErrInvalidUsage, i)
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		p.mu.Lock()
		switch {
		case p.terminated:
		case p.handle == invalidHandle:
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", p.program, ErrRelinquished))
		default:
			pending = append(pending, p)
		}
		p.mu.Unlock()
	}

	if len(pending) > 0 {
		start := time.Now()
		err := waitPending(pending, hang)
		metrics.ObserveWait(waitResult(err), time.Since(start))
		if err != nil && !errors.Is(err, ErrTimeout) {
			return codes, err
		}
		errs = multierr.Append(errs, err)
	}

	for i, p := range procs {
		p.mu.Lock()
		if p.terminated {
			codes[i] = p.status.code
			if p.status.code != 0 {
				errs = multierr.Append(errs, &ExitError{
					Program: p.program,
					Code:    p.status.code,
					Signal:  p.status.signal,
				})
			}
		}
		p.mu.Unlock()
	}
	return codes, errs
}

// markExited records the exit status observed by a wait. terminated never
// goes back to false.
func (p *Process) markExited(status exitStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.terminated {
		return
	}
	p.terminated = true
	p.status = status
}

func waitResult(err error) string {
	switch {
	case err == nil:
		return "exited"
	case errors.Is(err, ErrTimeout):
		return "running"
	default:
		return "failed"
	}
}
