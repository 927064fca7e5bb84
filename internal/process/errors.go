package process

import (
	"errors"
	"fmt"
)

// Portable error categories. Callers branch on these with errors.Is and never
// need to inspect platform error codes.
var (
	// ErrProcessFailed is the generic category for a failed OS primitive
	// (pipe, null device, process creation, wait, terminate).
	ErrProcessFailed = errors.New("process operation failed")

	// ErrUnfinished is returned by status queries made before the process
	// has been reaped by a wait.
	ErrUnfinished = errors.New("process has not finished")

	// ErrTimeout is returned by a non-blocking wait that finds a process
	// still running.
	ErrTimeout = errors.New("process still running")

	// ErrInvalidUsage reports a caller mistake such as an empty program
	// name or an unsupported flag combination.
	ErrInvalidUsage = errors.New("invalid usage")

	// ErrRelinquished is returned when a handle that was already handed to
	// the caller is requested again.
	ErrRelinquished = fmt.Errorf("%w: handle already relinquished", ErrInvalidUsage)

	// ErrNotSupported reports a feature the platform cannot provide.
	ErrNotSupported = errors.New("not supported on this platform")

	// ErrUnknownRequest is returned by Control for a request type it does
	// not know.
	ErrUnknownRequest = errors.New("unknown control request")

	// ErrExitStatus is the category of every *ExitError.
	ErrExitStatus = errors.New("nonzero exit status")
)

// Stage identifies the step of process setup or control that failed.
type Stage uint8

const (
	StageCommandLine Stage = iota
	StagePipe
	StageNullDevice
	StageStdHandle
	StageAttributeList
	StageCreate
	StageResume
	StageWait
	StageExitCode
	StageTerminate
	StageJobQuery
	StageStream
)

func (s Stage) String() string {
	descriptions := []string{
		"building command line",
		"creating pipe",
		"opening null device",
		"duplicating standard handle",
		"preparing handle inheritance list",
		"creating process",
		"resuming process",
		"waiting for process",
		"reading exit code",
		"terminating process",
		"querying job object",
		"opening stream",
	}
	if int(s) < len(descriptions) {
		return descriptions[s]
	}
	return fmt.Sprintf("Stage(%d)", s)
}

// OpError records a failed OS primitive together with its platform cause.
// It matches ErrProcessFailed and the cause under errors.Is.
type OpError struct {
	Stage   Stage
	Op      string
	Program string
	Err     error
}

func (e *OpError) Error() string {
	if e.Program != "" {
		return fmt.Sprintf("%s: failed while %s (%s): %v", e.Program, e.Stage, e.Op, e.Err)
	}
	return fmt.Sprintf("failed while %s (%s): %v", e.Stage, e.Op, e.Err)
}

func (e *OpError) Unwrap() []error {
	return []error{ErrProcessFailed, e.Err}
}

// ExitError reports a process that terminated with a nonzero status.
type ExitError struct {
	Program string
	Code    int
	// Signal is nonzero when a POSIX child was terminated by a signal.
	Signal int
}

func (e *ExitError) Error() string {
	if e.Signal != 0 {
		return fmt.Sprintf("error running '%s': terminated by signal %d", e.Program, e.Signal)
	}
	return fmt.Sprintf("error running '%s': exit status %d", e.Program, e.Code)
}

func (e *ExitError) Unwrap() error {
	return ErrExitStatus
}

func opError(stage Stage, op, program string, err error) *OpError {
	return &OpError{Stage: stage, Op: op, Program: program, Err: err}
}
