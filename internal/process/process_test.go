package process

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// detachedProcess returns a Process with no OS resources behind it.
func detachedProcess(s *Spawner) *Process {
	return &Process{
		spawner: s,
		program: "fake",
		pid:     42,
		handle:  invalidHandle,
		stdio:   [3]osHandle{invalidHandle, invalidHandle, invalidHandle},
		status:  exitStatus{code: -1},
	}
}

type unknownRequest struct{}

func (*unknownRequest) controlRequest() {}

func TestControlDispatch(t *testing.T) {
	p := detachedProcess(New())

	require.NoError(t, p.Control(&Nop{}))

	id := &GetID{}
	require.NoError(t, p.Control(id))
	assert.Equal(t, 42, id.ID)

	status := &GetExitStatus{}
	assert.ErrorIs(t, p.Control(status), ErrUnfinished)
	assert.Equal(t, -1, status.Code)

	p.markExited(exitStatus{code: 3})
	require.NoError(t, p.Control(status))
	assert.Equal(t, 3, status.Code)

	assert.ErrorIs(t, p.Control(&TakeProcessHandle{}), ErrRelinquished)
	assert.ErrorIs(t, p.Control(&TakeStdioHandles{}), ErrRelinquished)
	assert.ErrorIs(t, p.Control(&TakeStdioHandles{}), ErrInvalidUsage)

	// Already terminated: a no-op.
	assert.NoError(t, p.Control(&KillWithCode{Code: 9}))

	assert.ErrorIs(t, p.Control(&unknownRequest{}), ErrUnknownRequest)
}

func TestTerminatedIsMonotonic(t *testing.T) {
	p := detachedProcess(New())
	p.markExited(exitStatus{code: 0})
	p.markExited(exitStatus{code: 5})

	code, err := p.ExitStatus()
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.True(t, p.Terminated())
}

func TestWaitAllReportsRelinquishedHandle(t *testing.T) {
	p := detachedProcess(New())
	codes, err := WaitAll([]*Process{p}, false)
	assert.ErrorIs(t, err, ErrRelinquished)
	assert.Equal(t, []int{-1}, codes)
}

func TestWaitAllEmptyAndNil(t *testing.T) {
	codes, err := WaitAll(nil, true)
	require.NoError(t, err)
	assert.Empty(t, codes)

	_, err = WaitAll([]*Process{nil}, true)
	assert.ErrorIs(t, err, ErrInvalidUsage)
}

func TestReleaseIsIdempotent(t *testing.T) {
	p := detachedProcess(New())
	require.NoError(t, p.Release())
	require.NoError(t, p.Release())

	var nilProc *Process
	assert.NoError(t, nilProc.Release())
}

func TestBreakawayDecision(t *testing.T) {
	tests := []struct {
		name     string
		inJob    bool
		limits   uint32
		want     uint32
		decision string
	}{
		{name: "not in job", inJob: false, limits: jobLimitBreakawayOK, want: 0, decision: "not in job"},
		{name: "breakaway allowed", inJob: true, limits: jobLimitBreakawayOK, want: createBreakawayFromJob, decision: "breakaway ok"},
		{name: "both allowed prefers explicit", inJob: true, limits: jobLimitBreakawayOK | jobLimitSilentBreakawayOK, want: createBreakawayFromJob, decision: "breakaway ok"},
		{name: "silent breakaway", inJob: true, limits: jobLimitSilentBreakawayOK, want: 0, decision: "silent breakaway ok"},
		{name: "locked job", inJob: true, limits: 0x2000, want: 0, decision: "no breakaway"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags, decision := breakaway(tt.inJob, tt.limits)
			assert.Equal(t, tt.want, flags)
			assert.Equal(t, tt.decision, decision)
		})
	}
}

func TestSpawnOptionsValidate(t *testing.T) {
	assert.ErrorIs(t, SpawnOptions{}.validate(), ErrInvalidUsage)
	assert.ErrorIs(t, SpawnOptions{Program: "x", Stdout: Stdio(9)}.validate(), ErrInvalidUsage)
	assert.ErrorIs(t, SpawnOptions{Program: "x", ExtraHandles: make([]uintptr, 14)}.validate(), ErrInvalidUsage)
	assert.NoError(t, SpawnOptions{Program: "x", ExtraHandles: make([]uintptr, 13)}.validate())
}

func TestStdioResolution(t *testing.T) {
	opts := SpawnOptions{
		Program: "x",
		Flags:   KeepStdin | KeepStderr,
		Stdout:  StdioPipe,
		Stderr:  StdioDefault,
	}
	assert.Equal(t, [3]Stdio{StdioInherit, StdioPipe, StdioInherit}, opts.stdioModes())

	// A pipe request wins over the keep flag.
	opts = SpawnOptions{Program: "x", Flags: KeepStdin, Stdin: StdioPipe}
	assert.Equal(t, [3]Stdio{StdioPipe, StdioNull, StdioNull}, opts.stdioModes())
}

func TestParseStdio(t *testing.T) {
	for in, want := range map[string]Stdio{
		"":        StdioDefault,
		"default": StdioDefault,
		"null":    StdioNull,
		"pipe":    StdioPipe,
		"inherit": StdioInherit,
	} {
		got, err := ParseStdio(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseStdio("socket")
	assert.ErrorIs(t, err, ErrInvalidUsage)
}

func TestErrorCategories(t *testing.T) {
	cause := syscall.Errno(2)
	err := fmt.Errorf("spawn: %w", opError(StageCreate, "CreateProcess", "prog", cause))

	assert.ErrorIs(t, err, ErrProcessFailed)
	assert.ErrorIs(t, err, cause)
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, StageCreate, opErr.Stage)
	assert.Contains(t, err.Error(), "creating process")
	assert.Equal(t, int64(2), errnoOf(err))
	assert.Equal(t, int64(-1), errnoOf(errors.New("plain")))

	exitErr := &ExitError{Program: "prog", Code: 3}
	assert.ErrorIs(t, exitErr, ErrExitStatus)
	assert.Equal(t, "error running 'prog': exit status 3", exitErr.Error())
}

func TestLogFailureFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s := New(WithLogger(zap.New(core)))

	err := s.logFailure(StagePipe, "CreatePipe", "prog", syscall.Errno(5))
	assert.ErrorIs(t, err, ErrProcessFailed)

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "CreatePipe", fields["op"])
	assert.Equal(t, "prog", fields["program"])
	assert.Equal(t, int64(5), fields["errno"])
}

func TestCheckExecutable(t *testing.T) {
	dir := t.TempDir()
	assert.ErrorIs(t, checkExecutable("relative/prog"), ErrInvalidUsage)
	assert.ErrorIs(t, checkExecutable(filepath.Join(dir, "missing")), ErrInvalidUsage)
	assert.ErrorIs(t, checkExecutable(dir), ErrInvalidUsage)

	prog := filepath.Join(dir, "prog")
	require.NoError(t, os.WriteFile(prog, []byte("#!/bin/sh\n"), 0o755))
	assert.NoError(t, checkExecutable(prog))

	if runtime.GOOS != "windows" {
		plain := filepath.Join(dir, "plain")
		require.NoError(t, os.WriteFile(plain, nil, 0o644))
		assert.ErrorIs(t, checkExecutable(plain), ErrInvalidUsage)
	}
}

func TestSyscallHooksBracketCall(t *testing.T) {
	var order []string
	hooks := SyscallHooks{
		Pre:  func() { order = append(order, "pre") },
		Post: func() { order = append(order, "post") },
	}
	hooks.run(func() { order = append(order, "call") })
	assert.Equal(t, []string{"pre", "call", "post"}, order)

	// Nil hooks are no-ops.
	SyscallHooks{}.run(func() {})
}
