//go:build unix

package process

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

const sh = "/bin/sh"

func mustSpawn(t *testing.T, s *Spawner, opts SpawnOptions) *Process {
	t.Helper()
	p, err := s.Spawn(opts)
	if err != nil {
		t.Fatalf("spawn %s: %v", opts.Program, err)
	}
	t.Cleanup(func() {
		if err := p.Release(); err != nil {
			t.Logf("release: %v", err)
		}
	})
	return p
}

func TestSpawnExitCodes(t *testing.T) {
	s := New()

	ok := mustSpawn(t, s, SpawnOptions{Program: sh, Args: []string{"-c", "exit 0"}})
	if err := ok.Wait(true); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if code, err := ok.ExitStatus(); err != nil || code != 0 {
		t.Fatalf("exit status = %d, %v; want 0", code, err)
	}

	failing := mustSpawn(t, s, SpawnOptions{Program: sh, Args: []string{"-c", "exit 3"}})
	err := failing.Wait(true)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError, got %v", err)
	}
	if exitErr.Code != 3 {
		t.Fatalf("exit code = %d, want 3", exitErr.Code)
	}
	if !errors.Is(err, ErrExitStatus) {
		t.Fatalf("expected ErrExitStatus category, got %v", err)
	}
}

func TestSpawnMissingProgram(t *testing.T) {
	s := New()
	_, err := s.Spawn(SpawnOptions{Program: filepath.Join(t.TempDir(), "missing"), Stdout: StdioPipe})
	if !errors.Is(err, ErrProcessFailed) {
		t.Fatalf("expected ErrProcessFailed, got %v", err)
	}
	var opErr *OpError
	if !errors.As(err, &opErr) || opErr.Stage != StageCreate {
		t.Fatalf("expected create stage error, got %#v", err)
	}
}

func TestNonBlockingWaitReportsRunning(t *testing.T) {
	s := New()
	p := mustSpawn(t, s, SpawnOptions{Program: "/bin/cat", Stdin: StdioPipe})
	streams, err := p.Streams()
	if err != nil {
		t.Fatalf("streams: %v", err)
	}

	start := time.Now()
	if err := p.Wait(false); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout while stdin is open, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("non-blocking wait blocked for %s", time.Since(start))
	}
	if _, err := p.ExitStatus(); !errors.Is(err, ErrUnfinished) {
		t.Fatalf("expected ErrUnfinished, got %v", err)
	}

	if err := streams.Close(); err != nil {
		t.Fatalf("close streams: %v", err)
	}
	if err := p.Wait(true); err != nil {
		t.Fatalf("wait after closing stdin: %v", err)
	}
}

func TestPipeEchoFidelity(t *testing.T) {
	s := New()
	p := mustSpawn(t, s, SpawnOptions{Program: "/bin/cat", Stdin: StdioPipe, Stdout: StdioPipe})
	streams, err := p.Streams()
	if err != nil {
		t.Fatalf("streams: %v", err)
	}
	defer streams.Close()

	payload := bytes.Repeat([]byte("procspawn\x00\xff\n"), 64*1024)
	writeErr := make(chan error, 1)
	go func() {
		_, err := streams.Stdin.Write(payload)
		writeErr <- errors.Join(err, streams.Stdin.Close())
	}()

	got, err := io.ReadAll(streams.Stdout)
	if err != nil {
		t.Fatalf("read stdout: %v", err)
	}
	if err := <-writeErr; err != nil {
		t.Fatalf("write stdin: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("echoed %d bytes, want %d identical bytes", len(got), len(payload))
	}
	if err := p.Wait(true); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestRelinquishedHandleSurvivesRelease(t *testing.T) {
	s := New()
	p, err := s.Spawn(SpawnOptions{Program: "/bin/sleep", Args: []string{"30"}})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	req := &TakeProcessHandle{}
	if err := p.Control(req); err != nil {
		t.Fatalf("take handle: %v", err)
	}
	if err := p.Control(&TakeProcessHandle{}); !errors.Is(err, ErrRelinquished) {
		t.Fatalf("second take: expected ErrRelinquished, got %v", err)
	}
	if err := p.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	// Release neither killed nor reaped the child: we still own it.
	pid := int(req.Handle.Value())
	if err := unix.Kill(pid, 0); err != nil {
		t.Fatalf("child not alive after release: %v", err)
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil {
		t.Fatalf("kill: %v", err)
	}
	var ws unix.WaitStatus
	if _, err := unix.Wait4(pid, &ws, 0, nil); err != nil {
		t.Fatalf("reap relinquished child: %v", err)
	}
	if err := req.Handle.Close(); err != nil {
		t.Fatalf("close handle: %v", err)
	}
}

func TestKillReportsSignal(t *testing.T) {
	s := New()
	p := mustSpawn(t, s, SpawnOptions{Program: "/bin/sleep", Args: []string{"30"}})
	if err := p.Control(&KillWithCode{Code: 7}); err != nil {
		t.Fatalf("kill: %v", err)
	}
	if p.Terminated() {
		t.Fatalf("kill must not mark the process terminated")
	}
	err := p.Wait(true)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError, got %v", err)
	}
	if exitErr.Signal != int(unix.SIGKILL) || exitErr.Code != 128+int(unix.SIGKILL) {
		t.Fatalf("unexpected exit error %+v", exitErr)
	}
	// Killing a terminated process is a no-op.
	if err := p.Kill(1); err != nil {
		t.Fatalf("second kill: %v", err)
	}
}

func TestReleaseKillsLiveProcess(t *testing.T) {
	s := New()
	p, err := s.Spawn(SpawnOptions{Program: "/bin/sleep", Args: []string{"30"}})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	pid := p.ID()
	if err := p.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if !p.Terminated() {
		t.Fatalf("release should reap a live process")
	}
	if err := unix.Kill(pid, 0); !errors.Is(err, unix.ESRCH) {
		t.Fatalf("expected child to be gone, kill(0) = %v", err)
	}
}

func TestReleaseAfterUnwaitedExit(t *testing.T) {
	s := New()
	p, err := s.Spawn(SpawnOptions{Program: sh, Args: []string{"-c", "exit 0"}})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	if err := p.Control(&KillWithCode{Code: 9}); err != nil {
		t.Fatalf("kill after exit: %v", err)
	}
	if err := p.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if code, err := p.ExitStatus(); err != nil || code != 0 {
		t.Fatalf("exit status = %d, %v; want 0", code, err)
	}
}

func TestKillDuringBlockingWait(t *testing.T) {
	s := New()
	p := mustSpawn(t, s, SpawnOptions{Program: "/bin/sleep", Args: []string{"30"}})

	waited := make(chan error, 1)
	go func() { waited <- p.Wait(true) }()

	time.Sleep(100 * time.Millisecond)
	if err := p.Kill(1); err != nil {
		t.Fatalf("kill while waiting: %v", err)
	}

	select {
	case err := <-waited:
		var exitErr *ExitError
		if !errors.As(err, &exitErr) || exitErr.Code != 128+int(unix.SIGKILL) {
			t.Fatalf("expected SIGKILL exit, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("wait did not return after kill")
	}
	if !p.Terminated() {
		t.Fatalf("process should be terminated")
	}
	if err := p.Kill(1); err != nil {
		t.Fatalf("kill after reap: %v", err)
	}
}

func TestSyscallHooksWrapWait(t *testing.T) {
	var pre, post atomic.Int32
	s := New(WithSyscallHooks(SyscallHooks{
		Pre:  func() { pre.Add(1) },
		Post: func() { post.Add(1) },
	}))
	p := mustSpawn(t, s, SpawnOptions{Program: sh, Args: []string{"-c", "exit 0"}})
	if err := p.Wait(true); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if pre.Load() == 0 || pre.Load() != post.Load() {
		t.Fatalf("hooks not balanced: pre=%d post=%d", pre.Load(), post.Load())
	}
}

func TestWaitAllCollectsCodes(t *testing.T) {
	s := New()
	a := mustSpawn(t, s, SpawnOptions{Program: sh, Args: []string{"-c", "exit 0"}})
	b := mustSpawn(t, s, SpawnOptions{Program: sh, Args: []string{"-c", "exit 2"}})

	codes, err := WaitAll([]*Process{a, b}, true)
	if len(codes) != 2 || codes[0] != 0 || codes[1] != 2 {
		t.Fatalf("codes = %v, want [0 2]", codes)
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 2 {
		t.Fatalf("expected exit error with code 2, got %v", err)
	}
}

func TestWaitAllDuplicateProcess(t *testing.T) {
	s := New()
	p := mustSpawn(t, s, SpawnOptions{Program: sh, Args: []string{"-c", "exit 2"}})

	codes, err := WaitAll([]*Process{p, p}, true)
	if len(codes) != 2 || codes[0] != 2 || codes[1] != 2 {
		t.Fatalf("codes = %v, want [2 2]", codes)
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 2 {
		t.Fatalf("expected exit error with code 2, got %v", err)
	}
}

func TestSpawnFD(t *testing.T) {
	s := New()
	out, err := os.Create(filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer out.Close()

	p, err := s.SpawnFD(sh, []string{"-c", "echo hello; cat"}, nil, out, nil)
	if err != nil {
		t.Fatalf("spawn fd: %v", err)
	}
	defer p.Release()
	if err := p.Wait(true); err != nil {
		t.Fatalf("wait: %v", err)
	}
	data, err := os.ReadFile(out.Name())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	// stdin was the null device, so cat adds nothing.
	if string(data) != "hello\n" {
		t.Fatalf("output = %q", data)
	}
}

func TestExtraHandlesBecomeFD3(t *testing.T) {
	s := New()
	stream, child, err := s.CreateInboundPipe(false)
	if err != nil {
		t.Fatalf("inbound pipe: %v", err)
	}
	defer stream.Close()

	p := mustSpawn(t, s, SpawnOptions{
		Program:      sh,
		Args:         []string{"-c", "echo extra >&3"},
		ExtraHandles: []uintptr{child.Fd()},
	})
	if err := ClosePipe(child); err != nil {
		t.Fatalf("close child end: %v", err)
	}
	got, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "extra\n" {
		t.Fatalf("fd 3 output = %q", got)
	}
	if err := p.Wait(true); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestNonBlockingStream(t *testing.T) {
	s := New()
	p := mustSpawn(t, s, SpawnOptions{
		Program: sh,
		Args:    []string{"-c", "read line; echo \"$line\""},
		Flags:   NonBlock,
		Stdin:   StdioPipe,
		Stdout:  StdioPipe,
	})
	streams, err := p.Streams()
	if err != nil {
		t.Fatalf("streams: %v", err)
	}
	defer streams.Close()
	if !streams.Stdout.NonBlocking() {
		t.Fatalf("stdout stream should be non-blocking")
	}

	buf := make([]byte, 64)
	if _, err := streams.Stdout.Read(buf); !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("expected ErrWouldBlock before any output, got %v", err)
	}

	if _, err := streams.Stdin.Write([]byte("ping\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	var out []byte
	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(string(out), "\n") {
		n, err := streams.Stdout.Read(buf)
		switch {
		case errors.Is(err, ErrWouldBlock):
			if time.Now().After(deadline) {
				t.Fatalf("timed out waiting for output")
			}
			time.Sleep(10 * time.Millisecond)
		case err != nil:
			t.Fatalf("read: %v", err)
		}
		out = append(out, buf[:n]...)
	}
	if string(out) != "ping\n" {
		t.Fatalf("output = %q", out)
	}
	if err := p.Wait(true); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestOutboundPipe(t *testing.T) {
	s := New()
	stream, child, err := s.CreateOutboundPipe(false)
	if err != nil {
		t.Fatalf("outbound pipe: %v", err)
	}
	out, err := os.Create(filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer out.Close()

	p, err := s.SpawnFD("/bin/cat", nil, child, out, nil)
	if err != nil {
		t.Fatalf("spawn fd: %v", err)
	}
	defer p.Release()
	ClosePipe(child)

	if _, err := stream.Write([]byte("outbound\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	stream.Close()
	if err := p.Wait(true); err != nil {
		t.Fatalf("wait: %v", err)
	}
	data, _ := os.ReadFile(out.Name())
	if string(data) != "outbound\n" {
		t.Fatalf("output = %q", data)
	}
}

func TestCreatePipeBothEnds(t *testing.T) {
	s := New()
	r, w, err := s.CreatePipe()
	if err != nil {
		t.Fatalf("create pipe: %v", err)
	}
	defer ClosePipe(r)
	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	ClosePipe(w)
	got, err := io.ReadAll(r)
	if err != nil || string(got) != "x" {
		t.Fatalf("read = %q, %v", got, err)
	}
	if ClosePipe(nil) != nil {
		t.Fatalf("ClosePipe(nil) should be a no-op")
	}
}

func TestRun(t *testing.T) {
	s := New()
	code, err := s.Run(SpawnOptions{Program: sh, Args: []string{"-c", "exit 5"}})
	if code != 5 {
		t.Fatalf("code = %d, want 5", code)
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError, got %v", err)
	}

	_, err = s.Run(SpawnOptions{Program: sh, Stdout: StdioPipe})
	if !errors.Is(err, ErrInvalidUsage) {
		t.Fatalf("expected ErrInvalidUsage for piped Run, got %v", err)
	}
}

func TestSpawnDetached(t *testing.T) {
	s := New(WithDebugFlags(DebugJobs))
	if _, err := s.SpawnDetached(DetachedOptions{Program: "sh"}); !errors.Is(err, ErrInvalidUsage) {
		t.Fatalf("relative program: expected ErrInvalidUsage, got %v", err)
	}

	marker := filepath.Join(t.TempDir(), "marker")
	pid, err := s.SpawnDetached(DetachedOptions{
		Program: sh,
		Args:    []string{"-c", `echo "$PROCSPAWN_MARK" > "$0"`, marker},
		Env:     []string{"PROCSPAWN_MARK=detached"},
	})
	if err != nil {
		t.Fatalf("spawn detached: %v", err)
	}
	if pid <= 0 {
		t.Fatalf("pid = %d", pid)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		data, err := os.ReadFile(marker)
		if err == nil && string(data) == "detached\n" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("detached child never wrote marker (last: %q, %v)", data, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSpawnDetachedWithStdio(t *testing.T) {
	s := New()
	out, err := os.Create(filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer out.Close()

	_, err = s.SpawnDetached(DetachedOptions{
		Program: sh,
		Args:    []string{"-c", "echo configured"},
		Stdio:   &StdioConfig{Stdout: out},
	})
	if err != nil {
		t.Fatalf("spawn detached: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		data, _ := os.ReadFile(out.Name())
		if string(data) == "configured\n" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("detached child output = %q", data)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
