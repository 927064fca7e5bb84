package process

import (
	"fmt"
	"os"

	"go.uber.org/multierr"

	"github.com/Paintersrp/procspawn/internal/metrics"
)

// stdioFile is the internal slot mode used by SpawnFD: the slot is bound
// to a caller-owned file.
const stdioFile Stdio = 0xff

// slotPlan is the resolved source of one standard stream slot.
type slotPlan struct {
	mode Stdio
	file *os.File
}

type spawnPlan struct {
	program string
	args    []string
	flags   Flags
	slots   [3]slotPlan
	extra   []uintptr
}

// Spawn creates a child as described by opts. Pipes requested for a slot
// are claimed afterwards with Process.Streams or Process.TakeStdio. Every
// resource allocated by a failed call is released before it returns.
func (s *Spawner) Spawn(opts SpawnOptions) (*Process, error) {
	if err := opts.validate(); err != nil {
		metrics.ObserveSpawn("attached", err)
		return nil, err
	}
	plan := spawnPlan{
		program: opts.Program,
		args:    opts.Args,
		flags:   opts.Flags,
		extra:   opts.ExtraHandles,
	}
	for i, mode := range opts.stdioModes() {
		plan.slots[i] = slotPlan{mode: mode}
	}
	p, err := s.spawn(plan)
	metrics.ObserveSpawn("attached", err)
	return p, err
}

// SpawnFD creates a child whose standard streams are the given files. A nil
// file connects that slot to the null device. The files stay owned by the
// caller, who must wait for the returned process.
func (s *Spawner) SpawnFD(program string, args []string, stdin, stdout, stderr *os.File) (*Process, error) {
	if program == "" {
		err := fmt.Errorf("%w: empty program name", ErrInvalidUsage)
		metrics.ObserveSpawn("fd", err)
		return nil, err
	}
	plan := spawnPlan{program: program, args: args}
	for i, f := range []*os.File{stdin, stdout, stderr} {
		if f == nil {
			plan.slots[i] = slotPlan{mode: StdioNull}
			continue
		}
		plan.slots[i] = slotPlan{mode: stdioFile, file: f}
	}
	p, err := s.spawn(plan)
	metrics.ObserveSpawn("fd", err)
	return p, err
}

// Run spawns opts, waits for the child to exit and releases it. It returns
// the exit code together with an *ExitError when the code is nonzero. Pipes
// cannot be requested because nothing would drain them.
func (s *Spawner) Run(opts SpawnOptions) (int, error) {
	for _, mode := range []Stdio{opts.Stdin, opts.Stdout, opts.Stderr} {
		if mode == StdioPipe {
			return -1, fmt.Errorf("%w: Run does not support stdio pipes", ErrInvalidUsage)
		}
	}
	p, err := s.Spawn(opts)
	if err != nil {
		return -1, err
	}
	err = p.Wait(true)
	code, statusErr := p.ExitStatus()
	if statusErr != nil {
		code = -1
	}
	return code, multierr.Append(err, p.Release())
}

// SpawnDetached creates a child that keeps running after the caller exits
// and returns its process id. The child is never waited for by the caller.
func (s *Spawner) SpawnDetached(opts DetachedOptions) (int, error) {
	if err := opts.validate(); err != nil {
		metrics.ObserveSpawn("detached", err)
		return 0, err
	}
	pid, err := s.spawnDetached(opts)
	metrics.ObserveSpawn("detached", err)
	return pid, err
}
