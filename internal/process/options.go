package process

import (
	"fmt"
	"os"
)

// Flags alter how a child is created and how its streams behave.
type Flags uint32

const (
	// KeepStdin hands the parent's own stdin to the child when no pipe was
	// requested for that slot.
	KeepStdin Flags = 1 << iota
	// KeepStdout hands the parent's own stdout to the child when no pipe was
	// requested for that slot.
	KeepStdout
	// KeepStderr hands the parent's own stderr to the child when no pipe was
	// requested for that slot.
	KeepStderr
	// Detached creates the child without a console window group.
	Detached
	// AllowSetForeground grants the child permission to take foreground
	// focus.
	AllowSetForeground
	// NonBlock opens any created stream in non-blocking mode.
	NonBlock
)

func (f Flags) has(flag Flags) bool {
	return f&flag != 0
}

// Stdio selects the source of one standard stream slot.
type Stdio uint8

const (
	// StdioDefault resolves the slot from the Keep* flags: the parent's
	// handle when the matching flag is set, the null device otherwise.
	StdioDefault Stdio = iota
	// StdioNull connects the slot to the null device.
	StdioNull
	// StdioPipe creates a pipe; the parent end is claimed with
	// Process.Streams or the TakeStdio control request.
	StdioPipe
	// StdioInherit connects the slot to the parent's own handle.
	StdioInherit
)

func (s Stdio) String() string {
	switch s {
	case StdioDefault:
		return "default"
	case StdioNull:
		return "null"
	case StdioPipe:
		return "pipe"
	case StdioInherit:
		return "inherit"
	default:
		return fmt.Sprintf("Stdio(%d)", s)
	}
}

// ParseStdio converts a configuration string into a Stdio mode.
func ParseStdio(value string) (Stdio, error) {
	switch value {
	case "", "default":
		return StdioDefault, nil
	case "null":
		return StdioNull, nil
	case "pipe":
		return StdioPipe, nil
	case "inherit":
		return StdioInherit, nil
	default:
		return StdioDefault, fmt.Errorf("%w: unknown stdio mode %q", ErrInvalidUsage, value)
	}
}

// maxInheritedHandles bounds the explicit inheritance list.
const maxInheritedHandles = 16

// SpawnOptions describes a child to create with Spawner.Spawn.
type SpawnOptions struct {
	// Program is the path of the executable. It is also the first token of
	// the command line.
	Program string
	// Args excludes the program name.
	Args  []string
	Flags Flags

	Stdin  Stdio
	Stdout Stdio
	Stderr Stdio

	// ExtraHandles are additional inheritable handles (file descriptors on
	// POSIX) passed to the child. On POSIX they become fds 3, 4, ...
	ExtraHandles []uintptr
}

// resolve returns the effective mode of a slot following the priority
// pipe > keep flag > null device.
func resolveStdio(mode Stdio, keep bool) Stdio {
	if mode != StdioDefault {
		return mode
	}
	if keep {
		return StdioInherit
	}
	return StdioNull
}

func (o SpawnOptions) stdioModes() [3]Stdio {
	return [3]Stdio{
		resolveStdio(o.Stdin, o.Flags.has(KeepStdin)),
		resolveStdio(o.Stdout, o.Flags.has(KeepStdout)),
		resolveStdio(o.Stderr, o.Flags.has(KeepStderr)),
	}
}

func (o SpawnOptions) validate() error {
	if o.Program == "" {
		return fmt.Errorf("%w: empty program name", ErrInvalidUsage)
	}
	for i, mode := range []Stdio{o.Stdin, o.Stdout, o.Stderr} {
		if mode > StdioInherit {
			return fmt.Errorf("%w: stdio slot %d: %s", ErrInvalidUsage, i, mode)
		}
	}
	if len(o.ExtraHandles)+3 > maxInheritedHandles {
		return fmt.Errorf("%w: too many inherited handles (%d)", ErrInvalidUsage, len(o.ExtraHandles)+3)
	}
	return nil
}

// StdioConfig customises the standard handles of a detached child. It is
// filled in by the caller before the spawn call.
type StdioConfig struct {
	// Stdin, Stdout and Stderr are handed to the child as-is; nil slots get
	// the null device. The files must stay open until the spawn returns.
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File
	// Inherit lists additional handles the child should inherit.
	Inherit []uintptr
	// AllowSetForeground is accepted for symmetry with Spawn; a background
	// process has no use for foreground focus and the request is ignored.
	AllowSetForeground bool
}

// DetachedOptions describes a child that should outlive the caller.
type DetachedOptions struct {
	// Program must be an absolute path; no PATH search is performed.
	Program string
	Args    []string
	// Env replaces the child's environment when non-empty (KEY=value).
	Env []string
	// Stdio is optional; nil connects all three slots to the null device.
	Stdio *StdioConfig
}

func (o DetachedOptions) validate() error {
	if o.Program == "" {
		return fmt.Errorf("%w: empty program name", ErrInvalidUsage)
	}
	if o.Stdio != nil && len(o.Stdio.Inherit)+3 > maxInheritedHandles {
		return fmt.Errorf("%w: too many inherited handles (%d)", ErrInvalidUsage, len(o.Stdio.Inherit)+3)
	}
	return checkExecutable(o.Program)
}
