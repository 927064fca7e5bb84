//go:build unix

package process

import (
	"errors"

	"golang.org/x/sys/unix"
)

// osHandle is a file descriptor, or a pid for the process handle itself.
type osHandle = int

const invalidHandle = -1

const (
	terminateOp = "kill"
	pipeOp      = "pipe"
)

func closeHandle(h osHandle) error {
	return unix.Close(h)
}

// releaseProcessHandle has nothing to free: a pid is not a descriptor.
func releaseProcessHandle(osHandle) error {
	return nil
}

// sysTerminate sends SIGKILL. POSIX has no way to impose an exit code on
// another process, so code is ignored. A process that is already gone
// reports false without error.
func sysTerminate(pid osHandle, _ uint32) (bool, error) {
	err := unix.Kill(pid, unix.SIGKILL)
	if errors.Is(err, unix.ESRCH) {
		return false, nil
	}
	return err == nil, err
}
