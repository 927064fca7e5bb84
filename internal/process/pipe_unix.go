//go:build unix

package process

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// sysPipe creates a close-on-exec pipe. Inheritance on POSIX is decided per
// spawn by the descriptor list handed to the child, so inherit only matters
// for which end the caller keeps.
func sysPipe(_ Inherit) (r, w osHandle, err error) {
	var p [2]int
	// ForkLock keeps a concurrent fork from inheriting the descriptors
	// before they are marked close-on-exec.
	syscall.ForkLock.RLock()
	err = unix.Pipe(p[:])
	if err == nil {
		unix.CloseOnExec(p[0])
		unix.CloseOnExec(p[1])
	}
	syscall.ForkLock.RUnlock()
	if err != nil {
		return invalidHandle, invalidHandle, err
	}
	return p[0], p[1], nil
}
