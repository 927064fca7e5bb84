package process

import "golang.org/x/sys/unix"

const awaitExitOp = "waitid"

// awaitExit blocks until pid has exited without reaping it.
func awaitExit(pid int) error {
	var info unix.Siginfo
	for {
		err := unix.Waitid(unix.P_PID, pid, &info, unix.WEXITED|unix.WNOWAIT, nil)
		if err != unix.EINTR {
			return err
		}
	}
}
