//go:build windows

package process

import (
	"errors"
	"io"
	"os"

	"golang.org/x/sys/windows"
)

// setNonblock switches an anonymous pipe end to PIPE_NOWAIT.
func setNonblock(h osHandle, _ bool) error {
	mode := uint32(windows.PIPE_READMODE_BYTE | windows.PIPE_NOWAIT)
	return windows.SetNamedPipeHandleState(h, &mode, nil, nil)
}

// readNonblock reads straight from the handle: os.File would treat
// ERROR_NO_DATA as a hard error.
func readNonblock(f *os.File, b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	var n uint32
	err := windows.ReadFile(windows.Handle(f.Fd()), b, &n, nil)
	switch {
	case errors.Is(err, windows.ERROR_NO_DATA):
		return 0, ErrWouldBlock
	case errors.Is(err, windows.ERROR_BROKEN_PIPE):
		return int(n), io.EOF
	case err != nil:
		return int(n), err
	case n == 0:
		return 0, io.EOF
	}
	return int(n), nil
}
