//go:build windows

package process

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/windows"
)

type osHandle = windows.Handle

const invalidHandle = windows.InvalidHandle

const (
	terminateOp = "TerminateProcess"
	pipeOp      = "CreatePipe"
)

var (
	modkernel32 = windows.NewLazySystemDLL("kernel32.dll")
	moduser32   = windows.NewLazySystemDLL("user32.dll")

	procIsProcessInJob           = modkernel32.NewProc("IsProcessInJob")
	procGetHandleInformation     = modkernel32.NewProc("GetHandleInformation")
	procAllowSetForegroundWindow = moduser32.NewProc("AllowSetForegroundWindow")
)

// asfwAny is the ASFW_ANY sentinel of AllowSetForegroundWindow.
const asfwAny = ^uint32(0)

func closeHandle(h osHandle) error {
	return windows.CloseHandle(h)
}

func releaseProcessHandle(h osHandle) error {
	return windows.CloseHandle(h)
}

// sysTerminate kills the process behind h with code. It reports false
// without error when the process had already exited: TerminateProcess
// answers that case with ERROR_ACCESS_DENIED.
func sysTerminate(h osHandle, code uint32) (bool, error) {
	if hasExited(h) {
		return false, nil
	}
	err := windows.TerminateProcess(h, code)
	if errors.Is(err, windows.ERROR_ACCESS_DENIED) && hasExited(h) {
		return false, nil
	}
	return err == nil, err
}

// hasExited polls the process handle without blocking.
func hasExited(h osHandle) bool {
	event, err := windows.WaitForSingleObject(h, 0)
	return err == nil && event == windows.WAIT_OBJECT_0
}

func isProcessInJob(process, job windows.Handle) (bool, error) {
	var result int32
	r1, _, err := procIsProcessInJob.Call(uintptr(process), uintptr(job), uintptr(unsafe.Pointer(&result)))
	if r1 == 0 {
		return false, err
	}
	return result != 0, nil
}

func getHandleInformation(h windows.Handle) (uint32, error) {
	var flags uint32
	r1, _, err := procGetHandleInformation.Call(uintptr(h), uintptr(unsafe.Pointer(&flags)))
	if r1 == 0 {
		return 0, err
	}
	return flags, nil
}

func allowSetForegroundWindow(pid uint32) error {
	r1, _, err := procAllowSetForegroundWindow.Call(uintptr(pid))
	if r1 == 0 {
		return err
	}
	return nil
}
