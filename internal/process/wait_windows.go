//go:build windows

package process

import (
	"golang.org/x/sys/windows"
)

// maxWaitObjects is MAXIMUM_WAIT_OBJECTS.
const maxWaitObjects = 64

func waitPending(procs []*Process, hang bool) error {
	s := procs[0].spawner
	handles := make([]windows.Handle, len(procs))
	for i, p := range procs {
		p.mu.Lock()
		handles[i] = p.handle
		p.mu.Unlock()
	}

	if hang {
		var err error
		op := "WaitForMultipleObjects"
		s.hooks.run(func() {
			if len(handles) <= maxWaitObjects {
				_, err = windows.WaitForMultipleObjects(handles, true, windows.INFINITE)
				return
			}
			op = "WaitForSingleObject"
			for _, h := range handles {
				if _, err = windows.WaitForSingleObject(h, windows.INFINITE); err != nil {
					return
				}
			}
		})
		if err != nil {
			return s.logFailure(StageWait, op, procs[0].program, err)
		}
	}

	running := false
	for i, p := range procs {
		event, err := windows.WaitForSingleObject(handles[i], 0)
		if err != nil {
			return s.logFailure(StageWait, "WaitForSingleObject", p.program, err)
		}
		if event == uint32(windows.WAIT_TIMEOUT) {
			running = true
			continue
		}
		var code uint32
		if err := windows.GetExitCodeProcess(handles[i], &code); err != nil {
			return s.logFailure(StageExitCode, "GetExitCodeProcess", p.program, err)
		}
		p.markExited(exitStatus{code: int(code)})
	}
	if running {
		return ErrTimeout
	}
	return nil
}
