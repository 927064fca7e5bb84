package process

import (
	"errors"
	"syscall"
)

type handleKind uint8

const (
	kindStream handleKind = iota
	kindProcess
)

// OwnedHandle is a raw OS handle whose ownership moved to the caller. The
// zero value is not valid; use the handles returned by Process methods.
type OwnedHandle struct {
	h    osHandle
	kind handleKind
	ok   bool
}

func ownedHandle(h osHandle, kind handleKind) OwnedHandle {
	return OwnedHandle{h: h, kind: kind, ok: h != invalidHandle}
}

// Valid reports whether h still refers to an open handle.
func (h OwnedHandle) Valid() bool {
	return h.ok && h.h != invalidHandle
}

// Value returns the raw handle (a HANDLE on Windows, an fd or pid on POSIX).
func (h OwnedHandle) Value() uintptr {
	return uintptr(h.h)
}

// Close releases the handle once; later calls are no-ops.
func (h *OwnedHandle) Close() error {
	if h == nil || !h.Valid() {
		return nil
	}
	var err error
	if h.kind == kindProcess {
		err = releaseProcessHandle(h.h)
	} else {
		err = closeHandle(h.h)
	}
	h.h = invalidHandle
	h.ok = false
	return err
}

// errnoOf extracts the platform error number, or -1 when err carries none.
func errnoOf(err error) int64 {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int64(errno)
	}
	return -1
}
