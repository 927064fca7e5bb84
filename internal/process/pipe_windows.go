//go:build windows

package process

import (
	"unsafe"

	"go.uber.org/multierr"
	"golang.org/x/sys/windows"
)

func inheritableAttributes() *windows.SecurityAttributes {
	sa := &windows.SecurityAttributes{InheritHandle: 1}
	sa.Length = uint32(unsafe.Sizeof(*sa))
	return sa
}

// sysPipe creates a pipe with both ends inheritable and then clears the flag
// on the ends inherit does not select.
func sysPipe(inherit Inherit) (r, w osHandle, err error) {
	if err := windows.CreatePipe(&r, &w, inheritableAttributes(), 0); err != nil {
		return invalidHandle, invalidHandle, err
	}
	if inherit&InheritRead == 0 {
		err = windows.SetHandleInformation(r, windows.HANDLE_FLAG_INHERIT, 0)
	}
	if err == nil && inherit&InheritWrite == 0 {
		err = windows.SetHandleInformation(w, windows.HANDLE_FLAG_INHERIT, 0)
	}
	if err != nil {
		return invalidHandle, invalidHandle, multierr.Combine(err, windows.CloseHandle(r), windows.CloseHandle(w))
	}
	return r, w, nil
}
