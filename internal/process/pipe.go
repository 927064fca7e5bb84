package process

import (
	"os"

	"go.uber.org/multierr"
)

// Inherit selects which end of a pipe a child may inherit.
type Inherit uint8

const (
	InheritRead Inherit = 1 << iota
	InheritWrite
	InheritBoth = InheritRead | InheritWrite
)

// CreateInboundPipe creates a pipe the child writes into. The parent keeps
// the read end as a Stream; the returned file is the inheritable write end
// meant for the child's stdout or stderr slot.
func (s *Spawner) CreateInboundPipe(nonblock bool) (*Stream, *os.File, error) {
	return s.pipeWithStream(InheritWrite, nonblock)
}

// CreateOutboundPipe creates a pipe the child reads from. The parent keeps
// the write end as a Stream; the returned file is the inheritable read end
// meant for the child's stdin slot.
func (s *Spawner) CreateOutboundPipe(nonblock bool) (*Stream, *os.File, error) {
	return s.pipeWithStream(InheritRead, nonblock)
}

// CreatePipe creates a pipe whose ends are both inheritable, for handing to
// two different children.
func (s *Spawner) CreatePipe() (r, w *os.File, err error) {
	rh, wh, err := s.inheritablePipe(InheritBoth)
	if err != nil {
		return nil, nil, err
	}
	return os.NewFile(uintptr(rh), "pipe:r"), os.NewFile(uintptr(wh), "pipe:w"), nil
}

// ClosePipe closes one end of a pipe. A nil file is ignored.
func ClosePipe(f *os.File) error {
	if f == nil {
		return nil
	}
	return f.Close()
}

func (s *Spawner) pipeWithStream(inherit Inherit, nonblock bool) (*Stream, *os.File, error) {
	rh, wh, err := s.inheritablePipe(inherit)
	if err != nil {
		return nil, nil, err
	}
	parent, child, write := rh, wh, false
	if inherit == InheritRead {
		parent, child, write = wh, rh, true
	}
	stream, err := newStream(parent, write, nonblock, "pipe:parent")
	if err != nil {
		err = s.logFailure(StageStream, "NewFile", "", err)
		return nil, nil, multierr.Combine(err, closeHandle(parent), closeHandle(child))
	}
	return stream, os.NewFile(uintptr(child), "pipe:child"), nil
}

// inheritablePipe returns a connected pair where only the ends selected by
// inherit can be passed to a child. A failure never leaks a half-open pipe.
func (s *Spawner) inheritablePipe(inherit Inherit) (r, w osHandle, err error) {
	r, w, err = sysPipe(inherit)
	if err != nil {
		return invalidHandle, invalidHandle, s.logFailure(StagePipe, pipeOp, "", err)
	}
	return r, w, nil
}
