package process

// ControlRequest is a closed set of operations accepted by Process.Control.
// Each request type carries its own payload and receives its own result, so
// a new operation is a new type rather than a change to Process.
type ControlRequest interface {
	controlRequest()
}

// Nop does nothing.
type Nop struct{}

// GetID fetches the OS process identifier.
type GetID struct {
	ID int
}

// GetExitStatus fetches the exit status of a reaped process. Control fails
// with ErrUnfinished before a wait has observed termination.
type GetExitStatus struct {
	Code int
}

// TakeProcessHandle relinquishes the OS process handle to the caller.
type TakeProcessHandle struct {
	Handle OwnedHandle
}

// TakeStdioHandles relinquishes the three parent pipe ends together.
type TakeStdioHandles struct {
	Handles StdioHandles
}

// KillWithCode force-terminates the process with Code. It is a no-op when
// the process already terminated or its handle was relinquished.
type KillWithCode struct {
	Code uint32
}

func (*Nop) controlRequest()               {}
func (*GetID) controlRequest()             {}
func (*GetExitStatus) controlRequest()     {}
func (*TakeProcessHandle) controlRequest() {}
func (*TakeStdioHandles) controlRequest()  {}
func (*KillWithCode) controlRequest()      {}

// Control dispatches req against p and stores any result in req.
func (p *Process) Control(req ControlRequest) error {
	switch r := req.(type) {
	case *Nop:
		return nil
	case *GetID:
		r.ID = p.ID()
		return nil
	case *GetExitStatus:
		code, err := p.ExitStatus()
		r.Code = code
		return err
	case *TakeProcessHandle:
		h, err := p.TakeHandle()
		r.Handle = h
		return err
	case *TakeStdioHandles:
		h, err := p.TakeStdio()
		r.Handles = h
		return err
	case *KillWithCode:
		return p.Kill(r.Code)
	default:
		return ErrUnknownRequest
	}
}
