package process

import (
	"errors"
	"io"
	"os"

	"go.uber.org/multierr"
)

// ErrWouldBlock is returned by a non-blocking Stream read when no data is
// available yet.
var ErrWouldBlock = errors.New("stream: operation would block")

// Stream is a byte stream over one raw pipe end.
type Stream struct {
	f        *os.File
	write    bool
	nonblock bool
}

var _ io.ReadWriteCloser = (*Stream)(nil)

// Read reads from a read-side stream. In non-blocking mode it returns
// ErrWouldBlock instead of waiting for data.
func (s *Stream) Read(b []byte) (int, error) {
	if s.write {
		return 0, errors.New("stream: read on write-only stream")
	}
	if s.nonblock {
		return readNonblock(s.f, b)
	}
	return s.f.Read(b)
}

// Write writes to a write-side stream.
func (s *Stream) Write(b []byte) (int, error) {
	if !s.write {
		return 0, errors.New("stream: write on read-only stream")
	}
	return s.f.Write(b)
}

// Close closes the underlying pipe end.
func (s *Stream) Close() error {
	if s == nil || s.f == nil {
		return nil
	}
	return s.f.Close()
}

// Fd returns the raw handle backing the stream.
func (s *Stream) Fd() uintptr {
	return s.f.Fd()
}

// File exposes the stream as an *os.File, for example to pass it to
// SpawnFD. The stream keeps ownership.
func (s *Stream) File() *os.File {
	return s.f
}

// NonBlocking reports whether the stream was opened in non-blocking mode.
func (s *Stream) NonBlocking() bool {
	return s.nonblock
}

// Streams are the parent-side pipe ends of a process. Slots without a pipe
// are nil.
type Streams struct {
	Stdin  *Stream
	Stdout *Stream
	Stderr *Stream
}

// Close closes every open stream.
func (s *Streams) Close() error {
	if s == nil {
		return nil
	}
	return multierr.Combine(s.Stdin.Close(), s.Stdout.Close(), s.Stderr.Close())
}

// newStream wraps h, taking ownership of it. On failure h is still owned by
// the caller.
func newStream(h osHandle, write, nonblock bool, name string) (*Stream, error) {
	if nonblock {
		if err := setNonblock(h, write); err != nil {
			return nil, err
		}
	}
	f := os.NewFile(uintptr(h), name)
	if f == nil {
		return nil, os.ErrInvalid
	}
	return &Stream{f: f, write: write, nonblock: nonblock}, nil
}
