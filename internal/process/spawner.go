package process

import (
	"go.uber.org/zap"
)

// DebugJobs enables diagnostics of the job break-away decision made by
// SpawnDetached. It is bit 0 of GNUPG_EXEC_DEBUG_FLAGS.
const DebugJobs = 1 << 0

// SyscallHooks brackets calls that may block the calling thread, so an
// embedding cooperative scheduler can run other work meanwhile. Either
// function may be nil.
type SyscallHooks struct {
	Pre  func()
	Post func()
}

func (h SyscallHooks) run(fn func()) {
	if h.Pre != nil {
		h.Pre()
	}
	defer func() {
		if h.Post != nil {
			h.Post()
		}
	}()
	fn()
}

// Spawner holds the process-wide configuration shared by every process it
// creates. Construct it once at startup and pass it by reference.
type Spawner struct {
	log        *zap.Logger
	hooks      SyscallHooks
	debugFlags int
}

// Option configures a Spawner.
type Option func(*Spawner)

// WithLogger sets the logger used for diagnostics.
func WithLogger(log *zap.Logger) Option {
	return func(s *Spawner) {
		if log != nil {
			s.log = log
		}
	}
}

// WithSyscallHooks registers the blocking-call notification pair.
func WithSyscallHooks(h SyscallHooks) Option {
	return func(s *Spawner) {
		s.hooks = h
	}
}

// WithDebugFlags sets the diagnostic bitmask (see DebugJobs).
func WithDebugFlags(flags int) Option {
	return func(s *Spawner) {
		s.debugFlags = flags
	}
}

// New constructs a Spawner.
func New(opts ...Option) *Spawner {
	s := &Spawner{log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Spawner) debugJobs() bool {
	return s.debugFlags&DebugJobs != 0
}

// logFailure logs a failed OS primitive and returns it as an *OpError.
func (s *Spawner) logFailure(stage Stage, op, program string, err error) error {
	s.log.Error("process primitive failed",
		zap.String("op", op),
		zap.Stringer("stage", stage),
		zap.String("program", program),
		zap.Int64("errno", errnoOf(err)),
		zap.Error(err),
	)
	return opError(stage, op, program, err)
}
