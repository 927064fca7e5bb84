// Package process creates child processes, wires their standard streams and
// reaps them.
//
// The Windows implementation creates every child suspended with an explicit
// handle inheritance list, closes the parent's copies of the child-side pipe
// ends and null device handles, and only then resumes the child. A second
// child created concurrently therefore never inherits handles meant for the
// first. Detached children break away from the caller's job object when the
// job allows it; otherwise they are torn down with the job.
//
// The POSIX implementation in the *_unix.go files offers the same operations
// and error categories. Kill there sends SIGKILL, so the requested exit code
// cannot be applied and a killed child reports 128+signal.
//
// Blocking calls (wait, kill, resume) are bracketed by the SyscallHooks
// passed to New so an embedding scheduler can run other work meanwhile.
package process
