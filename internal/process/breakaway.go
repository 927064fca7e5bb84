package process

// Job object limit flags and the matching creation flag. They are defined
// here so the decision below stays testable on every platform.
const (
	jobLimitBreakawayOK       = 0x00000800
	jobLimitSilentBreakawayOK = 0x00001000
	createBreakawayFromJob    = 0x01000000
)

// breakaway decides the extra creation flags for a detached child given the
// caller's job membership and the job's limit flags. A job that allows
// explicit break-away gets CREATE_BREAKAWAY_FROM_JOB; a job with silent
// break-away needs nothing; any other job keeps the child, which then dies
// with the job.
func breakaway(inJob bool, limitFlags uint32) (flags uint32, decision string) {
	switch {
	case !inJob:
		return 0, "not in job"
	case limitFlags&jobLimitBreakawayOK != 0:
		return createBreakawayFromJob, "breakaway ok"
	case limitFlags&jobLimitSilentBreakawayOK != 0:
		return 0, "silent breakaway ok"
	default:
		return 0, "no breakaway"
	}
}
