package ledger

import (
	"time"

	"github.com/rohankumardubey/Structure-threader/pkg/jobgrid"
)

// Status is the terminal state of one job. There are no non-terminal
// statuses here: a Result exists only once its job can never transition
// again.
type Status string

const (
	// StatusSucceeded means the process exited with code 0.
	StatusSucceeded Status = "succeeded"

	// StatusFailed means the process exited with a non-zero code.
	StatusFailed Status = "failed"

	// StatusTimedOut means the process outlived its timeout and was killed.
	StatusTimedOut Status = "timed_out"

	// StatusCrashed means the process could not be launched at all
	// (missing binary, unreadable working directory).
	StatusCrashed Status = "crashed"

	// StatusCancelled means the batch was cancelled before the job
	// finished (or before it ever started).
	StatusCancelled Status = "cancelled"
)

// TimeoutExitCode is the sentinel exit code recorded for killed-on-timeout
// and never-launched jobs, where no real exit code exists.
const TimeoutExitCode = -1

// Result is produced exactly once per spec upon termination.
type Result struct {
	// Spec is the originating job spec (back-reference, not ownership).
	Spec jobgrid.Spec `json:"spec"`

	// Status is the terminal state.
	Status Status `json:"status"`

	// ExitCode is the process exit code, or TimeoutExitCode when no
	// process ran to completion.
	ExitCode int `json:"exit_code"`

	// Duration is the elapsed wall time of the run. Zero for jobs that
	// never started.
	Duration time.Duration `json:"duration"`

	// Err carries the launch or supervision error for Crashed and
	// Cancelled jobs. Not serialized; use Status for reporting.
	Err error `json:"-"`
}
