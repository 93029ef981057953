package dispatch

import (
	"time"

	"github.com/michaelbrown/devbot/internal/sandbox"
)

// Status is the human-presentable classification of an execution outcome.
type Status string

const (
	StatusSucceeded           Status = "succeeded"
	StatusFailed              Status = "failed"
	StatusTimedOut            Status = "timed_out"
	StatusCompileError        Status = "compile_error"
	StatusUnsupportedLanguage Status = "unsupported_language"
	StatusLaunchFailure       Status = "launch_failure"
)

// Record is the normalized outcome of one request, suitable for display
// and for the append-only history log.
type Record struct {
	ID             string    `json:"id"`
	Language       string    `json:"language"`
	Status         Status    `json:"status"`
	ExitCode       *int      `json:"exit_code,omitempty"` // nil when killed or never run
	Stdout         string    `json:"stdout,omitempty"`
	Stderr         string    `json:"stderr,omitempty"`
	TimedOut       bool      `json:"timed_out,omitempty"`
	Truncated      bool      `json:"truncated,omitempty"`
	DurationMillis int64     `json:"duration_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// fill derives the record's status from a sandbox result. Priority:
// compile error > timeout > nonzero exit > success. Configuration-class
// statuses (unsupported language, launch failure) are set by the
// dispatcher before a result exists.
func fill(rec *Record, res *sandbox.Result) {
	rec.Stdout = res.Stdout
	rec.Stderr = res.Stderr
	rec.TimedOut = res.TimedOut
	rec.Truncated = res.Truncated
	rec.DurationMillis = res.Duration.Milliseconds()

	switch {
	case res.CompileFailed:
		rec.Status = StatusCompileError
	case res.TimedOut:
		rec.Status = StatusTimedOut
	case res.ExitCode != 0:
		code := res.ExitCode
		rec.ExitCode = &code
		rec.Status = StatusFailed
	default:
		code := 0
		rec.ExitCode = &code
		rec.Status = StatusSucceeded
	}
}

// OK reports whether the record represents a clean run.
func (r *Record) OK() bool {
	return r.Status == StatusSucceeded
}
