// Package sandbox executes untrusted source code in scoped temporary
// workspaces with wall-clock timeouts and output-size caps.
package sandbox

import (
	"errors"
	"time"
)

// ErrLaunch wraps failures to spawn a recipe's compiler or interpreter,
// typically because the binary is not on PATH. Distinct from the executed
// program's own nonzero exit, which is a normal outcome carried in Result.
var ErrLaunch = errors.New("runtime launch failure")

// Limits bounds a single execution.
type Limits struct {
	Timeout        time.Duration // wall clock, applied to each spawned step
	MaxOutputBytes int           // per-stream cap for stdout and stderr
}

// DefaultLimits returns the limits applied when the caller leaves a field
// zero. Every spawned process gets a timeout; nothing blocks indefinitely.
func DefaultLimits() Limits {
	return Limits{
		Timeout:        10 * time.Second,
		MaxOutputBytes: 64 << 10,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.Timeout <= 0 {
		l.Timeout = d.Timeout
	}
	if l.MaxOutputBytes <= 0 {
		l.MaxOutputBytes = d.MaxOutputBytes
	}
	return l
}

// Result is the structured outcome of one execution request.
type Result struct {
	ExitCode      int           // meaningful only when Exited
	Exited        bool          // false when the process was killed before exiting
	Stdout        string        // capped at MaxOutputBytes
	Stderr        string        // capped at MaxOutputBytes
	TimedOut      bool          // watchdog killed the process tree
	Truncated     bool          // either stream hit the output cap
	CompileFailed bool          // compile step exited nonzero; run step skipped
	Duration      time.Duration // first spawn to final exit
}
