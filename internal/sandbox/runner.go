package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/michaelbrown/devbot/internal/runtime"
)

// Runner materializes a workspace per request and runs recipes in it.
// The zero value is usable; concurrent Run calls are independent because
// each gets its own workspace and process group.
type Runner struct {
	// Root is the parent directory for workspaces. Empty means os.TempDir().
	Root string
}

// binaryName is the output path for compiled recipes, relative to the
// workspace. Kept distinct from the source file stem so {binary} never
// collides with source.<ext>.
const binaryName = "main"

// Run writes source to a fresh workspace and executes the recipe under the
// given limits. The workspace is removed on every exit path. Expected
// execution outcomes (nonzero exit, compile failure, timeout) are reported
// in Result; errors are reserved for launch failures (wrapping ErrLaunch),
// host resource problems creating the workspace, and context cancellation.
func (r *Runner) Run(ctx context.Context, recipe runtime.Recipe, source string, limits Limits) (*Result, error) {
	limits = limits.withDefaults()

	dir, err := os.MkdirTemp(r.Root, "devbot-sandbox-*")
	if err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}
	defer os.RemoveAll(dir)

	stem := "source"
	file := filepath.Join(dir, stem+"."+recipe.Extension)
	if err := os.WriteFile(file, []byte(source), 0o644); err != nil {
		return nil, fmt.Errorf("writing source file: %w", err)
	}
	binary := filepath.Join(dir, binaryName)

	started := time.Now()
	res := &Result{}

	if len(recipe.Compile) > 0 {
		argv := runtime.Expand(recipe.Compile, file, dir, stem, binary)
		step, err := r.runStep(ctx, argv, dir, limits)
		if err != nil {
			return nil, err
		}
		if step.timedOut {
			res.Stdout = step.stdout
			res.Stderr = step.stderr
			res.TimedOut = true
			res.Truncated = step.truncated
			res.Duration = time.Since(started)
			return res, nil
		}
		if step.exitCode != 0 {
			// Compiler diagnostics, not program output. Exit code of the
			// compiler is deliberately not surfaced as the program's.
			res.Stdout = step.stdout
			res.Stderr = step.stderr
			res.CompileFailed = true
			res.Truncated = step.truncated
			res.Duration = time.Since(started)
			return res, nil
		}
	}

	argv := runtime.Expand(recipe.Run, file, dir, stem, binary)
	step, err := r.runStep(ctx, argv, dir, limits)
	if err != nil {
		return nil, err
	}

	res.Stdout = step.stdout
	res.Stderr = step.stderr
	res.Truncated = step.truncated
	res.TimedOut = step.timedOut
	res.ExitCode = step.exitCode
	res.Exited = !step.timedOut
	res.Duration = time.Since(started)
	return res, nil
}

// stepResult is the raw outcome of one spawned process.
type stepResult struct {
	exitCode  int
	timedOut  bool
	truncated bool
	stdout    string
	stderr    string
}

// runStep spawns argv in its own process group with the step timeout and
// output caps applied. On deadline or cancellation the whole group is
// killed so interpreter children don't outlive the request.
func (r *Runner) runStep(ctx context.Context, argv []string, dir string, limits Limits) (*stepResult, error) {
	stepCtx, cancel := context.WithTimeout(ctx, limits.Timeout)
	defer cancel()

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	// Nil Stdin connects the child to the null device; the sandboxed
	// program never reads from the operator's terminal.
	cmd.Stdin = nil
	// Bound the post-kill wait for pipe drain in case a grandchild holds
	// the stream open after the group is killed.
	cmd.WaitDelay = time.Second
	setProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitWriter{buf: &stdout, limit: limits.MaxOutputBytes}
	cmd.Stderr = &limitWriter{buf: &stderr, limit: limits.MaxOutputBytes}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: spawning %s: %v", ErrLaunch, argv[0], err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	killed := false
	select {
	case waitErr = <-done:
	case <-stepCtx.Done():
		killProcessTree(cmd)
		killed = true
		waitErr = <-done
	}

	step := &stepResult{
		stdout:    stdout.String(),
		stderr:    stderr.String(),
		truncated: stdout.Len() >= limits.MaxOutputBytes || stderr.Len() >= limits.MaxOutputBytes,
	}

	if killed {
		if ctx.Err() != nil {
			// Caller cancellation, not the watchdog. The tree is already
			// dead; propagate so the dispatcher reports an interrupt.
			return nil, ctx.Err()
		}
		step.timedOut = true
		return step, nil
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, fmt.Errorf("%w: waiting for %s: %v", ErrLaunch, argv[0], waitErr)
		}
		step.exitCode = exitErr.ExitCode()
	}
	return step, nil
}

// limitWriter writes up to limit bytes to buf and silently discards the
// rest, reporting all input as consumed to avoid short-write errors.
type limitWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *limitWriter) Write(p []byte) (int, error) {
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
		return len(p), nil
	}
	return w.buf.Write(p)
}
