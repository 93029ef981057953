// Package dispatch ties the runtime registry, sandbox runner, and result
// formatting into a single entry point for executing code snippets.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/michaelbrown/devbot/internal/runtime"
	"github.com/michaelbrown/devbot/internal/sandbox"
)

// Request is one code execution request.
type Request struct {
	Language string `json:"language"`
	Source   string `json:"source"`
}

// Dispatcher executes requests against an immutable registry. Calls are
// independent of each other and safe to issue concurrently.
type Dispatcher struct {
	registry *runtime.Registry
	runner   *sandbox.Runner
	limits   sandbox.Limits
}

// New creates a dispatcher. A zero limits value means sandbox defaults.
func New(registry *runtime.Registry, limits sandbox.Limits) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		runner:   &sandbox.Runner{},
		limits:   limits,
	}
}

// SetWorkDir sets the parent directory for sandbox workspaces. Empty
// means the system temp directory.
func (d *Dispatcher) SetWorkDir(dir string) {
	d.runner.Root = dir
}

// Languages returns the supported language tags.
func (d *Dispatcher) Languages() []string {
	return d.registry.Tags()
}

// Execute runs one request and returns a display record. Expected outcomes
// (unsupported language, compile failure, launch failure, timeout, nonzero
// exit) are all represented as record variants, never as errors. Errors are
// reserved for host resource failures and caller cancellation.
func (d *Dispatcher) Execute(ctx context.Context, req Request) (*Record, error) {
	return d.ExecuteWithLimits(ctx, req, d.limits)
}

// ExecuteWithLimits is Execute with per-call limit overrides.
func (d *Dispatcher) ExecuteWithLimits(ctx context.Context, req Request, limits sandbox.Limits) (*Record, error) {
	rec := &Record{
		ID:        uuid.New().String(),
		Language:  req.Language,
		CreatedAt: time.Now().UTC(),
	}

	recipe, err := d.registry.Lookup(req.Language)
	if err != nil {
		if errors.Is(err, runtime.ErrUnsupported) {
			rec.Status = StatusUnsupportedLanguage
			rec.Stderr = err.Error()
			return rec, nil
		}
		return nil, err
	}

	res, err := d.runner.Run(ctx, recipe, req.Source, limits)
	if err != nil {
		if errors.Is(err, sandbox.ErrLaunch) {
			rec.Status = StatusLaunchFailure
			rec.Stderr = err.Error()
			return rec, nil
		}
		// Host resource failure or cancellation; fatal to this call.
		return nil, fmt.Errorf("executing %s: %w", req.Language, err)
	}

	fill(rec, res)
	return rec, nil
}
