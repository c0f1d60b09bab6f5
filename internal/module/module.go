package module

import (
	"context"
	"fmt"
)

// Runner is implemented by every runnable module implementation. A runner
// receives the shared execution context for the phase run and returns the
// key/value updates to merge into it. A nil update map means the module
// produced nothing; an error means the module failed.
type Runner interface {
	Run(ctx context.Context, ec *Context) (map[string]any, error)
}

// RunnerFunc adapts a plain function into a Runner. This is the direct,
// synchronous variant.
type RunnerFunc func(ctx context.Context, ec *Context) (map[string]any, error)

// Run executes f.
func (f RunnerFunc) Run(ctx context.Context, ec *Context) (map[string]any, error) {
	if f == nil {
		return nil, fmt.Errorf("module: nil runner func")
	}
	return f(ctx, ec)
}

// Outcome carries the result of a suspendable unit of work.
type Outcome struct {
	Updates map[string]any
	Err     error
}

// Suspendable wraps a function that starts work and reports completion on a
// channel. The controller blocks on the channel, so two modules never overlap
// even when the implementation itself runs elsewhere.
func Suspendable(start func(ctx context.Context, ec *Context) <-chan Outcome) Runner {
	return suspendableRunner{start: start}
}

type suspendableRunner struct {
	start func(ctx context.Context, ec *Context) <-chan Outcome
}

func (r suspendableRunner) Run(ctx context.Context, ec *Context) (map[string]any, error) {
	if r.start == nil {
		return nil, fmt.Errorf("module: nil suspendable start func")
	}
	done := r.start(ctx, ec)
	select {
	case outcome, ok := <-done:
		if !ok {
			return nil, fmt.Errorf("module: suspendable runner closed without an outcome")
		}
		return outcome.Updates, outcome.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Entry binds a module identifier to its runnable implementation plus
// descriptive metadata. Inputs and Outputs document the context keys the
// module reads and writes; they are not enforced.
type Entry struct {
	ID          string
	Runner      Runner
	PhaseID     string
	Inputs      []string
	Outputs     []string
	Description string
	Metadata    map[string]any
}

// Validate ensures the entry is usable.
func (e Entry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("module: id is required")
	}
	if e.Runner == nil {
		return fmt.Errorf("module: runner is required for %s", e.ID)
	}
	return nil
}
