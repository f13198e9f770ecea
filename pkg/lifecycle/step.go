// Package lifecycle provides the step engine that sequences startup and
// shutdown work for control-plane services.
//
// A Step is either simple (a single named action) or composite (an ordered
// sequence of child steps). Composites execute their children strictly in
// declared order on a single control path. A required child that fails
// aborts the remaining children; an optional child that fails is reported
// to the monitor and swallowed. The engine performs no retries; recovery
// is a restart concern.
package lifecycle

import (
	"context"
	"fmt"
)

// Step is a named unit of startup or shutdown work. The zero value is an
// empty composite that succeeds without doing anything.
//
// Steps are assembled once at startup and are immutable afterwards. A step
// is either simple (run is set) or composite (children is set); Execute
// dispatches on which one is populated.
type Step struct {
	name     string
	required bool
	run      func(ctx context.Context) error
	children []Step
}

// NewStep creates a required simple step that runs fn.
func NewStep(name string, fn func(ctx context.Context) error) Step {
	return Step{name: name, required: true, run: fn}
}

// NewOptionalStep creates a simple step whose failure is reported but does
// not abort the enclosing composite.
func NewOptionalStep(name string, fn func(ctx context.Context) error) Step {
	return Step{name: name, required: false, run: fn}
}

// NewComposite creates a required composite step that executes children in
// the given order.
func NewComposite(name string, children ...Step) Step {
	return Step{name: name, required: true, children: children}
}

// Name returns the step's name.
func (s Step) Name() string { return s.name }

// Required reports whether a failure of this step aborts the enclosing
// composite.
func (s Step) Required() bool { return s.required }

// Execute runs the step.
//
// A simple step runs its action and propagates any failure verbatim. A
// composite runs each child in declared order: a required child's failure
// aborts the remaining children and is returned wrapped in a *StepError
// naming the failing child; an optional child's failure is reported to the
// monitor and execution continues. Between children the context is checked,
// so cancellation takes effect at step boundaries; a step that has started
// always runs to completion.
//
// mon may be nil, in which case progress is not reported.
func (s Step) Execute(ctx context.Context, mon *Monitor) error {
	if s.run != nil {
		mon.stepStarted(s)
		if err := s.run(ctx); err != nil {
			mon.stepFailed(s, err)
			return err
		}
		mon.stepSucceeded(s)
		return nil
	}

	mon.stepStarted(s)
	for _, child := range s.children {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := child.Execute(ctx, mon); err != nil {
			if child.required {
				mon.stepFailed(s, err)
				return &StepError{Step: child.name, Err: err}
			}
			// Optional child: already reported by its own Execute.
		}
	}
	mon.stepSucceeded(s)
	return nil
}

// StepError reports the failure of a required step inside a composite. It
// wraps the original cause and names the step that failed. Nested
// composites produce nested StepErrors, so the chain reads as a path from
// the outermost composite child down to the failing action.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
