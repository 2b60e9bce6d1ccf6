// Package driver executes parsed step directives against a debug session.
//
// The driver and the engine run in separate goroutines. The driver issues a
// command and then blocks on the engine's event channel until the program
// is suspended again, so at most one command is in flight at any time.
package driver

import (
	"context"
	"fmt"

	"github.com/go-delve/steptest/pkg/logflags"
	"github.com/go-delve/steptest/pkg/script"
	"github.com/go-delve/steptest/pkg/session"
	"github.com/go-delve/steptest/pkg/smartstep"
)

// Resolver returns the smart step into filters for a position.
type Resolver interface {
	Resolve(pos smartstep.Position) ([]smartstep.MethodFilter, error)
}

// Options configures a Driver.
type Options struct {
	// OnSuspended, if set, is called with every suspension the driver
	// waits for, including the initial breakpoint hit.
	OnSuspended func(ev session.Event)
	// OnComplete, if set, is called once every directive has been issued.
	// The outcome of the last command is not awaited.
	OnComplete func()
}

// Driver runs directives against an engine.
type Driver struct {
	engine   session.Engine
	resolver Resolver
	opts     Options

	state session.State
	log   logflags.Logger
}

// New returns a Driver for engine. The resolver is only used by smart step
// directives and may be nil for scripts without them.
func New(engine session.Engine, resolver Resolver, opts Options) *Driver {
	return &Driver{
		engine:   engine,
		resolver: resolver,
		opts:     opts,
		state:    session.Running(),
		log:      logflags.DriverLogger(),
	}
}

// Run executes directives with a default Driver.
func Run(ctx context.Context, directives []script.Directive, engine session.Engine, resolver Resolver) error {
	return New(engine, resolver, Options{}).Run(ctx, directives)
}

// State returns the last known state of the session.
func (d *Driver) State() session.State {
	return d.state
}

// Run executes directives in order. Before each directive it waits until
// the session is suspended. The first failing directive aborts the run and
// is returned as a *DirectiveError; if ctx is done the context's error is
// returned and no further command is issued.
func (d *Driver) Run(ctx context.Context, directives []script.Directive) error {
	for _, dir := range directives {
		if err := d.await(ctx); err != nil {
			return d.fail(ctx, dir, err)
		}
		if err := d.execute(ctx, dir); err != nil {
			return d.fail(ctx, dir, err)
		}
	}
	d.log.Debugf("all %d directives issued", len(directives))
	if d.opts.OnComplete != nil {
		d.opts.OnComplete()
	}
	return nil
}

func (d *Driver) fail(ctx context.Context, dir script.Directive, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && err == ctxErr {
		d.log.Debugf("abandoned at %s: %v", dir, err)
		return err
	}
	d.log.WithField("line", dir.Line).Errorf("%s failed: %v", dir, err)
	return &DirectiveError{Directive: dir, Err: err}
}

// await blocks until the session is suspended.
func (d *Driver) await(ctx context.Context) error {
	if _, ok := d.state.Suspended(); ok {
		return nil
	}
	if d.state.Finished() {
		return d.finishedError()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case ev, ok := <-d.engine.Events():
		if !ok {
			ev = session.Event{Kind: session.Finished}
		}
		d.state = d.state.Apply(ev)
		if ev.Kind != session.Suspended {
			d.log.Debugf("session %s", ev)
			return d.finishedError()
		}
		d.log.Debugf("%s", ev)
		if d.opts.OnSuspended != nil {
			d.opts.OnSuspended(ev)
		}
		return nil
	}
}

func (d *Driver) finishedError() error {
	if err := d.state.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionFinished, err)
	}
	return ErrSessionFinished
}

func (d *Driver) execute(ctx context.Context, dir script.Directive) error {
	switch dir.Kind {
	case script.StepInto:
		return d.issue(ctx, "step into", func() error { return d.engine.StepInto(nil) })
	case script.StepOut:
		return d.issue(ctx, "step out", d.engine.StepOut)
	case script.Resume:
		return d.issue(ctx, "resume", d.engine.Resume)
	case script.SmartStepInto:
		filters, err := d.filters()
		if err != nil {
			return err
		}
		if len(filters) == 0 {
			d.log.Warnf("line %d: no smart step into candidates", dir.Line)
		}
		for i := range filters {
			if i > 0 {
				if err := d.await(ctx); err != nil {
					return err
				}
			}
			if err := d.stepInto(ctx, &filters[i]); err != nil {
				return err
			}
		}
		return nil
	case script.SmartStepIntoByIndex:
		filters, err := d.filters()
		if err != nil {
			return err
		}
		if dir.Index < 0 || dir.Index >= len(filters) {
			return &IndexOutOfRangeError{Index: dir.Index, Count: len(filters)}
		}
		return d.stepInto(ctx, &filters[dir.Index])
	}
	return fmt.Errorf("unknown directive kind %s", dir.Kind)
}

// filters resolves the smart step into candidates at the session's first
// breakpoint.
func (d *Driver) filters() ([]smartstep.MethodFilter, error) {
	if d.resolver == nil {
		return nil, fmt.Errorf("no smart step resolver configured")
	}
	pos, err := d.engine.BreakpointPosition()
	if err != nil {
		return nil, err
	}
	filters, err := d.resolver.Resolve(pos)
	if err != nil {
		return nil, err
	}
	d.log.Debugf("%d smart step into candidates at %s", len(filters), pos)
	return filters, nil
}

func (d *Driver) stepInto(ctx context.Context, filter *smartstep.MethodFilter) error {
	return d.issue(ctx, "smart step into "+filter.String(), func() error { return d.engine.StepInto(filter) })
}

// issue sends one command to the engine. The session is running until the
// next event arrives.
func (d *Driver) issue(ctx context.Context, what string, cmd func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.log.Debugf("%s", what)
	d.state = session.Running()
	return cmd()
}
