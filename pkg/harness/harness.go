// Package harness runs step test scripts end to end: it builds the script,
// starts a debug session stopped at the script's breakpoints, drives it
// through the script's directives and checks the recorded suspensions
// against the expected trace.
package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-delve/steptest/pkg/config"
	"github.com/go-delve/steptest/pkg/dapengine"
	"github.com/go-delve/steptest/pkg/driver"
	"github.com/go-delve/steptest/pkg/gobuild"
	"github.com/go-delve/steptest/pkg/logflags"
	"github.com/go-delve/steptest/pkg/script"
	"github.com/go-delve/steptest/pkg/session"
	"github.com/go-delve/steptest/pkg/smartstep"
)

var (
	// ErrNoBreakpoints is returned for scripts without a //Breakpoint! marker.
	ErrNoBreakpoints = errors.New("script has no breakpoints")
	// ErrFinishTimeout is reported when the program does not terminate
	// after the last directive.
	ErrFinishTimeout = errors.New("timed out waiting for the program to exit")
)

// Engine is a debug session that can be torn down.
type Engine interface {
	session.Engine
	Close() error
}

// Options configures Run.
type Options struct {
	// Update rewrites the golden trace instead of comparing against it.
	Update bool

	// Build compiles the script at path into the executable out. Defaults
	// to gobuild.GoBuildCombinedOutput.
	Build func(out, path, buildflags string) error
	// Launch starts a debug session. Defaults to dapengine.Launch.
	Launch func(ctx context.Context, cfg dapengine.Config) (Engine, error)
	// Resolver resolves smart step into targets. Defaults to a resolver
	// over a fresh smartstep.Index.
	Resolver driver.Resolver
}

// Result is the outcome of a script.
type Result struct {
	Path string
	// Trace has one line per suspension, the initial breakpoint hit
	// included.
	Trace []string
	// Failure is set when the script ran but did not pass.
	Failure error
}

// Passed returns true if the script ran without failures.
func (r *Result) Passed() bool {
	return r.Failure == nil
}

// Run runs the script at path. The returned error is set when the script
// could not be run at all (unreadable, malformed, does not compile); test
// failures are reported in Result.Failure.
func Run(ctx context.Context, cfg *config.Config, path string, opts Options) (*Result, error) {
	return run(ctx, cfg, path, opts, nil)
}

// StepIntoTest runs the script at path as a sequence of step into commands.
// The number of steps is the count of the first STEP_INTO annotation and
// every other directive is ignored.
func StepIntoTest(ctx context.Context, cfg *config.Config, path string, opts Options) (*Result, error) {
	return RunSingleKind(ctx, cfg, path, script.StepInto, opts)
}

// StepOutTest is like StepIntoTest for STEP_OUT.
func StepOutTest(ctx context.Context, cfg *config.Config, path string, opts Options) (*Result, error) {
	return RunSingleKind(ctx, cfg, path, script.StepOut, opts)
}

// SmartStepIntoTest is like StepIntoTest for SMART_STEP_INTO.
func SmartStepIntoTest(ctx context.Context, cfg *config.Config, path string, opts Options) (*Result, error) {
	return RunSingleKind(ctx, cfg, path, script.SmartStepInto, opts)
}

// RunSingleKind runs the script at path using only directives of kind.
func RunSingleKind(ctx context.Context, cfg *config.Config, path string, kind script.Kind, opts Options) (*Result, error) {
	return run(ctx, cfg, path, opts, &kind)
}

func run(ctx context.Context, cfg *config.Config, path string, opts Options, kind *script.Kind) (*Result, error) {
	log := logflags.HarnessLogger().WithField("script", filepath.Base(path))

	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var scr *script.Script
	if kind != nil {
		scr, err = script.ParseSingleKindScript(bytes.NewReader(src), path, *kind)
	} else {
		scr, err = script.ParseScript(bytes.NewReader(src), path)
	}
	if err != nil {
		return nil, err
	}
	if len(scr.Breakpoints) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoBreakpoints)
	}
	if cfg == nil {
		cfg = config.Default()
	}
	cfg, err = applySettings(cfg, scr.Settings, log)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	opts.fillDefaults()

	bin := gobuild.DefaultDebugBinaryPath(os.TempDir(), path)
	defer gobuild.Remove(bin)
	if err := opts.Build(bin, path, cfg.BuildFlags); err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	ecfg := dapengine.Config{
		Program:        bin,
		WorkDir:        dir,
		DlvPath:        cfg.DlvPath,
		StepTimeout:    cfg.StepTimeout,
		MaxFilterSteps: cfg.MaxFilterSteps,
		SubstitutePath: cfg.SubstitutePath,
	}
	for _, line := range scr.Breakpoints {
		ecfg.Breakpoints = append(ecfg.Breakpoints, smartstep.Position{File: path, Line: line - 1})
	}

	engine, err := opts.Launch(ctx, ecfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Debugf("closing engine: %v", err)
		}
	}()

	res := &Result{Path: path}
	record := func(ev session.Event) {
		l := traceLine(ev, dir)
		log.Debugf("suspended at %s", l)
		res.Trace = append(res.Trace, l)
	}

	d := driver.New(engine, opts.Resolver, driver.Options{OnSuspended: record})
	if err := d.Run(ctx, scr.Directives); err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		res.Failure = err
		return res, nil
	}

	if err := finish(ctx, engine, cfg.FinishTimeout, record); err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		res.Failure = err
		return res, nil
	}

	if err := checkTrace(goldenPath(path), res.Trace, opts.Update); err != nil {
		if !errors.Is(err, ErrTraceMismatch) && !errors.Is(err, ErrNoExpectedTrace) {
			return nil, err
		}
		res.Failure = err
	}
	return res, nil
}

func (opts *Options) fillDefaults() {
	if opts.Build == nil {
		opts.Build = build
	}
	if opts.Launch == nil {
		opts.Launch = func(ctx context.Context, cfg dapengine.Config) (Engine, error) {
			return dapengine.Launch(ctx, cfg)
		}
	}
	if opts.Resolver == nil {
		opts.Resolver = smartstep.NewResolver(smartstep.NewIndex())
	}
}

func build(out, path, buildflags string) error {
	cmd, output, err := gobuild.GoBuildCombinedOutput(out, []string{path}, buildflags)
	if err != nil {
		if cmd == "" {
			return err
		}
		return fmt.Errorf("%s: %v\n%s", cmd, err, output)
	}
	logflags.HarnessLogger().Debugf("built %s", out)
	return nil
}

// finish resumes the program on every suspension until it terminates.
// Every suspension is passed to record.
func finish(ctx context.Context, engine session.Engine, timeout time.Duration, record func(session.Event)) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	events := engine.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return ErrFinishTimeout
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Kind {
			case session.Finished:
				return ev.Err
			case session.Suspended:
				record(ev)
				if err := engine.Resume(); err != nil {
					return fmt.Errorf("resuming after the last directive: %w", err)
				}
			}
		}
	}
}
