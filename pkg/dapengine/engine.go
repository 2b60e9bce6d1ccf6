// Package dapengine implements session.Engine on top of a Delve debug
// adapter speaking the Debug Adapter Protocol.
package dapengine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"sync"
	"time"

	"github.com/google/go-dap"

	"github.com/go-delve/steptest/pkg/config"
	"github.com/go-delve/steptest/pkg/logflags"
	"github.com/go-delve/steptest/pkg/session"
	"github.com/go-delve/steptest/pkg/smartstep"
)

// maxStackDepth is the number of frames requested from the adapter. Frame
// depths are compared to decide whether a step entered a call.
const maxStackDepth = 1000

const disconnectTimeout = 5 * time.Second

var (
	// ErrCommandInFlight is returned when a command is issued before the
	// event of the previous one was delivered.
	ErrCommandInFlight = errors.New("a command is already in flight")
	// ErrNoBreakpoints is returned by BreakpointPosition when no line
	// breakpoint could be installed.
	ErrNoBreakpoints = errors.New("no line breakpoints installed")
	errFinished      = errors.New("debug session finished")
)

// Config describes the program to debug.
type Config struct {
	// Program is the compiled binary to run.
	Program string
	Args    []string
	WorkDir string

	// Breakpoints are the line breakpoints installed before the program
	// starts.
	Breakpoints []smartstep.Position

	// DlvPath is the delve executable started by Launch.
	DlvPath string
	// StepTimeout bounds the wait for the suspension following a command.
	StepTimeout time.Duration
	// MaxFilterSteps bounds the number of steps of a filtered step into.
	MaxFilterSteps int
	// SubstitutePath is applied to the paths the adapter reports.
	SubstitutePath config.SubstitutePathRules
}

func (cfg *Config) fillDefaults() {
	if cfg.DlvPath == "" {
		cfg.DlvPath = config.DefaultDlvPath
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = config.DefaultStepTimeout
	}
	if cfg.MaxFilterSteps <= 0 {
		cfg.MaxFilterSteps = config.DefaultMaxFilterSteps
	}
}

// Engine is a debug session on a Delve debug adapter. Commands run on their
// own goroutine and report their outcome on the Events channel.
type Engine struct {
	cfg    Config
	client *Client
	proc   *exec.Cmd
	log    logflags.Logger

	ctx    context.Context
	cancel context.CancelFunc

	events     chan session.Event
	stopped    chan *dap.StoppedEvent
	terminated chan struct{}
	termOnce   sync.Once

	breakpoints []smartstep.Position

	mu       sync.Mutex
	inflight bool
	finished bool
	threadID int
	current  session.Frame
	closed   bool
}

// Connect starts a session over a connection to a debug adapter: it
// initializes the adapter, launches cfg.Program, installs the breakpoints
// and lets the program run. The first event is the first suspension of the
// program.
func Connect(ctx context.Context, conn net.Conn, cfg Config) (*Engine, error) {
	cfg.fillDefaults()
	e := &Engine{
		cfg:        cfg,
		log:        logflags.EngineLogger(),
		events:     make(chan session.Event, 1),
		stopped:    make(chan *dap.StoppedEvent, 16),
		terminated: make(chan struct{}),
		threadID:   1,
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.client = NewClient(conn, e.handleEvent)

	if err := e.handshake(ctx); err != nil {
		e.cancel()
		e.client.Close()
		return nil, err
	}

	e.inflight = true
	go e.run(func(ctx context.Context) session.Event {
		ctx, cancel := context.WithTimeout(ctx, e.cfg.StepTimeout)
		defer cancel()
		return e.waitStop(ctx)
	})
	return e, nil
}

func (e *Engine) handshake(ctx context.Context) error {
	if _, err := e.client.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if err := e.client.Launch(ctx, e.cfg.Program, e.cfg.Args, e.cfg.WorkDir); err != nil {
		return fmt.Errorf("launch %s: %w", e.cfg.Program, err)
	}

	byFile := map[string][]int{}
	var files []string
	for _, bp := range e.cfg.Breakpoints {
		if _, ok := byFile[bp.File]; !ok {
			files = append(files, bp.File)
		}
		byFile[bp.File] = append(byFile[bp.File], bp.Line+1)
	}
	for _, file := range files {
		bps, err := e.client.SetBreakpoints(ctx, file, byFile[file])
		if err != nil {
			return fmt.Errorf("set breakpoints in %s: %w", file, err)
		}
		for _, bp := range bps {
			if !bp.Verified {
				e.log.Warnf("breakpoint at %s:%d not verified: %s", file, bp.Line, bp.Message)
				continue
			}
			e.breakpoints = append(e.breakpoints, smartstep.Position{File: file, Line: bp.Line - 1})
		}
	}

	if err := e.client.ConfigurationDone(ctx); err != nil {
		return fmt.Errorf("configuration done: %w", err)
	}
	return nil
}

func (e *Engine) handleEvent(m dap.EventMessage) {
	switch ev := m.(type) {
	case *dap.StoppedEvent:
		select {
		case e.stopped <- ev:
		default:
			e.log.Warnf("dropping stopped event: %s", ev.Body.Reason)
		}
	case *dap.TerminatedEvent:
		e.termOnce.Do(func() { close(e.terminated) })
	case *dap.OutputEvent:
		e.log.Debugf("%s: %s", ev.Body.Category, ev.Body.Output)
	}
}

// Events returns the channel the outcome of every command is delivered on.
// It is closed after the Finished event.
func (e *Engine) Events() <-chan session.Event {
	return e.events
}

// BreakpointPosition returns the first installed line breakpoint.
func (e *Engine) BreakpointPosition() (smartstep.Position, error) {
	if len(e.breakpoints) == 0 {
		return smartstep.Position{}, ErrNoBreakpoints
	}
	return e.breakpoints[0], nil
}

// StepInto steps into the next call. With a filter, it keeps stepping until
// the program stops inside the call the filter selects.
func (e *Engine) StepInto(filter *smartstep.MethodFilter) error {
	if filter == nil {
		return e.start(func(ctx context.Context) session.Event {
			return e.step(ctx, "stepIn")
		})
	}
	f := *filter
	return e.start(func(ctx context.Context) session.Event {
		return e.filteredStepIn(ctx, &f)
	})
}

// StepOut runs until the current function returns.
func (e *Engine) StepOut() error {
	return e.start(func(ctx context.Context) session.Event {
		return e.step(ctx, "stepOut")
	})
}

// Resume continues the program.
func (e *Engine) Resume() error {
	return e.start(func(ctx context.Context) session.Event {
		return e.step(ctx, "continue")
	})
}

func (e *Engine) start(cmd func(ctx context.Context) session.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.finished:
		return errFinished
	case e.inflight:
		return ErrCommandInFlight
	}
	e.inflight = true
	go e.run(cmd)
	return nil
}

func (e *Engine) run(cmd func(ctx context.Context) session.Event) {
	ev := cmd(e.ctx)
	e.mu.Lock()
	e.inflight = false
	if ev.Kind == session.Suspended {
		e.current = ev.Frame
	} else {
		e.finished = true
	}
	e.mu.Unlock()

	e.log.Debugf("%s", ev)
	e.events <- ev
	if ev.Kind == session.Finished {
		close(e.events)
	}
}

// step sends one stepping request and waits for the program to stop.
func (e *Engine) step(ctx context.Context, command string) session.Event {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.StepTimeout)
	defer cancel()

	e.mu.Lock()
	thread := e.threadID
	e.mu.Unlock()

	var err error
	switch command {
	case "stepIn":
		err = e.client.StepIn(ctx, thread)
	case "stepOut":
		err = e.client.StepOut(ctx, thread)
	case "continue":
		err = e.client.Continue(ctx, thread)
	default:
		err = fmt.Errorf("unknown command %s", command)
	}
	if err != nil {
		select {
		case <-e.terminated:
			return session.Event{Kind: session.Finished, Reason: "terminated"}
		default:
		}
		return session.Event{Kind: session.Finished, Err: err}
	}
	return e.waitStop(ctx)
}

// filteredStepIn steps into calls until the program stops in a frame
// matching f, deeper than the frame the step started from.
//
// A step that lands in a callee that does not match is undone with a step
// out, except for function literal targets, which are usually invoked by
// the function they are passed to and so are searched one frame deeper. A
// step that leaves the calling expression ends the search.
func (e *Engine) filteredStepIn(ctx context.Context, f *smartstep.MethodFilter) session.Event {
	e.mu.Lock()
	origin := e.current
	e.mu.Unlock()

	log := e.log.WithField("filter", f.String())
	command := "stepIn"
	var ev session.Event
	for i := 0; i < e.cfg.MaxFilterSteps; i++ {
		ev = e.step(ctx, command)
		if ev.Kind != session.Suspended {
			return ev
		}
		fr := ev.Frame
		log.Debugf("%s -> %s in %s (depth %d)", command, ev.Position, fr.Function, fr.Depth)
		switch {
		case fr.Depth > origin.Depth && f.Matches(fr.Function, fr.File, fr.Line):
			return ev
		case fr.Depth == origin.Depth+1 && f.Kind == smartstep.LambdaTarget:
			command = "stepIn"
		case fr.Depth > origin.Depth:
			command = "stepOut"
		case f.InCall(fr.File, fr.Line):
			command = "stepIn"
		default:
			log.Warnf("left the call without reaching the target, stopped at %s", ev.Position)
			return ev
		}
	}
	log.Warnf("target not reached after %d steps", e.cfg.MaxFilterSteps)
	return ev
}

// waitStop waits for the next stopped event and describes where the program
// stopped.
func (e *Engine) waitStop(ctx context.Context) session.Event {
	select {
	case se := <-e.stopped:
		return e.suspended(ctx, se)
	case <-e.terminated:
		return session.Event{Kind: session.Finished, Reason: "terminated"}
	case <-e.client.Done():
		return session.Event{Kind: session.Finished, Err: e.client.Err()}
	case <-ctx.Done():
		return session.Event{Kind: session.Finished, Err: fmt.Errorf("waiting for the program to stop: %w", ctx.Err())}
	}
}

func (e *Engine) suspended(ctx context.Context, se *dap.StoppedEvent) session.Event {
	e.mu.Lock()
	if se.Body.ThreadId != 0 {
		e.threadID = se.Body.ThreadId
	}
	thread := e.threadID
	e.mu.Unlock()

	frames, depth, err := e.client.StackTrace(ctx, thread)
	if err != nil {
		return session.Event{Kind: session.Finished, Err: fmt.Errorf("stack trace: %w", err)}
	}
	if len(frames) == 0 {
		return session.Event{Kind: session.Finished, Err: fmt.Errorf("stack trace of thread %d is empty", thread)}
	}
	top := frames[0]
	file := ""
	if top.Source != nil {
		file = e.cfg.SubstitutePath.Substitute(top.Source.Path)
	}
	fr := session.Frame{Function: top.Name, File: file, Line: top.Line - 1, Depth: depth}
	return session.Event{
		Kind:     session.Suspended,
		Position: smartstep.Position{File: file, Line: fr.Line},
		Frame:    fr,
		Reason:   se.Body.Reason,
	}
}

// Close disconnects from the adapter, which kills the program, and stops
// the adapter if it was started by Launch.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	err := e.client.Disconnect(ctx)
	if errors.Is(err, errConnectionClosed) {
		err = nil
	}
	e.cancel()
	e.client.Close()
	if e.proc != nil {
		if werr := waitOrKill(e.proc, disconnectTimeout); werr != nil {
			e.log.Debugf("adapter exit: %v", werr)
		}
	}
	return err
}
