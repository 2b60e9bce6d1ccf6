// Package session defines the contract between the step driver and a debug
// engine.
//
// An Engine runs the program being debugged. Step and resume commands are
// asynchronous: each returns as soon as the command has been handed to the
// debugger and eventually produces exactly one Event on the channel returned
// by Events, either a suspension or the end of the session.
package session

import (
	"fmt"

	"github.com/go-delve/steptest/pkg/smartstep"
)

// Engine is a debug session driven one command at a time.
type Engine interface {
	// StepInto steps into the next call. With a nil filter the debugger's
	// plain step into is used, otherwise stepping continues until the
	// program stops inside the call selected by the filter.
	StepInto(filter *smartstep.MethodFilter) error
	// StepOut runs until the current function returns.
	StepOut() error
	// Resume continues execution until the next breakpoint or the end of the
	// program.
	Resume() error
	// Events delivers one Event per command, plus the initial breakpoint
	// hit. The channel is closed once the session ends.
	Events() <-chan Event
	// BreakpointPosition returns the position of the first line breakpoint
	// installed in the session.
	BreakpointPosition() (smartstep.Position, error)
}

// EventKind is the kind of an Event.
type EventKind uint8

const (
	// Suspended means the program stopped and accepts a new command.
	Suspended EventKind = iota
	// Finished means the program terminated or the connection to the
	// debugger was lost.
	Finished
)

func (k EventKind) String() string {
	switch k {
	case Suspended:
		return "suspended"
	case Finished:
		return "finished"
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

// Frame describes the top frame of a suspended program.
type Frame struct {
	Function string
	File     string
	// Line is 0-based, like smartstep.Position.Line.
	Line int
	// Depth is the number of frames on the stack.
	Depth int
}

// Event is a state change of the debugged program.
type Event struct {
	Kind EventKind
	// Position and Frame describe where the program stopped. They are only
	// set for Suspended events.
	Position smartstep.Position
	Frame    Frame
	// Reason is the debugger's stop reason ("breakpoint", "step", ...) or
	// exit description.
	Reason string
	// Err is set on a Finished event caused by a failure rather than by the
	// program exiting.
	Err error
}

func (ev Event) String() string {
	switch ev.Kind {
	case Suspended:
		if ev.Frame.Function != "" {
			return fmt.Sprintf("suspended (%s) in %s at %s", ev.Reason, ev.Frame.Function, ev.Position)
		}
		return fmt.Sprintf("suspended (%s) at %s", ev.Reason, ev.Position)
	default:
		if ev.Err != nil {
			return fmt.Sprintf("finished: %v", ev.Err)
		}
		return "finished"
	}
}
