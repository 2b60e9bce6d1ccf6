package session

import (
	"fmt"

	"github.com/go-delve/steptest/pkg/smartstep"
)

type stateKind uint8

const (
	running stateKind = iota
	suspended
	finished
)

// State is the driver's view of the debugged program: running, suspended at
// a position, or finished. The zero State is running.
type State struct {
	kind stateKind
	at   smartstep.Position
	err  error
}

// Running returns the state of a program executing a command.
func Running() State {
	return State{}
}

// SuspendedAt returns the state of a program stopped at pos.
func SuspendedAt(pos smartstep.Position) State {
	return State{kind: suspended, at: pos}
}

// IsRunning returns true if the program is executing.
func (s State) IsRunning() bool {
	return s.kind == running
}

// Suspended returns the position the program is stopped at, if it is
// stopped.
func (s State) Suspended() (smartstep.Position, bool) {
	return s.at, s.kind == suspended
}

// Finished returns true if the session ended. Err reports why it ended
// abnormally.
func (s State) Finished() bool {
	return s.kind == finished
}

// Err returns the failure that ended the session, if any.
func (s State) Err() error {
	return s.err
}

// Apply returns the state reached after ev. Events never move a finished
// session.
func (s State) Apply(ev Event) State {
	if s.kind == finished {
		return s
	}
	switch ev.Kind {
	case Suspended:
		return SuspendedAt(ev.Position)
	default:
		return State{kind: finished, err: ev.Err}
	}
}

func (s State) String() string {
	switch s.kind {
	case running:
		return "running"
	case suspended:
		return fmt.Sprintf("suspended at %s", s.at)
	default:
		if s.err != nil {
			return fmt.Sprintf("finished (%v)", s.err)
		}
		return "finished"
	}
}
