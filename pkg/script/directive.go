package script

import (
	"errors"
	"fmt"
)

// Kind is the action a directive asks the driver to perform.
type Kind uint8

const (
	StepInto Kind = iota
	StepOut
	SmartStepInto
	SmartStepIntoByIndex
	Resume
)

var kindNames = [...]string{
	StepInto:             "STEP_INTO",
	StepOut:              "STEP_OUT",
	SmartStepInto:        "SMART_STEP_INTO",
	SmartStepIntoByIndex: "SMART_STEP_INTO_BY_INDEX",
	Resume:               "RESUME",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Repeating returns true for kinds whose annotation carries a repeat count.
func (k Kind) Repeating() bool {
	return k != SmartStepIntoByIndex
}

// Directive is one instruction for the session driver.
type Directive struct {
	Kind Kind
	// RepeatCount is the count declared for Kind, always >= 1. The parser
	// has already expanded it: a directive in a parsed sequence is executed
	// exactly once.
	RepeatCount int
	// Index selects a zero-based smart step-into candidate. Only meaningful
	// when Kind is SmartStepIntoByIndex.
	Index int
	// Line is the 1-based script line of the annotation this directive was
	// produced from.
	Line int
}

func (d Directive) String() string {
	if d.Kind == SmartStepIntoByIndex {
		return fmt.Sprintf("%s: %d", d.Kind, d.Index)
	}
	return d.Kind.String()
}

// ErrMalformedScript is returned when an annotation has a value that is not
// a valid count or index.
var ErrMalformedScript = errors.New("malformed script")

// MalformedScriptError describes the offending annotation.
type MalformedScriptError struct {
	Filename string
	Line     int
	Keyword  string
	Value    string
	Reason   string
}

func (e *MalformedScriptError) Error() string {
	return fmt.Sprintf("%s:%d: malformed %s annotation %q: %s", e.Filename, e.Line, e.Keyword, e.Value, e.Reason)
}

func (e *MalformedScriptError) Unwrap() error {
	return ErrMalformedScript
}
