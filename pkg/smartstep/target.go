// Package smartstep finds the calls a "smart step into" can land in.
//
// Given a suspended position the package enumerates every call-like
// expression on that line (function and method calls, function literals
// passed as arguments, immediately invoked function literals) and turns each
// of them into a MethodFilter that a debug engine can use to decide when a
// step into has reached the selected call.
package smartstep

import (
	"errors"
	"fmt"
	"go/ast"
	"go/types"
)

// Position is a location in a source file. Line is 0-based.
type Position struct {
	File string
	Line int
}

func (p Position) String() string {
	return fmt.Sprintf("%s:%d", p.File, p.Line+1)
}

// LineRange is an inclusive range of 0-based lines.
type LineRange struct {
	Start, End int
}

// Contains returns true if line is inside the range.
func (r LineRange) Contains(line int) bool {
	return line >= r.Start && line <= r.End
}

func (r LineRange) String() string {
	if r.Start == r.End {
		return fmt.Sprintf("%d", r.Start+1)
	}
	return fmt.Sprintf("%d-%d", r.Start+1, r.End+1)
}

// TargetKind discriminates the variants of Target.
type TargetKind uint8

const (
	// LambdaTarget is a function literal, either passed as an argument or
	// called immediately.
	LambdaTarget TargetKind = iota
	// MethodTarget is a call to a function or method declared, with a body,
	// in the package being debugged.
	MethodTarget
	// OpaqueTarget is a call whose callee can not be mapped to source:
	// imported functions, body-less declarations, function values and
	// interface methods.
	OpaqueTarget
)

func (k TargetKind) String() string {
	switch k {
	case LambdaTarget:
		return "lambda"
	case MethodTarget:
		return "method"
	case OpaqueTarget:
		return "opaque"
	}
	return fmt.Sprintf("TargetKind(%d)", uint8(k))
}

// Target is one candidate for a smart step into.
type Target struct {
	Kind TargetKind
	// Label is a human readable description of the callee.
	Label string

	// Lambda is the function literal of a LambdaTarget.
	Lambda *ast.FuncLit
	// Callee is the resolved function of a MethodTarget. It is also set for
	// an OpaqueTarget whose callee was resolved but has no body.
	Callee *types.Func
	// FuncName is the name the debugger reports for the callee's frames,
	// for example "main.(*T).M". For an OpaqueTarget it may be a bare
	// (possibly qualified) suffix, like "fmt.Println" or "Write".
	FuncName string

	// File and Lines locate the body of the callee, when known.
	File  string
	Lines LineRange

	// CallLines are the lines of the whole call expression containing the
	// candidate.
	CallFile  string
	CallLines LineRange
}

func (t Target) String() string {
	return fmt.Sprintf("%s %s (call at lines %s)", t.Kind, t.Label, t.CallLines)
}

// Filter builds the engine-consumable filter for t.
func (t Target) Filter() MethodFilter {
	f := MethodFilter{
		Kind:      t.Kind,
		Label:     t.Label,
		CallFile:  t.CallFile,
		CallLines: t.CallLines,
	}
	switch t.Kind {
	case LambdaTarget:
		f.File, f.Lines = t.File, t.Lines
	case MethodTarget:
		f.FuncName = t.FuncName
		f.File, f.Lines = t.File, t.Lines
	case OpaqueTarget:
		f.FuncName = t.FuncName
	}
	return f
}

// ErrNoPositionResolved is returned when a position can not be mapped to
// source structure, for example because the file changed after the
// breakpoint was set.
var ErrNoPositionResolved = errors.New("could not resolve position")

// NoPositionError describes a position that could not be resolved.
type NoPositionError struct {
	Pos Position
	Err error
}

func (e *NoPositionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v at %s: %v", ErrNoPositionResolved, e.Pos, e.Err)
	}
	return fmt.Sprintf("%v at %s", ErrNoPositionResolved, e.Pos)
}

func (e *NoPositionError) Unwrap() error {
	return ErrNoPositionResolved
}
