package driver

import (
	"errors"
	"fmt"

	"github.com/go-delve/steptest/pkg/script"
)

var (
	// ErrIndexOutOfRange is returned when a SMART_STEP_INTO_BY_INDEX
	// directive selects a candidate that does not exist.
	ErrIndexOutOfRange = errors.New("smart step into index out of range")
	// ErrSessionFinished is returned when the session ends while directives
	// remain.
	ErrSessionFinished = errors.New("debug session finished")
)

// IndexOutOfRangeError reports the requested index and the number of
// candidates available.
type IndexOutOfRangeError struct {
	Index int
	Count int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("%v: index %d, %d candidates", ErrIndexOutOfRange, e.Index, e.Count)
}

func (e *IndexOutOfRangeError) Unwrap() error {
	return ErrIndexOutOfRange
}

// DirectiveError is returned by Run when a directive fails.
type DirectiveError struct {
	Directive script.Directive
	Err       error
}

func (e *DirectiveError) Error() string {
	return fmt.Sprintf("line %d: %s: %v", e.Directive.Line, e.Directive, e.Err)
}

func (e *DirectiveError) Unwrap() error {
	return e.Err
}
