package smartstep

import (
	"fmt"
	"path/filepath"
	"strings"
)

// MethodFilter identifies the call a step into should land inside.
type MethodFilter struct {
	Kind  TargetKind
	Label string

	// FuncName, when set, matches frames by function name.
	FuncName string
	// File and Lines, when set, match frames by location. A function literal
	// is always matched by location since its runtime name depends on the
	// compiler.
	File  string
	Lines LineRange

	// CallFile and CallLines delimit the calling expression. Stopping inside
	// them means the step has not left the call site yet.
	CallFile  string
	CallLines LineRange
}

func (f MethodFilter) String() string {
	switch {
	case f.File != "":
		return fmt.Sprintf("%s %s at %s:%s", f.Kind, f.Label, filepath.Base(f.File), f.Lines)
	default:
		return fmt.Sprintf("%s %s (%s)", f.Kind, f.Label, f.FuncName)
	}
}

// Matches returns true if a frame of function fn stopped at file:line
// (0-based) is inside the filter's target.
func (f *MethodFilter) Matches(fn, file string, line int) bool {
	if f.File != "" && sameFile(f.File, file) && f.Lines.Contains(line) {
		return true
	}
	if f.Kind == LambdaTarget || f.FuncName == "" {
		return false
	}
	return matchFuncName(f.FuncName, fn)
}

// InCall returns true if file:line (0-based) is inside the calling
// expression.
func (f *MethodFilter) InCall(file string, line int) bool {
	return sameFile(f.CallFile, file) && f.CallLines.Contains(line)
}

// matchFuncName returns true if fn, a fully qualified function name as
// reported by the debugger ("example.com/pkg.(*T).M"), is named by name,
// which may lack the package path or the receiver.
func matchFuncName(name, fn string) bool {
	if fn == name {
		return true
	}
	// Generic instances are reported as "pkg.F[...]".
	if i := strings.IndexByte(fn, '['); i > 0 && strings.HasSuffix(fn, "]") {
		fn = fn[:i]
		if fn == name {
			return true
		}
	}
	return strings.HasSuffix(fn, "."+name) || strings.HasSuffix(fn, "/"+name)
}

func sameFile(a, b string) bool {
	if a == b {
		return true
	}
	return filepath.Clean(filepath.FromSlash(a)) == filepath.Clean(filepath.FromSlash(b))
}
