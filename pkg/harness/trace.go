package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-delve/steptest/pkg/session"
)

var (
	// ErrTraceMismatch is returned when the recorded suspensions differ from
	// the expected trace.
	ErrTraceMismatch = errors.New("trace mismatch")
	// ErrNoExpectedTrace is returned when a script has no golden file.
	ErrNoExpectedTrace = errors.New("no expected trace")
)

// TraceMismatchError describes the first difference between the recorded
// trace and the expected one.
type TraceMismatchError struct {
	Golden string
	// Line is the 1-based line of the first difference.
	Line      int
	Want, Got string
}

func (e *TraceMismatchError) Error() string {
	return fmt.Sprintf("%s:%d: expected %q, got %q", e.Golden, e.Line, e.Want, e.Got)
}

func (e *TraceMismatchError) Unwrap() error {
	return ErrTraceMismatch
}

// traceLine formats a suspension for the trace. Files are reported relative
// to dir when they are inside it so that traces do not depend on where the
// scripts are checked out.
func traceLine(ev session.Event, dir string) string {
	file := ev.Position.File
	if rel, err := filepath.Rel(dir, file); err == nil && !strings.HasPrefix(rel, "..") {
		file = filepath.ToSlash(rel)
	} else {
		file = filepath.Base(file)
	}
	if ev.Frame.Function == "" {
		return fmt.Sprintf("%s:%d", file, ev.Position.Line+1)
	}
	return fmt.Sprintf("%s:%d %s", file, ev.Position.Line+1, ev.Frame.Function)
}

// goldenPath returns the path of the expected trace of the script at path.
func goldenPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".out"
}

func formatTrace(trace []string) []byte {
	var buf bytes.Buffer
	for _, l := range trace {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// checkTrace compares trace with the golden file. With update set the golden
// file is written instead.
func checkTrace(golden string, trace []string, update bool) error {
	if update {
		return os.WriteFile(golden, formatTrace(trace), 0o644)
	}
	buf, err := os.ReadFile(golden)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w, record it with --update", golden, ErrNoExpectedTrace)
		}
		return err
	}
	want := strings.Split(strings.TrimRight(strings.ReplaceAll(string(buf), "\r\n", "\n"), "\n"), "\n")
	if len(want) == 1 && want[0] == "" {
		want = nil
	}
	for i := 0; i < len(want) || i < len(trace); i++ {
		var w, g string
		if i < len(want) {
			w = strings.TrimSpace(want[i])
		}
		if i < len(trace) {
			g = trace[i]
		}
		if w != g {
			return &TraceMismatchError{Golden: golden, Line: i + 1, Want: w, Got: g}
		}
	}
	return nil
}
