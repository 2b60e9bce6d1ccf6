// Package terminal prints the outcome of step test scripts.
package terminal

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/go-delve/steptest/pkg/harness"
)

const (
	terminalHighlightEscapeCode string = "\033[%2dm"
	terminalResetEscapeCode     string = "\033[0m"
)

const (
	ansiRed    = 31
	ansiGreen  = 32
	ansiYellow = 33
)

// Reporter writes one PASS, FAIL or ERROR line per script and a summary.
type Reporter struct {
	w       io.Writer
	color   bool
	verbose bool

	passed, failed, errored int
}

// NewReporter returns a Reporter writing to f. Output is colored when f is
// a terminal.
func NewReporter(f *os.File, verbose bool) *Reporter {
	color := isatty.IsTerminal(f.Fd()) && strings.ToLower(os.Getenv("TERM")) != "dumb"
	if !color {
		return &Reporter{w: f, verbose: verbose}
	}
	return &Reporter{w: colorableWriter(f), color: true, verbose: verbose}
}

// NewPlainReporter returns a Reporter writing to w without colors.
func NewPlainReporter(w io.Writer, verbose bool) *Reporter {
	return &Reporter{w: w, verbose: verbose}
}

func (r *Reporter) highlight(code int, s string) string {
	if !r.color {
		return s
	}
	return fmt.Sprintf(terminalHighlightEscapeCode, code) + s + terminalResetEscapeCode
}

// Report prints the outcome of running the script at path. Either res or
// err is set, as returned by harness.Run.
func (r *Reporter) Report(path string, res *harness.Result, err error) {
	switch {
	case err != nil:
		r.errored++
		fmt.Fprintf(r.w, "%s %s\n\t%v\n", r.highlight(ansiYellow, "ERROR"), path, err)
		return
	case res.Passed():
		r.passed++
		fmt.Fprintf(r.w, "%s %s\n", r.highlight(ansiGreen, "PASS "), path)
	default:
		r.failed++
		fmt.Fprintf(r.w, "%s %s\n\t%v\n", r.highlight(ansiRed, "FAIL "), path, res.Failure)
	}
	if r.verbose || !res.Passed() {
		for _, l := range res.Trace {
			fmt.Fprintf(r.w, "\t| %s\n", l)
		}
	}
}

// Summary prints the totals and returns true if every script passed.
func (r *Reporter) Summary() bool {
	ok := r.failed == 0 && r.errored == 0
	status := r.highlight(ansiGreen, "ok")
	if !ok {
		status = r.highlight(ansiRed, "FAIL")
	}
	fmt.Fprintf(r.w, "%s\t%d passed, %d failed, %d errors\n", status, r.passed, r.failed, r.errored)
	return ok
}
