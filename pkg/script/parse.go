// Package script parses step test scripts.
//
// A script is a Go program annotated with comments. Directive comments tell
// the driver which step commands to run once the program stops at its
// breakpoint:
//
//	// STEP_INTO: 2
//	// SMART_STEP_INTO_BY_INDEX: 1
//	// RESUME: 1
//
// Breakpoints are requested by a "//Breakpoint!" comment on the line before
// the breakpoint line, and any other upper case "// KEY: value" comment is a
// setting for the harness.
package script

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const breakpointMarker = "Breakpoint!"

// MaxRepeatCount is the largest repeat count accepted in an annotation.
const MaxRepeatCount = 10000

// Script is a parsed step test script.
type Script struct {
	Filename string
	// Directives in execution order, with repeat counts expanded.
	Directives []Directive
	// Breakpoints lists the 1-based lines that carry a breakpoint.
	Breakpoints []int
	// Settings maps every non-directive annotation keyword to the value of
	// its first occurrence.
	Settings map[string]string
}

type annotation struct {
	kind  Kind
	value string
	line  int
}

// Load reads and parses the script at filename.
func Load(filename string) (*Script, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseScript(f, filename)
}

// ParseString parses the directives contained in text.
func ParseString(text, filename string) ([]Directive, error) {
	return Parse(strings.NewReader(text), filename)
}

// Parse returns the directives of the script read from r, in the order their
// annotations appear. Every annotation of a repeating kind is expanded into
// as many directives as the count of the first annotation of that kind.
func Parse(r io.Reader, filename string) ([]Directive, error) {
	s, err := ParseScript(r, filename)
	if err != nil {
		return nil, err
	}
	return s.Directives, nil
}

// ParseScript parses directives, breakpoints and settings of the script read
// from r.
func ParseScript(r io.Reader, filename string) (*Script, error) {
	return parseScript(r, filename, nil)
}

// parseScript parses the script read from r. When only is set, annotations
// of other kinds are skipped without being checked.
func parseScript(r io.Reader, filename string, only *Kind) (*Script, error) {
	s := &Script{Filename: filename, Settings: map[string]string{}}
	var annotations []annotation
	var lineno int
	breakpointNext := false
	scan := bufio.NewScanner(r)
	for scan.Scan() {
		lineno++
		line := strings.TrimSpace(scan.Text())

		if breakpointNext && line != "" {
			s.Breakpoints = append(s.Breakpoints, lineno)
			breakpointNext = false
		}

		body, ok := commentBody(line)
		if !ok {
			continue
		}
		if body == breakpointMarker {
			breakpointNext = true
			continue
		}
		keyword, value, ok := splitAnnotation(body)
		if !ok {
			continue
		}
		kind, ok := lookupKind(keyword)
		if !ok {
			if _, dup := s.Settings[keyword]; !dup {
				s.Settings[keyword] = value
			}
			continue
		}
		if only != nil && kind != *only {
			continue
		}
		if err := checkValue(kind, value); err != nil {
			return nil, &MalformedScriptError{Filename: filename, Line: lineno, Keyword: keyword, Value: value, Reason: err.Error()}
		}
		annotations = append(annotations, annotation{kind: kind, value: value, line: lineno})
	}
	if err := scan.Err(); err != nil {
		return nil, err
	}

	s.Directives = expand(annotations)
	return s, nil
}

func expand(annotations []annotation) []Directive {
	counts := map[Kind]int{}
	for _, a := range annotations {
		if _, seen := counts[a.kind]; !seen && a.kind.Repeating() {
			counts[a.kind] = countOf(a.value)
		}
	}

	var r []Directive
	for _, a := range annotations {
		if !a.kind.Repeating() {
			idx, _ := strconv.Atoi(a.value)
			r = append(r, Directive{Kind: a.kind, RepeatCount: 1, Index: idx, Line: a.line})
			continue
		}
		n := counts[a.kind]
		for i := 0; i < n; i++ {
			r = append(r, Directive{Kind: a.kind, RepeatCount: n, Line: a.line})
		}
	}
	return r
}

// ParseSingleKind returns the directives for a script that exercises a
// single kind of step: the kind is repeated as many times as the count of its
// first annotation, 1 if the script has none. Every other annotation is
// ignored, malformed ones included.
func ParseSingleKind(r io.Reader, filename string, kind Kind) ([]Directive, error) {
	s, err := ParseSingleKindScript(r, filename, kind)
	if err != nil {
		return nil, err
	}
	return s.Directives, nil
}

// ParseSingleKindScript is like ParseScript for a script exercising a single
// kind of step, see ParseSingleKind.
func ParseSingleKindScript(r io.Reader, filename string, kind Kind) (*Script, error) {
	if !kind.Repeating() {
		return nil, fmt.Errorf("%s can not be used as a single kind script", kind)
	}
	s, err := parseScript(r, filename, &kind)
	if err != nil {
		return nil, err
	}
	n, line := 1, 0
	for _, d := range s.Directives {
		if d.Kind == kind {
			n, line = d.RepeatCount, d.Line
			break
		}
	}
	ds := make([]Directive, n)
	for i := range ds {
		ds[i] = Directive{Kind: kind, RepeatCount: n, Line: line}
	}
	s.Directives = ds
	return s, nil
}

func commentBody(line string) (string, bool) {
	if !strings.HasPrefix(line, "//") {
		return "", false
	}
	return strings.TrimSpace(line[2:]), true
}

// splitAnnotation splits "KEYWORD: value".
func splitAnnotation(body string) (keyword, value string, ok bool) {
	i := strings.IndexByte(body, ':')
	if i < 0 {
		return "", "", false
	}
	keyword = body[:i]
	if !looksLikeKeyword(keyword) {
		return "", "", false
	}
	return keyword, strings.TrimSpace(body[i+1:]), true
}

func checkValue(kind Kind, value string) error {
	if value == "" {
		if kind.Repeating() {
			return nil
		}
		return fmt.Errorf("missing candidate index")
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return fmt.Errorf("not a non-negative integer")
	}
	if kind.Repeating() {
		switch {
		case n == 0:
			return fmt.Errorf("repeat count must be positive")
		case n > MaxRepeatCount:
			return fmt.Errorf("repeat count exceeds %d", MaxRepeatCount)
		}
	}
	return nil
}

func countOf(value string) int {
	if value == "" {
		return 1
	}
	n, _ := strconv.Atoi(value)
	return n
}
