package smartstep

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func assertNoError(err error, t testing.TB, s string) {
	t.Helper()
	if err != nil {
		t.Fatalf("failed assertion %s: %v\n", s, err)
	}
}

// markerLine returns the 0-based line of path that ends with "// marker".
func markerLine(t *testing.T, path, marker string) Position {
	t.Helper()
	f, err := os.Open(path)
	assertNoError(err, t, "Open")
	defer f.Close()
	abs, err := filepath.Abs(path)
	assertNoError(err, t, "Abs")
	scan := bufio.NewScanner(f)
	for line := 0; scan.Scan(); line++ {
		if strings.HasSuffix(scan.Text(), "// "+marker) {
			return Position{File: abs, Line: line}
		}
	}
	t.Fatalf("marker %q not found in %s", marker, path)
	return Position{}
}

type wantTarget struct {
	kind     TargetKind
	funcName string
}

func checkTargets(t *testing.T, targets []Target, want []wantTarget) {
	t.Helper()
	if len(targets) != len(want) {
		t.Fatalf("got %d targets %v, want %d", len(targets), targets, len(want))
	}
	for i := range want {
		if targets[i].Kind != want[i].kind || targets[i].FuncName != want[i].funcName {
			t.Errorf("target %d: got %s %q, want %s %q", i, targets[i].Kind, targets[i].FuncName, want[i].kind, want[i].funcName)
		}
	}
}

func TestFindCallCandidates(t *testing.T) {
	const fixture = "testdata/calls/main.go"
	tests := []struct {
		marker string
		want   []wantTarget
	}{
		{"lambda-arg", []wantTarget{{MethodTarget, "main.foo"}, {LambdaTarget, ""}}},
		{"nested", []wantTarget{{MethodTarget, "main.a"}, {MethodTarget, "main.b"}, {MethodTarget, "main.c"}}},
		{"siblings", []wantTarget{{OpaqueTarget, "fmt.Println"}, {MethodTarget, "main.a"}, {MethodTarget, "main.b"}, {MethodTarget, "main.c"}}},
		{"chained", []wantTarget{{MethodTarget, "main.T.Value"}, {MethodTarget, "main.(*T).Inc"}}},
		{"conversion", []wantTarget{{OpaqueTarget, "strings.ToUpper"}}},
		{"builtins", nil},
		{"deferred", []wantTarget{{MethodTarget, "main.a"}}},
		{"immediate", []wantTarget{{LambdaTarget, ""}}},
		{"interface", []wantTarget{{OpaqueTarget, "Write"}}},
		{"multiline", []wantTarget{{OpaqueTarget, "fmt.Println"}, {MethodTarget, "main.b"}}},
		{"imported-conversion", []wantTarget{{OpaqueTarget, "fmt.Println"}, {MethodTarget, "main.a"}}},
	}

	ix := NewIndex()
	for _, tc := range tests {
		t.Run(tc.marker, func(t *testing.T) {
			pos := markerLine(t, fixture, tc.marker)
			targets, err := ix.FindCallCandidates(pos)
			assertNoError(err, t, "FindCallCandidates")
			checkTargets(t, targets, tc.want)
		})
	}
}

func TestLambdaArgumentLines(t *testing.T) {
	pos := markerLine(t, "testdata/calls/main.go", "lambda-arg")
	targets, err := NewIndex().FindCallCandidates(pos)
	assertNoError(err, t, "FindCallCandidates")
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets, got %v", targets)
	}

	lambda := targets[1]
	if lambda.Lambda == nil {
		t.Fatal("lambda target without function literal")
	}
	want := LineRange{Start: pos.Line, End: pos.Line + 2}
	if lambda.Lines != want {
		t.Errorf("lambda lines: got %s want %s", lambda.Lines, want)
	}
	for i, tgt := range targets {
		if tgt.CallLines != want {
			t.Errorf("target %d call lines: got %s want %s", i, tgt.CallLines, want)
		}
		if tgt.CallFile != pos.File {
			t.Errorf("target %d call file: got %s want %s", i, tgt.CallFile, pos.File)
		}
	}

	foo := targets[0]
	if foo.Callee == nil || foo.Callee.Name() != "foo" {
		t.Errorf("wrong callee %v", foo.Callee)
	}
	if !foo.Lines.Contains(foo.Lines.Start) || foo.File != pos.File {
		t.Errorf("wrong location for foo: %s:%s", foo.File, foo.Lines)
	}
}

func TestSiblingFileDeclaration(t *testing.T) {
	pos := Position{File: markerLine(t, "testdata/calls/main.go", "immediate").File}
	pos.Line = markerLine(t, "testdata/calls/main.go", "immediate").Line + 1
	targets, err := NewIndex().FindCallCandidates(pos)
	assertNoError(err, t, "FindCallCandidates")
	checkTargets(t, targets, []wantTarget{{MethodTarget, "main.helper"}})
	if filepath.Base(targets[0].File) != "helper.go" {
		t.Errorf("helper located in %s", targets[0].File)
	}
}

func TestLinesWithoutCalls(t *testing.T) {
	ix := NewIndex()
	pos := markerLine(t, "testdata/calls/main.go", "multiline")
	for _, line := range []int{pos.Line - 2, pos.Line - 3, 0} {
		targets, err := ix.FindCallCandidates(Position{File: pos.File, Line: line})
		assertNoError(err, t, "FindCallCandidates")
		if len(targets) != 0 {
			t.Errorf("line %d: unexpected targets %v", line+1, targets)
		}
	}
}

func TestNoPositionResolved(t *testing.T) {
	ix := NewIndex()
	for _, pos := range []Position{
		{File: "testdata/calls/main.go", Line: 10000},
		{File: "testdata/calls/main.go", Line: -1},
		{File: "testdata/calls/missing.go", Line: 1},
		{File: "testdata/calls", Line: 1},
	} {
		_, err := ix.FindCallCandidates(pos)
		if !errors.Is(err, ErrNoPositionResolved) {
			t.Errorf("%s: expected ErrNoPositionResolved, got %v", pos, err)
		}
		var npe *NoPositionError
		if !errors.As(err, &npe) || npe.Pos != pos {
			t.Errorf("%s: wrong error %#v", pos, err)
		}
	}
}

func TestIndexReloadsChangedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	write := func(body string) {
		t.Helper()
		src := "package main\n\nfunc one() {}\n\nfunc two() {}\n\nfunc main() {\n\t" + body + "\n}\n"
		assertNoError(os.WriteFile(path, []byte(src), 0o644), t, "WriteFile")
	}
	pos := Position{File: path, Line: 7}

	ix := NewIndex()
	write("one()")
	targets, err := ix.FindCallCandidates(pos)
	assertNoError(err, t, "FindCallCandidates")
	checkTargets(t, targets, []wantTarget{{MethodTarget, "main.one"}})

	write("one(); two()")
	targets, err = ix.FindCallCandidates(pos)
	assertNoError(err, t, "FindCallCandidates")
	checkTargets(t, targets, []wantTarget{{MethodTarget, "main.one"}, {MethodTarget, "main.two"}})

	ix.Invalidate(path)
	targets, err = ix.FindCallCandidates(pos)
	assertNoError(err, t, "FindCallCandidates")
	checkTargets(t, targets, []wantTarget{{MethodTarget, "main.one"}, {MethodTarget, "main.two"}})
}

func TestIndexSeparatesScripts(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.go")
	second := filepath.Join(dir, "second.go")
	assertNoError(os.WriteFile(first, []byte("package main\n\nfunc f() {}\n\nfunc main() {\n\tf()\n}\n"), 0o644), t, "WriteFile")
	assertNoError(os.WriteFile(second, []byte("package main\n\nfunc g() {}\n\nfunc main() {\n\tg()\n}\n"), 0o644), t, "WriteFile")

	ix := NewIndex(WithCacheSize(1))
	for _, tc := range []struct {
		path, fn string
	}{{first, "main.f"}, {second, "main.g"}, {first, "main.f"}} {
		targets, err := ix.FindCallCandidates(Position{File: tc.path, Line: 5})
		assertNoError(err, t, "FindCallCandidates")
		checkTargets(t, targets, []wantTarget{{MethodTarget, tc.fn}})
	}
}

type fakeSource []Target

func (s fakeSource) FindCallCandidates(Position) ([]Target, error) {
	return s, nil
}

func TestResolveKeepsSourceOrder(t *testing.T) {
	src := fakeSource{
		{Kind: MethodTarget, Label: "A", FuncName: "main.A"},
		{Kind: MethodTarget, Label: "B", FuncName: "main.B"},
		{Kind: OpaqueTarget, Label: "C", FuncName: "fmt.C"},
	}
	r := NewResolver(src)
	for i := 0; i < 3; i++ {
		filters, err := r.Resolve(Position{})
		assertNoError(err, t, "Resolve")
		var labels []string
		for _, f := range filters {
			labels = append(labels, f.Label)
		}
		if got := strings.Join(labels, ","); got != "A,B,C" {
			t.Fatalf("got %s", got)
		}
		if filters[1].FuncName != "main.B" {
			t.Fatalf("index 1 selected %v", filters[1])
		}
	}
}

func TestResolveFixture(t *testing.T) {
	pos := markerLine(t, "testdata/calls/main.go", "lambda-arg")
	filters, err := NewResolver(NewIndex()).Resolve(pos)
	assertNoError(err, t, "Resolve")
	if len(filters) != 2 {
		t.Fatalf("got %v", filters)
	}
	if filters[0].Kind != MethodTarget || filters[0].FuncName != "main.foo" {
		t.Errorf("wrong first filter %v", filters[0])
	}
	lambda := filters[1]
	if lambda.Kind != LambdaTarget || lambda.FuncName != "" || lambda.File != pos.File {
		t.Errorf("wrong lambda filter %v", lambda)
	}
	if !lambda.Matches("main.main.func1", pos.File, pos.Line+1) {
		t.Errorf("lambda filter does not match its body")
	}
	if lambda.Matches("main.foo", pos.File, pos.Line-12) {
		t.Errorf("lambda filter matches foo")
	}
}
