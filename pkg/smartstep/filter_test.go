package smartstep

import "testing"

func TestMatchFuncName(t *testing.T) {
	tests := []struct {
		name, fn string
		want     bool
	}{
		{"main.foo", "main.foo", true},
		{"main.(*T).Inc", "main.(*T).Inc", true},
		{"fmt.Println", "fmt.Println", true},
		{"Println", "fmt.Println", true},
		{"Write", "os.(*File).Write", true},
		{"json.Marshal", "encoding/json.Marshal", true},
		{"main.Map", "main.Map[...]", true},
		{"main.foo", "main.foobar", false},
		{"oo", "main.foo", false},
		{"Write", "bufio.(*Writer).WriteString", false},
	}
	for _, tc := range tests {
		if got := matchFuncName(tc.name, tc.fn); got != tc.want {
			t.Errorf("matchFuncName(%q, %q) = %v, want %v", tc.name, tc.fn, got, tc.want)
		}
	}
}

func TestFilterMatches(t *testing.T) {
	method := Target{
		Kind:      MethodTarget,
		Label:     "foo",
		FuncName:  "main.foo",
		File:      "/src/main.go",
		Lines:     LineRange{Start: 24, End: 26},
		CallFile:  "/src/main.go",
		CallLines: LineRange{Start: 36, End: 38},
	}.Filter()
	lambda := Target{
		Kind:      LambdaTarget,
		Label:     "func literal",
		File:      "/src/main.go",
		Lines:     LineRange{Start: 36, End: 38},
		CallFile:  "/src/main.go",
		CallLines: LineRange{Start: 36, End: 38},
	}.Filter()
	opaque := Target{Kind: OpaqueTarget, Label: "Println", FuncName: "fmt.Println"}.Filter()

	tests := []struct {
		filter MethodFilter
		fn     string
		file   string
		line   int
		want   bool
	}{
		{method, "main.foo", "/src/main.go", 25, true},
		{method, "main.foo", "/elsewhere/main.go", 3, true},
		{method, "main.bar", "/src/main.go", 25, true},
		{method, "main.bar", "/src/main.go", 30, false},
		{lambda, "main.main.func1", "/src/main.go", 37, true},
		{lambda, "main.main.func1", "/src/other.go", 37, false},
		{lambda, "main.foo", "/src/main.go", 25, false},
		{opaque, "fmt.Println", "/usr/lib/go/src/fmt/print.go", 313, true},
		{opaque, "fmt.Printf", "/usr/lib/go/src/fmt/print.go", 233, false},
	}
	for i, tc := range tests {
		if got := tc.filter.Matches(tc.fn, tc.file, tc.line); got != tc.want {
			t.Errorf("%d: %s Matches(%q, %q, %d) = %v", i, tc.filter, tc.fn, tc.file, tc.line, got)
		}
	}

	if !method.InCall("/src/main.go", 37) || method.InCall("/src/main.go", 39) || opaque.InCall("/src/main.go", 37) {
		t.Errorf("wrong InCall results")
	}
	if opaque.File != "" || lambda.FuncName != "" {
		t.Errorf("filter carries fields of the wrong kind: %#v %#v", opaque, lambda)
	}
}
