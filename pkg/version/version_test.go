package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestVersionString(t *testing.T) {
	v := Version{Major: "1", Minor: "2", Patch: "3", Metadata: "dev", Build: "abc"}
	if got := v.String(); got != "Version: 1.2.3-dev\nBuild: abc" {
		t.Errorf("got %q", got)
	}
	if !strings.HasPrefix(StepTestVersion.String(), "Version: 0.3.0\nBuild: ") {
		t.Errorf("unexpected version %q", StepTestVersion.String())
	}
}

func TestBuildString(t *testing.T) {
	b := Build{
		GoVersion: "go1.21.0",
		Revision:  "deadbeef",
		Modified:  true,
		Deps: []*debug.Module{
			{Path: "github.com/google/go-dap", Version: "v0.9.1"},
			{Path: "gopkg.in/yaml.v2", Version: "v2.4.0", Replace: &debug.Module{Path: "../yaml", Version: "(devel)"}},
		},
	}
	want := "Go: go1.21.0\nRevision: deadbeef-dirty\n dep\tgithub.com/google/go-dap\tv0.9.1\n dep\t../yaml\t(devel)\n"
	if got := b.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got := (Build{}).revision(); got != "unknown" {
		t.Errorf("revision of an empty build %q", got)
	}
}

func TestParseDlvVersion(t *testing.T) {
	v, err := parseDlvVersion([]byte("Delve Debugger\nVersion: 1.21.0\nBuild: $Id: fec0d226b2c2cce1567d5f59169660cf61dc1efe $\n"))
	if err != nil {
		t.Fatal(err)
	}
	if v != "1.21.0" {
		t.Errorf("got %q", v)
	}
	if _, err := parseDlvVersion([]byte("command not found\n")); err == nil {
		t.Errorf("expected an error")
	}
}
