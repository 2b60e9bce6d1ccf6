package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigFrom(t *testing.T) {
	c, err := LoadConfigFrom(filepath.Join("testdata", "config.yml"))
	if err != nil {
		t.Fatal(err)
	}
	if c.DlvPath != "/opt/go/bin/dlv" {
		t.Errorf("DlvPath = %q", c.DlvPath)
	}
	if c.BuildFlags != "-tags='integration slow'" {
		t.Errorf("BuildFlags = %q", c.BuildFlags)
	}
	if c.StepTimeout != 5*time.Second {
		t.Errorf("StepTimeout = %v", c.StepTimeout)
	}
	if c.FinishTimeout != DefaultFinishTimeout {
		t.Errorf("FinishTimeout = %v, want default", c.FinishTimeout)
	}
	if c.MaxFilterSteps != DefaultMaxFilterSteps {
		t.Errorf("MaxFilterSteps = %d, want default", c.MaxFilterSteps)
	}
	if len(c.SubstitutePath) != 1 || c.SubstitutePath[0].From != "/build/src" {
		t.Errorf("SubstitutePath = %#v", c.SubstitutePath)
	}
}

func TestLoadConfigCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	c := LoadConfig()
	if c.DlvPath != DefaultDlvPath || c.StepTimeout != DefaultStepTimeout {
		t.Fatalf("unexpected defaults: %#v", c)
	}
	if _, err := os.Stat(filepath.Join(dir, "steptest", configFile)); err != nil {
		t.Fatalf("default config file not written: %v", err)
	}
	// The default file must itself be loadable.
	if _, err := LoadConfigFrom(filepath.Join(dir, "steptest", configFile)); err != nil {
		t.Fatal(err)
	}
}

func TestSubstitutePath(t *testing.T) {
	rules := SubstitutePathRules{{From: "/build/src", To: "/home/user/src"}}
	tests := []struct {
		in, out string
	}{
		{"/build/src/main.go", "/home/user/src/main.go"},
		{"/build/src", "/home/user/src"},
		{"/build/srcx/main.go", "/build/srcx/main.go"},
		{"/other/main.go", "/other/main.go"},
	}
	for _, tc := range tests {
		if got := rules.Substitute(tc.in); got != tc.out {
			t.Errorf("Substitute(%q) = %q, want %q", tc.in, got, tc.out)
		}
	}
}
