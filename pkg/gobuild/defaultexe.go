package gobuild

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-delve/steptest/pkg/logflags"
)

// DefaultDebugBinaryPath returns an unused file path in dir named after the
// script at 'script' followed by a random string.
func DefaultDebugBinaryPath(dir, script string) string {
	pattern := "__debug_" + strings.TrimSuffix(filepath.Base(script), ".go") + "_"
	if runtime.GOOS == "windows" {
		pattern += "*.exe"
	}

	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		logflags.HarnessLogger().Errorf("could not create temporary file for build output: %v", err)
		name := filepath.Join(dir, strings.TrimSuffix(pattern, "_"))
		if runtime.GOOS == "windows" {
			return strings.TrimSuffix(name, "_*.exe") + ".exe"
		}
		return name
	}
	r := f.Name()
	f.Close()
	return r
}
