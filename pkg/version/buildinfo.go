package version

import (
	"bytes"
	"fmt"
	"runtime"
	"runtime/debug"
)

// Build is the metadata the go command embeds in the steptest executable.
type Build struct {
	GoVersion string
	Revision  string
	Modified  bool
	Deps      []*debug.Module
}

func readBuild() Build {
	b := Build{GoVersion: runtime.Version()}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			b.Revision = s.Value
		case "vcs.modified":
			b.Modified = s.Value == "true"
		}
	}
	b.Deps = info.Deps
	return b
}

func (b Build) revision() string {
	switch {
	case b.Revision == "":
		return "unknown"
	case b.Modified:
		return b.Revision + "-dirty"
	}
	return b.Revision
}

func (b Build) String() string {
	buf := new(bytes.Buffer)
	fmt.Fprintf(buf, "Go: %s\nRevision: %s\n", b.GoVersion, b.revision())
	for _, dep := range b.Deps {
		if dep.Replace != nil {
			dep = dep.Replace
		}
		fmt.Fprintf(buf, " dep\t%s\t%s\n", dep.Path, dep.Version)
	}
	return buf.String()
}

// BuildInfo returns the Go version, revision and modules steptest was built
// with.
func BuildInfo() string {
	return readBuild().String()
}
