// Package version reports the version of steptest and of the debugger it
// drives.
package version

import "fmt"

// Version represents the current version of steptest.
type Version struct {
	Major    string
	Minor    string
	Patch    string
	Metadata string
	// Build is the VCS revision. When empty it is read from the build
	// information embedded by the go command.
	Build string
}

// StepTestVersion is the current version of steptest.
var StepTestVersion = Version{Major: "0", Minor: "3", Patch: "0"}

func (v Version) String() string {
	ver := fmt.Sprintf("Version: %s.%s.%s", v.Major, v.Minor, v.Patch)
	if v.Metadata != "" {
		ver += "-" + v.Metadata
	}
	build := v.Build
	if build == "" {
		build = readBuild().revision()
	}
	return fmt.Sprintf("%s\nBuild: %s", ver, build)
}
