// Package gobuild provides utilities for building the scripts run by a step
// test with optimizations and inlining disabled.
package gobuild

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/cosiner/argv"
)

// Remove the file at path and issue a warning to stderr if this fails.
// This can be used to remove the temporary binary generated for the session.
func Remove(path string) {
	var err error
	for i := 0; i < 20; i++ {
		err = os.Remove(path)
		// Open files can be removed on Unix, but not on Windows, where there also appears
		// to be a delay in releasing the binary when the process exits.
		// Leaving temporary files behind can be annoying to users, so we try again.
		if err == nil || runtime.GOOS != "windows" {
			break
		}
		time.Sleep(1 * time.Millisecond)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not remove %v: %v\n", path, err)
	}
}

// SplitBuildFlags splits buildflags using shell quoting rules.
func SplitBuildFlags(buildflags string) ([]string, error) {
	if strings.TrimSpace(buildflags) == "" {
		return nil, nil
	}
	v, err := argv.Argv(buildflags,
		func(s string) (string, error) {
			return "", fmt.Errorf("backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return nil, err
	}
	if len(v) != 1 {
		return nil, fmt.Errorf("illegal build flags '%s'", buildflags)
	}
	return v[0], nil
}

// GoBuildCombinedOutput builds 'pkgs' with the specified 'buildflags' and
// writes the output at 'debugname'. It returns the command line that was
// run and the output of the compiler.
func GoBuildCombinedOutput(debugname string, pkgs []string, buildflags string) (string, []byte, error) {
	args, err := goBuildArgs(debugname, pkgs, buildflags)
	if err != nil {
		return "", nil, err
	}
	return gocommandCombinedOutput("build", args...)
}

func goBuildArgs(debugname string, pkgs []string, buildflags string) ([]string, error) {
	var args []string

	bfv, err := SplitBuildFlags(buildflags)
	if err != nil {
		return nil, err
	}
	if len(bfv) >= 2 && bfv[0] == "-C" {
		args = append(args, bfv[:2]...)
		bfv = bfv[2:]
	} else if len(bfv) >= 1 && strings.HasPrefix(bfv[0], "-C=") {
		args = append(args, bfv[0])
		bfv = bfv[1:]
	}

	args = append(args, "-o", debugname)
	args = append(args, "-gcflags", "all=-N -l")
	args = append(args, bfv...)
	args = append(args, pkgs...)
	return args, nil
}

func gocommandCombinedOutput(command string, args ...string) (string, []byte, error) {
	buildCmd, goBuild := gocommandExecCmd(command, args...)
	out, err := goBuild.CombinedOutput()
	return buildCmd, out, err
}

func gocommandExecCmd(command string, args ...string) (string, *exec.Cmd) {
	allargs := []string{command}
	allargs = append(allargs, args...)
	goBuild := exec.Command("go", allargs...)
	return strings.Join(append([]string{"go"}, allargs...), " "), goBuild
}
