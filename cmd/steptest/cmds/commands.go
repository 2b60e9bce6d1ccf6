package cmds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/go-delve/steptest/pkg/config"
	"github.com/go-delve/steptest/pkg/harness"
	"github.com/go-delve/steptest/pkg/logflags"
	"github.com/go-delve/steptest/pkg/script"
	"github.com/go-delve/steptest/pkg/smartstep"
	"github.com/go-delve/steptest/pkg/terminal"
	"github.com/go-delve/steptest/pkg/version"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// configPath overrides the default configuration file.
	configPath string
	// buildFlags is the flags passed during compiler invocation.
	buildFlags string
	// dlvPath is the delve executable used to start debug adapters.
	dlvPath string

	// update rewrites the expected traces instead of checking them.
	update bool
	// verbose prints the trace of passing scripts too.
	verbose bool
	// kind restricts a run to a single kind of step.
	kind string

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command
)

// errFailed is returned by the run command when a script did not pass.
var errFailed = errors.New("some scripts failed")

const steptestCommandLongDesc = `steptest runs step test scripts against the Delve debugger.

A script is a Go program annotated with directive comments. steptest compiles
the script with optimizations disabled, starts it under 'dlv dap' stopped at
the line following the "//Breakpoint!" comment and executes the directives in
the order they appear:

	// STEP_INTO: N			step into N times
	// STEP_OUT: N			step out N times
	// SMART_STEP_INTO: N		step into every call on the breakpoint line
	// SMART_STEP_INTO_BY_INDEX: I	step into the I-th call on the breakpoint line
	// RESUME: N			resume N times

Every suspension is recorded and compared with the expected trace stored next
to the script, with the .out extension. A script without an expected trace
fails; run it once with --update to record one.`

var kinds = map[string]script.Kind{
	"step-into":       script.StepInto,
	"step-out":        script.StepOut,
	"smart-step-into": script.SmartStepInto,
}

// New returns an initialized command tree.
func New() *cobra.Command {
	// Main steptest root command.
	rootCommand = &cobra.Command{
		Use:           "steptest",
		Short:         "steptest runs debugger step test scripts.",
		Long:          steptestCommandLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (see 'steptest help log')`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'steptest help log').")
	rootCommand.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file, defaults to $HOME/.steptest/config.yml.")
	rootCommand.PersistentFlags().StringVar(&buildFlags, "build-flags", "", "Build flags, to be passed to the compiler.")
	rootCommand.PersistentFlags().StringVar(&dlvPath, "dlv", "", "Path of the dlv executable.")

	// 'run' subcommand.
	runCommand := &cobra.Command{
		Use:   "run script.go...",
		Short: "Run step test scripts.",
		Long: `Compiles and runs every script, printing PASS or FAIL for each.

The exit status is 1 if any script fails.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCmd,
	}
	runCommand.Flags().BoolVar(&update, "update", false, "Rewrite the expected traces with the recorded ones.")
	runCommand.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print the trace of passing scripts.")
	runCommand.Flags().StringVar(&kind, "kind", "", `Run only one kind of step: "step-into", "step-out" or "smart-step-into".`)
	rootCommand.AddCommand(runCommand)

	// 'parse' subcommand.
	rootCommand.AddCommand(&cobra.Command{
		Use:   "parse script.go",
		Short: "Print the directives, breakpoints and settings of a script.",
		Args:  cobra.ExactArgs(1),
		RunE:  parseCmd,
	})

	// 'targets' subcommand.
	rootCommand.AddCommand(&cobra.Command{
		Use:   "targets file.go:line",
		Short: "Print the smart step into candidates of a line.",
		Long: `Prints the calls a smart step into at the given line can stop in, in the
order used by SMART_STEP_INTO_BY_INDEX. The line number is 1-based.`,
		Args: cobra.ExactArgs(1),
		RunE: targetsCmd,
	})

	// 'version' subcommand.
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		RunE: versionCmd,
	}
	versionCommand.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print the build information and the version of dlv.")
	rootCommand.AddCommand(versionCommand)

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long: `Logging can be enabled by specifying the --log flag and using the
--log-output flag to select which components should produce logs.

The argument of --log-output must be a comma separated list of component
names selected from this list:


	driver		Log every directive and every event the driver receives
	resolver	Log smart step into candidates
	engine		Log debug engine commands and stops
	dap		Log all DAP messages
	harness		Log builds, settings and recorded traces

Additionally --log-dest can be used to specify where the logs should be
written.
If the argument is a number it will be interpreted as a file descriptor,
otherwise as a file path.

`,
	})

	return rootCommand
}

func loadConfig() (*config.Config, error) {
	var conf *config.Config
	if configPath != "" {
		var err error
		conf, err = config.LoadConfigFrom(configPath)
		if err != nil {
			return nil, err
		}
	} else {
		conf = config.LoadConfig()
	}
	if buildFlags != "" {
		conf.BuildFlags = buildFlags
	}
	if dlvPath != "" {
		conf.DlvPath = dlvPath
	}
	return conf, nil
}

func versionCmd(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "steptest\n%s\n", version.StepTestVersion)
	if !verbose {
		return nil
	}
	fmt.Fprint(out, version.BuildInfo())
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	v, err := version.DlvVersion(ctx, conf.DlvPath)
	if err != nil {
		fmt.Fprintf(out, "dlv: %v\n", err)
		return nil
	}
	fmt.Fprintf(out, "dlv: %s (%s)\n", v, conf.DlvPath)
	return nil
}

func runCmd(cmd *cobra.Command, args []string) error {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		return err
	}
	defer logflags.Close()

	var single *script.Kind
	if kind != "" {
		k, ok := kinds[kind]
		if !ok {
			return fmt.Errorf("unknown kind %q", kind)
		}
		single = &k
	}

	conf, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	reporter := newReporter(cmd.OutOrStdout())
	for _, path := range args {
		if ctx.Err() != nil {
			break
		}
		opts := harness.Options{Update: update}
		var res *harness.Result
		if single != nil {
			res, err = harness.RunSingleKind(ctx, conf, path, *single, opts)
		} else {
			res, err = harness.Run(ctx, conf, path, opts)
		}
		reporter.Report(path, res, err)
	}
	if !reporter.Summary() {
		return errFailed
	}
	return ctx.Err()
}

func newReporter(out io.Writer) *terminal.Reporter {
	if f, ok := out.(*os.File); ok {
		return terminal.NewReporter(f, verbose)
	}
	return terminal.NewPlainReporter(out, verbose)
}

func parseCmd(cmd *cobra.Command, args []string) error {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		return err
	}
	defer logflags.Close()

	scr, err := script.Load(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, bp := range scr.Breakpoints {
		fmt.Fprintf(out, "breakpoint\tline %d\n", bp)
	}
	keys := make([]string, 0, len(scr.Settings))
	for k := range scr.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "setting\t%s = %s\n", k, scr.Settings[k])
		if harness.IsSetting(k) {
			continue
		}
		if s := script.Suggest(k); len(s) > 0 {
			fmt.Fprintf(out, "\twarning: unknown setting %s, did you mean %s?\n", k, s[0])
		}
	}
	for i, d := range scr.Directives {
		fmt.Fprintf(out, "%d\tline %d\t%s\n", i, d.Line, d)
	}
	return nil
}

func targetsCmd(cmd *cobra.Command, args []string) error {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		return err
	}
	defer logflags.Close()

	pos, err := parsePosition(args[0])
	if err != nil {
		return err
	}
	targets, err := smartstep.NewResolver(smartstep.NewIndex()).Targets(pos)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(targets) == 0 {
		fmt.Fprintf(out, "no candidates at %s\n", pos)
		return nil
	}
	for i, t := range targets {
		fmt.Fprintf(out, "%d\t%s\n", i, t)
	}
	return nil
}

// parsePosition parses "file.go:line" with a 1-based line.
func parsePosition(s string) (smartstep.Position, error) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return smartstep.Position{}, fmt.Errorf("malformed position %q, expected file.go:line", s)
	}
	line, err := strconv.Atoi(s[i+1:])
	if err != nil || line < 1 {
		return smartstep.Position{}, fmt.Errorf("malformed line number in %q", s)
	}
	file, err := filepath.Abs(s[:i])
	if err != nil {
		return smartstep.Position{}, err
	}
	return smartstep.Position{File: file, Line: line - 1}, nil
}
