// Package logflags configures the per-layer loggers used by steptest.
package logflags

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

var driver = false
var resolver = false
var engine = false
var dapWire = false
var harness = false

var logOut io.WriteCloser

func makeLogger(level logrus.Level, fields Fields) Logger {
	if lf := loggerFactory; lf != nil {
		return lf(level, fields, logOut)
	}
	logger := logrus.New().WithFields(logrus.Fields(fields))
	logger.Logger.Formatter = DefaultFormatter()
	if logOut != nil {
		logger.Logger.Out = logOut
	}
	logger.Logger.Level = level
	return &logrusLogger{logger}
}

func makeFlaggableLogger(flag bool, fields Fields) Logger {
	if !flag {
		return makeLogger(logrus.ErrorLevel, fields)
	}
	return makeLogger(logrus.DebugLevel, fields)
}

// Driver returns true if the session driver should log every directive it
// executes and every event it receives.
func Driver() bool {
	return driver
}

// DriverLogger returns a logger for the driver package.
func DriverLogger() Logger {
	return makeFlaggableLogger(driver, Fields{"layer": "driver"})
}

// Resolver returns true if the smart step-into resolver should log.
func Resolver() bool {
	return resolver
}

// ResolverLogger returns a logger for the smartstep package.
func ResolverLogger() Logger {
	return makeFlaggableLogger(resolver, Fields{"layer": "resolver"})
}

// Engine returns true if the debug engine should log the commands it
// executes.
func Engine() bool {
	return engine
}

// EngineLogger returns a logger for the dapengine package.
func EngineLogger() Logger {
	return makeFlaggableLogger(engine, Fields{"layer": "engine"})
}

// DAP returns true if every message exchanged with the debug adapter should
// be logged.
func DAP() bool {
	return dapWire
}

// DAPLogger returns a logger for DAP messages.
func DAPLogger() Logger {
	return makeFlaggableLogger(dapWire, Fields{"layer": "dap"})
}

// Harness returns true if the test orchestrator should log.
func Harness() bool {
	return harness
}

// HarnessLogger returns a logger for the harness package.
func HarnessLogger() Logger {
	return makeFlaggableLogger(harness, Fields{"layer": "harness"})
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets the layer flags based on the contents of logstr.
// If logDest is not empty logs will be redirected to the file descriptor or
// file path specified by logDest.
func Setup(logFlag bool, logstr, logDest string) error {
	if logDest != "" {
		n, err := strconv.Atoi(logDest)
		if err == nil {
			logOut = os.NewFile(uintptr(n), "steptest-logs")
		} else {
			fh, err := os.Create(logDest)
			if err != nil {
				return fmt.Errorf("could not create log file: %v", err)
			}
			logOut = fh
		}
	}
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(io.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "driver"
	}
	v := strings.Split(logstr, ",")
	for _, logcmd := range v {
		// If adding another value, do make sure to
		// update "Help about logging flags" in commands.go.
		switch logcmd {
		case "driver":
			driver = true
		case "resolver":
			resolver = true
		case "engine":
			engine = true
		case "dap":
			dapWire = true
		case "harness":
			harness = true
		default:
			fmt.Fprintf(os.Stderr, "Warning: unknown log output value %q, run 'steptest help log' for usage.\n", logcmd)
		}
	}
	return nil
}

// Close closes the logger output.
func Close() {
	if logOut != nil {
		logOut.Close()
	}
}
