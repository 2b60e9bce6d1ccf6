package terminal

import (
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/mattn/go-colorable"
)

// colorableWriter returns a writer for f that is capable of interpreting
// ANSI escape codes for terminal colors.
func colorableWriter(f *os.File) io.Writer {
	if strings.ToLower(os.Getenv("ConEmuANSI")) == "on" {
		// The ConEmu terminal is installed. Use it.
		return f
	}

	const ENABLE_VIRTUAL_TERMINAL_PROCESSING = 0x0004

	h := syscall.Handle(f.Fd())
	var m uint32
	err := syscall.GetConsoleMode(h, &m)
	if err != nil {
		return f
	}
	if m&ENABLE_VIRTUAL_TERMINAL_PROCESSING != 0 {
		return f
	}
	return colorable.NewColorable(f)
}
