//go:build !windows
// +build !windows

package terminal

import (
	"io"
	"os"

	"github.com/mattn/go-colorable"
)

func colorableWriter(f *os.File) io.Writer {
	return colorable.NewColorable(f)
}
