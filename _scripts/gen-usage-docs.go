//go:build ignore
// +build ignore

package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/go-delve/steptest/cmd/steptest/cmds"
	"github.com/spf13/cobra/doc"
)

const defaultUsageDir = "./Documentation/usage"

func main() {
	usageDir := defaultUsageDir
	if len(os.Args) > 1 {
		usageDir = os.Args[1]
	}
	if err := os.MkdirAll(usageDir, 0o755); err != nil {
		log.Fatal(err)
	}
	root := cmds.New()
	root.DisableAutoGenTag = true
	if err := doc.GenMarkdownTree(root, usageDir); err != nil {
		log.Fatal(err)
	}
	// GenMarkdownTree ignores additional help topic commands, so we have to do this manually
	cmd, _, _ := cmds.New().Find([]string{"log"})
	cmd.DisableAutoGenTag = true
	if err := doc.GenMarkdownTree(cmd, usageDir); err != nil {
		log.Fatal(err)
	}
	fh, err := os.OpenFile(filepath.Join(usageDir, "steptest.md"), os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		log.Fatalf("appending to steptest.md: %v", err)
	}
	defer fh.Close()
	fmt.Fprintln(fh, "* [steptest log](steptest_log.md)\t - Help about logging flags")
}
