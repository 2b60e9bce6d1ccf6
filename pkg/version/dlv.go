package version

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// DlvVersion runs "dlv version" with the executable at dlvPath and returns
// the version it reports.
func DlvVersion(ctx context.Context, dlvPath string) (string, error) {
	out, err := exec.CommandContext(ctx, dlvPath, "version").Output()
	if err != nil {
		return "", fmt.Errorf("%s version: %w", dlvPath, err)
	}
	return parseDlvVersion(out)
}

func parseDlvVersion(out []byte) (string, error) {
	scan := bufio.NewScanner(bytes.NewReader(out))
	for scan.Scan() {
		if v, ok := strings.CutPrefix(strings.TrimSpace(scan.Text()), "Version: "); ok {
			return v, nil
		}
	}
	return "", fmt.Errorf("no version in %q", out)
}
