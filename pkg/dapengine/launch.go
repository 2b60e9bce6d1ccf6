package dapengine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os/exec"
	"strings"
	"time"

	"github.com/go-delve/steptest/pkg/logflags"
)

const listeningMessage = "DAP server listening at:"

// Launch starts 'dlv dap' on a random local port, connects to it and starts
// a session as Connect does. Close stops the adapter.
func Launch(ctx context.Context, cfg Config) (*Engine, error) {
	cfg.fillDefaults()
	log := logflags.EngineLogger()

	cmd := exec.Command(cfg.DlvPath, "dap", "--listen=127.0.0.1:0")
	cmd.Dir = cfg.WorkDir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("could not start %s: %w", cfg.DlvPath, err)
	}
	log.Debugf("started %s dap, pid %d", cfg.DlvPath, cmd.Process.Pid)

	type result struct {
		addr string
		err  error
	}
	found := make(chan result, 1)
	go func() {
		scan := bufio.NewScanner(stdout)
		addr, err := readListenAddr(scan)
		found <- result{addr, err}
		// keep pipe empty
		for scan.Scan() {
			log.Debugf("dlv: %s", scan.Text())
		}
	}()

	var addr string
	select {
	case r := <-found:
		addr, err = r.addr, r.err
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		return nil, fmt.Errorf("waiting for %s dap to listen: %w", cfg.DlvPath, err)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		return nil, err
	}
	e, err := Connect(ctx, conn, cfg)
	if err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		return nil, err
	}
	e.proc = cmd
	return e, nil
}

// readListenAddr returns the address printed by the adapter when it starts
// listening.
func readListenAddr(scan *bufio.Scanner) (string, error) {
	for scan.Scan() {
		line := scan.Text()
		if i := strings.Index(line, listeningMessage); i >= 0 {
			return strings.TrimSpace(line[i+len(listeningMessage):]), nil
		}
	}
	if err := scan.Err(); err != nil {
		return "", err
	}
	return "", io.ErrUnexpectedEOF
}

// waitOrKill waits for cmd to exit and kills it after timeout.
func waitOrKill(cmd *exec.Cmd, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		cmd.Process.Kill()
		err := <-done
		if err == nil {
			err = errors.New("killed")
		}
		return err
	}
}
