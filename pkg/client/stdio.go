package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/ajitpratap0/mcp-session-go/pkg/transport"
)

// NewStdioClient creates a client that talks over the process's stdin and
// stdout
func NewStdioClient(options ...ClientOption) *Client {
	return New(transport.NewStdioTransport(os.Stdin, os.Stdout), options...)
}

// processWaitTimeout is how long Close waits for a server process to exit
// after its stdin was closed before killing it
const processWaitTimeout = 5 * time.Second

// processTransport owns a server subprocess and its pipes
type processTransport struct {
	*transport.StdioTransport
	cmd   *exec.Cmd
	stdin io.Closer
}

func (t *processTransport) Close() error {
	err := t.StdioTransport.Close()
	_ = t.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- t.cmd.Wait() }()
	select {
	case werr := <-done:
		var exitErr *exec.ExitError
		if werr != nil && !errors.As(werr, &exitErr) {
			err = errors.Join(err, werr)
		}
	case <-time.After(processWaitTimeout):
		_ = t.cmd.Process.Kill()
		<-done
	}
	return err
}

// NewProcessClient starts name with args and returns a client speaking to
// it over the child's stdin and stdout. The child's stderr is passed
// through. Closing the client closes the child's stdin and waits for it to
// exit.
func NewProcessClient(ctx context.Context, name string, args []string, options ...ClientOption) (*Client, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin of %s: %w", name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout of %s: %w", name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}

	t := &processTransport{
		StdioTransport: transport.NewStdioTransport(stdout, stdin),
		cmd:            cmd,
		stdin:          stdin,
	}
	return New(t, options...), nil
}
