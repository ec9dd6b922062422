package tunnel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var _ Connector = (*CommandConnector)(nil)

// CommandConnector runs "<path> <args...> connect|disconnect" and treats a
// zero exit status as success.
type CommandConnector struct {
	path    string
	args    []string
	timeout time.Duration
}

// NewCommandConnector creates a connector around an external binary.
func NewCommandConnector(path string, args []string, timeout time.Duration) *CommandConnector {
	return &CommandConnector{path: path, args: args, timeout: timeout}
}

func (c *CommandConnector) Connect(ctx context.Context) (Outcome, error) {
	return c.run(ctx, ActionConnect)
}

func (c *CommandConnector) Disconnect(ctx context.Context) (Outcome, error) {
	return c.run(ctx, ActionDisconnect)
}

func (c *CommandConnector) run(ctx context.Context, action Action) (Outcome, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	args := append(append([]string{}, c.args...), string(action))
	cmd := exec.CommandContext(ctx, c.path, args...) //nolint:gosec // G204: binary comes from operator config

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Outcome{
		Output: strings.TrimSpace(stdout.String()),
		Detail: strings.TrimSpace(stderr.String()),
	}
	if err == nil {
		return out, nil
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		err = fmt.Errorf("%w: timed out after %s", ErrCommandFailed, c.timeout)
	case errors.Is(ctx.Err(), context.Canceled):
		err = fmt.Errorf("%w: %w", ErrCommandFailed, context.Canceled)
	default:
		err = fmt.Errorf("%w: %w", ErrCommandFailed, err)
	}
	return out, &Error{Action: action, Err: err, Detail: out.Detail}
}
