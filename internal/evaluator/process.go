package evaluator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"
)

var _ Evaluator = (*Process)(nil)

// Process runs the objective in a child process speaking the JSON-lines
// protocol on its stdin and stdout.
type Process struct {
	*Stream
	cmd   *exec.Cmd
	stdin io.WriteCloser
	done  chan error
}

// StartProcess launches name with args. The child's stderr is forwarded to
// ours.
func StartProcess(ctx context.Context, name string, args ...string) (*Process, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}

	p := &Process{
		Stream: NewStream(stdout, stdin),
		cmd:    cmd,
		stdin:  stdin,
		done:   make(chan error, 1),
	}
	go func() { p.done <- cmd.Wait() }()

	slog.Debug("Evaluator worker started", "pid", cmd.Process.Pid, "command", name)
	return p, nil
}

// Close sends the stop sentinel, closes stdin and waits for the child,
// killing it after timeout.
func (p *Process) Close() error {
	return p.CloseTimeout(5 * time.Second)
}

// CloseTimeout is Close with an explicit grace period.
func (p *Process) CloseTimeout(timeout time.Duration) error {
	stopErr := p.Stream.Close()
	closeErr := p.stdin.Close()

	var waitErr error
	select {
	case waitErr = <-p.done:
	case <-time.After(timeout):
		slog.Warn("Evaluator worker did not exit, killing", "pid", p.cmd.Process.Pid)
		_ = p.cmd.Process.Kill()
		waitErr = <-p.done
	}

	if errors.Is(stopErr, os.ErrClosed) || errors.Is(stopErr, syscall.EPIPE) {
		stopErr = nil
	}
	return errors.Join(stopErr, closeErr, waitErr)
}
