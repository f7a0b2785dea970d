package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// ExecutionError reports that a command could not be spawned at all. A
// command that starts and exits non-zero is a normal Reply, not an error.
type ExecutionError struct {
	Command Name
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute %s: %v", e.Command, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Executor runs closed-set commands with timeout enforcement and output
// capture. Each command runs in its own process group so that a timeout
// kill reaps the whole subtree, not just the immediate child.
type Executor struct {
	timeout time.Duration
	logger  *slog.Logger
}

// NewExecutor creates an executor. timeout bounds each command run.
func NewExecutor(timeout time.Duration, logger *slog.Logger) *Executor {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Executor{
		timeout: timeout,
		logger:  logger.With(slog.String("component", "command")),
	}
}

// Run resolves name against the closed set and executes its binding.
// The returned Reply carries the exit code and trimmed output streams;
// a non-zero exit code is a successful Run. The error is non-nil only
// for names outside the set or when the process could not be spawned.
func (e *Executor) Run(ctx context.Context, name Name) (*Reply, error) {
	binding, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, name, binding)
}

func (e *Executor) run(ctx context.Context, name Name, binding Binding) (*Reply, error) {
	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, binding.Path, binding.Args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		// Negative pid signals the whole process group.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger.Debug("running command",
		slog.String("command", string(name)),
		slog.String("path", binding.Path))

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	reply := &Reply{
		DurationMs: duration.Milliseconds(),
		Stdout:     trimmed(stdout.String()),
		Stderr:     trimmed(stderr.String()),
	}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			reply.ExitCode = exitErr.ExitCode()
		case execCtx.Err() != nil:
			// Killed by the deadline before Wait could surface an
			// ExitError. Report it as a signal death.
			reply.ExitCode = -1
		default:
			e.logger.Error("command spawn failed",
				slog.String("command", string(name)),
				slog.String("error", err.Error()))
			return nil, &ExecutionError{Command: name, Err: err}
		}
	}

	e.logger.Info("command completed",
		slog.String("command", string(name)),
		slog.Int("exit_code", reply.ExitCode),
		slog.Duration("duration", duration))

	return reply, nil
}

// trimmed returns the whitespace-trimmed string, or nil when nothing
// non-whitespace remains.
func trimmed(s string) *string {
	t := strings.TrimSpace(s)
	if t == "" {
		return nil
	}
	return &t
}
