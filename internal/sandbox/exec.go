package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jkaninda/repobox/internal/runtime"
)

// ExecRequest describes a command to run inside a sandbox.
type ExecRequest struct {
	Command    string
	WorkingDir string        // Empty = sandbox working directory.
	Timeout    time.Duration // Zero = configured default; clamped to the max.
}

// Execute runs a command inside a running sandbox. Lifecycle errors
// (unknown sandbox, sandbox no longer running) are returned as errors;
// everything that happens after dispatch is folded into the result, so a
// crashing or unreachable container yields exit code -1 with the failure
// on stderr rather than a transport error.
func (m *Manager) Execute(ctx context.Context, id string, req ExecRequest) (*CommandResult, error) {
	if req.Command == "" {
		return nil, fmt.Errorf("command is required")
	}

	m.mu.RLock()
	sb, ok := m.sandboxes[id]
	if !ok {
		m.mu.RUnlock()
		return nil, ErrNotFound
	}
	status := sb.Status
	name := sb.container
	workdir := sb.WorkingDir
	m.mu.RUnlock()

	if status != StatusRunning {
		return nil, fmt.Errorf("%w (status %s)", ErrNotRunning, status)
	}
	if req.WorkingDir != "" {
		workdir = req.WorkingDir
	}
	timeout := m.clampTimeout(req.Timeout)

	m.logger.Info("executing command",
		slog.String("sandbox_id", id),
		slog.String("command", req.Command),
		slog.Duration("timeout", timeout),
	)

	start := time.Now()
	res, err := m.runtime.Exec(ctx, name, runtime.ExecOptions{
		Command:    req.Command,
		WorkingDir: workdir,
		Timeout:    timeout,
	})
	elapsed := time.Since(start)

	result := &CommandResult{
		Command:        req.Command,
		ElapsedSeconds: elapsed.Round(time.Millisecond).Seconds(),
		Timestamp:      time.Now().UTC(),
	}
	if err != nil {
		result.ExitCode = -1
		result.Stderr = "command execution failed: " + err.Error()
	} else {
		result.ExitCode = res.ExitCode
		result.Stdout = res.Stdout
		result.Stderr = res.Stderr
	}

	m.record(ctx, Event{
		SandboxID: id,
		Type:      EventExec,
		Command:   req.Command,
		ExitCode:  result.ExitCode,
	})
	if m.metrics != nil {
		m.metrics.Executions.WithLabelValues(strconv.Itoa(result.ExitCode)).Inc()
		m.metrics.ExecDuration.Observe(elapsed.Seconds())
	}
	return result, nil
}

// clampTimeout applies the configured default and bounds to a requested
// per-command timeout.
func (m *Manager) clampTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return m.cfg.ExecTimeout
	}
	if d < time.Second {
		return time.Second
	}
	if d > m.cfg.MaxExecTimeout {
		return m.cfg.MaxExecTimeout
	}
	return d
}

// running resolves the container name and working directory of a running
// sandbox, enforcing the lifecycle preconditions shared by the inspection
// operations.
func (m *Manager) running(id string) (name, workdir string, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sb, ok := m.sandboxes[id]
	if !ok {
		return "", "", ErrNotFound
	}
	if sb.Status != StatusRunning {
		return "", "", fmt.Errorf("%w (status %s)", ErrNotRunning, sb.Status)
	}
	return sb.container, sb.WorkingDir, nil
}
