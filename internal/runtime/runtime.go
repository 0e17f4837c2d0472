// Package runtime talks to the local Docker daemon through the docker CLI.
// It is the only place in the codebase that shells out to docker; everything
// above it works with container names and structured results.
package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const (
	// managedLabel marks every container we create so that List and
	// external cleanup tooling can find them.
	managedLabel = "repobox.managed=true"

	defaultTimeout = 30 * time.Second
	stopGrace      = 10 * time.Second
	pingTimeout    = 5 * time.Second
)

// ErrNotFound is returned when the daemon has no container with the
// requested name.
var ErrNotFound = errors.New("container not found")

// RunOptions describes a container to start detached.
type RunOptions struct {
	Name       string            // Container name (must be unique).
	Image      string            // Container image (e.g. "python:3.11-slim").
	Env        map[string]string // Environment injected into the container.
	WorkingDir string            // Initial working directory.
	Command    []string          // Entrypoint command, e.g. ["bash", "-c", script].
}

// ExecOptions describes a command to run inside an existing container.
type ExecOptions struct {
	Command    string        // Shell command, run via bash -c.
	WorkingDir string        // Directory the command runs in.
	Timeout    time.Duration // Wall-clock limit; zero means defaultTimeout.
}

// ExecResult carries the demultiplexed output of a container exec.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Client wraps the docker CLI. All methods honor their context and never
// hold internal state, so a single Client is safe for concurrent use.
type Client struct {
	logger *slog.Logger
}

// NewClient creates a docker CLI client.
func NewClient(logger *slog.Logger) *Client {
	return &Client{logger: logger}
}

// Ping checks that the docker daemon is reachable.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "docker", "info", "--format", "{{.ServerVersion}}").CombinedOutput()
	if err != nil {
		return fmt.Errorf("docker daemon unreachable: %s", firstLine(out))
	}
	return nil
}

// Run starts a detached container and returns its ID.
func (c *Client) Run(ctx context.Context, opts RunOptions) (string, error) {
	args := []string{
		"run", "-d",
		"--name", opts.Name,
		"--label", managedLabel,
	}
	for k, v := range opts.Env {
		args = append(args, "--env", k+"="+v)
	}
	if opts.WorkingDir != "" {
		args = append(args, "--workdir", opts.WorkingDir)
	}
	args = append(args, opts.Image)
	args = append(args, opts.Command...)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger.Info("starting container",
		slog.String("container", opts.Name),
		slog.String("image", opts.Image),
	)

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("docker run: %s", firstLine(stderr.Bytes()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Exec runs a shell command inside a running container and captures its
// demultiplexed stdout and stderr, capped at maxOutputBytes each.
//
// A non-zero exit code is NOT an error — it is reported in the result.
// An error is returned only when the command could not be dispatched or
// the timeout expired.
func (c *Client) Exec(ctx context.Context, name string, opts ExecOptions) (*ExecResult, error) {
	if opts.Command == "" {
		return nil, fmt.Errorf("empty command")
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{"exec"}
	if opts.WorkingDir != "" {
		args = append(args, "--workdir", opts.WorkingDir)
	}
	args = append(args, name, "bash", "-c", opts.Command)

	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return cmd.Process.Kill()
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdoutBuf, remaining: maxOutputBytes}
	cmd.Stderr = &limitedWriter{w: &stderrBuf, remaining: maxOutputBytes}

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	exitCode := 0
	if runErr != nil {
		if ctx.Err() != nil {
			c.logger.Warn("container exec timed out",
				slog.String("container", name),
				slog.Duration("timeout", timeout),
			)
			return nil, fmt.Errorf("execution timed out after %s", timeout)
		}

		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("docker exec failed: %w", runErr)
		}
	}

	c.logger.Debug("container exec completed",
		slog.String("container", name),
		slog.Int("exit_code", exitCode),
		slog.Duration("duration", duration),
		slog.Int("stdout_bytes", stdoutBuf.Len()),
		slog.Int("stderr_bytes", stderrBuf.Len()),
	)

	return &ExecResult{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		ExitCode: exitCode,
	}, nil
}

// Stop asks the container to shut down, giving it stopGrace to exit before
// the daemon sends SIGKILL. A missing container is reported as ErrNotFound.
func (c *Client) Stop(ctx context.Context, name string) error {
	secs := int(stopGrace.Seconds())
	out, err := exec.CommandContext(ctx, "docker", "stop", "-t", fmt.Sprint(secs), name).CombinedOutput()
	if err != nil {
		if isNoSuchContainer(out) {
			return ErrNotFound
		}
		return fmt.Errorf("docker stop: %s", firstLine(out))
	}
	return nil
}

// Remove force-removes the container. A missing container is not an error.
func (c *Client) Remove(ctx context.Context, name string) error {
	out, err := exec.CommandContext(ctx, "docker", "rm", "-f", name).CombinedOutput()
	if err != nil {
		if isNoSuchContainer(out) {
			return nil
		}
		return fmt.Errorf("docker rm: %s", firstLine(out))
	}
	return nil
}

// State returns the daemon's view of the container state, e.g. "running",
// "exited", "dead". A missing container is reported as ErrNotFound.
func (c *Client) State(ctx context.Context, name string) (string, error) {
	out, err := exec.CommandContext(ctx, "docker", "inspect", "-f", "{{.State.Status}}", name).CombinedOutput()
	if err != nil {
		if isNoSuchContainer(out) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("docker inspect: %s", firstLine(out))
	}
	return strings.TrimSpace(string(out)), nil
}

// List returns the names of all containers carrying the managed label,
// including stopped ones.
func (c *Client) List(ctx context.Context) ([]string, error) {
	out, err := exec.CommandContext(ctx, "docker", "ps", "-a",
		"--filter", "label="+managedLabel,
		"--format", "{{.Names}}",
	).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("docker ps: %s", firstLine(out))
	}
	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// Logs follows the container's combined stdout/stderr stream. The returned
// reader stays open until the container exits, the context is canceled, or
// Close is called.
func (c *Client) Logs(ctx context.Context, name string) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, "docker", "logs", "-f", name)
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		return nil, fmt.Errorf("docker logs: %w", err)
	}
	go func() {
		pw.CloseWithError(cmd.Wait())
	}()
	return &logStream{pr: pr, cmd: cmd}, nil
}

type logStream struct {
	pr  *io.PipeReader
	cmd *exec.Cmd
}

func (s *logStream) Read(p []byte) (int, error) { return s.pr.Read(p) }

func (s *logStream) Close() error {
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	return s.pr.Close()
}

func isNoSuchContainer(out []byte) bool {
	return bytes.Contains(out, []byte("No such container")) ||
		bytes.Contains(out, []byte("No such object"))
}

func firstLine(out []byte) string {
	line, _, _ := bytes.Cut(bytes.TrimSpace(out), []byte("\n"))
	return string(line)
}
