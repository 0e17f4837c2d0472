package runtime

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"
)

// testImage is the Docker image used for integration tests. It ships with
// bash, which Exec depends on.
const testImage = "ubuntu:22.04"

// skipIfNoDocker skips the test if Docker is unavailable.
func skipIfNoDocker(t *testing.T) {
	t.Helper()
	if err := exec.Command("docker", "info").Run(); err != nil {
		t.Skip("docker not available, skipping integration test")
	}
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	skipIfNoDocker(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewClient(logger)
}

// startTestContainer starts an idle container and registers cleanup.
func startTestContainer(t *testing.T, c *Client) string {
	t.Helper()
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand: %v", err)
	}
	name := "repobox-test-" + hex.EncodeToString(b)

	_, err := c.Run(context.Background(), RunOptions{
		Name:    name,
		Image:   testImage,
		Command: []string{"tail", "-f", "/dev/null"},
	})
	if err != nil {
		t.Fatalf("starting test container: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Remove(context.Background(), name)
	})
	return name
}

func TestClient_Ping(t *testing.T) {
	c := newTestClient(t)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestClient_ExecCapturesOutput(t *testing.T) {
	c := newTestClient(t)
	name := startTestContainer(t, c)

	result, err := c.Exec(context.Background(), name, ExecOptions{
		Command: "echo out; echo err >&2",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", result.ExitCode)
	}
	if got := strings.TrimSpace(result.Stdout); got != "out" {
		t.Errorf("stdout = %q, want %q", got, "out")
	}
	if got := strings.TrimSpace(result.Stderr); got != "err" {
		t.Errorf("stderr = %q, want %q", got, "err")
	}
}

func TestClient_ExecNonZeroExitIsNotAnError(t *testing.T) {
	c := newTestClient(t)
	name := startTestContainer(t, c)

	result, err := c.Exec(context.Background(), name, ExecOptions{Command: "exit 42"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode != 42 {
		t.Errorf("exit code = %d, want 42", result.ExitCode)
	}
}

func TestClient_ExecTimeout(t *testing.T) {
	c := newTestClient(t)
	name := startTestContainer(t, c)

	_, err := c.Exec(context.Background(), name, ExecOptions{
		Command: "sleep 30",
		Timeout: 1 * time.Second,
	})
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("error = %q, want timeout", err)
	}
}

func TestClient_StateAndRemove(t *testing.T) {
	c := newTestClient(t)
	name := startTestContainer(t, c)
	ctx := context.Background()

	state, err := c.State(ctx, name)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state != "running" {
		t.Errorf("state = %q, want %q", state, "running")
	}

	if err := c.Remove(ctx, name); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := c.State(ctx, name); err != ErrNotFound {
		t.Errorf("state after remove = %v, want ErrNotFound", err)
	}

	// Removing an already-gone container is not an error.
	if err := c.Remove(ctx, name); err != nil {
		t.Errorf("second remove: %v", err)
	}
}

func TestClient_StateMissingContainer(t *testing.T) {
	c := newTestClient(t)
	_, err := c.State(context.Background(), "repobox-test-does-not-exist")
	if err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestLimitedWriter_Caps(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, remaining: 5}

	n, err := lw.Write([]byte("hello world"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if n != 11 {
		t.Errorf("n = %d, want 11 (reported bytes must match input)", n)
	}
	if buf.String() != "hello" {
		t.Errorf("captured = %q, want %q", buf.String(), "hello")
	}

	// Subsequent writes are discarded without error.
	if _, err := lw.Write([]byte("more")); err != nil {
		t.Fatalf("write after cap: %v", err)
	}
	if buf.String() != "hello" {
		t.Errorf("captured = %q, want %q", buf.String(), "hello")
	}
}
