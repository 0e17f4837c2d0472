//go:build integration

package postgres

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/jkaninda/repobox/internal/sandbox"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set, skipping integration test")
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	s, err := Open(Config{DSN: dsn}, logger)
	if err != nil {
		t.Fatalf("opening postgres: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestEventRepository_RoundTrip(t *testing.T) {
	s := testStore(t)
	events := s.Events()
	ctx := context.Background()

	sandboxID := uuid.New().String()
	want := sandbox.Event{
		SandboxID: sandboxID,
		Type:      sandbox.EventExec,
		Command:   "go test ./...",
		ExitCode:  1,
		Detail:    "tests failed",
	}
	if err := events.Append(ctx, want); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := events.ListBySandbox(ctx, sandboxID, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	if got[0].Command != want.Command || got[0].ExitCode != want.ExitCode || got[0].Type != want.Type {
		t.Errorf("event = %+v, want %+v", got[0], want)
	}
	if got[0].CreatedAt.IsZero() {
		t.Error("created_at not set on append")
	}
}
