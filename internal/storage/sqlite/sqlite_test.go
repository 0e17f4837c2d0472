package sqlite

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jkaninda/repobox/internal/sandbox"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "journal.db")}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := Open(Config{}, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestEventJournal_AppendAndList(t *testing.T) {
	s := openTestStore(t)
	events := s.Events()
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i, typ := range []string{sandbox.EventCreated, sandbox.EventExec, sandbox.EventDestroyed} {
		err := events.Append(ctx, sandbox.Event{
			SandboxID: "sb-1",
			Type:      typ,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := events.Append(ctx, sandbox.Event{SandboxID: "sb-2", Type: sandbox.EventCreated}); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := events.ListBySandbox(ctx, "sb-1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}
	// Newest first.
	if got[0].Type != sandbox.EventDestroyed || got[2].Type != sandbox.EventCreated {
		t.Errorf("order wrong: %+v", got)
	}
	for _, e := range got {
		if e.SandboxID != "sb-1" {
			t.Errorf("leaked event from other sandbox: %+v", e)
		}
	}
}

func TestEventJournal_Limit(t *testing.T) {
	s := openTestStore(t)
	events := s.Events()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := events.Append(ctx, sandbox.Event{SandboxID: "sb-1", Type: sandbox.EventExec, ExitCode: i}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := events.ListBySandbox(ctx, "sb-1", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d events, want 2", len(got))
	}
}

func TestStore_Lifecycle(t *testing.T) {
	s := openTestStore(t)
	if s.Driver() != "sqlite" {
		t.Errorf("driver = %q, want sqlite", s.Driver())
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}
}
