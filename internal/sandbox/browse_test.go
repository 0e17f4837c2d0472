package sandbox

import (
	"context"
	"errors"
	"testing"

	"github.com/jkaninda/repobox/internal/runtime"
)

const sampleListing = `total 24
drwxr-xr-x 4 root root 4096 Jan 10 12:00 .
drwxr-xr-x 3 root root 4096 Jan 10 12:00 ..
drwxr-xr-x 8 root root 4096 Jan 10 12:00 .git
-rw-r--r-- 1 root root  742 Jan 10 12:00 README.md
drwxr-xr-x 2 root root 4096 Jan 10 12:00 src
-rw-r--r-- 1 root root  120 Jan 10 12:00 my notes.txt
garbage line
`

func TestParseListing(t *testing.T) {
	entries := parseListing(sampleListing)

	want := []Entry{
		{Name: ".git", Type: "directory", Permissions: "drwxr-xr-x"},
		{Name: "README.md", Type: "file", Size: 742, Permissions: "-rw-r--r--"},
		{Name: "src", Type: "directory", Permissions: "drwxr-xr-x"},
		{Name: "my notes.txt", Type: "file", Size: 120, Permissions: "-rw-r--r--"},
	}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d: %+v", len(entries), len(want), entries)
	}
	for i, w := range want {
		if entries[i] != w {
			t.Errorf("entry %d = %+v, want %+v", i, entries[i], w)
		}
	}
}

func TestParseListing_Empty(t *testing.T) {
	if entries := parseListing("total 0\n"); len(entries) != 0 {
		t.Errorf("got %d entries, want 0", len(entries))
	}
}

func TestBrowse_DefaultsToWorkingDir(t *testing.T) {
	var seen string
	rt := &fakeRuntime{
		execFn: func(name string, opts runtime.ExecOptions) (*runtime.ExecResult, error) {
			seen = opts.Command
			return &runtime.ExecResult{Stdout: sampleListing}, nil
		},
	}
	m := newTestManager(rt)
	sb := mustCreate(t, m)

	listing, err := m.Browse(context.Background(), sb.ID, "")
	if err != nil {
		t.Fatalf("browse: %v", err)
	}
	if len(listing.Entries) == 0 {
		t.Error("no entries parsed")
	}
	if listing.Path != defaultWorkingDir {
		t.Errorf("path = %q, want %q", listing.Path, defaultWorkingDir)
	}
	if listing.Count != len(listing.Entries) {
		t.Errorf("count = %d, want %d", listing.Count, len(listing.Entries))
	}
	if seen != "ls -la "+defaultWorkingDir {
		t.Errorf("command = %q", seen)
	}
}

func TestBrowse_ExplicitPath(t *testing.T) {
	rt := &fakeRuntime{
		execFn: func(name string, opts runtime.ExecOptions) (*runtime.ExecResult, error) {
			return &runtime.ExecResult{Stdout: sampleListing}, nil
		},
	}
	m := newTestManager(rt)
	sb := mustCreate(t, m)

	listing, err := m.Browse(context.Background(), sb.ID, "/workspace/src")
	if err != nil {
		t.Fatalf("browse: %v", err)
	}
	if listing.Path != "/workspace/src" {
		t.Errorf("path = %q, want /workspace/src", listing.Path)
	}
	if listing.Count != 4 {
		t.Errorf("count = %d, want 4", listing.Count)
	}
}

func TestBrowse_MissingDirectory(t *testing.T) {
	rt := &fakeRuntime{
		execFn: func(name string, opts runtime.ExecOptions) (*runtime.ExecResult, error) {
			return &runtime.ExecResult{ExitCode: 2, Stderr: "ls: cannot access '/nope': No such file or directory"}, nil
		},
	}
	m := newTestManager(rt)
	sb := mustCreate(t, m)

	if _, err := m.Browse(context.Background(), sb.ID, "/nope"); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestBrowse_NotRunning(t *testing.T) {
	m := newTestManager(&fakeRuntime{})
	sb := mustCreate(t, m)
	m.setStatus(sb.ID, StatusTimedOut)

	if _, err := m.Browse(context.Background(), sb.ID, ""); !errors.Is(err, ErrNotRunning) {
		t.Errorf("err = %v, want ErrNotRunning", err)
	}
}
