package sandbox

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jkaninda/repobox/internal/runtime"
)

// fileFake answers the stat probe and cat with canned responses.
func fileFake(statOut string, statExit int, catOut string, catExit int) *fakeRuntime {
	return &fakeRuntime{
		execFn: func(name string, opts runtime.ExecOptions) (*runtime.ExecResult, error) {
			if strings.HasPrefix(opts.Command, "stat ") {
				return &runtime.ExecResult{Stdout: statOut, ExitCode: statExit}, nil
			}
			return &runtime.ExecResult{Stdout: catOut, ExitCode: catExit}, nil
		},
	}
}

func TestReadFile_Text(t *testing.T) {
	m := newTestManager(fileFake("12\n", 0, "hello world\n", 0))
	sb := mustCreate(t, m)

	fc, err := m.ReadFile(context.Background(), sb.ID, "/workspace/README.md")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if fc.Content != "hello world\n" {
		t.Errorf("content = %q", fc.Content)
	}
	if fc.Size != 12 {
		t.Errorf("size = %d, want 12", fc.Size)
	}
	if fc.IsBinary {
		t.Error("is_binary = true for text content")
	}
	if fc.Encoding != "utf-8" {
		t.Errorf("encoding = %q, want utf-8", fc.Encoding)
	}
}

func TestReadFile_BinaryDetection(t *testing.T) {
	m := newTestManager(fileFake("4\n", 0, "ab\x00d", 0))
	sb := mustCreate(t, m)

	fc, err := m.ReadFile(context.Background(), sb.ID, "/workspace/blob")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !fc.IsBinary {
		t.Error("is_binary = false for content with NUL byte")
	}
}

func TestReadFile_Missing(t *testing.T) {
	m := newTestManager(fileFake("", 1, "", 0))
	sb := mustCreate(t, m)

	_, err := m.ReadFile(context.Background(), sb.ID, "/nope")
	if !errors.Is(err, ErrFileNotFound) {
		t.Errorf("err = %v, want ErrFileNotFound", err)
	}
}

func TestReadFile_TooLarge(t *testing.T) {
	m := newTestManager(fileFake("99999999999\n", 0, "", 0))
	sb := mustCreate(t, m)

	_, err := m.ReadFile(context.Background(), sb.ID, "/big")
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("err = %v, want ErrFileTooLarge", err)
	}
}

func TestReadFile_CatFailureIsNotNotFound(t *testing.T) {
	m := newTestManager(fileFake("10\n", 0, "", 1))
	sb := mustCreate(t, m)

	_, err := m.ReadFile(context.Background(), sb.ID, "/workspace/secret")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrFileNotFound) {
		t.Errorf("read failure misreported as not found: %v", err)
	}
}

func TestReadFile_RequiresPath(t *testing.T) {
	m := newTestManager(&fakeRuntime{})
	sb := mustCreate(t, m)

	if _, err := m.ReadFile(context.Background(), sb.ID, ""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
