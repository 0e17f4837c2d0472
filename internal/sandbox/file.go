package sandbox

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jkaninda/repobox/internal/runtime"
	"github.com/kballard/go-shellquote"
)

// ReadFile reads a file out of a running sandbox. Existence is probed with
// stat before the content is fetched, so a missing file is distinguishable
// from a read failure. Files larger than the configured cap are refused.
// Content containing NUL bytes is flagged binary; it is still returned
// as-is, with the caller deciding how to present it.
func (m *Manager) ReadFile(ctx context.Context, id, path string) (*FileContent, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	name, _, err := m.running(id)
	if err != nil {
		return nil, err
	}
	quoted := shellquote.Join(path)

	stat, err := m.runtime.Exec(ctx, name, runtime.ExecOptions{
		Command: "stat -c %s " + quoted,
		Timeout: inspectTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("probing file: %w", err)
	}
	if stat.ExitCode != 0 {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	size, err := strconv.ParseInt(strings.TrimSpace(stat.Stdout), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing file size %q: %w", strings.TrimSpace(stat.Stdout), err)
	}
	if size > m.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes (limit %d)", ErrFileTooLarge, path, size, m.cfg.MaxFileSize)
	}

	cat, err := m.runtime.Exec(ctx, name, runtime.ExecOptions{
		Command: "cat " + quoted,
		Timeout: inspectTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	if cat.ExitCode != 0 {
		return nil, fmt.Errorf("reading %s: %s", path, strings.TrimSpace(cat.Stderr))
	}

	return &FileContent{
		Path:     path,
		Content:  cat.Stdout,
		Size:     size,
		IsBinary: strings.ContainsRune(cat.Stdout, '\x00'),
		Encoding: "utf-8",
	}, nil
}
