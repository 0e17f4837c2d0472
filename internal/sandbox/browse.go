package sandbox

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jkaninda/repobox/internal/runtime"
	"github.com/kballard/go-shellquote"
)

const inspectTimeout = 10 * time.Second

// Browse lists a directory inside a running sandbox. An empty path lists
// the sandbox working directory; the returned listing carries the path
// that was actually listed.
func (m *Manager) Browse(ctx context.Context, id, path string) (*Listing, error) {
	name, workdir, err := m.running(id)
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = workdir
	}

	res, err := m.runtime.Exec(ctx, name, runtime.ExecOptions{
		Command: "ls -la " + shellquote.Join(path),
		Timeout: inspectTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("listing directory: %w", err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("listing %s: %s", path, strings.TrimSpace(res.Stderr))
	}

	entries := parseListing(res.Stdout)
	return &Listing{Path: path, Entries: entries, Count: len(entries)}, nil
}

// parseListing converts ls -la output into entries. Lines that do not look
// like listing rows (the "total" header, truncated rows) are skipped, as
// are the . and .. entries.
func parseListing(out string) []Entry {
	entries := []Entry{}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "total") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 9 {
			continue
		}

		// Filenames may contain spaces; everything from the ninth field
		// on is the name.
		entryName := strings.Join(fields[8:], " ")
		if entryName == "." || entryName == ".." {
			continue
		}

		perms := fields[0]
		entry := Entry{
			Name:        entryName,
			Type:        "file",
			Permissions: perms,
		}
		if strings.HasPrefix(perms, "d") {
			entry.Type = "directory"
		} else if size, err := strconv.ParseInt(fields[4], 10, 64); err == nil {
			entry.Size = size
		}
		entries = append(entries, entry)
	}
	return entries
}
