// Package sandbox manages ephemeral repository sandboxes: Docker containers
// provisioned with a cloned git repository, tracked in an in-memory registry
// through their whole lifecycle.
package sandbox

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of a sandbox.
//
// Transitions:
//
//	creating -> running | failed
//	running  -> completed | timeout | destroyed | failed
//
// All states other than creating and running are terminal.
type Status string

const (
	StatusCreating  Status = "creating"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timeout"
	StatusDestroyed Status = "destroyed"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s != StatusCreating && s != StatusRunning
}

// Sandbox is the registry record for one provisioned environment.
type Sandbox struct {
	ID         string     `json:"sandbox_id"`
	RepoURL    string     `json:"repo_url"`
	Branch     string     `json:"branch"`
	Commit     string     `json:"commit,omitempty"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	WorkingDir string     `json:"working_dir"`

	// container is the Docker container name backing this sandbox.
	// Never exposed over the API.
	container string
	// destroying guards concurrent destroy calls; exactly one caller wins.
	destroying bool
}

// CommandResult is the outcome of one command execution inside a sandbox.
// Dispatch failures are folded in (exit code -1, error text on stderr)
// rather than surfaced as transport errors.
type CommandResult struct {
	Command        string    `json:"command"`
	ExitCode       int       `json:"exit_code"`
	Stdout         string    `json:"stdout"`
	Stderr         string    `json:"stderr"`
	ElapsedSeconds float64   `json:"execution_time_secs"`
	Timestamp      time.Time `json:"timestamp"`
}

// Entry is one item in a directory listing.
type Entry struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "file" or "directory"
	Size        int64  `json:"size"` // bytes, zero for directories
	Permissions string `json:"permissions"`
}

// Listing is the result of browsing a directory. Path is the directory
// that was listed, after defaulting an empty request path to the sandbox
// working directory.
type Listing struct {
	Path    string  `json:"path"`
	Entries []Entry `json:"entries"`
	Count   int     `json:"count"`
}

// FileContent is a file read out of a sandbox.
type FileContent struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Size     int64  `json:"size"`
	IsBinary bool   `json:"is_binary"`
	Encoding string `json:"encoding"`
}

// Stats is a point-in-time service summary.
type Stats struct {
	UptimeSeconds    float64 `json:"uptime_seconds"`
	TotalSandboxes   int     `json:"total_sandboxes"`
	ActiveSandboxes  int     `json:"active_sandboxes"`
	RuntimeAvailable bool    `json:"docker_available"`
}

var (
	// ErrNotFound is returned when no sandbox with the given ID exists.
	ErrNotFound = errors.New("sandbox not found")

	// ErrNotRunning is returned when an operation requires a running
	// sandbox but its lifecycle has already moved on.
	ErrNotRunning = errors.New("sandbox is not running")

	// ErrFileNotFound is returned when a requested path does not exist
	// inside the sandbox.
	ErrFileNotFound = errors.New("file not found")

	// ErrFileTooLarge is returned when a file exceeds the configured
	// read size cap.
	ErrFileTooLarge = errors.New("file too large")
)

// Event is a journal entry describing something that happened to a sandbox.
type Event struct {
	SandboxID string
	Type      string
	Command   string
	ExitCode  int
	Detail    string
	CreatedAt time.Time
}

// Event types written by the Manager.
const (
	EventCreated         = "created"
	EventProvisionFailed = "provision_failed"
	EventExec            = "exec"
	EventExpired         = "expired"
	EventDestroyed       = "destroyed"
	EventDestroyFailed   = "destroy_failed"
)

// Journal persists sandbox lifecycle events. Implementations must be safe
// for concurrent use. A nil Journal disables persistence.
type Journal interface {
	Append(ctx context.Context, event Event) error
}
