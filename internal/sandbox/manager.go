package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jkaninda/repobox/internal/runtime"
	"github.com/robfig/cron/v3"
)

const (
	defaultWorkingDir  = "/workspace"
	defaultImage       = "python:3.11-slim"
	defaultExecTimeout = 30 * time.Second
	maxExecTimeout     = 300 * time.Second
	defaultSweepEvery  = 5 * time.Minute
	defaultMaxFileSize = 10 << 20 // 10 MB

	provisionTimeout = 2 * time.Minute
	destroyTimeout   = 30 * time.Second
)

// Runtime is the container backend the Manager drives. *runtime.Client
// implements it; tests substitute a fake.
type Runtime interface {
	Ping(ctx context.Context) error
	Run(ctx context.Context, opts runtime.RunOptions) (string, error)
	Exec(ctx context.Context, name string, opts runtime.ExecOptions) (*runtime.ExecResult, error)
	Stop(ctx context.Context, name string) error
	Remove(ctx context.Context, name string) error
	State(ctx context.Context, name string) (string, error)
}

// Config tunes the Manager. Zero values fall back to defaults.
type Config struct {
	Image          string        // Container image for new sandboxes.
	WorkingDir     string        // Clone target inside the container.
	ExecTimeout    time.Duration // Default per-command timeout.
	MaxExecTimeout time.Duration // Upper clamp for per-command timeouts.
	SweepInterval  time.Duration // Expiry sweep cadence.
	MaxFileSize    int64         // Read size cap in bytes.
}

func (c Config) withDefaults() Config {
	if c.Image == "" {
		c.Image = defaultImage
	}
	if c.WorkingDir == "" {
		c.WorkingDir = defaultWorkingDir
	}
	if c.ExecTimeout <= 0 {
		c.ExecTimeout = defaultExecTimeout
	}
	if c.MaxExecTimeout <= 0 {
		c.MaxExecTimeout = maxExecTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepEvery
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = defaultMaxFileSize
	}
	return c
}

// Manager owns the sandbox registry. The registry is purely in memory;
// restarting the service orphans nothing because containers carry a
// managed label and records carry no state worth recovering.
type Manager struct {
	runtime Runtime
	cfg     Config
	journal Journal  // optional
	metrics *Metrics // optional
	logger  *slog.Logger

	mu        sync.RWMutex
	sandboxes map[string]*Sandbox

	startedAt time.Time
	cron      *cron.Cron
}

// NewManager creates a sandbox manager. journal and metrics may be nil.
func NewManager(rt Runtime, cfg Config, journal Journal, metrics *Metrics, logger *slog.Logger) *Manager {
	return &Manager{
		runtime:   rt,
		cfg:       cfg.withDefaults(),
		journal:   journal,
		metrics:   metrics,
		logger:    logger,
		sandboxes: make(map[string]*Sandbox),
		startedAt: time.Now(),
	}
}

// Start launches the background expiry sweep. The returned function stops
// it and waits for a running sweep to finish.
func (m *Manager) Start(ctx context.Context) func() {
	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", m.cfg.SweepInterval), func() {
		m.sweep(context.Background())
	})
	if err != nil {
		// Interval comes from config defaults and is always parseable.
		m.logger.Error("scheduling expiry sweep", slog.String("error", err.Error()))
	}
	c.Start()
	m.cron = c

	m.logger.Info("sandbox manager started",
		slog.String("image", m.cfg.Image),
		slog.Duration("sweep_interval", m.cfg.SweepInterval),
	)

	return func() {
		<-m.cron.Stop().Done()
	}
}

// CreateRequest describes a sandbox to provision.
type CreateRequest struct {
	RepoURL        string
	Branch         string
	Commit         string
	MaxRuntime     time.Duration // Zero = the sandbox never expires on its own.
	Env            map[string]string
	InitialCommand string
}

// Create registers a sandbox and provisions its container. The record is
// visible (status creating) for the duration of the docker run; on failure
// it is retained with status failed so callers can inspect what happened.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (Sandbox, error) {
	if req.RepoURL == "" {
		return Sandbox{}, fmt.Errorf("repo_url is required")
	}

	branch := req.Branch
	if branch == "" {
		branch = "main"
	}

	now := time.Now().UTC()
	sb := &Sandbox{
		ID:         uuid.New().String(),
		RepoURL:    req.RepoURL,
		Branch:     branch,
		Commit:     req.Commit,
		Status:     StatusCreating,
		CreatedAt:  now,
		WorkingDir: m.cfg.WorkingDir,
	}
	if req.MaxRuntime > 0 {
		expires := now.Add(req.MaxRuntime)
		sb.ExpiresAt = &expires
	}
	sb.container = "repobox-" + sb.ID

	m.mu.Lock()
	m.sandboxes[sb.ID] = sb
	m.mu.Unlock()

	m.logger.Info("provisioning sandbox",
		slog.String("sandbox_id", sb.ID),
		slog.String("repo_url", sb.RepoURL),
		slog.String("branch", sb.Branch),
		slog.String("commit", sb.Commit),
	)

	runCtx, cancel := context.WithTimeout(ctx, provisionTimeout)
	defer cancel()

	script := startupScript(sb.RepoURL, sb.Branch, sb.Commit, sb.WorkingDir, req.InitialCommand)
	_, err := m.runtime.Run(runCtx, runtime.RunOptions{
		Name:       sb.container,
		Image:      m.cfg.Image,
		Env:        provisionEnv(sb, req.Env),
		WorkingDir: sb.WorkingDir,
		Command:    []string{"bash", "-c", script},
	})
	if err != nil {
		m.setStatus(sb.ID, StatusFailed)
		m.record(ctx, Event{SandboxID: sb.ID, Type: EventProvisionFailed, Detail: err.Error()})
		if m.metrics != nil {
			m.metrics.ProvisionFailures.Inc()
		}
		m.logger.Error("sandbox provisioning failed",
			slog.String("sandbox_id", sb.ID),
			slog.String("error", err.Error()),
		)
		return Sandbox{}, fmt.Errorf("provisioning sandbox: %w", err)
	}

	m.mu.Lock()
	cur, ok := m.sandboxes[sb.ID]
	if !ok || cur.destroying {
		// Destroyed while the container was still provisioning. The destroy
		// path may have raced ahead of docker run, so release the container
		// it could not see yet.
		m.mu.Unlock()
		if err := m.runtime.Remove(runCtx, sb.container); err != nil && !errors.Is(err, runtime.ErrNotFound) {
			m.logger.Warn("container remove failed",
				slog.String("sandbox_id", sb.ID),
				slog.String("error", err.Error()),
			)
		}
		return Sandbox{}, fmt.Errorf("sandbox %s destroyed during provisioning", sb.ID)
	}
	cur.Status = StatusRunning
	m.mu.Unlock()

	m.record(ctx, Event{SandboxID: sb.ID, Type: EventCreated, Detail: sb.RepoURL})
	if m.metrics != nil {
		m.metrics.Created.Inc()
		m.metrics.Active.Inc()
	}

	attrs := []any{slog.String("sandbox_id", sb.ID)}
	if sb.ExpiresAt != nil {
		attrs = append(attrs, slog.Time("expires_at", *sb.ExpiresAt))
	}
	m.logger.Info("sandbox running", attrs...)
	return m.snapshot(sb.ID)
}

// Get returns the sandbox after refreshing its status against the runtime.
func (m *Manager) Get(ctx context.Context, id string) (Sandbox, error) {
	if _, err := m.snapshot(id); err != nil {
		return Sandbox{}, err
	}
	if err := m.refresh(ctx, id); err != nil {
		m.logger.Warn("status refresh failed",
			slog.String("sandbox_id", id),
			slog.String("error", err.Error()),
		)
	}
	return m.snapshot(id)
}

// List returns all registry records, refreshing each against the runtime.
// A record whose refresh fails is returned with its last known status.
func (m *Manager) List(ctx context.Context) []Sandbox {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sandboxes))
	for id := range m.sandboxes {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	out := make([]Sandbox, 0, len(ids))
	for _, id := range ids {
		if err := m.refresh(ctx, id); err != nil {
			m.logger.Warn("status refresh failed",
				slog.String("sandbox_id", id),
				slog.String("error", err.Error()),
			)
		}
		if sb, err := m.snapshot(id); err == nil {
			out = append(out, sb)
		}
	}
	return out
}

// Destroy stops and removes the sandbox container and drops the record.
// It reports true when this call performed the destruction; false when the
// sandbox does not exist or another destroy is already in flight. If the
// runtime fails to remove the container, the record is kept with status
// failed and the error returned, so a later retry can finish the job.
func (m *Manager) Destroy(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	sb, ok := m.sandboxes[id]
	if !ok || sb.destroying {
		m.mu.Unlock()
		return false, nil
	}
	sb.destroying = true
	name := sb.container
	// Active only increments on the creating->running transition, so the
	// gauge must only decrement for sandboxes that actually reached running.
	wasActive := sb.Status == StatusRunning
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, destroyTimeout)
	defer cancel()

	if err := m.runtime.Stop(ctx, name); err != nil && !errors.Is(err, runtime.ErrNotFound) {
		// Removal below uses force; a failed graceful stop is not fatal.
		m.logger.Warn("container stop failed",
			slog.String("sandbox_id", id),
			slog.String("error", err.Error()),
		)
	}
	if err := m.runtime.Remove(ctx, name); err != nil {
		m.mu.Lock()
		sb.Status = StatusFailed
		sb.destroying = false
		m.mu.Unlock()
		m.record(ctx, Event{SandboxID: id, Type: EventDestroyFailed, Detail: err.Error()})
		return false, fmt.Errorf("removing container: %w", err)
	}

	m.mu.Lock()
	delete(m.sandboxes, id)
	m.mu.Unlock()

	m.record(ctx, Event{SandboxID: id, Type: EventDestroyed})
	if m.metrics != nil {
		m.metrics.Destroyed.Inc()
		if wasActive {
			m.metrics.Active.Dec()
		}
	}
	m.logger.Info("sandbox destroyed", slog.String("sandbox_id", id))
	return true, nil
}

// Stats summarizes the registry and the runtime connection.
func (m *Manager) Stats(ctx context.Context) Stats {
	m.mu.RLock()
	total := len(m.sandboxes)
	active := 0
	for _, sb := range m.sandboxes {
		if sb.Status == StatusRunning {
			active++
		}
	}
	m.mu.RUnlock()

	return Stats{
		UptimeSeconds:    time.Since(m.startedAt).Seconds(),
		TotalSandboxes:   total,
		ActiveSandboxes:  active,
		RuntimeAvailable: m.runtime.Ping(ctx) == nil,
	}
}

// Container resolves the container name backing a running sandbox. Used by
// the log streaming endpoint.
func (m *Manager) Container(id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sb, ok := m.sandboxes[id]
	if !ok {
		return "", ErrNotFound
	}
	if sb.Status != StatusRunning {
		return "", fmt.Errorf("%w (status %s)", ErrNotRunning, sb.Status)
	}
	return sb.container, nil
}

// Shutdown destroys every remaining sandbox. Called on service stop.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sandboxes))
	for id := range m.sandboxes {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if _, err := m.Destroy(ctx, id); err != nil {
			m.logger.Warn("shutdown destroy failed",
				slog.String("sandbox_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
}

// refresh reconciles one record with the runtime's view of its container.
// Terminal statuses are never revisited, so observed states are monotonic.
func (m *Manager) refresh(ctx context.Context, id string) error {
	m.mu.RLock()
	sb, ok := m.sandboxes[id]
	if !ok {
		m.mu.RUnlock()
		return ErrNotFound
	}
	status := sb.Status
	name := sb.container
	var expires *time.Time
	if sb.ExpiresAt != nil {
		t := *sb.ExpiresAt
		expires = &t
	}
	m.mu.RUnlock()

	if status != StatusRunning {
		return nil
	}

	if expires != nil && time.Now().After(*expires) {
		m.expire(ctx, id, name)
		return nil
	}

	state, err := m.runtime.State(ctx, name)
	if err != nil {
		if errors.Is(err, runtime.ErrNotFound) {
			m.setStatus(id, StatusDestroyed)
			if m.metrics != nil {
				m.metrics.Active.Dec()
			}
			return nil
		}
		return err
	}

	switch state {
	case "exited", "dead":
		m.setStatus(id, StatusCompleted)
		if m.metrics != nil {
			m.metrics.Active.Dec()
		}
	}
	return nil
}

// expire releases an overdue container and marks the record timed out.
// The record stays in the registry so its final status remains queryable.
func (m *Manager) expire(ctx context.Context, id, name string) {
	m.logger.Info("sandbox expired", slog.String("sandbox_id", id))

	if err := m.runtime.Stop(ctx, name); err != nil && !errors.Is(err, runtime.ErrNotFound) {
		m.logger.Warn("container stop failed",
			slog.String("sandbox_id", id),
			slog.String("error", err.Error()),
		)
	}
	if err := m.runtime.Remove(ctx, name); err != nil {
		m.logger.Warn("container remove failed",
			slog.String("sandbox_id", id),
			slog.String("error", err.Error()),
		)
	}

	m.setStatus(id, StatusTimedOut)
	m.record(ctx, Event{SandboxID: id, Type: EventExpired})
	if m.metrics != nil {
		m.metrics.Expired.Inc()
		m.metrics.Active.Dec()
	}
}

// sweep runs on the cron schedule and reconciles every record, releasing
// containers whose lifetime has elapsed.
func (m *Manager) sweep(ctx context.Context) {
	start := time.Now()

	m.mu.RLock()
	ids := make([]string, 0, len(m.sandboxes))
	for id := range m.sandboxes {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if err := m.refresh(ctx, id); err != nil {
			m.logger.Warn("sweep refresh failed",
				slog.String("sandbox_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	if m.metrics != nil {
		m.metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}
	m.logger.Debug("expiry sweep completed",
		slog.Int("sandboxes", len(ids)),
		slog.Duration("duration", time.Since(start)),
	)
}

func (m *Manager) snapshot(id string) (Sandbox, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sb, ok := m.sandboxes[id]
	if !ok {
		return Sandbox{}, ErrNotFound
	}
	out := *sb
	if sb.ExpiresAt != nil {
		t := *sb.ExpiresAt
		out.ExpiresAt = &t
	}
	return out, nil
}

func (m *Manager) setStatus(id string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sb, ok := m.sandboxes[id]; ok {
		sb.Status = status
	}
}

// record appends a journal event, tolerating a nil journal and logging
// write failures instead of propagating them.
func (m *Manager) record(ctx context.Context, event Event) {
	if m.journal == nil {
		return
	}
	event.CreatedAt = time.Now().UTC()
	if err := m.journal.Append(ctx, event); err != nil {
		m.logger.Warn("journal append failed",
			slog.String("sandbox_id", event.SandboxID),
			slog.String("event", event.Type),
			slog.String("error", err.Error()),
		)
	}
}
