package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jkaninda/okapi"
	"github.com/jkaninda/repobox/internal/sandbox"
)

// CreateSandboxRequest is the JSON body for POST /v1/sandboxes.
type CreateSandboxRequest struct {
	RepoURL         string            `json:"repo_url"`
	Branch          string            `json:"branch,omitempty"`  // Default: "main".
	Commit          string            `json:"commit,omitempty"`  // Optional commit to check out.
	MaxRuntimeSecs  int               `json:"max_runtime_secs,omitempty"`
	EnvironmentVars map[string]string `json:"environment_vars,omitempty"`
	InitialCommand  string            `json:"initial_command,omitempty"`
}

// ExecCommandRequest is the JSON body for POST /v1/sandboxes/{id}/exec.
type ExecCommandRequest struct {
	Command    string `json:"command"`
	WorkingDir string `json:"working_dir,omitempty"`
	Timeout    int    `json:"timeout,omitempty"` // Seconds. 0 = configured default.
}

func (g *Gateway) handleSandboxCreate(c *okapi.Context) error {
	if err := g.rateLimit(c); err != nil {
		return err
	}

	var req CreateSandboxRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if req.RepoURL == "" {
		return c.AbortBadRequest("repo_url is required")
	}

	correlationID := newCorrelationID()
	g.logger.Info("http sandbox create",
		slog.String("principal", c.GetString("principal")),
		slog.String("correlation_id", correlationID),
		slog.String("repo_url", req.RepoURL),
	)

	sb, err := g.sandboxes.Create(c.Context(), sandbox.CreateRequest{
		RepoURL:        req.RepoURL,
		Branch:         req.Branch,
		Commit:         req.Commit,
		MaxRuntime:     time.Duration(req.MaxRuntimeSecs) * time.Second,
		Env:            req.EnvironmentVars,
		InitialCommand: req.InitialCommand,
	})
	if err != nil {
		g.logger.Error("sandbox provisioning failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		return c.JSON(http.StatusBadGateway, okapi.M{"error": "sandbox provisioning failed"})
	}

	return c.JSON(http.StatusCreated, sb)
}

func (g *Gateway) handleSandboxList(c *okapi.Context) error {
	return c.OK(g.sandboxes.List(c.Context()))
}

func (g *Gateway) handleSandboxGet(c *okapi.Context) error {
	sb, err := g.sandboxes.Get(c.Context(), c.Param("id"))
	if err != nil {
		return sandboxError(c, err)
	}
	return c.OK(sb)
}

func (g *Gateway) handleSandboxDestroy(c *okapi.Context) error {
	if err := g.rateLimit(c); err != nil {
		return err
	}

	id := c.Param("id")
	destroyed, err := g.sandboxes.Destroy(c.Context(), id)
	if err != nil {
		g.logger.Error("sandbox destroy failed",
			slog.String("sandbox_id", id),
			slog.String("error", err.Error()),
		)
		return c.JSON(http.StatusBadGateway, okapi.M{"error": "container removal failed"})
	}
	if !destroyed {
		return c.JSON(http.StatusNotFound, okapi.M{"error": "sandbox not found"})
	}
	return c.JSON(http.StatusNoContent, nil)
}

func (g *Gateway) handleExec(c *okapi.Context) error {
	if err := g.rateLimit(c); err != nil {
		return err
	}

	var req ExecCommandRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if req.Command == "" {
		return c.AbortBadRequest("command is required")
	}

	result, err := g.sandboxes.Execute(c.Context(), c.Param("id"), sandbox.ExecRequest{
		Command:    req.Command,
		WorkingDir: req.WorkingDir,
		Timeout:    time.Duration(req.Timeout) * time.Second,
	})
	if err != nil {
		return sandboxError(c, err)
	}
	return c.OK(result)
}

func (g *Gateway) handleBrowse(c *okapi.Context) error {
	listing, err := g.sandboxes.Browse(c.Context(), c.Param("id"), c.Query("path"))
	if err != nil {
		return sandboxError(c, err)
	}
	return c.OK(listing)
}

func (g *Gateway) handleReadFile(c *okapi.Context) error {
	path := c.Query("path")
	if path == "" {
		return c.AbortBadRequest("path query parameter is required")
	}

	content, err := g.sandboxes.ReadFile(c.Context(), c.Param("id"), path)
	if err != nil {
		return sandboxError(c, err)
	}
	return c.OK(content)
}

func (g *Gateway) handleEvents(c *okapi.Context) error {
	if g.events == nil {
		return c.AbortServiceUnavailable("event journal not configured")
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.AbortBadRequest("limit must be a non-negative integer")
		}
		limit = n
	}

	events, err := g.events.ListBySandbox(c.Context(), c.Param("id"), limit)
	if err != nil {
		g.logger.Error("event journal query failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("event journal query failed")
	}
	return c.OK(events)
}

func (g *Gateway) handleStats(c *okapi.Context) error {
	return c.OK(g.sandboxes.Stats(c.Context()))
}

// sandboxError maps sandbox errors to appropriate HTTP responses.
func sandboxError(c *okapi.Context, err error) error {
	switch {
	case errors.Is(err, sandbox.ErrNotFound):
		return c.JSON(http.StatusNotFound, okapi.M{"error": "sandbox not found"})
	case errors.Is(err, sandbox.ErrNotRunning):
		return c.JSON(http.StatusConflict, okapi.M{"error": err.Error()})
	case errors.Is(err, sandbox.ErrFileNotFound):
		return c.JSON(http.StatusNotFound, okapi.M{"error": "file not found"})
	case errors.Is(err, sandbox.ErrFileTooLarge):
		return c.JSON(http.StatusRequestEntityTooLarge, okapi.M{"error": "file exceeds size limit"})
	default:
		return c.AbortBadRequest(err.Error())
	}
}
