// Package mcp exposes sandbox management as an MCP (Model Context Protocol)
// server over stdio, so AI agents can provision sandboxes, run commands, and
// read files through their tool-calling interface.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jkaninda/repobox/internal/gateway"
	"github.com/jkaninda/repobox/internal/sandbox"
)

var _ gateway.Gateway = (*Gateway)(nil)

// SandboxService is the part of the sandbox manager the MCP server talks to.
type SandboxService interface {
	Create(ctx context.Context, req sandbox.CreateRequest) (sandbox.Sandbox, error)
	Get(ctx context.Context, id string) (sandbox.Sandbox, error)
	List(ctx context.Context) []sandbox.Sandbox
	Execute(ctx context.Context, id string, req sandbox.ExecRequest) (*sandbox.CommandResult, error)
	Browse(ctx context.Context, id, path string) (*sandbox.Listing, error)
	ReadFile(ctx context.Context, id, path string) (*sandbox.FileContent, error)
	Destroy(ctx context.Context, id string) (bool, error)
}

// Gateway is the MCP stdio gateway.
type Gateway struct {
	sandboxes SandboxService
	logger    *slog.Logger
	server    *server.MCPServer
}

// NewGateway creates an MCP gateway over the given sandbox service.
func NewGateway(svc SandboxService, logger *slog.Logger) *Gateway {
	g := &Gateway{
		sandboxes: svc,
		logger:    logger,
		server: server.NewMCPServer(
			"repobox",
			"0.0.1",
			server.WithToolCapabilities(false),
		),
	}
	g.registerTools()
	return g
}

// Start serves MCP over stdio and blocks until stdin closes or an error occurs.
func (g *Gateway) Start(_ context.Context) error {
	g.logger.Info("mcp gateway starting (stdio)")
	return server.ServeStdio(g.server)
}

// Stop is a no-op; the stdio server exits when stdin closes.
func (g *Gateway) Stop(_ context.Context) error {
	return nil
}

func (g *Gateway) registerTools() {
	g.server.AddTool(mcp.NewTool("create_sandbox",
		mcp.WithDescription("Create an ephemeral Docker sandbox with a git repository cloned into it."),
		mcp.WithString("repo_url", mcp.Required(), mcp.Description("Git repository URL to clone.")),
		mcp.WithString("branch", mcp.Description("Branch to clone. Defaults to main, with fallback to master and the repository default.")),
		mcp.WithString("commit", mcp.Description("Commit SHA to check out after cloning.")),
		mcp.WithString("initial_command", mcp.Description("Command to run once after cloning, e.g. an install step.")),
		mcp.WithNumber("max_runtime_secs", mcp.Description("Sandbox lifetime in seconds before automatic expiry.")),
	), g.handleCreate)

	g.server.AddTool(mcp.NewTool("list_sandboxes",
		mcp.WithDescription("List all sandboxes and their current status."),
	), g.handleList)

	g.server.AddTool(mcp.NewTool("get_sandbox",
		mcp.WithDescription("Get a sandbox by ID, refreshing its status from the container."),
		mcp.WithString("sandbox_id", mcp.Required(), mcp.Description("Sandbox ID.")),
	), g.handleGet)

	g.server.AddTool(mcp.NewTool("execute_command",
		mcp.WithDescription("Execute a shell command inside a running sandbox and return stdout, stderr, and the exit code."),
		mcp.WithString("sandbox_id", mcp.Required(), mcp.Description("Sandbox ID.")),
		mcp.WithString("command", mcp.Required(), mcp.Description("Shell command to run.")),
		mcp.WithString("working_dir", mcp.Description("Directory to run in. Defaults to the sandbox working directory.")),
		mcp.WithNumber("timeout", mcp.Description("Command timeout in seconds.")),
	), g.handleExecute)

	g.server.AddTool(mcp.NewTool("browse_directory",
		mcp.WithDescription("List the contents of a directory inside a sandbox."),
		mcp.WithString("sandbox_id", mcp.Required(), mcp.Description("Sandbox ID.")),
		mcp.WithString("path", mcp.Description("Directory to list. Defaults to the sandbox working directory.")),
	), g.handleBrowse)

	g.server.AddTool(mcp.NewTool("read_file",
		mcp.WithDescription("Read a file from a sandbox."),
		mcp.WithString("sandbox_id", mcp.Required(), mcp.Description("Sandbox ID.")),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path, absolute or relative to the working directory.")),
	), g.handleReadFile)

	g.server.AddTool(mcp.NewTool("destroy_sandbox",
		mcp.WithDescription("Stop and remove a sandbox and its container."),
		mcp.WithString("sandbox_id", mcp.Required(), mcp.Description("Sandbox ID.")),
	), g.handleDestroy)
}

func (g *Gateway) handleCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repoURL, err := req.RequireString("repo_url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sb, err := g.sandboxes.Create(ctx, sandbox.CreateRequest{
		RepoURL:        repoURL,
		Branch:         req.GetString("branch", ""),
		Commit:         req.GetString("commit", ""),
		InitialCommand: req.GetString("initial_command", ""),
		MaxRuntime:     time.Duration(req.GetFloat("max_runtime_secs", 0)) * time.Second,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("sandbox creation failed: %v", err)), nil
	}
	return jsonResult(sb)
}

func (g *Gateway) handleList(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(g.sandboxes.List(ctx))
}

func (g *Gateway) handleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("sandbox_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sb, err := g.sandboxes.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(sb)
}

func (g *Gateway) handleExecute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("sandbox_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	command, err := req.RequireString("command")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := g.sandboxes.Execute(ctx, id, sandbox.ExecRequest{
		Command:    command,
		WorkingDir: req.GetString("working_dir", ""),
		Timeout:    time.Duration(req.GetFloat("timeout", 0)) * time.Second,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

func (g *Gateway) handleBrowse(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("sandbox_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	listing, err := g.sandboxes.Browse(ctx, id, req.GetString("path", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(listing)
}

func (g *Gateway) handleReadFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("sandbox_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	content, err := g.sandboxes.ReadFile(ctx, id, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(content)
}

func (g *Gateway) handleDestroy(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("sandbox_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	destroyed, err := g.sandboxes.Destroy(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("destroy failed: %v", err)), nil
	}
	if !destroyed {
		return mcp.NewToolResultError("sandbox not found"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("sandbox %s destroyed", id)), nil
}

// jsonResult marshals v as indented JSON text content.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
