// Package httpapi implements the HTTP API gateway for repobox.
//
// Security:
//   - API key authentication on every /v1 request (constant-time comparison)
//   - Request body size limits (default 1 MB)
//   - Per-user rate limiting via token bucket
//   - All requests logged with correlation IDs
//   - TLS expected via reverse proxy (not handled here)
package httpapi

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/okapi"
	"github.com/jkaninda/repobox/internal/gateway"
	"github.com/jkaninda/repobox/internal/observability"
	"github.com/jkaninda/repobox/internal/ratelimit"
	"github.com/jkaninda/repobox/internal/sandbox"
	"github.com/jkaninda/repobox/internal/storage"
)

const defaultMaxRequestSize = 1 << 20 // 1 MB

var _ gateway.Gateway = (*Gateway)(nil)

// ErrorBody is the standard error response used in OpenAPI documentation.
type ErrorBody struct {
	Error string `json:"error"`
}

// SandboxService is the part of the sandbox manager the gateway talks to.
type SandboxService interface {
	Create(ctx context.Context, req sandbox.CreateRequest) (sandbox.Sandbox, error)
	Get(ctx context.Context, id string) (sandbox.Sandbox, error)
	List(ctx context.Context) []sandbox.Sandbox
	Execute(ctx context.Context, id string, req sandbox.ExecRequest) (*sandbox.CommandResult, error)
	Browse(ctx context.Context, id, path string) (*sandbox.Listing, error)
	ReadFile(ctx context.Context, id, path string) (*sandbox.FileContent, error)
	Destroy(ctx context.Context, id string) (bool, error)
	Stats(ctx context.Context) sandbox.Stats
}

// Config configures the HTTP API gateway.
type Config struct {
	ListenAddr     string // e.g., ":8080"
	EnableDocs     bool
	APIKeys        map[string]string // API key → principal mapping. Empty = auth disabled.
	MaxRequestSize int64             // Maximum request body in bytes. 0 = 1 MB default.

	// Observability
	MetricsRegistry *prometheus.Registry            // Custom Prometheus registry for /metrics.
	MetricsPath     string                          // Path for metrics endpoint. Default: "/metrics".
	HealthChecker   *observability.HealthChecker    // Health checker for /readyz endpoint.
	Metrics         *observability.MetricsCollector // Metrics collector for HTTP middleware.
	Tracer          trace.Tracer                    // OTel tracer for HTTP middleware.
}

// Gateway is the HTTP API gateway.
type Gateway struct {
	config    Config
	sandboxes SandboxService
	events    storage.EventStore // nil = events endpoint disabled.
	limiter   *ratelimit.Limiter
	logger    *slog.Logger
	server    *http.Server

	// Extra handlers mounted on the HTTP mux (e.g., WebSocket log endpoint).
	extraRoutes []extraRoute

	okapi *okapi.Okapi
	group *okapi.Group
}

// extraRoute stores an additional handler to be mounted on the HTTP mux.
type extraRoute struct {
	pattern string
	handler http.Handler
}

// NewGateway creates an HTTP API gateway.
func NewGateway(cfg Config, svc SandboxService, rl *ratelimit.Limiter, logger *slog.Logger) *Gateway {
	return &Gateway{
		config:    cfg,
		sandboxes: svc,
		limiter:   rl,
		logger:    logger,
		okapi:     okapi.New(okapi.WithMaxMultipartMemory(defaultMaxRequestSize)),
	}
}

// WithEvents attaches the event journal, enabling the per-sandbox events endpoint.
func (g *Gateway) WithEvents(store storage.EventStore) *Gateway {
	g.events = store
	return g
}

func (g *Gateway) WithOpenAPIDocs() *Gateway {
	g.okapi.WithOpenAPIDocs(
		okapi.OpenAPI{
			Title:   "Repobox",
			Version: "v0.0.1",
		},
	)
	return g
}

// WithHandler mounts an additional handler on the HTTP mux at the given pattern.
// Useful for adding the WebSocket log endpoint alongside the API routes.
func (g *Gateway) WithHandler(pattern string, handler http.Handler) *Gateway {
	g.extraRoutes = append(g.extraRoutes, extraRoute{pattern: pattern, handler: handler})
	return g
}

// Start launches the HTTP server and blocks until it exits or ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	// Metrics/tracing middleware (applied globally).
	if g.config.Metrics != nil || g.config.Tracer != nil {
		g.okapi.UseMiddleware(func(next http.Handler) http.Handler {
			return observability.HTTPMetricsMiddleware(g.config.Metrics, g.config.Tracer, next)
		})
	}

	// Authenticated /v1 group.
	g.group = g.okapi.Group("/v1", g.authenticate)

	g.group.Post("/sandboxes", g.handleSandboxCreate,
		okapi.DocSummary("Create a sandbox from a git repository"),
		okapi.DocTags("Sandboxes"),
		okapi.DocRequestBody(CreateSandboxRequest{}),
		okapi.DocResponse(http.StatusCreated, sandbox.Sandbox{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
		okapi.DocResponse(http.StatusTooManyRequests, ErrorBody{}),
	)
	g.group.Get("/sandboxes", g.handleSandboxList,
		okapi.DocSummary("List all sandboxes"),
		okapi.DocTags("Sandboxes"),
		okapi.DocResponse([]sandbox.Sandbox{}),
	)
	g.group.Get("/sandboxes/{id}", g.handleSandboxGet,
		okapi.DocSummary("Get a sandbox by ID"),
		okapi.DocTags("Sandboxes"),
		okapi.DocPathParam("id", "string", "Sandbox ID (UUID)"),
		okapi.DocResponse(sandbox.Sandbox{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Delete("/sandboxes/{id}", g.handleSandboxDestroy,
		okapi.DocSummary("Destroy a sandbox and its container"),
		okapi.DocTags("Sandboxes"),
		okapi.DocPathParam("id", "string", "Sandbox ID (UUID)"),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
		okapi.DocResponse(http.StatusBadGateway, ErrorBody{}),
	)
	g.group.Post("/sandboxes/{id}/exec", g.handleExec,
		okapi.DocSummary("Execute a command inside a sandbox"),
		okapi.DocTags("Execution"),
		okapi.DocPathParam("id", "string", "Sandbox ID (UUID)"),
		okapi.DocRequestBody(ExecCommandRequest{}),
		okapi.DocResponse(sandbox.CommandResult{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
		okapi.DocResponse(http.StatusConflict, ErrorBody{}),
	)
	g.group.Get("/sandboxes/{id}/browse", g.handleBrowse,
		okapi.DocSummary("List a directory inside a sandbox"),
		okapi.DocTags("Files"),
		okapi.DocPathParam("id", "string", "Sandbox ID (UUID)"),
		okapi.DocQueryParam("path", "string", "Directory to list. Default: sandbox working directory.", false),
		okapi.DocResponse(sandbox.Listing{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
		okapi.DocResponse(http.StatusConflict, ErrorBody{}),
	)
	g.group.Get("/sandboxes/{id}/file", g.handleReadFile,
		okapi.DocSummary("Read a file from a sandbox"),
		okapi.DocTags("Files"),
		okapi.DocPathParam("id", "string", "Sandbox ID (UUID)"),
		okapi.DocQueryParam("path", "string", "File path, absolute or relative to the working directory.", false),
		okapi.DocResponse(sandbox.FileContent{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
		okapi.DocResponse(http.StatusRequestEntityTooLarge, ErrorBody{}),
	)
	g.group.Get("/sandboxes/{id}/events", g.handleEvents,
		okapi.DocSummary("List lifecycle events for a sandbox"),
		okapi.DocTags("Sandboxes"),
		okapi.DocPathParam("id", "string", "Sandbox ID (UUID)"),
		okapi.DocQueryParam("limit", "int", "Maximum events to return. Default: 100.", false),
		okapi.DocResponse([]sandbox.Event{}),
	)
	g.group.Get("/stats", g.handleStats,
		okapi.DocSummary("Service statistics"),
		okapi.DocTags("Health"),
		okapi.DocResponse(sandbox.Stats{}),
	)

	// Extra handlers (e.g., WebSocket log endpoint).
	for _, er := range g.extraRoutes {
		g.okapi.HandleStd("GET", er.pattern, er.handler.ServeHTTP)
	}

	// Observability endpoints (unauthenticated).
	g.okapi.Get("/healthz", g.handleLiveness)
	g.okapi.Get("/readyz", g.handleReadiness)

	if g.config.MetricsRegistry != nil {
		path := g.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		g.okapi.HandleStd("GET", path, promhttp.HandlerFor(g.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}
	if g.config.EnableDocs {
		g.WithOpenAPIDocs()
	}

	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("http api gateway starting", slog.String("addr", g.config.ListenAddr))

	return g.okapi.StartServer(g.server)
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("http api gateway stopping")
	return g.okapi.Shutdown(g.server)
}

// HealthResponse is the JSON response for the health endpoints.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleLiveness is the Kubernetes liveness probe.
func (g *Gateway) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness checks all registered dependencies and returns 200 or 503.
func (g *Gateway) handleReadiness(c *okapi.Context) error {
	if g.config.HealthChecker == nil {
		return c.OK(&HealthResponse{Status: "ok"})
	}

	status := g.config.HealthChecker.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// --- Authentication ---

// authenticate validates the API key and stores the mapped principal on the
// context. When no keys are configured, authentication is disabled and every
// caller acts as "anonymous".
func (g *Gateway) authenticate(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		if len(g.config.APIKeys) == 0 {
			c.Set("principal", "anonymous")
			return next(c)
		}

		authHeader := c.Header("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.AbortUnauthorized("missing or invalid Authorization header")
		}
		apiKey := strings.TrimPrefix(authHeader, "Bearer ")

		principal := ""
		for key, name := range g.config.APIKeys {
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
				principal = name
			}
		}
		if principal == "" {
			return c.AbortUnauthorized("invalid API key")
		}
		c.Set("principal", principal)
		return next(c)
	}
}

// rateLimit consumes one token for the principal. Returns a non-nil response
// error when the bucket is empty.
func (g *Gateway) rateLimit(c *okapi.Context) error {
	if g.limiter == nil {
		return nil
	}
	if err := g.limiter.Allow(c.GetString("principal")); err != nil {
		return c.AbortTooManyRequests("rate limit exceeded")
	}
	return nil
}

func newCorrelationID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
