// Package config handles loading and validating repobox configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for repobox.
type Config struct {
	Server        ServerConfig         `json:"server" yaml:"server"`
	Sandbox       SandboxConfig        `json:"sandbox" yaml:"sandbox"`
	Storage       *StorageConfig       `json:"storage,omitempty" yaml:"storage,omitempty"`             // nil = event journal disabled
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
	Log           LogConfig            `json:"log" yaml:"log"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"` // Default: ":8080"
	EnableDocs bool   `json:"enable_docs" yaml:"enable_docs"` // Expose OpenAPI docs at /docs.
	// APIKeys maps key -> principal name. Empty = authentication disabled
	// (local development only).
	APIKeys             map[string]string `json:"api_keys,omitempty" yaml:"api_keys,omitempty"`
	MaxRequestSizeBytes int64             `json:"max_request_size_bytes" yaml:"max_request_size_bytes"` // Default: 1 MiB
	RateLimit           *RateLimitConfig  `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`     // nil = rate limiting disabled
}

// Addr returns the listen address, defaulting to ":8080".
func (s *ServerConfig) Addr() string {
	if s.ListenAddr != "" {
		return s.ListenAddr
	}
	return ":8080"
}

// MaxRequestSize returns the request body cap, defaulting to 1 MiB.
func (s *ServerConfig) MaxRequestSize() int64 {
	if s.MaxRequestSizeBytes > 0 {
		return s.MaxRequestSizeBytes
	}
	return 1 << 20
}

// RateLimitConfig configures the API rate limiter.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"` // Default: 120
	BurstSize         int `json:"burst_size" yaml:"burst_size"`                   // Default: 30
}

// RPM returns requests per minute, defaulting to 120.
func (r *RateLimitConfig) RPM() int {
	if r != nil && r.RequestsPerMinute > 0 {
		return r.RequestsPerMinute
	}
	return 120
}

// Burst returns the burst size, defaulting to 30.
func (r *RateLimitConfig) Burst() int {
	if r != nil && r.BurstSize > 0 {
		return r.BurstSize
	}
	return 30
}

// SandboxConfig tunes sandbox provisioning and execution.
type SandboxConfig struct {
	Image              string `json:"image" yaml:"image"`                                 // Default: "python:3.11-slim"
	WorkingDir         string `json:"working_dir" yaml:"working_dir"`                     // Default: "/workspace"
	ExecTimeoutSecs    int    `json:"exec_timeout_secs" yaml:"exec_timeout_secs"`         // Default: 30
	MaxExecTimeoutSecs int    `json:"max_exec_timeout_secs" yaml:"max_exec_timeout_secs"` // Clamp: 300
	SweepIntervalSecs  int    `json:"sweep_interval_secs" yaml:"sweep_interval_secs"`     // Default: 300
	MaxFileSizeBytes   int64  `json:"max_file_size_bytes" yaml:"max_file_size_bytes"`     // Default: 10 MiB
}

// ExecTimeout returns the default per-command timeout.
func (s *SandboxConfig) ExecTimeout() time.Duration {
	if s.ExecTimeoutSecs > 0 {
		return time.Duration(s.ExecTimeoutSecs) * time.Second
	}
	return 30 * time.Second
}

// MaxExecTimeout returns the per-command timeout clamp.
func (s *SandboxConfig) MaxExecTimeout() time.Duration {
	if s.MaxExecTimeoutSecs > 0 {
		return time.Duration(s.MaxExecTimeoutSecs) * time.Second
	}
	return 300 * time.Second
}

// SweepInterval returns the expiry sweep cadence.
func (s *SandboxConfig) SweepInterval() time.Duration {
	if s.SweepIntervalSecs > 0 {
		return time.Duration(s.SweepIntervalSecs) * time.Second
	}
	return 5 * time.Minute
}

// StorageConfig configures the event journal backend.
type StorageConfig struct {
	Driver   string                 `json:"driver" yaml:"driver"`                         // "sqlite" (default) or "postgres".
	SQLite   *SQLiteStorageConfig   `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`     // SQLite-specific settings.
	Postgres *PostgresStorageConfig `json:"postgres,omitempty" yaml:"postgres,omitempty"` // PostgreSQL-specific settings.
}

// StorageDriver returns the configured driver, defaulting to "sqlite".
func (s *StorageConfig) StorageDriver() string {
	if s != nil && s.Driver != "" {
		return s.Driver
	}
	return "sqlite"
}

// SQLiteStorageConfig holds SQLite-specific settings.
type SQLiteStorageConfig struct {
	Path        string `json:"path,omitempty" yaml:"path,omitempty"` // Database file path. Default: "data/repobox.db".
	JournalMode string `json:"journal_mode" yaml:"journal_mode"`     // "wal" (default), "delete", "truncate", etc.
}

// DatabasePath returns the SQLite database path, defaulting under ./data.
func (s *SQLiteStorageConfig) DatabasePath() string {
	if s != nil && s.Path != "" {
		return s.Path
	}
	return filepath.Join("data", "repobox.db")
}

// PostgresStorageConfig holds PostgreSQL-specific settings.
type PostgresStorageConfig struct {
	DSN              string `json:"dsn" yaml:"dsn"`
	MaxOpenConns     int    `json:"max_open_conns" yaml:"max_open_conns"`           // Default: 25
	MaxIdleConns     int    `json:"max_idle_conns" yaml:"max_idle_conns"`           // Default: 5
	ConnMaxLifetimeS int    `json:"conn_max_lifetime_s" yaml:"conn_max_lifetime_s"` // Default: 1800 (30 min)
}

// ObservabilityConfig configures metrics, tracing, and health checks.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "repobox"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0-1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`         // Skip TLS for dev
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // "debug", "info" (default), "warn", "error"
	Format string `json:"format" yaml:"format"` // "json" (default), "text", "pretty"
}

// DefaultConfigPath returns the conventional config location.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "configs/repobox.yaml" // fallback for environments without a home dir
	}
	return filepath.Join(home, ".repobox", "config.yaml")
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything
// else for JSON. An empty path yields the defaults. Environment variables
// take precedence over file values.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		resolved, err := resolvePath(path)
		if err != nil {
			return nil, fmt.Errorf("resolving config path %s: %w", path, err)
		}
		data, err := os.ReadFile(resolved)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", resolved, err)
		}
		switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
		case ".yml", ".yaml":
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
			}
		default:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
			}
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides layers environment variables over file values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REPOBOX_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("REPOBOX_IMAGE"); v != "" {
		cfg.Sandbox.Image = v
	}
	if v := os.Getenv("REPOBOX_DB_DSN"); v != "" {
		if cfg.Storage == nil {
			cfg.Storage = &StorageConfig{}
		}
		cfg.Storage.Driver = "postgres"
		if cfg.Storage.Postgres == nil {
			cfg.Storage.Postgres = &PostgresStorageConfig{}
		}
		cfg.Storage.Postgres.DSN = v
	}
	// REPOBOX_API_KEYS is a comma-separated list of key:principal pairs.
	if v := os.Getenv("REPOBOX_API_KEYS"); v != "" {
		if cfg.Server.APIKeys == nil {
			cfg.Server.APIKeys = make(map[string]string)
		}
		for _, pair := range strings.Split(v, ",") {
			key, principal, found := strings.Cut(strings.TrimSpace(pair), ":")
			if key == "" {
				continue
			}
			if !found || principal == "" {
				principal = "default"
			}
			cfg.Server.APIKeys[key] = principal
		}
	}
	if v := os.Getenv("REPOBOX_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("REPOBOX_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

func (c *Config) validate() error {
	if c.Sandbox.ExecTimeoutSecs < 0 || c.Sandbox.MaxExecTimeoutSecs < 0 {
		return fmt.Errorf("sandbox timeouts must not be negative")
	}
	if c.Sandbox.ExecTimeout() > c.Sandbox.MaxExecTimeout() {
		return fmt.Errorf("sandbox.exec_timeout_secs exceeds sandbox.max_exec_timeout_secs")
	}
	if c.Storage != nil {
		switch driver := c.Storage.StorageDriver(); driver {
		case "sqlite":
		case "postgres":
			if c.Storage.Postgres == nil || c.Storage.Postgres.DSN == "" {
				return fmt.Errorf("storage.postgres.dsn is required for the postgres driver")
			}
		default:
			return fmt.Errorf("unknown storage driver %q", driver)
		}
	}
	switch c.Log.Format {
	case "", "json", "text", "pretty":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if t := c.Observability; t != nil && t.Tracing != nil && t.Tracing.Enabled {
		if t.Tracing.Endpoint == "" {
			return fmt.Errorf("observability.tracing.endpoint is required when tracing is enabled")
		}
		switch t.Tracing.Protocol {
		case "", "grpc", "http":
		default:
			return fmt.Errorf("unknown tracing protocol %q", t.Tracing.Protocol)
		}
	}
	return nil
}
