package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  listen_addr: ":9090"
  api_keys:
    secret123: ci
sandbox:
  image: node:20-slim
  exec_timeout_secs: 15
storage:
  driver: sqlite
log:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr() != ":9090" {
		t.Errorf("addr = %q", cfg.Server.Addr())
	}
	if cfg.Server.APIKeys["secret123"] != "ci" {
		t.Errorf("api keys = %v", cfg.Server.APIKeys)
	}
	if cfg.Sandbox.Image != "node:20-slim" {
		t.Errorf("image = %q", cfg.Sandbox.Image)
	}
	if cfg.Sandbox.ExecTimeout() != 15*time.Second {
		t.Errorf("exec timeout = %s", cfg.Sandbox.ExecTimeout())
	}
	if cfg.Storage.StorageDriver() != "sqlite" {
		t.Errorf("driver = %q", cfg.Storage.StorageDriver())
	}
}

func TestLoad_JSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{"server":{"listen_addr":":7000"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr() != ":7000" {
		t.Errorf("addr = %q", cfg.Server.Addr())
	}
}

func TestLoad_EmptyPathYieldsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr() != ":8080" {
		t.Errorf("addr = %q, want :8080", cfg.Server.Addr())
	}
	if cfg.Sandbox.SweepInterval() != 5*time.Minute {
		t.Errorf("sweep interval = %s, want 5m", cfg.Sandbox.SweepInterval())
	}
	if cfg.Sandbox.MaxExecTimeout() != 300*time.Second {
		t.Errorf("max exec timeout = %s, want 5m", cfg.Sandbox.MaxExecTimeout())
	}
	if cfg.Storage != nil {
		t.Error("storage enabled by default")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("REPOBOX_LISTEN_ADDR", ":6060")
	t.Setenv("REPOBOX_IMAGE", "golang:1.26")
	t.Setenv("REPOBOX_API_KEYS", "k1:alice, k2:bob, k3")
	t.Setenv("REPOBOX_DB_DSN", "postgres://localhost/repobox")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr() != ":6060" {
		t.Errorf("addr = %q", cfg.Server.Addr())
	}
	if cfg.Sandbox.Image != "golang:1.26" {
		t.Errorf("image = %q", cfg.Sandbox.Image)
	}
	want := map[string]string{"k1": "alice", "k2": "bob", "k3": "default"}
	for k, v := range want {
		if cfg.Server.APIKeys[k] != v {
			t.Errorf("api_keys[%s] = %q, want %q", k, cfg.Server.APIKeys[k], v)
		}
	}
	if cfg.Storage.StorageDriver() != "postgres" {
		t.Errorf("driver = %q, want postgres", cfg.Storage.StorageDriver())
	}
	if cfg.Storage.Postgres.DSN != "postgres://localhost/repobox" {
		t.Errorf("dsn = %q", cfg.Storage.Postgres.DSN)
	}
}

func TestLoad_InvalidConfigs(t *testing.T) {
	cases := map[string]string{
		"bad driver":        `{"storage":{"driver":"oracle"}}`,
		"bad log format":    `{"log":{"format":"xml"}}`,
		"postgres no dsn":   `{"storage":{"driver":"postgres"}}`,
		"timeout too large": `{"sandbox":{"exec_timeout_secs":600,"max_exec_timeout_secs":300}}`,
		"tracing no endpoint": `{"observability":{"tracing":{"enabled":true}}}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeConfig(t, "config.json", content)
			if _, err := Load(path); err == nil {
				t.Errorf("load accepted invalid config: %s", content)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
