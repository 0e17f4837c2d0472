package sandbox

import (
	"strings"
	"testing"
)

func TestStartupScript_BranchFallbackChain(t *testing.T) {
	script := startupScript("https://example.com/repo.git", "feature-x", "", "/workspace", "")

	for _, want := range []string{
		"set -e",
		"mkdir -p /workspace",
		"cd /workspace",
		"try_clone feature-x",
		"try_clone main",
		"try_clone master",
		"git clone https://example.com/repo.git .",
		"exec tail -f /dev/null",
	} {
		if !strings.Contains(script, want) {
			t.Errorf("script missing %q:\n%s", want, script)
		}
	}

	// The fallback chain must be ordered: requested, main, master, default.
	idx := func(s string) int { return strings.Index(script, s) }
	if !(idx("try_clone feature-x") < idx("try_clone main") && idx("try_clone main") < idx("try_clone master")) {
		t.Errorf("fallback order wrong:\n%s", script)
	}
}

func TestStartupScript_CommitCheckoutIsFatal(t *testing.T) {
	script := startupScript("https://example.com/repo.git", "main", "deadbeef", "/workspace", "")

	if !strings.Contains(script, "git checkout deadbeef") {
		t.Errorf("script missing commit checkout:\n%s", script)
	}
	// Checkout must run under set -e with no guard, so a bad commit kills
	// the container.
	for _, line := range strings.Split(script, "\n") {
		if strings.Contains(line, "git checkout") && strings.Contains(line, "||") {
			t.Errorf("commit checkout is guarded, must be fatal: %q", line)
		}
	}
}

func TestStartupScript_InitialCommandIsBestEffort(t *testing.T) {
	script := startupScript("https://example.com/repo.git", "main", "", "/workspace", "make build")

	if !strings.Contains(script, "if ! ( make build ); then") {
		t.Errorf("initial command not wrapped as best effort:\n%s", script)
	}
	// Keepalive must still be reachable after a failing initial command.
	if idx := strings.Index(script, "make build"); idx > strings.Index(script, "tail -f /dev/null") {
		t.Errorf("keepalive precedes initial command:\n%s", script)
	}
}

func TestStartupScript_QuotesArguments(t *testing.T) {
	script := startupScript("https://example.com/repo.git", "feat/with space", "", "/work dir", "")

	if !strings.Contains(script, "'feat/with space'") {
		t.Errorf("branch not quoted:\n%s", script)
	}
	if !strings.Contains(script, "'/work dir'") {
		t.Errorf("working dir not quoted:\n%s", script)
	}
}

func TestProvisionEnv(t *testing.T) {
	sb := &Sandbox{
		RepoURL:    "https://example.com/repo.git",
		Branch:     "dev",
		WorkingDir: "/workspace",
	}
	env := provisionEnv(sb, map[string]string{"CUSTOM": "1", "REPO_URL": "spoofed"})

	if env["CUSTOM"] != "1" {
		t.Errorf("caller var dropped: %v", env)
	}
	// Repository coordinates always win over caller values.
	if env["REPO_URL"] != sb.RepoURL {
		t.Errorf("REPO_URL = %q, want %q", env["REPO_URL"], sb.RepoURL)
	}
	if _, ok := env["REPO_COMMIT"]; ok {
		t.Error("REPO_COMMIT set without a pinned commit")
	}

	sb.Commit = "abc"
	if env := provisionEnv(sb, nil); env["REPO_COMMIT"] != "abc" {
		t.Errorf("REPO_COMMIT = %q, want abc", env["REPO_COMMIT"])
	}
}
