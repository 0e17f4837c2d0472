package sandbox

import (
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"
)

// fallbackBranches are tried, in order, when the requested branch does not
// exist on the remote. The final attempt clones the remote default branch.
var fallbackBranches = []string{"main", "master"}

// startupScript builds the shell script that provisions a sandbox container.
// It runs as the container entrypoint under bash -c.
//
// The script is fatal (set -e) for everything that makes the sandbox
// unusable: a repository that cannot be cloned at all, or a commit that
// does not exist. Two things are deliberately forgiving:
//
//   - A missing branch falls back through fallbackBranches and finally the
//     remote default, so callers can pass "main" against master-only repos.
//   - The initial command is best effort; a failing build step still leaves
//     a usable sandbox behind.
//
// The container is kept alive afterwards with tail -f /dev/null.
func startupScript(repoURL, branch, commit, workingDir, initialCommand string) string {
	var b strings.Builder

	b.WriteString("set -e\n")
	b.WriteString("export DEBIAN_FRONTEND=noninteractive\n")
	// Best effort: slim images often ship without git.
	b.WriteString("command -v git >/dev/null 2>&1 || { apt-get update -qq && apt-get install -y -qq git ca-certificates; } >/dev/null 2>&1 || true\n")

	dir := shellquote.Join(workingDir)
	url := shellquote.Join(repoURL)
	fmt.Fprintf(&b, "mkdir -p %s\n", dir)
	fmt.Fprintf(&b, "cd %s\n", dir)

	// try_clone wipes any leftovers from the previous attempt so each
	// clone starts into an empty directory.
	fmt.Fprintf(&b, "try_clone() { rm -rf -- .git ./* 2>/dev/null || true; git clone --branch \"$1\" %s . 2>/dev/null; }\n", url)

	attempts := make([]string, 0, len(fallbackBranches)+2)
	attempts = append(attempts, "try_clone "+shellquote.Join(branch))
	for _, fb := range fallbackBranches {
		attempts = append(attempts, "try_clone "+shellquote.Join(fb))
	}
	attempts = append(attempts, fmt.Sprintf("{ rm -rf -- .git ./* 2>/dev/null || true; git clone %s .; }", url))
	b.WriteString(strings.Join(attempts, " || "))
	b.WriteString("\n")

	// A pinned commit is a hard requirement: checkout failure aborts the
	// script under set -e and the container exits.
	if commit != "" {
		fmt.Fprintf(&b, "git checkout %s\n", shellquote.Join(commit))
	}

	if initialCommand != "" {
		fmt.Fprintf(&b, "if ! ( %s ); then\n", initialCommand)
		b.WriteString("  echo \"initial command failed, sandbox remains usable\" >&2\n")
		b.WriteString("fi\n")
	}

	b.WriteString("exec tail -f /dev/null\n")
	return b.String()
}

// provisionEnv builds the environment injected into the container: caller
// supplied variables plus the repository coordinates, which always win.
func provisionEnv(sb *Sandbox, extra map[string]string) map[string]string {
	env := make(map[string]string, len(extra)+4)
	for k, v := range extra {
		env[k] = v
	}
	env["REPO_URL"] = sb.RepoURL
	env["REPO_BRANCH"] = sb.Branch
	env["WORKING_DIR"] = sb.WorkingDir
	if sb.Commit != "" {
		env["REPO_COMMIT"] = sb.Commit
	}
	return env
}
