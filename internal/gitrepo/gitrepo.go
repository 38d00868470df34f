// Package gitrepo shells out to git for repository materialization and
// worktree metadata.
package gitrepo

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/quantmind/rops/internal/execx"
)

// CloneFresh clones a repository into a directory of the given name,
// removing any existing directory first. Clones are never incremental:
// every deploy starts from a clean checkout.
func CloneFresh(ctx context.Context, runner *execx.Runner, name, repoURL string) error {
	if err := removeAll(name); err != nil {
		return err
	}
	inv := execx.Invocation{Program: "git", Args: []string{"clone", repoURL, name}}
	out, err := runner.Run(ctx, inv, execx.Options{})
	if err != nil {
		return err
	}
	if !out.Succeeded {
		return fmt.Errorf("failed to clone git repo %q into %q", repoURL, name)
	}
	return nil
}

func removeAll(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove directory %q: %w", path, err)
	}
	return nil
}

// DetectSHA resolves the current HEAD commit, or an empty string when
// the working directory is not a git repository.
func DetectSHA(logger *slog.Logger) string {
	out, err := exec.Command("git", "rev-parse", "HEAD").Output()
	if err != nil {
		logger.Warn("failed to retrieve git sha", "error", err)
		return ""
	}
	return strings.TrimSpace(string(out))
}

// DetectBranch resolves the current branch name. A detached HEAD falls
// back to the first branch containing it; failing that the branch is
// reported as unknown with an empty string.
func DetectBranch(logger *slog.Logger) string {
	out, err := exec.Command("git", "symbolic-ref", "HEAD", "--short").Output()
	if err == nil {
		if branch := strings.TrimSpace(string(out)); branch != "" {
			return branch
		}
	}

	out, err = exec.Command("git", "branch", "-a", "--contains", "HEAD").Output()
	if err == nil {
		lines := strings.Split(string(out), "\n")
		if len(lines) > 1 {
			fields := strings.Fields(lines[1])
			if len(fields) > 0 {
				return strings.TrimPrefix(fields[0], "remotes/origin/")
			}
		}
	}

	logger.Warn("unable to determine git branch name")
	return ""
}
