// Package worktree provides git worktree provisioning for task isolation.
// Every task gets its own branch and working directory so sub-agents never
// edit the same checkout concurrently.
package worktree

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/Iron-Ham/overseer/internal/errors"
)

// Manager handles git worktree operations for one repository.
type Manager struct {
	repoDir string
}

// FindGitRoot finds the root of the git repository by traversing up from
// startDir. It returns the directory containing .git (either a directory or
// a file for worktrees). Returns an error if no git repository is found.
func FindGitRoot(startDir string) (string, error) {
	dir := startDir
	for {
		gitPath := filepath.Join(dir, ".git")
		if info, err := os.Stat(gitPath); err == nil {
			// .git can be a directory (normal repo) or a file (worktree)
			if info.IsDir() || info.Mode().IsRegular() {
				return dir, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.NewGitError("not a git repository (or any parent up to mount point)", nil)
		}
		dir = parent
	}
}

// New creates a worktree Manager rooted at the repository containing repoDir.
func New(repoDir string) (*Manager, error) {
	gitRoot, err := FindGitRoot(repoDir)
	if err != nil {
		return nil, err
	}
	return &Manager{repoDir: gitRoot}, nil
}

// RepoDir returns the repository root the manager operates on.
func (m *Manager) RepoDir() string {
	return m.repoDir
}

// CreateFromBranch creates a worktree at path with a new branch based off
// baseBranch.
func (m *Manager) CreateFromBranch(path, newBranch, baseBranch string) error {
	cmd := exec.Command("git", "worktree", "add", "-b", newBranch, path, baseBranch)
	cmd.Dir = m.repoDir

	if output, err := cmd.CombinedOutput(); err != nil {
		return errors.NewGitError("failed to create worktree", err).
			WithBranch(newBranch).
			WithOutput(string(output))
	}
	return nil
}

// Remove removes a worktree. If git refuses, the directory is deleted
// manually and stale worktree references are pruned so a half-removed
// worktree never blocks future provisioning.
func (m *Manager) Remove(path string) error {
	cmd := exec.Command("git", "worktree", "remove", "--force", path)
	cmd.Dir = m.repoDir

	if output, err := cmd.CombinedOutput(); err != nil {
		_ = os.RemoveAll(path)

		pruneCmd := exec.Command("git", "worktree", "prune")
		pruneCmd.Dir = m.repoDir
		_ = pruneCmd.Run()

		return errors.NewGitError("failed to remove worktree cleanly", err).WithOutput(string(output))
	}
	return nil
}

// List returns the paths of all worktrees attached to the repository.
func (m *Manager) List() ([]string, error) {
	cmd := exec.Command("git", "worktree", "list", "--porcelain")
	cmd.Dir = m.repoDir

	output, err := cmd.Output()
	if err != nil {
		return nil, errors.NewGitError("failed to list worktrees", err)
	}

	var worktrees []string
	for _, line := range strings.Split(string(output), "\n") {
		if strings.HasPrefix(line, "worktree ") {
			worktrees = append(worktrees, strings.TrimPrefix(line, "worktree "))
		}
	}
	return worktrees, nil
}

// BranchExists reports whether a local branch with the given name exists.
func (m *Manager) BranchExists(name string) bool {
	cmd := exec.Command("git", "rev-parse", "--verify", "--quiet", "refs/heads/"+name)
	cmd.Dir = m.repoDir
	return cmd.Run() == nil
}

// CurrentBranch returns the branch checked out in the given worktree.
func (m *Manager) CurrentBranch(path string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = path

	output, err := cmd.Output()
	if err != nil {
		return "", errors.NewGitError("failed to get branch", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// DeleteBranch deletes a local branch.
func (m *Manager) DeleteBranch(branch string) error {
	cmd := exec.Command("git", "branch", "-D", branch)
	cmd.Dir = m.repoDir

	if output, err := cmd.CombinedOutput(); err != nil {
		return errors.NewGitError("failed to delete branch", err).
			WithBranch(branch).
			WithOutput(string(output))
	}
	return nil
}

// DefaultBranch returns the repository's default branch name, preferring
// the configured base when set, then the remote HEAD, then "main", then
// "master".
func (m *Manager) DefaultBranch(configured string) string {
	if configured != "" {
		return configured
	}
	return m.DefaultRemoteHead()
}

// HasUncommittedChanges checks if a worktree has uncommitted changes.
func (m *Manager) HasUncommittedChanges(path string) (bool, error) {
	cmd := exec.Command("git", "status", "--porcelain")
	cmd.Dir = path

	output, err := cmd.Output()
	if err != nil {
		return false, errors.NewGitError("failed to check status", err)
	}
	return len(strings.TrimSpace(string(output))) > 0, nil
}

// CommitAll stages and commits everything in a worktree. A worktree with
// nothing to commit is not an error.
func (m *Manager) CommitAll(path, message string) error {
	addCmd := exec.Command("git", "add", "-A")
	addCmd.Dir = path
	if output, err := addCmd.CombinedOutput(); err != nil {
		return errors.NewGitError("failed to stage changes", err).WithOutput(string(output))
	}

	commitCmd := exec.Command("git", "commit", "-m", message)
	commitCmd.Dir = path
	if output, err := commitCmd.CombinedOutput(); err != nil {
		if strings.Contains(string(output), "nothing to commit") {
			return nil
		}
		return errors.NewGitError("failed to commit", err).WithOutput(string(output))
	}
	return nil
}

// HasCommitsBeyond returns true if the worktree's branch has commits beyond
// the base branch.
func (m *Manager) HasCommitsBeyond(path, baseBranch string) (bool, error) {
	cmd := exec.Command("git", "rev-list", "--count", baseBranch+"..HEAD")
	cmd.Dir = path

	output, err := cmd.Output()
	if err != nil {
		return false, errors.NewGitError("failed to count commits", err)
	}

	count := 0
	_, _ = fmt.Sscanf(strings.TrimSpace(string(output)), "%d", &count)
	return count > 0, nil
}

// DiffSummary returns the stat summary of what the worktree's branch
// changed relative to the base branch.
func (m *Manager) DiffSummary(path, baseBranch string) (string, error) {
	cmd := exec.Command("git", "diff", "--stat", baseBranch+"...HEAD")
	cmd.Dir = path

	output, err := cmd.Output()
	if err != nil {
		return "", errors.NewGitError("failed to summarize diff", err).WithBranch(baseBranch)
	}
	return strings.TrimSpace(string(output)), nil
}

// MergeBranch merges the given branch into the worktree's current branch.
// On conflict the merge is aborted and ErrMergeConflict is returned so the
// worktree is left clean.
func (m *Manager) MergeBranch(path, branch string) error {
	cmd := exec.Command("git", "merge", "--no-edit", branch)
	cmd.Dir = path

	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	if strings.Contains(string(output), "CONFLICT") {
		abortCmd := exec.Command("git", "merge", "--abort")
		abortCmd.Dir = path
		_ = abortCmd.Run()
		return errors.NewGitError(
			fmt.Sprintf("merging %s produced conflicts", branch), errors.ErrMergeConflict,
		).WithBranch(branch).WithOutput(string(output))
	}
	return errors.NewGitError("failed to merge branch", err).
		WithBranch(branch).
		WithOutput(string(output))
}

// Push pushes the worktree's branch to origin, setting upstream.
func (m *Manager) Push(path string, force bool) error {
	args := []string{"push", "-u", "origin", "HEAD"}
	if force {
		args = append(args, "--force-with-lease")
	}

	cmd := exec.Command("git", args...)
	cmd.Dir = path

	if output, err := cmd.CombinedOutput(); err != nil {
		return errors.NewGitError("failed to push", err).WithOutput(string(output))
	}
	return nil
}

// DefaultRemoteHead asks origin for its HEAD branch. Falls back to the
// local branches when the remote is unknown.
func (m *Manager) DefaultRemoteHead() string {
	cmd := exec.Command("git", "symbolic-ref", "refs/remotes/origin/HEAD", "--short")
	cmd.Dir = m.repoDir
	if output, err := cmd.Output(); err == nil {
		ref := strings.TrimSpace(string(output))
		if name, ok := strings.CutPrefix(ref, "origin/"); ok {
			return name
		}
	}
	if m.BranchExists("main") {
		return "main"
	}
	return "master"
}
