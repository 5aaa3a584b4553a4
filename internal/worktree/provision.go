package worktree

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Iron-Ham/overseer/internal/errors"
	"github.com/Iron-Ham/overseer/internal/logging"
)

// Provisioner creates isolated workspaces for tasks: a fresh branch off the
// base branch, a worktree for that branch, and the merged commits of every
// completed dependency so the task starts from its prerequisites' work.
type Provisioner struct {
	mgr         *Manager
	worktreeDir string
	prefix      string
	includeID   bool
	baseBranch  string
	log         *logging.Logger
}

// Provisioned describes a workspace created for a task.
type Provisioned struct {
	Branch string
	Path   string
}

// NewProvisioner creates a Provisioner. baseBranch may be empty to use the
// repository default.
func NewProvisioner(mgr *Manager, worktreeDir, prefix string, includeID bool, baseBranch string, log *logging.Logger) *Provisioner {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Provisioner{
		mgr:         mgr,
		worktreeDir: worktreeDir,
		prefix:      prefix,
		includeID:   includeID,
		baseBranch:  mgr.DefaultBranch(baseBranch),
		log:         log,
	}
}

// BaseBranch returns the branch task branches fork from.
func (p *Provisioner) BaseBranch() string {
	return p.baseBranch
}

// Provision creates a branch and worktree for the task, then merges each
// dependency branch into it. On any failure the partially created workspace
// is torn down before returning, so a failed provision never leaks a branch
// or directory.
func (p *Provisioner) Provision(taskID, title string, depBranches []string) (*Provisioned, error) {
	if err := os.MkdirAll(p.worktreeDir, 0755); err != nil {
		return nil, errors.NewGitError("failed to create worktree directory", err)
	}

	branch := p.mgr.Dedupe(BranchName(p.prefix, taskID, title, p.includeID))
	path := filepath.Join(p.worktreeDir, strings.ReplaceAll(branch, "/", "-"))

	if _, err := os.Stat(path); err == nil {
		return nil, errors.NewGitError("worktree path already in use", errors.ErrWorktreeExists).WithBranch(branch)
	}

	if err := p.mgr.CreateFromBranch(path, branch, p.baseBranch); err != nil {
		return nil, err
	}
	p.log.Info("worktree provisioned",
		"task_id", taskID,
		"branch", branch,
		"path", path,
	)

	for _, dep := range depBranches {
		if err := p.mgr.MergeBranch(path, dep); err != nil {
			p.log.Error("dependency merge failed",
				"task_id", taskID,
				"dependency_branch", dep,
			)
			p.teardown(path, branch)
			return nil, err
		}
		p.log.Debug("dependency merged", "task_id", taskID, "dependency_branch", dep)
	}

	return &Provisioned{Branch: branch, Path: path}, nil
}

// Teardown removes a provisioned workspace and its branch. Used by cleanup
// and by Provision itself on partial failure. Removal errors are logged but
// not fatal: cleanup must make progress past a worktree that is already gone.
func (p *Provisioner) Teardown(path, branch string) {
	p.teardown(path, branch)
}

func (p *Provisioner) teardown(path, branch string) {
	if path != "" {
		if err := p.mgr.Remove(path); err != nil {
			p.log.Warn("worktree removal failed", "path", path, "error", err.Error())
		}
	}
	if branch != "" {
		if err := p.mgr.DeleteBranch(branch); err != nil {
			p.log.Warn("branch removal failed", "branch", branch, "error", err.Error())
		}
	}
}
