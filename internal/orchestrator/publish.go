package orchestrator

import (
	"context"

	"github.com/Iron-Ham/overseer/internal/config"
	"github.com/Iron-Ham/overseer/internal/logging"
	"github.com/Iron-Ham/overseer/internal/planner"
	"github.com/Iron-Ham/overseer/internal/session"
	"github.com/Iron-Ham/overseer/internal/worktree"
)

// Publisher opens the integration request for a completed task branch.
type Publisher interface {
	Publish(ctx context.Context, task *session.Task, worktreePath string, content *planner.PRContent) (*worktree.PullRequest, error)
}

// GHPublisher pushes the branch and creates a pull request with gh.
type GHPublisher struct {
	mgr  *worktree.Manager
	cfg  config.PRConfig
	base string
	log  *logging.Logger
}

// NewGHPublisher creates a publisher targeting the given base branch.
func NewGHPublisher(mgr *worktree.Manager, cfg config.PRConfig, baseBranch string, log *logging.Logger) *GHPublisher {
	if log == nil {
		log = logging.NopLogger()
	}
	base := cfg.BaseBranch
	if base == "" {
		base = baseBranch
	}
	return &GHPublisher{mgr: mgr, cfg: cfg, base: base, log: log}
}

func (g *GHPublisher) Publish(ctx context.Context, task *session.Task, worktreePath string, content *planner.PRContent) (*worktree.PullRequest, error) {
	if err := g.mgr.Push(worktreePath, false); err != nil {
		return nil, err
	}

	pr, err := worktree.CreatePR(worktreePath, worktree.PROptions{
		Title:  content.Title,
		Body:   content.Body,
		Branch: task.BranchName,
		Base:   g.base,
		Draft:  g.cfg.Draft,
		Labels: g.cfg.Labels,
	})
	if err != nil {
		return nil, err
	}
	g.log.Info("pull request created", "task", task.ID, "url", pr.URL)
	return pr, nil
}
