package orchestrator

import (
	"fmt"
	"os"

	"github.com/Iron-Ham/overseer/internal/logging"
	"github.com/Iron-Ham/overseer/internal/session"
	"github.com/Iron-Ham/overseer/internal/worktree"
)

// CleanupSession removes the workspaces a session no longer needs and
// returns a human-readable line per action taken. It is idempotent: paths
// and branches that are already gone are skipped without error, so it is
// safe to run repeatedly and after a crash.
//
// Completed tasks lose their worktree once it is clean; their branch
// survives because the PR points at it. Cancelled tasks that produced no
// commits lose both worktree and branch. Failed tasks keep everything for
// inspection.
func CleanupSession(sess *session.Session, mgr *worktree.Manager, baseBranch string, log *logging.Logger) []string {
	if log == nil {
		log = logging.NopLogger()
	}
	var actions []string

	for _, t := range sess.Tasks {
		if t.WorktreePath == "" {
			continue
		}
		if _, err := os.Stat(t.WorktreePath); os.IsNotExist(err) {
			continue
		}

		switch t.Status {
		case session.TaskCompleted:
			dirty, err := mgr.HasUncommittedChanges(t.WorktreePath)
			if err != nil || dirty {
				if dirty {
					actions = append(actions, fmt.Sprintf("task %s: worktree kept, it has uncommitted changes", t.ID))
				}
				continue
			}
			if err := mgr.Remove(t.WorktreePath); err != nil {
				log.Warn("worktree removal failed", "task_id", t.ID, "path", t.WorktreePath, "error", err.Error())
				continue
			}
			actions = append(actions, fmt.Sprintf("task %s: worktree removed", t.ID))

		case session.TaskCancelled:
			hasWork, err := mgr.HasCommitsBeyond(t.WorktreePath, baseBranch)
			if err != nil || hasWork {
				continue
			}
			if err := mgr.Remove(t.WorktreePath); err != nil {
				log.Warn("worktree removal failed", "task_id", t.ID, "path", t.WorktreePath, "error", err.Error())
				continue
			}
			if t.BranchName != "" {
				if err := mgr.DeleteBranch(t.BranchName); err != nil {
					log.Warn("branch removal failed", "task_id", t.ID, "branch", t.BranchName, "error", err.Error())
				}
			}
			actions = append(actions, fmt.Sprintf("task %s: empty workspace removed", t.ID))
		}
	}

	return actions
}
