package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/overseer/internal/config"
	"github.com/Iron-Ham/overseer/internal/logging"
	"github.com/Iron-Ham/overseer/internal/orchestrator"
	"github.com/Iron-Ham/overseer/internal/pane"
	"github.com/Iron-Ham/overseer/internal/session"
	"github.com/Iron-Ham/overseer/internal/worktree"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup [session-id]",
	Short: "Remove worktrees and branches a session no longer needs",
	Long: `Cleanup reclaims the workspaces of finished sessions:

- worktrees of completed tasks, once they have no uncommitted changes
- worktrees and branches of cancelled tasks that produced no commits
- stale tmux panes left behind by a crashed run
- stale engine locks from dead processes

Failed tasks keep their worktrees so the work can be inspected. Cleanup is
idempotent: resources that are already gone are skipped. With no argument,
every terminal session is cleaned.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	stateDir := cfg.Paths.ResolveStateDir()

	if removed, err := session.CleanStaleLock(stateDir, logging.NopLogger()); err == nil && removed {
		fmt.Println("removed stale lock")
	}

	store, err := session.NewStore(stateDir)
	if err != nil {
		return err
	}

	var ids []string
	if len(args) > 0 {
		ids = args
	} else {
		summaries, err := store.List()
		if err != nil {
			return err
		}
		for _, s := range summaries {
			if s.Status.IsTerminal() {
				ids = append(ids, s.ID)
			}
		}
	}

	for _, id := range ids {
		sess, err := store.Load(id)
		if err != nil {
			color.Red("session %s: %v", id, err)
			continue
		}
		actions := cleanupOne(sess)
		if len(actions) == 0 {
			fmt.Printf("session %s: nothing to clean\n", sess.ID[:8])
			continue
		}
		fmt.Printf("session %s:\n", sess.ID[:8])
		for _, a := range actions {
			fmt.Printf("  %s\n", a)
		}
	}
	return nil
}

func cleanupOne(sess *session.Session) []string {
	var actions []string

	mgr, err := worktree.New(sess.RepoPath)
	if err == nil {
		base := mgr.DefaultBranch(sess.BaseBranch)
		actions = orchestrator.CleanupSession(sess, mgr, base, nil)
	} else {
		actions = append(actions, fmt.Sprintf("repository unavailable, skipping worktrees: %v", err))
	}

	for _, t := range sess.Tasks {
		name := pane.SessionNameFor(t.ID)
		if !pane.SessionExists(name) {
			continue
		}
		if err := pane.KillSession(name); err == nil {
			actions = append(actions, fmt.Sprintf("task %s: stale tmux session killed", t.ID))
		}
	}
	return actions
}
