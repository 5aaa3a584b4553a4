package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/overseer/internal/config"
	"github.com/Iron-Ham/overseer/internal/session"
)

var statusCmd = &cobra.Command{
	Use:   "status [session-id]",
	Short: "Show a session's task graph and progress",
	Long: `Display a session's status: every task with its state, branch, retries,
and pull request. With no argument the most recently updated session is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := session.NewStore(cfg.Paths.ResolveStateDir())
	if err != nil {
		return err
	}

	id := ""
	if len(args) > 0 {
		id = args[0]
	} else {
		summaries, err := store.List()
		if err != nil {
			return err
		}
		if len(summaries) == 0 {
			fmt.Println("no sessions")
			return nil
		}
		id = summaries[0].ID
	}

	sess, err := store.Load(id)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)
	bold.Printf("session %s %s\n", sess.ID, statusColor(sess.Status).Sprintf("[%s]", sess.Status))
	fmt.Printf("request: %s\n", sess.Request)
	fmt.Printf("repo: %s  agent: %s\n", sess.RepoPath, sess.AgentKind)
	fmt.Printf("planner: %d calls, ~%d tokens\n", sess.LLMCallCount, sess.EstimatedTokens)
	if sess.QueuePosition > 0 {
		fmt.Printf("queue position: %d\n", sess.QueuePosition)
	}
	fmt.Println()

	for _, t := range sess.Tasks {
		fmt.Printf("%s %s  %s\n", taskBadge(t.Status), bold.Sprint(t.ID), t.Title)
		if len(t.DependsOn) > 0 {
			fmt.Printf("    depends on: %v\n", t.DependsOn)
		}
		if t.BranchName != "" {
			fmt.Printf("    branch: %s\n", t.BranchName)
		}
		if t.RetryCount > 0 {
			fmt.Printf("    retries: %d\n", t.RetryCount)
		}
		if v := t.LastVerification(); v != nil {
			verdict := color.GreenString("passed")
			if !v.Passed {
				verdict = color.RedString("failed")
			}
			fmt.Printf("    tests: %s (%s, attempt %d)\n", verdict, v.Command, v.Attempt)
		}
		if t.PullRequest != nil {
			fmt.Printf("    pr: %s\n", t.PullRequest.URL)
		}
		if t.FailureReason != "" {
			fmt.Printf("    reason: %s\n", t.FailureReason)
		}
	}
	return nil
}

func taskBadge(status session.TaskStatus) string {
	switch status {
	case session.TaskCompleted:
		return color.GreenString("✓")
	case session.TaskFailed:
		return color.RedString("✗")
	case session.TaskCancelled:
		return color.YellowString("−")
	case session.TaskRunning, session.TaskVerifying:
		return color.CyanString("▶")
	default:
		return color.New(color.Faint).Sprint("·")
	}
}
