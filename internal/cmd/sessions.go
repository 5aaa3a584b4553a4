package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/overseer/internal/config"
	"github.com/Iron-Ham/overseer/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List all sessions",
	Long:  `List every persisted session, newest first, with task progress and queue position.`,
	RunE:  runSessions,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := session.NewStore(cfg.Paths.ResolveStateDir())
	if err != nil {
		return err
	}
	summaries, err := store.List()
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("no sessions")
		return nil
	}

	for _, s := range summaries {
		request := s.Request
		if len(request) > 60 {
			request = request[:57] + "..."
		}
		fmt.Printf("%s  %-18s %d/%d tasks", s.ID[:8], statusColor(s.Status).Sprintf("[%s]", s.Status), s.CompletedCount, s.TaskCount)
		if s.QueuePosition > 0 {
			fmt.Printf("  queue #%d", s.QueuePosition)
		}
		fmt.Printf("  %s  %s\n", s.UpdatedAt, request)
	}
	return nil
}

func statusColor(status session.SessionStatus) *color.Color {
	switch status {
	case session.StatusCompleted:
		return color.New(color.FgGreen)
	case session.StatusFailed:
		return color.New(color.FgRed)
	case session.StatusInterrupted:
		return color.New(color.FgYellow)
	case session.StatusRunning, session.StatusPlanning:
		return color.New(color.FgCyan)
	default:
		return color.New(color.Faint)
	}
}
