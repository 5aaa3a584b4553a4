package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/overseer/internal/config"
	"github.com/Iron-Ham/overseer/internal/orchestrator"
	"github.com/Iron-Ham/overseer/internal/session"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Resume an interrupted session",
	Long: `Resume a session that was interrupted or crashed. Tasks that were
mid-flight restart in their existing worktrees; completed tasks keep their
results. Sessions whose worktrees were deleted out from under them mark the
affected tasks failed and continue with the rest.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	return runAttached(cfg, func(coord *orchestrator.Coordinator) (*session.Session, error) {
		return coord.Resume(args[0])
	})
}
