package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/overseer/internal/config"
	"github.com/Iron-Ham/overseer/internal/logging"
	"github.com/Iron-Ham/overseer/internal/orchestrator"
	"github.com/Iron-Ham/overseer/internal/planner"
	"github.com/Iron-Ham/overseer/internal/session"
)

var startCmd = &cobra.Command{
	Use:   "start <request>",
	Short: "Start a new Overseer session",
	Long: `Start a session for a natural-language coding task. Overseer plans the
task into sub-tasks, runs a coding agent per sub-task in an isolated git
worktree, and opens a PR for each one that passes the repository's tests.

The command stays attached: planner questions and progress appear here,
and anything you type is routed back to the session. Press Ctrl-C once to
interrupt the session gracefully; it can be resumed later.`,
	Args: cobra.ExactArgs(1),
	RunE: runStart,
}

var (
	startDryRun     bool
	startBaseBranch string
	startAgent      string
	startNoApproval bool
)

func init() {
	rootCmd.AddCommand(startCmd)
	startCmd.Flags().BoolVar(&startDryRun, "dry-run", false, "Plan the task without provisioning worktrees or launching agents")
	startCmd.Flags().StringVar(&startBaseBranch, "base-branch", "", "Branch task branches fork from (default: repository default branch)")
	startCmd.Flags().StringVar(&startAgent, "agent", "", "Coding agent to drive: claude, codex, gemini, or opencode")
	startCmd.Flags().BoolVar(&startNoApproval, "no-approval", false, "Launch agents without waiting for plan approval")
}

func runStart(cmd *cobra.Command, args []string) error {
	request := strings.TrimSpace(args[0])
	if request == "" {
		return fmt.Errorf("request must not be empty")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if startAgent != "" {
		if !config.IsValidAgentKind(startAgent) {
			return fmt.Errorf("unknown agent %q (valid: %s)", startAgent, strings.Join(config.ValidAgentKinds(), ", "))
		}
		cfg.Agent.Kind = startAgent
	}
	if startNoApproval {
		cfg.Orchestrator.RequireApproval = false
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	return runAttached(cfg, func(coord *orchestrator.Coordinator) (*session.Session, error) {
		return coord.StartSession(request, cwd, startBaseBranch, startDryRun)
	})
}

// runAttached wires up the engine, begins (or resumes) a session, and stays
// attached to it: coordinator messages stream to stdout, stdin lines stream
// back in, and the first Ctrl-C interrupts the session gracefully.
func runAttached(cfg *config.Config, begin func(*orchestrator.Coordinator) (*session.Session, error)) error {
	stateDir := cfg.Paths.ResolveStateDir()

	log := logging.NopLogger()
	if cfg.Logging.Enabled {
		var err error
		log, err = logging.NewLogger(stateDir, cfg.Logging.Level)
		if err != nil {
			return err
		}
		defer log.Close()
	}

	lock, err := session.AcquireLock(stateDir, log)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	store, err := session.NewStore(stateDir)
	if err != nil {
		return err
	}

	coord, err := orchestrator.New(orchestrator.Deps{
		Config:  cfg,
		Store:   store,
		Planner: planner.New(cfg.Planner, log),
		Logger:  log,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		_ = coord.Run(ctx)
	}()

	sess, err := begin(coord)
	if err != nil {
		cancel()
		<-engineDone
		return err
	}

	bold := color.New(color.Bold)
	faint := color.New(color.Faint)
	bold.Printf("session %s\n", sess.ID)
	if sess.QueuePosition > 0 {
		faint.Printf("queued at position %d; it starts when earlier sessions finish\n", sess.QueuePosition)
	}

	go func() {
		for msg := range coord.Messages() {
			fmt.Println(msg.Text)
		}
	}()
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			coord.UserInput(sess.ID, line)
		}
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	interrupted := false
	for {
		select {
		case <-sigCh:
			if interrupted {
				// Second Ctrl-C: stop waiting. State was already persisted.
				cancel()
				<-engineDone
				return nil
			}
			interrupted = true
			faint.Println("\ninterrupting session (Ctrl-C again to exit immediately)")
			coord.Interrupt(sess.ID)
		case <-ticker.C:
			snap, err := coord.Snapshot(sess.ID)
			if err != nil {
				continue
			}
			if snap.Status.IsTerminal() {
				cancel()
				<-engineDone
				printOutcome(snap)
				return nil
			}
		}
	}
}

func printOutcome(sess *session.Session) {
	switch sess.Status {
	case session.StatusCompleted:
		color.Green("session completed")
	case session.StatusInterrupted:
		color.Yellow("session interrupted; resume with: overseer resume %s", sess.ID)
	default:
		color.Red("session %s", sess.Status)
	}
}
