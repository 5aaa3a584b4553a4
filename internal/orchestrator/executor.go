package orchestrator

import (
	"context"
	"sync"

	"github.com/Iron-Ham/overseer/internal/config"
	"github.com/Iron-Ham/overseer/internal/detect"
	"github.com/Iron-Ham/overseer/internal/logging"
	"github.com/Iron-Ham/overseer/internal/pane"
	"github.com/Iron-Ham/overseer/internal/session"
)

// ExecResult is the outcome of one agent run.
type ExecResult struct {
	Detection *detect.Result
	Err       error
}

// Executor launches and supervises sub-agents. The coordinator only
// sees pane ids and a result channel, which keeps tmux out of the event
// loop and lets tests substitute a fake.
type Executor interface {
	// Start launches an agent for the task in its worktree. The
	// returned channel yields exactly one result.
	Start(ctx context.Context, task *session.Task, worktreePath, promptText string) (paneID string, results <-chan ExecResult, err error)
	// Stop terminates the task's agent if it is still running.
	Stop(taskID string) error
	// StopAll terminates every live agent.
	StopAll()
}

// PaneExecutor runs agents in tmux panes and watches them with the
// layered completion monitor.
type PaneExecutor struct {
	agent      *pane.Agent
	agentCfg   config.AgentConfig
	detectCfg  config.DetectionConfig
	sessionDir string
	maxLogMB   int
	log        *logging.Logger

	mu      sync.Mutex
	panes   map[string]*pane.Pane
	cancels map[string]context.CancelFunc
}

// NewPaneExecutor creates an executor for one orchestrator session.
// sessionDir is where per-task transcripts are written.
func NewPaneExecutor(agent *pane.Agent, cfg *config.Config, sessionDir string, log *logging.Logger) *PaneExecutor {
	if log == nil {
		log = logging.NopLogger()
	}
	return &PaneExecutor{
		agent:      agent,
		agentCfg:   cfg.Agent,
		detectCfg:  cfg.Detection,
		sessionDir: sessionDir,
		maxLogMB:   cfg.Logging.TranscriptMaxMB,
		log:        log,
		panes:      make(map[string]*pane.Pane),
		cancels:    make(map[string]context.CancelFunc),
	}
}

func (e *PaneExecutor) Start(ctx context.Context, task *session.Task, worktreePath, promptText string) (string, <-chan ExecResult, error) {
	// A retried task must not inherit the previous attempt's signals.
	if err := detect.RemoveDoneFile(worktreePath); err != nil {
		return "", nil, err
	}
	if err := detect.RemoveExitFile(worktreePath); err != nil {
		return "", nil, err
	}

	p := pane.New(task.ID, worktreePath, e.agentCfg, e.log)
	if err := p.Start(e.agent, promptText); err != nil {
		return "", nil, err
	}

	transcript, err := logging.NewTranscriptWriter(e.sessionDir, task.ID, int64(e.maxLogMB)*1024*1024)
	if err != nil {
		e.log.Warn("transcript unavailable", "task", task.ID, "error", err)
		transcript = nil
	}

	monitorCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.panes[task.ID] = p
	e.cancels[task.ID] = cancel
	e.mu.Unlock()

	monitor := detect.NewMonitor(p, detect.Options{
		WorktreePath:    worktreePath,
		Marker:          e.detectCfg.OutputMarker,
		CaptureInterval: e.agentCfg.CaptureInterval(),
		Timeouts: detect.TimeoutConfig{
			IdleTimeout:       e.detectCfg.IdleTimeout(),
			CompletionTimeout: e.detectCfg.CompletionTimeout(),
		},
		Transcript: transcript,
		Logger:     e.log.WithTask(task.ID),
	})

	results := make(chan ExecResult, 1)
	go func() {
		defer func() {
			if transcript != nil {
				_ = transcript.Close()
			}
			e.mu.Lock()
			delete(e.panes, task.ID)
			delete(e.cancels, task.ID)
			e.mu.Unlock()
		}()

		result, err := monitor.Run(monitorCtx)
		results <- ExecResult{Detection: result, Err: err}
	}()

	return p.SessionName(), results, nil
}

func (e *PaneExecutor) Stop(taskID string) error {
	e.mu.Lock()
	p := e.panes[taskID]
	cancel := e.cancels[taskID]
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if p != nil {
		return p.Stop()
	}
	return nil
}

func (e *PaneExecutor) StopAll() {
	e.mu.Lock()
	ids := make([]string, 0, len(e.panes))
	for id := range e.panes {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		if err := e.Stop(id); err != nil {
			e.log.Warn("stopping agent failed", "task", id, "error", err)
		}
	}
}
