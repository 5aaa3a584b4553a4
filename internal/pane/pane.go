package pane

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/overseer/internal/config"
	"github.com/Iron-Ham/overseer/internal/detect"
	"github.com/Iron-Ham/overseer/internal/errors"
	"github.com/Iron-Ham/overseer/internal/logging"
)

const (
	// monitorInterval is how often the background monitor checks whether
	// the tmux session is still alive.
	monitorInterval = 100 * time.Millisecond

	// stopGracePeriod is how long Stop waits after sending C-c before
	// killing the session.
	stopGracePeriod = 500 * time.Millisecond

	sessionPrefix = "overseer"
)

// Pane runs one coding agent inside a detached tmux session. The tmux
// session is the process boundary: it survives orchestrator restarts and
// can be attached to for manual inspection.
type Pane struct {
	sessionName string
	workDir     string
	width       int
	height      int
	history     int
	log         *logging.Logger

	mu       sync.Mutex
	started  bool
	stopped  bool
	exited   chan struct{}
	exitOnce sync.Once
	stopMon  chan struct{}
}

// New creates a pane controller for a task. The tmux session name is
// derived from the task ID so that a crashed orchestrator can find and
// reclaim panes after restart.
func New(taskID, workDir string, cfg config.AgentConfig, log *logging.Logger) *Pane {
	if log == nil {
		log = logging.NopLogger()
	}
	name := SessionNameFor(taskID)
	return &Pane{
		sessionName: name,
		workDir:     workDir,
		width:       cfg.TmuxWidth,
		height:      cfg.TmuxHeight,
		history:     cfg.TmuxHistoryLimit,
		log:         log.WithPane(name),
	}
}

// SessionNameFor returns the tmux session name used for a task ID.
func SessionNameFor(taskID string) string {
	return sessionPrefix + "-" + sanitizeSessionName(taskID)
}

// sanitizeSessionName strips characters tmux treats specially in session
// names (periods and colons are target separators).
func sanitizeSessionName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	out := b.String()
	if out == "" {
		return "task"
	}
	return out
}

// SessionName returns the tmux session name for this pane.
func (p *Pane) SessionName() string { return p.sessionName }

// WorkDir returns the directory the agent runs in.
func (p *Pane) WorkDir() string { return p.workDir }

// Start launches the agent in a fresh detached tmux session. The prompt
// is written to a file in the worktree and the agent command reads it
// from there, which sidesteps shell quoting of multi-line prompts.
func (p *Pane) Start(agent *Agent, prompt string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return errors.NewAgentError("pane already started", nil).WithPaneID(p.sessionName)
	}

	// A stale session with our name means a previous run died without
	// cleanup. Kill it rather than attaching to an unknown state.
	if p.sessionExists() {
		p.log.Warn("killing stale tmux session")
		_ = exec.Command("tmux", "kill-session", "-t", p.sessionName).Run()
	}

	promptFile := filepath.Join(p.workDir, agent.PromptFileName())
	if err := os.WriteFile(promptFile, []byte(prompt), 0o600); err != nil {
		return errors.NewAgentError("write prompt file", err).WithPaneID(p.sessionName)
	}

	startCmd, err := agent.BuildStartCommand(promptFile, detect.ExitFilePath(p.workDir))
	if err != nil {
		return err
	}

	newSession := exec.Command("tmux", "new-session",
		"-d",
		"-s", p.sessionName,
		"-c", p.workDir,
		"-x", strconv.Itoa(p.width),
		"-y", strconv.Itoa(p.height),
	)
	newSession.Env = append(os.Environ(), "TERM=xterm-256color")
	if out, err := newSession.CombinedOutput(); err != nil {
		return errors.NewAgentError("create tmux session", err).
			WithPaneID(p.sessionName).
			WithOutput(strings.TrimSpace(string(out)))
	}

	if p.history > 0 {
		_ = exec.Command("tmux", "set-option", "-t", p.sessionName,
			"history-limit", strconv.Itoa(p.history)).Run()
	}

	if out, err := exec.Command("tmux", "send-keys", "-t", p.sessionName,
		startCmd, "Enter").CombinedOutput(); err != nil {
		_ = exec.Command("tmux", "kill-session", "-t", p.sessionName).Run()
		return errors.NewAgentError("launch agent command", err).
			WithPaneID(p.sessionName).
			WithOutput(strings.TrimSpace(string(out)))
	}

	p.started = true
	p.exited = make(chan struct{})
	p.stopMon = make(chan struct{})
	go p.monitor()

	p.log.Info("agent started", "agent", string(agent.Kind()), "dir", p.workDir)
	return nil
}

// monitor polls the tmux session and closes the exit channel once the
// session is gone. The agent command ends with the shell exiting, which
// ends the session, so session death is the process-exit signal.
func (p *Pane) monitor() {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopMon:
			return
		case <-ticker.C:
			if !p.sessionExists() {
				p.exitOnce.Do(func() { close(p.exited) })
				return
			}
		}
	}
}

// Exited returns a channel closed when the tmux session terminates.
// It returns nil if the pane was never started.
func (p *Pane) Exited() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited
}

// Running reports whether the tmux session is currently alive.
func (p *Pane) Running() bool {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return false
	}
	return p.sessionExists()
}

// Stop interrupts the agent and kills the tmux session. It is safe to
// call on a pane whose session already exited.
func (p *Pane) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started || p.stopped {
		return nil
	}
	p.stopped = true
	if p.stopMon != nil {
		close(p.stopMon)
	}

	if p.sessionExists() {
		// Give the agent a chance to flush state before the kill.
		_ = exec.Command("tmux", "send-keys", "-t", p.sessionName, "C-c").Run()
		time.Sleep(stopGracePeriod)
		if out, err := exec.Command("tmux", "kill-session", "-t", p.sessionName).CombinedOutput(); err != nil {
			if !isSessionNotFound(string(out)) {
				return errors.NewAgentError("kill tmux session", err).
					WithPaneID(p.sessionName).
					WithOutput(strings.TrimSpace(string(out)))
			}
		}
	}

	p.exitOnce.Do(func() {
		if p.exited != nil {
			close(p.exited)
		}
	})
	p.log.Info("pane stopped")
	return nil
}

// Capture returns the current visible pane content plus scrollback.
func (p *Pane) Capture() (string, error) {
	out, err := exec.Command("tmux", "capture-pane",
		"-t", p.sessionName,
		"-p",
		"-S", "-",
	).CombinedOutput()
	if err != nil {
		if isSessionNotFound(string(out)) {
			return "", errors.ErrAgentNotRunning
		}
		return "", errors.NewAgentError("capture pane", err).
			WithPaneID(p.sessionName).
			WithOutput(strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// PID returns the process ID of the pane's shell.
func (p *Pane) PID() (int, error) {
	out, err := exec.Command("tmux", "display-message",
		"-t", p.sessionName, "-p", "#{pane_pid}").CombinedOutput()
	if err != nil {
		if isSessionNotFound(string(out)) {
			return 0, errors.ErrAgentNotRunning
		}
		return 0, errors.NewAgentError("query pane pid", err).WithPaneID(p.sessionName)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, errors.NewAgentError("parse pane pid", err).WithPaneID(p.sessionName)
	}
	return pid, nil
}

// SendInput forwards keystrokes to the agent. Plain characters are sent
// one at a time so the agent's TUI sees them as typed input; control
// characters map to tmux key names.
func (p *Pane) SendInput(input string) error {
	if !p.sessionExists() {
		return errors.ErrAgentNotRunning
	}
	for _, r := range input {
		key := specialKey(r)
		if err := exec.Command("tmux", "send-keys", "-t", p.sessionName, key).Run(); err != nil {
			return errors.NewAgentError("send input", err).WithPaneID(p.sessionName)
		}
	}
	return nil
}

// specialKey maps a rune to the tmux send-keys argument for it.
func specialKey(r rune) string {
	switch r {
	case '\n', '\r':
		return "Enter"
	case '\t':
		return "Tab"
	case '\x7f', '\b':
		return "BSpace"
	case '\x1b':
		return "Escape"
	case ' ':
		return "Space"
	case '\x03':
		return "C-c"
	default:
		return string(r)
	}
}

// AttachCommand returns the shell command a user can run to watch the
// agent live.
func (p *Pane) AttachCommand() string {
	return fmt.Sprintf("tmux attach-session -t %s", p.sessionName)
}

func (p *Pane) sessionExists() bool {
	return SessionExists(p.sessionName)
}

// SessionExists reports whether a tmux session with the given name is
// alive.
func SessionExists(name string) bool {
	err := exec.Command("tmux", "has-session", "-t", name).Run()
	return err == nil
}

// KillSession terminates a tmux session by name. Used by cleanup to reap
// panes a crashed run left behind.
func KillSession(name string) error {
	if out, err := exec.Command("tmux", "kill-session", "-t", name).CombinedOutput(); err != nil {
		if isSessionNotFound(string(out)) {
			return nil
		}
		return errors.NewAgentError("failed to kill tmux session", err).WithPaneID(name)
	}
	return nil
}

// isSessionNotFound detects the tmux errors that mean the target session
// is simply gone, which callers treat as a clean exit rather than a
// failure.
func isSessionNotFound(output string) bool {
	msg := strings.ToLower(output)
	return strings.Contains(msg, "session not found") ||
		strings.Contains(msg, "can't find session") ||
		strings.Contains(msg, "no server running")
}
