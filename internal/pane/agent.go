package pane

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/overseer/internal/errors"
)

// AgentKind identifies a supported coding agent CLI.
type AgentKind string

const (
	AgentClaude   AgentKind = "claude"
	AgentCodex    AgentKind = "codex"
	AgentGemini   AgentKind = "gemini"
	AgentOpencode AgentKind = "opencode"
)

// CompletionHint is the detection strategy an agent works best with.
type CompletionHint string

const (
	// HintSignalFile means the agent reliably runs shell commands, so the
	// prompt can instruct it to touch a done-file when finished.
	HintSignalFile CompletionHint = "signal_file"
	// HintOutputMarker means completion is best detected by scanning pane
	// output for the marker string the prompt asks the agent to print.
	HintOutputMarker CompletionHint = "output_marker"
)

// Agent describes how to launch one coding agent kind inside a pane.
type Agent struct {
	kind        AgentKind
	command     string
	autoApprove bool
}

// ForKind returns the agent definition for a configured kind string.
func ForKind(kind string, autoApprove bool) (*Agent, error) {
	k := AgentKind(strings.ToLower(strings.TrimSpace(kind)))
	switch k {
	case AgentClaude, AgentCodex, AgentGemini, AgentOpencode:
		return &Agent{kind: k, command: string(k), autoApprove: autoApprove}, nil
	case "":
		return &Agent{kind: AgentClaude, command: string(AgentClaude), autoApprove: autoApprove}, nil
	default:
		return nil, fmt.Errorf("%w: %s", errors.ErrUnknownAgentKind, kind)
	}
}

// Kinds lists every supported agent kind.
func Kinds() []string {
	return []string{
		string(AgentClaude),
		string(AgentCodex),
		string(AgentGemini),
		string(AgentOpencode),
	}
}

func (a *Agent) Kind() AgentKind { return a.kind }

// DisplayName returns a human-readable agent name.
func (a *Agent) DisplayName() string {
	switch a.kind {
	case AgentClaude:
		return "Claude Code"
	case AgentCodex:
		return "Codex"
	case AgentGemini:
		return "Gemini CLI"
	case AgentOpencode:
		return "opencode"
	default:
		return string(a.kind)
	}
}

// PromptFileName is the file the task prompt is written to inside the
// worktree. Writing the prompt to disk avoids shell escaping issues with
// multi-line prompts.
func (a *Agent) PromptFileName() string {
	return fmt.Sprintf(".%s-prompt", a.kind)
}

// CompletionHint reports the preferred completion detection strategy.
// Every kind currently favors the done-file signal; opencode's shell
// integration is the least predictable, so it leans on output scanning.
func (a *Agent) CompletionHint() CompletionHint {
	if a.kind == AgentOpencode {
		return HintOutputMarker
	}
	return HintSignalFile
}

// BuildStartCommand builds the shell command that launches the agent with
// the prompt read from promptFile. The wrapper records the agent's exit
// code to exitFile and then ends the shell, so pane death carries the
// process-exit verdict.
func (a *Agent) BuildStartCommand(promptFile, exitFile string) (string, error) {
	if promptFile == "" {
		return "", errors.NewAgentError("prompt file required", nil)
	}
	if exitFile == "" {
		return "", errors.NewAgentError("exit file required", nil)
	}

	cmd := a.command
	switch a.kind {
	case AgentClaude:
		if a.autoApprove {
			cmd += " --dangerously-skip-permissions"
		}
	case AgentCodex:
		if a.autoApprove {
			cmd += " --full-auto"
		}
	case AgentGemini:
		if a.autoApprove {
			cmd += " --yolo"
		}
	case AgentOpencode:
		cmd += " run"
	}

	return fmt.Sprintf("%s \"$(cat %q)\"; st=$?; rm -f %q; echo $st > %q; exit $st",
		cmd, promptFile, promptFile, exitFile), nil
}
