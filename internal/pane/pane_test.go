package pane

import (
	"os/exec"
	"testing"
	"time"

	"github.com/Iron-Ham/overseer/internal/config"
)

func TestSessionNameFor(t *testing.T) {
	tests := []struct {
		taskID string
		want   string
	}{
		{taskID: "task-1", want: "overseer-task-1"},
		{taskID: "fix.auth:bug", want: "overseer-fix-auth-bug"},
		{taskID: "a b/c", want: "overseer-a-b-c"},
		{taskID: "", want: "overseer-task"},
	}

	for _, tt := range tests {
		if got := SessionNameFor(tt.taskID); got != tt.want {
			t.Errorf("SessionNameFor(%q) = %q, want %q", tt.taskID, got, tt.want)
		}
	}
}

func TestSpecialKey(t *testing.T) {
	tests := []struct {
		r    rune
		want string
	}{
		{'\n', "Enter"},
		{'\r', "Enter"},
		{'\t', "Tab"},
		{'\x7f', "BSpace"},
		{'\x1b', "Escape"},
		{' ', "Space"},
		{'\x03', "C-c"},
		{'a', "a"},
		{'Z', "Z"},
	}

	for _, tt := range tests {
		if got := specialKey(tt.r); got != tt.want {
			t.Errorf("specialKey(%q) = %q, want %q", tt.r, got, tt.want)
		}
	}
}

func TestIsSessionNotFound(t *testing.T) {
	tests := []struct {
		output string
		want   bool
	}{
		{output: "session not found: overseer-x", want: true},
		{output: "can't find session: overseer-x", want: true},
		{output: "no server running on /tmp/tmux-0/default", want: true},
		{output: "Session Not Found", want: true},
		{output: "permission denied", want: false},
		{output: "", want: false},
	}

	for _, tt := range tests {
		if got := isSessionNotFound(tt.output); got != tt.want {
			t.Errorf("isSessionNotFound(%q) = %v, want %v", tt.output, got, tt.want)
		}
	}
}

func TestAttachCommand(t *testing.T) {
	p := New("task-1", t.TempDir(), config.Default().Agent, nil)
	if got := p.AttachCommand(); got != "tmux attach-session -t overseer-task-1" {
		t.Errorf("AttachCommand() = %q", got)
	}
}

func TestPaneNotStarted(t *testing.T) {
	p := New("task-2", t.TempDir(), config.Default().Agent, nil)
	if p.Running() {
		t.Error("unstarted pane reports running")
	}
	if p.Exited() != nil {
		t.Error("unstarted pane has non-nil exit channel")
	}
	if err := p.Stop(); err != nil {
		t.Errorf("Stop on unstarted pane: %v", err)
	}
}

func TestPaneLifecycle(t *testing.T) {
	requireTmux(t)

	dir := t.TempDir()
	p := New("lifecycle", dir, config.Default().Agent, nil)
	t.Cleanup(func() { _ = p.Stop() })

	agent, err := ForKind("claude", true)
	if err != nil {
		t.Fatalf("ForKind: %v", err)
	}
	// The agent binary is unlikely to exist in CI; the session still
	// starts, runs the failing command, and exits on its own.
	if err := p.Start(agent, "do nothing"); err != nil {
		t.Skipf("tmux cannot create sessions here: %v", err)
	}

	if err := p.Start(agent, "again"); err == nil {
		t.Error("second Start should fail")
	}

	select {
	case <-p.Exited():
	case <-time.After(10 * time.Second):
		// Agent binary exists and kept the session alive; stop it.
		if err := p.Stop(); err != nil {
			t.Fatalf("Stop: %v", err)
		}
	}

	if SessionExists(p.SessionName()) {
		_ = p.Stop()
	}
	if err := p.Stop(); err != nil {
		t.Errorf("repeated Stop: %v", err)
	}
}

func TestPaneCaptureAfterExit(t *testing.T) {
	requireTmux(t)

	p := New("capture-gone", t.TempDir(), config.Default().Agent, nil)
	if _, err := p.Capture(); err == nil {
		t.Error("Capture on missing session should fail")
	}
}

func requireTmux(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tmux"); err != nil {
		t.Skip("tmux not installed")
	}
}
