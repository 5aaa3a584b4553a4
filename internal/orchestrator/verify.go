package orchestrator

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// maxVerifyOutput caps how much test output is kept for prompts and
// persistence.
const maxVerifyOutput = 16 * 1024

// Verifier runs a task's test command inside its worktree.
type Verifier interface {
	Run(ctx context.Context, dir, command string) (passed bool, output string, err error)
}

// CommandVerifier runs test commands through the shell.
type CommandVerifier struct {
	// Timeout bounds one verification run; zero means no limit beyond
	// the caller's context.
	Timeout time.Duration
}

// Run executes the command in dir and reports whether it exited zero.
// A non-zero exit is a test failure, not an error; err is reserved for
// problems running the command at all.
func (v *CommandVerifier) Run(ctx context.Context, dir, command string) (bool, string, error) {
	if v.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	output := tail(string(out), maxVerifyOutput)

	if err == nil {
		return true, output, nil
	}
	if _, ok := err.(*exec.ExitError); ok {
		if ctx.Err() != nil {
			return false, output + "\n(verification timed out)", nil
		}
		return false, output, nil
	}
	return false, output, err
}

// tail keeps the last n bytes of s; failures live at the end of test
// output.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
