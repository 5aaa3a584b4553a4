// Package prompt builds the instructions handed to sub-agents. Prompts
// adapt to the task: simple tasks get a short brief, complex ones also
// carry the repository tree and the sibling tasks they must coexist
// with.
package prompt

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/overseer/internal/detect"
	"github.com/Iron-Ham/overseer/internal/errors"
	"github.com/Iron-Ham/overseer/internal/pane"
	"github.com/Iron-Ham/overseer/internal/scanner"
	"github.com/Iron-Ham/overseer/internal/session"
)

// extendedContextThreshold is the description length above which a task
// is considered complex enough to warrant the extended context sections.
const extendedContextThreshold = 200

// maxInstructionBytes caps how much of a project instruction file is
// inlined into the prompt.
const maxInstructionBytes = 4000

// Context carries everything a task prompt is built from.
type Context struct {
	Task    *session.Task
	Request string
	Repo    *scanner.Context
	// Siblings are the other tasks in the same session, used to warn the
	// agent away from files owned by parallel work.
	Siblings []*session.Task
	// Hint selects the completion protocol written into the prompt.
	Hint   pane.CompletionHint
	Marker string
}

// Builder builds sub-agent prompts.
type Builder struct{}

// NewBuilder creates a prompt builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build generates the initial prompt for a task.
func (b *Builder) Build(ctx *Context) (string, error) {
	if err := b.validate(ctx); err != nil {
		return "", err
	}

	var sb strings.Builder

	fmt.Fprintf(&sb, "# Task: %s\n\n", ctx.Task.Title)
	if ctx.Request != "" {
		fmt.Fprintf(&sb, "## Part of: %s\n\n", firstLine(ctx.Request))
	}

	sb.WriteString("## Your Task\n\n")
	sb.WriteString(ctx.Task.Description)
	sb.WriteString("\n\n")

	if ctx.Repo != nil && ctx.Repo.Instructions != "" {
		sb.WriteString("## Project Rules\n\n")
		sb.WriteString(truncate(ctx.Repo.Instructions, maxInstructionBytes))
		sb.WriteString("\n\n")
	}

	if b.needsExtendedContext(ctx.Task) {
		b.writeExtendedContext(&sb, ctx)
	}

	sb.WriteString("## Guidelines\n\n")
	sb.WriteString("- Work only inside this directory; it is a dedicated git worktree on your own branch\n")
	sb.WriteString("- Focus only on this specific task\n")
	if ctx.Repo != nil && ctx.Repo.TestCommand != "" {
		fmt.Fprintf(&sb, "- Verify your work with `%s` before finishing\n", ctx.Repo.TestCommand)
	}
	sb.WriteString("- Commit your changes before signaling completion\n\n")

	b.writeCompletionProtocol(&sb, ctx)

	return sb.String(), nil
}

// BuildRetry generates the failure context appended to a task's full
// prompt when it is relaunched after a failed test verification.
func (b *Builder) BuildRetry(task *session.Task, testCommand, failureOutput string, attempt int) string {
	var sb strings.Builder
	sb.WriteString("## Previous Attempt Failed\n\n")
	fmt.Fprintf(&sb, "A previous attempt at this task failed test verification (attempt %d).\n\n", attempt)
	if testCommand != "" {
		fmt.Fprintf(&sb, "Command: `%s`\n\n", testCommand)
	}
	if failureOutput != "" {
		sb.WriteString("Failure output:\n```\n")
		sb.WriteString(truncate(failureOutput, 4000))
		sb.WriteString("\n```\n\n")
	}
	sb.WriteString("The worktree already contains that attempt's commits. Fix the failures, commit, and follow the completion protocol above.\n")
	return sb.String()
}

// BuildConflictResolution generates the instructions sent to an agent
// whose branch could not absorb another branch's commits cleanly.
func (b *Builder) BuildConflictResolution(branch, incoming string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Merging %s into %s produced conflicts that must be resolved by hand.\n\n", incoming, branch)
	fmt.Fprintf(&sb, "Run `git merge %s`, resolve every conflict, run the tests, commit the resolution, and signal completion again.\n", incoming)
	return sb.String()
}

func (b *Builder) validate(ctx *Context) error {
	if ctx == nil || ctx.Task == nil {
		return errors.NewTaskError("prompt context requires a task", nil)
	}
	if ctx.Task.Title == "" {
		return errors.NewTaskError("task title is required", nil).WithTaskID(ctx.Task.ID)
	}
	if ctx.Task.Description == "" {
		return errors.NewTaskError("task description is required", nil).WithTaskID(ctx.Task.ID)
	}
	return nil
}

// needsExtendedContext reports whether a task is complex enough to carry
// the repository tree and sibling sections.
func (b *Builder) needsExtendedContext(task *session.Task) bool {
	return len(task.Description) > extendedContextThreshold || len(task.DependsOn) > 0
}

func (b *Builder) writeExtendedContext(sb *strings.Builder, ctx *Context) {
	if ctx.Repo != nil {
		if tree := ctx.Repo.TreeSummary(); tree != "" {
			sb.WriteString("## Repository Layout\n\n```\n")
			sb.WriteString(tree)
			sb.WriteString("```\n\n")
		}
	}

	if len(ctx.Siblings) > 0 {
		sb.WriteString("## Parallel Tasks\n\n")
		sb.WriteString("Other agents are working on these tasks in separate worktrees. Avoid taking over their scope:\n")
		for _, sibling := range ctx.Siblings {
			if sibling.ID == ctx.Task.ID {
				continue
			}
			fmt.Fprintf(sb, "- %s: %s\n", sibling.ID, sibling.Title)
		}
		sb.WriteString("\n")
	}

	if len(ctx.Task.DependsOn) > 0 {
		sb.WriteString("## Completed Dependencies\n\n")
		sb.WriteString("The work from these tasks is already merged into your branch:\n")
		for _, dep := range ctx.Task.DependsOn {
			fmt.Fprintf(sb, "- %s\n", dep)
		}
		sb.WriteString("\n")
	}
}

// writeCompletionProtocol writes how the agent must signal that it is
// done. Agents that reliably write files get the sentinel protocol;
// the rest print a marker line.
func (b *Builder) writeCompletionProtocol(sb *strings.Builder, ctx *Context) {
	sb.WriteString("## Completion Protocol - FINAL MANDATORY STEP\n\n")

	if ctx.Hint == pane.HintOutputMarker && ctx.Marker != "" {
		sb.WriteString("When you have finished your work and committed your changes, ")
		fmt.Fprintf(sb, "print exactly this line on its own, with nothing else on it:\n\n%s\n\n", ctx.Marker)
		sb.WriteString("Do not print that line before the work is committed.\n")
		return
	}

	sb.WriteString("Your work is NOT recorded until you write the completion file. ")
	sb.WriteString("Write it automatically as soon as your changes are committed; do not wait for confirmation.\n\n")
	fmt.Fprintf(sb, "1. Create `%s` at the ROOT of this worktree\n", detect.DoneFileName)
	sb.WriteString("2. Use this JSON structure:\n")
	sb.WriteString("```json\n{\n")
	fmt.Fprintf(sb, "  %q: %q,\n", "task_id", ctx.Task.ID)
	sb.WriteString("  \"status\": \"complete\",\n")
	sb.WriteString("  \"summary\": \"Brief description of what you accomplished\",\n")
	sb.WriteString("  \"files_modified\": [\"files\", \"you\", \"changed\"],\n")
	sb.WriteString("  \"notes\": \"Anything the next task should know\"\n")
	sb.WriteString("}\n```\n\n")
	sb.WriteString("3. Use status \"blocked\" or \"failed\" if you could not finish, and explain why in the summary\n")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return truncate(strings.TrimSpace(s), 120)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
