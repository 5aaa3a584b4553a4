package worktree

import (
	"bytes"
	"os/exec"
	"strconv"
	"strings"
	"text/template"

	"github.com/Iron-Ham/overseer/internal/errors"
)

// PullRequest identifies an integration request created for a task branch.
type PullRequest struct {
	Number int
	URL    string
}

// PROptions contains options for PR creation.
type PROptions struct {
	Title  string
	Body   string
	Branch string
	Base   string
	Draft  bool
	Labels []string
}

// CreatePR creates a GitHub PR for the branch using the gh CLI and returns
// the parsed PR reference. The command runs in the worktree so gh resolves
// the right repository.
func CreatePR(worktreePath string, opts PROptions) (*PullRequest, error) {
	args := []string{"pr", "create",
		"--title", opts.Title,
		"--body", opts.Body,
		"--head", opts.Branch,
	}
	if opts.Base != "" {
		args = append(args, "--base", opts.Base)
	}
	if opts.Draft {
		args = append(args, "--draft")
	}
	for _, label := range opts.Labels {
		args = append(args, "--label", label)
	}

	cmd := exec.Command("gh", args...)
	cmd.Dir = worktreePath

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, errors.NewGitError("failed to create PR", err).
			WithBranch(opts.Branch).
			WithOutput(string(output))
	}

	url := lastNonEmptyLine(string(output))
	return &PullRequest{
		Number: prNumberFromURL(url),
		URL:    url,
	}, nil
}

// prNumberFromURL extracts the PR number from a github.com/.../pull/N URL.
// Returns 0 if the URL does not end in a number.
func prNumberFromURL(url string) int {
	idx := strings.LastIndex(url, "/")
	if idx < 0 {
		return 0
	}
	n, err := strconv.Atoi(url[idx+1:])
	if err != nil {
		return 0
	}
	return n
}

// lastNonEmptyLine returns the final non-empty line of command output.
// gh prints progress text before the PR URL.
func lastNonEmptyLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// prBodyTemplate renders the default PR body from task details.
const prBodyTemplate = `## Summary

{{.Description}}

## Verification

{{if .TestCommand}}Tests run with ` + "`{{.TestCommand}}`" + `: {{if .TestsPassed}}passing{{else}}not passing{{end}}.{{else}}No test command configured for this repository.{{end}}
{{if .DependsOn}}
## Depends on

{{range .DependsOn}}- {{.}}
{{end}}{{end}}`

// PRBodyContext holds the fields the default PR body template renders.
type PRBodyContext struct {
	Description string
	TestCommand string
	TestsPassed bool
	DependsOn   []string
}

// BuildPRBody renders the default PR body for a completed task.
func BuildPRBody(ctx PRBodyContext) (string, error) {
	tmpl, err := template.New("prbody").Parse(prBodyTemplate)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()) + "\n", nil
}
