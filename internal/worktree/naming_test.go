package worktree

import (
	"strings"
	"testing"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Fix the login bug", "fix-the-login-bug"},
		{"Add OAuth2 support!!", "add-oauth2-support"},
		{"  spaces   everywhere  ", "spaces-everywhere"},
		{"ALREADY-slugged", "already-slugged"},
		{"émoji ünicode", "moji-nicode"},
		{"", ""},
		{"!!!", ""},
		{"a very long title that should be truncated because branch names have limits somewhere", "a-very-long-title-that-should-be-truncat"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Slugify(tt.input); got != tt.want {
				t.Errorf("Slugify(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestBranchName(t *testing.T) {
	tests := []struct {
		name      string
		prefix    string
		taskID    string
		title     string
		includeID bool
		want      string
	}{
		{
			name:      "with id",
			prefix:    "agent",
			taskID:    "task-1",
			title:     "Fix login",
			includeID: true,
			want:      "agent/task-1-fix-login",
		},
		{
			name:      "without id",
			prefix:    "agent",
			taskID:    "task-1",
			title:     "Fix login",
			includeID: false,
			want:      "agent/fix-login",
		},
		{
			name:      "empty title falls back to id",
			prefix:    "agent",
			taskID:    "task-2",
			title:     "!!!",
			includeID: false,
			want:      "agent/task-2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BranchName(tt.prefix, tt.taskID, tt.title, tt.includeID)
			if got != tt.want {
				t.Errorf("BranchName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPRNumberFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want int
	}{
		{"https://github.com/Iron-Ham/overseer/pull/42", 42},
		{"https://github.com/Iron-Ham/overseer/pull/9000", 9000},
		{"not a url", 0},
		{"", 0},
	}

	for _, tt := range tests {
		if got := prNumberFromURL(tt.url); got != tt.want {
			t.Errorf("prNumberFromURL(%q) = %d, want %d", tt.url, got, tt.want)
		}
	}
}

func TestLastNonEmptyLine(t *testing.T) {
	output := "Creating pull request for agent/task-1 into main\n\nhttps://github.com/Iron-Ham/overseer/pull/7\n"
	want := "https://github.com/Iron-Ham/overseer/pull/7"
	if got := lastNonEmptyLine(output); got != want {
		t.Errorf("lastNonEmptyLine() = %q, want %q", got, want)
	}
}

func TestBuildPRBody(t *testing.T) {
	body, err := BuildPRBody(PRBodyContext{
		Description: "Fix the token refresh race.",
		TestCommand: "go test ./...",
		TestsPassed: true,
		DependsOn:   []string{"agent/task-1-fix-login"},
	})
	if err != nil {
		t.Fatalf("BuildPRBody() error = %v", err)
	}
	for _, want := range []string{"Fix the token refresh race.", "go test ./...", "passing", "agent/task-1-fix-login"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}
