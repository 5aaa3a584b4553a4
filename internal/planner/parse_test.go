package planner

import (
	"testing"

	"github.com/Iron-Ham/overseer/internal/errors"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "bare object",
			text: `{"a": 1}`,
			want: `{"a": 1}`,
		},
		{
			name: "fenced json",
			text: "Here is the plan:\n```json\n{\"a\": 1}\n```\nDone.",
			want: `{"a": 1}`,
		},
		{
			name: "fence without language tag",
			text: "```\n[1, 2]\n```",
			want: `[1, 2]`,
		},
		{
			name: "object embedded in prose",
			text: `Sure! The answer is {"a": 1} as requested.`,
			want: `{"a": 1}`,
		},
		{
			name: "array embedded in prose",
			text: `The affected tasks are ["task-1"] only.`,
			want: `["task-1"]`,
		},
		{
			name: "no json at all",
			text: "I could not produce a plan.",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.text); got != tt.want {
				t.Errorf("extractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParsePlan(t *testing.T) {
	plan, err := parsePlan(`{
		"summary": "add caching",
		"parallelism": 2,
		"tasks": [
			{"id": "task-1", "title": "Build cache", "description": "LRU cache"},
			{"id": "task-2", "title": "Wire cache", "dependencies": ["task-1"]}
		]
	}`)
	if err != nil {
		t.Fatalf("parsePlan: %v", err)
	}
	if len(plan.Tasks) != 2 || plan.Parallelism != 2 {
		t.Errorf("plan = %+v", plan)
	}
	// Missing description falls back to the title.
	if plan.Tasks[1].Description != "Wire cache" {
		t.Errorf("description fallback = %q", plan.Tasks[1].Description)
	}
}

func TestParsePlanBareArray(t *testing.T) {
	plan, err := parsePlan(`[{"id": "task-1", "title": "Only task"}]`)
	if err != nil {
		t.Fatalf("parsePlan: %v", err)
	}
	if len(plan.Tasks) != 1 {
		t.Errorf("tasks = %d", len(plan.Tasks))
	}
}

func TestParsePlanAssignsMissingIDs(t *testing.T) {
	plan, err := parsePlan(`{"tasks": [{"title": "A"}, {"title": "B"}]}`)
	if err != nil {
		t.Fatalf("parsePlan: %v", err)
	}
	if plan.Tasks[0].ID != "task-1" || plan.Tasks[1].ID != "task-2" {
		t.Errorf("ids = %q, %q", plan.Tasks[0].ID, plan.Tasks[1].ID)
	}
}

func TestParsePlanRejections(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "no json", text: "nothing structured here"},
		{name: "empty tasks", text: `{"tasks": []}`},
		{name: "duplicate ids", text: `{"tasks": [{"id":"a","title":"x"},{"id":"a","title":"y"}]}`},
		{name: "missing title", text: `{"tasks": [{"id":"a"}]}`},
		{name: "unknown dependency", text: `{"tasks": [{"id":"a","title":"x","dependencies":["ghost"]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parsePlan(tt.text)
			if !errors.Is(err, errors.ErrMalformedResponse) {
				t.Errorf("err = %v, want ErrMalformedResponse", err)
			}
		})
	}
}

func TestParseStringList(t *testing.T) {
	ids, err := parseStringList("```json\n[\"task-1\", \"task-2\"]\n```")
	if err != nil {
		t.Fatalf("parseStringList: %v", err)
	}
	if len(ids) != 2 || ids[0] != "task-1" {
		t.Errorf("ids = %v", ids)
	}

	if _, err := parseStringList("no list"); !errors.Is(err, errors.ErrMalformedResponse) {
		t.Errorf("err = %v", err)
	}
}

func TestParsePRContent(t *testing.T) {
	pr, err := parsePRContent(`{"title": "Add cache", "body": "Adds an LRU cache."}`)
	if err != nil {
		t.Fatalf("parsePRContent: %v", err)
	}
	if pr.Title != "Add cache" {
		t.Errorf("title = %q", pr.Title)
	}

	if _, err := parsePRContent(`{"body": "no title"}`); !errors.Is(err, errors.ErrMalformedResponse) {
		t.Errorf("err = %v", err)
	}
}

func TestExtractWord(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{text: "approval", want: "approval"},
		{text: "  Retry.\n", want: "Retry"},
		{text: `"scope_change"`, want: "scope_change"},
		{text: "", want: ""},
	}
	for _, tt := range tests {
		if got := extractWord(tt.text); got != tt.want {
			t.Errorf("extractWord(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}
