package planner

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/Iron-Ham/overseer/internal/errors"
)

var fenceRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// extractJSON pulls the JSON payload out of a model response. Models
// sometimes wrap structured output in markdown fences or surround it
// with prose; try the raw text first, then any fenced block, then the
// outermost brace or bracket span.
func extractJSON(text string) string {
	trimmed := strings.TrimSpace(text)
	if json.Valid([]byte(trimmed)) {
		return trimmed
	}

	for _, match := range fenceRegex.FindAllStringSubmatch(text, -1) {
		candidate := strings.TrimSpace(match[1])
		if json.Valid([]byte(candidate)) {
			return candidate
		}
	}

	for _, pair := range [][2]byte{{'{', '}'}, {'[', ']'}} {
		start := strings.IndexByte(trimmed, pair[0])
		end := strings.LastIndexByte(trimmed, pair[1])
		if start >= 0 && end > start {
			candidate := trimmed[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate
			}
		}
	}
	return ""
}

// parsePlan decodes and validates a decomposition response.
func parsePlan(text string) (*Plan, error) {
	payload := extractJSON(text)
	if payload == "" {
		return nil, errors.NewPlannerError("no JSON found in response", errors.ErrMalformedResponse)
	}

	var plan Plan
	if err := json.Unmarshal([]byte(payload), &plan); err != nil {
		// Some responses are a bare task array.
		var tasks []PlannedTask
		if arrErr := json.Unmarshal([]byte(payload), &tasks); arrErr == nil {
			plan = Plan{Tasks: tasks}
		} else {
			return nil, errors.NewPlannerError(fmt.Sprintf("decode plan: %v", err), errors.ErrMalformedResponse)
		}
	}

	if len(plan.Tasks) == 0 {
		return nil, errors.NewPlannerError("plan has no tasks", errors.ErrMalformedResponse)
	}

	seen := make(map[string]bool, len(plan.Tasks))
	for i := range plan.Tasks {
		task := &plan.Tasks[i]
		if task.ID == "" {
			task.ID = fmt.Sprintf("task-%d", i+1)
		}
		if seen[task.ID] {
			return nil, errors.NewPlannerError(fmt.Sprintf("duplicate task id %q", task.ID), errors.ErrMalformedResponse)
		}
		seen[task.ID] = true
		if task.Title == "" {
			return nil, errors.NewPlannerError(fmt.Sprintf("task %q has no title", task.ID), errors.ErrMalformedResponse)
		}
		if task.Description == "" {
			task.Description = task.Title
		}
	}
	for _, task := range plan.Tasks {
		for _, dep := range task.Dependencies {
			if !seen[dep] {
				return nil, errors.NewPlannerError(
					fmt.Sprintf("task %q depends on unknown task %q", task.ID, dep),
					errors.ErrMalformedResponse)
			}
		}
	}
	return &plan, nil
}

// parseStringList decodes a JSON array of strings from a response.
func parseStringList(text string) ([]string, error) {
	payload := extractJSON(text)
	if payload == "" {
		return nil, errors.NewPlannerError("no JSON found in response", errors.ErrMalformedResponse)
	}
	var items []string
	if err := json.Unmarshal([]byte(payload), &items); err != nil {
		return nil, errors.NewPlannerError(fmt.Sprintf("decode string list: %v", err), errors.ErrMalformedResponse)
	}
	return items, nil
}

// parsePRContent decodes a PR title/body response.
func parsePRContent(text string) (*PRContent, error) {
	payload := extractJSON(text)
	if payload == "" {
		return nil, errors.NewPlannerError("no JSON found in response", errors.ErrMalformedResponse)
	}
	var pr PRContent
	if err := json.Unmarshal([]byte(payload), &pr); err != nil {
		return nil, errors.NewPlannerError(fmt.Sprintf("decode pr content: %v", err), errors.ErrMalformedResponse)
	}
	if pr.Title == "" {
		return nil, errors.NewPlannerError("pr content has no title", errors.ErrMalformedResponse)
	}
	return &pr, nil
}
