package session

import (
	"time"
)

// TaskStatus represents the lifecycle state of a single task.
type TaskStatus string

const (
	// TaskPending means the task is waiting on unmet dependencies.
	TaskPending TaskStatus = "pending"
	// TaskReady means all dependencies are satisfied and the task can be
	// dispatched as soon as a parallelism slot is free.
	TaskReady TaskStatus = "ready"
	// TaskRunning means a sub-agent is actively working on the task.
	TaskRunning TaskStatus = "running"
	// TaskVerifying means the sub-agent finished and the task's test command
	// is being run.
	TaskVerifying TaskStatus = "verifying"
	// TaskCompleted means the task finished and its tests passed.
	TaskCompleted TaskStatus = "completed"
	// TaskFailed means the task failed permanently (retries exhausted or a
	// non-retryable error).
	TaskFailed TaskStatus = "failed"
	// TaskCancelled means the task was cancelled by an interrupt.
	TaskCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether the status is a final state.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	}
	return false
}

// CompletionSource records which detection layer observed a sub-agent finish.
type CompletionSource string

const (
	// CompletionSignal is the explicit done-file written by the agent.
	CompletionSignal CompletionSource = "signal"
	// CompletionProcessExit is the agent process exiting on its own.
	CompletionProcessExit CompletionSource = "process_exit"
	// CompletionOutputMarker is the completion marker found in pane output.
	CompletionOutputMarker CompletionSource = "output_marker"
	// CompletionIdleTimeout is the idle-timeout confirmation fallback.
	CompletionIdleTimeout CompletionSource = "idle_timeout"
)

// TestVerification records one test run against a task's worktree.
type TestVerification struct {
	Command  string    `json:"command"`
	Passed   bool      `json:"passed"`
	Output   string    `json:"output,omitempty"`
	Attempt  int       `json:"attempt"`
	RanAt    time.Time `json:"ran_at"`
	Duration string    `json:"duration,omitempty"`
}

// PullRequestRef points at the integration request created for a task.
type PullRequestRef struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
}

// Task is one unit of the decomposed request. Tasks form a directed acyclic
// graph via DependsOn; a task becomes ready only when every dependency has
// completed.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DependsOn   []string   `json:"depends_on,omitempty"`
	Status      TaskStatus `json:"status"`

	// Provisioned workspace, populated when the task is dispatched.
	BranchName   string `json:"branch_name,omitempty"`
	WorktreePath string `json:"worktree_path,omitempty"`
	PaneID       string `json:"pane_id,omitempty"`

	// Outcome tracking.
	RetryCount       int                `json:"retry_count"`
	Verifications    []TestVerification `json:"verifications,omitempty"`
	PullRequest      *PullRequestRef    `json:"pull_request,omitempty"`
	CompletionSource CompletionSource   `json:"completion_source,omitempty"`
	FailureReason    string             `json:"failure_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTask creates a pending task with the given ID, title, and dependencies.
func NewTask(id, title, description string, dependsOn []string) *Task {
	now := time.Now()
	return &Task{
		ID:          id,
		Title:       title,
		Description: description,
		DependsOn:   dependsOn,
		Status:      TaskPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// SetStatus transitions the task and bumps its update timestamp.
func (t *Task) SetStatus(status TaskStatus) {
	t.Status = status
	t.UpdatedAt = time.Now()
}

// LastVerification returns the most recent test run, or nil if none.
func (t *Task) LastVerification() *TestVerification {
	if len(t.Verifications) == 0 {
		return nil
	}
	return &t.Verifications[len(t.Verifications)-1]
}

// RecordVerification appends a test run result.
func (t *Task) RecordVerification(v TestVerification) {
	v.Attempt = len(t.Verifications) + 1
	t.Verifications = append(t.Verifications, v)
	t.UpdatedAt = time.Now()
}
