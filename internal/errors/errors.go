// Package errors provides centralized error definitions and error handling
// utilities for the Overseer codebase. It defines domain-specific errors,
// sentinel errors, error constructors with context wrapping, and error
// classification helpers.
//
// # Error Types
//
// Domain-specific errors represent errors from specific subsystems:
//   - SessionError: errors related to session management and persistence
//   - TaskError: errors related to a single task's lifecycle
//   - AgentError: errors related to sub-agent processes and their panes
//   - GitError: errors related to git operations (worktrees, branches, merges)
//   - PlannerError: errors from the LLM planner boundary
//
// # Usage
//
// Creating errors:
//
//	// Domain-specific error
//	err := errors.NewSessionError("failed to load session", errors.ErrSessionNotFound)
//
//	// With context wrapping
//	err := errors.NewGitError("worktree add failed", baseErr).WithBranch("agent/fix-auth")
//
// Checking errors:
//
//	// Check for specific sentinel errors
//	if errors.Is(err, errors.ErrSessionNotFound) { ... }
//
//	// Check for error types
//	var gitErr *errors.GitError
//	if errors.As(err, &gitErr) { ... }
//
//	// Use classification helpers
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Session-related sentinel errors.
var (
	// ErrSessionNotFound indicates that a session could not be found.
	ErrSessionNotFound = New("session not found")
	// ErrSessionCorrupted indicates that persisted session data failed to parse.
	ErrSessionCorrupted = New("session data corrupted")
	// ErrSessionNotActive indicates an operation that requires an active session.
	ErrSessionNotActive = New("session is not active")
)

// Task-related sentinel errors.
var (
	// ErrTaskNotFound indicates that a task could not be found.
	ErrTaskNotFound = New("task not found")
	// ErrDependencyCycle indicates a circular dependency in the task graph.
	ErrDependencyCycle = New("dependency cycle detected")
	// ErrRetriesExhausted indicates a task has used all of its retry attempts.
	ErrRetriesExhausted = New("retry attempts exhausted")
)

// Sub-agent related sentinel errors.
var (
	// ErrAgentNotRunning indicates the sub-agent's pane is no longer alive.
	ErrAgentNotRunning = New("sub-agent not running")
	// ErrAgentStartFailed indicates a sub-agent failed to launch.
	ErrAgentStartFailed = New("sub-agent failed to start")
	// ErrUnknownAgentKind indicates an unsupported agent kind was requested.
	ErrUnknownAgentKind = New("unknown agent kind")
)

// Planner-related sentinel errors.
var (
	// ErrMalformedResponse indicates the planner returned unparseable
	// structured output after all local re-asks.
	ErrMalformedResponse = New("malformed planner response")
	// ErrPlannerExhausted indicates the planner boundary gave up after
	// exponential backoff.
	ErrPlannerExhausted = New("planner retries exhausted")
)

// Worktree-related sentinel errors.
var (
	// ErrWorktreeExists indicates a worktree already exists at the target path.
	ErrWorktreeExists = New("worktree already exists")
	// ErrWorktreeMissing indicates a persisted worktree path no longer exists.
	ErrWorktreeMissing = New("worktree path missing")
	// ErrMergeConflict indicates a merge could not be completed cleanly.
	ErrMergeConflict = New("merge conflict")
)

// SessionError represents an error related to session management.
type SessionError struct {
	Message   string
	SessionID string
	Err       error
}

func (e *SessionError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("session %s: %s", e.SessionID, e.Message)
	}
	return fmt.Sprintf("session: %s", e.Message)
}

func (e *SessionError) Unwrap() error { return e.Err }

// NewSessionError creates a new SessionError wrapping the given error.
func NewSessionError(message string, err error) *SessionError {
	return &SessionError{Message: message, Err: err}
}

// WithSessionID attaches a session ID for context.
func (e *SessionError) WithSessionID(id string) *SessionError {
	e.SessionID = id
	return e
}

// TaskError represents an error related to a single task's lifecycle.
type TaskError struct {
	Message string
	TaskID  string
	Err     error
}

func (e *TaskError) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("task %s: %s", e.TaskID, e.Message)
	}
	return fmt.Sprintf("task: %s", e.Message)
}

func (e *TaskError) Unwrap() error { return e.Err }

// NewTaskError creates a new TaskError wrapping the given error.
func NewTaskError(message string, err error) *TaskError {
	return &TaskError{Message: message, Err: err}
}

// WithTaskID attaches a task ID for context.
func (e *TaskError) WithTaskID(id string) *TaskError {
	e.TaskID = id
	return e
}

// AgentError represents an error from a sub-agent process or its pane.
type AgentError struct {
	Message string
	PaneID  string
	Output  string
	Err     error
}

func (e *AgentError) Error() string {
	if e.PaneID != "" {
		return fmt.Sprintf("agent pane %s: %s", e.PaneID, e.Message)
	}
	return fmt.Sprintf("agent: %s", e.Message)
}

func (e *AgentError) Unwrap() error { return e.Err }

// NewAgentError creates a new AgentError wrapping the given error.
func NewAgentError(message string, err error) *AgentError {
	return &AgentError{Message: message, Err: err}
}

// WithPaneID attaches a tmux pane ID for context.
func (e *AgentError) WithPaneID(id string) *AgentError {
	e.PaneID = id
	return e
}

// WithOutput attaches captured command output for context.
func (e *AgentError) WithOutput(output string) *AgentError {
	e.Output = output
	return e
}

// GitError represents an error from a git or gh operation.
type GitError struct {
	Message string
	Branch  string
	Output  string
	Err     error
}

func (e *GitError) Error() string {
	if e.Branch != "" {
		return fmt.Sprintf("git (branch %s): %s", e.Branch, e.Message)
	}
	return fmt.Sprintf("git: %s", e.Message)
}

func (e *GitError) Unwrap() error { return e.Err }

// NewGitError creates a new GitError wrapping the given error.
func NewGitError(message string, err error) *GitError {
	return &GitError{Message: message, Err: err}
}

// WithBranch attaches the branch name for context.
func (e *GitError) WithBranch(branch string) *GitError {
	e.Branch = branch
	return e
}

// WithOutput attaches command output for diagnostics.
func (e *GitError) WithOutput(output string) *GitError {
	e.Output = output
	return e
}

// PlannerError represents an error from the LLM planner boundary.
type PlannerError struct {
	Message    string
	StatusCode int
	Err        error
}

func (e *PlannerError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("planner (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("planner: %s", e.Message)
}

func (e *PlannerError) Unwrap() error { return e.Err }

// NewPlannerError creates a new PlannerError wrapping the given error.
func NewPlannerError(message string, err error) *PlannerError {
	return &PlannerError{Message: message, Err: err}
}

// WithStatusCode attaches the HTTP status code from the API response.
func (e *PlannerError) WithStatusCode(code int) *PlannerError {
	e.StatusCode = code
	return e
}

// retryableMarkers are substrings that identify transient failures in raw
// error text from subprocesses and HTTP clients.
var retryableMarkers = []string{
	"timeout",
	"timed out",
	"connection refused",
	"connection reset",
	"rate limit",
	"temporarily",
	"overloaded",
	"503",
	"429",
}

// IsRetryable reports whether an error represents a transient condition that
// may succeed on retry. Planner errors with rate-limit or server-error status
// codes are retryable; so are errors whose text indicates a transient network
// condition.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	for e := err; e != nil; e = Unwrap(e) {
		if plannerErr, ok := e.(*PlannerError); ok && plannerErr.StatusCode != 0 {
			return plannerErr.StatusCode == 429 || plannerErr.StatusCode >= 500
		}
		msg := strings.ToLower(e.Error())
		for _, marker := range retryableMarkers {
			if strings.Contains(msg, marker) {
				return true
			}
		}
	}
	return false
}

// IsUserFacing reports whether an error is safe and useful to display to the
// user. Domain errors carry curated messages; raw errors are considered
// internal.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	var (
		sessionErr *SessionError
		taskErr    *TaskError
		agentErr   *AgentError
		gitErr     *GitError
		plannerErr *PlannerError
	)
	return As(err, &sessionErr) ||
		As(err, &taskErr) ||
		As(err, &agentErr) ||
		As(err, &gitErr) ||
		As(err, &plannerErr)
}
