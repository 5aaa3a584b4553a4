// Package session defines the persistent data model for Overseer sessions
// and the file-backed store that makes them crash-safe. A session captures a
// single user request, its decomposed task graph, the worktrees provisioned
// for those tasks, and the conversation that produced the plan.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents the lifecycle state of a session.
type SessionStatus string

const (
	// StatusQueued means the session is waiting behind another active session.
	StatusQueued SessionStatus = "queued"
	// StatusPlanning means the request is being decomposed into tasks.
	StatusPlanning SessionStatus = "planning"
	// StatusAwaitingApproval means the plan is waiting for user approval.
	StatusAwaitingApproval SessionStatus = "awaiting_approval"
	// StatusRunning means sub-agents are executing tasks.
	StatusRunning SessionStatus = "running"
	// StatusCompleted means every task reached a terminal state and cleanup ran.
	StatusCompleted SessionStatus = "completed"
	// StatusFailed means the session aborted before its tasks could finish.
	StatusFailed SessionStatus = "failed"
	// StatusInterrupted means the user cancelled the session.
	StatusInterrupted SessionStatus = "interrupted"
)

// IsTerminal reports whether the status is a final state.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusInterrupted:
		return true
	}
	return false
}

// MessageRole identifies the author of a conversation message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message is one entry in the session's planning conversation. The full
// history is persisted so a resumed session can continue the conversation
// where it left off.
type Message struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// WorktreeRef records a git worktree provisioned for this session so cleanup
// can find it even after a crash.
type WorktreeRef struct {
	BranchName string    `json:"branch_name"`
	Path       string    `json:"path"`
	TaskIDs    []string  `json:"task_ids"`
	CreatedAt  time.Time `json:"created_at"`
}

// Session is the unit of persistence: one user request and everything
// derived from it.
type Session struct {
	ID      string        `json:"id"`
	Request string        `json:"request"`
	Status  SessionStatus `json:"status"`

	// RepoPath is the git repository the session operates on.
	RepoPath string `json:"repo_path"`
	// BaseBranch is the branch task branches fork from and PRs target.
	BaseBranch string `json:"base_branch"`
	// AgentKind is the coding agent driving this session's sub-agents.
	AgentKind string `json:"agent_kind"`
	// DryRun plans without provisioning worktrees or launching agents.
	DryRun bool `json:"dry_run,omitempty"`

	Tasks     []*Task       `json:"tasks"`
	Worktrees []WorktreeRef `json:"worktrees,omitempty"`
	Messages  []Message     `json:"messages,omitempty"`

	// QueuePosition is 0 for the active session, 1+ for queued sessions.
	QueuePosition int `json:"queue_position"`

	// Usage accounting for the planner boundary.
	LLMCallCount    int   `json:"llm_call_count"`
	EstimatedTokens int64 `json:"estimated_tokens"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a queued session for the given request.
func New(request, repoPath, baseBranch, agentKind string) *Session {
	now := time.Now()
	return &Session{
		ID:         uuid.NewString(),
		Request:    request,
		Status:     StatusQueued,
		RepoPath:   repoPath,
		BaseBranch: baseBranch,
		AgentKind:  agentKind,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Touch bumps the session's update timestamp. Call after any mutation so
// persisted snapshots order correctly.
func (s *Session) Touch() {
	s.UpdatedAt = time.Now()
}

// SetStatus transitions the session and bumps its update timestamp.
func (s *Session) SetStatus(status SessionStatus) {
	s.Status = status
	s.Touch()
}

// Task returns the task with the given ID, or nil if absent.
func (s *Session) Task(id string) *Task {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// AddMessage appends a conversation message.
func (s *Session) AddMessage(role MessageRole, content string) {
	s.Messages = append(s.Messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	s.Touch()
}

// RecordLLMCall tracks one planner API call and its estimated token usage.
func (s *Session) RecordLLMCall(estimatedTokens int64) {
	s.LLMCallCount++
	s.EstimatedTokens += estimatedTokens
	s.Touch()
}

// AddWorktree records a provisioned worktree, merging task IDs if the branch
// is already tracked.
func (s *Session) AddWorktree(ref WorktreeRef) {
	for i := range s.Worktrees {
		if s.Worktrees[i].BranchName == ref.BranchName {
			s.Worktrees[i].TaskIDs = append(s.Worktrees[i].TaskIDs, ref.TaskIDs...)
			s.Touch()
			return
		}
	}
	s.Worktrees = append(s.Worktrees, ref)
	s.Touch()
}

// Summary returns a one-line human description of the session.
func (s *Session) Summary() string {
	done := 0
	for _, t := range s.Tasks {
		if t.Status == TaskCompleted {
			done++
		}
	}
	request := s.Request
	if len(request) > 60 {
		request = request[:57] + "..."
	}
	return fmt.Sprintf("%s [%s] %d/%d tasks: %s", s.ID[:8], s.Status, done, len(s.Tasks), request)
}
