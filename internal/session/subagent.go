package session

import (
	"time"

	"github.com/google/uuid"
)

// SubAgentStatus represents the lifecycle state of a live sub-agent.
type SubAgentStatus string

const (
	SubAgentStarting  SubAgentStatus = "starting"
	SubAgentRunning   SubAgentStatus = "running"
	SubAgentCompleted SubAgentStatus = "completed"
	SubAgentFailed    SubAgentStatus = "failed"
)

// SubAgent is the live execution of one task: the coding agent driving it
// and the pane it runs in. A task has at most one live sub-agent at a time.
// Sub-agents are runtime-only state: they are created when a ready task
// launches, destroyed when the task leaves the running state, and never
// persisted — a restart recreates them from the task graph.
type SubAgent struct {
	ID          string
	TaskID      string
	AgentKind   string
	PaneID      string
	Status      SubAgentStatus
	AutoApprove bool
	StartedAt   time.Time
}

// NewSubAgent creates a starting sub-agent for the task.
func NewSubAgent(taskID, agentKind string, autoApprove bool) *SubAgent {
	return &SubAgent{
		ID:          uuid.NewString(),
		TaskID:      taskID,
		AgentKind:   agentKind,
		Status:      SubAgentStarting,
		AutoApprove: autoApprove,
		StartedAt:   time.Now(),
	}
}
