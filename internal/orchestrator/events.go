package orchestrator

import (
	"time"

	"github.com/Iron-Ham/overseer/internal/detect"
)

// EventType identifies an orchestration event.
type EventType string

const (
	// EventSessionStart begins planning for the active session.
	EventSessionStart EventType = "session_start"
	// EventUserInput is a user message routed into the active session.
	EventUserInput EventType = "user_input"
	// EventAgentCompleted means a sub-agent's completion was detected.
	EventAgentCompleted EventType = "agent_completed"
	// EventAgentFailed means a sub-agent could not finish its task.
	EventAgentFailed EventType = "agent_failed"
	// EventTestPassed means a task's verification command succeeded.
	EventTestPassed EventType = "test_passed"
	// EventTestFailed means a task's verification command failed.
	EventTestFailed EventType = "test_failed"
	// EventProgressTick is the periodic status heartbeat.
	EventProgressTick EventType = "progress_tick"
	// EventInterrupt requests a graceful stop of the active session.
	EventInterrupt EventType = "interrupt_requested"
)

// Event is one unit of work for the coordinator loop. All state
// mutation happens in the single goroutine consuming these.
type Event struct {
	Type      EventType
	SessionID string
	TaskID    string
	// Input carries the user message for EventUserInput.
	Input string
	// Detection carries the completion result for EventAgentCompleted.
	Detection *detect.Result
	// Output carries test output or failure output.
	Output string
	// Err carries the failure for EventAgentFailed.
	Err       error
	Timestamp time.Time
}

// Message is one entry of the ordered outbound stream shown to the
// user.
type Message struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
