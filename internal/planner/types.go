package planner

// PlannedTask is one unit of work proposed by the planner model.
type PlannedTask struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// Plan is the structured decomposition of a user request.
type Plan struct {
	Summary     string        `json:"summary"`
	Tasks       []PlannedTask `json:"tasks"`
	Parallelism int           `json:"parallelism,omitempty"`
}

// InputKind classifies a mid-session user message.
type InputKind string

const (
	// InputApproval approves the pending plan.
	InputApproval InputKind = "approval"
	// InputRejection rejects the pending plan, usually with feedback.
	InputRejection InputKind = "rejection"
	// InputAnswer answers an open clarifying question.
	InputAnswer InputKind = "answer"
	// InputScopeChange alters what the session should build.
	InputScopeChange InputKind = "scope_change"
	// InputChat is unrelated conversation needing only a reply.
	InputChat InputKind = "chat"
)

// Remedy is the planner's recommendation after a sub-agent failure.
type Remedy string

const (
	// RemedyRetry relaunches the task as-is.
	RemedyRetry Remedy = "retry"
	// RemedyAlternate relaunches with a revised approach in the prompt.
	RemedyAlternate Remedy = "alternate"
	// RemedyAskUser halts the task and asks the user how to proceed.
	RemedyAskUser Remedy = "ask_user"
)

// PRContent is the generated pull request title and body.
type PRContent struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Usage is a snapshot of accumulated API usage.
type Usage struct {
	Calls        int
	InputTokens  int64
	OutputTokens int64
}
