package planner

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Iron-Ham/overseer/internal/errors"
	"github.com/Iron-Ham/overseer/internal/logging"
	"github.com/Iron-Ham/overseer/internal/session"
)

// fakeCreator scripts Messages API responses for tests.
type fakeCreator struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeCreator) New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	text := ""
	if i < len(f.responses) {
		text = f.responses[i]
	}
	// Build the message by unmarshaling JSON so the union's raw bytes are
	// populated; AsAny() decodes blocks from them.
	raw, err := json.Marshal(map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
		"usage":   map[string]any{"input_tokens": 100, "output_tokens": 50},
	})
	if err != nil {
		return nil, err
	}
	msg := &anthropic.Message{}
	if err := msg.UnmarshalJSON(raw); err != nil {
		return nil, err
	}
	return msg, nil
}

func testPlanner(creator messageCreator) *Planner {
	return &Planner{
		creator:         creator,
		model:           "claude-sonnet-4-5",
		maxTokens:       1024,
		maxParseRetries: 2,
		backoffBase:     time.Millisecond,
		backoffMax:      4 * time.Millisecond,
		log:             logging.NopLogger(),
	}
}

func testSession() *session.Session {
	return session.New("add caching to the API layer", "/repo", "main", "claude")
}

func TestDecompose(t *testing.T) {
	fake := &fakeCreator{responses: []string{`{
		"summary": "caching",
		"parallelism": 2,
		"tasks": [
			{"id": "task-1", "title": "Build cache", "description": "x"},
			{"id": "task-2", "title": "Wire cache", "description": "y", "dependencies": ["task-1"]}
		]
	}`}}
	p := testPlanner(fake)

	plan, err := p.Decompose(context.Background(), testSession(), nil, "")
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if len(plan.Tasks) != 2 || plan.Parallelism != 2 {
		t.Errorf("plan = %+v", plan)
	}

	usage := p.Usage()
	if usage.Calls != 1 || usage.InputTokens != 100 || usage.OutputTokens != 50 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestDecomposeRetriesMalformedOutput(t *testing.T) {
	fake := &fakeCreator{responses: []string{
		"I would split this into a few tasks.",
		`{"tasks": [{"id": "task-1", "title": "Do it", "description": "d"}]}`,
	}}
	p := testPlanner(fake)

	plan, err := p.Decompose(context.Background(), testSession(), nil, "")
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if fake.calls != 2 {
		t.Errorf("calls = %d, want 2", fake.calls)
	}
	if len(plan.Tasks) != 1 {
		t.Errorf("tasks = %d", len(plan.Tasks))
	}
}

func TestDecomposeSurfacesUnparseablePlan(t *testing.T) {
	fake := &fakeCreator{responses: []string{"prose", "more prose", "still prose"}}
	p := testPlanner(fake)

	plan, err := p.Decompose(context.Background(), testSession(), nil, "")
	if !errors.Is(err, errors.ErrMalformedResponse) {
		t.Fatalf("err = %v, want ErrMalformedResponse", err)
	}
	if plan != nil {
		t.Errorf("plan = %+v, want nil", plan)
	}
	// maxParseRetries=2 means three attempts before giving up.
	if fake.calls != 3 {
		t.Errorf("calls = %d, want 3", fake.calls)
	}
}

func TestCompleteBackoffOnTransientErrors(t *testing.T) {
	transient := errors.NewPlannerError("rate limited", nil).WithStatusCode(429)
	fake := &fakeCreator{
		errs:      []error{transient, transient, nil},
		responses: []string{"", "", "recovered"},
	}
	p := testPlanner(fake)

	text, err := p.complete(context.Background(), []anthropic.MessageParam{userTurn("hi")})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "recovered" || fake.calls != 3 {
		t.Errorf("text = %q, calls = %d", text, fake.calls)
	}
}

func TestCompleteGivesUpAfterMaxAttempts(t *testing.T) {
	transient := errors.NewPlannerError("overloaded", nil).WithStatusCode(503)
	errs := make([]error, maxBackoffAttempts)
	for i := range errs {
		errs[i] = transient
	}
	fake := &fakeCreator{errs: errs}
	p := testPlanner(fake)

	_, err := p.complete(context.Background(), []anthropic.MessageParam{userTurn("hi")})
	if !errors.Is(err, errors.ErrPlannerExhausted) {
		t.Fatalf("err = %v, want ErrPlannerExhausted", err)
	}
	if fake.calls != maxBackoffAttempts {
		t.Errorf("calls = %d, want %d", fake.calls, maxBackoffAttempts)
	}
}

func TestCompleteFatalErrorNotRetried(t *testing.T) {
	fatal := errors.NewPlannerError("bad request", nil).WithStatusCode(400)
	fake := &fakeCreator{errs: []error{fatal}}
	p := testPlanner(fake)

	if _, err := p.complete(context.Background(), []anthropic.MessageParam{userTurn("hi")}); err == nil {
		t.Fatal("expected error")
	}
	if fake.calls != 1 {
		t.Errorf("calls = %d, want 1", fake.calls)
	}
}

func TestClarifyingQuestions(t *testing.T) {
	fake := &fakeCreator{responses: []string{`["Which API layer?", "Should the cache be persistent?"]`}}
	p := testPlanner(fake)

	questions, err := p.ClarifyingQuestions(context.Background(), "add caching", nil)
	if err != nil {
		t.Fatalf("ClarifyingQuestions: %v", err)
	}
	if len(questions) != 2 {
		t.Errorf("questions = %v", questions)
	}
}

func TestClarifyingQuestionsClearRequest(t *testing.T) {
	fake := &fakeCreator{responses: []string{"NO_QUESTIONS"}}
	p := testPlanner(fake)

	questions, err := p.ClarifyingQuestions(context.Background(), "fix the typo in README", nil)
	if err != nil {
		t.Fatalf("ClarifyingQuestions: %v", err)
	}
	if questions != nil {
		t.Errorf("questions = %v, want nil", questions)
	}
}

func TestClassifyInput(t *testing.T) {
	tests := []struct {
		response string
		want     InputKind
	}{
		{response: "approval", want: InputApproval},
		{response: "Rejection.", want: InputRejection},
		{response: "scope_change", want: InputScopeChange},
		{response: "something unexpected", want: InputChat},
	}
	for _, tt := range tests {
		fake := &fakeCreator{responses: []string{tt.response}}
		p := testPlanner(fake)
		kind, err := p.ClassifyInput(context.Background(), testSession(), "msg")
		if err != nil {
			t.Fatalf("ClassifyInput: %v", err)
		}
		if kind != tt.want {
			t.Errorf("ClassifyInput(%q) = %s, want %s", tt.response, kind, tt.want)
		}
	}
}

func TestImpactAnalysisFiltersUnknownIDs(t *testing.T) {
	sess := testSession()
	sess.Tasks = append(sess.Tasks, session.NewTask("task-1", "Build cache", "x", nil))

	fake := &fakeCreator{responses: []string{`["task-1", "task-99"]`}}
	p := testPlanner(fake)

	ids, err := p.ImpactAnalysis(context.Background(), sess, "drop redis, use memcached")
	if err != nil {
		t.Fatalf("ImpactAnalysis: %v", err)
	}
	if len(ids) != 1 || ids[0] != "task-1" {
		t.Errorf("ids = %v", ids)
	}
}

func TestPullRequestContentFallback(t *testing.T) {
	fake := &fakeCreator{responses: []string{"not json"}}
	p := testPlanner(fake)
	task := session.NewTask("task-1", "Build cache", "LRU cache for the API", nil)

	pr, err := p.PullRequestContent(context.Background(), task, "3 files changed")
	if err != nil {
		t.Fatalf("PullRequestContent: %v", err)
	}
	if pr.Title != "Build cache" {
		t.Errorf("fallback title = %q", pr.Title)
	}
}

func TestFailureRemedy(t *testing.T) {
	fake := &fakeCreator{responses: []string{"retry"}}
	p := testPlanner(fake)
	task := session.NewTask("task-1", "Build cache", "x", nil)

	remedy, err := p.FailureRemedy(context.Background(), task, "panic: nil deref")
	if err != nil {
		t.Fatalf("FailureRemedy: %v", err)
	}
	if remedy != RemedyRetry {
		t.Errorf("remedy = %s", remedy)
	}

	fake = &fakeCreator{responses: []string{"I am not sure"}}
	p = testPlanner(fake)
	remedy, err = p.FailureRemedy(context.Background(), task, "out")
	if err != nil {
		t.Fatalf("FailureRemedy: %v", err)
	}
	if remedy != RemedyAskUser {
		t.Errorf("unrecognized remedy should default to ask_user, got %s", remedy)
	}
}
