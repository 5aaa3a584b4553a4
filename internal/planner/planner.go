// Package planner is the LLM boundary of the orchestrator. It turns a
// user request into a structured task plan, classifies mid-session
// input, and generates the small pieces of text the workflow needs
// (clarifying questions, PR titles, failure remedies). All calls go
// through the Anthropic Messages API with exponential backoff on
// transient failures.
package planner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Iron-Ham/overseer/internal/config"
	"github.com/Iron-Ham/overseer/internal/errors"
	"github.com/Iron-Ham/overseer/internal/logging"
	"github.com/Iron-Ham/overseer/internal/scanner"
	"github.com/Iron-Ham/overseer/internal/session"
)

// noQuestionsToken is what the model answers when a request needs no
// clarification.
const noQuestionsToken = "NO_QUESTIONS"

// maxBackoffAttempts bounds calls on transient API failures: six calls
// means five waits, which with a 1s base yields delays of 1,2,4,8,16
// seconds before giving up.
const maxBackoffAttempts = 6

const systemPrompt = `You are the planning brain of a coding-agent orchestrator. You decompose
requests into independent tasks, classify user input, and produce concise
structured output. When asked for JSON, respond with JSON only.`

// messageCreator is the slice of the Anthropic SDK the planner uses.
type messageCreator interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Planner holds the model configuration and accumulated usage.
type Planner struct {
	messages        anthropic.MessageService
	creator         messageCreator
	model           anthropic.Model
	maxTokens       int64
	maxParseRetries int
	backoffBase     time.Duration
	backoffMax      time.Duration
	log             *logging.Logger

	mu    sync.Mutex
	usage Usage
}

// New creates a planner from configuration. The API key comes from the
// environment (ANTHROPIC_API_KEY) via the SDK's default option chain.
func New(cfg config.PlannerConfig, log *logging.Logger) *Planner {
	if log == nil {
		log = logging.NopLogger()
	}
	client := anthropic.NewClient()
	p := &Planner{
		messages:        client.Messages,
		model:           anthropic.Model(cfg.Model),
		maxTokens:       int64(cfg.MaxTokens),
		maxParseRetries: cfg.MaxParseRetries,
		backoffBase:     cfg.BackoffBase(),
		backoffMax:      cfg.BackoffMax(),
		log:             log,
	}
	p.creator = &p.messages
	return p
}

// Tracker-style usage snapshot.
func (p *Planner) Usage() Usage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.usage
}

func (p *Planner) recordUsage(input, output int64) {
	p.mu.Lock()
	p.usage.Calls++
	p.usage.InputTokens += input
	p.usage.OutputTokens += output
	p.mu.Unlock()
}

// complete performs one Messages call with backoff on transient errors.
func (p *Planner) complete(ctx context.Context, turns []anthropic.MessageParam) (string, error) {
	var lastErr error
	delay := p.backoffBase

	for attempt := 0; attempt < maxBackoffAttempts; attempt++ {
		if attempt > 0 {
			p.log.Warn("planner call retrying", "attempt", attempt, "delay", delay.String(), "error", lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if p.backoffMax > 0 && delay > p.backoffMax {
				delay = p.backoffMax
			}
		}

		resp, err := p.creator.New(ctx, anthropic.MessageNewParams{
			Model:     p.model,
			MaxTokens: p.maxTokens,
			System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
			Messages:  turns,
		})
		if err != nil {
			lastErr = wrapAPIError(err)
			if errors.IsRetryable(lastErr) {
				continue
			}
			return "", lastErr
		}

		p.recordUsage(resp.Usage.InputTokens, resp.Usage.OutputTokens)

		var text strings.Builder
		for _, block := range resp.Content {
			if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
				text.WriteString(variant.Text)
			}
		}
		return text.String(), nil
	}

	return "", errors.NewPlannerError("transient failures exhausted retries",
		errors.Join(errors.ErrPlannerExhausted, lastErr))
}

// wrapAPIError converts SDK errors into PlannerError with the HTTP
// status attached so retryability can be decided.
func wrapAPIError(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return errors.NewPlannerError("api call failed", err).WithStatusCode(apierr.StatusCode)
	}
	return errors.NewPlannerError("api call failed", err)
}

func userTurn(text string) anthropic.MessageParam {
	return anthropic.NewUserMessage(anthropic.NewTextBlock(text))
}

func assistantTurn(text string) anthropic.MessageParam {
	return anthropic.NewAssistantMessage(anthropic.NewTextBlock(text))
}

// conversationTurns converts stored session messages into API turns.
func conversationTurns(sess *session.Session) []anthropic.MessageParam {
	var turns []anthropic.MessageParam
	for _, msg := range sess.Messages {
		switch msg.Role {
		case session.RoleUser:
			turns = append(turns, userTurn(msg.Content))
		case session.RoleAssistant:
			turns = append(turns, assistantTurn(msg.Content))
		}
	}
	return turns
}

// repoSection renders the scanned repository context for a prompt.
func repoSection(repo *scanner.Context) string {
	if repo == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n\nRepository context:\n")
	if repo.BuildSystem != scanner.BuildUnknown {
		fmt.Fprintf(&sb, "- Build system: %s\n", repo.BuildSystem)
	}
	if repo.TestCommand != "" {
		fmt.Fprintf(&sb, "- Test command: %s\n", repo.TestCommand)
	}
	if tree := repo.TreeSummary(); tree != "" {
		sb.WriteString("- Files:\n")
		sb.WriteString(tree)
	}
	if repo.Instructions != "" {
		sb.WriteString("- Project instructions:\n")
		sb.WriteString(repo.Instructions)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Decompose turns the session's request into a validated task plan.
// Malformed structured output is sent back to the model with the parse
// error up to the configured retry count; after that the failure is
// surfaced so the user can rephrase rather than an un-decomposed plan
// being dispatched silently.
func (p *Planner) Decompose(ctx context.Context, sess *session.Session, repo *scanner.Context, feedback string) (*Plan, error) {
	instruction := fmt.Sprintf(`Decompose this request into coding tasks that can run in parallel where
possible. Prefer few, coarse tasks; only split work that is truly independent.

Request: %s%s

Respond with JSON only:
{
  "summary": "one-line plan summary",
  "parallelism": <suggested concurrent task count>,
  "tasks": [
    {"id": "task-1", "title": "...", "description": "...", "dependencies": []}
  ]
}
Dependencies reference task ids that must complete first.`, sess.Request, repoSection(repo))
	if feedback != "" {
		instruction += fmt.Sprintf("\n\nThe previous plan was rejected with this feedback, produce a revised plan:\n%s", feedback)
	}

	turns := append(conversationTurns(sess), userTurn(instruction))

	var parseErr error
	for attempt := 0; attempt <= p.maxParseRetries; attempt++ {
		if attempt > 0 {
			turns = append(turns,
				userTurn(fmt.Sprintf("That response could not be parsed (%v). Respond again with only the JSON object.", parseErr)))
		}

		text, err := p.complete(ctx, turns)
		if err != nil {
			return nil, err
		}

		plan, err := parsePlan(text)
		if err == nil {
			p.log.Info("request decomposed", "tasks", len(plan.Tasks), "parallelism", plan.Parallelism)
			return plan, nil
		}
		parseErr = err
		turns = append(turns, assistantTurn(text))
		p.log.Warn("plan parse failed", "attempt", attempt, "error", err)
	}

	return nil, errors.NewPlannerError("plan was unparseable after retries",
		errors.Join(errors.ErrMalformedResponse, parseErr))
}

// ClarifyingQuestions asks whether the request needs clarification.
// A clear request yields no questions.
func (p *Planner) ClarifyingQuestions(ctx context.Context, request string, repo *scanner.Context) ([]string, error) {
	instruction := fmt.Sprintf(`Before planning, decide whether this coding request is ambiguous enough to
need clarification.

Request: %s%s

If the request is clear enough to act on, respond with exactly %s.
Otherwise respond with a JSON array of at most 3 short questions.`,
		request, repoSection(repo), noQuestionsToken)

	text, err := p.complete(ctx, []anthropic.MessageParam{userTurn(instruction)})
	if err != nil {
		return nil, err
	}
	if strings.Contains(text, noQuestionsToken) {
		return nil, nil
	}
	questions, err := parseStringList(text)
	if err != nil {
		// An unparseable answer means the model chose prose; treat the
		// request as clear rather than blocking the session.
		p.log.Warn("clarifying questions unparseable, proceeding", "error", err)
		return nil, nil
	}
	return questions, nil
}

// ClassifyInput decides what a mid-session user message means.
func (p *Planner) ClassifyInput(ctx context.Context, sess *session.Session, input string) (InputKind, error) {
	instruction := fmt.Sprintf(`Classify the user's latest message in the context of this orchestration
session (status: %s).

Message: %s

Respond with exactly one word: approval, rejection, answer, scope_change, or chat.`,
		sess.Status, input)

	turns := append(conversationTurns(sess), userTurn(instruction))
	text, err := p.complete(ctx, turns)
	if err != nil {
		return "", err
	}

	switch kind := InputKind(strings.ToLower(strings.TrimSpace(extractWord(text)))); kind {
	case InputApproval, InputRejection, InputAnswer, InputScopeChange, InputChat:
		return kind, nil
	default:
		return InputChat, nil
	}
}

// ImpactAnalysis returns the ids of tasks affected by a scope change.
func (p *Planner) ImpactAnalysis(ctx context.Context, sess *session.Session, change string) ([]string, error) {
	var sb strings.Builder
	for _, task := range sess.Tasks {
		fmt.Fprintf(&sb, "- %s (%s): %s\n", task.ID, task.Status, task.Title)
	}
	instruction := fmt.Sprintf(`The user changed the scope of a running session:

%s

Current tasks:
%s
Respond with a JSON array of the task ids whose work is affected by this
change. Respond with [] if none are.`, change, sb.String())

	text, err := p.complete(ctx, []anthropic.MessageParam{userTurn(instruction)})
	if err != nil {
		return nil, err
	}
	ids, err := parseStringList(text)
	if err != nil {
		return nil, err
	}
	// Drop hallucinated ids.
	valid := ids[:0]
	for _, id := range ids {
		if sess.Task(id) != nil {
			valid = append(valid, id)
		}
	}
	return valid, nil
}

// PullRequestContent generates a PR title and body from a diff summary.
func (p *Planner) PullRequestContent(ctx context.Context, task *session.Task, diffSummary string) (*PRContent, error) {
	instruction := fmt.Sprintf(`Write a pull request title and body for this completed task.

Task: %s
Description: %s

Diff summary:
%s

Respond with JSON only: {"title": "...", "body": "..."}.
The title is imperative and under 70 characters. The body explains what
changed and why in a short paragraph plus bullets.`,
		task.Title, task.Description, diffSummary)

	text, err := p.complete(ctx, []anthropic.MessageParam{userTurn(instruction)})
	if err != nil {
		return nil, err
	}
	pr, err := parsePRContent(text)
	if err != nil {
		// Fall back to a mechanical title rather than blocking the PR.
		p.log.Warn("pr content unparseable, using task title", "error", err)
		return &PRContent{Title: task.Title, Body: task.Description}, nil
	}
	return pr, nil
}

// FailureRemedy classifies how to react to a sub-agent failure.
func (p *Planner) FailureRemedy(ctx context.Context, task *session.Task, failureOutput string) (Remedy, error) {
	instruction := fmt.Sprintf(`A coding agent working on task %q failed. Final output:

%s

Should the orchestrator: retry the task as-is, relaunch with an alternate
approach, or ask the user? Respond with exactly one word: retry,
alternate, or ask_user.`, task.Title, truncate(failureOutput, 4000))

	text, err := p.complete(ctx, []anthropic.MessageParam{userTurn(instruction)})
	if err != nil {
		return "", err
	}
	switch remedy := Remedy(strings.ToLower(strings.TrimSpace(extractWord(text)))); remedy {
	case RemedyRetry, RemedyAlternate, RemedyAskUser:
		return remedy, nil
	default:
		return RemedyAskUser, nil
	}
}

// Chat produces a plain conversational reply.
func (p *Planner) Chat(ctx context.Context, sess *session.Session, input string) (string, error) {
	turns := append(conversationTurns(sess), userTurn(input))
	return p.complete(ctx, turns)
}

// extractWord returns the first word-like token of a response, ignoring
// punctuation the model may add around it.
func extractWord(text string) string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
