// Package orchestrator drives sessions end to end: it decomposes a request
// into a task graph, provisions a workspace per task, dispatches sub-agents,
// verifies their work, and publishes the results. All session state is
// mutated by a single event loop; everything concurrent (pane monitors, test
// runs) reports back through the event channel.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/Iron-Ham/overseer/internal/config"
	"github.com/Iron-Ham/overseer/internal/errors"
	"github.com/Iron-Ham/overseer/internal/logging"
	"github.com/Iron-Ham/overseer/internal/pane"
	"github.com/Iron-Ham/overseer/internal/planner"
	"github.com/Iron-Ham/overseer/internal/prompt"
	"github.com/Iron-Ham/overseer/internal/scanner"
	"github.com/Iron-Ham/overseer/internal/session"
	"github.com/Iron-Ham/overseer/internal/worktree"
)

// TaskPlanner is the LLM boundary the coordinator plans through. It is
// satisfied by *planner.Planner.
type TaskPlanner interface {
	Decompose(ctx context.Context, sess *session.Session, repo *scanner.Context, feedback string) (*planner.Plan, error)
	ClarifyingQuestions(ctx context.Context, request string, repo *scanner.Context) ([]string, error)
	ClassifyInput(ctx context.Context, sess *session.Session, input string) (planner.InputKind, error)
	ImpactAnalysis(ctx context.Context, sess *session.Session, change string) ([]string, error)
	PullRequestContent(ctx context.Context, task *session.Task, diffSummary string) (*planner.PRContent, error)
	FailureRemedy(ctx context.Context, task *session.Task, failureOutput string) (planner.Remedy, error)
	Chat(ctx context.Context, sess *session.Session, input string) (string, error)
	Usage() planner.Usage
}

// phase tracks where the active session is in its conversation with the
// user. Session.Status is the persisted view; phase is the loop's own
// dispatch state.
type phase int

const (
	phaseIdle phase = iota
	phaseClarifying
	phaseAwaitingApproval
	phaseRunning
)

const messageBuffer = 128

// Deps wires a Coordinator. Config, Store, and Planner are required; the
// rest default to production implementations.
type Deps struct {
	Config  *config.Config
	Store   *session.Store
	Planner TaskPlanner

	Scanner  *scanner.Scanner
	Verifier Verifier
	// NewExecutor builds the per-session executor. The default launches
	// tmux panes and writes transcripts under the store directory.
	NewExecutor func(sess *session.Session) (Executor, error)
	// NewPublisher builds the per-session publisher. The default pushes the
	// branch and creates a PR through gh.
	NewPublisher func(mgr *worktree.Manager, baseBranch string) Publisher

	Logger *logging.Logger
}

// Coordinator owns the session queue and the active session's full
// lifecycle. Public methods are safe to call from any goroutine; they hand
// work to the event loop rather than touching state directly.
type Coordinator struct {
	cfg          *config.Config
	store        *session.Store
	planner      TaskPlanner
	scanner      *scanner.Scanner
	verifier     Verifier
	newExecutor  func(sess *session.Session) (Executor, error)
	newPublisher func(mgr *worktree.Manager, baseBranch string) Publisher
	prompts      *prompt.Builder
	log          *logging.Logger

	events   chan Event
	messages chan Message
	queue    *SessionQueue

	// Active-session state, owned by the event loop.
	sess        *session.Session
	repo        *scanner.Context
	mgr         *worktree.Manager
	prov        *worktree.Provisioner
	executor    Executor
	publisher   Publisher
	agent       *pane.Agent
	agents      map[string]*session.SubAgent
	parallelism int
	phase       phase
	feedback    string

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a Coordinator from the given dependencies.
func New(deps Deps) (*Coordinator, error) {
	if deps.Config == nil || deps.Store == nil || deps.Planner == nil {
		return nil, fmt.Errorf("orchestrator: config, store, and planner are required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.NopLogger()
	}
	if deps.Scanner == nil {
		deps.Scanner = scanner.New()
	}
	if deps.Verifier == nil {
		deps.Verifier = &CommandVerifier{}
	}
	if deps.NewExecutor == nil {
		cfg, store, log := deps.Config, deps.Store, deps.Logger
		deps.NewExecutor = func(sess *session.Session) (Executor, error) {
			agent, err := pane.ForKind(sess.AgentKind, cfg.Agent.AutoApprove)
			if err != nil {
				return nil, err
			}
			dir := filepath.Join(store.Dir(), "transcripts", sess.ID)
			return NewPaneExecutor(agent, cfg, dir, log), nil
		}
	}
	if deps.NewPublisher == nil {
		cfg, log := deps.Config, deps.Logger
		deps.NewPublisher = func(mgr *worktree.Manager, base string) Publisher {
			return NewGHPublisher(mgr, cfg.PR, base, log)
		}
	}

	return &Coordinator{
		cfg:          deps.Config,
		store:        deps.Store,
		planner:      deps.Planner,
		scanner:      deps.Scanner,
		verifier:     deps.Verifier,
		newExecutor:  deps.NewExecutor,
		newPublisher: deps.NewPublisher,
		prompts:      prompt.NewBuilder(),
		log:          deps.Logger,
		events:       make(chan Event, 64),
		messages:     make(chan Message, messageBuffer),
		queue:        NewSessionQueue(),
	}, nil
}

// Run consumes events until ctx is cancelled. It is the only goroutine that
// mutates session state.
func (c *Coordinator) Run(ctx context.Context) error {
	c.runCtx, c.runCancel = context.WithCancel(ctx)
	defer c.runCancel()

	ticker := time.NewTicker(c.cfg.Orchestrator.ProgressInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case <-ticker.C:
			c.handle(ctx, Event{Type: EventProgressTick, Timestamp: time.Now()})
		case ev := <-c.events:
			c.handle(ctx, ev)
		}
	}
}

// StartSession creates a session for the request and enqueues it. If the
// queue was empty the session begins planning immediately; otherwise it
// waits its turn. repoPath may be anywhere inside the repository.
func (c *Coordinator) StartSession(request, repoPath, baseBranch string, dryRun bool) (*session.Session, error) {
	root, err := worktree.FindGitRoot(repoPath)
	if err != nil {
		return nil, err
	}

	sess := session.New(request, root, baseBranch, c.cfg.Agent.Kind)
	sess.DryRun = dryRun
	sess.QueuePosition = c.queue.Enqueue(sess.ID)
	if err := c.store.Save(sess); err != nil {
		c.queue.Remove(sess.ID)
		return nil, err
	}

	if sess.QueuePosition == 0 {
		c.send(Event{Type: EventSessionStart, SessionID: sess.ID})
	}
	return sess, nil
}

// Resume reloads a persisted session and enqueues it. Sessions that already
// completed cannot be resumed.
func (c *Coordinator) Resume(sessionID string) (*session.Session, error) {
	sess, err := c.store.Load(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == session.StatusCompleted {
		return nil, errors.NewSessionError("session already completed", errors.ErrSessionNotActive).WithSessionID(sessionID)
	}

	for _, id := range session.ValidateLoaded(sess) {
		c.post(sess.ID, fmt.Sprintf("task %s cannot be resumed: its worktree is gone", id))
	}
	// Agents from the previous run are gone; anything mid-flight restarts.
	for _, t := range sess.Tasks {
		if t.Status == session.TaskRunning || t.Status == session.TaskVerifying {
			t.SetStatus(session.TaskReady)
			t.PaneID = ""
		}
	}

	sess.SetStatus(session.StatusQueued)
	sess.QueuePosition = c.queue.Enqueue(sess.ID)
	if err := c.store.Save(sess); err != nil {
		c.queue.Remove(sess.ID)
		return nil, err
	}

	if sess.QueuePosition == 0 {
		c.send(Event{Type: EventSessionStart, SessionID: sess.ID})
	}
	return sess, nil
}

// UserInput routes a user message into the active session.
func (c *Coordinator) UserInput(sessionID, text string) {
	c.send(Event{Type: EventUserInput, SessionID: sessionID, Input: text})
}

// Interrupt requests a graceful stop of the active session. Running agents
// are stopped and the session is persisted in a resumable state.
func (c *Coordinator) Interrupt(sessionID string) {
	c.send(Event{Type: EventInterrupt, SessionID: sessionID})
}

// Messages returns the outbound stream of status and planner messages.
func (c *Coordinator) Messages() <-chan Message {
	return c.messages
}

// Snapshot returns the persisted view of a session. State is saved after
// every handled event, so the snapshot is at most one event behind.
func (c *Coordinator) Snapshot(sessionID string) (*session.Session, error) {
	return c.store.Load(sessionID)
}

// QueuePosition reports where a session sits in the queue: 0 for active,
// -1 if unknown.
func (c *Coordinator) QueuePosition(sessionID string) int {
	return c.queue.Position(sessionID)
}

func (c *Coordinator) send(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	c.events <- ev
}

// post emits a user-facing message, dropping the oldest entry when the
// buffer is full so the loop never blocks on a slow reader.
func (c *Coordinator) post(sessionID, text string) {
	msg := Message{SessionID: sessionID, Text: text, Timestamp: time.Now()}
	select {
	case c.messages <- msg:
		return
	default:
	}
	select {
	case <-c.messages:
	default:
	}
	select {
	case c.messages <- msg:
	default:
	}
}

func (c *Coordinator) persist() {
	if c.sess == nil {
		return
	}
	if err := c.store.Save(c.sess); err != nil {
		c.log.Error("session save failed", "session_id", c.sess.ID, "error", err.Error())
	}
}

func (c *Coordinator) syncUsage() {
	if c.sess == nil {
		return
	}
	u := c.planner.Usage()
	c.sess.LLMCallCount = u.Calls
	c.sess.EstimatedTokens = u.InputTokens + u.OutputTokens
}

// shutdown stops running agents and persists the active session so it can
// be resumed. Called when Run's context is cancelled.
func (c *Coordinator) shutdown() {
	if c.executor != nil {
		c.executor.StopAll()
	}
	c.agents = nil
	c.runCancel()
	c.wg.Wait()
	if c.sess != nil {
		for _, t := range c.sess.Tasks {
			if t.Status == session.TaskRunning || t.Status == session.TaskVerifying {
				t.SetStatus(session.TaskReady)
				t.PaneID = ""
			}
		}
		if !c.sess.Status.IsTerminal() {
			c.sess.SetStatus(session.StatusInterrupted)
		}
		c.persist()
	}
}
