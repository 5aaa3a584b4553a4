package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Iron-Ham/overseer/internal/detect"
	"github.com/Iron-Ham/overseer/internal/errors"
	"github.com/Iron-Ham/overseer/internal/pane"
	"github.com/Iron-Ham/overseer/internal/planner"
	"github.com/Iron-Ham/overseer/internal/prompt"
	"github.com/Iron-Ham/overseer/internal/session"
	"github.com/Iron-Ham/overseer/internal/worktree"
)

func (c *Coordinator) handle(ctx context.Context, ev Event) {
	c.log.Debug("event", "type", string(ev.Type), "session_id", ev.SessionID, "task_id", ev.TaskID)

	switch ev.Type {
	case EventSessionStart:
		c.startActive(ctx)
	case EventUserInput:
		c.handleUserInput(ctx, ev)
	case EventAgentCompleted:
		c.handleAgentCompleted(ctx, ev)
	case EventAgentFailed:
		c.handleAgentFailed(ctx, ev)
	case EventTestPassed:
		c.handleTestPassed(ctx, ev)
	case EventTestFailed:
		c.handleTestFailed(ctx, ev)
	case EventProgressTick:
		c.handleProgressTick()
		return // heartbeat only, nothing to persist
	case EventInterrupt:
		c.handleInterrupt(ctx, ev)
	}

	c.persist()
}

// startActive loads the session at the head of the queue and begins (or
// resumes) its lifecycle.
func (c *Coordinator) startActive(ctx context.Context) {
	id := c.queue.Current()
	if id == "" {
		return
	}
	if err := c.activate(id); err != nil {
		c.post(id, fmt.Sprintf("session failed to start: %v", err))
		c.log.Error("session activation failed", "session_id", id, "error", err.Error())
		if c.sess != nil {
			c.sess.SetStatus(session.StatusFailed)
		}
		c.advanceQueue(ctx)
		return
	}

	if len(c.sess.Tasks) > 0 {
		c.resumeRun(ctx)
		return
	}
	c.plan(ctx)
}

func (c *Coordinator) activate(id string) error {
	sess, err := c.store.Load(id)
	if err != nil {
		return err
	}
	mgr, err := worktree.New(sess.RepoPath)
	if err != nil {
		c.sess = sess
		return err
	}
	agent, err := pane.ForKind(sess.AgentKind, c.cfg.Agent.AutoApprove)
	if err != nil {
		c.sess = sess
		return err
	}
	executor, err := c.newExecutor(sess)
	if err != nil {
		c.sess = sess
		return err
	}
	repo, err := c.scanner.Scan(sess.RepoPath)
	if err != nil {
		c.sess = sess
		return err
	}

	c.sess = sess
	c.repo = repo
	c.mgr = mgr
	c.prov = worktree.NewProvisioner(
		mgr,
		c.cfg.Paths.ResolveWorktreeDir(mgr.RepoDir()),
		c.cfg.Branch.Prefix,
		c.cfg.Branch.IncludeID,
		sess.BaseBranch,
		c.log.WithSession(sess.ID),
	)
	c.executor = executor
	c.publisher = c.newPublisher(mgr, c.prov.BaseBranch())
	c.agent = agent
	c.agents = make(map[string]*session.SubAgent)
	c.parallelism = c.cfg.Orchestrator.MaxParallel
	c.phase = phaseIdle
	c.feedback = ""
	sess.QueuePosition = 0
	return nil
}

// resumeRun picks up a session that already has a task graph: an
// interrupted run, or a plan that was awaiting approval when the process
// stopped.
func (c *Coordinator) resumeRun(ctx context.Context) {
	if c.sess.Status == session.StatusAwaitingApproval {
		c.phase = phaseAwaitingApproval
		c.post(c.sess.ID, c.formatPlan())
		c.post(c.sess.ID, "Approve this plan to continue, or describe what to change.")
		return
	}

	c.sess.SetStatus(session.StatusRunning)
	c.phase = phaseRunning
	c.sess.RefreshReadiness()
	c.post(c.sess.ID, fmt.Sprintf("resuming session %s", c.sess.ID[:8]))
	c.launchReady(ctx)
	c.maybeFinish(ctx)
}

// plan runs the clarifying-question phase (if enabled) and then the
// decomposition.
func (c *Coordinator) plan(ctx context.Context) {
	c.sess.SetStatus(session.StatusPlanning)
	c.post(c.sess.ID, "planning...")

	if c.cfg.Orchestrator.AskClarifyingQuestions && len(c.sess.Messages) == 0 {
		questions, err := c.planner.ClarifyingQuestions(ctx, c.sess.Request, c.repo)
		c.syncUsage()
		if err != nil {
			c.log.Warn("clarifying questions unavailable", "error", err.Error())
		}
		if len(questions) > 0 {
			text := "Before planning, a few questions:\n"
			for i, q := range questions {
				text += fmt.Sprintf("%d. %s\n", i+1, q)
			}
			c.sess.AddMessage(session.RoleAssistant, text)
			c.post(c.sess.ID, text)
			c.phase = phaseClarifying
			return
		}
	}

	c.decompose(ctx)
}

func (c *Coordinator) decompose(ctx context.Context) {
	c.sess.SetStatus(session.StatusPlanning)
	plan, err := c.planner.Decompose(ctx, c.sess, c.repo, c.feedback)
	c.syncUsage()
	c.feedback = ""
	if err != nil {
		c.sess.SetStatus(session.StatusFailed)
		c.post(c.sess.ID, fmt.Sprintf("planning failed: %v", err))
		c.advanceQueue(ctx)
		return
	}

	c.sess.Tasks = nil
	for _, pt := range plan.Tasks {
		c.sess.Tasks = append(c.sess.Tasks, session.NewTask(pt.ID, pt.Title, pt.Description, pt.Dependencies))
	}
	if err := c.sess.ValidateTasks(); err != nil {
		c.sess.SetStatus(session.StatusFailed)
		c.post(c.sess.ID, fmt.Sprintf("planner produced an invalid task graph: %v", err))
		c.advanceQueue(ctx)
		return
	}
	c.parallelism = clamp(plan.Parallelism, 1, c.cfg.Orchestrator.MaxParallel)

	c.sess.AddMessage(session.RoleAssistant, plan.Summary)
	c.post(c.sess.ID, c.formatPlan())

	if c.sess.DryRun {
		c.sess.SetStatus(session.StatusCompleted)
		c.post(c.sess.ID, "dry run: no worktrees provisioned, no agents launched")
		c.advanceQueue(ctx)
		return
	}

	if c.cfg.Orchestrator.RequireApproval {
		c.sess.SetStatus(session.StatusAwaitingApproval)
		c.phase = phaseAwaitingApproval
		c.post(c.sess.ID, "Approve this plan to continue, or describe what to change.")
		return
	}
	c.approve(ctx)
}

func (c *Coordinator) approve(ctx context.Context) {
	c.sess.SetStatus(session.StatusRunning)
	c.phase = phaseRunning
	c.sess.RefreshReadiness()
	c.launchReady(ctx)
}

func (c *Coordinator) handleUserInput(ctx context.Context, ev Event) {
	if c.sess == nil || (ev.SessionID != "" && ev.SessionID != c.sess.ID) {
		c.post(ev.SessionID, "no active session for that input; it may still be queued")
		return
	}
	c.sess.AddMessage(session.RoleUser, ev.Input)

	switch c.phase {
	case phaseClarifying:
		c.phase = phaseIdle
		c.decompose(ctx)

	case phaseAwaitingApproval:
		kind, err := c.planner.ClassifyInput(ctx, c.sess, ev.Input)
		c.syncUsage()
		if err != nil {
			c.log.Warn("input classification failed", "error", err.Error())
			kind = planner.InputChat
		}
		switch kind {
		case planner.InputApproval:
			c.post(c.sess.ID, "plan approved, launching agents")
			c.approve(ctx)
		case planner.InputRejection, planner.InputScopeChange:
			c.feedback = ev.Input
			c.post(c.sess.ID, "revising the plan")
			c.decompose(ctx)
		default:
			c.chatReply(ctx, ev.Input)
		}

	case phaseRunning:
		kind, err := c.planner.ClassifyInput(ctx, c.sess, ev.Input)
		c.syncUsage()
		if err != nil {
			c.log.Warn("input classification failed", "error", err.Error())
			kind = planner.InputChat
		}
		if kind == planner.InputScopeChange {
			c.handleScopeChange(ctx, ev.Input)
			return
		}
		c.chatReply(ctx, ev.Input)

	default:
		c.chatReply(ctx, ev.Input)
	}
}

func (c *Coordinator) chatReply(ctx context.Context, input string) {
	reply, err := c.planner.Chat(ctx, c.sess, input)
	c.syncUsage()
	if err != nil {
		c.post(c.sess.ID, fmt.Sprintf("planner unavailable: %v", err))
		return
	}
	c.sess.AddMessage(session.RoleAssistant, reply)
	c.post(c.sess.ID, reply)
}

// handleScopeChange stops the tasks the change invalidates and replans the
// remaining work, keeping tasks that already reached a terminal state.
func (c *Coordinator) handleScopeChange(ctx context.Context, input string) {
	affected, err := c.planner.ImpactAnalysis(ctx, c.sess, input)
	c.syncUsage()
	if err != nil {
		c.post(c.sess.ID, fmt.Sprintf("could not analyze the scope change: %v", err))
		return
	}

	for _, id := range affected {
		t := c.sess.Task(id)
		if t == nil || t.Status.IsTerminal() {
			continue
		}
		if t.Status == session.TaskRunning || t.Status == session.TaskVerifying {
			c.retireAgent(t.ID, session.SubAgentFailed)
		}
		t.SetStatus(session.TaskCancelled)
		t.FailureReason = "superseded by scope change"
	}
	c.post(c.sess.ID, fmt.Sprintf("scope change affects %d task(s); replanning", len(affected)))

	c.feedback = input
	plan, err := c.planner.Decompose(ctx, c.sess, c.repo, c.feedback)
	c.syncUsage()
	c.feedback = ""
	if err != nil {
		c.post(c.sess.ID, fmt.Sprintf("replanning failed: %v", err))
		return
	}
	c.mergePlan(plan)
	c.post(c.sess.ID, c.formatPlan())
	c.sess.RefreshReadiness()
	c.launchReady(ctx)
	c.maybeFinish(ctx)
}

// mergePlan appends a replan's tasks to the existing graph, remapping IDs
// that collide with tasks already present. Dependencies inside the new plan
// follow the remap; dependencies on existing task IDs are kept so new work
// can chain onto completed tasks.
func (c *Coordinator) mergePlan(plan *planner.Plan) {
	remap := make(map[string]string, len(plan.Tasks))
	for _, pt := range plan.Tasks {
		id := pt.ID
		for n := 2; c.sess.Task(id) != nil; n++ {
			id = fmt.Sprintf("%s-%d", pt.ID, n)
		}
		remap[pt.ID] = id
	}

	added := len(c.sess.Tasks)
	for _, pt := range plan.Tasks {
		deps := make([]string, 0, len(pt.Dependencies))
		for _, d := range pt.Dependencies {
			if mapped, ok := remap[d]; ok {
				deps = append(deps, mapped)
			} else if c.sess.Task(d) != nil {
				deps = append(deps, d)
			}
		}
		c.sess.Tasks = append(c.sess.Tasks, session.NewTask(remap[pt.ID], pt.Title, pt.Description, deps))
	}

	if err := c.sess.ValidateTasks(); err != nil {
		c.sess.Tasks = c.sess.Tasks[:added]
		c.post(c.sess.ID, fmt.Sprintf("replanned tasks were invalid and have been discarded: %v", err))
	}
}

// launchReady dispatches ready tasks until the parallelism budget is spent.
func (c *Coordinator) launchReady(ctx context.Context) {
	if c.sess.DryRun {
		return
	}
	capacity := c.parallelism - len(c.sess.RunningTasks())
	for _, t := range c.sess.ReadyTasks() {
		if capacity <= 0 {
			return
		}
		if err := c.dispatch(ctx, t); err != nil {
			c.log.Error("dispatch failed", "task_id", t.ID, "error", err.Error())
			continue
		}
		capacity--
	}
}

func (c *Coordinator) dispatch(ctx context.Context, task *session.Task) error {
	var conflictBranches []string
	if task.WorktreePath == "" {
		var depBranches []string
		for _, dep := range task.DependsOn {
			if d := c.sess.Task(dep); d != nil && d.BranchName != "" {
				depBranches = append(depBranches, d.BranchName)
			}
		}
		prov, err := c.prov.Provision(task.ID, task.Title, depBranches)
		if errors.Is(err, errors.ErrMergeConflict) && len(depBranches) > 0 {
			// Dependency commits conflict with each other. Give the agent a
			// clean branch and have it perform the merges itself.
			conflictBranches = depBranches
			prov, err = c.prov.Provision(task.ID, task.Title, nil)
		}
		if err != nil {
			// The task keeps its slot in the graph; a later pass (or the
			// user) can retry once the underlying problem is fixed.
			task.SetStatus(session.TaskPending)
			task.FailureReason = fmt.Sprintf("provisioning failed: %v", err)
			c.post(c.sess.ID, fmt.Sprintf("task %s: workspace provisioning failed: %v", task.ID, err))
			return err
		}
		task.BranchName = prov.Branch
		task.WorktreePath = prov.Path
		c.sess.AddWorktree(session.WorktreeRef{
			BranchName: prov.Branch,
			Path:       prov.Path,
			TaskIDs:    []string{task.ID},
			CreatedAt:  time.Now(),
		})
	}

	promptText, err := c.prompts.Build(&prompt.Context{
		Task:     task,
		Request:  c.sess.Request,
		Repo:     c.repo,
		Siblings: c.sess.Tasks,
		Hint:     c.agent.CompletionHint(),
		Marker:   c.cfg.Detection.OutputMarker,
	})
	if err != nil {
		task.SetStatus(session.TaskFailed)
		task.FailureReason = err.Error()
		return err
	}
	for _, branch := range conflictBranches {
		promptText += "\n" + c.prompts.BuildConflictResolution(task.BranchName, branch)
	}

	return c.launch(ctx, task, promptText)
}

// launch starts the agent for a task and forwards its completion result
// back into the event loop.
func (c *Coordinator) launch(_ context.Context, task *session.Task, promptText string) error {
	sub := session.NewSubAgent(task.ID, c.sess.AgentKind, c.cfg.Agent.AutoApprove)
	paneID, results, err := c.executor.Start(c.runCtx, task, task.WorktreePath, promptText)
	if err != nil {
		task.SetStatus(session.TaskFailed)
		task.FailureReason = fmt.Sprintf("agent launch failed: %v", err)
		c.post(c.sess.ID, fmt.Sprintf("task %s: agent launch failed: %v", task.ID, err))
		c.sess.CancelDependents(task.ID)
		return err
	}
	sub.PaneID = paneID
	sub.Status = session.SubAgentRunning
	c.agents[task.ID] = sub
	task.PaneID = paneID
	task.SetStatus(session.TaskRunning)
	c.post(c.sess.ID, fmt.Sprintf("task %s started: %s", task.ID, task.Title))

	sessID, taskID := c.sess.ID, task.ID
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		res, ok := <-results
		if !ok {
			return
		}
		if res.Err != nil {
			// Cancellation is always deliberate (interrupt, scope change,
			// shutdown); only organic monitor failures become events.
			if errors.Is(res.Err, context.Canceled) || c.runCtx.Err() != nil {
				return
			}
			c.send(Event{Type: EventAgentFailed, SessionID: sessID, TaskID: taskID, Err: res.Err})
			return
		}
		c.send(Event{Type: EventAgentCompleted, SessionID: sessID, TaskID: taskID, Detection: res.Detection})
	}()
	return nil
}

// retireAgent finalizes a task's live sub-agent and kills its pane. A task
// has at most one live sub-agent; a retry launches a fresh one.
func (c *Coordinator) retireAgent(taskID string, status session.SubAgentStatus) {
	sub, ok := c.agents[taskID]
	if !ok {
		return
	}
	sub.Status = status
	if err := c.executor.Stop(taskID); err != nil {
		c.log.Warn("agent stop failed", "task_id", taskID, "error", err.Error())
	}
	delete(c.agents, taskID)
}

func (c *Coordinator) activeTask(ev Event, want ...session.TaskStatus) *session.Task {
	if c.sess == nil || (ev.SessionID != "" && ev.SessionID != c.sess.ID) {
		return nil
	}
	t := c.sess.Task(ev.TaskID)
	if t == nil {
		return nil
	}
	for _, s := range want {
		if t.Status == s {
			return t
		}
	}
	return nil
}

func (c *Coordinator) handleAgentCompleted(ctx context.Context, ev Event) {
	task := c.activeTask(ev, session.TaskRunning)
	if task == nil || ev.Detection == nil {
		return
	}
	task.CompletionSource = ev.Detection.Source

	if report := ev.Detection.Report; report != nil && !report.Succeeded() {
		reason := report.Summary
		if reason == "" {
			reason = fmt.Sprintf("agent reported status %q", report.Status)
		}
		c.failAgent(ctx, task, reason)
		return
	}

	// A pane that died without a self-report only counts as success when
	// the agent process exited zero.
	if det := ev.Detection; det.Report == nil && det.Source == session.CompletionProcessExit && det.ExitStatus != 0 {
		reason := fmt.Sprintf("agent exited with status %d", det.ExitStatus)
		if det.ExitStatus == detect.ExitStatusUnknown {
			reason = "agent process died without recording an exit status"
		}
		c.failAgent(ctx, task, reason)
		return
	}

	c.beginVerification(ctx, task, ev.Detection)
}

// beginVerification runs the repository's test command against the task's
// worktree. Repositories with no detectable test command skip straight to
// completion.
func (c *Coordinator) beginVerification(ctx context.Context, task *session.Task, det *detect.Result) {
	c.retireAgent(task.ID, session.SubAgentCompleted)
	if c.repo.TestCommand == "" {
		c.post(c.sess.ID, fmt.Sprintf("task %s finished (%s); no test command detected", task.ID, det.Source))
		c.completeTask(ctx, task)
		return
	}

	task.SetStatus(session.TaskVerifying)
	c.post(c.sess.ID, fmt.Sprintf("task %s finished (%s); verifying with %q", task.ID, det.Source, c.repo.TestCommand))

	sessID, taskID := c.sess.ID, task.ID
	dir, cmd := task.WorktreePath, c.repo.TestCommand
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		passed, output, err := c.verifier.Run(c.runCtx, dir, cmd)
		if c.runCtx.Err() != nil {
			return
		}
		if err != nil && !passed {
			output = fmt.Sprintf("%s\n%v", output, err)
		}
		t := EventTestFailed
		if passed {
			t = EventTestPassed
		}
		c.send(Event{Type: t, SessionID: sessID, TaskID: taskID, Output: output})
	}()
}

func (c *Coordinator) handleTestPassed(ctx context.Context, ev Event) {
	task := c.activeTask(ev, session.TaskVerifying)
	if task == nil {
		return
	}
	task.RecordVerification(session.TestVerification{
		Command: c.repo.TestCommand,
		Passed:  true,
		Output:  ev.Output,
		RanAt:   time.Now(),
	})
	c.post(c.sess.ID, fmt.Sprintf("task %s: tests passed", task.ID))
	c.completeTask(ctx, task)
}

// completeTask commits any uncommitted agent work, publishes the branch,
// and promotes dependents.
func (c *Coordinator) completeTask(ctx context.Context, task *session.Task) {
	if dirty, err := c.mgr.HasUncommittedChanges(task.WorktreePath); err == nil && dirty {
		msg := fmt.Sprintf("%s: %s", task.ID, task.Title)
		if err := c.mgr.CommitAll(task.WorktreePath, msg); err != nil {
			c.log.Warn("commit failed", "task_id", task.ID, "error", err.Error())
		}
	}

	hasWork, err := c.mgr.HasCommitsBeyond(task.WorktreePath, c.prov.BaseBranch())
	if err != nil {
		c.log.Warn("commit check failed", "task_id", task.ID, "error", err.Error())
	}
	if hasWork {
		c.publishTask(ctx, task)
	} else {
		c.post(c.sess.ID, fmt.Sprintf("task %s produced no changes; skipping PR", task.ID))
	}

	task.SetStatus(session.TaskCompleted)
	c.post(c.sess.ID, fmt.Sprintf("task %s completed: %s", task.ID, task.Title))

	c.sess.RefreshReadiness()
	c.launchReady(ctx)
	c.maybeFinish(ctx)
}

func (c *Coordinator) publishTask(ctx context.Context, task *session.Task) {
	diff, err := c.mgr.DiffSummary(task.WorktreePath, c.prov.BaseBranch())
	if err != nil {
		c.log.Warn("diff summary failed", "task_id", task.ID, "error", err.Error())
	}
	content, err := c.planner.PullRequestContent(ctx, task, diff)
	c.syncUsage()
	if err != nil || content == nil {
		// The planner is unavailable; render the mechanical body instead.
		v := task.LastVerification()
		body, berr := worktree.BuildPRBody(worktree.PRBodyContext{
			Description: task.Description,
			TestCommand: c.repo.TestCommand,
			TestsPassed: v != nil && v.Passed,
			DependsOn:   task.DependsOn,
		})
		if berr != nil {
			body = task.Description
		}
		content = &planner.PRContent{Title: task.Title, Body: body}
	}

	pr, err := c.publisher.Publish(c.runCtx, task, task.WorktreePath, content)
	if err != nil {
		// The branch still exists locally; the PR can be created by hand.
		c.post(c.sess.ID, fmt.Sprintf("task %s: PR creation failed: %v", task.ID, err))
		return
	}
	task.PullRequest = &session.PullRequestRef{Number: pr.Number, URL: pr.URL}
	c.post(c.sess.ID, fmt.Sprintf("task %s: PR created: %s", task.ID, pr.URL))
}

func (c *Coordinator) handleTestFailed(ctx context.Context, ev Event) {
	task := c.activeTask(ev, session.TaskVerifying)
	if task == nil {
		return
	}
	task.RecordVerification(session.TestVerification{
		Command: c.repo.TestCommand,
		Passed:  false,
		Output:  ev.Output,
		RanAt:   time.Now(),
	})

	if task.RetryCount < c.cfg.Orchestrator.MaxTaskRetries {
		task.RetryCount++
		c.post(c.sess.ID, fmt.Sprintf("task %s: tests failed, retrying (attempt %d/%d)",
			task.ID, task.RetryCount, c.cfg.Orchestrator.MaxTaskRetries))
		// The retry launches a fresh agent process, so it needs the full
		// brief and completion protocol, not just the failure output.
		promptText, perr := c.prompts.Build(&prompt.Context{
			Task:     task,
			Request:  c.sess.Request,
			Repo:     c.repo,
			Siblings: c.sess.Tasks,
			Hint:     c.agent.CompletionHint(),
			Marker:   c.cfg.Detection.OutputMarker,
		})
		if perr != nil {
			c.failTask(ctx, task, perr.Error())
			return
		}
		promptText += "\n" + c.prompts.BuildRetry(task, c.repo.TestCommand, ev.Output, task.RetryCount)
		if err := c.launch(ctx, task, promptText); err == nil {
			return
		}
		// launch already marked the task failed and cancelled dependents
		c.maybeFinish(ctx)
		return
	}

	c.failTask(ctx, task, fmt.Sprintf("tests still failing after %d retries", task.RetryCount))
}

func (c *Coordinator) handleAgentFailed(ctx context.Context, ev Event) {
	task := c.activeTask(ev, session.TaskRunning)
	if task == nil {
		return
	}
	reason := "agent failed"
	if ev.Err != nil {
		reason = ev.Err.Error()
	}
	c.failAgent(ctx, task, reason)
}

// failAgent consults the planner for a remedy before giving up on a task
// whose agent finished unsuccessfully.
func (c *Coordinator) failAgent(ctx context.Context, task *session.Task, reason string) {
	c.retireAgent(task.ID, session.SubAgentFailed)
	remedy, err := c.planner.FailureRemedy(ctx, task, reason)
	c.syncUsage()
	if err != nil {
		remedy = planner.RemedyAskUser
	}

	switch remedy {
	case planner.RemedyRetry, planner.RemedyAlternate:
		if task.RetryCount >= c.cfg.Orchestrator.MaxTaskRetries {
			c.failTask(ctx, task, reason)
			return
		}
		task.RetryCount++
		promptText, perr := c.prompts.Build(&prompt.Context{
			Task:     task,
			Request:  c.sess.Request,
			Repo:     c.repo,
			Siblings: c.sess.Tasks,
			Hint:     c.agent.CompletionHint(),
			Marker:   c.cfg.Detection.OutputMarker,
		})
		if perr != nil {
			c.failTask(ctx, task, reason)
			return
		}
		if remedy == planner.RemedyAlternate {
			promptText += fmt.Sprintf("\nA previous attempt failed: %s\nTry a different approach this time.\n", firstLine(reason))
		}
		c.post(c.sess.ID, fmt.Sprintf("task %s: agent failed (%s), retrying (attempt %d/%d)",
			task.ID, firstLine(reason), task.RetryCount, c.cfg.Orchestrator.MaxTaskRetries))
		if err := c.launch(ctx, task, promptText); err != nil {
			c.maybeFinish(ctx)
		}
	default:
		c.post(c.sess.ID, fmt.Sprintf("task %s needs guidance: %s\nResume the session with revised instructions to retry it.",
			task.ID, firstLine(reason)))
		c.failTask(ctx, task, reason)
	}
}

// failTask marks a task permanently failed and cancels its dependents.
func (c *Coordinator) failTask(ctx context.Context, task *session.Task, reason string) {
	task.SetStatus(session.TaskFailed)
	task.FailureReason = reason
	cancelled := c.sess.CancelDependents(task.ID)
	text := fmt.Sprintf("task %s failed: %s", task.ID, firstLine(reason))
	if len(cancelled) > 0 {
		ids := make([]string, len(cancelled))
		for i, t := range cancelled {
			ids[i] = t.ID
		}
		text += fmt.Sprintf(" (cancelled dependents: %s)", strings.Join(ids, ", "))
	}
	c.post(c.sess.ID, text)
	c.launchReady(ctx)
	c.maybeFinish(ctx)
}

func (c *Coordinator) handleProgressTick() {
	if c.sess == nil || c.phase != phaseRunning {
		return
	}
	running := c.sess.RunningTasks()
	done := 0
	for _, t := range c.sess.Tasks {
		if t.Status.IsTerminal() {
			done++
		}
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "progress: %d/%d tasks done", done, len(c.sess.Tasks))
	for _, t := range running {
		fmt.Fprintf(&sb, "\n  %s [%s] %s (%s)", t.ID, t.Status, t.Title, time.Since(t.UpdatedAt).Round(time.Second))
	}
	c.post(c.sess.ID, sb.String())
}

func (c *Coordinator) handleInterrupt(ctx context.Context, ev Event) {
	if c.sess == nil || (ev.SessionID != "" && ev.SessionID != c.sess.ID) {
		if ev.SessionID != "" && c.queue.Remove(ev.SessionID) {
			c.post(ev.SessionID, "queued session removed")
		}
		return
	}

	c.executor.StopAll()
	c.agents = make(map[string]*session.SubAgent)
	for _, t := range c.sess.Tasks {
		if t.Status == session.TaskRunning || t.Status == session.TaskVerifying {
			t.SetStatus(session.TaskReady)
			t.PaneID = ""
		}
	}
	c.sess.SetStatus(session.StatusInterrupted)
	c.phase = phaseIdle
	c.post(c.sess.ID, fmt.Sprintf("session interrupted; resume with: overseer resume %s", c.sess.ID))
	c.advanceQueue(ctx)
}

// maybeFinish closes out the session once every task is terminal.
func (c *Coordinator) maybeFinish(ctx context.Context) {
	if c.sess == nil || c.phase != phaseRunning || !c.sess.AllTasksTerminal() {
		return
	}

	for _, line := range CleanupSession(c.sess, c.mgr, c.prov.BaseBranch(), c.log) {
		c.post(c.sess.ID, line)
	}

	completed, failed := 0, 0
	for _, t := range c.sess.Tasks {
		switch t.Status {
		case session.TaskCompleted:
			completed++
		case session.TaskFailed:
			failed++
		}
	}
	if completed > 0 {
		c.sess.SetStatus(session.StatusCompleted)
	} else {
		c.sess.SetStatus(session.StatusFailed)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "session finished: %d completed, %d failed, %d total\n", completed, failed, len(c.sess.Tasks))
	for _, t := range c.sess.Tasks {
		fmt.Fprintf(&sb, "  %s [%s] %s", t.ID, t.Status, t.Title)
		if t.PullRequest != nil {
			fmt.Fprintf(&sb, " %s", t.PullRequest.URL)
		}
		sb.WriteString("\n")
	}
	c.post(c.sess.ID, strings.TrimRight(sb.String(), "\n"))
	c.phase = phaseIdle
	c.advanceQueue(ctx)
}

// advanceQueue persists and releases the active session, then starts the
// next queued one.
func (c *Coordinator) advanceQueue(ctx context.Context) {
	c.persist()
	c.sess = nil
	c.repo = nil
	c.executor = nil
	c.publisher = nil
	c.agents = nil
	c.phase = phaseIdle

	next, ok := c.queue.Advance()
	if !ok {
		return
	}
	// Refresh persisted queue positions so `overseer sessions` stays honest.
	for i, id := range append([]string{next}, c.queue.Pending()...) {
		if s, err := c.store.Load(id); err == nil {
			s.QueuePosition = i
			if err := c.store.Save(s); err != nil {
				c.log.Warn("queue position update failed", "session_id", id)
			}
		}
	}
	c.startActive(ctx)
}

func (c *Coordinator) formatPlan() string {
	var sb strings.Builder
	sb.WriteString("proposed plan:\n")
	for _, t := range c.sess.Tasks {
		fmt.Fprintf(&sb, "  %s: %s", t.ID, t.Title)
		if len(t.DependsOn) > 0 {
			fmt.Fprintf(&sb, " (after %s)", strings.Join(t.DependsOn, ", "))
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "parallelism: %d", c.parallelism)
	return sb.String()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
