package session

import (
	"fmt"

	"github.com/Iron-Ham/overseer/internal/errors"
)

// ValidateTasks checks the task graph for unknown dependency references and
// cycles. It must be called after the planner produces a task list and before
// any task is dispatched.
func (s *Session) ValidateTasks() error {
	byID := make(map[string]*Task, len(s.Tasks))
	for _, t := range s.Tasks {
		if _, dup := byID[t.ID]; dup {
			return errors.NewTaskError("duplicate task id", nil).WithTaskID(t.ID)
		}
		byID[t.ID] = t
	}

	for _, t := range s.Tasks {
		for _, dep := range t.DependsOn {
			if _, ok := byID[dep]; !ok {
				return errors.NewTaskError(
					fmt.Sprintf("depends on unknown task %q", dep), errors.ErrTaskNotFound,
				).WithTaskID(t.ID)
			}
			if dep == t.ID {
				return errors.NewTaskError("depends on itself", errors.ErrDependencyCycle).WithTaskID(t.ID)
			}
		}
	}

	// Depth-first cycle detection over the dependency edges.
	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	state := make(map[string]int, len(s.Tasks))

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visiting:
			return errors.NewTaskError("dependency cycle", errors.ErrDependencyCycle).WithTaskID(id)
		case visited:
			return nil
		}
		state[id] = visiting
		for _, dep := range byID[id].DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = visited
		return nil
	}

	for _, t := range s.Tasks {
		if err := visit(t.ID); err != nil {
			return err
		}
	}
	return nil
}

// RefreshReadiness promotes pending tasks whose dependencies have all
// completed to ready. It returns the tasks promoted by this call.
func (s *Session) RefreshReadiness() []*Task {
	byID := make(map[string]*Task, len(s.Tasks))
	for _, t := range s.Tasks {
		byID[t.ID] = t
	}

	var promoted []*Task
	for _, t := range s.Tasks {
		if t.Status != TaskPending {
			continue
		}
		ready := true
		for _, dep := range t.DependsOn {
			d := byID[dep]
			if d == nil || d.Status != TaskCompleted {
				ready = false
				break
			}
		}
		if ready {
			t.SetStatus(TaskReady)
			promoted = append(promoted, t)
		}
	}
	if len(promoted) > 0 {
		s.Touch()
	}
	return promoted
}

// ReadyTasks returns tasks currently in the ready state, in plan order.
func (s *Session) ReadyTasks() []*Task {
	var ready []*Task
	for _, t := range s.Tasks {
		if t.Status == TaskReady {
			ready = append(ready, t)
		}
	}
	return ready
}

// RunningTasks returns tasks currently running or verifying.
func (s *Session) RunningTasks() []*Task {
	var running []*Task
	for _, t := range s.Tasks {
		if t.Status == TaskRunning || t.Status == TaskVerifying {
			running = append(running, t)
		}
	}
	return running
}

// AllTasksTerminal reports whether every task reached a terminal state.
func (s *Session) AllTasksTerminal() bool {
	for _, t := range s.Tasks {
		if !t.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// CancelDependents marks every pending or ready task that transitively
// depends on the given task as cancelled. Called when a task fails
// permanently so its downstream work does not dispatch against a missing
// dependency.
func (s *Session) CancelDependents(failedID string) []*Task {
	dependents := make(map[string]bool)
	dependents[failedID] = true

	// Tasks are in plan order, but dependencies may point anywhere; iterate
	// until a full pass adds nothing.
	for changed := true; changed; {
		changed = false
		for _, t := range s.Tasks {
			if dependents[t.ID] {
				continue
			}
			for _, dep := range t.DependsOn {
				if dependents[dep] {
					dependents[t.ID] = true
					changed = true
					break
				}
			}
		}
	}

	var cancelled []*Task
	for _, t := range s.Tasks {
		if t.ID == failedID || !dependents[t.ID] {
			continue
		}
		if t.Status == TaskPending || t.Status == TaskReady {
			t.SetStatus(TaskCancelled)
			t.FailureReason = fmt.Sprintf("dependency %s failed", failedID)
			cancelled = append(cancelled, t)
		}
	}
	if len(cancelled) > 0 {
		s.Touch()
	}
	return cancelled
}
