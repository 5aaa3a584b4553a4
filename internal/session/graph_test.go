package session

import (
	"testing"

	"github.com/Iron-Ham/overseer/internal/errors"
)

func graphSession(tasks ...*Task) *Session {
	sess := New("request", "/repo", "main", "claude")
	sess.Tasks = tasks
	return sess
}

func TestValidateTasks(t *testing.T) {
	tests := []struct {
		name    string
		tasks   []*Task
		wantErr error
	}{
		{
			name: "valid diamond",
			tasks: []*Task{
				NewTask("a", "", "", nil),
				NewTask("b", "", "", []string{"a"}),
				NewTask("c", "", "", []string{"a"}),
				NewTask("d", "", "", []string{"b", "c"}),
			},
		},
		{
			name: "unknown dependency",
			tasks: []*Task{
				NewTask("a", "", "", []string{"ghost"}),
			},
			wantErr: errors.ErrTaskNotFound,
		},
		{
			name: "self dependency",
			tasks: []*Task{
				NewTask("a", "", "", []string{"a"}),
			},
			wantErr: errors.ErrDependencyCycle,
		},
		{
			name: "two node cycle",
			tasks: []*Task{
				NewTask("a", "", "", []string{"b"}),
				NewTask("b", "", "", []string{"a"}),
			},
			wantErr: errors.ErrDependencyCycle,
		},
		{
			name: "longer cycle",
			tasks: []*Task{
				NewTask("a", "", "", []string{"c"}),
				NewTask("b", "", "", []string{"a"}),
				NewTask("c", "", "", []string{"b"}),
			},
			wantErr: errors.ErrDependencyCycle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := graphSession(tt.tasks...).ValidateTasks()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateTasks() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateTasks() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRefreshReadiness(t *testing.T) {
	a := NewTask("a", "", "", nil)
	b := NewTask("b", "", "", []string{"a"})
	c := NewTask("c", "", "", []string{"a", "b"})
	sess := graphSession(a, b, c)

	// First pass: only the root becomes ready.
	promoted := sess.RefreshReadiness()
	if len(promoted) != 1 || promoted[0].ID != "a" {
		t.Fatalf("promoted = %v, want [a]", taskIDs(promoted))
	}
	if b.Status != TaskPending || c.Status != TaskPending {
		t.Error("dependent tasks promoted before their dependencies completed")
	}

	// A running dependency does not unlock dependents.
	a.SetStatus(TaskRunning)
	if promoted := sess.RefreshReadiness(); len(promoted) != 0 {
		t.Errorf("promoted = %v while dependency running, want none", taskIDs(promoted))
	}

	// Completion unlocks exactly the next layer.
	a.SetStatus(TaskCompleted)
	promoted = sess.RefreshReadiness()
	if len(promoted) != 1 || promoted[0].ID != "b" {
		t.Fatalf("promoted = %v, want [b]", taskIDs(promoted))
	}

	b.SetStatus(TaskCompleted)
	promoted = sess.RefreshReadiness()
	if len(promoted) != 1 || promoted[0].ID != "c" {
		t.Fatalf("promoted = %v, want [c]", taskIDs(promoted))
	}
}

func TestCancelDependents(t *testing.T) {
	a := NewTask("a", "", "", nil)
	b := NewTask("b", "", "", []string{"a"})
	c := NewTask("c", "", "", []string{"b"})
	d := NewTask("d", "", "", nil) // independent
	sess := graphSession(a, b, c, d)

	a.SetStatus(TaskFailed)
	cancelled := sess.CancelDependents("a")

	if got := taskIDs(cancelled); len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Fatalf("cancelled = %v, want [b c]", got)
	}
	if d.Status != TaskPending {
		t.Errorf("independent task status = %q, want pending", d.Status)
	}
	if b.FailureReason == "" {
		t.Error("cancelled task missing failure reason")
	}
}

func TestAllTasksTerminal(t *testing.T) {
	a := NewTask("a", "", "", nil)
	b := NewTask("b", "", "", nil)
	sess := graphSession(a, b)

	if sess.AllTasksTerminal() {
		t.Error("AllTasksTerminal() = true with pending tasks")
	}

	a.SetStatus(TaskCompleted)
	b.SetStatus(TaskCancelled)
	if !sess.AllTasksTerminal() {
		t.Error("AllTasksTerminal() = false with all tasks terminal")
	}
}

func taskIDs(tasks []*Task) []string {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}
