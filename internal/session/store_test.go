package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Iron-Ham/overseer/internal/errors"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	sess := New("fix the login flow", "/repo", "main", "claude")
	sess.Tasks = []*Task{
		NewTask("task-1", "Fix token refresh", "The refresh endpoint returns 401", nil),
		NewTask("task-2", "Update login form", "Surface refresh errors in the UI", []string{"task-1"}),
	}
	return sess
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	sess := newTestSession(t)
	sess.SetStatus(StatusRunning)
	sess.AddMessage(RoleUser, "fix the login flow")
	sess.AddMessage(RoleAssistant, "NO_QUESTIONS")
	sess.Tasks[0].SetStatus(TaskRunning)
	sess.Tasks[0].BranchName = "agent/task-1-fix-token-refresh"
	sess.Tasks[0].RecordVerification(TestVerification{Command: "go test ./...", Passed: false, Output: "FAIL"})
	sess.AddWorktree(WorktreeRef{BranchName: "agent/task-1-fix-token-refresh", Path: "/wt/task-1", TaskIDs: []string{"task-1"}})
	sess.RecordLLMCall(1200)

	if err := store.Save(sess); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Load(sess.ID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loaded.ID != sess.ID {
		t.Errorf("ID = %q, want %q", loaded.ID, sess.ID)
	}
	if loaded.Status != StatusRunning {
		t.Errorf("Status = %q, want %q", loaded.Status, StatusRunning)
	}
	if len(loaded.Tasks) != 2 {
		t.Fatalf("len(Tasks) = %d, want 2", len(loaded.Tasks))
	}
	if loaded.Tasks[0].Status != TaskRunning {
		t.Errorf("Tasks[0].Status = %q, want %q", loaded.Tasks[0].Status, TaskRunning)
	}
	if loaded.Tasks[1].DependsOn[0] != "task-1" {
		t.Errorf("Tasks[1].DependsOn = %v, want [task-1]", loaded.Tasks[1].DependsOn)
	}
	if got := loaded.Tasks[0].LastVerification(); got == nil || got.Attempt != 1 || got.Passed {
		t.Errorf("LastVerification() = %+v, want failed attempt 1", got)
	}
	if len(loaded.Messages) != 2 || loaded.Messages[1].Role != RoleAssistant {
		t.Errorf("Messages = %+v, want 2 entries ending with assistant", loaded.Messages)
	}
	if len(loaded.Worktrees) != 1 || loaded.Worktrees[0].Path != "/wt/task-1" {
		t.Errorf("Worktrees = %+v, want 1 entry at /wt/task-1", loaded.Worktrees)
	}
	if loaded.LLMCallCount != 1 || loaded.EstimatedTokens != 1200 {
		t.Errorf("usage = %d calls / %d tokens, want 1 / 1200", loaded.LLMCallCount, loaded.EstimatedTokens)
	}
}

func TestStore_SaveIsAtomic(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	sess := newTestSession(t)
	if err := store.Save(sess); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	// A second save must replace the file, never append or truncate-in-place.
	sess.SetStatus(StatusCompleted)
	if err := store.Save(sess); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(store.Dir())
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	for _, e := range entries {
		if e.Name() != sess.ID+".json" {
			t.Errorf("unexpected file in store dir: %s", e.Name())
		}
	}
}

func TestStore_LoadMissing(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	_, err = store.Load("nope")
	if !errors.Is(err, errors.ErrSessionNotFound) {
		t.Errorf("Load() error = %v, want ErrSessionNotFound", err)
	}
}

func TestStore_QuarantinesCorruptFile(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	path := filepath.Join(store.Dir(), "bad-session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatalf("writing corrupt file: %v", err)
	}

	_, err = store.Load("bad-session")
	if !errors.Is(err, errors.ErrSessionCorrupted) {
		t.Fatalf("Load() error = %v, want ErrSessionCorrupted", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("corrupt file still present, want it renamed away")
	}
	if _, err := os.Stat(path + brokenSuffix); err != nil {
		t.Errorf("quarantined file missing: %v", err)
	}
}

func TestStore_List(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	first := newTestSession(t)
	first.Tasks[0].SetStatus(TaskCompleted)
	if err := store.Save(first); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	second := newTestSession(t)
	second.QueuePosition = 1
	second.Touch()
	if err := store.Save(second); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// An unparseable file must not break listing.
	if err := os.WriteFile(filepath.Join(store.Dir(), "junk.json"), []byte("x"), 0600); err != nil {
		t.Fatalf("writing junk file: %v", err)
	}

	summaries, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("len(summaries) = %d, want 2", len(summaries))
	}
	// Newest first.
	if summaries[0].ID != second.ID {
		t.Errorf("summaries[0].ID = %q, want newest session %q", summaries[0].ID, second.ID)
	}
	for _, s := range summaries {
		if s.ID == first.ID && s.CompletedCount != 1 {
			t.Errorf("CompletedCount = %d, want 1", s.CompletedCount)
		}
	}
}

func TestStore_Delete(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	sess := newTestSession(t)
	if err := store.Save(sess); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Delete(sess.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(sess.ID); !errors.Is(err, errors.ErrSessionNotFound) {
		t.Errorf("second Delete() error = %v, want ErrSessionNotFound", err)
	}
}

func TestValidateLoaded_DowngradesMissingWorktrees(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "wt-exists")
	if err := os.Mkdir(existing, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	sess := newTestSession(t)
	sess.Tasks[0].SetStatus(TaskRunning)
	sess.Tasks[0].WorktreePath = filepath.Join(dir, "wt-gone")
	sess.Tasks[1].SetStatus(TaskRunning)
	sess.Tasks[1].WorktreePath = existing

	completed := NewTask("task-3", "done already", "", nil)
	completed.SetStatus(TaskCompleted)
	completed.WorktreePath = filepath.Join(dir, "also-gone")
	sess.Tasks = append(sess.Tasks, completed)

	downgraded := ValidateLoaded(sess)

	if len(downgraded) != 1 || downgraded[0] != "task-1" {
		t.Fatalf("downgraded = %v, want [task-1]", downgraded)
	}
	if sess.Tasks[0].Status != TaskFailed {
		t.Errorf("task-1 status = %q, want failed", sess.Tasks[0].Status)
	}
	if sess.Tasks[1].Status != TaskRunning {
		t.Errorf("task-2 status = %q, want running (worktree exists)", sess.Tasks[1].Status)
	}
	// Terminal tasks are left alone even when their worktree is gone.
	if completed.Status != TaskCompleted {
		t.Errorf("task-3 status = %q, want completed", completed.Status)
	}
}
