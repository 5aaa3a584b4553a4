package detect

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/overseer/internal/session"
)

// fakePane simulates agent pane output for monitor tests.
type fakePane struct {
	mu      sync.Mutex
	output  string
	exited  chan struct{}
	inputs  []string
	capErr  error
	exitOne sync.Once
}

func newFakePane() *fakePane {
	return &fakePane{exited: make(chan struct{})}
}

func (f *fakePane) Capture() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.capErr != nil {
		return "", f.capErr
	}
	return f.output, nil
}

func (f *fakePane) Exited() <-chan struct{} { return f.exited }

func (f *fakePane) SendInput(input string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, input)
	return nil
}

func (f *fakePane) setOutput(s string) {
	f.mu.Lock()
	f.output = s
	f.mu.Unlock()
}

func (f *fakePane) exit() {
	f.exitOne.Do(func() { close(f.exited) })
}

func (f *fakePane) sentInputs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.inputs...)
}

func runMonitor(t *testing.T, pane Pane, opts Options) *Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	m := NewMonitor(pane, opts)
	result, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return result
}

func TestMonitorSignalFile(t *testing.T) {
	dir := t.TempDir()
	pane := newFakePane()
	pane.setOutput("working...")

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(DoneFilePath(dir), []byte(`{"task_id":"t1","status":"complete","summary":"ok"}`), 0o600)
	}()

	result := runMonitor(t, pane, Options{
		WorktreePath:    dir,
		Marker:          "DONE_MARKER",
		CaptureInterval: 20 * time.Millisecond,
	})

	if result.Source != session.CompletionSignal {
		t.Errorf("Source = %s, want signal", result.Source)
	}
	if result.Report == nil || result.Report.TaskID != "t1" {
		t.Errorf("Report = %+v", result.Report)
	}
}

func TestMonitorPreexistingDoneFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(DoneFilePath(dir), []byte(`{"status":"complete"}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	pane := newFakePane()
	result := runMonitor(t, pane, Options{
		WorktreePath:    dir,
		CaptureInterval: 20 * time.Millisecond,
	})
	if result.Source != session.CompletionSignal {
		t.Errorf("Source = %s, want signal", result.Source)
	}
}

func TestMonitorProcessExit(t *testing.T) {
	dir := t.TempDir()
	pane := newFakePane()
	pane.setOutput("goodbye")

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(ExitFilePath(dir), []byte("0\n"), 0o600)
		pane.exit()
	}()

	result := runMonitor(t, pane, Options{
		WorktreePath:    dir,
		CaptureInterval: 20 * time.Millisecond,
	})
	if result.Source != session.CompletionProcessExit {
		t.Errorf("Source = %s, want process_exit", result.Source)
	}
	if result.ExitStatus != 0 {
		t.Errorf("ExitStatus = %d, want 0", result.ExitStatus)
	}
}

func TestMonitorProcessExitCarriesFailureStatus(t *testing.T) {
	dir := t.TempDir()
	pane := newFakePane()
	if err := os.WriteFile(ExitFilePath(dir), []byte("2\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	pane.exit()

	result := runMonitor(t, pane, Options{
		WorktreePath:    dir,
		CaptureInterval: 20 * time.Millisecond,
	})
	if result.Source != session.CompletionProcessExit {
		t.Errorf("Source = %s, want process_exit", result.Source)
	}
	if result.ExitStatus != 2 {
		t.Errorf("ExitStatus = %d, want 2", result.ExitStatus)
	}
}

func TestMonitorProcessExitWithoutRecordIsUnknown(t *testing.T) {
	dir := t.TempDir()
	pane := newFakePane()
	pane.exit()

	result := runMonitor(t, pane, Options{
		WorktreePath:    dir,
		CaptureInterval: 20 * time.Millisecond,
	})
	if result.ExitStatus != ExitStatusUnknown {
		t.Errorf("ExitStatus = %d, want %d", result.ExitStatus, ExitStatusUnknown)
	}
}

func TestMonitorExitWithDoneFilePrefersSignal(t *testing.T) {
	dir := t.TempDir()
	pane := newFakePane()
	if err := os.WriteFile(DoneFilePath(dir), []byte(`{"status":"complete"}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	pane.exit()

	result := runMonitor(t, pane, Options{
		WorktreePath:    dir,
		CaptureInterval: 20 * time.Millisecond,
	})
	if result.Source != session.CompletionSignal {
		t.Errorf("Source = %s, want signal", result.Source)
	}
}

func TestMonitorOutputMarker(t *testing.T) {
	dir := t.TempDir()
	pane := newFakePane()
	pane.setOutput("all tests pass\nOVERSEER_TASK_DONE\n")

	result := runMonitor(t, pane, Options{
		WorktreePath:    dir,
		Marker:          "OVERSEER_TASK_DONE",
		CaptureInterval: 20 * time.Millisecond,
	})
	if result.Source != session.CompletionOutputMarker {
		t.Errorf("Source = %s, want output_marker", result.Source)
	}
	if result.FinalOutput == "" {
		t.Error("FinalOutput empty")
	}
}

func TestMonitorIdleTimeoutWithConfirmation(t *testing.T) {
	dir := t.TempDir()
	pane := newFakePane()
	pane.setOutput("stuck here")

	result := runMonitor(t, pane, Options{
		WorktreePath:    dir,
		CaptureInterval: 20 * time.Millisecond,
		Timeouts:        TimeoutConfig{IdleTimeout: 100 * time.Millisecond},
	})
	if result.Source != session.CompletionIdleTimeout {
		t.Errorf("Source = %s, want idle_timeout", result.Source)
	}
	inputs := pane.sentInputs()
	if len(inputs) != 1 {
		t.Fatalf("expected one confirmation nudge, got %d", len(inputs))
	}
}

func TestMonitorContextCancel(t *testing.T) {
	dir := t.TempDir()
	pane := newFakePane()
	pane.setOutput("working")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	m := NewMonitor(pane, Options{
		WorktreePath:    dir,
		CaptureInterval: 20 * time.Millisecond,
	})
	result, err := m.Run(ctx)
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if result != nil {
		t.Error("result should be nil on cancellation")
	}
}
