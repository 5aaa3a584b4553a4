package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTranscriptWriter_AppendAndSkipDuplicates(t *testing.T) {
	dir := t.TempDir()

	w, err := NewTranscriptWriter(dir, "task-1", 0)
	if err != nil {
		t.Fatalf("NewTranscriptWriter() error = %v", err)
	}

	if err := w.Append("running tests..."); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	// Identical consecutive capture must be dropped.
	if err := w.Append("running tests..."); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := w.Append("tests passed"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "transcripts", "task-1.log"))
	if err != nil {
		t.Fatalf("reading transcript: %v", err)
	}

	if got := strings.Count(string(data), "running tests..."); got != 1 {
		t.Errorf("duplicate capture recorded %d times, want 1", got)
	}
	if !strings.Contains(string(data), "tests passed") {
		t.Error("second capture missing from transcript")
	}
}

func TestTranscriptWriter_Rollover(t *testing.T) {
	dir := t.TempDir()

	// Tiny cap so two entries force a rollover.
	w, err := NewTranscriptWriter(dir, "task-2", 64)
	if err != nil {
		t.Fatalf("NewTranscriptWriter() error = %v", err)
	}

	if err := w.Append(strings.Repeat("a", 60)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := w.Append(strings.Repeat("b", 60)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	primary := filepath.Join(dir, "transcripts", "task-2.log")
	backup := primary + ".1"

	if _, err := os.Stat(backup); err != nil {
		t.Fatalf("backup transcript missing: %v", err)
	}

	got, err := os.ReadFile(primary)
	if err != nil {
		t.Fatalf("reading transcript: %v", err)
	}
	if !strings.Contains(string(got), "bbb") {
		t.Error("latest capture missing from primary transcript after rollover")
	}
}

func TestTranscriptWriter_AppendAfterClose(t *testing.T) {
	w, err := NewTranscriptWriter(t.TempDir(), "task-3", 0)
	if err != nil {
		t.Fatalf("NewTranscriptWriter() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.Append("late"); err == nil {
		t.Error("Append() after Close() = nil, want error")
	}
}
