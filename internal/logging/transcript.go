package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultTranscriptMaxBytes caps a single transcript file before it is
// rolled over to a .1 backup. Pane captures arrive every few seconds for
// the lifetime of a task, so unbounded growth is a real concern for long
// sessions.
const DefaultTranscriptMaxBytes = 10 * 1024 * 1024

// TranscriptWriter records sub-agent pane output for one task to a file
// under {sessionDir}/transcripts/{taskID}.log. Each snapshot is framed
// with a timestamp header so the file can be replayed after a crash.
//
// It is safe for concurrent use, though in practice a single poller
// goroutine owns each writer.
type TranscriptWriter struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	size     int64
	maxBytes int64
	lastTail string
}

// NewTranscriptWriter opens (or creates) the transcript file for a task.
// maxBytes of 0 selects DefaultTranscriptMaxBytes.
func NewTranscriptWriter(sessionDir, taskID string, maxBytes int64) (*TranscriptWriter, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultTranscriptMaxBytes
	}

	dir := filepath.Join(sessionDir, "transcripts")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create transcript directory: %w", err)
	}

	path := filepath.Join(dir, taskID+".log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat transcript file: %w", err)
	}

	return &TranscriptWriter{
		path:     path,
		file:     file,
		size:     info.Size(),
		maxBytes: maxBytes,
	}, nil
}

// Append records a pane capture snapshot. Identical consecutive captures
// are skipped so an idle agent does not inflate the transcript.
func (w *TranscriptWriter) Append(capture string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return fmt.Errorf("transcript file is closed")
	}
	if capture == w.lastTail {
		return nil
	}
	w.lastTail = capture

	entry := fmt.Sprintf("--- %s ---\n%s\n", time.Now().UTC().Format(time.RFC3339), capture)

	if w.size+int64(len(entry)) > w.maxBytes {
		if err := w.rollover(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: transcript rollover failed: %v\n", err)
		}
	}

	n, err := w.file.WriteString(entry)
	w.size += int64(n)
	return err
}

// rollover renames the current file to {path}.1 (replacing any previous
// backup) and starts a fresh file. The caller must hold the mutex.
func (w *TranscriptWriter) rollover() error {
	if err := w.file.Close(); err != nil {
		return err
	}
	w.file = nil

	backup := w.path + ".1"
	os.Remove(backup)
	if err := os.Rename(w.path, backup); err != nil {
		return err
	}

	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	w.file = file
	w.size = 0
	return nil
}

// Path returns the transcript file path.
func (w *TranscriptWriter) Path() string {
	return w.path
}

// Close flushes and closes the transcript file.
func (w *TranscriptWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync transcript file: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close transcript file: %w", err)
	}
	w.file = nil
	return nil
}
