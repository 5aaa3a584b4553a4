// Package detect decides when a coding agent has finished its task. It
// layers several strategies: a sentinel done-file the agent writes, the
// agent process exiting, a completion marker in pane output, and finally
// an idle timeout with a confirmation nudge.
package detect

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/Iron-Ham/overseer/internal/errors"
)

// DoneFileName is the sentinel file agents are instructed to write into
// their worktree when they finish. Its existence alone signals
// completion; its contents carry the agent's self-report.
const DoneFileName = ".overseer-done.json"

// Done-file status values.
const (
	DoneStatusComplete = "complete"
	DoneStatusBlocked  = "blocked"
	DoneStatusFailed   = "failed"
)

// DoneReport is the completion report an agent writes to the done file.
type DoneReport struct {
	TaskID        string   `json:"task_id"`
	Status        string   `json:"status"`
	Summary       string   `json:"summary"`
	FilesModified []string `json:"files_modified,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

// Succeeded reports whether the agent considers the task done. An empty
// status counts as success since the file's existence is the signal and
// some agents write minimal reports.
func (r *DoneReport) Succeeded() bool {
	return r.Status == DoneStatusComplete || r.Status == ""
}

// DoneFilePath returns the sentinel path for a worktree.
func DoneFilePath(worktreePath string) string {
	return filepath.Join(worktreePath, DoneFileName)
}

// ReadDoneFile reads and parses the sentinel file in a worktree. A file
// that exists but holds malformed JSON still counts as a completion
// signal, so the report is returned with only the status left empty
// rather than an error.
func ReadDoneFile(worktreePath string) (*DoneReport, error) {
	data, err := os.ReadFile(DoneFilePath(worktreePath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, errors.NewTaskError("read done file", err)
	}

	var report DoneReport
	if err := json.Unmarshal(data, &report); err != nil {
		trimmed := strings.TrimSpace(string(data))
		if len(trimmed) > 500 {
			trimmed = trimmed[:500]
		}
		return &DoneReport{Status: DoneStatusComplete, Summary: trimmed}, nil
	}
	return &report, nil
}

// RemoveDoneFile deletes a stale sentinel so a retried task starts with
// a clean slate. Missing files are not an error.
func RemoveDoneFile(worktreePath string) error {
	err := os.Remove(DoneFilePath(worktreePath))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
