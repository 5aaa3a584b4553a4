package detect

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ExitFileName is where the pane's launch wrapper records the agent
// process's exit code. It backs the process-exit detection layer: zero
// means the agent ended cleanly, non-zero means it crashed or was
// killed.
const ExitFileName = ".overseer-exit"

// ExitStatusUnknown is reported when the agent's pane died without the
// wrapper recording an exit code, which means it was killed from
// outside rather than exiting on its own.
const ExitStatusUnknown = -1

// ExitFilePath returns the exit-status path for a worktree.
func ExitFilePath(worktreePath string) string {
	return filepath.Join(worktreePath, ExitFileName)
}

// ReadExitStatus reads the recorded exit code for a worktree.
func ReadExitStatus(worktreePath string) (int, error) {
	data, err := os.ReadFile(ExitFilePath(worktreePath))
	if err != nil {
		return ExitStatusUnknown, err
	}
	status, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return ExitStatusUnknown, err
	}
	return status, nil
}

// RemoveExitFile deletes a stale exit record so a retried task starts
// with a clean slate. Missing files are not an error.
func RemoveExitFile(worktreePath string) error {
	err := os.Remove(ExitFilePath(worktreePath))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
