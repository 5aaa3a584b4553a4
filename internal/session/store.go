package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Iron-Ham/overseer/internal/errors"
)

// sessionsDirName is the subdirectory of the state dir holding session files.
const sessionsDirName = "sessions"

// brokenSuffix is appended to session files that fail to parse so they are
// preserved for inspection instead of silently discarded.
const brokenSuffix = ".broken"

// Store persists sessions as JSON files under {stateDir}/sessions/{id}.json.
// All writes are atomic (temp file + rename) so a crash mid-save can never
// leave a truncated session on disk. The directory is created with 0700 and
// files with 0600 since sessions embed the full user request and agent
// conversation.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// NewStore creates a Store rooted at the given state directory, creating
// the sessions subdirectory if needed.
func NewStore(stateDir string) (*Store, error) {
	dir := filepath.Join(stateDir, sessionsDirName)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.NewSessionError("failed to create sessions directory", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory session files are written to.
func (s *Store) Dir() string {
	return s.dir
}

// Save persists a session atomically.
func (s *Store) Save(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.ID == "" {
		return errors.NewSessionError("session ID cannot be empty", nil)
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return errors.NewSessionError("failed to marshal session", err).WithSessionID(sess.ID)
	}

	return atomicWriteFile(s.sessionPath(sess.ID), data, 0600)
}

// Load retrieves a session by ID. If the file exists but cannot be parsed it
// is quarantined by renaming it with a .broken suffix, and ErrSessionCorrupted
// is returned so the caller can start fresh without destroying evidence.
func (s *Store) Load(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.sessionPath(id)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewSessionError("no such session", errors.ErrSessionNotFound).WithSessionID(id)
		}
		return nil, errors.NewSessionError("failed to read session file", err).WithSessionID(id)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		if renameErr := os.Rename(path, path+brokenSuffix); renameErr != nil {
			return nil, errors.NewSessionError(
				fmt.Sprintf("corrupt session could not be quarantined: %v", renameErr),
				errors.ErrSessionCorrupted,
			).WithSessionID(id)
		}
		return nil, errors.NewSessionError(
			fmt.Sprintf("quarantined corrupt session file as %s: %v", filepath.Base(path)+brokenSuffix, err),
			errors.ErrSessionCorrupted,
		).WithSessionID(id)
	}

	if sess.ID != id {
		return nil, errors.NewSessionError(
			fmt.Sprintf("session ID mismatch (file contains %q)", sess.ID),
			errors.ErrSessionCorrupted,
		).WithSessionID(id)
	}

	return &sess, nil
}

// Delete removes a session file.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.sessionPath(id)); err != nil {
		if os.IsNotExist(err) {
			return errors.NewSessionError("no such session", errors.ErrSessionNotFound).WithSessionID(id)
		}
		return errors.NewSessionError("failed to delete session file", err).WithSessionID(id)
	}
	return nil
}

// Summary is a lightweight view of a persisted session for listings.
type Summary struct {
	ID             string        `json:"id"`
	Request        string        `json:"request"`
	Status         SessionStatus `json:"status"`
	TaskCount      int           `json:"task_count"`
	CompletedCount int           `json:"completed_count"`
	QueuePosition  int           `json:"queue_position"`
	UpdatedAt      string        `json:"updated_at"`
}

// List returns summaries for all parseable sessions, newest first.
// Quarantined and unparseable files are skipped.
func (s *Store) List() ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewSessionError("failed to read sessions directory", err)
	}

	var sessions []*Session
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			continue
		}
		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			continue
		}
		sessions = append(sessions, &sess)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})

	summaries := make([]Summary, 0, len(sessions))
	for _, sess := range sessions {
		done := 0
		for _, t := range sess.Tasks {
			if t.Status == TaskCompleted {
				done++
			}
		}
		summaries = append(summaries, Summary{
			ID:             sess.ID,
			Request:        sess.Request,
			Status:         sess.Status,
			TaskCount:      len(sess.Tasks),
			CompletedCount: done,
			QueuePosition:  sess.QueuePosition,
			UpdatedAt:      sess.UpdatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return summaries, nil
}

// ValidateLoaded reconciles a freshly loaded session with the filesystem.
// Tasks whose recorded worktree path no longer exists cannot be resumed, so
// any such task still in a non-terminal state is marked failed. It returns
// the IDs of the tasks that were downgraded.
func ValidateLoaded(sess *Session) []string {
	var downgraded []string
	for _, t := range sess.Tasks {
		if t.WorktreePath == "" || t.Status.IsTerminal() {
			continue
		}
		if _, err := os.Stat(t.WorktreePath); os.IsNotExist(err) {
			t.SetStatus(TaskFailed)
			t.FailureReason = "worktree missing after restart"
			downgraded = append(downgraded, t.ID)
		}
	}
	if len(downgraded) > 0 {
		sess.Touch()
	}
	return downgraded
}

func (s *Store) sessionPath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// atomicWriteFile writes data to a file atomically by writing to a temporary
// file first, then renaming. This ensures the target file is never in a
// partially-written state.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	// Create temp file in same directory to ensure atomic rename
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on any error
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
