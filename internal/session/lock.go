package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Iron-Ham/overseer/internal/errors"
	"github.com/Iron-Ham/overseer/internal/logging"
)

// LockFileName is the name of the master lock file within the state directory.
const LockFileName = "overseer.lock"

// ErrStateLocked is returned when another orchestrator process owns the
// state directory.
var ErrStateLocked = errors.New("state directory is locked by another process")

// Lock represents the acquired master lock. Exactly one orchestrator process
// may own a state directory at a time; the FIFO session queue lives inside
// that process, so a second process would corrupt queue ordering.
type Lock struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`

	// Internal fields (not serialized)
	lockFile string
	logger   *logging.Logger
}

// AcquireLock attempts to acquire the exclusive master lock on the state
// directory. Returns ErrStateLocked if another live process holds it. A lock
// left by a dead process is removed and re-acquired. The logger parameter is
// optional and can be nil.
func AcquireLock(stateDir string, logger *logging.Logger) (*Lock, error) {
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	lockPath := filepath.Join(stateDir, LockFileName)

	// Check for existing lock
	if existingLock, err := ReadLock(lockPath); err == nil {
		if isProcessAlive(existingLock.PID) {
			if logger != nil {
				logger.Error("failed to acquire lock",
					"pid", existingLock.PID,
					"hostname", existingLock.Hostname,
				)
			}
			return nil, fmt.Errorf("%w: PID %d on %s", ErrStateLocked, existingLock.PID, existingLock.Hostname)
		}
		// Stale lock - remove it
		oldPID := existingLock.PID
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", err)
		}
		if logger != nil {
			logger.Warn("stale lock cleaned", "old_pid", oldPID)
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	lock := &Lock{
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
		lockFile:  lockPath,
		logger:    logger,
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	// Use O_EXCL to fail if file already exists (race condition protection)
	f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			// Another process beat us to it - re-read and report
			if existingLock, readErr := ReadLock(lockPath); readErr == nil {
				return nil, fmt.Errorf("%w: PID %d on %s", ErrStateLocked, existingLock.PID, existingLock.Hostname)
			}
			return nil, ErrStateLocked
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		os.Remove(lockPath)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}

	if logger != nil {
		logger.Info("master lock acquired", "pid", lock.PID)
	}

	return lock, nil
}

// Release releases the master lock by removing the lock file.
// Safe to call multiple times.
func (l *Lock) Release() error {
	if l == nil || l.lockFile == "" {
		return nil
	}

	// Only remove if we own the lock (PID matches)
	existingLock, err := ReadLock(l.lockFile)
	if err != nil {
		return nil
	}
	if existingLock.PID != l.PID {
		return nil
	}

	if err := os.Remove(l.lockFile); err != nil {
		return err
	}

	if l.logger != nil {
		l.logger.Info("master lock released", "pid", l.PID)
	}
	return nil
}

// ReadLock reads a lock file and returns the Lock info.
func ReadLock(lockPath string) (*Lock, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return nil, err
	}

	var lock Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to parse lock file: %w", err)
	}
	lock.lockFile = lockPath
	return &lock, nil
}

// IsLocked checks whether the state directory is currently locked by a live
// process. Returns the lock info if a lock file exists.
func IsLocked(stateDir string) (*Lock, bool) {
	lock, err := ReadLock(filepath.Join(stateDir, LockFileName))
	if err != nil {
		return nil, false
	}
	if !isProcessAlive(lock.PID) {
		return lock, false
	}
	return lock, true
}

// CleanStaleLock removes the lock file if the owning process is no longer
// running. Returns true if a stale lock was cleaned.
func CleanStaleLock(stateDir string, logger *logging.Logger) (bool, error) {
	lockPath := filepath.Join(stateDir, LockFileName)

	lock, err := ReadLock(lockPath)
	if err != nil {
		return false, nil
	}
	if isProcessAlive(lock.PID) {
		return false, nil
	}

	if err := os.Remove(lockPath); err != nil {
		return false, fmt.Errorf("failed to remove stale lock: %w", err)
	}
	if logger != nil {
		logger.Warn("stale lock cleaned", "old_pid", lock.PID)
	}
	return true, nil
}

// isProcessAlive checks if a process with the given PID is still running.
func isProcessAlive(pid int) bool {
	// On Unix, sending signal 0 checks if process exists without affecting it
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
