package orchestrator

import "sync"

// SessionQueue serializes sessions: one active at a time, the rest in
// FIFO order. The queue only advances after the active session's
// cleanup has finished, so worktrees never overlap between sessions.
type SessionQueue struct {
	mu      sync.Mutex
	active  string
	pending []string
}

// NewSessionQueue creates an empty queue.
func NewSessionQueue() *SessionQueue {
	return &SessionQueue{}
}

// Enqueue adds a session and returns its queue position: 0 means it
// became active immediately, 1 means next in line, and so on.
func (q *SessionQueue) Enqueue(sessionID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.active == "" {
		q.active = sessionID
		return 0
	}
	q.pending = append(q.pending, sessionID)
	return len(q.pending)
}

// Current returns the active session id, empty when idle.
func (q *SessionQueue) Current() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// Advance retires the active session and promotes the next pending one.
// It returns the new active id and whether one exists.
func (q *SessionQueue) Advance() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		q.active = ""
		return "", false
	}
	q.active = q.pending[0]
	q.pending = q.pending[1:]
	return q.active, true
}

// Position returns a session's place in line: 0 for active, -1 if the
// session is not queued.
func (q *SessionQueue) Position(sessionID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.active == sessionID {
		return 0
	}
	for i, id := range q.pending {
		if id == sessionID {
			return i + 1
		}
	}
	return -1
}

// Pending returns the queued session ids in order, excluding the active
// one.
func (q *SessionQueue) Pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.pending...)
}

// Remove drops a pending session from the queue. The active session
// cannot be removed; interrupt it instead.
func (q *SessionQueue) Remove(sessionID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, id := range q.pending {
		if id == sessionID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return true
		}
	}
	return false
}
