package core

import (
	"sync"
	"time"
)

// Turn is a single exchange entry in a session: a user message, an
// assistant reply, or a condensed summary note produced by compaction.
type Turn struct {
	Role      string    `json:"role"` // user, assistant, summary
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTurn creates a turn stamped with the current UTC time.
func NewTurn(role, content string) Turn {
	return Turn{Role: role, Content: content, Timestamp: time.Now().UTC()}
}

// Session is a caller-scoped conversation context carrying turn history
// across multiple chat calls. The ID is stable for the session lifetime and
// is generated server-side when absent from the incoming request. Sessions
// are process-local with no persistence guarantee across restarts.
//
// Safe for concurrent access; per-session locking means activity on one
// session never blocks another.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id,omitempty"`
	Turns        []Turn    `json:"turns"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`

	mu sync.RWMutex
}

// NewSession creates an empty session with the given id.
func NewSession(id, userID string) *Session {
	now := time.Now().UTC()
	return &Session{ID: id, UserID: userID, CreatedAt: now, LastActiveAt: now}
}

// AddTurn appends a turn and bumps LastActiveAt.
func (s *Session) AddTurn(t Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Turns = append(s.Turns, t)
	s.LastActiveAt = time.Now().UTC()
}

// Recent returns a defensive copy of the last max turns (all turns when
// max <= 0 or fewer turns exist).
func (s *Session) Recent(max int) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if max > 0 && len(s.Turns) > max {
		start = len(s.Turns) - max
	}
	out := make([]Turn, len(s.Turns)-start)
	copy(out, s.Turns[start:])
	return out
}

// TurnCount returns the number of stored turns.
func (s *Session) TurnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Turns)
}

// Compact replaces the oldest n turns with a single summary turn. It
// reports whether compaction happened; fewer than n stored turns is a no-op.
func (s *Session) Compact(n int, summary string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || len(s.Turns) < n {
		return false
	}
	note := Turn{Role: "summary", Content: summary, Timestamp: time.Now().UTC()}
	s.Turns = append([]Turn{note}, s.Turns[n:]...)
	return true
}

// TrimOldest drops turns from the front until at most max remain, returning
// the number dropped.
func (s *Session) TrimOldest(max int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if max <= 0 || len(s.Turns) <= max {
		return 0
	}
	dropped := len(s.Turns) - max
	s.Turns = s.Turns[dropped:]
	return dropped
}
