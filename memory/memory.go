// Package memory implements per-session conversation history with bounded
// growth: a hard trim ceiling plus deterministic compaction of older turns
// into a condensed note once a higher threshold is crossed.
package memory

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/hupe1980/supportflow/core"
	"github.com/hupe1980/supportflow/logging"
)

// Options configure the conversation memory.
type Options struct {
	// MaxTurns is the hard ceiling per session. Oldest turns are dropped
	// once the session exceeds it. Zero means no ceiling.
	MaxTurns int
	// CompactAfter triggers compaction once a session's turn count crosses
	// it. Must be below MaxTurns to have any effect; compaction condenses
	// the older half of the history into a single summary turn.
	CompactAfter int
	// Logger receives compaction and trim events.
	Logger logging.Logger
}

// ConversationMemory holds turn history per session. Sessions are created
// lazily on first append and kept for the process lifetime. Mutation is
// serialized per session; unrelated sessions never contend.
type ConversationMemory struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session

	maxTurns     int
	compactAfter int
	logger       logging.Logger
}

// New creates a ConversationMemory with a 40 turn ceiling and compaction at
// 30 turns.
func New(optFns ...func(o *Options)) *ConversationMemory {
	opts := Options{
		MaxTurns:     40,
		CompactAfter: 30,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &ConversationMemory{
		sessions:     make(map[string]*core.Session),
		maxTurns:     opts.MaxTurns,
		compactAfter: opts.CompactAfter,
		logger:       logging.OrNoOp(opts.Logger),
	}
}

// Ensure returns the session for id, creating it when unseen. The returned
// session carries its own lock for turn mutation.
func (m *ConversationMemory) Ensure(sessionID, userID string) *core.Session {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		return s
	}
	s = core.NewSession(sessionID, userID)
	m.sessions[sessionID] = s
	m.logger.Debug("memory.session.created", "session_id", sessionID)
	return s
}

// Append records a turn and applies the compaction and trim thresholds.
func (m *ConversationMemory) Append(sessionID string, turn core.Turn) {
	s := m.Ensure(sessionID, "")
	s.AddTurn(turn)

	if m.compactAfter > 0 && s.TurnCount() > m.compactAfter {
		m.compact(s)
	}
	if m.maxTurns > 0 {
		if dropped := s.TrimOldest(m.maxTurns); dropped > 0 {
			m.logger.Debug("memory.trimmed", "session_id", sessionID, "dropped", dropped)
		}
	}
}

// Context returns up to maxTurns of the most recent history for the session.
// Unknown sessions yield nil, never an error.
func (m *ConversationMemory) Context(sessionID string, maxTurns int) []core.Turn {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return s.Recent(maxTurns)
}

// SessionCount reports the number of live sessions, surfaced in health
// diagnostics.
func (m *ConversationMemory) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// compact condenses the older half of the session history into one summary
// turn. The summary is built deterministically from the compacted turns so
// memory never depends on a model call.
func (m *ConversationMemory) compact(s *core.Session) {
	n := s.TurnCount() / 2
	if n < 2 {
		return
	}
	old := s.Recent(0)
	if len(old) < n {
		return
	}
	summary := summarize(old[:n])
	if s.Compact(n, summary) {
		m.logger.Debug("memory.compacted", "session_id", s.ID, "compacted_turns", n)
	}
}

// summarize builds a condensed note from turns. Each turn contributes its
// role and a clipped first line.
func summarize(turns []core.Turn) string {
	var b strings.Builder
	b.WriteString("Earlier conversation (condensed):")
	for _, t := range turns {
		line := firstLine(t.Content)
		if line == "" {
			continue
		}
		b.WriteString(fmt.Sprintf("\n- %s: %s", t.Role, clip(line, 120)))
	}
	return b.String()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// clip shortens s to at most max bytes without cutting a rune in half.
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
