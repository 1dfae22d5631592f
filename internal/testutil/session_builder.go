package testutil

import (
	"github.com/hupe1980/supportflow/core"
)

// SessionBuilder helps construct sessions with fluent chaining for tests.
// Example:
//
//	sess := NewSessionBuilder("sess-1").User("u-1").Exchange("hi", "hello").Build()
type SessionBuilder struct {
	id     string
	userID string
	turns  []core.Turn
}

// NewSessionBuilder creates a new builder for a session with the given id.
func NewSessionBuilder(id string) *SessionBuilder {
	return &SessionBuilder{id: id}
}

// User sets the user id on the resulting session (chainable).
func (b *SessionBuilder) User(userID string) *SessionBuilder {
	b.userID = userID
	return b
}

// Turn appends a single turn with the given role and content (chainable).
func (b *SessionBuilder) Turn(role, content string) *SessionBuilder {
	b.turns = append(b.turns, core.NewTurn(role, content))
	return b
}

// Exchange appends a user turn followed by an assistant turn (chainable).
func (b *SessionBuilder) Exchange(user, assistant string) *SessionBuilder {
	return b.Turn("user", user).Turn("assistant", assistant)
}

// Build returns a *core.Session with the accumulated history.
func (b *SessionBuilder) Build() *core.Session {
	s := core.NewSession(b.id, b.userID)
	for _, t := range b.turns {
		s.AddTurn(t)
	}
	return s
}
