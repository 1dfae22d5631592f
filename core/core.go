package core

import "github.com/google/uuid"

// NewID generates a new unique identifier.
//
// Used for executions, sessions, approval requests and indexed documents.
// UUIDs keep collision probability negligible for the process lifetime,
// which is all the orchestrator guarantees.
func NewID() string { return uuid.NewString() }
