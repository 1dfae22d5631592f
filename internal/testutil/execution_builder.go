package testutil

import (
	"github.com/hupe1980/supportflow/core"
)

// ExecutionBuilder provides a fluent helper for constructing executions in
// tests. Example:
//
//	exec := NewExecutionBuilder("support", "sess-1").
//		Reason("checking the order").
//		ToolStep("lookupOrder", map[string]any{"order_id": "ORD-1"}, result).
//		Sealed(core.StatusCompleted, "done").
//		Build()
//
// Chain only the parts you need.
type ExecutionBuilder struct {
	agentName string
	sessionID string
	steps     []func(e *core.Execution)
	status    core.ExecutionStatus
	response  string
	sealed    bool
}

// NewExecutionBuilder creates a builder bound to an agent and session.
func NewExecutionBuilder(agentName, sessionID string) *ExecutionBuilder {
	return &ExecutionBuilder{agentName: agentName, sessionID: sessionID}
}

// Reason appends a reasoning step (chainable).
func (b *ExecutionBuilder) Reason(text string) *ExecutionBuilder {
	b.steps = append(b.steps, func(e *core.Execution) { e.AddReasonStep(text) })
	return b
}

// ToolStep appends a tool invocation step (chainable).
func (b *ExecutionBuilder) ToolStep(toolName string, args map[string]any, result any) *ExecutionBuilder {
	b.steps = append(b.steps, func(e *core.Execution) { e.AddToolStep(toolName, args, result) })
	return b
}

// Sealed finalizes the execution with the given status and response
// (chainable).
func (b *ExecutionBuilder) Sealed(status core.ExecutionStatus, response string) *ExecutionBuilder {
	b.status = status
	b.response = response
	b.sealed = true
	return b
}

// Build constructs the *core.Execution value.
func (b *ExecutionBuilder) Build() *core.Execution {
	e := core.NewExecution(b.agentName, b.sessionID)
	for _, apply := range b.steps {
		apply(e)
	}
	if b.sealed {
		e.Seal(b.status, b.response)
	}
	return e
}
