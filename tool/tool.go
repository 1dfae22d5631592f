// Package tool implements the function-calling subsystem: structured
// capabilities the agent can invoke with schema-validated arguments, plus the
// registry that resolves tool names to descriptors and handlers.
package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/supportflow/internal/util"
)

// Tool is a callable capability exposed to the agent loop.
//
// Implementations should provide clear names and descriptions (they are shown
// to the model verbatim), declare a minimal JSON-schema for their arguments,
// and be safe for concurrent use: one registered tool instance serves every
// session.
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case or
	// lowerCamel, matching what the model is told).
	Name() string

	// Description returns the human-readable description given to the model.
	Description() string

	// Parameters returns a JSON-schema map describing the accepted arguments.
	Parameters() map[string]any

	// Call executes the tool with already-validated arguments. The context
	// carries the per-call timeout; implementations must respect it.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// Descriptor carries the registration metadata for a tool. Immutable once
// registered.
type Descriptor struct {
	Name             string         `json:"name"`
	Description      string         `json:"description"`
	Parameters       map[string]any `json:"parameters"`
	RequiresApproval bool           `json:"requires_approval"`
	Timeout          time.Duration  `json:"timeout,omitempty"`
}

// ValidationError re-exports the shared validation error type.
type ValidationError = util.ValidationError

// Error codes attached to ToolError for uniform downstream handling.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeNotFound   = "NOT_FOUND"
)

// ToolError represents a failure during tool resolution or execution.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}
