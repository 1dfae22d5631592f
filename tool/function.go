package tool

import (
	"context"
	"time"

	"github.com/hupe1980/supportflow/internal/util"
)

// FunctionTool adapts a plain Go function into a Tool. It validates model
// supplied arguments against the declared schema before invoking the
// function and normalizes failures into *ToolError.
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use.
type FunctionTool struct {
	name             string
	description      string
	parameters       map[string]any
	requiresApproval bool
	timeout          time.Duration
	fn               func(ctx context.Context, args map[string]any) (any, error)
}

// FunctionToolOption mutates construction-time settings.
type FunctionToolOption func(*FunctionTool)

// WithApproval marks the tool as requiring human approval before execution.
// State-mutating tools (refunds, ticket escalation) should set this.
func WithApproval() FunctionToolOption {
	return func(t *FunctionTool) { t.requiresApproval = true }
}

// WithTimeout bounds a single execution of the tool.
func WithTimeout(d time.Duration) FunctionToolOption {
	return func(t *FunctionTool) { t.timeout = d }
}

// NewFunctionTool constructs a FunctionTool from an explicit schema and
// implementation.
//
// Example:
//
//	lookup := tool.NewFunctionTool(
//	  "lookupOrder",
//	  "Look up an order by its id",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "order_id": map[string]any{"type": "string"},
//	    },
//	    "required": []string{"order_id"},
//	  },
//	  func(ctx context.Context, args map[string]any) (any, error) { ... },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(ctx context.Context, args map[string]any) (any, error),
	opts ...FunctionToolOption,
) *FunctionTool {
	t := &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewFunctionToolFromStruct derives the parameter schema from an argument
// struct using reflection, equivalent to util.SchemaFromStruct.
func NewFunctionToolFromStruct(
	name, description string,
	argsType any,
	fn func(ctx context.Context, args map[string]any) (any, error),
	opts ...FunctionToolOption,
) *FunctionTool {
	return NewFunctionTool(name, description, util.SchemaFromStruct(argsType), fn, opts...)
}

// Name returns the unique tool name.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// RequiresApproval reports whether execution must pass the approval gate.
func (t *FunctionTool) RequiresApproval() bool { return t.requiresApproval }

// Timeout returns the per-call execution bound (zero means registry default).
func (t *FunctionTool) Timeout() time.Duration { return t.timeout }

// Call validates args against the declared schema then invokes the wrapped
// function. Validation or execution failures come back as *ToolError:
//
//	*ToolError returned by fn -> forwarded unchanged
//	schema mismatch           -> code VALIDATION_ERROR
//	other error               -> code EXECUTION_ERROR
func (t *FunctionTool) Call(ctx context.Context, args map[string]any) (any, error) {
	if err := util.ValidateParameters(args, t.parameters); err != nil {
		return nil, &ToolError{
			Tool:    t.name,
			Message: "parameter validation failed: " + err.Error(),
			Code:    CodeValidation,
			Details: err,
		}
	}

	result, err := t.fn(ctx, args)
	if err != nil {
		if toolErr, ok := err.(*ToolError); ok {
			return nil, toolErr
		}
		return nil, &ToolError{Tool: t.name, Message: err.Error(), Code: CodeExecution}
	}
	return result, nil
}
