package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/supportflow/core"
)

// Message roles used in Request.Messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a function call request surfaced by a model provider, unified
// across vendors so downstream logic needs no per-provider branching.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON object string
}

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON schema
}

// Message is one entry of the normalized conversation transcript sent to a
// provider. Assistant messages may carry tool calls; tool messages carry the
// result for a single prior call, correlated by ToolCallID.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Request captures the normalized model input produced by the agent loop.
type Request struct {
	Instructions string           `json:"instructions"`
	Messages     []Message        `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// TokenUsage captures token statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model. A final
// response carries either free text, or one or more tool calls the agent
// must dispatch before the next reasoning step.
type Response struct {
	ID           string      `json:"id"`
	Partial      bool        `json:"partial"`
	Content      string      `json:"content"`
	ToolCalls    []ToolCall  `json:"tool_calls,omitempty"`
	FinishReason string      `json:"finish_reason"` // "stop", "length", "tool_calls", ...
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", ...
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required to drive generation. Generate
// streams zero or more partial responses followed by exactly one final
// response on the first channel, or an error on the second.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Complete drives Generate to completion and returns the final response,
// discarding partial chunks. This is the shape the agent loop consumes.
func Complete(ctx context.Context, m Model, req Request) (Response, error) {
	respCh, errCh := m.Generate(ctx, req)
	var final Response
	var sawFinal bool
	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if !resp.Partial {
				final = resp
				sawFinal = true
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return Response{}, err
			}
		}
	}
	if !sawFinal {
		return Response{}, fmt.Errorf("model emitted no final response")
	}
	return final, nil
}

// scriptEntry is one pre-programmed MockModel turn.
type scriptEntry struct {
	resp Response
	err  error
}

// MockModel is a deterministic in-memory Model for tests. Turns play back
// in the order they were scripted; once the script is exhausted it echoes
// the last user message.
type MockModel struct {
	mu     sync.Mutex
	info   Info
	script []scriptEntry
	calls  int
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info: Info{Name: name, Provider: "mock", SupportsTools: true},
	}
}

// AddTextTurn scripts a final free-text response.
func (m *MockModel) AddTextTurn(text string) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scriptEntry{resp: Response{
		ID:           core.NewID(),
		Content:      text,
		FinishReason: "stop",
	}})
	return m
}

// AddToolCallTurn scripts a response requesting a single tool call.
func (m *MockModel) AddToolCallTurn(toolName, argsJSON string) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scriptEntry{resp: Response{
		ID:           core.NewID(),
		ToolCalls:    []ToolCall{{ID: core.NewID(), Name: toolName, Arguments: argsJSON}},
		FinishReason: "tool_calls",
	}})
	return m
}

// AddErrorTurn scripts a provider failure.
func (m *MockModel) AddErrorTurn(err error) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scriptEntry{err: err})
	return m
}

// Calls returns how many Generate invocations were made.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 1)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.calls++
	var entry scriptEntry
	if len(m.script) > 0 {
		entry = m.script[0]
		m.script = m.script[1:]
	} else {
		entry = scriptEntry{resp: Response{
			ID:           core.NewID(),
			Content:      "Mock response to: " + lastUserMessage(req),
			FinishReason: "stop",
		}}
	}
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)
		if entry.err != nil {
			errCh <- entry.err
			return
		}
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- entry.resp:
		}
	}()
	return respCh, errCh
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }

func lastUserMessage(req Request) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			return req.Messages[i].Content
		}
	}
	return ""
}
