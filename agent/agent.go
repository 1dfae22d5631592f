// Package agent drives the bounded reasoning and tool-invocation loop that
// turns one user utterance into an Execution: a strictly ordered sequence of
// reasoning and tool steps ending in a final response.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/supportflow/approval"
	"github.com/hupe1980/supportflow/core"
	"github.com/hupe1980/supportflow/logging"
	"github.com/hupe1980/supportflow/memory"
	"github.com/hupe1980/supportflow/model"
	"github.com/hupe1980/supportflow/policy"
	"github.com/hupe1980/supportflow/tool"
)

// ToolOutcome is the recorded result of one tool dispatch. It is stored in
// the execution step and serialized back to the model, which reads Success
// to decide whether to retry, apologize or escalate.
type ToolOutcome struct {
	Success  bool   `json:"success"`
	Output   any    `json:"output,omitempty"`
	Error    string `json:"error,omitempty"`
	Approval string `json:"approval,omitempty"`
}

// Options configure a Loop.
type Options struct {
	// Name identifies the agent in executions and logs.
	Name string
	// Instructions is the system prompt prefixed to every model call.
	Instructions string
	// MaxSteps bounds the number of recorded steps per turn. Reaching it
	// force-terminates the turn with a best-effort response.
	MaxSteps int
	// HistoryTurns caps how much session history enters the prompt.
	HistoryTurns int
	// ApprovalTimeout is the deadline for gated tool calls.
	ApprovalTimeout time.Duration
	// Logger receives loop diagnostics.
	Logger logging.Logger
}

// Loop executes agent turns. One Run per chat call; concurrent runs for
// different sessions proceed independently with no shared locking beyond the
// read-mostly registry.
type Loop struct {
	model    model.Model
	registry *tool.Registry
	gate     *approval.Gate
	policy   *policy.Engine
	memory   *memory.ConversationMemory

	name            string
	instructions    string
	maxSteps        int
	historyTurns    int
	approvalTimeout time.Duration
	logger          logging.Logger
}

// genericFailure is what callers see when the model itself fails. The real
// error goes to the log, never across the transport boundary.
const genericFailure = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."

// NewLoop wires a loop over its collaborators. The policy engine is
// optional; without it only descriptor flags gate tool calls.
func NewLoop(m model.Model, registry *tool.Registry, gate *approval.Gate, engine *policy.Engine, mem *memory.ConversationMemory, optFns ...func(o *Options)) *Loop {
	opts := Options{
		Name:            "support",
		MaxSteps:        8,
		HistoryTurns:    10,
		ApprovalTimeout: 30 * time.Second,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Loop{
		model:           m,
		registry:        registry,
		gate:            gate,
		policy:          engine,
		memory:          mem,
		name:            opts.Name,
		instructions:    opts.Instructions,
		maxSteps:        opts.MaxSteps,
		historyTurns:    opts.HistoryTurns,
		approvalTimeout: opts.ApprovalTimeout,
		logger:          logging.OrNoOp(opts.Logger),
	}
}

// Run executes one agent turn and returns the sealed Execution. The
// execution is always terminal on return; a hang is a bug, not an outcome.
func (l *Loop) Run(ctx context.Context, userMessage, sessionID, userID string) *core.Execution {
	exec := core.NewExecution(l.name, sessionID)
	l.memory.Ensure(sessionID, userID)

	messages := l.buildTranscript(sessionID, userMessage)
	tools := l.toolDefinitions()

	for {
		if exec.StepCount() >= l.maxSteps {
			l.sealLimit(exec)
			break
		}

		resp, err := model.Complete(ctx, l.model, model.Request{
			Instructions: l.instructions,
			Messages:     messages,
			Tools:        tools,
		})
		if err != nil {
			l.logger.Error("agent.model_failed", "execution_id", exec.ID, "session_id", sessionID, "error", err.Error())
			exec.Seal(core.StatusFailed, genericFailure)
			break
		}

		if len(resp.ToolCalls) == 0 {
			answer := strings.TrimSpace(resp.Content)
			if answer != "" && exec.StepCount()+1 < l.maxSteps {
				exec.AddReasonStep(answer)
			}
			if answer == "" {
				answer = genericFailure
			}
			exec.Seal(core.StatusCompleted, answer)
			break
		}

		if text := strings.TrimSpace(resp.Content); text != "" {
			exec.AddReasonStep(text)
		}
		messages = append(messages, model.Message{
			Role:      model.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		limitHit := false
		for _, tc := range resp.ToolCalls {
			if exec.StepCount() >= l.maxSteps {
				limitHit = true
				break
			}
			args := parseArgs(tc.Arguments)
			outcome := l.dispatch(ctx, exec, tc.Name, args, userID)
			exec.AddToolStep(tc.Name, args, outcome)
			messages = append(messages, model.Message{
				Role:       model.RoleTool,
				Content:    marshalOutcome(outcome),
				ToolCallID: tc.ID,
			})
		}
		if limitHit {
			l.sealLimit(exec)
			break
		}
	}

	l.memory.Append(sessionID, core.NewTurn("user", userMessage))
	if exec.Response != "" {
		l.memory.Append(sessionID, core.NewTurn("assistant", exec.Response))
	}
	l.logger.Info("agent.turn",
		"execution_id", exec.ID,
		"session_id", sessionID,
		"status", exec.Status,
		"steps", exec.StepCount(),
		"duration", exec.Duration,
	)
	return exec
}

// dispatch runs a single tool call through registry lookup, policy
// evaluation, the approval gate and bounded execution. Failures become
// outcome records; nothing here is fatal to the turn.
func (l *Loop) dispatch(ctx context.Context, exec *core.Execution, toolName string, args map[string]any, userID string) ToolOutcome {
	desc, handler, ok := l.registry.Resolve(toolName)
	if !ok {
		l.logger.Warn("agent.tool_unknown", "execution_id", exec.ID, "tool", toolName)
		return ToolOutcome{Success: false, Error: fmt.Sprintf("tool %q is not available", toolName)}
	}

	needsApproval := desc.RequiresApproval
	if l.policy != nil {
		effect, err := l.policy.Evaluate(ctx, policy.Input{ToolName: toolName, Args: args, UserID: userID})
		if err != nil {
			l.logger.Error("agent.policy_failed", "execution_id", exec.ID, "tool", toolName, "error", err.Error())
			return ToolOutcome{Success: false, Error: "this action is not permitted"}
		}
		switch effect {
		case policy.EffectBlock:
			return ToolOutcome{Success: false, Error: fmt.Sprintf("use of %q is not permitted", toolName)}
		case policy.EffectRequireApproval:
			needsApproval = true
		}
	}

	if needsApproval {
		outcome, proceed := l.awaitApproval(ctx, exec, toolName, args)
		if !proceed {
			return outcome
		}
	}

	return l.execute(ctx, exec, desc, handler, args)
}

// awaitApproval registers the gate request and suspends this tool call until
// a resolution arrives. Only this call waits; other sessions are unaffected.
// The second return value reports whether execution may proceed.
func (l *Loop) awaitApproval(ctx context.Context, exec *core.Execution, toolName string, args map[string]any) (ToolOutcome, bool) {
	id, done := l.gate.Request(toolName, args, l.approvalTimeout)
	l.logger.Info("agent.awaiting_approval", "execution_id", exec.ID, "tool", toolName, "request_id", id)

	select {
	case outcome := <-done:
		if outcome.Allowed {
			return ToolOutcome{}, true
		}
		msg := fmt.Sprintf("the %q action was not approved", toolName)
		if outcome.Resolution == approval.ResolutionTimedOut {
			msg = fmt.Sprintf("approval for %q timed out before a decision was made", toolName)
		}
		return ToolOutcome{Success: false, Error: msg, Approval: string(outcome.Resolution)}, false
	case <-ctx.Done():
		return ToolOutcome{Success: false, Error: "the request was cancelled while awaiting approval"}, false
	}
}

// execute runs the tool under its descriptor timeout.
func (l *Loop) execute(ctx context.Context, exec *core.Execution, desc tool.Descriptor, handler tool.Tool, args map[string]any) ToolOutcome {
	timeout := desc.Timeout
	if timeout <= 0 {
		timeout = tool.DefaultToolTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := handler.Call(callCtx, args)
	if err != nil {
		l.logger.Warn("agent.tool_failed", "execution_id", exec.ID, "tool", desc.Name, "error", err.Error())
		return ToolOutcome{Success: false, Error: toolErrorSummary(desc.Name, err)}
	}
	return ToolOutcome{Success: true, Output: result}
}

// buildTranscript maps session history plus the current message into model
// messages. Compaction summaries ride along as system context.
func (l *Loop) buildTranscript(sessionID, userMessage string) []model.Message {
	history := l.memory.Context(sessionID, l.historyTurns)
	messages := make([]model.Message, 0, len(history)+1)
	for _, t := range history {
		switch t.Role {
		case "user":
			messages = append(messages, model.Message{Role: model.RoleUser, Content: t.Content})
		case "assistant":
			messages = append(messages, model.Message{Role: model.RoleAssistant, Content: t.Content})
		case "summary":
			messages = append(messages, model.Message{Role: model.RoleSystem, Content: t.Content})
		}
	}
	return append(messages, model.Message{Role: model.RoleUser, Content: userMessage})
}

func (l *Loop) toolDefinitions() []model.ToolDefinition {
	descs := l.registry.Descriptors()
	out := make([]model.ToolDefinition, len(descs))
	for i, d := range descs {
		out[i] = model.ToolDefinition{Name: d.Name, Description: d.Description, Parameters: d.Parameters}
	}
	return out
}

// sealLimit force-terminates a turn that exhausted its step budget,
// synthesizing a best-effort response from the last reasoning step.
func (l *Loop) sealLimit(exec *core.Execution) {
	response := exec.LastReasoning()
	if response == "" {
		response = "I wasn't able to finish working through that request. Could you rephrase or simplify it?"
	}
	exec.Seal(core.StatusStepLimitExceeded, response)
	l.logger.Warn("agent.step_limit", "execution_id", exec.ID, "steps", exec.StepCount())
}

// toolErrorSummary keeps tool failure feedback informative without leaking
// internals: validation messages pass through, everything else is generic.
func toolErrorSummary(toolName string, err error) string {
	var te *tool.ToolError
	if errors.As(err, &te) && te.Code == tool.CodeValidation {
		return te.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("the %q tool timed out", toolName)
	}
	return fmt.Sprintf("the %q tool failed to complete", toolName)
}

func parseArgs(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{}
	}
	return args
}

func marshalOutcome(o ToolOutcome) string {
	data, err := json.Marshal(o)
	if err != nil {
		return `{"success":false,"error":"result could not be serialized"}`
	}
	return string(data)
}
