package core

import (
	"sync"
	"time"
)

// StepAction categorizes a single unit of agent progress.
type StepAction string

const (
	// ActionReason records a reasoning utterance produced by the model.
	ActionReason StepAction = "reason"
	// ActionUseTool records a single tool invocation and its result.
	ActionUseTool StepAction = "use_tool"
)

// ExecutionStatus is the terminal state of an execution.
type ExecutionStatus string

const (
	StatusCompleted         ExecutionStatus = "completed"
	StatusStepLimitExceeded ExecutionStatus = "step_limit_exceeded"
	StatusFailed            ExecutionStatus = "failed"
)

// Step is one unit of agent progress within an execution: either a
// reasoning utterance or a single tool invocation with its result.
// Steps are append-only and strictly ordered by Index.
type Step struct {
	Index     int            `json:"index"`
	Action    StepAction     `json:"action"`
	Tool      string         `json:"tool,omitempty"`
	Args      map[string]any `json:"args,omitempty"`
	Result    any            `json:"result,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Execution is the complete record of one agent turn, from the first
// reasoning step to the final response. It is created at the start of a
// chat call, mutated only by the loop that owns it, and sealed when the
// turn ends. After Seal the record must be treated as immutable.
type Execution struct {
	ID        string          `json:"id"`
	AgentName string          `json:"agent_name"`
	SessionID string          `json:"session_id"`
	Steps     []Step          `json:"steps"`
	Response  string          `json:"response"`
	Status    ExecutionStatus `json:"status"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration"`

	mu sync.Mutex
}

// NewExecution creates an open execution bound to an agent and session.
func NewExecution(agentName, sessionID string) *Execution {
	return &Execution{
		ID:        NewID(),
		AgentName: agentName,
		SessionID: sessionID,
		StartedAt: time.Now().UTC(),
	}
}

// AddReasonStep appends a reasoning step and returns its index.
func (e *Execution) AddReasonStep(text string) int {
	return e.addStep(Step{Action: ActionReason, Result: text})
}

// AddToolStep appends a tool invocation step and returns its index.
func (e *Execution) AddToolStep(toolName string, args map[string]any, result any) int {
	return e.addStep(Step{Action: ActionUseTool, Tool: toolName, Args: args, Result: result})
}

func (e *Execution) addStep(s Step) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	s.Index = len(e.Steps)
	s.Timestamp = time.Now().UTC()
	e.Steps = append(e.Steps, s)
	return s.Index
}

// StepCount returns the current number of recorded steps.
func (e *Execution) StepCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Steps)
}

// LastReasoning returns the text of the most recent reasoning step, or ""
// when no reasoning step was recorded yet.
func (e *Execution) LastReasoning() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.Steps) - 1; i >= 0; i-- {
		if e.Steps[i].Action == ActionReason {
			if text, ok := e.Steps[i].Result.(string); ok {
				return text
			}
		}
	}
	return ""
}

// Seal finalizes the execution with a response and terminal status.
func (e *Execution) Seal(status ExecutionStatus, response string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Status = status
	e.Response = response
	e.Duration = time.Since(e.StartedAt)
}
