package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/supportflow/approval"
	"github.com/hupe1980/supportflow/core"
	"github.com/hupe1980/supportflow/memory"
	"github.com/hupe1980/supportflow/model"
	"github.com/hupe1980/supportflow/policy"
	"github.com/hupe1980/supportflow/tool"
)

func echoTool(name string) *tool.FunctionTool {
	return tool.NewFunctionTool(name, "test tool",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{"ok": true}, nil
		},
	)
}

func failingTool(name string) *tool.FunctionTool {
	return tool.NewFunctionTool(name, "always fails",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(ctx context.Context, args map[string]any) (any, error) {
			return nil, errors.New("internal database exploded")
		},
	)
}

func gatedTool(name string) *tool.FunctionTool {
	return tool.NewFunctionTool(name, "sensitive tool",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{"done": true}, nil
		},
		tool.WithApproval(),
	)
}

type loopFixture struct {
	model    *model.MockModel
	registry *tool.Registry
	gate     *approval.Gate
	memory   *memory.ConversationMemory
	loop     *Loop
}

func newLoopFixture(t *testing.T, tools []tool.Tool, optFns ...func(o *Options)) *loopFixture {
	t.Helper()
	f := &loopFixture{
		model:    model.NewMockModel("test"),
		registry: tool.NewRegistry(),
		gate:     approval.NewGate(),
		memory:   memory.New(),
	}
	f.registry.MustRegister(tools...)
	f.loop = NewLoop(f.model, f.registry, f.gate, nil, f.memory, optFns...)
	return f
}

func TestLoop_PlainAnswer(t *testing.T) {
	f := newLoopFixture(t, nil)
	f.model.AddTextTurn("Hello, how can I help?")

	exec := f.loop.Run(context.Background(), "hi", "s1", "u1")

	assert.Equal(t, core.StatusCompleted, exec.Status)
	assert.Equal(t, "Hello, how can I help?", exec.Response)
	require.Equal(t, 1, exec.StepCount())
	assert.Equal(t, core.ActionReason, exec.Steps[0].Action)
}

func TestLoop_ToolCallThenAnswer(t *testing.T) {
	f := newLoopFixture(t, []tool.Tool{echoTool("lookupOrder")})
	f.model.AddToolCallTurn("lookupOrder", `{"order_id":"ORD-12345"}`)
	f.model.AddTextTurn("Your order has shipped.")

	exec := f.loop.Run(context.Background(), "where is my order?", "s1", "u1")

	assert.Equal(t, core.StatusCompleted, exec.Status)
	require.GreaterOrEqual(t, exec.StepCount(), 2)

	toolStep := exec.Steps[0]
	assert.Equal(t, core.ActionUseTool, toolStep.Action)
	assert.Equal(t, "lookupOrder", toolStep.Tool)
	assert.Equal(t, "ORD-12345", toolStep.Args["order_id"])

	outcome, ok := toolStep.Result.(ToolOutcome)
	require.True(t, ok)
	assert.True(t, outcome.Success)
}

func TestLoop_ToolFailureIsNotFatal(t *testing.T) {
	f := newLoopFixture(t, []tool.Tool{failingTool("lookupOrder")})
	f.model.AddToolCallTurn("lookupOrder", `{}`)
	f.model.AddTextTurn("I could not look that up, sorry.")

	exec := f.loop.Run(context.Background(), "where is my order?", "s1", "u1")

	assert.Equal(t, core.StatusCompleted, exec.Status)
	outcome := exec.Steps[0].Result.(ToolOutcome)
	assert.False(t, outcome.Success)
	assert.NotContains(t, outcome.Error, "exploded", "internal error text must not surface")
}

func TestLoop_UnknownTool(t *testing.T) {
	f := newLoopFixture(t, nil)
	f.model.AddToolCallTurn("teleportOrder", `{}`)
	f.model.AddTextTurn("I cannot do that.")

	exec := f.loop.Run(context.Background(), "teleport my order", "s1", "u1")

	assert.Equal(t, core.StatusCompleted, exec.Status)
	outcome := exec.Steps[0].Result.(ToolOutcome)
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "not available")
}

func TestLoop_StepLimit(t *testing.T) {
	f := newLoopFixture(t, []tool.Tool{echoTool("lookupOrder")}, func(o *Options) {
		o.MaxSteps = 3
	})
	for i := 0; i < 10; i++ {
		f.model.AddToolCallTurn("lookupOrder", `{}`)
	}

	exec := f.loop.Run(context.Background(), "loop forever", "s1", "u1")

	assert.Equal(t, core.StatusStepLimitExceeded, exec.Status)
	assert.Equal(t, 3, exec.StepCount())
	assert.NotEmpty(t, exec.Response)
}

func TestLoop_StepCountNeverExceedsMax(t *testing.T) {
	f := newLoopFixture(t, []tool.Tool{echoTool("lookupOrder")}, func(o *Options) {
		o.MaxSteps = 4
	})
	f.model.AddToolCallTurn("lookupOrder", `{}`)
	f.model.AddToolCallTurn("lookupOrder", `{}`)
	f.model.AddTextTurn("done")

	exec := f.loop.Run(context.Background(), "check twice", "s1", "u1")

	assert.LessOrEqual(t, exec.StepCount(), 4)
	if exec.StepCount() == 4 {
		assert.Equal(t, core.StatusStepLimitExceeded, exec.Status)
	}
}

func TestLoop_ModelFailure(t *testing.T) {
	f := newLoopFixture(t, nil)
	f.model.AddErrorTurn(errors.New("api key leaked in this message"))

	exec := f.loop.Run(context.Background(), "hi", "s1", "u1")

	assert.Equal(t, core.StatusFailed, exec.Status)
	assert.NotContains(t, exec.Response, "api key")
	assert.NotEmpty(t, exec.Response)
}

func TestLoop_ApprovalApproved(t *testing.T) {
	f := newLoopFixture(t, []tool.Tool{gatedTool("processRefund")}, func(o *Options) {
		o.ApprovalTimeout = 5 * time.Second
	})
	f.model.AddToolCallTurn("processRefund", `{}`)
	f.model.AddTextTurn("Refund processed.")

	done := make(chan *core.Execution, 1)
	go func() { done <- f.loop.Run(context.Background(), "refund me", "s1", "u1") }()

	id := waitForPending(t, f.gate)
	require.NoError(t, f.gate.Resolve(id, true, "agent-1"))

	exec := <-done
	assert.Equal(t, core.StatusCompleted, exec.Status)
	outcome := exec.Steps[0].Result.(ToolOutcome)
	assert.True(t, outcome.Success)
}

func TestLoop_ApprovalRejected(t *testing.T) {
	f := newLoopFixture(t, []tool.Tool{gatedTool("processRefund")}, func(o *Options) {
		o.ApprovalTimeout = 5 * time.Second
	})
	f.model.AddToolCallTurn("processRefund", `{}`)
	f.model.AddTextTurn("I understand, the refund was not approved.")

	done := make(chan *core.Execution, 1)
	go func() { done <- f.loop.Run(context.Background(), "refund me", "s1", "u1") }()

	id := waitForPending(t, f.gate)
	require.NoError(t, f.gate.Resolve(id, false, "agent-1"))

	exec := <-done
	assert.Equal(t, core.StatusCompleted, exec.Status)
	outcome := exec.Steps[0].Result.(ToolOutcome)
	assert.False(t, outcome.Success)
	assert.Equal(t, string(approval.ResolutionRejected), outcome.Approval)
}

// An unresolved approval must still yield a completed execution once the
// deadline fires; the turn never hangs.
func TestLoop_ApprovalTimeout(t *testing.T) {
	f := newLoopFixture(t, []tool.Tool{gatedTool("processRefund")}, func(o *Options) {
		o.ApprovalTimeout = 30 * time.Millisecond
	})
	f.model.AddToolCallTurn("processRefund", `{}`)
	f.model.AddTextTurn("The approval timed out; I opened a ticket instead.")

	done := make(chan *core.Execution, 1)
	go func() { done <- f.loop.Run(context.Background(), "refund me", "s1", "u1") }()

	select {
	case exec := <-done:
		assert.Equal(t, core.StatusCompleted, exec.Status)
		outcome := exec.Steps[0].Result.(ToolOutcome)
		assert.False(t, outcome.Success)
		assert.Equal(t, string(approval.ResolutionTimedOut), outcome.Approval)
	case <-time.After(2 * time.Second):
		t.Fatal("loop hung on unresolved approval")
	}
}

func TestLoop_PolicyBlocks(t *testing.T) {
	engine, err := policy.NewEngine(context.Background(), `
package supportflow.tools

default decision = "allow"

decision = "block" {
	input.tool_name == "lookupOrder"
}
`)
	require.NoError(t, err)

	f := newLoopFixture(t, []tool.Tool{echoTool("lookupOrder")})
	f.loop = NewLoop(f.model, f.registry, f.gate, engine, f.memory)
	f.model.AddToolCallTurn("lookupOrder", `{}`)
	f.model.AddTextTurn("That action is not allowed.")

	exec := f.loop.Run(context.Background(), "look it up", "s1", "u1")

	outcome := exec.Steps[0].Result.(ToolOutcome)
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "not permitted")
}

func TestLoop_MemoryCarriesAcrossTurns(t *testing.T) {
	f := newLoopFixture(t, nil)
	f.model.AddTextTurn("Nice to meet you, Sam.")
	f.model.AddTextTurn("You told me your name is Sam.")

	f.loop.Run(context.Background(), "my name is Sam", "s1", "u1")
	f.loop.Run(context.Background(), "what is my name?", "s1", "u1")

	turns := f.memory.Context("s1", 10)
	require.Len(t, turns, 4)
	assert.Equal(t, "my name is Sam", turns[0].Content)
	assert.Equal(t, "Nice to meet you, Sam.", turns[1].Content)
}

func waitForPending(t *testing.T, g *approval.Gate) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pending := g.Pending(); len(pending) > 0 {
			return pending[0].ID
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no approval request appeared")
	return ""
}
