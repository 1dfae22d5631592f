package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_DefaultPolicy(t *testing.T) {
	ctx := context.Background()
	e, err := NewEngine(ctx, DefaultPolicy)
	require.NoError(t, err)

	tests := []struct {
		tool string
		want Effect
	}{
		{"lookupOrder", EffectAllow},
		{"checkInventory", EffectAllow},
		{"searchKnowledge", EffectAllow},
		{"createTicket", EffectAllow},
		{"processRefund", EffectRequireApproval},
	}
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			effect, err := e.Evaluate(ctx, Input{ToolName: tt.tool})
			require.NoError(t, err)
			assert.Equal(t, tt.want, effect)
		})
	}
}

func TestEngine_CustomPolicy(t *testing.T) {
	ctx := context.Background()
	e, err := NewEngine(ctx, `
package supportflow.tools

default decision = "allow"

decision = "block" {
	input.tool_name == "deleteAccount"
}

decision = "require_approval" {
	input.tool_name == "processRefund"
	input.args.amount > 100
}
`)
	require.NoError(t, err)

	effect, err := e.Evaluate(ctx, Input{ToolName: "deleteAccount"})
	require.NoError(t, err)
	assert.Equal(t, EffectBlock, effect)

	effect, err = e.Evaluate(ctx, Input{ToolName: "processRefund", Args: map[string]any{"amount": 250.0}})
	require.NoError(t, err)
	assert.Equal(t, EffectRequireApproval, effect)

	effect, err = e.Evaluate(ctx, Input{ToolName: "processRefund", Args: map[string]any{"amount": 20.0}})
	require.NoError(t, err)
	assert.Equal(t, EffectAllow, effect)
}

func TestEngine_InvalidPolicy(t *testing.T) {
	_, err := NewEngine(context.Background(), "not rego at all {")
	assert.Error(t, err)
}
