// Package policy evaluates tool-dispatch decisions with Open Policy Agent.
// The rego policy decides, per tool call, whether execution is allowed
// outright, must pass the approval gate, or is blocked entirely. It layers
// on top of each descriptor's static approval flag: the stricter of the two
// wins.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Effect is the outcome of a policy evaluation.
type Effect string

const (
	EffectAllow           Effect = "allow"
	EffectRequireApproval Effect = "require_approval"
	EffectBlock           Effect = "block"
)

// Input is the evaluation context passed to the rego policy.
type Input struct {
	ToolName string         `json:"tool_name"`
	Args     map[string]any `json:"args"`
	UserID   string         `json:"user_id,omitempty"`
}

// Engine wraps a prepared rego query over a tool-dispatch policy.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine compiles the given rego module and prepares the decision query.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.supportflow.tools.decision"),
		rego.Module("tools.rego", policyContent),
	)
	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare rego query: %w", err)
	}
	return &Engine{query: query}, nil
}

// Evaluate runs the policy for one tool call. An empty result set falls back
// to allow; the shipped policies always define a default decision.
func (e *Engine) Evaluate(ctx context.Context, input Input) (Effect, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("evaluate tool policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return EffectAllow, nil
	}
	s, ok := results[0].Expressions[0].Value.(string)
	if !ok {
		return "", fmt.Errorf("tool policy returned %T, want string", results[0].Expressions[0].Value)
	}
	switch Effect(s) {
	case EffectAllow, EffectRequireApproval, EffectBlock:
		return Effect(s), nil
	}
	return "", fmt.Errorf("tool policy returned unknown decision %q", s)
}

// DefaultPolicy is the policy shipped with the server: the money-moving
// refund tool needs a human decision, everything else passes.
const DefaultPolicy = `
package supportflow.tools

default decision = "allow"

decision = "require_approval" {
	input.tool_name == "processRefund"
}
`
