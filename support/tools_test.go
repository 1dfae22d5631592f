package support

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/supportflow/knowledge"
	"github.com/hupe1980/supportflow/tool"
)

func newTestRouter(t *testing.T) *knowledge.Router {
	t.Helper()
	r, err := knowledge.NewRouter(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestLookupOrderTool(t *testing.T) {
	s := newTestStore(t)
	lookup := NewLookupOrderTool(s)
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		result, err := lookup.Call(ctx, map[string]any{"order_id": "ORD-12345"})
		require.NoError(t, err)
		out := result.(OrderLookup)
		require.True(t, out.Found)
		assert.Equal(t, "shipped", out.Order.Status)
	})

	t.Run("not found is a result, not an error", func(t *testing.T) {
		result, err := lookup.Call(ctx, map[string]any{"order_id": "ORD-00000"})
		require.NoError(t, err)
		out := result.(OrderLookup)
		assert.False(t, out.Found)
		assert.Nil(t, out.Order)
	})

	t.Run("missing argument fails validation", func(t *testing.T) {
		_, err := lookup.Call(ctx, map[string]any{})
		require.Error(t, err)
		toolErr, ok := err.(*tool.ToolError)
		require.True(t, ok)
		assert.Equal(t, tool.CodeValidation, toolErr.Code)
	})
}

func TestProcessRefundTool(t *testing.T) {
	s := newTestStore(t)
	refund := NewProcessRefundTool(s)
	ctx := context.Background()

	assert.True(t, refund.RequiresApproval())

	t.Run("unknown order maps to not found", func(t *testing.T) {
		_, err := refund.Call(ctx, map[string]any{
			"order_id": "ORD-00000",
			"amount":   10.0,
			"reason":   "test",
		})
		require.Error(t, err)
		toolErr, ok := err.(*tool.ToolError)
		require.True(t, ok)
		assert.Equal(t, tool.CodeNotFound, toolErr.Code)
	})

	t.Run("valid refund", func(t *testing.T) {
		result, err := refund.Call(ctx, map[string]any{
			"order_id": "ORD-12345",
			"amount":   25.0,
			"reason":   "late delivery",
		})
		require.NoError(t, err)
		r := result.(Refund)
		assert.Equal(t, "processed", r.Status)
	})
}

func TestSearchKnowledgeTool(t *testing.T) {
	router := newTestRouter(t)
	search := NewSearchKnowledgeTool(router)
	ctx := context.Background()

	_, err := router.Index(ctx, "Warranty Coverage\n\nAll electronics carry a one year warranty.", map[string]any{"title": "Warranty Coverage"})
	require.NoError(t, err)

	result, err := search.Call(ctx, map[string]any{"query": "warranty"})
	require.NoError(t, err)
	out := result.(KnowledgeResult)
	assert.True(t, out.Available)
	assert.Equal(t, "warranty", out.Query)
	require.NotEmpty(t, out.Documents)
	assert.Contains(t, out.Documents[0].Content, "warranty")
}

func TestTools_FullSet(t *testing.T) {
	s := newTestStore(t)
	router := newTestRouter(t)

	tools := Tools(s, router)
	require.Len(t, tools, 5)

	names := make([]string, len(tools))
	for i, tl := range tools {
		names[i] = tl.Name()
	}
	assert.Equal(t, []string{"lookupOrder", "checkInventory", "processRefund", "createTicket", SearchKnowledgeToolName}, names)
}
