package support

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/supportflow/core"
	"github.com/hupe1980/supportflow/knowledge"
	"github.com/hupe1980/supportflow/tool"
)

// SearchKnowledgeToolName is the tool whose step results carry source
// citations extracted by the orchestrator.
const SearchKnowledgeToolName = "searchKnowledge"

// OrderLookup is the result of the lookupOrder tool.
type OrderLookup struct {
	Found bool   `json:"found"`
	Order *Order `json:"order,omitempty"`
}

// InventoryLookup is the result of the checkInventory tool.
type InventoryLookup struct {
	Found bool           `json:"found"`
	Item  *InventoryItem `json:"item,omitempty"`
}

// KnowledgeResult is the result of the searchKnowledge tool. Available is
// false when retrieval was degraded and the search did not actually run.
type KnowledgeResult struct {
	Query     string                   `json:"query"`
	Documents []core.RetrievedDocument `json:"documents"`
	Available bool                     `json:"available"`
}

// RetrievedDocuments exposes the hit list for citation extraction.
func (r KnowledgeResult) RetrievedDocuments() []core.RetrievedDocument { return r.Documents }

// NewLookupOrderTool exposes order lookup by id.
func NewLookupOrderTool(store *Store) *tool.FunctionTool {
	return tool.NewFunctionTool(
		"lookupOrder",
		"Look up a customer order by its order id (for example ORD-12345). Returns status, items, total and estimated delivery.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"order_id": map[string]any{"type": "string", "description": "The order id to look up"},
			},
			"required": []string{"order_id"},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			orderID, _ := args["order_id"].(string)
			order, err := store.FindOrder(ctx, orderID)
			if errors.Is(err, ErrNotFound) {
				return OrderLookup{Found: false}, nil
			}
			if err != nil {
				return nil, err
			}
			return OrderLookup{Found: true, Order: &order}, nil
		},
	)
}

// NewCheckInventoryTool exposes stock lookup by SKU or product name.
func NewCheckInventoryTool(store *Store) *tool.FunctionTool {
	return tool.NewFunctionTool(
		"checkInventory",
		"Check whether a product is in stock by SKU or product name.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"product": map[string]any{"type": "string", "description": "SKU or product name"},
			},
			"required": []string{"product"},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			product, _ := args["product"].(string)
			item, err := store.CheckInventory(ctx, product)
			if errors.Is(err, ErrNotFound) {
				return InventoryLookup{Found: false}, nil
			}
			if err != nil {
				return nil, err
			}
			return InventoryLookup{Found: true, Item: &item}, nil
		},
	)
}

// NewProcessRefundTool exposes refund processing. Refunds move money, so the
// tool is registered with the approval requirement.
func NewProcessRefundTool(store *Store) *tool.FunctionTool {
	return tool.NewFunctionTool(
		"processRefund",
		"Process a refund for an order. Requires human approval before the refund is executed.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"order_id": map[string]any{"type": "string", "description": "The order to refund"},
				"amount":   map[string]any{"type": "number", "description": "Refund amount, not exceeding the order total"},
				"reason":   map[string]any{"type": "string", "description": "Why the customer requested the refund"},
			},
			"required": []string{"order_id", "amount", "reason"},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			orderID, _ := args["order_id"].(string)
			amount, _ := args["amount"].(float64)
			reason, _ := args["reason"].(string)

			refund, err := store.ProcessRefund(ctx, orderID, amount, reason)
			if errors.Is(err, ErrNotFound) {
				return nil, tool.NewToolError("processRefund", fmt.Sprintf("order %q not found", orderID), tool.CodeNotFound)
			}
			if err != nil {
				return nil, err
			}
			return refund, nil
		},
		tool.WithApproval(),
	)
}

// NewCreateTicketTool exposes ticket creation for issues the agent cannot
// resolve directly.
func NewCreateTicketTool(store *Store) *tool.FunctionTool {
	return tool.NewFunctionTool(
		"createTicket",
		"Create a support ticket for follow-up by a human agent. Use when the issue cannot be resolved in this conversation.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"subject":     map[string]any{"type": "string", "description": "Short issue summary"},
				"description": map[string]any{"type": "string", "description": "Details of the customer issue"},
				"priority":    map[string]any{"type": "string", "description": "One of low, normal, high, urgent"},
			},
			"required": []string{"subject", "description"},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			subject, _ := args["subject"].(string)
			description, _ := args["description"].(string)
			priority, _ := args["priority"].(string)
			return store.CreateTicket(ctx, subject, description, priority)
		},
	)
}

// NewSearchKnowledgeTool exposes knowledge-base retrieval. Degraded
// retrieval yields an empty, unavailable result rather than an error so the
// agent can tell the user the knowledge base is temporarily unreachable.
func NewSearchKnowledgeTool(router *knowledge.Router) *tool.FunctionTool {
	return tool.NewFunctionTool(
		SearchKnowledgeToolName,
		"Search the support knowledge base for policies, guides and product information relevant to the customer question.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "What to search for"},
			},
			"required": []string{"query"},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			query, _ := args["query"].(string)
			docs, ok := router.Search(ctx, query, knowledge.SearchOptions{TopK: 5, MinScore: 0.1})
			return KnowledgeResult{Query: query, Documents: docs, Available: ok}, nil
		},
	)
}

// Tools assembles the full support tool set over the store and retrieval
// router, in registration order.
func Tools(store *Store, router *knowledge.Router) []tool.Tool {
	return []tool.Tool{
		NewLookupOrderTool(store),
		NewCheckInventoryTool(store),
		NewProcessRefundTool(store),
		NewCreateTicketTool(store),
		NewSearchKnowledgeTool(router),
	}
}
