// Package orchestrator composes the agent loop, retrieval router, approval
// gate and conversation memory behind the operations transports call: chat,
// document ingestion, tool approval and health.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/supportflow/agent"
	"github.com/hupe1980/supportflow/approval"
	"github.com/hupe1980/supportflow/core"
	"github.com/hupe1980/supportflow/knowledge"
	"github.com/hupe1980/supportflow/logging"
	"github.com/hupe1980/supportflow/memory"
)

// ChatResult is the transport-facing outcome of one chat call. Sources is
// omitted entirely when no knowledge search produced documents, so callers
// can distinguish "no citations" from "retrieval not attempted".
type ChatResult struct {
	Response    string                   `json:"response"`
	ExecutionID string                   `json:"executionId,omitempty"`
	SessionID   string                   `json:"sessionId"`
	Steps       int                      `json:"steps"`
	DurationMS  int64                    `json:"duration"`
	Sources     []core.RetrievedDocument `json:"sources,omitempty"`
}

// Decision is delivered to transport-local approval waiters.
type Decision struct {
	Approved bool   `json:"approved"`
	By       string `json:"by,omitempty"`
}

// Options configure the orchestrator.
type Options struct {
	// KnowledgeToolName is the tool whose step results are flattened into
	// chat sources.
	KnowledgeToolName string
	// Logger receives orchestration diagnostics.
	Logger logging.Logger
}

// Breaker exposes the model guard's circuit state for health reporting.
type Breaker interface {
	Open() bool
}

// Orchestrator owns session-id assignment and source-citation extraction on
// top of its collaborators. One instance serves all transports.
type Orchestrator struct {
	loop    *agent.Loop
	router  *knowledge.Router
	gate    *approval.Gate
	memory  *memory.ConversationMemory
	breaker Breaker

	knowledgeTool string
	logger        logging.Logger

	mu      sync.Mutex
	waiters map[string][]chan Decision
}

// New wires an orchestrator. The breaker is optional and only feeds health
// diagnostics.
func New(loop *agent.Loop, router *knowledge.Router, gate *approval.Gate, mem *memory.ConversationMemory, breaker Breaker, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		KnowledgeToolName: "searchKnowledge",
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Orchestrator{
		loop:          loop,
		router:        router,
		gate:          gate,
		memory:        mem,
		breaker:       breaker,
		knowledgeTool: opts.KnowledgeToolName,
		logger:        logging.OrNoOp(opts.Logger),
		waiters:       make(map[string][]chan Decision),
	}
}

// Chat runs one agent turn. A missing session id is assigned server-side and
// echoed back; subsequent calls with that id share the conversation.
func (o *Orchestrator) Chat(ctx context.Context, message, sessionID, userID string) (ChatResult, error) {
	if strings.TrimSpace(message) == "" {
		return ChatResult{}, fmt.Errorf("message must not be empty")
	}
	if sessionID == "" {
		sessionID = core.NewID()
	}

	exec := o.loop.Run(ctx, message, sessionID, userID)

	return ChatResult{
		Response:    exec.Response,
		ExecutionID: exec.ID,
		SessionID:   sessionID,
		Steps:       exec.StepCount(),
		DurationMS:  exec.Duration.Milliseconds(),
		Sources:     o.extractSources(exec),
	}, nil
}

// IngestDocument indexes a titled document into the knowledge base and
// returns the generated chunk ids.
func (o *Orchestrator) IngestDocument(ctx context.Context, title, content string, metadata map[string]any) ([]string, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("title must not be empty")
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("content must not be empty")
	}

	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["title"] = title

	ids, err := o.router.Index(ctx, title+"\n\n"+content, metadata)
	if err != nil {
		o.logger.Error("orchestrator.ingest_failed", "title", title, "error", err.Error())
		return nil, fmt.Errorf("document could not be indexed")
	}
	o.logger.Info("orchestrator.ingested", "title", title, "chunks", len(ids))
	return ids, nil
}

// ApproveTool forwards a human decision to the gate and wakes any
// transport-local waiters registered for the request id. Resolving an
// already-settled request succeeds quietly.
func (o *Orchestrator) ApproveTool(requestID string, approved bool, approvedBy string) error {
	if err := o.gate.Resolve(requestID, approved, approvedBy); err != nil {
		return err
	}

	o.mu.Lock()
	waiters := o.waiters[requestID]
	delete(o.waiters, requestID)
	o.mu.Unlock()

	for _, ch := range waiters {
		ch <- Decision{Approved: approved, By: approvedBy}
	}
	return nil
}

// PendingApprovals lists approval requests still awaiting a human decision.
func (o *Orchestrator) PendingApprovals() []approval.Request {
	return o.gate.Pending()
}

// AwaitDecision registers a transport-local waiter for an approval request.
// The channel receives at most one decision; waiters for requests settled by
// gate timeout are never woken and must apply their own deadline.
func (o *Orchestrator) AwaitDecision(requestID string) <-chan Decision {
	ch := make(chan Decision, 1)
	o.mu.Lock()
	o.waiters[requestID] = append(o.waiters[requestID], ch)
	o.mu.Unlock()
	return ch
}

// Health reports subsystem diagnostics. A retrieval fallback to the local
// index is deliberately not a degraded status: the substitute serves every
// operation and the downgrade stays visible in the knowledge diagnostics.
// Only an open model circuit degrades the status.
func (o *Orchestrator) Health() map[string]any {
	status := "ok"
	circuitOpen := o.breaker != nil && o.breaker.Open()
	if circuitOpen {
		status = "degraded"
	}

	return map[string]any{
		"status":             status,
		"knowledge":          o.router.Health(),
		"sessions":           o.memory.SessionCount(),
		"pending_approvals":  o.gate.PendingCount(),
		"model_circuit_open": circuitOpen,
	}
}

// extractSources flattens all documents returned by knowledge-search steps.
// A nil result keeps the field absent from serialized responses.
func (o *Orchestrator) extractSources(exec *core.Execution) []core.RetrievedDocument {
	var sources []core.RetrievedDocument
	for _, step := range exec.Steps {
		if step.Action != core.ActionUseTool || step.Tool != o.knowledgeTool {
			continue
		}
		outcome, ok := step.Result.(agent.ToolOutcome)
		if !ok || !outcome.Success {
			continue
		}
		if result, ok := knowledgeDocuments(outcome.Output); ok {
			sources = append(sources, result...)
		}
	}
	return sources
}

// knowledgeDocuments pulls the document list out of a search tool result
// without binding the orchestrator to the tool's concrete type.
func knowledgeDocuments(output any) ([]core.RetrievedDocument, bool) {
	type documented interface {
		RetrievedDocuments() []core.RetrievedDocument
	}
	switch v := output.(type) {
	case documented:
		return v.RetrievedDocuments(), true
	case []core.RetrievedDocument:
		return v, true
	}
	return nil, false
}
