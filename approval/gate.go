// Package approval implements the human-in-the-loop gate arbitrating
// consent for sensitive tool calls. Each outstanding request resolves
// exactly once: by an explicit approve/reject, or by deadline expiry,
// whichever happens first.
package approval

import (
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/supportflow/core"
	"github.com/hupe1980/supportflow/logging"
)

// Resolution is the lifecycle state of an approval request.
type Resolution string

const (
	ResolutionPending  Resolution = "pending"
	ResolutionApproved Resolution = "approved"
	ResolutionRejected Resolution = "rejected"
	ResolutionTimedOut Resolution = "timed_out"
)

// TimeoutPolicy decides how an expired request is treated by callers.
// The resolution is always timed_out; the policy only controls whether the
// gated tool may still execute. Auto-approving money-moving tools is a real
// business risk, so the default denies.
type TimeoutPolicy int

const (
	// TimeoutDeny treats an expired request as permission withheld (default).
	TimeoutDeny TimeoutPolicy = iota
	// TimeoutApprove treats an expired request as implicit consent. Only
	// suitable for demo or low-risk deployments.
	TimeoutApprove
)

// Outcome is delivered to the waiter when a request resolves.
type Outcome struct {
	Resolution Resolution
	Allowed    bool
	ResolvedBy string // present only on manual resolution
}

// Request is the public record of an approval request.
type Request struct {
	ID         string         `json:"id"`
	ToolName   string         `json:"tool_name"`
	Args       map[string]any `json:"args,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	Deadline   time.Time      `json:"deadline"`
	Resolution Resolution     `json:"resolution"`
	ResolvedBy string         `json:"resolved_by,omitempty"`
}

type pending struct {
	req        Request
	timer      *time.Timer
	done       chan Outcome // buffered(1); receives exactly one outcome
	resolvedAt time.Time
}

// Gate tracks outstanding approval requests for tools that require consent.
// Mutation is serialized per gate but requests never block one another:
// each waiter blocks only on its own outcome channel.
type Gate struct {
	mu        sync.Mutex
	requests  map[string]*pending
	policy    TimeoutPolicy
	retention time.Duration
	logger    logging.Logger
}

// Option mutates gate construction settings.
type Option func(*Gate)

// WithTimeoutPolicy overrides the default deny-on-timeout policy.
func WithTimeoutPolicy(p TimeoutPolicy) Option {
	return func(g *Gate) { g.policy = p }
}

// WithLogger attaches a logger.
func WithLogger(l logging.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// WithRetention overrides how long resolved requests stay queryable via Get
// before being pruned.
func WithRetention(d time.Duration) Option {
	return func(g *Gate) { g.retention = d }
}

// NewGate constructs an empty gate.
func NewGate(opts ...Option) *Gate {
	g := &Gate{
		requests:  make(map[string]*pending),
		policy:    TimeoutDeny,
		retention: 5 * time.Minute,
		logger:    logging.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Request registers a pending approval for a tool call and returns the
// request id plus a channel delivering the single resolution outcome. The
// deadline timer starts immediately; if nobody resolves before timeout the
// request auto-resolves to timed_out.
func (g *Gate) Request(toolName string, args map[string]any, timeout time.Duration) (string, <-chan Outcome) {
	id := core.NewID()
	now := time.Now().UTC()

	p := &pending{
		req: Request{
			ID:         id,
			ToolName:   toolName,
			Args:       args,
			CreatedAt:  now,
			Deadline:   now.Add(timeout),
			Resolution: ResolutionPending,
		},
		done: make(chan Outcome, 1),
	}

	g.mu.Lock()
	g.prune(now)
	g.requests[id] = p
	// The timer callback re-checks resolution state under the lock, so a
	// manual resolve that wins the race makes the late firing a no-op.
	p.timer = time.AfterFunc(timeout, func() { g.expire(id) })
	g.mu.Unlock()

	g.logger.Info("approval.requested", "request_id", id, "tool", toolName, "timeout", timeout)
	return id, p.done
}

// Resolve applies a manual approve/reject decision. Resolving an unknown id
// returns an error; resolving an already-resolved request is an idempotent
// no-op, never an error, so callers racing the deadline stay safe.
func (g *Gate) Resolve(id string, approved bool, resolvedBy string) error {
	g.mu.Lock()
	p, ok := g.requests[id]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("approval request %q not found", id)
	}
	if p.req.Resolution != ResolutionPending {
		g.mu.Unlock()
		return nil
	}

	if approved {
		p.req.Resolution = ResolutionApproved
	} else {
		p.req.Resolution = ResolutionRejected
	}
	p.req.ResolvedBy = resolvedBy
	p.resolvedAt = time.Now()
	p.timer.Stop()
	outcome := Outcome{Resolution: p.req.Resolution, Allowed: approved, ResolvedBy: resolvedBy}
	g.mu.Unlock()

	p.done <- outcome
	g.logger.Info("approval.resolved", "request_id", id, "resolution", outcome.Resolution, "by", resolvedBy)
	return nil
}

// expire is the deadline callback. It loses cleanly to a manual resolution
// that arrived first.
func (g *Gate) expire(id string) {
	g.mu.Lock()
	p, ok := g.requests[id]
	if !ok || p.req.Resolution != ResolutionPending {
		g.mu.Unlock()
		return
	}
	p.req.Resolution = ResolutionTimedOut
	p.resolvedAt = time.Now()
	allowed := g.policy == TimeoutApprove
	toolName := p.req.ToolName
	g.mu.Unlock()

	p.done <- Outcome{Resolution: ResolutionTimedOut, Allowed: allowed}
	g.logger.Warn("approval.timed_out", "request_id", id, "tool", toolName, "allowed", allowed)
}

// prune drops requests resolved longer than the retention window ago, so
// the map stays bounded over the process lifetime. Callers hold g.mu.
func (g *Gate) prune(now time.Time) {
	for id, p := range g.requests {
		if p.req.Resolution != ResolutionPending && now.Sub(p.resolvedAt) > g.retention {
			delete(g.requests, id)
		}
	}
}

// Get returns a snapshot of a request by id.
func (g *Gate) Get(id string) (Request, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.requests[id]
	if !ok {
		return Request{}, false
	}
	return p.req, true
}

// Pending returns snapshots of all requests still awaiting resolution,
// for operator listings.
func (g *Gate) Pending() []Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Request
	for _, p := range g.requests {
		if p.req.Resolution == ResolutionPending {
			out = append(out, p.req)
		}
	}
	return out
}

// PendingCount reports how many requests are still awaiting resolution.
func (g *Gate) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, p := range g.requests {
		if p.req.Resolution == ResolutionPending {
			n++
		}
	}
	return n
}
