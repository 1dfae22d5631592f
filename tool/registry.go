package tool

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// DefaultToolTimeout bounds a tool call when its descriptor sets none.
const DefaultToolTimeout = 15 * time.Second

// approvalAware lets tool implementations carry their own registration
// metadata (FunctionTool does). Tools not implementing it register with the
// zero descriptor defaults.
type approvalAware interface {
	RequiresApproval() bool
	Timeout() time.Duration
}

// Registry holds tool descriptors keyed by unique name and resolves a name
// to its descriptor and executable handler. Registration happens at
// composition time; lookups are read-mostly and shared by all sessions.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	descs map[string]Descriptor
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
		descs: make(map[string]Descriptor),
	}
}

// Register adds a tool under its unique name. Registering a duplicate name
// is an error; tool names are the correlation key for dispatch, approvals
// and citations.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool name must not be empty")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}

	desc := Descriptor{
		Name:        name,
		Description: t.Description(),
		Parameters:  t.Parameters(),
		Timeout:     DefaultToolTimeout,
	}
	if aa, ok := t.(approvalAware); ok {
		desc.RequiresApproval = aa.RequiresApproval()
		if d := aa.Timeout(); d > 0 {
			desc.Timeout = d
		}
	}

	r.tools[name] = t
	r.descs[name] = desc
	return nil
}

// MustRegister registers tools and panics on duplicate names. Intended for
// composition-time wiring where a duplicate is a programming error.
func (r *Registry) MustRegister(tools ...Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Resolve returns the descriptor and handler for a tool name.
func (r *Registry) Resolve(name string) (Descriptor, Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return Descriptor{}, nil, false
	}
	return r.descs[name], t, true
}

// Descriptors returns all registered descriptors sorted by name.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.descs))
	for _, d := range r.descs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
