package knowledge

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hupe1980/supportflow/core"
	"github.com/hupe1980/supportflow/logging"
)

// RouterOptions configure backend selection and caching.
type RouterOptions struct {
	// Backends is the priority chain, most preferred first. The router
	// always appends a local in-memory backend as the fallback of last
	// resort.
	Backends []Backend
	// CacheSize bounds the search result cache. Zero disables caching.
	CacheSize int
	// Logger receives selection and fallback events.
	Logger logging.Logger
}

// cachedResult is an immutable snapshot of a search outcome.
type cachedResult struct {
	docs []core.RetrievedDocument
}

// Router selects one retrieval backend at startup by walking a priority
// chain, substituting the local in-memory index when every preferred backend
// fails to initialize. Search degrades to empty results instead of
// propagating backend errors, so a broken knowledge store never takes the
// reasoning loop down with it.
type Router struct {
	mu       sync.RWMutex
	active   Backend
	degraded bool
	cache    *lru.Cache[string, cachedResult]
	logger   logging.Logger
}

// NewRouter builds the router and initializes the chain. Always returns a
// usable router; the error is reserved for the pathological case where even
// the local fallback cannot start.
func NewRouter(ctx context.Context, optFns ...func(o *RouterOptions)) (*Router, error) {
	opts := RouterOptions{CacheSize: 256, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := logging.OrNoOp(opts.Logger)

	r := &Router{logger: logger}
	if opts.CacheSize > 0 {
		cache, err := lru.New[string, cachedResult](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create search cache: %w", err)
		}
		r.cache = cache
	}

	for _, backend := range opts.Backends {
		if err := backend.Initialize(ctx); err != nil {
			logger.Warn("knowledge.backend.init_failed", "backend", backend.Name(), "error", err.Error())
			continue
		}
		r.active = backend
		logger.Info("knowledge.backend.selected", "backend", backend.Name())
		return r, nil
	}

	local := NewLocalBackend()
	if err := local.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize local fallback: %w", err)
	}
	r.active = local
	r.degraded = len(opts.Backends) > 0
	if r.degraded {
		logger.Warn("knowledge.backend.fallback", "backend", local.Name())
	} else {
		logger.Info("knowledge.backend.selected", "backend", local.Name())
	}
	return r, nil
}

// Backend returns the name of the active backend.
func (r *Router) Backend() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active.Name()
}

// Degraded reports whether the router fell back to the local index after a
// preferred backend failed to initialize.
func (r *Router) Degraded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.degraded
}

// Index stores a document through the active backend and invalidates the
// search cache, since cached results may now be stale.
func (r *Router) Index(ctx context.Context, content string, metadata map[string]any) ([]string, error) {
	r.mu.RLock()
	backend := r.active
	r.mu.RUnlock()

	ids, err := backend.Index(ctx, content, metadata)
	if err != nil {
		return nil, fmt.Errorf("index via %s: %w", backend.Name(), err)
	}
	if r.cache != nil {
		r.cache.Purge()
	}
	return ids, nil
}

// Search queries the active backend. The second return value reports whether
// retrieval actually ran: a backend failure yields empty results and false
// rather than an error, and the caller decides how to phrase the degraded
// answer.
func (r *Router) Search(ctx context.Context, query string, opts SearchOptions) ([]core.RetrievedDocument, bool) {
	key := fmt.Sprintf("%s|%d|%.3f", query, opts.TopK, opts.MinScore)
	if r.cache != nil {
		if hit, ok := r.cache.Get(key); ok {
			return hit.docs, true
		}
	}

	r.mu.RLock()
	backend := r.active
	r.mu.RUnlock()

	docs, err := backend.Search(ctx, query, opts)
	if err != nil {
		r.logger.Warn("knowledge.search.failed", "backend", backend.Name(), "error", err.Error())
		return nil, false
	}
	if r.cache != nil {
		r.cache.Add(key, cachedResult{docs: docs})
	}
	return docs, true
}

// Health describes the retrieval subsystem for diagnostics.
func (r *Router) Health() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h := map[string]any{
		"backend":  r.active.Name(),
		"degraded": r.degraded,
	}
	if r.cache != nil {
		h["cached_queries"] = r.cache.Len()
	}
	return h
}

// Close releases the active backend.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active.Close()
}
