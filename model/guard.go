package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/supportflow/logging"
)

// ErrCircuitOpen is returned while the breaker is cooling down after a burst
// of consecutive provider failures. Callers should fail fast and surface a
// degraded message instead of queuing more work.
var ErrCircuitOpen = errors.New("model circuit open")

// Transient marks an error as retryable. Provider adapters wrap rate-limit
// and availability errors with it; anything else fails without retry.
type Transient struct{ Err error }

func (t *Transient) Error() string { return t.Err.Error() }
func (t *Transient) Unwrap() error { return t.Err }

// MarkTransient wraps err so the Guard retries it.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &Transient{Err: err}
}

// IsTransient reports whether err is marked retryable.
func IsTransient(err error) bool {
	var t *Transient
	return errors.As(err, &t)
}

// GuardOptions configure the protective wrapper around a Model.
type GuardOptions struct {
	// CallsPerMinute limits model calls across all sessions. Zero disables
	// the limiter.
	CallsPerMinute int
	// Burst is the momentary allowance above the steady rate.
	Burst int
	// FailureThreshold opens the circuit after this many consecutive
	// failures.
	FailureThreshold int
	// CoolDown is how long the open circuit fails fast before a probe.
	CoolDown time.Duration
	// MaxRetries bounds retry attempts for transient failures.
	MaxRetries int
	// RetryBackoff is the base delay, doubled per attempt.
	RetryBackoff time.Duration
	// Logger receives guard state transitions.
	Logger logging.Logger
}

// Guard wraps a Model with the shared protective layer: a per-minute rate
// limiter, a consecutive-failure circuit breaker with cool-down, and bounded
// retry with backoff for transient failures only. One Guard instance is
// shared by all sessions so the limits are global.
type Guard struct {
	inner   Model
	limiter *rate.Limiter

	mu           sync.Mutex
	consecFails  int
	openedAt     time.Time
	open         bool
	threshold    int
	coolDown     time.Duration
	maxRetries   int
	retryBackoff time.Duration

	logger logging.Logger
}

// NewGuard wraps inner with sensible defaults: 60 calls/min, breaker at 5
// consecutive failures with a 30s cool-down, 2 retries with 500ms base
// backoff.
func NewGuard(inner Model, optFns ...func(o *GuardOptions)) *Guard {
	opts := GuardOptions{
		CallsPerMinute:   60,
		Burst:            10,
		FailureThreshold: 5,
		CoolDown:         30 * time.Second,
		MaxRetries:       2,
		RetryBackoff:     500 * time.Millisecond,
		Logger:           logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var limiter *rate.Limiter
	if opts.CallsPerMinute > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(float64(opts.CallsPerMinute)/60.0), burst)
	}

	return &Guard{
		inner:        inner,
		limiter:      limiter,
		threshold:    opts.FailureThreshold,
		coolDown:     opts.CoolDown,
		maxRetries:   opts.MaxRetries,
		retryBackoff: opts.RetryBackoff,
		logger:       logging.OrNoOp(opts.Logger),
	}
}

// Info implements Model.
func (g *Guard) Info() Info { return g.inner.Info() }

// Generate implements Model. The full protective layer applies per call;
// partial streaming is collapsed to the final response so a retry never
// replays half a stream to the consumer.
func (g *Guard) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 1)
	errCh := make(chan error, 1)
	go func() {
		defer close(respCh)
		defer close(errCh)
		resp, err := g.Complete(ctx, req)
		if err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()
	return respCh, errCh
}

// Complete performs one guarded model call returning the final response.
func (g *Guard) Complete(ctx context.Context, req Request) (Response, error) {
	if err := g.admit(ctx); err != nil {
		return Response{}, err
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := Complete(ctx, g.inner, req)
		if err == nil {
			g.recordSuccess()
			return resp, nil
		}
		g.recordFailure(err)
		lastErr = err

		if !IsTransient(err) || attempt >= g.maxRetries {
			break
		}
		backoff := g.retryBackoff << attempt
		g.logger.Warn("model.retry", "attempt", attempt+1, "backoff", backoff, "error", err.Error())
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return Response{}, lastErr
}

// admit waits for a rate token and checks the breaker state.
func (g *Guard) admit(ctx context.Context) error {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		return nil
	}
	if time.Since(g.openedAt) < g.coolDown {
		return ErrCircuitOpen
	}
	// Cool-down elapsed; let this call through as a probe.
	g.open = false
	g.consecFails = g.threshold - 1
	g.logger.Info("model.circuit.half_open")
	return nil
}

func (g *Guard) recordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.consecFails = 0
	g.open = false
}

func (g *Guard) recordFailure(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.consecFails++
	if g.threshold > 0 && g.consecFails >= g.threshold && !g.open {
		g.open = true
		g.openedAt = time.Now()
		g.logger.Error("model.circuit.opened", "consecutive_failures", g.consecFails, "error", err.Error())
	}
}

// Open reports whether the circuit is currently failing fast. Surfaced in
// health diagnostics.
func (g *Guard) Open() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open && time.Since(g.openedAt) < g.coolDown
}

// String describes the guard configuration for diagnostics.
func (g *Guard) String() string {
	return fmt.Sprintf("guard(%s)", g.inner.Info().Name)
}
