package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ppiankov/sourcecheck/internal/cache"
	"github.com/ppiankov/sourcecheck/internal/logger"
	"github.com/ppiankov/sourcecheck/internal/metrics"
	"github.com/ppiankov/sourcecheck/internal/model"
	"github.com/ppiankov/sourcecheck/internal/worker"
)

// retrySleepFunc waits between attempts; tests replace it
var retrySleepFunc = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// GuardOptions configures a Guard
type GuardOptions struct {
	// Policy supplies retry, rate and concurrency limits
	Policy model.BackendPolicy

	// Cache stores results; nil disables caching
	Cache cache.Cache

	// Scope separates cache entries of differently configured backends
	Scope string

	// Limiter is shared between guards so quotas hold across runs; nil
	// creates a private one
	Limiter *worker.Limiter
}

// Guard wraps a remote backend with a result cache, a rate limiter, a
// concurrency bound and bounded exponential-backoff retries
type Guard struct {
	inner   Backend
	cache   cache.Cache
	ttl     time.Duration
	scope   string
	limiter *worker.Limiter
	sem     *semaphore.Weighted
	policy  model.BackendPolicy
}

// Wrap guards b unless it is the in-process lexical backend, which has no
// quota to respect
func Wrap(b Backend, opts GuardOptions) Backend {
	if _, ok := b.(*Lexical); ok {
		return b
	}
	return NewGuard(b, opts)
}

// NewGuard creates a guard around inner
func NewGuard(inner Backend, opts GuardOptions) *Guard {
	policy := opts.Policy
	if policy.MaxConcurrency <= 0 {
		policy.MaxConcurrency = 1
	}

	limiter := opts.Limiter
	if limiter == nil {
		limiter = worker.NewLimiter(policy.RequestsPerSecond, policy.Burst)
	}
	limiter.Ensure(inner.Name(), policy.RequestsPerSecond, policy.Burst)

	scope := opts.Scope
	if scope == "" {
		scope = inner.Name()
	}

	return &Guard{
		inner:   inner,
		cache:   opts.Cache,
		ttl:     policy.CacheTTL,
		scope:   scope,
		limiter: limiter,
		sem:     semaphore.NewWeighted(int64(policy.MaxConcurrency)),
		policy:  policy,
	}
}

// Name returns the wrapped backend's name
func (g *Guard) Name() string {
	return g.inner.Name()
}

// IsAvailable delegates to the wrapped backend
func (g *Guard) IsAvailable(ctx context.Context) bool {
	return g.inner.IsAvailable(ctx)
}

// Similarity returns the cached score or calls the backend with retries
func (g *Guard) Similarity(ctx context.Context, a, b string) (float64, error) {
	key := cache.Key(g.scope, "similarity", a, b)
	var score float64
	if cache.GetJSON(g.cache, key, &score) {
		metrics.ObserveBackendCall(g.Name(), "similarity", "cached")
		return score, nil
	}

	err := g.call(ctx, "similarity", func(ctx context.Context) error {
		var err error
		score, err = g.inner.Similarity(ctx, a, b)
		return err
	})
	if err != nil {
		return 0, err
	}

	score = clamp(score)
	if err := cache.SetJSON(g.cache, key, score, g.ttl); err != nil {
		logger.Debug("cache similarity: %v", err)
	}
	return score, nil
}

// ClassifyEntailment returns the cached label or calls the backend with retries
func (g *Guard) ClassifyEntailment(ctx context.Context, premise, hypothesis string) (Entailment, error) {
	key := cache.Key(g.scope, "entailment", premise, hypothesis)
	var result Entailment
	if cache.GetJSON(g.cache, key, &result) {
		metrics.ObserveBackendCall(g.Name(), "entailment", "cached")
		return result, nil
	}

	err := g.call(ctx, "entailment", func(ctx context.Context) error {
		var err error
		result, err = g.inner.ClassifyEntailment(ctx, premise, hypothesis)
		return err
	})
	if err != nil {
		return Entailment{}, err
	}

	if err := cache.SetJSON(g.cache, key, result, g.ttl); err != nil {
		logger.Debug("cache entailment: %v", err)
	}
	return result, nil
}

// call runs fn under the limiter and semaphore, retrying transient failures
func (g *Guard) call(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := g.policy.MaxRetries + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := g.backoff(attempt)
			logger.Debug("%s %s retry %d/%d in %s: %v", g.Name(), op, attempt, g.policy.MaxRetries, delay, lastErr)
			metrics.ObserveBackendRetry(g.Name(), op)
			if err := retrySleepFunc(ctx, delay); err != nil {
				break
			}
		}

		lastErr = g.attempt(ctx, fn)
		if lastErr == nil {
			metrics.ObserveBackendCall(g.Name(), op, "ok")
			return nil
		}
		if ctx.Err() != nil || !IsRetryable(lastErr) {
			break
		}
	}

	metrics.ObserveBackendCall(g.Name(), op, "error")
	if ctx.Err() != nil && lastErr == nil {
		lastErr = ctx.Err()
	}
	return fmt.Errorf("%s %s: %w", g.Name(), op, lastErr)
}

func (g *Guard) attempt(ctx context.Context, fn func(context.Context) error) error {
	if err := g.limiter.Wait(ctx, g.Name()); err != nil {
		return err
	}
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.sem.Release(1)

	if g.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.policy.Timeout)
		defer cancel()
	}
	return fn(ctx)
}

// backoff doubles the base delay per attempt up to the configured cap
func (g *Guard) backoff(attempt int) time.Duration {
	delay := g.policy.BaseBackoff
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if g.policy.MaxBackoff > 0 && delay >= g.policy.MaxBackoff {
			return g.policy.MaxBackoff
		}
	}
	if g.policy.MaxBackoff > 0 && delay > g.policy.MaxBackoff {
		return g.policy.MaxBackoff
	}
	return delay
}

// IsRetryable reports whether err is a transient backend failure: rate
// limiting, a 5xx response, or a network error
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrUnavailable) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := err.Error()
	for _, s := range []string{"connection refused", "connection reset", "EOF", "timeout"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func clamp(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
