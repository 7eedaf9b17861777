package engine

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/namelens/octolens/internal/core"
	"github.com/namelens/octolens/internal/ratelimit"
)

// RateLimiter gates requests per GitHub resource using the quota the API
// last reported. Store reads and writes go through one lock, so concurrent
// callers never spend the same remaining request twice.
type RateLimiter struct {
	Store  RateLimitStore
	Clock  func() time.Time
	Margin float64

	mu sync.Mutex
}

// RateLimitStore stores rate limit state.
type RateLimitStore interface {
	GetRateLimit(ctx context.Context, resource string) (*core.RateLimitState, error)
	UpdateRateLimit(ctx context.Context, resource string, state *core.RateLimitState) error
}

// Resource maps a request path to the rate limit bucket GitHub counts it against.
func Resource(path string) core.Resource {
	path = "/" + strings.TrimLeft(strings.TrimSpace(path), "/")

	switch {
	case path == "/graphql" || strings.HasPrefix(path, "/graphql/"):
		return core.ResourceGraphQL
	case path == "/search/code" || strings.HasPrefix(path, "/search/code/"):
		return core.ResourceCodeSearch
	case strings.HasPrefix(path, "/search/"):
		return core.ResourceSearch
	case strings.HasPrefix(path, "/app-manifests/"):
		return core.ResourceIntegrationManifest
	default:
		return core.ResourceCore
	}
}

// Allow checks if a request is allowed and returns wait duration if not.
// It does not consume quota; use Reserve before sending a request.
func (r *RateLimiter) Allow(ctx context.Context, resource string) (bool, time.Duration, error) {
	if r == nil || r.Store == nil {
		return true, 0, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.Store.GetRateLimit(ctx, resource)
	if err != nil {
		return true, 0, err
	}
	allowed, wait := r.check(state, r.now())
	return allowed, wait, nil
}

// Reserve checks the window and, when the request is allowed, counts it
// against the stored quota in the same locked step.
func (r *RateLimiter) Reserve(ctx context.Context, resource string) (bool, time.Duration, error) {
	if r == nil || r.Store == nil {
		return true, 0, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.Store.GetRateLimit(ctx, resource)
	if err != nil {
		return true, 0, err
	}
	now := r.now()
	allowed, wait := r.check(state, now)
	if !allowed {
		return false, wait, nil
	}
	return true, 0, r.consume(ctx, resource, state, now)
}

// Record counts an outgoing request against the stored window so that
// requests issued before the next response still see a shrinking quota.
func (r *RateLimiter) Record(ctx context.Context, resource string) error {
	if r == nil || r.Store == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.Store.GetRateLimit(ctx, resource)
	if err != nil {
		return err
	}
	return r.consume(ctx, resource, state, r.now())
}

func (r *RateLimiter) check(state *core.RateLimitState, now time.Time) (bool, time.Duration) {
	if state == nil {
		return true, 0
	}
	if state.BackoffUntil != nil && now.Before(*state.BackoffUntil) {
		return false, state.BackoffUntil.Sub(now)
	}
	if !state.WindowOpen(now) {
		return true, 0
	}
	if state.Remaining <= r.reserve(state.Limit) {
		return false, state.ResetsAt.Sub(now)
	}
	return true, 0
}

func (r *RateLimiter) consume(ctx context.Context, resource string, state *core.RateLimitState, now time.Time) error {
	if state == nil || !state.WindowOpen(now) || state.Remaining <= 0 {
		return nil
	}
	state.Remaining--
	return r.Store.UpdateRateLimit(ctx, resource, state)
}

// Observe stores the quota reported by a response. A zero snapshot is ignored.
func (r *RateLimiter) Observe(ctx context.Context, resource string, info ratelimit.Info) error {
	if r == nil || r.Store == nil || info.IsZero() {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.Store.GetRateLimit(ctx, resource)
	if err != nil {
		return err
	}
	if state == nil {
		state = &core.RateLimitState{}
	}

	now := r.now()
	state.Limit = info.Limit
	state.Remaining = info.Remaining
	state.ResetsAt = info.ResetsAt
	state.ObservedAt = now
	if state.BackoffUntil != nil && !now.Before(*state.BackoffUntil) {
		state.BackoffUntil = nil
	}

	return r.Store.UpdateRateLimit(ctx, resource, state)
}

// RecordExceeded applies a backoff window after GitHub rejected a request.
func (r *RateLimiter) RecordExceeded(ctx context.Context, resource string, retryAfter time.Duration) error {
	if r == nil || r.Store == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.Store.GetRateLimit(ctx, resource)
	if err != nil {
		return err
	}
	if state == nil {
		state = &core.RateLimitState{}
	}

	now := r.now()
	state.LastExceededAt = &now
	if state.ObservedAt.IsZero() {
		state.ObservedAt = now
	}
	if retryAfter > 0 {
		until := now.Add(retryAfter)
		state.BackoffUntil = &until
	}

	return r.Store.UpdateRateLimit(ctx, resource, state)
}

// ApplySafetyMargin limits usable quota to a fraction (0-1] of each window.
func (r *RateLimiter) ApplySafetyMargin(margin float64) {
	if r == nil {
		return
	}
	if margin <= 0 || margin > 1 {
		return
	}
	r.Margin = margin
}

// reserve returns how many requests of limit are held back by the margin.
func (r *RateLimiter) reserve(limit int) int {
	if r == nil || r.Margin <= 0 || r.Margin > 1 || limit <= 0 {
		return 0
	}
	usable := int(math.Floor(float64(limit) * r.Margin))
	if usable < 1 {
		usable = 1
	}
	return limit - usable
}

func (r *RateLimiter) now() time.Time {
	if r != nil && r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}
