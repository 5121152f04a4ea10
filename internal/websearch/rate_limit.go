package websearch

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter budgets outbound calls per provider.
type RateLimiter struct {
	mu    sync.Mutex
	m     map[ProviderName]*rate.Limiter
	rate  rate.Limit
	burst int
}

// NewRateLimiter constructs a limiter allowing perMinute calls for each
// provider. A non-positive budget disables limiting.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		return &RateLimiter{rate: rate.Inf}
	}
	return &RateLimiter{
		m:     make(map[ProviderName]*rate.Limiter),
		rate:  rate.Limit(float64(perMinute) / 60.0),
		burst: perMinute,
	}
}

func (r *RateLimiter) limiter(provider ProviderName) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	lim, ok := r.m[provider]
	if !ok {
		lim = rate.NewLimiter(r.rate, r.burst)
		r.m[provider] = lim
	}
	return lim
}

// Wait blocks until provider has budget or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context, provider ProviderName) error {
	if r == nil || r.rate == rate.Inf {
		return nil
	}
	return r.limiter(provider).Wait(ctx)
}
