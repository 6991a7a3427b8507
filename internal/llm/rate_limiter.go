package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// defaultRequestsPerMinute is conservative enough for the cheaper API
// tiers while keeping a 30-title batch cycle under a minute.
const defaultRequestsPerMinute = 30

// RateLimiter throttles provider calls so batch fan-out does not trip
// upstream quotas.
type RateLimiter struct {
	limiter *rate.Limiter
}

func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = defaultRequestsPerMinute
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), requestsPerMinute),
	}
}

// Wait blocks until a request slot is available or the context ends.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
