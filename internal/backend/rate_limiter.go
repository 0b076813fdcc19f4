package backend

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimiter throttles calls to the order backend
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// tokenBucketLimiter implements RateLimiter with a token bucket
type tokenBucketLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter allowing rps requests per second with the given burst
func NewRateLimiter(rps float64, burst int) RateLimiter {
	if rps <= 0 {
		return unlimited{}
	}
	if burst < 1 {
		burst = 1
	}
	return &tokenBucketLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Wait waits until it's safe to make another API call
func (r *tokenBucketLimiter) Wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

type unlimited struct{}

func (unlimited) Wait(ctx context.Context) error {
	return ctx.Err()
}
