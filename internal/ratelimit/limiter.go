package ratelimit

import "context"

// RateLimiter paces outbound mail delivery.
type RateLimiter interface {
	Allow(ctx context.Context) (bool, error)
	Wait(ctx context.Context) error
}

// Unlimited is a RateLimiter that never blocks. Used when no pacing backend
// is configured.
type Unlimited struct{}

func (Unlimited) Allow(context.Context) (bool, error) { return true, nil }

func (Unlimited) Wait(context.Context) error { return nil }
