// Copyright 2025 James Ross
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter guards outbound routing oracle calls with a token bucket.
type Limiter struct {
	rl *rate.Limiter
}

// New builds a Limiter from a steady rate (requests/sec) and a burst size.
// A non-positive perSec disables limiting (Wait always returns immediately).
func New(perSec float64, burst int) *Limiter {
	if perSec <= 0 {
		return &Limiter{rl: nil}
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{rl: rate.NewLimiter(rate.Limit(perSec), burst)}
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.rl == nil {
		return nil
	}
	return l.rl.Wait(ctx)
}
