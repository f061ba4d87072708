// Package ratelimit wraps a token-bucket limiter shared by all scan workers.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter paces upstream requests. All workers share one instance so the
// combined request rate stays within the configured bound.
type Limiter struct {
	bucket *rate.Limiter
}

// NewLimiter creates a limiter allowing rps requests per second with the
// given burst capacity.
func NewLimiter(rps float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{bucket: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a request is allowed or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.bucket.Wait(ctx)
}

// Allow reports whether a request may proceed immediately.
func (l *Limiter) Allow() bool {
	return l.bucket.Allow()
}

// Tokens returns the currently available token count.
func (l *Limiter) Tokens() float64 {
	return l.bucket.Tokens()
}
