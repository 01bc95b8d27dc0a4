package http

import "golang.org/x/time/rate"

// RateLimitConfig bounds inbound frames per connection.
// A zero PerSecond disables limiting.
type RateLimitConfig struct {
	PerSecond float64
	Burst     int
}

type rateLimiter struct {
	limiter *rate.Limiter
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.PerSecond <= 0 {
		return &rateLimiter{}
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &rateLimiter{limiter: rate.NewLimiter(rate.Limit(cfg.PerSecond), burst)}
}

func (r *rateLimiter) allow() bool {
	if r == nil || r.limiter == nil {
		return true
	}
	return r.limiter.Allow()
}
