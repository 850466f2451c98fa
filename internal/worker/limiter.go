package worker

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"quote-drift-tracker/internal/config"
)

// RateLimiter spreads a target aggregate frequency over a fixed number of workers.
// Each worker fires once per Interval; the shared token bucket keeps bursts after
// cooldowns from exceeding the aggregate target.
type RateLimiter struct {
	frequency float64
	workers   int
	interval  time.Duration
	bucket    *rate.Limiter
}

// NewRateLimiter 校验频率与并发数，二者都必须为正。
func NewRateLimiter(frequency float64, workers int) (*RateLimiter, error) {
	if frequency <= 0 {
		return nil, config.NewConfigError("tracker.frequency", "must be greater than zero")
	}
	if workers <= 0 {
		return nil, config.NewConfigError("tracker.workers", "must be greater than zero")
	}
	return &RateLimiter{
		frequency: frequency,
		workers:   workers,
		interval:  time.Duration(float64(workers) / frequency * float64(time.Second)),
		bucket:    rate.NewLimiter(rate.Limit(frequency), workers),
	}, nil
}

// Interval is workers / frequency.
func (r *RateLimiter) Interval() time.Duration {
	return r.interval
}

// Frequency is the aggregate target in requests per second.
func (r *RateLimiter) Frequency() float64 {
	return r.frequency
}

// Workers is the number of concurrent loops the interval was derived for.
func (r *RateLimiter) Workers() int {
	return r.workers
}

// Wait blocks until the aggregate bucket admits one request or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.bucket.Wait(ctx)
}
