package providers

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket that paces calls to the service. The bucket
// holds up to one minute of requests and refills continuously.
type RateLimiter struct {
	mu sync.Mutex

	perMinute  int
	tokens     float64
	lastRefill time.Time

	consumed   int64
	waited     time.Duration
	last429    time.Time
	pauseUntil time.Time
}

// RateLimiterStatus reports limiter state.
type RateLimiterStatus struct {
	RequestsPerMinute int           `json:"requests_per_minute" yaml:"requests_per_minute"`
	TokensAvailable   int           `json:"tokens_available" yaml:"tokens_available"`
	TotalConsumed     int64         `json:"total_consumed" yaml:"total_consumed"`
	TotalWaited       time.Duration `json:"total_waited" yaml:"total_waited"`
	Last429Time       time.Time     `json:"last_429_time,omitempty" yaml:"last_429_time,omitempty"`
}

// NewRateLimiter creates a limiter allowing requestsPerMinute calls. A
// non-positive rate returns nil, which never blocks.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	return &RateLimiter{
		perMinute:  requestsPerMinute,
		tokens:     float64(requestsPerMinute),
		lastRefill: time.Now(),
	}
}

// Wait blocks until a request may be sent or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return ctx.Err()
	}
	for {
		r.mu.Lock()
		now := time.Now()
		r.refillLocked(now)

		var delay time.Duration
		switch {
		case now.Before(r.pauseUntil):
			delay = r.pauseUntil.Sub(now)
		case r.tokens >= 1:
			r.tokens--
			r.consumed++
			r.mu.Unlock()
			return nil
		default:
			delay = r.untilNextTokenLocked()
		}
		r.mu.Unlock()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			r.mu.Lock()
			r.waited += delay
			r.mu.Unlock()
		}
	}
}

// Record429 notes a rate-limit response. A positive retryAfter empties the
// bucket and pauses sending for that long.
func (r *RateLimiter) Record429(retryAfter time.Duration) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.last429 = time.Now()
	if retryAfter > 0 {
		r.tokens = 0
		r.pauseUntil = r.last429.Add(retryAfter)
	}
}

// Status returns a snapshot of the limiter.
func (r *RateLimiter) Status() RateLimiterStatus {
	if r == nil {
		return RateLimiterStatus{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refillLocked(time.Now())
	return RateLimiterStatus{
		RequestsPerMinute: r.perMinute,
		TokensAvailable:   int(r.tokens),
		TotalConsumed:     r.consumed,
		TotalWaited:       r.waited,
		Last429Time:       r.last429,
	}
}

func (r *RateLimiter) refillLocked(now time.Time) {
	elapsed := now.Sub(r.lastRefill)
	r.lastRefill = now
	r.tokens += elapsed.Minutes() * float64(r.perMinute)
	if limit := float64(r.perMinute); r.tokens > limit {
		r.tokens = limit
	}
}

func (r *RateLimiter) untilNextTokenLocked() time.Duration {
	missing := 1 - r.tokens
	d := time.Duration(missing / float64(r.perMinute) * float64(time.Minute))
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}
