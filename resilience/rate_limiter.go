package resilience

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"
)

// ErrRateLimited is returned when no token is available.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimiterConfig configures a token bucket.
type RateLimiterConfig struct {
	Name string `yaml:"name" mapstructure:"name" json:"name"`
	// Rate is the number of tokens added per second.
	Rate float64 `yaml:"rate" mapstructure:"rate" json:"rate" validate:"gte=0"`
	// Burst is the bucket size.
	Burst int `yaml:"burst" mapstructure:"burst" json:"burst" validate:"gte=0"`
}

// DefaultRateLimiterConfig returns sensible defaults.
func DefaultRateLimiterConfig(name string) RateLimiterConfig {
	return RateLimiterConfig{
		Name:  name,
		Rate:  10.0,
		Burst: 20,
	}
}

// RateLimiter is a token bucket. The client side waits for tokens; the dev
// server rejects requests when none is left.
type RateLimiter struct {
	config RateLimiterConfig
	now    func() time.Time

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter creates a full bucket.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Rate <= 0 {
		config.Rate = 10.0
	}
	if config.Burst <= 0 {
		config.Burst = int(math.Ceil(config.Rate))
	}
	rl := &RateLimiter{
		config: config,
		now:    time.Now,
		tokens: float64(config.Burst),
	}
	rl.lastRefill = rl.now()
	return rl
}

// Allow takes a token if one is available.
func (rl *RateLimiter) Allow() bool {
	return rl.reserve(false) == 0
}

// RetryAfter returns how long until the next token is available.
func (rl *RateLimiter) RetryAfter() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	if rl.tokens >= 1 {
		return 0
	}
	return rl.wait(1 - rl.tokens)
}

// Wait blocks until a token is taken or ctx is done. A token reserved by a
// cancelled wait is not returned to the bucket.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	d := rl.reserve(true)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// reserve takes a token. With borrow set the bucket may go negative and the
// returned duration is the wait until the borrowed token is covered;
// otherwise a non-zero duration means nothing was taken.
func (rl *RateLimiter) reserve(borrow bool) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	if rl.tokens >= 1 {
		rl.tokens--
		return 0
	}
	d := rl.wait(1 - rl.tokens)
	if borrow {
		rl.tokens--
	}
	return d
}

func (rl *RateLimiter) wait(needed float64) time.Duration {
	return time.Duration(needed / rl.config.Rate * float64(time.Second))
}

func (rl *RateLimiter) refill() {
	now := rl.now()
	rl.tokens = min(rl.tokens+now.Sub(rl.lastRefill).Seconds()*rl.config.Rate, float64(rl.config.Burst))
	rl.lastRefill = now
}

// Tokens returns the current number of available tokens.
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	return rl.tokens
}
