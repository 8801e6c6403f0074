package resilience

import (
	"context"
	"testing"
	"time"
)

func fakeClock(rl *RateLimiter) *time.Time {
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	rl.lastRefill = now
	return &now
}

func TestRateLimiter_Bucket(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 2, Burst: 2})
	now := fakeClock(rl)

	if !rl.Allow() || !rl.Allow() {
		t.Fatal("burst not available")
	}
	if rl.Allow() {
		t.Fatal("allowed past the burst")
	}
	if got := rl.RetryAfter(); got != 500*time.Millisecond {
		t.Errorf("RetryAfter = %v, want 500ms", got)
	}

	*now = now.Add(500 * time.Millisecond)
	if !rl.Allow() {
		t.Error("token not refilled")
	}

	*now = now.Add(time.Hour)
	if got := rl.Tokens(); got != 2 {
		t.Errorf("Tokens = %v, want capped at 2", got)
	}
}

func TestRateLimiter_Wait(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 1000, Burst: 1})
	ctx := context.Background()
	if err := rl.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := rl.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > time.Second {
		t.Error("waited far longer than one token interval")
	}

	slow := NewRateLimiter(RateLimiterConfig{Rate: 0.001, Burst: 1})
	slow.Allow()
	cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if err := slow.Wait(cctx); err == nil {
		t.Error("Wait ignored the context deadline")
	}
}

func TestRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 2.5})
	if rl.config.Burst != 3 {
		t.Errorf("Burst = %d, want 3", rl.config.Burst)
	}
	if rl := NewRateLimiter(RateLimiterConfig{}); rl.config.Rate != 10 {
		t.Errorf("Rate = %v, want 10", rl.config.Rate)
	}
}
