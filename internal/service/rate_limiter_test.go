package service

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(perMinute int) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(perMinute)
	rl.now = clock.Now
	return rl, clock
}

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	rl, _ := newTestLimiter(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := rl.CheckSubmissionRate(ctx, "proj-1"); err != nil {
			t.Fatalf("submission %d: expected no error, got %v", i+1, err)
		}
	}

	if err := rl.CheckSubmissionRate(ctx, "proj-1"); !errors.Is(err, ErrRateLimitExceeded) {
		t.Errorf("expected ErrRateLimitExceeded, got %v", err)
	}
}

func TestRateLimiter_ResetsAfterOneMinute(t *testing.T) {
	rl, clock := newTestLimiter(1)
	ctx := context.Background()

	rl.CheckSubmissionRate(ctx, "proj-1")

	clock.Advance(59 * time.Second)
	if err := rl.CheckSubmissionRate(ctx, "proj-1"); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected limit inside the minute, got %v", err)
	}

	clock.Advance(time.Second)
	if err := rl.CheckSubmissionRate(ctx, "proj-1"); err != nil {
		t.Errorf("expected new window after a minute, got %v", err)
	}
}

func TestRateLimiter_ProjectsAreIndependent(t *testing.T) {
	rl, _ := newTestLimiter(1)
	ctx := context.Background()

	rl.CheckSubmissionRate(ctx, "proj-1")

	if err := rl.CheckSubmissionRate(ctx, "proj-2"); err != nil {
		t.Errorf("expected proj-2 to be allowed, got %v", err)
	}
	if err := rl.CheckSubmissionRate(ctx, "proj-1"); !errors.Is(err, ErrRateLimitExceeded) {
		t.Errorf("expected proj-1 to be limited, got %v", err)
	}
}

func TestRateLimiter_EvictsExpiredProjects(t *testing.T) {
	rl, clock := newTestLimiter(5)
	ctx := context.Background()

	rl.CheckSubmissionRate(ctx, "proj-1")
	clock.Advance(2 * time.Minute)
	rl.CheckSubmissionRate(ctx, "proj-2")

	if _, ok := rl.windows["proj-1"]; ok {
		t.Error("expected proj-1 window to be evicted")
	}
	if len(rl.windows) != 1 {
		t.Errorf("expected 1 tracked project, got %d", len(rl.windows))
	}
}

func TestRateLimiter_ZeroLimitDisables(t *testing.T) {
	rl, _ := newTestLimiter(0)

	for i := 0; i < 100; i++ {
		if err := rl.CheckSubmissionRate(context.Background(), "proj-1"); err != nil {
			t.Fatalf("submission %d: expected no error, got %v", i+1, err)
		}
	}
	if len(rl.windows) != 0 {
		t.Errorf("expected disabled limiter to track nothing, got %d", len(rl.windows))
	}
}
