package service

import (
	"context"
	"sync"
	"time"
)

const submissionWindow = time.Minute

// RateLimiter caps how many jobs a single project can enqueue per minute.
// Counts reset when a project's minute elapses. A limit <= 0 lets everything through.
type RateLimiter struct {
	mu    sync.Mutex
	limit int
	now   func() time.Time

	windows map[string]*projectWindow
}

type projectWindow struct {
	count   int
	resetAt time.Time
}

// NewRateLimiter returns a limiter allowing perMinute submissions per project
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		limit:   perMinute,
		now:     time.Now,
		windows: make(map[string]*projectWindow),
	}
}

// CheckSubmissionRate counts one submission against projectRef
func (rl *RateLimiter) CheckSubmissionRate(ctx context.Context, projectRef string) error {
	if rl.limit <= 0 {
		return nil
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.windows[projectRef]
	if ok && now.Before(w.resetAt) {
		if w.count >= rl.limit {
			return ErrRateLimitExceeded
		}
		w.count++
		return nil
	}

	rl.evictExpired(now)
	rl.windows[projectRef] = &projectWindow{count: 1, resetAt: now.Add(submissionWindow)}
	return nil
}

// evictExpired keeps the map bounded by active projects
func (rl *RateLimiter) evictExpired(now time.Time) {
	for ref, w := range rl.windows {
		if !now.Before(w.resetAt) {
			delete(rl.windows, ref)
		}
	}
}
