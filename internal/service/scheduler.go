package service

import (
	"context"
	"media-bundler/internal/metrics"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// TickResult reports what one scheduler tick did
type TickResult struct {
	Skipped  bool       `json:"skipped"`
	Disabled bool       `json:"disabled,omitempty"`
	Reaped   ReapResult `json:"reaped"`
	JobID    string     `json:"job_id,omitempty"`
	Outcome  Outcome    `json:"outcome,omitempty"`
}

// Scheduler drives reap, claim and process once per tick
type Scheduler struct {
	reaper    *Reaper
	claimer   *Claimer
	processor *Processor
	interval  time.Duration
	enabled   bool
	metrics   *metrics.Metrics
	logger    *zap.Logger

	busy atomic.Bool

	// running is held for the duration of a tick so Stop can wait on it
	running sync.Mutex

	mu       sync.Mutex
	cancel   context.CancelFunc
	loopDone chan struct{}
}

// NewScheduler creates a scheduler. When enabled is false Start and Tick do
// nothing, which is how a process without blob storage settings stays idle.
func NewScheduler(reaper *Reaper, claimer *Claimer, processor *Processor, interval time.Duration, enabled bool, metrics *metrics.Metrics, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		reaper:    reaper,
		claimer:   claimer,
		processor: processor,
		interval:  interval,
		enabled:   enabled,
		metrics:   metrics,
		logger:    logger,
	}
}

// Start runs Tick every interval until Stop. It reports whether the loop started.
func (s *Scheduler) Start(ctx context.Context) bool {
	if !s.enabled {
		s.logger.Warn("scheduler not started: blob storage is not configured")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return true
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.loopDone = make(chan struct{})

	go s.loop(loopCtx, s.loopDone)

	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
	return true
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Stop halts the timer and waits for an in-flight tick to finish. The tick
// itself is not cancelled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.loopDone
	s.cancel, s.loopDone = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	s.running.Lock()
	s.running.Unlock()
	s.logger.Info("scheduler stopped")
}

// Tick runs one reap, claim and process cycle. A tick that starts while another
// is running returns immediately with Skipped set and no work done. A disabled
// scheduler returns Disabled without touching any job.
func (s *Scheduler) Tick(ctx context.Context) TickResult {
	if !s.enabled {
		return TickResult{Disabled: true}
	}
	if !s.busy.CompareAndSwap(false, true) {
		s.metrics.IncrementSkippedTicks()
		s.logger.Debug("tick skipped, previous tick still running")
		return TickResult{Skipped: true}
	}
	s.running.Lock()
	defer func() {
		s.running.Unlock()
		s.busy.Store(false)
	}()

	// a stopped timer or a closed request must not abandon a claimed job
	ctx = context.WithoutCancel(ctx)

	var res TickResult

	reaped, err := s.reaper.Reap(ctx)
	if err != nil {
		s.logger.Error("reap failed", zap.Error(err))
	}
	res.Reaped = reaped

	job, err := s.claimer.Claim(ctx)
	if err != nil {
		s.logger.Error("claim failed", zap.Error(err))
		return res
	}
	if job == nil {
		return res
	}

	res.JobID = job.ID
	res.Outcome = s.processor.Process(ctx, job)
	return res
}
