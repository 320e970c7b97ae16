package service

import (
	"context"
	"fmt"
	"media-bundler/internal/metrics"
	"media-bundler/internal/repository"
	"time"

	"go.uber.org/zap"
)

// ReapResult counts what one sweep did
type ReapResult struct {
	Requeued int `json:"requeued"`
	Failed   int `json:"failed"`
}

// Reaper recovers jobs whose worker stopped making progress
type Reaper struct {
	repo      repository.JobRepository
	timeout   time.Duration
	batchSize int
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewReaper creates a reaper for jobs GENERATING longer than timeout
func NewReaper(repo repository.JobRepository, timeout time.Duration, batchSize int, metrics *metrics.Metrics, logger *zap.Logger) *Reaper {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Reaper{
		repo:      repo,
		timeout:   timeout,
		batchSize: batchSize,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Reap requeues stuck jobs that still have retry budget and fails the rest.
// Each write is guarded on the token observed in the sweep, so a job that
// completed or was already reaped in the meantime is left alone.
func (r *Reaper) Reap(ctx context.Context) (ReapResult, error) {
	var res ReapResult

	stuck, err := r.repo.FindStuckJobs(ctx, r.now().Add(-r.timeout), r.batchSize)
	if err != nil {
		return res, fmt.Errorf("failed to find stuck jobs: %w", err)
	}

	for _, job := range stuck {
		if job.RetryCount < job.MaxRetries {
			reason := fmt.Sprintf("recovered from stuck state after %s (attempt %d/%d)", r.timeout, job.RetryCount+1, job.MaxRetries)
			ok, err := r.repo.RequeueJob(ctx, job.ID, job.WorkerToken, reason, nil)
			if err != nil {
				r.logger.Error("failed to requeue stuck job", zap.String("job_id", job.ID), zap.Error(err))
				continue
			}
			if !ok {
				r.logger.Debug("stuck job changed before requeue", zap.String("job_id", job.ID))
				continue
			}
			res.Requeued++
			r.metrics.IncrementReapedJobs()
			r.logger.Warn("requeued stuck job", zap.String("job_id", job.ID), zap.Int("retry_count", job.RetryCount+1))
			continue
		}

		reason := fmt.Sprintf("processing timed out after %d attempts", job.RetryCount+1)
		ok, err := r.repo.FailJob(ctx, job.ID, job.WorkerToken, reason)
		if err != nil {
			r.logger.Error("failed to fail stuck job", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		if !ok {
			r.logger.Debug("stuck job changed before fail", zap.String("job_id", job.ID))
			continue
		}
		res.Failed++
		r.metrics.IncrementReapedJobs()
		r.metrics.IncrementFailedJobs()
		r.logger.Warn("failed stuck job", zap.String("job_id", job.ID), zap.String("reason", reason))
	}

	return res, nil
}
