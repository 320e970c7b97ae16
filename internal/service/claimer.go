package service

import (
	"context"
	"fmt"
	"media-bundler/internal/metrics"
	"media-bundler/internal/models"
	"media-bundler/internal/repository"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Claimer gives one worker exclusive ownership of one PENDING job
type Claimer struct {
	repo    repository.JobRepository
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewClaimer creates a new claimer
func NewClaimer(repo repository.JobRepository, metrics *metrics.Metrics, logger *zap.Logger) *Claimer {
	return &Claimer{repo: repo, metrics: metrics, logger: logger, now: time.Now}
}

// Claim returns the claimed job, or nil when nothing is claimable this tick.
// Losing a race to another worker is not an error.
func (c *Claimer) Claim(ctx context.Context) (*models.ArtifactJob, error) {
	token := uuid.New().String()

	job, err := c.repo.ClaimNextJob(ctx, token, c.now())
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	if job == nil {
		return nil, nil
	}

	c.metrics.IncrementClaimedJobs()
	c.logger.Info("job claimed",
		zap.String("job_id", job.ID),
		zap.String("project_ref", job.ProjectRef),
		zap.Int("retry_count", job.RetryCount),
	)
	return job, nil
}
