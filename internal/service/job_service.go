package service

import (
	"context"
	"errors"
	"fmt"
	"media-bundler/internal/metrics"
	"media-bundler/internal/models"
	"media-bundler/internal/repository"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobService handles job submission and the admin surface
type JobService struct {
	repo              repository.JobRepository
	rateLimiter       *RateLimiter
	metrics           *metrics.Metrics
	logger            *zap.Logger
	defaultMaxRetries int
}

// NewJobService creates a new job service
func NewJobService(repo repository.JobRepository, rateLimiter *RateLimiter, metrics *metrics.Metrics, logger *zap.Logger, defaultMaxRetries int) *JobService {
	return &JobService{
		repo:              repo,
		rateLimiter:       rateLimiter,
		metrics:           metrics,
		logger:            logger,
		defaultMaxRetries: defaultMaxRetries,
	}
}

// CreateJob enqueues an artifact job. If the project already has a PENDING or
// GENERATING job, that job is returned instead of a new one.
func (s *JobService) CreateJob(ctx context.Context, req *models.CreateJobRequest) (*models.ArtifactJob, error) {
	projectRef := strings.TrimSpace(req.ProjectRef)
	if projectRef == "" {
		return nil, invalidf("project_ref is required")
	}

	filter, ok := models.ParseMediaFilter(string(req.MediaFilter))
	if !ok {
		return nil, invalidf("unknown media_filter %q", req.MediaFilter)
	}

	maxRetries := s.defaultMaxRetries
	if req.MaxRetries != nil {
		if *req.MaxRetries < 0 {
			return nil, invalidf("max_retries must not be negative")
		}
		maxRetries = *req.MaxRetries
	}

	existing, err := s.repo.GetActiveJobByProject(ctx, projectRef)
	if err != nil {
		return nil, fmt.Errorf("failed to check active job: %w", err)
	}
	if existing != nil {
		s.logger.Info("active job already exists",
			zap.String("job_id", existing.ID),
			zap.String("project_ref", projectRef),
		)
		return existing, nil
	}

	if err := s.rateLimiter.CheckSubmissionRate(ctx, projectRef); err != nil {
		return nil, err
	}

	job := &models.ArtifactJob{
		ID:          uuid.New().String(),
		ProjectRef:  projectRef,
		MediaFilter: filter,
		Status:      models.StatusPending,
		MaxRetries:  maxRetries,
		RetryCount:  0,
	}

	if err := s.repo.CreateJob(ctx, job); err != nil {
		if errors.Is(err, repository.ErrActiveJobExists) {
			// a concurrent submission for the same project won the insert
			return s.activeJob(ctx, projectRef)
		}
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	s.metrics.IncrementCreatedJobs()
	s.logger.Info("job submitted",
		zap.String("job_id", job.ID),
		zap.String("project_ref", projectRef),
		zap.String("media_filter", string(filter)),
	)

	return job, nil
}

func (s *JobService) activeJob(ctx context.Context, projectRef string) (*models.ArtifactJob, error) {
	existing, err := s.repo.GetActiveJobByProject(ctx, projectRef)
	if err != nil {
		return nil, fmt.Errorf("failed to check active job: %w", err)
	}
	if existing == nil {
		// the competing job already finished; the caller may submit again
		return nil, ErrProjectBusy
	}
	return existing, nil
}

// GetJob retrieves a job by ID
func (s *JobService) GetJob(ctx context.Context, id string) (*models.ArtifactJob, error) {
	job, err := s.repo.GetJobByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListJobsByStatus retrieves jobs by status
func (s *JobService) ListJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.ArtifactJob, error) {
	if !status.Valid() {
		return nil, invalidf("unknown status %q", status)
	}
	jobs, err := s.repo.ListJobsByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// RetryJob is the admin reset: FAILED -> PENDING with retry_count 0 and the error cleared
func (s *JobService) RetryJob(ctx context.Context, id string) (*models.ArtifactJob, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != models.StatusFailed {
		return nil, ErrJobNotFailed
	}

	ok, err := s.repo.ResetFailedJob(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrActiveJobExists) {
			return nil, ErrProjectBusy
		}
		return nil, fmt.Errorf("failed to reset job: %w", err)
	}
	if !ok {
		// another admin reset won
		return nil, ErrJobNotFailed
	}

	s.logger.Info("failed job reset for retry", zap.String("job_id", id))
	return s.GetJob(ctx, id)
}

// Stats is the payload of the stats endpoint
type Stats struct {
	Jobs     map[models.JobStatus]int `json:"jobs"`
	Counters map[string]int64         `json:"counters"`
}

// Stats returns job counts per status and the in-process counters
func (s *JobService) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.repo.CountJobsByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	for _, st := range []models.JobStatus{models.StatusPending, models.StatusGenerating, models.StatusReady, models.StatusFailed} {
		if _, ok := counts[st]; !ok {
			counts[st] = 0
		}
	}
	return &Stats{Jobs: counts, Counters: s.metrics.GetSnapshot()}, nil
}
