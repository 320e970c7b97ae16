package service

import (
	"context"
	"errors"
	"fmt"
	"media-bundler/internal/archiver"
	"media-bundler/internal/downloader"
	"media-bundler/internal/metrics"
	"media-bundler/internal/models"
	"media-bundler/internal/notify"
	"media-bundler/internal/repository"
	"time"

	"go.uber.org/zap"
)

// Outcome is what processing a claimed job ended in
type Outcome string

const (
	OutcomeReady    Outcome = "READY"
	OutcomeRetrying Outcome = "RETRYING"
	OutcomeFailed   Outcome = "FAILED"
	// OutcomeLost means the guarded write matched no row: the job was reaped or
	// otherwise taken over while this worker held it
	OutcomeLost Outcome = "LOST"
)

// MediaFetcher downloads catalog items
type MediaFetcher interface {
	DownloadAll(ctx context.Context, items []*models.MediaItem) *downloader.Result
}

// ArtifactPublisher pushes a finished archive to blob storage
type ArtifactPublisher interface {
	Upload(ctx context.Context, job *models.ArtifactJob, project *models.Project, archive *archiver.Archive) (*models.ArtifactResult, error)
	Discard(ctx context.Context, result *models.ArtifactResult) error
}

// ProcessorConfig holds the job-level retry backoff
type ProcessorConfig struct {
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// Processor runs the pipeline for one claimed job and records the outcome
type Processor struct {
	repo       repository.JobRepository
	catalog    repository.CatalogRepository
	guardrails Guardrails
	fetcher    MediaFetcher
	archiver   *archiver.Archiver
	publisher  ArtifactPublisher
	notifier   notify.Notifier
	metrics    *metrics.Metrics
	logger     *zap.Logger
	cfg        ProcessorConfig
	now        func() time.Time
}

// NewProcessor creates a new processor
func NewProcessor(
	repo repository.JobRepository,
	catalog repository.CatalogRepository,
	guardrails Guardrails,
	fetcher MediaFetcher,
	arch *archiver.Archiver,
	publisher ArtifactPublisher,
	notifier notify.Notifier,
	metrics *metrics.Metrics,
	logger *zap.Logger,
	cfg ProcessorConfig,
) *Processor {
	return &Processor{
		repo:       repo,
		catalog:    catalog,
		guardrails: guardrails,
		fetcher:    fetcher,
		archiver:   arch,
		publisher:  publisher,
		notifier:   notifier,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Process runs a job the caller has claimed. Scratch files are always removed.
func (p *Processor) Process(ctx context.Context, job *models.ArtifactJob) Outcome {
	start := p.now()
	log := p.logger.With(zap.String("job_id", job.ID))

	defer func() {
		if err := p.archiver.Cleanup(job.ID, job.WorkerToken); err != nil {
			log.Warn("failed to remove scratch files", zap.Error(err))
		}
	}()

	result, err := p.build(ctx, job, log)
	var outcome Outcome
	if err != nil {
		outcome = p.recordFailure(ctx, job, err, log)
	} else {
		outcome = p.recordSuccess(ctx, job, result, log)
	}

	if outcome == OutcomeReady || outcome == OutcomeFailed {
		p.metrics.ObserveJobDuration(p.now().Sub(start))
	}
	return outcome
}

func (p *Processor) build(ctx context.Context, job *models.ArtifactJob, log *zap.Logger) (*models.ArtifactResult, error) {
	items, err := p.catalog.ListMediaItems(ctx, job.ProjectRef)
	if err != nil {
		return nil, fmt.Errorf("failed to load media: %w", err)
	}

	selected, err := p.guardrails.Select(items, job.MediaFilter)
	if err != nil {
		return nil, err
	}

	downloaded := p.fetcher.DownloadAll(ctx, selected)
	p.metrics.AddSkippedFiles(len(downloaded.Skipped))
	if len(downloaded.Files) == 0 {
		return nil, ErrNoMediaDownloaded
	}
	log.Info("media downloaded",
		zap.Int("files", len(downloaded.Files)),
		zap.Int("skipped", len(downloaded.Skipped)),
	)

	entries := make([]archiver.Entry, len(downloaded.Files))
	for i, f := range downloaded.Files {
		entries[i] = archiver.Entry{Name: f.Item.Filename, Data: f.Data}
	}

	archive, err := p.archiver.Build(job.ID, job.WorkerToken, entries)
	if err != nil {
		return nil, err
	}

	project, err := p.catalog.GetProject(ctx, job.ProjectRef)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	return p.publisher.Upload(ctx, job, project, archive)
}

func (p *Processor) recordSuccess(ctx context.Context, job *models.ArtifactJob, result *models.ArtifactResult, log *zap.Logger) Outcome {
	ok, err := p.repo.CompleteJob(ctx, job.ID, job.WorkerToken, result)
	if err != nil {
		// the row is still GENERATING under our token; the reaper will recover it
		log.Error("failed to record completion", zap.Error(err))
		return OutcomeLost
	}
	if !ok {
		log.Warn("lost job lock before completion, discarding artifact", zap.String("key", result.StorageKey))
		if err := p.publisher.Discard(ctx, result); err != nil {
			log.Warn("failed to discard artifact", zap.Error(err))
		}
		return OutcomeLost
	}

	p.metrics.IncrementCompletedJobs()
	p.metrics.ObserveArtifactSize(result.Size)
	log.Info("job completed", zap.String("url", result.URL), zap.Int64("size", result.Size))

	done := *job
	done.Status = models.StatusReady
	done.Result = result
	done.Error = ""
	p.notify(ctx, &done, log)
	return OutcomeReady
}

func (p *Processor) recordFailure(ctx context.Context, job *models.ArtifactJob, cause error, log *zap.Logger) Outcome {
	var guardrail *GuardrailError
	if !errors.As(cause, &guardrail) && job.RetryCount < job.MaxRetries-1 {
		next := p.now().Add(downloader.Backoff(p.cfg.BackoffBase, p.cfg.BackoffMax, job.RetryCount+1))
		ok, err := p.repo.RequeueJob(ctx, job.ID, job.WorkerToken, "retrying: "+cause.Error(), &next)
		if err != nil {
			log.Error("failed to requeue job", zap.Error(err))
			return OutcomeLost
		}
		if !ok {
			log.Warn("lost job lock before requeue", zap.NamedError("cause", cause))
			return OutcomeLost
		}
		p.metrics.IncrementRetriedJobs()
		log.Warn("job failed, retrying",
			zap.Error(cause),
			zap.Int("retry_count", job.RetryCount+1),
			zap.Int("max_retries", job.MaxRetries),
			zap.Time("next_attempt_at", next),
		)
		return OutcomeRetrying
	}

	reason := cause.Error()
	ok, err := p.repo.FailJob(ctx, job.ID, job.WorkerToken, reason)
	if err != nil {
		log.Error("failed to record failure", zap.Error(err))
		return OutcomeLost
	}
	if !ok {
		log.Warn("lost job lock before failure", zap.NamedError("cause", cause))
		return OutcomeLost
	}

	p.metrics.IncrementFailedJobs()
	log.Warn("job failed", zap.String("reason", reason), zap.Bool("guardrail", guardrail != nil))

	failed := *job
	failed.Status = models.StatusFailed
	failed.Error = reason
	p.notify(ctx, &failed, log)
	return OutcomeFailed
}

func (p *Processor) notify(ctx context.Context, job *models.ArtifactJob, log *zap.Logger) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(ctx, notify.NewEvent(job)); err != nil {
		log.Warn("failed to send notification", zap.Error(err))
	}
}
