package repository

import (
	"context"
	"errors"
	"media-bundler/internal/models"
	"time"
)

var (
	// ErrNotFound is returned when a job, project or media item does not exist
	ErrNotFound = errors.New("not found")
	// ErrActiveJobExists is returned when a write would leave a project with two
	// PENDING or GENERATING jobs
	ErrActiveJobExists = errors.New("project already has an active job")
)

// JobRepository defines the persistence contract for artifact jobs.
//
// Every mutation of a job that is owned by a worker is a conditional update: it
// returns false, not an error, when the guarded row no longer matches.
type JobRepository interface {
	CreateJob(ctx context.Context, job *models.ArtifactJob) error
	GetJobByID(ctx context.Context, id string) (*models.ArtifactJob, error)
	GetActiveJobByProject(ctx context.Context, projectRef string) (*models.ArtifactJob, error)
	ListJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.ArtifactJob, error)
	CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int, error)

	// ClaimNextJob flips the oldest claimable PENDING job to GENERATING under
	// token. It returns nil when there is no candidate or a competing worker won.
	ClaimNextJob(ctx context.Context, token string, now time.Time) (*models.ArtifactJob, error)
	FindStuckJobs(ctx context.Context, startedBefore time.Time, limit int) ([]*models.ArtifactJob, error)

	CompleteJob(ctx context.Context, id, token string, result *models.ArtifactResult) (bool, error)
	RequeueJob(ctx context.Context, id, token, reason string, nextAttemptAt *time.Time) (bool, error)
	FailJob(ctx context.Context, id, token, reason string) (bool, error)

	// ResetFailedJob moves a FAILED job back to PENDING with a fresh retry budget
	ResetFailedJob(ctx context.Context, id string) (bool, error)
}

// CatalogRepository is the read side of the media catalog
type CatalogRepository interface {
	GetProject(ctx context.Context, ref string) (*models.Project, error)
	ListMediaItems(ctx context.Context, projectRef string) ([]*models.MediaItem, error)
}

// Store is implemented by both the SQLite and Postgres backends
type Store interface {
	JobRepository
	CatalogRepository
	UpsertProject(ctx context.Context, project *models.Project) error
	AddMediaItem(ctx context.Context, item *models.MediaItem) error
	Close() error
}
