package repository

import (
	"context"
	"errors"
	"fmt"
	"media-bundler/internal/models"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Store on a pgx connection pool
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository connects to databaseURL and ensures the schema exists
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repo := &PostgresRepository{db: pool}
	if err := repo.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

// Close closes the pool
func (r *PostgresRepository) Close() error {
	r.db.Close()
	return nil
}

func (r *PostgresRepository) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS artifact_jobs (
		id TEXT PRIMARY KEY,
		project_ref TEXT NOT NULL,
		media_filter TEXT NOT NULL DEFAULT 'ALL',
		status TEXT NOT NULL DEFAULT 'PENDING',
		worker_token TEXT,
		processing_started_at BIGINT,
		retry_count INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 3,
		error TEXT,
		next_attempt_at BIGINT,
		result_key TEXT,
		result_url TEXT,
		result_filename TEXT,
		result_size BIGINT,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		completed_at BIGINT,
		seq BIGSERIAL
	);

	CREATE INDEX IF NOT EXISTS idx_artifact_jobs_status ON artifact_jobs(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_artifact_jobs_project ON artifact_jobs(project_ref);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_artifact_jobs_active_project
		ON artifact_jobs(project_ref) WHERE status IN ('PENDING', 'GENERATING');

	CREATE TABLE IF NOT EXISTS projects (
		ref TEXT PRIMARY KEY,
		organization TEXT,
		address TEXT,
		city TEXT
	);

	CREATE TABLE IF NOT EXISTS media_items (
		id TEXT PRIMARY KEY,
		project_ref TEXT NOT NULL,
		key TEXT NOT NULL,
		cdn_url TEXT,
		filename TEXT NOT NULL,
		size BIGINT,
		media_type TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		seq BIGSERIAL
	);

	CREATE INDEX IF NOT EXISTS idx_media_items_project ON media_items(project_ref);
	`

	_, err := r.db.Exec(ctx, schema)
	return err
}

// CreateJob inserts a new job
func (r *PostgresRepository) CreateJob(ctx context.Context, job *models.ArtifactJob) error {
	query := `
		INSERT INTO artifact_jobs (id, project_ref, media_filter, status, retry_count, max_retries, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err := r.db.Exec(ctx, query,
		job.ID,
		job.ProjectRef,
		string(job.MediaFilter),
		string(job.Status),
		job.RetryCount,
		job.MaxRetries,
		now.Unix(),
		now.Unix(),
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return ErrActiveJobExists
		}
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetJobByID retrieves a job by ID
func (r *PostgresRepository) GetJobByID(ctx context.Context, id string) (*models.ArtifactJob, error) {
	query := `SELECT ` + jobColumns + ` FROM artifact_jobs WHERE id = $1`

	job, err := scanJob(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// GetActiveJobByProject returns the oldest PENDING or GENERATING job of a project, or nil
func (r *PostgresRepository) GetActiveJobByProject(ctx context.Context, projectRef string) (*models.ArtifactJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM artifact_jobs
		WHERE project_ref = $1 AND status IN ('PENDING', 'GENERATING')
		ORDER BY created_at ASC, seq ASC
		LIMIT 1
	`

	job, err := scanJob(r.db.QueryRow(ctx, query, projectRef))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active job: %w", err)
	}

	return job, nil
}

// ListJobsByStatus retrieves all jobs with a specific status
func (r *PostgresRepository) ListJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.ArtifactJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM artifact_jobs
		WHERE status = $1
		ORDER BY created_at ASC, seq ASC
	`

	return r.queryJobs(ctx, query, string(status))
}

func (r *PostgresRepository) queryJobs(ctx context.Context, query string, args ...any) ([]*models.ArtifactJob, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.ArtifactJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}

	return jobs, nil
}

// CountJobsByStatus returns the number of jobs in each status
func (r *PostgresRepository) CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	rows, err := r.db.Query(ctx, "SELECT status, COUNT(*) FROM artifact_jobs GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.JobStatus]int)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[models.JobStatus(status)] = int(n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate job counts: %w", err)
	}

	return counts, nil
}

// ClaimNextJob claims the oldest eligible PENDING job. Rows locked by a
// concurrent claimer are skipped rather than waited on.
func (r *PostgresRepository) ClaimNextJob(ctx context.Context, token string, now time.Time) (*models.ArtifactJob, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	nowUnix := now.Unix()

	query := `
		SELECT ` + jobColumns + `
		FROM artifact_jobs
		WHERE status = 'PENDING'
		  AND worker_token IS NULL
		  AND (next_attempt_at IS NULL OR next_attempt_at <= $1)
		ORDER BY created_at ASC, seq ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`

	job, err := scanJob(tx.QueryRow(ctx, query, nowUnix))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find claimable job: %w", err)
	}

	updateQuery := `
		UPDATE artifact_jobs
		SET status = 'GENERATING',
		    worker_token = $1,
		    processing_started_at = $2,
		    updated_at = $2
		WHERE id = $3 AND status = 'PENDING' AND worker_token IS NULL
	`

	tag, err := tx.Exec(ctx, updateQuery, token, nowUnix, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	started := time.Unix(nowUnix, 0)
	job.Status = models.StatusGenerating
	job.WorkerToken = token
	job.ProcessingStartedAt = &started
	job.UpdatedAt = started

	return job, nil
}

// FindStuckJobs returns GENERATING jobs whose processing started before the cutoff
func (r *PostgresRepository) FindStuckJobs(ctx context.Context, startedBefore time.Time, limit int) ([]*models.ArtifactJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM artifact_jobs
		WHERE status = 'GENERATING' AND processing_started_at < $1
		ORDER BY processing_started_at ASC
		LIMIT $2
	`

	return r.queryJobs(ctx, query, startedBefore.Unix(), limit)
}

// CompleteJob marks a job READY if it is still owned by token
func (r *PostgresRepository) CompleteJob(ctx context.Context, id, token string, result *models.ArtifactResult) (bool, error) {
	query := `
		UPDATE artifact_jobs
		SET status = 'READY',
		    worker_token = NULL,
		    processing_started_at = NULL,
		    next_attempt_at = NULL,
		    error = NULL,
		    result_key = $1,
		    result_url = $2,
		    result_filename = $3,
		    result_size = $4,
		    completed_at = $5,
		    updated_at = $5
		WHERE id = $6 AND worker_token = $7 AND status = 'GENERATING'
	`

	tag, err := r.db.Exec(ctx, query,
		result.StorageKey, result.URL, result.Filename, result.Size,
		time.Now().Unix(), id, token,
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete job: %w", err)
	}

	return tagAffectedOne(tag), nil
}

// RequeueJob moves an owned GENERATING job back to PENDING and increments its retry count
func (r *PostgresRepository) RequeueJob(ctx context.Context, id, token, reason string, nextAttemptAt *time.Time) (bool, error) {
	query := `
		UPDATE artifact_jobs
		SET status = 'PENDING',
		    worker_token = NULL,
		    processing_started_at = NULL,
		    retry_count = retry_count + 1,
		    error = $1,
		    next_attempt_at = $2,
		    updated_at = $3
		WHERE id = $4 AND worker_token = $5 AND status = 'GENERATING'
	`

	tag, err := r.db.Exec(ctx, query,
		nullableString(reason), nullableUnix(nextAttemptAt), time.Now().Unix(), id, token,
	)
	if err != nil {
		return false, fmt.Errorf("failed to requeue job: %w", err)
	}

	return tagAffectedOne(tag), nil
}

// FailJob moves an owned GENERATING job to FAILED
func (r *PostgresRepository) FailJob(ctx context.Context, id, token, reason string) (bool, error) {
	query := `
		UPDATE artifact_jobs
		SET status = 'FAILED',
		    worker_token = NULL,
		    processing_started_at = NULL,
		    next_attempt_at = NULL,
		    error = $1,
		    updated_at = $2
		WHERE id = $3 AND worker_token = $4 AND status = 'GENERATING'
	`

	tag, err := r.db.Exec(ctx, query, nullableString(reason), time.Now().Unix(), id, token)
	if err != nil {
		return false, fmt.Errorf("failed to fail job: %w", err)
	}

	return tagAffectedOne(tag), nil
}

// ResetFailedJob moves a FAILED job back to PENDING with retry_count 0
func (r *PostgresRepository) ResetFailedJob(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE artifact_jobs
		SET status = 'PENDING',
		    retry_count = 0,
		    error = NULL,
		    next_attempt_at = NULL,
		    completed_at = NULL,
		    updated_at = $1
		WHERE id = $2 AND status = 'FAILED'
	`

	tag, err := r.db.Exec(ctx, query, time.Now().Unix(), id)
	if err != nil {
		if isPgUniqueViolation(err) {
			return false, ErrActiveJobExists
		}
		return false, fmt.Errorf("failed to reset job: %w", err)
	}

	return tagAffectedOne(tag), nil
}

// GetProject retrieves a catalog project
func (r *PostgresRepository) GetProject(ctx context.Context, ref string) (*models.Project, error) {
	query := `SELECT ref, COALESCE(organization, ''), COALESCE(address, ''), COALESCE(city, '') FROM projects WHERE ref = $1`

	var p models.Project
	err := r.db.QueryRow(ctx, query, ref).Scan(&p.Ref, &p.Organization, &p.Address, &p.City)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return &p, nil
}

// ListMediaItems returns the catalog items of a project in insertion order
func (r *PostgresRepository) ListMediaItems(ctx context.Context, projectRef string) ([]*models.MediaItem, error) {
	query := `
		SELECT id, project_ref, key, cdn_url, filename, size, media_type
		FROM media_items
		WHERE project_ref = $1
		ORDER BY created_at ASC, seq ASC
	`

	rows, err := r.db.Query(ctx, query, projectRef)
	if err != nil {
		return nil, fmt.Errorf("failed to query media items: %w", err)
	}
	defer rows.Close()

	var items []*models.MediaItem
	for rows.Next() {
		item, err := scanMediaItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan media item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate media items: %w", err)
	}

	return items, nil
}

// UpsertProject creates or updates a catalog project
func (r *PostgresRepository) UpsertProject(ctx context.Context, project *models.Project) error {
	query := `
		INSERT INTO projects (ref, organization, address, city)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ref) DO UPDATE SET
			organization = EXCLUDED.organization,
			address = EXCLUDED.address,
			city = EXCLUDED.city
	`

	_, err := r.db.Exec(ctx, query,
		project.Ref,
		nullableString(project.Organization),
		nullableString(project.Address),
		nullableString(project.City),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert project: %w", err)
	}

	return nil
}

// AddMediaItem adds an item to a project's catalog
func (r *PostgresRepository) AddMediaItem(ctx context.Context, item *models.MediaItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	query := `
		INSERT INTO media_items (id, project_ref, key, cdn_url, filename, size, media_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	var size any
	if item.Size > 0 {
		size = item.Size
	}

	_, err := r.db.Exec(ctx, query,
		item.ID,
		item.ProjectRef,
		item.Key,
		nullableString(item.CDNURL),
		item.Filename,
		size,
		item.MediaType,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to add media item: %w", err)
	}

	return nil
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func tagAffectedOne(tag pgconn.CommandTag) bool {
	return tag.RowsAffected() == 1
}
