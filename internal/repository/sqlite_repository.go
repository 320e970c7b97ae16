package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"media-bundler/internal/models"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// SQLiteRepository implements Store using SQLite
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite repository
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	// immediate transactions take the write lock up front so concurrent claimers
	// queue on the busy timeout instead of failing to upgrade a read snapshot
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repo := &SQLiteRepository{db: db}
	if err := repo.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS artifact_jobs (
		id TEXT PRIMARY KEY,
		project_ref TEXT NOT NULL,
		media_filter TEXT NOT NULL DEFAULT 'ALL',
		status TEXT NOT NULL DEFAULT 'PENDING',
		worker_token TEXT,
		processing_started_at INTEGER,
		retry_count INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 3,
		error TEXT,
		next_attempt_at INTEGER,
		result_key TEXT,
		result_url TEXT,
		result_filename TEXT,
		result_size INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		completed_at INTEGER
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
		size INTEGER,
		media_type TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_media_items_project ON media_items(project_ref);
	`

	_, err := r.db.Exec(schema)
	return err
}

// CreateJob inserts a new job
func (r *SQLiteRepository) CreateJob(ctx context.Context, job *models.ArtifactJob) error {
	query := `
		INSERT INTO artifact_jobs (id, project_ref, media_filter, status, retry_count, max_retries, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		job.ID,
		job.ProjectRef,
		job.MediaFilter,
		job.Status,
		job.RetryCount,
		job.MaxRetries,
		now.Unix(),
		now.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrActiveJobExists
		}
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetJobByID retrieves a job by ID
func (r *SQLiteRepository) GetJobByID(ctx context.Context, id string) (*models.ArtifactJob, error) {
	query := `SELECT ` + jobColumns + ` FROM artifact_jobs WHERE id = ?`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// GetActiveJobByProject returns the oldest PENDING or GENERATING job of a project, or nil
func (r *SQLiteRepository) GetActiveJobByProject(ctx context.Context, projectRef string) (*models.ArtifactJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM artifact_jobs
		WHERE project_ref = ? AND status IN ('PENDING', 'GENERATING')
		ORDER BY created_at ASC, rowid ASC
		LIMIT 1
	`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, projectRef))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active job: %w", err)
	}

	return job, nil
}

// ListJobsByStatus retrieves all jobs with a specific status
func (r *SQLiteRepository) ListJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.ArtifactJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM artifact_jobs
		WHERE status = ?
		ORDER BY created_at ASC, rowid ASC
	`

	return r.queryJobs(ctx, query, status)
}

func (r *SQLiteRepository) queryJobs(ctx context.Context, query string, args ...any) ([]*models.ArtifactJob, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
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
func (r *SQLiteRepository) CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM artifact_jobs GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.JobStatus]int)
	for rows.Next() {
		var status models.JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[status] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate job counts: %w", err)
	}

	return counts, nil
}

// ClaimNextJob claims the oldest eligible PENDING job using a transaction
func (r *SQLiteRepository) ClaimNextJob(ctx context.Context, token string, now time.Time) (*models.ArtifactJob, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	nowUnix := now.Unix()

	query := `
		SELECT ` + jobColumns + `
		FROM artifact_jobs
		WHERE status = 'PENDING'
		  AND worker_token IS NULL
		  AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		ORDER BY created_at ASC, rowid ASC
		LIMIT 1
	`

	job, err := scanJob(tx.QueryRowContext(ctx, query, nowUnix))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find claimable job: %w", err)
	}

	updateQuery := `
		UPDATE artifact_jobs
		SET status = 'GENERATING',
		    worker_token = ?,
		    processing_started_at = ?,
		    updated_at = ?
		WHERE id = ? AND status = 'PENDING' AND worker_token IS NULL
	`

	res, err := tx.ExecContext(ctx, updateQuery, token, nowUnix, nowUnix, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read claim result: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
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
func (r *SQLiteRepository) FindStuckJobs(ctx context.Context, startedBefore time.Time, limit int) ([]*models.ArtifactJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM artifact_jobs
		WHERE status = 'GENERATING' AND processing_started_at < ?
		ORDER BY processing_started_at ASC
		LIMIT ?
	`

	return r.queryJobs(ctx, query, startedBefore.Unix(), limit)
}

// CompleteJob marks a job READY if it is still owned by token
func (r *SQLiteRepository) CompleteJob(ctx context.Context, id, token string, result *models.ArtifactResult) (bool, error) {
	query := `
		UPDATE artifact_jobs
		SET status = 'READY',
		    worker_token = NULL,
		    processing_started_at = NULL,
		    next_attempt_at = NULL,
		    error = NULL,
		    result_key = ?,
		    result_url = ?,
		    result_filename = ?,
		    result_size = ?,
		    completed_at = ?,
		    updated_at = ?
		WHERE id = ? AND worker_token = ? AND status = 'GENERATING'
	`

	now := time.Now().Unix()
	res, err := r.db.ExecContext(ctx, query,
		result.StorageKey, result.URL, result.Filename, result.Size,
		now, now, id, token,
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete job: %w", err)
	}

	return affectedOne(res)
}

// RequeueJob moves an owned GENERATING job back to PENDING and increments its retry count
func (r *SQLiteRepository) RequeueJob(ctx context.Context, id, token, reason string, nextAttemptAt *time.Time) (bool, error) {
	query := `
		UPDATE artifact_jobs
		SET status = 'PENDING',
		    worker_token = NULL,
		    processing_started_at = NULL,
		    retry_count = retry_count + 1,
		    error = ?,
		    next_attempt_at = ?,
		    updated_at = ?
		WHERE id = ? AND worker_token = ? AND status = 'GENERATING'
	`

	res, err := r.db.ExecContext(ctx, query,
		nullableString(reason), nullableUnix(nextAttemptAt), time.Now().Unix(), id, token,
	)
	if err != nil {
		return false, fmt.Errorf("failed to requeue job: %w", err)
	}

	return affectedOne(res)
}

// FailJob moves an owned GENERATING job to FAILED without touching its retry count
func (r *SQLiteRepository) FailJob(ctx context.Context, id, token, reason string) (bool, error) {
	query := `
		UPDATE artifact_jobs
		SET status = 'FAILED',
		    worker_token = NULL,
		    processing_started_at = NULL,
		    next_attempt_at = NULL,
		    error = ?,
		    updated_at = ?
		WHERE id = ? AND worker_token = ? AND status = 'GENERATING'
	`

	res, err := r.db.ExecContext(ctx, query, nullableString(reason), time.Now().Unix(), id, token)
	if err != nil {
		return false, fmt.Errorf("failed to fail job: %w", err)
	}

	return affectedOne(res)
}

// ResetFailedJob moves a FAILED job back to PENDING with retry_count 0
func (r *SQLiteRepository) ResetFailedJob(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE artifact_jobs
		SET status = 'PENDING',
		    retry_count = 0,
		    error = NULL,
		    next_attempt_at = NULL,
		    completed_at = NULL,
		    updated_at = ?
		WHERE id = ? AND status = 'FAILED'
	`

	res, err := r.db.ExecContext(ctx, query, time.Now().Unix(), id)
	if err != nil {
		if isUniqueViolation(err) {
			return false, ErrActiveJobExists
		}
		return false, fmt.Errorf("failed to reset job: %w", err)
	}

	return affectedOne(res)
}

// GetProject retrieves a catalog project
func (r *SQLiteRepository) GetProject(ctx context.Context, ref string) (*models.Project, error) {
	query := `SELECT ref, organization, address, city FROM projects WHERE ref = ?`

	var p models.Project
	var org, addr, city sql.NullString
	err := r.db.QueryRowContext(ctx, query, ref).Scan(&p.Ref, &org, &addr, &city)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	p.Organization = org.String
	p.Address = addr.String
	p.City = city.String

	return &p, nil
}

// ListMediaItems returns the catalog items of a project in insertion order
func (r *SQLiteRepository) ListMediaItems(ctx context.Context, projectRef string) ([]*models.MediaItem, error) {
	query := `
		SELECT id, project_ref, key, cdn_url, filename, size, media_type
		FROM media_items
		WHERE project_ref = ?
		ORDER BY created_at ASC, rowid ASC
	`

	rows, err := r.db.QueryContext(ctx, query, projectRef)
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
func (r *SQLiteRepository) UpsertProject(ctx context.Context, project *models.Project) error {
	query := `
		INSERT INTO projects (ref, organization, address, city)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(ref) DO UPDATE SET
			organization = excluded.organization,
			address = excluded.address,
			city = excluded.city
	`

	_, err := r.db.ExecContext(ctx, query,
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
func (r *SQLiteRepository) AddMediaItem(ctx context.Context, item *models.MediaItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	query := `
		INSERT INTO media_items (id, project_ref, key, cdn_url, filename, size, media_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	var size any
	if item.Size > 0 {
		size = item.Size
	}

	_, err := r.db.ExecContext(ctx, query,
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

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}
