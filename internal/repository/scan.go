package repository

import (
	"database/sql"
	"media-bundler/internal/models"
	"time"
)

const jobColumns = `id, project_ref, media_filter, status, worker_token, processing_started_at,
	retry_count, max_retries, error, next_attempt_at,
	result_key, result_url, result_filename, result_size,
	created_at, updated_at, completed_at`

// rowScanner is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.ArtifactJob, error) {
	var job models.ArtifactJob
	var workerToken, errMsg sql.NullString
	var resultKey, resultURL, resultFilename sql.NullString
	var resultSize sql.NullInt64
	var startedAt, nextAttemptAt, completedAt sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&job.ID,
		&job.ProjectRef,
		&job.MediaFilter,
		&job.Status,
		&workerToken,
		&startedAt,
		&job.RetryCount,
		&job.MaxRetries,
		&errMsg,
		&nextAttemptAt,
		&resultKey,
		&resultURL,
		&resultFilename,
		&resultSize,
		&createdAt,
		&updatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.WorkerToken = workerToken.String
	job.Error = errMsg.String
	job.ProcessingStartedAt = unixPtr(startedAt)
	job.NextAttemptAt = unixPtr(nextAttemptAt)
	job.CompletedAt = unixPtr(completedAt)
	job.CreatedAt = time.Unix(createdAt, 0)
	job.UpdatedAt = time.Unix(updatedAt, 0)

	if resultKey.Valid {
		job.Result = &models.ArtifactResult{
			StorageKey: resultKey.String,
			URL:        resultURL.String,
			Filename:   resultFilename.String,
			Size:       resultSize.Int64,
		}
	}

	return &job, nil
}

func scanMediaItem(row rowScanner) (*models.MediaItem, error) {
	var item models.MediaItem
	var cdnURL sql.NullString
	var size sql.NullInt64

	if err := row.Scan(&item.ID, &item.ProjectRef, &item.Key, &cdnURL, &item.Filename, &size, &item.MediaType); err != nil {
		return nil, err
	}
	item.CDNURL = cdnURL.String
	item.Size = size.Int64
	return &item, nil
}

func unixPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}

func nullableUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
