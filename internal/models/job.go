package models

import "time"

// JobStatus represents the state of an artifact job
type JobStatus string

const (
	StatusPending    JobStatus = "PENDING"
	StatusGenerating JobStatus = "GENERATING"
	StatusReady      JobStatus = "READY"
	StatusFailed     JobStatus = "FAILED"
)

// Valid reports whether s is one of the known statuses
func (s JobStatus) Valid() bool {
	switch s {
	case StatusPending, StatusGenerating, StatusReady, StatusFailed:
		return true
	}
	return false
}

var transitions = map[JobStatus][]JobStatus{
	StatusPending:    {StatusGenerating},
	StatusGenerating: {StatusReady, StatusPending, StatusFailed},
	StatusFailed:     {StatusPending},
}

// CanTransition reports whether a job may move from one status to another.
// READY is terminal.
func CanTransition(from, to JobStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ArtifactJob represents one request to bundle a project's media into an archive
type ArtifactJob struct {
	ID                  string          `json:"id"`
	ProjectRef          string          `json:"project_ref"`
	MediaFilter         MediaFilter     `json:"media_filter,omitempty"`
	Status              JobStatus       `json:"status"`
	WorkerToken         string          `json:"-"`
	ProcessingStartedAt *time.Time      `json:"processing_started_at,omitempty"`
	RetryCount          int             `json:"retry_count"`
	MaxRetries          int             `json:"max_retries"`
	Error               string          `json:"error,omitempty"`
	NextAttemptAt       *time.Time      `json:"next_attempt_at,omitempty"`
	Result              *ArtifactResult `json:"result,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
}

// ArtifactResult describes the published archive of a READY job
type ArtifactResult struct {
	StorageKey string `json:"storage_key"`
	URL        string `json:"url"`
	Filename   string `json:"filename"`
	Size       int64  `json:"size"`
}

// CreateJobRequest represents a request to create an artifact job
type CreateJobRequest struct {
	ProjectRef  string      `json:"project_ref"`
	MediaFilter MediaFilter `json:"media_filter,omitempty"`
	MaxRetries  *int        `json:"max_retries,omitempty"`
}
