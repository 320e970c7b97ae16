package service

import (
	"context"
	"errors"
	"media-bundler/internal/models"
	"media-bundler/internal/repository"
	"sort"
	"sync"
	"time"
)

// mockRepository is an in-memory JobRepository and CatalogRepository with the
// same guarded-update semantics as the SQL stores
type mockRepository struct {
	mu sync.Mutex

	jobs     map[string]*models.ArtifactJob
	order    []string
	projects map[string]*models.Project
	media    map[string][]*models.MediaItem

	createJobError error
	listMediaError error
	claimError     error
	completeError  error

	// beforeCreate runs between the service's active-job check and the insert
	beforeCreate func()
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		jobs:     make(map[string]*models.ArtifactJob),
		projects: make(map[string]*models.Project),
		media:    make(map[string][]*models.MediaItem),
	}
}

func (m *mockRepository) addJob(job *models.ArtifactJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	m.jobs[job.ID] = job
	m.order = append(m.order, job.ID)
}

func (m *mockRepository) job(id string) models.ArtifactJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.jobs[id]
}

// hasActive mirrors the unique index on active jobs per project. Callers hold mu.
func (m *mockRepository) hasActive(projectRef, exceptID string) bool {
	for id, job := range m.jobs {
		if id != exceptID && job.ProjectRef == projectRef && (job.Status == models.StatusPending || job.Status == models.StatusGenerating) {
			return true
		}
	}
	return false
}

func (m *mockRepository) CreateJob(ctx context.Context, job *models.ArtifactJob) error {
	if m.createJobError != nil {
		return m.createJobError
	}
	if m.beforeCreate != nil {
		m.beforeCreate()
	}
	m.mu.Lock()
	active := m.hasActive(job.ProjectRef, job.ID)
	m.mu.Unlock()
	if active {
		return repository.ErrActiveJobExists
	}
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	copied := *job
	m.addJob(&copied)
	return nil
}

func (m *mockRepository) GetJobByID(ctx context.Context, id string) (*models.ArtifactJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (m *mockRepository) GetActiveJobByProject(ctx context.Context, projectRef string) (*models.ArtifactJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		job := m.jobs[id]
		if job.ProjectRef == projectRef && (job.Status == models.StatusPending || job.Status == models.StatusGenerating) {
			copied := *job
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockRepository) ListJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.ArtifactJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ArtifactJob
	for _, id := range m.order {
		if job := m.jobs[id]; job.Status == status {
			copied := *job
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockRepository) CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[models.JobStatus]int{}
	for _, job := range m.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

func (m *mockRepository) ClaimNextJob(ctx context.Context, token string, now time.Time) (*models.ArtifactJob, error) {
	if m.claimError != nil {
		return nil, m.claimError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		job := m.jobs[id]
		if job.Status != models.StatusPending || job.WorkerToken != "" {
			continue
		}
		if job.NextAttemptAt != nil && job.NextAttemptAt.After(now) {
			continue
		}
		started := now
		job.Status = models.StatusGenerating
		job.WorkerToken = token
		job.ProcessingStartedAt = &started
		copied := *job
		return &copied, nil
	}
	return nil, nil
}

func (m *mockRepository) FindStuckJobs(ctx context.Context, startedBefore time.Time, limit int) ([]*models.ArtifactJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ArtifactJob
	for _, job := range m.jobs {
		if job.Status == models.StatusGenerating && job.ProcessingStartedAt != nil && job.ProcessingStartedAt.Before(startedBefore) {
			copied := *job
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProcessingStartedAt.Before(*out[j].ProcessingStartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// owned returns the job only if it is GENERATING under token; callers hold mu
func (m *mockRepository) owned(id, token string) *models.ArtifactJob {
	job, ok := m.jobs[id]
	if !ok || job.Status != models.StatusGenerating || job.WorkerToken != token {
		return nil
	}
	return job
}

func (m *mockRepository) CompleteJob(ctx context.Context, id, token string, result *models.ArtifactResult) (bool, error) {
	if m.completeError != nil {
		return false, m.completeError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job := m.owned(id, token)
	if job == nil {
		return false, nil
	}
	now := time.Now()
	job.Status = models.StatusReady
	job.WorkerToken = ""
	job.ProcessingStartedAt = nil
	job.NextAttemptAt = nil
	job.Error = ""
	job.Result = result
	job.CompletedAt = &now
	return true, nil
}

func (m *mockRepository) RequeueJob(ctx context.Context, id, token, reason string, nextAttemptAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := m.owned(id, token)
	if job == nil {
		return false, nil
	}
	job.Status = models.StatusPending
	job.WorkerToken = ""
	job.ProcessingStartedAt = nil
	job.RetryCount++
	job.Error = reason
	job.NextAttemptAt = nextAttemptAt
	return true, nil
}

func (m *mockRepository) FailJob(ctx context.Context, id, token, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := m.owned(id, token)
	if job == nil {
		return false, nil
	}
	job.Status = models.StatusFailed
	job.WorkerToken = ""
	job.ProcessingStartedAt = nil
	job.NextAttemptAt = nil
	job.Error = reason
	return true, nil
}

func (m *mockRepository) ResetFailedJob(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.Status != models.StatusFailed {
		return false, nil
	}
	if m.hasActive(job.ProjectRef, id) {
		return false, repository.ErrActiveJobExists
	}
	job.Status = models.StatusPending
	job.RetryCount = 0
	job.Error = ""
	job.NextAttemptAt = nil
	return true, nil
}

func (m *mockRepository) GetProject(ctx context.Context, ref string) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[ref]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

func (m *mockRepository) ListMediaItems(ctx context.Context, projectRef string) ([]*models.MediaItem, error) {
	if m.listMediaError != nil {
		return nil, m.listMediaError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.media[projectRef], nil
}

var errDatabaseDown = errors.New("database unavailable")
