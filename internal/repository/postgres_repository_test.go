package repository

import (
	"context"
	"media-bundler/internal/models"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newPostgresTestRepo(t *testing.T) *PostgresRepository {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	repo, err := NewPostgresRepository(context.Background(), url)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestPostgresRepository_ClaimIsExclusive(t *testing.T) {
	repo := newPostgresTestRepo(t)
	ctx := context.Background()

	// unique project so runs against a shared database do not interfere
	project := "proj-" + uuid.New().String()
	job := &models.ArtifactJob{
		ID:          uuid.New().String(),
		ProjectRef:  project,
		MediaFilter: models.FilterAll,
		Status:      models.StatusPending,
		MaxRetries:  3,
	}
	if err := repo.CreateJob(ctx, job); err != nil {
		t.Fatalf("failed to create job: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := map[string]bool{}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := repo.ClaimNextJob(ctx, uuid.New().String(), time.Now())
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if claimed != nil && claimed.ID == job.ID {
				mu.Lock()
				winners[claimed.WorkerToken] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(winners) > 1 {
		t.Errorf("expected at most one winner for job %s, got %d", job.ID, len(winners))
	}

	stored, err := repo.GetJobByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if stored.Status == models.StatusGenerating {
		ok, err := repo.FailJob(ctx, job.ID, stored.WorkerToken, "test cleanup")
		if err != nil || !ok {
			t.Errorf("expected guarded fail to succeed, got ok=%v err=%v", ok, err)
		}
	}
}

func TestPostgresRepository_Catalog(t *testing.T) {
	repo := newPostgresTestRepo(t)
	ctx := context.Background()

	ref := "proj-" + uuid.New().String()
	if err := repo.UpsertProject(ctx, &models.Project{Ref: ref, Organization: "Acme"}); err != nil {
		t.Fatalf("failed to upsert project: %v", err)
	}
	if err := repo.AddMediaItem(ctx, &models.MediaItem{ProjectRef: ref, Key: "a.jpg", Filename: "a.jpg", MediaType: "image/jpeg"}); err != nil {
		t.Fatalf("failed to add item: %v", err)
	}

	p, err := repo.GetProject(ctx, ref)
	if err != nil || p.Organization != "Acme" || p.Address != "" {
		t.Errorf("unexpected project %+v / %v", p, err)
	}

	items, err := repo.ListMediaItems(ctx, ref)
	if err != nil || len(items) != 1 {
		t.Errorf("expected one item, got %d / %v", len(items), err)
	}
}
