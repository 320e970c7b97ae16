package cli

import (
	"bytes"
	"context"
	"errors"
	"media-bundler/internal/blobstore"
	"media-bundler/internal/config"
	"media-bundler/internal/models"
	"media-bundler/internal/repository"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	store, err := repository.NewSQLiteRepository(filepath.Join(t.TempDir(), "cli.db"))
	if err != nil {
		t.Fatalf("failed to open repository: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewApp(&config.Config{MaxRetries: 3}, store, zaptest.NewLogger(t))
}

func run(t *testing.T, app *App, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd(app)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestEnqueueAndList(t *testing.T) {
	app := newTestApp(t)

	out, err := run(t, app, "enqueue", "proj-1", "--filter", "photos", "--max-retries", "5")
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if !strings.Contains(out, "is PENDING") {
		t.Errorf("unexpected output %q", out)
	}

	jobs, _ := app.Store.ListJobsByStatus(context.Background(), models.StatusPending)
	if len(jobs) != 1 || jobs[0].MediaFilter != models.FilterPhotos || jobs[0].MaxRetries != 5 {
		t.Fatalf("unexpected stored jobs %+v", jobs)
	}

	out, err = run(t, app, "list", "--status", "pending")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(out, jobs[0].ID) {
		t.Errorf("expected job in listing, got %q", out)
	}

	out, _ = run(t, app, "list", "--status", "READY")
	if !strings.Contains(out, "No jobs found") {
		t.Errorf("expected empty listing, got %q", out)
	}
}

func TestEnqueue_InvalidFilter(t *testing.T) {
	app := newTestApp(t)

	if _, err := run(t, app, "enqueue", "proj-1", "--filter", "audio"); err == nil {
		t.Error("expected an error for an unknown filter")
	}
}

func TestStatusAndRetry(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	run(t, app, "enqueue", "proj-1")
	jobs, _ := app.Store.ListJobsByStatus(ctx, models.StatusPending)
	id := jobs[0].ID

	out, err := run(t, app, "status", id)
	if err != nil || !strings.Contains(out, `"status": "PENDING"`) {
		t.Errorf("unexpected status output %q (err %v)", out, err)
	}

	if _, err := run(t, app, "retry", id); err == nil {
		t.Error("expected retry of a pending job to fail")
	}

	app.Store.ClaimNextJob(ctx, "tok", time.Now())
	app.Store.FailJob(ctx, id, "tok", "boom")

	out, err = run(t, app, "retry", id)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if !strings.Contains(out, "moved to PENDING") {
		t.Errorf("unexpected retry output %q", out)
	}

	out, _ = run(t, app, "stats")
	if !strings.Contains(out, "PENDING:\t1") {
		t.Errorf("unexpected stats output %q", out)
	}
}

func TestCatalogCommands(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()

	if _, err := run(t, app, "catalog", "add-project", "proj-1", "--org", "Acme", "--city", "Berlin"); err != nil {
		t.Fatalf("add-project failed: %v", err)
	}
	if _, err := run(t, app, "catalog", "add-media", "proj-1", "uploads/p/a.jpg", "--size", "42"); err != nil {
		t.Fatalf("add-media failed: %v", err)
	}

	project, err := app.Store.GetProject(ctx, "proj-1")
	if err != nil || project.Organization != "Acme" {
		t.Fatalf("unexpected project %+v (err %v)", project, err)
	}
	items, _ := app.Store.ListMediaItems(ctx, "proj-1")
	if len(items) != 1 {
		t.Fatalf("expected 1 media item, got %d", len(items))
	}
	if items[0].Filename != "a.jpg" || items[0].MediaType != "image/jpeg" || items[0].Size != 42 {
		t.Errorf("unexpected media item %+v", items[0])
	}
}

func TestTick_RequiresStorage(t *testing.T) {
	app := newTestApp(t)

	_, err := run(t, app, "tick")
	if !errors.Is(err, blobstore.ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}
