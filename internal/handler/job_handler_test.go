package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"media-bundler/internal/metrics"
	"media-bundler/internal/models"
	"media-bundler/internal/notify"
	"media-bundler/internal/repository"
	"media-bundler/internal/service"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"
)

type fakeTicker struct {
	result service.TickResult
	calls  int
}

func (f *fakeTicker) Tick(ctx context.Context) service.TickResult {
	f.calls++
	return f.result
}

type fakeEventCache struct {
	events map[string]*notify.Event
	err    error
}

func (f *fakeEventCache) CachedStatus(ctx context.Context, jobID string) (*notify.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.events[jobID], nil
}

type fixture struct {
	repo   *repository.SQLiteRepository
	ticker *fakeTicker
	events *fakeEventCache
	router http.Handler
}

func newFixture(t *testing.T, submissionsPerMinute int) *fixture {
	t.Helper()
	repo, err := repository.NewSQLiteRepository(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("failed to open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	logger := zaptest.NewLogger(t)
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	svc := service.NewJobService(repo, service.NewRateLimiter(submissionsPerMinute), m, logger, 3)
	ticker := &fakeTicker{}
	events := &fakeEventCache{events: map[string]*notify.Event{}}

	return &fixture{
		repo:   repo,
		ticker: ticker,
		events: events,
		router: NewRouter(NewJobHandler(svc, ticker, events, logger), reg, logger),
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeJob(t *testing.T, rec *httptest.ResponseRecorder) *models.ArtifactJob {
	t.Helper()
	var job models.ArtifactJob
	if err := json.NewDecoder(rec.Body).Decode(&job); err != nil {
		t.Fatalf("failed to decode job: %v", err)
	}
	return &job
}

func TestCreateAndGetJob(t *testing.T) {
	f := newFixture(t, 10)

	rec := f.do(t, http.MethodPost, "/jobs", `{"project_ref":"proj-1","media_filter":"PHOTOS"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Trace-ID") == "" {
		t.Error("expected a trace id header")
	}
	created := decodeJob(t, rec)
	if created.Status != models.StatusPending || created.MediaFilter != models.FilterPhotos {
		t.Errorf("unexpected job %+v", created)
	}

	rec = f.do(t, http.MethodGet, "/jobs/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decodeJob(t, rec); got.ID != created.ID {
		t.Errorf("expected job %s, got %s", created.ID, got.ID)
	}
}

func TestCreateJob_ReturnsActiveJob(t *testing.T) {
	f := newFixture(t, 10)

	first := decodeJob(t, f.do(t, http.MethodPost, "/jobs", `{"project_ref":"proj-1"}`))
	second := decodeJob(t, f.do(t, http.MethodPost, "/jobs", `{"project_ref":"proj-1"}`))

	if first.ID != second.ID {
		t.Errorf("expected the active job to be returned, got %s and %s", first.ID, second.ID)
	}
}

func TestCreateJob_BadRequests(t *testing.T) {
	f := newFixture(t, 10)

	cases := map[string]string{
		"malformed":      `{`,
		"missing ref":    `{"media_filter":"ALL"}`,
		"unknown filter": `{"project_ref":"p","media_filter":"AUDIO"}`,
	}
	for name, body := range cases {
		if rec := f.do(t, http.MethodPost, "/jobs", body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, rec.Code)
		}
	}
}

func TestCreateJob_RateLimited(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	// fail the first job so the project has no active job
	job := decodeJob(t, f.do(t, http.MethodPost, "/jobs", `{"project_ref":"proj-1"}`))
	claimed, err := f.repo.ClaimNextJob(ctx, "tok", time.Now())
	if err != nil || claimed == nil {
		t.Fatalf("failed to claim: %v", err)
	}
	if ok, err := f.repo.FailJob(ctx, job.ID, "tok", "boom"); !ok || err != nil {
		t.Fatalf("failed to fail job: %v", err)
	}

	rec := f.do(t, http.MethodPost, "/jobs", `{"project_ref":"proj-1"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	f := newFixture(t, 10)

	if rec := f.do(t, http.MethodGet, "/jobs/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestListJobs(t *testing.T) {
	f := newFixture(t, 10)
	f.do(t, http.MethodPost, "/jobs", `{"project_ref":"a"}`)
	f.do(t, http.MethodPost, "/jobs", `{"project_ref":"b"}`)

	rec := f.do(t, http.MethodGet, "/jobs?status=pending", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var jobs []*models.ArtifactJob
	if err := json.NewDecoder(rec.Body).Decode(&jobs); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(jobs) != 2 {
		t.Errorf("expected 2 pending jobs, got %d", len(jobs))
	}

	rec = f.do(t, http.MethodGet, "/jobs?status=READY", "")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected an empty array, got %s", rec.Body.String())
	}

	if rec := f.do(t, http.MethodGet, "/jobs?status=DONE", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown status, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/jobs", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without status, got %d", rec.Code)
	}
}

func TestRetryJob(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	job := decodeJob(t, f.do(t, http.MethodPost, "/jobs", `{"project_ref":"proj-1"}`))

	if rec := f.do(t, http.MethodPost, "/jobs/"+job.ID+"/retry", ""); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for a pending job, got %d", rec.Code)
	}

	f.repo.ClaimNextJob(ctx, "tok", time.Now())
	f.repo.FailJob(ctx, job.ID, "tok", "boom")

	rec := f.do(t, http.MethodPost, "/jobs/"+job.ID+"/retry", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeJob(t, rec); got.Status != models.StatusPending || got.RetryCount != 0 {
		t.Errorf("expected a reset PENDING job, got %s/%d", got.Status, got.RetryCount)
	}

	if rec := f.do(t, http.MethodPost, "/jobs/missing/retry", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestTick(t *testing.T) {
	f := newFixture(t, 10)
	f.ticker.result = service.TickResult{JobID: "job-1", Outcome: service.OutcomeReady}

	rec := f.do(t, http.MethodPost, "/tick", "")
	if rec.Code != http.StatusOK || f.ticker.calls != 1 {
		t.Fatalf("expected one tick with 200, got %d after %d calls", rec.Code, f.ticker.calls)
	}
	var res service.TickResult
	json.NewDecoder(rec.Body).Decode(&res)
	if res.JobID != "job-1" || res.Outcome != service.OutcomeReady {
		t.Errorf("unexpected tick result %+v", res)
	}

	f.ticker.result = service.TickResult{Skipped: true}
	if rec := f.do(t, http.MethodPost, "/tick", ""); rec.Code != http.StatusAccepted {
		t.Errorf("expected 202 for a skipped tick, got %d", rec.Code)
	}

	f.ticker.result = service.TickResult{Disabled: true}
	if rec := f.do(t, http.MethodPost, "/tick", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 for a disabled scheduler, got %d", rec.Code)
	}
}

func TestTick_Disabled(t *testing.T) {
	logger := zaptest.NewLogger(t)
	h := NewJobHandler(nil, nil, nil, logger)

	rec := httptest.NewRecorder()
	h.Tick(rec, httptest.NewRequest(http.MethodPost, "/tick", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestStatsHealthAndMetrics(t *testing.T) {
	f := newFixture(t, 10)
	f.do(t, http.MethodPost, "/jobs", `{"project_ref":"a"}`)

	rec := f.do(t, http.MethodGet, "/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var stats service.Stats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.Jobs[models.StatusPending] != 1 || stats.Counters["created_jobs"] != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}

	if rec := f.do(t, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("expected healthy, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/metrics", "")
	if !strings.Contains(rec.Body.String(), `artifact_jobs_total{event="created"} 1`) {
		t.Errorf("expected created counter in metrics output, got:\n%s", rec.Body.String())
	}
}

func TestGetJobEvent(t *testing.T) {
	f := newFixture(t, 10)
	f.events.events["job-1"] = &notify.Event{
		JobID:  "job-1",
		Status: models.StatusReady,
		Result: &models.ArtifactResult{StorageKey: "artifacts/p/job-1/t/a.zip"},
	}

	rec := f.do(t, http.MethodGet, "/jobs/job-1/event", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var event notify.Event
	if err := json.NewDecoder(rec.Body).Decode(&event); err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	if event.Status != models.StatusReady || event.Result == nil {
		t.Errorf("unexpected event %+v", event)
	}

	if rec := f.do(t, http.MethodGet, "/jobs/job-2/event", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for an uncached job, got %d", rec.Code)
	}

	f.events.err = errors.New("redis down")
	if rec := f.do(t, http.MethodGet, "/jobs/job-1/event", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 when the cache fails, got %d", rec.Code)
	}
}

func TestGetJobEvent_NoCache(t *testing.T) {
	h := NewJobHandler(nil, nil, nil, zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	h.GetJobEvent(rec, httptest.NewRequest(http.MethodGet, "/jobs/job-1/event", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}
