package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"media-bundler/internal/middleware"
	"media-bundler/internal/models"
	"media-bundler/internal/notify"
	"media-bundler/internal/service"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Ticker runs one scheduler cycle on demand
type Ticker interface {
	Tick(ctx context.Context) service.TickResult
}

// EventCache returns the last outcome event published for a job
type EventCache interface {
	CachedStatus(ctx context.Context, jobID string) (*notify.Event, error)
}

// JobHandler handles HTTP requests for artifact jobs
type JobHandler struct {
	jobService *service.JobService
	ticker     Ticker
	events     EventCache
	logger     *zap.Logger
}

// NewJobHandler creates a new job handler. ticker and events may be nil, in
// which case POST /tick and GET /jobs/{id}/event answer 503.
func NewJobHandler(jobService *service.JobService, ticker Ticker, events EventCache, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		jobService: jobService,
		ticker:     ticker,
		events:     events,
		logger:     logger,
	}
}

// CreateJob handles POST /jobs
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req models.CreateJobRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	job, err := h.jobService.CreateJob(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, r, "job creation failed", err)
		return
	}

	h.writeJSON(w, r, http.StatusCreated, job)
}

// GetJob handles GET /jobs/{id}
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "job id is required", http.StatusBadRequest)
		return
	}

	job, err := h.jobService.GetJob(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, "failed to retrieve job", err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, job)
}

// GetJobEvent handles GET /jobs/{id}/event, serving the last READY or FAILED
// event from the notification cache without a store round trip
func (h *JobHandler) GetJobEvent(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		http.Error(w, "event cache is not configured", http.StatusServiceUnavailable)
		return
	}

	event, err := h.events.CachedStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, "failed to read event cache", err)
		return
	}
	if event == nil {
		http.Error(w, "no event recorded for job", http.StatusNotFound)
		return
	}

	h.writeJSON(w, r, http.StatusOK, event)
}

// ListJobs handles GET /jobs?status=
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	statusStr := strings.ToUpper(r.URL.Query().Get("status"))
	if statusStr == "" {
		http.Error(w, "status query parameter is required", http.StatusBadRequest)
		return
	}

	jobs, err := h.jobService.ListJobsByStatus(r.Context(), models.JobStatus(statusStr))
	if err != nil {
		h.writeServiceError(w, r, "failed to list jobs", err)
		return
	}
	if jobs == nil {
		jobs = []*models.ArtifactJob{}
	}

	h.writeJSON(w, r, http.StatusOK, jobs)
}

// RetryJob handles POST /jobs/{id}/retry
func (h *JobHandler) RetryJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobService.RetryJob(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, "retry failed", err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, job)
}

// Tick handles POST /tick for deployments driven by an external cron
func (h *JobHandler) Tick(w http.ResponseWriter, r *http.Request) {
	if h.ticker == nil {
		http.Error(w, "processing is not enabled on this instance", http.StatusServiceUnavailable)
		return
	}

	res := h.ticker.Tick(r.Context())
	if res.Disabled {
		http.Error(w, "processing is not enabled on this instance", http.StatusServiceUnavailable)
		return
	}
	status := http.StatusOK
	if res.Skipped {
		status = http.StatusAccepted
	}
	h.writeJSON(w, r, status, res)
}

// GetStats handles GET /stats
func (h *JobHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.jobService.Stats(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "failed to load stats", err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, stats)
}

// Health handles GET /health
func (h *JobHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *JobHandler) writeServiceError(w http.ResponseWriter, r *http.Request, prefix string, err error) {
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		http.Error(w, "job not found", http.StatusNotFound)
	case errors.Is(err, service.ErrJobNotFailed), errors.Is(err, service.ErrProjectBusy):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrRateLimitExceeded):
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	case errors.Is(err, service.ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error(prefix,
			zap.String("trace_id", middleware.GetTraceID(r.Context())),
			zap.Error(err),
		)
		http.Error(w, prefix+": internal error", http.StatusInternalServerError)
	}
}

func (h *JobHandler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("error encoding response",
			zap.String("trace_id", middleware.GetTraceID(r.Context())),
			zap.Error(err),
		)
	}
}
