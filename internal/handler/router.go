package handler

import (
	"media-bundler/internal/middleware"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter registers the job routes and the metrics endpoint, wrapped in
// trace, recovery, logging and CORS middleware. gatherer may be nil to leave
// /metrics unregistered.
func NewRouter(h *JobHandler, gatherer prometheus.Gatherer, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /jobs", h.CreateJob)
	mux.HandleFunc("GET /jobs", h.ListJobs)
	mux.HandleFunc("GET /jobs/{id}", h.GetJob)
	mux.HandleFunc("GET /jobs/{id}/event", h.GetJobEvent)
	mux.HandleFunc("POST /jobs/{id}/retry", h.RetryJob)
	mux.HandleFunc("POST /tick", h.Tick)
	mux.HandleFunc("GET /stats", h.GetStats)
	mux.HandleFunc("GET /health", h.Health)

	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return middleware.Chain(mux,
		middleware.TraceID,
		middleware.Recovery(logger),
		middleware.Logging(logger),
		middleware.CORS,
	)
}
