package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks artifact pipeline counters. Every counter is kept in memory for
// the /stats snapshot and mirrored into Prometheus collectors.
type Metrics struct {
	mu sync.RWMutex

	createdJobs   int64
	claimedJobs   int64
	completedJobs int64
	failedJobs    int64
	retriedJobs   int64
	reapedJobs    int64
	skippedFiles  int64
	skippedTicks  int64

	jobsTotal       *prometheus.CounterVec
	skippedFilesCtr prometheus.Counter
	skippedTicksCtr prometheus.Counter
	jobDuration     prometheus.Histogram
	artifactBytes   prometheus.Histogram
}

// NewMetrics creates a metrics instance registered on reg. A nil reg keeps the
// collectors unregistered, which tests use to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		jobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "artifact_jobs_total",
				Help: "Artifact job lifecycle events by outcome",
			},
			[]string{"event"},
		),
		skippedFilesCtr: factory.NewCounter(prometheus.CounterOpts{
			Name: "artifact_files_skipped_total",
			Help: "Media files skipped after exhausting download attempts",
		}),
		skippedTicksCtr: factory.NewCounter(prometheus.CounterOpts{
			Name: "artifact_ticks_skipped_total",
			Help: "Scheduler ticks skipped because a previous tick was still running",
		}),
		jobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "artifact_job_duration_seconds",
			Help:    "Time from claim to terminal outcome",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		artifactBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "artifact_size_bytes",
			Help:    "Size of published archives",
			Buckets: prometheus.ExponentialBuckets(1<<20, 4, 8),
		}),
	}
}

// IncrementCreatedJobs increments the created jobs counter
func (m *Metrics) IncrementCreatedJobs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createdJobs++
	m.jobsTotal.WithLabelValues("created").Inc()
}

// IncrementClaimedJobs increments the claimed jobs counter
func (m *Metrics) IncrementClaimedJobs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claimedJobs++
	m.jobsTotal.WithLabelValues("claimed").Inc()
}

// IncrementCompletedJobs increments the completed jobs counter
func (m *Metrics) IncrementCompletedJobs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completedJobs++
	m.jobsTotal.WithLabelValues("completed").Inc()
}

// IncrementFailedJobs increments the failed jobs counter
func (m *Metrics) IncrementFailedJobs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failedJobs++
	m.jobsTotal.WithLabelValues("failed").Inc()
}

// IncrementRetriedJobs increments the retried jobs counter
func (m *Metrics) IncrementRetriedJobs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retriedJobs++
	m.jobsTotal.WithLabelValues("retried").Inc()
}

// IncrementReapedJobs increments the reaped jobs counter
func (m *Metrics) IncrementReapedJobs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reapedJobs++
	m.jobsTotal.WithLabelValues("reaped").Inc()
}

// AddSkippedFiles records media files dropped from an archive
func (m *Metrics) AddSkippedFiles(n int) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skippedFiles += int64(n)
	m.skippedFilesCtr.Add(float64(n))
}

// IncrementSkippedTicks increments the skipped ticks counter
func (m *Metrics) IncrementSkippedTicks() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skippedTicks++
	m.skippedTicksCtr.Inc()
}

func (m *Metrics) ObserveJobDuration(d time.Duration) {
	m.jobDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveArtifactSize(bytes int64) {
	m.artifactBytes.Observe(float64(bytes))
}

// GetSnapshot returns a snapshot of all counters
func (m *Metrics) GetSnapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]int64{
		"created_jobs":   m.createdJobs,
		"claimed_jobs":   m.claimedJobs,
		"completed_jobs": m.completedJobs,
		"failed_jobs":    m.failedJobs,
		"retried_jobs":   m.retriedJobs,
		"reaped_jobs":    m.reapedJobs,
		"skipped_files":  m.skippedFiles,
		"skipped_ticks":  m.skippedTicks,
	}
}
