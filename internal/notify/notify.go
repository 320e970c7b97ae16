package notify

import (
	"context"
	"errors"
	"media-bundler/internal/models"
	"time"

	"go.uber.org/zap"
)

// Event is published when a job reaches READY or FAILED
type Event struct {
	JobID      string                 `json:"job_id"`
	ProjectRef string                 `json:"project_ref"`
	Status     models.JobStatus       `json:"status"`
	Error      string                 `json:"error,omitempty"`
	Result     *models.ArtifactResult `json:"result,omitempty"`
	At         time.Time              `json:"at"`
}

// NewEvent builds an event from the job's current state
func NewEvent(job *models.ArtifactJob) Event {
	return Event{
		JobID:      job.ID,
		ProjectRef: job.ProjectRef,
		Status:     job.Status,
		Error:      job.Error,
		Result:     job.Result,
		At:         time.Now().UTC(),
	}
}

// Notifier delivers job outcome events
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Multi fans an event out to every notifier and joins their errors
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes events to the process log
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(ctx context.Context, event Event) error {
	fields := []zap.Field{
		zap.String("job_id", event.JobID),
		zap.String("project_ref", event.ProjectRef),
		zap.String("status", string(event.Status)),
	}
	if event.Result != nil {
		fields = append(fields, zap.String("url", event.Result.URL), zap.Int64("size", event.Result.Size))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}
	l.logger.Info("artifact job finished", fields...)
	return nil
}
