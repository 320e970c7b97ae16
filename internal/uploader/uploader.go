package uploader

import (
	"context"
	"fmt"
	"media-bundler/internal/archiver"
	"media-bundler/internal/blobstore"
	"media-bundler/internal/models"
	"os"
	"strings"

	"go.uber.org/zap"
)

const contentType = "application/zip"

// Uploader publishes finished archives to blob storage
type Uploader struct {
	store  blobstore.BlobStore
	logger *zap.Logger
}

// New creates a new uploader
func New(store blobstore.BlobStore, logger *zap.Logger) *Uploader {
	return &Uploader{store: store, logger: logger}
}

// Upload pushes the archive for job and returns the result to record on the job
func (u *Uploader) Upload(ctx context.Context, job *models.ArtifactJob, project *models.Project, archive *archiver.Archive) (*models.ArtifactResult, error) {
	filename := ArtifactFilename(job.ID, project)
	key := StorageKey(job.ProjectRef, job.ID, job.WorkerToken, filename)

	f, err := os.Open(archive.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	obj, err := u.store.Upload(ctx, key, f, archive.Size, contentType)
	if err != nil {
		return nil, err
	}

	u.logger.Info("artifact uploaded",
		zap.String("job_id", job.ID),
		zap.String("key", obj.Key),
		zap.Int64("size", archive.Size),
	)

	return &models.ArtifactResult{
		StorageKey: obj.Key,
		URL:        obj.URL,
		Filename:   filename,
		Size:       archive.Size,
	}, nil
}

// Discard deletes an uploaded artifact that will not be recorded on its job
func (u *Uploader) Discard(ctx context.Context, result *models.ArtifactResult) error {
	return u.store.Delete(ctx, result.StorageKey)
}

// StorageKey is the object key an artifact is stored under. The attempt token
// keeps a stale worker's upload from overwriting, or being discarded over, the
// object a later attempt recorded.
func StorageKey(projectRef, jobID, attempt, filename string) string {
	key := "artifacts/" + archiver.SanitizeFilename(projectRef) + "/" + archiver.SanitizeFilename(jobID)
	if attempt != "" {
		key += "/" + archiver.SanitizeFilename(attempt)
	}
	return key + "/" + filename
}

// ArtifactFilename names the download after the project's organization and
// address, or media_<jobID>.zip when the project has no address.
func ArtifactFilename(jobID string, project *models.Project) string {
	fallback := "media_" + archiver.SanitizeFilename(jobID) + ".zip"
	if project == nil || (strings.TrimSpace(project.Address) == "" && strings.TrimSpace(project.City) == "") {
		return fallback
	}

	var parts []string
	for _, p := range []string{project.Organization, project.Address, project.City} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}

	name := collapseUnderscores(archiver.SanitizeFilename(strings.Join(parts, " ")))
	if name == "" {
		return fallback
	}
	return name + ".zip"
}

func collapseUnderscores(s string) string {
	var b strings.Builder
	prev := false
	for _, r := range s {
		if r == '_' {
			if prev {
				continue
			}
			prev = true
		} else {
			prev = false
		}
		b.WriteRune(r)
	}
	return strings.Trim(b.String(), "_")
}
