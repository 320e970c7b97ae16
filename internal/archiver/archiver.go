package archiver

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Entry is one file to place in the archive
type Entry struct {
	Name string
	Data []byte
}

// Archive describes a finished archive on local scratch storage
type Archive struct {
	Path    string
	Size    int64
	Entries []string
}

// Archiver writes job-scoped zip archives under a scratch directory
type Archiver struct {
	dir string
}

// New creates an archiver rooted at dir
func New(dir string) *Archiver {
	return &Archiver{dir: dir}
}

// JobDir is the scratch directory owned by one processing attempt. A job that
// was reaped and re-claimed gets a new attempt token and so a separate directory.
func (a *Archiver) JobDir(jobID, attempt string) string {
	name := "artifact-" + SanitizeFilename(jobID)
	if attempt != "" {
		name += "-" + SanitizeFilename(attempt)
	}
	return filepath.Join(a.dir, name)
}

// Build writes entries into a zip in the attempt's scratch directory. The size
// is read from the file system after the writer and file are closed.
func (a *Archiver) Build(jobID, attempt string, entries []Entry) (*Archive, error) {
	dir := a.JobDir(jobID, attempt)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}

	path := filepath.Join(dir, "bundle.zip")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}

	names := uniqueNames(entries)
	zw := zip.NewWriter(f)
	now := time.Now()

	for i, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     names[i],
			Method:   zip.Deflate,
			Modified: now,
		})
		if err != nil {
			zw.Close()
			f.Close()
			return nil, fmt.Errorf("failed to add %s: %w", names[i], err)
		}
		if _, err := w.Write(e.Data); err != nil {
			zw.Close()
			f.Close()
			return nil, fmt.Errorf("failed to write %s: %w", names[i], err)
		}
	}

	if err := zw.Close(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close archive: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}

	return &Archive{Path: path, Size: info.Size(), Entries: names}, nil
}

// Cleanup removes the attempt's scratch directory. Missing directories are not an error.
func (a *Archiver) Cleanup(jobID, attempt string) error {
	return os.RemoveAll(a.JobDir(jobID, attempt))
}

// SanitizeFilename replaces every character outside [A-Za-z0-9._-] with '_'
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	out := b.String()
	if strings.Trim(out, ".") == "" {
		return "file" + strings.Repeat("_", len(out))
	}
	return out
}

func uniqueNames(entries []Entry) []string {
	used := make(map[string]bool, len(entries))
	names := make([]string, len(entries))

	for i, e := range entries {
		name := SanitizeFilename(e.Name)
		if used[name] {
			ext := filepath.Ext(name)
			stem := strings.TrimSuffix(name, ext)
			for n := 1; ; n++ {
				candidate := fmt.Sprintf("%s_%d%s", stem, n, ext)
				if !used[candidate] {
					name = candidate
					break
				}
			}
		}
		used[name] = true
		names[i] = name
	}

	return names
}
