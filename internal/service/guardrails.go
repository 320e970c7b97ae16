package service

import "media-bundler/internal/models"

// Guardrails bound the work a single job may request. Zero disables a limit.
type Guardrails struct {
	MaxFiles      int
	MaxTotalBytes int64
}

// Select applies the media filter and checks the limits before any network I/O.
// Items without a declared size do not count toward the byte limit.
func (g Guardrails) Select(items []*models.MediaItem, filter models.MediaFilter) ([]*models.MediaItem, error) {
	var selected []*models.MediaItem
	for _, item := range items {
		if filter.Match(item) {
			selected = append(selected, item)
		}
	}

	if len(selected) == 0 {
		if filter == "" || filter == models.FilterAll {
			return nil, guardrailf("no media available")
		}
		return nil, guardrailf("no media available for filter %s", filter)
	}

	if g.MaxFiles > 0 && len(selected) > g.MaxFiles {
		return nil, guardrailf("too many files: %d exceeds the limit of %d", len(selected), g.MaxFiles)
	}

	if g.MaxTotalBytes > 0 {
		var total int64
		for _, item := range selected {
			if item.Size > 0 {
				total += item.Size
			}
		}
		if total > g.MaxTotalBytes {
			return nil, guardrailf("total size %d bytes exceeds the limit of %d bytes", total, g.MaxTotalBytes)
		}
	}

	return selected, nil
}
