package models

import "strings"

// MediaFilter selects which catalog items go into an archive
type MediaFilter string

const (
	FilterAll    MediaFilter = "ALL"
	FilterPhotos MediaFilter = "PHOTOS"
	FilterVideos MediaFilter = "VIDEOS"
)

// ParseMediaFilter normalizes user input. An empty string means ALL.
func ParseMediaFilter(s string) (MediaFilter, bool) {
	switch MediaFilter(strings.ToUpper(strings.TrimSpace(s))) {
	case "", FilterAll:
		return FilterAll, true
	case FilterPhotos:
		return FilterPhotos, true
	case FilterVideos:
		return FilterVideos, true
	}
	return "", false
}

// Match reports whether the item passes the filter
func (f MediaFilter) Match(item *MediaItem) bool {
	switch f {
	case FilterPhotos:
		return item.IsPhoto()
	case FilterVideos:
		return item.IsVideo()
	default:
		return true
	}
}

// MediaItem is a read-only catalog entry
type MediaItem struct {
	ID         string `json:"id"`
	ProjectRef string `json:"project_ref"`
	Key        string `json:"key"`
	CDNURL     string `json:"cdn_url,omitempty"`
	Filename   string `json:"filename"`
	// Size is the declared size in bytes, zero when unknown
	Size      int64  `json:"size,omitempty"`
	MediaType string `json:"media_type"`
}

func (m *MediaItem) IsPhoto() bool {
	return strings.HasPrefix(strings.ToLower(m.MediaType), "image/")
}

func (m *MediaItem) IsVideo() bool {
	return strings.HasPrefix(strings.ToLower(m.MediaType), "video/")
}

// Project is the catalog entry an artifact job bundles
type Project struct {
	Ref          string `json:"ref"`
	Organization string `json:"organization,omitempty"`
	Address      string `json:"address,omitempty"`
	City         string `json:"city,omitempty"`
}
