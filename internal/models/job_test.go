package models

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to JobStatus
		want     bool
	}{
		{StatusPending, StatusGenerating, true},
		{StatusGenerating, StatusReady, true},
		{StatusGenerating, StatusPending, true},
		{StatusGenerating, StatusFailed, true},
		{StatusFailed, StatusPending, true},
		{StatusPending, StatusReady, false},
		{StatusFailed, StatusGenerating, false},
		{StatusReady, StatusPending, false},
		{StatusReady, StatusFailed, false},
	}

	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s): expected %v, got %v", c.from, c.to, c.want, got)
		}
	}
}

func TestParseMediaFilter(t *testing.T) {
	if f, ok := ParseMediaFilter(""); !ok || f != FilterAll {
		t.Errorf("expected empty filter to mean ALL, got %q ok=%v", f, ok)
	}
	if f, ok := ParseMediaFilter(" photos "); !ok || f != FilterPhotos {
		t.Errorf("expected PHOTOS, got %q ok=%v", f, ok)
	}
	if _, ok := ParseMediaFilter("documents"); ok {
		t.Error("expected unknown filter to be rejected")
	}
}

func TestMediaFilter_Match(t *testing.T) {
	photo := &MediaItem{MediaType: "image/jpeg"}
	video := &MediaItem{MediaType: "VIDEO/mp4"}
	doc := &MediaItem{MediaType: "application/pdf"}

	if !FilterPhotos.Match(photo) || FilterPhotos.Match(video) || FilterPhotos.Match(doc) {
		t.Error("PHOTOS filter should only match images")
	}
	if !FilterVideos.Match(video) || FilterVideos.Match(photo) {
		t.Error("VIDEOS filter should only match videos")
	}
	if !FilterAll.Match(doc) || !MediaFilter("").Match(doc) {
		t.Error("ALL filter should match everything")
	}
}
