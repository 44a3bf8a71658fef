package models

import (
	"strings"

	"github.com/desertthunder/lyrx/internal/shared"
)

// Image is an artwork reference.
type Image struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// TrackSnapshot is one observation of the playback service.
type TrackSnapshot struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist"` // artist names joined with ", "
	Album      string  `json:"album"`
	Artwork    []Image `json:"artwork,omitempty"`
	DurationMS int64   `json:"duration_ms"`
	ProgressMS int64   `json:"progress_ms"`
	IsPlaying  bool    `json:"is_playing"`

	// FromHistory marks a track taken from play history rather than the live player.
	FromHistory bool `json:"from_history,omitempty"`
}

// Key returns the identity used for offsets and cached lyrics.
func (t TrackSnapshot) Key() string {
	return TrackKey(t.Artist, t.Title)
}

// SameTrack reports whether other refers to the same playback item.
func (t *TrackSnapshot) SameTrack(other *TrackSnapshot) bool {
	if t == nil || other == nil {
		return false
	}
	return t.ID == other.ID
}

// TrackKey builds the normalized "artist - title" identity for a track.
func TrackKey(artist, title string) string {
	return shared.NormalizeKey(artist) + " - " + shared.NormalizeKey(title)
}

// JoinArtists joins artist names the way the playback service displays them.
func JoinArtists(names []string) string {
	return strings.Join(names, ", ")
}
