// package services implements the HTTP clients for the playback service and the lyrics index
package services

import (
	"context"

	"github.com/desertthunder/lyrx/internal/models"
)

// PlaybackSource reports what is currently playing. A nil track with a nil error means nothing is.
type PlaybackSource interface {
	CurrentTrack(ctx context.Context) (*models.TrackSnapshot, error)
}

// LyricsIndex answers lyrics queries.
type LyricsIndex interface {
	Search(ctx context.Context, q models.LyricsQuery) ([]models.LyricsCandidate, error)
}

var (
	_ PlaybackSource = (*PlaybackClient)(nil)
	_ LyricsIndex    = (*LrclibClient)(nil)
)
