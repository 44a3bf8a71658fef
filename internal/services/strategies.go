package services

import (
	"context"
	"net/http"
	"net/url"

	"github.com/desertthunder/lyrx/internal/models"
)

// Outcome is the tri-state result of a [Strategy].
type Outcome int

const (
	Empty Outcome = iota // the endpoint answered but reported nothing playing
	Found                // a track was determined
	Fault                // the request failed; Err is set
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case Fault:
		return "fault"
	default:
		return "empty"
	}
}

// Result is what a strategy produced.
type Result struct {
	Outcome Outcome
	Track   *models.TrackSnapshot
	Err     error
}

// Strategy is one way of asking the playback service what is playing.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, c *PlaybackClient) Result
}

// DefaultStrategies returns the cascade in priority order.
func DefaultStrategies() []Strategy {
	return []Strategy{CurrentlyPlaying{}, PlayerState{}, RecentlyPlayed{}}
}

// CurrentlyPlaying queries the current-item endpoint with market and episode support.
type CurrentlyPlaying struct{}

func (CurrentlyPlaying) Name() string { return "currently-playing" }

func (CurrentlyPlaying) Fetch(ctx context.Context, c *PlaybackClient) Result {
	return fetchPlayback(ctx, c, "/me/player/currently-playing")
}

// PlayerState queries the full player-state endpoint, which also works for some clients the current-item
// endpoint reports as idle.
type PlayerState struct{}

func (PlayerState) Name() string { return "player-state" }

func (PlayerState) Fetch(ctx context.Context, c *PlaybackClient) Result {
	return fetchPlayback(ctx, c, "/me/player")
}

func fetchPlayback(ctx context.Context, c *PlaybackClient, endpoint string) Result {
	var body SpotifyPlayback
	status, err := c.get(ctx, endpoint, c.playbackQuery(), &body)
	if err != nil {
		return Result{Outcome: Fault, Err: err}
	}
	if status == http.StatusNoContent {
		return Result{Outcome: Empty}
	}

	track := body.Snapshot()
	if track == nil {
		return Result{Outcome: Empty}
	}
	return Result{Outcome: Found, Track: track}
}

// RecentlyPlayed approximates playback with the last history entry. The track is marked as not playing.
type RecentlyPlayed struct{}

func (RecentlyPlayed) Name() string { return "recently-played" }

func (RecentlyPlayed) Fetch(ctx context.Context, c *PlaybackClient) Result {
	var body spotifyPlayHistory
	status, err := c.get(ctx, "/me/player/recently-played", url.Values{"limit": {"1"}}, &body)
	if err != nil {
		return Result{Outcome: Fault, Err: err}
	}
	if status == http.StatusNoContent || len(body.Items) == 0 || body.Items[0].Track.ID == "" {
		return Result{Outcome: Empty}
	}

	track := body.Items[0].Track.snapshot()
	track.IsPlaying = false
	track.ProgressMS = 0
	track.FromHistory = true
	return Result{Outcome: Found, Track: track}
}
