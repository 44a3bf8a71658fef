package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/desertthunder/lyrx/internal/models"
	"github.com/desertthunder/lyrx/internal/shared"
	"github.com/urfave/cli/v3"
)

// TrackNow shows the track the player is on, using the strategy cascade.
func (r *Runner) TrackNow(ctx context.Context, cmd *cli.Command) error {
	playback, err := r.playbackClient()
	if err != nil {
		return err
	}

	track, err := playback.CurrentTrack(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(track, cmd.Bool("pretty"))
	}

	if track == nil {
		return r.writePlain("Nothing playing\n")
	}

	state := "▶ Playing"
	if !track.IsPlaying {
		state = "⏸ Paused"
	}
	if track.FromHistory {
		state = "↺ Last played"
	}

	r.writePlain("%s: %s - %s\n", state, track.Artist, track.Title)
	if track.Album != "" {
		r.writePlain("   Album: %s\n", track.Album)
	}
	r.writePlain("   Progress: %s / %s\n", clock(track.ProgressMS), clock(track.DurationMS))
	r.writePlain("   ID: %s\n", track.ID)
	return nil
}

// TrackRecent lists recently played tracks.
func (r *Runner) TrackRecent(ctx context.Context, cmd *cli.Command) error {
	playback, err := r.playbackClient()
	if err != nil {
		return err
	}

	limit := cmd.Int("limit")
	r.logger.Infof("listing recently played tracks with limit %v", limit)

	tracks, err := playback.RecentTracks(ctx, limit)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(tracks, cmd.Bool("pretty"))
	}

	r.writePlain("Found %d tracks:\n\n", len(tracks))
	for i, t := range tracks {
		r.writePlain("%d. %s - %s\n", i+1, t.Artist, t.Title)
		if t.Album != "" {
			r.writePlain("   Album: %s\n", t.Album)
		}
		r.writePlain("   Duration: %s\n", clock(t.DurationMS))
	}
	return nil
}

// TrackDevices lists Spotify Connect devices.
func (r *Runner) TrackDevices(ctx context.Context, cmd *cli.Command) error {
	playback, err := r.playbackClient()
	if err != nil {
		return err
	}

	devices, err := playback.Devices(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(devices, cmd.Bool("pretty"))
	}

	if len(devices) == 0 {
		return r.writePlain("No devices found. Open Spotify on a device and try again.\n")
	}

	for _, d := range devices {
		marker := " "
		if d.IsActive {
			marker = "*"
		}
		r.writePlain("%s %s (%s)\n", marker, d.Name, d.Type)
	}
	return nil
}

// TrackProbe polls the current-item endpoint with linear backoff while it answers 204.
func (r *Runner) TrackProbe(ctx context.Context, cmd *cli.Command) error {
	playback, err := r.playbackClient()
	if err != nil {
		return err
	}

	res, err := playback.ProbeNoContent(ctx, cmd.Int("attempts"), cmd.Duration("step"))
	if err != nil {
		return err
	}

	r.writePlain("Attempts: %d\n", res.Attempts)
	r.writePlain("Last status: %d %s\n", res.Status, http.StatusText(res.Status))
	if res.Status == http.StatusNoContent {
		r.writePlain("The player reported no current item on every attempt.\n")
	}
	return nil
}

// currentTrack resolves the track named by --artist/--title, falling back to what is playing.
func (r *Runner) currentTrack(ctx context.Context, cmd *cli.Command) (*models.TrackSnapshot, error) {
	artist, title := cmd.String("artist"), cmd.String("title")
	switch {
	case artist != "" && title != "":
		return &models.TrackSnapshot{Artist: artist, Title: title}, nil
	case artist != "" || title != "":
		return nil, fmt.Errorf("%w: --artist and --title must be used together", shared.ErrMissingArgument)
	}

	playback, err := r.playbackClient()
	if err != nil {
		return nil, err
	}
	track, err := playback.CurrentTrack(ctx)
	if err != nil {
		return nil, err
	}
	if track == nil {
		return nil, fmt.Errorf("%w: nothing is playing, pass --artist and --title", shared.ErrNoCurrentTrack)
	}
	return track, nil
}

// clock formats ms as m:ss.
func clock(ms int64) string {
	ms = max(ms, 0)
	return fmt.Sprintf("%d:%02d", ms/60000, (ms/1000)%60)
}
