package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/desertthunder/lyrx/internal/formatter"
	"github.com/desertthunder/lyrx/internal/lyrics"
	"github.com/desertthunder/lyrx/internal/models"
	"github.com/desertthunder/lyrx/internal/shared"
	"github.com/desertthunder/lyrx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// LyricsGet prints lyrics for a track in the requested format, cache first.
func (r *Runner) LyricsGet(ctx context.Context, cmd *cli.Command) error {
	track, err := r.currentTrack(ctx, cmd)
	if err != nil {
		return err
	}

	st, err := r.openStack(ctx)
	if err != nil {
		return err
	}
	engine := r.newEngine(st)
	defer engine.Close()

	r.logger.Info("looking up lyrics", "artist", track.Artist, "title", track.Title)
	timeline, err := engine.FetchLyrics(ctx, track.Artist, track.Title)
	if err != nil {
		return err
	}

	data, err := formatter.Render(tasks.NewLyricsExport(track, timeline), cmd.String("format"))
	if err != nil {
		return err
	}
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// LyricsExport writes lyrics files for one track, or for the most recent tracks with --recent.
func (r *Runner) LyricsExport(ctx context.Context, cmd *cli.Command) error {
	format := cmd.String("format")
	outputDir := cmd.String("output")

	if n := cmd.Int("recent"); n > 0 {
		return r.exportRecent(ctx, n, format, outputDir, cmd.Int("workers"))
	}

	track, err := r.currentTrack(ctx, cmd)
	if err != nil {
		return err
	}

	st, err := r.openStack(ctx)
	if err != nil {
		return err
	}
	engine := r.newEngine(st)
	defer engine.Close()

	timeline, err := engine.FetchLyrics(ctx, track.Artist, track.Title)
	if err != nil {
		return err
	}

	files, err := formatter.WriteLyricsExport(tasks.NewLyricsExport(track, timeline), format, outputDir)
	if err != nil {
		return err
	}

	r.writePlain("✓ Exported %s - %s (%s)\n", track.Artist, track.Title, timeline.Quality)
	for _, f := range files {
		r.writePlain("   %s\n", f)
	}
	return nil
}

func (r *Runner) exportRecent(ctx context.Context, limit int, format, outputDir string, workers int) error {
	playback, err := r.playbackClient()
	if err != nil {
		return err
	}

	tracks, err := playback.RecentTracks(ctx, limit)
	if err != nil {
		return err
	}
	tracks = uniqueTracks(tracks)
	if len(tracks) == 0 {
		return r.writePlain("No recently played tracks\n")
	}

	st, err := r.openStack(ctx)
	if err != nil {
		return err
	}
	engine := r.newEngine(st)
	defer engine.Close()

	r.logger.Info("starting bulk export", "tracks", len(tracks), "format", format, "output", outputDir)
	r.writePlain("Exporting lyrics for %d tracks...\n\n", len(tracks))

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			switch update.Phase {
			case tasks.ResolveLyrics:
				r.writePlain("🔍 %s\n", update.Message)
			case tasks.ExportLyrics:
				r.writePlain("   %s\n", update.Message)
			}
		}
	}()

	result, err := engine.BulkExport(ctx, progressCh, tracks, tasks.BulkExportOpts{
		Format:     format,
		OutputDir:  filepath.Clean(outputDir),
		NumWorkers: workers,
		RateLimit:  r.config.Lyrics.RequestsPerSecond,
	})
	close(progressCh)
	<-done

	if result == nil {
		return err
	}

	r.writePlainln("")
	r.writePlainHeader("Export Complete!")
	r.writePlain("Exported: %d/%d\n", result.SuccessfulExports, result.TotalTracks)
	r.writePlain("Output: %s\n", result.OutputDirectory)
	if result.ManifestPath != "" {
		r.writePlain("Manifest: %s\n", result.ManifestPath)
	}

	if result.FailedExports > 0 {
		r.writePlain("\nFailed %d tracks:\n", result.FailedExports)
		for _, res := range result.Results {
			if !res.Success {
				r.writePlain("  - %s - %s: %s\n", res.Artist, res.Title, res.ErrorMessage)
			}
		}
	}
	return err
}

// uniqueTracks drops repeated plays of the same track, keeping the first.
func uniqueTracks(tracks []*models.TrackSnapshot) []*models.TrackSnapshot {
	seen := make(map[string]bool, len(tracks))
	out := make([]*models.TrackSnapshot, 0, len(tracks))
	for _, t := range tracks {
		if t == nil || seen[t.Key()] {
			continue
		}
		seen[t.Key()] = true
		out = append(out, t)
	}
	return out
}

type searchCandidate struct {
	Best         bool    `json:"best"`
	Score        float64 `json:"score"`
	ID           int64   `json:"id"`
	Artist       string  `json:"artist"`
	Title        string  `json:"title"`
	Album        string  `json:"album"`
	Duration     float64 `json:"duration"`
	Synced       bool    `json:"synced"`
	Plain        bool    `json:"plain"`
	Instrumental bool    `json:"instrumental"`
}

// LyricsSearch prints the raw candidates the lyrics index returns, marking the one the resolver would pick.
func (r *Runner) LyricsSearch(ctx context.Context, cmd *cli.Command) error {
	q := models.LyricsQuery{
		Artist: cmd.String("artist"),
		Title:  cmd.String("title"),
		Text:   cmd.String("query"),
	}
	if q.Text == "" && (q.Artist == "" || q.Title == "") {
		return fmt.Errorf("%w: pass --query, or --artist and --title", shared.ErrMissingArgument)
	}

	st, err := r.openStack(ctx)
	if err != nil {
		return err
	}

	candidates, err := st.index.Search(ctx, q)
	if err != nil {
		return err
	}

	artist, title := q.Artist, q.Title
	if q.Text != "" && title == "" {
		title = q.Text
	}
	best, found := lyrics.BestMatch(candidates, artist, title)

	out := make([]searchCandidate, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, searchCandidate{
			Best:         found && c.ID == best.ID,
			Score:        lyrics.Score(lyrics.Similarity(title, c.TrackName), lyrics.Similarity(artist, c.ArtistName)),
			ID:           c.ID,
			Artist:       c.ArtistName,
			Title:        c.TrackName,
			Album:        c.AlbumName,
			Duration:     c.Duration,
			Synced:       strings.TrimSpace(c.SyncedLyrics) != "",
			Plain:        strings.TrimSpace(c.PlainLyrics) != "",
			Instrumental: c.Instrumental,
		})
	}
	return r.writeJSON(out, cmd.Bool("pretty"))
}
