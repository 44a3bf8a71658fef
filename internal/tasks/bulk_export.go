package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/desertthunder/lyrx/internal/formatter"
	"github.com/desertthunder/lyrx/internal/models"
	"golang.org/x/time/rate"
)

// BulkExportOpts contains configuration for bulk lyric exports.
type BulkExportOpts struct {
	Format     string  // Export format: lrc, srt, txt, markdown, json
	OutputDir  string  // Base output directory (default: lyrics_export_{epoch})
	NumWorkers int     // Concurrent workers (default: 3)
	RateLimit  float64 // Lookups per second (default: 2)
}

// LyricsExportResult is the outcome for one track.
type LyricsExportResult struct {
	Artist       string   `json:"artist"`
	Title        string   `json:"title"`
	Success      bool     `json:"success"`
	Quality      string   `json:"quality,omitempty"`
	Files        []string `json:"files,omitempty"`
	Error        error    `json:"-"`
	ErrorMessage string   `json:"error,omitempty"`
}

// BulkExportResult summarizes a bulk export and is written as its manifest.
type BulkExportResult struct {
	TotalTracks       int                  `json:"total_tracks"`
	SuccessfulExports int                  `json:"successful_exports"`
	FailedExports     int                  `json:"failed_exports"`
	OutputDirectory   string               `json:"output_directory"`
	ManifestPath      string               `json:"-"`
	Results           []LyricsExportResult `json:"results"`
}

// BulkExport resolves lyrics for tracks and writes each in opts.Format, cache first.
//
// Lookups are rate limited and spread over a worker pool. Failures are recorded per track and the run continues.
// A manifest summarizing the run is written to export_manifest.json in the output directory.
func (e *Engine) BulkExport(
	ctx context.Context,
	prog chan<- ProgressUpdate,
	tracks []*models.TrackSnapshot,
	opts BulkExportOpts,
) (*BulkExportResult, error) {
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("lyrics_export_%d", time.Now().Unix())
	}
	if opts.Format == "" {
		opts.Format = formatter.FormatLRC
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 3
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 2.0
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &BulkExportResult{
		TotalTracks:     len(tracks),
		OutputDirectory: opts.OutputDir,
		Results:         make([]LyricsExportResult, 0, len(tracks)),
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)

	jobs := make(chan *models.TrackSnapshot, len(tracks))
	results := make(chan LyricsExportResult, len(tracks))

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go e.exportWorker(ctx, &wg, jobs, results, opts)
	}

	go func() {
		defer close(jobs)
		for i, track := range tracks {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			sendProgress(prog, resolvingUpdate(i+1, len(tracks), track))
			jobs <- track
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		name := res.Artist + " - " + res.Title
		if res.Success {
			result.SuccessfulExports++
			sendProgress(prog, exportCompletedUpdate(completed, len(tracks), name, len(res.Files)))
		} else {
			result.FailedExports++
			res.ErrorMessage = res.Error.Error()
			sendProgress(prog, exportFailedUpdate(completed, len(tracks), name, res.Error))
		}
		result.Results = append(result.Results, res)
	}

	manifestPath := filepath.Join(opts.OutputDir, "export_manifest.json")
	if err := formatter.WriteManifest(result, manifestPath); err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath
	return result, ctx.Err()
}

// exportWorker exports tracks from the jobs channel until it closes.
func (e *Engine) exportWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	jobs <-chan *models.TrackSnapshot,
	results chan<- LyricsExportResult,
	opts BulkExportOpts,
) {
	defer wg.Done()

	for track := range jobs {
		if ctx.Err() != nil {
			return
		}
		results <- e.exportSingle(ctx, track, opts)
	}
}

// exportSingle resolves and writes lyrics for one track.
func (e *Engine) exportSingle(ctx context.Context, track *models.TrackSnapshot, opts BulkExportOpts) LyricsExportResult {
	res := LyricsExportResult{Artist: track.Artist, Title: track.Title}

	timeline, err := e.lookup(ctx, track.Artist, track.Title)
	if err != nil {
		res.Error = fmt.Errorf("lookup failed: %w", err)
		return res
	}
	res.Quality = timeline.Quality.String()

	files, err := formatter.WriteLyricsExport(NewLyricsExport(track, timeline), opts.Format, opts.OutputDir)
	if err != nil {
		res.Error = err
		return res
	}

	res.Files = files
	res.Success = true
	return res
}

// NewLyricsExport pairs a timeline with the metadata of track.
func NewLyricsExport(track *models.TrackSnapshot, timeline *models.LyricTimeline) *formatter.LyricsExport {
	export := &formatter.LyricsExport{
		Artist:     track.Artist,
		Title:      track.Title,
		Album:      track.Album,
		DurationMS: track.DurationMS,
		Timeline:   timeline,
	}
	if len(track.Artwork) > 0 {
		export.ArtworkURL = track.Artwork[0].URL
	}
	return export
}
