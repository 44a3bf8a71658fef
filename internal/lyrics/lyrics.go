// package lyrics resolves an (artist, title) pair into a [models.LyricTimeline].
//
// Resolution queries the lyrics index with the literal pair first, then with a normalized free-text query ranked
// by bigram similarity, and finally falls back to keyword-based instrumental detection.
package lyrics

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/lyrx/internal/models"
	"github.com/desertthunder/lyrx/internal/shared"
)

const (
	SourceIndex    = "lrclib"
	SourceDetected = "detected"
)

// Index is a lyrics index query capability.
type Index interface {
	Search(ctx context.Context, q models.LyricsQuery) ([]models.LyricsCandidate, error)
}

// Resolver turns track metadata into lyric timelines.
type Resolver struct {
	index  Index
	logger *log.Logger
	now    func() time.Time
}

// NewResolver creates a resolver backed by index. A nil logger logs to stderr.
func NewResolver(index Index, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Resolver{index: index, logger: logger, now: time.Now}
}

// Resolve finds lyrics for artist and title.
//
// Returns [shared.ErrLyricsNotFound] when nothing matched. When both index queries failed outright and the title
// does not look instrumental, the index fault is returned wrapped in [shared.ErrAPIRequest] so callers can retry
// later instead of treating the track as lyric-less.
func (r *Resolver) Resolve(ctx context.Context, artist, title string) (*models.LyricTimeline, error) {
	r.logger.Info("resolving lyrics", "artist", artist, "title", title)

	exact, exactErr := r.searchExact(ctx, artist, title)
	if exact != nil {
		return exact, nil
	}
	if exactErr != nil {
		r.logger.Warn("exact lyrics search failed", "error", exactErr)
	}

	fuzzy, fuzzyErr := r.searchFuzzy(ctx, artist, title)
	if fuzzy != nil {
		return fuzzy, nil
	}
	if fuzzyErr != nil {
		r.logger.Warn("fuzzy lyrics search failed", "error", fuzzyErr)
	}

	if IsLikelyInstrumental(title) {
		r.logger.Info("track appears to be instrumental", "title", title)
		return &models.LyricTimeline{
			Lines:      []models.LyricLine{},
			Source:     SourceDetected,
			Quality:    models.QualityInstrumental,
			Confidence: 0.9,
			ResolvedAt: r.now(),
		}, nil
	}

	if exactErr != nil && fuzzyErr != nil {
		return nil, fmt.Errorf("%w: lyrics index unavailable: %w", shared.ErrAPIRequest, fuzzyErr)
	}

	r.logger.Warn("no lyrics found", "artist", artist, "title", title)
	return nil, fmt.Errorf("%w: %s - %s", shared.ErrLyricsNotFound, artist, title)
}

func (r *Resolver) searchExact(ctx context.Context, artist, title string) (*models.LyricTimeline, error) {
	candidates, err := r.index.Search(ctx, models.LyricsQuery{Artist: artist, Title: title})
	if err != nil || len(candidates) == 0 {
		return nil, err
	}
	return r.convert(candidates[0]), nil
}

func (r *Resolver) searchFuzzy(ctx context.Context, artist, title string) (*models.LyricTimeline, error) {
	query := models.LyricsQuery{Text: Normalize(artist) + " " + Normalize(title)}
	candidates, err := r.index.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	best, ok := BestMatch(candidates, artist, title)
	if !ok {
		return nil, nil
	}
	return r.convert(best), nil
}

// BestMatch picks the non-instrumental candidate with the highest [Score] against artist and title. The earliest
// candidate wins ties.
func BestMatch(candidates []models.LyricsCandidate, artist, title string) (models.LyricsCandidate, bool) {
	var best models.LyricsCandidate
	bestScore, found := -1.0, false
	for _, c := range candidates {
		if c.Instrumental {
			continue
		}
		score := Score(Similarity(c.TrackName, title), Similarity(c.ArtistName, artist))
		if score > bestScore {
			best, bestScore, found = c, score, true
		}
	}
	return best, found
}

// convert maps an index candidate to a timeline, preferring synced over plain text. Returns nil when the candidate
// carries nothing usable.
func (r *Resolver) convert(c models.LyricsCandidate) *models.LyricTimeline {
	timeline := &models.LyricTimeline{Source: SourceIndex, ResolvedAt: r.now()}

	if c.Instrumental {
		timeline.Lines = []models.LyricLine{}
		timeline.Quality = models.QualityInstrumental
		timeline.Confidence = 1.0
		return timeline
	}

	if lines := ParseLRC(c.SyncedLyrics); len(lines) > 0 {
		r.logger.Debug("found synced lyrics", "lines", len(lines), "id", c.ID)
		timeline.Lines = lines
		timeline.Quality = models.QualityHigh
		timeline.Confidence = 0.95
		return timeline
	}

	if lines := PlainToLines(c.PlainLyrics); len(lines) > 0 {
		r.logger.Debug("found plain lyrics", "lines", len(lines), "id", c.ID)
		timeline.Lines = lines
		timeline.Quality = models.QualityLow
		timeline.Confidence = 0.7
		return timeline
	}

	return nil
}
