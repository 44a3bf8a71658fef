package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/lyrx/internal/models"
	"github.com/desertthunder/lyrx/internal/shared"
	"github.com/golang/snappy"
)

// LyricsRepository stores resolved timelines.
type LyricsRepository struct {
	db *sql.DB
}

// NewLyricsRepository creates a new LyricsRepository with the given database connection
func NewLyricsRepository(db *sql.DB) *LyricsRepository {
	return &LyricsRepository{db: db}
}

// CachedLyrics is one row of the lyrics cache.
type CachedLyrics struct {
	Key      string
	Artist   string
	Title    string
	Timeline *models.LyricTimeline
}

// Get returns the timeline stored for key, or nil when there is none.
func (r *LyricsRepository) Get(ctx context.Context, key string) (*models.LyricTimeline, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM lyrics_cache WHERE cache_key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query lyrics: %w", err)
	}
	return decodeTimeline(payload)
}

// Put inserts or replaces the timeline for artist and title.
func (r *LyricsRepository) Put(ctx context.Context, artist, title string, t *models.LyricTimeline) error {
	payload, err := encodeTimeline(t)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO lyrics_cache (cache_key, artist, title, source, quality, payload, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			artist = excluded.artist,
			title = excluded.title,
			source = excluded.source,
			quality = excluded.quality,
			payload = excluded.payload,
			resolved_at = excluded.resolved_at
	`
	_, err = r.db.ExecContext(ctx, query,
		shared.CacheKey(artist, title), artist, title, t.Source, t.Quality.String(), payload, t.ResolvedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to store lyrics: %w", err)
	}
	return nil
}

// List returns every cached entry ordered by artist and title.
func (r *LyricsRepository) List(ctx context.Context) ([]CachedLyrics, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT cache_key, artist, title, payload FROM lyrics_cache ORDER BY artist, title`)
	if err != nil {
		return nil, fmt.Errorf("failed to list lyrics: %w", err)
	}
	defer rows.Close()

	var out []CachedLyrics
	for rows.Next() {
		var entry CachedLyrics
		var payload []byte
		if err := rows.Scan(&entry.Key, &entry.Artist, &entry.Title, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan lyrics: %w", err)
		}
		if entry.Timeline, err = decodeTimeline(payload); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// Delete removes the entry for key.
func (r *LyricsRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM lyrics_cache WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete lyrics: %w", err)
	}
	return nil
}

// Clear removes every entry and returns how many were removed.
func (r *LyricsRepository) Clear(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM lyrics_cache`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear lyrics: %w", err)
	}
	return res.RowsAffected()
}

// Purge removes entries resolved before cutoff.
func (r *LyricsRepository) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM lyrics_cache WHERE resolved_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge lyrics: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of cached entries.
func (r *LyricsRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lyrics_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count lyrics: %w", err)
	}
	return n, nil
}

func encodeTimeline(t *models.LyricTimeline) ([]byte, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to encode timeline: %w", err)
	}
	return snappy.Encode(nil, raw), nil
}

func decodeTimeline(payload []byte) (*models.LyricTimeline, error) {
	raw, err := snappy.Decode(nil, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress timeline: %w", err)
	}

	var t models.LyricTimeline
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("failed to decode timeline: %w", err)
	}
	return &t, nil
}
