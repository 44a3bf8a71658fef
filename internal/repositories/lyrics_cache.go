package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/lyrx/internal/models"
	"github.com/desertthunder/lyrx/internal/shared"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultMemoryEntries = 50

// LyricsCache keeps recently used timelines in memory and mirrors them to a [LyricsRepository].
//
// Entries whose ResolvedAt is older than the TTL are misses in both layers. A nil repository gives a memory-only
// cache.
type LyricsCache struct {
	memory *expirable.LRU[string, *models.LyricTimeline]
	ttl    time.Duration
	repo   *LyricsRepository
	logger *log.Logger
	now    func() time.Time
}

// NewLyricsCache creates a cache holding up to size timelines in memory. A non-positive size uses 50.
func NewLyricsCache(repo *LyricsRepository, size int, ttl time.Duration, logger *log.Logger) *LyricsCache {
	if size <= 0 {
		size = defaultMemoryEntries
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	evicted := func(key string, _ *models.LyricTimeline) {
		logger.Debug("evicted lyrics from memory", "key", key)
	}
	return &LyricsCache{
		memory: expirable.NewLRU[string, *models.LyricTimeline](size, evicted, ttl),
		ttl:    ttl,
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// GetLyrics returns a fresh cached timeline for artist and title.
//
// A storage read failure is returned with ok=false so callers can treat it as a miss.
func (c *LyricsCache) GetLyrics(ctx context.Context, artist, title string) (*models.LyricTimeline, bool, error) {
	key := shared.CacheKey(artist, title)

	if t, ok := c.memory.Get(key); ok {
		// the LRU ages entries from insertion; a timeline loaded from storage may already be older
		if !t.Expired(c.ttl, c.now()) {
			return t.Clone(), true, nil
		}
		c.memory.Remove(key)
	}

	if c.repo == nil {
		return nil, false, nil
	}

	t, err := c.repo.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", shared.ErrPersistence, err)
	}
	if t == nil {
		return nil, false, nil
	}
	if t.Expired(c.ttl, c.now()) {
		c.logger.Debug("cached lyrics expired", "key", key, "resolved_at", t.ResolvedAt)
		return nil, false, nil
	}

	c.memory.Add(key, t)
	return t.Clone(), true, nil
}

// StoreLyrics caches t in memory and writes it through to the repository.
//
// The memory layer is updated even when the write fails.
func (c *LyricsCache) StoreLyrics(ctx context.Context, artist, title string, t *models.LyricTimeline) error {
	if t == nil {
		return fmt.Errorf("%w: nil timeline", shared.ErrInvalidArgument)
	}

	key := shared.CacheKey(artist, title)
	c.memory.Add(key, t.Clone())

	if c.repo == nil {
		return nil
	}
	if err := c.repo.Put(ctx, artist, title, t); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrPersistence, err)
	}
	return nil
}

// Clear empties memory and storage, returning the number of stored rows removed.
func (c *LyricsCache) Clear(ctx context.Context) (int64, error) {
	c.memory.Purge()

	if c.repo == nil {
		return 0, nil
	}
	return c.repo.Clear(ctx)
}

// Len returns the number of timelines held in memory.
func (c *LyricsCache) Len() int {
	return c.memory.Len()
}
