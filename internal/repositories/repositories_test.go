package repositories

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/desertthunder/lyrx/internal/models"
	"github.com/desertthunder/lyrx/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	shared.ConfigureDatabase(db, 1, 1)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func sampleTimeline(resolvedAt time.Time) *models.LyricTimeline {
	return &models.LyricTimeline{
		Lines:      []models.LyricLine{{Start: 1000, End: 4000, Text: "Hello"}, {Start: 4000, End: 9000, Text: "World"}},
		Source:     "lrclib",
		Quality:    models.QualityHigh,
		Confidence: 0.95,
		ResolvedAt: resolvedAt,
	}
}

func TestLyricsRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Put and Get", func(t *testing.T) {
		repo := NewLyricsRepository(setupTestDB(t))
		want := sampleTimeline(time.Now().UTC().Truncate(time.Second))

		if err := repo.Put(ctx, "Artist", "Song", want); err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		got, err := repo.Get(ctx, shared.CacheKey("Artist", "Song"))
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got == nil {
			t.Fatal("expected a timeline")
		}
		if len(got.Lines) != 2 || got.Lines[1] != want.Lines[1] {
			t.Errorf("unexpected lines %+v", got.Lines)
		}
		if got.Quality != models.QualityHigh || !got.ResolvedAt.Equal(want.ResolvedAt) {
			t.Errorf("unexpected metadata %+v", got)
		}
	})

	t.Run("Get missing", func(t *testing.T) {
		repo := NewLyricsRepository(setupTestDB(t))
		got, err := repo.Get(ctx, "nope")
		if err != nil || got != nil {
			t.Errorf("expected (nil, nil), got (%+v, %v)", got, err)
		}
	})

	t.Run("Put replaces", func(t *testing.T) {
		repo := NewLyricsRepository(setupTestDB(t))
		_ = repo.Put(ctx, "Artist", "Song", sampleTimeline(time.Now()))

		replacement := &models.LyricTimeline{Lines: []models.LyricLine{}, Source: "detected", Quality: models.QualityInstrumental}
		if err := repo.Put(ctx, "artist", "song", replacement); err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		n, _ := repo.Count(ctx)
		if n != 1 {
			t.Errorf("expected 1 row, got %d", n)
		}
		got, _ := repo.Get(ctx, shared.CacheKey("Artist", "Song"))
		if !got.IsInstrumental() {
			t.Errorf("expected replacement to win, got %+v", got)
		}
	})

	t.Run("List, Delete, Purge and Clear", func(t *testing.T) {
		repo := NewLyricsRepository(setupTestDB(t))
		now := time.Now().UTC()
		_ = repo.Put(ctx, "B", "Old", sampleTimeline(now.Add(-48*time.Hour)))
		_ = repo.Put(ctx, "A", "New", sampleTimeline(now))
		_ = repo.Put(ctx, "C", "Other", sampleTimeline(now))

		entries, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(entries) != 3 || entries[0].Artist != "A" {
			t.Errorf("unexpected entries %+v", entries)
		}

		purged, err := repo.Purge(ctx, now.Add(-24*time.Hour))
		if err != nil || purged != 1 {
			t.Errorf("Purge() = %d, %v", purged, err)
		}

		if err := repo.Delete(ctx, shared.CacheKey("C", "Other")); err != nil {
			t.Errorf("Delete() error = %v", err)
		}

		cleared, err := repo.Clear(ctx)
		if err != nil || cleared != 1 {
			t.Errorf("Clear() = %d, %v", cleared, err)
		}
	})

	t.Run("Corrupt payload", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewLyricsRepository(db)
		_, err := db.Exec(`INSERT INTO lyrics_cache (cache_key, artist, title, source, quality, payload, resolved_at)
			VALUES ('k', 'a', 't', 's', 'high', x'FFFF', CURRENT_TIMESTAMP)`)
		if err != nil {
			t.Fatalf("failed to insert corrupt row: %v", err)
		}

		if _, err := repo.Get(ctx, "k"); err == nil {
			t.Error("expected decode error")
		}
	})

	t.Run("Closed database", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewLyricsRepository(db)
		db.Close()

		if _, err := repo.Get(ctx, "k"); err == nil {
			t.Error("expected error on closed database")
		}
		if err := repo.Put(ctx, "a", "t", sampleTimeline(time.Now())); err == nil {
			t.Error("expected error on closed database")
		}
	})
}

func TestLyricsCache(t *testing.T) {
	ctx := context.Background()
	logger := shared.NewLogger(io.Discard)

	t.Run("memory hit", func(t *testing.T) {
		cache := NewLyricsCache(nil, 2, time.Hour, logger)
		_ = cache.StoreLyrics(ctx, "Artist", "Song", sampleTimeline(time.Now()))

		got, ok, err := cache.GetLyrics(ctx, "ARTIST", " song ")
		if err != nil || !ok || got == nil {
			t.Fatalf("GetLyrics() = %v, %v, %v", got, ok, err)
		}

		got.Lines[0].Text = "mutated"
		again, _, _ := cache.GetLyrics(ctx, "Artist", "Song")
		if again.Lines[0].Text != "Hello" {
			t.Error("cache returned shared storage")
		}
	})

	t.Run("LRU eviction", func(t *testing.T) {
		cache := NewLyricsCache(nil, 2, time.Hour, logger)
		_ = cache.StoreLyrics(ctx, "a", "1", sampleTimeline(time.Now()))
		_ = cache.StoreLyrics(ctx, "a", "2", sampleTimeline(time.Now()))
		_, _, _ = cache.GetLyrics(ctx, "a", "1")
		_ = cache.StoreLyrics(ctx, "a", "3", sampleTimeline(time.Now()))

		if _, ok, _ := cache.GetLyrics(ctx, "a", "2"); ok {
			t.Error("least recently used entry should be evicted")
		}
		if _, ok, _ := cache.GetLyrics(ctx, "a", "1"); !ok {
			t.Error("recently used entry should survive")
		}
		if cache.Len() != 2 {
			t.Errorf("expected 2 entries, got %d", cache.Len())
		}
	})

	t.Run("TTL expiry", func(t *testing.T) {
		cache := NewLyricsCache(nil, 10, time.Hour, logger)
		_ = cache.StoreLyrics(ctx, "a", "old", sampleTimeline(time.Now().Add(-2*time.Hour)))

		if _, ok, _ := cache.GetLyrics(ctx, "a", "old"); ok {
			t.Error("expired entry should miss")
		}
	})

	t.Run("falls back to storage", func(t *testing.T) {
		repo := NewLyricsRepository(setupTestDB(t))
		_ = repo.Put(ctx, "Artist", "Song", sampleTimeline(time.Now()))

		cache := NewLyricsCache(repo, 10, time.Hour, logger)
		got, ok, err := cache.GetLyrics(ctx, "Artist", "Song")
		if err != nil || !ok || len(got.Lines) != 2 {
			t.Fatalf("GetLyrics() = %v, %v, %v", got, ok, err)
		}
		if cache.Len() != 1 {
			t.Error("storage hit should populate memory")
		}
	})

	t.Run("expired in storage", func(t *testing.T) {
		repo := NewLyricsRepository(setupTestDB(t))
		_ = repo.Put(ctx, "Artist", "Song", sampleTimeline(time.Now().Add(-48*time.Hour)))

		cache := NewLyricsCache(repo, 10, 24*time.Hour, logger)
		if _, ok, _ := cache.GetLyrics(ctx, "Artist", "Song"); ok {
			t.Error("expired stored entry should miss")
		}
	})

	t.Run("write through and Clear", func(t *testing.T) {
		repo := NewLyricsRepository(setupTestDB(t))
		cache := NewLyricsCache(repo, 10, time.Hour, logger)

		if err := cache.StoreLyrics(ctx, "Artist", "Song", sampleTimeline(time.Now())); err != nil {
			t.Fatalf("StoreLyrics() error = %v", err)
		}
		if n, _ := repo.Count(ctx); n != 1 {
			t.Errorf("expected write-through, got %d rows", n)
		}

		removed, err := cache.Clear(ctx)
		if err != nil || removed != 1 || cache.Len() != 0 {
			t.Errorf("Clear() = %d, %v (len %d)", removed, err, cache.Len())
		}
	})

	t.Run("storage failures are persistence faults", func(t *testing.T) {
		db := setupTestDB(t)
		cache := NewLyricsCache(NewLyricsRepository(db), 10, time.Hour, logger)
		db.Close()

		err := cache.StoreLyrics(ctx, "a", "b", sampleTimeline(time.Now()))
		if !errors.Is(err, shared.ErrPersistence) {
			t.Errorf("expected ErrPersistence, got %v", err)
		}
		if _, ok, _ := cache.GetLyrics(ctx, "a", "b"); !ok {
			t.Error("memory layer should keep the entry")
		}

		if _, ok, err := cache.GetLyrics(ctx, "x", "y"); ok || !errors.Is(err, shared.ErrPersistence) {
			t.Errorf("expected miss with ErrPersistence, got %v, %v", ok, err)
		}
	})

	t.Run("pairs with the same words stay apart", func(t *testing.T) {
		repo := NewLyricsRepository(setupTestDB(t))
		cache := NewLyricsCache(repo, 10, time.Hour, logger)
		_ = cache.StoreLyrics(ctx, "Foo Bar", "Baz", sampleTimeline(time.Now()))

		if _, ok, _ := cache.GetLyrics(ctx, "Foo", "Bar Baz"); ok {
			t.Error("different artist/title split should miss in memory")
		}
		if got, _ := repo.Get(ctx, shared.CacheKey("Foo", "Bar Baz")); got != nil {
			t.Error("different artist/title split should miss in storage")
		}
	})

	t.Run("nil timeline", func(t *testing.T) {
		cache := NewLyricsCache(nil, 10, time.Hour, logger)
		if err := cache.StoreLyrics(ctx, "a", "b", nil); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestOffsetRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Save and Load", func(t *testing.T) {
		repo := NewOffsetRepository(setupTestDB(t))
		modified := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)

		records := []*models.TrackOffsetRecord{
			{TrackID: "b - two", GlobalCorrection: -50, LastModified: modified, Anchors: []models.OffsetAnchor{}},
			{TrackID: "a - one", GlobalCorrection: 120, LastModified: modified, Anchors: []models.OffsetAnchor{
				{Timestamp: 1000, Correction: 50},
				{Timestamp: 5000, Correction: -100},
			}},
		}
		if err := repo.SaveOffsetRecords(ctx, records); err != nil {
			t.Fatalf("SaveOffsetRecords() error = %v", err)
		}

		loaded, err := repo.LoadOffsetRecords(ctx)
		if err != nil {
			t.Fatalf("LoadOffsetRecords() error = %v", err)
		}
		if len(loaded) != 2 || loaded[0].TrackID != "a - one" {
			t.Fatalf("unexpected records %+v", loaded)
		}
		if len(loaded[0].Anchors) != 2 || loaded[0].Anchors[1].Correction != -100 {
			t.Errorf("unexpected anchors %+v", loaded[0].Anchors)
		}
		if !loaded[0].LastModified.Equal(modified) {
			t.Errorf("expected last modified %v, got %v", modified, loaded[0].LastModified)
		}
	})

	t.Run("Save replaces the set", func(t *testing.T) {
		repo := NewOffsetRepository(setupTestDB(t))
		_ = repo.SaveOffsetRecords(ctx, []*models.TrackOffsetRecord{{TrackID: "x", Anchors: []models.OffsetAnchor{{Timestamp: 1, Correction: 1}}}})
		_ = repo.SaveOffsetRecords(ctx, []*models.TrackOffsetRecord{{TrackID: "y"}})

		loaded, _ := repo.LoadOffsetRecords(ctx)
		if len(loaded) != 1 || loaded[0].TrackID != "y" || len(loaded[0].Anchors) != 0 {
			t.Errorf("unexpected records %+v", loaded)
		}
	})

	t.Run("duplicate anchors roll back", func(t *testing.T) {
		repo := NewOffsetRepository(setupTestDB(t))
		_ = repo.SaveOffsetRecords(ctx, []*models.TrackOffsetRecord{{TrackID: "keep"}})

		bad := []*models.TrackOffsetRecord{{TrackID: "z", Anchors: []models.OffsetAnchor{{Timestamp: 1}, {Timestamp: 1}}}}
		if err := repo.SaveOffsetRecords(ctx, bad); err == nil {
			t.Fatal("expected constraint error")
		}

		loaded, _ := repo.LoadOffsetRecords(ctx)
		if len(loaded) != 1 || loaded[0].TrackID != "keep" {
			t.Errorf("failed save should leave previous set, got %+v", loaded)
		}
	})
}
