package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/lyrx/internal/models"
	"github.com/desertthunder/lyrx/internal/shared"
)

const (
	defaultUserLock    = 5 * time.Second
	defaultLockTimeout = 5 * time.Second
	lockRetryInterval  = 5 * time.Millisecond
)

// Resolver turns an artist/title pair into a lyric timeline.
type Resolver interface {
	Resolve(ctx context.Context, artist, title string) (*models.LyricTimeline, error)
}

// LyricsCache is the cache collaborator consulted before the resolver.
type LyricsCache interface {
	GetLyrics(ctx context.Context, artist, title string) (*models.LyricTimeline, bool, error)
	StoreLyrics(ctx context.Context, artist, title string, t *models.LyricTimeline) error
}

// OffsetStore holds the persisted corrections the engine reads on track change and writes on adjustment.
type OffsetStore interface {
	GlobalCorrection(trackID string) int64
	Anchors(trackID string) []models.OffsetAnchor
	SetGlobalCorrection(ctx context.Context, trackID string, value int64) error
	SetAnchor(ctx context.Context, trackID string, timestamp, value int64) error
	ResetTrack(ctx context.Context, trackID string) error
}

// Engine owns the sync state for the current track.
//
// Every mutation takes the state lock exclusively with a bounded wait and fails with [shared.ErrLockContention]
// when the wait runs out. The lock is never held across cache, resolver or offset store calls.
type Engine struct {
	mu sync.RWMutex

	track     *models.TrackSnapshot
	lyrics    *models.LyricTimeline
	progress  int64
	index     int
	corr      int64
	anchors   []models.OffsetAnchor
	paused    bool
	scrolled  bool
	searching bool
	lockUntil time.Time
	gen       uint64

	// persistMu orders offset writes so the store sees corrections in the order they were made.
	persistMu sync.Mutex

	resolver    Resolver
	cache       LyricsCache
	offsets     OffsetStore
	hub         *Hub
	logger      *log.Logger
	now         func() time.Time
	userLock    time.Duration
	lockTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// EngineOption configures an [Engine].
type EngineOption func(*Engine)

// WithUserLock sets how long automatic progress updates are ignored after a manual offset change.
func WithUserLock(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.userLock = d
		}
	}
}

// WithLockTimeout bounds how long an operation waits for the state lock.
func WithLockTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.lockTimeout = d
		}
	}
}

// WithEngineLogger sets the engine logger.
func WithEngineLogger(l *log.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithEngineClock replaces the clock used for the user-lock window.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithHub publishes events on hub instead of a private one.
func WithHub(h *Hub) EngineOption {
	return func(e *Engine) { e.hub = h }
}

// NewEngine creates an engine with no current track. cache may be nil.
func NewEngine(resolver Resolver, cache LyricsCache, offsets OffsetStore, opts ...EngineOption) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		index:       -1,
		resolver:    resolver,
		cache:       cache,
		offsets:     offsets,
		logger:      shared.NewLogger(nil),
		now:         time.Now,
		userLock:    defaultUserLock,
		lockTimeout: defaultLockTimeout,
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.hub == nil {
		e.hub = NewHub(0)
	}
	return e
}

// Subscribe returns a subscription to engine events.
func (e *Engine) Subscribe() *Subscription {
	return e.hub.Subscribe()
}

// Unsubscribe cancels the subscription with id.
func (e *Engine) Unsubscribe(id string) {
	e.hub.Unsubscribe(id)
}

// Close cancels pending lyric lookups and waits for them to finish.
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
}

// UpdateTrack records a playback observation and reports whether it was a track change.
//
// A change resets lyrics and scroll state, loads the stored correction and starts an asynchronous lyric lookup.
// An observation of the current track refreshes its metadata, playing state and, outside the user-lock window,
// its progress.
func (e *Engine) UpdateTrack(ctx context.Context, track *models.TrackSnapshot) (bool, error) {
	if track == nil {
		return false, fmt.Errorf("%w: nil track", shared.ErrInvalidArgument)
	}
	t := *track
	key := t.Key()

	// Read corrections before locking; the offset store has its own lock.
	corr := e.offsets.GlobalCorrection(key)
	anchors := e.offsets.Anchors(key)

	if err := e.lock(ctx); err != nil {
		return false, err
	}

	if e.track.SameTrack(&t) {
		if e.now().Before(e.lockUntil) {
			t.ProgressMS = e.progress
		}
		e.track = &t
		e.paused = !t.IsPlaying
		e.progress = t.ProgressMS
		index := e.computeIndex()
		changed := index != e.index
		e.index = index
		inForce := e.correctionAt(e.progress)
		e.mu.Unlock()

		if changed {
			e.hub.Publish(models.Event{Kind: models.EventLineChanged, Index: index, Correction: inForce})
		}
		return false, nil
	}

	e.gen++
	gen := e.gen
	e.track = &t
	e.lyrics = nil
	e.index = -1
	e.scrolled = false
	e.paused = !t.IsPlaying
	e.progress = t.ProgressMS
	e.corr = corr
	e.anchors = anchors
	e.lockUntil = time.Time{}
	e.searching = true
	inForce := e.correctionAt(t.ProgressMS)
	e.mu.Unlock()

	e.logger.Info("track changed", "artist", t.Artist, "title", t.Title, "correction", inForce)
	e.hub.Publish(models.Event{Kind: models.EventTrackChanged, Track: &t, Index: -1, Correction: inForce})

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.loadLyrics(gen, t.Artist, t.Title)
	}()
	return true, nil
}

// UpdateProgress moves the active line for a new playback position.
//
// Updates inside the user-lock window are ignored. Returns the active index after the update.
func (e *Engine) UpdateProgress(ctx context.Context, progress int64) (int, error) {
	if err := e.lock(ctx); err != nil {
		return -1, err
	}

	if e.now().Before(e.lockUntil) {
		index := e.index
		e.mu.Unlock()
		return index, nil
	}

	e.progress = progress
	if e.track != nil {
		e.track.ProgressMS = progress
	}
	index := e.computeIndex()
	changed := index != e.index
	e.index = index
	corr := e.correctionAt(e.progress)
	e.mu.Unlock()

	if changed {
		e.hub.Publish(models.Event{Kind: models.EventLineChanged, Index: index, Correction: corr})
	}
	return index, nil
}

// AdjustOffset adds delta to the correction in force at the current position, persists it and returns the new
// value.
//
// Without an applicable anchor the global correction moves. When an anchor governs the current position, the
// adjusted value is written as an anchor at that position so it takes effect there.
//
// The active line is recomputed immediately from the last known progress, then automatic progress updates are
// ignored for the user-lock window. A persistence failure is logged; the new correction stays in effect.
func (e *Engine) AdjustOffset(ctx context.Context, delta int64) (int64, error) {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	if err := e.lock(ctx); err != nil {
		return 0, err
	}
	if e.track == nil {
		e.mu.Unlock()
		return 0, shared.ErrNoCurrentTrack
	}

	at := max(0, e.progress)
	corr := e.correctionAt(at) + delta
	anchored := e.anchorApplies(at)
	if anchored {
		rec := models.TrackOffsetRecord{Anchors: append([]models.OffsetAnchor{}, e.anchors...)}
		rec.SetAnchor(at, corr)
		e.anchors = rec.Anchors
	} else {
		e.corr = corr
	}
	e.lockUntil = e.now().Add(e.userLock)
	e.index = e.computeIndex()
	index, key := e.index, e.track.Key()
	e.mu.Unlock()

	var err error
	if anchored {
		err = e.offsets.SetAnchor(ctx, key, at, corr)
	} else {
		err = e.offsets.SetGlobalCorrection(ctx, key, corr)
	}
	if err != nil {
		e.logger.Warn("failed to persist correction", "track", key, "correction", corr, "anchored", anchored, "error", err)
	}

	e.hub.Publish(models.Event{Kind: models.EventOffset, Index: index, Correction: corr})
	return corr, nil
}

// ResetOffset zeroes the current track's correction and drops its anchors. No user-lock window is opened.
func (e *Engine) ResetOffset(ctx context.Context) error {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	if err := e.lock(ctx); err != nil {
		return err
	}
	if e.track == nil {
		e.mu.Unlock()
		return shared.ErrNoCurrentTrack
	}

	e.corr = 0
	e.anchors = nil
	e.index = e.computeIndex()
	index, key := e.index, e.track.Key()
	e.mu.Unlock()

	if err := e.offsets.ResetTrack(ctx, key); err != nil {
		e.logger.Warn("failed to persist offset reset", "track", key, "error", err)
	}

	e.hub.Publish(models.Event{Kind: models.EventOffset, Index: index})
	return nil
}

// Snapshot recomputes the active line from the last known progress and returns the current state.
//
// The returned lyrics are shared with the engine and must not be modified.
func (e *Engine) Snapshot(ctx context.Context) (models.SyncSnapshot, error) {
	if err := e.lock(ctx); err != nil {
		return models.SyncSnapshot{}, err
	}
	defer e.mu.Unlock()

	e.index = e.computeIndex()

	snap := models.SyncSnapshot{
		Lyrics:       e.lyrics,
		ActiveIndex:  e.index,
		Correction:   e.correctionAt(e.progress),
		Paused:       e.paused,
		UserScrolled: e.scrolled,
		Searching:    e.searching,
	}
	if e.track != nil {
		t := *e.track
		snap.Track = &t
	}
	return snap, nil
}

// CurrentTrack returns a copy of the current track, or nil.
func (e *Engine) CurrentTrack(ctx context.Context) (*models.TrackSnapshot, error) {
	if err := e.rlock(ctx); err != nil {
		return nil, err
	}
	defer e.mu.RUnlock()

	if e.track == nil {
		return nil, nil
	}
	t := *e.track
	return &t, nil
}

// SetUserScrolled records whether the user has scrolled away from the active line.
func (e *Engine) SetUserScrolled(ctx context.Context, scrolled bool) error {
	if err := e.lock(ctx); err != nil {
		return err
	}
	e.scrolled = scrolled
	e.mu.Unlock()
	return nil
}

// FetchLyrics resolves lyrics for artist and title, cache first.
//
// When the pair is the current track and its lyrics are still missing, the result is installed and announced.
func (e *Engine) FetchLyrics(ctx context.Context, artist, title string) (*models.LyricTimeline, error) {
	t, err := e.lookup(ctx, artist, title)
	if err != nil {
		return nil, err
	}

	if err := e.lock(ctx); err != nil {
		return t, nil
	}
	install := e.track != nil && e.lyrics == nil && e.track.Key() == models.TrackKey(artist, title)
	var ev models.Event
	if install {
		e.lyrics = t
		e.searching = false
		e.index = e.computeIndex()
		ev = models.Event{Kind: models.EventLyricsFound, Track: e.trackCopy(), Lyrics: t, Index: e.index, Correction: e.correctionAt(e.progress)}
	}
	e.mu.Unlock()

	if install {
		e.hub.Publish(ev)
	}
	return t.Clone(), nil
}

// loadLyrics resolves lyrics for the track started at generation gen and installs them if it is still current.
func (e *Engine) loadLyrics(gen uint64, artist, title string) {
	t, err := e.lookup(e.ctx, artist, title)

	// The commit has no caller to report contention to, so it waits for the lock.
	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		e.logger.Debug("discarding lyrics for previous track", "artist", artist, "title", title)
		return
	}
	e.searching = false
	if err == nil {
		e.lyrics = t
		e.index = e.computeIndex()
	}
	ev := models.Event{Kind: models.EventLyricsFound, Track: e.trackCopy(), Lyrics: t, Index: e.index, Correction: e.correctionAt(e.progress)}
	e.mu.Unlock()

	switch {
	case err == nil:
		e.logger.Info("lyrics found", "artist", artist, "title", title, "lines", len(t.Lines), "quality", t.Quality)
	case errors.Is(err, shared.ErrLyricsNotFound):
		e.logger.Info("no lyrics found", "artist", artist, "title", title)
		ev.Kind = models.EventLyricsMissing
	case errors.Is(err, context.Canceled):
		return
	default:
		e.logger.Warn("lyrics lookup failed", "artist", artist, "title", title, "error", err)
		ev.Kind = models.EventLyricsMissing
	}
	e.hub.Publish(ev)
}

// lookup checks the cache, then the resolver, storing resolved timelines in the cache.
func (e *Engine) lookup(ctx context.Context, artist, title string) (*models.LyricTimeline, error) {
	if e.cache != nil {
		t, ok, err := e.cache.GetLyrics(ctx, artist, title)
		if err != nil {
			e.logger.Warn("lyrics cache read failed", "artist", artist, "title", title, "error", err)
		} else if ok {
			e.logger.Debug("lyrics cache hit", "artist", artist, "title", title)
			return t, nil
		}
	}

	t, err := e.resolver.Resolve(ctx, artist, title)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if err := e.cache.StoreLyrics(ctx, artist, title, t); err != nil {
			e.logger.Warn("lyrics cache write failed", "artist", artist, "title", title, "error", err)
		}
	}
	return t, nil
}

// computeIndex returns the active line for the stored progress. Callers hold mu.
func (e *Engine) computeIndex() int {
	if e.lyrics == nil {
		return -1
	}
	adjusted := max(0, e.progress+e.correctionAt(e.progress))
	return e.lyrics.IndexAt(adjusted)
}

// correctionAt returns the correction in force at position ms. Callers hold mu.
func (e *Engine) correctionAt(ms int64) int64 {
	rec := models.TrackOffsetRecord{Anchors: e.anchors, GlobalCorrection: e.corr}
	return rec.CorrectionAt(ms)
}

// anchorApplies reports whether an anchor governs position ms. Callers hold mu.
func (e *Engine) anchorApplies(ms int64) bool {
	return len(e.anchors) > 0 && e.anchors[0].Timestamp <= ms
}

func (e *Engine) trackCopy() *models.TrackSnapshot {
	if e.track == nil {
		return nil
	}
	t := *e.track
	return &t
}

// lock acquires mu exclusively, giving up after the lock timeout or when ctx ends.
func (e *Engine) lock(ctx context.Context) error {
	return e.acquire(ctx, e.mu.TryLock)
}

func (e *Engine) rlock(ctx context.Context) error {
	return e.acquire(ctx, e.mu.TryRLock)
}

func (e *Engine) acquire(ctx context.Context, try func() bool) error {
	if try() {
		return nil
	}

	deadline := time.NewTimer(e.lockTimeout)
	defer deadline.Stop()
	retry := time.NewTicker(lockRetryInterval)
	defer retry.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", shared.ErrLockContention, ctx.Err())
		case <-deadline.C:
			return fmt.Errorf("%w: waited %s", shared.ErrLockContention, e.lockTimeout)
		case <-retry.C:
			if try() {
				return nil
			}
		}
	}
}
