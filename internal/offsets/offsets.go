// package offsets owns per-track timing corrections.
//
// The in-memory record set is authoritative. Every mutation mirrors the full set to a [Backend]; a failed write is
// returned wrapped in [shared.ErrPersistence] but the mutation stays applied.
package offsets

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/lyrx/internal/models"
	"github.com/desertthunder/lyrx/internal/shared"
)

// Backend persists the full record set.
type Backend interface {
	LoadOffsetRecords(ctx context.Context) ([]*models.TrackOffsetRecord, error)
	SaveOffsetRecords(ctx context.Context, records []*models.TrackOffsetRecord) error
}

// Store maps track identities to correction records.
type Store struct {
	mu      sync.Mutex
	writeMu sync.Mutex // serializes mutate so mirrored sets land in order
	records map[string]*models.TrackOffsetRecord
	backend Backend
	logger  *log.Logger
	now     func() time.Time
}

// Option configures a [Store].
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock replaces the clock used for last-modified stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty store mirrored to backend, which may be nil for a memory-only store.
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		records: make(map[string]*models.TrackOffsetRecord),
		backend: backend,
		logger:  shared.NewLogger(nil),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory set with the backend's records.
func (s *Store) Load(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}

	records, err := s.backend.LoadOffsetRecords(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to load offsets: %w", shared.ErrPersistence, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*models.TrackOffsetRecord, len(records))
	for _, r := range records {
		r.Normalize()
		s.records[r.TrackID] = r
	}
	s.logger.Debug("loaded offset records", "count", len(records))
	return nil
}

// Correction returns the correction for trackID at timestamp: the most recent anchor at or before timestamp, then
// the record's global correction, then 0 when the track has no record.
func (s *Store) Correction(trackID string, timestamp int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[trackID]
	if !ok {
		return 0
	}
	return r.CorrectionAt(timestamp)
}

// GlobalCorrection returns the global correction for trackID, 0 when absent.
func (s *Store) GlobalCorrection(trackID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.records[trackID]; ok {
		return r.GlobalCorrection
	}
	return 0
}

// Anchors returns a copy of the anchors for trackID in ascending order.
func (s *Store) Anchors(trackID string) []models.OffsetAnchor {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[trackID]
	if !ok {
		return nil
	}
	return append([]models.OffsetAnchor(nil), r.Anchors...)
}

// Record returns a copy of the record for trackID.
func (s *Store) Record(trackID string) (*models.TrackOffsetRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[trackID]
	return r.Clone(), ok
}

// Records returns copies of every record sorted by track id.
func (s *Store) Records() []*models.TrackOffsetRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// SetGlobalCorrection sets the fallback correction for trackID.
func (s *Store) SetGlobalCorrection(ctx context.Context, trackID string, value int64) error {
	return s.mutate(ctx, func() {
		s.recordLocked(trackID).GlobalCorrection = value
	})
}

// SetAnchor inserts or replaces the anchor at timestamp.
func (s *Store) SetAnchor(ctx context.Context, trackID string, timestamp, value int64) error {
	if timestamp < 0 {
		return fmt.Errorf("%w: anchor timestamp must not be negative", shared.ErrInvalidArgument)
	}
	return s.mutate(ctx, func() {
		s.recordLocked(trackID).SetAnchor(timestamp, value)
	})
}

// RemoveAnchor drops the anchor at timestamp. Removing a missing anchor is not an error.
func (s *Store) RemoveAnchor(ctx context.Context, trackID string, timestamp int64) error {
	return s.mutate(ctx, func() {
		r, ok := s.records[trackID]
		if !ok {
			return
		}
		if r.RemoveAnchor(timestamp) {
			r.LastModified = s.now()
		}
	})
}

// ResetTrack drops the whole record for trackID.
func (s *Store) ResetTrack(ctx context.Context, trackID string) error {
	return s.mutate(ctx, func() {
		delete(s.records, trackID)
	})
}

// ClearAll drops every record.
func (s *Store) ClearAll(ctx context.Context) error {
	return s.mutate(ctx, func() {
		s.records = make(map[string]*models.TrackOffsetRecord)
	})
}

// Import merges records into the store, replacing any with the same track id.
func (s *Store) Import(ctx context.Context, records []*models.TrackOffsetRecord) error {
	for _, r := range records {
		if r == nil || r.TrackID == "" {
			return fmt.Errorf("%w: offset record without track id", shared.ErrInvalidInput)
		}
	}

	return s.mutate(ctx, func() {
		for _, r := range records {
			c := r.Clone()
			c.Normalize()
			if c.LastModified.IsZero() {
				c.LastModified = s.now()
			}
			s.records[c.TrackID] = c
		}
	})
}

// recordLocked returns the record for trackID, creating it, and stamps it as modified.
func (s *Store) recordLocked(trackID string) *models.TrackOffsetRecord {
	r, ok := s.records[trackID]
	if !ok {
		r = models.NewTrackOffsetRecord(trackID)
		s.records[trackID] = r
	}
	r.LastModified = s.now()
	return r
}

func (s *Store) snapshotLocked() []*models.TrackOffsetRecord {
	out := make([]*models.TrackOffsetRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrackID < out[j].TrackID })
	return out
}

// mutate applies fn under the lock, then mirrors a copy of the full set to the backend outside it.
func (s *Store) mutate(ctx context.Context, fn func()) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	fn()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if s.backend == nil {
		return nil
	}

	if err := s.backend.SaveOffsetRecords(ctx, snapshot); err != nil {
		s.logger.Warn("failed to persist offsets", "records", len(snapshot), "error", err)
		return fmt.Errorf("%w: %w", shared.ErrPersistence, err)
	}
	return nil
}
