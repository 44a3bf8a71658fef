package models

import (
	"sort"
	"time"
)

// OffsetAnchor overrides the global correction for positions at or after Timestamp.
type OffsetAnchor struct {
	Timestamp  int64 `json:"timestamp" yaml:"timestamp"`
	Correction int64 `json:"correction" yaml:"correction"`
}

// TrackOffsetRecord holds every correction for one track. Anchors are kept sorted by Timestamp with no duplicates.
type TrackOffsetRecord struct {
	TrackID          string         `json:"track_id" yaml:"track_id"`
	Anchors          []OffsetAnchor `json:"anchors" yaml:"anchors"`
	GlobalCorrection int64          `json:"global_correction" yaml:"global_correction"`
	LastModified     time.Time      `json:"last_modified" yaml:"last_modified"`
}

// NewTrackOffsetRecord returns an empty record for trackID.
func NewTrackOffsetRecord(trackID string) *TrackOffsetRecord {
	return &TrackOffsetRecord{TrackID: trackID, Anchors: []OffsetAnchor{}}
}

// CorrectionAt returns the correction of the latest anchor at or before timestamp, or the global correction when
// no anchor applies.
func (r *TrackOffsetRecord) CorrectionAt(timestamp int64) int64 {
	// first anchor strictly after timestamp; the one before it is the applicable one
	i := sort.Search(len(r.Anchors), func(i int) bool { return r.Anchors[i].Timestamp > timestamp })
	if i == 0 {
		return r.GlobalCorrection
	}
	return r.Anchors[i-1].Correction
}

// SetAnchor inserts or replaces the anchor at timestamp.
func (r *TrackOffsetRecord) SetAnchor(timestamp, correction int64) {
	for i := range r.Anchors {
		if r.Anchors[i].Timestamp == timestamp {
			r.Anchors[i].Correction = correction
			return
		}
	}
	r.Anchors = append(r.Anchors, OffsetAnchor{Timestamp: timestamp, Correction: correction})
	r.Normalize()
}

// RemoveAnchor drops the anchor at timestamp and reports whether one existed.
func (r *TrackOffsetRecord) RemoveAnchor(timestamp int64) bool {
	for i := range r.Anchors {
		if r.Anchors[i].Timestamp == timestamp {
			r.Anchors = append(r.Anchors[:i], r.Anchors[i+1:]...)
			return true
		}
	}
	return false
}

// Normalize sorts anchors and drops duplicate timestamps, keeping the last occurrence.
func (r *TrackOffsetRecord) Normalize() {
	sort.SliceStable(r.Anchors, func(i, j int) bool { return r.Anchors[i].Timestamp < r.Anchors[j].Timestamp })

	out := r.Anchors[:0]
	for _, a := range r.Anchors {
		if n := len(out); n > 0 && out[n-1].Timestamp == a.Timestamp {
			out[n-1] = a
			continue
		}
		out = append(out, a)
	}
	r.Anchors = out
}

// Clone returns a deep copy.
func (r *TrackOffsetRecord) Clone() *TrackOffsetRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Anchors = append([]OffsetAnchor{}, r.Anchors...)
	return &c
}
