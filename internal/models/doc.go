// Package models defines the data shared by the playback client, the lyrics resolver, the offset store and the
// sync engine.
//
//   - [TrackSnapshot] : what the playback service reports as playing, with progress
//   - [LyricLine] and [LyricTimeline] : resolved lyrics as half-open [start, end) intervals in milliseconds
//   - [OffsetAnchor] and [TrackOffsetRecord] : per-track timing corrections
//   - [SyncSnapshot] : the externally visible engine state
//
// Track identity for offsets and the lyrics cache is derived from artist and title with [TrackKey], not from the
// playback service's opaque id, so corrections follow a song across re-releases and devices.
package models
