// Package repositories implements SQLite persistence for the lyrics cache and the offset store.
//
// Key Implementations:
//   - [LyricsRepository] : resolved timelines stored as snappy-compressed JSON, keyed by [shared.CacheKey]
//   - [LyricsCache] : bounded in-memory LRU with TTL in front of [LyricsRepository]
//   - [OffsetRepository] : the full offset record set, replaced atomically on every save
//
// Read failures are reported to the caller, which treats them as cache misses; the in-memory layers stay
// authoritative.
package repositories
