// Package tasks keeps the lyrics display in step with playback.
//
// # Engine
//
// [Engine] owns the sync state: the current track, its lyric timeline, the active line and the timing correction.
// Its operations map one to one onto the command surface:
//
//   - [Engine.UpdateTrack] : detect track changes, reset state, start an asynchronous lyric lookup
//   - [Engine.UpdateProgress] : move the active line, ignored during the user-lock window
//   - [Engine.AdjustOffset] / [Engine.ResetOffset] : change and persist the correction in force (global or anchor)
//   - [Engine.Snapshot] : recompute and return the visible state
//
// State is guarded by a reader/writer lock acquired with a bounded wait; operations that cannot get it in time fail
// with [shared.ErrLockContention]. Cache, resolver and offset store calls happen with the lock released.
//
// # Notifications
//
// The engine publishes [models.Event] values on a [Hub]. Delivery is best effort: a subscriber whose buffer is full
// misses events.
//
// # Polling
//
// [Poller] drives the engine from a [PlaybackSource] and reports each cycle as a [ProgressUpdate] on an optional
// channel. Updates use select with default to prevent blocking.
//
// # Bulk export
//
// [Engine.BulkExport] resolves and writes lyrics for many tracks with a rate-limited worker pool.
package tasks
