// Package ui implements an interactive terminal lyrics display using bubbletea's Elm architecture.
//
// The TUI has three views:
//  1. [LyricsView] : Follow the current track with the active line highlighted
//  2. [HistoryView] : Browse recently played tracks
//  3. [PreviewView] : Read the lyrics of a track picked from history
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Engine notifications arrive through a subscription and trigger a snapshot refresh; a ticker keeps the active line
// moving between notifications.
//
// Offset keys adjust the current track's correction (arrows ±100ms, shift+arrows ±500ms, 0 to reset). Scrolling with
// j/k pins the view until esc returns it to the active line.
package ui
