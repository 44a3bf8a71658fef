package models

// SyncSnapshot is the externally visible sync state.
type SyncSnapshot struct {
	Track        *TrackSnapshot `json:"track,omitempty"`
	Lyrics       *LyricTimeline `json:"lyrics,omitempty"`
	ActiveIndex  int            `json:"active_index"`
	Correction   int64          `json:"correction"`
	Paused       bool           `json:"paused"`
	UserScrolled bool           `json:"user_scrolled"`

	// Searching is set while lyrics for the current track are being resolved.
	Searching bool `json:"searching"`
}

// ActiveLine returns the line at ActiveIndex, if any.
func (s SyncSnapshot) ActiveLine() (LyricLine, bool) {
	if s.Lyrics == nil || s.ActiveIndex < 0 || s.ActiveIndex >= len(s.Lyrics.Lines) {
		return LyricLine{}, false
	}
	return s.Lyrics.Lines[s.ActiveIndex], true
}

// EventKind names a notification published by the sync engine.
type EventKind string

const (
	EventTrackChanged  EventKind = "track-changed"
	EventLyricsFound   EventKind = "lyrics-found"
	EventLyricsMissing EventKind = "lyrics-missing"
	EventLineChanged   EventKind = "line-changed"
	EventOffset        EventKind = "offset-changed"
)

// Event is a fire-and-forget notification.
type Event struct {
	Kind       EventKind      `json:"kind"`
	Track      *TrackSnapshot `json:"track,omitempty"`
	Lyrics     *LyricTimeline `json:"lyrics,omitempty"`
	Index      int            `json:"index"`
	Correction int64          `json:"correction"`
}
