package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultTailMS is the duration given to the final line of a timeline.
	DefaultTailMS int64 = 5000
	// MinLineMS is the minimum duration of any line.
	MinLineMS int64 = 2000
	// PlainLineMS is the fixed duration of lines derived from untimed text.
	PlainLineMS int64 = 4000
)

// Quality describes how a timeline was obtained.
type Quality int

const (
	QualityHigh         Quality = iota // time-synced
	QualityLow                         // derived from plain text
	QualityInstrumental                // no vocals, empty timeline
)

func (q Quality) String() string {
	switch q {
	case QualityHigh:
		return "high"
	case QualityLow:
		return "low"
	case QualityInstrumental:
		return "instrumental"
	default:
		return "unknown"
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (q Quality) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (q *Quality) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "high":
		*q = QualityHigh
	case "low":
		*q = QualityLow
	case "instrumental":
		*q = QualityInstrumental
	default:
		return fmt.Errorf("unknown lyrics quality %q", string(b))
	}
	return nil
}

// LyricLine is one timed block of lyric text valid over [Start, End).
type LyricLine struct {
	Start int64  `json:"start"`
	End   int64  `json:"end"`
	Text  string `json:"text"`
}

// Contains reports whether position falls inside the line's interval.
func (l LyricLine) Contains(position int64) bool {
	return position >= l.Start && position < l.End
}

// LyricTimeline is an ordered sequence of lines with provenance.
type LyricTimeline struct {
	Lines      []LyricLine `json:"lines"`
	Source     string      `json:"source"`
	Quality    Quality     `json:"quality"`
	Confidence float64     `json:"confidence"`
	ResolvedAt time.Time   `json:"resolved_at"`
}

// IsInstrumental reports whether the timeline represents a track without vocals.
func (t *LyricTimeline) IsInstrumental() bool {
	return t != nil && t.Quality == QualityInstrumental
}

// Expired reports whether the timeline is older than ttl at now. A non-positive ttl never expires.
func (t *LyricTimeline) Expired(ttl time.Duration, now time.Time) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(t.ResolvedAt) > ttl
}

// IndexAt resolves the line for position.
//
// Returns -1 for an empty timeline, 0 when position precedes the first line, the first line containing position,
// and otherwise the last line.
func (t *LyricTimeline) IndexAt(position int64) int {
	if t == nil || len(t.Lines) == 0 {
		return -1
	}
	if position < t.Lines[0].Start {
		return 0
	}
	for i, line := range t.Lines {
		if line.Contains(position) {
			return i
		}
	}
	return len(t.Lines) - 1
}

// Clone returns a deep copy.
func (t *LyricTimeline) Clone() *LyricTimeline {
	if t == nil {
		return nil
	}
	c := *t
	c.Lines = append([]LyricLine(nil), t.Lines...)
	return &c
}

// TimedText is a parsed (timestamp, text) pair before intervals are assigned.
type TimedText struct {
	At   int64
	Text string
}

// BuildLines converts timestamps sorted ascending into lines: each line ends where the next begins, the last line
// gets [DefaultTailMS], and every line lasts at least [MinLineMS].
func BuildLines(entries []TimedText) []LyricLine {
	lines := make([]LyricLine, 0, len(entries))
	for i, e := range entries {
		end := e.At + DefaultTailMS
		if i+1 < len(entries) {
			end = entries[i+1].At
		}
		end = max(end, e.At+MinLineMS)
		lines = append(lines, LyricLine{Start: e.At, End: end, Text: e.Text})
	}
	return lines
}

// LyricsQuery is a lyrics index search. Either Artist/Title or Text is set.
type LyricsQuery struct {
	Artist string
	Title  string
	Text   string
}

// LyricsCandidate is one ranked result from the lyrics index.
type LyricsCandidate struct {
	ID           int64   `json:"id"`
	TrackName    string  `json:"trackName"`
	ArtistName   string  `json:"artistName"`
	AlbumName    string  `json:"albumName"`
	Duration     float64 `json:"duration"`
	Instrumental bool    `json:"instrumental"`
	SyncedLyrics string  `json:"syncedLyrics"`
	PlainLyrics  string  `json:"plainLyrics"`
}
