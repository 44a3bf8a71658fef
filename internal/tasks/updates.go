package tasks

import (
	"fmt"

	"github.com/desertthunder/lyrx/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase, 0 when open-ended
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	PollPlayback Phase = iota
	TrackChanged
	NothingPlaying
	PollFault
	ResolveLyrics
	ExportLyrics
)

func (p Phase) String() string {
	switch p {
	case PollPlayback:
		return "poll_playback"
	case TrackChanged:
		return "track_changed"
	case NothingPlaying:
		return "nothing_playing"
	case PollFault:
		return "poll_fault"
	case ResolveLyrics:
		return "resolve_lyrics"
	case ExportLyrics:
		return "export_lyrics"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func pollUpdate(cycle int, tr *models.TrackSnapshot) ProgressUpdate {
	state := "paused"
	if tr.IsPlaying {
		state = "playing"
	}
	return ProgressUpdate{
		Phase:   PollPlayback,
		Step:    cycle,
		Message: fmt.Sprintf("%s - %s [%s %s]", tr.Artist, tr.Title, state, clock(tr.ProgressMS)),
		Data:    tr,
	}
}

func trackChangedUpdate(cycle int, tr *models.TrackSnapshot) ProgressUpdate {
	msg := fmt.Sprintf("Now playing: %s - %s", tr.Artist, tr.Title)
	if tr.FromHistory {
		msg = fmt.Sprintf("Last played: %s - %s", tr.Artist, tr.Title)
	}
	return ProgressUpdate{Phase: TrackChanged, Step: cycle, Message: msg, Data: tr}
}

func nothingPlayingUpdate(cycle int) ProgressUpdate {
	return ProgressUpdate{Phase: NothingPlaying, Step: cycle, Message: "Nothing playing"}
}

func pollFaultUpdate(cycle int, err error) ProgressUpdate {
	return ProgressUpdate{Phase: PollFault, Step: cycle, Message: fmt.Sprintf("Poll failed: %v", err), Data: err}
}

func resolvingUpdate(step, total int, tr *models.TrackSnapshot) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveLyrics,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Resolving: %s - %s...", step, total, tr.Artist, tr.Title),
	}
}

func exportCompletedUpdate(step, total int, name string, filesCount int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportLyrics,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d files)", step, total, name, filesCount),
	}
}

func exportFailedUpdate(step, total int, name string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportLyrics,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, name, err),
	}
}

// clock formats ms as m:ss.
func clock(ms int64) string {
	s := max(ms, 0) / 1000
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
