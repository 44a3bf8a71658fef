package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/lyrx/internal/models"
)

var (
	_ list.Item = trackItem{}
)

// trackItem wraps [models.TrackSnapshot] to implement [list.Item].
type trackItem struct {
	track *models.TrackSnapshot
}

func (i trackItem) FilterValue() string { return i.track.Artist + " " + i.track.Title }
func (i trackItem) Title() string       { return i.track.Title }
func (i trackItem) Description() string {
	desc := i.track.Artist
	if i.track.Album != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.track.Album)
	}
	if i.track.DurationMS > 0 {
		desc = fmt.Sprintf("%s • %s", desc, clock(i.track.DurationMS))
	}
	return desc
}

func trackItems(tracks []*models.TrackSnapshot) []list.Item {
	items := make([]list.Item, 0, len(tracks))
	for _, t := range tracks {
		if t != nil {
			items = append(items, trackItem{track: t})
		}
	}
	return items
}
