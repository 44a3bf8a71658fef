package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/lyrx/internal/models"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgSnapshot MsgKind = iota
	MsgEvent
	MsgOffset
	MsgTick
	MsgHistory
	MsgPreview
	MsgNotice
)

type snapshotResult struct {
	snap models.SyncSnapshot
	err  error
}

type eventResult struct {
	event models.Event
	ok    bool
}

type offsetResult struct {
	correction int64
	reset      bool
	err        error
}

type historyResult struct {
	tracks []*models.TrackSnapshot
	err    error
}

type previewResult struct {
	track  *models.TrackSnapshot
	lyrics *models.LyricTimeline
	err    error
}

// snapshotMsg is the constructor for [MsgSnapshot]
func snapshotMsg(snap models.SyncSnapshot, err error) Msg {
	return Msg{kind: MsgSnapshot, data: snapshotResult{snap, err}}
}

// eventMsg is the constructor for [MsgEvent]. ok is false once the subscription is closed.
func eventMsg(ev models.Event, ok bool) Msg {
	return Msg{kind: MsgEvent, data: eventResult{ev, ok}}
}

// offsetMsg is the constructor for [MsgOffset]
func offsetMsg(correction int64, reset bool, err error) Msg {
	return Msg{kind: MsgOffset, data: offsetResult{correction, reset, err}}
}

// tickMsg is the constructor for [MsgTick]
func tickMsg() Msg {
	return Msg{kind: MsgTick}
}

// historyMsg is the constructor for [MsgHistory]
func historyMsg(tracks []*models.TrackSnapshot, err error) Msg {
	return Msg{kind: MsgHistory, data: historyResult{tracks, err}}
}

// previewMsg is the constructor for [MsgPreview]
func previewMsg(track *models.TrackSnapshot, lyrics *models.LyricTimeline, err error) Msg {
	return Msg{kind: MsgPreview, data: previewResult{track, lyrics, err}}
}

// noticeMsg is the constructor for [MsgNotice]; a nil error clears the status line.
func noticeMsg(err error) Msg {
	return Msg{kind: MsgNotice, data: err}
}
