package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/lyrx/internal/models"
	"github.com/desertthunder/lyrx/internal/shared"
	"github.com/desertthunder/lyrx/internal/tasks"
)

const (
	refreshInterval = 250 * time.Millisecond
	historyLimit    = 20
	smallStep       = 100
	largeStep       = 500
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	LyricsView ViewState = iota
	HistoryView
	PreviewView
)

// Engine is the sync engine surface the TUI drives.
type Engine interface {
	Snapshot(ctx context.Context) (models.SyncSnapshot, error)
	AdjustOffset(ctx context.Context, delta int64) (int64, error)
	ResetOffset(ctx context.Context) error
	SetUserScrolled(ctx context.Context, scrolled bool) error
	FetchLyrics(ctx context.Context, artist, title string) (*models.LyricTimeline, error)
	Subscribe() *tasks.Subscription
	Unsubscribe(id string)
}

// History lists recently played tracks.
type History interface {
	RecentTracks(ctx context.Context, limit int) ([]*models.TrackSnapshot, error)
}

// Model represents the TUI application state.
type Model struct {
	ctx     context.Context
	view    ViewState
	engine  Engine
	history History
	sub     *tasks.Subscription

	width  int
	height int

	snap     models.SyncSnapshot
	cursor   int
	scrolled bool
	status   error
	notice   string

	historyList  list.Model
	historyReady bool
	preview      *models.TrackSnapshot
	previewLyr   *models.LyricTimeline
	previewTop   int

	help help.Model
	keys keyMap
}

// NewModel creates a new TUI model. history may be nil, which disables the history view.
func NewModel(ctx context.Context, engine Engine, history History) *Model {
	return &Model{
		ctx:     ctx,
		view:    LyricsView,
		engine:  engine,
		history: history,
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Init subscribes to engine notifications and starts the refresh ticker.
func (m *Model) Init() tea.Cmd {
	m.sub = m.engine.Subscribe()
	return tea.Batch(m.refresh(), m.waitForEvent(), m.tick())
}

// Close releases the engine subscription.
func (m *Model) Close() {
	if m.sub != nil {
		m.engine.Unsubscribe(m.sub.ID)
		m.sub = nil
	}
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.historyReady {
			m.historyList.SetSize(msg.Width-4, msg.Height-6)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case LyricsView:
			return m.handleLyricsKeys(msg)
		case HistoryView:
			return m.handleHistoryKeys(msg)
		case PreviewView:
			return m.handlePreviewKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	if m.view == HistoryView {
		var cmd tea.Cmd
		m.historyList, cmd = m.historyList.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgSnapshot:
		res := msg.data.(snapshotResult)
		if res.err != nil {
			m.status = res.err
			return m, nil
		}
		m.applySnapshot(res.snap)
		return m, nil

	case MsgEvent:
		res := msg.data.(eventResult)
		if !res.ok {
			return m, nil
		}
		if res.event.Kind == models.EventTrackChanged {
			m.notice = ""
		}
		return m, tea.Batch(m.refresh(), m.waitForEvent())

	case MsgOffset:
		res := msg.data.(offsetResult)
		if res.err != nil {
			m.status = res.err
			return m, nil
		}
		m.status = nil
		if res.reset {
			m.notice = "offset reset"
		} else {
			m.notice = "offset " + formatOffset(res.correction)
		}
		return m, m.refresh()

	case MsgTick:
		return m, tea.Batch(m.refresh(), m.tick())

	case MsgHistory:
		res := msg.data.(historyResult)
		if res.err != nil {
			m.status = res.err
			m.view = LyricsView
			return m, nil
		}
		m.historyList = list.New(trackItems(res.tracks), list.NewDefaultDelegate(), 0, 0)
		m.historyList.Title = "Recently Played"
		m.historyList.SetSize(m.width-4, m.height-6)
		m.historyReady = true
		m.view = HistoryView
		return m, nil

	case MsgPreview:
		res := msg.data.(previewResult)
		m.preview = res.track
		m.previewLyr = res.lyrics
		m.previewTop = 0
		m.status = nil
		if res.err != nil && !errors.Is(res.err, shared.ErrLyricsNotFound) {
			m.status = res.err
		}
		m.view = PreviewView
		return m, nil

	case MsgNotice:
		m.status, _ = msg.data.(error)
		return m, nil
	}
	return m, nil
}

// applySnapshot installs a snapshot; the cursor follows the active line unless the user has scrolled away.
func (m *Model) applySnapshot(snap models.SyncSnapshot) {
	if !m.snap.Track.SameTrack(snap.Track) {
		m.scrolled = false
	}
	m.snap = snap
	m.status = nil
	if !m.scrolled {
		m.cursor = snap.ActiveIndex
	}
	m.clampCursor()
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case HistoryView:
		return m.renderHistory()
	case PreviewView:
		return m.renderPreview()
	default:
		return m.renderLyrics()
	}
}

func (m *Model) handleLyricsKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		m.Close()
		return m, tea.Quit
	case key.Matches(msg, m.keys.later):
		return m, m.adjust(smallStep)
	case key.Matches(msg, m.keys.earlier):
		return m, m.adjust(-smallStep)
	case key.Matches(msg, m.keys.laterBig):
		return m, m.adjust(largeStep)
	case key.Matches(msg, m.keys.earlyBig):
		return m, m.adjust(-largeStep)
	case key.Matches(msg, m.keys.reset):
		return m, m.resetOffset()
	case key.Matches(msg, m.keys.up):
		return m, m.scroll(-1)
	case key.Matches(msg, m.keys.down):
		return m, m.scroll(1)
	case key.Matches(msg, m.keys.follow):
		m.scrolled = false
		m.cursor = m.snap.ActiveIndex
		return m, m.setScrolled(false)
	case key.Matches(msg, m.keys.retry):
		return m, m.retryLyrics()
	case key.Matches(msg, m.keys.history):
		if m.history == nil {
			return m, nil
		}
		return m, m.fetchHistory()
	}
	return m, nil
}

func (m *Model) handleHistoryKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.historyList.FilterState() != list.Filtering {
		switch {
		case key.Matches(msg, m.keys.quit):
			m.Close()
			return m, tea.Quit
		case key.Matches(msg, m.keys.back):
			m.view = LyricsView
			return m, nil
		case key.Matches(msg, m.keys.enter):
			if item, ok := m.historyList.SelectedItem().(trackItem); ok {
				return m, m.fetchPreview(item.track)
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.historyList, cmd = m.historyList.Update(msg)
	return m, cmd
}

func (m *Model) handlePreviewKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		m.Close()
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = HistoryView
	case key.Matches(msg, m.keys.up):
		m.previewTop = max(m.previewTop-1, 0)
	case key.Matches(msg, m.keys.down):
		if m.previewLyr != nil && m.previewTop < len(m.previewLyr.Lines)-1 {
			m.previewTop++
		}
	}
	return m, nil
}

// scroll moves the cursor and marks the view as manually scrolled.
func (m *Model) scroll(delta int) tea.Cmd {
	if m.snap.Lyrics == nil || len(m.snap.Lyrics.Lines) == 0 {
		return nil
	}
	m.cursor += delta
	m.clampCursor()
	if m.scrolled {
		return nil
	}
	m.scrolled = true
	return m.setScrolled(true)
}

func (m *Model) clampCursor() {
	n := 0
	if m.snap.Lyrics != nil {
		n = len(m.snap.Lyrics.Lines)
	}
	m.cursor = min(max(m.cursor, 0), max(n-1, 0))
}

func (m *Model) refresh() tea.Cmd {
	return func() tea.Msg {
		snap, err := m.engine.Snapshot(m.ctx)
		return snapshotMsg(snap, err)
	}
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return tickMsg() })
}

func (m *Model) waitForEvent() tea.Cmd {
	sub := m.sub
	return func() tea.Msg {
		if sub == nil {
			return eventMsg(models.Event{}, false)
		}
		select {
		case ev, ok := <-sub.C():
			return eventMsg(ev, ok)
		case <-m.ctx.Done():
			return eventMsg(models.Event{}, false)
		}
	}
}

func (m *Model) adjust(delta int64) tea.Cmd {
	return func() tea.Msg {
		corr, err := m.engine.AdjustOffset(m.ctx, delta)
		return offsetMsg(corr, false, err)
	}
}

func (m *Model) resetOffset() tea.Cmd {
	return func() tea.Msg {
		return offsetMsg(0, true, m.engine.ResetOffset(m.ctx))
	}
}

func (m *Model) setScrolled(scrolled bool) tea.Cmd {
	return func() tea.Msg {
		return noticeMsg(m.engine.SetUserScrolled(m.ctx, scrolled))
	}
}

func (m *Model) retryLyrics() tea.Cmd {
	track := m.snap.Track
	if track == nil {
		return nil
	}
	return func() tea.Msg {
		if _, err := m.engine.FetchLyrics(m.ctx, track.Artist, track.Title); err != nil {
			return noticeMsg(err)
		}
		snap, err := m.engine.Snapshot(m.ctx)
		return snapshotMsg(snap, err)
	}
}

func (m *Model) fetchHistory() tea.Cmd {
	return func() tea.Msg {
		tracks, err := m.history.RecentTracks(m.ctx, historyLimit)
		return historyMsg(tracks, err)
	}
}

func (m *Model) fetchPreview(track *models.TrackSnapshot) tea.Cmd {
	return func() tea.Msg {
		lyrics, err := m.engine.FetchLyrics(m.ctx, track.Artist, track.Title)
		return previewMsg(track, lyrics, err)
	}
}

func (m *Model) renderLyrics() string {
	var b strings.Builder

	track := m.snap.Track
	if track == nil {
		b.WriteString(styles.title.Render("Nothing playing"))
		b.WriteString("\n")
		b.WriteString(styles.help.Render("Start playback on any device; lyrics appear here automatically."))
		b.WriteString("\n\n")
		b.WriteString(m.renderFooter())
		return b.String()
	}

	b.WriteString(styles.title.Render(fmt.Sprintf("%s - %s", track.Artist, track.Title)))
	b.WriteString("\n")

	switch {
	case m.snap.Searching:
		b.WriteString(styles.warn.Render("Searching for lyrics..."))
	case m.snap.Lyrics == nil:
		b.WriteString(styles.help.Render("No lyrics found"))
	case m.snap.Lyrics.IsInstrumental():
		b.WriteString(styles.active.Render("♪ Instrumental ♪"))
	default:
		b.WriteString(m.renderLines(m.snap.Lyrics.Lines, m.cursor, m.snap.ActiveIndex))
	}

	b.WriteString("\n\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

// renderLines draws a window of lines centered on focus, highlighting active.
func (m *Model) renderLines(lines []models.LyricLine, focus, active int) string {
	visible := max(m.height-8, 5)
	start := max(focus-visible/2, 0)
	end := min(start+visible, len(lines))
	start = max(end-visible, 0)

	out := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		text := lines[i].Text
		if text == "" {
			text = "♪"
		}
		switch {
		case i == active:
			out = append(out, styles.active.Render("> "+text))
		case m.scrolled && i == focus:
			out = append(out, styles.cursor.Render("  "+text))
		default:
			out = append(out, styles.line.Render("  "+text))
		}
	}
	return strings.Join(out, "\n")
}

func (m *Model) renderFooter() string {
	parts := []string{}
	if track := m.snap.Track; track != nil {
		state := "playing"
		if m.snap.Paused {
			state = "paused"
		}
		parts = append(parts, fmt.Sprintf("%s %s / %s", state, clock(track.ProgressMS), clock(track.DurationMS)))
		parts = append(parts, "offset "+formatOffset(m.snap.Correction))
	}
	if m.scrolled {
		parts = append(parts, "scrolled (esc to follow)")
	}
	if m.snap.Lyrics != nil && m.snap.Lyrics.Source != "" {
		parts = append(parts, fmt.Sprintf("%s (%s)", m.snap.Lyrics.Source, m.snap.Lyrics.Quality))
	}

	footer := styles.help.Render(strings.Join(parts, " | "))
	if m.status != nil {
		footer += "\n" + styles.err.Render(fmt.Sprintf("Error: %v", m.status))
	} else if m.notice != "" {
		footer += "\n" + styles.ok.Render(m.notice)
	}

	helpKeys := []key.Binding{m.keys.later, m.keys.earlier, m.keys.laterBig, m.keys.earlyBig, m.keys.reset, m.keys.quit}
	if m.history != nil {
		helpKeys = append(helpKeys[:len(helpKeys)-1], m.keys.history, m.keys.quit)
	}
	return fmt.Sprintf("%s\n%s", footer, m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderHistory() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.back, m.keys.quit}
	return fmt.Sprintf("%s\n\n%s", m.historyList.View(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderPreview() string {
	var b strings.Builder
	if m.preview != nil {
		b.WriteString(styles.title.Render(fmt.Sprintf("%s - %s", m.preview.Artist, m.preview.Title)))
		b.WriteString("\n")
	}

	switch {
	case m.status != nil:
		b.WriteString(styles.err.Render(fmt.Sprintf("Error: %v", m.status)))
	case m.previewLyr == nil:
		b.WriteString(styles.help.Render("No lyrics found"))
	case m.previewLyr.IsInstrumental():
		b.WriteString(styles.active.Render("♪ Instrumental ♪"))
	default:
		visible := max(m.height-8, 5)
		lines := m.previewLyr.Lines[m.previewTop:min(m.previewTop+visible, len(m.previewLyr.Lines))]
		out := make([]string, len(lines))
		for i, l := range lines {
			out[i] = styles.line.Render(fmt.Sprintf("[%s] %s", clock(l.Start), l.Text))
		}
		b.WriteString(strings.Join(out, "\n"))
	}

	helpKeys := []key.Binding{m.keys.up, m.keys.down, m.keys.back, m.keys.quit}
	b.WriteString("\n\n")
	b.WriteString(m.help.ShortHelpView(helpKeys))
	return b.String()
}

// clock formats milliseconds as m:ss.
func clock(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	s := ms / 1000
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

// formatOffset renders a correction with an explicit sign.
func formatOffset(ms int64) string {
	return fmt.Sprintf("%+dms", ms)
}
