package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up       key.Binding
	down     key.Binding
	follow   key.Binding
	later    key.Binding
	earlier  key.Binding
	laterBig key.Binding
	earlyBig key.Binding
	reset    key.Binding
	retry    key.Binding
	history  key.Binding
	enter    key.Binding
	back     key.Binding
	quit     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "scroll up")),
		down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "scroll down")),
		follow:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "follow")),
		later:    key.NewBinding(key.WithKeys("right", "+", "="), key.WithHelp("→/+", "+100ms")),
		earlier:  key.NewBinding(key.WithKeys("left", "-"), key.WithHelp("←/-", "-100ms")),
		laterBig: key.NewBinding(key.WithKeys("shift+right", "]"), key.WithHelp("⇧→/]", "+500ms")),
		earlyBig: key.NewBinding(key.WithKeys("shift+left", "["), key.WithHelp("⇧←/[", "-500ms")),
		reset:    key.NewBinding(key.WithKeys("0", "r"), key.WithHelp("0/r", "reset offset")),
		retry:    key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "retry lyrics")),
		history:  key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "history")),
		enter:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		back:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.later, k.earlier, k.reset, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.follow},
		{k.later, k.earlier, k.laterBig, k.earlyBig, k.reset},
		{k.retry, k.history, k.quit},
	}
}
