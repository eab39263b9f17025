package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Open   key.Binding
	Reload key.Binding
	Copy   key.Binding
	Quit   key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Open: key.NewBinding(
			key.WithKeys("enter", "o"),
			key.WithHelp("enter/o", "open"),
		),
		Reload: key.NewBinding(
			key.WithKeys("r", "ctrl+r", "f5"),
			key.WithHelp("r", "reload"),
		),
		Copy: key.NewBinding(
			key.WithKeys("s", "ctrl+s"),
			key.WithHelp("s", "copy branch"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

func (k keyMap) help() []key.Binding {
	return []key.Binding{k.Open, k.Copy, k.Reload, k.Quit}
}
