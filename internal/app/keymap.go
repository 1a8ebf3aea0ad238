package app

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the dashboard keybindings.
type KeyMap struct {
	Screen key.Binding
	Motion key.Binding
	Add    key.Binding
	Remove key.Binding
	Up     key.Binding
	Down   key.Binding
	Top    key.Binding
	End    key.Binding
	Help   key.Binding
	Quit   key.Binding
}

// DefaultKeyMap returns the default keybindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Screen: key.NewBinding(
			key.WithKeys("o", "O"),
			key.WithHelp("o", "toggle screen"),
		),
		Motion: key.NewBinding(
			key.WithKeys("m", "M"),
			key.WithHelp("m", "trigger motion"),
		),
		Add: key.NewBinding(
			key.WithKeys("n", "N"),
			key.WithHelp("n", "add session"),
		),
		Remove: key.NewBinding(
			key.WithKeys("x", "X"),
			key.WithHelp("x", "remove newest session"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("k/↑", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("j/↓", "down"),
		),
		Top: key.NewBinding(
			key.WithKeys("home"),
			key.WithHelp("home", "first device"),
		),
		End: key.NewBinding(
			key.WithKeys("end"),
			key.WithHelp("end", "last device"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "Q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp returns the short help bindings.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Screen, k.Motion, k.Add, k.Remove, k.Help, k.Quit}
}

// FullHelp returns the full help bindings.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Screen, k.Motion},
		{k.Add, k.Remove},
		{k.Up, k.Down, k.Top, k.End},
		{k.Help, k.Quit},
	}
}
