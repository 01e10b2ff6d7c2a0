package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the global keybindings for the application.
type KeyMap struct {
	// Navigation
	Down key.Binding
	Up   key.Binding

	// Selection
	Select key.Binding

	// Back / Quit
	Back key.Binding
	Quit key.Binding

	// Help toggle
	Help key.Binding

	// Manual refresh
	Refresh key.Binding

	// View switching
	ViewDashboard key.Binding
	ViewTodos     key.Binding
	ViewStudyHall key.Binding
	ViewSettings  key.Binding

	// Timer controls (global; work from every view)
	TimerToggle key.Binding
	TimerReset  key.Binding
	TimerMode   key.Binding

	// Todo actions
	NewTodo     key.Binding
	ToggleDone  key.Binding
	Rename      key.Binding
	Delete      key.Binding
	AttachImage key.Binding

	// List actions
	NewList key.Binding
	Invite  key.Binding
	Leave   key.Binding
}

// DefaultKeyMap returns the default set of keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "down"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "up"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "select"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "refresh"),
		),
		ViewDashboard: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "dashboard"),
		),
		ViewTodos: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "todos"),
		),
		ViewStudyHall: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "study hall"),
		),
		ViewSettings: key.NewBinding(
			key.WithKeys("4"),
			key.WithHelp("4", "settings"),
		),
		TimerToggle: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "start/pause timer"),
		),
		TimerReset: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reset timer"),
		),
		TimerMode: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "cycle timer mode"),
		),
		NewTodo: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "new todo"),
		),
		ToggleDone: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "toggle done"),
		),
		Rename: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "rename"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "delete"),
		),
		AttachImage: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "attach image"),
		),
		NewList: key.NewBinding(
			key.WithKeys("N"),
			key.WithHelp("N", "new list"),
		),
		Invite: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "invite member"),
		),
		Leave: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "leave/delete list"),
		),
	}
}

// ShortHelp returns the most essential keybindings for the compact help view.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.Up, k.Down, k.Select, k.Back,
		k.TimerToggle, k.Quit, k.Help,
	}
}

// FullHelp returns all keybindings grouped by category for the expanded
// help view.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Select, k.Back, k.Quit},
		{k.ViewDashboard, k.ViewTodos, k.ViewStudyHall, k.ViewSettings},
		{k.TimerToggle, k.TimerReset, k.TimerMode, k.Refresh},
		{k.NewTodo, k.ToggleDone, k.Rename, k.Delete, k.AttachImage},
		{k.NewList, k.Invite, k.Leave, k.Help},
	}
}
