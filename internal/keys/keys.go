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

	// Command palette
	Command key.Binding

	// Help toggle
	Help key.Binding

	// Manual refresh
	Refresh key.Binding

	// Views
	Dashboard     key.Binding
	Notifications key.Binding
	Attendance    key.Binding

	// Notification actions
	Details     key.Binding
	MarkRead    key.Binding
	MarkAllRead key.Binding
	Delete      key.Binding
	ClearRead   key.Binding

	// Attendance actions
	CheckIn  key.Binding
	CheckOut key.Binding

	// Session and settings
	Logout   key.Binding
	Settings key.Binding
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
			key.WithHelp("enter", "open"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
		Command: key.NewBinding(
			key.WithKeys(":"),
			key.WithHelp(":", "go to route"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Dashboard: key.NewBinding(
			key.WithKeys("g"),
			key.WithHelp("g", "dashboard"),
		),
		Notifications: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "notifications"),
		),
		Attendance: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "attendance"),
		),
		Details: key.NewBinding(
			key.WithKeys("v"),
			key.WithHelp("v", "details"),
		),
		MarkRead: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "mark read"),
		),
		MarkAllRead: key.NewBinding(
			key.WithKeys("M"),
			key.WithHelp("M", "mark all read"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "delete"),
		),
		ClearRead: key.NewBinding(
			key.WithKeys("C"),
			key.WithHelp("C", "clear read"),
		),
		CheckIn: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "check in"),
		),
		CheckOut: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "check out"),
		),
		Logout: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "log out"),
		),
		Settings: key.NewBinding(
			key.WithKeys(","),
			key.WithHelp(",", "settings"),
		),
	}
}

// ShortHelp returns the most essential keybindings for the compact help view.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.Up, k.Down, k.Select, k.Back,
		k.Quit, k.Help, k.Notifications,
	}
}

// FullHelp returns all keybindings grouped by category for the expanded
// help view.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Select, k.Back, k.Quit},
		{k.Dashboard, k.Notifications, k.Attendance, k.Command, k.Help},
		{k.Details, k.MarkRead, k.MarkAllRead, k.Delete, k.ClearRead, k.Refresh},
		{k.CheckIn, k.CheckOut, k.Logout, k.Settings},
	}
}
