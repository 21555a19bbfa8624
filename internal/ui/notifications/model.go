package notifications

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/workdesk/internal/keys"
	"github.com/nhle/workdesk/internal/model"
	"github.com/nhle/workdesk/internal/notification"
	"github.com/nhle/workdesk/internal/theme"
	"github.com/nhle/workdesk/internal/ui"
)

// requestTimeout bounds a single notification API call.
const requestTimeout = 15 * time.Second

// ChangedMsg is sent after a notification operation completes. Err is
// nil on success. Load marks a snapshot fetch, whose failures have no
// notice of their own.
type ChangedMsg struct {
	Err  error
	Load bool
}

// OpenDetailMsg asks the parent to show a single notification.
type OpenDetailMsg struct {
	Notification model.Notification
}

// Model is the notification list view. It renders the records held by a
// notification.Model and issues its operations as commands.
type Model struct {
	list    list.Model
	notes   *notification.Model
	keys    *keys.KeyMap
	loading bool
	width   int
	height  int
}

// New creates a notification list view.
func New(notes *notification.Model, k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height-2)
	l.Title = "Notifications"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	return Model{
		list:   l,
		notes:  notes,
		keys:   k,
		width:  width,
		height: height,
	}
}

// Open marks the surface visible and loads a fresh snapshot.
func (m *Model) Open() tea.Cmd {
	m.loading = true
	notes := m.notes
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return ChangedMsg{Err: notes.SetOpen(ctx, true), Load: true}
	}
}

// Close marks the surface hidden, dropping the materialized list.
func (m *Model) Close() {
	m.loading = false
	_ = m.notes.SetOpen(context.Background(), false)
	m.list.SetItems(nil)
}

// Refresh rebuilds the list from the model's current records, keeping the
// cursor where it was when possible.
func (m *Model) Refresh() tea.Cmd {
	m.loading = false
	records := m.notes.Records()
	items := make([]list.Item, len(records))
	for i, n := range records {
		items[i] = Item{Notification: n}
	}
	idx := m.list.Index()
	cmd := m.list.SetItems(items)
	if idx >= len(items) {
		idx = len(items) - 1
	}
	if idx >= 0 {
		m.list.Select(idx)
	}
	return cmd
}

// Update handles messages for the notification list.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		return m.handleKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	item, hasItem := m.list.SelectedItem().(Item)

	switch {
	case key.Matches(msg, m.keys.Select):
		if !hasItem {
			return m, nil
		}
		var cmds []tea.Cmd
		if !item.Notification.IsRead {
			cmds = append(cmds, m.run(func(ctx context.Context) error {
				return m.notes.MarkRead(ctx, item.Notification.ID)
			}))
		}
		if link := item.Notification.Link; link != "" {
			cmds = append(cmds, func() tea.Msg { return ui.NavigateMsg{Path: link} })
		}
		return m, tea.Batch(cmds...)

	case key.Matches(msg, m.keys.Details):
		if !hasItem {
			return m, nil
		}
		n := item.Notification
		cmds := []tea.Cmd{func() tea.Msg { return OpenDetailMsg{Notification: n} }}
		if !n.IsRead {
			cmds = append(cmds, m.run(func(ctx context.Context) error {
				return m.notes.MarkRead(ctx, n.ID)
			}))
		}
		return m, tea.Sequence(cmds...)

	case key.Matches(msg, m.keys.MarkRead):
		if !hasItem || item.Notification.IsRead {
			return m, nil
		}
		return m, m.run(func(ctx context.Context) error {
			return m.notes.MarkRead(ctx, item.Notification.ID)
		})

	case key.Matches(msg, m.keys.MarkAllRead):
		if !m.notes.HasUnread() && m.notes.UnreadCount() == 0 {
			return m, nil
		}
		return m, m.run(m.notes.MarkAllRead)

	case key.Matches(msg, m.keys.Delete):
		if !hasItem {
			return m, nil
		}
		return m, m.Delete(item.Notification.ID)

	case key.Matches(msg, m.keys.ClearRead):
		if !m.notes.HasRead() {
			return m, nil
		}
		return m, m.run(m.notes.ClearAllRead)

	case key.Matches(msg, m.keys.Refresh):
		m.loading = true
		notes := m.notes
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			return ChangedMsg{Err: notes.LoadSnapshot(ctx), Load: true}
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// Delete removes the notification with id.
func (m Model) Delete(id string) tea.Cmd {
	return m.run(func(ctx context.Context) error {
		return m.notes.DeleteOne(ctx, id)
	})
}

// run wraps a notification operation in a command reporting ChangedMsg.
func (m Model) run(op func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return ChangedMsg{Err: op(ctx)}
	}
}

// View renders the notification list.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		style := lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray)
		if m.loading {
			return style.Render("Loading notifications...")
		}
		return style.Render("No notifications")
	}
	return m.list.View()
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
}
