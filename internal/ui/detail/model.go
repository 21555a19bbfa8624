package detail

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/workdesk/internal/keys"
	"github.com/nhle/workdesk/internal/model"
	"github.com/nhle/workdesk/internal/theme"
	"github.com/nhle/workdesk/internal/ui"
)

// DeleteMsg asks the parent to delete the displayed notification.
type DeleteMsg struct {
	ID string
}

// Model shows a single notification in a scrollable pane.
type Model struct {
	notification *model.Notification
	viewport     viewport.Model
	keys         *keys.KeyMap
	width        int
	height       int
}

// New creates a detail view.
func New(k *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     k,
		width:    width,
		height:   height,
	}
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && m.notification != nil {
		n := *m.notification
		switch {
		case key.Matches(msg, m.keys.Select):
			if n.Link == "" {
				return m, nil
			}
			return m, func() tea.Msg { return ui.NavigateMsg{Path: n.Link} }

		case key.Matches(msg, m.keys.Delete):
			return m, func() tea.Msg { return DeleteMsg{ID: n.ID} }
		}
	}

	// j/k, pgup/pgdn scroll
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m Model) View() string {
	if m.notification == nil {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No notification selected")
	}
	return m.viewport.View()
}

// Notification returns the displayed notification, or nil.
func (m Model) Notification() *model.Notification {
	return m.notification
}

// renderContent builds the full content string for the viewport.
func (m Model) renderContent() string {
	n := m.notification
	if n == nil {
		return ""
	}

	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, titleStyle.Render(n.Title))

	category := theme.NotificationCategory(n.Type)
	badge := theme.NotificationStyle(n.Type).Render(theme.CategoryBadge(category))
	state := theme.DimmedStyle.Render("read")
	if !n.IsRead {
		state = lipgloss.NewStyle().Foreground(theme.ColorBlue).Render("unread")
	}
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top, badge, "  ", state), "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	row := func(label, value string) string {
		return fmt.Sprintf("%s %s", metaStyle.Render(fmt.Sprintf("%-9s", label+":")), valStyle.Render(value))
	}

	if n.Type != "" {
		sections = append(sections, row("Type", string(n.Type)))
	}
	if !n.CreatedAt.IsZero() {
		sections = append(sections, row("Received", n.CreatedAt.Local().Format("2006-01-02 15:04")))
	}
	if n.Link != "" {
		sections = append(sections, row("Opens", n.Link))
	}

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(min(m.width-4, 80), 1)))
	sections = append(sections, "", separator, "")

	body := n.Message
	if body == "" {
		body = lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("No message")
	} else {
		body = lipgloss.NewStyle().Width(max(m.width-4, 20)).Render(body)
	}
	sections = append(sections, body)

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetNotification replaces the displayed notification and scrolls to the
// top.
func (m *Model) SetNotification(n model.Notification) {
	m.notification = &n
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoTop()
}

// Clear forgets the displayed notification.
func (m *Model) Clear() {
	m.notification = nil
	m.viewport.SetContent("")
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
	if m.notification != nil {
		m.viewport.SetContent(m.renderContent())
	}
}
