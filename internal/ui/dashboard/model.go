package dashboard

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/workdesk/internal/gate"
	"github.com/nhle/workdesk/internal/keys"
	"github.com/nhle/workdesk/internal/model"
	"github.com/nhle/workdesk/internal/theme"
	"github.com/nhle/workdesk/internal/ui"
)

// routeItem is a destination on the dashboard.
type routeItem struct {
	route gate.Route
}

func (i routeItem) FilterValue() string { return i.route.Title }

type routeDelegate struct{}

func (routeDelegate) Height() int { return 1 }

func (routeDelegate) Spacing() int { return 0 }

func (routeDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (routeDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(routeItem)
	if !ok {
		return
	}
	line := fmt.Sprintf("%-16s %s", it.route.Title, theme.HelpStyle.Render(it.route.Path))
	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}
	fmt.Fprint(w, line)
}

// Model is the role dashboard. It shows who is signed in, a short summary
// and the destinations the role may open.
type Model struct {
	list     list.Model
	keys     *keys.KeyMap
	identity *model.Identity
	path     string
	unread   int
	width    int
	height   int
}

// New creates a dashboard view.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, routeDelegate{}, width, height-6)
	l.Title = "Go to"
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	return Model{list: l, keys: k, width: width, height: height}
}

// SetIdentity rebuilds the destinations for identity.
func (m *Model) SetIdentity(identity *model.Identity) {
	m.identity = identity
	var items []list.Item
	if identity != nil {
		for _, r := range gate.RoutesFor(identity.Role) {
			if r.Path == gate.LandingRoute(identity.Role) {
				continue
			}
			items = append(items, routeItem{route: r})
		}
	}
	m.list.SetItems(items)
}

// SetPath records which route the dashboard is rendering. Section
// routes without their own view render here with a placeholder.
func (m *Model) SetPath(path string) {
	m.path = path
}

// SetUnread updates the unread summary.
func (m *Model) SetUnread(n int) {
	m.unread = n
}

// Update handles messages for the dashboard.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, m.keys.Select) {
		if it, ok := m.list.SelectedItem().(routeItem); ok {
			path := it.route.Path
			return m, func() tea.Msg { return ui.NavigateMsg{Path: path} }
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the dashboard.
func (m Model) View() string {
	if m.identity == nil {
		return ""
	}

	title := "Dashboard"
	if r, ok := gate.Lookup(m.path); ok && m.path != gate.LandingRoute(m.identity.Role) {
		title = r.Title
	}

	name := m.identity.Username
	if name == "" {
		name = m.identity.Email
	}

	var summary strings.Builder
	fmt.Fprintf(&summary, "Signed in as %s %s\n", name, theme.RoleStyle(m.identity.Role).Render(string(m.identity.Role)))
	switch m.unread {
	case 0:
		summary.WriteString(theme.HelpStyle.Render("No unread notifications"))
	case 1:
		summary.WriteString("1 unread notification")
	default:
		fmt.Fprintf(&summary, "%d unread notifications", m.unread)
	}

	sections := []string{theme.TitleStyle.Render(title), summary.String()}
	if title != "Dashboard" {
		sections = append(sections, "", theme.HelpStyle.Render("This section is managed in the web console."))
	}
	sections = append(sections, "", m.list.View())

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

// SetSize updates the dashboard dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width-4, max(height-8, 3))
}
