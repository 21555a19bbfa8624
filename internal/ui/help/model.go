package help

import (
	"strings"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/workdesk/internal/gate"
	"github.com/nhle/workdesk/internal/keys"
	"github.com/nhle/workdesk/internal/model"
	"github.com/nhle/workdesk/internal/theme"
)

// Model is the help overlay view.
type Model struct {
	keys   *keys.KeyMap
	help   help.Model
	role   model.Role
	width  int
	height int
}

// New creates a new help view model.
func New(keys *keys.KeyMap, width, height int) Model {
	h := help.New()
	h.Width = width
	return Model{
		keys:   keys,
		help:   h,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the help view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// SetRole selects which routes are listed. An empty role lists none.
func (m *Model) SetRole(role model.Role) {
	m.role = role
}

// View renders the help overlay.
func (m Model) View() string {
	title := theme.TitleStyle.Render("Keyboard Shortcuts")

	m.help.Width = m.width - 4
	m.help.ShowAll = true
	sections := []string{title, m.help.View(m.keys)}

	if routes := m.routes(); routes != "" {
		sections = append(sections, "", theme.TitleStyle.Render("Routes"), routes)
	}

	content := lipgloss.JoinVertical(lipgloss.Left, sections...)

	return theme.PanelStyle.
		Width(max(m.width-4, 0)).
		Height(max(m.height-4, 0)).
		Render(content)
}

func (m Model) routes() string {
	if !m.role.Valid() {
		return ""
	}
	var b strings.Builder
	for _, r := range gate.RoutesFor(m.role) {
		b.WriteString(theme.HelpStyle.Render(r.Path))
		b.WriteString("  ")
		b.WriteString(r.Title)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 4
}
