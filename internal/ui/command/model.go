package command

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/workdesk/internal/theme"
)

// CommandMsg is emitted when the user submits a route or command.
type CommandMsg string

// CancelMsg is emitted when the palette is dismissed without input.
type CancelMsg struct{}

// Model is the route palette: it accepts a route path such as
// /manager/teams or a short command such as "logout".
type Model struct {
	input  textinput.Model
	width  int
	height int
}

// New creates a new route palette model.
func New(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "/route or command..."
	ti.Prompt = ": "
	ti.Focus()
	ti.Width = width - 6

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			cmd := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if cmd != "" {
				return m, func() tea.Msg {
					return CommandMsg(cmd)
				}
			}
			return m, func() tea.Msg { return CancelMsg{} }
		case "esc":
			m.input.Reset()
			return m, func() tea.Msg { return CancelMsg{} }
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the palette.
func (m Model) View() string {
	title := theme.TitleStyle.Render("Go to")
	input := m.input.View()
	hint := theme.HelpStyle.Render("routes: /employee /manager /admin /notifications ... | commands: refresh logout quit")

	content := lipgloss.JoinVertical(lipgloss.Left, title, input, "", hint)

	return theme.PanelStyle.
		Width(max(m.width-4, 0)).
		Render(content)
}

// SetSize updates the palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	return m.input.Focus()
}
