package login

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/workdesk/internal/api"
	"github.com/nhle/workdesk/internal/theme"
)

// SubmitMsg is dispatched when the user submits credentials.
type SubmitMsg struct {
	Credentials api.Credentials
}

// CancelMsg is dispatched when the user aborts the form.
type CancelMsg struct{}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	email    string
	password string
}

// Model is the Bubble Tea model for the sign-in form.
type Model struct {
	form    *huh.Form
	fb      *formBindings
	spinner spinner.Model
	pending bool
	err     string
	width   int
	height  int
}

// New creates a new login form model.
func New(width, height int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorBlue)

	return Model{
		fb:      &formBindings{},
		spinner: sp,
		width:   width,
		height:  height,
	}
}

// Start resets the form. The last email is kept for convenience.
func (m *Model) Start() tea.Cmd {
	m.fb.password = ""
	m.pending = false
	m.form = m.buildForm()
	return m.form.Init()
}

// SetPending shows the spinner while the login request is in flight.
func (m *Model) SetPending() tea.Cmd {
	m.pending = true
	m.err = ""
	return m.spinner.Tick
}

// SetError shows a failed attempt and reopens the form.
func (m *Model) SetError(msg string) tea.Cmd {
	m.err = msg
	return m.Start()
}

// Update handles messages for the login form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.pending {
		if _, ok := msg.(spinner.TickMsg); ok {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		creds := api.Credentials{
			Email:    strings.TrimSpace(m.fb.email),
			Password: m.fb.password,
		}
		return m, func() tea.Msg { return SubmitMsg{Credentials: creds} }
	}
	if m.form.State == huh.StateAborted {
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the login form.
func (m Model) View() string {
	title := theme.TitleStyle.Render("Sign in to Workdesk")

	var body string
	switch {
	case m.pending:
		body = m.spinner.View() + " Signing in..."
	case m.form != nil:
		body = m.form.View()
	}

	parts := []string{title}
	if m.err != "" {
		parts = append(parts, lipgloss.NewStyle().Foreground(theme.ColorRed).Render(m.err))
	}
	parts = append(parts, body)

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Placeholder("you@company.com").
				Value(&m.fb.email).
				Validate(validateEmail),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.password).
				Validate(validateRequired("Password")),
		),
	).WithWidth(m.formWidth())
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 80 {
		w = 80
	}
	return w
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateEmail(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("Email is required")
	}
	if _, err := mail.ParseAddress(s); err != nil {
		return fmt.Errorf("invalid email address")
	}
	return nil
}
