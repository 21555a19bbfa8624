package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/workdesk/internal/api"
	"github.com/nhle/workdesk/internal/keys"
	"github.com/nhle/workdesk/internal/model"
	"github.com/nhle/workdesk/internal/theme"
)

// ConfigMode represents the current state of the settings view.
type ConfigMode int

const (
	ModeView       ConfigMode = iota // Show current settings
	ModeForm                         // Editing
	ModeTesting                      // Probing the API
	ModeTestResult                   // Probe outcome
)

// probeTimeout bounds the connection test.
const probeTimeout = 5 * time.Second

// ConfigDoneMsg signals the settings view should close.
type ConfigDoneMsg struct{}

// SavedMsg is sent after the configuration file was written.
type SavedMsg struct {
	Config model.AppConfig
}

// probeResultMsg carries the result of a connection test.
type probeResultMsg struct {
	url string
	err error
}

// savedInternalMsg is sent after the file write.
type savedInternalMsg struct {
	cfg model.AppConfig
	err error
}

// formValues holds the fields huh binds to. It lives on the heap so the
// bindings survive copies of Model.
type formValues struct {
	baseURL        string
	realtimeURL    string
	minWorkHours   string
	reconcileEvery string
	useKeyring     bool
	logLevel       string
}

// Model is the settings view. It edits the configuration file; most
// changes take effect on the next start.
type Model struct {
	mode    ConfigMode
	path    string
	cfg     model.AppConfig
	form    *huh.Form
	values  *formValues
	spinner spinner.Model

	probeURL string
	probeErr error

	// statusMsg is transient feedback shown under the settings.
	statusMsg string

	keys          *keys.KeyMap
	width, height int
}

// New creates a settings view for the file at path.
func New(path string, cfg model.AppConfig, k *keys.KeyMap, width, height int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorBlue)

	return Model{
		mode:    ModeView,
		path:    path,
		cfg:     cfg,
		values:  &formValues{},
		spinner: sp,
		keys:    k,
		width:   width,
		height:  height,
	}
}

// Init resets the view to the settings summary.
func (m *Model) Init() tea.Cmd {
	m.mode = ModeView
	m.statusMsg = ""
	return nil
}

// Update handles messages and dispatches based on current mode.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case savedInternalMsg:
		m.mode = ModeView
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("Error saving settings: %v", msg.err)
			return m, nil
		}
		m.cfg = msg.cfg
		m.statusMsg = "Settings saved. Restart to apply connection changes."
		saved := msg.cfg
		return m, func() tea.Msg { return SavedMsg{Config: saved} }

	case probeResultMsg:
		m.mode = ModeTestResult
		m.probeURL = msg.url
		m.probeErr = msg.err
		return m, nil

	case spinner.TickMsg:
		if m.mode == ModeTesting {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	if m.mode == ModeForm {
		return m.updateForm(msg)
	}
	return m, nil
}

// handleKeyMsg processes key messages based on the current mode.
func (m Model) handleKeyMsg(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch m.mode {
	case ModeView:
		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg { return ConfigDoneMsg{} }
		case msg.String() == "e":
			m.statusMsg = ""
			m.loadValues()
			m.form = m.buildForm()
			m.mode = ModeForm
			return m, m.form.Init()
		case msg.String() == "enter":
			m.mode = ModeTesting
			return m, tea.Batch(m.spinner.Tick, probe(m.cfg.API.BaseURL))
		}
		return m, nil

	case ModeForm:
		return m.updateForm(msg)

	case ModeTesting:
		if key.Matches(msg, m.keys.Back) {
			m.mode = ModeView
		}
		return m, nil

	case ModeTestResult:
		switch msg.String() {
		case "enter", "esc":
			m.mode = ModeView
		case "r":
			m.mode = ModeTesting
			return m, tea.Batch(m.spinner.Tick, probe(m.cfg.API.BaseURL))
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) loadValues() {
	*m.values = formValues{
		baseURL:        m.cfg.API.BaseURL,
		realtimeURL:    m.cfg.Realtime.URL,
		minWorkHours:   strconv.FormatFloat(m.cfg.Attendance.MinWorkHours, 'f', -1, 64),
		reconcileEvery: strconv.Itoa(m.cfg.Notifications.ReconcileIntervalSec),
		useKeyring:     m.cfg.Storage.UseKeyring,
		logLevel:       m.cfg.Log.Level,
	}
	if m.values.logLevel == "" {
		m.values.logLevel = "info"
	}
}

func (m Model) buildForm() *huh.Form {
	v := m.values
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("API base URL").
				Description("REST API root (e.g., https://portal.example.com/api)").
				Value(&v.baseURL).
				Validate(validateURL("http", "https")),
			huh.NewInput().
				Title("Realtime URL").
				Description("WebSocket endpoint; leave empty to derive it from the API URL").
				Value(&v.realtimeURL).
				Validate(optional(validateURL("ws", "wss"))),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Minimum work hours").
				Description("Time after check-in before checkout is allowed").
				Value(&v.minWorkHours).
				Validate(validatePositiveFloat),
			huh.NewInput().
				Title("Unread refresh interval (seconds)").
				Description("0 disables periodic refresh; live updates still arrive").
				Value(&v.reconcileEvery).
				Validate(validateNonNegativeInt),
			huh.NewConfirm().
				Title("Keep the refresh token in the system keyring?").
				Value(&v.useKeyring),
			huh.NewSelect[string]().
				Title("Log level").
				Options(huh.NewOptions("debug", "info", "warn", "error")...).
				Value(&v.logLevel),
		),
	).WithWidth(m.formWidth())
}

func (m Model) updateForm(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		cfg, err := m.applyValues()
		if err != nil {
			m.mode = ModeView
			m.statusMsg = err.Error()
			return m, nil
		}
		m.mode = ModeView
		return m, m.save(cfg)
	case huh.StateAborted:
		m.mode = ModeView
		return m, nil
	}

	return m, cmd
}

// applyValues merges the form into a copy of the current configuration.
func (m Model) applyValues() (model.AppConfig, error) {
	cfg := m.cfg
	v := m.values

	hours, err := strconv.ParseFloat(strings.TrimSpace(v.minWorkHours), 64)
	if err != nil {
		return cfg, fmt.Errorf("invalid minimum work hours: %w", err)
	}
	every, err := strconv.Atoi(strings.TrimSpace(v.reconcileEvery))
	if err != nil {
		return cfg, fmt.Errorf("invalid refresh interval: %w", err)
	}

	cfg.API.BaseURL = strings.TrimRight(strings.TrimSpace(v.baseURL), "/")
	cfg.Realtime.URL = strings.TrimSpace(v.realtimeURL)
	cfg.Attendance.MinWorkHours = hours
	cfg.Notifications.ReconcileIntervalSec = every
	cfg.Storage.UseKeyring = v.useKeyring
	cfg.Log.Level = v.logLevel
	return cfg, nil
}

func (m Model) save(cfg model.AppConfig) tea.Cmd {
	path := m.path
	return func() tea.Msg {
		return savedInternalMsg{cfg: cfg, err: model.SaveConfig(path, &cfg)}
	}
}

// probe checks that the API answers at all. Any HTTP response, including
// an error status, counts as reachable.
func probe(baseURL string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		defer cancel()

		client := api.NewClient(baseURL, api.StaticToken(""), probeTimeout)
		err := client.Get(ctx, "/health", nil)

		var statusErr *api.StatusError
		if errors.As(err, &statusErr) || api.IsAuthError(err) {
			err = nil
		}
		return probeResultMsg{url: baseURL, err: err}
	}
}

// View renders the settings view.
func (m Model) View() string {
	var body string
	switch m.mode {
	case ModeForm:
		if m.form != nil {
			body = m.form.View()
		}
	case ModeTesting:
		body = m.spinner.View() + " Testing connection to " + m.cfg.API.BaseURL + "..."
	case ModeTestResult:
		if m.probeErr != nil {
			body = lipgloss.NewStyle().Foreground(theme.ColorRed).
				Render(fmt.Sprintf("✗ %s is not reachable\n  %v", m.probeURL, m.probeErr)) +
				"\n\n" + theme.HelpStyle.Render("r retry | enter back")
		} else {
			body = lipgloss.NewStyle().Foreground(theme.ColorGreen).
				Render(fmt.Sprintf("✓ %s is reachable", m.probeURL)) +
				"\n\n" + theme.HelpStyle.Render("enter back")
		}
	default:
		body = m.renderSummary()
	}

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, theme.TitleStyle.Render("Settings"), body))
}

func (m Model) renderSummary() string {
	realtime := m.cfg.Realtime.URL
	if realtime == "" {
		if derived, err := m.cfg.RealtimeURL(); err == nil {
			realtime = derived + theme.HelpStyle.Render(" (derived)")
		}
	}
	reconcile := "off"
	if m.cfg.Notifications.ReconcileIntervalSec > 0 {
		reconcile = fmt.Sprintf("every %ds", m.cfg.Notifications.ReconcileIntervalSec)
	}

	rows := [][2]string{
		{"API", m.cfg.API.BaseURL},
		{"Realtime", realtime},
		{"Min work", fmt.Sprintf("%gh", m.cfg.Attendance.MinWorkHours)},
		{"Refresh", reconcile},
		{"Keyring", strconv.FormatBool(m.cfg.Storage.UseKeyring)},
		{"State file", m.cfg.Storage.Path},
		{"Log", fmt.Sprintf("%s (%s)", m.cfg.Log.Path, m.cfg.Log.Level)},
		{"Config", m.path},
	}

	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "%-12s %s\n", r[0], r[1])
	}
	if m.statusMsg != "" {
		b.WriteString("\n" + m.statusMsg + "\n")
	}
	b.WriteString("\n" + theme.HelpStyle.Render("e edit | enter test connection | esc back"))
	return b.String()
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// formWidth returns the width for huh forms, capped at 80 columns.
func (m Model) formWidth() int {
	w := m.width - 4
	if w > 80 {
		w = 80
	}
	if w < 40 {
		w = 40
	}
	return w
}

func validateURL(schemes ...string) func(string) error {
	return func(s string) error {
		u, err := url.Parse(strings.TrimSpace(s))
		if err != nil || u.Host == "" {
			return fmt.Errorf("must be an absolute URL")
		}
		for _, scheme := range schemes {
			if u.Scheme == scheme {
				return nil
			}
		}
		return fmt.Errorf("scheme must be one of %s", strings.Join(schemes, ", "))
	}
}

func optional(validate func(string) error) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return nil
		}
		return validate(s)
	}
}

func validatePositiveFloat(s string) error {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f <= 0 {
		return fmt.Errorf("must be a positive number")
	}
	return nil
}

func validateNonNegativeInt(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return fmt.Errorf("must be a whole number of seconds")
	}
	return nil
}
