package attendance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/workdesk/internal/api"
	checkout "github.com/nhle/workdesk/internal/attendance"
	"github.com/nhle/workdesk/internal/keys"
	"github.com/nhle/workdesk/internal/model"
	"github.com/nhle/workdesk/internal/theme"
	"github.com/nhle/workdesk/internal/ui"
)

const requestTimeout = 15 * time.Second

// API is the attendance subset of the REST client.
type API interface {
	TodayAttendance(ctx context.Context) (*model.AttendanceDay, error)
	AttendanceHistory(ctx context.Context) ([]model.AttendanceDay, error)
	CheckIn(ctx context.Context) (*model.AttendanceDay, error)
	CheckOut(ctx context.Context) (*model.AttendanceDay, error)
}

// LoadedMsg carries today's record and the history.
type LoadedMsg struct {
	Today   *model.AttendanceDay
	History []model.AttendanceDay
	Err     error
}

// ActionDoneMsg reports a finished check-in or check-out.
type ActionDoneMsg struct {
	Action string
	Err    error
}

// TimerMsg carries a checkout eligibility update.
type TimerMsg struct {
	Status checkout.Status
}

// WaitForTimer returns a command that delivers the next eligibility
// update. Re-issue it after handling each TimerMsg.
func WaitForTimer(t *checkout.Timer) tea.Cmd {
	return func() tea.Msg {
		return TimerMsg{Status: <-t.Updates()}
	}
}

// Model is the attendance view: today's record, the live checkout
// countdown, and recent history.
type Model struct {
	api     API
	timer   *checkout.Timer
	keys    *keys.KeyMap
	today   *model.AttendanceDay
	status  checkout.Status
	history table.Model
	spinner spinner.Model
	pending string
	loaded  bool
	width   int
	height  int
}

// New creates an attendance view.
func New(client API, timer *checkout.Timer, k *keys.KeyMap, width, height int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorBlue)

	t := table.New(
		table.WithColumns(historyColumns(width)),
		table.WithHeight(max(height-12, 3)),
	)

	return Model{
		api:     client,
		timer:   timer,
		keys:    k,
		status:  timer.Status(),
		history: t,
		spinner: sp,
		width:   width,
		height:  height,
	}
}

// Load fetches today's record and history.
func (m *Model) Load() tea.Cmd {
	m.pending = "Loading"
	client := m.api
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		today, err := client.TodayAttendance(ctx)
		if err != nil {
			return LoadedMsg{Err: err}
		}
		history, err := client.AttendanceHistory(ctx)
		if err != nil {
			return LoadedMsg{Today: today, Err: err}
		}
		return LoadedMsg{Today: today, History: history}
	})
}

// Leave stops the countdown while the view is not shown.
func (m *Model) Leave() {
	m.timer.Stop()
}

// Update handles messages for the attendance view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LoadedMsg:
		m.pending = ""
		if msg.Err != nil && msg.Today == nil {
			return m, notice(ui.Failure(api.UserMessage(msg.Err, "Failed to load attendance")))
		}
		m.loaded = true
		m.today = msg.Today
		m.timer.Track(msg.Today)
		m.status = m.timer.Status()
		m.history.SetRows(historyRows(msg.History))
		if msg.Err != nil {
			return m, notice(ui.Failure(api.UserMessage(msg.Err, "Failed to load attendance history")))
		}
		return m, nil

	case ActionDoneMsg:
		m.pending = ""
		if msg.Err != nil {
			return m, notice(ui.Failure(api.UserMessage(msg.Err, "Failed to "+msg.Action)))
		}
		return m, tea.Batch(notice(ui.Success(actionSuccess(msg.Action))), m.Load())

	case TimerMsg:
		m.status = msg.Status
		return m, nil

	case spinner.TickMsg:
		if m.pending == "" {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.pending != "" {
			return m, nil
		}
		switch {
		case key.Matches(msg, m.keys.CheckIn):
			if m.today != nil {
				return m, notice(ui.Failure("Already checked in today"))
			}
			return m, m.act("check-in", m.api.CheckIn)

		case key.Matches(msg, m.keys.CheckOut):
			if !m.today.Open() {
				return m, nil
			}
			if !m.status.CanCheckout {
				return m, notice(ui.Failure("Checkout available in " + m.status.Formatted()))
			}
			return m, m.act("check-out", m.api.CheckOut)

		case key.Matches(msg, m.keys.Refresh):
			return m, m.Load()
		}
	}

	var cmd tea.Cmd
	m.history, cmd = m.history.Update(msg)
	return m, cmd
}

func (m *Model) act(action string, call func(context.Context) (*model.AttendanceDay, error)) tea.Cmd {
	m.pending = strings.ToUpper(action[:1]) + action[1:]
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		_, err := call(ctx)
		return ActionDoneMsg{Action: action, Err: err}
	})
}

// View renders the attendance view.
func (m Model) View() string {
	sections := []string{theme.TitleStyle.Render("Today")}

	switch {
	case m.pending != "" && !m.loaded:
		sections = append(sections, m.spinner.View()+" "+m.pending+"...")
	default:
		sections = append(sections, m.renderToday())
		if m.pending != "" {
			sections = append(sections, m.spinner.View()+" "+m.pending+"...")
		}
	}

	sections = append(sections, "", theme.TitleStyle.Render("History"), m.history.View())

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m Model) renderToday() string {
	day := m.today
	if day == nil || day.CheckIn == nil {
		return theme.HelpStyle.Render("Not checked in yet. Press i to check in.")
	}

	lines := []string{
		fmt.Sprintf("Status     %s", theme.AttendanceStatusStyle(day.Status).Render(string(day.Status))),
		fmt.Sprintf("Check-in   %s", day.CheckIn.Local().Format("15:04:05")),
	}

	if day.CheckOut != nil {
		lines = append(lines, fmt.Sprintf("Check-out  %s", day.CheckOut.Local().Format("15:04:05")))
		if day.WorkHours != nil {
			lines = append(lines, fmt.Sprintf("Worked     %.2fh", *day.WorkHours))
		}
		return strings.Join(lines, "\n")
	}

	if m.status.CanCheckout {
		lines = append(lines, lipgloss.NewStyle().Foreground(theme.ColorGreen).Render("You can check out now. Press o."))
	} else {
		lines = append(lines, fmt.Sprintf(
			"Checkout   available in %s",
			lipgloss.NewStyle().Bold(true).Foreground(theme.ColorYellow).Render(m.status.Formatted()),
		))
	}
	return strings.Join(lines, "\n")
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.history.SetColumns(historyColumns(width))
	m.history.SetHeight(max(height-12, 3))
}

func historyColumns(width int) []table.Column {
	w := max((width-10)/5, 10)
	return []table.Column{
		{Title: "Date", Width: w},
		{Title: "Check-in", Width: w},
		{Title: "Check-out", Width: w},
		{Title: "Hours", Width: w},
		{Title: "Status", Width: w},
	}
}

func historyRows(days []model.AttendanceDay) []table.Row {
	rows := make([]table.Row, 0, len(days))
	for _, d := range days {
		rows = append(rows, table.Row{
			formatDate(d.Date, d.CheckIn),
			formatClock(d.CheckIn),
			formatClock(d.CheckOut),
			formatHours(d.WorkHours),
			string(d.Status),
		})
	}
	return rows
}

func formatDate(date, fallback *time.Time) string {
	switch {
	case date != nil:
		return date.Local().Format("2006-01-02")
	case fallback != nil:
		return fallback.Local().Format("2006-01-02")
	default:
		return "-"
	}
}

func formatClock(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("15:04")
}

func formatHours(h *float64) string {
	if h == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *h)
}

func actionSuccess(action string) string {
	if action == "check-in" {
		return "Checked in"
	}
	return "Checked out"
}

func notice(msg ui.NoticeMsg) tea.Cmd {
	return func() tea.Msg { return msg }
}
