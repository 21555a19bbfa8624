package app

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/workdesk/internal/api"
	"github.com/nhle/workdesk/internal/gate"
	"github.com/nhle/workdesk/internal/keys"
	"github.com/nhle/workdesk/internal/model"
	"github.com/nhle/workdesk/internal/realtime"
	"github.com/nhle/workdesk/internal/session"
	appsync "github.com/nhle/workdesk/internal/sync"
	"github.com/nhle/workdesk/internal/theme"
	"github.com/nhle/workdesk/internal/ui"
	attendanceview "github.com/nhle/workdesk/internal/ui/attendance"
	"github.com/nhle/workdesk/internal/ui/command"
	configview "github.com/nhle/workdesk/internal/ui/config"
	"github.com/nhle/workdesk/internal/ui/dashboard"
	"github.com/nhle/workdesk/internal/ui/detail"
	helpview "github.com/nhle/workdesk/internal/ui/help"
	"github.com/nhle/workdesk/internal/ui/login"
	"github.com/nhle/workdesk/internal/ui/notifications"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewLoading ViewState = iota
	ViewLogin
	ViewDashboard
	ViewNotifications
	ViewNotificationDetail
	ViewAttendance
	ViewHelp
	ViewCommand
	ViewSettings
	ViewNotFound
)

// Model is the root Bubble Tea model. It owns the layout, routes between
// views through the access gate and relays background events.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	rt           *Runtime
	keys         *keys.KeyMap

	loginView      login.Model
	dashboard      dashboard.Model
	notifView      notifications.Model
	detailView     detail.Model
	attendanceView attendanceview.Model
	helpView       helpview.Model
	commandView    command.Model
	settingsView   configview.Model

	// path is the route on screen; pendingPath waits for the session to
	// finish loading.
	path        string
	pendingPath string

	live      bool
	listening bool
	notice    *ui.NoticeMsg
	noticeSeq int
	ready     bool
}

// New creates the root model. startPath is opened once the session is
// known; an empty path opens the role's dashboard.
func New(rt *Runtime, startPath string) Model {
	k := keys.DefaultKeyMap()
	return Model{
		currentView:    ViewLoading,
		rt:             rt,
		keys:           k,
		loginView:      login.New(80, 24),
		dashboard:      dashboard.New(k, 80, 24),
		notifView:      notifications.New(rt.Notifications, k, 80, 24),
		detailView:     detail.New(k, 80, 24),
		attendanceView: attendanceview.New(rt.API, rt.Timer, k, 80, 24),
		helpView:       helpview.New(k, 80, 24),
		commandView:    command.New(80, 24),
		settingsView:   configview.New(rt.ConfigPath, *rt.Config, k, 80, 24),
		pendingPath:    startPath,
	}
}

// Init starts listening to the background services. The session was
// initialized by Open, so its first change is already queued.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForChange(m.rt.Changes()),
		waitForConnState(m.rt.ConnectionStates()),
		waitForPush(m.rt.Channel.Events()),
		waitForNotice(m.rt.Notifications.Notices()),
		attendanceview.WaitForTimer(m.rt.Timer),
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		contentWidth := m.layout.ContentWidth()
		contentHeight := m.layout.ContentHeight()
		m.loginView.SetSize(contentWidth, contentHeight)
		m.dashboard.SetSize(contentWidth, contentHeight)
		m.notifView.SetSize(contentWidth, contentHeight)
		m.detailView.SetSize(contentWidth, contentHeight)
		m.attendanceView.SetSize(contentWidth, contentHeight)
		m.helpView.SetSize(contentWidth, contentHeight)
		m.commandView.SetSize(contentWidth, contentHeight)
		m.settingsView.SetSize(contentWidth, contentHeight)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case sessionChangedMsg:
		cmd := m.handleSession(msg.change)
		return m, tea.Batch(cmd, waitForChange(m.rt.Changes()))

	case connStateMsg:
		m.live = msg.state == realtime.Connected
		return m, waitForConnState(m.rt.ConnectionStates())

	case pushMsg:
		var cmd tea.Cmd
		if msg.event.Notification != nil {
			m.rt.Notifications.ApplyEvent(*msg.event.Notification)
			if m.showingNotifications() {
				cmd = m.refreshNotifications()
			}
		}
		return m, tea.Batch(cmd, waitForPush(m.rt.Channel.Events()))

	case noticeMsg:
		cmd := m.showNotice(ui.NoticeMsg{Level: msg.notice.Level.String(), Text: msg.notice.Text})
		return m, tea.Batch(cmd, waitForNotice(m.rt.Notifications.Notices()))

	case ui.NoticeMsg:
		return m, m.showNotice(msg)

	case noticeExpiredMsg:
		if msg.seq == m.noticeSeq {
			m.notice = nil
		}
		return m, nil

	case ui.NavigateMsg:
		return m, m.navigate(msg.Path)

	case login.SubmitMsg:
		cmd := m.loginView.SetPending()
		return m, tea.Batch(cmd, m.login(msg.Credentials))

	case login.CancelMsg:
		return m, m.loginView.Start()

	case loginResultMsg:
		// On success the session change opens the dashboard.
		if msg.err != nil {
			return m, m.loginView.SetError(api.UserMessage(msg.err, "Login failed"))
		}
		return m, nil

	case logoutDoneMsg:
		if msg.expired {
			return m, m.showNotice(ui.Failure("Session expired, please sign in again"))
		}
		return m, nil

	case unreadLoadedMsg:
		if api.IsAuthError(msg.err) {
			return m, m.logout(true)
		}
		return m, nil

	case appsync.ReconcileResultMsg:
		if msg.AuthExpired {
			return m, tea.Batch(m.logout(true), m.rt.Poller.WaitForNextResult())
		}
		return m, m.rt.Poller.WaitForNextResult()

	case notifications.ChangedMsg:
		if api.IsAuthError(msg.Err) {
			return m, m.logout(true)
		}
		var cmds []tea.Cmd
		switch {
		case m.showingNotifications():
			cmds = append(cmds, m.refreshNotifications())
		case msg.Load:
			// The surface was left before its snapshot arrived.
			m.notifView.Close()
		}
		if msg.Err != nil && msg.Load {
			cmds = append(cmds, m.showNotice(ui.Failure(api.UserMessage(msg.Err, "Failed to load notifications"))))
		}
		return m, tea.Batch(cmds...)

	case notifications.OpenDetailMsg:
		m.detailView.SetNotification(msg.Notification)
		m.currentView = ViewNotificationDetail
		return m, nil

	case detail.DeleteMsg:
		m.closeDetail()
		return m, m.notifView.Delete(msg.ID)

	case attendanceview.TimerMsg:
		var cmd tea.Cmd
		m.attendanceView, cmd = m.attendanceView.Update(msg)
		return m, tea.Batch(cmd, attendanceview.WaitForTimer(m.rt.Timer))

	case attendanceview.LoadedMsg:
		if api.IsAuthError(msg.Err) {
			return m, m.logout(true)
		}
		if m.currentView != ViewAttendance {
			return m, nil
		}
		var cmd tea.Cmd
		m.attendanceView, cmd = m.attendanceView.Update(msg)
		return m, cmd

	case attendanceview.ActionDoneMsg:
		if api.IsAuthError(msg.Err) {
			return m, m.logout(true)
		}
		var cmd tea.Cmd
		m.attendanceView, cmd = m.attendanceView.Update(msg)
		return m, cmd

	case command.CommandMsg:
		m.currentView = m.previousView
		return m, m.executeCommand(string(msg))

	case command.CancelMsg:
		m.currentView = m.previousView
		return m, nil

	case configview.ConfigDoneMsg:
		m.currentView = m.previousView
		return m, nil

	case configview.SavedMsg:
		*m.rt.Config = msg.Config
		return m, m.showNotice(ui.Success("Settings saved"))

	case tea.KeyMsg:
		if cmd, handled := m.handleGlobalKey(msg); handled {
			return m, cmd
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// handleGlobalKey handles keys that work regardless of the active view.
// Text-entry views only see ctrl+c intercepted.
func (m *Model) handleGlobalKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	if msg.String() == "ctrl+c" {
		return m.quit(), true
	}
	switch m.currentView {
	case ViewLogin, ViewCommand, ViewSettings, ViewLoading:
		return nil, false
	}

	identity := m.rt.Session.Identity()

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit(), true

	case key.Matches(msg, m.keys.Help):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return nil, true
		}
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return nil, true

	case key.Matches(msg, m.keys.Command):
		m.previousView = m.currentView
		m.currentView = ViewCommand
		return m.commandView.Focus(), true

	case key.Matches(msg, m.keys.Settings):
		return m.openSettings(), true

	case key.Matches(msg, m.keys.Back):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return nil, true
		}
		if m.currentView == ViewNotificationDetail {
			m.closeDetail()
			return nil, true
		}
		if identity != nil && m.path != gate.LandingRoute(identity.Role) {
			return m.navigate(gate.LandingRoute(identity.Role)), true
		}

	case identity == nil:
		return nil, false

	case key.Matches(msg, m.keys.Dashboard):
		return m.navigate(gate.LandingRoute(identity.Role)), true

	case key.Matches(msg, m.keys.Notifications):
		return m.navigate(gate.RouteNotifications), true

	case key.Matches(msg, m.keys.Attendance):
		return m.navigate(gate.AttendanceRoute(identity.Role)), true

	case key.Matches(msg, m.keys.Logout):
		return m.logout(false), true
	}

	return nil, false
}

// handleSession refreshes identity-dependent views and routes after a
// session transition.
func (m *Model) handleSession(c session.Change) tea.Cmd {
	var identity *model.Identity
	if c.Session != nil {
		id := c.Session.Identity
		identity = &id
	}
	m.dashboard.SetIdentity(identity)
	if identity != nil {
		m.helpView.SetRole(identity.Role)
	} else {
		m.helpView.SetRole("")
	}

	var cmds []tea.Cmd
	switch c.Reason {
	case session.ReasonRestored:
		path := m.pendingPath
		m.pendingPath = ""
		cmds = append(cmds, m.navigate(path))
	case session.ReasonLogin:
		cmds = append(cmds, m.navigate(gate.LandingRoute(identity.Role)))
	case session.ReasonLogout:
		m.rt.Poller.Stop()
		cmds = append(cmds, m.navigate(gate.LoginRoute))
	case session.ReasonRemoteLogout:
		m.rt.Poller.Stop()
		cmds = append(cmds,
			m.navigate(gate.LoginRoute),
			m.showNotice(ui.NoticeMsg{Level: "info", Text: "Signed out in another window"}),
		)
	}

	if identity != nil {
		cmds = append(cmds, m.loadUnread())
		if cmd := m.rt.Poller.Start(); cmd != nil && !m.listening {
			m.listening = true
			cmds = append(cmds, cmd)
		}
	}
	return tea.Batch(cmds...)
}

// showingNotifications reports whether the list or one of its entries is
// on screen.
func (m Model) showingNotifications() bool {
	return m.currentView == ViewNotifications || m.currentView == ViewNotificationDetail
}

// refreshNotifications redraws the list and the open entry from the
// model's records. An entry that is gone returns to the list.
func (m *Model) refreshNotifications() tea.Cmd {
	cmd := m.notifView.Refresh()
	if open := m.detailView.Notification(); open != nil {
		found := false
		for _, n := range m.rt.Notifications.Records() {
			if n.ID == open.ID {
				m.detailView.SetNotification(n)
				found = true
				break
			}
		}
		if !found && m.currentView == ViewNotificationDetail {
			m.closeDetail()
		}
	}
	return cmd
}

func (m *Model) closeDetail() {
	m.detailView.Clear()
	if m.currentView == ViewNotificationDetail {
		m.currentView = ViewNotifications
	}
}

// openSettings shows the settings view over the current one.
func (m *Model) openSettings() tea.Cmd {
	if m.currentView != ViewSettings {
		m.previousView = m.currentView
	}
	m.currentView = ViewSettings
	return m.settingsView.Init()
}

// showNotice replaces the status-bar notice and schedules its removal.
func (m *Model) showNotice(n ui.NoticeMsg) tea.Cmd {
	if n.Text == "" {
		return nil
	}
	m.noticeSeq++
	m.notice = &n
	return expireNotice(m.noticeSeq)
}

// quit stops polling and exits. The runtime is closed by the caller of
// the program.
func (m *Model) quit() tea.Cmd {
	m.rt.Poller.Stop()
	m.rt.Timer.Stop()
	return tea.Quit
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewLogin:
		m.loginView, cmd = m.loginView.Update(msg)
	case ViewDashboard:
		m.dashboard, cmd = m.dashboard.Update(msg)
	case ViewNotifications:
		m.notifView, cmd = m.notifView.Update(msg)
	case ViewNotificationDetail:
		m.detailView, cmd = m.detailView.Update(msg)
	case ViewAttendance:
		m.attendanceView, cmd = m.attendanceView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	case ViewSettings:
		m.settingsView, cmd = m.settingsView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	identity := m.rt.Session.Identity()
	h := ui.Header{Title: "Workdesk"}
	if identity != nil {
		h.User = identity.Username
		h.Unread = m.rt.Notifications.UnreadCount()
		h.Live = m.live
		h.ShowLive = true
	}

	header := m.layout.RenderHeader(h)
	content := m.renderContent(h.Unread)

	var statusBar string
	if m.notice != nil {
		statusBar = m.layout.RenderNotice(m.notice.Level, m.notice.Text)
	} else {
		statusBar = m.layout.RenderStatusBar(m.keyHints())
	}

	return m.layout.RenderWithFrame(header, content, statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent(unread int) string {
	switch m.currentView {
	case ViewLoading:
		return m.placeholder("Loading session...")
	case ViewLogin:
		return m.loginView.View()
	case ViewDashboard:
		d := m.dashboard
		d.SetUnread(unread)
		return d.View()
	case ViewNotifications:
		return m.notifView.View()
	case ViewNotificationDetail:
		return m.detailView.View()
	case ViewAttendance:
		return m.attendanceView.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	case ViewSettings:
		return m.settingsView.View()
	case ViewNotFound:
		return m.placeholder(
			theme.TitleStyle.Render("Page not found") + "\n" +
				m.path + "\n\n" +
				theme.HelpStyle.Render("Press g to go to your dashboard"),
		)
	default:
		return ""
	}
}

func (m Model) placeholder(text string) string {
	return lipgloss.NewStyle().
		Width(m.layout.ContentWidth()).
		Height(m.layout.ContentHeight()).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray).
		Render(text)
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewLoading:
		return "ctrl+c quit"
	case ViewLogin:
		return "enter submit | tab next field | ctrl+c quit"
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter go | esc cancel"
	case ViewSettings:
		return "e edit | enter test connection | esc back"
	case ViewNotifications:
		return "enter open | v details | m read | M read all | d delete | C clear read | r refresh | esc back"
	case ViewNotificationDetail:
		return "enter open link | d delete | j/k scroll | esc back"
	case ViewAttendance:
		return "i check in | o check out | r refresh | esc back"
	case ViewNotFound:
		return "g dashboard | q quit"
	default:
		return "q quit | ? help | : go to | n notifications | t attendance | , settings | L logout"
	}
}

// executeCommand handles a command string from the route palette.
func (m *Model) executeCommand(cmd string) tea.Cmd {
	if strings.HasPrefix(cmd, "/") {
		return m.navigate(cmd)
	}

	identity := m.rt.Session.Identity()

	switch strings.ToLower(cmd) {
	case "quit", "q":
		return m.quit()
	case "logout":
		return m.logout(false)
	case "login":
		return m.navigate(gate.LoginRoute)
	case "settings", "config":
		return m.openSettings()
	case "refresh":
		m.rt.Poller.RefreshNow()
		return m.loadUnread()
	case "notifications", "inbox":
		return m.navigate(gate.RouteNotifications)
	case "attendance":
		if identity == nil {
			return m.navigate(gate.LoginRoute)
		}
		return m.navigate(gate.AttendanceRoute(identity.Role))
	case "dashboard", "home":
		if identity == nil {
			return m.navigate(gate.LoginRoute)
		}
		return m.navigate(gate.LandingRoute(identity.Role))
	default:
		return m.showNotice(ui.Failure("Unknown command: " + cmd))
	}
}
