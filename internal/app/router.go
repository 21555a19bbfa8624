package app

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/workdesk/internal/gate"
)

// navigate opens path after consulting the access gate. Redirects are
// followed; a route requested while the session is loading is kept and
// opened once it is known.
func (m *Model) navigate(path string) tea.Cmd {
	if path == "" || path == "/" {
		path = gate.LoginRoute
	}

	identity := m.rt.Session.Identity()

	if path == gate.LoginRoute {
		if identity != nil {
			if landing := gate.LandingRoute(identity.Role); landing != gate.LoginRoute {
				return m.navigate(landing)
			}
		}
		return m.show(ViewLogin, path, m.loginView.Start())
	}

	decision := gate.Check(path, identity, m.rt.Session.Loading())
	switch decision.Outcome {
	case gate.Loading:
		m.pendingPath = path
		return m.show(ViewLoading, path, nil)
	case gate.Redirect:
		return m.navigate(decision.Target)
	}

	if _, known := gate.Lookup(path); !known {
		return m.show(ViewNotFound, path, nil)
	}

	switch {
	case path == gate.RouteNotifications:
		return m.show(ViewNotifications, path, m.notifView.Open())
	case strings.HasSuffix(path, "/attendance"):
		return m.show(ViewAttendance, path, m.attendanceView.Load())
	default:
		m.dashboard.SetPath(path)
		return m.show(ViewDashboard, path, nil)
	}
}

// show switches to view, releasing what the previous view held.
func (m *Model) show(view ViewState, path string, cmd tea.Cmd) tea.Cmd {
	leaving := m.currentView
	if leaving == ViewHelp || leaving == ViewCommand || leaving == ViewSettings {
		leaving = m.previousView
	}

	if leaving == ViewNotificationDetail {
		m.detailView.Clear()
		leaving = ViewNotifications
	}
	if leaving == ViewNotifications && view != ViewNotifications {
		m.notifView.Close()
	}
	if leaving == ViewAttendance && (view != ViewAttendance || path != m.path) {
		m.attendanceView.Leave()
	}

	m.currentView = view
	m.previousView = view
	m.path = path
	return cmd
}
