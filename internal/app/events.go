package app

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/workdesk/internal/api"
	"github.com/nhle/workdesk/internal/notification"
	"github.com/nhle/workdesk/internal/realtime"
	"github.com/nhle/workdesk/internal/session"
)

// requestTimeout bounds app-level API calls such as login.
const requestTimeout = 15 * time.Second

// noticeTTL is how long a status-bar notice stays visible.
const noticeTTL = 4 * time.Second

// sessionChangedMsg carries a session transition to the UI.
type sessionChangedMsg struct {
	change session.Change
}

// connStateMsg carries the latest realtime connection state.
type connStateMsg struct {
	state realtime.ConnectionState
}

// pushMsg carries a server-pushed event.
type pushMsg struct {
	event realtime.Event
}

// noticeMsg carries a notice published by the notification model.
type noticeMsg struct {
	notice notification.Notice
}

// noticeExpiredMsg clears the status-bar notice with the given sequence.
type noticeExpiredMsg struct {
	seq int
}

// loginResultMsg is sent when a login attempt completes.
type loginResultMsg struct {
	err error
}

// logoutDoneMsg is sent once the session has been cleared.
type logoutDoneMsg struct {
	expired bool
}

// unreadLoadedMsg is sent after the unread counter was refreshed.
type unreadLoadedMsg struct {
	err error
}

func waitForChange(ch <-chan session.Change) tea.Cmd {
	return func() tea.Msg {
		c, ok := <-ch
		if !ok {
			return nil
		}
		return sessionChangedMsg{change: c}
	}
}

func waitForConnState(ch <-chan realtime.ConnectionState) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return connStateMsg{state: s}
	}
}

func waitForPush(ch <-chan realtime.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return pushMsg{event: ev}
	}
}

func waitForNotice(ch <-chan notification.Notice) tea.Cmd {
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return noticeMsg{notice: n}
	}
}

func expireNotice(seq int) tea.Cmd {
	return tea.Tick(noticeTTL, func(time.Time) tea.Msg {
		return noticeExpiredMsg{seq: seq}
	})
}

// login returns a command that authenticates with creds.
func (m *Model) login(creds api.Credentials) tea.Cmd {
	rt := m.rt
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return loginResultMsg{err: rt.Login(ctx, creds)}
	}
}

// logout returns a command that clears the session. expired marks a
// logout forced by the server rejecting the token.
func (m *Model) logout(expired bool) tea.Cmd {
	sess := m.rt.Session
	return func() tea.Msg {
		sess.Logout(context.Background())
		return logoutDoneMsg{expired: expired}
	}
}

// loadUnread returns a command that refreshes the unread counter.
func (m *Model) loadUnread() tea.Cmd {
	notes := m.rt.Notifications
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return unreadLoadedMsg{err: notes.LoadUnreadCountOnly(ctx)}
	}
}
