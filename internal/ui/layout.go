package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/workdesk/internal/theme"
)

// Layout manages the terminal layout dimensions.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
// HeaderHeight and StatusBarHeight default to 1.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height available for the main content area,
// accounting for the header and status bar.
func (l Layout) ContentHeight() int {
	return l.Height - l.HeaderHeight - l.StatusBarHeight
}

// Header is what the top bar shows.
type Header struct {
	Title string
	User  string

	// Unread is the notification counter; shown when positive.
	Unread int

	// Live is the realtime liveness signal. Hidden when ShowLive is false.
	Live     bool
	ShowLive bool
}

// RenderHeader renders the top bar: title and user on the left, unread
// badge and liveness on the right.
func (l Layout) RenderHeader(h Header) string {
	left := h.Title
	if h.User != "" {
		left += " · " + h.User
	}
	titleRendered := theme.HeaderStyle.Render(left)

	right := ""
	if h.Unread > 0 {
		right = fmt.Sprintf("🔔 %d", h.Unread)
	}
	if h.ShowLive {
		if right != "" {
			right += "  "
		}
		right += theme.LiveIndicator(h.Live)
	}
	statusRendered := theme.HeaderStyle.
		Align(lipgloss.Right).
		Render(right)

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		titleRendered,
		l.fill(theme.HeaderStyle, l.Width-lipgloss.Width(titleRendered)-lipgloss.Width(statusRendered)),
		statusRendered,
	)
}

// RenderStatusBar renders the bottom status bar with keyboard hints.
func (l Layout) RenderStatusBar(hints string) string {
	rendered := theme.StatusBarStyle.Render(hints)
	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		rendered,
		l.fill(theme.StatusBarStyle, l.Width-lipgloss.Width(rendered)),
	)
}

// RenderNotice renders a transient notice in place of the key hints.
func (l Layout) RenderNotice(level, text string) string {
	rendered := theme.NoticeStyle(level).Render(text)
	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		rendered,
		l.fill(theme.StatusBarStyle, l.Width-lipgloss.Width(rendered)),
	)
}

// RenderWithFrame composes a full terminal view by vertically joining
// the header, content area, and status bar.
func (l Layout) RenderWithFrame(header, content, statusBar string) string {
	content = lipgloss.NewStyle().
		Height(max(l.ContentHeight(), 0)).
		MaxHeight(max(l.ContentHeight(), 0)).
		Render(content)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		content,
		statusBar,
	)
}

func (l Layout) fill(style lipgloss.Style, gap int) string {
	if gap <= 0 {
		return ""
	}
	return lipgloss.NewStyle().
		Width(gap).
		Background(style.GetBackground()).
		Render("")
}
