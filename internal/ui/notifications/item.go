package notifications

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/workdesk/internal/model"
	"github.com/nhle/workdesk/internal/theme"
)

// Item wraps a model.Notification so it can be used in a bubbles/list.
type Item struct {
	Notification model.Notification
}

// FilterValue returns the string used for fuzzy filtering.
func (i Item) FilterValue() string { return i.Notification.Title }

// Title returns the notification title for the list.
func (i Item) Title() string { return i.Notification.Title }

// Description returns the notification text.
func (i Item) Description() string { return i.Notification.Message }

// ItemDelegate implements list.ItemDelegate for notification rows.
type ItemDelegate struct {
	// now is overridable for tests.
	now func() time.Time
}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 2 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a notification as a title line and a message line.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}
	n := it.Notification

	marker := "○"
	if !n.IsRead {
		marker = lipgloss.NewStyle().Foreground(theme.ColorBlue).Render("●")
	}

	badge := theme.NotificationStyle(n.Type).Render(theme.CategoryBadge(theme.NotificationCategory(n.Type)))

	now := time.Now
	if d.now != nil {
		now = d.now
	}
	when := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(relativeTime(n.CreatedAt, now()))

	title := fmt.Sprintf("%s %s %s  %s", marker, badge, n.Title, when)
	message := "     " + n.Message
	if n.Link != "" {
		message += theme.HelpStyle.Render("  → " + n.Link)
	}

	line := title + "\n" + message
	if n.IsRead {
		line = theme.DimmedStyle.Render(line)
	}

	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 02")
	}
}
