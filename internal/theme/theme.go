package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/workdesk/internal/model"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue    = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen   = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow  = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed     = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorOrange  = lipgloss.AdaptiveColor{Dark: "#FFA94D", Light: "#C05621"}
	ColorMagenta = lipgloss.AdaptiveColor{Dark: "#CC5DE8", Light: "#805AD5"}
	ColorGray    = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite   = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorSubtle  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#CBD5E0"}
	ColorBorder  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for top-level section headers and the application title.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// StatusBarStyle is used for the bottom status bar.
var StatusBarStyle = lipgloss.NewStyle().
	Foreground(ColorWhite).
	Background(ColorSubtle).
	Padding(0, 1)

// PanelStyle wraps a bordered content area.
var PanelStyle = lipgloss.NewStyle().
	Padding(1, 2).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// ListItemStyle is the base style for items in a list.
var ListItemStyle = lipgloss.NewStyle().
	PaddingLeft(2)

// SelectedItemStyle highlights the currently focused list item.
var SelectedItemStyle = lipgloss.NewStyle().
	PaddingLeft(1).
	Bold(true).
	Foreground(ColorBlue).
	Border(lipgloss.NormalBorder(), false, false, false, true).
	BorderForeground(ColorBlue)

// HelpStyle is used for keyboard shortcut hints and help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// DimmedStyle renders read or inactive entries.
var DimmedStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// TitleStyle is used for view titles inside the content area.
var TitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	MarginBottom(1)

// Category groups notification types for display.
type Category string

const (
	CategoryRequest    Category = "request"
	CategoryTeam       Category = "team"
	CategoryAttendance Category = "attendance"
	CategoryGeneral    Category = "general"
)

type notificationLook struct {
	category Category
	color    lipgloss.AdaptiveColor
}

var notificationLooks = map[model.NotificationType]notificationLook{
	model.NotificationRequestApproved:  {CategoryRequest, ColorGreen},
	model.NotificationRequestRejected:  {CategoryRequest, ColorRed},
	model.NotificationRequestSubmitted: {CategoryRequest, ColorBlue},
	model.NotificationRequestClosed:    {CategoryRequest, ColorGray},
	model.NotificationRequestReopened:  {CategoryRequest, ColorMagenta},
	model.NotificationTeamAdded:        {CategoryTeam, ColorGreen},
	model.NotificationTeamRemoved:      {CategoryTeam, ColorOrange},
	model.NotificationAttendanceMarked: {CategoryAttendance, ColorBlue},
}

// NotificationCategory returns the display category of t. Unknown types
// fall into CategoryGeneral.
func NotificationCategory(t model.NotificationType) Category {
	if look, ok := notificationLooks[t]; ok {
		return look.category
	}
	return CategoryGeneral
}

// NotificationColor returns the accent color of t.
func NotificationColor(t model.NotificationType) lipgloss.AdaptiveColor {
	if look, ok := notificationLooks[t]; ok {
		return look.color
	}
	return ColorGray
}

// CategoryBadge returns a short label for c.
func CategoryBadge(c Category) string {
	switch c {
	case CategoryRequest:
		return "REQ"
	case CategoryTeam:
		return "TEAM"
	case CategoryAttendance:
		return "ATT"
	default:
		return "INFO"
	}
}

// NotificationStyle returns the badge style for t.
func NotificationStyle(t model.NotificationType) lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(NotificationColor(t))
}

// AttendanceStatusStyle returns a color-coded style for an attendance status.
func AttendanceStatusStyle(status model.AttendanceStatus) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)

	switch status {
	case model.AttendancePresent:
		return base.Foreground(ColorGreen)
	case model.AttendanceLate:
		return base.Foreground(ColorYellow)
	case model.AttendanceHalfDay:
		return base.Foreground(ColorOrange)
	case model.AttendanceLeave:
		return base.Foreground(ColorBlue)
	case model.AttendanceAbsent:
		return base.Foreground(ColorRed)
	default:
		return base.Foreground(ColorGray)
	}
}

// RoleStyle returns a color-coded style for a role label.
func RoleStyle(role model.Role) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)

	switch role {
	case model.RoleAdmin:
		return base.Foreground(ColorMagenta)
	case model.RoleManager:
		return base.Foreground(ColorOrange)
	default:
		return base.Foreground(ColorBlue)
	}
}

// NoticeStyle styles a status-bar notice by severity: "success", "error"
// or anything else for informational.
func NoticeStyle(level string) lipgloss.Style {
	base := StatusBarStyle.Bold(true)

	switch level {
	case "success":
		return base.Foreground(ColorGreen)
	case "error":
		return base.Foreground(ColorRed)
	default:
		return base.Foreground(ColorYellow)
	}
}

// LiveIndicator renders the realtime connection marker.
func LiveIndicator(connected bool) string {
	if connected {
		return lipgloss.NewStyle().Foreground(ColorGreen).Render("● live")
	}
	return lipgloss.NewStyle().Foreground(ColorGray).Render("○ offline")
}
