package model

import "time"

// NotificationType enumerates the kinds of notification the server emits.
// Unknown values are preserved as-is.
type NotificationType string

const (
	NotificationRequestApproved  NotificationType = "REQUEST_APPROVED"
	NotificationRequestRejected  NotificationType = "REQUEST_REJECTED"
	NotificationRequestSubmitted NotificationType = "REQUEST_SUBMITTED"
	NotificationRequestClosed    NotificationType = "REQUEST_CLOSED"
	NotificationRequestReopened  NotificationType = "REQUEST_REOPENED"
	NotificationTeamAdded        NotificationType = "TEAM_ADDED"
	NotificationTeamRemoved      NotificationType = "TEAM_REMOVED"
	NotificationAttendanceMarked NotificationType = "ATTENDANCE_MARKED"
)

// Notification represents an alert surfaced to the user about activity
// on their requests, teams or attendance.
type Notification struct {
	// ID is the unique identifier for this notification.
	ID string `json:"_id"`

	// Type identifies what kind of activity produced the notification.
	Type NotificationType `json:"type"`

	// Title is the short headline.
	Title string `json:"title"`

	// Message is the human-readable notification text.
	Message string `json:"message"`

	// IsRead indicates whether the user has seen this notification.
	IsRead bool `json:"isRead"`

	// CreatedAt is when this notification was generated.
	CreatedAt time.Time `json:"createdAt"`

	// Link is an optional route the notification points at.
	Link string `json:"link,omitempty"`
}

// NotificationPush is the payload of a server-pushed new-notification
// event. UnreadCount is the server's authoritative counter after the
// notification was stored.
type NotificationPush struct {
	Notification Notification `json:"notification"`
	UnreadCount  int          `json:"unreadCount"`
}
