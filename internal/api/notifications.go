package api

import (
	"context"
	"net/url"

	"github.com/nhle/workdesk/internal/model"
)

// NotificationList is the snapshot returned by my-notifications.
type NotificationList struct {
	Notifications []model.Notification `json:"notifications"`
	UnreadCount   int                  `json:"unreadCount"`
}

// ListNotifications fetches every notification of the current user with
// the unread counter.
func (c *Client) ListNotifications(ctx context.Context) (*NotificationList, error) {
	var result NotificationList
	if err := c.Get(ctx, "/notification/my-notifications", &result); err != nil {
		return nil, err
	}
	if result.Notifications == nil {
		result.Notifications = []model.Notification{}
	}
	return &result, nil
}

// UnreadCount fetches only the unread counter.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var result struct {
		UnreadCount int `json:"unreadCount"`
	}
	if err := c.Get(ctx, "/notification/unread-count", &result); err != nil {
		return 0, err
	}
	return result.UnreadCount, nil
}

// MarkNotificationRead marks one notification read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.Put(ctx, "/notification/"+url.PathEscape(id)+"/read", nil, nil)
}

// MarkAllNotificationsRead marks every notification read.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.Put(ctx, "/notification/mark-all-read", nil, nil)
}

// DeleteNotification removes one notification.
func (c *Client) DeleteNotification(ctx context.Context, id string) error {
	return c.Delete(ctx, "/notification/"+url.PathEscape(id), nil)
}

// ClearReadNotifications removes every read notification.
func (c *Client) ClearReadNotifications(ctx context.Context) error {
	return c.Delete(ctx, "/notification/clear/read", nil)
}
