// Package notification keeps the local notification list and unread
// counter consistent with snapshot fetches, push events and mutations.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nhle/workdesk/internal/api"
	"github.com/nhle/workdesk/internal/model"
)

// ErrDisposed is returned by operations started or resolved after Dispose.
var ErrDisposed = errors.New("notification model disposed")

// API is the subset of the REST client the model needs.
type API interface {
	ListNotifications(ctx context.Context) (*api.NotificationList, error)
	UnreadCount(ctx context.Context) (int, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context) error
	DeleteNotification(ctx context.Context, id string) error
	ClearReadNotifications(ctx context.Context) error
}

// noticeBuffer bounds the toast stream; further notices are dropped until
// the consumer catches up.
const noticeBuffer = 16

// Model holds the notifications of the current user. The list is only
// materialized while the notification surface is open; the unread counter
// is maintained at all times. All methods are safe for concurrent use.
type Model struct {
	api     API
	logger  *slog.Logger
	notices chan Notice

	mu       sync.Mutex
	records  []model.Notification
	unread   int
	open     bool
	loaded   bool
	disposed bool

	// epoch moves on Reset; listGen moves whenever the list is dropped.
	// Fetches that resolve after either moved are discarded.
	epoch   uint64
	listGen uint64
}

// New creates an empty Model.
func New(client API, logger *slog.Logger) *Model {
	if logger == nil {
		logger = slog.Default()
	}
	return &Model{
		api:     client,
		logger:  logger.With("component", "notifications"),
		notices: make(chan Notice, noticeBuffer),
	}
}

// Notices returns the stream of short-lived user-visible messages.
func (m *Model) Notices() <-chan Notice {
	return m.notices
}

// Records returns a copy of the loaded list in display order.
func (m *Model) Records() []model.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Notification, len(m.records))
	copy(out, m.records)
	return out
}

// UnreadCount returns the current unread counter.
func (m *Model) UnreadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unread
}

// IsOpen reports whether the notification surface is open.
func (m *Model) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// Loaded reports whether a snapshot has been materialized since the
// surface was last opened.
func (m *Model) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

// HasUnread reports whether any loaded record is unread.
func (m *Model) HasUnread() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.records {
		if !n.IsRead {
			return true
		}
	}
	return false
}

// HasRead reports whether any loaded record is read.
func (m *Model) HasRead() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.records {
		if n.IsRead {
			return true
		}
	}
	return false
}

// SetOpen records whether the notification surface is visible. Opening
// fetches a fresh snapshot; closing drops the materialized list.
func (m *Model) SetOpen(ctx context.Context, open bool) error {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return ErrDisposed
	}
	wasOpen := m.open
	m.open = open
	if !open {
		m.records = nil
		m.loaded = false
		m.listGen++
	}
	m.mu.Unlock()

	if open && !wasOpen {
		return m.LoadSnapshot(ctx)
	}
	return nil
}

// LoadSnapshot replaces the list and the counter with the server's.
// On failure the last known state is kept. The list is only materialized
// while the surface is open; a result that arrives after Reset is dropped.
func (m *Model) LoadSnapshot(ctx context.Context) error {
	epoch, listGen, err := m.begin()
	if err != nil {
		return err
	}

	list, err := m.api.ListNotifications(ctx)
	if err != nil {
		m.logger.Error("failed to fetch notifications", "error", err)
		return fmt.Errorf("loading notifications: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return ErrDisposed
	}
	if m.epoch != epoch {
		m.logger.Debug("dropping snapshot fetched before reset")
		return nil
	}
	m.unread = max(list.UnreadCount, 0)
	if m.open && m.listGen == listGen {
		m.records = append([]model.Notification(nil), list.Notifications...)
		m.loaded = true
	}
	return nil
}

// LoadUnreadCountOnly refreshes just the counter.
func (m *Model) LoadUnreadCountOnly(ctx context.Context) error {
	epoch, _, err := m.begin()
	if err != nil {
		return err
	}

	count, err := m.api.UnreadCount(ctx)
	if err != nil {
		m.logger.Error("failed to fetch unread count", "error", err)
		return fmt.Errorf("loading unread count: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return ErrDisposed
	}
	if m.epoch != epoch {
		return nil
	}
	m.unread = max(count, 0)
	return nil
}

// ApplyEvent applies a server-pushed notification. The counter takes the
// pushed value as is. The record is prepended only while the list is
// materialized, and only once per id.
func (m *Model) ApplyEvent(push model.NotificationPush) {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.unread = max(push.UnreadCount, 0)
	if m.open && m.loaded && m.indexOf(push.Notification.ID) < 0 {
		m.records = append([]model.Notification{push.Notification}, m.records...)
	}
	m.mu.Unlock()

	m.notify(LevelInfo, push.Notification.Title)
}

// MarkRead flips one record to read and decrements the counter before the
// server confirms. A failed call is logged and not rolled back. The
// counter is decremented, floored at zero, unless the record is loaded
// and already read; an id outside the loaded list still counts as unread.
func (m *Model) MarkRead(ctx context.Context, id string) error {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return ErrDisposed
	}
	switch i := m.indexOf(id); {
	case i < 0:
		m.unread = max(m.unread-1, 0)
	case !m.records[i].IsRead:
		m.records[i].IsRead = true
		m.unread = max(m.unread-1, 0)
	}
	m.mu.Unlock()

	if err := m.api.MarkNotificationRead(ctx, id); err != nil {
		m.logger.Error("failed to mark notification read", "id", id, "error", err)
		return fmt.Errorf("marking %s read: %w", id, err)
	}
	return nil
}

// MarkAllRead marks everything read once the server confirms. On failure
// nothing changes locally.
func (m *Model) MarkAllRead(ctx context.Context) error {
	epoch, _, err := m.begin()
	if err != nil {
		return err
	}

	if err := m.api.MarkAllNotificationsRead(ctx); err != nil {
		m.logger.Error("failed to mark all read", "error", err)
		m.notify(LevelError, "Failed to mark all as read")
		return fmt.Errorf("marking all read: %w", err)
	}

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return ErrDisposed
	}
	if m.epoch != epoch {
		m.mu.Unlock()
		return nil
	}
	for i := range m.records {
		m.records[i].IsRead = true
	}
	m.unread = 0
	m.mu.Unlock()

	m.notify(LevelSuccess, "All notifications marked as read")
	return nil
}

// DeleteOne removes a record after the server confirms. Deleting an
// unread record also decrements the counter.
func (m *Model) DeleteOne(ctx context.Context, id string) error {
	epoch, _, err := m.begin()
	if err != nil {
		return err
	}

	if err := m.api.DeleteNotification(ctx, id); err != nil {
		m.logger.Error("failed to delete notification", "id", id, "error", err)
		m.notify(LevelError, "Failed to delete notification")
		return fmt.Errorf("deleting %s: %w", id, err)
	}

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return ErrDisposed
	}
	if m.epoch != epoch {
		m.mu.Unlock()
		return nil
	}
	if i := m.indexOf(id); i >= 0 {
		if !m.records[i].IsRead {
			m.unread = max(m.unread-1, 0)
		}
		m.records = append(m.records[:i], m.records[i+1:]...)
	}
	m.mu.Unlock()

	m.notify(LevelSuccess, "Notification deleted")
	return nil
}

// ClearAllRead removes every read record after the server confirms. The
// counter is unaffected.
func (m *Model) ClearAllRead(ctx context.Context) error {
	epoch, _, err := m.begin()
	if err != nil {
		return err
	}

	if err := m.api.ClearReadNotifications(ctx); err != nil {
		m.logger.Error("failed to clear read notifications", "error", err)
		m.notify(LevelError, "Failed to clear notifications")
		return fmt.Errorf("clearing read notifications: %w", err)
	}

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return ErrDisposed
	}
	if m.epoch != epoch {
		m.mu.Unlock()
		return nil
	}
	kept := m.records[:0]
	for _, n := range m.records {
		if !n.IsRead {
			kept = append(kept, n)
		}
	}
	m.records = kept
	m.mu.Unlock()

	m.notify(LevelSuccess, "All read notifications cleared")
	return nil
}

// Reset forgets everything known about the previous user. The surface
// stays closed until SetOpen is called again.
func (m *Model) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	m.unread = 0
	m.open = false
	m.loaded = false
	m.epoch++
	m.listGen++
}

// Dispose detaches the model. Results of calls still in flight are
// dropped and the notice stream is closed.
func (m *Model) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return
	}
	m.disposed = true
	m.records = nil
	close(m.notices)
}

// begin captures the generations a call started under.
func (m *Model) begin() (epoch, listGen uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return 0, 0, ErrDisposed
	}
	return m.epoch, m.listGen, nil
}

// indexOf returns the position of id in the list, or -1. Callers hold m.mu.
func (m *Model) indexOf(id string) int {
	for i, n := range m.records {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// notify publishes a notice without blocking. It holds m.mu so it never
// races with Dispose closing the stream.
func (m *Model) notify(level Level, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed || text == "" {
		return
	}
	select {
	case m.notices <- Notice{Level: level, Text: text}:
	default:
		m.logger.Debug("notice dropped", "text", text)
	}
}
