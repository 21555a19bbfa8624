package notification

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/workdesk/internal/api"
	"github.com/nhle/workdesk/internal/model"
)

var errOffline = errors.New("offline")

type fakeAPI struct {
	mu sync.Mutex

	list    []model.Notification
	unread  int
	failAll bool
	calls   []string

	// block, when set, holds ListNotifications until closed. entered, when
	// set, is signalled once the call is waiting on block.
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeAPI) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.failAll {
		return errOffline
	}
	return nil
}

func (f *fakeAPI) ListNotifications(context.Context) (*api.NotificationList, error) {
	if f.block != nil {
		if f.entered != nil {
			f.entered <- struct{}{}
		}
		<-f.block
	}
	if err := f.record("list"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return &api.NotificationList{
		Notifications: append([]model.Notification(nil), f.list...),
		UnreadCount:   f.unread,
	}, nil
}

func (f *fakeAPI) UnreadCount(context.Context) (int, error) {
	if err := f.record("unread-count"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread, nil
}

func (f *fakeAPI) MarkNotificationRead(_ context.Context, id string) error {
	return f.record("read " + id)
}

func (f *fakeAPI) MarkAllNotificationsRead(context.Context) error {
	return f.record("read-all")
}

func (f *fakeAPI) DeleteNotification(_ context.Context, id string) error {
	return f.record("delete " + id)
}

func (f *fakeAPI) ClearReadNotifications(context.Context) error {
	return f.record("clear-read")
}

func snapshot() []model.Notification {
	return []model.Notification{
		{ID: "n1", Title: "Request approved", Type: model.NotificationRequestApproved},
		{ID: "n2", Title: "Added to team", Type: model.NotificationTeamAdded},
		{ID: "n3", Title: "Checked in", Type: model.NotificationAttendanceMarked, IsRead: true},
	}
}

func openModel(t *testing.T, f *fakeAPI) *Model {
	t.Helper()
	m := New(f, nil)
	t.Cleanup(m.Dispose)
	require.NoError(t, m.SetOpen(context.Background(), true))
	return m
}

func drainNotices(m *Model) []Notice {
	var out []Notice
	for {
		select {
		case n := <-m.notices:
			out = append(out, n)
		default:
			return out
		}
	}
}

func unreadRecords(m *Model) int {
	count := 0
	for _, n := range m.Records() {
		if !n.IsRead {
			count++
		}
	}
	return count
}

func TestLoadUnreadCountOnly(t *testing.T) {
	f := &fakeAPI{list: snapshot(), unread: 7}
	m := New(f, nil)

	require.NoError(t, m.LoadUnreadCountOnly(context.Background()))

	assert.Equal(t, 7, m.UnreadCount())
	assert.Empty(t, m.Records(), "counter only, list stays unmaterialized")
}

func TestSetOpenLoadsSnapshot(t *testing.T) {
	f := &fakeAPI{list: snapshot(), unread: 2}
	m := openModel(t, f)

	assert.True(t, m.IsOpen())
	assert.True(t, m.Loaded())
	assert.Len(t, m.Records(), 3)
	assert.Equal(t, 2, m.UnreadCount())
	assert.True(t, m.HasUnread())
	assert.True(t, m.HasRead())

	require.NoError(t, m.SetOpen(context.Background(), false))
	assert.Empty(t, m.Records())
	assert.Equal(t, 2, m.UnreadCount())
}

func TestLoadSnapshotFailureKeepsState(t *testing.T) {
	f := &fakeAPI{list: snapshot(), unread: 2}
	m := openModel(t, f)

	f.failAll = true
	require.Error(t, m.LoadSnapshot(context.Background()))

	assert.Len(t, m.Records(), 3)
	assert.Equal(t, 2, m.UnreadCount())
}

func TestPushSetsCounterToServerValue(t *testing.T) {
	for _, local := range []int{0, 3, 50} {
		f := &fakeAPI{unread: local}
		m := New(f, nil)
		require.NoError(t, m.LoadUnreadCountOnly(context.Background()))

		m.ApplyEvent(model.NotificationPush{
			Notification: model.Notification{ID: "n9", Title: "New"},
			UnreadCount:  4,
		})

		assert.Equal(t, 4, m.UnreadCount(), "local count %d", local)
		m.Dispose()
	}
}

func TestPushPrependsOnlyWhileOpen(t *testing.T) {
	f := &fakeAPI{list: snapshot(), unread: 2}
	m := New(f, nil)
	defer m.Dispose()

	push := model.NotificationPush{Notification: model.Notification{ID: "n9", Title: "Rejected"}, UnreadCount: 3}

	m.ApplyEvent(push)
	assert.Empty(t, m.Records())

	require.NoError(t, m.SetOpen(context.Background(), true))
	m.ApplyEvent(push)
	m.ApplyEvent(push)

	records := m.Records()
	require.Len(t, records, 4, "duplicate push is not prepended twice")
	assert.Equal(t, "n9", records[0].ID)
	assert.Equal(t, 3, m.UnreadCount())

	notices := drainNotices(m)
	require.NotEmpty(t, notices)
	assert.Equal(t, Notice{Level: LevelInfo, Text: "Rejected"}, notices[0])
}

func TestMarkReadIsOptimistic(t *testing.T) {
	f := &fakeAPI{list: snapshot(), unread: 2}
	m := openModel(t, f)

	f.failAll = true
	err := m.MarkRead(context.Background(), "n1")
	require.Error(t, err)

	assert.True(t, m.Records()[0].IsRead, "not rolled back")
	assert.Equal(t, 1, m.UnreadCount())
}

func TestMarkReadFloorsAtZero(t *testing.T) {
	f := &fakeAPI{list: snapshot(), unread: 0}
	m := openModel(t, f)

	require.NoError(t, m.MarkRead(context.Background(), "n1"))
	require.NoError(t, m.MarkRead(context.Background(), "n1"))
	require.NoError(t, m.MarkRead(context.Background(), "missing"))

	assert.Equal(t, 0, m.UnreadCount())
	assert.Contains(t, f.calls, "read missing")
}

func TestMarkAllRead(t *testing.T) {
	t.Run("failure leaves state unchanged", func(t *testing.T) {
		f := &fakeAPI{list: snapshot(), unread: 2}
		m := openModel(t, f)
		before := m.Records()

		f.failAll = true
		require.Error(t, m.MarkAllRead(context.Background()))

		assert.Equal(t, 2, m.UnreadCount())
		assert.Equal(t, before, m.Records())
		assert.Contains(t, drainNotices(m), Notice{Level: LevelError, Text: "Failed to mark all as read"})
	})

	t.Run("success zeroes counter", func(t *testing.T) {
		f := &fakeAPI{list: snapshot(), unread: 2}
		m := openModel(t, f)

		require.NoError(t, m.MarkAllRead(context.Background()))

		assert.Equal(t, 0, m.UnreadCount())
		assert.Equal(t, 0, unreadRecords(m))
		assert.False(t, m.HasUnread())
		assert.Contains(t, drainNotices(m), Notice{Level: LevelSuccess, Text: "All notifications marked as read"})
	})
}

func TestDeleteOne(t *testing.T) {
	f := &fakeAPI{list: snapshot(), unread: 2}
	m := openModel(t, f)

	f.failAll = true
	require.Error(t, m.DeleteOne(context.Background(), "n1"))
	assert.Len(t, m.Records(), 3, "not removed before the server confirms")

	f.failAll = false
	require.NoError(t, m.DeleteOne(context.Background(), "n1"))
	require.NoError(t, m.DeleteOne(context.Background(), "n3"))

	records := m.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "n2", records[0].ID)
	assert.Equal(t, 1, m.UnreadCount(), "only the unread deletion decrements")
}

func TestClearAllRead(t *testing.T) {
	f := &fakeAPI{list: snapshot(), unread: 2}
	m := openModel(t, f)

	require.NoError(t, m.ClearAllRead(context.Background()))

	assert.False(t, m.HasRead())
	assert.Len(t, m.Records(), 2)
	assert.Equal(t, 2, m.UnreadCount())
	assert.Equal(t, unreadRecords(m), m.UnreadCount())
}

func TestDisposeDropsInFlightSnapshot(t *testing.T) {
	f := &fakeAPI{list: snapshot(), unread: 2, block: make(chan struct{})}
	m := New(f, nil)

	done := make(chan error, 1)
	go func() { done <- m.LoadSnapshot(context.Background()) }()

	m.Dispose()
	close(f.block)

	assert.ErrorIs(t, <-done, ErrDisposed)
	assert.Empty(t, m.Records())
	assert.Equal(t, 0, m.UnreadCount())

	_, ok := <-m.Notices()
	assert.False(t, ok)

	m.ApplyEvent(model.NotificationPush{UnreadCount: 9})
	assert.Equal(t, 0, m.UnreadCount())
	assert.ErrorIs(t, m.MarkRead(context.Background(), "n1"), ErrDisposed)
}

func TestResetForgetsPreviousUser(t *testing.T) {
	f := &fakeAPI{list: snapshot(), unread: 2}
	m := openModel(t, f)

	m.Reset()

	assert.False(t, m.IsOpen())
	assert.False(t, m.Loaded())
	assert.Empty(t, m.Records())
	assert.Zero(t, m.UnreadCount())

	require.NoError(t, m.SetOpen(context.Background(), true))
	assert.Len(t, m.Records(), 3, "reopening loads a fresh snapshot")
}

func TestResetDropsInFlightSnapshot(t *testing.T) {
	f := &fakeAPI{list: snapshot(), unread: 7, block: make(chan struct{}), entered: make(chan struct{})}
	m := New(f, nil)
	t.Cleanup(m.Dispose)

	done := make(chan error, 1)
	go func() { done <- m.SetOpen(context.Background(), true) }()
	<-f.entered

	m.Reset()
	close(f.block)

	require.NoError(t, <-done)
	assert.Zero(t, m.UnreadCount())
	assert.Empty(t, m.Records())
	assert.False(t, m.Loaded())
	assert.False(t, m.IsOpen())
}

func TestClosingDropsInFlightList(t *testing.T) {
	f := &fakeAPI{list: snapshot(), unread: 2}
	m := openModel(t, f)

	f.unread = 5
	f.block = make(chan struct{})
	f.entered = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- m.LoadSnapshot(context.Background()) }()
	<-f.entered

	require.NoError(t, m.SetOpen(context.Background(), false))
	close(f.block)

	require.NoError(t, <-done)
	assert.Empty(t, m.Records())
	assert.False(t, m.Loaded())
	assert.Equal(t, 5, m.UnreadCount(), "same user, so the counter still applies")
}

func TestMarkReadCounter(t *testing.T) {
	f := &fakeAPI{list: snapshot(), unread: 2}
	m := openModel(t, f)

	require.NoError(t, m.MarkRead(context.Background(), "n3"))
	assert.Equal(t, 2, m.UnreadCount(), "already read")

	require.NoError(t, m.MarkRead(context.Background(), "elsewhere"))
	assert.Equal(t, 1, m.UnreadCount(), "not loaded, counted as unread")
}
