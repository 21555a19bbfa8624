package realtime

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/workdesk/internal/model"
)

var (
	alice = &model.Identity{ID: "u1", Username: "alice", Role: model.RoleEmployee}
	bob   = &model.Identity{ID: "u2", Username: "bob", Role: model.RoleManager}
)

type fakeConn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once
	onEnd  func()

	mu      sync.Mutex
	written []string
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, string(data))
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() {
		close(c.closed)
		c.onEnd()
	})
	return nil
}

func (c *fakeConn) writes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.written...)
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type fakeTransport struct {
	fail bool

	mu      sync.Mutex
	dials   int
	open    int
	maxOpen int
	tokens  []string
	conns   []*fakeConn
}

func (t *fakeTransport) Dial(ctx context.Context, url, token string) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.dials++
	t.tokens = append(t.tokens, token)
	if t.fail {
		return nil, errors.New("connection refused")
	}

	t.open++
	if t.open > t.maxOpen {
		t.maxOpen = t.open
	}
	c := &fakeConn{in: make(chan []byte, 8), closed: make(chan struct{})}
	c.onEnd = func() {
		t.mu.Lock()
		t.open--
		t.mu.Unlock()
	}
	t.conns = append(t.conns, c)
	return c, nil
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

func (t *fakeTransport) conn(i int) *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i >= len(t.conns) {
		return nil
	}
	return t.conns[i]
}

func newTestChannel(t *testing.T, tr Transport, maxAttempts int) *Channel {
	t.Helper()
	c := New(Options{
		URL:                  "ws://push.test/ws",
		Transport:            tr,
		MaxReconnectAttempts: maxAttempts,
		ReconnectDelay:       time.Millisecond,
		ReconnectDelayMax:    2 * time.Millisecond,
		PingInterval:         time.Hour,
	})
	t.Cleanup(c.Close)
	return c
}

func waitConnected(t *testing.T, c *Channel) {
	t.Helper()
	require.Eventually(t, c.IsConnected, 2*time.Second, 5*time.Millisecond)
}

func TestDialAttemptsAreBounded(t *testing.T) {
	tr := &fakeTransport{fail: true}
	c := newTestChannel(t, tr, 3)

	var mu sync.Mutex
	var states []ConnectionState
	c.OnStateChange(func(s ConnectionState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	c.SetIdentity(alice, "tok")

	require.Eventually(t, func() bool {
		return tr.dialCount() == 4 && c.State() == Disconnected
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 4, tr.dialCount(), "one initial attempt plus three retries")

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, states, Error)
	assert.Equal(t, Disconnected, states[len(states)-1])
}

func TestSetIdentityWithoutTokenDoesNotConnect(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestChannel(t, tr, 0)

	c.SetIdentity(alice, "")
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 0, tr.dialCount())
	assert.Equal(t, Disconnected, c.State())
}

func TestSameIdentityKeepsConnection(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestChannel(t, tr, 0)

	c.SetIdentity(alice, "tok")
	waitConnected(t, c)
	c.SetIdentity(alice, "tok")

	assert.Equal(t, 1, tr.dialCount())
	assert.False(t, tr.conn(0).isClosed())
}

func TestIdentitySwitchClosesBeforeOpening(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestChannel(t, tr, 0)

	c.SetIdentity(alice, "tok-a")
	waitConnected(t, c)

	c.SetIdentity(bob, "tok-b")
	assert.True(t, tr.conn(0).isClosed(), "previous connection closed synchronously")

	waitConnected(t, c)
	require.Equal(t, 2, tr.dialCount())

	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Equal(t, 1, tr.maxOpen, "never two open connections")
	assert.Equal(t, []string{"tok-a", "tok-b"}, tr.tokens)
}

func TestLogoutClosesConnection(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestChannel(t, tr, 0)

	c.SetIdentity(alice, "tok")
	waitConnected(t, c)

	c.SetIdentity(nil, "")

	assert.True(t, tr.conn(0).isClosed())
	assert.Equal(t, Disconnected, c.State())
}

func TestReconnectsAfterServerClose(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestChannel(t, tr, 2)

	c.SetIdentity(alice, "tok")
	waitConnected(t, c)

	require.NoError(t, tr.conn(0).Close())

	require.Eventually(t, func() bool {
		return tr.dialCount() == 2 && c.IsConnected()
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSameIdentityRestartsAfterGivingUp(t *testing.T) {
	tr := &fakeTransport{fail: true}
	c := newTestChannel(t, tr, 0)

	c.SetIdentity(alice, "tok")
	require.Eventually(t, func() bool {
		return tr.dialCount() == 1 && c.State() == Disconnected
	}, 2*time.Second, 5*time.Millisecond)

	tr.mu.Lock()
	tr.fail = false
	tr.mu.Unlock()

	require.Eventually(t, func() bool {
		c.SetIdentity(alice, "tok")
		return c.IsConnected()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNotificationEventsArePublished(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestChannel(t, tr, 0)

	c.SetIdentity(alice, "tok")
	waitConnected(t, c)

	conn := tr.conn(0)
	conn.in <- []byte(`garbage`)
	conn.in <- []byte(`{"event":"something-else","data":{}}`)
	conn.in <- []byte(`{"event":"new-notification","data":{"notification":{"_id":"n1","title":"Approved","isRead":false},"unreadCount":4}}`)

	select {
	case ev := <-c.Events():
		assert.Equal(t, EventNewNotification, ev.Name)
		require.NotNil(t, ev.Notification)
		assert.Equal(t, "n1", ev.Notification.Notification.ID)
		assert.Equal(t, 4, ev.Notification.UnreadCount)
	case <-time.After(2 * time.Second):
		t.Fatal("event not published")
	}
}

func TestKeepAliveStopsWithConnection(t *testing.T) {
	tr := &fakeTransport{}
	c := New(Options{
		URL:          "ws://push.test/ws",
		Transport:    tr,
		PingInterval: 5 * time.Millisecond,
	})

	c.SetIdentity(alice, "tok")
	waitConnected(t, c)

	conn := tr.conn(0)
	require.Eventually(t, func() bool {
		return len(conn.writes()) >= 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, `{"event":"ping"}`, conn.writes()[0])

	c.Close()
	sent := len(conn.writes())
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, sent, len(conn.writes()), "no keep-alive after close")
	assert.True(t, conn.isClosed())
}

func TestCloseWithoutConnecting(t *testing.T) {
	tr := &fakeTransport{}
	c := New(Options{Transport: tr})

	c.Close()
	c.Close()

	_, ok := <-c.Events()
	assert.False(t, ok)

	c.SetIdentity(alice, "tok")
	assert.Equal(t, 0, tr.dialCount())
	assert.Equal(t, Disconnected, c.State())
}

func TestReconnectDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
		{10, 5 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, reconnectDelay(tt.attempt, time.Second, 5*time.Second), "attempt %d", tt.attempt)
	}
}

func TestWebSocketTransport(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotAuth := make(chan string, 1)
	gotPing := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		_ = ws.WriteMessage(websocket.TextMessage,
			[]byte(`{"event":"new-notification","data":{"notification":{"_id":"n9"},"unreadCount":1}}`))

		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		gotPing <- string(data)
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"event":"pong"}`))

		// Hold the connection until the client goes away.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c := New(Options{
		URL:          "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		PingInterval: 10 * time.Millisecond,
	})
	defer c.Close()

	c.SetIdentity(alice, "tok-ws")

	assert.Equal(t, "Bearer tok-ws", <-gotAuth)

	select {
	case ev := <-c.Events():
		require.NotNil(t, ev.Notification)
		assert.Equal(t, "n9", ev.Notification.Notification.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no event over websocket")
	}

	select {
	case ping := <-gotPing:
		assert.Equal(t, `{"event":"ping"}`, ping)
	case <-time.After(2 * time.Second):
		t.Fatal("no keep-alive over websocket")
	}
	assert.True(t, c.IsConnected())
}
