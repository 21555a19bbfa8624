package realtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one established push connection. ReadMessage blocks until a
// message arrives or the connection fails; Close unblocks it.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Transport opens authenticated connections.
type Transport interface {
	Dial(ctx context.Context, url, token string) (Conn, error)
}

// WebSocketTransport dials the push server over WebSocket, sending the
// token as a bearer Authorization header.
type WebSocketTransport struct {
	Dialer *websocket.Dialer

	// WriteTimeout bounds a single frame write. Defaults to 10s.
	WriteTimeout time.Duration
}

// Dial opens a WebSocket connection to url.
func (t WebSocketTransport) Dial(ctx context.Context, url, token string) (Conn, error) {
	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	ws, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}

	timeout := t.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &wsConn{ws: ws, writeTimeout: timeout}, nil
}

type wsConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	// gorilla allows one concurrent writer.
	writeMu sync.Mutex
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()
	return c.ws.Close()
}
