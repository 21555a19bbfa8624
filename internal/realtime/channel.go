// Package realtime maintains the push-notification connection for the
// logged-in identity.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/workdesk/internal/model"
)

// Default policy values.
const (
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectDelay       = time.Second
	DefaultReconnectDelayMax    = 5 * time.Second
	DefaultPingInterval         = 25 * time.Second
)

// eventBuffer is the capacity of the inbound event stream. Events are
// dropped when a consumer falls this far behind.
const eventBuffer = 64

// Options configures a Channel.
type Options struct {
	URL       string
	Transport Transport

	// MaxReconnectAttempts bounds consecutive retries after a failed dial
	// or an unexpected disconnect. Zero disables retries.
	MaxReconnectAttempts int

	// ReconnectDelay is the first retry delay; each further retry doubles
	// it up to ReconnectDelayMax.
	ReconnectDelay    time.Duration
	ReconnectDelayMax time.Duration

	// PingInterval is the keep-alive period while connected.
	PingInterval time.Duration

	Logger *slog.Logger
}

// Channel keeps at most one push connection open, owned by the current
// identity. All methods are safe for concurrent use.
type Channel struct {
	opts   Options
	logger *slog.Logger
	events chan Event

	// lifecycle serializes SetIdentity and Close so a previous connection
	// is always torn down before the next one is dialed.
	lifecycle sync.Mutex

	mu        sync.Mutex
	state     ConnectionState
	identity  string
	cancel    context.CancelFunc
	done      chan struct{}
	closed    bool
	listeners []func(ConnectionState)
}

// New creates a Channel in the Disconnected state. Zero option values
// take the package defaults, except MaxReconnectAttempts which is used
// as given.
func New(opts Options) *Channel {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.ReconnectDelayMax < opts.ReconnectDelay {
		opts.ReconnectDelayMax = opts.ReconnectDelay
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.Transport == nil {
		opts.Transport = WebSocketTransport{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Channel{
		opts:   opts,
		logger: logger.With("component", "realtime"),
		events: make(chan Event, eventBuffer),
	}
}

// Events returns the inbound stream of server-pushed events. It is closed
// by Close.
func (c *Channel) Events() <-chan Event {
	return c.events
}

// State returns the current connection state.
func (c *Channel) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected is the liveness signal exposed to views.
func (c *Channel) IsConnected() bool {
	return c.State() == Connected
}

// OnStateChange registers fn for every subsequent state transition. fn
// runs on the channel's goroutine and must not block.
func (c *Channel) OnStateChange(fn func(ConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// SetIdentity follows the logged-in identity. A nil identity or empty
// token closes the connection. A different identity closes the current
// connection before opening a new one. The same identity is a no-op while
// its connection loop is alive, and restarts the loop after it gave up.
func (c *Channel) SetIdentity(identity *model.Identity, token string) {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	next := ""
	if identity != nil {
		if token == "" {
			c.logger.Warn("no token available, not connecting", "user", identity.Username)
		} else {
			next = identity.ID
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if next != "" && next == c.identity && c.alive() {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.stop()

	if next == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.identity = next
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go c.run(ctx, token, done)
}

// alive reports whether the connection loop is still running. Callers
// hold c.mu.
func (c *Channel) alive() bool {
	if c.done == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// stop cancels the current connection loop and waits for it to release
// the connection and its keep-alive ticker.
func (c *Channel) stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done, c.identity = nil, nil, ""
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	c.logger.Info("disconnecting")
	cancel()
	<-done
}

// Close tears the channel down unconditionally, whether or not a
// connection was ever established, and closes the event stream.
func (c *Channel) Close() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.stop()
	close(c.events)
}

// run dials, serves and reconnects until ctx is cancelled or the retry
// budget is spent.
func (c *Channel) run(ctx context.Context, token string, done chan struct{}) {
	defer close(done)
	defer c.setState(Disconnected)

	failures := 0
	for {
		c.setState(Connecting)

		conn, err := c.opts.Transport.Dial(ctx, c.opts.URL, token)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("connection error", "url", c.opts.URL, "error", err)
			c.setState(Error)
			if !c.backoff(ctx, &failures) {
				return
			}
			continue
		}

		failures = 0
		connID := uuid.NewString()
		log := c.logger.With("conn", connID)
		log.Info("connected", "url", c.opts.URL)
		c.setState(Connected)

		err = c.serve(ctx, conn, log)
		if ctx.Err() != nil {
			return
		}

		log.Info("disconnected", "reason", err)
		c.setState(Disconnected)
		if !c.backoff(ctx, &failures) {
			return
		}
	}
}

// backoff counts a failure and sleeps before the next attempt. It returns
// false when the retry budget is exhausted or ctx is cancelled.
func (c *Channel) backoff(ctx context.Context, failures *int) bool {
	*failures++
	if *failures > c.opts.MaxReconnectAttempts {
		c.logger.Warn("giving up after reconnect attempts", "attempts", c.opts.MaxReconnectAttempts)
		return false
	}

	delay := reconnectDelay(*failures, c.opts.ReconnectDelay, c.opts.ReconnectDelayMax)
	c.logger.Debug("reconnecting", "attempt", *failures, "delay", delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// reconnectDelay returns base·2^(attempt-1), capped at max.
func reconnectDelay(attempt int, base, max time.Duration) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// errServerClosed is returned by serve when the reader hits EOF.
var errServerClosed = errors.New("connection closed")

// serve pumps inbound frames and sends keep-alives until the connection
// fails or ctx is cancelled. The connection, the reader goroutine and the
// keep-alive ticker are all released before it returns.
func (c *Channel) serve(ctx context.Context, conn Conn, log *slog.Logger) error {
	var wg sync.WaitGroup
	quit := make(chan struct{})
	frames := make(chan []byte)
	readErr := make(chan error, 1)

	defer wg.Wait()
	defer conn.Close()
	defer close(quit)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			data, err := conn.ReadMessage()
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = errServerClosed
				}
				readErr <- err
				return
			}
			select {
			case frames <- data:
			case <-quit:
				return
			}
		}
	}()

	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	awaitingPong := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErr:
			return err

		case data := <-frames:
			f, err := decodeFrame(data)
			if err != nil {
				log.Warn("ignoring malformed frame", "error", err)
				continue
			}
			switch f.Event {
			case EventPong:
				awaitingPong = false
			case EventNewNotification:
				ev, err := decodeNotification(f)
				if err != nil {
					log.Warn("ignoring malformed notification", "error", err)
					continue
				}
				c.publish(ev, log)
			default:
				log.Debug("ignoring event", "event", f.Event)
			}

		case <-ticker.C:
			if awaitingPong {
				// Advisory only; the transport decides liveness.
				log.Debug("keep-alive not acknowledged")
			}
			if err := conn.WriteMessage(encodeFrame(EventPing)); err != nil {
				return fmt.Errorf("sending keep-alive: %w", err)
			}
			awaitingPong = true
		}
	}
}

// publish delivers ev without blocking the connection loop.
func (c *Channel) publish(ev Event, log *slog.Logger) {
	select {
	case c.events <- ev:
	default:
		log.Warn("event stream full, dropping event", "event", ev.Name)
	}
}

func (c *Channel) setState(s ConnectionState) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	listeners := make([]func(ConnectionState), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(s)
	}
}
