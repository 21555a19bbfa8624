package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nhle/workdesk/internal/api"
	"github.com/nhle/workdesk/internal/attendance"
	"github.com/nhle/workdesk/internal/clock"
	"github.com/nhle/workdesk/internal/credential"
	"github.com/nhle/workdesk/internal/model"
	"github.com/nhle/workdesk/internal/notification"
	"github.com/nhle/workdesk/internal/realtime"
	"github.com/nhle/workdesk/internal/session"
	"github.com/nhle/workdesk/internal/store"
	appsync "github.com/nhle/workdesk/internal/sync"
)

// Runtime owns the long-lived services of one client process. The TUI and
// the CLI subcommands share it.
type Runtime struct {
	Config        *model.AppConfig
	ConfigPath    string
	Logger        *slog.Logger
	Shared        *store.SQLiteStore
	Session       *session.Store
	API           *api.Client
	Channel       *realtime.Channel
	Notifications *notification.Model
	Timer         *attendance.Timer
	Poller        *appsync.Poller

	changes     chan session.Change
	states      chan realtime.ConnectionState
	unsubscribe func()
	logFile     io.Closer

	followRealtime bool
}

// Option configures Open.
type Option func(*Runtime)

// WithoutRealtime keeps the push channel disconnected. One-shot CLI
// commands use it.
func WithoutRealtime() Option {
	return func(r *Runtime) { r.followRealtime = false }
}

// WithConfigPath records where cfg was loaded from so settings can be
// saved back.
func WithConfigPath(path string) Option {
	return func(r *Runtime) { r.ConfigPath = path }
}

// changeBuffer bounds session changes waiting for the UI.
const changeBuffer = 8

// NewLogger builds the process logger. The TUI owns the terminal, so logs
// go to cfg.Path; an empty path discards them.
func NewLogger(cfg model.LogConfig) (*slog.Logger, io.Closer, error) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.Path == "" {
		return slog.New(slog.NewTextHandler(io.Discard, opts)), io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return slog.New(slog.NewTextHandler(f, opts)), f, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Open builds every service from cfg and restores the persisted session.
// The realtime channel follows the session from here on.
func Open(ctx context.Context, cfg *model.AppConfig, opts ...Option) (*Runtime, error) {
	logger, logFile, err := NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	shared, err := store.NewSQLiteStore(
		cfg.Storage.Path,
		store.WithWatchInterval(time.Duration(cfg.Storage.WatchIntervalMs)*time.Millisecond),
	)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening shared storage: %w", err)
	}

	var secrets store.KV = shared
	if cfg.Storage.UseKeyring {
		if ring, err := credential.Open(); err != nil {
			logger.Warn("keyring unavailable, keeping refresh token in shared storage", "error", err)
		} else {
			secrets = ring
		}
	}

	sess := session.New(session.Options{
		Tab:     store.NewMemoryStore(),
		Shared:  shared,
		Secrets: secrets,
		Watcher: shared,
		Logger:  logger,
	})

	wsURL, err := cfg.RealtimeURL()
	if err != nil {
		shared.Close()
		logFile.Close()
		return nil, err
	}

	client := api.NewClient(cfg.API.BaseURL, sess, time.Duration(cfg.API.TimeoutSec)*time.Second)
	notes := notification.New(client, logger)

	rt := &Runtime{
		Config:     cfg,
		ConfigPath: model.DefaultConfigPath(),
		Logger:     logger,
		Shared:     shared,
		Session:    sess,
		API:        client,
		Channel: realtime.New(realtime.Options{
			URL:                  wsURL,
			MaxReconnectAttempts: cfg.Realtime.MaxReconnectAttempts,
			ReconnectDelay:       time.Duration(cfg.Realtime.ReconnectDelayMs) * time.Millisecond,
			ReconnectDelayMax:    time.Duration(cfg.Realtime.ReconnectDelayMaxMs) * time.Millisecond,
			PingInterval:         time.Duration(cfg.Realtime.PingIntervalSec) * time.Second,
			Logger:               logger,
		}),
		Notifications: notes,
		Timer:         attendance.NewTimer(clock.Real{}, cfg.MinWorkDuration(), logger),
		Poller: appsync.New(
			notes,
			time.Duration(cfg.Notifications.ReconcileIntervalSec)*time.Second,
			clock.Real{},
			logger,
		),
		changes:        make(chan session.Change, changeBuffer),
		states:         make(chan realtime.ConnectionState, 1),
		logFile:        logFile,
		followRealtime: true,
	}
	for _, opt := range opts {
		opt(rt)
	}

	rt.Channel.OnStateChange(rt.forwardState)
	rt.unsubscribe = sess.Subscribe(rt.follow)
	sess.Initialize(ctx)

	return rt, nil
}

// follow keeps the per-user services in step with the session. It runs on
// the goroutine that changed the session.
func (r *Runtime) follow(c session.Change) {
	if c.Session == nil {
		r.Channel.SetIdentity(nil, "")
		r.Notifications.Reset()
		r.Timer.Stop()
	} else if r.followRealtime {
		identity := c.Session.Identity
		r.Channel.SetIdentity(&identity, c.Session.AccessToken)
	}

	select {
	case r.changes <- c:
	default:
		r.Logger.Warn("session change dropped", "reason", c.Reason)
	}
}

// forwardState keeps only the latest connection state for the UI.
func (r *Runtime) forwardState(s realtime.ConnectionState) {
	select {
	case <-r.states:
	default:
	}
	select {
	case r.states <- s:
	default:
	}
}

// Changes delivers session changes after the services have reacted.
func (r *Runtime) Changes() <-chan session.Change {
	return r.changes
}

// ConnectionStates delivers the latest realtime connection state.
func (r *Runtime) ConnectionStates() <-chan realtime.ConnectionState {
	return r.states
}

// Login authenticates against the API and stores the resulting session.
func (r *Runtime) Login(ctx context.Context, creds api.Credentials) error {
	res, err := r.API.Login(ctx, creds)
	if err != nil {
		return err
	}
	return r.Session.LoginWithRefresh(ctx, res.User, res.Token, res.RefreshToken)
}

// Close stops every background activity. The session is not logged out.
func (r *Runtime) Close() error {
	r.Poller.Stop()
	r.Timer.Stop()
	r.unsubscribe()
	r.Session.Close()
	r.Channel.Close()
	r.Notifications.Dispose()

	err := r.Shared.Close()
	if cerr := r.logFile.Close(); err == nil {
		err = cerr
	}
	return err
}
