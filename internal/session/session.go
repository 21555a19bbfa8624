// Package session keeps track of who is logged in to this client process
// and reconciles that with other processes sharing the same state file.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nhle/workdesk/internal/model"
	"github.com/nhle/workdesk/internal/store"
)

// Persisted keys. The identity lives in both the process-local and the
// shared storage; tokens only in the shared (or secret) storage.
const (
	KeyUser         = "user"
	KeyToken        = "token"
	KeyRefreshToken = "refreshToken"
)

// ErrCorruptIdentity is logged when the persisted identity cannot be used.
var ErrCorruptIdentity = errors.New("corrupt persisted identity")

// State is the lifecycle stage of a Store.
type State int

const (
	StateInitializing State = iota
	StateReady
	StateDisposed
)

// Reason explains why the session changed.
type Reason int

const (
	ReasonRestored Reason = iota
	ReasonLogin
	ReasonLogout
	ReasonRemoteLogout
)

func (r Reason) String() string {
	switch r {
	case ReasonRestored:
		return "restored"
	case ReasonLogin:
		return "login"
	case ReasonLogout:
		return "logout"
	case ReasonRemoteLogout:
		return "remote-logout"
	default:
		return "unknown"
	}
}

// Change is delivered to subscribers after every session transition.
// Session is nil when nobody is logged in.
type Change struct {
	Session *model.Session
	Reason  Reason
}

// Watcher reports keys changed in the shared storage by other processes.
type Watcher interface {
	Watch(ctx context.Context) <-chan store.Change
}

// Options configures a Store.
type Options struct {
	// Tab holds state private to this process.
	Tab store.KV

	// Shared holds state visible to every process of the user.
	Shared store.KV

	// Secrets holds the refresh token. Defaults to Shared.
	Secrets store.KV

	// Watcher delivers external changes to Shared. Optional.
	Watcher Watcher

	Logger *slog.Logger

	// Now is the time source for token expiry checks. Defaults to time.Now.
	Now func() time.Time
}

// Store is the single source of truth for the logged-in identity.
// It never panics on bad persisted data and never navigates; callers react
// to Change notifications.
type Store struct {
	tab     store.KV
	shared  store.KV
	secrets store.KV
	watcher Watcher
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.RWMutex
	state   State
	session *model.Session
	subs    map[int]func(Change)
	nextSub int

	stopWatch context.CancelFunc
	watchDone chan struct{}
}

// New creates a Store in StateInitializing. Call Initialize before use.
func New(opts Options) *Store {
	s := &Store{
		tab:     opts.Tab,
		shared:  opts.Shared,
		secrets: opts.Secrets,
		watcher: opts.Watcher,
		logger:  opts.Logger,
		now:     opts.Now,
		subs:    make(map[int]func(Change)),
	}
	if s.tab == nil {
		s.tab = store.NewMemoryStore()
	}
	if s.shared == nil {
		s.shared = store.NewMemoryStore()
	}
	if s.secrets == nil {
		s.secrets = s.shared
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "session")
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Initialize restores a persisted session, if any, and starts following
// changes made by other processes. It only has an effect the first time
// it is called.
func (s *Store) Initialize(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateInitializing {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	restored := s.restore(ctx)

	s.mu.Lock()
	if s.state != StateInitializing {
		s.mu.Unlock()
		return
	}
	s.session = restored
	s.state = StateReady
	if s.watcher != nil {
		watchCtx, cancel := context.WithCancel(context.Background())
		s.stopWatch = cancel
		s.watchDone = make(chan struct{})
		go s.follow(watchCtx, s.watcher.Watch(watchCtx), s.watchDone)
	}
	s.mu.Unlock()

	if restored != nil {
		s.logger.Info("session restored", "user", restored.Identity.Username, "role", restored.Identity.Role)
	} else {
		s.logger.Info("no stored session")
	}
	s.publish(Change{Session: cloneSession(restored), Reason: ReasonRestored})
}

// restore reads the persisted identity and token. Any inconsistency clears
// every persisted artifact and yields no session.
func (s *Store) restore(ctx context.Context) *model.Session {
	token, hasToken, err := s.shared.Get(ctx, KeyToken)
	if err != nil {
		s.logger.Error("reading stored token", "error", err)
		return nil
	}

	raw, hasUser, err := s.tab.Get(ctx, KeyUser)
	if err != nil {
		s.logger.Error("reading process identity", "error", err)
		return nil
	}

	if !hasUser && hasToken && token != "" {
		// A fresh process adopts the identity left by a sibling.
		raw, hasUser, err = s.shared.Get(ctx, KeyUser)
		if err != nil {
			s.logger.Error("reading shared identity", "error", err)
			return nil
		}
		if hasUser {
			if err := s.tab.Set(ctx, KeyUser, raw); err != nil {
				s.logger.Warn("copying shared identity", "error", err)
			}
		}
	}

	if !hasUser || !hasToken || token == "" {
		if hasUser != (hasToken && token != "") {
			s.logger.Warn("partial session in storage, discarding")
			s.clearPersisted(ctx)
		}
		return nil
	}

	identity, err := decodeIdentity(raw)
	if err != nil {
		s.logger.Error("failed to parse stored identity", "error", err)
		s.clearPersisted(ctx)
		return nil
	}

	sess := &model.Session{
		Identity:    identity,
		AccessToken: token,
		ExpiresAt:   tokenExpiry(token),
	}
	if sess.Expired(s.now()) {
		s.logger.Info("stored token expired", "expired_at", sess.ExpiresAt)
		s.clearPersisted(ctx)
		return nil
	}

	return sess
}

// Login sets the current session and persists it. On a persistence error
// nothing stays behind: the session remains empty and partial writes are
// removed.
func (s *Store) Login(ctx context.Context, identity model.Identity, token string) error {
	return s.LoginWithRefresh(ctx, identity, token, "")
}

// LoginWithRefresh is Login that also keeps a refresh token.
func (s *Store) LoginWithRefresh(ctx context.Context, identity model.Identity, token, refresh string) error {
	if token == "" || identity.ID == "" {
		return fmt.Errorf("login requires an identity and a token")
	}

	raw, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("encoding identity: %w", err)
	}

	if err := s.persist(ctx, string(raw), token, refresh); err != nil {
		s.clearPersisted(ctx)
		return err
	}

	sess := &model.Session{
		Identity:    identity,
		AccessToken: token,
		ExpiresAt:   tokenExpiry(token),
	}

	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()

	s.logger.Info("logged in", "user", identity.Username, "role", identity.Role)
	s.publish(Change{Session: cloneSession(sess), Reason: ReasonLogin})
	return nil
}

func (s *Store) persist(ctx context.Context, rawIdentity, token, refresh string) error {
	if err := s.tab.Set(ctx, KeyUser, rawIdentity); err != nil {
		return fmt.Errorf("saving process identity: %w", err)
	}
	if err := s.shared.Set(ctx, KeyUser, rawIdentity); err != nil {
		return fmt.Errorf("saving shared identity: %w", err)
	}
	if err := s.shared.Set(ctx, KeyToken, token); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	if refresh != "" {
		if err := s.secrets.Set(ctx, KeyRefreshToken, refresh); err != nil {
			return fmt.Errorf("saving refresh token: %w", err)
		}
	}
	return nil
}

// Logout clears the session and every persisted artifact.
func (s *Store) Logout(ctx context.Context) {
	s.mu.Lock()
	had := s.session != nil
	s.session = nil
	s.mu.Unlock()

	s.clearPersisted(ctx)

	if had {
		s.logger.Info("logged out")
	}
	s.publish(Change{Reason: ReasonLogout})
}

// clearPersisted removes every auth artifact, logging failures.
func (s *Store) clearPersisted(ctx context.Context) {
	removals := []struct {
		kv  store.KV
		key string
	}{
		{s.tab, KeyUser},
		{s.shared, KeyUser},
		{s.shared, KeyToken},
		{s.secrets, KeyRefreshToken},
	}
	if s.secrets != s.shared {
		removals = append(removals, struct {
			kv  store.KV
			key string
		}{s.shared, KeyRefreshToken})
	}

	for _, r := range removals {
		if err := r.kv.Remove(ctx, r.key); err != nil {
			s.logger.Warn("clearing persisted auth", "key", r.key, "error", err)
		}
	}
}

// follow reacts to shared-storage changes until ctx is cancelled.
func (s *Store) follow(ctx context.Context, changes <-chan store.Change, done chan struct{}) {
	defer close(done)

	for c := range changes {
		if c.Key != KeyToken {
			continue
		}
		// A replaced token means another process signed in, possibly as
		// someone else; polling may also have merged a logout with the
		// login that followed it.
		if !c.Removed() && c.NewValue == s.Token() {
			continue
		}
		s.remoteLogout(ctx)
	}
}

// remoteLogout handles a token removed or replaced by another process.
// Only this process's own artifacts need clearing.
func (s *Store) remoteLogout(ctx context.Context) {
	s.mu.Lock()
	if s.session == nil || s.state != StateReady {
		s.mu.Unlock()
		return
	}
	s.session = nil
	s.mu.Unlock()

	if err := s.tab.Remove(ctx, KeyUser); err != nil {
		s.logger.Warn("clearing process identity", "error", err)
	}

	s.logger.Info("logged out by another process")
	s.publish(Change{Reason: ReasonRemoteLogout})
}

// Subscribe registers fn for every subsequent Change and returns a
// function that removes it. fn runs on the goroutine that caused the
// change and must not block.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) publish(c Change) {
	s.mu.RLock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}

// Close stops following other processes and moves to StateDisposed.
func (s *Store) Close() {
	s.mu.Lock()
	if s.state == StateDisposed {
		s.mu.Unlock()
		return
	}
	s.state = StateDisposed
	stop, done := s.stopWatch, s.watchDone
	s.stopWatch, s.watchDone = nil, nil
	s.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
}

// State returns the lifecycle stage.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Loading reports whether Initialize has not completed yet.
func (s *Store) Loading() bool {
	return s.State() == StateInitializing
}

// Session returns a copy of the current session, or nil.
func (s *Store) Session() *model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSession(s.session)
}

// Identity returns the current identity, or nil.
func (s *Store) Identity() *model.Identity {
	sess := s.Session()
	if sess == nil {
		return nil
	}
	return &sess.Identity
}

// Token returns the current access token, or "".
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return ""
	}
	return s.session.AccessToken
}

// RefreshToken returns the stored refresh token, if any.
func (s *Store) RefreshToken(ctx context.Context) string {
	v, _, err := s.secrets.Get(ctx, KeyRefreshToken)
	if err != nil {
		s.logger.Warn("reading refresh token", "error", err)
		return ""
	}
	return v
}

func cloneSession(sess *model.Session) *model.Session {
	if sess == nil {
		return nil
	}
	cp := *sess
	return &cp
}

func decodeIdentity(raw string) (model.Identity, error) {
	var identity model.Identity
	if err := json.Unmarshal([]byte(raw), &identity); err != nil {
		return model.Identity{}, fmt.Errorf("%w: %v", ErrCorruptIdentity, err)
	}
	if identity.ID == "" || identity.Role == "" {
		return model.Identity{}, fmt.Errorf("%w: missing id or role", ErrCorruptIdentity)
	}
	return identity, nil
}

// tokenExpiry reads the exp claim of a JWT without verifying it. Opaque
// tokens and tokens without exp yield the zero time.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
