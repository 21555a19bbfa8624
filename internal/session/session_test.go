package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/workdesk/internal/model"
	"github.com/nhle/workdesk/internal/store"
	"github.com/nhle/workdesk/internal/testutil"
)

var alice = model.Identity{ID: "u1", Username: "alice", Role: model.RoleManager}

type fakeWatcher struct {
	ch chan store.Change
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{ch: make(chan store.Change)}
}

func (w *fakeWatcher) Watch(ctx context.Context) <-chan store.Change {
	out := make(chan store.Change)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case c := <-w.ch:
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

type failingKV struct {
	store.KV
}

func (failingKV) Set(context.Context, string, string) error {
	return errors.New("disk full")
}

type recorder struct {
	mu      sync.Mutex
	changes []Change
}

func (r *recorder) record(c Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) reasons() []Reason {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Reason, len(r.changes))
	for i, c := range r.changes {
		out[i] = c.Reason
	}
	return out
}

func get(t *testing.T, kv store.KV, key string) (string, bool) {
	t.Helper()
	v, ok, err := kv.Get(context.Background(), key)
	require.NoError(t, err)
	return v, ok
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return tok
}

func TestInitialize_NoStoredSession(t *testing.T) {
	s := New(Options{})
	var rec recorder
	s.Subscribe(rec.record)

	assert.True(t, s.Loading())
	s.Initialize(context.Background())

	assert.False(t, s.Loading())
	assert.Equal(t, StateReady, s.State())
	assert.Nil(t, s.Session())
	assert.Equal(t, []Reason{ReasonRestored}, rec.reasons())
}

func TestLogin_PersistsIdentityAndToken(t *testing.T) {
	ctx := context.Background()
	tab, shared, secrets := store.NewMemoryStore(), store.NewMemoryStore(), store.NewMemoryStore()
	s := New(Options{Tab: tab, Shared: shared, Secrets: secrets})
	s.Initialize(ctx)

	require.NoError(t, s.LoginWithRefresh(ctx, alice, "tok-1", "ref-1"))

	sess := s.Session()
	require.NotNil(t, sess)
	assert.Equal(t, alice, sess.Identity)
	assert.Equal(t, "tok-1", s.Token())

	_, ok := get(t, tab, KeyUser)
	assert.True(t, ok)
	_, ok = get(t, tab, KeyToken)
	assert.False(t, ok, "token must not be process-local")
	_, ok = get(t, shared, KeyUser)
	assert.True(t, ok)
	tok, _ := get(t, shared, KeyToken)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, "ref-1", s.RefreshToken(ctx))
}

func TestLogout_ClearsEverything(t *testing.T) {
	ctx := context.Background()
	tab, shared, secrets := store.NewMemoryStore(), store.NewMemoryStore(), store.NewMemoryStore()
	s := New(Options{Tab: tab, Shared: shared, Secrets: secrets})
	s.Initialize(ctx)
	require.NoError(t, s.LoginWithRefresh(ctx, alice, "tok-1", "ref-1"))

	s.Logout(ctx)

	assert.Nil(t, s.Session())
	assert.Nil(t, s.Identity())
	for _, kv := range []store.KV{tab, shared, secrets} {
		for _, key := range []string{KeyUser, KeyToken, KeyRefreshToken} {
			_, ok := get(t, kv, key)
			assert.False(t, ok, key)
		}
	}
}

func TestLogin_PersistFailureLeavesNoSession(t *testing.T) {
	ctx := context.Background()
	tab := store.NewMemoryStore()
	s := New(Options{Tab: tab, Shared: failingKV{store.NewMemoryStore()}})
	s.Initialize(ctx)

	err := s.Login(ctx, alice, "tok-1")
	require.Error(t, err)

	assert.Nil(t, s.Session())
	_, ok := get(t, tab, KeyUser)
	assert.False(t, ok)
}

func TestInitialize_AdoptsSharedIdentity(t *testing.T) {
	ctx := context.Background()
	tab, shared := store.NewMemoryStore(), store.NewMemoryStore()
	require.NoError(t, shared.Set(ctx, KeyUser, `{"_id":"u1","username":"alice","role":"Manager"}`))
	require.NoError(t, shared.Set(ctx, KeyToken, "tok-1"))

	s := New(Options{Tab: tab, Shared: shared})
	s.Initialize(ctx)

	sess := s.Session()
	require.NotNil(t, sess)
	assert.Equal(t, alice, sess.Identity)
	assert.Equal(t, "tok-1", sess.AccessToken)

	raw, ok := get(t, tab, KeyUser)
	assert.True(t, ok)
	assert.Contains(t, raw, `"u1"`)
}

func TestInitialize_CorruptIdentityClearsStorage(t *testing.T) {
	ctx := context.Background()
	tab, shared := store.NewMemoryStore(), store.NewMemoryStore()
	require.NoError(t, shared.Set(ctx, KeyUser, `{not json`))
	require.NoError(t, shared.Set(ctx, KeyToken, "tok-1"))
	require.NoError(t, shared.Set(ctx, KeyRefreshToken, "ref-1"))

	s := New(Options{Tab: tab, Shared: shared})
	s.Initialize(ctx)

	assert.Nil(t, s.Session())
	assert.False(t, s.Loading())
	for _, key := range []string{KeyUser, KeyToken, KeyRefreshToken} {
		_, ok := get(t, shared, key)
		assert.False(t, ok, key)
	}
	_, ok := get(t, tab, KeyUser)
	assert.False(t, ok)
}

func TestInitialize_IdentityWithoutTokenIsDiscarded(t *testing.T) {
	ctx := context.Background()
	tab, shared := store.NewMemoryStore(), store.NewMemoryStore()
	require.NoError(t, tab.Set(ctx, KeyUser, `{"_id":"u1","role":"Manager"}`))

	s := New(Options{Tab: tab, Shared: shared})
	s.Initialize(ctx)

	assert.Nil(t, s.Session())
	_, ok := get(t, tab, KeyUser)
	assert.False(t, ok)
}

func TestInitialize_ExpiredTokenClearsStorage(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	shared := store.NewMemoryStore()
	require.NoError(t, shared.Set(ctx, KeyUser, `{"_id":"u1","role":"Employee"}`))
	require.NoError(t, shared.Set(ctx, KeyToken, signedToken(t, now.Add(-time.Minute))))

	s := New(Options{Shared: shared, Now: func() time.Time { return now }})
	s.Initialize(ctx)

	assert.Nil(t, s.Session())
	_, ok := get(t, shared, KeyToken)
	assert.False(t, ok)
}

func TestInitialize_ValidTokenCarriesExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	exp := now.Add(time.Hour)
	shared := store.NewMemoryStore()
	require.NoError(t, shared.Set(ctx, KeyUser, `{"_id":"u1","role":"Employee"}`))
	require.NoError(t, shared.Set(ctx, KeyToken, signedToken(t, exp)))

	s := New(Options{Shared: shared, Now: func() time.Time { return now }})
	s.Initialize(ctx)

	sess := s.Session()
	require.NotNil(t, sess)
	assert.True(t, sess.ExpiresAt.Equal(exp))
}

func TestRemoteTokenRemovalClearsSession(t *testing.T) {
	ctx := context.Background()
	tab := store.NewMemoryStore()
	w := newFakeWatcher()
	s := New(Options{Tab: tab, Watcher: w})
	s.Initialize(ctx)
	defer s.Close()
	require.NoError(t, s.Login(ctx, alice, "tok-1"))

	removed := make(chan Change, 1)
	s.Subscribe(func(c Change) {
		if c.Reason == ReasonRemoteLogout {
			removed <- c
		}
	})

	// Unrelated keys and rewrites of the same token are ignored.
	w.ch <- store.Change{Key: KeyUser, OldValue: "x"}
	w.ch <- store.Change{Key: KeyToken, NewValue: "tok-1"}
	assert.NotNil(t, s.Session())

	w.ch <- store.Change{Key: KeyToken, OldValue: "tok-1"}

	select {
	case c := <-removed:
		assert.Nil(t, c.Session)
	case <-time.After(2 * time.Second):
		t.Fatal("remote logout not published")
	}
	assert.Nil(t, s.Session())
	_, ok := get(t, tab, KeyUser)
	assert.False(t, ok)
}

func TestCrossProcessLogout(t *testing.T) {
	ctx := context.Background()
	shared := testutil.NewSharedStores(t, 2)

	first := New(Options{Tab: store.NewMemoryStore(), Shared: shared[0], Watcher: shared[0]})
	first.Initialize(ctx)
	defer first.Close()
	require.NoError(t, first.Login(ctx, alice, "tok-1"))

	second := New(Options{Tab: store.NewMemoryStore(), Shared: shared[1], Watcher: shared[1]})
	second.Initialize(ctx)
	defer second.Close()
	require.NotNil(t, second.Session(), "second process adopts the shared session")

	first.Logout(ctx)

	require.Eventually(t, func() bool {
		return second.Session() == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReplacedTokenClearsSession(t *testing.T) {
	ctx := context.Background()
	w := newFakeWatcher()
	s := New(Options{Tab: store.NewMemoryStore(), Watcher: w})
	s.Initialize(ctx)
	defer s.Close()
	require.NoError(t, s.Login(ctx, alice, "tok-1"))

	rec := &recorder{}
	s.Subscribe(rec.record)

	w.ch <- store.Change{Key: KeyToken, OldValue: "tok-1", NewValue: "tok-2"}

	require.Eventually(t, func() bool {
		return s.Session() == nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []Reason{ReasonRemoteLogout}, rec.reasons())
}

func TestCrossProcessLoginAsAnotherUser(t *testing.T) {
	ctx := context.Background()
	shared := testutil.NewSharedStores(t, 2)
	bob := model.Identity{ID: "u2", Username: "bob", Role: model.RoleEmployee}

	first := New(Options{Tab: store.NewMemoryStore(), Shared: shared[0], Watcher: shared[0]})
	first.Initialize(ctx)
	defer first.Close()
	require.NoError(t, first.Login(ctx, alice, "tok-1"))

	second := New(Options{Tab: store.NewMemoryStore(), Shared: shared[1], Watcher: shared[1]})
	second.Initialize(ctx)
	defer second.Close()
	require.NotNil(t, second.Session())

	// Logging out and back in between two polls only shows up as a
	// replaced token.
	first.Logout(ctx)
	require.NoError(t, first.Login(ctx, bob, "tok-bob"))

	require.Eventually(t, func() bool {
		return second.Session() == nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, second.Token())

	// The process that signed in keeps its own session.
	require.NotNil(t, first.Session())
	assert.Equal(t, "bob", first.Identity().Username)
}

func TestSessionMatchesStorageAfterEveryCall(t *testing.T) {
	ctx := context.Background()
	tab, shared := store.NewMemoryStore(), store.NewMemoryStore()
	s := New(Options{Tab: tab, Shared: shared})
	s.Initialize(ctx)

	steps := []func(){
		func() { require.NoError(t, s.Login(ctx, alice, "a")) },
		func() { require.NoError(t, s.Login(ctx, alice, "b")) },
		func() { s.Logout(ctx) },
		func() { s.Logout(ctx) },
		func() { require.NoError(t, s.Login(ctx, alice, "c")) },
		func() { s.Logout(ctx) },
	}

	for i, step := range steps {
		step()
		_, hasUser := get(t, shared, KeyUser)
		_, hasToken := get(t, shared, KeyToken)
		assert.Equal(t, hasUser && hasToken, s.Session() != nil, "step %d", i)
		assert.Equal(t, hasUser, hasToken, "step %d", i)
	}
}

func TestLogin_RejectsPartialSession(t *testing.T) {
	s := New(Options{})
	s.Initialize(context.Background())

	assert.Error(t, s.Login(context.Background(), alice, ""))
	assert.Error(t, s.Login(context.Background(), model.Identity{}, "tok"))
	assert.Nil(t, s.Session())
}
