package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/nhle/workdesk/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	return openStore(t, ":memory:")
}

// NewSharedStores opens n SQLiteStores on the same temporary file, the way
// separate client processes share one state file. Change polling runs
// every 10ms.
func NewSharedStores(t *testing.T, n int) []*store.SQLiteStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "state.db")
	stores := make([]*store.SQLiteStore, n)
	for i := range stores {
		stores[i] = openStore(t, path, store.WithWatchInterval(10*time.Millisecond))
	}
	return stores
}

func openStore(t *testing.T, path string, opts ...store.Option) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(path, opts...)
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}
