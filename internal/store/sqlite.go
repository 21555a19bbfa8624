package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const defaultWatchInterval = 500 * time.Millisecond

// SQLiteStore implements KV on a SQLite file that every client process of
// the same user opens. Changes written by other processes are reported
// through Watch.
type SQLiteStore struct {
	db            *sqlx.DB
	watchInterval time.Duration

	// mu serializes writes with change detection so that the known
	// snapshot always reflects this process's own writes.
	mu          sync.Mutex
	known       map[string]string
	dataVersion int64
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithWatchInterval sets how often Watch polls for external changes.
func WithWatchInterval(d time.Duration) Option {
	return func(s *SQLiteStore) {
		if d > 0 {
			s.watchInterval = d
		}
	}
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, fmt.Errorf("creating storage directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// A single connection keeps PRAGMA data_version meaningful: it only
	// moves when a different connection commits.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:            db,
		watchInterval: defaultWatchInterval,
		known:         make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	ctx := context.Background()
	if s.dataVersion, err = s.readDataVersion(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if s.known, err = s.readAll(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Get returns the value stored under key.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, "SELECT value FROM kv WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getting key %q: %w", key, err)
	}
	return value, true, nil
}

// Set inserts or replaces the value stored under key.
func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("setting key %q: %w", key, err)
	}

	s.known[key] = value
	return nil
}

// Remove deletes key. Removing a missing key is a no-op.
func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("removing key %q: %w", key, err)
	}

	delete(s.known, key)
	return nil
}

// Watch polls for commits made by other connections to the same file and
// emits one Change per modified key. The channel is closed when ctx is
// cancelled. Writes made through this store are never reported.
func (s *SQLiteStore) Watch(ctx context.Context) <-chan Change {
	out := make(chan Change, 16)

	go func() {
		defer close(out)

		ticker := time.NewTicker(s.watchInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			changes, err := s.poll(ctx)
			if err != nil {
				// Transient (busy file, cancelled ctx); the next tick retries.
				continue
			}

			for _, c := range changes {
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

// poll compares the current contents against the last known snapshot
// when another connection has committed since the previous poll.
func (s *SQLiteStore) poll(ctx context.Context) ([]Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	version, err := s.readDataVersion(ctx)
	if err != nil {
		return nil, err
	}
	if version == s.dataVersion {
		return nil, nil
	}

	current, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}

	var changes []Change
	for key, value := range current {
		old, ok := s.known[key]
		if !ok || old != value {
			changes = append(changes, Change{Key: key, OldValue: old, NewValue: value})
		}
	}
	for key, old := range s.known {
		if _, ok := current[key]; !ok {
			changes = append(changes, Change{Key: key, OldValue: old})
		}
	}
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Key < changes[j].Key
	})

	s.known = current
	s.dataVersion = version
	return changes, nil
}

func (s *SQLiteStore) readDataVersion(ctx context.Context) (int64, error) {
	var version int64
	if err := s.db.GetContext(ctx, &version, "PRAGMA data_version"); err != nil {
		return 0, fmt.Errorf("reading data version: %w", err)
	}
	return version, nil
}

func (s *SQLiteStore) readAll(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT key, value FROM kv")
	if err != nil {
		return nil, fmt.Errorf("querying kv: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning kv row: %w", err)
		}
		values[key] = value
	}

	return values, rows.Err()
}
