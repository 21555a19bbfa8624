package store

import "context"

// KV is a string key/value storage. Get reports ok=false for a key that
// is not present; that is not an error.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Change describes a key that another process added, modified or removed.
// NewValue is empty when the key was removed; OldValue is empty when the
// key did not exist before.
type Change struct {
	Key      string
	OldValue string
	NewValue string
}

// Removed reports whether the change deleted the key.
func (c Change) Removed() bool {
	return c.NewValue == ""
}
