package credential

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"
)

const serviceName = "workdesk"

// Keyring stores secrets in the system keyring. It satisfies store.KV so
// it can hold the refresh token in place of the shared state file.
type Keyring struct {
	ring keyring.Keyring
}

// Open returns a Keyring backed by the first available system backend,
// falling back to an encrypted file under ~/.config/workdesk/credentials.
func Open() (*Keyring, error) {
	fileDir := "~/.config/workdesk/credentials"
	if home, err := os.UserHomeDir(); err == nil {
		fileDir = filepath.Join(home, ".config", "workdesk", "credentials")
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt("workdesk-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Keyring{ring: ring}, nil
}

// New wraps an already opened keyring.
func New(ring keyring.Keyring) *Keyring {
	return &Keyring{ring: ring}
}

// Get retrieves a credential value by key.
func (k *Keyring) Get(_ context.Context, key string) (string, bool, error) {
	item, err := k.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), true, nil
}

// Set stores a credential value by key.
func (k *Keyring) Set(_ context.Context, key, value string) error {
	err := k.ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: serviceName + " " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Remove deletes a credential by key. Removing a missing key is a no-op.
func (k *Keyring) Remove(_ context.Context, key string) error {
	err := k.ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}
