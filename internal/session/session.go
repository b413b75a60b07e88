// Package session stores the cloud auth token in a keyring.
package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/99designs/keyring"
)

const (
	serviceName = "chatsync"
	tokenKey    = "cloud-token"
)

// Backend names accepted by Open.
const (
	BackendOS     = "os"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// Options selects and configures the keyring backend.
type Options struct {
	Backend  string
	FileDir  string
	Password string
}

// Store reads and writes the auth token. The token is absent until a
// login flow outside this module calls SetToken.
type Store struct {
	ring keyring.Keyring
}

// New wraps an already opened keyring.
func New(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// NewMemory returns a store backed by a process-local keyring.
func NewMemory() *Store {
	return New(keyring.NewArrayKeyring(nil))
}

// Open opens the keyring named by opts.Backend.
func Open(opts Options) (*Store, error) {
	cfg := keyring.Config{ServiceName: serviceName}
	switch strings.ToLower(opts.Backend) {
	case BackendMemory:
		return NewMemory(), nil
	case BackendFile:
		cfg.AllowedBackends = []keyring.BackendType{keyring.FileBackend}
		cfg.FileDir = opts.FileDir
		cfg.FilePasswordFunc = keyring.FixedStringPrompt(opts.Password)
	case BackendOS, "":
		cfg.AllowedBackends = []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
			keyring.WinCredBackend,
		}
	default:
		return nil, fmt.Errorf("session: unknown keyring backend %q", opts.Backend)
	}
	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("session: open keyring: %w", err)
	}
	return New(ring), nil
}

// Token returns the stored token, or "" when none is stored.
func (s *Store) Token(_ context.Context) (string, error) {
	item, err := s.ring.Get(tokenKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("session: get token: %w", err)
	}
	return strings.TrimSpace(string(item.Data)), nil
}

// SetToken stores token, replacing any previous one.
func (s *Store) SetToken(_ context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("session: token is empty")
	}
	err := s.ring.Set(keyring.Item{
		Key:   tokenKey,
		Data:  []byte(token),
		Label: "chatsync cloud token",
	})
	if err != nil {
		return fmt.Errorf("session: set token: %w", err)
	}
	return nil
}

// Clear removes the stored token. Clearing an absent token is not an error.
func (s *Store) Clear(_ context.Context) error {
	err := s.ring.Remove(tokenKey)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("session: clear token: %w", err)
	}
	return nil
}
