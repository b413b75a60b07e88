// Package testutil provides shared test helpers.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/starford/chatsync/internal/models"
	"github.com/starford/chatsync/internal/storage"
)

// Logger returns a logger that only reports errors, to stderr.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// TestFS creates a temporary storage root that is removed after the test.
func TestFS(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}

// TestDBPath returns a path for a throwaway SQLite database.
func TestDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "chatsync-test.db")
}

// Eventually polls fn every tick until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

// Provider returns a provider config with a fresh id.
func Provider(name string) models.ProviderConfig {
	return models.ProviderConfig{
		ID:      uuid.NewString(),
		Type:    models.ProviderOpenAI,
		Name:    name,
		BaseURL: "https://api.openai.com/v1",
		APIKey:  "sk-" + name,
		Enabled: true,
		Models:  []models.Model{},
	}
}

// Settings returns a user-modified document holding the given providers.
func Settings(providers ...models.ProviderConfig) models.SettingsDocument {
	doc := models.NewDefaultSettings()
	doc.Init = false
	doc.Providers = append(doc.Providers, providers...)
	return doc
}
