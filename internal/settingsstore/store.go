// Package settingsstore persists the local SettingsDocument as a JSON file
// and publishes every replacement to observers.
package settingsstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/starford/chatsync/internal/checksum"
	"github.com/starford/chatsync/internal/models"
	"github.com/starford/chatsync/internal/storage"
)

// DefaultFileName is the settings document file name inside the data dir.
const DefaultFileName = "settings.json"

// UpdateFunc derives the next document from the current one.
type UpdateFunc func(current models.SettingsDocument) (models.SettingsDocument, error)

// Store is a reactive, copy-on-write document store. Every update replaces
// the whole document.
type Store struct {
	fs     storage.Provider
	name   string
	logger *slog.Logger

	mu      sync.Mutex
	doc     models.SettingsDocument
	lastSum string
	subs    map[chan models.SettingsDocument]struct{}
}

// Open loads the document from fs, falling back to the default document
// (Init=true) when the file does not exist yet.
func Open(fs storage.Provider, name string, logger *slog.Logger) (*Store, error) {
	if name == "" {
		name = DefaultFileName
	}
	s := &Store{
		fs:     fs,
		name:   name,
		logger: logger,
		doc:    models.NewDefaultSettings(),
		subs:   make(map[chan models.SettingsDocument]struct{}),
	}
	data, err := fs.Read(name)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("settingsstore: open: %w", err)
	}
	doc, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("settingsstore: open: %w", err)
	}
	s.doc = doc
	s.lastSum = checksum.Sum(data)
	return s, nil
}

// Path returns the absolute path of the backing file.
func (s *Store) Path() (string, error) {
	return s.fs.Abs(s.name)
}

// Get returns a copy of the current document.
func (s *Store) Get() models.SettingsDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// Observe returns a stream of documents. The current document is delivered
// first; afterwards each replacement is delivered. A slow reader only ever
// sees the latest value. The channel is closed when ctx is done.
func (s *Store) Observe(ctx context.Context) <-chan models.SettingsDocument {
	ch := make(chan models.SettingsDocument, 1)

	s.mu.Lock()
	ch <- s.doc.Clone()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, ch)
		close(ch)
		s.mu.Unlock()
	}()
	return ch
}

// Update atomically replaces the document with the result of fn. The Init
// flag is cleared since the document has now been modified.
func (s *Store) Update(_ context.Context, fn UpdateFunc) (models.SettingsDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(s.doc.Clone())
	if err != nil {
		return models.SettingsDocument{}, err
	}
	next.Init = false
	if err := next.Validate(); err != nil {
		return models.SettingsDocument{}, fmt.Errorf("settingsstore: update: %w", err)
	}
	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return models.SettingsDocument{}, fmt.Errorf("settingsstore: encode: %w", err)
	}
	if err := s.fs.Write(s.name, data); err != nil {
		return models.SettingsDocument{}, fmt.Errorf("settingsstore: update: %w", err)
	}
	s.lastSum = checksum.Sum(data)
	s.doc = next
	s.broadcastLocked()
	return next.Clone(), nil
}

// Replace stores doc as the new document.
func (s *Store) Replace(ctx context.Context, doc models.SettingsDocument) (models.SettingsDocument, error) {
	return s.Update(ctx, func(models.SettingsDocument) (models.SettingsDocument, error) {
		return doc, nil
	})
}

// Reload re-reads the backing file and publishes it when its content
// differs from what this store last wrote. It reports whether the document
// changed.
func (s *Store) Reload() (bool, error) {
	data, err := s.fs.Read(s.name)
	if err != nil {
		return false, fmt.Errorf("settingsstore: reload: %w", err)
	}
	sum := checksum.Sum(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if sum == s.lastSum {
		return false, nil
	}
	doc, err := decode(data)
	if err != nil {
		return false, fmt.Errorf("settingsstore: reload: %w", err)
	}
	s.doc = doc
	s.lastSum = sum
	s.broadcastLocked()
	return true, nil
}

func (s *Store) broadcastLocked() {
	for ch := range s.subs {
		doc := s.doc.Clone()
		select {
		case ch <- doc:
			continue
		default:
		}
		// Drop the stale pending value.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- doc:
		default:
		}
	}
}

func decode(data []byte) (models.SettingsDocument, error) {
	doc := models.NewDefaultSettings()
	doc.Init = false
	if err := json.Unmarshal(data, &doc); err != nil {
		return models.SettingsDocument{}, fmt.Errorf("decode settings: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return models.SettingsDocument{}, fmt.Errorf("validate settings: %w", err)
	}
	return doc, nil
}
