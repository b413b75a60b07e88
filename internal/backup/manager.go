// Package backup creates and restores whole-state backups on a WebDAV
// target or a local file.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/starford/chatsync/internal/apperr"
	"github.com/starford/chatsync/internal/models"
	"github.com/starford/chatsync/internal/storage"
)

// DefaultDir is the remote directory used when the configuration names
// none.
const DefaultDir = "chatsync"

// ErrNotConfigured is returned when no WebDAV URL is set.
var ErrNotConfigured = errors.New("webdav not configured")

// ErrInvalidName is returned for blob names that FileName cannot produce.
var ErrInvalidName = errors.New("invalid backup name")

// SettingsStore is the local settings document.
type SettingsStore interface {
	Get() models.SettingsDocument
	Replace(ctx context.Context, doc models.SettingsDocument) (models.SettingsDocument, error)
}

// ConversationStore is the local conversation repository.
type ConversationStore interface {
	Search(ctx context.Context, query string) ([]models.ConversationRecord, error)
	ReplaceAll(ctx context.Context, recs []models.ConversationRecord) error
}

// Item is one backup blob on the remote.
type Item struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// RestoreResult summarizes what a restore replaced.
type RestoreResult struct {
	Providers     int       `json:"providers"`
	Assistants    int       `json:"assistants"`
	Conversations int       `json:"conversations"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Manager runs backup operations against the WebDAV target configured in
// the current settings document.
type Manager struct {
	settings SettingsStore
	convs    ConversationStore
	dial     Dialer
	logger   *slog.Logger
	now      func() time.Time
}

// NewManager returns a Manager. A nil dial uses WebDavDialer(0).
func NewManager(settings SettingsStore, convs ConversationStore, dial Dialer, logger *slog.Logger) *Manager {
	if dial == nil {
		dial = WebDavDialer(0)
	}
	return &Manager{settings: settings, convs: convs, dial: dial, logger: logger, now: time.Now}
}

func (m *Manager) connect() (Transport, string, error) {
	cfg := m.settings.Get().WebDav
	if !cfg.Configured() {
		return nil, "", ErrNotConfigured
	}
	dir := strings.Trim(cfg.Path, "/")
	if dir == "" {
		dir = DefaultDir
	}
	return m.dial(cfg), "/" + dir, nil
}

// TestConnection checks that the target is reachable with the configured
// credentials.
func (m *Manager) TestConnection(_ context.Context) error {
	t, _, err := m.connect()
	if err != nil {
		return err
	}
	return classify("backup: connect", t.Connect())
}

// List returns backup blobs, newest first. Ties are broken by name,
// descending. A missing backup directory yields an empty list.
func (m *Manager) List(_ context.Context) ([]Item, error) {
	t, dir, err := m.connect()
	if err != nil {
		return nil, err
	}
	infos, err := t.ReadDir(dir)
	if err != nil {
		err = classify("backup: list", err)
		if errors.Is(err, apperr.ErrNotFound) {
			return []Item{}, nil
		}
		return nil, err
	}
	items := make([]Item, 0, len(infos))
	for _, fi := range infos {
		if fi.IsDir() || !IsBackupName(fi.Name()) {
			continue
		}
		items = append(items, Item{Name: fi.Name(), Size: fi.Size(), LastModified: fi.ModTime()})
	}
	SortItems(items)
	return items, nil
}

// SortItems orders items newest first, then by name descending.
func SortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].LastModified.Equal(items[j].LastModified) {
			return items[i].LastModified.After(items[j].LastModified)
		}
		return items[i].Name > items[j].Name
	})
}

// Backup uploads the current settings and all conversations as one blob.
func (m *Manager) Backup(ctx context.Context) (Item, error) {
	t, dir, err := m.connect()
	if err != nil {
		return Item{}, err
	}
	now := m.now()
	data, err := m.encode(ctx, now)
	if err != nil {
		return Item{}, err
	}
	if err := t.MkdirAll(dir, 0o755); err != nil {
		return Item{}, classify("backup: mkdir", err)
	}
	name := FileName(now)
	if err := t.Write(path.Join(dir, name), data, 0o644); err != nil {
		return Item{}, classify("backup: upload", err)
	}
	m.logger.Info("backup: uploaded", slog.String("name", name), slog.Int("bytes", len(data)))
	return Item{Name: name, Size: int64(len(data)), LastModified: now.UTC()}, nil
}

// Restore downloads the named blob and replaces local state with it.
func (m *Manager) Restore(ctx context.Context, name string) (RestoreResult, error) {
	if !IsBackupName(name) {
		return RestoreResult{}, fmt.Errorf("backup: restore %q: %w", name, ErrInvalidName)
	}
	t, dir, err := m.connect()
	if err != nil {
		return RestoreResult{}, err
	}
	data, err := t.Read(path.Join(dir, name))
	if err != nil {
		return RestoreResult{}, classify("backup: download "+name, err)
	}
	return m.apply(ctx, data)
}

// Delete removes the named blob.
func (m *Manager) Delete(_ context.Context, name string) error {
	if !IsBackupName(name) {
		return fmt.Errorf("backup: delete %q: %w", name, ErrInvalidName)
	}
	t, dir, err := m.connect()
	if err != nil {
		return err
	}
	return classify("backup: delete "+name, t.Remove(path.Join(dir, name)))
}

// ExportToFile writes a bundle to the local path, atomically. When path is
// a directory the file gets a FileName name inside it. It returns the path
// written.
func (m *Manager) ExportToFile(ctx context.Context, dest string) (string, error) {
	now := m.now()
	if fi, err := os.Stat(dest); err == nil && fi.IsDir() {
		dest = filepath.Join(dest, FileName(now))
	}
	data, err := m.encode(ctx, now)
	if err != nil {
		return "", err
	}
	fs, err := storage.NewFS(filepath.Dir(dest))
	if err != nil {
		return "", fmt.Errorf("backup: export: %w", err)
	}
	if err := fs.Write(filepath.Base(dest), data); err != nil {
		return "", fmt.Errorf("backup: export: %w", err)
	}
	m.logger.Info("backup: exported", slog.String("path", dest), slog.Int("bytes", len(data)))
	return dest, nil
}

// RestoreFromLocalFile replaces local state with the bundle at path.
func (m *Manager) RestoreFromLocalFile(ctx context.Context, src string) (RestoreResult, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return RestoreResult{}, apperr.New("backup: read "+src, apperr.ErrNotFound, err)
		}
		return RestoreResult{}, fmt.Errorf("backup: read %s: %w", src, err)
	}
	return m.apply(ctx, data)
}

func (m *Manager) encode(ctx context.Context, now time.Time) ([]byte, error) {
	convs, err := m.convs.Search(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("backup: load conversations: %w", err)
	}
	var buf bytes.Buffer
	if err := Encode(&buf, m.settings.Get(), convs, now); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// apply is a full replace: settings are overwritten except the local
// WebDAV connection, and the conversation table is swapped in one
// transaction. The settings document is validated before anything is
// touched. If writing settings fails after the swap, the previous
// conversations are put back.
func (m *Manager) apply(ctx context.Context, data []byte) (RestoreResult, error) {
	b, err := Decode(data)
	if err != nil {
		return RestoreResult{}, err
	}
	doc := b.Settings
	doc.WebDav = m.settings.Get().WebDav
	if err := doc.Validate(); err != nil {
		return RestoreResult{}, apperr.New("backup: validate settings", apperr.ErrDecode, err)
	}

	prev, err := m.convs.Search(ctx, "")
	if err != nil {
		return RestoreResult{}, fmt.Errorf("backup: load conversations: %w", err)
	}
	if err := m.convs.ReplaceAll(ctx, b.Conversations); err != nil {
		return RestoreResult{}, fmt.Errorf("backup: replace conversations: %w", err)
	}
	if _, err := m.settings.Replace(ctx, doc); err != nil {
		if rerr := m.convs.ReplaceAll(context.WithoutCancel(ctx), prev); rerr != nil {
			m.logger.Error("backup: roll back conversations", slog.String("error", rerr.Error()))
		}
		return RestoreResult{}, fmt.Errorf("backup: replace settings: %w", err)
	}
	res := RestoreResult{
		Providers:     len(doc.Providers),
		Assistants:    len(doc.Assistants),
		Conversations: len(b.Conversations),
		CreatedAt:     b.Manifest.CreatedAt,
	}
	m.logger.Info("backup: restored",
		slog.Int("providers", res.Providers),
		slog.Int("conversations", res.Conversations))
	return res, nil
}
