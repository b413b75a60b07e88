package backup

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/starford/chatsync/internal/apperr"
	"github.com/starford/chatsync/internal/checksum"
	"github.com/starford/chatsync/internal/models"
)

// FormatVersion is written to every manifest. Bundles with a newer
// version are rejected.
const FormatVersion = 1

const (
	namePrefix        = "chatsync_backup_"
	nameSuffix        = ".zip"
	nameTimeLayout    = "20060102T150405.000Z"
	legacyTimeLayout  = "20060102T150405Z"
	entryManifest     = "manifest.json"
	entrySettings     = "settings.json"
	entryConversation = "conversations.json"
)

// Manifest describes the content of a bundle.
type Manifest struct {
	Version       int               `json:"version"`
	CreatedAt     time.Time         `json:"createdAt"`
	Conversations int               `json:"conversations"`
	Checksums     map[string]string `json:"checksums"`
}

// Bundle is the full local state carried by a backup.
type Bundle struct {
	Manifest      Manifest
	Settings      models.SettingsDocument
	Conversations []models.ConversationRecord
}

// maxEntryBytes caps the decompressed size of a single archive entry.
var maxEntryBytes int64 = 256 << 20

// FileName returns the blob name for a backup taken at t, with millisecond
// resolution.
func FileName(t time.Time) string {
	return namePrefix + t.UTC().Format(nameTimeLayout) + nameSuffix
}

// IsBackupName reports whether name looks like a blob written by FileName.
func IsBackupName(name string) bool {
	if !strings.HasPrefix(name, namePrefix) || !strings.HasSuffix(name, nameSuffix) {
		return false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, namePrefix), nameSuffix)
	if _, err := time.Parse(nameTimeLayout, stamp); err == nil {
		return true
	}
	_, err := time.Parse(legacyTimeLayout, stamp)
	return err == nil
}

// Encode writes settings and conversations as a zip archive.
func Encode(w io.Writer, settings models.SettingsDocument, convs []models.ConversationRecord, now time.Time) error {
	if convs == nil {
		convs = []models.ConversationRecord{}
	}
	settingsJSON, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("backup: encode settings: %w", err)
	}
	convJSON, err := json.Marshal(convs)
	if err != nil {
		return fmt.Errorf("backup: encode conversations: %w", err)
	}
	manifest := Manifest{
		Version:       FormatVersion,
		CreatedAt:     now.UTC(),
		Conversations: len(convs),
		Checksums: map[string]string{
			entrySettings:     checksum.Sum(settingsJSON),
			entryConversation: checksum.Sum(convJSON),
		},
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("backup: encode manifest: %w", err)
	}

	zw := zip.NewWriter(w)
	for _, e := range []struct {
		name string
		data []byte
	}{
		{entryManifest, manifestJSON},
		{entrySettings, settingsJSON},
		{entryConversation, convJSON},
	} {
		f, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: zip.Deflate, Modified: now.UTC()})
		if err != nil {
			return fmt.Errorf("backup: create %s: %w", e.name, err)
		}
		if _, err := f.Write(e.data); err != nil {
			return fmt.Errorf("backup: write %s: %w", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("backup: close archive: %w", err)
	}
	return nil
}

// Decode reads and verifies a bundle produced by Encode.
func Decode(data []byte) (*Bundle, error) {
	const op = "backup: decode"
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, apperr.New(op, apperr.ErrDecode, err)
	}
	entries := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, apperr.New(op, apperr.ErrDecode, err)
		}
		b, err := io.ReadAll(io.LimitReader(rc, maxEntryBytes+1))
		rc.Close()
		if err != nil {
			return nil, apperr.New(op, apperr.ErrDecode, err)
		}
		if int64(len(b)) > maxEntryBytes {
			return nil, apperr.Decodef(op, "%s exceeds %d bytes", f.Name, maxEntryBytes)
		}
		entries[f.Name] = b
	}

	var b Bundle
	raw, ok := entries[entryManifest]
	if !ok {
		return nil, apperr.Decodef(op, "missing %s", entryManifest)
	}
	if err := json.Unmarshal(raw, &b.Manifest); err != nil {
		return nil, apperr.New(op, apperr.ErrDecode, err)
	}
	if b.Manifest.Version > FormatVersion {
		return nil, apperr.Decodef(op, "unsupported format version %d", b.Manifest.Version)
	}
	for _, name := range []string{entrySettings, entryConversation} {
		content, ok := entries[name]
		if !ok {
			return nil, apperr.Decodef(op, "missing %s", name)
		}
		if want := b.Manifest.Checksums[name]; !checksum.Verify(content, want) {
			return nil, apperr.Decodef(op, "checksum mismatch for %s", name)
		}
	}
	if err := json.Unmarshal(entries[entrySettings], &b.Settings); err != nil {
		return nil, apperr.New(op, apperr.ErrDecode, err)
	}
	if err := json.Unmarshal(entries[entryConversation], &b.Conversations); err != nil {
		return nil, apperr.New(op, apperr.ErrDecode, err)
	}
	return &b, nil
}
