package syncer

import (
	"errors"
	"time"

	"github.com/starford/chatsync/internal/apperr"
)

// Status is the phase of an operation or of the auto-sync loop.
type Status string

// On-demand operation phases.
const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Auto-sync loop phases.
const (
	StatusWatching Status = "watching"
	StatusPushing  Status = "pushing"
	StatusStopped  Status = "stopped"
)

// Operation keys. Each has its own State.
const (
	OpAutoSync             = "auto_sync"
	OpRestoreConversations = "restore_conversations"
	OpRestoreSettings      = "restore_settings"
	OpRestoreAll           = "restore_all"
	OpUploadSettings       = "upload_settings"
	OpPublicProvider       = "public_provider"
	OpRestoreBackup        = "restore_backup"
)

var operations = []string{
	OpAutoSync,
	OpRestoreConversations,
	OpRestoreSettings,
	OpRestoreAll,
	OpUploadSettings,
	OpPublicProvider,
	OpRestoreBackup,
}

// State is the observable outcome of one operation. Restored and Skipped
// count conversations for conversation restores, sections for settings
// restores and uploads.
type State struct {
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Restored  int       `json:"restored"`
	Skipped   int       `json:"skipped"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Event is delivered to subscribers on every state change.
type Event struct {
	Op    string `json:"op"`
	State State  `json:"state"`
}

// AdvancePolicy controls when the auto-sync snapshot moves forward.
type AdvancePolicy string

// Advance policies.
const (
	// AdvanceAlways moves the snapshot after every attempted push, even a
	// failed one. A failed push is then not retried until the document
	// changes again.
	AdvanceAlways AdvancePolicy = "always"
	// AdvanceOnSuccess moves the snapshot only when all three uploads
	// succeeded, so the next debounced change retries.
	AdvanceOnSuccess AdvancePolicy = "on_success"
)

func errorMessage(err error) string {
	if errors.Is(err, apperr.ErrUnauthenticated) {
		return apperr.ErrUnauthenticated.Error()
	}
	return err.Error()
}
