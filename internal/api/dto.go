package api

import (
	"github.com/starford/chatsync/internal/backup"
	"github.com/starford/chatsync/internal/syncer"
)

// State is the observable outcome of one operation (aliased from the domain layer).
type State = syncer.State

// BackupItem is one remote backup blob (aliased from the domain layer).
type BackupItem = backup.Item

// StatesResponse lists the current state of every operation.
type StatesResponse struct {
	States map[string]State `json:"states" validate:"required"`
}

// OperationResponse is returned by every on-demand operation.
type OperationResponse struct {
	Op    string `json:"op" example:"restore_conversations" validate:"required"`
	State State  `json:"state" validate:"required"`
}

// CountResponse carries the number of non-deleted cloud conversations.
type CountResponse struct {
	Count int `json:"count" example:"12" validate:"required"`
}

// BackupListResponse wraps remote backup listings, newest first.
type BackupListResponse struct {
	Backups []BackupItem `json:"backups" validate:"required"`
	Total   int          `json:"total" example:"3" validate:"required"`
}

// ExportResponse carries the path of a locally exported bundle.
type ExportResponse struct {
	Path string `json:"path" example:"/var/lib/chatsync/exports/chatsync_backup_20240501T120000Z.zip" validate:"required"`
}

// ImportResponse reports how many providers an import added.
type ImportResponse struct {
	Imported int `json:"imported" example:"2" validate:"required"`
}
