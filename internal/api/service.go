package api

import (
	"context"

	"github.com/starford/chatsync/internal/backup"
	"github.com/starford/chatsync/internal/syncer"
)

// Service is the part of the sync orchestrator the API drives.
type Service interface {
	States() map[string]syncer.State

	UploadSettingsToCloud(ctx context.Context) (syncer.State, error)
	RestoreFromCloud(ctx context.Context) (syncer.State, error)
	RestoreSettingsFromCloud(ctx context.Context) (syncer.State, error)
	RestoreAllFromCloud(ctx context.Context) (syncer.State, error)
	InstallPublicProvider(ctx context.Context) (syncer.State, error)
	CloudConversationCount(ctx context.Context) (int, error)

	ListBackups(ctx context.Context) ([]backup.Item, error)
	CreateBackup(ctx context.Context) (backup.Item, error)
	TestBackupConnection(ctx context.Context) error
	RestoreBackup(ctx context.Context, name string) (syncer.State, error)
	DeleteBackup(ctx context.Context, name string) error
	ExportBackup(ctx context.Context, dest string) (string, error)
	RestoreLocalBackup(ctx context.Context, src string) (syncer.State, error)

	ImportChatbox(ctx context.Context, data []byte) (int, error)
}

var _ Service = (*syncer.Orchestrator)(nil)
