package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/chatsync/internal/backup"
	"github.com/starford/chatsync/internal/importer"
	"github.com/starford/chatsync/internal/models"
)

// PublicProviderName is the display name of the injected shared provider.
const PublicProviderName = "Public provider"

const publicProviderDefaultURL = "https://api.openai.com/v1"

// ErrPublicProviderUnavailable is returned when the cloud does not offer a
// usable shared provider.
var ErrPublicProviderUnavailable = errors.New("public provider not enabled")

// ErrNoBackups is returned by backup operations when no manager is set.
var ErrNoBackups = errors.New("backups not configured")

// InstallPublicProvider fetches the shared provider offer and prepends it
// under the reserved id. It does nothing when a provider with that id is
// already present.
func (o *Orchestrator) InstallPublicProvider(ctx context.Context) (State, error) {
	return o.run(ctx, OpPublicProvider, func(ctx context.Context, token string) (State, error) {
		pp, err := o.cloud.FetchPublicProvider(ctx, token)
		if err != nil {
			return State{}, err
		}
		if !pp.Enabled || strings.TrimSpace(pp.APIKey) == "" {
			return State{}, ErrPublicProviderUnavailable
		}

		installed := false
		_, err = o.settings.Update(ctx, func(d models.SettingsDocument) (models.SettingsDocument, error) {
			if _, ok := d.FindProvider(models.PublicProviderID); ok {
				return d, nil
			}
			baseURL := strings.TrimSpace(pp.BaseURL)
			if baseURL == "" {
				baseURL = publicProviderDefaultURL
			}
			p := models.ProviderConfig{
				ID:      models.PublicProviderID,
				Type:    models.ProviderOpenAI,
				Name:    PublicProviderName,
				BaseURL: baseURL,
				APIKey:  pp.APIKey,
				Enabled: true,
				Models:  []models.Model{},
			}
			installed = true
			return importer.Prepend(d, []models.ProviderConfig{p}), nil
		})
		if err != nil {
			return State{}, fmt.Errorf("syncer: install public provider: %w", err)
		}
		if !installed {
			return State{Skipped: 1, Message: "already installed"}, nil
		}
		o.logger.Info("syncer: public provider installed", slog.Int("daily_limit", pp.DailyLimit))
		return State{Restored: 1}, nil
	})
}

// ImportChatbox prepends the providers found in a Chatbox export and
// returns how many were imported. It needs no token.
func (o *Orchestrator) ImportChatbox(ctx context.Context, data []byte) (int, error) {
	providers, err := importer.ParseChatbox(data)
	if err != nil {
		return 0, err
	}
	if len(providers) == 0 {
		return 0, nil
	}
	if _, err := o.settings.Update(ctx, func(d models.SettingsDocument) (models.SettingsDocument, error) {
		return importer.Prepend(d, providers), nil
	}); err != nil {
		return 0, fmt.Errorf("syncer: import chatbox: %w", err)
	}
	o.logger.Info("syncer: chatbox providers imported", slog.Int("count", len(providers)))
	return len(providers), nil
}

func (o *Orchestrator) backupManager() (Backups, error) {
	if o.backups == nil {
		return nil, ErrNoBackups
	}
	return o.backups, nil
}

// ListBackups lists WebDAV backups, newest first.
func (o *Orchestrator) ListBackups(ctx context.Context) ([]backup.Item, error) {
	b, err := o.backupManager()
	if err != nil {
		return nil, err
	}
	return b.List(ctx)
}

// CreateBackup uploads a new WebDAV backup.
func (o *Orchestrator) CreateBackup(ctx context.Context) (backup.Item, error) {
	b, err := o.backupManager()
	if err != nil {
		return backup.Item{}, err
	}
	return b.Backup(ctx)
}

// DeleteBackup removes a WebDAV backup.
func (o *Orchestrator) DeleteBackup(ctx context.Context, name string) error {
	b, err := o.backupManager()
	if err != nil {
		return err
	}
	return b.Delete(ctx, name)
}

// TestBackupConnection checks the WebDAV target.
func (o *Orchestrator) TestBackupConnection(ctx context.Context) error {
	b, err := o.backupManager()
	if err != nil {
		return err
	}
	return b.TestConnection(ctx)
}

// ExportBackup writes a backup bundle to a local path.
func (o *Orchestrator) ExportBackup(ctx context.Context, dest string) (string, error) {
	b, err := o.backupManager()
	if err != nil {
		return "", err
	}
	return b.ExportToFile(ctx, dest)
}

// RestoreBackup replaces local state with a WebDAV backup. It is a full
// replace, unlike RestoreFromCloud. The snapshot is left alone, so the
// restored settings are pushed on the next auto-sync cycle.
func (o *Orchestrator) RestoreBackup(ctx context.Context, name string) (State, error) {
	return o.restoreBackup("webdav:"+name, func(b Backups) (backup.RestoreResult, error) {
		return b.Restore(ctx, name)
	})
}

// RestoreLocalBackup replaces local state with a bundle file.
func (o *Orchestrator) RestoreLocalBackup(ctx context.Context, src string) (State, error) {
	return o.restoreBackup("file:"+src, func(b Backups) (backup.RestoreResult, error) {
		return b.RestoreFromLocalFile(ctx, src)
	})
}

func (o *Orchestrator) restoreBackup(key string, fn func(Backups) (backup.RestoreResult, error)) (State, error) {
	v, err, _ := o.flight.Do(OpRestoreBackup+":"+key, func() (any, error) {
		o.setState(OpRestoreBackup, State{Status: StatusLoading})
		b, err := o.backupManager()
		var res backup.RestoreResult
		if err == nil {
			o.reconcileMu.Lock()
			res, err = fn(b)
			o.reconcileMu.Unlock()
		}
		if err != nil {
			o.logger.Error("syncer: backup restore failed", slog.String("error", err.Error()))
			st := State{Status: StatusError, Message: errorMessage(err)}
			o.setState(OpRestoreBackup, st)
			return st, err
		}
		st := State{Status: StatusSuccess, Restored: res.Conversations}
		o.setState(OpRestoreBackup, st)
		return st, nil
	})
	st, _ := v.(State)
	return st, err
}
