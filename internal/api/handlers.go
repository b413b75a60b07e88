package api

import (
	"context"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/starford/chatsync/internal/backup"
	"github.com/starford/chatsync/internal/syncer"
)

// Handler holds API route handlers.
type Handler struct {
	svc       Service
	exportDir string
}

// NewHandler creates a new Handler. exportDir is where POST /backups/export
// writes bundles.
func NewHandler(svc Service, exportDir string) *Handler {
	return &Handler{svc: svc, exportDir: exportDir}
}

// States handles GET /api/sync/states.
//
//	@Summary		Current state of every sync operation
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	StatesResponse
//	@Security		BearerAuth
//	@Router			/sync/states [get]
func (h *Handler) States(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatesResponse{States: h.svc.States()})
}

// operation adapts an on-demand orchestrator call into a handler.
func (h *Handler) operation(op string, fn func(context.Context) (syncer.State, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := fn(r.Context())
		if err != nil {
			writeError(w, op+" failed", err)
			return
		}
		writeJSON(w, http.StatusOK, OperationResponse{Op: op, State: st})
	}
}

// Upload handles POST /api/sync/upload.
//
//	@Summary		Push providers, assistants and settings to the cloud
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	OperationResponse
//	@Failure		401	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync/upload [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	h.operation(syncer.OpUploadSettings, h.svc.UploadSettingsToCloud)(w, r)
}

// RestoreConversations handles POST /api/sync/restore/conversations.
//
//	@Summary		Insert cloud conversations missing locally
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	OperationResponse
//	@Failure		401	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync/restore/conversations [post]
func (h *Handler) RestoreConversations(w http.ResponseWriter, r *http.Request) {
	h.operation(syncer.OpRestoreConversations, h.svc.RestoreFromCloud)(w, r)
}

// RestoreSettings handles POST /api/sync/restore/settings.
//
//	@Summary		Replace local providers, assistants and settings with the cloud copy
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	OperationResponse
//	@Failure		401	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync/restore/settings [post]
func (h *Handler) RestoreSettings(w http.ResponseWriter, r *http.Request) {
	h.operation(syncer.OpRestoreSettings, h.svc.RestoreSettingsFromCloud)(w, r)
}

// RestoreAll handles POST /api/sync/restore/all.
//
//	@Summary		Restore settings and conversations from the cloud
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	OperationResponse
//	@Failure		401	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync/restore/all [post]
func (h *Handler) RestoreAll(w http.ResponseWriter, r *http.Request) {
	h.operation(syncer.OpRestoreAll, h.svc.RestoreAllFromCloud)(w, r)
}

// PublicProvider handles POST /api/sync/public-provider.
//
//	@Summary		Install the shared public provider offered by the cloud
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	OperationResponse
//	@Failure		401	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync/public-provider [post]
func (h *Handler) PublicProvider(w http.ResponseWriter, r *http.Request) {
	h.operation(syncer.OpPublicProvider, h.svc.InstallPublicProvider)(w, r)
}

// CloudCount handles GET /api/sync/cloud/conversations/count.
//
//	@Summary		Number of non-deleted conversations stored in the cloud
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	CountResponse
//	@Failure		401	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync/cloud/conversations/count [get]
func (h *Handler) CloudCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.CloudConversationCount(r.Context())
	if err != nil {
		writeError(w, "cloud count failed", err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// ListBackups handles GET /api/backups.
//
//	@Summary		List WebDAV backups, newest first
//	@Tags			backups
//	@Produce		json
//	@Success		200	{object}	BackupListResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/backups [get]
func (h *Handler) ListBackups(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListBackups(r.Context())
	if err != nil {
		writeError(w, "list backups failed", err)
		return
	}
	if items == nil {
		items = []BackupItem{}
	}
	writeJSON(w, http.StatusOK, BackupListResponse{Backups: items, Total: len(items)})
}

// CreateBackup handles POST /api/backups.
//
//	@Summary		Upload a new WebDAV backup
//	@Tags			backups
//	@Produce		json
//	@Success		201	{object}	BackupItem
//	@Failure		409	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/backups [post]
func (h *Handler) CreateBackup(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.CreateBackup(r.Context())
	if err != nil {
		writeError(w, "create backup failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// TestBackup handles POST /api/backups/test.
//
//	@Summary		Check the WebDAV connection
//	@Tags			backups
//	@Success		204
//	@Failure		401	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/backups/test [post]
func (h *Handler) TestBackup(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.TestBackupConnection(r.Context()); err != nil {
		writeError(w, "backup connection test failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RestoreBackup handles POST /api/backups/{name}/restore.
//
//	@Summary		Replace local state with a WebDAV backup
//	@Tags			backups
//	@Produce		json
//	@Param			name	path		string	true	"Backup name"
//	@Success		200		{object}	OperationResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/backups/{name}/restore [post]
func (h *Handler) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	h.operation(syncer.OpRestoreBackup, func(ctx context.Context) (syncer.State, error) {
		return h.svc.RestoreBackup(ctx, name)
	})(w, r)
}

// DeleteBackup handles DELETE /api/backups/{name}.
//
//	@Summary		Delete a WebDAV backup
//	@Tags			backups
//	@Param			name	path	string	true	"Backup name"
//	@Success		204
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/backups/{name} [delete]
func (h *Handler) DeleteBackup(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteBackup(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeError(w, "delete backup failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportBackup handles POST /api/backups/export.
//
//	@Summary		Write a backup bundle to the local export directory
//	@Tags			backups
//	@Produce		json
//	@Success		201	{object}	ExportResponse
//	@Security		BearerAuth
//	@Router			/backups/export [post]
func (h *Handler) ExportBackup(w http.ResponseWriter, r *http.Request) {
	if err := os.MkdirAll(h.exportDir, 0o755); err != nil {
		writeError(w, "create export dir failed", err)
		return
	}
	path, err := h.svc.ExportBackup(r.Context(), h.exportDir)
	if err != nil {
		writeError(w, "export backup failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, ExportResponse{Path: path})
}

// ListLocalBackups handles GET /api/backups/local.
//
//	@Summary		List bundles in the local export directory, newest first
//	@Tags			backups
//	@Produce		json
//	@Success		200	{object}	BackupListResponse
//	@Security		BearerAuth
//	@Router			/backups/local [get]
func (h *Handler) ListLocalBackups(w http.ResponseWriter, _ *http.Request) {
	items, err := backup.ListLocal(h.exportDir)
	if err != nil {
		writeError(w, "list local backups failed", err)
		return
	}
	writeJSON(w, http.StatusOK, BackupListResponse{Backups: items, Total: len(items)})
}
