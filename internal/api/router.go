package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// exportDir is where locally exported bundles are written.
func NewRouter(svc Service, authEnabled bool, token string, sseHandler http.Handler, exportDir string) chi.Router {
	h := NewHandler(svc, exportDir)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Cloud sync.
	r.Get("/sync/states", h.States)
	r.Post("/sync/upload", h.Upload)
	r.Post("/sync/restore/conversations", h.RestoreConversations)
	r.Post("/sync/restore/settings", h.RestoreSettings)
	r.Post("/sync/restore/all", h.RestoreAll)
	r.Get("/sync/cloud/conversations/count", h.CloudCount)
	r.Post("/sync/public-provider", h.PublicProvider)

	// Backups. Static routes are registered before {name}.
	r.Get("/backups", h.ListBackups)
	r.Post("/backups", h.CreateBackup)
	r.Post("/backups/test", h.TestBackup)
	r.Get("/backups/local", h.ListLocalBackups)
	r.Post("/backups/export", h.ExportBackup)
	r.Post("/backups/upload", h.UploadBackup)
	r.Post("/backups/{name}/restore", h.RestoreBackup)
	r.Delete("/backups/{name}", h.DeleteBackup)

	// Foreign formats.
	r.Post("/import/chatbox", h.ImportChatbox)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
