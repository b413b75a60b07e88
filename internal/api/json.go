package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/chatsync/internal/apperr"
	"github.com/starford/chatsync/internal/backup"
	"github.com/starford/chatsync/internal/importer"
	"github.com/starford/chatsync/internal/syncer"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// statusFor maps an error kind to the HTTP status reported to the caller.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, backup.ErrInvalidName), errors.Is(err, importer.ErrNotObject):
		return http.StatusBadRequest
	case errors.Is(err, backup.ErrNotConfigured),
		errors.Is(err, syncer.ErrNoBackups),
		errors.Is(err, syncer.ErrPublicProviderUnavailable):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrDecode),
		errors.Is(err, apperr.ErrHTTPStatus),
		errors.Is(err, apperr.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs err and writes it with the status its kind maps to.
// Unclassified failures are reported as "internal error".
func writeError(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	slog.Error(msg, slog.String("error", err.Error()), slog.Int("status", status))
	switch {
	case status == http.StatusInternalServerError:
		writeJSON(w, status, errorBody("internal error"))
	case errors.Is(err, apperr.ErrUnauthenticated):
		writeJSON(w, status, errorBody(apperr.ErrUnauthenticated.Error()))
	default:
		writeJSON(w, status, errorBody(err.Error()))
	}
}
