package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/starford/chatsync/internal/syncer"
)

const maxUploadBytes = 50 << 20 // 50 MB

var errMissingFile = errors.New("missing 'file' field in multipart form")

// readUpload returns the request payload. Multipart requests must carry it
// in the "file" field; any other content type is read as the raw body.
func readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return io.ReadAll(r.Body)
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, errors.New("file too large or invalid multipart")
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, errMissingFile
	}
	defer file.Close()
	return io.ReadAll(file)
}

// ImportChatbox handles POST /api/import/chatbox (raw JSON body or
// multipart/form-data, field "file").
//
//	@Summary		Prepend the providers found in a Chatbox export
//	@Tags			import
//	@Accept			json
//	@Accept			mpfd
//	@Produce		json
//	@Success		200	{object}	ImportResponse
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/import/chatbox [post]
func (h *Handler) ImportChatbox(w http.ResponseWriter, r *http.Request) {
	data, err := readUpload(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if len(bytes.TrimSpace(data)) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("empty body"))
		return
	}
	n, err := h.svc.ImportChatbox(r.Context(), data)
	if err != nil {
		writeError(w, "chatbox import failed", err)
		return
	}
	writeJSON(w, http.StatusOK, ImportResponse{Imported: n})
}

// UploadBackup handles POST /api/backups/upload (multipart/form-data, field
// "file", or a raw zip body). The bundle replaces local state.
//
//	@Summary		Restore local state from an uploaded backup bundle
//	@Tags			backups
//	@Accept			mpfd
//	@Produce		json
//	@Success		200	{object}	OperationResponse
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/backups/upload [post]
func (h *Handler) UploadBackup(w http.ResponseWriter, r *http.Request) {
	data, err := readUpload(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if len(data) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("empty body"))
		return
	}

	tmp, err := os.CreateTemp("", "chatsync-upload-*.zip")
	if err != nil {
		writeError(w, "stage backup upload failed", err)
		return
	}
	defer os.Remove(tmp.Name())
	_, err = tmp.Write(data)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		writeError(w, "stage backup upload failed", err)
		return
	}

	st, err := h.svc.RestoreLocalBackup(r.Context(), tmp.Name())
	if err != nil {
		writeError(w, "restore uploaded backup failed", err)
		return
	}
	writeJSON(w, http.StatusOK, OperationResponse{Op: syncer.OpRestoreBackup, State: st})
}
